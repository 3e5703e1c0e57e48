package domain

// PriceEntry is the latest known price for one contract id. Exactly one
// entry exists per contract id; refreshes overwrite in place.
type PriceEntry struct {
	ContractID  string
	Price       float64
	TimestampMs int64
	Source      string
}
