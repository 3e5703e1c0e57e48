package domain

// ObservationSource identifies where a raw balance observation came from.
type ObservationSource string

const (
	// SourceChainAPI marks balances returned by the account-balance HTTP API.
	SourceChainAPI ObservationSource = "chain-api"
	// SourceSubnetCall marks balances returned by a read-only subnet contract call.
	SourceSubnetCall ObservationSource = "subnet-contract-call"
)

// RawBalanceObservation is a single balance fact for one (user, contract)
// pair within one fetch cycle. Observations are ephemeral: they exist only
// as input to reconciliation and are not retained.
type RawBalanceObservation struct {
	UserID        string
	ContractID    string
	Balance       uint64
	TotalSent     string
	TotalReceived string
	TimestampMs   int64
	Source        ObservationSource
}

// BalanceKey identifies one MergedBalance: the user plus the mainnet
// contract id under which mainnet and subnet balances merge.
type BalanceKey struct {
	UserID     string
	ContractID string
}

// MergedBalance is the reconciled balance entity for one (user,
// mainnet-token) pair. Mainnet and subnet portions are written
// independently; every write stamps LastUpdatedMs.
type MergedBalance struct {
	UserID            string
	ContractID        string // mainnet contract id
	MainnetBalance    uint64
	MainnetTotalSent  string
	MainnetTotalRecv  string
	SubnetBalance     *uint64
	SubnetTotalSent   string
	SubnetTotalRecv   string
	SubnetContractID  string
	LastUpdatedMs     int64
}

// Key returns the reconciliation key for the merged balance.
func (b *MergedBalance) Key() BalanceKey {
	return BalanceKey{UserID: b.UserID, ContractID: b.ContractID}
}

// Clone returns a deep copy of the merged balance.
func (b *MergedBalance) Clone() *MergedBalance {
	cp := *b
	if b.SubnetBalance != nil {
		v := *b.SubnetBalance
		cp.SubnetBalance = &v
	}
	return &cp
}
