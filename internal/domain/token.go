package domain

// TokenType classifies a token record.
type TokenType string

const (
	// TypeSIP10 is a standard fungible token on the base chain.
	TypeSIP10 TokenType = "SIP10"
	// TypeSubnet is a layer-2 token contract mirroring a mainnet token.
	TypeSubnet TokenType = "SUBNET"
	// TypeLP is a liquidity-pool token.
	TypeLP TokenType = "LP"
)

// TokenRecord represents one token in the metadata snapshot.
// Records are replaced wholesale on each refresh cycle.
type TokenRecord struct {
	ContractID string
	Name       string
	Symbol     string
	Decimals   int
	Type       TokenType
	Base       string // mainnet contract id, set iff Type == TypeSubnet

	Price     *float64 // nullable market fields
	Change1h  *float64
	Change24h *float64
	Change7d  *float64
	MarketCap *float64

	Verified bool
}

// IsSubnet reports whether the record is a subnet token.
func (t *TokenRecord) IsSubnet() bool {
	return t.Type == TypeSubnet
}

// Clone returns a deep copy of the record.
func (t *TokenRecord) Clone() *TokenRecord {
	cp := *t
	cp.Price = cloneFloat(t.Price)
	cp.Change1h = cloneFloat(t.Change1h)
	cp.Change24h = cloneFloat(t.Change24h)
	cp.Change7d = cloneFloat(t.Change7d)
	cp.MarketCap = cloneFloat(t.MarketCap)
	return &cp
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
