package stacks

// StxBalance is the native-asset portion of an account balance response.
type StxBalance struct {
	Balance       string `json:"balance"`
	TotalSent     string `json:"total_sent"`
	TotalReceived string `json:"total_received"`
}

// FungibleTokenBalance is one fungible-token entry in an account balance
// response, keyed by fully-qualified asset identifier (contract::asset).
type FungibleTokenBalance struct {
	Balance       string `json:"balance"`
	TotalSent     string `json:"total_sent"`
	TotalReceived string `json:"total_received"`
}

// AccountBalancesResponse is the account-balance API payload.
type AccountBalancesResponse struct {
	Stx            StxBalance                      `json:"stx"`
	FungibleTokens map[string]FungibleTokenBalance `json:"fungible_tokens"`
}

// readOnlyCallRequest is the body of a read-only contract call. Arguments
// are Clarity value reprs ("u100", "'SP...", "0x...").
type readOnlyCallRequest struct {
	Sender    string   `json:"sender"`
	Arguments []string `json:"arguments"`
}

// readOnlyCallResponse is the result of a read-only contract call. Result
// is the Clarity repr of the returned value.
type readOnlyCallResponse struct {
	Okay   bool   `json:"okay"`
	Result string `json:"result"`
	Cause  string `json:"cause,omitempty"`
}

// tokenSummary is one entry of the aggregator token list.
type tokenSummary struct {
	ContractID string   `json:"contractId"`
	Name       string   `json:"name"`
	Symbol     string   `json:"symbol"`
	Decimals   int      `json:"decimals"`
	Type       string   `json:"type"`
	Base       string   `json:"base,omitempty"`
	Price      *float64 `json:"price,omitempty"`
	Change1h   *float64 `json:"change1h,omitempty"`
	Change24h  *float64 `json:"change24h,omitempty"`
	Change7d   *float64 `json:"change7d,omitempty"`
	MarketCap  *float64 `json:"marketCap,omitempty"`
	Verified   bool     `json:"verified"`
}
