package room

import (
	"encoding/json"
	"fmt"

	"github.com/r0zar/charisma-sub000/internal/domain"
)

// Inbound message types.
const (
	MsgSubscribe    = "SUBSCRIBE"
	MsgUnsubscribe  = "UNSUBSCRIBE"
	MsgPing         = "PING"
	MsgManualUpdate = "MANUAL_UPDATE"
	MsgRefresh      = "REFRESH"
)

// Outbound message types.
const (
	MsgServerInfo    = "SERVER_INFO"
	MsgTokenBatch    = "TOKEN_BATCH"
	MsgBalanceBatch  = "BALANCE_BATCH"
	MsgPriceBatch    = "PRICE_BATCH"
	MsgTokenMetadata = "TOKEN_METADATA"
	MsgBalanceUpdate = "BALANCE_UPDATE"
	MsgPriceUpdate   = "PRICE_UPDATE"
	MsgUserPortfolio = "USER_PORTFOLIO"
	MsgPong          = "PONG"
	MsgError         = "ERROR"
)

// InboundMessage is the decoded form of any client message, discriminated
// by Type. Fields not belonging to the given type are left zero.
type InboundMessage struct {
	Type          string   `json:"type"`
	UserIDs       []string `json:"userIds,omitempty"`
	ContractIDs   []string `json:"contractIds,omitempty"`
	IncludePrices bool     `json:"includePrices,omitempty"`
	Timestamp     int64    `json:"timestamp,omitempty"`
}

// DecodeInbound parses and validates a raw client message at the
// boundary. Unknown or missing types are rejected here so core handlers
// only ever see well-formed messages.
func DecodeInbound(data []byte) (*InboundMessage, error) {
	var msg InboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("invalid message format")
	}
	switch msg.Type {
	case MsgSubscribe, MsgUnsubscribe, MsgPing, MsgManualUpdate, MsgRefresh:
		return &msg, nil
	case "":
		return nil, fmt.Errorf("missing message type")
	default:
		return nil, fmt.Errorf("Unknown message type: %s", msg.Type)
	}
}

// TokenPayload is the wire form of a token record.
type TokenPayload struct {
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

func tokenPayload(r *domain.TokenRecord) TokenPayload {
	return TokenPayload{
		ContractID: r.ContractID,
		Name:       r.Name,
		Symbol:     r.Symbol,
		Decimals:   r.Decimals,
		Type:       string(r.Type),
		Base:       r.Base,
		Price:      r.Price,
		Change1h:   r.Change1h,
		Change24h:  r.Change24h,
		Change7d:   r.Change7d,
		MarketCap:  r.MarketCap,
		Verified:   r.Verified,
	}
}

// BalancePayload is the wire form of a merged balance.
type BalancePayload struct {
	UserID               string  `json:"userId"`
	ContractID           string  `json:"contractId"`
	MainnetBalance       uint64  `json:"mainnetBalance"`
	MainnetTotalSent     string  `json:"mainnetTotalSent,omitempty"`
	MainnetTotalReceived string  `json:"mainnetTotalReceived,omitempty"`
	SubnetBalance        *uint64 `json:"subnetBalance,omitempty"`
	SubnetTotalSent      string  `json:"subnetTotalSent,omitempty"`
	SubnetTotalReceived  string  `json:"subnetTotalReceived,omitempty"`
	SubnetContractID     string  `json:"subnetContractId,omitempty"`
	LastUpdated          int64   `json:"lastUpdated"`
}

func balancePayload(b *domain.MergedBalance) BalancePayload {
	return BalancePayload{
		UserID:               b.UserID,
		ContractID:           b.ContractID,
		MainnetBalance:       b.MainnetBalance,
		MainnetTotalSent:     b.MainnetTotalSent,
		MainnetTotalReceived: b.MainnetTotalRecv,
		SubnetBalance:        b.SubnetBalance,
		SubnetTotalSent:      b.SubnetTotalSent,
		SubnetTotalReceived:  b.SubnetTotalRecv,
		SubnetContractID:     b.SubnetContractID,
		LastUpdated:          b.LastUpdatedMs,
	}
}

// ServerInfoMessage reports room state on connect and on request.
type ServerInfoMessage struct {
	Type           string `json:"type"`
	IsLocalDev     bool   `json:"isLocalDev"`
	MetadataLoaded bool   `json:"metadataLoaded"`
	MetadataCount  int    `json:"metadataCount"`
	PriceCount     int    `json:"priceCount"`
	BalanceCount   int    `json:"balanceCount"`
	Timestamp      int64  `json:"timestamp"`
}

// TokenBatchMessage carries a set of token records.
type TokenBatchMessage struct {
	Type      string         `json:"type"`
	Tokens    []TokenPayload `json:"tokens"`
	Timestamp int64          `json:"timestamp"`
}

// TokenMetadataMessage carries one token record update.
type TokenMetadataMessage struct {
	Type      string `json:"type"`
	TokenPayload
	Timestamp int64 `json:"timestamp"`
}

// PriceBatchMessage carries a set of prices keyed by contract id.
type PriceBatchMessage struct {
	Type      string             `json:"type"`
	Prices    map[string]float64 `json:"prices"`
	Timestamp int64              `json:"timestamp"`
}

// PriceUpdateMessage carries one price change.
type PriceUpdateMessage struct {
	Type       string  `json:"type"`
	ContractID string  `json:"contractId"`
	Price      float64 `json:"price"`
	Timestamp  int64   `json:"timestamp"`
}

// BalanceBatchMessage carries a set of merged balances.
type BalanceBatchMessage struct {
	Type      string           `json:"type"`
	UserID    string           `json:"userId,omitempty"`
	Balances  []BalancePayload `json:"balances"`
	Timestamp int64            `json:"timestamp"`
}

// BalanceUpdateMessage carries one merged-balance change.
type BalanceUpdateMessage struct {
	Type string `json:"type"`
	BalancePayload
	Timestamp int64 `json:"timestamp"`
}

// UserPortfolioMessage combines a user's merged balances with the token
// records they reference.
type UserPortfolioMessage struct {
	Type      string           `json:"type"`
	UserID    string           `json:"userId"`
	Tokens    []TokenPayload   `json:"tokens"`
	Balances  []BalancePayload `json:"balances,omitempty"`
	Timestamp int64            `json:"timestamp"`
}

// PongMessage echoes a PING timestamp.
type PongMessage struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// ErrorMessage surfaces a scoped error to one client.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
