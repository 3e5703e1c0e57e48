package stacks

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/r0zar/charisma-sub000/internal/domain"
)

const testUser = "SP2ZNGJ85ENDY6QTHCQE1C7S56AMCW9D0GEFKS0F5"

func TestClient_AccountBalances(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		want := "/extended/v1/address/" + testUser + "/balances"
		if r.URL.Path != want {
			t.Errorf("path = %q, want %q", r.URL.Path, want)
		}
		json.NewEncoder(w).Encode(AccountBalancesResponse{
			Stx: StxBalance{Balance: "1000000", TotalSent: "500", TotalReceived: "1000500"},
			FungibleTokens: map[string]FungibleTokenBalance{
				"SP2ZNGJ85ENDY6QTHCQE1C7S56AMCW9D0GEFKS0F5.charisma-token::charisma": {
					Balance: "500000", TotalSent: "0", TotalReceived: "500000",
				},
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, WithMaxRetries(0))
	resp, err := client.AccountBalances(context.Background(), testUser)
	if err != nil {
		t.Fatalf("AccountBalances: %v", err)
	}
	if resp.Stx.Balance != "1000000" {
		t.Errorf("stx balance = %q", resp.Stx.Balance)
	}
	if len(resp.FungibleTokens) != 1 {
		t.Errorf("fungible tokens = %d, want 1", len(resp.FungibleTokens))
	}
}

func TestClient_GetSubnetBalance(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		want := "/v2/contracts/call-read/SP2ZNGJ85ENDY6QTHCQE1C7S56AMCW9D0GEFKS0F5/charisma-token-subnet-v1/get-balance"
		if r.URL.Path != want {
			t.Errorf("path = %q, want %q", r.URL.Path, want)
		}
		var req readOnlyCallRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Arguments) != 1 || req.Arguments[0] != "'"+testUser {
			t.Errorf("arguments = %v", req.Arguments)
		}
		json.NewEncoder(w).Encode(readOnlyCallResponse{Okay: true, Result: "(ok u250000)"})
	}))
	defer server.Close()

	client := NewClient(server.URL, WithMaxRetries(0))
	balance, err := client.GetSubnetBalance(context.Background(),
		"SP2ZNGJ85ENDY6QTHCQE1C7S56AMCW9D0GEFKS0F5.charisma-token-subnet-v1", testUser)
	if err != nil {
		t.Fatalf("GetSubnetBalance: %v", err)
	}
	if balance != 250000 {
		t.Errorf("balance = %d, want 250000", balance)
	}
}

func TestClient_GetSubnetBalance_CallFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(readOnlyCallResponse{Okay: false, Cause: "runtime error"})
	}))
	defer server.Close()

	client := NewClient(server.URL, WithMaxRetries(0))
	_, err := client.GetSubnetBalance(context.Background(),
		"SP2ZNGJ85ENDY6QTHCQE1C7S56AMCW9D0GEFKS0F5.charisma-token-subnet-v1", testUser)
	if err == nil {
		t.Fatal("expected error for failed call")
	}
}

func TestClient_RetriesOnServerError(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(AccountBalancesResponse{})
	}))
	defer server.Close()

	client := NewClient(server.URL, WithMaxRetries(3), WithRetryDelay(time.Millisecond))
	if _, err := client.AccountBalances(context.Background(), testUser); err != nil {
		t.Fatalf("AccountBalances should succeed after retries: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestParseClarityUint(t *testing.T) {
	tests := []struct {
		repr    string
		want    uint64
		wantErr bool
	}{
		{"u0", 0, false},
		{"u250000", 250000, false},
		{"(ok u42)", 42, false},
		{"true", 0, true},
		{"u", 0, true},
		{"(err u1)", 0, true},
	}
	for _, tt := range tests {
		got, err := parseClarityUint(tt.repr)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseClarityUint(%q) should fail", tt.repr)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseClarityUint(%q): %v", tt.repr, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseClarityUint(%q) = %d, want %d", tt.repr, got, tt.want)
		}
	}
}

func TestAggregatorClient_ListTokens(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/tokens" {
			t.Errorf("path = %q", r.URL.Path)
		}
		price := 0.42
		json.NewEncoder(w).Encode([]tokenSummary{
			{
				ContractID: "SP2ZNGJ85ENDY6QTHCQE1C7S56AMCW9D0GEFKS0F5.charisma-token",
				Name:       "Charisma", Symbol: "CHA", Decimals: 6,
				Type: "SIP10", Price: &price, Verified: true,
			},
			{
				ContractID: "SP2ZNGJ85ENDY6QTHCQE1C7S56AMCW9D0GEFKS0F5.charisma-token-subnet-v1",
				Name:       "Charisma", Symbol: "CHA", Decimals: 6,
				Type: "SUBNET", Base: "SP2ZNGJ85ENDY6QTHCQE1C7S56AMCW9D0GEFKS0F5.charisma-token",
			},
			{ContractID: ""}, // dropped
		})
	}))
	defer server.Close()

	agg := NewAggregatorClient(server.URL, WithMaxRetries(0))
	tokens, err := agg.ListTokens(context.Background())
	if err != nil {
		t.Fatalf("ListTokens: %v", err)
	}
	if len(tokens) != 2 {
		t.Fatalf("tokens = %d, want 2", len(tokens))
	}
	if tokens[0].Type != domain.TypeSIP10 || tokens[0].Price == nil {
		t.Errorf("unexpected first token: %+v", tokens[0])
	}
	if tokens[1].Type != domain.TypeSubnet || tokens[1].Base == "" {
		t.Errorf("unexpected subnet token: %+v", tokens[1])
	}
}

func TestBasicMetadataClient_UsesFallbackPath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/metadata" {
			t.Errorf("path = %q, want /api/v1/metadata", r.URL.Path)
		}
		json.NewEncoder(w).Encode([]tokenSummary{})
	}))
	defer server.Close()

	basic := NewBasicMetadataClient(server.URL, WithMaxRetries(0))
	if _, err := basic.ListTokens(context.Background()); err != nil {
		t.Fatalf("ListTokens: %v", err)
	}
}
