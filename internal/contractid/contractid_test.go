package contractid

import "testing"

func TestIsValid(t *testing.T) {
	tests := []struct {
		id    string
		valid bool
	}{
		// Native asset sentinels
		{".stx", true},
		{".STX", true},
		{".Btc", true},
		{".st", false},
		{".stxx", false},
		{"stx", false},

		// Plain contract ids
		{"SP2ZNGJ85ENDY6QTHCQE1C7S56AMCW9D0GEFKS0F5.charisma-token", true},
		{"SP3NE50GEXFG9SZGTT51P40X2CKYSZ5CC4ZTZ7A2G.welshcorgicoin-token", true},
		{"ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM.arkadiko-token", true},

		// Trait-qualified asset identifiers
		{"SP2ZNGJ85ENDY6QTHCQE1C7S56AMCW9D0GEFKS0F5.charisma-token::charisma", true},
		{"SP2ZNGJ85ENDY6QTHCQE1C7S56AMCW9D0GEFKS0F5.charisma-token::lp-token", true},

		// Malformed
		{"", false},
		{"not-a-contract", false},
		{"SP2ZNGJ85ENDY6QTHCQE1C7S56AMCW9D0GEFKS0F5", false},
		{"SP2ZNGJ85ENDY6QTHCQE1C7S56AMCW9D0GEFKS0F5.", false},
		{"SP2ZNGJ85ENDY6QTHCQE1C7S56AMCW9D0GEFKS0F5.Charisma-Token", false},
		{"SP2ZNGJ85ENDY6QTHCQE1C7S56AMCW9D0GEFKS0F5.charisma--token", false},
		{"SP2ZNGJ85ENDY6QTHCQE1C7S56AMCW9D0GEFKS0F5.charisma-token::", false},
		{"sp2zngj85endy6qthcqe1c7s56amcw9d0gefks0f5.charisma-token", false},
		{"SPSHORT.token", false},
	}

	for _, tt := range tests {
		if got := IsValid(tt.id); got != tt.valid {
			t.Errorf("IsValid(%q) = %v, want %v", tt.id, got, tt.valid)
		}
	}
}

func TestIsValidPrincipal(t *testing.T) {
	tests := []struct {
		id    string
		valid bool
	}{
		{"SP2ZNGJ85ENDY6QTHCQE1C7S56AMCW9D0GEFKS0F5", true},
		{"ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM", true},
		{"SP2ZNGJ85ENDY6QTHCQE1C7S56AMCW9D0GEFKS0F5.charisma-token", false},
		{"not-a-principal", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsValidPrincipal(tt.id); got != tt.valid {
			t.Errorf("IsValidPrincipal(%q) = %v, want %v", tt.id, got, tt.valid)
		}
	}
}

func TestStripTrait(t *testing.T) {
	base := "SP2ZNGJ85ENDY6QTHCQE1C7S56AMCW9D0GEFKS0F5.charisma-token"

	if got := StripTrait(base + "::charisma"); got != base {
		t.Errorf("StripTrait = %q, want %q", got, base)
	}
	if got := StripTrait(base); got != base {
		t.Errorf("StripTrait without suffix = %q, want unchanged", got)
	}
}

func TestHasTrait(t *testing.T) {
	if HasTrait("SP2ZNGJ85ENDY6QTHCQE1C7S56AMCW9D0GEFKS0F5.charisma-token") {
		t.Error("HasTrait should be false for bare contract id")
	}
	if !HasTrait("SP2ZNGJ85ENDY6QTHCQE1C7S56AMCW9D0GEFKS0F5.charisma-token::charisma") {
		t.Error("HasTrait should be true for qualified asset id")
	}
}
