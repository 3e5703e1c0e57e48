package metadata

import (
	"testing"

	"github.com/r0zar/charisma-sub000/internal/contractid"
)

func TestKnownSubnetMappingsAreValidContractIDs(t *testing.T) {
	for subnet, base := range KnownSubnetMappings {
		if !contractid.IsValid(subnet) {
			t.Errorf("subnet id %q is not a valid contract id", subnet)
		}
		if !contractid.IsValid(base) {
			t.Errorf("base id %q is not a valid contract id", base)
		}
		if subnet == base {
			t.Errorf("subnet %q maps to itself", subnet)
		}
	}
}

func TestBaseFor(t *testing.T) {
	subnet := "SP2ZNGJ85ENDY6QTHCQE1C7S56AMCW9D0GEFKS0F5.charisma-token-subnet-v1"
	base, ok := BaseFor(subnet)
	if !ok {
		t.Fatalf("BaseFor(%q) not found", subnet)
	}
	if base != "SP2ZNGJ85ENDY6QTHCQE1C7S56AMCW9D0GEFKS0F5.charisma-token" {
		t.Errorf("base = %q", base)
	}

	if _, ok := BaseFor("SP2ZNGJ85ENDY6QTHCQE1C7S56AMCW9D0GEFKS0F5.not-a-subnet"); ok {
		t.Error("unexpected mapping for unknown subnet")
	}
}
