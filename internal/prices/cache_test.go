package prices

import (
	"math"
	"testing"

	"go.uber.org/zap"
)

const cha = "SP2ZNGJ85ENDY6QTHCQE1C7S56AMCW9D0GEFKS0F5.charisma-token"

func TestCache_StagesNewPrices(t *testing.T) {
	c := NewCache(zap.NewNop())

	staged := c.Update(1000, map[string]float64{cha: 0.42}, "aggregator")
	if len(staged) != 1 {
		t.Fatalf("staged = %d entries, want 1", len(staged))
	}
	if staged[0].ContractID != cha || staged[0].Price != 0.42 {
		t.Errorf("unexpected staged entry: %+v", staged[0])
	}
}

func TestCache_SuppressesUnchangedPrices(t *testing.T) {
	c := NewCache(zap.NewNop())

	staged := c.Update(1000, map[string]float64{cha: 0.42}, "aggregator")
	c.Commit(staged)

	// Same value again: nothing staged.
	staged = c.Update(2000, map[string]float64{cha: 0.42}, "aggregator")
	if len(staged) != 0 {
		t.Fatalf("unchanged price staged %d entries, want 0", len(staged))
	}

	// The smallest change is emitted exactly once.
	staged = c.Update(3000, map[string]float64{cha: 0.42000001}, "aggregator")
	if len(staged) != 1 {
		t.Fatalf("changed price staged %d entries, want 1", len(staged))
	}
}

func TestCache_UncommittedStaysStaged(t *testing.T) {
	c := NewCache(zap.NewNop())

	c.Update(1000, map[string]float64{cha: 0.42}, "aggregator")
	// Broadcast never happened, so the same value stages again.
	staged := c.Update(2000, map[string]float64{cha: 0.42}, "aggregator")
	if len(staged) != 1 {
		t.Fatalf("staged = %d entries, want 1 (commit never ran)", len(staged))
	}
}

func TestCache_DiscardsNonFinitePrices(t *testing.T) {
	c := NewCache(zap.NewNop())

	staged := c.Update(1000, map[string]float64{
		cha:     math.NaN(),
		"other": math.Inf(1),
	}, "aggregator")
	if len(staged) != 0 {
		t.Fatalf("non-finite prices staged %d entries, want 0", len(staged))
	}
	if c.Count() != 0 {
		t.Errorf("Count = %d, want 0", c.Count())
	}
}

func TestCache_GetAndSnapshot(t *testing.T) {
	c := NewCache(zap.NewNop())
	c.Update(1000, map[string]float64{cha: 0.42}, "aggregator")

	e, ok := c.Get(cha)
	if !ok || e.Price != 0.42 || e.TimestampMs != 1000 {
		t.Errorf("Get = %+v, %v", e, ok)
	}

	snap := c.Snapshot()
	if len(snap) != 1 {
		t.Errorf("Snapshot size = %d, want 1", len(snap))
	}
}
