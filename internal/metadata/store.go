// Package metadata maintains the in-memory token metadata snapshot.
//
// The snapshot is replaced wholesale on each refresh. Subnet records are
// self-healed after every refresh: a SUBNET record whose base link is
// missing or malformed is repaired from KnownSubnetMappings, and known
// subnet contracts absent from the upstream snapshot are synthesized from
// their base record.
package metadata

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/r0zar/charisma-sub000/internal/contractid"
	"github.com/r0zar/charisma-sub000/internal/domain"
)

// NativeContractID is the sentinel contract id for the chain's native
// asset.
const NativeContractID = ".stx"

// ErrNoSource is returned by Refresh when every metadata source failed and
// no snapshot could be produced.
var ErrNoSource = errors.New("all metadata sources failed")

// Source lists token records from an upstream aggregator.
type Source interface {
	ListTokens(ctx context.Context) ([]*domain.TokenRecord, error)
}

// Store is the in-memory token metadata store for one room.
type Store struct {
	primary  Source
	fallback Source // degraded basic-metadata source, may be nil
	logger   *zap.Logger

	mu            sync.RWMutex
	records       map[string]*domain.TokenRecord
	lastRefreshMs int64
	degraded      bool
}

// New creates a Store backed by a primary aggregator and an optional
// degraded fallback source.
func New(primary, fallback Source, logger *zap.Logger) *Store {
	return &Store{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		records:  make(map[string]*domain.TokenRecord),
	}
}

// Refresh fetches a fresh snapshot and replaces the current one. On primary
// failure it degrades to the basic-metadata fallback (no pricing). On total
// failure the previous snapshot is retained and an error is returned: the
// store is never left empty once populated.
func (s *Store) Refresh(ctx context.Context) error {
	recs, err := s.primary.ListTokens(ctx)
	degraded := false
	if err != nil {
		s.logger.Warn("primary metadata source failed, trying fallback", zap.Error(err))
		if s.fallback == nil {
			return ErrNoSource
		}
		recs, err = s.fallback.ListTokens(ctx)
		if err != nil {
			s.logger.Error("fallback metadata source failed, retaining previous snapshot", zap.Error(err))
			return ErrNoSource
		}
		degraded = true
	}

	next := make(map[string]*domain.TokenRecord, len(recs))
	for _, r := range recs {
		if r == nil || r.ContractID == "" {
			continue
		}
		next[r.ContractID] = r.Clone()
	}

	s.mu.Lock()
	s.records = next
	s.degraded = degraded
	s.lastRefreshMs = time.Now().UnixMilli()
	s.mu.Unlock()

	repaired := s.FixSubnetMappings()
	synthesized := s.SynthesizeMissingSubnets()
	nativeAdded := s.EnsureNativeRecord()

	s.logger.Info("metadata snapshot refreshed",
		zap.Int("tokens", len(next)),
		zap.Int("subnetsRepaired", repaired),
		zap.Int("subnetsSynthesized", synthesized),
		zap.Bool("nativeSynthesized", nativeAdded),
		zap.Bool("degraded", degraded))
	return nil
}

// Resolve looks up a record by contract id. Trait-qualified asset
// identifiers ("contract::trait") fall back to the defining contract.
// The returned record is a copy.
func (s *Store) Resolve(id string) (*domain.TokenRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r, ok := s.records[id]; ok {
		return r.Clone(), true
	}
	if contractid.HasTrait(id) {
		if r, ok := s.records[contractid.StripTrait(id)]; ok {
			return r.Clone(), true
		}
	}
	return nil, false
}

// FixSubnetMappings repairs SUBNET records whose base link is missing or
// not a valid contract id, using the known-mapping table. Records with no
// known mapping stay invalid and are logged; they are excluded from
// reconciliation downstream. Returns the number of repaired records.
func (s *Store) FixSubnetMappings() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	repaired := 0
	for id, r := range s.records {
		if r.Type != domain.TypeSubnet {
			continue
		}
		if r.Base != "" && contractid.IsValid(r.Base) {
			continue
		}
		base, ok := BaseFor(id)
		if !ok {
			s.logger.Warn("subnet token has no usable base and no known mapping",
				zap.String("contractId", id),
				zap.String("base", r.Base))
			continue
		}
		r.Base = base
		repaired++
	}
	return repaired
}

// SynthesizeMissingSubnets fabricates SUBNET records for known subnet
// contracts the upstream snapshot omitted, cloning display and price fields
// from the base record. Entries whose base is also unknown are skipped.
// Returns the number of fabricated records.
func (s *Store) SynthesizeMissingSubnets() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	created := 0
	for subnetID, baseID := range KnownSubnetMappings {
		if _, exists := s.records[subnetID]; exists {
			continue
		}
		base, ok := s.records[baseID]
		if !ok {
			continue
		}
		synth := base.Clone()
		synth.ContractID = subnetID
		synth.Type = domain.TypeSubnet
		synth.Base = baseID
		s.records[subnetID] = synth
		created++
	}
	return created
}

// EnsureNativeRecord adds the native-asset record when the upstream
// snapshot omits it. Balance observations for the native asset resolve
// against the store like any other token, so a missing record would drop
// native balances every cycle. An upstream record (with pricing) wins.
// Returns true when a record was added.
func (s *Store) EnsureNativeRecord() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[NativeContractID]; exists {
		return false
	}
	s.records[NativeContractID] = &domain.TokenRecord{
		ContractID: NativeContractID,
		Name:       "Stacks",
		Symbol:     "STX",
		Decimals:   6,
		Type:       domain.TypeSIP10,
		Verified:   true,
	}
	return true
}

// ValidSubnetTokens returns copies of every SUBNET record whose base
// resolves to a non-subnet record in the current snapshot.
func (s *Store) ValidSubnetTokens() []*domain.TokenRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.TokenRecord
	for _, r := range s.records {
		if r.Type != domain.TypeSubnet {
			continue
		}
		base, ok := s.records[r.Base]
		if !ok || base.Type == domain.TypeSubnet {
			continue
		}
		out = append(out, r.Clone())
	}
	return out
}

// MainnetTokens returns copies of every non-subnet record.
func (s *Store) MainnetTokens() []*domain.TokenRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.TokenRecord
	for _, r := range s.records {
		if r.Type == domain.TypeSubnet {
			continue
		}
		out = append(out, r.Clone())
	}
	return out
}

// Snapshot returns copies of every record in the current snapshot.
func (s *Store) Snapshot() []*domain.TokenRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.TokenRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r.Clone())
	}
	return out
}

// Prices extracts the current price for every record that has one.
func (s *Store) Prices() map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]float64)
	for id, r := range s.records {
		if r.Price != nil {
			out[id] = *r.Price
		}
	}
	return out
}

// Count returns the number of records in the current snapshot.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Loaded reports whether the store has ever been populated.
func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRefreshMs != 0
}

// Degraded reports whether the last successful refresh came from the
// basic-metadata fallback.
func (s *Store) Degraded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.degraded
}
