// Package reconcile merges raw per-contract balance observations into one
// logical balance per (user, mainnet-token) pair.
//
// Mainnet and subnet observations for the same economic asset land under a
// single reconciliation key: the mainnet contract id, taken from the
// record itself for non-subnet tokens and from the base link for subnet
// tokens. Reconciliation is idempotent and last-write-wins per field, so
// concurrent refresh triggers interleave safely.
package reconcile

import (
	"go.uber.org/zap"

	"github.com/r0zar/charisma-sub000/internal/domain"
)

// Resolver looks up token records by contract id, with trait-suffix
// fallback. Satisfied by *metadata.Store.
type Resolver interface {
	Resolve(contractID string) (*domain.TokenRecord, bool)
}

// Engine applies raw observations to a merged balance map.
type Engine struct {
	logger *zap.Logger
}

// NewEngine creates a reconciliation engine.
func NewEngine(logger *zap.Logger) *Engine {
	return &Engine{logger: logger}
}

// Reconcile applies observations to balances in place and returns the
// merged entries that were written this pass. Observations whose contract
// id does not resolve, or whose subnet base does not resolve, are dropped
// with a warning; one bad observation never affects the rest.
func (e *Engine) Reconcile(nowMs int64, observations []domain.RawBalanceObservation, resolver Resolver, balances map[domain.BalanceKey]*domain.MergedBalance) []*domain.MergedBalance {
	touched := make(map[domain.BalanceKey]*domain.MergedBalance)

	for _, obs := range observations {
		record, ok := resolver.Resolve(obs.ContractID)
		if !ok {
			e.logger.Warn("No token record for observation, dropping",
				zap.String("contractId", obs.ContractID),
				zap.String("userId", obs.UserID))
			continue
		}

		mainnetID := record.ContractID
		if record.IsSubnet() {
			base, ok := resolver.Resolve(record.Base)
			if !ok || base.IsSubnet() {
				e.logger.Warn("subnet token has invalid base, dropping observation",
					zap.String("contractId", record.ContractID),
					zap.String("base", record.Base),
					zap.String("userId", obs.UserID))
				continue
			}
			mainnetID = base.ContractID
		}

		key := domain.BalanceKey{UserID: obs.UserID, ContractID: mainnetID}
		merged, exists := balances[key]
		if !exists {
			merged = &domain.MergedBalance{UserID: obs.UserID, ContractID: mainnetID}
			balances[key] = merged
		}

		if record.IsSubnet() {
			bal := obs.Balance
			merged.SubnetBalance = &bal
			merged.SubnetTotalSent = obs.TotalSent
			merged.SubnetTotalRecv = obs.TotalReceived
			merged.SubnetContractID = record.ContractID
		} else {
			merged.MainnetBalance = obs.Balance
			merged.MainnetTotalSent = obs.TotalSent
			merged.MainnetTotalRecv = obs.TotalReceived
		}
		merged.LastUpdatedMs = nowMs
		touched[key] = merged
	}

	out := make([]*domain.MergedBalance, 0, len(touched))
	for _, m := range touched {
		out = append(out, m)
	}
	return out
}

// DropUser removes every merged balance belonging to a user. Called when
// cleanup determines no subscription references the user anymore.
func DropUser(balances map[domain.BalanceKey]*domain.MergedBalance, userID string) int {
	removed := 0
	for key := range balances {
		if key.UserID == userID {
			delete(balances, key)
			removed++
		}
	}
	return removed
}
