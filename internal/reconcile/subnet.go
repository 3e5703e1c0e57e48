package reconcile

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/r0zar/charisma-sub000/internal/domain"
)

// ContractCaller executes a read-only contract call returning a uint
// balance. Satisfied by *stacks.Client.
type ContractCaller interface {
	GetSubnetBalance(ctx context.Context, contractID, userID string) (uint64, error)
}

// FetchSubnetBalances issues a get-balance call for every subnet token
// concurrently and collects the successes. A zero balance produces no
// observation: absence means zero. Per-token failures are logged and do
// not abort the other calls.
func FetchSubnetBalances(ctx context.Context, caller ContractCaller, userID string, subnetTokens []*domain.TokenRecord, logger *zap.Logger) []domain.RawBalanceObservation {
	nowMs := time.Now().UnixMilli()

	var (
		mu  sync.Mutex
		out []domain.RawBalanceObservation
		wg  sync.WaitGroup
	)

	for _, token := range subnetTokens {
		wg.Add(1)
		go func(token *domain.TokenRecord) {
			defer wg.Done()

			balance, err := caller.GetSubnetBalance(ctx, token.ContractID, userID)
			if err != nil {
				logger.Warn("subnet get-balance failed",
					zap.String("contractId", token.ContractID),
					zap.String("userId", userID),
					zap.Error(err))
				return
			}
			if balance == 0 {
				return
			}

			mu.Lock()
			out = append(out, domain.RawBalanceObservation{
				UserID:      userID,
				ContractID:  token.ContractID,
				Balance:     balance,
				TimestampMs: nowMs,
				Source:      domain.SourceSubnetCall,
			})
			mu.Unlock()
		}(token)
	}

	wg.Wait()
	return out
}
