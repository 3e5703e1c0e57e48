package clickhouse

import (
	"context"
	"fmt"

	"github.com/r0zar/charisma-sub000/internal/domain"
	"github.com/r0zar/charisma-sub000/internal/storage"
)

// HistoryStore implements storage.HistorySink over the price_history and
// balance_history tables.
type HistoryStore struct {
	conn *Conn
}

// NewHistoryStore creates a new HistoryStore.
func NewHistoryStore(conn *Conn) *HistoryStore {
	return &HistoryStore{conn: conn}
}

// Compile-time interface check.
var _ storage.HistorySink = (*HistoryStore)(nil)

// AppendPrices records emitted price updates.
func (s *HistoryStore) AppendPrices(ctx context.Context, roomID string, entries []domain.PriceEntry) error {
	if len(entries) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO price_history (
			room_id, contract_id, price, source, timestamp_ms
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range entries {
		err = batch.Append(roomID, e.ContractID, e.Price, e.Source, uint64(e.TimestampMs))
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// AppendBalances records emitted merged-balance updates.
func (s *HistoryStore) AppendBalances(ctx context.Context, roomID string, balances []*domain.MergedBalance) error {
	if len(balances) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO balance_history (
			room_id, user_id, contract_id, mainnet_balance,
			subnet_balance, has_subnet, subnet_contract_id, timestamp_ms
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, b := range balances {
		var subnetBalance uint64
		var hasSubnet uint8
		if b.SubnetBalance != nil {
			subnetBalance = *b.SubnetBalance
			hasSubnet = 1
		}
		err = batch.Append(
			roomID, b.UserID, b.ContractID, b.MainnetBalance,
			subnetBalance, hasSubnet, b.SubnetContractID, uint64(b.LastUpdatedMs),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}
