package storage

import (
	"context"

	"github.com/r0zar/charisma-sub000/internal/domain"
)

// AlarmStore persists one-shot wake-ups for durable scheduling. The
// hosting model can hibernate idle rooms, so the next wake time must
// survive the process.
type AlarmStore interface {
	// SetAlarm records the next wake time for a room, replacing any
	// previous alarm.
	SetAlarm(ctx context.Context, roomID string, fireAtMs int64) error

	// GetAlarm returns the pending wake time for a room. Returns
	// ErrNotFound if no alarm is set.
	GetAlarm(ctx context.Context, roomID string) (int64, error)

	// ClearAlarm removes a room's pending alarm, if any.
	ClearAlarm(ctx context.Context, roomID string) error
}

// HistorySink records broadcast deltas for offline analytics. Appends are
// best-effort: a sink failure never affects the broadcast path.
type HistorySink interface {
	// AppendPrices records emitted price updates.
	AppendPrices(ctx context.Context, roomID string, entries []domain.PriceEntry) error

	// AppendBalances records emitted merged-balance updates.
	AppendBalances(ctx context.Context, roomID string, balances []*domain.MergedBalance) error
}
