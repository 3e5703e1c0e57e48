package postgres

import (
	"context"
	"fmt"

	"github.com/r0zar/charisma-sub000/internal/storage"
)

// AlarmStore implements storage.AlarmStore over an alarms table with one
// row per room.
type AlarmStore struct {
	pool *Pool
}

// NewAlarmStore creates a new AlarmStore.
func NewAlarmStore(pool *Pool) *AlarmStore {
	return &AlarmStore{pool: pool}
}

// Compile-time interface check.
var _ storage.AlarmStore = (*AlarmStore)(nil)

// SetAlarm records the next wake time for a room, replacing any previous alarm.
func (s *AlarmStore) SetAlarm(ctx context.Context, roomID string, fireAtMs int64) error {
	if roomID == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO alarms (room_id, fire_at_ms, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (room_id)
		DO UPDATE SET fire_at_ms = EXCLUDED.fire_at_ms, updated_at = now()
	`, roomID, fireAtMs)
	if err != nil {
		return fmt.Errorf("set alarm: %w", err)
	}
	return nil
}

// GetAlarm returns the pending wake time for a room.
func (s *AlarmStore) GetAlarm(ctx context.Context, roomID string) (int64, error) {
	var fireAtMs int64
	err := s.pool.QueryRow(ctx, `
		SELECT fire_at_ms FROM alarms WHERE room_id = $1
	`, roomID).Scan(&fireAtMs)
	if err != nil {
		if isNotFoundError(err) {
			return 0, storage.ErrNotFound
		}
		return 0, fmt.Errorf("get alarm: %w", err)
	}
	return fireAtMs, nil
}

// ClearAlarm removes a room's pending alarm, if any.
func (s *AlarmStore) ClearAlarm(ctx context.Context, roomID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM alarms WHERE room_id = $1`, roomID)
	if err != nil {
		return fmt.Errorf("clear alarm: %w", err)
	}
	return nil
}
