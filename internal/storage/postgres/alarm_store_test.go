package postgres_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r0zar/charisma-sub000/internal/storage"
	pgstore "github.com/r0zar/charisma-sub000/internal/storage/postgres"
)

func TestAlarmStore_SetGetClear(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := pgstore.NewAlarmStore(pool)
	ctx := context.Background()

	// No alarm yet.
	_, err := store.GetAlarm(ctx, "room-1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.SetAlarm(ctx, "room-1", 1704067200000))

	fireAt, err := store.GetAlarm(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1704067200000), fireAt)

	// Rescheduling replaces the previous alarm.
	require.NoError(t, store.SetAlarm(ctx, "room-1", 1704067260000))
	fireAt, err = store.GetAlarm(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1704067260000), fireAt)

	require.NoError(t, store.ClearAlarm(ctx, "room-1"))
	_, err = store.GetAlarm(ctx, "room-1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// Clearing an absent alarm is not an error.
	assert.NoError(t, store.ClearAlarm(ctx, "room-1"))
}

func TestAlarmStore_RoomsAreIndependent(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := pgstore.NewAlarmStore(pool)
	ctx := context.Background()

	require.NoError(t, store.SetAlarm(ctx, "room-a", 1000))
	require.NoError(t, store.SetAlarm(ctx, "room-b", 2000))

	require.NoError(t, store.ClearAlarm(ctx, "room-a"))

	fireAt, err := store.GetAlarm(ctx, "room-b")
	require.NoError(t, err)
	assert.Equal(t, int64(2000), fireAt)
}

func TestAlarmStore_RejectsEmptyRoomID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := pgstore.NewAlarmStore(pool)
	assert.ErrorIs(t, store.SetAlarm(context.Background(), "", 1000), storage.ErrInvalidInput)
}
