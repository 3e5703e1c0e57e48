package room

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/r0zar/charisma-sub000/internal/storage"
)

// memAlarmStore is an in-memory AlarmStore for scheduler tests.
type memAlarmStore struct {
	mu     sync.Mutex
	alarms map[string]int64
}

func newMemAlarmStore() *memAlarmStore {
	return &memAlarmStore{alarms: make(map[string]int64)}
}

func (m *memAlarmStore) SetAlarm(_ context.Context, roomID string, fireAtMs int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alarms[roomID] = fireAtMs
	return nil
}

func (m *memAlarmStore) GetAlarm(_ context.Context, roomID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fireAt, ok := m.alarms[roomID]
	if !ok {
		return 0, storage.ErrNotFound
	}
	return fireAt, nil
}

func (m *memAlarmStore) ClearAlarm(_ context.Context, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.alarms, roomID)
	return nil
}

func TestIntervalSchedulerFires(t *testing.T) {
	fired := make(chan struct{}, 1)
	s := NewIntervalScheduler(func() { fired <- struct{}{} })
	defer s.Stop()

	s.ScheduleNext(10 * time.Millisecond)
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestIntervalSchedulerRearmReplacesPending(t *testing.T) {
	var mu sync.Mutex
	count := 0
	s := NewIntervalScheduler(func() {
		mu.Lock()
		count++
		mu.Unlock()
	})
	defer s.Stop()

	s.ScheduleNext(20 * time.Millisecond)
	s.ScheduleNext(20 * time.Millisecond)
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Errorf("fired %d times, want 1", count)
	}
}

func TestIntervalSchedulerStopPreventsFire(t *testing.T) {
	fired := make(chan struct{}, 1)
	s := NewIntervalScheduler(func() { fired <- struct{}{} })
	s.ScheduleNext(30 * time.Millisecond)
	s.Stop()

	select {
	case <-fired:
		t.Fatal("fired after Stop")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDurableSchedulerPersistsAlarm(t *testing.T) {
	store := newMemAlarmStore()
	s := NewDurableScheduler("main", store, zap.NewNop(), func() {})
	defer s.Stop()

	before := time.Now().UnixMilli()
	s.ScheduleNext(time.Hour)

	fireAt, err := store.GetAlarm(context.Background(), "main")
	if err != nil {
		t.Fatalf("GetAlarm: %v", err)
	}
	if fireAt < before+time.Hour.Milliseconds() {
		t.Errorf("fireAt = %d, want >= %d", fireAt, before+time.Hour.Milliseconds())
	}
}

func TestDurableSchedulerClearsAlarmOnFire(t *testing.T) {
	store := newMemAlarmStore()
	fired := make(chan struct{}, 1)
	s := NewDurableScheduler("main", store, zap.NewNop(), func() { fired <- struct{}{} })
	defer s.Stop()

	s.ScheduleNext(10 * time.Millisecond)
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("alarm did not fire")
	}

	if _, err := store.GetAlarm(context.Background(), "main"); err != storage.ErrNotFound {
		t.Errorf("alarm not cleared after fire: %v", err)
	}
}

func TestDurableSchedulerRestoresPastDueAlarm(t *testing.T) {
	store := newMemAlarmStore()
	store.SetAlarm(context.Background(), "main", time.Now().Add(-time.Minute).UnixMilli())

	fired := make(chan struct{}, 1)
	s := NewDurableScheduler("main", store, zap.NewNop(), func() { fired <- struct{}{} })
	defer s.Stop()

	restored, err := s.Restore(context.Background())
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if !restored {
		t.Fatal("expected a restored alarm")
	}
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("past-due alarm did not fire immediately")
	}
}

func TestDurableSchedulerRestoreWithoutAlarm(t *testing.T) {
	s := NewDurableScheduler("main", newMemAlarmStore(), zap.NewNop(), func() {})
	defer s.Stop()

	restored, err := s.Restore(context.Background())
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if restored {
		t.Fatal("expected no restored alarm")
	}
}
