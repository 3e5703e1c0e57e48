package room

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/r0zar/charisma-sub000/internal/storage"
)

// SchedulingMode selects how refresh cycles are scheduled.
type SchedulingMode string

const (
	// ModeInterval schedules with an in-process timer. Pending work is
	// lost if the process stops.
	ModeInterval SchedulingMode = "interval"
	// ModeDurable persists the next fire time so a restarted process can
	// resume past-due work.
	ModeDurable SchedulingMode = "durable"
)

// Scheduler drives periodic refresh work. ScheduleNext arms exactly one
// pending fire; arming again replaces it.
type Scheduler interface {
	ScheduleNext(delay time.Duration)
	Stop()
}

// IntervalScheduler fires a callback on an in-process timer.
type IntervalScheduler struct {
	mu    sync.Mutex
	timer *time.Timer
	fire  func()
}

// NewIntervalScheduler returns a scheduler that invokes fire on a
// goroutine when the armed delay elapses.
func NewIntervalScheduler(fire func()) *IntervalScheduler {
	return &IntervalScheduler{fire: fire}
}

func (s *IntervalScheduler) ScheduleNext(delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(delay, s.fire)
}

func (s *IntervalScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

var _ Scheduler = (*IntervalScheduler)(nil)

// DurableScheduler persists the next fire time through an AlarmStore so
// a pending refresh survives restarts. The in-process timer still drives
// the actual fire; the store is the source of truth for recovery.
type DurableScheduler struct {
	roomID string
	store  storage.AlarmStore
	logger *zap.Logger

	mu    sync.Mutex
	timer *time.Timer
	fire  func()
}

// NewDurableScheduler returns a scheduler backed by store for roomID.
func NewDurableScheduler(roomID string, store storage.AlarmStore, logger *zap.Logger, fire func()) *DurableScheduler {
	return &DurableScheduler{roomID: roomID, store: store, logger: logger, fire: fire}
}

func (s *DurableScheduler) ScheduleNext(delay time.Duration) {
	fireAt := time.Now().Add(delay).UnixMilli()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.store.SetAlarm(ctx, s.roomID, fireAt); err != nil {
		s.logger.Warn("failed to persist alarm, falling back to timer only",
			zap.String("room", s.roomID), zap.Error(err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(delay, s.onFire)
}

func (s *DurableScheduler) onFire() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := s.store.ClearAlarm(ctx, s.roomID); err != nil {
		s.logger.Warn("failed to clear fired alarm",
			zap.String("room", s.roomID), zap.Error(err))
	}
	cancel()
	s.fire()
}

func (s *DurableScheduler) Stop() {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.store.ClearAlarm(ctx, s.roomID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.logger.Warn("failed to clear alarm on stop",
			zap.String("room", s.roomID), zap.Error(err))
	}
}

// Restore checks the store for a persisted alarm and re-arms it. A
// past-due alarm fires immediately. Returns true when an alarm was found.
func (s *DurableScheduler) Restore(ctx context.Context) (bool, error) {
	fireAt, err := s.store.GetAlarm(ctx, s.roomID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	delay := time.Until(time.UnixMilli(fireAt))
	if delay < 0 {
		delay = 0
	}
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(delay, s.onFire)
	s.mu.Unlock()
	s.logger.Info("restored persisted alarm",
		zap.String("room", s.roomID), zap.Int64("fire_at_ms", fireAt))
	return true, nil
}

var _ Scheduler = (*DurableScheduler)(nil)
