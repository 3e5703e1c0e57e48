package room

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Manager hosts many independent rooms keyed by room id. Rooms are
// created lazily on first access and live until Shutdown.
type Manager struct {
	cfg  Config // template; ID is filled per room
	deps Deps

	mu    sync.Mutex
	rooms map[string]*Room
}

// NewManager returns a manager that stamps out rooms from cfg and deps.
func NewManager(cfg Config, deps Deps) *Manager {
	return &Manager{cfg: cfg, deps: deps, rooms: make(map[string]*Room)}
}

// Get returns the room with the given id, creating it if needed.
func (m *Manager) Get(id string) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rooms[id]; ok {
		return r, nil
	}
	cfg := m.cfg
	cfg.ID = id
	r, err := New(cfg, m.deps)
	if err != nil {
		return nil, err
	}
	m.rooms[id] = r
	return r, nil
}

// Count returns the number of live rooms.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms)
}

// ServeHTTP routes by the last path segment as the room id, so both
// /rooms/main and /parties/main/main resolve to room "main".
func (m *Manager) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	id := strings.Trim(req.URL.Path, "/")
	if i := strings.LastIndex(id, "/"); i >= 0 {
		id = id[i+1:]
	}
	if id == "" {
		id = "main"
	}
	r, err := m.Get(id)
	if err != nil {
		if m.deps.Logger != nil {
			m.deps.Logger.Error("failed to create room", zap.String("room", id), zap.Error(err))
		}
		http.Error(w, "failed to create room", http.StatusInternalServerError)
		return
	}
	r.ServeHTTP(w, req)
}

// Shutdown closes every room, honoring ctx as a deadline.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.rooms = make(map[string]*Room)
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		for _, r := range rooms {
			r.Close()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
