// Package subscription tracks per-connection interest and derives the
// room-wide watched sets that scope expensive balance fetches.
//
// The watched sets are always recomputed as the union over the remaining
// connections' interests. They are never decremented in place, which keeps
// them from drifting from the set of connections actually present.
package subscription

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/r0zar/charisma-sub000/internal/contractid"
)

// ClientSubscription is one connection's interest.
type ClientSubscription struct {
	ClientID       string
	UserIDs        map[string]struct{}
	ContractIDs    map[string]struct{}
	IncludePrices  bool
	SubscribeToAll bool
	LastSeenMs     int64
}

// SubscribeResult reports the outcome of one subscribe request. Invalid
// ids are rejected individually; valid ids in the same request proceed.
type SubscribeResult struct {
	AddedUserIDs     []string
	AddedContractIDs []string
	NewUserIDs       []string // users not previously in the room-wide watched set
	NewContractIDs   []string // contracts not previously in the room-wide watched set
	Errors           []string
	SubscribeToAll   bool
}

// Registry holds every connection's subscription for one room.
type Registry struct {
	logger *zap.Logger

	mu               sync.RWMutex
	clients          map[string]*ClientSubscription
	watchedUsers     map[string]struct{}
	watchedContracts map[string]struct{}
	anySubscribeAll  bool
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		logger:           logger,
		clients:          make(map[string]*ClientSubscription),
		watchedUsers:     make(map[string]struct{}),
		watchedContracts: make(map[string]struct{}),
	}
}

// Register adds a connection with an empty subscription.
func (r *Registry) Register(clientID string, nowMs int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clients[clientID] = &ClientSubscription{
		ClientID:    clientID,
		UserIDs:     make(map[string]struct{}),
		ContractIDs: make(map[string]struct{}),
		LastSeenMs:  nowMs,
	}
}

// Subscribe applies a subscribe request. An empty request (no user ids, no
// contract ids) means subscribe to everything. Each id is validated;
// invalid ids produce per-id errors without aborting the valid ones.
func (r *Registry) Subscribe(clientID string, userIDs, contractIDs []string, includePrices bool, nowMs int64) SubscribeResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.clients[clientID]
	if !ok {
		sub = &ClientSubscription{
			ClientID:    clientID,
			UserIDs:     make(map[string]struct{}),
			ContractIDs: make(map[string]struct{}),
		}
		r.clients[clientID] = sub
	}
	sub.LastSeenMs = nowMs
	if includePrices {
		sub.IncludePrices = true
	}

	var result SubscribeResult

	if len(userIDs) == 0 && len(contractIDs) == 0 {
		sub.SubscribeToAll = true
		result.SubscribeToAll = true
		r.recomputeLocked()
		return result
	}

	for _, id := range userIDs {
		if !contractid.IsValidPrincipal(id) {
			result.Errors = append(result.Errors, fmt.Sprintf("Invalid user ID format: %s", id))
			continue
		}
		if _, watched := r.watchedUsers[id]; !watched {
			result.NewUserIDs = append(result.NewUserIDs, id)
		}
		sub.UserIDs[id] = struct{}{}
		result.AddedUserIDs = append(result.AddedUserIDs, id)
	}

	for _, id := range contractIDs {
		if !contractid.IsValid(id) {
			result.Errors = append(result.Errors, fmt.Sprintf("Invalid contract ID format: %s", id))
			continue
		}
		if _, watched := r.watchedContracts[id]; !watched {
			result.NewContractIDs = append(result.NewContractIDs, id)
		}
		sub.ContractIDs[id] = struct{}{}
		result.AddedContractIDs = append(result.AddedContractIDs, id)
	}

	r.recomputeLocked()
	return result
}

// Unsubscribe removes interest. An empty payload clears all of the
// connection's interest.
func (r *Registry) Unsubscribe(clientID string, userIDs, contractIDs []string, nowMs int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.clients[clientID]
	if !ok {
		return
	}
	sub.LastSeenMs = nowMs

	if len(userIDs) == 0 && len(contractIDs) == 0 {
		sub.UserIDs = make(map[string]struct{})
		sub.ContractIDs = make(map[string]struct{})
		sub.SubscribeToAll = false
		sub.IncludePrices = false
	} else {
		for _, id := range userIDs {
			delete(sub.UserIDs, id)
		}
		for _, id := range contractIDs {
			delete(sub.ContractIDs, id)
		}
	}

	r.recomputeLocked()
}

// Drop removes a connection entirely and recomputes the watched sets.
func (r *Registry) Drop(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.clients, clientID)
	r.recomputeLocked()
}

// recomputeLocked rebuilds the watched sets as the union over all
// remaining connections. Caller holds r.mu.
func (r *Registry) recomputeLocked() {
	users := make(map[string]struct{})
	contracts := make(map[string]struct{})
	anyAll := false

	for _, sub := range r.clients {
		if sub.SubscribeToAll {
			anyAll = true
		}
		for id := range sub.UserIDs {
			users[id] = struct{}{}
		}
		for id := range sub.ContractIDs {
			contracts[id] = struct{}{}
		}
	}

	r.watchedUsers = users
	r.watchedContracts = contracts
	r.anySubscribeAll = anyAll
}

// WatchedUsers returns the room-wide watched user set.
func (r *Registry) WatchedUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.watchedUsers))
	for id := range r.watchedUsers {
		out = append(out, id)
	}
	return out
}

// WatchedContracts returns the room-wide watched contract set.
func (r *Registry) WatchedContracts() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.watchedContracts))
	for id := range r.watchedContracts {
		out = append(out, id)
	}
	return out
}

// HasAllSubscriber reports whether any connection subscribed to everything.
// Such a connection's interest covers every currently-known id.
func (r *Registry) HasAllSubscriber() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.anySubscribeAll
}

// IsUserWatched reports whether any connection watches the user.
func (r *Registry) IsUserWatched(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.watchedUsers[userID]
	return ok
}

// ClientCount returns the number of registered connections.
func (r *Registry) ClientCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// WantsBalance reports whether a connection should receive a balance
// update for (userID, mainnet contractID). Subscribe-to-all connections
// receive everything. A connection watching both users and contracts gets
// the scoped intersection; one watching only users gets the user's whole
// portfolio.
func (r *Registry) WantsBalance(clientID, userID, contractID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sub, ok := r.clients[clientID]
	if !ok {
		return false
	}
	if sub.SubscribeToAll {
		return true
	}
	if _, watching := sub.UserIDs[userID]; !watching {
		return false
	}
	if len(sub.ContractIDs) == 0 {
		return true
	}
	_, scoped := sub.ContractIDs[contractID]
	return scoped
}

// WantsPrice reports whether a connection should receive a price update
// for contractID. Subscribe-to-all connections receive everything; other
// connections must have opted into prices, and an explicit contract set
// scopes delivery.
func (r *Registry) WantsPrice(clientID, contractID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sub, ok := r.clients[clientID]
	if !ok {
		return false
	}
	if sub.SubscribeToAll {
		return true
	}
	if !sub.IncludePrices {
		return false
	}
	if len(sub.ContractIDs) == 0 {
		return true
	}
	_, scoped := sub.ContractIDs[contractID]
	return scoped
}

// WantsMetadata reports whether a connection should receive a token
// metadata update for contractID.
func (r *Registry) WantsMetadata(clientID, contractID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sub, ok := r.clients[clientID]
	if !ok {
		return false
	}
	if sub.SubscribeToAll {
		return true
	}
	if len(sub.ContractIDs) == 0 {
		return true
	}
	_, scoped := sub.ContractIDs[contractID]
	return scoped
}

// Get returns a copy of a connection's subscription.
func (r *Registry) Get(clientID string) (ClientSubscription, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sub, ok := r.clients[clientID]
	if !ok {
		return ClientSubscription{}, false
	}
	cp := ClientSubscription{
		ClientID:       sub.ClientID,
		UserIDs:        make(map[string]struct{}, len(sub.UserIDs)),
		ContractIDs:    make(map[string]struct{}, len(sub.ContractIDs)),
		IncludePrices:  sub.IncludePrices,
		SubscribeToAll: sub.SubscribeToAll,
		LastSeenMs:     sub.LastSeenMs,
	}
	for id := range sub.UserIDs {
		cp.UserIDs[id] = struct{}{}
	}
	for id := range sub.ContractIDs {
		cp.ContractIDs[id] = struct{}{}
	}
	return cp, true
}
