// Package prices tracks latest token prices and suppresses redundant
// broadcasts. A shadow last-broadcast map keeps emitted volume proportional
// to actual market movement rather than poll frequency.
package prices

import (
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/r0zar/charisma-sub000/internal/domain"
)

// Cache holds the latest price per contract id for one room.
type Cache struct {
	logger *zap.Logger

	mu            sync.RWMutex
	entries       map[string]domain.PriceEntry
	lastBroadcast map[string]float64
}

// NewCache creates an empty price cache.
func NewCache(logger *zap.Logger) *Cache {
	return &Cache{
		logger:        logger,
		entries:       make(map[string]domain.PriceEntry),
		lastBroadcast: make(map[string]float64),
	}
}

// Update ingests a refreshed price map and returns only the entries that
// are new or changed since the last committed broadcast. NaN and infinite
// prices are discarded with a warning. The staged entries are not marked
// broadcast until Commit is called.
func (c *Cache) Update(nowMs int64, prices map[string]float64, source string) []domain.PriceEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	var staged []domain.PriceEntry
	for id, price := range prices {
		if math.IsNaN(price) || math.IsInf(price, 0) {
			c.logger.Warn("discarding non-finite price", zap.String("contractId", id), zap.Float64("price", price))
			continue
		}
		entry := domain.PriceEntry{
			ContractID:  id,
			Price:       price,
			TimestampMs: nowMs,
			Source:      source,
		}
		c.entries[id] = entry

		last, seen := c.lastBroadcast[id]
		if seen && last == price {
			continue
		}
		staged = append(staged, entry)
	}
	return staged
}

// Commit records the staged entries as broadcast, so identical values in
// the next cycle are suppressed.
func (c *Cache) Commit(entries []domain.PriceEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range entries {
		c.lastBroadcast[e.ContractID] = e.Price
	}
}

// Get returns the latest entry for a contract id.
func (c *Cache) Get(contractID string) (domain.PriceEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[contractID]
	return e, ok
}

// Snapshot returns a copy of all current entries.
func (c *Cache) Snapshot() map[string]domain.PriceEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]domain.PriceEntry, len(c.entries))
	for id, e := range c.entries {
		out[id] = e
	}
	return out
}

// Count returns the number of cached prices.
func (c *Cache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
