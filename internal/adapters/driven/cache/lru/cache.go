// Package lru provides bounded, expiring in-process caches for rerank
// results and webhook delivery ids.
package lru

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/custodia-labs/knowledge-server/internal/core/domain"
	"github.com/custodia-labs/knowledge-server/internal/core/ports/driven"
)

// Default sizes.
const (
	DefaultRerankEntries   = 1024
	DefaultDeliveryEntries = 4096
)

var (
	_ driven.RerankCache = (*RerankCache)(nil)
	_ driven.DeliveryLog = (*DeliveryLog)(nil)
)

type rerankEntry struct {
	value     []domain.RankedMatch
	expiresAt time.Time
}

// RerankCache keeps rerank results for at most maxTTL. Entries put with a
// shorter ttl expire earlier.
type RerankCache struct {
	lru *expirable.LRU[string, rerankEntry]
	now func() time.Time
}

// NewRerankCache creates a cache holding up to size entries.
func NewRerankCache(size int, maxTTL time.Duration) *RerankCache {
	if size <= 0 {
		size = DefaultRerankEntries
	}
	return &RerankCache{
		lru: expirable.NewLRU[string, rerankEntry](size, nil, maxTTL),
		now: time.Now,
	}
}

// Get returns a copy of the cached value.
func (c *RerankCache) Get(_ context.Context, key string) ([]domain.RankedMatch, bool, error) {
	entry, ok := c.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && !c.now().Before(entry.expiresAt) {
		c.lru.Remove(key)
		return nil, false, nil
	}
	out := make([]domain.RankedMatch, len(entry.value))
	copy(out, entry.value)
	return out, true, nil
}

// Put stores value under key for ttl.
func (c *RerankCache) Put(_ context.Context, key string, value []domain.RankedMatch, ttl time.Duration) error {
	entry := rerankEntry{value: make([]domain.RankedMatch, len(value))}
	copy(entry.value, value)
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}
	c.lru.Add(key, entry)
	return nil
}

// Len returns the number of cached entries.
func (c *RerankCache) Len() int {
	return c.lru.Len()
}

// DeliveryLog remembers webhook delivery ids for a fixed window.
type DeliveryLog struct {
	mu  sync.Mutex
	lru *expirable.LRU[string, struct{}]
}

// NewDeliveryLog creates a log holding up to size ids for window.
func NewDeliveryLog(size int, window time.Duration) *DeliveryLog {
	if size <= 0 {
		size = DefaultDeliveryEntries
	}
	return &DeliveryLog{lru: expirable.NewLRU[string, struct{}](size, nil, window)}
}

// Remember records id and reports whether it was seen within the window.
// Empty ids are never deduplicated.
func (d *DeliveryLog) Remember(id string) bool {
	if id == "" {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lru.Contains(id) {
		return true
	}
	d.lru.Add(id, struct{}{})
	return false
}
