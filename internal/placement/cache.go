// Package placement holds the gateway-local memo of which models each
// worker currently has resident, per spec's PlacementCache component.
package placement

import (
	"sync"
	"time"

	"github.com/ak3tsm7/inference-gateway/internal/models"
)

// Cache maps WorkerId -> set<"name:version"> plus a per-(worker, model)
// verifiedAt timestamp. All mutations are taken under a single mutex so
// that readers never observe a torn per-worker set: contains/fresh
// either sees a worker's complete pre-update state or its complete
// post-update state, never a partial one.
type Cache struct {
	mu        sync.RWMutex
	resident  map[models.WorkerID]map[string]time.Time
	verifyTTL time.Duration
	now       func() time.Time
}

// New builds a Cache with the given freshness window (T_verify).
func New(verifyTTL time.Duration) *Cache {
	return &Cache{
		resident:  make(map[models.WorkerID]map[string]time.Time),
		verifyTTL: verifyTTL,
		now:       time.Now,
	}
}

// Contains reports whether worker w has a fresh PlacementCache entry for
// model key m (present and verified within T_verify).
func (c *Cache) Contains(w models.WorkerID, m string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	set, ok := c.resident[w]
	if !ok {
		return false
	}
	verifiedAt, ok := set[m]
	if !ok {
		return false
	}
	return c.now().Sub(verifiedAt) < c.verifyTTL
}

// Record adds m to w's resident set and stamps it verified now.
func (c *Cache) Record(w models.WorkerID, m string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.resident[w]
	if !ok {
		set = make(map[string]time.Time)
		c.resident[w] = set
	}
	set[m] = c.now()
}

// Remove drops m from w's resident set.
func (c *Cache) Remove(w models.WorkerID, m string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if set, ok := c.resident[w]; ok {
		delete(set, m)
	}
}

// ReplaceAll performs the wholesale replacement the Reconciler uses after
// sweeping every worker's truth: every (w, m) pair in mapping is stamped
// verified now, and any worker/model absent from mapping is dropped.
func (c *Cache) ReplaceAll(mapping map[models.WorkerID][]string) {
	now := c.now()
	next := make(map[models.WorkerID]map[string]time.Time, len(mapping))
	for w, keys := range mapping {
		set := make(map[string]time.Time, len(keys))
		for _, m := range keys {
			set[m] = now
		}
		next[w] = set
	}
	c.mu.Lock()
	c.resident = next
	c.mu.Unlock()
}

// ResidentSet returns a defensive copy of worker w's currently cached
// resident set, regardless of freshness. Routing decisions use Contains,
// not this.
func (c *Cache) ResidentSet(w models.WorkerID) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	set, ok := c.resident[w]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for m := range set {
		out = append(out, m)
	}
	return out
}
