package gate

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// decisionCache is a TTL cache of gate decisions keyed by workspace id.
// It is last-write-wins under concurrent access; that is acceptable
// because a stale entry is always invalidated on mutation and can only
// delay (never skip) a BLOCKED decision by at most one TTL window. The
// clock is injectable so tests can expire entries deterministically.
type decisionCache struct {
	mu      sync.Mutex
	entries map[uuid.UUID]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

type cacheEntry struct {
	decision Decision
	expiry   time.Time
}

func newDecisionCache(ttl time.Duration, now func() time.Time) *decisionCache {
	if now == nil {
		now = time.Now
	}
	return &decisionCache{
		entries: make(map[uuid.UUID]cacheEntry),
		ttl:     ttl,
		now:     now,
	}
}

func (c *decisionCache) get(workspaceID uuid.UUID) (Decision, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[workspaceID]
	if !ok {
		return Decision{}, false
	}
	if c.now().After(entry.expiry) {
		delete(c.entries, workspaceID)
		return Decision{}, false
	}

	return entry.decision, true
}

func (c *decisionCache) set(workspaceID uuid.UUID, d Decision) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[workspaceID] = cacheEntry{decision: d, expiry: c.now().Add(c.ttl)}
}

func (c *decisionCache) invalidate(workspaceID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, workspaceID)
}
