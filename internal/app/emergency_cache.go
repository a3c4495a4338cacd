package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/example/sidebar/internal/ports/secondary"
)

// queuedWrite is one failed persistence intent held for retry. The batch is
// the exact CommitBatch that failed; apply updates in-memory state once the
// batch finally lands.
type queuedWrite struct {
	ContextID string
	ShortID   string
	Operation string
	QueuedAt  time.Time
	Attempts  int
	Batch     secondary.CommitBatch
	apply     func()

	// BaseActivity is the context's LastActivity at enqueue time. An intent
	// whose context has advanced past it was superseded by a direct write
	// and must not be replayed.
	BaseActivity time.Time
}

// EmergencyCache holds write intents that could not be persisted. Entries
// are keyed by (context id, operation): a newer intent for the same pair
// replaces the older one, since it already supersedes it.
type EmergencyCache struct {
	mu    sync.Mutex
	byKey map[string]*queuedWrite
	order []string
}

// NewEmergencyCache returns an empty cache.
func NewEmergencyCache() *EmergencyCache {
	return &EmergencyCache{byKey: make(map[string]*queuedWrite)}
}

func cacheKey(contextID, operation string) string {
	return contextID + "|" + operation
}

// Enqueue records a failed write intent. A prior intent for the same
// (context, operation) pair is replaced in place, keeping its queue slot.
func (c *EmergencyCache) Enqueue(w *queuedWrite) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(w.ContextID, w.Operation)
	if _, exists := c.byKey[key]; !exists {
		c.order = append(c.order, key)
	}
	w.QueuedAt = time.Now()
	c.byKey[key] = w
}

// List returns the queued writes in enqueue order.
func (c *EmergencyCache) List() []*queuedWrite {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*queuedWrite, 0, len(c.order))
	for _, key := range c.order {
		out = append(out, c.byKey[key])
	}
	return out
}

// Len returns the number of queued writes.
func (c *EmergencyCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byKey)
}

// Flush retries every queued write against the store. Each batch commits
// atomically; a batch that succeeds is removed and its apply callback runs,
// a batch that fails stays queued with its attempt count bumped. An intent
// the stale predicate rejects is dropped without touching the store: its
// context moved on while the intent sat in the queue, and replaying it
// would silently roll that newer state back. Conflicts are reported to the
// operator, never resolved automatically.
func (c *EmergencyCache) Flush(ctx context.Context, store secondary.ContextStore, stale func(*queuedWrite) bool) (retried, succeeded int, conflicts, failures []string) {
	c.mu.Lock()
	pending := make([]*queuedWrite, 0, len(c.order))
	keys := make([]string, len(c.order))
	copy(keys, c.order)
	for _, key := range keys {
		pending = append(pending, c.byKey[key])
	}
	c.mu.Unlock()

	for i, w := range pending {
		if stale != nil && stale(w) {
			c.mu.Lock()
			delete(c.byKey, keys[i])
			c.removeKeyLocked(keys[i])
			c.mu.Unlock()
			conflicts = append(conflicts, fmt.Sprintf(
				"%s: queued %s superseded by a newer write; dropped without replay", w.ShortID, w.Operation))
			continue
		}

		retried++
		if err := store.Commit(ctx, w.Batch); err != nil {
			c.mu.Lock()
			w.Attempts++
			c.mu.Unlock()
			failures = append(failures, err.Error())
			continue
		}

		c.mu.Lock()
		delete(c.byKey, keys[i])
		c.removeKeyLocked(keys[i])
		c.mu.Unlock()

		if w.apply != nil {
			w.apply()
		}
		succeeded++
	}
	return retried, succeeded, conflicts, failures
}

func (c *EmergencyCache) removeKeyLocked(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}
