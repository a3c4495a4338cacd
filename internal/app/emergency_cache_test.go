package app

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/example/sidebar/internal/models"
	"github.com/example/sidebar/internal/ports/secondary"
)

func queued(contextID, op, payload string) *queuedWrite {
	return &queuedWrite{
		ContextID: contextID,
		Operation: op,
		Batch: secondary.CommitBatch{
			Contexts: []*models.Context{{ID: contextID, ShortID: "SB-1", TaskDescription: payload}},
			Entries:  []*models.AuditEntry{{ID: payload, ContextID: contextID, EventType: models.EventMemoryAppended}},
		},
	}
}

func TestEnqueueNewerIntentKeepsQueueSlot(t *testing.T) {
	cache := NewEmergencyCache()
	cache.Enqueue(queued("ctx-a", "append", "first"))
	cache.Enqueue(queued("ctx-b", "merge", "other"))
	cache.Enqueue(queued("ctx-a", "append", "second"))

	if cache.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", cache.Len())
	}
	writes := cache.List()
	if writes[0].ContextID != "ctx-a" || writes[1].ContextID != "ctx-b" {
		t.Errorf("replacement should keep the original queue slot, got %s then %s",
			writes[0].ContextID, writes[1].ContextID)
	}
	if got := writes[0].Batch.Contexts[0].TaskDescription; got != "second" {
		t.Errorf("queued batch = %q, want the newer intent", got)
	}
}

func TestEnqueueDistinctOperationsQueueSeparately(t *testing.T) {
	cache := NewEmergencyCache()
	cache.Enqueue(queued("ctx-a", "append", "one"))
	cache.Enqueue(queued("ctx-a", "merge", "two"))

	if cache.Len() != 2 {
		t.Errorf("Len() = %d, want 2: same context, different operations", cache.Len())
	}
}

func TestFlushRemovesSucceededAndBumpsFailed(t *testing.T) {
	store := newMockStore()
	cache := NewEmergencyCache()
	cache.Enqueue(queued("ctx-a", "append", "one"))
	cache.Enqueue(queued("ctx-b", "append", "two"))

	store.failErr = errors.New("disk full")
	retried, succeeded, _, failures := cache.Flush(context.Background(), store, nil)
	if retried != 2 || succeeded != 0 || len(failures) != 2 {
		t.Fatalf("flush against a dead store: retried=%d succeeded=%d failures=%v", retried, succeeded, failures)
	}
	for _, w := range cache.List() {
		if w.Attempts != 1 {
			t.Errorf("attempts = %d, want 1 after one failed flush", w.Attempts)
		}
	}

	store.failErr = nil
	retried, succeeded, _, failures = cache.Flush(context.Background(), store, nil)
	if retried != 2 || succeeded != 2 || len(failures) != 0 {
		t.Fatalf("flush after recovery: retried=%d succeeded=%d failures=%v", retried, succeeded, failures)
	}
	if cache.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after a clean flush", cache.Len())
	}
	if len(store.entries) != 2 {
		t.Errorf("store has %d entries, want 2", len(store.entries))
	}
}

func TestFlushRunsApplyOnlyOnSuccess(t *testing.T) {
	store := newMockStore()
	cache := NewEmergencyCache()

	applied := 0
	w := queued("ctx-a", "append", "one")
	w.apply = func() { applied++ }
	cache.Enqueue(w)

	store.failErr = errors.New("disk full")
	cache.Flush(context.Background(), store, nil)
	if applied != 0 {
		t.Fatal("apply ran before the batch landed")
	}

	store.failErr = nil
	cache.Flush(context.Background(), store, nil)
	if applied != 1 {
		t.Errorf("apply ran %d times, want once", applied)
	}
}

func TestFlushDropsStaleIntentsWithoutCommitting(t *testing.T) {
	store := newMockStore()
	cache := NewEmergencyCache()

	applied := false
	stale := queued("ctx-a", "merge", "old")
	stale.ShortID = "SB-1"
	stale.apply = func() { applied = true }
	cache.Enqueue(stale)
	cache.Enqueue(queued("ctx-b", "append", "live"))

	retried, succeeded, conflicts, failures := cache.Flush(context.Background(), store,
		func(w *queuedWrite) bool { return w.ContextID == "ctx-a" })
	if retried != 1 || succeeded != 1 || len(failures) != 0 {
		t.Fatalf("flush: retried=%d succeeded=%d failures=%v", retried, succeeded, failures)
	}
	if len(conflicts) != 1 || !strings.Contains(conflicts[0], "SB-1") {
		t.Fatalf("conflicts = %v, want the stale intent named", conflicts)
	}
	if applied {
		t.Error("stale intent must not run its apply callback")
	}
	if _, ok := store.snapshots["ctx-a"]; ok {
		t.Error("stale intent must not reach the store")
	}
	if cache.Len() != 0 {
		t.Errorf("Len() = %d, want 0: stale intents leave the queue", cache.Len())
	}
}
