package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/example/sidebar/internal/adapters/sqlite"
	"github.com/example/sidebar/internal/models"
	"github.com/example/sidebar/internal/ports/secondary"
)

// seedEntries commits a throwaway context alongside entries so the audit
// rows exist under the same invariant production writes obey.
func seedEntries(t *testing.T, store *sqlite.ContextStore, entries ...*models.AuditEntry) {
	t.Helper()
	seen := map[string]bool{}
	var contexts []*models.Context
	for _, e := range entries {
		if !seen[e.ContextID] {
			seen[e.ContextID] = true
			contexts = append(contexts, makeContext(e.ContextID, "SB-"+e.ContextID, ""))
		}
	}
	if err := store.Commit(context.Background(), secondary.CommitBatch{Contexts: contexts, Entries: entries}); err != nil {
		t.Fatalf("seed commit: %v", err)
	}
}

func TestQueryByContextAndEventType(t *testing.T) {
	testDB := setupTestDB(t)
	store := sqlite.NewContextStore(testDB)
	log := sqlite.NewAuditLog(testDB)
	ctx := context.Background()

	seedEntries(t, store,
		makeEntry("audit-1", "1", models.EventContextCreated),
		makeEntry("audit-2", "1", models.EventStatusChanged),
		makeEntry("audit-3", "2", models.EventContextCreated),
	)

	byContext, err := log.Query(ctx, secondary.AuditFilters{ContextID: "1"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(byContext) != 2 {
		t.Errorf("by context = %d entries, want 2", len(byContext))
	}

	byType, err := log.Query(ctx, secondary.AuditFilters{EventType: models.EventContextCreated})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(byType) != 2 {
		t.Errorf("by type = %d entries, want 2", len(byType))
	}

	both, err := log.Query(ctx, secondary.AuditFilters{ContextID: "1", EventType: models.EventStatusChanged})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(both) != 1 || both[0].ID != "audit-2" {
		t.Errorf("combined filter = %+v, want audit-2 only", both)
	}
}

func TestQueryByTimeRangeAndPayload(t *testing.T) {
	testDB := setupTestDB(t)
	store := sqlite.NewContextStore(testDB)
	log := sqlite.NewAuditLog(testDB)
	ctx := context.Background()

	early := makeEntry("audit-1", "1", models.EventContextCreated)
	early.Timestamp = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	late := makeEntry("audit-2", "1", models.EventStatusChanged)
	late.Timestamp = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	late.Payload = map[string]any{"to": "paused"}
	seedEntries(t, store, early, late)

	since, err := log.Query(ctx, secondary.AuditFilters{Since: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(since) != 1 || since[0].ID != "audit-2" {
		t.Errorf("since filter = %+v, want audit-2 only", since)
	}

	until, err := log.Query(ctx, secondary.AuditFilters{Until: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(until) != 1 || until[0].ID != "audit-1" {
		t.Errorf("until filter = %+v, want audit-1 only", until)
	}

	payload, err := log.Query(ctx, secondary.AuditFilters{PayloadContains: "paused"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(payload) != 1 || payload[0].ID != "audit-2" {
		t.Errorf("payload filter = %+v, want audit-2 only", payload)
	}
}

func TestEntriesForContextOrderedBySeq(t *testing.T) {
	testDB := setupTestDB(t)
	store := sqlite.NewContextStore(testDB)
	log := sqlite.NewAuditLog(testDB)

	seedEntries(t, store,
		makeEntry("audit-1", "1", models.EventContextCreated),
		makeEntry("audit-2", "1", models.EventStatusChanged),
		makeEntry("audit-3", "1", models.EventMemoryAppended),
	)

	entries, err := log.EntriesForContext(context.Background(), "1")
	if err != nil {
		t.Fatalf("EntriesForContext: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].Seq <= entries[i-1].Seq {
			t.Errorf("entries out of seq order: %d then %d", entries[i-1].Seq, entries[i].Seq)
		}
	}
	if entries[0].Payload["note"] != "seeded" {
		t.Errorf("payload lost in round trip: %+v", entries[0].Payload)
	}
}

func TestCountByContext(t *testing.T) {
	testDB := setupTestDB(t)
	store := sqlite.NewContextStore(testDB)
	log := sqlite.NewAuditLog(testDB)

	seedEntries(t, store,
		makeEntry("audit-1", "1", models.EventContextCreated),
		makeEntry("audit-2", "1", models.EventStatusChanged),
		makeEntry("audit-3", "2", models.EventContextCreated),
	)

	counts, err := log.CountByContext(context.Background())
	if err != nil {
		t.Fatalf("CountByContext: %v", err)
	}
	if counts["1"] != 2 || counts["2"] != 1 {
		t.Errorf("counts = %v, want 1:2 2:1", counts)
	}
}
