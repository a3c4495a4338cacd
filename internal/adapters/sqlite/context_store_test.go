package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/example/sidebar/internal/adapters/sqlite"
	"github.com/example/sidebar/internal/models"
	"github.com/example/sidebar/internal/oerr"
	"github.com/example/sidebar/internal/ports/secondary"
)

func TestSaveThenLoadRoundTrip(t *testing.T) {
	testDB := setupTestDB(t)
	store := sqlite.NewContextStore(testDB)
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	confidence := 0.75
	original := &models.Context{
		ID:              "uuid-1",
		ShortID:         "SB-1",
		ForkedFrom:      "uuid-old",
		OriginalRootID:  "uuid-1",
		Status:          models.StatusTesting,
		Priority:        models.PriorityHigh,
		TaskDescription: "investigate flaky deploys",
		SuccessCriteria: "root cause identified",
		ChildrenIDs:     []string{"uuid-2", "uuid-3"},
		InheritedMemory: []models.Exchange{
			{Role: "user", Content: "what broke?", Timestamp: now},
		},
		LocalMemory: []models.Exchange{
			{Role: "assistant", Content: "checking the rollout logs", Timestamp: now},
			{Role: "user", Content: "focus on region b", Timestamp: now},
		},
		CrossRefs: map[string]*models.CrossRefMetadata{
			"uuid-9": {
				SourceID:               "uuid-1",
				TargetID:               "uuid-9",
				RefType:                models.RefContradicts,
				Strength:               models.StrengthStrong,
				Confidence:             0.9,
				Reason:                 "conflicting timeline",
				HumanValidated:         models.ValidationTrue,
				ConfidenceAtValidation: &confidence,
				ValidationHistory: []models.ValidationRecord{
					{ID: "v-1", State: models.ValidationTrue, Actor: "reviewer", ValidatedAt: now},
				},
				SuggestedSources: []models.SuggestedSource{
					{SourceID: "agent-a", SuggestedAt: now},
				},
				CreatedAt: now,
				UpdatedAt: now,
			},
		},
		CreatedAt:    now,
		LastActivity: now,
	}

	entry := makeEntry("audit-1", "uuid-1", models.EventContextCreated)
	err := store.Commit(ctx, secondary.CommitBatch{
		Contexts: []*models.Context{original},
		Entries:  []*models.AuditEntry{entry},
	})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	loaded, err := store.Load(ctx, "uuid-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if loaded.ShortID != "SB-1" || loaded.Status != models.StatusTesting || loaded.Priority != models.PriorityHigh {
		t.Errorf("scalar fields mismatch: %+v", loaded)
	}
	if loaded.ForkedFrom != "uuid-old" || loaded.OriginalRootID != "uuid-1" {
		t.Errorf("lineage fields mismatch: forked_from=%s original_root=%s", loaded.ForkedFrom, loaded.OriginalRootID)
	}
	if len(loaded.ChildrenIDs) != 2 || loaded.ChildrenIDs[0] != "uuid-2" {
		t.Errorf("children mismatch: %v", loaded.ChildrenIDs)
	}
	if len(loaded.InheritedMemory) != 1 || len(loaded.LocalMemory) != 2 {
		t.Errorf("memory mismatch: inherited=%d local=%d", len(loaded.InheritedMemory), len(loaded.LocalMemory))
	}
	if loaded.LocalMemory[1].Content != "focus on region b" {
		t.Errorf("local memory content mismatch: %q", loaded.LocalMemory[1].Content)
	}

	ref := loaded.CrossRefs["uuid-9"]
	if ref == nil {
		t.Fatal("cross ref missing after round trip")
	}
	if ref.RefType != models.RefContradicts || ref.Strength != models.StrengthStrong {
		t.Errorf("cross ref enums mismatch: %+v", ref)
	}
	if ref.ConfidenceAtValidation == nil || *ref.ConfidenceAtValidation != 0.75 {
		t.Errorf("confidence_at_validation mismatch: %v", ref.ConfidenceAtValidation)
	}
	if len(ref.ValidationHistory) != 1 || ref.ValidationHistory[0].Actor != "reviewer" {
		t.Errorf("validation history mismatch: %+v", ref.ValidationHistory)
	}
}

func TestUpsertUpdatesExistingRow(t *testing.T) {
	testDB := setupTestDB(t)
	store := sqlite.NewContextStore(testDB)
	ctx := context.Background()

	c := makeContext("uuid-1", "SB-1", "")
	if err := store.Commit(ctx, secondary.CommitBatch{
		Contexts: []*models.Context{c},
		Entries:  []*models.AuditEntry{makeEntry("audit-1", "uuid-1", models.EventContextCreated)},
	}); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	c.Status = models.StatusPaused
	c.LocalMemory = append(c.LocalMemory, models.Exchange{Role: "user", Content: "pausing", Timestamp: c.CreatedAt})
	if err := store.Commit(ctx, secondary.CommitBatch{
		Contexts: []*models.Context{c},
		Entries:  []*models.AuditEntry{makeEntry("audit-2", "uuid-1", models.EventStatusChanged)},
	}); err != nil {
		t.Fatalf("Commit update: %v", err)
	}

	loaded, err := store.Load(ctx, "uuid-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Status != models.StatusPaused {
		t.Errorf("status = %s, want paused", loaded.Status)
	}
	if len(loaded.LocalMemory) != 1 {
		t.Errorf("local memory = %d entries, want 1", len(loaded.LocalMemory))
	}

	count, err := store.CountContexts(ctx)
	if err != nil {
		t.Fatalf("CountContexts: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1 (upsert must not duplicate)", count)
	}
}

func TestLoadMissingReturnsNotFound(t *testing.T) {
	testDB := setupTestDB(t)
	store := sqlite.NewContextStore(testDB)

	_, err := store.Load(context.Background(), "uuid-missing")
	if !oerr.IsNotFound(err) {
		t.Errorf("Load(missing) error = %v, want NotFoundError", err)
	}
}

func TestLoadAllOrdersRootsBeforeChildren(t *testing.T) {
	testDB := setupTestDB(t)
	store := sqlite.NewContextStore(testDB)
	ctx := context.Background()

	root := makeContext("uuid-root", "SB-1", "")
	root.ChildrenIDs = []string{"uuid-child"}
	child := makeContext("uuid-child", "SB-2", "uuid-root")
	child.ChildrenIDs = []string{"uuid-grandchild"}
	child.CreatedAt = child.CreatedAt.Add(time.Minute)
	grandchild := makeContext("uuid-grandchild", "SB-3", "uuid-child")
	grandchild.CreatedAt = grandchild.CreatedAt.Add(2 * time.Minute)

	// Insert deliberately out of depth order.
	batch := secondary.CommitBatch{
		Contexts: []*models.Context{grandchild, root, child},
		Entries:  []*models.AuditEntry{makeEntry("audit-1", "uuid-root", models.EventContextCreated)},
	}
	if err := store.Commit(ctx, batch); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	all, err := store.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("LoadAll returned %d contexts, want 3", len(all))
	}
	order := []string{all[0].ShortID, all[1].ShortID, all[2].ShortID}
	want := []string{"SB-1", "SB-2", "SB-3"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("depth order = %v, want %v", order, want)
		}
	}
}

func TestCommitIsAtomic(t *testing.T) {
	testDB := setupTestDB(t)
	store := sqlite.NewContextStore(testDB)
	ctx := context.Background()

	good := makeContext("uuid-1", "SB-1", "")
	if err := store.Commit(ctx, secondary.CommitBatch{
		Contexts: []*models.Context{good},
		Entries:  []*models.AuditEntry{makeEntry("audit-1", "uuid-1", models.EventContextCreated)},
	}); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	// Second batch: a valid snapshot update plus an audit entry whose id
	// collides with an existing one. The whole batch must roll back.
	updated := good.Clone()
	updated.Status = models.StatusPaused
	err := store.Commit(ctx, secondary.CommitBatch{
		Contexts: []*models.Context{updated},
		Entries:  []*models.AuditEntry{makeEntry("audit-1", "uuid-1", models.EventStatusChanged)},
	})
	if err == nil {
		t.Fatal("expected duplicate audit id to fail the commit")
	}

	loaded, err := store.Load(ctx, "uuid-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Status != models.StatusActive {
		t.Errorf("status = %s, want active (failed batch must not persist)", loaded.Status)
	}
}
