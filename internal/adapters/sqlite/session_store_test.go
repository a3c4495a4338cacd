package sqlite_test

import (
	"context"
	"testing"

	"github.com/example/sidebar/internal/adapters/sqlite"
	"github.com/example/sidebar/internal/models"
	"github.com/example/sidebar/internal/oerr"
	"github.com/example/sidebar/internal/ports/secondary"
)

func TestSessionSetGetDelete(t *testing.T) {
	testDB := setupTestDB(t)
	store := sqlite.NewSessionStore(testDB)
	ctx := context.Background()

	if _, err := store.Get(ctx, "focus"); !oerr.IsNotFound(err) {
		t.Errorf("Get(missing) error = %v, want NotFoundError", err)
	}

	if err := store.Set(ctx, "focus", "SB-1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	value, err := store.Get(ctx, "focus")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if value != "SB-1" {
		t.Errorf("value = %s, want SB-1", value)
	}

	// Overwrite in place.
	if err := store.Set(ctx, "focus", "SB-2"); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	if value, _ = store.Get(ctx, "focus"); value != "SB-2" {
		t.Errorf("value after overwrite = %s, want SB-2", value)
	}

	if err := store.Delete(ctx, "focus"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, "focus"); !oerr.IsNotFound(err) {
		t.Errorf("Get after delete error = %v, want NotFoundError", err)
	}

	// Deleting a missing key is not an error.
	if err := store.Delete(ctx, "focus"); err != nil {
		t.Errorf("Delete(missing): %v", err)
	}
}

func TestConversationMapBindAndResolve(t *testing.T) {
	testDB := setupTestDB(t)
	contexts := sqlite.NewContextStore(testDB)
	convs := sqlite.NewConversationMap(testDB)
	ctx := context.Background()

	root := makeContext("uuid-root", "SB-1", "")
	if err := contexts.Commit(ctx, secondary.CommitBatch{
		Contexts: []*models.Context{root},
		Entries:  []*models.AuditEntry{makeEntry("audit-1", "uuid-root", models.EventContextCreated)},
	}); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if err := convs.Bind(ctx, "uuid-root", "conv-42"); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	rootID, err := convs.RootFor(ctx, "conv-42")
	if err != nil {
		t.Fatalf("RootFor: %v", err)
	}
	if rootID != "uuid-root" {
		t.Errorf("RootFor = %s, want uuid-root", rootID)
	}

	convID, err := convs.ConversationFor(ctx, "uuid-root")
	if err != nil {
		t.Fatalf("ConversationFor: %v", err)
	}
	if convID != "conv-42" {
		t.Errorf("ConversationFor = %s, want conv-42", convID)
	}

	if _, err := convs.RootFor(ctx, "conv-unknown"); !oerr.IsNotFound(err) {
		t.Errorf("RootFor(unknown) error = %v, want NotFoundError", err)
	}

	// A second binding for the same conversation must fail (unique).
	if err := convs.Bind(ctx, "uuid-root", "conv-42"); err == nil {
		t.Error("expected duplicate bind to fail")
	}
}
