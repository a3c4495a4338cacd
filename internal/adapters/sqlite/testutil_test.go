// Package sqlite_test contains integration tests for SQLite repositories.
//
// The database schema is loaded in exactly one place: setupTestDB uses
// db.GetSchemaSQL() so tests always run against the authoritative schema.
// Do not hardcode CREATE TABLE statements in test files.
package sqlite_test

import (
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/example/sidebar/internal/db"
	"github.com/example/sidebar/internal/models"
)

// setupTestDB creates an in-memory database with the authoritative schema.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	testDB, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}

	if _, err := testDB.Exec(db.GetSchemaSQL()); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	t.Cleanup(func() {
		testDB.Close()
	})

	return testDB
}

// makeContext builds a minimal in-memory context for seeding.
func makeContext(id, shortID, parentID string) *models.Context {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &models.Context{
		ID:              id,
		ShortID:         shortID,
		ParentID:        parentID,
		Status:          models.StatusActive,
		Priority:        models.PriorityNormal,
		TaskDescription: "test task",
		CrossRefs:       make(map[string]*models.CrossRefMetadata),
		CreatedAt:       now,
		LastActivity:    now,
	}
}

// makeEntry builds an audit entry for seeding.
func makeEntry(id, contextID string, eventType models.EventType) *models.AuditEntry {
	return &models.AuditEntry{
		ID:        id,
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		EventType: eventType,
		ContextID: contextID,
		Actor:     "tester",
		Payload:   map[string]any{"note": "seeded"},
	}
}
