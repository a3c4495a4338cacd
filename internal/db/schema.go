package db

import "fmt"

// SchemaSQL is the complete schema for fresh sidebar installs. It reflects
// the current state after all migrations and is the single source of truth:
// repository tests load it via GetSchemaSQL() instead of hardcoding CREATE
// TABLE statements, so drift between test and production schemas fails
// immediately with "no such column".
//
// Keep this in sync with migrations.go when adding columns or tables.
const SchemaSQL = `
-- Context snapshots: one row per context, loaded and saved whole.
-- Structured columns carry the indexed/queried fields; nested collections
-- (memory, cross-refs, children) live in JSON blobs.
CREATE TABLE IF NOT EXISTS contexts (
	id TEXT PRIMARY KEY,
	short_id TEXT NOT NULL UNIQUE,
	parent_id TEXT REFERENCES contexts(id),
	forked_from TEXT,
	original_root_id TEXT,
	status TEXT NOT NULL CHECK(status IN ('active', 'testing', 'paused', 'waiting', 'reviewing', 'spawning_child', 'consolidating', 'merged', 'archived', 'failed')) DEFAULT 'active',
	priority TEXT NOT NULL CHECK(priority IN ('low', 'normal', 'high', 'urgent')) DEFAULT 'normal',
	task_description TEXT,
	success_criteria TEXT,
	failure_reason TEXT,
	children_ids TEXT NOT NULL DEFAULT '[]',
	inherited_memory TEXT NOT NULL DEFAULT '[]',
	local_memory TEXT NOT NULL DEFAULT '[]',
	cross_refs TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL,
	last_activity DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_contexts_parent ON contexts(parent_id);
CREATE INDEX IF NOT EXISTS idx_contexts_status ON contexts(status);

-- Append-only audit log: the ground truth. Rows are never updated or
-- deleted; seq orders entries globally.
CREATE TABLE IF NOT EXISTS audit_log (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	timestamp DATETIME NOT NULL,
	event_type TEXT NOT NULL,
	context_id TEXT NOT NULL,
	actor TEXT,
	payload TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_audit_context ON audit_log(context_id);
CREATE INDEX IF NOT EXISTS idx_audit_event ON audit_log(event_type);
CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_log(timestamp);

-- Root context <-> external conversation mapping.
CREATE TABLE IF NOT EXISTS root_conversations (
	root_id TEXT PRIMARY KEY REFERENCES contexts(id),
	conversation_id TEXT NOT NULL UNIQUE,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Session key/value state: focus, graph layout positions, advisory grabs.
CREATE TABLE IF NOT EXISTS session_state (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

// InitSchema creates the database schema
func InitSchema() error {
	db, err := GetDB()
	if err != nil {
		return err
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if version == 0 {
		// Check whether this is genuinely fresh or a pre-versioning install.
		var tableCount int
		err = db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='contexts'").Scan(&tableCount)
		if err != nil {
			return err
		}
		if tableCount == 0 {
			// Completely fresh install - create the modern schema directly
			// and stamp it at the latest version so migrations never run.
			if _, err := db.Exec(SchemaSQL); err != nil {
				return err
			}
			_, err = db.Exec(fmt.Sprintf("PRAGMA user_version = %d", latestSchemaVersion()))
			return err
		}
	}

	// Existing install - run any pending migrations.
	return RunMigrations()
}

// GetSchemaSQL returns the authoritative schema SQL for use by tests.
// Tests should use this instead of hardcoding their own schema to prevent drift.
func GetSchemaSQL() string {
	return SchemaSQL
}
