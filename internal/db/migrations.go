package db

import (
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version int
	Name    string
	Up      func(*sql.DB) error
}

// migrations is the list of all migrations in order. Migrations transform
// data forward; they never drop it.
var migrations = []Migration{
	{
		Version: 1,
		Name:    "initial_context_and_audit_tables",
		Up:      migrationV1,
	},
	{
		Version: 2,
		Name:    "add_root_conversations_table",
		Up:      migrationV2,
	},
	{
		Version: 3,
		Name:    "add_session_state_table",
		Up:      migrationV3,
	},
	{
		Version: 4,
		Name:    "add_fork_and_reparent_lineage_columns",
		Up:      migrationV4,
	},
}

// latestSchemaVersion returns the version a fresh install is stamped with.
func latestSchemaVersion() int {
	return migrations[len(migrations)-1].Version
}

// RunMigrations executes all pending migrations. The current version lives
// in PRAGMA user_version, monotonically increasing.
func RunMigrations() error {
	db, err := GetDB()
	if err != nil {
		return fmt.Errorf("failed to get database: %w", err)
	}

	var currentVersion int
	if err := db.QueryRow("PRAGMA user_version").Scan(&currentVersion); err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		fmt.Printf("Running migration %d: %s\n", migration.Version, migration.Name)

		if err := migration.Up(db); err != nil {
			return fmt.Errorf("migration %d failed: %w", migration.Version, err)
		}

		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		fmt.Printf("✓ Migration %d completed\n", migration.Version)
	}

	return nil
}

// migrationV1 creates the context snapshot table and the audit log.
func migrationV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS contexts (
			id TEXT PRIMARY KEY,
			short_id TEXT NOT NULL UNIQUE,
			parent_id TEXT REFERENCES contexts(id),
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
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create contexts table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS audit_log (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			timestamp DATETIME NOT NULL,
			event_type TEXT NOT NULL,
			context_id TEXT NOT NULL,
			actor TEXT,
			payload TEXT NOT NULL DEFAULT '{}'
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create audit_log table: %w", err)
	}

	for _, stmt := range []string{
		"CREATE INDEX IF NOT EXISTS idx_contexts_parent ON contexts(parent_id)",
		"CREATE INDEX IF NOT EXISTS idx_contexts_status ON contexts(status)",
		"CREATE INDEX IF NOT EXISTS idx_audit_context ON audit_log(context_id)",
		"CREATE INDEX IF NOT EXISTS idx_audit_event ON audit_log(event_type)",
		"CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_log(timestamp)",
	} {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

// migrationV2 adds the root context to conversation mapping.
func migrationV2(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS root_conversations (
			root_id TEXT PRIMARY KEY REFERENCES contexts(id),
			conversation_id TEXT NOT NULL UNIQUE,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create root_conversations table: %w", err)
	}
	return nil
}

// migrationV3 adds the session key/value table for focus and layout state.
func migrationV3(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS session_state (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create session_state table: %w", err)
	}
	return nil
}

// migrationV4 adds lineage columns for fork and reparent history.
func migrationV4(db *sql.DB) error {
	for _, stmt := range []string{
		"ALTER TABLE contexts ADD COLUMN forked_from TEXT",
		"ALTER TABLE contexts ADD COLUMN original_root_id TEXT",
	} {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to add lineage column: %w", err)
		}
	}
	return nil
}
