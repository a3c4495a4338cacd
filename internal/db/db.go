package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

var db *sql.DB

var dbInitialized bool

// dbPathOverride, when set before the first GetDB call, replaces the default
// ~/.sidebar/sidebar.db location.
var dbPathOverride string

// SetDBPath overrides the database location. Must be called before GetDB.
func SetDBPath(path string) {
	dbPathOverride = path
}

// GetDB returns the database connection, initializing if needed
func GetDB() (*sql.DB, error) {
	if db != nil {
		return db, nil
	}

	dbPath, err := GetDBPath()
	if err != nil {
		return nil, err
	}

	// Ensure the parent directory exists
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	// Open database connection
	db, err = sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Run migrations on first connection (but avoid recursion)
	if !dbInitialized {
		dbInitialized = true
		if err := InitSchema(); err != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
	}

	return db, nil
}

// Close closes the database connection and resets the singleton so a later
// GetDB reopens (and re-migrates) from the current path.
func Close() error {
	if db == nil {
		return nil
	}
	err := db.Close()
	db = nil
	dbInitialized = false
	return err
}

// GetDBPath returns the path to the database file. SIDEBAR_DB_PATH wins over
// the configured path so the sb-dev shim can never touch the production
// database.
func GetDBPath() (string, error) {
	if p := os.Getenv("SIDEBAR_DB_PATH"); p != "" {
		return p, nil
	}
	if dbPathOverride != "" {
		return dbPathOverride, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".sidebar", "sidebar.db"), nil
}

// Exists reports whether the database file is already present. Used by the
// CLI to distinguish a fresh start from a load.
func Exists() (bool, error) {
	path, err := GetDBPath()
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
