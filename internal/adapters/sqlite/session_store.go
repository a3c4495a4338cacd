package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/example/sidebar/internal/oerr"
	"github.com/example/sidebar/internal/ports/secondary"
)

// SessionStore implements secondary.SessionStore with SQLite.
type SessionStore struct {
	db *sql.DB
}

// NewSessionStore creates a new SQLite session store.
func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{db: db}
}

// Get retrieves a session value by key.
func (s *SessionStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM session_state WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", &oerr.NotFoundError{Kind: "session key", ID: key}
	}
	if err != nil {
		return "", fmt.Errorf("failed to get session key %s: %w", key, err)
	}
	return value, nil
}

// Set stores a session value.
func (s *SessionStore) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, value)
	if err != nil {
		return fmt.Errorf("failed to set session key %s: %w", key, err)
	}
	return nil
}

// Delete removes a session value. Missing keys are not an error.
func (s *SessionStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM session_state WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to delete session key %s: %w", key, err)
	}
	return nil
}

// ConversationMap implements secondary.ConversationMap with SQLite.
type ConversationMap struct {
	db *sql.DB
}

// NewConversationMap creates a new SQLite conversation map.
func NewConversationMap(db *sql.DB) *ConversationMap {
	return &ConversationMap{db: db}
}

// Bind records that rootID anchors conversationID.
func (m *ConversationMap) Bind(ctx context.Context, rootID, conversationID string) error {
	_, err := m.db.ExecContext(ctx,
		"INSERT INTO root_conversations (root_id, conversation_id) VALUES (?, ?)",
		rootID, conversationID)
	if err != nil {
		return fmt.Errorf("failed to bind conversation %s to %s: %w", conversationID, rootID, err)
	}
	return nil
}

// RootFor returns the root context anchoring a conversation.
func (m *ConversationMap) RootFor(ctx context.Context, conversationID string) (string, error) {
	var rootID string
	err := m.db.QueryRowContext(ctx,
		"SELECT root_id FROM root_conversations WHERE conversation_id = ?", conversationID).Scan(&rootID)
	if err == sql.ErrNoRows {
		return "", &oerr.NotFoundError{Kind: "conversation", ID: conversationID}
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve conversation %s: %w", conversationID, err)
	}
	return rootID, nil
}

// ConversationFor returns the conversation anchored by a root context.
func (m *ConversationMap) ConversationFor(ctx context.Context, rootID string) (string, error) {
	var conversationID string
	err := m.db.QueryRowContext(ctx,
		"SELECT conversation_id FROM root_conversations WHERE root_id = ?", rootID).Scan(&conversationID)
	if err == sql.ErrNoRows {
		return "", &oerr.NotFoundError{Kind: "root binding", ID: rootID}
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve root %s: %w", rootID, err)
	}
	return conversationID, nil
}

// Ensure implementations satisfy the interfaces
var (
	_ secondary.SessionStore    = (*SessionStore)(nil)
	_ secondary.ConversationMap = (*ConversationMap)(nil)
)
