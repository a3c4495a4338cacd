// Package sqlite contains SQLite implementations of repository interfaces.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/sidebar/internal/models"
	"github.com/example/sidebar/internal/oerr"
	"github.com/example/sidebar/internal/ports/secondary"
)

// ContextStore implements secondary.ContextStore with SQLite.
type ContextStore struct {
	db *sql.DB
}

// NewContextStore creates a new SQLite context store.
func NewContextStore(db *sql.DB) *ContextStore {
	return &ContextStore{db: db}
}

const contextColumns = "id, short_id, parent_id, forked_from, original_root_id, status, priority, task_description, success_criteria, failure_reason, children_ids, inherited_memory, local_memory, cross_refs, created_at, last_activity"

// Commit writes every snapshot and audit entry in the batch as one
// transaction. A snapshot never lands without its log entry.
func (s *ContextStore) Commit(ctx context.Context, batch secondary.CommitBatch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin commit: %w", err)
	}
	defer tx.Rollback()

	for _, c := range batch.Contexts {
		if err := upsertContext(ctx, tx, c); err != nil {
			return err
		}
	}
	for _, e := range batch.Entries {
		if err := appendEntry(ctx, tx, e); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

func upsertContext(ctx context.Context, tx *sql.Tx, c *models.Context) error {
	children, err := marshalList(c.ChildrenIDs)
	if err != nil {
		return fmt.Errorf("failed to encode children for %s: %w", c.ShortID, err)
	}
	inherited, err := marshalList(c.InheritedMemory)
	if err != nil {
		return fmt.Errorf("failed to encode inherited memory for %s: %w", c.ShortID, err)
	}
	local, err := marshalList(c.LocalMemory)
	if err != nil {
		return fmt.Errorf("failed to encode local memory for %s: %w", c.ShortID, err)
	}
	refs, err := marshalMap(c.CrossRefs)
	if err != nil {
		return fmt.Errorf("failed to encode cross refs for %s: %w", c.ShortID, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO contexts (`+contextColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			short_id = excluded.short_id,
			parent_id = excluded.parent_id,
			forked_from = excluded.forked_from,
			original_root_id = excluded.original_root_id,
			status = excluded.status,
			priority = excluded.priority,
			task_description = excluded.task_description,
			success_criteria = excluded.success_criteria,
			failure_reason = excluded.failure_reason,
			children_ids = excluded.children_ids,
			inherited_memory = excluded.inherited_memory,
			local_memory = excluded.local_memory,
			cross_refs = excluded.cross_refs,
			last_activity = excluded.last_activity`,
		c.ID, c.ShortID, nullable(c.ParentID), nullable(c.ForkedFrom),
		nullable(c.OriginalRootID), string(c.Status), c.Priority,
		nullable(c.TaskDescription), nullable(c.SuccessCriteria),
		nullable(c.FailureReason), children, inherited, local, refs,
		c.CreatedAt.UTC(), c.LastActivity.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save context %s: %w", c.ShortID, err)
	}
	return nil
}

func appendEntry(ctx context.Context, tx *sql.Tx, e *models.AuditEntry) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode audit payload: %w", err)
	}
	if e.Payload == nil {
		payload = []byte("{}")
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO audit_log (id, timestamp, event_type, context_id, actor, payload) VALUES (?, ?, ?, ?, ?, ?)",
		e.ID, e.Timestamp.UTC(), string(e.EventType), e.ContextID, nullable(e.Actor), string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// Load retrieves one context snapshot by internal id.
func (s *ContextStore) Load(ctx context.Context, id string) (*models.Context, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+contextColumns+" FROM contexts WHERE id = ?", id)
	c, err := scanContext(row)
	if err == sql.ErrNoRows {
		return nil, &oerr.NotFoundError{Kind: "context", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load context %s: %w", id, err)
	}
	return c, nil
}

// LoadAll retrieves every context ordered by tree depth, roots first, so the
// registry can rebuild ids in dependency order.
func (s *ContextStore) LoadAll(ctx context.Context) ([]*models.Context, error) {
	rows, err := s.db.QueryContext(ctx, `
		WITH RECURSIVE tree(tree_id, depth) AS (
			SELECT id, 0 FROM contexts WHERE parent_id IS NULL
			UNION ALL
			SELECT c.id, t.depth + 1 FROM contexts c JOIN tree t ON c.parent_id = t.tree_id
		)
		SELECT `+contextColumns+` FROM contexts
		JOIN tree ON contexts.id = tree.tree_id
		ORDER BY tree.depth, contexts.created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to load contexts: %w", err)
	}
	defer rows.Close()

	var contexts []*models.Context
	for rows.Next() {
		c, err := scanContext(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan context: %w", err)
		}
		contexts = append(contexts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate contexts: %w", err)
	}
	return contexts, nil
}

// CountContexts returns the number of persisted snapshots.
func (s *ContextStore) CountContexts(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM contexts").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count contexts: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContext(row rowScanner) (*models.Context, error) {
	var (
		c            models.Context
		parentID     sql.NullString
		forkedFrom   sql.NullString
		originalRoot sql.NullString
		task         sql.NullString
		criteria     sql.NullString
		failure      sql.NullString
		children     string
		inherited    string
		local        string
		refs         string
		createdAt    time.Time
		lastActivity time.Time
	)

	err := row.Scan(&c.ID, &c.ShortID, &parentID, &forkedFrom, &originalRoot,
		&c.Status, &c.Priority, &task, &criteria, &failure,
		&children, &inherited, &local, &refs, &createdAt, &lastActivity)
	if err != nil {
		return nil, err
	}

	c.ParentID = parentID.String
	c.ForkedFrom = forkedFrom.String
	c.OriginalRootID = originalRoot.String
	c.TaskDescription = task.String
	c.SuccessCriteria = criteria.String
	c.FailureReason = failure.String
	c.CreatedAt = createdAt
	c.LastActivity = lastActivity

	if err := json.Unmarshal([]byte(children), &c.ChildrenIDs); err != nil {
		return nil, fmt.Errorf("corrupt children_ids for %s: %w", c.ShortID, err)
	}
	if err := json.Unmarshal([]byte(inherited), &c.InheritedMemory); err != nil {
		return nil, fmt.Errorf("corrupt inherited_memory for %s: %w", c.ShortID, err)
	}
	if err := json.Unmarshal([]byte(local), &c.LocalMemory); err != nil {
		return nil, fmt.Errorf("corrupt local_memory for %s: %w", c.ShortID, err)
	}
	if err := json.Unmarshal([]byte(refs), &c.CrossRefs); err != nil {
		return nil, fmt.Errorf("corrupt cross_refs for %s: %w", c.ShortID, err)
	}
	if c.CrossRefs == nil {
		c.CrossRefs = make(map[string]*models.CrossRefMetadata)
	}

	return &c, nil
}

// marshalList encodes a slice as JSON, mapping nil to the empty array.
func marshalList[T any](list []T) (string, error) {
	if list == nil {
		return "[]", nil
	}
	data, err := json.Marshal(list)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// marshalMap encodes a map as JSON, mapping nil to the empty object.
func marshalMap[K comparable, V any](m map[K]V) (string, error) {
	if m == nil {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func nullable(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// Ensure ContextStore implements the interface
var _ secondary.ContextStore = (*ContextStore)(nil)
