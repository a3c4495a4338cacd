package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/sidebar/internal/models"
	"github.com/example/sidebar/internal/ports/secondary"
)

// AuditLog implements secondary.AuditLog with SQLite. Read-only: appends
// happen exclusively through ContextStore.Commit.
type AuditLog struct {
	db *sql.DB
}

// NewAuditLog creates a new SQLite audit log reader.
func NewAuditLog(db *sql.DB) *AuditLog {
	return &AuditLog{db: db}
}

const auditColumns = "seq, id, timestamp, event_type, context_id, actor, payload"

// Query returns entries matching the filters in seq order.
func (l *AuditLog) Query(ctx context.Context, filters secondary.AuditFilters) ([]*models.AuditEntry, error) {
	query := "SELECT " + auditColumns + " FROM audit_log WHERE 1=1"
	args := []any{}

	if filters.ContextID != "" {
		query += " AND context_id = ?"
		args = append(args, filters.ContextID)
	}
	if filters.EventType != "" {
		query += " AND event_type = ?"
		args = append(args, string(filters.EventType))
	}
	if !filters.Since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, filters.Since.UTC())
	}
	if !filters.Until.IsZero() {
		query += " AND timestamp <= ?"
		args = append(args, filters.Until.UTC())
	}
	if filters.PayloadContains != "" {
		query += " AND payload LIKE '%' || ? || '%'"
		args = append(args, filters.PayloadContains)
	}

	query += " ORDER BY seq"

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// EntriesForContext returns every entry for one context in seq order.
func (l *AuditLog) EntriesForContext(ctx context.Context, contextID string) ([]*models.AuditEntry, error) {
	rows, err := l.db.QueryContext(ctx,
		"SELECT "+auditColumns+" FROM audit_log WHERE context_id = ? ORDER BY seq", contextID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log for %s: %w", contextID, err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// CountByContext returns entry counts keyed by context id.
func (l *AuditLog) CountByContext(ctx context.Context) (map[string]int, error) {
	rows, err := l.db.QueryContext(ctx,
		"SELECT context_id, COUNT(*) FROM audit_log GROUP BY context_id")
	if err != nil {
		return nil, fmt.Errorf("failed to count audit entries: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("failed to scan audit count: %w", err)
		}
		counts[id] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit counts: %w", err)
	}
	return counts, nil
}

func scanEntries(rows *sql.Rows) ([]*models.AuditEntry, error) {
	var entries []*models.AuditEntry
	for rows.Next() {
		var (
			e         models.AuditEntry
			timestamp time.Time
			actor     sql.NullString
			payload   string
		)
		if err := rows.Scan(&e.Seq, &e.ID, &timestamp, &e.EventType, &e.ContextID, &actor, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Timestamp = timestamp
		e.Actor = actor.String
		if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
			return nil, fmt.Errorf("corrupt audit payload for %s: %w", e.ID, err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit entries: %w", err)
	}
	return entries, nil
}

// Ensure AuditLog implements the interface
var _ secondary.AuditLog = (*AuditLog)(nil)
