// Package secondary defines the secondary ports (driven adapters) for the
// application. These are the interfaces through which the application drives
// external systems.
package secondary

import (
	"context"
	"time"

	"github.com/example/sidebar/internal/models"
)

// CommitBatch is one logically atomic write: snapshot rows plus the audit
// entries that justify them. Adapters must persist all of it or none of it.
// Application code never writes a snapshot without a log entry.
type CommitBatch struct {
	Contexts []*models.Context
	Entries  []*models.AuditEntry
}

// ContextStore persists whole-context snapshots. Contexts are always loaded
// and saved whole, never queried by sub-field.
type ContextStore interface {
	// Commit writes every context snapshot and audit entry in the batch as
	// one transaction.
	Commit(ctx context.Context, batch CommitBatch) error

	// Load retrieves one context snapshot by internal id.
	Load(ctx context.Context, id string) (*models.Context, error)

	// LoadAll retrieves every context snapshot ordered by tree depth, roots
	// first, so the registry can rebuild ids in dependency order.
	LoadAll(ctx context.Context) ([]*models.Context, error)

	// CountContexts returns the number of persisted snapshots.
	CountContexts(ctx context.Context) (int, error)
}

// AuditFilters selects audit entries. Zero values mean "no constraint".
type AuditFilters struct {
	ContextID       string
	EventType       models.EventType
	Since           time.Time
	Until           time.Time
	PayloadContains string
}

// AuditLog reads the append-only audit trail. Appends happen only through
// ContextStore.Commit so a snapshot write can never outrun its log entry.
type AuditLog interface {
	// Query returns entries matching the filters in seq order.
	Query(ctx context.Context, filters AuditFilters) ([]*models.AuditEntry, error)

	// EntriesForContext returns every entry for one context in seq order.
	EntriesForContext(ctx context.Context, contextID string) ([]*models.AuditEntry, error)

	// CountByContext returns entry counts keyed by context id.
	CountByContext(ctx context.Context) (map[string]int, error)
}

// SessionStore is the small key/value table holding session focus, graph
// layout positions and advisory grabs.
type SessionStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// ConversationMap binds root contexts to the external conversation ids they
// anchor.
type ConversationMap interface {
	Bind(ctx context.Context, rootID, conversationID string) error
	RootFor(ctx context.Context, conversationID string) (string, error)
	ConversationFor(ctx context.Context, rootID string) (string, error)
}
