package primary

import (
	"context"
	"time"

	"github.com/example/sidebar/internal/models"
)

// AuditService exposes the append-only log to operators. Read-only by
// construction: entries are written only inside snapshot commits.
type AuditService interface {
	// Query returns entries matching the request in seq order.
	Query(ctx context.Context, req AuditQueryRequest) ([]*AuditEntryView, error)
}

// AuditQueryRequest selects log entries. Zero values mean "no constraint".
type AuditQueryRequest struct {
	ShortID   string
	EventType models.EventType
	Since     time.Time
	Until     time.Time
	Contains  string // substring match against the JSON payload
}

// AuditEntryView is one log entry with ids translated for display.
type AuditEntryView struct {
	Seq       int64
	Timestamp string
	EventType models.EventType
	ShortID   string
	Actor     string
	Payload   string
}
