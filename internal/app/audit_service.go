package app

import (
	"context"
	"encoding/json"
	"time"

	"github.com/example/sidebar/internal/oerr"
	"github.com/example/sidebar/internal/ports/primary"
	"github.com/example/sidebar/internal/ports/secondary"
)

// AuditServiceImpl implements the AuditService interface. It shares the
// orchestrator's registry so requests and output both speak short ids.
type AuditServiceImpl struct {
	orch  *OrchestratorServiceImpl
	audit secondary.AuditLog
}

// NewAuditService creates a new AuditService with injected dependencies.
func NewAuditService(orch *OrchestratorServiceImpl, audit secondary.AuditLog) *AuditServiceImpl {
	return &AuditServiceImpl{orch: orch, audit: audit}
}

// Query returns log entries in seq order. The short id filter is resolved
// against the live registry before the store is queried.
func (s *AuditServiceImpl) Query(ctx context.Context, req primary.AuditQueryRequest) ([]*primary.AuditEntryView, error) {
	filters := secondary.AuditFilters{
		EventType:       req.EventType,
		Since:           req.Since,
		Until:           req.Until,
		PayloadContains: req.Contains,
	}
	if req.ShortID != "" {
		s.orch.mu.Lock()
		internal, ok := s.orch.registry.Resolve(req.ShortID)
		s.orch.mu.Unlock()
		if !ok {
			return nil, &oerr.NotFoundError{Kind: "context", ID: req.ShortID}
		}
		filters.ContextID = internal
	}

	entries, err := s.audit.Query(ctx, filters)
	if err != nil {
		return nil, err
	}

	s.orch.mu.Lock()
	defer s.orch.mu.Unlock()

	out := make([]*primary.AuditEntryView, 0, len(entries))
	for _, e := range entries {
		view := &primary.AuditEntryView{
			Seq:       e.Seq,
			Timestamp: e.Timestamp.Format(time.RFC3339),
			EventType: e.EventType,
			Actor:     e.Actor,
		}
		// Projection events without a context attribution keep an empty id.
		if short, ok := s.orch.registry.ShortFor(e.ContextID); ok {
			view.ShortID = short
		}
		if len(e.Payload) > 0 {
			if data, err := json.Marshal(e.Payload); err == nil {
				view.Payload = string(data)
			}
		}
		out = append(out, view)
	}
	return out, nil
}
