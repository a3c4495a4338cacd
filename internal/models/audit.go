package models

import "time"

// EventType names a state-changing operation recorded in the audit log.
type EventType string

// Audit event type constants.
const (
	EventContextCreated    EventType = "CONTEXT_CREATED"
	EventChildSpawned      EventType = "CHILD_SPAWNED"
	EventStatusChanged     EventType = "STATUS_CHANGED"
	EventMemoryAppended    EventType = "MEMORY_APPENDED"
	EventContextMerged     EventType = "CONTEXT_MERGED"
	EventContextArchived   EventType = "CONTEXT_ARCHIVED"
	EventContextFailed     EventType = "CONTEXT_FAILED"
	EventReparent          EventType = "REPARENT"
	EventCrossRefAdded     EventType = "CROSS_REF_ADDED"
	EventCrossRefUpdated   EventType = "CROSS_REF_UPDATED"
	EventCrossRefRevoked   EventType = "CROSS_REF_REVOKED"
	EventCrossRefValidated EventType = "CROSS_REF_VALIDATED"
	EventFocusChanged      EventType = "FOCUS_CHANGED"
	EventPointGrabbed      EventType = "POINT_GRABBED"
	EventPointPlaced       EventType = "POINT_PLACED"
)

// AuditEntry is one immutable record in the append-only audit log. Seq is
// assigned by the store and orders entries globally; entries for a single
// context are strictly ordered by it.
type AuditEntry struct {
	ID        string
	Seq       int64
	Timestamp time.Time
	EventType EventType
	ContextID string
	Actor     string
	Payload   map[string]any
}
