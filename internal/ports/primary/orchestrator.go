// Package primary defines the primary ports (driving adapters) for the
// application: service interfaces and their request/response types.
package primary

import (
	"context"

	"github.com/example/sidebar/internal/models"
)

// OrchestratorService defines the primary port for context lifecycle
// operations. Every mutating call persists before updating memory and
// returns an explicit success or failure.
type OrchestratorService interface {
	// CreateRoot creates a new root context.
	CreateRoot(ctx context.Context, req CreateRootRequest) (*CreateContextResponse, error)

	// SpawnChild branches a sub-investigation under an existing context,
	// copying the parent's last N exchanges into inherited memory.
	SpawnChild(ctx context.Context, req SpawnChildRequest) (*CreateContextResponse, error)

	// Fork creates a fresh context carrying lineage to a (possibly
	// terminal) ancestor via forked_from.
	Fork(ctx context.Context, req ForkRequest) (*CreateContextResponse, error)

	// Pause pauses an active or testing context.
	Pause(ctx context.Context, shortID string) error

	// Resume resumes a paused context.
	Resume(ctx context.Context, shortID string) error

	// Merge folds a child's local memory into its parent and marks the
	// child merged. Fails on roots.
	Merge(ctx context.Context, req MergeRequest) (*MergeResponse, error)

	// Archive is the catch-all terminal transition, allowed from any
	// non-terminal status.
	Archive(ctx context.Context, shortID string) error

	// Fail force-moves a context to failed with a reason.
	Fail(ctx context.Context, shortID, reason string) error

	// Reparent moves a context (and its whole subtree) under a new parent,
	// or to root when newParent is empty. Rejected if it would create a
	// cycle.
	Reparent(ctx context.Context, req ReparentRequest) (*ReparentResponse, error)

	// AppendExchange appends one exchange to a context's local memory.
	AppendExchange(ctx context.Context, req AppendExchangeRequest) error

	// Get retrieves one context by short id.
	Get(ctx context.Context, shortID string) (*ContextView, error)

	// List retrieves contexts matching the filters.
	List(ctx context.Context, filters ContextFilters) ([]*ContextView, error)

	// SetFocus records the session focus context.
	SetFocus(ctx context.Context, shortID string) error

	// Focus returns the current session focus after applying the fallback
	// chain (recorded focus, its parent if terminal, any active root).
	Focus(ctx context.Context) (*ContextView, error)

	// QueuedWrites lists the emergency cache contents.
	QueuedWrites(ctx context.Context) []QueuedWrite

	// FlushQueue retries every queued write through the store.
	FlushQueue(ctx context.Context) (*FlushReport, error)
}

// CreateRootRequest contains parameters for creating a root context.
type CreateRootRequest struct {
	Task            string
	SuccessCriteria string
	Priority        string
	Status          models.ContextStatus // defaults to active
	ConversationID  string               // optional external conversation binding
}

// SpawnChildRequest contains parameters for branching a child context.
type SpawnChildRequest struct {
	ParentShortID string
	Reason        string
	InheritLastN  int // 0 means the configured default; negative means all
	Priority      string
	Status        models.ContextStatus
}

// ForkRequest contains parameters for forking from an archived ancestor.
type ForkRequest struct {
	SourceShortID string
	Task          string
}

// CreateContextResponse reports the created context.
type CreateContextResponse struct {
	ShortID string
	Context *ContextView
}

// MergeRequest contains parameters for merging a child into its parent.
type MergeRequest struct {
	ShortID string
	Summary string
}

// MergeResponse reports the merge outcome.
type MergeResponse struct {
	ShortID         string
	ParentShortID   string
	FoldedExchanges int
}

// ReparentRequest contains parameters for a structural move.
type ReparentRequest struct {
	ShortID          string
	NewParentShortID string // empty promotes the context to root
	Reason           string
}

// ReparentResponse reports the reparent outcome.
type ReparentResponse struct {
	ShortID          string
	OldParentShortID string
	NewParentShortID string
	MovedDescendants []string
}

// AppendExchangeRequest appends one exchange to local memory.
type AppendExchangeRequest struct {
	ShortID string
	Role    string
	Content string
}

// ContextFilters selects contexts for listing.
type ContextFilters struct {
	Status    models.ContextStatus
	RootsOnly bool
}

// ContextView represents a context at the port boundary, short ids
// throughout.
type ContextView struct {
	ShortID         string
	ParentShortID   string
	ChildShortIDs   []string
	ForkedFrom      string
	OriginalRootID  string
	Status          models.ContextStatus
	Priority        string
	TaskDescription string
	SuccessCriteria string
	FailureReason   string
	InheritedCount  int
	LocalCount      int
	CrossRefCount   int
	CreatedAt       string
	LastActivity    string
	LocalMemory     []models.Exchange
}

// QueuedWrite describes one emergency cache entry.
type QueuedWrite struct {
	ContextID string
	ShortID   string
	Operation string
	QueuedAt  string
	Attempts  int
}

// FlushReport summarizes an emergency cache flush. Conflicts are intents
// dropped because their context advanced while they sat in the queue.
type FlushReport struct {
	Retried   int
	Succeeded int
	Remaining int
	Conflicts []string
	Failures  []string
}
