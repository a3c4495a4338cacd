package app

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/sidebar/internal/config"
	"github.com/example/sidebar/internal/core/lifecycle"
	"github.com/example/sidebar/internal/core/registry"
	"github.com/example/sidebar/internal/ctxutil"
	"github.com/example/sidebar/internal/models"
	"github.com/example/sidebar/internal/oerr"
	"github.com/example/sidebar/internal/ports/primary"
	"github.com/example/sidebar/internal/ports/secondary"
)

// focusKey is the session key holding the current focus short id.
const focusKey = "focus"

// OrchestratorServiceImpl implements the OrchestratorService interface.
//
// The in-memory context map is a cache over the store, never the other way
// around: every mutation clones the affected contexts, commits the clones
// together with their audit entries, and only swaps the clones in after the
// write succeeds. A failed write queues the exact batch in the emergency
// cache and leaves memory untouched.
type OrchestratorServiceImpl struct {
	store   secondary.ContextStore
	session secondary.SessionStore
	convs   secondary.ConversationMap
	cache   *EmergencyCache
	cfg     *config.Config

	mu       sync.Mutex
	contexts map[string]*models.Context
	registry *registry.Registry

	notify func(event models.EventType, shortID string)
}

// NewOrchestratorService creates a new OrchestratorService with injected
// dependencies. Call Load before use to rebuild in-memory state from the
// store.
func NewOrchestratorService(
	store secondary.ContextStore,
	session secondary.SessionStore,
	convs secondary.ConversationMap,
	cache *EmergencyCache,
	cfg *config.Config,
) *OrchestratorServiceImpl {
	return &OrchestratorServiceImpl{
		store:    store,
		session:  session,
		convs:    convs,
		cache:    cache,
		cfg:      cfg,
		contexts: make(map[string]*models.Context),
		registry: registry.New(),
	}
}

// SetNotifier installs a fire-and-forget change notification callback.
// Notifications are advisory: they run on their own goroutine and their
// outcome never affects the operation that triggered them.
func (s *OrchestratorServiceImpl) SetNotifier(fn func(event models.EventType, shortID string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notify = fn
}

// Load rebuilds the in-memory map and short id registry from the store.
// Snapshots arrive depth-ordered (roots first) so parents are always
// registered before their children.
func (s *OrchestratorServiceImpl) Load(ctx context.Context) error {
	all, err := s.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load contexts: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range all {
		if err := s.registry.Import(c.ShortID, c.ID); err != nil {
			return fmt.Errorf("failed to rebuild registry: %w", err)
		}
		s.contexts[c.ID] = c
	}
	return nil
}

// CreateRoot creates a new root context.
func (s *OrchestratorServiceImpl) CreateRoot(ctx context.Context, req primary.CreateRootRequest) (*primary.CreateContextResponse, error) {
	if strings.TrimSpace(req.Task) == "" {
		return nil, &oerr.ValidationError{Field: "task", Reason: "must not be empty"}
	}
	status := req.Status
	if status == "" {
		status = models.StatusActive
	}
	if !lifecycle.ValidInitialStatus(status) {
		return nil, &oerr.ValidationError{Field: "status", Reason: fmt.Sprintf("%s is not a valid initial status", status)}
	}
	priority, err := normalizePriority(req.Priority)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	c := &models.Context{
		ID:              uuid.NewString(),
		Status:          status,
		Priority:        priority,
		TaskDescription: req.Task,
		SuccessCriteria: req.SuccessCriteria,
		CrossRefs:       make(map[string]*models.CrossRefMetadata),
		CreatedAt:       now,
		LastActivity:    now,
	}
	short, err := s.registry.Allocate(c.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate short id: %w", err)
	}
	c.ShortID = short

	actor := actorFrom(ctx)
	entry := newEntry(models.EventContextCreated, c.ID, actor, map[string]any{
		"short_id":   c.ShortID,
		"status":     string(c.Status),
		"priority":   c.Priority,
		"task":       c.TaskDescription,
		"criteria":   c.SuccessCriteria,
		"created_at": c.CreatedAt.Format(time.RFC3339Nano),
	})

	batch := secondary.CommitBatch{Contexts: []*models.Context{c}, Entries: []*models.AuditEntry{entry}}
	if err := s.commitLocked(ctx, "create_root", c, batch, func() {
		s.contexts[c.ID] = c
	}); err != nil {
		return nil, err
	}

	if req.ConversationID != "" {
		if err := s.convs.Bind(ctx, c.ID, req.ConversationID); err != nil {
			return nil, fmt.Errorf("context %s created but conversation binding failed: %w", short, err)
		}
	}

	s.emit(models.EventContextCreated, short)
	return &primary.CreateContextResponse{ShortID: short, Context: s.viewLocked(c)}, nil
}

// SpawnChild branches a sub-investigation under an existing context. The
// child inherits a snapshot of the parent's most recent local exchanges;
// the snapshot is copied once and never tracks the parent afterward.
func (s *OrchestratorServiceImpl) SpawnChild(ctx context.Context, req primary.SpawnChildRequest) (*primary.CreateContextResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spawnChildLocked(ctx, req)
}

// spawnChildLocked is SpawnChild without the locking, for callers already
// inside the service mutex (the projection service spawns joint
// investigations mid-operation). Callers must hold s.mu.
func (s *OrchestratorServiceImpl) spawnChildLocked(ctx context.Context, req primary.SpawnChildRequest) (*primary.CreateContextResponse, error) {
	status := req.Status
	if status == "" {
		status = models.StatusActive
	}
	if !lifecycle.ValidInitialStatus(status) {
		return nil, &oerr.ValidationError{Field: "status", Reason: fmt.Sprintf("%s is not a valid initial status", status)}
	}
	priority, err := normalizePriority(req.Priority)
	if err != nil {
		return nil, err
	}

	parent, err := s.resolveLocked(req.ParentShortID)
	if err != nil {
		return nil, err
	}
	if result := lifecycle.CanSpawnChild(parent.ShortID, parent.Status); !result.Allowed {
		return nil, &oerr.ValidationError{Field: "parent", Reason: result.Reason}
	}

	n := req.InheritLastN
	if n == 0 {
		n = s.cfg.InheritLastN
	}
	inherited := lastN(parent.LocalMemory, n)

	now := time.Now()
	child := &models.Context{
		ID:              uuid.NewString(),
		ParentID:        parent.ID,
		Status:          status,
		Priority:        priority,
		TaskDescription: req.Reason,
		InheritedMemory: inherited,
		CrossRefs:       make(map[string]*models.CrossRefMetadata),
		CreatedAt:       now,
		LastActivity:    now,
	}
	short, err := s.registry.Allocate(child.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate short id: %w", err)
	}
	child.ShortID = short

	parentClone := parent.Clone()
	parentClone.ChildrenIDs = append(parentClone.ChildrenIDs, child.ID)
	parentClone.LastActivity = now

	actor := actorFrom(ctx)
	entries := []*models.AuditEntry{
		newEntry(models.EventContextCreated, child.ID, actor, map[string]any{
			"short_id":         child.ShortID,
			"parent_id":        parent.ID,
			"status":           string(child.Status),
			"priority":         child.Priority,
			"task":             child.TaskDescription,
			"inherited_memory": inherited,
			"created_at":       child.CreatedAt.Format(time.RFC3339Nano),
		}),
		newEntry(models.EventChildSpawned, parent.ID, actor, map[string]any{
			"child_id":       child.ID,
			"child_short_id": child.ShortID,
			"reason":         req.Reason,
		}),
	}

	batch := secondary.CommitBatch{Contexts: []*models.Context{child, parentClone}, Entries: entries}
	if err := s.commitLocked(ctx, "spawn_child", child, batch, func() {
		s.contexts[child.ID] = child
		s.contexts[parentClone.ID] = parentClone
	}); err != nil {
		return nil, err
	}

	s.emit(models.EventChildSpawned, short)
	return &primary.CreateContextResponse{ShortID: short, Context: s.viewLocked(child)}, nil
}

// Fork creates a fresh root-level context from any existing context,
// including terminal ones. The fork carries lineage via forked_from and a
// combined snapshot of the source's memory, but is otherwise independent.
func (s *OrchestratorServiceImpl) Fork(ctx context.Context, req primary.ForkRequest) (*primary.CreateContextResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	source, err := s.resolveLocked(req.SourceShortID)
	if err != nil {
		return nil, err
	}

	task := req.Task
	if task == "" {
		task = source.TaskDescription
	}

	inherited := append(append([]models.Exchange(nil), source.InheritedMemory...), source.LocalMemory...)
	now := time.Now()
	fork := &models.Context{
		ID:              uuid.NewString(),
		ForkedFrom:      source.ID,
		Status:          models.StatusActive,
		Priority:        source.Priority,
		TaskDescription: task,
		SuccessCriteria: source.SuccessCriteria,
		InheritedMemory: inherited,
		CrossRefs:       make(map[string]*models.CrossRefMetadata),
		CreatedAt:       now,
		LastActivity:    now,
	}
	short, err := s.registry.Allocate(fork.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate short id: %w", err)
	}
	fork.ShortID = short

	entry := newEntry(models.EventContextCreated, fork.ID, actorFrom(ctx), map[string]any{
		"short_id":         fork.ShortID,
		"forked_from":      source.ID,
		"status":           string(fork.Status),
		"priority":         fork.Priority,
		"task":             fork.TaskDescription,
		"criteria":         fork.SuccessCriteria,
		"inherited_memory": inherited,
		"created_at":       fork.CreatedAt.Format(time.RFC3339Nano),
	})

	batch := secondary.CommitBatch{Contexts: []*models.Context{fork}, Entries: []*models.AuditEntry{entry}}
	if err := s.commitLocked(ctx, "fork", fork, batch, func() {
		s.contexts[fork.ID] = fork
	}); err != nil {
		return nil, err
	}

	s.emit(models.EventContextCreated, short)
	return &primary.CreateContextResponse{ShortID: short, Context: s.viewLocked(fork)}, nil
}

// Pause pauses an active or testing context.
func (s *OrchestratorServiceImpl) Pause(ctx context.Context, shortID string) error {
	return s.transition(ctx, shortID, models.StatusPaused, "pause", func(c *models.Context) lifecycle.GuardResult {
		return lifecycle.CanPause(c.ShortID, c.Status)
	})
}

// Resume resumes a paused context.
func (s *OrchestratorServiceImpl) Resume(ctx context.Context, shortID string) error {
	return s.transition(ctx, shortID, models.StatusActive, "resume", func(c *models.Context) lifecycle.GuardResult {
		return lifecycle.CanResume(c.ShortID, c.Status)
	})
}

// Merge folds a child's local memory into its parent and marks the child
// merged. The child passes through consolidating on its way out; both
// snapshots and both audit entries land in one atomic batch.
func (s *OrchestratorServiceImpl) Merge(ctx context.Context, req primary.MergeRequest) (*primary.MergeResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	child, err := s.resolveLocked(req.ShortID)
	if err != nil {
		return nil, err
	}
	if result := lifecycle.CanMerge(lifecycle.MergeContext{
		ShortID: child.ShortID,
		IsRoot:  child.IsRoot(),
		Status:  child.Status,
	}); !result.Allowed {
		return nil, &oerr.ValidationError{Field: "context", Reason: result.Reason}
	}

	parent, ok := s.contexts[child.ParentID]
	if !ok {
		return nil, &oerr.NotFoundError{Kind: "parent context", ID: child.ParentID}
	}

	now := time.Now()
	folded := make([]models.Exchange, 0, len(child.LocalMemory)+1)
	if req.Summary != "" {
		folded = append(folded, models.Exchange{Role: "summary", Content: req.Summary, Timestamp: now})
	}
	folded = append(folded, child.LocalMemory...)

	childClone := child.Clone()
	childClone.Status = models.StatusMerged
	childClone.LastActivity = now

	parentClone := parent.Clone()
	parentClone.LocalMemory = append(parentClone.LocalMemory, folded...)
	parentClone.LastActivity = now

	actor := actorFrom(ctx)
	entries := []*models.AuditEntry{
		newEntry(models.EventContextMerged, child.ID, actor, map[string]any{
			"parent_id": parent.ID,
			"summary":   req.Summary,
			"folded":    len(folded),
		}),
		newEntry(models.EventMemoryAppended, parent.ID, actor, map[string]any{
			"exchanges": folded,
			"source":    child.ShortID,
		}),
	}

	batch := secondary.CommitBatch{Contexts: []*models.Context{childClone, parentClone}, Entries: entries}
	if err := s.commitLocked(ctx, "merge", childClone, batch, func() {
		s.contexts[childClone.ID] = childClone
		s.contexts[parentClone.ID] = parentClone
	}); err != nil {
		return nil, err
	}

	s.emit(models.EventContextMerged, child.ShortID)
	return &primary.MergeResponse{
		ShortID:         child.ShortID,
		ParentShortID:   parent.ShortID,
		FoldedExchanges: len(folded),
	}, nil
}

// Archive is the catch-all terminal transition.
func (s *OrchestratorServiceImpl) Archive(ctx context.Context, shortID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.resolveLocked(shortID)
	if err != nil {
		return err
	}
	if result := lifecycle.CanArchive(c.ShortID, c.Status); !result.Allowed {
		return &oerr.ValidationError{Field: "context", Reason: result.Reason}
	}

	clone := c.Clone()
	from := clone.Status
	clone.Status = models.StatusArchived
	clone.LastActivity = time.Now()

	entry := newEntry(models.EventContextArchived, c.ID, actorFrom(ctx), map[string]any{
		"from": string(from),
	})
	batch := secondary.CommitBatch{Contexts: []*models.Context{clone}, Entries: []*models.AuditEntry{entry}}
	if err := s.commitLocked(ctx, "archive", clone, batch, func() {
		s.contexts[clone.ID] = clone
	}); err != nil {
		return err
	}

	s.emit(models.EventContextArchived, shortID)
	return nil
}

// Fail force-moves a context to failed with a reason.
func (s *OrchestratorServiceImpl) Fail(ctx context.Context, shortID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.resolveLocked(shortID)
	if err != nil {
		return err
	}
	if result := lifecycle.CanFail(c.ShortID, c.Status); !result.Allowed {
		return &oerr.ValidationError{Field: "context", Reason: result.Reason}
	}

	clone := c.Clone()
	from := clone.Status
	clone.Status = models.StatusFailed
	clone.FailureReason = reason
	clone.LastActivity = time.Now()

	entry := newEntry(models.EventContextFailed, c.ID, actorFrom(ctx), map[string]any{
		"from":   string(from),
		"reason": reason,
	})
	batch := secondary.CommitBatch{Contexts: []*models.Context{clone}, Entries: []*models.AuditEntry{entry}}
	if err := s.commitLocked(ctx, "fail", clone, batch, func() {
		s.contexts[clone.ID] = clone
	}); err != nil {
		return err
	}

	s.emit(models.EventContextFailed, shortID)
	return nil
}

// Reparent moves a context and its whole subtree under a new parent, or to
// root when the new parent is empty. The move is validated against the
// ancestor chain first; nothing is mutated when a cycle is detected. All
// affected snapshots commit in one transaction: a failure rolls the whole
// move back.
func (s *OrchestratorServiceImpl) Reparent(ctx context.Context, req primary.ReparentRequest) (*primary.ReparentResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.resolveLocked(req.ShortID)
	if err != nil {
		return nil, err
	}

	var newParent *models.Context
	if req.NewParentShortID != "" {
		newParent, err = s.resolveLocked(req.NewParentShortID)
		if err != nil {
			return nil, err
		}
		if newParent.ID == c.ParentID {
			return nil, &oerr.ValidationError{Field: "new_parent", Reason: fmt.Sprintf("%s is already the parent of %s", newParent.ShortID, c.ShortID)}
		}
		if newParent.Status.IsTerminal() {
			return nil, &oerr.ValidationError{Field: "new_parent", Reason: fmt.Sprintf("cannot reparent under %s: status %s is terminal", newParent.ShortID, newParent.Status)}
		}
	} else if c.IsRoot() {
		return nil, &oerr.ValidationError{Field: "new_parent", Reason: fmt.Sprintf("%s is already a root", c.ShortID)}
	}

	parentOf := make(map[string]string, len(s.contexts))
	childrenOf := make(map[string][]string, len(s.contexts))
	for id, other := range s.contexts {
		parentOf[id] = other.ParentID
		childrenOf[id] = other.ChildrenIDs
	}
	newParentID := ""
	if newParent != nil {
		newParentID = newParent.ID
	}
	if lifecycle.WouldCycle(c.ID, newParentID, parentOf) {
		return nil, &oerr.CycleError{ContextID: c.ShortID, NewParentID: req.NewParentShortID}
	}

	descendants := lifecycle.Descendants(c.ID, childrenOf)
	movedShorts := make([]string, 0, len(descendants))
	for _, id := range descendants {
		if short, ok := s.registry.ShortFor(id); ok {
			movedShorts = append(movedShorts, short)
		}
	}

	now := time.Now()
	actor := actorFrom(ctx)

	clone := c.Clone()
	oldParentID := clone.ParentID
	clone.ParentID = newParentID
	if c.IsRoot() && newParentID != "" && clone.OriginalRootID == "" {
		// A demoted root remembers that it once anchored its own tree.
		clone.OriginalRootID = c.ID
	}
	clone.LastActivity = now

	contexts := []*models.Context{clone}
	entries := []*models.AuditEntry{
		newEntry(models.EventReparent, c.ID, actor, map[string]any{
			"old_parent_id":    oldParentID,
			"new_parent_id":    newParentID,
			"original_root_id": clone.OriginalRootID,
			"descendants":      movedShorts,
			"reason":           req.Reason,
		}),
	}

	oldParentShort := ""
	if oldParentID != "" {
		oldParent, ok := s.contexts[oldParentID]
		if !ok {
			return nil, &oerr.NotFoundError{Kind: "parent context", ID: oldParentID}
		}
		oldParentShort = oldParent.ShortID
		oldClone := oldParent.Clone()
		oldClone.RemoveChild(c.ID)
		oldClone.LastActivity = now
		contexts = append(contexts, oldClone)
		entries = append(entries, newEntry(models.EventReparent, oldParent.ID, actor, map[string]any{
			"removed_child_id": c.ID,
		}))
	}
	if newParent != nil {
		newClone := newParent.Clone()
		newClone.ChildrenIDs = append(newClone.ChildrenIDs, c.ID)
		newClone.LastActivity = now
		contexts = append(contexts, newClone)
		entries = append(entries, newEntry(models.EventReparent, newParent.ID, actor, map[string]any{
			"added_child_id": c.ID,
		}))
	}

	batch := secondary.CommitBatch{Contexts: contexts, Entries: entries}
	if err := s.commitLocked(ctx, "reparent", clone, batch, func() {
		for _, moved := range contexts {
			s.contexts[moved.ID] = moved
		}
	}); err != nil {
		return nil, err
	}

	s.emit(models.EventReparent, c.ShortID)
	return &primary.ReparentResponse{
		ShortID:          c.ShortID,
		OldParentShortID: oldParentShort,
		NewParentShortID: req.NewParentShortID,
		MovedDescendants: movedShorts,
	}, nil
}

// AppendExchange appends one exchange to a context's local memory.
func (s *OrchestratorServiceImpl) AppendExchange(ctx context.Context, req primary.AppendExchangeRequest) error {
	if req.Role == "" {
		return &oerr.ValidationError{Field: "role", Reason: "must not be empty"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.resolveLocked(req.ShortID)
	if err != nil {
		return err
	}
	if c.Status.IsTerminal() {
		return &oerr.ValidationError{Field: "context", Reason: fmt.Sprintf("cannot append to %s: status %s is terminal", c.ShortID, c.Status)}
	}

	now := time.Now()
	exchange := models.Exchange{Role: req.Role, Content: req.Content, Timestamp: now}

	clone := c.Clone()
	clone.LocalMemory = append(clone.LocalMemory, exchange)
	clone.LastActivity = now

	entry := newEntry(models.EventMemoryAppended, c.ID, actorFrom(ctx), map[string]any{
		"exchanges": []models.Exchange{exchange},
	})
	batch := secondary.CommitBatch{Contexts: []*models.Context{clone}, Entries: []*models.AuditEntry{entry}}
	if err := s.commitLocked(ctx, "append_exchange", clone, batch, func() {
		s.contexts[clone.ID] = clone
	}); err != nil {
		return err
	}

	s.emit(models.EventMemoryAppended, req.ShortID)
	return nil
}

// Get retrieves one context by short id.
func (s *OrchestratorServiceImpl) Get(ctx context.Context, shortID string) (*primary.ContextView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.resolveLocked(shortID)
	if err != nil {
		return nil, err
	}
	return s.viewLocked(c), nil
}

// List retrieves contexts matching the filters, ordered by short id.
func (s *OrchestratorServiceImpl) List(ctx context.Context, filters primary.ContextFilters) ([]*primary.ContextView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var views []*primary.ContextView
	for _, c := range s.contexts {
		if filters.Status != "" && c.Status != filters.Status {
			continue
		}
		if filters.RootsOnly && !c.IsRoot() {
			continue
		}
		views = append(views, s.viewLocked(c))
	}
	sort.Slice(views, func(i, j int) bool {
		return shortNumber(views[i].ShortID) < shortNumber(views[j].ShortID)
	})
	return views, nil
}

// SetFocus records the session focus context.
func (s *OrchestratorServiceImpl) SetFocus(ctx context.Context, shortID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.resolveLocked(shortID)
	if err != nil {
		return err
	}

	entry := newEntry(models.EventFocusChanged, c.ID, actorFrom(ctx), map[string]any{
		"short_id": c.ShortID,
	})
	if err := s.store.Commit(ctx, secondary.CommitBatch{Entries: []*models.AuditEntry{entry}}); err != nil {
		return fmt.Errorf("failed to record focus change: %w", err)
	}
	if err := s.session.Set(ctx, focusKey, c.ShortID); err != nil {
		return fmt.Errorf("failed to set focus: %w", err)
	}

	s.emit(models.EventFocusChanged, shortID)
	return nil
}

// Focus returns the current session focus after applying the fallback
// chain: the recorded focus if still live, its nearest non-terminal
// ancestor otherwise, and finally any active root.
func (s *OrchestratorServiceImpl) Focus(ctx context.Context) (*primary.ContextView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if short, err := s.session.Get(ctx, focusKey); err == nil {
		if c, err := s.resolveLocked(short); err == nil {
			for c != nil && c.Status.IsTerminal() {
				c = s.contexts[c.ParentID]
			}
			if c != nil {
				return s.viewLocked(c), nil
			}
		}
	}

	var fallback *models.Context
	for _, c := range s.contexts {
		if !c.IsRoot() || c.Status != models.StatusActive {
			continue
		}
		if fallback == nil || shortNumber(c.ShortID) < shortNumber(fallback.ShortID) {
			fallback = c
		}
	}
	if fallback == nil {
		return nil, &oerr.NotFoundError{Kind: "focus context", ID: "(none)"}
	}
	return s.viewLocked(fallback), nil
}

// QueuedWrites lists the emergency cache contents.
func (s *OrchestratorServiceImpl) QueuedWrites(ctx context.Context) []primary.QueuedWrite {
	queued := s.cache.List()
	out := make([]primary.QueuedWrite, 0, len(queued))
	for _, w := range queued {
		out = append(out, primary.QueuedWrite{
			ContextID: w.ContextID,
			ShortID:   w.ShortID,
			Operation: w.Operation,
			QueuedAt:  w.QueuedAt.Format(time.RFC3339),
			Attempts:  w.Attempts,
		})
	}
	return out
}

// FlushQueue retries every queued write through the store. Batches that
// land run their deferred in-memory updates; batches that fail again stay
// queued. Intents whose context advanced past their enqueue-time state are
// dropped and reported as conflicts rather than replayed over newer state.
func (s *OrchestratorServiceImpl) FlushQueue(ctx context.Context) (*primary.FlushReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stale := func(w *queuedWrite) bool {
		cur, ok := s.contexts[w.ContextID]
		return ok && cur.LastActivity.After(w.BaseActivity)
	}
	retried, succeeded, conflicts, failures := s.cache.Flush(ctx, s.store, stale)
	return &primary.FlushReport{
		Retried:   retried,
		Succeeded: succeeded,
		Remaining: s.cache.Len(),
		Conflicts: conflicts,
		Failures:  failures,
	}, nil
}

// transition performs a simple single-context status change.
func (s *OrchestratorServiceImpl) transition(ctx context.Context, shortID string, to models.ContextStatus, op string, guard func(*models.Context) lifecycle.GuardResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.resolveLocked(shortID)
	if err != nil {
		return err
	}
	if result := guard(c); !result.Allowed {
		return &oerr.ValidationError{Field: "context", Reason: result.Reason}
	}

	clone := c.Clone()
	from := clone.Status
	clone.Status = to
	clone.LastActivity = time.Now()

	entry := newEntry(models.EventStatusChanged, c.ID, actorFrom(ctx), map[string]any{
		"from": string(from),
		"to":   string(to),
	})
	batch := secondary.CommitBatch{Contexts: []*models.Context{clone}, Entries: []*models.AuditEntry{entry}}
	if err := s.commitLocked(ctx, op, clone, batch, func() {
		s.contexts[clone.ID] = clone
	}); err != nil {
		return err
	}

	s.emit(models.EventStatusChanged, shortID)
	return nil
}

// commitLocked writes the batch and, on success, applies the in-memory
// update. On failure the batch and the deferred update land in the
// emergency cache and a PersistenceError is returned; nothing in memory
// changes. Callers must hold s.mu.
func (s *OrchestratorServiceImpl) commitLocked(ctx context.Context, op string, primaryCtx *models.Context, batch secondary.CommitBatch, apply func()) error {
	if err := s.store.Commit(ctx, batch); err != nil {
		// The intent is pinned to the state it was computed from. If the
		// context advances through a direct write before the flush, the
		// intent is stale and the flush reports a conflict instead of
		// replaying it.
		var base time.Time
		if cur, ok := s.contexts[primaryCtx.ID]; ok {
			base = cur.LastActivity
		}
		s.cache.Enqueue(&queuedWrite{
			ContextID:    primaryCtx.ID,
			ShortID:      primaryCtx.ShortID,
			Operation:    op,
			Batch:        batch,
			apply:        apply,
			BaseActivity: base,
		})
		return &oerr.PersistenceError{ContextID: primaryCtx.ShortID, Operation: op, Err: err}
	}
	apply()
	return nil
}

// resolveLocked maps a short id to its live context. Callers must hold s.mu.
func (s *OrchestratorServiceImpl) resolveLocked(shortID string) (*models.Context, error) {
	internal, ok := s.registry.Resolve(shortID)
	if !ok {
		return nil, &oerr.NotFoundError{Kind: "context", ID: shortID}
	}
	c, ok := s.contexts[internal]
	if !ok {
		return nil, &oerr.NotFoundError{Kind: "context", ID: shortID}
	}
	return c, nil
}

// viewLocked maps a context to its port-boundary view, short ids
// throughout. Callers must hold s.mu.
func (s *OrchestratorServiceImpl) viewLocked(c *models.Context) *primary.ContextView {
	parentShort := ""
	if c.ParentID != "" {
		parentShort, _ = s.registry.ShortFor(c.ParentID)
	}
	forkedShort := ""
	if c.ForkedFrom != "" {
		forkedShort, _ = s.registry.ShortFor(c.ForkedFrom)
	}
	var childShorts []string
	for _, id := range c.ChildrenIDs {
		if short, ok := s.registry.ShortFor(id); ok {
			childShorts = append(childShorts, short)
		}
	}

	// Mirrors are bookkeeping for reverse lookups, not edges of their own.
	refCount := 0
	for _, ref := range c.CrossRefs {
		if !ref.Mirror {
			refCount++
		}
	}

	return &primary.ContextView{
		ShortID:         c.ShortID,
		ParentShortID:   parentShort,
		ChildShortIDs:   childShorts,
		ForkedFrom:      forkedShort,
		OriginalRootID:  c.OriginalRootID,
		Status:          c.Status,
		Priority:        c.Priority,
		TaskDescription: c.TaskDescription,
		SuccessCriteria: c.SuccessCriteria,
		FailureReason:   c.FailureReason,
		InheritedCount:  len(c.InheritedMemory),
		LocalCount:      len(c.LocalMemory),
		CrossRefCount:   refCount,
		CreatedAt:       c.CreatedAt.Format(time.RFC3339),
		LastActivity:    c.LastActivity.Format(time.RFC3339),
		LocalMemory:     append([]models.Exchange(nil), c.LocalMemory...),
	}
}

// emit fires the change notification on its own goroutine so a slow or
// absent listener never blocks an operation.
func (s *OrchestratorServiceImpl) emit(event models.EventType, shortID string) {
	if s.notify == nil {
		return
	}
	go s.notify(event, shortID)
}

func actorFrom(ctx context.Context) string {
	if actor := ctxutil.ActorFromContext(ctx); actor != "" {
		return actor
	}
	return "local"
}

func newEntry(event models.EventType, contextID, actor string, payload map[string]any) *models.AuditEntry {
	return &models.AuditEntry{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		EventType: event,
		ContextID: contextID,
		Actor:     actor,
		Payload:   payload,
	}
}

func normalizePriority(p string) (string, error) {
	if p == "" {
		return models.PriorityNormal, nil
	}
	switch p {
	case models.PriorityLow, models.PriorityNormal, models.PriorityHigh, models.PriorityUrgent:
		return p, nil
	}
	return "", &oerr.ValidationError{Field: "priority", Reason: fmt.Sprintf("unknown priority %q", p)}
}

// lastN returns the last n exchanges; negative n means all.
func lastN(exchanges []models.Exchange, n int) []models.Exchange {
	if n < 0 || n >= len(exchanges) {
		return append([]models.Exchange(nil), exchanges...)
	}
	return append([]models.Exchange(nil), exchanges[len(exchanges)-n:]...)
}

func shortNumber(shortID string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(shortID, registry.Prefix))
	if err != nil {
		return 0
	}
	return n
}
