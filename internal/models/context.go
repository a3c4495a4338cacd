package models

import "time"

// ContextStatus represents the lifecycle state of a context.
type ContextStatus string

// Context status constants. MERGED, ARCHIVED and FAILED are terminal.
const (
	StatusActive        ContextStatus = "active"
	StatusTesting       ContextStatus = "testing"
	StatusPaused        ContextStatus = "paused"
	StatusWaiting       ContextStatus = "waiting"
	StatusReviewing     ContextStatus = "reviewing"
	StatusSpawningChild ContextStatus = "spawning_child"
	StatusConsolidating ContextStatus = "consolidating"
	StatusMerged        ContextStatus = "merged"
	StatusArchived      ContextStatus = "archived"
	StatusFailed        ContextStatus = "failed"
)

// IsTerminal reports whether the status permits no further transitions
// (except force-archive/force-fail, which are no-ops on terminal contexts).
func (s ContextStatus) IsTerminal() bool {
	return s == StatusMerged || s == StatusArchived || s == StatusFailed
}

// Context priority constants.
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Exchange is a single conversational turn owned by a context's memory.
type Exchange struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Context represents a conversation or a branched sub-investigation.
// Contexts form a forest: ParentID empty means root. InheritedMemory is a
// snapshot copied from the parent at spawn time and never mutated afterward;
// LocalMemory is append-only.
type Context struct {
	ID             string
	ShortID        string
	ParentID       string
	ChildrenIDs    []string
	ForkedFrom     string
	OriginalRootID string

	Status          ContextStatus
	Priority        string
	TaskDescription string
	SuccessCriteria string
	FailureReason   string

	InheritedMemory []Exchange
	LocalMemory     []Exchange
	CrossRefs       map[string]*CrossRefMetadata

	CreatedAt    time.Time
	LastActivity time.Time
}

// IsRoot reports whether the context anchors a tree.
func (c *Context) IsRoot() bool {
	return c.ParentID == ""
}

// Clone returns a deep copy. The orchestrator mutates clones and swaps them
// in only after the persistence write succeeds.
func (c *Context) Clone() *Context {
	clone := *c
	clone.ChildrenIDs = append([]string(nil), c.ChildrenIDs...)
	clone.InheritedMemory = append([]Exchange(nil), c.InheritedMemory...)
	clone.LocalMemory = append([]Exchange(nil), c.LocalMemory...)
	clone.CrossRefs = make(map[string]*CrossRefMetadata, len(c.CrossRefs))
	for target, ref := range c.CrossRefs {
		clone.CrossRefs[target] = ref.Clone()
	}
	return &clone
}

// RemoveChild drops childID from ChildrenIDs if present.
func (c *Context) RemoveChild(childID string) {
	for i, id := range c.ChildrenIDs {
		if id == childID {
			c.ChildrenIDs = append(c.ChildrenIDs[:i], c.ChildrenIDs[i+1:]...)
			return
		}
	}
}

// HasChild reports whether childID is in ChildrenIDs.
func (c *Context) HasChild(childID string) bool {
	for _, id := range c.ChildrenIDs {
		if id == childID {
			return true
		}
	}
	return false
}
