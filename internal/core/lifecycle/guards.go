package lifecycle

import (
	"fmt"

	"github.com/example/sidebar/internal/models"
)

// GuardResult represents the outcome of a guard evaluation.
type GuardResult struct {
	Allowed bool
	Reason  string // Human-readable reason (populated when not allowed)
}

// Error returns the guard result as an error if not allowed, nil otherwise.
func (r GuardResult) Error() error {
	if r.Allowed {
		return nil
	}
	return fmt.Errorf("%s", r.Reason)
}

// CanPause evaluates whether a context can be paused.
// Rule: only active or testing contexts can be paused.
func CanPause(shortID string, status models.ContextStatus) GuardResult {
	if status != models.StatusActive && status != models.StatusTesting {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("cannot pause %s: status %s does not allow pausing", shortID, status),
		}
	}
	return GuardResult{Allowed: true}
}

// CanResume evaluates whether a context can be resumed.
// Rule: only paused contexts can be resumed.
func CanResume(shortID string, status models.ContextStatus) GuardResult {
	if status != models.StatusPaused {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("cannot resume %s: status is %s, not paused", shortID, status),
		}
	}
	return GuardResult{Allowed: true}
}

// CanSpawnChild evaluates whether a context can spawn a child.
// Rule: terminal contexts cannot spawn (fork instead).
func CanSpawnChild(shortID string, status models.ContextStatus) GuardResult {
	if status.IsTerminal() {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("cannot spawn child under %s: status %s is terminal (use fork)", shortID, status),
		}
	}
	return GuardResult{Allowed: true}
}

// MergeContext provides context for merge guards.
type MergeContext struct {
	ShortID string
	IsRoot  bool
	Status  models.ContextStatus
}

// CanMerge evaluates whether a context can be merged into its parent.
// Rules: roots have nothing to merge into; terminal contexts are done.
// The merge itself passes through consolidating before merged.
func CanMerge(ctx MergeContext) GuardResult {
	if ctx.IsRoot {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("cannot merge root context %s: no parent to merge into", ctx.ShortID),
		}
	}
	if ctx.Status.IsTerminal() {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("cannot merge %s: status %s is terminal", ctx.ShortID, ctx.Status),
		}
	}
	if ctx.Status != models.StatusConsolidating && !CanTransition(ctx.Status, models.StatusConsolidating) {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("cannot merge %s: status %s does not allow consolidation", ctx.ShortID, ctx.Status),
		}
	}
	return GuardResult{Allowed: true}
}

// CanArchive evaluates whether a context can be archived.
// Rule: archive is the catch-all close-out, allowed from any non-terminal
// status.
func CanArchive(shortID string, status models.ContextStatus) GuardResult {
	if status.IsTerminal() {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("cannot archive %s: already terminal (%s)", shortID, status),
		}
	}
	return GuardResult{Allowed: true}
}

// CanFail evaluates whether a context can be force-failed.
// Rule: allowed from any non-terminal status.
func CanFail(shortID string, status models.ContextStatus) GuardResult {
	if status.IsTerminal() {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("cannot fail %s: already terminal (%s)", shortID, status),
		}
	}
	return GuardResult{Allowed: true}
}

// AncestorChain walks parent pointers from id to the root and returns the
// chain excluding id itself. parentOf maps each context id to its parent id
// (empty for roots). The walk is bounded by the map size so a corrupted
// parent map cannot loop forever.
func AncestorChain(id string, parentOf map[string]string) []string {
	var chain []string
	cur := parentOf[id]
	for cur != "" && len(chain) <= len(parentOf) {
		chain = append(chain, cur)
		cur = parentOf[cur]
	}
	return chain
}

// WouldCycle reports whether making newParentID the parent of contextID
// would put contextID on its own ancestor chain.
func WouldCycle(contextID, newParentID string, parentOf map[string]string) bool {
	if newParentID == "" {
		return false
	}
	if newParentID == contextID {
		return true
	}
	for _, ancestor := range AncestorChain(newParentID, parentOf) {
		if ancestor == contextID {
			return true
		}
	}
	return false
}

// Descendants returns every context id in the subtree under id (excluding
// id), in breadth-first order. childrenOf maps each id to its children ids.
func Descendants(id string, childrenOf map[string][]string) []string {
	var result []string
	queue := append([]string(nil), childrenOf[id]...)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		result = append(result, cur)
		queue = append(queue, childrenOf[cur]...)
	}
	return result
}
