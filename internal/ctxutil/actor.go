// Package ctxutil carries per-request values through context.Context.
// It sits below every other internal package and imports nothing of ours,
// so any layer can use it without creating a cycle.
package ctxutil

import "context"

// ActorKey keys the acting identity in a context. A struct key cannot
// collide with keys from other packages.
type ActorKey struct{}

// WithActorID attaches the acting identity to the context. Audit entries
// written while handling the request are attributed to it.
func WithActorID(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, ActorKey{}, actorID)
}

// ActorFromContext extracts the acting identity, or "" when none was set.
func ActorFromContext(ctx context.Context) string {
	if v := ctx.Value(ActorKey{}); v != nil {
		return v.(string)
	}
	return ""
}
