// Package registry allocates the stable short display ids (SB-n) for
// contexts. Exactly one registry exists per process; it is rebuilt from the
// persistence store's depth-ordered load and never hands out a duplicate.
package registry

import (
	"fmt"
	"strconv"
	"strings"
)

// Prefix is the short id prefix for contexts.
const Prefix = "SB-"

// Registry maps internal context ids to short display ids and back.
// Not safe for concurrent use; the orchestrator serializes access.
type Registry struct {
	next       int
	byShort    map[string]string
	byInternal map[string]string
}

// New returns an empty registry whose first allocation is SB-1.
func New() *Registry {
	return &Registry{
		next:       1,
		byShort:    make(map[string]string),
		byInternal: make(map[string]string),
	}
}

// Allocate assigns the next short id to internalID.
func (r *Registry) Allocate(internalID string) (string, error) {
	if short, ok := r.byInternal[internalID]; ok {
		return "", fmt.Errorf("internal id %s already registered as %s", internalID, short)
	}
	short := fmt.Sprintf("%s%d", Prefix, r.next)
	r.next++
	r.byShort[short] = internalID
	r.byInternal[internalID] = short
	return short, nil
}

// Import registers an existing (shortID, internalID) pair during startup
// rebuild and advances the allocation counter past it.
func (r *Registry) Import(shortID, internalID string) error {
	if existing, ok := r.byShort[shortID]; ok && existing != internalID {
		return fmt.Errorf("short id %s already mapped to %s", shortID, existing)
	}
	if existing, ok := r.byInternal[internalID]; ok && existing != shortID {
		return fmt.Errorf("internal id %s already mapped to %s", internalID, existing)
	}

	n, err := parseShortID(shortID)
	if err != nil {
		return err
	}
	if n >= r.next {
		r.next = n + 1
	}

	r.byShort[shortID] = internalID
	r.byInternal[internalID] = shortID
	return nil
}

// Resolve returns the internal id for a short id.
func (r *Registry) Resolve(shortID string) (string, bool) {
	internal, ok := r.byShort[shortID]
	return internal, ok
}

// ShortFor returns the short id for an internal id.
func (r *Registry) ShortFor(internalID string) (string, bool) {
	short, ok := r.byInternal[internalID]
	return short, ok
}

// Len returns the number of registered ids.
func (r *Registry) Len() int {
	return len(r.byShort)
}

func parseShortID(shortID string) (int, error) {
	if !strings.HasPrefix(shortID, Prefix) {
		return 0, fmt.Errorf("malformed short id %q", shortID)
	}
	n, err := strconv.Atoi(strings.TrimPrefix(shortID, Prefix))
	if err != nil || n < 1 {
		return 0, fmt.Errorf("malformed short id %q", shortID)
	}
	return n, nil
}
