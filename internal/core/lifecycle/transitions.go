// Package lifecycle contains the pure state machine for context statuses.
// This is part of the functional core - no I/O, only pure functions.
package lifecycle

import "github.com/example/sidebar/internal/models"

// allowedTransitions encodes the context state machine. Terminal statuses
// (merged, archived, failed) have no outgoing transitions. Archived and
// failed are reachable from every non-terminal status (manual close-out and
// error path); merged is reachable only through consolidating, which may
// fall back to active if revision is needed.
var allowedTransitions = map[models.ContextStatus][]models.ContextStatus{
	models.StatusActive: {
		models.StatusTesting, models.StatusPaused, models.StatusWaiting,
		models.StatusReviewing, models.StatusSpawningChild,
		models.StatusConsolidating, models.StatusArchived, models.StatusFailed,
	},
	models.StatusTesting: {
		models.StatusActive, models.StatusPaused, models.StatusWaiting,
		models.StatusReviewing, models.StatusArchived, models.StatusFailed,
	},
	models.StatusPaused: {
		models.StatusActive, models.StatusTesting,
		models.StatusArchived, models.StatusFailed,
	},
	models.StatusWaiting: {
		models.StatusActive, models.StatusReviewing,
		models.StatusArchived, models.StatusFailed,
	},
	models.StatusReviewing: {
		models.StatusActive, models.StatusConsolidating,
		models.StatusArchived, models.StatusFailed,
	},
	models.StatusSpawningChild: {
		models.StatusActive, models.StatusArchived, models.StatusFailed,
	},
	models.StatusConsolidating: {
		models.StatusActive, models.StatusMerged,
		models.StatusArchived, models.StatusFailed,
	},
	models.StatusMerged:   {},
	models.StatusArchived: {},
	models.StatusFailed:   {},
}

// initialStatuses are the statuses a context may be created with.
var initialStatuses = []models.ContextStatus{models.StatusActive, models.StatusTesting}

// ValidStatus reports whether s is one of the ten known statuses.
func ValidStatus(s models.ContextStatus) bool {
	_, ok := allowedTransitions[s]
	return ok
}

// ValidInitialStatus reports whether a context may be created with status s.
func ValidInitialStatus(s models.ContextStatus) bool {
	for _, is := range initialStatuses {
		if s == is {
			return true
		}
	}
	return false
}

// CanTransition reports whether the state machine permits moving from one
// status to another.
func CanTransition(from, to models.ContextStatus) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
