// Package crossref contains the pure business logic for cross-reference
// edges: eager enum validation, strength ordering, and consensus clustering.
// This is part of the functional core - no I/O, only pure functions.
package crossref

import (
	"fmt"

	"github.com/example/sidebar/internal/models"
)

// ClusterThreshold is the number of distinct suggesting sources that flags a
// cross-ref for consensus. A heuristic, not proof.
const ClusterThreshold = 3

// strengthOrder fixes the ordering used for min-strength filtering.
var strengthOrder = []models.Strength{
	models.StrengthSpeculative,
	models.StrengthWeak,
	models.StrengthNormal,
	models.StrengthStrong,
	models.StrengthDefinitive,
}

var refTypes = map[models.RefType]bool{
	models.RefCites:       true,
	models.RefRelatedTo:   true,
	models.RefDerivedFrom: true,
	models.RefContradicts: true,
	models.RefSupersedes:  true,
	models.RefObsoletes:   true,
	models.RefImplements:  true,
	models.RefBlocks:      true,
	models.RefDependsOn:   true,
	models.RefInforms:     true,
}

// ValidRefType reports whether t is one of the ten known ref types.
func ValidRefType(t models.RefType) bool {
	return refTypes[t]
}

// StrengthRank returns the position of s in the fixed strength order, or -1
// for an unknown strength.
func StrengthRank(s models.Strength) int {
	for i, known := range strengthOrder {
		if s == known {
			return i
		}
	}
	return -1
}

// ValidStrength reports whether s is a known strength.
func ValidStrength(s models.Strength) bool {
	return StrengthRank(s) >= 0
}

// MeetsMinStrength reports whether s is at least min in the fixed order.
// An empty min matches everything.
func MeetsMinStrength(s, min models.Strength) bool {
	if min == "" {
		return true
	}
	return StrengthRank(s) >= StrengthRank(min)
}

// ValidValidationState reports whether v is an accepted human verdict.
func ValidValidationState(v models.ValidationState) bool {
	switch v {
	case models.ValidationTrue, models.ValidationFalse, models.ValidationNotSure:
		return true
	}
	return false
}

// ValidateNew checks every enum field of a prospective cross-ref before any
// write happens. Returns a descriptive error naming the first bad field.
func ValidateNew(refType models.RefType, strength models.Strength, confidence float64) error {
	if !ValidRefType(refType) {
		return fmt.Errorf("unknown ref_type %q", refType)
	}
	if !ValidStrength(strength) {
		return fmt.Errorf("unknown strength %q", strength)
	}
	if confidence < 0 || confidence > 1 {
		return fmt.Errorf("confidence %g outside [0,1]", confidence)
	}
	return nil
}

// RecordSuggestion appends source to the suggestion list unless that source
// already suggested this edge. Returns the updated list and whether the
// distinct-source count now meets the cluster threshold.
func RecordSuggestion(existing []models.SuggestedSource, suggestion models.SuggestedSource) ([]models.SuggestedSource, bool) {
	for _, s := range existing {
		if s.SourceID == suggestion.SourceID {
			return existing, len(existing) >= ClusterThreshold
		}
	}
	updated := append(append([]models.SuggestedSource(nil), existing...), suggestion)
	return updated, len(updated) >= ClusterThreshold
}
