package models

import "time"

// RefType classifies the relationship a cross-ref asserts between two contexts.
type RefType string

// Cross-ref type constants.
const (
	RefCites       RefType = "cites"
	RefRelatedTo   RefType = "related_to"
	RefDerivedFrom RefType = "derived_from"
	RefContradicts RefType = "contradicts"
	RefSupersedes  RefType = "supersedes"
	RefObsoletes   RefType = "obsoletes"
	RefImplements  RefType = "implements"
	RefBlocks      RefType = "blocks"
	RefDependsOn   RefType = "depends_on"
	RefInforms     RefType = "informs"
)

// Strength grades how firmly a cross-ref is asserted. The order is fixed and
// used for min-strength filtering.
type Strength string

// Strength constants, weakest to strongest.
const (
	StrengthSpeculative Strength = "speculative"
	StrengthWeak        Strength = "weak"
	StrengthNormal      Strength = "normal"
	StrengthStrong      Strength = "strong"
	StrengthDefinitive  Strength = "definitive"
)

// ValidationState is the human verdict on a cross-ref. Empty means not yet
// reviewed.
type ValidationState string

// Validation state constants.
const (
	ValidationTrue    ValidationState = "true"
	ValidationFalse   ValidationState = "false"
	ValidationNotSure ValidationState = "not_sure"
)

// Validation priority constants.
const (
	ValidationPriorityNormal = "normal"
	ValidationPriorityUrgent = "urgent"
)

// ValidationRecord is one entry in a cross-ref's append-only validation
// history.
type ValidationRecord struct {
	ID          string          `json:"id"`
	State       ValidationState `json:"state"`
	Notes       string          `json:"notes,omitempty"`
	Actor       string          `json:"actor,omitempty"`
	ValidatedAt time.Time       `json:"validated_at"`
}

// SuggestedSource records one originator that independently proposed a
// cross-ref. Three distinct originators trigger consensus flagging.
type SuggestedSource struct {
	SourceID    string    `json:"source_id"`
	SuggestedAt time.Time `json:"suggested_at"`
}

// CrossRefMetadata is one directed edge between two contexts, always mirrored
// by a reverse edge on the target. Revocation marks the record, never deletes
// it.
type CrossRefMetadata struct {
	SourceID        string   `json:"source_id"`
	TargetID        string   `json:"target_id"`
	RefType         RefType  `json:"ref_type"`
	Strength        Strength `json:"strength"`
	Confidence      float64  `json:"confidence"`
	DiscoveryMethod string   `json:"discovery_method,omitempty"`
	Reason          string   `json:"reason,omitempty"`
	Mirror          bool     `json:"mirror,omitempty"`

	HumanValidated         ValidationState    `json:"human_validated,omitempty"`
	ValidationHistory      []ValidationRecord `json:"validation_history,omitempty"`
	ConfidenceAtValidation *float64           `json:"confidence_at_validation,omitempty"`
	ValidationPriority     string             `json:"validation_priority,omitempty"`

	SuggestedSources []SuggestedSource `json:"suggested_sources,omitempty"`
	ClusterFlagged   bool              `json:"cluster_flagged,omitempty"`

	Revoked                bool       `json:"revoked,omitempty"`
	RevokedReason          string     `json:"revoked_reason,omitempty"`
	RevokedAt              *time.Time `json:"revoked_at,omitempty"`
	ReplacementRefs        []string   `json:"replacement_refs,omitempty"`
	CorrectedUnderstanding string     `json:"corrected_understanding,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the metadata.
func (m *CrossRefMetadata) Clone() *CrossRefMetadata {
	clone := *m
	clone.ValidationHistory = append([]ValidationRecord(nil), m.ValidationHistory...)
	clone.SuggestedSources = append([]SuggestedSource(nil), m.SuggestedSources...)
	clone.ReplacementRefs = append([]string(nil), m.ReplacementRefs...)
	if m.ConfidenceAtValidation != nil {
		v := *m.ConfidenceAtValidation
		clone.ConfidenceAtValidation = &v
	}
	if m.RevokedAt != nil {
		t := *m.RevokedAt
		clone.RevokedAt = &t
	}
	return &clone
}
