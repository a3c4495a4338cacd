package primary

import (
	"context"

	"github.com/example/sidebar/internal/models"
)

// CrossRefService defines the primary port for the cross-reference graph.
// Edges are directed and always mirrored; revocation marks, never deletes.
type CrossRefService interface {
	// Add creates an edge and its mirror. Enum fields are validated before
	// any write. Repeated suggestions from distinct sources feed consensus
	// clustering.
	Add(ctx context.Context, req AddCrossRefRequest) (*CrossRefView, error)

	// Update mutates edge metadata in place.
	Update(ctx context.Context, req UpdateCrossRefRequest) error

	// Revoke marks an edge (and its mirror) revoked with a mandatory
	// reason. The record is retained.
	Revoke(ctx context.Context, req RevokeCrossRefRequest) error

	// Validate records a human verdict, appending to the edge's validation
	// history.
	Validate(ctx context.Context, req ValidateCrossRefRequest) error

	// Query returns edges touching a context, filtered by type and minimum
	// strength.
	Query(ctx context.Context, req QueryCrossRefsRequest) ([]*CrossRefView, error)

	// ListClusterFlagged returns edges flagged by consensus clustering.
	ListClusterFlagged(ctx context.Context) ([]*CrossRefView, error)

	// ListPendingValidations returns unrevoked, unvalidated edges, urgent
	// first.
	ListPendingValidations(ctx context.Context) ([]*CrossRefView, error)
}

// AddCrossRefRequest contains parameters for creating a cross-ref.
type AddCrossRefRequest struct {
	SourceShortID   string
	TargetShortID   string
	RefType         models.RefType
	Strength        models.Strength
	Confidence      float64
	Reason          string
	DiscoveryMethod string
	SuggestedBy     string // originating source for consensus clustering
}

// UpdateCrossRefRequest mutates metadata on an existing edge. Zero values
// leave fields unchanged; ConfidenceSet guards the float.
type UpdateCrossRefRequest struct {
	SourceShortID string
	TargetShortID string
	Strength      models.Strength
	Confidence    float64
	ConfidenceSet bool
	Reason        string
}

// RevokeCrossRefRequest marks an edge revoked.
type RevokeCrossRefRequest struct {
	SourceShortID          string
	TargetShortID          string
	Reason                 string
	ReplacementRefs        []string
	CorrectedUnderstanding string
}

// ValidateCrossRefRequest records a human verdict.
type ValidateCrossRefRequest struct {
	SourceShortID string
	TargetShortID string
	State         models.ValidationState
	Notes         string
}

// QueryCrossRefsRequest selects edges touching ShortID. Mirror edges are
/// always included: querying the target of a directed edge returns the edge
// back to its source.
type QueryCrossRefsRequest struct {
	ShortID        string
	RefType        models.RefType  // empty means all
	MinStrength    models.Strength // empty means all
	IncludeRevoked bool
}

// CrossRefView represents an edge at the port boundary.
type CrossRefView struct {
	SourceShortID      string
	TargetShortID      string
	RefType            models.RefType
	Strength           models.Strength
	Confidence         float64
	Reason             string
	DiscoveryMethod    string
	Mirror             bool
	HumanValidated     models.ValidationState
	ValidationPriority string
	ValidationCount    int
	SuggestionCount    int
	ClusterFlagged     bool
	Revoked            bool
	RevokedReason      string
	CreatedAt          string
}
