package primary

import "context"

// ProjectionService defines the primary port for the read-only graph
// projection: a positioned, explorable view of contexts and cross-refs
// computed on demand.
type ProjectionService interface {
	// Render computes the current projection. Expanded mode inlines full
	// metadata per point and edge.
	Render(ctx context.Context, req RenderRequest) (*GraphView, error)

	// Grab places an advisory claim on a point. A second claim by a
	// different actor does not fail: it reports the collision and spawns a
	// joint investigation under the grabbed context.
	Grab(ctx context.Context, req GrabRequest) (*GrabResponse, error)

	// Release drops an advisory claim.
	Release(ctx context.Context, pointID string) error

	// Place moves a point out of the staging cushion onto the board.
	Place(ctx context.Context, req PlaceRequest) error

	// Cushion lists staged points awaiting explicit placement.
	Cushion(ctx context.Context) ([]string, error)
}

// RenderRequest selects projection options.
type RenderRequest struct {
	Expanded bool
	Relax    int // layout relaxation iterations; 0 uses the default
}

// GraphPoint is one positioned element of the projection. ID is
// self-describing: "context:{short}" or "crossref:{a}:{b}" with a,b sorted.
type GraphPoint struct {
	ID        string
	X         float64
	Y         float64
	Staged    bool
	GrabbedBy string
	Meta      map[string]any // populated in expanded mode
}

// GraphEdge connects two projection points.
type GraphEdge struct {
	From string
	To   string
	Kind string // "tree" or "crossref"
	Meta map[string]any
}

// GraphView is the rendered projection.
type GraphView struct {
	Points  []GraphPoint
	Edges   []GraphEdge
	Cushion []string
}

// PlaceRequest positions a staged point on the board.
type PlaceRequest struct {
	PointID string
	X       float64
	Y       float64
}

// GrabRequest claims a point for collaborative focus.
type GrabRequest struct {
	PointID string
	Actor   string
}

// GrabResponse reports the claim outcome.
type GrabResponse struct {
	PointID      string
	Granted      bool
	HeldBy       string
	Collision    bool
	JointShortID string // child spawned on collision, if any
	SpawnError   string // why no joint child exists, when the spawn failed
}
