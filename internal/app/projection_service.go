package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	corelayout "github.com/example/sidebar/internal/core/layout"
	"github.com/example/sidebar/internal/models"
	"github.com/example/sidebar/internal/oerr"
	"github.com/example/sidebar/internal/ports/primary"
	"github.com/example/sidebar/internal/ports/secondary"
)

// Session keys for projection state.
const (
	layoutKey  = "graph_layout"
	cushionKey = "graph_cushion"
	grabsKey   = "graph_grabs"
)

// ProjectionServiceImpl implements the ProjectionService interface: a
// read-only, force-directed view of the context forest and its cross-refs.
// The projection never mutates contexts; its own state (positions, staging
// cushion, advisory grabs) lives in the session store.
type ProjectionServiceImpl struct {
	orch *OrchestratorServiceImpl
}

// NewProjectionService creates a new ProjectionService sharing the
// orchestrator's state.
func NewProjectionService(orch *OrchestratorServiceImpl) *ProjectionServiceImpl {
	return &ProjectionServiceImpl{orch: orch}
}

// Render computes the current projection. Points new since the last render
// enter the staging cushion unless auto-place is configured; placed points
// are relaxed a few iterations per render so the board settles gradually.
func (s *ProjectionServiceImpl) Render(ctx context.Context, req primary.RenderRequest) (*primary.GraphView, error) {
	o := s.orch
	o.mu.Lock()
	defer o.mu.Unlock()

	pointIDs, edges := s.topologyLocked()

	positions := make(map[string]corelayout.Position)
	if err := s.loadJSON(ctx, layoutKey, &positions); err != nil {
		return nil, err
	}
	var staged []string
	if err := s.loadJSON(ctx, cushionKey, &staged); err != nil {
		return nil, err
	}
	grabs := make(map[string]string)
	if err := s.loadJSON(ctx, grabsKey, &grabs); err != nil {
		return nil, err
	}

	live := make(map[string]bool, len(pointIDs))
	for _, id := range pointIDs {
		live[id] = true
	}
	cushion := staged[:0]
	for _, id := range staged {
		if live[id] {
			cushion = append(cushion, id)
		}
	}
	inCushion := make(map[string]bool, len(cushion))
	for _, id := range cushion {
		inCushion[id] = true
	}

	for i, id := range pointIDs {
		if _, placed := positions[id]; placed || inCushion[id] {
			continue
		}
		if o.cfg.AutoPlace {
			positions[id] = corelayout.Seed(i, len(pointIDs))
		} else {
			cushion = append(cushion, id)
			inCushion[id] = true
		}
	}

	layoutEdges := make([]corelayout.Edge, 0, len(edges))
	for _, e := range edges {
		layoutEdges = append(layoutEdges, corelayout.Edge{A: e.From, B: e.To})
	}
	iterations := req.Relax
	if iterations <= 0 {
		iterations = o.cfg.RelaxIterations
	}
	positions = corelayout.Relax(positions, layoutEdges, iterations)

	if err := s.saveJSON(ctx, layoutKey, positions); err != nil {
		return nil, err
	}
	if err := s.saveJSON(ctx, cushionKey, cushion); err != nil {
		return nil, err
	}

	view := &primary.GraphView{Edges: edges, Cushion: append([]string(nil), cushion...)}
	for _, id := range pointIDs {
		point := primary.GraphPoint{
			ID:        id,
			Staged:    inCushion[id],
			GrabbedBy: grabs[id],
		}
		if pos, ok := positions[id]; ok {
			point.X = pos.X
			point.Y = pos.Y
		}
		if req.Expanded {
			point.Meta = s.pointMetaLocked(id)
		}
		view.Points = append(view.Points, point)
	}
	sort.Slice(view.Points, func(i, j int) bool { return view.Points[i].ID < view.Points[j].ID })
	return view, nil
}

// Grab places an advisory claim on a point. Claims never block reads; a
// second claim by a different actor is reported as a collision and spawns a
// joint investigation child under the grabbed context so both actors have a
// place to converge.
func (s *ProjectionServiceImpl) Grab(ctx context.Context, req primary.GrabRequest) (*primary.GrabResponse, error) {
	actor := req.Actor
	if actor == "" {
		actor = actorFrom(ctx)
	}

	o := s.orch
	o.mu.Lock()
	defer o.mu.Unlock()

	grabs := make(map[string]string)
	if err := s.loadJSON(ctx, grabsKey, &grabs); err != nil {
		return nil, err
	}

	holder := grabs[req.PointID]
	if holder == actor && holder != "" {
		return &primary.GrabResponse{PointID: req.PointID, Granted: true, HeldBy: actor}, nil
	}

	if holder != "" {
		// Collision: both actors want the same point. The claim stands,
		// and a shared child context gives the investigation somewhere to
		// happen.
		resp := &primary.GrabResponse{PointID: req.PointID, HeldBy: holder, Collision: true}
		if short, ok := contextPointShort(req.PointID); ok {
			child, err := o.spawnChildLocked(ctx, primary.SpawnChildRequest{
				ParentShortID: short,
				Reason:        fmt.Sprintf("joint investigation: %s and %s both grabbed %s", holder, actor, req.PointID),
				Priority:      models.PriorityHigh,
			})
			if err != nil {
				// The collision report is the answer the caller asked
				// for; a failed convenience spawn must not suppress it.
				resp.SpawnError = err.Error()
			} else {
				resp.JointShortID = child.ShortID
			}
		}
		if err := s.appendPointEntry(ctx, models.EventPointGrabbed, req.PointID, actor, map[string]any{
			"held_by":   holder,
			"collision": true,
		}); err != nil && resp.SpawnError == "" {
			return nil, err
		}
		return resp, nil
	}

	grabs[req.PointID] = actor
	if err := s.saveJSON(ctx, grabsKey, grabs); err != nil {
		return nil, err
	}
	if err := s.appendPointEntry(ctx, models.EventPointGrabbed, req.PointID, actor, nil); err != nil {
		return nil, err
	}
	return &primary.GrabResponse{PointID: req.PointID, Granted: true, HeldBy: actor}, nil
}

// Release drops an advisory claim. Releasing an unclaimed point is a no-op.
func (s *ProjectionServiceImpl) Release(ctx context.Context, pointID string) error {
	o := s.orch
	o.mu.Lock()
	defer o.mu.Unlock()

	grabs := make(map[string]string)
	if err := s.loadJSON(ctx, grabsKey, &grabs); err != nil {
		return err
	}
	if _, held := grabs[pointID]; !held {
		return nil
	}
	delete(grabs, pointID)
	return s.saveJSON(ctx, grabsKey, grabs)
}

// Place moves a point out of the staging cushion onto the board at the
// given coordinates.
func (s *ProjectionServiceImpl) Place(ctx context.Context, req primary.PlaceRequest) error {
	o := s.orch
	o.mu.Lock()
	defer o.mu.Unlock()

	var cushion []string
	if err := s.loadJSON(ctx, cushionKey, &cushion); err != nil {
		return err
	}
	found := false
	for i, id := range cushion {
		if id == req.PointID {
			cushion = append(cushion[:i], cushion[i+1:]...)
			found = true
			break
		}
	}
	if !found {
		return &oerr.NotFoundError{Kind: "staged point", ID: req.PointID}
	}

	positions := make(map[string]corelayout.Position)
	if err := s.loadJSON(ctx, layoutKey, &positions); err != nil {
		return err
	}
	positions[req.PointID] = corelayout.Position{X: req.X, Y: req.Y}

	if err := s.saveJSON(ctx, layoutKey, positions); err != nil {
		return err
	}
	if err := s.saveJSON(ctx, cushionKey, cushion); err != nil {
		return err
	}
	return s.appendPointEntry(ctx, models.EventPointPlaced, req.PointID, actorFrom(ctx), map[string]any{
		"x": req.X,
		"y": req.Y,
	})
}

// Cushion lists staged points awaiting explicit placement.
func (s *ProjectionServiceImpl) Cushion(ctx context.Context) ([]string, error) {
	o := s.orch
	o.mu.Lock()
	defer o.mu.Unlock()

	var cushion []string
	if err := s.loadJSON(ctx, cushionKey, &cushion); err != nil {
		return nil, err
	}
	return cushion, nil
}

// topologyLocked derives the projection's points and edges from live state:
// one point per context, one point per non-mirror live cross-ref, tree
// edges along parent pointers and a two-segment path through each cross-ref
// point. Callers must hold o.mu.
func (s *ProjectionServiceImpl) topologyLocked() ([]string, []primary.GraphEdge) {
	o := s.orch

	var pointIDs []string
	var edges []primary.GraphEdge
	for _, c := range o.contexts {
		pointIDs = append(pointIDs, "context:"+c.ShortID)
		if c.ParentID != "" {
			if parentShort, ok := o.registry.ShortFor(c.ParentID); ok {
				edges = append(edges, primary.GraphEdge{
					From: "context:" + parentShort,
					To:   "context:" + c.ShortID,
					Kind: "tree",
				})
			}
		}
		for _, ref := range c.CrossRefs {
			if ref.Mirror || ref.Revoked {
				continue
			}
			sourceShort, _ := o.registry.ShortFor(ref.SourceID)
			targetShort, _ := o.registry.ShortFor(ref.TargetID)
			refPoint := crossRefPointID(sourceShort, targetShort)
			pointIDs = append(pointIDs, refPoint)
			edges = append(edges, primary.GraphEdge{From: "context:" + sourceShort, To: refPoint, Kind: "crossref"})
			edges = append(edges, primary.GraphEdge{From: refPoint, To: "context:" + targetShort, Kind: "crossref"})
		}
	}
	sort.Strings(pointIDs)
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		return edges[i].To < edges[j].To
	})
	return pointIDs, edges
}

// pointMetaLocked inlines full metadata for one point in expanded mode.
func (s *ProjectionServiceImpl) pointMetaLocked(pointID string) map[string]any {
	o := s.orch

	if short, ok := contextPointShort(pointID); ok {
		internal, ok := o.registry.Resolve(short)
		if !ok {
			return nil
		}
		c := o.contexts[internal]
		return map[string]any{
			"status":    string(c.Status),
			"priority":  c.Priority,
			"task":      c.TaskDescription,
			"inherited": len(c.InheritedMemory),
			"local":     len(c.LocalMemory),
		}
	}

	parts := strings.Split(pointID, ":")
	if len(parts) != 3 || parts[0] != "crossref" {
		return nil
	}
	sourceInternal, ok := o.registry.Resolve(parts[1])
	if !ok {
		return nil
	}
	targetInternal, ok := o.registry.Resolve(parts[2])
	if !ok {
		return nil
	}
	// The sorted pair may run opposite to the edge's direction; prefer the
	// non-mirror side.
	var ref *models.CrossRefMetadata
	if source := o.contexts[sourceInternal]; source != nil {
		ref = source.CrossRefs[targetInternal]
	}
	if ref == nil || ref.Mirror {
		if target := o.contexts[targetInternal]; target != nil {
			if reverse := target.CrossRefs[sourceInternal]; reverse != nil && !reverse.Mirror {
				ref = reverse
			}
		}
	}
	if ref == nil {
		return nil
	}
	return map[string]any{
		"ref_type":   string(ref.RefType),
		"strength":   string(ref.Strength),
		"confidence": ref.Confidence,
		"validated":  string(ref.HumanValidated),
	}
}

// appendPointEntry commits an entry-only batch recording a projection
// interaction. Context points attribute the entry to their context.
func (s *ProjectionServiceImpl) appendPointEntry(ctx context.Context, event models.EventType, pointID, actor string, extra map[string]any) error {
	contextID := ""
	if short, ok := contextPointShort(pointID); ok {
		if internal, ok := s.orch.registry.Resolve(short); ok {
			contextID = internal
		}
	}
	payload := map[string]any{"point_id": pointID}
	for k, v := range extra {
		payload[k] = v
	}
	entry := newEntry(event, contextID, actor, payload)
	if err := s.orch.store.Commit(ctx, secondary.CommitBatch{Entries: []*models.AuditEntry{entry}}); err != nil {
		return fmt.Errorf("failed to record %s: %w", event, err)
	}
	return nil
}

func (s *ProjectionServiceImpl) loadJSON(ctx context.Context, key string, v any) error {
	raw, err := s.orch.session.Get(ctx, key)
	if err != nil {
		if oerr.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}

func (s *ProjectionServiceImpl) saveJSON(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := s.orch.session.Set(ctx, key, string(raw)); err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}

// contextPointShort extracts the short id from a "context:{short}" point.
func contextPointShort(pointID string) (string, bool) {
	short, ok := strings.CutPrefix(pointID, "context:")
	return short, ok
}

// crossRefPointID names the shared point for an edge pair, endpoints
// sorted so the edge and its mirror map to the same point.
func crossRefPointID(a, b string) string {
	if shortNumber(b) < shortNumber(a) {
		a, b = b, a
	}
	return fmt.Sprintf("crossref:%s:%s", a, b)
}
