package app

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	corecrossref "github.com/example/sidebar/internal/core/crossref"
	"github.com/example/sidebar/internal/models"
	"github.com/example/sidebar/internal/oerr"
	"github.com/example/sidebar/internal/ports/primary"
	"github.com/example/sidebar/internal/ports/secondary"
)

// CrossRefServiceImpl implements the CrossRefService interface. Cross-refs
// live inside context snapshots, so the service works through the
// orchestrator's context map and commit path: every edge mutation touches
// both endpoint snapshots and lands atomically with its audit entries.
type CrossRefServiceImpl struct {
	orch *OrchestratorServiceImpl
}

// NewCrossRefService creates a new CrossRefService sharing the
// orchestrator's state.
func NewCrossRefService(orch *OrchestratorServiceImpl) *CrossRefServiceImpl {
	return &CrossRefServiceImpl{orch: orch}
}

// Add creates a directed edge and its mirror on the target. Enum fields are
// validated before any write. Adding an edge that already exists records
// another suggestion instead; three distinct suggesting sources flag the
// edge for consensus review.
func (s *CrossRefServiceImpl) Add(ctx context.Context, req primary.AddCrossRefRequest) (*primary.CrossRefView, error) {
	if err := corecrossref.ValidateNew(req.RefType, req.Strength, req.Confidence); err != nil {
		return nil, &oerr.ValidationError{Field: "cross_ref", Reason: err.Error()}
	}
	if req.SourceShortID == req.TargetShortID {
		return nil, &oerr.ValidationError{Field: "target", Reason: "cannot cross-reference a context with itself"}
	}

	o := s.orch
	o.mu.Lock()
	defer o.mu.Unlock()

	source, err := o.resolveLocked(req.SourceShortID)
	if err != nil {
		return nil, err
	}
	target, err := o.resolveLocked(req.TargetShortID)
	if err != nil {
		return nil, err
	}

	actor := actorFrom(ctx)
	suggestedBy := req.SuggestedBy
	if suggestedBy == "" {
		suggestedBy = actor
	}
	now := time.Now()

	if existing := source.CrossRefs[target.ID]; existing != nil {
		if existing.Revoked {
			return nil, &oerr.ValidationError{Field: "cross_ref", Reason: fmt.Sprintf("edge %s -> %s is revoked; revoked records are retained, not reused", source.ShortID, target.ShortID)}
		}
		return s.recordSuggestionLocked(ctx, source, target, suggestedBy, now)
	}

	ref := &models.CrossRefMetadata{
		SourceID:        source.ID,
		TargetID:        target.ID,
		RefType:         req.RefType,
		Strength:        req.Strength,
		Confidence:      req.Confidence,
		DiscoveryMethod: req.DiscoveryMethod,
		Reason:          req.Reason,
		SuggestedSources: []models.SuggestedSource{
			{SourceID: suggestedBy, SuggestedAt: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	mirror := ref.Clone()
	mirror.SourceID = target.ID
	mirror.TargetID = source.ID
	mirror.Mirror = true

	srcClone := source.Clone()
	srcClone.CrossRefs[target.ID] = ref
	srcClone.LastActivity = now
	tgtClone := target.Clone()
	tgtClone.CrossRefs[source.ID] = mirror
	tgtClone.LastActivity = now

	entries := []*models.AuditEntry{
		newEntry(models.EventCrossRefAdded, source.ID, actor, map[string]any{
			"target_id": target.ID,
			"ref":       ref,
		}),
		newEntry(models.EventCrossRefAdded, target.ID, actor, map[string]any{
			"target_id": source.ID,
			"ref":       mirror,
		}),
	}

	batch := secondary.CommitBatch{Contexts: []*models.Context{srcClone, tgtClone}, Entries: entries}
	if err := o.commitLocked(ctx, "add_cross_ref", srcClone, batch, func() {
		o.contexts[srcClone.ID] = srcClone
		o.contexts[tgtClone.ID] = tgtClone
	}); err != nil {
		return nil, err
	}

	o.emit(models.EventCrossRefAdded, source.ShortID)
	return s.viewLocked(source.ShortID, target.ShortID, ref), nil
}

// recordSuggestionLocked handles Add on an edge that already exists: the
// caller becomes another suggesting source and the edge may cross the
// consensus threshold. Callers must hold o.mu.
func (s *CrossRefServiceImpl) recordSuggestionLocked(ctx context.Context, source, target *models.Context, suggestedBy string, now time.Time) (*primary.CrossRefView, error) {
	o := s.orch

	srcClone := source.Clone()
	tgtClone := target.Clone()
	ref := srcClone.CrossRefs[target.ID]
	mirror := tgtClone.CrossRefs[source.ID]

	suggestion := models.SuggestedSource{SourceID: suggestedBy, SuggestedAt: now}
	updated, flagged := corecrossref.RecordSuggestion(ref.SuggestedSources, suggestion)
	for _, side := range []*models.CrossRefMetadata{ref, mirror} {
		if side == nil {
			continue
		}
		side.SuggestedSources = updated
		side.ClusterFlagged = flagged
		if flagged {
			side.ValidationPriority = models.ValidationPriorityUrgent
		}
		side.UpdatedAt = now
	}
	srcClone.LastActivity = now
	tgtClone.LastActivity = now

	actor := actorFrom(ctx)
	payload := map[string]any{
		"suggested_source": suggestion,
		"cluster_flagged":  flagged,
	}
	entries := []*models.AuditEntry{
		newEntry(models.EventCrossRefUpdated, source.ID, actor, withTarget(payload, target.ID)),
		newEntry(models.EventCrossRefUpdated, target.ID, actor, withTarget(payload, source.ID)),
	}

	batch := secondary.CommitBatch{Contexts: []*models.Context{srcClone, tgtClone}, Entries: entries}
	if err := o.commitLocked(ctx, "add_cross_ref", srcClone, batch, func() {
		o.contexts[srcClone.ID] = srcClone
		o.contexts[tgtClone.ID] = tgtClone
	}); err != nil {
		return nil, err
	}

	o.emit(models.EventCrossRefUpdated, source.ShortID)
	return s.viewLocked(source.ShortID, target.ShortID, ref), nil
}

// Update mutates edge metadata in place, on both the edge and its mirror.
func (s *CrossRefServiceImpl) Update(ctx context.Context, req primary.UpdateCrossRefRequest) error {
	if req.Strength != "" && !corecrossref.ValidStrength(req.Strength) {
		return &oerr.ValidationError{Field: "strength", Reason: fmt.Sprintf("unknown strength %q", req.Strength)}
	}
	if req.ConfidenceSet && (req.Confidence < 0 || req.Confidence > 1) {
		return &oerr.ValidationError{Field: "confidence", Reason: fmt.Sprintf("confidence %g outside [0,1]", req.Confidence)}
	}

	o := s.orch
	o.mu.Lock()
	defer o.mu.Unlock()

	source, target, err := s.endpointsLocked(req.SourceShortID, req.TargetShortID)
	if err != nil {
		return err
	}
	if err := edgeUsable(source, target); err != nil {
		return err
	}

	now := time.Now()
	srcClone := source.Clone()
	tgtClone := target.Clone()
	payload := map[string]any{}
	for _, side := range []*models.CrossRefMetadata{srcClone.CrossRefs[target.ID], tgtClone.CrossRefs[source.ID]} {
		if side == nil {
			continue
		}
		if req.Strength != "" {
			side.Strength = req.Strength
			payload["strength"] = string(req.Strength)
		}
		if req.ConfidenceSet {
			side.Confidence = req.Confidence
			payload["confidence"] = req.Confidence
		}
		if req.Reason != "" {
			side.Reason = req.Reason
			payload["reason"] = req.Reason
		}
		side.UpdatedAt = now
	}
	srcClone.LastActivity = now
	tgtClone.LastActivity = now

	actor := actorFrom(ctx)
	entries := []*models.AuditEntry{
		newEntry(models.EventCrossRefUpdated, source.ID, actor, withTarget(payload, target.ID)),
		newEntry(models.EventCrossRefUpdated, target.ID, actor, withTarget(payload, source.ID)),
	}

	batch := secondary.CommitBatch{Contexts: []*models.Context{srcClone, tgtClone}, Entries: entries}
	if err := o.commitLocked(ctx, "update_cross_ref", srcClone, batch, func() {
		o.contexts[srcClone.ID] = srcClone
		o.contexts[tgtClone.ID] = tgtClone
	}); err != nil {
		return err
	}

	o.emit(models.EventCrossRefUpdated, source.ShortID)
	return nil
}

// Revoke marks an edge and its mirror revoked with a mandatory reason. The
// records are retained for audit, never deleted.
func (s *CrossRefServiceImpl) Revoke(ctx context.Context, req primary.RevokeCrossRefRequest) error {
	if req.Reason == "" {
		return &oerr.ValidationError{Field: "reason", Reason: "revocation requires a reason"}
	}

	o := s.orch
	o.mu.Lock()
	defer o.mu.Unlock()

	source, target, err := s.endpointsLocked(req.SourceShortID, req.TargetShortID)
	if err != nil {
		return err
	}
	if err := edgeUsable(source, target); err != nil {
		return err
	}

	now := time.Now()
	srcClone := source.Clone()
	tgtClone := target.Clone()
	for _, side := range []*models.CrossRefMetadata{srcClone.CrossRefs[target.ID], tgtClone.CrossRefs[source.ID]} {
		if side == nil {
			continue
		}
		side.Revoked = true
		side.RevokedReason = req.Reason
		revokedAt := now
		side.RevokedAt = &revokedAt
		side.ReplacementRefs = append([]string(nil), req.ReplacementRefs...)
		side.CorrectedUnderstanding = req.CorrectedUnderstanding
		side.UpdatedAt = now
	}
	srcClone.LastActivity = now
	tgtClone.LastActivity = now

	actor := actorFrom(ctx)
	payload := map[string]any{
		"reason":                  req.Reason,
		"replacement_refs":        req.ReplacementRefs,
		"corrected_understanding": req.CorrectedUnderstanding,
	}
	entries := []*models.AuditEntry{
		newEntry(models.EventCrossRefRevoked, source.ID, actor, withTarget(payload, target.ID)),
		newEntry(models.EventCrossRefRevoked, target.ID, actor, withTarget(payload, source.ID)),
	}

	batch := secondary.CommitBatch{Contexts: []*models.Context{srcClone, tgtClone}, Entries: entries}
	if err := o.commitLocked(ctx, "revoke_cross_ref", srcClone, batch, func() {
		o.contexts[srcClone.ID] = srcClone
		o.contexts[tgtClone.ID] = tgtClone
	}); err != nil {
		return err
	}

	o.emit(models.EventCrossRefRevoked, source.ShortID)
	return nil
}

// Validate records a human verdict on an edge, appending to its validation
// history. The edge's confidence at the moment of validation is snapshotted
// alongside the verdict.
func (s *CrossRefServiceImpl) Validate(ctx context.Context, req primary.ValidateCrossRefRequest) error {
	if !corecrossref.ValidValidationState(req.State) {
		return &oerr.ValidationError{Field: "state", Reason: fmt.Sprintf("unknown validation state %q", req.State)}
	}

	o := s.orch
	o.mu.Lock()
	defer o.mu.Unlock()

	source, target, err := s.endpointsLocked(req.SourceShortID, req.TargetShortID)
	if err != nil {
		return err
	}
	if err := edgeUsable(source, target); err != nil {
		return err
	}

	now := time.Now()
	actor := actorFrom(ctx)
	record := models.ValidationRecord{
		ID:          uuid.NewString(),
		State:       req.State,
		Notes:       req.Notes,
		Actor:       actor,
		ValidatedAt: now,
	}

	srcClone := source.Clone()
	tgtClone := target.Clone()
	confidence := srcClone.CrossRefs[target.ID].Confidence
	for _, side := range []*models.CrossRefMetadata{srcClone.CrossRefs[target.ID], tgtClone.CrossRefs[source.ID]} {
		if side == nil {
			continue
		}
		side.ValidationHistory = append(side.ValidationHistory, record)
		side.HumanValidated = req.State
		side.ConfidenceAtValidation = &confidence
		side.ValidationPriority = models.ValidationPriorityNormal
		side.UpdatedAt = now
	}
	srcClone.LastActivity = now
	tgtClone.LastActivity = now

	payload := map[string]any{
		"record":                   record,
		"confidence_at_validation": confidence,
	}
	entries := []*models.AuditEntry{
		newEntry(models.EventCrossRefValidated, source.ID, actor, withTarget(payload, target.ID)),
		newEntry(models.EventCrossRefValidated, target.ID, actor, withTarget(payload, source.ID)),
	}

	batch := secondary.CommitBatch{Contexts: []*models.Context{srcClone, tgtClone}, Entries: entries}
	if err := o.commitLocked(ctx, "validate_cross_ref", srcClone, batch, func() {
		o.contexts[srcClone.ID] = srcClone
		o.contexts[tgtClone.ID] = tgtClone
	}); err != nil {
		return err
	}

	o.emit(models.EventCrossRefValidated, source.ShortID)
	return nil
}

// Query returns every edge touching a context, mirrors included, filtered
// by type and minimum strength. Revoked edges are hidden unless asked for.
func (s *CrossRefServiceImpl) Query(ctx context.Context, req primary.QueryCrossRefsRequest) ([]*primary.CrossRefView, error) {
	if req.RefType != "" && !corecrossref.ValidRefType(req.RefType) {
		return nil, &oerr.ValidationError{Field: "ref_type", Reason: fmt.Sprintf("unknown ref_type %q", req.RefType)}
	}
	if req.MinStrength != "" && !corecrossref.ValidStrength(req.MinStrength) {
		return nil, &oerr.ValidationError{Field: "min_strength", Reason: fmt.Sprintf("unknown strength %q", req.MinStrength)}
	}

	o := s.orch
	o.mu.Lock()
	defer o.mu.Unlock()

	c, err := o.resolveLocked(req.ShortID)
	if err != nil {
		return nil, err
	}

	var views []*primary.CrossRefView
	for _, ref := range c.CrossRefs {
		if ref.Revoked && !req.IncludeRevoked {
			continue
		}
		if req.RefType != "" && ref.RefType != req.RefType {
			continue
		}
		if !corecrossref.MeetsMinStrength(ref.Strength, req.MinStrength) {
			continue
		}
		sourceShort, _ := o.registry.ShortFor(ref.SourceID)
		targetShort, _ := o.registry.ShortFor(ref.TargetID)
		views = append(views, s.viewLocked(sourceShort, targetShort, ref))
	}
	sort.Slice(views, func(i, j int) bool {
		return shortNumber(views[i].TargetShortID) < shortNumber(views[j].TargetShortID)
	})
	return views, nil
}

// ListClusterFlagged returns edges flagged by consensus clustering.
func (s *CrossRefServiceImpl) ListClusterFlagged(ctx context.Context) ([]*primary.CrossRefView, error) {
	return s.scan(func(ref *models.CrossRefMetadata) bool {
		return ref.ClusterFlagged && !ref.Revoked
	})
}

// ListPendingValidations returns unrevoked, unvalidated edges, urgent
// first.
func (s *CrossRefServiceImpl) ListPendingValidations(ctx context.Context) ([]*primary.CrossRefView, error) {
	views, err := s.scan(func(ref *models.CrossRefMetadata) bool {
		return !ref.Revoked && ref.HumanValidated == ""
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(views, func(i, j int) bool {
		ui := views[i].ValidationPriority == models.ValidationPriorityUrgent
		uj := views[j].ValidationPriority == models.ValidationPriorityUrgent
		return ui && !uj
	})
	return views, nil
}

// scan walks every context's non-mirror edges and collects those matching
// the predicate, ordered by source then target short id.
func (s *CrossRefServiceImpl) scan(match func(*models.CrossRefMetadata) bool) ([]*primary.CrossRefView, error) {
	o := s.orch
	o.mu.Lock()
	defer o.mu.Unlock()

	var views []*primary.CrossRefView
	for _, c := range o.contexts {
		for _, ref := range c.CrossRefs {
			if ref.Mirror || !match(ref) {
				continue
			}
			sourceShort, _ := o.registry.ShortFor(ref.SourceID)
			targetShort, _ := o.registry.ShortFor(ref.TargetID)
			views = append(views, s.viewLocked(sourceShort, targetShort, ref))
		}
	}
	sort.Slice(views, func(i, j int) bool {
		if views[i].SourceShortID != views[j].SourceShortID {
			return shortNumber(views[i].SourceShortID) < shortNumber(views[j].SourceShortID)
		}
		return shortNumber(views[i].TargetShortID) < shortNumber(views[j].TargetShortID)
	})
	return views, nil
}

// endpointsLocked resolves both ends of an edge reference. Callers must
// hold o.mu.
func (s *CrossRefServiceImpl) endpointsLocked(sourceShort, targetShort string) (*models.Context, *models.Context, error) {
	source, err := s.orch.resolveLocked(sourceShort)
	if err != nil {
		return nil, nil, err
	}
	target, err := s.orch.resolveLocked(targetShort)
	if err != nil {
		return nil, nil, err
	}
	return source, target, nil
}

// edgeUsable checks that a live (non-revoked) edge exists from source to
// target.
func edgeUsable(source, target *models.Context) error {
	ref := source.CrossRefs[target.ID]
	if ref == nil {
		return &oerr.NotFoundError{Kind: "cross-ref", ID: fmt.Sprintf("%s -> %s", source.ShortID, target.ShortID)}
	}
	if ref.Revoked {
		return &oerr.ValidationError{Field: "cross_ref", Reason: fmt.Sprintf("edge %s -> %s is revoked", source.ShortID, target.ShortID)}
	}
	return nil
}

func (s *CrossRefServiceImpl) viewLocked(sourceShort, targetShort string, ref *models.CrossRefMetadata) *primary.CrossRefView {
	return &primary.CrossRefView{
		SourceShortID:      sourceShort,
		TargetShortID:      targetShort,
		RefType:            ref.RefType,
		Strength:           ref.Strength,
		Confidence:         ref.Confidence,
		Reason:             ref.Reason,
		DiscoveryMethod:    ref.DiscoveryMethod,
		Mirror:             ref.Mirror,
		HumanValidated:     ref.HumanValidated,
		ValidationPriority: ref.ValidationPriority,
		ValidationCount:    len(ref.ValidationHistory),
		SuggestionCount:    len(ref.SuggestedSources),
		ClusterFlagged:     ref.ClusterFlagged,
		Revoked:            ref.Revoked,
		RevokedReason:      ref.RevokedReason,
		CreatedAt:          ref.CreatedAt.Format(time.RFC3339),
	}
}

// withTarget copies payload with the per-side target id added.
func withTarget(payload map[string]any, targetID string) map[string]any {
	out := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		out[k] = v
	}
	out["target_id"] = targetID
	return out
}
