package app

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/example/sidebar/internal/models"
)

// replayContext reconstructs a context snapshot purely from its audit
// entries, in seq order, starting from genesis. Every mutating operation
// records enough payload to be re-applied, so the rebuilt snapshot must
// match the persisted one field for field (volatile timestamps aside).
func replayContext(id string, entries []*models.AuditEntry) (*models.Context, error) {
	c := &models.Context{
		ID:        id,
		CrossRefs: make(map[string]*models.CrossRefMetadata),
	}
	for _, entry := range entries {
		if err := applyEntry(c, entry); err != nil {
			return nil, fmt.Errorf("entry %s (%s): %w", entry.ID, entry.EventType, err)
		}
	}
	return c, nil
}

func applyEntry(c *models.Context, entry *models.AuditEntry) error {
	p := entry.Payload
	switch entry.EventType {
	case models.EventContextCreated:
		c.ShortID = payloadString(p, "short_id")
		c.ParentID = payloadString(p, "parent_id")
		c.ForkedFrom = payloadString(p, "forked_from")
		c.Status = models.ContextStatus(payloadString(p, "status"))
		c.Priority = payloadString(p, "priority")
		c.TaskDescription = payloadString(p, "task")
		c.SuccessCriteria = payloadString(p, "criteria")
		if raw, ok := p["inherited_memory"]; ok {
			if err := decodeInto(raw, &c.InheritedMemory); err != nil {
				return err
			}
		}
		if created := payloadString(p, "created_at"); created != "" {
			t, err := time.Parse(time.RFC3339Nano, created)
			if err != nil {
				return fmt.Errorf("bad created_at: %w", err)
			}
			c.CreatedAt = t
		}

	case models.EventChildSpawned:
		if childID := payloadString(p, "child_id"); childID != "" && !c.HasChild(childID) {
			c.ChildrenIDs = append(c.ChildrenIDs, childID)
		}

	case models.EventStatusChanged:
		c.Status = models.ContextStatus(payloadString(p, "to"))

	case models.EventMemoryAppended:
		var exchanges []models.Exchange
		if err := decodeInto(p["exchanges"], &exchanges); err != nil {
			return err
		}
		c.LocalMemory = append(c.LocalMemory, exchanges...)

	case models.EventContextMerged:
		c.Status = models.StatusMerged

	case models.EventContextArchived:
		c.Status = models.StatusArchived

	case models.EventContextFailed:
		c.Status = models.StatusFailed
		c.FailureReason = payloadString(p, "reason")

	case models.EventReparent:
		if _, moved := p["new_parent_id"]; moved {
			c.ParentID = payloadString(p, "new_parent_id")
			if orig := payloadString(p, "original_root_id"); orig != "" {
				c.OriginalRootID = orig
			}
		}
		if removed := payloadString(p, "removed_child_id"); removed != "" {
			c.RemoveChild(removed)
		}
		if added := payloadString(p, "added_child_id"); added != "" && !c.HasChild(added) {
			c.ChildrenIDs = append(c.ChildrenIDs, added)
		}

	case models.EventCrossRefAdded:
		var ref models.CrossRefMetadata
		if err := decodeInto(p["ref"], &ref); err != nil {
			return err
		}
		c.CrossRefs[payloadString(p, "target_id")] = &ref

	case models.EventCrossRefUpdated:
		ref := c.CrossRefs[payloadString(p, "target_id")]
		if ref == nil {
			return fmt.Errorf("update for unknown cross-ref target %s", payloadString(p, "target_id"))
		}
		if v, ok := p["strength"]; ok {
			ref.Strength = models.Strength(fmt.Sprint(v))
		}
		if v, ok := p["confidence"]; ok {
			if err := decodeInto(v, &ref.Confidence); err != nil {
				return err
			}
		}
		if v, ok := p["reason"]; ok {
			ref.Reason = fmt.Sprint(v)
		}
		if raw, ok := p["suggested_source"]; ok {
			var source models.SuggestedSource
			if err := decodeInto(raw, &source); err != nil {
				return err
			}
			ref.SuggestedSources, _ = appendSource(ref.SuggestedSources, source)
		}
		if v, ok := p["cluster_flagged"]; ok {
			if flagged, _ := v.(bool); flagged {
				ref.ClusterFlagged = true
				ref.ValidationPriority = models.ValidationPriorityUrgent
			}
		}

	case models.EventCrossRefRevoked:
		ref := c.CrossRefs[payloadString(p, "target_id")]
		if ref == nil {
			return fmt.Errorf("revoke for unknown cross-ref target %s", payloadString(p, "target_id"))
		}
		ref.Revoked = true
		ref.RevokedReason = payloadString(p, "reason")
		revokedAt := entry.Timestamp
		ref.RevokedAt = &revokedAt
		if err := decodeInto(p["replacement_refs"], &ref.ReplacementRefs); err != nil {
			return err
		}
		ref.CorrectedUnderstanding = payloadString(p, "corrected_understanding")

	case models.EventCrossRefValidated:
		ref := c.CrossRefs[payloadString(p, "target_id")]
		if ref == nil {
			return fmt.Errorf("validation for unknown cross-ref target %s", payloadString(p, "target_id"))
		}
		var record models.ValidationRecord
		if err := decodeInto(p["record"], &record); err != nil {
			return err
		}
		ref.ValidationHistory = append(ref.ValidationHistory, record)
		ref.HumanValidated = record.State
		if v, ok := p["confidence_at_validation"]; ok {
			var confidence float64
			if err := decodeInto(v, &confidence); err != nil {
				return err
			}
			ref.ConfidenceAtValidation = &confidence
		}
		ref.ValidationPriority = models.ValidationPriorityNormal

	case models.EventFocusChanged, models.EventPointGrabbed, models.EventPointPlaced:
		// Session and projection events leave the snapshot untouched.

	default:
		return fmt.Errorf("unknown event type %s", entry.EventType)
	}
	return nil
}

// diffContext compares a replayed context against the persisted snapshot
// and returns one discrepancy string per mismatched field. Volatile fields
// (last activity) are ignored.
func diffContext(replayed, snapshot *models.Context) []string {
	var diffs []string
	diff := func(field string, got, want any) {
		if fmt.Sprint(got) != fmt.Sprint(want) {
			diffs = append(diffs, fmt.Sprintf("%s: replay %v, snapshot %v", field, got, want))
		}
	}

	diff("short_id", replayed.ShortID, snapshot.ShortID)
	diff("parent_id", replayed.ParentID, snapshot.ParentID)
	diff("forked_from", replayed.ForkedFrom, snapshot.ForkedFrom)
	diff("original_root_id", replayed.OriginalRootID, snapshot.OriginalRootID)
	diff("status", replayed.Status, snapshot.Status)
	diff("priority", replayed.Priority, snapshot.Priority)
	diff("task", replayed.TaskDescription, snapshot.TaskDescription)
	diff("criteria", replayed.SuccessCriteria, snapshot.SuccessCriteria)
	diff("failure_reason", replayed.FailureReason, snapshot.FailureReason)
	diff("children", sortedCopy(replayed.ChildrenIDs), sortedCopy(snapshot.ChildrenIDs))
	diff("inherited_memory", memorySummary(replayed.InheritedMemory), memorySummary(snapshot.InheritedMemory))
	diff("local_memory", memorySummary(replayed.LocalMemory), memorySummary(snapshot.LocalMemory))
	diff("cross_refs", crossRefSummary(replayed.CrossRefs), crossRefSummary(snapshot.CrossRefs))
	return diffs
}

func sortedCopy(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.Strings(out)
	return out
}

func memorySummary(exchanges []models.Exchange) string {
	parts := make([]string, len(exchanges))
	for i, e := range exchanges {
		parts[i] = e.Role + "=" + e.Content
	}
	return fmt.Sprint(parts)
}

func crossRefSummary(refs map[string]*models.CrossRefMetadata) string {
	keys := make([]string, 0, len(refs))
	for k := range refs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		r := refs[k]
		parts = append(parts, fmt.Sprintf("%s{%s %s mirror=%t revoked=%t flagged=%t validated=%s history=%d sources=%d}",
			k, r.RefType, r.Strength, r.Mirror, r.Revoked, r.ClusterFlagged, r.HumanValidated,
			len(r.ValidationHistory), len(r.SuggestedSources)))
	}
	return fmt.Sprint(parts)
}

func appendSource(existing []models.SuggestedSource, source models.SuggestedSource) ([]models.SuggestedSource, bool) {
	for _, s := range existing {
		if s.SourceID == source.SourceID {
			return existing, false
		}
	}
	return append(existing, source), true
}

func payloadString(p map[string]any, key string) string {
	if v, ok := p[key]; ok && v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// decodeInto re-marshals a payload value into a typed destination. Payloads
// round-trip through JSON in the audit table, so values may arrive either
// as typed structs (fresh writes) or generic maps (reloaded entries).
func decodeInto(raw, dest any) error {
	if raw == nil {
		return nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to re-encode payload value: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to decode payload value: %w", err)
	}
	return nil
}
