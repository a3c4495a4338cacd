package app

import (
	"context"
	"strings"
	"testing"

	"github.com/example/sidebar/internal/models"
	"github.com/example/sidebar/internal/ports/primary"
)

// workload drives a representative mix of operations through the
// orchestrator and cross-ref service so verification has something real to
// chew on.
func workload(t *testing.T, f *testFixture) {
	t.Helper()
	ctx := context.Background()
	orch := f.orch
	refs := NewCrossRefService(orch)

	root, err := orch.CreateRoot(ctx, primary.CreateRootRequest{Task: "root inquiry", SuccessCriteria: "find the cause"})
	if err != nil {
		t.Fatalf("CreateRoot failed: %v", err)
	}
	for _, ex := range []primary.AppendExchangeRequest{
		{ShortID: root.ShortID, Role: "user", Content: "where does the time go"},
		{ShortID: root.ShortID, Role: "assistant", Content: "profiling suggests the cache"},
	} {
		if err := orch.AppendExchange(ctx, ex); err != nil {
			t.Fatalf("AppendExchange failed: %v", err)
		}
	}

	child, err := orch.SpawnChild(ctx, primary.SpawnChildRequest{ParentShortID: root.ShortID, Reason: "check the cache", InheritLastN: 1})
	if err != nil {
		t.Fatalf("SpawnChild failed: %v", err)
	}
	if err := orch.AppendExchange(ctx, primary.AppendExchangeRequest{ShortID: child.ShortID, Role: "assistant", Content: "hit rate is fine"}); err != nil {
		t.Fatalf("AppendExchange failed: %v", err)
	}

	other, err := orch.CreateRoot(ctx, primary.CreateRootRequest{Task: "parallel thread"})
	if err != nil {
		t.Fatalf("CreateRoot failed: %v", err)
	}
	if _, err := refs.Add(ctx, primary.AddCrossRefRequest{
		SourceShortID: child.ShortID, TargetShortID: other.ShortID,
		RefType: models.RefInforms, Strength: models.StrengthStrong, Confidence: 0.8,
		Reason: "same symptom",
	}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := refs.Validate(ctx, primary.ValidateCrossRefRequest{
		SourceShortID: child.ShortID, TargetShortID: other.ShortID, State: models.ValidationTrue,
	}); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	// Three independent sources suggest the same edge; the third crosses
	// the consensus threshold and flags it.
	for _, by := range []string{"profiler", "log-scan", "trace-diff"} {
		if _, err := refs.Add(ctx, primary.AddCrossRefRequest{
			SourceShortID: root.ShortID, TargetShortID: other.ShortID,
			RefType: models.RefRelatedTo, Strength: models.StrengthWeak, Confidence: 0.4,
			Reason: "both touch the cache", SuggestedBy: by,
		}); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}
	if err := refs.Revoke(ctx, primary.RevokeCrossRefRequest{
		SourceShortID: root.ShortID, TargetShortID: other.ShortID,
		Reason:                 "clustered by a shared upstream artifact",
		ReplacementRefs:        []string{child.ShortID + "->" + other.ShortID},
		CorrectedUnderstanding: "the threads only share a symptom",
	}); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}

	if _, err := orch.Merge(ctx, primary.MergeRequest{ShortID: child.ShortID, Summary: "cache exonerated"}); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if _, err := orch.Fork(ctx, primary.ForkRequest{SourceShortID: child.ShortID, Task: "revisit the cache with prod traffic"}); err != nil {
		t.Fatalf("Fork failed: %v", err)
	}
	if _, err := orch.Reparent(ctx, primary.ReparentRequest{ShortID: other.ShortID, NewParentShortID: root.ShortID, Reason: "same inquiry"}); err != nil {
		t.Fatalf("Reparent failed: %v", err)
	}
}

func TestSpotCheckCleanAfterWorkload(t *testing.T) {
	f := newFixture(t)
	workload(t, f)

	svc := NewVerifyService(f.store, f.store)
	report, err := svc.SpotCheck(context.Background())
	if err != nil {
		t.Fatalf("SpotCheck failed: %v", err)
	}
	if len(report.Discrepancies) != 0 {
		t.Errorf("discrepancies = %v, want none", report.Discrepancies)
	}
	if report.Contexts != 4 || report.AuditedIDs != 4 {
		t.Errorf("report = %+v, want 4 contexts and 4 audited ids", report)
	}
}

func TestSpotCheckFlagsSnapshotWithoutEntries(t *testing.T) {
	f := newFixture(t)
	workload(t, f)

	// A snapshot written behind the log's back.
	orphan := &models.Context{ID: "ghost-id", ShortID: "SB-9", Status: models.StatusActive}
	f.store.snapshots[orphan.ID] = orphan

	svc := NewVerifyService(f.store, f.store)
	report, err := svc.SpotCheck(context.Background())
	if err != nil {
		t.Fatalf("SpotCheck failed: %v", err)
	}
	if len(report.Discrepancies) != 1 {
		t.Fatalf("discrepancies = %v, want exactly the orphan", report.Discrepancies)
	}
	if !strings.Contains(report.Discrepancies[0], "SB-9") {
		t.Errorf("discrepancy %q should name the orphan", report.Discrepancies[0])
	}
}

func TestSpotCheckFlagsMissingSnapshot(t *testing.T) {
	f := newFixture(t)
	workload(t, f)

	// Drop a snapshot while its audit entries remain.
	var droppedID string
	for id := range f.store.snapshots {
		droppedID = id
		break
	}
	delete(f.store.snapshots, droppedID)

	svc := NewVerifyService(f.store, f.store)
	report, err := svc.SpotCheck(context.Background())
	if err != nil {
		t.Fatalf("SpotCheck failed: %v", err)
	}
	found := false
	for _, d := range report.Discrepancies {
		if strings.Contains(d, "snapshot is missing") {
			found = true
		}
	}
	if !found {
		t.Errorf("discrepancies = %v, want a missing-snapshot report", report.Discrepancies)
	}
}

func TestFullReplayReproducesEverySnapshot(t *testing.T) {
	f := newFixture(t)
	workload(t, f)

	svc := NewVerifyService(f.store, f.store)
	report, err := svc.FullReplay(context.Background())
	if err != nil {
		t.Fatalf("FullReplay failed: %v", err)
	}
	if report.Replayed != 4 {
		t.Errorf("replayed = %d, want 4", report.Replayed)
	}
	if report.Clean != report.Replayed {
		t.Errorf("clean = %d of %d; discrepancies: %v", report.Clean, report.Replayed, report.Discrepancies)
	}

	// The workload must keep the rarer log shapes in play: consensus
	// suggestions, revocations, and a fork all have to replay cleanly.
	for _, event := range []models.EventType{models.EventCrossRefUpdated, models.EventCrossRefRevoked} {
		if len(f.store.entriesOfType(event)) == 0 {
			t.Errorf("workload wrote no %s entries", event)
		}
	}
}

func TestFullReplayFlagsTamperedSnapshot(t *testing.T) {
	f := newFixture(t)
	workload(t, f)

	// Corrupt one snapshot directly, bypassing the audit log.
	for _, c := range f.store.snapshots {
		if c.IsRoot() && c.TaskDescription == "root inquiry" {
			c.TaskDescription = "rewritten history"
			c.Status = models.StatusFailed
			break
		}
	}

	svc := NewVerifyService(f.store, f.store)
	report, err := svc.FullReplay(context.Background())
	if err != nil {
		t.Fatalf("FullReplay failed: %v", err)
	}
	if len(report.Discrepancies) == 0 {
		t.Fatal("tampered snapshot went unnoticed")
	}
	joined := strings.Join(report.Discrepancies, "\n")
	if !strings.Contains(joined, "task") || !strings.Contains(joined, "status") {
		t.Errorf("discrepancies should name the tampered fields:\n%s", joined)
	}
	if report.Clean != report.Replayed-1 {
		t.Errorf("clean = %d, want %d", report.Clean, report.Replayed-1)
	}
}

func TestReplayContextUnknownEventFails(t *testing.T) {
	_, err := replayContext("x", []*models.AuditEntry{
		{ID: "e1", EventType: "TIME_TRAVELED", ContextID: "x"},
	})
	if err == nil {
		t.Fatal("unknown event type should fail replay")
	}
}
