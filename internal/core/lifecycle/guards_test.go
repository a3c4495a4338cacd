package lifecycle

import (
	"reflect"
	"testing"

	"github.com/example/sidebar/internal/models"
)

func TestCanPause(t *testing.T) {
	tests := []struct {
		name        string
		status      models.ContextStatus
		wantAllowed bool
	}{
		{name: "can pause active context", status: models.StatusActive, wantAllowed: true},
		{name: "can pause testing context", status: models.StatusTesting, wantAllowed: true},
		{name: "cannot pause paused context", status: models.StatusPaused, wantAllowed: false},
		{name: "cannot pause waiting context", status: models.StatusWaiting, wantAllowed: false},
		{name: "cannot pause merged context", status: models.StatusMerged, wantAllowed: false},
		{name: "cannot pause archived context", status: models.StatusArchived, wantAllowed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CanPause("SB-1", tt.status)
			if result.Allowed != tt.wantAllowed {
				t.Errorf("Allowed = %v, want %v (reason: %s)", result.Allowed, tt.wantAllowed, result.Reason)
			}
		})
	}
}

func TestCanResume(t *testing.T) {
	tests := []struct {
		name        string
		status      models.ContextStatus
		wantAllowed bool
	}{
		{name: "can resume paused context", status: models.StatusPaused, wantAllowed: true},
		{name: "cannot resume active context", status: models.StatusActive, wantAllowed: false},
		{name: "cannot resume failed context", status: models.StatusFailed, wantAllowed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CanResume("SB-1", tt.status)
			if result.Allowed != tt.wantAllowed {
				t.Errorf("Allowed = %v, want %v (reason: %s)", result.Allowed, tt.wantAllowed, result.Reason)
			}
		})
	}
}

func TestCanMerge(t *testing.T) {
	tests := []struct {
		name        string
		ctx         MergeContext
		wantAllowed bool
	}{
		{
			name:        "can merge active child",
			ctx:         MergeContext{ShortID: "SB-2", IsRoot: false, Status: models.StatusActive},
			wantAllowed: true,
		},
		{
			name:        "can merge child already consolidating",
			ctx:         MergeContext{ShortID: "SB-2", IsRoot: false, Status: models.StatusConsolidating},
			wantAllowed: true,
		},
		{
			name:        "can merge reviewing child",
			ctx:         MergeContext{ShortID: "SB-2", IsRoot: false, Status: models.StatusReviewing},
			wantAllowed: true,
		},
		{
			name:        "cannot merge root",
			ctx:         MergeContext{ShortID: "SB-1", IsRoot: true, Status: models.StatusActive},
			wantAllowed: false,
		},
		{
			name:        "cannot merge already merged child",
			ctx:         MergeContext{ShortID: "SB-2", IsRoot: false, Status: models.StatusMerged},
			wantAllowed: false,
		},
		{
			name:        "cannot merge paused child",
			ctx:         MergeContext{ShortID: "SB-2", IsRoot: false, Status: models.StatusPaused},
			wantAllowed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CanMerge(tt.ctx)
			if result.Allowed != tt.wantAllowed {
				t.Errorf("Allowed = %v, want %v (reason: %s)", result.Allowed, tt.wantAllowed, result.Reason)
			}
		})
	}
}

func TestCanArchive(t *testing.T) {
	nonTerminal := []models.ContextStatus{
		models.StatusActive, models.StatusTesting, models.StatusPaused,
		models.StatusWaiting, models.StatusReviewing,
		models.StatusSpawningChild, models.StatusConsolidating,
	}
	for _, status := range nonTerminal {
		if result := CanArchive("SB-1", status); !result.Allowed {
			t.Errorf("CanArchive(%s) = false, want true", status)
		}
	}

	terminal := []models.ContextStatus{models.StatusMerged, models.StatusArchived, models.StatusFailed}
	for _, status := range terminal {
		if result := CanArchive("SB-1", status); result.Allowed {
			t.Errorf("CanArchive(%s) = true, want false", status)
		}
	}
}

func TestAncestorChain(t *testing.T) {
	parentOf := map[string]string{
		"a": "",
		"b": "a",
		"c": "b",
		"d": "c",
	}

	got := AncestorChain("d", parentOf)
	want := []string{"c", "b", "a"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("AncestorChain(d) = %v, want %v", got, want)
	}

	if chain := AncestorChain("a", parentOf); chain != nil {
		t.Errorf("AncestorChain(root) = %v, want nil", chain)
	}
}

func TestWouldCycle(t *testing.T) {
	// a -> b -> c, and x is a separate root
	parentOf := map[string]string{
		"a": "",
		"b": "a",
		"c": "b",
		"x": "",
	}

	tests := []struct {
		name      string
		contextID string
		newParent string
		want      bool
	}{
		{name: "reparent under own descendant cycles", contextID: "a", newParent: "c", want: true},
		{name: "reparent under self cycles", contextID: "b", newParent: "b", want: true},
		{name: "reparent under sibling tree is fine", contextID: "b", newParent: "x", want: false},
		{name: "reparent to root is fine", contextID: "c", newParent: "", want: false},
		{name: "reparent leaf under root is fine", contextID: "c", newParent: "a", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WouldCycle(tt.contextID, tt.newParent, parentOf); got != tt.want {
				t.Errorf("WouldCycle(%s, %s) = %v, want %v", tt.contextID, tt.newParent, got, tt.want)
			}
		})
	}
}

func TestDescendants(t *testing.T) {
	childrenOf := map[string][]string{
		"a": {"b", "c"},
		"b": {"d"},
	}

	got := Descendants("a", childrenOf)
	want := []string{"b", "c", "d"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Descendants(a) = %v, want %v", got, want)
	}

	if desc := Descendants("d", childrenOf); desc != nil {
		t.Errorf("Descendants(leaf) = %v, want nil", desc)
	}
}
