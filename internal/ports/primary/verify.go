package primary

import "context"

// VerifyService defines the primary port for audit/snapshot verification.
// Discrepancies are surfaced, never auto-repaired.
type VerifyService interface {
	// SpotCheck compares audit entry counts against snapshot presence.
	// Cheap enough to run on every startup.
	SpotCheck(ctx context.Context) (*SpotCheckReport, error)

	// FullReplay reconstructs every context from its audit entries from
	// genesis and diffs the result against the persisted snapshot.
	FullReplay(ctx context.Context) (*ReplayReport, error)
}

// SpotCheckReport summarizes the fast startup verification.
type SpotCheckReport struct {
	Contexts      int
	AuditedIDs    int
	Discrepancies []string
}

// ReplayReport summarizes a full replay verification.
type ReplayReport struct {
	Replayed      int
	Clean         int
	Discrepancies []string
}
