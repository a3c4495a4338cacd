package registry

import "testing"

func TestAllocateSequential(t *testing.T) {
	r := New()

	first, err := r.Allocate("uuid-1")
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if first != "SB-1" {
		t.Errorf("first allocation = %s, want SB-1", first)
	}

	second, err := r.Allocate("uuid-2")
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if second != "SB-2" {
		t.Errorf("second allocation = %s, want SB-2", second)
	}
}

func TestAllocateRejectsDuplicateInternal(t *testing.T) {
	r := New()
	if _, err := r.Allocate("uuid-1"); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if _, err := r.Allocate("uuid-1"); err == nil {
		t.Error("expected error allocating same internal id twice")
	}
}

func TestImportAdvancesCounter(t *testing.T) {
	r := New()
	if err := r.Import("SB-7", "uuid-7"); err != nil {
		t.Fatalf("Import: %v", err)
	}
	if err := r.Import("SB-3", "uuid-3"); err != nil {
		t.Fatalf("Import: %v", err)
	}

	// Next allocation must skip every imported id.
	next, err := r.Allocate("uuid-new")
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if next != "SB-8" {
		t.Errorf("allocation after import = %s, want SB-8", next)
	}
}

func TestImportRejectsConflicts(t *testing.T) {
	r := New()
	if err := r.Import("SB-1", "uuid-1"); err != nil {
		t.Fatalf("Import: %v", err)
	}

	if err := r.Import("SB-1", "uuid-other"); err == nil {
		t.Error("expected error importing SB-1 for a different internal id")
	}
	if err := r.Import("SB-2", "uuid-1"); err == nil {
		t.Error("expected error importing uuid-1 under a different short id")
	}

	// Re-importing the identical pair is idempotent.
	if err := r.Import("SB-1", "uuid-1"); err != nil {
		t.Errorf("re-importing identical pair: %v", err)
	}
}

func TestImportRejectsMalformed(t *testing.T) {
	r := New()
	for _, bad := range []string{"SB-", "SB-0", "SB-x", "XX-1", "1"} {
		if err := r.Import(bad, "uuid"); err == nil {
			t.Errorf("Import(%q) succeeded, want error", bad)
		}
	}
}

func TestResolveAndShortFor(t *testing.T) {
	r := New()
	short, _ := r.Allocate("uuid-1")

	internal, ok := r.Resolve(short)
	if !ok || internal != "uuid-1" {
		t.Errorf("Resolve(%s) = %s, %v", short, internal, ok)
	}

	back, ok := r.ShortFor("uuid-1")
	if !ok || back != short {
		t.Errorf("ShortFor(uuid-1) = %s, %v", back, ok)
	}

	if _, ok := r.Resolve("SB-99"); ok {
		t.Error("Resolve(SB-99) should miss")
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}
