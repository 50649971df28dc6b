package rotation

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"trenchwatch/mesh/internal/store"
)

func testDetector(t *testing.T) (*Detector, *store.DB) {
	t.Helper()
	d, err := store.OpenDB(filepath.Join(t.TempDir(), "mesh.db"))
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(d, log), d
}

func addStaffing(t *testing.T, d *store.DB, handle string, rel store.Relation, communities ...string) {
	t.Helper()
	for _, comm := range communities {
		_, err := d.UpsertEdge(context.Background(), store.Edge{
			SourceKind: store.KindXAccount, SourceID: handle,
			Relation:   rel,
			TargetKind: store.KindXCommunity, TargetID: comm,
			Confidence: 90,
		})
		if err != nil {
			t.Fatalf("seeding edge: %v", err)
		}
	}
}

func addCoMod(t *testing.T, d *store.DB, a, b string) {
	t.Helper()
	if b < a {
		a, b = b, a
	}
	_, err := d.UpsertEdge(context.Background(), store.Edge{
		SourceKind: store.KindXAccount, SourceID: a,
		Relation:   store.RelCoMod,
		TargetKind: store.KindXAccount, TargetID: b,
		Confidence: 70,
	})
	if err != nil {
		t.Fatalf("seeding co_mod edge: %v", err)
	}
}

func TestDetect_BelowMinimumIgnored(t *testing.T) {
	det, d := testDetector(t)
	addStaffing(t, d, "onehit", store.RelAdminOf, "c1")

	patterns, err := det.Detect(context.Background(), DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(patterns) != 0 {
		t.Fatalf("got %d patterns, want 0 for a single-community account", len(patterns))
	}
}

func TestDetect_RiskScore(t *testing.T) {
	det, d := testDetector(t)
	// Two staffed communities, three co-moderators: 15*2 + 5*3 = 45.
	addStaffing(t, d, "serial", store.RelAdminOf, "c1")
	addStaffing(t, d, "serial", store.RelModOf, "c2")
	addCoMod(t, d, "serial", "pal1")
	addCoMod(t, d, "serial", "pal2")
	addCoMod(t, d, "serial", "pal3")

	patterns, err := det.Detect(context.Background(), DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(patterns) != 1 {
		t.Fatalf("got %d patterns, want 1", len(patterns))
	}
	p := patterns[0]
	if p.Account != "serial" {
		t.Errorf("account = %q, want serial", p.Account)
	}
	if p.RiskScore != 45 {
		t.Errorf("risk = %d, want 45", p.RiskScore)
	}
	if len(p.AdminOf) != 1 || len(p.ModOf) != 1 || len(p.CoModerators) != 3 {
		t.Errorf("pattern = %+v, want 1 admin, 1 mod, 3 co-mods", p)
	}
}

func TestDetect_RiskCappedAt100(t *testing.T) {
	det, d := testDetector(t)
	comms := []string{"c1", "c2", "c3", "c4", "c5", "c6", "c7"}
	addStaffing(t, d, "whale", store.RelAdminOf, comms...)

	patterns, err := det.Detect(context.Background(), DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if patterns[0].RiskScore != 100 {
		t.Errorf("risk = %d, want capped at 100", patterns[0].RiskScore)
	}
}

func TestDetect_DeterministicOrder(t *testing.T) {
	det, d := testDetector(t)
	// Same score for both accounts; ties break by account id.
	addStaffing(t, d, "zed", store.RelAdminOf, "c1", "c2")
	addStaffing(t, d, "abe", store.RelAdminOf, "c3", "c4")

	for i := 0; i < 3; i++ {
		patterns, err := det.Detect(context.Background(), DefaultOptions())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(patterns) != 2 || patterns[0].Account != "abe" || patterns[1].Account != "zed" {
			t.Fatalf("order = %v, want [abe zed]", []string{patterns[0].Account, patterns[1].Account})
		}
	}
}

func TestDetect_LimitApplies(t *testing.T) {
	det, d := testDetector(t)
	addStaffing(t, d, "one", store.RelAdminOf, "c1", "c2")
	addStaffing(t, d, "two", store.RelAdminOf, "c3", "c4", "c5")

	opts := DefaultOptions()
	opts.Limit = 1
	patterns, err := det.Detect(context.Background(), opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(patterns) != 1 {
		t.Fatalf("got %d patterns, want 1 (limit)", len(patterns))
	}
	if patterns[0].Account != "two" {
		t.Errorf("kept %q, want the higher-risk account", patterns[0].Account)
	}
}

func TestDetect_ZeroWeightHonored(t *testing.T) {
	det, d := testDetector(t)
	addStaffing(t, d, "serial", store.RelAdminOf, "c1", "c2")
	addCoMod(t, d, "serial", "pal1")
	addCoMod(t, d, "serial", "pal2")

	opts := DefaultOptions()
	opts.CoModWeight = 0
	patterns, err := det.Detect(context.Background(), opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(patterns) != 1 {
		t.Fatalf("got %d patterns, want 1", len(patterns))
	}
	// Co-moderators contribute nothing: 15*2 + 0*2 = 30, not 40.
	if patterns[0].RiskScore != 30 {
		t.Errorf("risk = %d, want 30 with the co-mod term zeroed", patterns[0].RiskScore)
	}
}

func TestDetect_NegativeWeightFallsBackToDefault(t *testing.T) {
	det, d := testDetector(t)
	addStaffing(t, d, "serial", store.RelAdminOf, "c1", "c2")

	opts := DefaultOptions()
	opts.AdminWeight = -1
	patterns, err := det.Detect(context.Background(), opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if patterns[0].RiskScore != 30 {
		t.Errorf("risk = %d, want 30 from the default admin weight", patterns[0].RiskScore)
	}
}

func TestDetect_MixedRolesCountTogether(t *testing.T) {
	det, d := testDetector(t)
	// One admin seat plus one mod seat crosses the default minimum of 2.
	addStaffing(t, d, "mixed", store.RelAdminOf, "c1")
	addStaffing(t, d, "mixed", store.RelModOf, "c2")

	patterns, err := det.Detect(context.Background(), DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(patterns) != 1 {
		t.Fatalf("got %d patterns, want 1", len(patterns))
	}
}
