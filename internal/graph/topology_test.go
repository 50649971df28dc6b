package graph

import (
	"testing"

	"trenchwatch/mesh/internal/store"
)

func edge(srcKind store.EntityKind, src string, rel store.Relation, dstKind store.EntityKind, dst string) store.Edge {
	return store.Edge{
		SourceKind: srcKind, SourceID: src,
		Relation:   rel,
		TargetKind: dstKind, TargetID: dst,
	}
}

func TestComputeTopology_Empty(t *testing.T) {
	report := ComputeTopology(NewSnapshot(nil), 2, 10)
	if report.TotalNodes != 0 || report.NumComponents != 0 {
		t.Errorf("empty snapshot gave %+v", report)
	}
}

func TestComputeTopology_Components(t *testing.T) {
	snap := NewSnapshot([]store.Edge{
		edge(store.KindXAccount, "alice", store.RelAdminOf, store.KindXCommunity, "c1"),
		edge(store.KindXAccount, "bob", store.RelModOf, store.KindXCommunity, "c1"),
		edge(store.KindXAccount, "zed", store.RelAdminOf, store.KindXCommunity, "c9"),
	})

	report := ComputeTopology(snap, 10, 10)
	if report.TotalNodes != 5 {
		t.Errorf("nodes = %d, want 5", report.TotalNodes)
	}
	if report.NumComponents != 2 {
		t.Errorf("components = %d, want 2", report.NumComponents)
	}
	if report.LargestComponent != 3 {
		t.Errorf("largest = %d, want 3 (alice, bob, c1)", report.LargestComponent)
	}
}

func TestComputeTopology_Hubs(t *testing.T) {
	snap := NewSnapshot([]store.Edge{
		edge(store.KindXAccount, "serial", store.RelAdminOf, store.KindXCommunity, "c1"),
		edge(store.KindXAccount, "serial", store.RelAdminOf, store.KindXCommunity, "c2"),
		edge(store.KindXAccount, "serial", store.RelModOf, store.KindXCommunity, "c3"),
		edge(store.KindXAccount, "quiet", store.RelModOf, store.KindXCommunity, "c3"),
	})

	report := ComputeTopology(snap, 2, 10)
	if len(report.Hubs) != 1 {
		t.Fatalf("hubs = %v, want only the account above the threshold", report.Hubs)
	}
	hub := report.Hubs[0]
	if hub.Entity.ID != "serial" || hub.Degree != 3 {
		t.Errorf("hub = %+v, want serial with degree 3", hub)
	}
}
