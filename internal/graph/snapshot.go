// Package graph provides whole-mesh structural analysis over the edge store:
// connected components and high-degree hub entities.
package graph

import (
	"context"

	"trenchwatch/mesh/internal/store"
)

// Entity is one graph node, keyed by kind and identifier.
type Entity struct {
	Kind store.EntityKind `json:"kind"`
	ID   string           `json:"id"`
}

// Key returns the snapshot map key for the entity.
func (e Entity) Key() string {
	return string(e.Kind) + ":" + e.ID
}

// Snapshot is an in-memory view of the mesh loaded for one analysis pass.
type Snapshot struct {
	Nodes map[string]Entity
	Edges []store.Edge
	// Adj maps node key to its neighbor keys, both directions.
	Adj map[string][]string
}

// SnapshotFromStore loads every edge and derives the node and adjacency sets.
// The mesh is small enough that a full load per analysis run is the simplest
// correct approach.
func SnapshotFromStore(ctx context.Context, db *store.DB) (*Snapshot, error) {
	edges, err := db.QueryEdges(ctx, store.EdgeFilter{})
	if err != nil {
		return nil, err
	}
	return NewSnapshot(edges), nil
}

// NewSnapshot builds a snapshot from an edge list.
func NewSnapshot(edges []store.Edge) *Snapshot {
	snap := &Snapshot{
		Nodes: make(map[string]Entity),
		Edges: edges,
		Adj:   make(map[string][]string),
	}
	for _, e := range edges {
		src := Entity{Kind: e.SourceKind, ID: e.SourceID}
		dst := Entity{Kind: e.TargetKind, ID: e.TargetID}
		snap.Nodes[src.Key()] = src
		snap.Nodes[dst.Key()] = dst
		snap.Adj[src.Key()] = append(snap.Adj[src.Key()], dst.Key())
		snap.Adj[dst.Key()] = append(snap.Adj[dst.Key()], src.Key())
	}
	return snap
}
