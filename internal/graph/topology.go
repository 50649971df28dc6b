package graph

import "sort"

// Hub is a highly connected entity. In this mesh a hub is a signal in itself:
// an account or wallet touching many communities and tokens at once.
type Hub struct {
	Entity Entity `json:"entity"`
	Degree int    `json:"degree"`
}

// TopologyReport summarizes the structural shape of the mesh.
type TopologyReport struct {
	TotalNodes       int   `json:"total_nodes"`
	TotalEdges       int   `json:"total_edges"`
	NumComponents    int   `json:"num_components"`
	LargestComponent int   `json:"largest_component"`
	Hubs             []Hub `json:"hubs"`
}

// ComputeTopology derives connected components and hub entities from the
// snapshot. Hubs are the topN nodes with degree above hubThreshold, ordered by
// degree descending, ties broken by key for deterministic output.
func ComputeTopology(snap *Snapshot, hubThreshold, topN int) *TopologyReport {
	report := &TopologyReport{
		TotalNodes: len(snap.Nodes),
		TotalEdges: len(snap.Edges),
	}
	if len(snap.Nodes) == 0 {
		return report
	}

	parent := make(map[string]string, len(snap.Nodes))
	for key := range snap.Nodes {
		parent[key] = key
	}
	var find func(string) string
	find = func(k string) string {
		if parent[k] != k {
			parent[k] = find(parent[k])
		}
		return parent[k]
	}
	for _, e := range snap.Edges {
		src := Entity{Kind: e.SourceKind, ID: e.SourceID}.Key()
		dst := Entity{Kind: e.TargetKind, ID: e.TargetID}.Key()
		if ra, rb := find(src), find(dst); ra != rb {
			parent[ra] = rb
		}
	}

	sizes := make(map[string]int)
	for key := range snap.Nodes {
		sizes[find(key)]++
	}
	report.NumComponents = len(sizes)
	for _, n := range sizes {
		if n > report.LargestComponent {
			report.LargestComponent = n
		}
	}

	var hubs []Hub
	for key, entity := range snap.Nodes {
		if degree := len(snap.Adj[key]); degree > hubThreshold {
			hubs = append(hubs, Hub{Entity: entity, Degree: degree})
		}
	}
	sort.Slice(hubs, func(i, j int) bool {
		if hubs[i].Degree != hubs[j].Degree {
			return hubs[i].Degree > hubs[j].Degree
		}
		return hubs[i].Entity.Key() < hubs[j].Entity.Key()
	})
	if len(hubs) > topN {
		hubs = hubs[:topN]
	}
	report.Hubs = hubs
	return report
}
