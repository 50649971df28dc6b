package teams

// unionFind implements union-find with path compression and union by rank,
// with lazy insertion: identifiers join as they are discovered during a
// clustering pass.
type unionFind struct {
	parent map[string]string
	rank   map[string]int
	size   map[string]int
}

func newUnionFind() *unionFind {
	return &unionFind{
		parent: make(map[string]string),
		rank:   make(map[string]int),
		size:   make(map[string]int),
	}
}

// add registers an identifier as its own component if unseen.
func (uf *unionFind) add(id string) {
	if _, ok := uf.parent[id]; ok {
		return
	}
	uf.parent[id] = id
	uf.rank[id] = 0
	uf.size[id] = 1
}

// find returns the root of the component containing id, with path compression.
func (uf *unionFind) find(id string) string {
	parent, ok := uf.parent[id]
	if !ok {
		uf.add(id)
		return id
	}
	if parent != id {
		root := uf.find(parent)
		uf.parent[id] = root
		return root
	}
	return id
}

// union merges the components containing a and b. Returns true if they were separate.
func (uf *unionFind) union(a, b string) bool {
	uf.add(a)
	uf.add(b)
	rootA := uf.find(a)
	rootB := uf.find(b)
	if rootA == rootB {
		return false
	}

	rankA := uf.rank[rootA]
	rankB := uf.rank[rootB]
	merged := uf.size[rootA] + uf.size[rootB]

	switch {
	case rankA < rankB:
		uf.parent[rootA] = rootB
		uf.size[rootB] = merged
	case rankA > rankB:
		uf.parent[rootB] = rootA
		uf.size[rootA] = merged
	default:
		uf.parent[rootB] = rootA
		uf.size[rootA] = merged
		uf.rank[rootA]++
	}
	return true
}

// componentOf returns all identifiers in the component containing id.
func (uf *unionFind) componentOf(id string) []string {
	root := uf.find(id)
	var members []string
	for other := range uf.parent {
		if uf.find(other) == root {
			members = append(members, other)
		}
	}
	return members
}

// componentSize returns the size of the component containing id.
func (uf *unionFind) componentSize(id string) int {
	return uf.size[uf.find(id)]
}
