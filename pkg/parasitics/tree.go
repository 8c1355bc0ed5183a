package parasitics

import (
	"fmt"
)

// unionFind tracks connected node sets.
type unionFind struct {
	parent map[NodeID]NodeID
	rank   map[NodeID]int
}

func newUnionFind() *unionFind {
	return &unionFind{
		parent: make(map[NodeID]NodeID),
		rank:   make(map[NodeID]int),
	}
}

func (u *unionFind) add(id NodeID) {
	if _, ok := u.parent[id]; !ok {
		u.parent[id] = id
	}
}

// find returns the set representative, compressing the path.
func (u *unionFind) find(id NodeID) NodeID {
	root := id
	for u.parent[root] != root {
		root = u.parent[root]
	}
	for id != root {
		next := u.parent[id]
		u.parent[id] = root
		id = next
	}
	return root
}

// union merges the sets of a and b and reports false if they were already
// one set.
func (u *unionFind) union(a, b NodeID) bool {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return false
	}
	switch {
	case u.rank[ra] < u.rank[rb]:
		u.parent[ra] = rb
	case u.rank[ra] > u.rank[rb]:
		u.parent[rb] = ra
	default:
		u.parent[rb] = ra
		u.rank[ra]++
	}
	return true
}

// CheckTree verifies that the resistor segments of net form a forest with
// one root per island: no cycle, no node driven by two segments, and every
// root is a root key rather than a shape node. It returns the number of
// islands.
func (nw *Network) CheckTree(net int) (int, error) {
	segs := nw.RSegs(net)
	if len(segs) == 0 {
		if len(nw.netNodes[net]) == 0 {
			return 0, fmt.Errorf("net %d: %w", net, ErrNoNet)
		}
		return 0, nil
	}

	uf := newUnionFind()
	driven := make(map[NodeID]int)
	for _, r := range segs {
		uf.add(r.Source)
		uf.add(r.Target)
		if prev, ok := driven[r.Target]; ok {
			return 0, fmt.Errorf("net %d: node %d driven by shapes %d and %d", net, r.Target, prev, r.Shape)
		}
		driven[r.Target] = r.Shape
		if !uf.union(r.Source, r.Target) {
			return 0, fmt.Errorf("net %d: shape %d closes a loop", net, r.Shape)
		}
	}

	roots := make(map[NodeID]bool)
	for id := range uf.parent {
		if _, ok := driven[id]; ok {
			continue
		}
		n := nw.nodes[id]
		if n.Key >= 0 {
			return 0, fmt.Errorf("net %d: shape node %d has no driving segment", net, n.Key)
		}
		roots[uf.find(id)] = true
	}
	return len(roots), nil
}
