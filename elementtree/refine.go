package elementtree

import "slices"

type edgeKey [2]int

func makeEdgeKey(a, b int) edgeKey {
	if a < b {
		return edgeKey{a, b}
	}
	return edgeKey{b, a}
}

// updateTopology links every pair of the given nodes that share an edge.
// Edges seen only once keep whatever neighbour they had.
func (t *Tree) updateTopology(elements []int) {
	type owner struct{ node, edge int }
	edges := make(map[edgeKey]owner, 4*len(elements))
	for _, e := range elements {
		for j := 0; j < 4; j++ {
			n := &t.nodes[e]
			key := makeEdgeKey(n.Vertices[j], n.Vertices[(j+1)%4])
			o, ok := edges[key]
			if !ok {
				edges[key] = owner{node: e, edge: j}
				continue
			}
			n.Neighbors[j], n.NeighborEdges[j] = o.node, o.edge
			m := &t.nodes[o.node]
			m.Neighbors[o.edge], m.NeighborEdges[o.edge] = e, j
		}
	}
}

// RefineUniformly splits every element into four and updates the bounding
// balls.
func (t *Tree) RefineUniformly() {
	t.refine()
	t.computeBalls()
}

func (t *Tree) refine() {
	current := append([]int(nil), t.leaves...)
	for _, e := range current {
		t.refineLeaf(e)
	}
	t.maxLevel++
	t.collectLeaves()
}

func (t *Tree) refineLeaf(e int) {
	n := t.nodes[e]
	if !n.IsLeaf() {
		return
	}
	var (
		h     = n.H()
		s, u  = n.LLC[0], n.LLC[1]
		patch = t.geom[n.Patch]
		// edge midpoints followed by the centre, in parameter space
		mids = [5][2]float64{
			{s + h/2, u}, {s + h, u + h/2}, {s + h/2, u + h}, {s, u + h/2}, {s + h/2, u + h/2},
		}
		pts      [5]int
		elements = make([]int, 0, 12)
	)
	for i := 0; i < 4; i++ {
		nb := n.Neighbors[i]
		if nb != None && !t.nodes[nb].IsLeaf() {
			// reuse the midpoint the neighbour already created on the shared edge
			k := n.NeighborEdges[i]
			sons := t.nodes[nb].Children
			pts[i] = t.nodes[sons[k]].Vertices[(k+1)%4]
			// a neighbour wrapping around a corner borders two edges
			for _, son := range []int{sons[k], sons[(k+1)%4]} {
				if !slices.Contains(elements, son) {
					elements = append(elements, son)
				}
			}
			continue
		}
		pts[i] = t.addPoint(patch.Eval(mids[i][0], mids[i][1]))
	}
	pts[4] = t.addPoint(patch.Eval(mids[4][0], mids[4][1]))

	v := n.Vertices
	verts := [4][4]int{
		{v[0], pts[0], pts[4], pts[3]},
		{pts[0], v[1], pts[1], pts[4]},
		{pts[4], pts[1], v[2], pts[2]},
		{pts[3], pts[4], pts[2], v[3]},
	}
	children := make([]int, 4)
	for i := range children {
		idx := len(t.nodes)
		t.nodes = append(t.nodes, Node{
			Index:         idx,
			ID:            4*n.ID + i,
			Level:         n.Level + 1,
			Patch:         n.Patch,
			LLC:           [2]float64{s + childLLC[i][0]*h, u + childLLC[i][1]*h},
			Vertices:      verts[i],
			Neighbors:     [4]int{None, None, None, None},
			NeighborEdges: [4]int{None, None, None, None},
			Parent:        e,
		})
		children[i] = idx
		elements = append(elements, idx)
	}
	t.nodes[e].Children = children
	t.updateTopology(elements)
}
