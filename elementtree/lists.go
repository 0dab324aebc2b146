package elementtree

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// PointList returns the positions of all mesh points, indexed by point id.
func (t *Tree) PointList() []r3.Vec {
	out := make([]r3.Vec, len(t.points))
	copy(out, t.points)
	return out
}

// ElementList returns the four point ids of every element in traversal order.
func (t *Tree) ElementList() [][4]int {
	out := make([][4]int, len(t.leaves))
	for i, e := range t.leaves {
		out[i] = t.nodes[e].Vertices
	}
	return out
}

func (t *Tree) MidpointList() []r3.Vec {
	out := make([]r3.Vec, len(t.leaves))
	for i, e := range t.leaves {
		out[i] = t.nodes[e].Midpoint
	}
	return out
}

func (t *Tree) RadiusList() []float64 {
	out := make([]float64, len(t.leaves))
	for i, e := range t.leaves {
		out[i] = t.nodes[e].Radius
	}
	return out
}

// ElementLabels returns the global id of every element.
func (t *Tree) ElementLabels() []int {
	out := make([]int, len(t.leaves))
	for i, e := range t.leaves {
		out[i] = t.GlobalID(&t.nodes[e])
	}
	return out
}

// PatchEdge describes one edge of a level zero patch. Neighbor and
// NeighborEdge are None on an open boundary.
type PatchEdge struct {
	Patch, Neighbor, Edge, NeighborEdge int
}

// PatchTopology lists every patch edge once: shared edges are reported by the
// patch with the smaller index.
func (t *Tree) PatchTopology() []PatchEdge {
	var out []PatchEdge
	for _, c := range t.nodes[0].Children {
		n := &t.nodes[c]
		for j := 0; j < 4; j++ {
			nb := n.Neighbors[j]
			if nb == None {
				out = append(out, PatchEdge{Patch: n.ID, Neighbor: None, Edge: j, NeighborEdge: None})
				continue
			}
			if m := &t.nodes[nb]; n.ID < m.ID {
				out = append(out, PatchEdge{Patch: n.ID, Neighbor: m.ID, Edge: j, NeighborEdge: n.NeighborEdges[j]})
			}
		}
	}
	return out
}

// PatchBoundaryLabels returns, per element, -1 if it touches an open
// boundary and otherwise the number of its edges shared with another patch.
func (t *Tree) PatchBoundaryLabels() []int {
	out := make([]int, len(t.leaves))
	for i, e := range t.leaves {
		n := &t.nodes[e]
		for j := 0; j < 4; j++ {
			nb := n.Neighbors[j]
			if nb == None {
				out[i] = -1
				break
			}
			if t.nodes[nb].Patch != n.Patch {
				out[i]++
			}
		}
	}
	return out
}

// IdentifyPatch flags the elements of patch p with 1.
func (t *Tree) IdentifyPatch(p int) []int {
	if p < 0 || p >= t.NumPatches() {
		panic(fmt.Sprintf("elementtree: patch %d out of range [0,%d)", p, t.NumPatches()))
	}
	out := make([]int, len(t.leaves))
	for i, e := range t.leaves {
		if t.nodes[e].Patch == p {
			out[i] = 1
		}
	}
	return out
}

// ReorderingVector maps the tensor product position of an element,
// patch*n^2 + y*n + x with n elements per direction, to its element ID.
func (t *Tree) ReorderingVector() []int {
	var (
		n   = 1 << t.maxLevel
		out = make([]int, len(t.leaves))
	)
	for _, e := range t.leaves {
		nd := &t.nodes[e]
		h := nd.H()
		x := int(math.Floor((nd.LLC[0] + 0.5*h) / h))
		y := int(math.Floor((nd.LLC[1] + 0.5*h) / h))
		out[nd.Patch*n*n+y*n+x] = nd.ID
	}
	return out
}

// InverseReordering maps element IDs to tensor product positions.
func (t *Tree) InverseReordering() []int {
	fwd := t.ReorderingVector()
	out := make([]int, len(fwd))
	for tp, id := range fwd {
		out[id] = tp
	}
	return out
}
