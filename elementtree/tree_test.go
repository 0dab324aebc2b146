package elementtree

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/H2Kernel/geometry"
)

func TestNewRejectsBadInput(t *testing.T) {
	_, err := New(nil, 2)
	assert.ErrorIs(t, err, ErrEmptyGeometry)
	_, err = New(geometry.UnitSquare(), -1)
	assert.ErrorIs(t, err, ErrNegativeLevel)
}

func TestConformingPointCount(t *testing.T) {
	for level := 0; level <= 4; level++ {
		t.Run(fmt.Sprintf("square level %d", level), func(t *testing.T) {
			tr, err := New(geometry.UnitSquare(), level)
			require.NoError(t, err)
			n := 1 << level
			assert.Equal(t, n*n, tr.NumElements())
			assert.Equal(t, (n+1)*(n+1), tr.NumPoints())
		})
		t.Run(fmt.Sprintf("cube level %d", level), func(t *testing.T) {
			tr, err := New(geometry.Cube(1), level)
			require.NoError(t, err)
			n := 1 << level
			assert.Equal(t, 6*n*n, tr.NumElements())
			assert.Equal(t, 6*n*n+2, tr.NumPoints())
		})
	}
}

func TestNeighboursAreSymmetric(t *testing.T) {
	tr, err := New(geometry.Cube(2), 3)
	require.NoError(t, err)
	for _, e := range tr.Leaves() {
		n := tr.Node(e)
		for j := 0; j < 4; j++ {
			nb := n.Neighbors[j]
			require.NotEqualf(t, None, nb, "element %d edge %d has no neighbour on a closed surface", n.ID, j)
			m := tr.Node(nb)
			k := n.NeighborEdges[j]
			assert.Equal(t, n.Index, m.Neighbors[k])
			assert.Equal(t, j, m.NeighborEdges[k])
			assert.Equal(t, n.Level, m.Level)
			assert.Equal(t,
				makeEdgeKey(n.Vertices[j], n.Vertices[(j+1)%4]),
				makeEdgeKey(m.Vertices[k], m.Vertices[(k+1)%4]))
		}
	}
}

func TestWrappedPatchNeighbours(t *testing.T) {
	// two flat patches glued along all four edges, so each borders the
	// other on adjacent edges
	var (
		c = [4]r3.Vec{{}, {X: 1}, {X: 1, Y: 1}, {Y: 1}}
		g = geometry.Geometry{
			geometry.NewBilinear(c[0], c[1], c[2], c[3]),
			geometry.NewBilinear(c[0], c[3], c[2], c[1]),
		}
	)
	for level := 1; level <= 3; level++ {
		t.Run(fmt.Sprintf("level %d", level), func(t *testing.T) {
			tr, err := New(g, level)
			require.NoError(t, err)
			n := 1 << level
			assert.Equal(t, 2*n*n, tr.NumElements())
			for _, e := range tr.Leaves() {
				nd := tr.Node(e)
				for j := 0; j < 4; j++ {
					nb := nd.Neighbors[j]
					require.NotEqual(t, None, nb)
					assert.NotEqualf(t, nd.Index, nb, "element %d is its own neighbour on edge %d", nd.ID, j)
					assert.Equal(t, nd.Index, tr.Node(nb).Neighbors[nd.NeighborEdges[j]])
				}
			}
		})
	}
}

func TestRefinementGrowth(t *testing.T) {
	tr, err := New(geometry.Cube(1), 1)
	require.NoError(t, err)
	for level := 2; level <= 4; level++ {
		before := tr.NumElements()
		tr.RefineUniformly()
		assert.Equal(t, level, tr.MaxLevel())
		assert.Equal(t, 4*before, tr.NumElements())
		assert.Equal(t, tr.NumPatches()*(1<<(2*level)), tr.NumElements())
	}
}

func TestLeafIDsAreDenseInTraversalOrder(t *testing.T) {
	g, err := geometry.Plate(2, 3)
	require.NoError(t, err)
	tr, err := New(g, 3)
	require.NoError(t, err)
	for i, e := range tr.Leaves() {
		n := tr.Node(e)
		assert.Equal(t, i, n.ID)
		assert.Equal(t, 3, n.Level)
		assert.Same(t, n, tr.Leaf(i))
		first, end := tr.ElementRange(n)
		assert.Equal(t, i, first)
		assert.Equal(t, i+1, end)
	}
	first, end := tr.ElementRange(tr.Root())
	assert.Equal(t, 0, first)
	assert.Equal(t, tr.NumElements(), end)
	patch := tr.Node(tr.Root().Children[4])
	first, end = tr.ElementRange(patch)
	assert.Equal(t, 4*64, first)
	assert.Equal(t, 5*64, end)
}

func TestGlobalIDsAreUnique(t *testing.T) {
	tr, err := New(geometry.Cube(1), 2)
	require.NoError(t, err)
	seen := make(map[int]bool)
	tr.Walk(func(n *Node) {
		if n.IsRoot() {
			return
		}
		id := tr.GlobalID(n)
		assert.False(t, seen[id])
		seen[id] = true
	})
	assert.Len(t, seen, 6*(1+4+16))
	assert.Len(t, tr.ElementLabels(), 96)
}

func TestReorderingRoundTrip(t *testing.T) {
	tr, err := New(geometry.Cube(1), 3)
	require.NoError(t, err)
	fwd := tr.ReorderingVector()
	inv := tr.InverseReordering()
	for tp, id := range fwd {
		assert.Equal(t, tp, inv[id])
	}
	for id, tp := range inv {
		assert.Equal(t, id, fwd[tp])
	}

	sq, err := New(geometry.UnitSquare(), 2)
	require.NoError(t, err)
	fwd = sq.ReorderingVector()
	for tp, id := range fwd {
		x, y := tp%4, tp/4
		assert.InDelta(t, 0.25*float64(x), sq.Leaf(id).LLC[0], 1e-15)
		assert.InDelta(t, 0.25*float64(y), sq.Leaf(id).LLC[1], 1e-15)
	}
}

func TestBallContainment(t *testing.T) {
	tr, err := New(geometry.Cube(3), 3)
	require.NoError(t, err)
	tr.Walk(func(n *Node) {
		for _, c := range n.Children {
			child := tr.Node(c)
			d := r3.Norm(r3.Sub(child.Midpoint, n.Midpoint)) + child.Radius
			assert.LessOrEqualf(t, d, n.Radius*(1+1e-9), "node %d level %d", c, child.Level)
		}
	})
	// every element ball contains its corners
	pts := tr.PointList()
	for i, v := range tr.ElementList() {
		leaf := tr.Leaf(i)
		for _, p := range v {
			assert.LessOrEqual(t, r3.Norm(r3.Sub(pts[p], leaf.Midpoint)), leaf.Radius*(1+1e-9))
		}
	}
}

func TestEnclosingBall(t *testing.T) {
	m, r := EnclosingBall(r3.Vec{}, 2, r3.Vec{X: 0.5}, 1)
	assert.Equal(t, r3.Vec{}, m)
	assert.Equal(t, 2., r)

	m, r = EnclosingBall(r3.Vec{X: 0.5}, 1, r3.Vec{}, 2)
	assert.Equal(t, r3.Vec{}, m)
	assert.Equal(t, 2., r)

	m, r = EnclosingBall(r3.Vec{}, 1, r3.Vec{X: 4}, 1)
	assert.InDelta(t, 2, m.X, 1e-15)
	assert.InDelta(t, 3, r, 1e-15)

	m, r = EnclosingBall(r3.Vec{}, 0, r3.Vec{Y: 2}, 0)
	assert.InDelta(t, 1, m.Y, 1e-15)
	assert.InDelta(t, 1, r, 1e-15)
}

func TestSquareElementBall(t *testing.T) {
	tr, err := New(geometry.UnitSquare(), 1)
	require.NoError(t, err)
	leaf := tr.Leaf(2)
	assert.InDelta(t, 0.75, leaf.Midpoint.X, 1e-15)
	assert.InDelta(t, 0.75, leaf.Midpoint.Y, 1e-15)
	assert.InDelta(t, 0.25*1.4142135623730951, leaf.Radius, 1e-15)
}

func TestPatchTopology(t *testing.T) {
	g, err := geometry.Plate(2, 1)
	require.NoError(t, err)
	tr, err := New(g, 0)
	require.NoError(t, err)
	edges := tr.PatchTopology()
	assert.Len(t, edges, 7)
	assert.Contains(t, edges, PatchEdge{Patch: 0, Neighbor: 1, Edge: 1, NeighborEdge: 3})
	assert.Contains(t, edges, PatchEdge{Patch: 1, Neighbor: None, Edge: 0, NeighborEdge: None})
}

func TestPatchBoundaryLabels(t *testing.T) {
	tr, err := New(geometry.Cube(1), 2)
	require.NoError(t, err)
	counts := make(map[int]int)
	for _, l := range tr.PatchBoundaryLabels() {
		counts[l]++
	}
	// per face: 4 corner, 8 edge and 4 interior elements
	assert.Equal(t, map[int]int{2: 24, 1: 48, 0: 24}, counts)

	sq, err := New(geometry.UnitSquare(), 2)
	require.NoError(t, err)
	counts = make(map[int]int)
	for _, l := range sq.PatchBoundaryLabels() {
		counts[l]++
	}
	assert.Equal(t, map[int]int{-1: 12, 0: 4}, counts)
	assert.Contains(t, sq.String(), "Elements on an open boundary: 12")
}

func TestIdentifyPatch(t *testing.T) {
	tr, err := New(geometry.Cube(1), 1)
	require.NoError(t, err)
	flags := tr.IdentifyPatch(3)
	var sum int
	for i, f := range flags {
		sum += f
		if f == 1 {
			assert.Equal(t, 3, tr.Leaf(i).Patch)
		}
	}
	assert.Equal(t, 4, sum)
	assert.Panics(t, func() { tr.IdentifyPatch(6) })
}

func TestSurfacePoint(t *testing.T) {
	tr, err := New(geometry.Square(r3.Vec{X: 1}, 2), 2)
	require.NoError(t, err)
	leaf := tr.Leaf(3) // child 3 of child 0: llc (0, 0.25)
	sp := tr.SurfacePoint(leaf, [2]float64{0.5, 0.5}, 1)
	assert.InDelta(t, 1+2*0.125, sp.X.X, 1e-15)
	assert.InDelta(t, 2*0.375, sp.X.Y, 1e-15)
	assert.InDelta(t, 4, sp.Measure(), 1e-14)
	assert.Panics(t, func() { tr.SurfacePoint(tr.Root(), [2]float64{}, 1) })
}
