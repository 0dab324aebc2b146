// Package elementtree partitions every patch of a surface into a uniformly
// refined quadtree of square elements. Nodes live in a single arena and refer
// to each other by index; the root sits at index 0 and has one child per
// patch.
package elementtree

import (
	"fmt"
	"log/slog"
	"math"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/H2Kernel/geometry"
)

// None marks an absent node reference.
const None = -1

// PointTolerance is the distance below which two patch corners are the same
// point.
const PointTolerance = 1e-9

// Lower left corners of the four children in units of the parent's side.
var childLLC = [4][2]float64{{0, 0}, {0.5, 0}, {0.5, 0.5}, {0, 0.5}}

// Node is one cluster of the tree. Edge j of a node runs from Vertices[j]
// to Vertices[(j+1)%4].
type Node struct {
	Index int // position in the arena
	// ID is dense per level: the patch index at level 0 and 4*parent+i for
	// child i below. The root has ID -1.
	ID    int
	Level int
	Patch int
	LLC   [2]float64

	Vertices [4]int
	Midpoint r3.Vec
	Radius   float64

	Neighbors     [4]int
	NeighborEdges [4]int // local index of the shared edge on the neighbour's side

	Parent   int
	Children []int
}

// H is the side length of the node in patch parameter space.
func (n *Node) H() float64 {
	if n.Level < 0 {
		return 1
	}
	return math.Ldexp(1, -n.Level)
}

func (n *Node) IsLeaf() bool { return len(n.Children) == 0 }

func (n *Node) IsRoot() bool { return n.Level < 0 }

// Tree is the uniformly refined quadtree over all patches of a geometry.
type Tree struct {
	geom     geometry.Geometry
	nodes    []Node
	points   []r3.Vec
	leaves   []int
	maxLevel int
	logger   *slog.Logger
}

// Option configures New.
type Option func(*Tree)

// WithLogger sets the logger that reports the build.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tree) { t.logger = l }
}

// New builds the tree for geom refined uniformly to maxLevel.
func New(geom geometry.Geometry, maxLevel int, opts ...Option) (*Tree, error) {
	if len(geom) == 0 {
		return nil, ErrEmptyGeometry
	}
	if maxLevel < 0 {
		return nil, fmt.Errorf("%w: got %d", ErrNegativeLevel, maxLevel)
	}
	t := &Tree{
		geom:   geom,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(t)
	}

	P := len(geom)
	t.nodes = make([]Node, 1, 1+P*expectedNodes(maxLevel))
	t.nodes[0] = Node{
		Index:         0,
		ID:            -1,
		Level:         -1,
		Patch:         None,
		Vertices:      [4]int{None, None, None, None},
		Neighbors:     [4]int{None, None, None, None},
		NeighborEdges: [4]int{None, None, None, None},
		Parent:        None,
		Children:      make([]int, P),
	}
	corners := [4][2]float64{{0, 0}, {1, 0}, {1, 1}, {0, 1}}
	for p, patch := range geom {
		var verts [4]int
		for j, c := range corners {
			verts[j] = t.findOrAddPoint(patch.Eval(c[0], c[1]))
		}
		idx := len(t.nodes)
		t.nodes = append(t.nodes, Node{
			Index:         idx,
			ID:            p,
			Level:         0,
			Patch:         p,
			Vertices:      verts,
			Neighbors:     [4]int{None, None, None, None},
			NeighborEdges: [4]int{None, None, None, None},
			Parent:        0,
		})
		t.nodes[0].Children[p] = idx
	}
	t.updateTopology(t.nodes[0].Children)
	t.collectLeaves()

	for l := 0; l < maxLevel; l++ {
		t.refine()
	}
	t.computeBalls()

	t.logger.Debug("element tree built",
		slog.Int("patches", P),
		slog.Int("level", t.maxLevel),
		slog.Int("elements", t.NumElements()),
		slog.Int("points", t.NumPoints()))
	return t, nil
}

func expectedNodes(level int) int {
	return int((math.Pow(4, float64(level+1)) - 1) / 3)
}

func (t *Tree) findOrAddPoint(x r3.Vec) int {
	for i, q := range t.points {
		if r3.Norm(r3.Sub(x, q)) < PointTolerance {
			return i
		}
	}
	return t.addPoint(x)
}

func (t *Tree) addPoint(x r3.Vec) int {
	t.points = append(t.points, x)
	return len(t.points) - 1
}

// collectLeaves records the leaves in depth first traversal order.
func (t *Tree) collectLeaves() {
	t.leaves = t.leaves[:0]
	var walk func(int)
	walk = func(i int) {
		n := &t.nodes[i]
		if n.IsLeaf() && !n.IsRoot() {
			t.leaves = append(t.leaves, i)
			return
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(0)
}

func (t *Tree) Geometry() geometry.Geometry { return t.geom }
func (t *Tree) NumPatches() int              { return len(t.geom) }
func (t *Tree) NumElements() int             { return len(t.leaves) }
func (t *Tree) NumPoints() int               { return len(t.points) }
func (t *Tree) NumNodes() int                { return len(t.nodes) }
func (t *Tree) MaxLevel() int                { return t.maxLevel }
func (t *Tree) Root() *Node                  { return &t.nodes[0] }

// Node returns the node at arena index i. Callers must not modify it.
func (t *Tree) Node(i int) *Node { return &t.nodes[i] }

// Leaves returns the arena indices of all elements in traversal order, which
// is also ascending ID order.
func (t *Tree) Leaves() []int { return t.leaves }

// Leaf returns the element with the given ID.
func (t *Tree) Leaf(id int) *Node { return &t.nodes[t.leaves[id]] }

// Height is the number of levels between the node and the elements.
func (t *Tree) Height(n *Node) int { return t.maxLevel - n.Level }

// ElementRange returns the half open range of element IDs below n.
func (t *Tree) ElementRange(n *Node) (first, end int) {
	if n.IsRoot() {
		return 0, t.NumElements()
	}
	span := 1 << (2 * t.Height(n))
	return n.ID * span, (n.ID + 1) * span
}

// GlobalID enumerates every non-root node level by level.
func (t *Tree) GlobalID(n *Node) int {
	if n.IsRoot() {
		return None
	}
	return t.NumPatches()*(((1<<(2*n.Level))-1)/3) + n.ID
}

// SurfacePoint maps reference coordinates on node n to the surface.
func (t *Tree) SurfacePoint(n *Node, ref [2]float64, w float64) geometry.SurfacePoint {
	if n.IsRoot() {
		panic("elementtree: the root has no surface parametrization")
	}
	return geometry.MapToSurface(t.geom[n.Patch], n.LLC, n.H(), ref, w)
}

// Walk visits every node depth first, parents before children.
func (t *Tree) Walk(fn func(n *Node)) {
	var walk func(int)
	walk = func(i int) {
		fn(&t.nodes[i])
		for _, c := range t.nodes[i].Children {
			walk(c)
		}
	}
	walk(0)
}

func (t *Tree) String() string {
	var sb strings.Builder
	sb.WriteString("=== Element Tree Summary ===\n")
	sb.WriteString(fmt.Sprintf("  Patches: %d\n", t.NumPatches()))
	sb.WriteString(fmt.Sprintf("  Max level: %d\n", t.maxLevel))
	sb.WriteString(fmt.Sprintf("  Elements: %d\n", t.NumElements()))
	sb.WriteString(fmt.Sprintf("  Points: %d\n", t.NumPoints()))
	sb.WriteString(fmt.Sprintf("  Tree nodes: %d\n", t.NumNodes()))
	root := t.Root()
	sb.WriteString(fmt.Sprintf("  Bounding ball: centre (%.4f, %.4f, %.4f), radius %.4f\n",
		root.Midpoint.X, root.Midpoint.Y, root.Midpoint.Z, root.Radius))
	var boundary int
	for _, l := range t.PatchBoundaryLabels() {
		if l < 0 {
			boundary++
		}
	}
	sb.WriteString(fmt.Sprintf("  Elements on an open boundary: %d\n", boundary))
	return sb.String()
}
