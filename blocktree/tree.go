// Package blocktree partitions the interaction of an element tree with itself
// into dense near field blocks and low rank far field blocks.
package blocktree

import (
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/H2Kernel/elementtree"
)

// Leaf carries the numeric content of a Dense or LowRank block, one matrix
// per (row component, column component) pair in row-major order.
type Leaf struct {
	LowRank bool
	Blocks  []*mat.Dense
}

// Node addresses the interaction of two element tree clusters.
type Node struct {
	Cluster1, Cluster2 int // arena indices in the element tree
	Adm                Admissibility
	Rows, Cols         int // element counts
	// Children of a Refine node, row-major over the children of the two
	// clusters.
	Children []*Node
	Leaf     *Leaf

	params       *Parameters
	level        int
	rowID, colID int
	rows, cols   [2]int // element ranges
}

func (n *Node) Level() int { return n.level }

// RowID and ColID are the level-local IDs of the two clusters.
func (n *Node) RowID() int { return n.rowID }
func (n *Node) ColID() int { return n.colID }

func (n *Node) IsLeaf() bool { return n.Adm != Refine }

// RowElements returns the half open element range of the row cluster.
func (n *Node) RowElements() (first, end int) { return n.rows[0], n.rows[1] }
func (n *Node) ColElements() (first, end int) { return n.cols[0], n.cols[1] }

// RowRange returns the half open range of the row cluster's coefficients in
// a single component vector.
func (n *Node) RowRange() (first, end int) {
	nb := n.params.BasisPerElement()
	return nb * n.rows[0], nb * n.rows[1]
}

func (n *Node) ColRange() (first, end int) {
	nb := n.params.BasisPerElement()
	return nb * n.cols[0], nb * n.cols[1]
}

func (n *Node) Parameters() *Parameters { return n.params }

// Tree is a block cluster tree over the product of an element tree with itself.
type Tree struct {
	root    *Node
	params  *Parameters
	et      *elementtree.Tree
	leaves  []*Node
	workers int
	logger  *slog.Logger
}

// Option configures Build.
type Option func(*Tree)

// WithWorkers bounds the goroutines used to expand the tree.
func WithWorkers(n int) Option {
	return func(t *Tree) {
		if n > 0 {
			t.workers = n
		}
	}
}

// WithLogger sets the logger that reports the build.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tree) { t.logger = l }
}

// Build classifies the element tree against itself starting from the pair
// (root, root). params.MaxLevel must match the element tree.
func Build(et *elementtree.Tree, params Parameters, opts ...Option) (*Tree, error) {
	if params.MaxLevel != et.MaxLevel() {
		return nil, fmt.Errorf("%w: maximum level %d does not match element tree level %d",
			ErrInvalidParameters, params.MaxLevel, et.MaxLevel())
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	t := &Tree{
		params:  &params,
		et:      et,
		workers: runtime.GOMAXPROCS(0),
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(t)
	}

	start := time.Now()
	t.root = t.newNode(et.Root(), et.Root())

	var g errgroup.Group
	g.SetLimit(t.workers)
	t.expand(&g, t.root)
	if err := g.Wait(); err != nil {
		return nil, err
	}
	t.collectLeaves()

	st := t.Stats()
	t.logger.Info("block cluster tree built",
		slog.Int("dense", st.Dense),
		slog.Int("low_rank", st.LowRank),
		slog.Int("depth", st.Depth),
		slog.Duration("elapsed", time.Since(start)))
	return t, nil
}

func (t *Tree) newNode(c1, c2 *elementtree.Node) *Node {
	n := &Node{
		Cluster1: c1.Index,
		Cluster2: c2.Index,
		params:   t.params,
		level:    c1.Level,
		rowID:    c1.ID,
		colID:    c2.ID,
	}
	n.rows[0], n.rows[1] = t.et.ElementRange(c1)
	n.cols[0], n.cols[1] = t.et.ElementRange(c2)
	n.Rows = n.rows[1] - n.rows[0]
	n.Cols = n.cols[1] - n.cols[0]
	n.Adm = Compare(t.params, c1, c2)
	return n
}

// expand refines n recursively. Sub-pairs are handed to the pool while it
// has room and built inline otherwise.
func (t *Tree) expand(g *errgroup.Group, n *Node) {
	if n.Adm != Refine {
		n.Leaf = &Leaf{LowRank: n.Adm == LowRank}
		return
	}
	var (
		c1 = t.et.Node(n.Cluster1)
		c2 = t.et.Node(n.Cluster2)
	)
	n.Children = make([]*Node, len(c1.Children)*len(c2.Children))
	for i, s1 := range c1.Children {
		for j, s2 := range c2.Children {
			child := t.newNode(t.et.Node(s1), t.et.Node(s2))
			n.Children[i*len(c2.Children)+j] = child
			if !g.TryGo(func() error {
				t.expand(g, child)
				return nil
			}) {
				t.expand(g, child)
			}
		}
	}
}

func (t *Tree) collectLeaves() {
	t.leaves = t.leaves[:0]
	t.Walk(func(n *Node) {
		if n.IsLeaf() {
			t.leaves = append(t.leaves, n)
		}
	})
}

func (t *Tree) Root() *Node                    { return t.root }
func (t *Tree) Parameters() *Parameters        { return t.params }
func (t *Tree) ElementTree() *elementtree.Tree { return t.et }

// Leaves returns every Dense and LowRank node in depth first order.
func (t *Tree) Leaves() []*Node { return t.leaves }

// Walk visits all nodes depth first, parents before children.
func (t *Tree) Walk(fn func(n *Node)) {
	var walk func(*Node)
	walk = func(n *Node) {
		fn(n)
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(t.root)
}

// Stats counts the leaves of a tree and the matrix entries they cover.
type Stats struct {
	Refine, Dense, LowRank int
	Depth                  int
	// DenseEntries counts element pairs covered by dense blocks, LowRankEntries
	// those covered by low rank blocks.
	DenseEntries, LowRankEntries int
}

// Stats walks the tree and tallies its leaves.
func (t *Tree) Stats() Stats {
	var st Stats
	t.Walk(func(n *Node) {
		st.Depth = max(st.Depth, n.level+1)
		switch n.Adm {
		case Refine:
			st.Refine++
		case Dense:
			st.Dense++
			st.DenseEntries += n.Rows * n.Cols
		case LowRank:
			st.LowRank++
			st.LowRankEntries += n.Rows * n.Cols
		}
	})
	return st
}

func (t *Tree) String() string {
	var (
		sb    strings.Builder
		st    = t.Stats()
		total = float64(st.DenseEntries + st.LowRankEntries)
	)
	sb.WriteString("=== Block Cluster Tree Summary ===\n")
	sb.WriteString(fmt.Sprintf("  eta: %g, minimum cluster level: %d, mesh level: %d\n",
		t.params.Eta, t.params.MinClusterLevel, t.params.MaxLevel))
	sb.WriteString(fmt.Sprintf("  Depth: %d\n", st.Depth))
	sb.WriteString(fmt.Sprintf("  Refined pairs: %d\n", st.Refine))
	sb.WriteString(fmt.Sprintf("  Dense leaves: %d (%.2f%% of element pairs)\n",
		st.Dense, 100*float64(st.DenseEntries)/total))
	sb.WriteString(fmt.Sprintf("  Low rank leaves: %d (%.2f%% of element pairs)\n",
		st.LowRank, 100*float64(st.LowRankEntries)/total))
	return sb.String()
}
