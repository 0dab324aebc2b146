// Package h2matrix assembles and applies the compressed interaction operator
// of a surface mesh: dense near field blocks plus low rank far field blocks
// coupled through the multipole basis of the cluster tree.
package h2matrix

import (
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/james-bowman/sparse"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/H2Kernel/blocktree"
	"github.com/notargets/H2Kernel/element"
	"github.com/notargets/H2Kernel/elementtree"
	"github.com/notargets/H2Kernel/kernel"
	"github.com/notargets/H2Kernel/multipole"
	"github.com/notargets/H2Kernel/quadrature"
)

// Stats summarizes the storage of an assembled operator.
type Stats struct {
	blocktree.Stats
	// StoredValues counts the numbers held by all leaves.
	StoredValues int
	// Compression is StoredValues over the entries of the dense operator.
	Compression float64
	Assembly    time.Duration
}

// Operator is the compressed operator. It is immutable after New and safe
// for concurrent products.
type Operator struct {
	cfg   Config
	form  formStrategy
	tree  *elementtree.Tree
	bt    *blocktree.Tree
	basis element.Basis
	kern  kernel.Kernel
	mats  *multipole.Matrices

	transform *sparse.CSR
	nonzeros  []nonzero
	globalLen int

	rules   quadrature.Provider
	cache   *multipole.Cache
	workers int
	logger  *slog.Logger

	dim   int // vector components
	nb    int // shape functions per element
	n     int // length of one component
	steps int // cluster level
	stats Stats
}

type nonzero struct {
	i, j int
	v    float64
}

// New classifies the interactions of the mesh, builds the multipole matrices
// and assembles every leaf.
func New(tree *elementtree.Tree, basis element.Basis, kern kernel.Kernel, cfg Config, opts ...Option) (*Operator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	form := cfg.Form.strategy()
	if kern.Dim() != form.components() {
		return nil, fmt.Errorf("%w: %v form has %d components, kernel has %d",
			ErrKernelDimension, cfg.Form, form.components(), kern.Dim())
	}
	op := &Operator{
		cfg:     cfg,
		form:    form,
		tree:    tree,
		basis:   basis,
		kern:    kern,
		rules:   quadrature.NewGaussLegendre(),
		workers: runtime.GOMAXPROCS(0),
		logger:  slog.New(slog.DiscardHandler),
		dim:     form.components(),
		nb:      basis.Count(),
	}
	for _, opt := range opts {
		opt(op)
	}
	if op.cache == nil {
		op.cache = multipole.NewCache(op.rules)
	}
	op.n = tree.NumElements() * op.nb
	if err := op.setTransform(); err != nil {
		return nil, err
	}

	params := blocktree.Parameters{
		Eta:              cfg.Eta,
		MinClusterLevel:  cfg.MinClusterLevel,
		MaxLevel:         tree.MaxLevel(),
		PolynomialDegree: basis.Degree(),
	}
	bt, err := blocktree.Build(tree, params,
		blocktree.WithWorkers(op.workers), blocktree.WithLogger(op.logger))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	op.bt = bt
	op.steps = params.ClusterLevel()
	op.mats = op.cache.Get(cfg.InterpolationPoints, basis, op.steps, cfg.MinClusterLevel)

	start := time.Now()
	if err := op.assemble(); err != nil {
		return nil, err
	}
	op.stats = op.collectStats(time.Since(start))
	op.logger.Info("operator assembled",
		slog.String("form", cfg.Form.String()),
		slog.Int("dense", op.stats.Dense),
		slog.Int("low_rank", op.stats.LowRank),
		slog.Int("stored", op.stats.StoredValues),
		slog.Float64("compression", op.stats.Compression),
		slog.Duration("elapsed", op.stats.Assembly))
	return op, nil
}

func (op *Operator) setTransform() error {
	if op.transform == nil {
		if op.form.conforming() {
			return fmt.Errorf("%w: %v form needs a transform", ErrTransformShape, op.cfg.Form)
		}
		return nil
	}
	r, c := op.transform.Dims()
	if r != op.DiscontinuousLen() {
		return fmt.Errorf("%w: %d rows, want %d", ErrTransformShape, r, op.DiscontinuousLen())
	}
	op.globalLen = c
	op.transform.DoNonZero(func(i, j int, v float64) {
		op.nonzeros = append(op.nonzeros, nonzero{i: i, j: j, v: v})
	})
	return nil
}

func (op *Operator) assemble() error {
	var (
		rule   = op.rules.Square(op.cfg.EffectiveQuadratureDegree(op.basis.Degree()))
		data   = newElementData(op.tree, op.basis, rule, op.workers)
		np2    = len(op.mats.Points2D)
		leaves = op.bt.Leaves()
	)
	cost := func(n *blocktree.Node) int {
		if n.Adm == blocktree.LowRank {
			return np2 * np2
		}
		return n.Rows * n.Cols * data.nq * data.nq
	}
	var g errgroup.Group
	g.SetLimit(op.workers)
	for _, part := range partitionLeaves(leaves, 4*op.workers, cost) {
		g.Go(func() error {
			for _, n := range part {
				op.assembleLeaf(data, n)
			}
			return nil
		})
	}
	return g.Wait()
}

func (op *Operator) assembleLeaf(data *elementData, n *blocktree.Node) {
	if n.Adm == blocktree.LowRank {
		c1, c2 := op.tree.Node(n.Cluster1), op.tree.Node(n.Cluster2)
		n.Leaf = &blocktree.Leaf{
			LowRank: true,
			Blocks:  lowRankBlocks(op.tree, op.kern, op.mats.Points2D, c1, c2),
		}
		return
	}
	r0, r1 := n.RowElements()
	c0, c1 := n.ColElements()
	n.Leaf = &blocktree.Leaf{Blocks: data.denseBlocks(op.kern, r0, r1, c0, c1)}
}

func (op *Operator) collectStats(elapsed time.Duration) Stats {
	st := Stats{Stats: op.bt.Stats(), Assembly: elapsed}
	for _, n := range op.bt.Leaves() {
		for _, b := range n.Leaf.Blocks {
			r, c := b.Dims()
			st.StoredValues += r * c
		}
	}
	l := float64(op.DiscontinuousLen())
	st.Compression = float64(st.StoredValues) / (l * l)
	return st
}

// Dims returns the size of the operator as seen from outside, the
// transform's column count when one is set.
func (op *Operator) Dims() (r, c int) {
	if op.transform != nil {
		return op.globalLen, op.globalLen
	}
	l := op.DiscontinuousLen()
	return l, l
}

// DiscontinuousLen is components × shape functions per element × elements.
func (op *Operator) DiscontinuousLen() int { return op.dim * op.n }

func (op *Operator) BlockTree() *blocktree.Tree     { return op.bt }
func (op *Operator) Matrices() *multipole.Matrices { return op.mats }
func (op *Operator) Config() Config                { return op.cfg }
func (op *Operator) Stats() Stats                  { return op.stats }

// MulVecTo computes dst = A x, or Aᵀ x when trans is set. An empty dst is
// resized. Mismatched lengths panic with mat.ErrShape.
func (op *Operator) MulVecTo(dst *mat.VecDense, trans bool, x mat.Vector) {
	r, c := op.Dims()
	if x.Len() != c {
		panic(mat.ErrShape)
	}
	if dst.IsEmpty() {
		dst.ReuseAsVec(r)
	} else if dst.Len() != r {
		panic(mat.ErrShape)
	}
	in := make([]float64, c)
	for i := range in {
		in[i] = x.AtVec(i)
	}

	xd := in
	if op.transform != nil {
		xd = make([]float64, op.DiscontinuousLen())
		for _, nz := range op.nonzeros {
			xd[nz.i] += nz.v * in[nz.j]
		}
	}
	out := op.apply(xd, trans)
	if op.transform != nil {
		global := make([]float64, r)
		for _, nz := range op.nonzeros {
			global[nz.j] += nz.v * out[nz.i]
		}
		out = global
	}
	dst.CopyVec(mat.NewVecDense(r, out))
}

// Apply returns A x in a new vector.
func (op *Operator) Apply(x mat.Vector) *mat.VecDense {
	var y mat.VecDense
	op.MulVecTo(&y, false, x)
	return &y
}

// accumulator gathers one worker's share of phase two.
type accumulator struct {
	y       []float64
	buffers [][]*mat.Dense // [component][forward level]
}

func (op *Operator) newAccumulator(levels []*mat.Dense) *accumulator {
	acc := &accumulator{
		y:       make([]float64, op.DiscontinuousLen()),
		buffers: make([][]*mat.Dense, op.dim),
	}
	for a := range acc.buffers {
		acc.buffers[a] = make([]*mat.Dense, len(levels))
		for l, v := range levels {
			r, c := v.Dims()
			acc.buffers[a][l] = mat.NewDense(r, c, nil)
		}
	}
	return acc
}

func (acc *accumulator) merge(o *accumulator) {
	floats.Add(acc.y, o.y)
	for a := range acc.buffers {
		for l, b := range acc.buffers[a] {
			b.Add(b, o.buffers[a][l])
		}
	}
}

// apply runs the three phases on a discontinuous vector.
func (op *Operator) apply(x []float64, trans bool) []float64 {
	var (
		start  = time.Now()
		moment = op.mats.Moment
		_, m   = moment.Dims()
		rows   = op.n / m
		fwd    = make([][]*mat.Dense, op.dim)
	)
	for b := range fwd {
		v := mat.NewDense(rows, m, x[b*op.n:(b+1)*op.n])
		fwd[b] = multipole.Forward(moment, op.mats.Transfer, op.steps, v, op.workers)
	}

	var (
		acc = op.newAccumulator(fwd[0])
		mu  sync.Mutex
		g   errgroup.Group
	)
	g.SetLimit(op.workers)
	for _, part := range partitionLeaves(op.bt.Leaves(), op.workers, op.applyCost) {
		g.Go(func() error {
			var (
				local = op.newAccumulator(fwd[0])
				tmp   mat.VecDense
			)
			for _, n := range part {
				op.addLeaf(local, n, x, fwd, trans, &tmp)
			}
			mu.Lock()
			acc.merge(local)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for a := 0; a < op.dim; a++ {
		y := multipole.Backward(moment, op.mats.Transfer, op.steps, acc.buffers[a], op.workers)
		floats.Add(acc.y[a*op.n:(a+1)*op.n], y.RawMatrix().Data)
	}
	op.logger.Debug("matrix vector product",
		slog.Bool("transposed", trans),
		slog.Duration("elapsed", time.Since(start)))
	return acc.y
}

func (op *Operator) applyCost(n *blocktree.Node) int {
	if n.Leaf.LowRank {
		np2 := len(op.mats.Points2D)
		return np2 * np2
	}
	return n.Rows * n.Cols
}

// addLeaf adds the contribution of one leaf. Dense leaves act on the
// coefficients directly, low rank leaves map the forward values of the
// column cluster to the backward buffer of the row cluster.
func (op *Operator) addLeaf(acc *accumulator, n *blocktree.Node, x []float64, fwd [][]*mat.Dense, trans bool, tmp *mat.VecDense) {
	for a := 0; a < op.dim; a++ {
		for b := 0; b < op.dim; b++ {
			F := mat.Matrix(n.Leaf.Blocks[a*op.dim+b])
			out, in := a, b
			if trans {
				F = F.T()
				out, in = b, a
			}
			if n.Leaf.LowRank {
				f := op.steps - n.Level()
				r, c := n.RowID(), n.ColID()
				if trans {
					r, c = c, r
				}
				mulAdd(acc.buffers[out][f].RawRowView(r), F, fwd[in][f].RawRowView(c), tmp)
				continue
			}
			r0, r1 := n.RowRange()
			c0, c1 := n.ColRange()
			if trans {
				r0, r1, c0, c1 = c0, c1, r0, r1
			}
			mulAdd(acc.y[out*op.n+r0:out*op.n+r1], F, x[in*op.n+c0:in*op.n+c1], tmp)
		}
	}
}

// mulAdd adds a x to dst.
func mulAdd(dst []float64, a mat.Matrix, x []float64, tmp *mat.VecDense) {
	tmp.Reset()
	tmp.MulVec(a, mat.NewVecDense(len(x), x))
	floats.Add(dst, tmp.RawVector().Data)
}

// ToDense expands the operator column by column.
func (op *Operator) ToDense() *mat.Dense {
	var (
		r, c = op.Dims()
		A    = mat.NewDense(r, c, nil)
		e    = mat.NewVecDense(c, nil)
		col  = mat.NewVecDense(r, nil)
	)
	for j := 0; j < c; j++ {
		e.SetVec(j, 1)
		op.MulVecTo(col, false, e)
		A.SetCol(j, col.RawVector().Data)
		e.SetVec(j, 0)
	}
	return A
}

func (op *Operator) String() string {
	var (
		sb strings.Builder
		st = op.stats
		r  = op.DiscontinuousLen()
	)
	sb.WriteString("=== Compressed Operator Summary ===\n")
	sb.WriteString(fmt.Sprintf("  Form: %v, components: %d\n", op.cfg.Form, op.dim))
	sb.WriteString(fmt.Sprintf("  Elements: %d, shape functions per element: %d\n",
		op.tree.NumElements(), op.nb))
	sb.WriteString(fmt.Sprintf("  Discontinuous length: %d\n", r))
	if op.transform != nil {
		sb.WriteString(fmt.Sprintf("  Global unknowns: %d\n", op.globalLen))
	}
	sb.WriteString(fmt.Sprintf("  eta: %g, minimum cluster level: %d, interpolation points: %d^2\n",
		op.cfg.Eta, op.cfg.MinClusterLevel, op.cfg.InterpolationPoints))
	sb.WriteString(fmt.Sprintf("  Dense leaves: %d, low rank leaves: %d\n", st.Dense, st.LowRank))
	sb.WriteString(fmt.Sprintf("  Stored values: %d (%.2f%% of dense)\n", st.StoredValues, 100*st.Compression))
	sb.WriteString(fmt.Sprintf("  Assembly: %v\n", st.Assembly))
	return sb.String()
}
