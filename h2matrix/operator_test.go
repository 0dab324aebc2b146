package h2matrix

import (
	"bytes"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/H2Kernel/blocktree"
	"github.com/notargets/H2Kernel/element"
	"github.com/notargets/H2Kernel/elementtree"
	"github.com/notargets/H2Kernel/geometry"
	"github.com/notargets/H2Kernel/kernel"
	"github.com/notargets/H2Kernel/multipole"
	"github.com/notargets/H2Kernel/quadrature"
)

// skewed is a smooth kernel that is not symmetric in x and y.
func skewed() kernel.Scalar {
	return kernel.Scalar{F: func(x, y r3.Vec) float64 {
		return (1 + 0.5*x.X - 0.25*y.Z) / (1 + r3.Norm(r3.Sub(x, y)))
	}}
}

func newTree(t *testing.T, geom geometry.Geometry, level int) *elementtree.Tree {
	t.Helper()
	tree, err := elementtree.New(geom, level)
	require.NoError(t, err)
	return tree
}

func newBasis(t *testing.T, p int) *element.Legendre {
	t.Helper()
	b, err := element.NewLegendre(p)
	require.NoError(t, err)
	return b
}

func relativeError(got, want mat.Matrix) float64 {
	var d mat.Dense
	d.Sub(got, want)
	return mat.Norm(&d, 2) / mat.Norm(want, 2)
}

func randomVector(rng *rand.Rand, n int) *mat.VecDense {
	v := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		v.SetVec(i, 2*rng.Float64()-1)
	}
	return v
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
		ok     bool
	}{
		{"default", func(c *Config) {}, true},
		{"zero eta", func(c *Config) { c.Eta = 0 }, false},
		{"negative eta", func(c *Config) { c.Eta = -1 }, false},
		{"negative cluster level", func(c *Config) { c.MinClusterLevel = -1 }, false},
		{"no points", func(c *Config) { c.InterpolationPoints = 0 }, false},
		{"unknown form", func(c *Config) { c.Form = Form(7) }, false},
		{"negative quadrature", func(c *Config) { c.QuadratureDegree = -2 }, false},
		{"single point", func(c *Config) { c.InterpolationPoints = 1 }, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.modify(&cfg)
			err := cfg.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 1.6, cfg.Eta)
	assert.Equal(t, 1, cfg.MinClusterLevel)
	assert.Equal(t, 9, cfg.InterpolationPoints)
	assert.Equal(t, Discontinuous, cfg.Form)
	assert.Equal(t, 5, cfg.EffectiveQuadratureDegree(0))
	assert.Equal(t, 9, cfg.EffectiveQuadratureDegree(2))
}

func TestForm(t *testing.T) {
	assert.Equal(t, 1, Discontinuous.VectorDimension())
	assert.Equal(t, 1, Continuous.VectorDimension())
	assert.Equal(t, 2, DivConforming.VectorDimension())
	for _, f := range []Form{Discontinuous, Continuous, DivConforming} {
		got, err := ParseForm(f.String())
		require.NoError(t, err)
		assert.Equal(t, f, got)
	}
	_, err := ParseForm("nedelec")
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Equal(t, "Form(5)", Form(5).String())
}

func TestNewErrors(t *testing.T) {
	var (
		tree  = newTree(t, geometry.UnitSquare(), 2)
		basis = newBasis(t, 0)
	)
	t.Run("invalid config", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Eta = 0
		_, err := New(tree, basis, kernel.Smooth(), cfg)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
	t.Run("cluster level above mesh level", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.MinClusterLevel = 3
		_, err := New(tree, basis, kernel.Smooth(), cfg)
		assert.ErrorIs(t, err, ErrInvalidConfig)
		assert.ErrorIs(t, err, blocktree.ErrInvalidParameters)
	})
	t.Run("kernel dimension", func(t *testing.T) {
		_, err := New(tree, basis, kernel.Tangential{G: func(x, y r3.Vec) float64 { return 1 }}, DefaultConfig())
		assert.ErrorIs(t, err, ErrKernelDimension)
	})
	t.Run("conforming form without transform", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Form = Continuous
		_, err := New(tree, basis, kernel.Smooth(), cfg)
		assert.ErrorIs(t, err, ErrTransformShape)
	})
	t.Run("transform rows", func(t *testing.T) {
		T, err := ProlongationTransform(tree, 1, newBasis(t, 1), Discontinuous)
		require.NoError(t, err)
		_, err = New(tree, basis, kernel.Smooth(), DefaultConfig(), WithTransform(T))
		assert.ErrorIs(t, err, ErrTransformShape)
	})
}

func TestFlatSquareMatchesDenseOperator(t *testing.T) {
	var (
		tree  = newTree(t, geometry.UnitSquare(), 3)
		basis = newBasis(t, 0)
		kern  = kernel.Smooth()
		cfg   = DefaultConfig()
	)
	require.Equal(t, 64, tree.NumElements())
	cfg.QuadratureDegree = 9
	op, err := New(tree, basis, kern, cfg, WithWorkers(4))
	require.NoError(t, err)
	require.Greater(t, op.Stats().LowRank, 0)

	r, c := op.Dims()
	assert.Equal(t, 64, r)
	assert.Equal(t, 64, c)
	assert.Equal(t, 64, op.DiscontinuousLen())

	ref := DenseReference(tree, basis, kern, cfg.QuadratureDegree, 4)
	assert.Less(t, relativeError(op.ToDense(), ref), 1e-4)

	x := randomVector(rand.New(rand.NewPCG(7, 8)), c)
	var want mat.VecDense
	want.MulVec(ref, x)
	got := op.Apply(x)
	var diff mat.VecDense
	diff.SubVec(got, &want)
	assert.Less(t, diff.Norm(2)/want.Norm(2), 1e-4)
}

func TestOnesVectorNineNodes(t *testing.T) {
	var (
		tree  = newTree(t, geometry.UnitSquare(), 3)
		basis = newBasis(t, 0)
		kern  = kernel.Smooth()
		cfg   = DefaultConfig()
	)
	cfg.InterpolationPoints = 3
	cfg.QuadratureDegree = 9
	op, err := New(tree, basis, kern, cfg)
	require.NoError(t, err)
	require.Greater(t, op.Stats().LowRank, 0)

	_, c := op.Dims()
	ones := mat.NewVecDense(c, nil)
	for i := 0; i < c; i++ {
		ones.SetVec(i, 1)
	}
	var want, diff mat.VecDense
	want.MulVec(DenseReference(tree, basis, kern, cfg.QuadratureDegree, 0), ones)
	diff.SubVec(op.Apply(ones), &want)
	assert.Less(t, diff.Norm(2)/want.Norm(2), 1e-4)
}

func TestLowRankLeafMatchesFarBlock(t *testing.T) {
	var (
		tree  = newTree(t, geometry.UnitSquare(), 3)
		basis = newBasis(t, 0)
		kern  = kernel.Smooth()
		cache = multipole.NewCache(quadrature.NewGaussLegendre())
		ref   = DenseReference(tree, basis, kern, 9, 0)
		prev  = 1.
	)
	for _, n := range []int{2, 3, 4} {
		t.Run(fmt.Sprintf("points=%d", n), func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.InterpolationPoints = n
			cfg.QuadratureDegree = 9
			op, err := New(tree, basis, kern, cfg, WithCache(cache))
			require.NoError(t, err)

			var leaf *blocktree.Node
			for _, l := range op.BlockTree().Leaves() {
				if l.Leaf.LowRank && l.Level() == 2 {
					leaf = l
					break
				}
			}
			require.NotNil(t, leaf)
			r0, r1 := leaf.RowRange()
			c0, c1 := leaf.ColRange()
			// leaves tile the matrix, so this block holds only the
			// moments and coupling matrix of the chosen leaf
			got := op.ToDense().Slice(r0, r1, c0, c1)
			e := relativeError(got, ref.Slice(r0, r1, c0, c1))
			assert.Less(t, e, prev)
			assert.Less(t, e, 1e-2)
			prev = e
		})
	}
}

func TestInterpolationConvergence(t *testing.T) {
	var (
		tree  = newTree(t, geometry.UnitSquare(), 3)
		basis = newBasis(t, 0)
		kern  = kernel.Smooth()
		cache = multipole.NewCache(quadrature.NewGaussLegendre())
		ref   = DenseReference(tree, basis, kern, 9, 0)
		prev  = 1.
	)
	for _, n := range []int{2, 3, 4} {
		t.Run(fmt.Sprintf("points=%d", n), func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.InterpolationPoints = n
			cfg.QuadratureDegree = 9
			op, err := New(tree, basis, kern, cfg, WithCache(cache))
			require.NoError(t, err)
			e := relativeError(op.ToDense(), ref)
			assert.Less(t, e, prev)
			prev = e
		})
	}
	assert.Equal(t, 3, cache.Len())
}

func TestParallelMatchesSequential(t *testing.T) {
	var (
		tree  = newTree(t, geometry.Cube(2), 2)
		basis = newBasis(t, 1)
		cfg   = DefaultConfig()
		rng   = rand.New(rand.NewPCG(1, 9))
	)
	cfg.InterpolationPoints = 4
	seq, err := New(tree, basis, skewed(), cfg, WithWorkers(1))
	require.NoError(t, err)
	par, err := New(tree, basis, skewed(), cfg, WithWorkers(8))
	require.NoError(t, err)

	_, c := seq.Dims()
	x := randomVector(rng, c)
	for _, trans := range []bool{false, true} {
		var ys, yp mat.VecDense
		seq.MulVecTo(&ys, trans, x)
		par.MulVecTo(&yp, trans, x)
		assert.InDeltaSlice(t, ys.RawVector().Data, yp.RawVector().Data, 1e-12)
	}
}

func TestTransposedProduct(t *testing.T) {
	var (
		tree  = newTree(t, geometry.Cube(2), 2)
		basis = newBasis(t, 1)
		cfg   = DefaultConfig()
		rng   = rand.New(rand.NewPCG(2, 3))
	)
	cfg.InterpolationPoints = 3
	op, err := New(tree, basis, skewed(), cfg)
	require.NoError(t, err)
	A := op.ToDense()
	require.False(t, mat.EqualApprox(A, A.T(), 1e-10), "kernel should give a non-symmetric operator")

	_, c := op.Dims()
	x := randomVector(rng, c)
	var want, got mat.VecDense
	want.MulVec(A.T(), x)
	op.MulVecTo(&got, true, x)
	assert.InDeltaSlice(t, want.RawVector().Data, got.RawVector().Data, 1e-11)
}

func TestDivConforming(t *testing.T) {
	var (
		tree  = newTree(t, geometry.Cube(2), 2)
		basis = newBasis(t, 0)
		kern  = kernel.Tangential{G: func(x, y r3.Vec) float64 {
			return 1 / (1 + r3.Norm(r3.Sub(x, y)))
		}}
		cfg = DefaultConfig()
	)
	cfg.Form = DivConforming
	cfg.QuadratureDegree = 7
	// on the finest level the transform is the identity
	T, err := ProlongationTransform(tree, tree.MaxLevel(), basis, DivConforming)
	require.NoError(t, err)
	op, err := New(tree, basis, kern, cfg, WithTransform(T))
	require.NoError(t, err)

	r, _ := op.Dims()
	assert.Equal(t, 2*tree.NumElements(), r)
	assert.Equal(t, r, op.DiscontinuousLen())

	ref := DenseReference(tree, basis, kern, cfg.QuadratureDegree, 0)
	assert.Less(t, relativeError(op.ToDense(), ref), 1e-3)

	x := randomVector(rand.New(rand.NewPCG(5, 5)), r)
	var want, got mat.VecDense
	want.MulVec(ref.T(), x)
	op.MulVecTo(&got, true, x)
	var diff mat.VecDense
	diff.SubVec(&got, &want)
	assert.Less(t, diff.Norm(2)/want.Norm(2), 1e-3)
}

func TestTransformSandwich(t *testing.T) {
	var (
		tree  = newTree(t, geometry.Cube(1), 3)
		basis = newBasis(t, 1)
		cfg   = DefaultConfig()
		rng   = rand.New(rand.NewPCG(11, 12))
	)
	cfg.InterpolationPoints = 3
	T, err := ProlongationTransform(tree, 1, basis, Discontinuous)
	require.NoError(t, err)

	plain, err := New(tree, basis, skewed(), cfg)
	require.NoError(t, err)
	cfg.Form = Continuous
	global, err := New(tree, basis, skewed(), cfg, WithTransform(T))
	require.NoError(t, err)

	r, c := global.Dims()
	assert.Equal(t, 6*4, r)
	assert.Equal(t, r, c)
	assert.Equal(t, plain.DiscontinuousLen(), global.DiscontinuousLen())

	x := randomVector(rng, c)
	for _, trans := range []bool{false, true} {
		var xd, yd, want mat.VecDense
		xd.MulVec(T, x)
		plain.MulVecTo(&yd, trans, &xd)
		want.MulVec(T.T(), &yd)

		var got mat.VecDense
		global.MulVecTo(&got, trans, x)
		assert.InDeltaSlice(t, want.RawVector().Data, got.RawVector().Data, 1e-12)
	}
}

func TestProlongationTransform(t *testing.T) {
	var (
		tree  = newTree(t, geometry.UnitSquare(), 3)
		basis = newBasis(t, 1)
	)
	T, err := ProlongationTransform(tree, 1, basis, Discontinuous)
	require.NoError(t, err)
	r, c := T.Dims()
	assert.Equal(t, 64*4, r)
	assert.Equal(t, 4, c)
	assert.Equal(t, 64, T.NNZ())

	// the constant one on the coarse cells lands on the constant shapes
	ones := mat.NewVecDense(c, []float64{1, 1, 1, 1})
	var fine mat.VecDense
	fine.MulVec(T, ones)
	for i := 0; i < r; i++ {
		want := 0.
		if i%4 == 0 {
			want = 0.25
		}
		assert.InDelta(t, want, fine.AtVec(i), 1e-15)
	}
	// element 17 sits in the second level 1 cell
	assert.Equal(t, 0.25, T.At(17*4, 1))

	_, err = ProlongationTransform(tree, 4, basis, Discontinuous)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = ProlongationTransform(tree, -1, basis, Discontinuous)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestDimensionMismatchPanics(t *testing.T) {
	var (
		tree     = newTree(t, geometry.UnitSquare(), 2)
		basis    = newBasis(t, 0)
		op, err  = New(tree, basis, kernel.Smooth(), DefaultConfig())
		n        = tree.NumElements()
		wrongDst = mat.NewVecDense(n+1, nil)
	)
	require.NoError(t, err)
	assert.PanicsWithValue(t, mat.ErrShape, func() {
		op.Apply(mat.NewVecDense(n-1, nil))
	})
	assert.PanicsWithValue(t, mat.ErrShape, func() {
		op.MulVecTo(wrongDst, false, mat.NewVecDense(n, nil))
	})
	assert.NotPanics(t, func() {
		op.MulVecTo(mat.NewVecDense(n, nil), true, mat.NewVecDense(n, nil))
	})
}

func TestPartitionLeaves(t *testing.T) {
	var (
		tree  = newTree(t, geometry.Cube(1), 3)
		bt, _ = blocktree.Build(tree, blocktree.Parameters{Eta: 1.6, MinClusterLevel: 1, MaxLevel: 3})
		cost  = func(n *blocktree.Node) int { return n.Rows * n.Cols }
	)
	require.NotNil(t, bt)
	leaves := bt.Leaves()
	for _, parts := range []int{1, 3, 8, len(leaves) + 5} {
		t.Run(fmt.Sprintf("parts=%d", parts), func(t *testing.T) {
			groups := partitionLeaves(leaves, parts, cost)
			assert.LessOrEqual(t, len(groups), parts)
			var flat []*blocktree.Node
			for _, g := range groups {
				assert.NotEmpty(t, g)
				flat = append(flat, g...)
			}
			assert.Equal(t, leaves, flat)
		})
	}
	assert.Nil(t, partitionLeaves(nil, 4, cost))
}

func TestStatsAndLogging(t *testing.T) {
	var (
		buf   bytes.Buffer
		log   = slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
		tree  = newTree(t, geometry.UnitSquare(), 3)
		basis = newBasis(t, 1)
		cfg   = DefaultConfig()
	)
	cfg.InterpolationPoints = 3
	op, err := New(tree, basis, kernel.Gaussian(0.5), cfg, WithLogger(log))
	require.NoError(t, err)

	st := op.Stats()
	var stored int
	for _, n := range op.BlockTree().Leaves() {
		require.NotNil(t, n.Leaf)
		assert.Equal(t, n.Adm == blocktree.LowRank, n.Leaf.LowRank)
		for _, b := range n.Leaf.Blocks {
			r, c := b.Dims()
			if n.Leaf.LowRank {
				assert.Equal(t, 9, r)
				assert.Equal(t, 9, c)
			} else {
				assert.Equal(t, 4*n.Rows, r)
				assert.Equal(t, 4*n.Cols, c)
			}
			stored += r * c
		}
	}
	assert.Equal(t, stored, st.StoredValues)
	l := float64(op.DiscontinuousLen())
	assert.InDelta(t, float64(stored)/(l*l), st.Compression, 1e-15)

	op.Apply(mat.NewVecDense(op.DiscontinuousLen(), nil))
	out := buf.String()
	assert.Contains(t, out, "block cluster tree built")
	assert.Contains(t, out, "operator assembled")
	assert.Contains(t, out, "matrix vector product")
	assert.True(t, strings.HasPrefix(op.String(), "=== Compressed Operator Summary ==="))
}

func TestDenseBlocksSymmetricKernel(t *testing.T) {
	var (
		tree  = newTree(t, geometry.UnitSquare(), 2)
		basis = newBasis(t, 2)
		ref   = DenseReference(tree, basis, kernel.Gaussian(0.3), 6, 2)
	)
	r, c := ref.Dims()
	require.Equal(t, 16*9, r)
	require.Equal(t, r, c)
	assert.True(t, mat.EqualApprox(ref, ref.T(), 1e-13))
	// constant shapes integrate the kernel, which is positive
	for i := 0; i < 16; i++ {
		assert.Greater(t, ref.At(9*i, 9*i), 0.)
	}
	assert.False(t, floats.HasNaN(ref.RawMatrix().Data))
}
