package main

import (
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/plot/vg"

	"github.com/notargets/H2Kernel/config"
	"github.com/notargets/H2Kernel/element"
	"github.com/notargets/H2Kernel/elementtree"
	"github.com/notargets/H2Kernel/geometry"
	"github.com/notargets/H2Kernel/h2matrix"
	"github.com/notargets/H2Kernel/kernel"
	"github.com/notargets/H2Kernel/visualize"
)

func buildGeometry(m config.MeshConfig) (geometry.Geometry, error) {
	switch m.Geometry {
	case "square":
		return geometry.Square(r3.Vec{}, m.Side), nil
	case "cube":
		return geometry.Cube(m.Side), nil
	case "plate":
		return geometry.Plate(m.PlateX, m.PlateY)
	}
	return nil, fmt.Errorf("unknown geometry %q", m.Geometry)
}

func buildKernel(o config.OperatorConfig, form h2matrix.Form) kernel.Kernel {
	scalar := kernel.Smooth()
	if o.Kernel == "gaussian" {
		scalar = kernel.Gaussian(o.Sigma)
	}
	if form.VectorDimension() == 2 {
		return kernel.Tangential{G: scalar.F}
	}
	return scalar
}

// run builds and benchmarks one operator and writes a report to out.
func run(c config.Config, out io.Writer, logger *slog.Logger) error {
	geom, err := buildGeometry(c.Mesh)
	if err != nil {
		return err
	}
	tree, err := elementtree.New(geom, c.Mesh.Level, elementtree.WithLogger(logger))
	if err != nil {
		return err
	}
	basis, err := element.NewLegendre(c.Operator.Degree)
	if err != nil {
		return err
	}
	cfg, err := c.H2()
	if err != nil {
		return err
	}
	kern := buildKernel(c.Operator, cfg.Form)

	opts := []h2matrix.Option{
		h2matrix.WithLogger(logger),
		h2matrix.WithWorkers(c.Run.Workers),
	}
	var transform *sparse.CSR
	if cfg.Form != h2matrix.Discontinuous {
		if transform, err = h2matrix.ProlongationTransform(tree, c.Operator.CoarseLevel, basis, cfg.Form); err != nil {
			return err
		}
		opts = append(opts, h2matrix.WithTransform(transform))
	}
	op, err := h2matrix.New(tree, basis, kern, cfg, opts...)
	if err != nil {
		return err
	}
	fmt.Fprint(out, element.ReferenceSquare{Basis: basis}.String())
	fmt.Fprint(out, tree.String())
	fmt.Fprint(out, op.BlockTree().String())
	fmt.Fprint(out, op.String())

	var (
		_, n = op.Dims()
		rng  = rand.New(rand.NewPCG(1, 2))
		x    = mat.NewVecDense(n, nil)
		y    mat.VecDense
	)
	for i := 0; i < n; i++ {
		x.SetVec(i, 2*rng.Float64()-1)
	}
	start := time.Now()
	for i := 0; i < c.Run.Repeat; i++ {
		op.MulVecTo(&y, false, x)
	}
	fmt.Fprintf(out, "Product: %v per application over %d runs\n",
		time.Since(start)/time.Duration(c.Run.Repeat), c.Run.Repeat)

	if c.Run.Compare {
		ref := h2matrix.DenseReference(tree, basis, kern,
			cfg.EffectiveQuadratureDegree(basis.Degree()), c.Run.Workers)
		want := applyReference(ref, transform, x)
		var diff mat.VecDense
		diff.SubVec(&y, want)
		fmt.Fprintf(out, "Relative error against dense: %.3e\n", diff.Norm(2)/want.Norm(2))
	}
	if c.Run.Plot != "" {
		if err := visualize.Partition(op.BlockTree(), c.Run.Plot, 6*vg.Inch); err != nil {
			return err
		}
		fmt.Fprintf(out, "Partition written to %s\n", c.Run.Plot)
	}
	return nil
}

// applyReference computes Tᵀ A T x, or A x without a transform.
func applyReference(A *mat.Dense, T *sparse.CSR, x *mat.VecDense) *mat.VecDense {
	if T == nil {
		var y mat.VecDense
		y.MulVec(A, x)
		return &y
	}
	var xd, yd, y mat.VecDense
	xd.MulVec(T, x)
	yd.MulVec(A, &xd)
	y.MulVec(T.T(), &yd)
	return &y
}
