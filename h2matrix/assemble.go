package h2matrix

import (
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/H2Kernel/element"
	"github.com/notargets/H2Kernel/elementtree"
	"github.com/notargets/H2Kernel/geometry"
	"github.com/notargets/H2Kernel/kernel"
	"github.com/notargets/H2Kernel/quadrature"
)

// elementData holds the quadrature points of every element mapped to the
// surface. Point q of element e sits at points[e*nq+q] with weight h_e w_q,
// the scaling of the L2 normalized basis.
type elementData struct {
	nq, nb int
	points []geometry.SurfacePoint
	shapes *mat.Dense // row q holds the shape functions at point q
}

func newElementData(tree *elementtree.Tree, basis element.Basis, rule quadrature.Rule2D, workers int) *elementData {
	var (
		nq = rule.Len()
		nb = basis.Count()
		ne = tree.NumElements()
		d  = &elementData{
			nq:     nq,
			nb:     nb,
			points: make([]geometry.SurfacePoint, ne*nq),
			shapes: element.Vandermonde(basis, rule.S, rule.T),
		}
	)
	eachRange(ne, workers, func(e0, e1 int) {
		for e := e0; e < e1; e++ {
			leaf := tree.Leaf(e)
			h := leaf.H()
			for q := 0; q < nq; q++ {
				d.points[e*nq+q] = tree.SurfacePoint(leaf, [2]float64{rule.S[q], rule.T[q]}, h*rule.W[q])
			}
		}
	})
	return d
}

// denseBlocks integrates the kernel against all shape function pairs of the
// element ranges [r0,r1) and [c0,c1), one matrix per component pair.
func (d *elementData) denseBlocks(kern kernel.Kernel, r0, r1, c0, c1 int) []*mat.Dense {
	var (
		dim    = kern.Dim()
		nb     = d.nb
		blocks = make([]*mat.Dense, dim*dim)
		kv     = make([]float64, dim*dim)
	)
	for c := range blocks {
		blocks[c] = mat.NewDense((r1-r0)*nb, (c1-c0)*nb, nil)
	}
	for i := r0; i < r1; i++ {
		for j := c0; j < c1; j++ {
			for q := 0; q < d.nq; q++ {
				x := d.points[i*d.nq+q]
				bx := d.shapes.RawRowView(q)
				for r := 0; r < d.nq; r++ {
					y := d.points[j*d.nq+r]
					by := d.shapes.RawRowView(r)
					kern.Evaluate(kv, x, y)
					w := x.Weight * y.Weight
					for c, k := range kv {
						raw := blocks[c].RawMatrix()
						for mi, b := range bx {
							off := ((i-r0)*nb+mi)*raw.Stride + (j-c0)*nb
							floats.AddScaled(raw.Data[off:off+nb], w*k*b, by)
						}
					}
				}
			}
		}
	}
	return blocks
}

// lowRankBlocks evaluates the kernel between the interpolation points of two
// clusters.
func lowRankBlocks(tree *elementtree.Tree, kern kernel.Kernel, points [][2]float64, c1, c2 *elementtree.Node) []*mat.Dense {
	var (
		dim    = kern.Dim()
		np2    = len(points)
		blocks = make([]*mat.Dense, dim*dim)
		kv     = make([]float64, dim*dim)
		xs     = make([]geometry.SurfacePoint, np2)
		ys     = make([]geometry.SurfacePoint, np2)
	)
	for k, p := range points {
		xs[k] = tree.SurfacePoint(c1, p, 1)
		ys[k] = tree.SurfacePoint(c2, p, 1)
	}
	for c := range blocks {
		blocks[c] = mat.NewDense(np2, np2, nil)
	}
	for k, x := range xs {
		for l, y := range ys {
			kern.Evaluate(kv, x, y)
			for c, v := range kv {
				blocks[c].Set(k, l, v)
			}
		}
	}
	return blocks
}

// DenseReference assembles the uncompressed discontinuous operator with the
// quadrature of the given degree. It is quadratic in the number of elements
// and meant for validation.
func DenseReference(tree *elementtree.Tree, basis element.Basis, kern kernel.Kernel, quadDegree, workers int) *mat.Dense {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	var (
		rules = quadrature.NewGaussLegendre()
		d     = newElementData(tree, basis, rules.Square(quadDegree), workers)
		ne    = tree.NumElements()
		dim   = kern.Dim()
		n     = ne * d.nb
		A     = mat.NewDense(dim*n, dim*n, nil)
	)
	eachRange(ne, workers, func(e0, e1 int) {
		blocks := d.denseBlocks(kern, e0, e1, 0, ne)
		for a := 0; a < dim; a++ {
			for b := 0; b < dim; b++ {
				A.Slice(a*n+e0*d.nb, a*n+e1*d.nb, b*n, (b+1)*n).(*mat.Dense).Copy(blocks[a*dim+b])
			}
		}
	})
	return A
}

// eachRange splits [0,n) into at most workers contiguous ranges.
func eachRange(n, workers int, fn func(i0, i1 int)) {
	if workers <= 1 || n < 2 {
		fn(0, n)
		return
	}
	var g errgroup.Group
	g.SetLimit(workers)
	chunk := (n + workers - 1) / workers
	for i0 := 0; i0 < n; i0 += chunk {
		i1 := min(i0+chunk, n)
		g.Go(func() error {
			fn(i0, i1)
			return nil
		})
	}
	_ = g.Wait()
}
