package multipole

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/notargets/H2Kernel/element"
	"github.com/notargets/H2Kernel/quadrature"
)

// childOrder maps the quadrant (first offset, second offset) enumeration used
// below onto the element tree's child order, whose lower left corners are
// (0,0), (.5,0), (.5,.5), (0,.5).
var childOrder = [4]int{0, 3, 1, 2}

// TransferMatrix returns the n²×4n² matrix taking the interpolation values of
// the four children of a cluster, stacked in child order, to those of the
// cluster.
func TransferMatrix(n int) *mat.Dense {
	var (
		np2 = n * n
		x   = ChebyshevRoots(n)
		L   = lagrangeColumns(LagrangePolynomials(x))
		// E[i][j] = L_j(x_i/2), E[i][j+n] = L_j(x_i/2 + 1/2)
		E = make([][]float64, n)
		T = mat.NewDense(np2, 4*np2, nil)
	)
	for i := range E {
		E[i] = make([]float64, 2*n)
		for j := 0; j < n; j++ {
			E[i][j] = EvaluatePolynomial(L[j], x, 0.5*x[i])
			E[i][j+n] = EvaluatePolynomial(L[j], x, 0.5*x[i]+0.5)
		}
	}
	for k := 0; k < 4; k++ {
		off := np2 * childOrder[k]
		for i := 0; i < n; i++ {
			for ii := 0; ii < n; ii++ {
				for j := 0; j < n; j++ {
					for jj := 0; jj < n; jj++ {
						T.Set(j*n+jj, i*n+ii+off, E[i][j+(k/2)*n]*E[ii][jj+(k%2)*n])
					}
				}
			}
		}
	}
	return T
}

// Moment1D integrates the Lagrange polynomials of a cluster at level
// clusterLevel against the L2 normalized basis of each of its 2^refinements
// elements along one direction. Row i belongs to node i, column
// j*(p+1)+m to shape function m of element j.
func Moment1D(basis element.Basis, rules quadrature.Provider, clusterLevel, refinements, n int) *mat.Dense {
	var (
		ne  = 1 << refinements
		h   = 1 / float64(ne)
		H   = math.Ldexp(1, -clusterLevel)
		pp1 = basis.Count1D()
		x   = ChebyshevRoots(n)
		L   = lagrangeColumns(LagrangePolynomials(x))
		Q   = rules.Line(n - 1 + basis.Degree())
		b   = make([]float64, pp1)
		M   = mat.NewDense(n, ne*pp1, nil)
	)
	scale := math.Sqrt(h * H)
	for i := 0; i < n; i++ {
		for j := 0; j < ne; j++ {
			for k := range Q.X {
				w := Q.W[k] * scale * EvaluatePolynomial(L[i], x, h*(float64(j)+Q.X[k]))
				basis.Eval1D(b, Q.X[k])
				for m := 0; m < pp1; m++ {
					M.Set(i, j*pp1+m, M.At(i, j*pp1+m)+w*b[m])
				}
			}
		}
	}
	return M
}

// QuadrantIndex returns the position along s and t of every element of a
// cluster refined r times, enumerated in the element tree's hierarchical
// order.
func QuadrantIndex(r int) (s, t []int) {
	var (
		n    = 1 << (2 * r)
		sBit = [4]int{0, 1, 1, 0}
		tBit = [4]int{0, 0, 1, 1}
	)
	s = make([]int, n)
	t = make([]int, n)
	for k := 0; k < n; k++ {
		for d := r - 1; d >= 0; d-- {
			c := (k >> (2 * d)) & 3
			s[k] = 2*s[k] + sBit[c]
			t[k] = 2*t[k] + tBit[c]
		}
	}
	return s, t
}

// Moment2D is the tensor product of two one dimensional moments, with its
// columns in hierarchical element order. Column (p+1)²k + mt(p+1) + ms
// belongs to shape function b_ms(s) b_mt(t) of element k.
func Moment2D(ms, mt *mat.Dense, pp1, refinements int) *mat.Dense {
	var (
		n, _   = ms.Dims()
		pp1sq  = pp1 * pp1
		si, ti = QuadrantIndex(refinements)
		M      = mat.NewDense(n*n, len(si)*pp1sq, nil)
	)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			for k := range si {
				for m1 := 0; m1 < pp1; m1++ {
					for m2 := 0; m2 < pp1; m2++ {
						M.Set(i*n+j, pp1sq*k+m1*pp1+m2,
							ms.At(i, si[k]*pp1+m2)*mt.At(j, ti[k]*pp1+m1))
					}
				}
			}
		}
	}
	return M
}
