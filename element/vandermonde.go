package element

import "gonum.org/v1/gonum/mat"

// Vandermonde returns the nodes × shape functions matrix of the basis
// evaluated at the points (s[k], t[k]); column m follows the local index of
// Eval2D.
func Vandermonde(b Basis, s, t []float64) *mat.Dense {
	var (
		nb = b.Count()
		V  = mat.NewDense(len(s), nb, nil)
	)
	for k := range s {
		b.Eval2D(V.RawRowView(k), s[k], t[k])
	}
	return V
}
