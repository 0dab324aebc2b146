package quadrature

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// JacobiGQ computes the N+1 point Gauss quadrature for the Jacobi weight
// (1-x)^alpha (1+x)^beta on [-1,1] by the Golub-Welsch eigenvalue method.
// Nodes are returned in ascending order.
func JacobiGQ(alpha, beta float64, N int) (X, W []float64) {
	if N == 0 {
		return []float64{-(alpha - beta) / (alpha + beta + 2.)}, []float64{2.}
	}

	h1 := make([]float64, N+1)
	for i := range h1 {
		h1[i] = 2*float64(i) + alpha + beta
	}

	d0 := make([]float64, N+1)
	fac := beta*beta - alpha*alpha
	for i := range d0 {
		d0[i] = fac / (h1[i] * (h1[i] + 2.))
	}
	if alpha+beta < 1e-15 {
		d0[0] = 0.
	}

	d1 := make([]float64, N)
	for i := range d1 {
		ip1 := float64(i + 1)
		d1[i] = 2.0 / (h1[i] + 2.0) * math.Sqrt(
			ip1*(ip1+alpha+beta)*(ip1+alpha)*(ip1+beta)/(h1[i]+1)/(h1[i]+3),
		)
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(symTriDiagonal(d0, d1), true); !ok {
		panic("eigenvalue decomposition failed")
	}
	X = eig.Values(nil)

	var V mat.Dense
	eig.VectorsTo(&V)
	g0 := gamma0(alpha, beta)
	W = make([]float64, N+1)
	for i := range W {
		v := V.At(0, i)
		W[i] = v * v * g0
	}
	return X, W
}

func gamma0(alpha, beta float64) float64 {
	ab1 := alpha + beta + 1.
	return math.Gamma(alpha+1) * math.Gamma(beta+1) * math.Pow(2, ab1) / ab1 / math.Gamma(ab1)
}

func symTriDiagonal(d0, d1 []float64) *mat.SymDense {
	n := len(d0)
	T := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		T.SetSym(i, i, d0[i])
		if i < n-1 {
			T.SetSym(i, i+1, d1[i])
		}
	}
	return T
}
