// Package multipole builds the interpolation machinery of the far field
// approximation: Chebyshev nodes, Lagrange polynomials in Newton form, the
// moment matrices mapping element coefficients to interpolation values and
// the transfer matrices between consecutive cluster levels.
package multipole

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// ChebyshevRoots returns the n Chebyshev nodes mapped to [0,1] in ascending
// order.
func ChebyshevRoots(n int) []float64 {
	x := make([]float64, n)
	alpha := math.Pi / (2 * float64(n))
	for k := range x {
		x[k] = 0.5*math.Cos(alpha*float64(2*(n-k)-1)) + 0.5
	}
	return x
}

// LagrangePolynomials returns the Newton coefficients of the Lagrange
// polynomials for the nodes x; column i holds L_i.
func LagrangePolynomials(x []float64) *mat.Dense {
	n := len(x)
	L := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		L.Set(i, i, 1)
	}
	// divided differences, column by column
	for i := 0; i < n; i++ {
		for j := 1; j < n; j++ {
			for k := n - 1; k >= j; k-- {
				L.Set(k, i, (L.At(k, i)-L.At(k-1, i))/(x[k]-x[k-j]))
			}
		}
	}
	return L
}

// EvaluatePolynomial evaluates the Newton form polynomial with coefficients
// coef over the nodes x at xi by Horner's scheme.
func EvaluatePolynomial(coef []float64, x []float64, xi float64) float64 {
	n := len(coef)
	r := coef[n-1]
	for i := n - 2; i >= 0; i-- {
		r = r*(xi-x[i]) + coef[i]
	}
	return r
}

// InterpolationPoints2D returns the tensor nodes on [0,1]^2; node i*n+j is
// (x[i], x[j]).
func InterpolationPoints2D(x []float64) [][2]float64 {
	n := len(x)
	out := make([][2]float64, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			out[i*n+j] = [2]float64{x[i], x[j]}
		}
	}
	return out
}

// lagrangeColumns copies the columns of L for repeated evaluation.
func lagrangeColumns(L *mat.Dense) [][]float64 {
	_, n := L.Dims()
	cols := make([][]float64, n)
	for i := range cols {
		cols[i] = mat.Col(nil, i, L)
	}
	return cols
}
