package element

import (
	"fmt"
	"math"
	"strings"
)

// Basis evaluates the local shape functions of one element on the reference
// square [0,1]^2. Two dimensional functions are tensor products of the one
// dimensional ones; the local index of the product b_ms(s)*b_mt(t) is
// mt*Count1D() + ms.
type Basis interface {
	Degree() int
	Count1D() int
	Count() int
	Eval1D(dst []float64, xi float64)
	Deriv1D(dst []float64, xi float64)
	Eval2D(dst []float64, s, t float64)
}

// Legendre is the L2([0,1]) orthonormal Legendre basis of a fixed degree.
type Legendre struct {
	degree int
}

// NewLegendre returns the tensor Legendre basis of degree p.
func NewLegendre(degree int) (*Legendre, error) {
	if degree < 0 {
		return nil, fmt.Errorf("negative polynomial degree %d", degree)
	}
	return &Legendre{degree: degree}, nil
}

func (l *Legendre) Degree() int  { return l.degree }
func (l *Legendre) Count1D() int { return l.degree + 1 }
func (l *Legendre) Count() int   { return (l.degree + 1) * (l.degree + 1) }

// Eval1D writes b_n(xi) = sqrt(2) P~_n(2 xi - 1) for n = 0..degree into dst.
func (l *Legendre) Eval1D(dst []float64, xi float64) {
	x := []float64{2*xi - 1}
	for n := 0; n <= l.degree; n++ {
		dst[n] = math.Sqrt2 * JacobiP(x, 0, 0, n)[0]
	}
}

func (l *Legendre) Deriv1D(dst []float64, xi float64) {
	x := []float64{2*xi - 1}
	for n := 0; n <= l.degree; n++ {
		dst[n] = 2 * math.Sqrt2 * GradJacobiP(x, 0, 0, n)[0]
	}
}

func (l *Legendre) Eval2D(dst []float64, s, t float64) {
	var (
		np1 = l.degree + 1
		bs  = make([]float64, np1)
		bt  = make([]float64, np1)
	)
	l.Eval1D(bs, s)
	l.Eval1D(bt, t)
	for mt := 0; mt < np1; mt++ {
		for ms := 0; ms < np1; ms++ {
			dst[mt*np1+ms] = bs[ms] * bt[mt]
		}
	}
}

// ReferenceSquare describes the reference element every surface element is
// pulled back to.
type ReferenceSquare struct {
	Basis
}

func (r ReferenceSquare) String() string {
	var sb strings.Builder
	sb.WriteString("=== Reference Square ===\n")
	sb.WriteString(fmt.Sprintf("  Polynomial degree: %d\n", r.Degree()))
	sb.WriteString(fmt.Sprintf("  Shape functions per direction: %d\n", r.Count1D()))
	sb.WriteString(fmt.Sprintf("  Shape functions per element: %d\n", r.Count()))
	return sb.String()
}

// Deriv2D writes the partial derivatives of every tensor product function
// with respect to s and t.
func (l *Legendre) Deriv2D(ds, dt []float64, s, t float64) {
	var (
		np1 = l.degree + 1
		bs  = make([]float64, np1)
		bt  = make([]float64, np1)
		dbs = make([]float64, np1)
		dbt = make([]float64, np1)
	)
	l.Eval1D(bs, s)
	l.Eval1D(bt, t)
	l.Deriv1D(dbs, s)
	l.Deriv1D(dbt, t)
	for mt := 0; mt < np1; mt++ {
		for ms := 0; ms < np1; ms++ {
			ds[mt*np1+ms] = dbs[ms] * bt[mt]
			dt[mt*np1+ms] = bs[ms] * dbt[mt]
		}
	}
}
