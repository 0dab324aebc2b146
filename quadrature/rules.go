package quadrature

import (
	"fmt"
	"sync"
)

// Rule1D is a quadrature rule on [0,1]. The weights sum to one.
type Rule1D struct {
	X, W []float64
}

func (r Rule1D) Len() int { return len(r.X) }

// Rule2D is a tensor product rule on [0,1]^2. Point k = i*n + j pairs
// the i-th node in s with the j-th node in t.
type Rule2D struct {
	S, T, W []float64
}

func (r Rule2D) Len() int { return len(r.W) }

// Provider hands out rules exact for polynomials up to a given degree.
type Provider interface {
	Line(degree int) Rule1D
	Square(degree int) Rule2D
}

// GaussLegendre builds Gauss-Legendre rules on demand and keeps them. It is
// safe for concurrent use.
type GaussLegendre struct {
	mu      sync.RWMutex
	lines   map[int]Rule1D
	squares map[int]Rule2D
}

// NewGaussLegendre returns a provider that memoizes its rules.
func NewGaussLegendre() *GaussLegendre {
	return &GaussLegendre{
		lines:   make(map[int]Rule1D),
		squares: make(map[int]Rule2D),
	}
}

// PointsForDegree is the number of Gauss points integrating polynomials of
// the given degree exactly.
func PointsForDegree(degree int) int {
	if degree < 0 {
		panic(fmt.Sprintf("negative quadrature degree %d", degree))
	}
	return degree/2 + 1
}

func (g *GaussLegendre) Line(degree int) Rule1D {
	n := PointsForDegree(degree)
	g.mu.RLock()
	r, ok := g.lines[n]
	g.mu.RUnlock()
	if ok {
		return r
	}
	x, w := JacobiGQ(0, 0, n-1)
	r = Rule1D{X: make([]float64, n), W: make([]float64, n)}
	for i := range x {
		r.X[i] = 0.5 * (x[i] + 1)
		r.W[i] = 0.5 * w[i]
	}
	g.mu.Lock()
	g.lines[n] = r
	g.mu.Unlock()
	return r
}

func (g *GaussLegendre) Square(degree int) Rule2D {
	n := PointsForDegree(degree)
	g.mu.RLock()
	r, ok := g.squares[n]
	g.mu.RUnlock()
	if ok {
		return r
	}
	line := g.Line(degree)
	r = Rule2D{
		S: make([]float64, n*n),
		T: make([]float64, n*n),
		W: make([]float64, n*n),
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			k := i*n + j
			r.S[k] = line.X[i]
			r.T[k] = line.X[j]
			r.W[k] = line.W[i] * line.W[j]
		}
	}
	g.mu.Lock()
	g.squares[n] = r
	g.mu.Unlock()
	return r
}
