// Package kernel holds the interaction kernels the compressed operator is
// built from. A kernel sees two surface points and returns a Dim×Dim block
// that already includes the surface measures of both points.
package kernel

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/H2Kernel/geometry"
)

// Kernel evaluates the interaction between two surface points.
type Kernel interface {
	// Dim is the number of vector components on each side.
	Dim() int
	// Evaluate writes the row-major Dim×Dim interaction block into dst.
	Evaluate(dst []float64, x, y geometry.SurfacePoint)
}

// Scalar adapts a point function to a one component kernel.
type Scalar struct {
	F func(x, y r3.Vec) float64
}

func (Scalar) Dim() int { return 1 }

func (k Scalar) Evaluate(dst []float64, x, y geometry.SurfacePoint) {
	dst[0] = k.F(x.X, y.X) * x.Measure() * y.Measure()
}

// Smooth is 1/(1+|x-y|), bounded and analytic in a neighbourhood of the
// surface.
func Smooth() Scalar {
	return Scalar{F: func(x, y r3.Vec) float64 {
		return 1 / (1 + r3.Norm(r3.Sub(x, y)))
	}}
}

// Gaussian is exp(-|x-y|^2/(2 sigma^2)).
func Gaussian(sigma float64) Scalar {
	s2 := 2 * sigma * sigma
	return Scalar{F: func(x, y r3.Vec) float64 {
		d := r3.Sub(x, y)
		return math.Exp(-r3.Dot(d, d) / s2)
	}}
}

// Tangential couples the two tangential directions of each point:
// block(i,j) = G(x,y) ∂_i x · ∂_j y, with ∂_0 = ∂/∂s and ∂_1 = ∂/∂t.
type Tangential struct {
	G func(x, y r3.Vec) float64
}

func (Tangential) Dim() int { return 2 }

func (k Tangential) Evaluate(dst []float64, x, y geometry.SurfacePoint) {
	g := k.G(x.X, y.X)
	dx := [2]r3.Vec{x.Ds, x.Dt}
	dy := [2]r3.Vec{y.Ds, y.Dt}
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			dst[2*i+j] = g * r3.Dot(dx[i], dy[j])
		}
	}
}
