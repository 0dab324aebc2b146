package kernel

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/H2Kernel/geometry"
)

func point(x r3.Vec, scale float64) geometry.SurfacePoint {
	return geometry.SurfacePoint{
		X:  x,
		Ds: r3.Vec{X: scale},
		Dt: r3.Vec{Y: scale},
	}
}

func TestScalarIncludesMeasures(t *testing.T) {
	var (
		k   = Smooth()
		dst = make([]float64, 1)
		x   = point(r3.Vec{}, 2)
		y   = point(r3.Vec{X: 3, Y: 4}, 0.5)
	)
	assert.Equal(t, 1, k.Dim())
	k.Evaluate(dst, x, y)
	assert.InDelta(t, 1./6*4*0.25, dst[0], 1e-15)
}

func TestGaussianSymmetric(t *testing.T) {
	var (
		k      = Gaussian(0.7)
		a, b   = make([]float64, 1), make([]float64, 1)
		x0, y0 = point(r3.Vec{X: 0.1, Z: 1}, 1), point(r3.Vec{Y: -0.4}, 1)
	)
	k.Evaluate(a, x0, y0)
	k.Evaluate(b, y0, x0)
	assert.Equal(t, a[0], b[0])
	assert.InDelta(t, math.Exp(-(0.01+0.16+1)/0.98), a[0], 1e-15)
}

func TestTangentialBlock(t *testing.T) {
	var (
		k   = Tangential{G: func(x, y r3.Vec) float64 { return 2 }}
		dst = make([]float64, 4)
		x   = geometry.SurfacePoint{Ds: r3.Vec{X: 1}, Dt: r3.Vec{Y: 1}}
		y   = geometry.SurfacePoint{Ds: r3.Vec{X: 1, Y: 1}, Dt: r3.Vec{Y: 3}}
	)
	assert.Equal(t, 2, k.Dim())
	k.Evaluate(dst, x, y)
	assert.Equal(t, []float64{2, 0, 2, 6}, dst)
}
