package geometry

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// Patch is a smooth parametrization of one piece of the surface over the
// unit square [0,1]^2.
type Patch interface {
	Eval(s, t float64) r3.Vec
	// Jacobian returns the tangential derivatives ∂x/∂s and ∂x/∂t.
	Jacobian(s, t float64) (ds, dt r3.Vec)
}

// Geometry is an ordered set of patches. Patch i is addressed by its index
// throughout the element tree.
type Geometry []Patch

func (g Geometry) NumPatches() int { return len(g) }

// SurfacePoint carries everything a kernel evaluation needs about one point
// on the surface.
type SurfacePoint struct {
	Ref    [2]float64 // reference coordinates on the element or cluster
	Weight float64    // quadrature weight, 1 when unused
	X      r3.Vec     // position in space
	Ds, Dt r3.Vec     // tangential derivatives with respect to the patch parameters
}

// Measure is the surface element |∂x/∂s × ∂x/∂t|.
func (p SurfacePoint) Measure() float64 {
	return r3.Norm(r3.Cross(p.Ds, p.Dt))
}

// Normal returns the unnormalized normal ∂x/∂s × ∂x/∂t.
func (p SurfacePoint) Normal() r3.Vec {
	return r3.Cross(p.Ds, p.Dt)
}

// MapToSurface evaluates patch p at the point ref of the square cell with lower
// left corner llc and side h in patch parameter space.
func MapToSurface(p Patch, llc [2]float64, h float64, ref [2]float64, w float64) SurfacePoint {
	s := llc[0] + h*ref[0]
	t := llc[1] + h*ref[1]
	ds, dt := p.Jacobian(s, t)
	return SurfacePoint{
		Ref:    ref,
		Weight: w,
		X:      p.Eval(s, t),
		Ds:     ds,
		Dt:     dt,
	}
}

// Bilinear is the bilinear map of the unit square onto the quadrilateral with
// corners C[0..3], ordered as the images of (0,0), (1,0), (1,1), (0,1).
type Bilinear struct {
	C [4]r3.Vec
}

// NewBilinear maps the unit square onto the quadrilateral c0 c1 c2 c3.
func NewBilinear(c0, c1, c2, c3 r3.Vec) *Bilinear {
	return &Bilinear{C: [4]r3.Vec{c0, c1, c2, c3}}
}

func (b *Bilinear) Eval(s, t float64) r3.Vec {
	var (
		w0 = (1 - s) * (1 - t)
		w1 = s * (1 - t)
		w2 = s * t
		w3 = (1 - s) * t
	)
	return r3.Add(
		r3.Add(r3.Scale(w0, b.C[0]), r3.Scale(w1, b.C[1])),
		r3.Add(r3.Scale(w2, b.C[2]), r3.Scale(w3, b.C[3])),
	)
}

func (b *Bilinear) Jacobian(s, t float64) (ds, dt r3.Vec) {
	// ∂/∂s: -(1-t) C0 + (1-t) C1 + t C2 - t C3
	ds = r3.Add(
		r3.Scale(1-t, r3.Sub(b.C[1], b.C[0])),
		r3.Scale(t, r3.Sub(b.C[2], b.C[3])),
	)
	// ∂/∂t: -(1-s) C0 - s C1 + s C2 + (1-s) C3
	dt = r3.Add(
		r3.Scale(1-s, r3.Sub(b.C[3], b.C[0])),
		r3.Scale(s, r3.Sub(b.C[2], b.C[1])),
	)
	return
}

// UnitSquare is the single flat patch [0,1]^2 × {0}.
func UnitSquare() Geometry {
	return Square(r3.Vec{}, 1)
}

// Square returns one flat patch of the given side in the z = corner.Z plane.
func Square(corner r3.Vec, side float64) Geometry {
	return Geometry{NewBilinear(
		corner,
		r3.Add(corner, r3.Vec{X: side}),
		r3.Add(corner, r3.Vec{X: side, Y: side}),
		r3.Add(corner, r3.Vec{Y: side}),
	)}
}

// Plate tiles the rectangle [0,nx]×[0,ny] with nx*ny unit square patches that
// share their edges.
func Plate(nx, ny int) (Geometry, error) {
	if nx < 1 || ny < 1 {
		return nil, fmt.Errorf("invalid plate dimensions %dx%d", nx, ny)
	}
	g := make(Geometry, 0, nx*ny)
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			g = append(g, Square(r3.Vec{X: float64(i), Y: float64(j)}, 1)[0])
		}
	}
	return g, nil
}

// Cube returns the six faces of the axis aligned cube [0,side]^3, each
// oriented with an outward normal.
func Cube(side float64) Geometry {
	v := func(x, y, z float64) r3.Vec { return r3.Vec{X: side * x, Y: side * y, Z: side * z} }
	return Geometry{
		NewBilinear(v(0, 0, 0), v(0, 1, 0), v(1, 1, 0), v(1, 0, 0)), // z = 0
		NewBilinear(v(0, 0, 1), v(1, 0, 1), v(1, 1, 1), v(0, 1, 1)), // z = 1
		NewBilinear(v(0, 0, 0), v(1, 0, 0), v(1, 0, 1), v(0, 0, 1)), // y = 0
		NewBilinear(v(0, 1, 0), v(0, 1, 1), v(1, 1, 1), v(1, 1, 0)), // y = 1
		NewBilinear(v(0, 0, 0), v(0, 0, 1), v(0, 1, 1), v(0, 1, 0)), // x = 0
		NewBilinear(v(1, 0, 0), v(1, 1, 0), v(1, 1, 1), v(1, 0, 1)), // x = 1
	}
}
