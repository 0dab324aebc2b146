package multipole

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/H2Kernel/element"
	"github.com/notargets/H2Kernel/quadrature"
)

// Matrices bundles everything the far field needs for one configuration.
// They depend only on the key they were built for, never on geometry or
// kernel, and are read-only once built.
type Matrices struct {
	Points   []float64   // Chebyshev nodes on [0,1]
	Points2D [][2]float64
	Transfer *mat.Dense // n²×4n²
	Moment   *mat.Dense // n²×4^refinements(p+1)²
}

type key struct {
	points, degree, clusterLevel, refinements int
}

func (k key) String() string {
	return fmt.Sprintf("n=%d p=%d level=%d refinements=%d",
		k.points, k.degree, k.clusterLevel, k.refinements)
}

// Cache memoizes Matrices. Concurrent requests for the same key build them
// once.
type Cache struct {
	mu    sync.RWMutex
	byKey map[key]*Matrices
	group singleflight.Group
	rules quadrature.Provider
}

// NewCache returns an empty cache building with the given quadrature.
func NewCache(rules quadrature.Provider) *Cache {
	return &Cache{
		byKey: make(map[key]*Matrices),
		rules: rules,
	}
}

// Get returns the matrices for n points per direction, the given basis and a
// cluster tree whose low rank clusters sit on clusterLevel and are refined
// refinements more times down to the elements.
func (c *Cache) Get(n int, basis element.Basis, clusterLevel, refinements int) *Matrices {
	k := key{points: n, degree: basis.Degree(), clusterLevel: clusterLevel, refinements: refinements}
	c.mu.RLock()
	m, ok := c.byKey[k]
	c.mu.RUnlock()
	if ok {
		return m
	}
	v, _, _ := c.group.Do(k.String(), func() (any, error) {
		c.mu.RLock()
		m, ok := c.byKey[k]
		c.mu.RUnlock()
		if ok {
			return m, nil
		}
		m = Build(n, basis, c.rules, clusterLevel, refinements)
		c.mu.Lock()
		c.byKey[k] = m
		c.mu.Unlock()
		return m, nil
	})
	return v.(*Matrices)
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byKey)
}

// Build computes the matrices without caching.
func Build(n int, basis element.Basis, rules quadrature.Provider, clusterLevel, refinements int) *Matrices {
	x := ChebyshevRoots(n)
	m1 := Moment1D(basis, rules, clusterLevel, refinements, n)
	return &Matrices{
		Points:   x,
		Points2D: InterpolationPoints2D(x),
		Transfer: TransferMatrix(n),
		Moment:   Moment2D(m1, m1, basis.Count1D(), refinements),
	}
}
