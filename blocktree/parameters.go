package blocktree

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/H2Kernel/elementtree"
)

// Parameters is shared read-only by every node of a block cluster tree.
type Parameters struct {
	Eta              float64
	MinClusterLevel  int
	MaxLevel         int
	PolynomialDegree int
}

// Validate returns ErrInvalidParameters for an unusable combination.
func (p *Parameters) Validate() error {
	switch {
	case !(p.Eta > 0):
		return fmt.Errorf("%w: eta must be positive, got %g", ErrInvalidParameters, p.Eta)
	case p.MinClusterLevel < 0:
		return fmt.Errorf("%w: negative minimum cluster level %d", ErrInvalidParameters, p.MinClusterLevel)
	case p.MaxLevel < 0:
		return fmt.Errorf("%w: negative maximum level %d", ErrInvalidParameters, p.MaxLevel)
	case p.MinClusterLevel > p.MaxLevel:
		return fmt.Errorf("%w: minimum cluster level %d exceeds mesh level %d",
			ErrInvalidParameters, p.MinClusterLevel, p.MaxLevel)
	case p.PolynomialDegree < 0:
		return fmt.Errorf("%w: negative polynomial degree %d", ErrInvalidParameters, p.PolynomialDegree)
	}
	return nil
}

// ClusterLevel is the finest tree level on which low rank blocks live.
func (p *Parameters) ClusterLevel() int { return p.MaxLevel - p.MinClusterLevel }

// BasisPerElement is the number of local shape functions of one element.
func (p *Parameters) BasisPerElement() int {
	return (p.PolynomialDegree + 1) * (p.PolynomialDegree + 1)
}

// Admissibility classifies a pair of clusters.
type Admissibility int

const (
	Refine Admissibility = iota
	LowRank
	Dense
)

func (a Admissibility) String() string {
	switch a {
	case Refine:
		return "Refine"
	case LowRank:
		return "LowRank"
	case Dense:
		return "Dense"
	}
	return fmt.Sprintf("Admissibility(%d)", int(a))
}

// Compare decides how the interaction of c1 and c2 is represented. Pairs
// whose separation is large against their size are LowRank; the others are
// refined until the clusters reach the minimum cluster size, where they
// become Dense.
func Compare(p *Parameters, c1, c2 *elementtree.Node) Admissibility {
	d := r3.Norm(r3.Sub(c1.Midpoint, c2.Midpoint)) - (c1.Radius + c2.Radius)
	dist := max(d, 0)
	maxRadius := max(c1.Radius, c2.Radius)

	adm := LowRank
	if maxRadius >= p.Eta*dist {
		adm = Refine
	}
	if adm == Refine && p.MaxLevel-max(c1.Level, c2.Level) <= p.MinClusterLevel {
		adm = Dense
	}
	return adm
}
