package h2matrix

import "fmt"

// Config holds the compression parameters. It is copied into the operator
// and never changes afterwards.
type Config struct {
	// Eta is the admissibility threshold. Larger values admit more low rank
	// blocks.
	Eta float64
	// MinClusterLevel is the number of tree levels between the elements and
	// the finest clusters.
	MinClusterLevel int
	// InterpolationPoints per direction; a cluster carries the square of it.
	InterpolationPoints int
	Form                Form
	// QuadratureDegree of the rule used in dense blocks. Zero selects 2p+5.
	QuadratureDegree int
}

// DefaultConfig returns the settings used when none are given.
func DefaultConfig() Config {
	return Config{
		Eta:                 1.6,
		MinClusterLevel:     1,
		InterpolationPoints: 9,
		Form:                Discontinuous,
	}
}

// Validate reports the first invalid setting, wrapped in ErrInvalidConfig.
func (c Config) Validate() error {
	switch {
	case !(c.Eta > 0):
		return fmt.Errorf("%w: eta must be positive, got %g", ErrInvalidConfig, c.Eta)
	case c.MinClusterLevel < 0:
		return fmt.Errorf("%w: negative minimum cluster level %d", ErrInvalidConfig, c.MinClusterLevel)
	case c.InterpolationPoints < 1:
		return fmt.Errorf("%w: need at least one interpolation point, got %d", ErrInvalidConfig, c.InterpolationPoints)
	case !c.Form.valid():
		return fmt.Errorf("%w: unknown form %v", ErrInvalidConfig, c.Form)
	case c.QuadratureDegree < 0:
		return fmt.Errorf("%w: negative quadrature degree %d", ErrInvalidConfig, c.QuadratureDegree)
	}
	return nil
}

// EffectiveQuadratureDegree resolves the automatic choice for basis degree p.
func (c Config) EffectiveQuadratureDegree(p int) int {
	if c.QuadratureDegree == 0 {
		return 2*p + 5
	}
	return c.QuadratureDegree
}
