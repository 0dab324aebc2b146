package h2matrix

import "fmt"

// Form selects how the discontinuous per element coefficients relate to the
// unknowns of the outer problem. The set is closed.
type Form int

const (
	Discontinuous Form = iota
	Continuous
	DivConforming
)

func (f Form) String() string {
	switch f {
	case Discontinuous:
		return "discontinuous"
	case Continuous:
		return "continuous"
	case DivConforming:
		return "div-conforming"
	}
	return fmt.Sprintf("Form(%d)", int(f))
}

// VectorDimension is the number of components per point the kernel couples.
func (f Form) VectorDimension() int { return f.strategy().components() }

// ParseForm accepts the names printed by String.
func ParseForm(s string) (Form, error) {
	for _, f := range []Form{Discontinuous, Continuous, DivConforming} {
		if f.String() == s {
			return f, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown form %q", ErrInvalidConfig, s)
}

// formStrategy is chosen once when the operator is built.
type formStrategy interface {
	components() int
	// conforming forms act on global unknowns and need a transform to the
	// discontinuous representation.
	conforming() bool
}

type discontinuousForm struct{}

func (discontinuousForm) components() int  { return 1 }
func (discontinuousForm) conforming() bool { return false }

type continuousForm struct{}

func (continuousForm) components() int  { return 1 }
func (continuousForm) conforming() bool { return true }

type divConformingForm struct{}

func (divConformingForm) components() int  { return 2 }
func (divConformingForm) conforming() bool { return true }

func (f Form) strategy() formStrategy {
	switch f {
	case Continuous:
		return continuousForm{}
	case DivConforming:
		return divConformingForm{}
	}
	return discontinuousForm{}
}

func (f Form) valid() bool { return f >= Discontinuous && f <= DivConforming }
