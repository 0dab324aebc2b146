package h2matrix

import (
	"log/slog"

	"github.com/james-bowman/sparse"

	"github.com/notargets/H2Kernel/multipole"
	"github.com/notargets/H2Kernel/quadrature"
)

// Option configures an Operator.
type Option func(*Operator)

// WithLogger sets the logger for assembly and products.
func WithLogger(l *slog.Logger) Option {
	return func(op *Operator) { op.logger = l }
}

// WithWorkers bounds the goroutines used for assembly and products.
func WithWorkers(n int) Option {
	return func(op *Operator) {
		if n > 0 {
			op.workers = n
		}
	}
}

// WithTransform sets the sparse map from global unknowns to the
// discontinuous representation. It has DiscontinuousLen rows.
func WithTransform(t *sparse.CSR) Option {
	return func(op *Operator) { op.transform = t }
}

// WithCache shares multipole matrices between operators.
func WithCache(c *multipole.Cache) Option {
	return func(op *Operator) { op.cache = c }
}

// WithQuadrature replaces the Gauss-Legendre rules used for assembly.
func WithQuadrature(p quadrature.Provider) Option {
	return func(op *Operator) { op.rules = p }
}
