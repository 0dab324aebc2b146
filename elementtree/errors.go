package elementtree

import "errors"

var (
	ErrEmptyGeometry = errors.New("geometry has no patches")
	ErrNegativeLevel = errors.New("refinement level must be non-negative")
)
