package h2matrix

import "errors"

var (
	ErrInvalidConfig   = errors.New("h2matrix: invalid configuration")
	ErrKernelDimension = errors.New("h2matrix: kernel dimension does not match form")
	ErrTransformShape  = errors.New("h2matrix: transform does not match discontinuous length")
)
