package index

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument indicates an absent point or rectangle argument.
	ErrInvalidArgument = errors.New("index: invalid argument")

	// ErrOutOfBounds indicates a point outside the index bounds or with a NaN
	// coordinate. It wraps ErrInvalidArgument.
	ErrOutOfBounds = fmt.Errorf("%w: point outside index bounds", ErrInvalidArgument)
)
