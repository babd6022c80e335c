package bloom

import "errors"

var (
	// ErrSizeMismatch is returned by Or when the operands have different
	// directory sizes. Partial filters can only be merged at equal size.
	ErrSizeMismatch = errors.New("bloom: cannot merge filters of different sizes")

	// ErrAlwaysTrueOperand is returned by Or when either operand is the
	// sentinel; the caller short-circuits always-true instead of merging.
	ErrAlwaysTrueOperand = errors.New("bloom: cannot merge the always-true sentinel")

	// ErrBadDirectory is returned by SetDirectory when the raw length does
	// not match the filter's size.
	ErrBadDirectory = errors.New("bloom: directory length does not match filter size")
)
