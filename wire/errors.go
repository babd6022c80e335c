package wire

import "errors"

var (
	// ErrShortFrame indicates a truncated filter frame or directory block.
	ErrShortFrame = errors.New("wire: frame too short")

	// ErrBadLogSize indicates a frame whose size field is outside the
	// configured filter size range.
	ErrBadLogSize = errors.New("wire: filter log size out of range")

	// ErrSizeMismatch indicates a directory block whose decompressed length
	// disagrees with its header.
	ErrSizeMismatch = errors.New("wire: decompressed size mismatch")

	// ErrUnknownCompression indicates an unrecognized compression type byte.
	ErrUnknownCompression = errors.New("wire: unknown compression type")
)
