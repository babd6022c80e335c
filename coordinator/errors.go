package coordinator

import "errors"

var (
	// ErrUnknownFilter is returned for updates addressed to a filter that
	// was never registered or whose aggregation already completed. Under
	// at-most-once delivery this is the normal fate of a late update.
	ErrUnknownFilter = errors.New("coordinator: unknown or completed filter")

	// ErrDuplicateFilter is returned when a (query, filter) pair is
	// registered twice.
	ErrDuplicateFilter = errors.New("coordinator: filter already registered")

	// ErrNoProducers is returned when a filter is registered with a
	// non-positive expected producer count.
	ErrNoProducers = errors.New("coordinator: expected producer count must be positive")

	// ErrNilFilter is returned for an update that carries no filter body.
	ErrNilFilter = errors.New("coordinator: update carries no filter")

	// ErrClosed is returned when registering against a closed coordinator.
	ErrClosed = errors.New("coordinator: closed")
)
