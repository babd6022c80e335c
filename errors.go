package runtimefilter

import "errors"

var (
	// ErrQueueFull is recorded when the dispatch queue is saturated and an
	// update is dropped. Delivery is best-effort, so this only reduces
	// pruning effectiveness; it is never surfaced as a query error.
	ErrQueueFull = errors.New("runtimefilter: dispatch queue full, update dropped")

	// ErrDispatcherClosed is recorded when an update arrives after the
	// dispatcher shut down, an expected race during query teardown.
	ErrDispatcherClosed = errors.New("runtimefilter: dispatcher closed")
)
