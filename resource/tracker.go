// Package resource provides the query-scoped memory budget that runtime
// filter banks charge their allocations against.
//
// One Tracker is shared by every execution unit of a query, so admission is
// strictly non-blocking: a bank that cannot reserve memory skips or degrades
// its filter instead of waiting on other units.
package resource

import (
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Config holds the budget limits.
type Config struct {
	// MemoryLimitBytes is the hard limit for tracked memory.
	// If 0, no limit is enforced (only tracking).
	MemoryLimitBytes int64
}

// Tracker accounts bytes against a shared per-query budget.
// Safe for concurrent use.
type Tracker struct {
	cfg Config

	memSem *semaphore.Weighted // nil if unlimited

	consumed      atomic.Int64 // current reservation
	totalConsumed atomic.Int64 // monotonic, for observability
}

// NewTracker creates a tracker with the given limits.
func NewTracker(cfg Config) *Tracker {
	t := &Tracker{cfg: cfg}
	if cfg.MemoryLimitBytes > 0 {
		t.memSem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}
	return t
}

// TryConsume attempts to reserve bytes without blocking.
// Returns true if reserved, false if the limit would be exceeded.
func (t *Tracker) TryConsume(bytes int64) bool {
	if t == nil {
		return true
	}
	if bytes <= 0 {
		return true
	}

	if t.memSem != nil {
		if !t.memSem.TryAcquire(bytes) {
			return false
		}
	}

	t.consumed.Add(bytes)
	t.totalConsumed.Add(bytes)
	return true
}

// Release returns reserved bytes to the budget.
func (t *Tracker) Release(bytes int64) {
	if t == nil {
		return
	}
	if bytes <= 0 {
		return
	}

	if t.memSem != nil {
		t.memSem.Release(bytes)
	}
	t.consumed.Add(-bytes)
}

// Consumed returns the bytes currently reserved.
func (t *Tracker) Consumed() int64 {
	if t == nil {
		return 0
	}
	return t.consumed.Load()
}

// TotalConsumed returns the cumulative bytes ever reserved. Monotonic;
// releases do not subtract from it.
func (t *Tracker) TotalConsumed() int64 {
	if t == nil {
		return 0
	}
	return t.totalConsumed.Load()
}

// Limit returns the configured hard limit, or 0 when unlimited.
func (t *Tracker) Limit() int64 {
	if t == nil {
		return 0
	}
	return t.cfg.MemoryLimitBytes
}
