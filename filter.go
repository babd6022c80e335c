package runtimefilter

import (
	"sync/atomic"
	"time"

	"github.com/stratosql/runtimefilter/bloom"
)

// defaultPollInterval is how often WaitForArrival re-checks arrival. The
// busy poll is a deliberate simplification: arrival timeouts are second
// scale, so the wake-up overhead is negligible next to a per-filter
// notification channel.
const defaultPollInterval = 20 * time.Millisecond

// Desc identifies a filter within a query plan: which plan node produces it,
// which consumes it, and whether the two are co-located in the same
// execution unit.
type Desc struct {
	FilterID     uint32
	SrcNodeID    int32
	TargetNodeID int32
	// HasLocalTarget marks a consumer co-located with the producer, enabling
	// direct in-process sharing of the filter object.
	HasLocalTarget bool
}

// Filter is the cross-thread handle for a single runtime filter. It is
// created in the registered state and transitions exactly once to arrived
// when a bloom filter is installed; after that the reference is stable and
// read lock-free by any number of probe threads.
type Filter struct {
	desc           Desc
	registered     time.Time
	arrivalTimeout time.Duration
	pollInterval   time.Duration
	metrics        MetricsCollector

	installed    atomic.Pointer[bloom.Filter]
	arrivalNanos atomic.Int64 // monotonic-ish: nanos since registered
}

func newFilter(desc Desc, arrivalTimeout, pollInterval time.Duration, metrics MetricsCollector) *Filter {
	if arrivalTimeout <= 0 {
		arrivalTimeout = DefaultArrivalTimeout
	}
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	if metrics == nil {
		metrics = NoopMetricsCollector{}
	}
	return &Filter{
		desc:           desc,
		registered:     time.Now(),
		arrivalTimeout: arrivalTimeout,
		pollInterval:   pollInterval,
		metrics:        metrics,
	}
}

// Desc returns the filter's plan identity.
func (f *Filter) Desc() Desc { return f.desc }

// HasFilter reports whether a bloom filter has been installed.
func (f *Filter) HasFilter() bool { return f.installed.Load() != nil }

// Bloom returns the installed bloom filter, or nil before arrival. The
// returned filter is never mutated after install.
func (f *Filter) Bloom() *bloom.Filter { return f.installed.Load() }

// install publishes b as the filter's one and only bloom filter. It reports
// false when a filter is already installed, leaving the original in place;
// deciding whether that is a programming error or an expected idempotent
// re-publish is the bank's call.
func (f *Filter) install(b *bloom.Filter) bool {
	if !f.installed.CompareAndSwap(nil, b) {
		return false
	}
	f.arrivalNanos.Store(int64(time.Since(f.registered)))
	return true
}

// Matches reports whether a row with the given key hash can possibly match
// the build side. Before arrival every key passes: a missing filter must
// never discard a correct row.
func (f *Filter) Matches(hash uint64) bool {
	b := f.installed.Load()
	if b == nil {
		return true
	}
	return b.Find(hash)
}

// WaitForArrival blocks until the filter arrives or until the elapsed time
// since registration (not since this call) exceeds the bank's configured
// arrival timeout, and reports whether the filter is usable. Measuring from
// registration means every caller respects one shared query-relative
// deadline; a call made after the deadline returns immediately. A false
// return is not an error: the caller proceeds unfiltered.
func (f *Filter) WaitForArrival() bool {
	for {
		if f.HasFilter() {
			return true
		}
		if time.Since(f.registered) >= f.arrivalTimeout {
			f.metrics.RecordWaitTimeout()
			return false
		}
		time.Sleep(f.pollInterval)
	}
}

// ArrivalTimeout returns the query-relative deadline WaitForArrival honors.
func (f *Filter) ArrivalTimeout() time.Duration { return f.arrivalTimeout }

// ArrivalDelay returns the time between registration and arrival, or zero if
// the filter has not arrived. Observability only.
func (f *Filter) ArrivalDelay() time.Duration {
	return time.Duration(f.arrivalNanos.Load())
}

// RegistrationTime returns when the filter was registered with its bank.
func (f *Filter) RegistrationTime() time.Time { return f.registered }
