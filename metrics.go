package runtimefilter

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like
// Prometheus.
type MetricsCollector interface {
	// RecordAllocation is called after each scratch filter admission
	// attempt. bytes is the requested reservation, refused reports whether
	// the budget rejected it.
	RecordAllocation(bytes int64, refused bool)

	// RecordFilterArrival is called when a consumed filter becomes usable.
	// delay is the time since the filter's registration, alwaysTrue reports
	// whether the installed filter is the permissive sentinel.
	RecordFilterArrival(delay time.Duration, alwaysTrue bool)

	// RecordDispatch is called after each attempted coordinator update.
	// duration is the send time (zero for drops), err is nil on success.
	RecordDispatch(duration time.Duration, err error)

	// RecordWaitTimeout is called when a consumer's bounded wait expires
	// without a filter.
	RecordWaitTimeout()
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordAllocation(int64, bool)            {}
func (NoopMetricsCollector) RecordFilterArrival(time.Duration, bool) {}
func (NoopMetricsCollector) RecordDispatch(time.Duration, error)     {}
func (NoopMetricsCollector) RecordWaitTimeout()                      {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	AllocationCount    atomic.Int64
	AllocationRefusals atomic.Int64
	AllocatedBytes     atomic.Int64
	ArrivalCount       atomic.Int64
	ArrivalAlwaysTrue  atomic.Int64
	ArrivalTotalNanos  atomic.Int64
	DispatchCount      atomic.Int64
	DispatchErrors     atomic.Int64
	DispatchTotalNanos atomic.Int64
	WaitTimeouts       atomic.Int64
}

// RecordAllocation implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAllocation(bytes int64, refused bool) {
	b.AllocationCount.Add(1)
	if refused {
		b.AllocationRefusals.Add(1)
		return
	}
	b.AllocatedBytes.Add(bytes)
}

// RecordFilterArrival implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFilterArrival(delay time.Duration, alwaysTrue bool) {
	b.ArrivalCount.Add(1)
	b.ArrivalTotalNanos.Add(delay.Nanoseconds())
	if alwaysTrue {
		b.ArrivalAlwaysTrue.Add(1)
	}
}

// RecordDispatch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDispatch(duration time.Duration, err error) {
	b.DispatchCount.Add(1)
	b.DispatchTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.DispatchErrors.Add(1)
	}
}

// RecordWaitTimeout implements MetricsCollector.
func (b *BasicMetricsCollector) RecordWaitTimeout() {
	b.WaitTimeouts.Add(1)
}
