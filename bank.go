package runtimefilter

import (
	"fmt"
	"sync"

	"github.com/stratosql/runtimefilter/bloom"
	"github.com/stratosql/runtimefilter/resource"
	"github.com/stratosql/runtimefilter/wire"
)

// Bank is the per-execution-unit registry and protocol orchestrator for
// runtime filters. It owns every Filter and bloom.Filter it hands out,
// enforces the query's shared memory budget, short-circuits co-located
// producer/consumer pairs, and drives the dispatch and receive halves of the
// cross-node protocol.
//
// One mutex guards the registries, the allocation pool and the closed flag.
// Critical sections are pure in-memory bookkeeping; dispatch runs on a
// separate worker so no I/O ever happens under the lock.
type Bank struct {
	queryID string
	unitID  uint32
	opts    options
	tracker *resource.Tracker
	logger  *Logger

	// logFilterSize is fixed at construction from the configured target
	// size; every scratch filter this bank allocates has this size.
	logFilterSize uint32

	dispatcher *dispatcher // nil unless ModeGlobal with a sender

	mu       sync.Mutex
	produced map[uint32]*Filter
	consumed map[uint32]*Filter
	// pool holds every bloom filter this bank allocated, bulk-dropped at
	// Close. Filter lifetime is flat and bounded by the query, so there is
	// no per-object refcounting.
	pool []*bloom.Filter
	// memoryAllocated is the running total charged against the tracker,
	// released in full at Close.
	memoryAllocated int64
	closed          bool
}

// NewBank creates the filter bank for one execution unit of a query. All
// banks of a query share the same tracker.
func NewBank(queryID string, unitID uint32, tracker *resource.Tracker, opts ...Option) *Bank {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}

	b := &Bank{
		queryID:       queryID,
		unitID:        unitID,
		opts:          o,
		tracker:       tracker,
		logger:        o.logger.WithQueryID(queryID).WithUnitID(unitID),
		logFilterSize: bloom.LogSizeForBytes(o.filterSizeBytes),
		produced:      make(map[uint32]*Filter),
		consumed:      make(map[uint32]*Filter),
	}
	if o.mode == ModeGlobal && o.sender != nil {
		b.dispatcher = newDispatcher(o.sender, b.logger, o.metrics,
			o.dispatchQueueSize, o.dispatchPerSec)
	}
	return b
}

// LogFilterSize returns the fixed log2 directory size for this bank's
// filters.
func (b *Bank) LogFilterSize() uint32 { return b.logFilterSize }

// MemoryAllocated returns the bytes currently charged against the query
// budget by this bank.
func (b *Bank) MemoryAllocated() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.memoryAllocated
}

// RegisterFilter creates the handle for one filter descriptor and stores it
// under the produced or consumed registry. Registering a duplicate id in the
// same role is a planning bug and panics.
func (b *Bank) RegisterFilter(desc Desc, isProducer bool) *Filter {
	f := newFilter(desc, b.opts.arrivalTimeout, b.opts.pollInterval, b.opts.metrics)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		panic(fmt.Sprintf("runtimefilter: filter %d registered on closed bank", desc.FilterID))
	}
	if isProducer {
		if _, ok := b.produced[desc.FilterID]; ok {
			panic(fmt.Sprintf("runtimefilter: filter %d registered twice as produced", desc.FilterID))
		}
		b.produced[desc.FilterID] = f
	} else {
		if _, ok := b.consumed[desc.FilterID]; ok {
			panic(fmt.Sprintf("runtimefilter: filter %d registered twice as consumed", desc.FilterID))
		}
		b.consumed[desc.FilterID] = f
	}
	return f
}

// AllocateScratchBloomFilter reserves budget for one filter of the bank's
// fixed size and returns a zeroed filter the producer inserts into. A nil
// return means the budget refused the reservation (or the bank is closed);
// the caller skips local filter construction for that operator. Never an
// error.
func (b *Bank) AllocateScratchBloomFilter() *bloom.Filter {
	required := bloom.ExpectedHeapSpaceUsed(b.logFilterSize)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	if !b.tracker.TryConsume(required) {
		b.opts.metrics.RecordAllocation(required, true)
		b.logger.Debug("budget refused scratch filter", "bytes", required)
		return nil
	}
	f := bloom.NewFilter(b.logFilterSize)
	b.pool = append(b.pool, f)
	b.memoryAllocated += required
	b.opts.metrics.RecordAllocation(required, false)
	return f
}

// ShouldDisableFilter reports whether a filter of this bank's size would be
// too lossy to bother building for a build side of at most maxNDV distinct
// keys.
func (b *Bank) ShouldDisableFilter(maxNDV uint64) bool {
	return bloom.FalsePositiveProb(maxNDV, b.logFilterSize) > b.opts.maxErrorRate
}

// UpdateFilterFromLocal is called exactly once by the producer when its
// local filter is complete. The filter is installed on the produced entry;
// a co-located consumer receives the same object with no copy and no network
// hop; otherwise, in global mode, the encoded filter is handed to the async
// dispatcher and this call returns before any network activity. No-op when
// filtering is off.
func (b *Bank) UpdateFilterFromLocal(filterID uint32, f *bloom.Filter) {
	if b.opts.mode == ModeOff {
		return
	}

	var hasLocalTarget bool
	{
		b.mu.Lock()
		if b.closed {
			// Expected race: a build finishing during query teardown.
			b.mu.Unlock()
			return
		}
		p, ok := b.produced[filterID]
		if !ok {
			b.mu.Unlock()
			panic(fmt.Sprintf("runtimefilter: update of unregistered filter %d", filterID))
		}
		if !p.install(f) {
			b.mu.Unlock()
			panic(fmt.Sprintf("runtimefilter: filter %d produced twice", filterID))
		}
		hasLocalTarget = p.desc.HasLocalTarget
		b.mu.Unlock()
	}

	if hasLocalTarget {
		b.mu.Lock()
		c, ok := b.consumed[filterID]
		b.mu.Unlock()
		if !ok {
			return
		}
		// Short-circuit publication: the consumer shares the producer's
		// object.
		if !c.install(f) {
			panic(fmt.Sprintf("runtimefilter: local filter %d arrived twice", filterID))
		}
		b.logger.LogFilterArrival(filterID, c.ArrivalDelay(), false)
		b.opts.metrics.RecordFilterArrival(c.ArrivalDelay(), false)
		return
	}

	if b.opts.mode != ModeGlobal || b.dispatcher == nil {
		return
	}
	wf, err := wire.EncodeFilter(f, b.opts.compression)
	if err != nil {
		// Best-effort: an unencodable update is dropped, never fatal.
		b.logger.LogDispatchFailure(filterID, err)
		return
	}
	b.dispatcher.enqueue(wire.Update{
		QueryID:  b.queryID,
		FilterID: filterID,
		UnitID:   b.unitID,
		Filter:   wf,
	})
}

// PublishGlobalFilter installs a coordinator-broadcast result into the
// matching consumed filter. An always-true wire form installs the sentinel
// with no allocation; a concrete filter the budget cannot afford degrades to
// the sentinel as well. Idempotent: a repeat publish for an arrived filter
// is silently ignored, and a publish after Close is a no-op (an expected
// race during teardown).
func (b *Bank) PublishGlobalFilter(filterID uint32, wf *wire.Filter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	c, ok := b.consumed[filterID]
	if !ok {
		panic(fmt.Sprintf("runtimefilter: publish of unregistered filter %d", filterID))
	}
	if c.HasFilter() {
		return
	}

	if wf.AlwaysTrue {
		c.install(bloom.AlwaysTrue)
		b.logger.LogFilterArrival(filterID, c.ArrivalDelay(), true)
		b.opts.metrics.RecordFilterArrival(c.ArrivalDelay(), true)
		return
	}

	required := bloom.ExpectedHeapSpaceUsed(wf.LogSize)
	if !b.tracker.TryConsume(required) {
		// Degrade, never fail: an unaffordable filter becomes a no-op.
		b.logger.LogBudgetRefusal(filterID, required)
		c.install(bloom.AlwaysTrue)
		b.opts.metrics.RecordFilterArrival(c.ArrivalDelay(), true)
		return
	}
	bf, err := wire.DecodeFilter(wf)
	if err != nil {
		b.tracker.Release(required)
		b.logger.Warn("undecodable published filter, degrading to always-true",
			"filter_id", filterID, "error", err)
		c.install(bloom.AlwaysTrue)
		b.opts.metrics.RecordFilterArrival(c.ArrivalDelay(), true)
		return
	}
	b.pool = append(b.pool, bf)
	b.memoryAllocated += required
	c.install(bf)
	b.logger.LogFilterArrival(filterID, c.ArrivalDelay(), false)
	b.opts.metrics.RecordFilterArrival(c.ArrivalDelay(), false)
}

// Close marks the bank closed, stops the dispatcher, drops every owned
// filter and returns the full cumulative charge to the query budget.
// Idempotent; operations that observe the closed flag become no-ops.
func (b *Bank) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	released := b.memoryAllocated
	b.memoryAllocated = 0
	b.produced = nil
	b.consumed = nil
	b.pool = nil
	b.mu.Unlock()

	// Dispatcher shutdown waits for its worker; keep it outside the lock.
	if b.dispatcher != nil {
		b.dispatcher.close()
	}
	b.tracker.Release(released)
}
