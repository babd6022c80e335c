// Package coordinator implements the filter aggregation coordinator: it
// accepts partial bloom filters from every producing execution unit of a
// query, OR-merges same-id arrivals as they come in, and broadcasts the
// merged (or always-true) result to every consuming unit.
//
// Aggregation state is never shared mutable data: each (query, filter) pair
// gets its own record with a driving goroutine, fed by message passing from
// the RPC-handler-facing methods and finished through a completion channel.
//
// Merge policy: a record completes as soon as every expected unit has
// reported, or immediately when any unit reports always-true (a disabled
// producer can never be compensated for), or when the aggregation deadline
// passes. An incomplete merge is never broadcast, because a partial OR would
// be more restrictive than the true union and could discard correct rows;
// deadline expiry broadcasts always-true instead.
package coordinator

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/errgroup"

	"github.com/stratosql/runtimefilter/bloom"
	"github.com/stratosql/runtimefilter/wire"
)

// Target receives the completed broadcast for one consuming execution unit.
type Target interface {
	Publish(ctx context.Context, p wire.Publish) error
}

// TargetFunc adapts a function to the Target interface.
type TargetFunc func(ctx context.Context, p wire.Publish) error

// Publish implements Target.
func (fn TargetFunc) Publish(ctx context.Context, p wire.Publish) error {
	return fn(ctx, p)
}

// Config holds coordinator tuning.
type Config struct {
	// AggregationTimeout bounds how long a record waits for all expected
	// producers before broadcasting always-true. Default 5s.
	AggregationTimeout time.Duration

	// BroadcastTimeout bounds the fan-out to consuming units. Default 5s.
	BroadcastTimeout time.Duration

	// Compression is applied when re-encoding the merged filter.
	Compression wire.CompressionType

	// Logger for dropped updates and failed publishes. Nil discards.
	Logger *slog.Logger
}

type key struct {
	queryID  string
	filterID uint32
}

// Coordinator aggregates partial filters across execution units.
type Coordinator struct {
	cfg Config

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	records map[key]*Aggregation
	closed  bool
}

// New creates a coordinator. Zero-value config fields get defaults.
func New(cfg Config) *Coordinator {
	if cfg.AggregationTimeout <= 0 {
		cfg.AggregationTimeout = 5 * time.Second
	}
	if cfg.BroadcastTimeout <= 0 {
		cfg.BroadcastTimeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		cfg:     cfg,
		ctx:     ctx,
		cancel:  cancel,
		records: make(map[key]*Aggregation),
	}
}

// Aggregation is the per-(query, filter) record: expected producer count,
// running merge and completion signal. Obtain one from RegisterFilter.
type Aggregation struct {
	key      key
	expected uint64
	targets  []Target

	updates chan wire.Update
	done    chan struct{}
	result  *wire.Filter // set before done closes
}

// Done returns the completion signal; it closes after the broadcast
// finished (or the coordinator shut down).
func (a *Aggregation) Done() <-chan struct{} { return a.done }

// Result returns the broadcast wire filter. Valid only after Done closes;
// nil when the coordinator shut down before completion.
func (a *Aggregation) Result() *wire.Filter { return a.result }

// RegisterFilter creates the aggregation record for one filter of a query,
// expecting updates from expectedProducers distinct units and broadcasting
// the result to targets.
func (c *Coordinator) RegisterFilter(queryID string, filterID uint32, expectedProducers int, targets ...Target) (*Aggregation, error) {
	if expectedProducers <= 0 {
		return nil, ErrNoProducers
	}

	rec := &Aggregation{
		key:      key{queryID: queryID, filterID: filterID},
		expected: uint64(expectedProducers),
		targets:  targets,
		updates:  make(chan wire.Update, expectedProducers),
		done:     make(chan struct{}),
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if _, ok := c.records[rec.key]; ok {
		c.mu.Unlock()
		return nil, ErrDuplicateFilter
	}
	c.records[rec.key] = rec
	c.wg.Add(1)
	c.mu.Unlock()

	go c.run(rec)
	return rec, nil
}

// UpdateFilter is the producer-facing receive half: it routes one partial
// filter into its aggregation record. Unknown (or already completed) filters
// return ErrUnknownFilter; with at-most-once delivery that is the normal
// fate of a late update, and callers log rather than retry. A malformed
// update with no filter body is rejected here, before it reaches a record.
func (c *Coordinator) UpdateFilter(ctx context.Context, u wire.Update) error {
	if u.Filter == nil {
		return ErrNilFilter
	}

	c.mu.Lock()
	rec, ok := c.records[key{queryID: u.QueryID, filterID: u.FilterID}]
	c.mu.Unlock()
	if !ok {
		return ErrUnknownFilter
	}

	select {
	case rec.updates <- u:
		return nil
	case <-rec.done:
		return ErrUnknownFilter
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send makes the coordinator usable directly as a bank's dispatch sender in
// single-process deployments and tests.
func (c *Coordinator) Send(ctx context.Context, u wire.Update) error {
	return c.UpdateFilter(ctx, u)
}

// Close stops every in-flight aggregation without broadcasting and waits
// for the record goroutines.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}

func (c *Coordinator) run(rec *Aggregation) {
	defer c.wg.Done()

	log := c.cfg.Logger.With("query_id", rec.key.queryID, "filter_id", rec.key.filterID)

	timer := time.NewTimer(c.cfg.AggregationTimeout)
	defer timer.Stop()

	reported := roaring.New()
	var merged *bloom.Filter
	alwaysTrue := false

loop:
	for {
		select {
		case u := <-rec.updates:
			if reported.Contains(u.UnitID) {
				continue // duplicate from a retrying transport
			}
			reported.Add(u.UnitID)

			if u.Filter.AlwaysTrue {
				// A disabled producer makes the union unconditionally true.
				alwaysTrue = true
				break loop
			}
			pf, err := wire.DecodeFilter(u.Filter)
			if err != nil {
				log.Warn("undecodable partial filter", "unit_id", u.UnitID, "error", err)
				alwaysTrue = true
				break loop
			}
			if merged == nil {
				merged = pf
			} else if err := merged.Or(pf); err != nil {
				log.Warn("unmergeable partial filter", "unit_id", u.UnitID, "error", err)
				alwaysTrue = true
				break loop
			}
			if reported.GetCardinality() >= rec.expected {
				break loop
			}

		case <-timer.C:
			log.Debug("aggregation deadline with partial data",
				"reported", reported.GetCardinality(), "expected", rec.expected)
			alwaysTrue = true
			break loop

		case <-c.ctx.Done():
			// Shutdown: no broadcast, no result.
			close(rec.done)
			c.removeRecord(rec.key)
			return
		}
	}

	out := &wire.Filter{AlwaysTrue: true}
	if !alwaysTrue && merged != nil {
		if enc, err := wire.EncodeFilter(merged, c.cfg.Compression); err == nil {
			out = enc
		} else {
			log.Warn("could not encode merged filter", "error", err)
		}
	}
	rec.result = out

	c.broadcast(rec, out, log)
	close(rec.done)
	c.removeRecord(rec.key)
}

// broadcast fans the result out to every consuming unit concurrently.
// Per-target failure is logged and dropped; the receiving banks are
// idempotent, and a consumer that never hears from us times out on its own.
func (c *Coordinator) broadcast(rec *Aggregation, out *wire.Filter, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(c.ctx, c.cfg.BroadcastTimeout)
	defer cancel()

	p := wire.Publish{
		QueryID:  rec.key.queryID,
		FilterID: rec.key.filterID,
		Filter:   out,
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, t := range rec.targets {
		t := t
		g.Go(func() error {
			if err := t.Publish(ctx, p); err != nil {
				log.Warn("publish to consumer failed", "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (c *Coordinator) removeRecord(k key) {
	c.mu.Lock()
	delete(c.records, k)
	c.mu.Unlock()
}
