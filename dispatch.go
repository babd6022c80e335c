package runtimefilter

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/stratosql/runtimefilter/wire"
)

// Sender carries one producer update toward the aggregation coordinator.
// Implementations must be safe for concurrent use. The coordinator's
// in-process endpoint satisfies this directly; networked deployments wrap
// their RPC client.
type Sender interface {
	Send(ctx context.Context, u wire.Update) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, u wire.Update) error

// Send implements Sender.
func (fn SenderFunc) Send(ctx context.Context, u wire.Update) error {
	return fn(ctx, u)
}

// dispatcher delivers filter updates to the coordinator off the producer's
// execution thread. Delivery is at-most-once and best-effort: a full queue
// or a failed send drops the update with a warning, never an error and never
// a retry.
type dispatcher struct {
	sender  Sender
	logger  *Logger
	metrics MetricsCollector
	limiter *rate.Limiter // nil when unpaced

	ch     chan wire.Update
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

func newDispatcher(sender Sender, logger *Logger, metrics MetricsCollector, queueSize int, perSec float64) *dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	d := &dispatcher{
		sender:  sender,
		logger:  logger,
		metrics: metrics,
		ch:      make(chan wire.Update, queueSize),
		ctx:     ctx,
		cancel:  cancel,
	}
	if perSec > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(perSec), 1)
	}
	d.wg.Add(1)
	go d.run()
	return d
}

// enqueue hands an update to the worker without ever blocking the caller.
func (d *dispatcher) enqueue(u wire.Update) bool {
	select {
	case <-d.ctx.Done():
		d.metrics.RecordDispatch(0, ErrDispatcherClosed)
		return false
	default:
	}
	select {
	case d.ch <- u:
		return true
	default:
		d.logger.LogDispatchFailure(u.FilterID, ErrQueueFull)
		d.metrics.RecordDispatch(0, ErrQueueFull)
		return false
	}
}

func (d *dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			return
		case u := <-d.ch:
			if d.limiter != nil {
				if err := d.limiter.Wait(d.ctx); err != nil {
					return
				}
			}
			start := time.Now()
			err := d.sender.Send(d.ctx, u)
			d.metrics.RecordDispatch(time.Since(start), err)
			if err != nil {
				d.logger.LogDispatchFailure(u.FilterID, err)
			}
		}
	}
}

// close stops the worker and waits for it. Updates still queued are dropped;
// by the time a bank closes, no consumer is left to benefit from them.
func (d *dispatcher) close() {
	d.once.Do(func() {
		d.cancel()
		d.wg.Wait()
	})
}
