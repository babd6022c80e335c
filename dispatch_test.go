package runtimefilter

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratosql/runtimefilter/wire"
)

type blockingSender struct {
	release chan struct{}
	sent    atomic.Int64
}

func (s *blockingSender) Send(ctx context.Context, _ wire.Update) error {
	select {
	case <-s.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.sent.Add(1)
	return nil
}

func TestDispatcher_FullQueueDropsInsteadOfBlocking(t *testing.T) {
	sender := &blockingSender{release: make(chan struct{})}
	d := newDispatcher(sender, NoopLogger(), NoopMetricsCollector{}, 1, 0)
	defer d.close()

	u := wire.Update{QueryID: "q1", FilterID: 1, Filter: &wire.Filter{AlwaysTrue: true}}

	// First update is picked up by the worker and parks in Send; the second
	// fills the queue.
	require.True(t, d.enqueue(u))
	require.Eventually(t, func() bool {
		return d.enqueue(u) // lands in the queue once the worker took the first
	}, time.Second, 5*time.Millisecond)

	start := time.Now()
	dropped := !d.enqueue(u)
	elapsed := time.Since(start)

	assert.True(t, dropped)
	// The producer thread is never blocked by a saturated dispatcher.
	assert.Less(t, elapsed, 10*time.Millisecond)

	close(sender.release)
}

func TestDispatcher_DeliversInOrder(t *testing.T) {
	var got []uint32
	done := make(chan struct{})
	sender := SenderFunc(func(_ context.Context, u wire.Update) error {
		got = append(got, u.FilterID)
		if len(got) == 3 {
			close(done)
		}
		return nil
	})

	d := newDispatcher(sender, NoopLogger(), NoopMetricsCollector{}, 8, 0)
	defer d.close()

	for id := uint32(1); id <= 3; id++ {
		require.True(t, d.enqueue(wire.Update{FilterID: id, Filter: &wire.Filter{AlwaysTrue: true}}))
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("updates never delivered")
	}
	assert.Equal(t, []uint32{1, 2, 3}, got)
}

func TestDispatcher_SendFailureIsDroppedNotRetried(t *testing.T) {
	metrics := &BasicMetricsCollector{}
	var calls atomic.Int64
	sender := SenderFunc(func(_ context.Context, _ wire.Update) error {
		calls.Add(1)
		return context.DeadlineExceeded
	})

	d := newDispatcher(sender, NoopLogger(), metrics, 8, 0)
	require.True(t, d.enqueue(wire.Update{FilterID: 1, Filter: &wire.Filter{AlwaysTrue: true}}))

	require.Eventually(t, func() bool {
		return metrics.DispatchErrors.Load() == 1
	}, time.Second, 5*time.Millisecond)
	d.close()

	assert.Equal(t, int64(1), calls.Load())
}

func TestDispatcher_EnqueueAfterClose(t *testing.T) {
	d := newDispatcher(SenderFunc(func(context.Context, wire.Update) error { return nil }),
		NoopLogger(), NoopMetricsCollector{}, 1, 0)
	d.close()
	assert.False(t, d.enqueue(wire.Update{FilterID: 1}))
}

func TestDispatcher_RatePacing(t *testing.T) {
	var sent atomic.Int64
	sender := SenderFunc(func(context.Context, wire.Update) error {
		sent.Add(1)
		return nil
	})

	// 50/s: three updates need at least ~40ms of pacing.
	d := newDispatcher(sender, NoopLogger(), NoopMetricsCollector{}, 8, 50)
	defer d.close()

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.True(t, d.enqueue(wire.Update{FilterID: uint32(i), Filter: &wire.Filter{AlwaysTrue: true}}))
	}
	require.Eventually(t, func() bool { return sent.Load() == 3 }, 5*time.Second, 5*time.Millisecond)
	assert.Greater(t, time.Since(start), 30*time.Millisecond)
}
