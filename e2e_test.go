package runtimefilter_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	runtimefilter "github.com/stratosql/runtimefilter"
	"github.com/stratosql/runtimefilter/bloom"
	"github.com/stratosql/runtimefilter/coordinator"
	"github.com/stratosql/runtimefilter/resource"
	"github.com/stratosql/runtimefilter/wire"
)

func publishInto(b *runtimefilter.Bank) coordinator.Target {
	return coordinator.TargetFunc(func(_ context.Context, p wire.Publish) error {
		b.PublishGlobalFilter(p.FilterID, p.Filter)
		return nil
	})
}

// Two producing units, two consuming units, one coordinator. The consumers
// must see the union of both partial filters.
func TestGlobalAggregationEndToEnd(t *testing.T) {
	tracker := resource.NewTracker(resource.Config{})
	coord := coordinator.New(coordinator.Config{})
	defer coord.Close()

	mkProducer := func(unitID uint32) *runtimefilter.Bank {
		b := runtimefilter.NewBank("q1", unitID, tracker,
			runtimefilter.WithMode(runtimefilter.ModeGlobal),
			runtimefilter.WithSender(coord),
			runtimefilter.WithFilterSize(bloom.MinFilterBytes))
		t.Cleanup(b.Close)
		b.RegisterFilter(runtimefilter.Desc{FilterID: 1}, true)
		return b
	}
	p0, p1 := mkProducer(0), mkProducer(1)

	c0 := runtimefilter.NewBank("q1", 2, tracker,
		runtimefilter.WithArrivalTimeout(5*time.Second))
	c1 := runtimefilter.NewBank("q1", 3, tracker,
		runtimefilter.WithArrivalTimeout(5*time.Second))
	t.Cleanup(c0.Close)
	t.Cleanup(c1.Close)
	consumed0 := c0.RegisterFilter(runtimefilter.Desc{FilterID: 1}, false)
	consumed1 := c1.RegisterFilter(runtimefilter.Desc{FilterID: 1}, false)

	_, err := coord.RegisterFilter("q1", 1, 2, publishInto(c0), publishInto(c1))
	require.NoError(t, err)

	buildSide := func(b *runtimefilter.Bank, keys []uint64) {
		scratch := b.AllocateScratchBloomFilter()
		require.NotNil(t, scratch)
		for _, k := range keys {
			scratch.Insert(bloom.HashUint64(k))
		}
		b.UpdateFilterFromLocal(1, scratch)
	}
	buildSide(p0, []uint64{1, 2, 3})
	buildSide(p1, []uint64{100, 200})

	for _, consumed := range []*runtimefilter.Filter{consumed0, consumed1} {
		require.True(t, consumed.WaitForArrival())
		bf := consumed.Bloom()
		require.False(t, bf.AlwaysTrue())
		for _, k := range []uint64{1, 2, 3, 100, 200} {
			assert.True(t, bf.Find(bloom.HashUint64(k)))
		}
		assert.False(t, bf.Find(bloom.HashUint64(777)))
	}
}

// A producer that never reports leaves the consumers with the permissive
// sentinel after the aggregation deadline, never with a partial filter.
func TestGlobalAggregationTimeoutDegrades(t *testing.T) {
	tracker := resource.NewTracker(resource.Config{})
	coord := coordinator.New(coordinator.Config{
		AggregationTimeout: 150 * time.Millisecond,
	})
	defer coord.Close()

	p := runtimefilter.NewBank("q1", 0, tracker,
		runtimefilter.WithMode(runtimefilter.ModeGlobal),
		runtimefilter.WithSender(coord),
		runtimefilter.WithFilterSize(bloom.MinFilterBytes))
	t.Cleanup(p.Close)
	p.RegisterFilter(runtimefilter.Desc{FilterID: 1}, true)

	c := runtimefilter.NewBank("q1", 1, tracker,
		runtimefilter.WithArrivalTimeout(5*time.Second))
	t.Cleanup(c.Close)
	consumed := c.RegisterFilter(runtimefilter.Desc{FilterID: 1}, false)

	// Two producers expected, only one will ever report.
	_, err := coord.RegisterFilter("q1", 1, 2, publishInto(c))
	require.NoError(t, err)

	scratch := p.AllocateScratchBloomFilter()
	require.NotNil(t, scratch)
	scratch.Insert(bloom.HashUint64(1))
	p.UpdateFilterFromLocal(1, scratch)

	require.True(t, consumed.WaitForArrival())
	require.True(t, consumed.Bloom().AlwaysTrue())
	// Permissive: even keys the lone reporting producer never inserted pass.
	assert.True(t, consumed.Matches(bloom.HashUint64(999)))
	assert.Zero(t, tracker.Consumed()-p.MemoryAllocated())
}

// A consumer whose filter never arrives times out and proceeds unfiltered.
func TestConsumerTimeoutProceedsUnfiltered(t *testing.T) {
	tracker := resource.NewTracker(resource.Config{})
	c := runtimefilter.NewBank("q1", 0, tracker,
		runtimefilter.WithArrivalTimeout(100*time.Millisecond))
	t.Cleanup(c.Close)

	consumed := c.RegisterFilter(runtimefilter.Desc{FilterID: 1}, false)
	assert.False(t, consumed.WaitForArrival())
	assert.True(t, consumed.Matches(bloom.HashUint64(42)))
}
