package bloom

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilter_NoFalseNegatives(t *testing.T) {
	for _, logSize := range []uint32{MinLogSize, 15, 18} {
		f := NewFilter(logSize)
		rng := rand.New(rand.NewSource(int64(logSize)))

		hashes := make([]uint64, 10000)
		for i := range hashes {
			hashes[i] = rng.Uint64()
			f.Insert(hashes[i])
		}
		for _, h := range hashes {
			require.True(t, f.Find(h), "inserted hash missing at logSize %d", logSize)
		}
	}
}

func TestFilter_FalsePositiveRateTracksModel(t *testing.T) {
	const (
		logSize = uint32(MinLogSize)
		ndv     = 5000
		trials  = 20000
	)
	f := NewFilter(logSize)
	rng := rand.New(rand.NewSource(42))

	inserted := make(map[uint64]bool, ndv)
	for len(inserted) < ndv {
		h := rng.Uint64()
		inserted[h] = true
		f.Insert(h)
	}

	falsePositives := 0
	for i := 0; i < trials; i++ {
		h := rng.Uint64()
		if inserted[h] {
			continue
		}
		if f.Find(h) {
			falsePositives++
		}
	}

	observed := float64(falsePositives) / float64(trials)
	expected := FalsePositiveProb(ndv, logSize)

	// The split-block layout trades a little accuracy for cache locality;
	// stay within a factor of two of the analytic model.
	assert.Greater(t, observed, expected/2)
	assert.Less(t, observed, expected*2)
}

func TestFilter_Or(t *testing.T) {
	a := NewFilter(MinLogSize)
	b := NewFilter(MinLogSize)
	rng := rand.New(rand.NewSource(7))

	aHashes := make([]uint64, 500)
	bHashes := make([]uint64, 500)
	for i := range aHashes {
		aHashes[i] = rng.Uint64()
		a.Insert(aHashes[i])
		bHashes[i] = rng.Uint64()
		b.Insert(bHashes[i])
	}

	require.NoError(t, a.Or(b))
	for _, h := range aHashes {
		assert.True(t, a.Find(h))
	}
	for _, h := range bHashes {
		assert.True(t, a.Find(h))
	}
}

func TestFilter_OrSizeMismatch(t *testing.T) {
	a := NewFilter(MinLogSize)
	b := NewFilter(MinLogSize + 1)
	assert.ErrorIs(t, a.Or(b), ErrSizeMismatch)
}

func TestFilter_OrAlwaysTrueOperand(t *testing.T) {
	a := NewFilter(MinLogSize)
	assert.ErrorIs(t, a.Or(AlwaysTrue), ErrAlwaysTrueOperand)
	assert.ErrorIs(t, AlwaysTrue.Or(a), ErrAlwaysTrueOperand)
}

func TestAlwaysTrue(t *testing.T) {
	assert.True(t, AlwaysTrue.AlwaysTrue())
	assert.Zero(t, AlwaysTrue.HeapSpaceUsed())

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		assert.True(t, AlwaysTrue.Find(rng.Uint64()))
	}

	// Inserting into the sentinel is a harmless no-op.
	AlwaysTrue.Insert(123)
	assert.Zero(t, AlwaysTrue.HeapSpaceUsed())
}

func TestFilter_DirectoryRoundTrip(t *testing.T) {
	f := NewFilter(MinLogSize)
	rng := rand.New(rand.NewSource(9))
	hashes := make([]uint64, 1000)
	for i := range hashes {
		hashes[i] = rng.Uint64()
		f.Insert(hashes[i])
	}

	raw := f.Directory()
	require.Len(t, raw, int(f.HeapSpaceUsed()))

	g := NewFilter(MinLogSize)
	require.NoError(t, g.SetDirectory(raw))
	for _, h := range hashes {
		assert.True(t, g.Find(h))
	}

	assert.ErrorIs(t, g.SetDirectory(raw[:10]), ErrBadDirectory)
}

func TestFilter_ApproxCount(t *testing.T) {
	f := NewFilter(16) // 64 KiB, lightly loaded at 2000 keys
	rng := rand.New(rand.NewSource(3))
	const n = 2000
	for i := 0; i < n; i++ {
		f.Insert(rng.Uint64())
	}

	got := float64(f.ApproxCount())
	assert.InDelta(t, n, got, n*0.15)

	assert.Zero(t, AlwaysTrue.ApproxCount())
}

func TestHashHelpers(t *testing.T) {
	assert.Equal(t, Hash([]byte("join-key")), HashString("join-key"))
	assert.NotEqual(t, HashUint64(1), HashUint64(2))
	// Stable across calls.
	assert.Equal(t, HashUint64(42), HashUint64(42))
}

func TestFalsePositiveProb_Model(t *testing.T) {
	// Closed form at a known point: k=8, m=2^15 bits.
	ndv := uint64(5000)
	m := math.Pow(2, 15)
	want := math.Pow(1-math.Exp(-8*float64(ndv)/m), 8)
	assert.InEpsilon(t, want, FalsePositiveProb(ndv, 12), 1e-12)
}
