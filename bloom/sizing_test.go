package bloom

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogSizeForBytes(t *testing.T) {
	tests := []struct {
		name  string
		bytes int64
		want  uint32
	}{
		{"below minimum clamps up", 16, MinLogSize},
		{"exact minimum", MinFilterBytes, MinLogSize},
		{"power of two stays", 8192, 13},
		{"rounds up to next power", 8193, 14},
		{"default size", DefaultFilterBytes, 20},
		{"exact maximum", MaxFilterBytes, MaxLogSize},
		{"above maximum clamps down", MaxFilterBytes * 4, MaxLogSize},
		{"zero clamps up", 0, MinLogSize},
		{"negative clamps up", -1, MinLogSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LogSizeForBytes(tt.bytes))
		})
	}
}

func TestExpectedHeapSpaceUsed(t *testing.T) {
	assert.Equal(t, int64(4096), ExpectedHeapSpaceUsed(12))
	assert.Equal(t, int64(1024*1024), ExpectedHeapSpaceUsed(20))

	// Matches what an actual allocation occupies.
	f := NewFilter(14)
	assert.Equal(t, ExpectedHeapSpaceUsed(14), f.HeapSpaceUsed())
}

func TestFalsePositiveProb_MonotonicInNDV(t *testing.T) {
	prev := 0.0
	for _, ndv := range []uint64{1, 10, 100, 1000, 10000, 100000, 1000000} {
		fpp := FalsePositiveProb(ndv, MinLogSize)
		assert.Greater(t, fpp, prev, "fpp must grow with ndv")
		prev = fpp
	}
	// Saturates toward 1 but never exceeds it.
	assert.LessOrEqual(t, prev, 1.0)
}

func TestFalsePositiveProb_ShrinksWithSize(t *testing.T) {
	const ndv = 100000
	small := FalsePositiveProb(ndv, MinLogSize)
	large := FalsePositiveProb(ndv, MaxLogSize)
	assert.Greater(t, small, large)
}
