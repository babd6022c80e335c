package bloom

import (
	"math"
	"math/bits"
)

const (
	// MinFilterBytes and MaxFilterBytes clamp the configured target filter
	// size. Both are powers of two, so the clamped value's ceiling log2 never
	// falls outside [MinLogSize, MaxLogSize].
	MinFilterBytes = 4 * 1024
	MaxFilterBytes = 16 * 1024 * 1024

	// MinLogSize and MaxLogSize are the log2 of the byte clamps above.
	MinLogSize = 12
	MaxLogSize = 24

	// DefaultFilterBytes is the target directory size used when none is
	// configured.
	DefaultFilterBytes = 1024 * 1024
)

// LogSizeForBytes clamps a requested directory size into
// [MinFilterBytes, MaxFilterBytes] and returns the ceiling log2 of the
// result, so actual storage is always a power of two at least the clamp
// floor.
func LogSizeForBytes(n int64) uint32 {
	if n < MinFilterBytes {
		n = MinFilterBytes
	}
	if n > MaxFilterBytes {
		n = MaxFilterBytes
	}
	return log2Ceiling(uint64(n))
}

func log2Ceiling(v uint64) uint32 {
	floor := uint32(63 - bits.LeadingZeros64(v))
	if v&(v-1) == 0 {
		return floor
	}
	return floor + 1
}

// ExpectedHeapSpaceUsed returns the directory bytes a filter of the given
// size will occupy. Deterministic and computable before allocation, which is
// what admission control against the memory budget relies on.
func ExpectedHeapSpaceUsed(logSize uint32) int64 {
	return int64(1) << logSize
}

// FalsePositiveProb estimates the false-positive rate after ndv distinct
// insertions into a filter of the given size, using the standard model for a
// bucketed filter that sets BucketWords bits per key:
//
//	(1 - e^(-k*ndv/m))^k  with k = BucketWords, m = 2^(logSize+3) bits.
//
// Monotonically increasing in ndv for a fixed size.
func FalsePositiveProb(ndv uint64, logSize uint32) float64 {
	m := math.Pow(2, float64(logSize)+3)
	return math.Pow(1-math.Exp(-float64(BucketWords)*float64(ndv)/m), BucketWords)
}
