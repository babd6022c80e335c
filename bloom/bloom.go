// Package bloom implements the split-block Bloom filter used by runtime
// filters.
//
// A standard Bloom filter scatters its k probe bits across the whole bitset,
// costing up to k cache misses per operation. This implementation instead
// maps every key to a single 32-byte bucket (eight 32-bit words) and sets one
// bit per word inside it, so an insert or lookup touches exactly one
// cache-line-sized region regardless of how large the filter is.
//
// Within a bucket the eight bit positions are derived from the low 32 bits of
// the key hash multiplied by per-word odd constants, a cheap stand-in for
// eight independent hash functions in the spirit of Kirsch-Mitzenmacher
// double hashing. The top 32 bits of the hash select the bucket.
//
// Filters are fixed-size once constructed and support a word-wise OR merge
// with an equal-sized peer, which is how partial filters from parallel
// producers are combined into one.
package bloom

import (
	"math"
	"math/bits"
)

const (
	// BucketWords is the number of 32-bit words per bucket.
	BucketWords = 8

	// BucketBytes is the in-memory size of one bucket (one cache-line half).
	BucketBytes = BucketWords * 4

	// logBucketBytes is used to convert a directory byte size into a bucket
	// count with a shift.
	logBucketBytes = 5

	// logBucketWordBits selects how many top bits of the rehashed key pick a
	// bit inside a 32-bit word.
	logBucketWordBits = 5
)

// salts decorrelate the eight bit choices inside a bucket. Each word of a
// bucket gets its own odd multiplier; the top bits of the product choose the
// bit. The constants are arbitrary odd 32-bit values with mixed bit patterns.
var salts = [BucketWords]uint32{
	0x47b6137b, 0x44974d91, 0x8824ad5b, 0xa2b7289d,
	0x705495c7, 0x2df1424b, 0x9efc4947, 0x5c6bfb31,
}

type bucket [BucketWords]uint32

// Filter is a fixed-size split-block Bloom filter.
//
// The zero value is not usable; construct with NewFilter or use AlwaysTrue.
// Insert is not safe for concurrent use with other writers, but a filter that
// is no longer written to may be read from any number of goroutines.
type Filter struct {
	logSize    uint32
	directory  []bucket
	alwaysTrue bool
}

// AlwaysTrue is the sentinel filter that matches every key at zero storage
// cost. It stands in for a real filter whenever one is unaffordable or known
// to be ineffective: filtering degrades to a no-op rather than an error.
var AlwaysTrue = &Filter{alwaysTrue: true}

// NewFilter allocates a zeroed filter whose directory occupies 2^logSize
// bytes. Use LogSizeForBytes to derive logSize from a requested byte size.
func NewFilter(logSize uint32) *Filter {
	return &Filter{
		logSize:   logSize,
		directory: make([]bucket, 1<<(logSize-logBucketBytes)),
	}
}

// LogSize returns the log2 of the directory size in bytes.
func (f *Filter) LogSize() uint32 { return f.logSize }

// AlwaysTrue reports whether this is the sentinel filter.
func (f *Filter) AlwaysTrue() bool { return f.alwaysTrue }

// HeapSpaceUsed returns the directory size in bytes (zero for the sentinel).
func (f *Filter) HeapSpaceUsed() int64 {
	return int64(len(f.directory)) * BucketBytes
}

func (f *Filter) bucketFor(hash uint64) *bucket {
	idx := uint32(hash>>32) & uint32(len(f.directory)-1)
	return &f.directory[idx]
}

// Insert sets the bits for hash. Inserting into the sentinel is a no-op.
func (f *Filter) Insert(hash uint64) {
	if f.alwaysTrue {
		return
	}
	b := f.bucketFor(hash)
	rehash := uint32(hash)
	for i := 0; i < BucketWords; i++ {
		pos := (rehash * salts[i]) >> (32 - logBucketWordBits)
		b[i] |= 1 << pos
	}
}

// Find reports whether hash may have been inserted. A false result is
// definitive; a true result is probabilistic per FalsePositiveProb.
func (f *Filter) Find(hash uint64) bool {
	if f.alwaysTrue {
		return true
	}
	b := f.bucketFor(hash)
	rehash := uint32(hash)
	for i := 0; i < BucketWords; i++ {
		pos := (rehash * salts[i]) >> (32 - logBucketWordBits)
		if b[i]&(1<<pos) == 0 {
			return false
		}
	}
	return true
}

// Or merges other into f by word-wise union, so f answers true for every key
// either operand answered true for. Both operands must be concrete filters of
// the same size; merging the sentinel is the caller's short-circuit, not a
// merge.
func (f *Filter) Or(other *Filter) error {
	if f.alwaysTrue || other.alwaysTrue {
		return ErrAlwaysTrueOperand
	}
	if f.logSize != other.logSize {
		return ErrSizeMismatch
	}
	for i := range f.directory {
		for w := 0; w < BucketWords; w++ {
			f.directory[i][w] |= other.directory[i][w]
		}
	}
	return nil
}

// ApproxCount estimates how many distinct keys have been inserted, from the
// fraction of set bits. Observability only; the estimate degrades as the
// filter saturates and is meaningless for the sentinel.
func (f *Filter) ApproxCount() uint64 {
	if f.alwaysTrue || len(f.directory) == 0 {
		return 0
	}
	set := 0
	for i := range f.directory {
		for w := 0; w < BucketWords; w++ {
			set += bits.OnesCount32(f.directory[i][w])
		}
	}
	m := float64(len(f.directory)) * BucketBytes * 8
	t := float64(set)
	if t >= m {
		return uint64(m) // saturated
	}
	return uint64(-(m / BucketWords) * math.Log(1-t/m))
}

// Directory returns the raw directory as a little-endian byte slice copy.
// The wire package uses it to frame a filter for transport.
func (f *Filter) Directory() []byte {
	out := make([]byte, f.HeapSpaceUsed())
	for i := range f.directory {
		for w := 0; w < BucketWords; w++ {
			off := i*BucketBytes + w*4
			v := f.directory[i][w]
			out[off] = byte(v)
			out[off+1] = byte(v >> 8)
			out[off+2] = byte(v >> 16)
			out[off+3] = byte(v >> 24)
		}
	}
	return out
}

// SetDirectory overwrites the directory from a little-endian byte slice, as
// produced by Directory. The slice length must equal HeapSpaceUsed.
func (f *Filter) SetDirectory(raw []byte) error {
	if int64(len(raw)) != f.HeapSpaceUsed() {
		return ErrBadDirectory
	}
	for i := range f.directory {
		for w := 0; w < BucketWords; w++ {
			off := i*BucketBytes + w*4
			f.directory[i][w] = uint32(raw[off]) |
				uint32(raw[off+1])<<8 |
				uint32(raw[off+2])<<16 |
				uint32(raw[off+3])<<24
		}
	}
	return nil
}
