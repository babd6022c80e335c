package bloom

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// Hash maps a raw key to the 64-bit value Insert and Find consume. Producer
// and consumer operators must hash a join key identically or the filter would
// report false negatives, so every caller goes through these helpers.
func Hash(key []byte) uint64 {
	return xxhash.Sum64(key)
}

// HashString is Hash for string keys without a copy.
func HashString(key string) uint64 {
	return xxhash.Sum64String(key)
}

// HashUint64 hashes a fixed-width integer key in little-endian form.
func HashUint64(v uint64) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return xxhash.Sum64(buf[:])
}
