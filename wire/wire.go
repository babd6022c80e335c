// Package wire holds the transport representation of runtime filters and the
// messages the cross-node protocol exchanges.
//
// The frame a filter travels in is deliberately self-contained:
//
//	+---------+------------+---------------------------+
//	| logSize | alwaysTrue | directory block           |
//	| uint32  | byte       | (omitted when alwaysTrue) |
//	+---------+------------+---------------------------+
//
// The directory block carries its own
// [compressionType][uncompressedSize][compressedSize] header, with
// compressedSize == 0 meaning the directory is stored as-is. Whether a sender
// compresses is a transport choice: receivers handle every compression type
// and the decoded filter is identical either way.
package wire

import (
	"encoding/binary"

	"github.com/stratosql/runtimefilter/bloom"
)

const frameHeaderSize = 5

// Filter is the wire form of a bloom filter: its size, the always-true flag,
// and the framed directory bytes (empty when always-true).
type Filter struct {
	LogSize    uint32
	AlwaysTrue bool
	Directory  []byte
}

// Update is the producer-to-coordinator message carrying one execution
// unit's partial filter.
type Update struct {
	QueryID  string
	FilterID uint32
	UnitID   uint32
	Filter   *Filter
}

// Publish is the coordinator-to-consumer message carrying the merged result.
type Publish struct {
	QueryID  string
	FilterID uint32
	Filter   *Filter
}

// EncodeFilter converts a bloom filter into its wire form, compressing the
// directory with the given compression type.
func EncodeFilter(f *bloom.Filter, ct CompressionType) (*Filter, error) {
	if f.AlwaysTrue() {
		return &Filter{AlwaysTrue: true}, nil
	}
	block, err := compressBlock(f.Directory(), ct)
	if err != nil {
		return nil, err
	}
	return &Filter{
		LogSize:   f.LogSize(),
		Directory: block,
	}, nil
}

// DecodeFilter reconstructs a bloom filter from its wire form. The caller is
// responsible for admission control before decoding a concrete filter; an
// always-true wire form decodes to the shared sentinel without allocating.
func DecodeFilter(w *Filter) (*bloom.Filter, error) {
	if w.AlwaysTrue {
		return bloom.AlwaysTrue, nil
	}
	if w.LogSize < bloom.MinLogSize || w.LogSize > bloom.MaxLogSize {
		return nil, ErrBadLogSize
	}
	raw, err := decompressBlock(w.Directory)
	if err != nil {
		return nil, err
	}
	f := bloom.NewFilter(w.LogSize)
	if err := f.SetDirectory(raw); err != nil {
		return nil, err
	}
	return f, nil
}

// Marshal frames a wire filter into a single byte slice.
func (w *Filter) Marshal() []byte {
	if w.AlwaysTrue {
		out := make([]byte, frameHeaderSize)
		binary.LittleEndian.PutUint32(out[0:], w.LogSize)
		out[4] = 1
		return out
	}
	out := make([]byte, frameHeaderSize+len(w.Directory))
	binary.LittleEndian.PutUint32(out[0:], w.LogSize)
	copy(out[frameHeaderSize:], w.Directory)
	return out
}

// UnmarshalFilter parses a frame produced by Marshal.
func UnmarshalFilter(data []byte) (*Filter, error) {
	if len(data) < frameHeaderSize {
		return nil, ErrShortFrame
	}
	w := &Filter{
		LogSize:    binary.LittleEndian.Uint32(data[0:]),
		AlwaysTrue: data[4] != 0,
	}
	if w.AlwaysTrue {
		return w, nil
	}
	w.Directory = data[frameHeaderSize:]
	return w, nil
}
