package sstable

import (
	"encoding/binary"

	farm "github.com/dgryski/go-farm"
)

// FilterPolicy creates and probes per-block key filters, bloom-filter
// style. The same policy (by Name) must be used for writing and
// reading a table.
type FilterPolicy interface {
	// Name identifies the policy. It keys the filter block in the
	// table's metaindex.
	Name() string

	// AppendFilter appends a filter summarising the given keys to
	// dst and returns the result.
	AppendFilter(dst []byte, keys [][]byte) []byte

	// KeyMayMatch reports whether the filter may contain the key.
	// False positives are allowed, false negatives are not.
	KeyMayMatch(filter, key []byte) bool
}

// --------------------------------------------------------------------

// BloomFilter returns a bloom filter policy with the given number of
// bits per key. 10 bits yield a ~1% false-positive rate.
func BloomFilter(bitsPerKey int) FilterPolicy {
	if bitsPerKey < 1 {
		bitsPerKey = 1
	}

	// number of probes, ~bitsPerKey * ln(2)
	k := bitsPerKey * 69 / 100
	if k < 1 {
		k = 1
	} else if k > 30 {
		k = 30
	}
	return &bloomFilter{bitsPerKey: bitsPerKey, numProbes: k}
}

type bloomFilter struct {
	bitsPerKey int
	numProbes  int
}

func (f *bloomFilter) Name() string { return "sstable.BloomFilter" }

func (f *bloomFilter) AppendFilter(dst []byte, keys [][]byte) []byte {
	nBits := len(keys) * f.bitsPerKey
	if nBits < 64 {
		nBits = 64 // avoid a high false-positive rate for tiny filters
	}
	nBytes := (nBits + 7) / 8
	nBits = nBytes * 8

	base := len(dst)
	for i := 0; i < nBytes; i++ {
		dst = append(dst, 0)
	}
	for _, key := range keys {
		h := farm.Hash32(key)
		delta := h>>17 | h<<15
		for j := 0; j < f.numProbes; j++ {
			pos := h % uint32(nBits)
			dst[base+int(pos/8)] |= 1 << (pos % 8)
			h += delta
		}
	}
	return append(dst, byte(f.numProbes))
}

func (f *bloomFilter) KeyMayMatch(filter, key []byte) bool {
	if len(filter) < 2 {
		return false
	}

	k := filter[len(filter)-1]
	if k > 30 {
		// reserved for future encodings, never filter these out
		return true
	}
	nBits := uint32(len(filter)-1) * 8

	h := farm.Hash32(key)
	delta := h>>17 | h<<15
	for j := byte(0); j < k; j++ {
		pos := h % nBits
		if filter[pos/8]&(1<<(pos%8)) == 0 {
			return false
		}
		h += delta
	}
	return true
}

// --------------------------------------------------------------------

// Filters cover aligned 2KiB ranges of data-block offsets.
const filterBaseLg = 11

// filterBlockBuilder accumulates the keys of the table as they are
// appended and emits one filter per 2KiB range of data-block offsets.
type filterBlockBuilder struct {
	policy FilterPolicy

	keys    [][]byte // keys since the last generated filter
	flat    []byte   // backing storage for keys
	offsets []uint32
	result  []byte
}

func newFilterBlockBuilder(policy FilterPolicy) *filterBlockBuilder {
	return &filterBlockBuilder{policy: policy}
}

func (b *filterBlockBuilder) AddKey(key []byte) {
	n := len(b.flat)
	b.flat = append(b.flat, key...)
	b.keys = append(b.keys, b.flat[n:len(b.flat):len(b.flat)])
}

// StartBlock is called with the offset of every freshly cut data
// block and generates filters for all ranges the offset has passed.
func (b *filterBlockBuilder) StartBlock(blockOffset uint64) {
	idx := int(blockOffset >> filterBaseLg)
	for idx > len(b.offsets) {
		b.generate()
	}
}

// Finish appends the offset array trailer and returns the complete
// filter block.
func (b *filterBlockBuilder) Finish() []byte {
	if len(b.keys) > 0 {
		b.generate()
	}

	arrayOffset := uint32(len(b.result))
	var tmp [4]byte
	for _, offset := range b.offsets {
		binary.LittleEndian.PutUint32(tmp[:], offset)
		b.result = append(b.result, tmp[:]...)
	}
	binary.LittleEndian.PutUint32(tmp[:], arrayOffset)
	b.result = append(b.result, tmp[:]...)
	return append(b.result, filterBaseLg)
}

func (b *filterBlockBuilder) generate() {
	b.offsets = append(b.offsets, uint32(len(b.result)))
	if len(b.keys) == 0 {
		return
	}
	b.result = b.policy.AppendFilter(b.result, b.keys)
	b.keys = b.keys[:0]
	b.flat = b.flat[:0]
}

// --------------------------------------------------------------------

// filterBlockReader probes a persisted filter block.
type filterBlockReader struct {
	policy FilterPolicy
	data   []byte // the filter segments
	array  []byte // the offset array
	num    int
	baseLg uint
}

func newFilterBlockReader(policy FilterPolicy, data []byte) *filterBlockReader {
	r := &filterBlockReader{policy: policy}
	if len(data) < 5 {
		return r
	}

	baseLg := uint(data[len(data)-1])
	arrayOffset := int(binary.LittleEndian.Uint32(data[len(data)-5:]))
	if arrayOffset > len(data)-5 {
		return r
	}
	r.data = data[:arrayOffset]
	r.array = data[arrayOffset : len(data)-5]
	r.num = len(r.array) / 4
	r.baseLg = baseLg
	return r
}

func (r *filterBlockReader) KeyMayMatch(blockOffset uint64, key []byte) bool {
	idx := int(blockOffset >> r.baseLg)
	if idx >= r.num {
		return true // out of range, treat as a potential match
	}

	start := int(binary.LittleEndian.Uint32(r.array[idx*4:]))
	limit := len(r.data)
	if next := idx + 1; next < r.num {
		limit = int(binary.LittleEndian.Uint32(r.array[next*4:]))
	}
	if start > limit || limit > len(r.data) {
		return true // malformed filter, never filter out
	}
	if start == limit {
		return false // empty filter covers no keys
	}
	return r.policy.KeyMayMatch(r.data[start:limit], key)
}
