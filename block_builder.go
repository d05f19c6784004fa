package sstable

import (
	"encoding/binary"
	"fmt"
)

// BlockBuilder accumulates sorted key/value pairs into a single block
// buffer, prefix-compressing keys against their predecessor and
// recording a restart point every BlockRestartInterval entries.
type BlockBuilder struct {
	cmp      Comparator
	interval int

	buf      []byte
	restarts []uint32
	counter  int
	lastKey  []byte
	finished bool

	tmp [12]byte
}

// NewBlockBuilder inits a block builder.
func NewBlockBuilder(cmp Comparator, restartInterval int) *BlockBuilder {
	return &BlockBuilder{
		cmp:      cmp,
		interval: restartInterval,
		restarts: []uint32{0},
	}
}

// Add appends an entry to the block. Keys must be added in strictly
// increasing order per the builder's comparator.
func (b *BlockBuilder) Add(key, value []byte) error {
	if b.finished {
		return errBlockFinished
	}
	if len(b.buf) != 0 && b.cmp.Compare(key, b.lastKey) <= 0 {
		return fmt.Errorf("sstable: attempted an out-of-order append, %q must be > %q", key, b.lastKey)
	}

	shared := 0
	if b.counter < b.interval {
		// shared prefix with the previous key
		n := len(b.lastKey)
		if len(key) < n {
			n = len(key)
		}
		for shared < n && b.lastKey[shared] == key[shared] {
			shared++
		}
	} else {
		b.restarts = append(b.restarts, uint32(len(b.buf)))
		b.counter = 0
	}
	nonShared := len(key) - shared

	binary.LittleEndian.PutUint32(b.tmp[0:], uint32(shared))
	binary.LittleEndian.PutUint32(b.tmp[4:], uint32(nonShared))
	binary.LittleEndian.PutUint32(b.tmp[8:], uint32(len(value)))
	b.buf = append(b.buf, b.tmp[:12]...)
	b.buf = append(b.buf, key[shared:]...)
	b.buf = append(b.buf, value...)

	b.lastKey = append(b.lastKey[:shared], key[shared:]...)
	b.counter++
	return nil
}

// Finish seals the block by appending the restart offsets and their
// count, and returns the complete block buffer. The returned slice is
// only valid until the next Reset.
func (b *BlockBuilder) Finish() []byte {
	for _, restart := range b.restarts {
		binary.LittleEndian.PutUint32(b.tmp[:4], restart)
		b.buf = append(b.buf, b.tmp[:4]...)
	}
	binary.LittleEndian.PutUint32(b.tmp[:4], uint32(len(b.restarts)))
	b.buf = append(b.buf, b.tmp[:4]...)
	b.finished = true
	return b.buf
}

// SizeEstimate returns the size of the finished block given the
// entries added so far.
func (b *BlockBuilder) SizeEstimate() int {
	return len(b.buf) + len(b.restarts)*4 + 4
}

// Empty reports whether no entries have been added.
func (b *BlockBuilder) Empty() bool { return len(b.buf) == 0 }

// Reset clears all state, allowing the builder to be reused.
func (b *BlockBuilder) Reset() {
	b.buf = b.buf[:0]
	b.restarts = append(b.restarts[:0], 0)
	b.counter = 0
	b.lastKey = b.lastKey[:0]
	b.finished = false
}
