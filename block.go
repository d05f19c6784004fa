package sstable

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

const entryHeaderLen = 12 // shared, non-shared and value lengths, 4 bytes each

// Block is a read-only view over a finished block buffer. The buffer
// must not be mutated and must outlive every iterator created from
// the block.
type Block struct {
	data        []byte
	restarts    int // offset of the restart array
	numRestarts int
}

// NewBlock parses the restart trailer of a block buffer. It fails if
// the declared restart count cannot fit into the buffer.
func NewBlock(data []byte) (*Block, error) {
	if len(data) < 4 {
		return nil, errBadBlock
	}
	numRestarts := int(binary.LittleEndian.Uint32(data[len(data)-4:]))
	if numRestarts > (len(data)-4)/4 {
		return nil, errors.Wrap(errBadBlock, "restart count exceeds block size")
	}
	return &Block{
		data:        data,
		restarts:    len(data) - (1+numRestarts)*4,
		numRestarts: numRestarts,
	}, nil
}

// Iterator returns a new iterator over the block's entries. The
// comparator must match the one the block was built with.
func (b *Block) Iterator(cmp Comparator) *BlockIterator {
	return &BlockIterator{
		cmp:         cmp,
		data:        b.data,
		restarts:    b.restarts,
		numRestarts: b.numRestarts,
		current:     b.restarts,
	}
}

// --------------------------------------------------------------------

// BlockIterator iterates over the entries of a single block. It is
// not safe for concurrent use; create one iterator per goroutine.
type BlockIterator struct {
	cmp         Comparator
	data        []byte
	restarts    int
	numRestarts int

	current        int // offset of the current entry, == restarts when invalid
	next           int // offset right after the current entry
	currentRestart int
	key            []byte // scratch, rebuilt from shared/non-shared parts
	val            []byte
	err            error
}

// Valid reports whether the iterator is positioned at an entry.
func (i *BlockIterator) Valid() bool { return i.current < i.restarts }

// Key returns the key of the current entry. The returned slice is
// only valid until the next cursor move.
func (i *BlockIterator) Key() []byte { return i.key }

// Value returns the value of the current entry. The returned slice is
// only valid until the next cursor move.
func (i *BlockIterator) Value() []byte { return i.val }

// Err exposes iterator errors, if any. Once a corruption error has
// been observed the iterator stays invalid.
func (i *BlockIterator) Err() error { return i.err }

// First positions the iterator at the first entry.
func (i *BlockIterator) First() {
	if i.numRestarts == 0 {
		i.invalidate()
		return
	}
	i.seekToRestart(0)
	i.parseNext()
}

// Last positions the iterator at the last entry.
func (i *BlockIterator) Last() {
	if i.numRestarts == 0 {
		i.invalidate()
		return
	}
	i.seekToRestart(i.numRestarts - 1)
	for i.parseNext() && i.next < i.restarts {
	}
}

// Next advances to the entry immediately following the current one.
func (i *BlockIterator) Next() {
	if !i.Valid() {
		return
	}
	i.parseNext()
}

// Prev moves to the entry preceding the current one. Entries are
// prefix-compressed against their predecessor and cannot be decoded
// in isolation, so this rewinds to the nearest restart before the
// current entry and decodes forward.
func (i *BlockIterator) Prev() {
	if !i.Valid() {
		return
	}

	old := i.current
	for i.restartAt(i.currentRestart) >= old {
		if i.currentRestart == 0 {
			i.invalidate()
			return
		}
		i.currentRestart--
	}
	i.seekToRestart(i.currentRestart)
	for i.parseNext() && i.next < old {
	}
}

// Seek positions the iterator at the first entry with a key >= target,
// or invalidates it if there is no such entry. When the iterator is
// already positioned, the current cursor is used as a hint to narrow
// the binary search over the restart array.
func (i *BlockIterator) Seek(target []byte) {
	if i.numRestarts == 0 {
		i.invalidate()
		return
	}

	left, right := 0, i.numRestarts-1
	currentKeyCompare := 0
	if i.Valid() {
		// narrow the search range using the current position
		currentKeyCompare = i.cmp.Compare(i.key, target)
		if currentKeyCompare < 0 {
			left = i.currentRestart
		} else if currentKeyCompare > 0 {
			right = i.currentRestart
		} else {
			return
		}
	}

	// binary search over the restart points, which always carry a
	// full, uncompressed key
	for left < right {
		mid := (left + right + 1) / 2
		offset := i.restartAt(mid)
		shared, nonShared, _, ok := i.decodeHeader(offset)
		if !ok || shared != 0 {
			i.corrupt("invalid entry at restart point")
			return
		}
		midKey := i.data[offset+entryHeaderLen : offset+entryHeaderLen+nonShared]
		if i.cmp.Compare(midKey, target) < 0 {
			left = mid
		} else {
			right = mid - 1
		}
	}

	// skip re-positioning when the linear scan can continue from the
	// current entry
	if skipSeek := left == i.currentRestart && currentKeyCompare < 0; !skipSeek {
		i.seekToRestart(left)
	}
	for {
		if !i.parseNext() {
			return
		}
		if i.cmp.Compare(i.key, target) >= 0 {
			return
		}
	}
}

func (i *BlockIterator) restartAt(idx int) int {
	return int(binary.LittleEndian.Uint32(i.data[i.restarts+idx*4:]))
}

func (i *BlockIterator) seekToRestart(idx int) {
	i.key = i.key[:0]
	i.val = nil
	i.currentRestart = idx
	i.next = i.restartAt(idx)
}

func (i *BlockIterator) invalidate() {
	i.current = i.restarts
	i.next = i.restarts
	i.currentRestart = i.numRestarts
	i.key = i.key[:0]
	i.val = nil
}

func (i *BlockIterator) corrupt(msg string) {
	if i.err == nil {
		i.err = errors.Wrap(errBadBlock, msg)
	}
	i.invalidate()
}

func (i *BlockIterator) decodeHeader(offset int) (shared, nonShared, valueLen int, ok bool) {
	if offset+entryHeaderLen > i.restarts {
		return 0, 0, 0, false
	}
	shared = int(binary.LittleEndian.Uint32(i.data[offset:]))
	nonShared = int(binary.LittleEndian.Uint32(i.data[offset+4:]))
	valueLen = int(binary.LittleEndian.Uint32(i.data[offset+8:]))
	if offset+entryHeaderLen+nonShared+valueLen > i.restarts {
		return 0, 0, 0, false
	}
	return shared, nonShared, valueLen, true
}

func (i *BlockIterator) parseNext() bool {
	i.current = i.next
	if i.current >= i.restarts {
		i.invalidate()
		return false
	}

	shared, nonShared, valueLen, ok := i.decodeHeader(i.current)
	if !ok {
		i.corrupt("bad entry header")
		return false
	}
	if shared > len(i.key) {
		i.corrupt("shared length exceeds previous key")
		return false
	}

	p := i.current + entryHeaderLen
	i.key = append(i.key[:shared], i.data[p:p+nonShared]...)
	i.val = i.data[p+nonShared : p+nonShared+valueLen]
	i.next = p + nonShared + valueLen
	for i.currentRestart+1 < i.numRestarts && i.restartAt(i.currentRestart+1) <= i.current {
		i.currentRestart++
	}
	return true
}
