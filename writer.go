package sstable

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/pkg/errors"
)

// WriterOptions define writer specific options.
type WriterOptions struct {
	// BlockSize is the minimum uncompressed size in bytes of each table
	// block.
	// Default: 4KiB.
	BlockSize int

	// BlockRestartInterval is the number of keys between restart points
	// for prefix-delta encoding of keys.
	//
	// Default: 16.
	BlockRestartInterval int

	// The compression codec to use.
	// Default: SnappyCompression.
	Compression Compression

	// Comparator defines the order of keys in the table.
	// Default: Bytewise.
	Comparator Comparator

	// FilterPolicy, when set, adds a filter block to the table which
	// readers using the same policy can consult to skip block reads
	// for absent keys.
	// Default: none.
	FilterPolicy FilterPolicy
}

func (o *WriterOptions) norm() *WriterOptions {
	var oo WriterOptions
	if o != nil {
		oo = *o
	}

	if oo.BlockSize < 1 {
		oo.BlockSize = 1 << 12
	}
	if oo.BlockRestartInterval < 1 {
		oo.BlockRestartInterval = 16
	}
	if !oo.Compression.isValid() {
		oo.Compression = SnappyCompression
	}
	if oo.Comparator == nil {
		oo.Comparator = Bytewise
	}

	return &oo
}

// Writer instances can write a table. Errors are sticky: once an
// append or flush has failed, every further operation returns the
// first error observed.
type Writer struct {
	w io.Writer
	o *WriterOptions

	dataBlock   *BlockBuilder
	indexBlock  *BlockBuilder
	filterBlock *filterBlockBuilder

	firstKey []byte
	lastKey  []byte

	pendingHandle     BlockHandle
	pendingIndexEntry bool

	offset   uint64
	nEntries uint64
	closed   bool
	err      error

	cbuf []byte // compression buffer
	tmp  []byte // scratch buffer
}

// NewWriter wraps a writer and returns a Writer.
func NewWriter(w io.Writer, o *WriterOptions) *Writer {
	o = o.norm()
	wr := &Writer{
		w:          w,
		o:          o,
		dataBlock:  NewBlockBuilder(o.Comparator, o.BlockRestartInterval),
		indexBlock: NewBlockBuilder(o.Comparator, 1),
		tmp:        make([]byte, 0, footerLen),
	}
	if o.FilterPolicy != nil {
		wr.filterBlock = newFilterBlockBuilder(o.FilterPolicy)
	}
	return wr
}

// Append appends an entry to the table. Keys must be appended in
// strictly increasing order across the whole table.
func (w *Writer) Append(key, value []byte) error {
	if w.err != nil {
		return w.err
	}
	if w.closed {
		return errClosed
	}
	if w.nEntries != 0 && w.o.Comparator.Compare(key, w.lastKey) <= 0 {
		return fmt.Errorf("sstable: attempted an out-of-order append, %q must be > %q", key, w.lastKey)
	}

	if w.pendingIndexEntry {
		// the previous data block was just cut; index it under the
		// shortest key separating its last key from the new one
		sep := w.o.Comparator.Separator(nil, w.lastKey, key)
		if err := w.addIndexEntry(sep); err != nil {
			return err
		}
	}

	if w.filterBlock != nil {
		w.filterBlock.AddKey(key)
	}
	if w.nEntries == 0 {
		w.firstKey = append(w.firstKey[:0], key...)
	}
	if err := w.dataBlock.Add(key, value); err != nil {
		return err
	}
	w.lastKey = append(w.lastKey[:0], key...)
	w.nEntries++

	if w.dataBlock.SizeEstimate() >= w.o.BlockSize {
		return w.Flush()
	}
	return nil
}

// Flush cuts the current data block and writes it to the underlying
// writer. It is invoked automatically once a block exceeds the
// configured BlockSize and rarely needs to be called directly.
func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	if w.closed {
		return errClosed
	}
	if w.dataBlock.Empty() {
		return nil
	}

	if err := w.writeBlock(w.dataBlock, &w.pendingHandle); err != nil {
		return err
	}
	w.pendingIndexEntry = true
	if w.filterBlock != nil {
		w.filterBlock.StartBlock(w.offset)
	}
	return nil
}

// Close finishes the table by writing the filter, metaindex and index
// blocks followed by the footer. The underlying writer is not closed.
func (w *Writer) Close() error {
	if w.err != nil {
		return w.err
	}
	if w.closed {
		return errClosed
	}
	if err := w.Flush(); err != nil {
		return err
	}
	w.closed = true

	// filter block
	var filterHandle BlockHandle
	if w.filterBlock != nil {
		if err := w.writeRawBlock(w.filterBlock.Finish(), blockNoCompression, &filterHandle); err != nil {
			return err
		}
	}

	// metaindex block
	metaindex := NewBlockBuilder(w.o.Comparator, w.o.BlockRestartInterval)
	if w.filterBlock != nil {
		key := append([]byte("filter."), w.o.FilterPolicy.Name()...)
		if err := metaindex.Add(key, filterHandle.AppendTo(nil)); err != nil {
			w.err = err
			return err
		}
	}
	var metaindexHandle BlockHandle
	if err := w.writeBlock(metaindex, &metaindexHandle); err != nil {
		return err
	}

	// index block
	if w.pendingIndexEntry {
		suc := w.o.Comparator.Successor(nil, w.lastKey)
		if err := w.addIndexEntry(suc); err != nil {
			return err
		}
	}
	var indexHandle BlockHandle
	if err := w.writeBlock(w.indexBlock, &indexHandle); err != nil {
		return err
	}

	// footer
	f := footer{Metaindex: metaindexHandle, Index: indexHandle}
	return w.writeRaw(f.AppendTo(w.tmp[:0]))
}

// EntriesCount returns the number of entries appended so far.
func (w *Writer) EntriesCount() uint64 { return w.nEntries }

// FirstKey returns a copy of the smallest key appended so far.
func (w *Writer) FirstKey() []byte { return append([]byte(nil), w.firstKey...) }

// LastKey returns a copy of the largest key appended so far.
func (w *Writer) LastKey() []byte { return append([]byte(nil), w.lastKey...) }

// FileSize returns the number of bytes written so far.
func (w *Writer) FileSize() uint64 { return w.offset }

// Err returns the first error observed by the writer, if any.
func (w *Writer) Err() error { return w.err }

func (w *Writer) addIndexEntry(sep []byte) error {
	if err := w.indexBlock.Add(sep, w.pendingHandle.AppendTo(w.tmp[:0])); err != nil {
		w.err = err
		return err
	}
	w.pendingIndexEntry = false
	return nil
}

func (w *Writer) writeBlock(bb *BlockBuilder, handle *BlockHandle) error {
	raw := bb.Finish()

	payload, ctype := raw, byte(blockNoCompression)
	if w.o.Compression == SnappyCompression {
		w.cbuf = snappy.Encode(w.cbuf[:cap(w.cbuf)], raw)
		if len(w.cbuf) < len(raw)-len(raw)/4 {
			payload, ctype = w.cbuf, blockSnappyCompression
		}
	}

	err := w.writeRawBlock(payload, ctype, handle)
	bb.Reset()
	return err
}

func (w *Writer) writeRawBlock(payload []byte, ctype byte, handle *BlockHandle) error {
	*handle = BlockHandle{Offset: w.offset, Size: uint64(len(payload))}
	if err := w.writeRaw(payload); err != nil {
		return err
	}

	w.tmp = append(w.tmp[:0], ctype, 0, 0, 0, 0)
	binary.LittleEndian.PutUint32(w.tmp[1:], blockChecksum(payload, ctype))
	return w.writeRaw(w.tmp[:blockTrailerLen])
}

func (w *Writer) writeRaw(p []byte) error {
	n, err := w.w.Write(p)
	w.offset += uint64(n)
	if err != nil && w.err == nil {
		w.err = errors.Wrap(err, "sstable: write failed")
	}
	return w.err
}
