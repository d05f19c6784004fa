package sstable

import (
	"encoding/binary"
	"io"
	"sync"

	"github.com/golang/snappy"
	"github.com/pkg/errors"
)

// ReaderOptions define reader specific options.
type ReaderOptions struct {
	// Comparator must match the comparator the table was written with.
	// Default: Bytewise.
	Comparator Comparator

	// FilterPolicy must match the policy the table was written with
	// for the reader to consult the table's filter block. When unset,
	// any filter block is ignored.
	// Default: none.
	FilterPolicy FilterPolicy

	// VerifyChecksums makes the reader validate the checksum of every
	// block it materializes.
	// Default: false.
	VerifyChecksums bool
}

func (o *ReaderOptions) norm() *ReaderOptions {
	var oo ReaderOptions
	if o != nil {
		oo = *o
	}

	if oo.Comparator == nil {
		oo.Comparator = Bytewise
	}
	return &oo
}

// Reader instances can seek and iterate across entries in a table.
// A Reader is safe for concurrent use as long as each goroutine uses
// its own iterators.
type Reader struct {
	r io.ReaderAt
	o *ReaderOptions

	index  *Block
	filter *filterBlockReader
}

// NewReader opens a reader.
func NewReader(r io.ReaderAt, size int64, o *ReaderOptions) (*Reader, error) {
	o = o.norm()
	if size < footerLen {
		return nil, errors.Wrap(errBadMagic, "file too short")
	}

	// read and parse footer
	tmp := make([]byte, footerLen)
	if _, err := r.ReadAt(tmp, size-footerLen); err != nil {
		return nil, err
	}
	f, err := decodeFooter(tmp)
	if err != nil {
		return nil, err
	}

	rd := &Reader{r: r, o: o}

	// read index block
	data, err := rd.readBlockBytes(f.Index)
	if err != nil {
		return nil, errors.Wrap(err, "index block")
	}
	if rd.index, err = NewBlock(data); err != nil {
		return nil, errors.Wrap(err, "index block")
	}

	// resolve filter block through the metaindex
	if o.FilterPolicy != nil {
		if err := rd.readFilter(f.Metaindex); err != nil {
			return nil, err
		}
	}
	return rd, nil
}

func (r *Reader) readFilter(metaindexHandle BlockHandle) error {
	data, err := r.readBlockBytes(metaindexHandle)
	if err != nil {
		return errors.Wrap(err, "metaindex block")
	}
	metaindex, err := NewBlock(data)
	if err != nil {
		return errors.Wrap(err, "metaindex block")
	}

	key := append([]byte("filter."), r.o.FilterPolicy.Name()...)
	iter := metaindex.Iterator(r.o.Comparator)
	iter.Seek(key)
	if err := iter.Err(); err != nil {
		return err
	}
	if !iter.Valid() || r.o.Comparator.Compare(iter.Key(), key) != 0 {
		return nil // table was written without this filter
	}

	handle, _, err := decodeBlockHandle(iter.Value())
	if err != nil {
		return err
	}
	filterData, err := r.readBlockBytes(handle)
	if err != nil {
		return errors.Wrap(err, "filter block")
	}
	r.filter = newFilterBlockReader(r.o.FilterPolicy, filterData)
	return nil
}

// Append retrieves a single value for a key and appends it to dst
// instead of allocating a new byte slice.
// It may return an ErrNotFound error.
func (r *Reader) Append(dst, key []byte) ([]byte, error) {
	indexIter := r.index.Iterator(r.o.Comparator)
	indexIter.Seek(key)
	if err := indexIter.Err(); err != nil {
		return dst, err
	}
	if !indexIter.Valid() {
		return dst, ErrNotFound
	}

	handle, _, err := decodeBlockHandle(indexIter.Value())
	if err != nil {
		return dst, err
	}
	if r.filter != nil && !r.filter.KeyMayMatch(handle.Offset, key) {
		return dst, ErrNotFound
	}

	iter, err := r.blockIterator(handle)
	if err != nil {
		return dst, err
	}
	iter.Seek(key)
	if err := iter.Err(); err != nil {
		return dst, err
	}
	if !iter.Valid() || r.o.Comparator.Compare(iter.Key(), key) != 0 {
		return dst, ErrNotFound
	}
	return append(dst, iter.Value()...), nil
}

// Get is a shortcut for Append(nil, key).
// It may return an ErrNotFound error.
func (r *Reader) Get(key []byte) ([]byte, error) {
	return r.Append(nil, key)
}

// Iterator returns an unpositioned iterator over the whole table.
// Callers position it with First, Last or Seek.
func (r *Reader) Iterator() *TableIterator {
	return newTableIterator(r.index.Iterator(r.o.Comparator), func(handle []byte) (Iterator, error) {
		h, _, err := decodeBlockHandle(handle)
		if err != nil {
			return nil, err
		}
		return r.blockIterator(h)
	})
}

// Seek returns an iterator positioned at the first entry with a
// key >= the given key.
func (r *Reader) Seek(key []byte) *TableIterator {
	iter := r.Iterator()
	iter.Seek(key)
	return iter
}

func (r *Reader) blockIterator(h BlockHandle) (*BlockIterator, error) {
	data, err := r.readBlockBytes(h)
	if err != nil {
		return nil, err
	}
	block, err := NewBlock(data)
	if err != nil {
		return nil, err
	}
	return block.Iterator(r.o.Comparator), nil
}

// readBlockBytes reads a block and its trailer, verifies the trailer
// and returns the decompressed block contents. The returned slice is
// heap-owned and may be retained by iterators indefinitely.
func (r *Reader) readBlockBytes(h BlockHandle) ([]byte, error) {
	raw := fetchBuffer(int(h.Size) + blockTrailerLen)
	defer releaseBuffer(raw)

	if _, err := r.r.ReadAt(raw, int64(h.Offset)); err != nil {
		return nil, err
	}

	payload, trailer := raw[:h.Size], raw[h.Size:]
	ctype := trailer[0]
	if r.o.VerifyChecksums {
		if expected := binary.LittleEndian.Uint32(trailer[1:]); blockChecksum(payload, ctype) != expected {
			return nil, errors.Wrap(errBadBlock, "checksum mismatch")
		}
	}

	switch ctype {
	case blockNoCompression:
		return append([]byte(nil), payload...), nil
	case blockSnappyCompression:
		return snappy.Decode(nil, payload)
	default:
		return nil, errBadCompression
	}
}

// --------------------------------------------------------------------

var bufPool sync.Pool

func fetchBuffer(sz int) []byte {
	if v := bufPool.Get(); v != nil {
		if p := v.([]byte); sz <= cap(p) {
			return p[:sz]
		}
	}
	return make([]byte, sz)
}

func releaseBuffer(p []byte) {
	if cap(p) != 0 {
		bufPool.Put(p)
	}
}
