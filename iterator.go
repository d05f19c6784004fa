package sstable

import "bytes"

// Iterator is the capability shared by all iterators in this package:
// block iterators and the two-level table iterator.
//
// Key and Value return slices that are only valid until the next
// cursor move and must be copied if retained. Err is sticky: once an
// error has been observed the iterator stays invalid.
type Iterator interface {
	First()
	Last()
	Next()
	Prev()
	Seek(target []byte)
	Valid() bool
	Key() []byte
	Value() []byte
	Err() error
}

// blockFunc materializes a data-block iterator from the encoded block
// handle stored as an index-block value. It is supplied by the table
// reader, which owns file access and any caching.
type blockFunc func(handle []byte) (Iterator, error)

// --------------------------------------------------------------------

// TableIterator composes an index-block iterator with lazily
// materialized data-block iterators, giving one flat sorted iteration
// over the whole table. At most one data block is live at a time.
type TableIterator struct {
	indexIter Iterator
	loadBlock blockFunc

	dataIter   Iterator // nil when no data block is loaded
	dataHandle []byte   // handle of the loaded data block
	err        error
}

func newTableIterator(indexIter Iterator, loadBlock blockFunc) *TableIterator {
	return &TableIterator{indexIter: indexIter, loadBlock: loadBlock}
}

// Valid reports whether the iterator is positioned at an entry.
func (i *TableIterator) Valid() bool { return i.dataIter != nil && i.dataIter.Valid() }

// Key returns the key of the current entry. The returned slice is
// only valid until the next cursor move.
func (i *TableIterator) Key() []byte { return i.dataIter.Key() }

// Value returns the value of the current entry. The returned slice is
// only valid until the next cursor move.
func (i *TableIterator) Value() []byte { return i.dataIter.Value() }

// Err exposes iterator errors. The index iterator's error wins over
// the data iterator's, which wins over block materialization errors.
func (i *TableIterator) Err() error {
	if err := i.indexIter.Err(); err != nil {
		return err
	}
	if i.dataIter != nil {
		if err := i.dataIter.Err(); err != nil {
			return err
		}
	}
	return i.err
}

// Seek positions the iterator at the first entry with a key >= target,
// or invalidates it if there is no such entry.
func (i *TableIterator) Seek(target []byte) {
	i.indexIter.Seek(target)
	i.initDataBlock()
	if i.dataIter != nil {
		i.dataIter.Seek(target)
	}
	i.skipEmptyDataBlocksForward()
}

// First positions the iterator at the first entry of the table.
func (i *TableIterator) First() {
	i.indexIter.First()
	i.initDataBlock()
	if i.dataIter != nil {
		i.dataIter.First()
	}
	i.skipEmptyDataBlocksForward()
}

// Last positions the iterator at the last entry of the table.
func (i *TableIterator) Last() {
	i.indexIter.Last()
	i.initDataBlock()
	if i.dataIter != nil {
		i.dataIter.Last()
	}
	i.skipEmptyDataBlocksBackward()
}

// Next advances the iterator to the next entry.
func (i *TableIterator) Next() {
	if !i.Valid() {
		return
	}
	i.dataIter.Next()
	i.skipEmptyDataBlocksForward()
}

// Prev moves the iterator to the previous entry.
func (i *TableIterator) Prev() {
	if !i.Valid() {
		return
	}
	i.dataIter.Prev()
	i.skipEmptyDataBlocksBackward()
}

func (i *TableIterator) skipEmptyDataBlocksForward() {
	for i.dataIter == nil || !i.dataIter.Valid() {
		if !i.indexIter.Valid() {
			i.dataIter = nil
			return
		}
		i.indexIter.Next()
		i.initDataBlock()
		if i.dataIter != nil {
			i.dataIter.First()
		}
	}
}

func (i *TableIterator) skipEmptyDataBlocksBackward() {
	for i.dataIter == nil || !i.dataIter.Valid() {
		if !i.indexIter.Valid() {
			i.dataIter = nil
			return
		}
		i.indexIter.Prev()
		i.initDataBlock()
		if i.dataIter != nil {
			i.dataIter.Last()
		}
	}
}

// initDataBlock materializes the data block the index iterator points
// at, unless its handle matches the currently loaded block.
func (i *TableIterator) initDataBlock() {
	if !i.indexIter.Valid() {
		i.dataIter = nil
		return
	}

	handle := i.indexIter.Value()
	if i.dataIter != nil && bytes.Equal(handle, i.dataHandle) {
		return // the block is already loaded
	}

	iter, err := i.loadBlock(handle)
	if err != nil {
		if i.err == nil {
			i.err = err
		}
		i.dataIter = nil
		return
	}
	i.dataIter = iter
	i.dataHandle = append(i.dataHandle[:0], handle...)
}
