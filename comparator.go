package sstable

import "bytes"

// Comparator defines a total order over binary keys. A table must be
// read with the same comparator it was written with.
type Comparator interface {
	// Compare returns <0, 0 or >0 if a is less than, equal to or
	// greater than b.
	Compare(a, b []byte) int

	// Name identifies the comparator. It is stored with the table
	// and checked by surrounding code for format compatibility.
	// The ordering implied by an implementation must never change
	// while its name stays the same.
	Name() string

	// Separator appends to dst a key k with a <= k < b and returns
	// the result. Implementations should keep k short; returning a
	// verbatim is always correct. Requires a < b.
	Separator(dst, a, b []byte) []byte

	// Successor appends to dst a key k with k >= b and returns the
	// result. Implementations should keep k short; returning b
	// verbatim is always correct.
	Successor(dst, b []byte) []byte
}

// Bytewise orders keys lexicographically by their raw bytes. It is
// the default comparator.
var Bytewise Comparator = bytewiseComparator{}

type bytewiseComparator struct{}

func (bytewiseComparator) Compare(a, b []byte) int { return bytes.Compare(a, b) }

func (bytewiseComparator) Name() string { return "sstable.BytewiseComparator" }

func (bytewiseComparator) Separator(dst, a, b []byte) []byte {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	// find the length of the shared prefix
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}

	if i >= n {
		// a is a prefix of b, or vice versa
		return append(dst, a...)
	}
	if c := a[i]; c < 0xff && c+1 < b[i] {
		dst = append(dst, a[:i+1]...)
		dst[len(dst)-1]++
		return dst
	}
	return append(dst, a...)
}

func (bytewiseComparator) Successor(dst, b []byte) []byte {
	for i, c := range b {
		if c != 0xff {
			dst = append(dst, b[:i+1]...)
			dst[len(dst)-1]++
			return dst
		}
	}
	// all 0xff, cannot be shortened
	return append(dst, b...)
}
