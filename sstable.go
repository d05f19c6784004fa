package sstable

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
)

var magic = []byte{83, 115, 84, 98, 213, 39, 142, 251}

const (
	blockNoCompression     = 0
	blockSnappyCompression = 1

	// Every block is followed by a 1-byte compression type
	// indicator and a 4-byte checksum of the payload + type.
	blockTrailerLen = 5

	// Two maximum-length block handles, zero-padded, plus magic.
	footerLen = 2*binary.MaxVarintLen64*2 + 8
)

// ErrNotFound is returned by the reader when a key cannot be found.
var ErrNotFound = errors.New("sstable: not found")

var (
	errClosed         = errors.New("sstable: is closed")
	errBadMagic       = errors.New("sstable: bad magic byte sequence")
	errBadCompression = errors.New("sstable: bad compression codec")
	errBadBlock       = errors.New("sstable: corrupted block")
	errBadBlockHandle = errors.New("sstable: corrupted block handle")
	errBlockFinished  = errors.New("sstable: block builder is finished")
)

var crcTable = crc32.MakeTable(crc32.Castagnoli)

func blockChecksum(payload []byte, ctype byte) uint32 {
	crc := crc32.Update(0, crcTable, payload)
	return crc32.Update(crc, crcTable, []byte{ctype})
}

// --------------------------------------------------------------------

// BlockHandle locates a block within the table file. Size excludes
// the block trailer.
type BlockHandle struct {
	Offset uint64
	Size   uint64
}

// AppendTo appends the varint encoding of h to dst.
func (h BlockHandle) AppendTo(dst []byte) []byte {
	dst = binary.AppendUvarint(dst, h.Offset)
	dst = binary.AppendUvarint(dst, h.Size)
	return dst
}

func decodeBlockHandle(p []byte) (BlockHandle, int, error) {
	offset, n := binary.Uvarint(p)
	if n <= 0 {
		return BlockHandle{}, 0, errBadBlockHandle
	}
	size, m := binary.Uvarint(p[n:])
	if m <= 0 {
		return BlockHandle{}, 0, errBadBlockHandle
	}
	return BlockHandle{Offset: offset, Size: size}, n + m, nil
}

// --------------------------------------------------------------------

type footer struct {
	Metaindex BlockHandle
	Index     BlockHandle
}

func (f footer) AppendTo(dst []byte) []byte {
	n := len(dst)
	dst = f.Metaindex.AppendTo(dst)
	dst = f.Index.AppendTo(dst)
	for len(dst)-n < footerLen-8 {
		dst = append(dst, 0)
	}
	return append(dst, magic...)
}

func decodeFooter(p []byte) (f footer, err error) {
	if len(p) != footerLen || !bytes.Equal(p[footerLen-8:], magic) {
		return f, errBadMagic
	}
	var n int
	if f.Metaindex, n, err = decodeBlockHandle(p); err != nil {
		return f, err
	}
	if f.Index, _, err = decodeBlockHandle(p[n:]); err != nil {
		return f, err
	}
	return f, nil
}

// --------------------------------------------------------------------

// Compression is the compression codec
type Compression byte

func (c Compression) isValid() bool {
	return c >= SnappyCompression && c <= unknownCompression
}

// Supported compression codecs
const (
	SnappyCompression Compression = iota
	NoCompression
	unknownCompression
)
