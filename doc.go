/*
Package sstable implements an immutable, sorted, on-disk key/value
table format with arbitrary binary keys, prefix-compressed blocks and
a block index for logarithmic lookups.

# Data Structure Documentation

# Table

A table contains a series of data blocks followed by an optional
filter block, a metaindex block, an index block and a fixed-size
footer. Every block is followed by a 5-byte trailer holding a 1-byte
compression type indicator and a 4-byte CRC32-C checksum of the block
payload and type.

	Table layout:
	+---------+-------+---------+--------------+-----------------+-------------+--------+
	| block 1 |  ...  | block n | filter block | metaindex block | index block | footer |
	+---------+-------+---------+--------------+-----------------+-------------+--------+

	Footer:
	+-------------------------------+---------------------------+---------+------------------+
	| metaindex handle (2 uvarints) | index handle (2 uvarints) | padding | magic (8 bytes)  |
	+-------------------------------+---------------------------+---------+------------------+

The footer is exactly 48 bytes. A block handle is the (offset, size)
pair locating a block within the table; size excludes the trailer.

# Block

A block comprises a series of prefix-compressed entries, followed by
an array of restart offsets and the restart count. Entries at restart
offsets store their key in full (shared length 0), enabling binary
search across restarts without decompressing from the block start.

	Block layout:
	+---------+-------+---------+----------------------+-------+----------------------+---------------------------+
	| entry 1 |  ...  | entry n | restart[0] (4 bytes) |  ...  | restart[m] (4 bytes) | restart count (4 bytes)   |
	+---------+-------+---------+----------------------+-------+----------------------+---------------------------+

	Entry:
	+------------------+----------------------+-----------------------+----------------+-------+
	| shared (4 bytes) | non-shared (4 bytes) | value len (4 bytes)   | non-shared key | value |
	+------------------+----------------------+-----------------------+----------------+-------+

All fixed-width integers are little-endian. The shared length of an
entry is the length of the prefix it has in common with the key of
the immediately preceding entry.

# Index block

The index block is itself a block. Its keys are separator keys that
order >= the largest key of the data block they follow and < the
first key of the next data block; its values are encoded block
handles. The metaindex block maps meta block names (currently only
"filter.<policy>") to their handles.
*/
package sstable
