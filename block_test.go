package sstable_test

import (
	"encoding/binary"
	"fmt"

	"github.com/bsm/sstable"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("BlockBuilder", func() {
	var subject *sstable.BlockBuilder

	BeforeEach(func() {
		subject = sstable.NewBlockBuilder(sstable.Bytewise, 2)
	})

	It("should prevent out-of-order adds", func() {
		Expect(subject.Add([]byte("b"), []byte("v"))).To(Succeed())
		Expect(subject.Add([]byte("a"), []byte("v"))).To(MatchError(`sstable: attempted an out-of-order append, "a" must be > "b"`))
		Expect(subject.Add([]byte("b"), []byte("v"))).To(MatchError(`sstable: attempted an out-of-order append, "b" must be > "b"`))
		Expect(subject.Add([]byte("c"), []byte("v"))).To(Succeed())
	})

	It("should prevent adds after finish", func() {
		Expect(subject.Add([]byte("a"), []byte("v"))).To(Succeed())
		Expect(subject.Finish()).NotTo(BeEmpty())
		Expect(subject.Add([]byte("b"), []byte("v"))).To(MatchError(`sstable: block builder is finished`))

		subject.Reset()
		Expect(subject.Add([]byte("b"), []byte("v"))).To(Succeed())
	})

	It("should encode entries with restart points", func() {
		Expect(subject.Add([]byte("A"), []byte("x"))).To(Succeed())
		Expect(subject.Add([]byte("B"), []byte("y"))).To(Succeed())
		Expect(subject.Add([]byte("C"), []byte("z"))).To(Succeed())

		Expect(subject.Finish()).To(Equal([]byte{
			0, 0, 0, 0, 1, 0, 0, 0, 1, 0, 0, 0, 'A', 'x',
			0, 0, 0, 0, 1, 0, 0, 0, 1, 0, 0, 0, 'B', 'y',
			0, 0, 0, 0, 1, 0, 0, 0, 1, 0, 0, 0, 'C', 'z',
			0, 0, 0, 0, // restart[0]
			28, 0, 0, 0, // restart[1], at entry C
			2, 0, 0, 0, // restart count
		}))
	})

	It("should prefix-compress keys against their predecessor", func() {
		subject = sstable.NewBlockBuilder(sstable.Bytewise, 16)
		Expect(subject.Add([]byte("app"), []byte("1"))).To(Succeed())
		Expect(subject.Add([]byte("apple"), []byte("2"))).To(Succeed())
		Expect(subject.Add([]byte("apply"), []byte("3"))).To(Succeed())

		// the first entry is 16 bytes, the second starts at offset 16
		block := subject.Finish()
		Expect(binary.LittleEndian.Uint32(block[16:])).To(Equal(uint32(3)), "apple shares 3 bytes with app")
		Expect(binary.LittleEndian.Uint32(block[20:])).To(Equal(uint32(2)), "apple differs in 2 bytes")
	})

	It("should record ceil(count/interval) restart points", func() {
		subject = sstable.NewBlockBuilder(sstable.Bytewise, 4)
		for i := 0; i < 10; i++ {
			Expect(subject.Add(numKey(i), []byte("v"))).To(Succeed())
		}

		block := subject.Finish()
		numRestarts := int(binary.LittleEndian.Uint32(block[len(block)-4:]))
		Expect(numRestarts).To(Equal(3))

		// every restart entry must store its key in full
		for i := 0; i < numRestarts; i++ {
			offset := binary.LittleEndian.Uint32(block[len(block)-4-(numRestarts-i)*4:])
			Expect(binary.LittleEndian.Uint32(block[offset:])).To(Equal(uint32(0)), "restart %d", i)
		}
	})

	It("should estimate sizes", func() {
		Expect(subject.SizeEstimate()).To(Equal(8))
		Expect(subject.Add([]byte("A"), []byte("x"))).To(Succeed())
		Expect(subject.SizeEstimate()).To(Equal(22))
		Expect(subject.Finish()).To(HaveLen(22))
	})
})

// --------------------------------------------------------------------

var _ = Describe("Block", func() {
	const numEntries = 100

	var subject *sstable.Block
	var iter *sstable.BlockIterator

	// seeds keys key-00000000, key-00000004, ... key-00000396
	BeforeEach(func() {
		builder := sstable.NewBlockBuilder(sstable.Bytewise, 4)
		for i := 0; i < numEntries; i++ {
			Expect(builder.Add(numKey(i*4), []byte(fmt.Sprintf("val-%08d", i*4)))).To(Succeed())
		}

		var err error
		subject, err = sstable.NewBlock(builder.Finish())
		Expect(err).NotTo(HaveOccurred())
		iter = subject.Iterator(sstable.Bytewise)
	})

	It("should reject blocks with impossible restart counts", func() {
		builder := sstable.NewBlockBuilder(sstable.Bytewise, 4)
		Expect(builder.Add([]byte("a"), []byte("v"))).To(Succeed())

		block := builder.Finish()
		binary.LittleEndian.PutUint32(block[len(block)-4:], uint32(len(block)))
		_, err := sstable.NewBlock(block)
		Expect(err).To(MatchError(ContainSubstring("corrupted block")))

		_, err = sstable.NewBlock([]byte{1})
		Expect(err).To(MatchError(ContainSubstring("corrupted block")))
	})

	It("should report corruption on inconsistent shared lengths", func() {
		block := []byte{
			9, 0, 0, 0, 1, 0, 0, 0, 1, 0, 0, 0, 'A', 'x', // shared=9 with no previous key
			0, 0, 0, 0,
			1, 0, 0, 0,
		}
		b, err := sstable.NewBlock(block)
		Expect(err).NotTo(HaveOccurred())

		it := b.Iterator(sstable.Bytewise)
		it.First()
		Expect(it.Valid()).To(BeFalse())
		Expect(it.Err()).To(MatchError(ContainSubstring("shared length exceeds previous key")))

		// the iterator stays invalid
		it.Next()
		Expect(it.Valid()).To(BeFalse())
	})

	It("should iterate forward", func() {
		n := 0
		for iter.First(); iter.Valid(); iter.Next() {
			Expect(iter.Key()).To(Equal(numKey(n*4)), "entry %d", n)
			Expect(string(iter.Value())).To(HaveSuffix(fmt.Sprintf("%08d", n*4)))
			n++
		}
		Expect(n).To(Equal(numEntries))
		Expect(iter.Err()).NotTo(HaveOccurred())
	})

	It("should iterate backward", func() {
		n := numEntries
		for iter.Last(); iter.Valid(); iter.Prev() {
			n--
			Expect(iter.Key()).To(Equal(numKey(n*4)), "entry %d", n)
		}
		Expect(n).To(Equal(0))
		Expect(iter.Err()).NotTo(HaveOccurred())
	})

	It("should seek", func() {
		iter.Seek(numKey(160))
		Expect(iter.Valid()).To(BeTrue())
		Expect(iter.Key()).To(Equal(numKey(160)))

		// between stored keys: next greater wins
		iter.Seek(numKey(161))
		Expect(iter.Valid()).To(BeTrue())
		Expect(iter.Key()).To(Equal(numKey(164)))

		// before the first key
		iter.Seek([]byte("a"))
		Expect(iter.Valid()).To(BeTrue())
		Expect(iter.Key()).To(Equal(numKey(0)))

		// past the last key
		iter.Seek(numKey(397))
		Expect(iter.Valid()).To(BeFalse())
		Expect(iter.Err()).NotTo(HaveOccurred())
	})

	It("should seek with the cursor position as a hint", func() {
		fresh := subject.Iterator(sstable.Bytewise)

		// sequential seeks on a reused iterator must match seeks
		// on a fresh iterator from scratch
		for i := 0; i < numEntries*4+4; i++ {
			iter.Seek(numKey(i))
			fresh2 := subject.Iterator(sstable.Bytewise)
			fresh2.Seek(numKey(i))

			Expect(iter.Valid()).To(Equal(fresh2.Valid()), "for %d", i)
			if iter.Valid() {
				Expect(iter.Key()).To(Equal(fresh2.Key()), "for %d", i)
			}
		}

		// backward seeks too
		iter.Seek(numKey(396))
		iter.Seek(numKey(4))
		fresh.Seek(numKey(4))
		Expect(iter.Key()).To(Equal(fresh.Key()))
	})

	It("should alternate between directions", func() {
		iter.Seek(numKey(200))
		Expect(iter.Key()).To(Equal(numKey(200)))

		iter.Prev()
		Expect(iter.Key()).To(Equal(numKey(196)))

		iter.Next()
		Expect(iter.Key()).To(Equal(numKey(200)))

		iter.First()
		iter.Prev()
		Expect(iter.Valid()).To(BeFalse())
	})
})
