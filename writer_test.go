package sstable_test

import (
	"bytes"
	"errors"

	"github.com/bsm/sstable"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Writer", func() {
	var buf *bytes.Buffer
	var subject *sstable.Writer
	var testdata = []byte("testdata")

	BeforeEach(func() {
		buf = new(bytes.Buffer)
		subject = sstable.NewWriter(buf, nil)
	})

	It("should write empty", func() {
		Expect(subject.Close()).To(Succeed())

		// empty metaindex and index blocks with trailers, plus footer
		Expect(buf.Len()).To(Equal(13 + 13 + 48))
		Expect(buf.String()[buf.Len()-8:]).To(Equal("\x53\x73\x54\x62\xd5\x27\x8e\xfb"))
	})

	It("should prevent out-of-order appends", func() {
		Expect(subject.Append([]byte("k20"), testdata)).To(Succeed())
		Expect(subject.Append([]byte("k19"), testdata)).To(MatchError(`sstable: attempted an out-of-order append, "k19" must be > "k20"`))
		Expect(subject.Append([]byte("k22"), testdata)).To(Succeed())
		Expect(subject.Append([]byte("k22"), testdata)).To(MatchError(`sstable: attempted an out-of-order append, "k22" must be > "k22"`))
		Expect(subject.Append([]byte("k23"), testdata)).To(Succeed())
	})

	It("should prevent use after close", func() {
		Expect(subject.Append([]byte("k1"), testdata)).To(Succeed())
		Expect(subject.Close()).To(Succeed())

		Expect(subject.Append([]byte("k2"), testdata)).To(MatchError(`sstable: is closed`))
		Expect(subject.Flush()).To(MatchError(`sstable: is closed`))
		Expect(subject.Close()).To(MatchError(`sstable: is closed`))
	})

	It("should expose counters and key bounds", func() {
		Expect(subject.EntriesCount()).To(Equal(uint64(0)))
		Expect(subject.FileSize()).To(Equal(uint64(0)))

		for i := 0; i < 10; i++ {
			Expect(subject.Append(numKey(i), testdata)).To(Succeed())
		}
		Expect(subject.EntriesCount()).To(Equal(uint64(10)))
		Expect(subject.Close()).To(Succeed())

		Expect(subject.FileSize()).To(Equal(uint64(buf.Len())))
		Expect(subject.FirstKey()).To(Equal(numKey(0)))
		Expect(subject.LastKey()).To(Equal(numKey(9)))
	})

	It("should keep the first write error sticky", func() {
		subject = sstable.NewWriter(&failWriter{}, &sstable.WriterOptions{BlockSize: 1})

		err := subject.Append([]byte("k1"), testdata)
		Expect(err).To(MatchError(`sstable: write failed: boom`))

		Expect(subject.Append([]byte("k2"), testdata)).To(MatchError(err))
		Expect(subject.Flush()).To(MatchError(err))
		Expect(subject.Close()).To(MatchError(err))
		Expect(subject.Err()).To(MatchError(err))
	})

	It("should write (non-compressable)", func() {
		Expect(seedTable(buf, 10000, &sstable.WriterOptions{Compression: sstable.NoCompression})).To(Succeed())
		plain := buf.Len()

		buf.Reset()
		Expect(seedTable(buf, 10000, &sstable.WriterOptions{Compression: sstable.SnappyCompression})).To(Succeed())

		// random values do not compress, only the index block shrinks
		Expect(buf.Len()).To(BeNumerically("~", plain, 16384))
		Expect(buf.String()[buf.Len()-8:]).To(Equal("\x53\x73\x54\x62\xd5\x27\x8e\xfb"))
	})

	It("should write (well-compressable)", func() {
		val := bytes.Repeat(testdata, 16)
		for i := 0; i < 10000; i++ {
			Expect(subject.Append(numKey(i), val)).To(Succeed())
		}
		Expect(subject.Close()).To(Succeed())

		plain := new(bytes.Buffer)
		w := sstable.NewWriter(plain, &sstable.WriterOptions{Compression: sstable.NoCompression})
		for i := 0; i < 10000; i++ {
			Expect(w.Append(numKey(i), val)).To(Succeed())
		}
		Expect(w.Close()).To(Succeed())

		Expect(buf.Len()).To(BeNumerically("<", plain.Len()/4))
	})
})

// --------------------------------------------------------------------

type failWriter struct{}

func (*failWriter) Write(p []byte) (int, error) { return 0, errors.New("boom") }
