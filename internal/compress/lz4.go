package compress

import (
	"io"

	"github.com/pierrec/lz4/v4"
)

func newLZ4Compressor() *writerCompressor {
	c, _ := newWriterCompressor(LZ4, func(w io.Writer) (io.WriteCloser, error) {
		return lz4.NewWriter(w), nil
	})
	return c
}

func newLZ4Decompressor() *readerDecompressor {
	return newReaderDecompressor(LZ4, func(r io.Reader) (io.Reader, error) {
		return lz4.NewReader(r), nil
	})
}
