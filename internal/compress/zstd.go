package compress

import (
	"io"

	"github.com/klauspost/compress/zstd"
)

func newZstdCompressor() (*writerCompressor, error) {
	return newWriterCompressor(ZSTD, func(w io.Writer) (io.WriteCloser, error) {
		return zstd.NewWriter(w)
	})
}

func newZstdDecompressor() *readerDecompressor {
	return newReaderDecompressor(ZSTD, func(r io.Reader) (io.Reader, error) {
		return zstd.NewReader(r)
	})
}
