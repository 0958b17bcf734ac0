package compress

import (
	"io"

	"github.com/ulikunitz/xz"
	"github.com/ulikunitz/xz/lzma"
)

func newLZMACompressor() (*writerCompressor, error) {
	return newWriterCompressor(LZMA, func(w io.Writer) (io.WriteCloser, error) {
		return lzma.NewWriter(w)
	})
}

func newLZMADecompressor() *readerDecompressor {
	return newReaderDecompressor(LZMA, func(r io.Reader) (io.Reader, error) {
		return lzma.NewReader(r)
	})
}

func newXZCompressor() (*writerCompressor, error) {
	return newWriterCompressor(XZ, func(w io.Writer) (io.WriteCloser, error) {
		return xz.NewWriter(w)
	})
}

func newXZDecompressor() *readerDecompressor {
	return newReaderDecompressor(XZ, func(r io.Reader) (io.Reader, error) {
		return xz.NewReader(r)
	})
}
