package compress

import (
	"compress/flate"
	"io"
)

func newFlateCompressor() (*writerCompressor, error) {
	return newWriterCompressor(ZIP, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.DefaultCompression)
	})
}

func newFlateDecompressor() *readerDecompressor {
	return newReaderDecompressor(ZIP, func(r io.Reader) (io.Reader, error) {
		return flate.NewReader(r), nil
	})
}
