package compress

import (
	"io"

	"github.com/dsnet/compress/bzip2"
)

// dsnet/compress/bzip2 is the standard pure-Go bzip2 *writer* used here:
// the standard library's compress/bzip2 is decode-only.
func newBzip2Compressor() (*writerCompressor, error) {
	return newWriterCompressor(BZIP2, func(w io.Writer) (io.WriteCloser, error) {
		return bzip2.NewWriter(w, nil)
	})
}

func newBzip2Decompressor() *readerDecompressor {
	return newReaderDecompressor(BZIP2, func(r io.Reader) (io.Reader, error) {
		return bzip2.NewReader(r, nil)
	})
}
