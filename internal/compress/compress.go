// Package compress implements the archive's byte and delta compressors: a
// small push/pull/finish/reset streaming contract that lets the entry
// pipeline interleave compression with encryption and chunk emission.
// The reader-based decompressors (readerDecompressor) hold a fragment's
// whole compressed input in memory until Finish before decoding it.
package compress

import (
	"errors"
	"fmt"
)

// Algorithm identifies a byte compressor.
type Algorithm string

const (
	None  Algorithm = "NONE"
	ZIP   Algorithm = "ZIP"
	BZIP2 Algorithm = "BZIP2"
	LZMA  Algorithm = "LZMA"
	XZ    Algorithm = "XZ"
	LZO   Algorithm = "LZO"
	LZ4   Algorithm = "LZ4"
	ZSTD  Algorithm = "ZSTD"
)

// DeltaAlgorithm identifies a delta (source-relative) compressor.
type DeltaAlgorithm string

const (
	DeltaNone    DeltaAlgorithm = "NONE"
	DeltaXDELTA  DeltaAlgorithm = "XDELTA"
)

// ErrUnsupported is returned for a recognized algorithm this build does not
// implement (COMPRESS_UNSUPPORTED).
var ErrUnsupported = errors.New("compress: unsupported algorithm")

// ErrFailed wraps an algorithm-internal failure (COMPRESS_ERROR).
var ErrFailed = errors.New("compress: internal error")

// Compressor is a state object compressing or decompressing bytes in a
// push/pull streaming fashion. Push may accept zero bytes; Pull may
// produce zero bytes while internal buffers fill, until Finish is called,
// at which point Pull drains everything and finally returns io.EOF.
type Compressor interface {
	Algorithm() Algorithm
	Push(p []byte) (consumed int, err error)
	Pull(buf []byte) (produced int, err error)
	Finish() error
	Reset()
}

// NewCompressor returns a forward (raw-to-compressed) Compressor for algo.
func NewCompressor(algo Algorithm) (Compressor, error) {
	switch algo {
	case None, "":
		return newPassthrough(algo), nil
	case ZIP:
		return newFlateCompressor()
	case BZIP2:
		return newBzip2Compressor()
	case LZMA:
		return newLZMACompressor()
	case XZ:
		return newXZCompressor()
	case LZ4:
		return newLZ4Compressor(), nil
	case ZSTD:
		return newZstdCompressor()
	case LZO:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, algo)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, algo)
	}
}

// NewDecompressor returns the inverse (compressed-to-raw) Compressor for algo.
func NewDecompressor(algo Algorithm) (Compressor, error) {
	switch algo {
	case None, "":
		return newPassthrough(algo), nil
	case ZIP:
		return newFlateDecompressor(), nil
	case BZIP2:
		return newBzip2Decompressor(), nil
	case LZMA:
		return newLZMADecompressor(), nil
	case XZ:
		return newXZDecompressor(), nil
	case LZ4:
		return newLZ4Decompressor(), nil
	case ZSTD:
		return newZstdDecompressor(), nil
	case LZO:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, algo)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, algo)
	}
}
