package entry

import (
	"bytes"
	"fmt"
	"io"

	"github.com/rtanaka/barchive/internal/compress"
	"github.com/rtanaka/barchive/internal/crypto"
)

// Transform configures the per-fragment chain a Writer applies and a
// Reader reverses: raw -> delta? -> byte-compress? -> encrypt?, exactly
// the order spec §4.C fixes ("delta then byte") composed with §4.B
// encryption as the outermost stage.
type Transform struct {
	Cipher    crypto.Cipher // nil or a NONE cipher disables encryption
	ByteAlgo  compress.Algorithm
	DeltaAlgo compress.DeltaAlgorithm

	// DeltaSourceRef is the name+size written into the DELT child (spec
	// §3 invariant 3); DeltaSourceData/DeltaSourceSize are the actual
	// bytes DeltaEncode reads against. Both must be set when
	// DeltaAlgo != compress.DeltaNone.
	DeltaSourceRef  DeltaSource
	DeltaSourceData io.ReaderAt
	DeltaSourceSize int64

	// FragmentSize is the target split size for WriteAll; 0 selects
	// DefaultFragmentSize (spec §4.D: "implementation-defined target,
	// e.g. 64-512 MiB").
	FragmentSize int
}

// DefaultFragmentSize is the fragment split target used when Transform
// does not specify one.
const DefaultFragmentSize = 64 << 20

func (t Transform) fragmentSize() int {
	if t.FragmentSize > 0 {
		return t.FragmentSize
	}
	return DefaultFragmentSize
}

func (t Transform) usesDelta() bool {
	return t.DeltaAlgo != "" && t.DeltaAlgo != compress.DeltaNone
}

func (t Transform) usesCipher() bool {
	return t.Cipher != nil && t.Cipher.Suite() != crypto.SuiteNone
}

// sealFragment runs the write-side pipeline over one fragment's plaintext,
// returning the bytes to store as a DATA/BLK chunk's trailing payload.
func sealFragment(t Transform, plaintext []byte) ([]byte, error) {
	data := plaintext
	if t.usesDelta() {
		var patch bytes.Buffer
		if err := compress.DeltaEncode(t.DeltaSourceData, t.DeltaSourceSize, bytes.NewReader(data), &patch); err != nil {
			return nil, fmt.Errorf("entry: delta encode: %w", err)
		}
		data = patch.Bytes()
	}
	if t.ByteAlgo != "" && t.ByteAlgo != compress.None {
		compressed, err := runCompressor(t.ByteAlgo, data)
		if err != nil {
			return nil, fmt.Errorf("entry: byte compress: %w", err)
		}
		data = compressed
	}
	if t.usesCipher() {
		sealed, err := t.Cipher.Seal(data)
		if err != nil {
			return nil, fmt.Errorf("entry: encrypt: %w", err)
		}
		data = sealed
	}
	return data, nil
}

// openFragment reverses sealFragment: decrypt, then byte-decompress, then
// delta-decode against the resolved delta source.
func openFragment(t Transform, sealed []byte) ([]byte, error) {
	data := sealed
	if t.usesCipher() {
		opened, err := t.Cipher.Open(data)
		if err != nil {
			return nil, fmt.Errorf("entry: decrypt: %w", err)
		}
		data = opened
	}
	if t.ByteAlgo != "" && t.ByteAlgo != compress.None {
		decompressed, err := runDecompressor(t.ByteAlgo, data)
		if err != nil {
			return nil, fmt.Errorf("entry: byte decompress: %w", err)
		}
		data = decompressed
	}
	if t.usesDelta() {
		var out bytes.Buffer
		if err := compress.DeltaDecode(t.DeltaSourceData, bytes.NewReader(data), &out); err != nil {
			return nil, fmt.Errorf("entry: delta decode: %w", err)
		}
		data = out.Bytes()
	}
	return data, nil
}

func runCompressor(algo compress.Algorithm, data []byte) ([]byte, error) {
	c, err := compress.NewCompressor(algo)
	if err != nil {
		return nil, err
	}
	return drainCompressor(c, data)
}

func runDecompressor(algo compress.Algorithm, data []byte) ([]byte, error) {
	c, err := compress.NewDecompressor(algo)
	if err != nil {
		return nil, err
	}
	return drainCompressor(c, data)
}

// drainCompressor pushes all of data through c and pulls every produced
// byte. Fragments are bounded (at most one FragmentSize chunk of plaintext
// or its compressed form resides in memory at a time), so a single
// push-then-drain call satisfies the streaming contract's memory bound
// without needing to interleave push/pull mid-fragment.
func drainCompressor(c compress.Compressor, data []byte) ([]byte, error) {
	if _, err := c.Push(data); err != nil {
		return nil, err
	}
	if err := c.Finish(); err != nil {
		return nil, err
	}
	var out bytes.Buffer
	buf := make([]byte, 32*1024)
	for {
		n, err := c.Pull(buf)
		if n > 0 {
			out.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if n == 0 {
			break
		}
	}
	return out.Bytes(), nil
}
