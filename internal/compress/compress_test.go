package compress

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func drain(t *testing.T, c Compressor) []byte {
	t.Helper()
	var out bytes.Buffer
	buf := make([]byte, 4096)
	for {
		n, err := c.Pull(buf)
		out.Write(buf[:n])
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Pull: %v", err)
		}
		if n == 0 {
			break
		}
	}
	return out.Bytes()
}

func TestCompressor_RoundTrip(t *testing.T) {
	algos := []Algorithm{None, ZIP, BZIP2, LZMA, XZ, LZ4, ZSTD}
	plaintext := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog. "), 200)

	for _, algo := range algos {
		t.Run(string(algo), func(t *testing.T) {
			enc, err := NewCompressor(algo)
			if err != nil {
				t.Fatalf("NewCompressor: %v", err)
			}
			if _, err := enc.Push(plaintext); err != nil {
				t.Fatalf("Push: %v", err)
			}
			if err := enc.Finish(); err != nil {
				t.Fatalf("Finish: %v", err)
			}
			compressed := drain(t, enc)

			dec, err := NewDecompressor(algo)
			if err != nil {
				t.Fatalf("NewDecompressor: %v", err)
			}
			if _, err := dec.Push(compressed); err != nil {
				t.Fatalf("Push: %v", err)
			}
			if err := dec.Finish(); err != nil {
				t.Fatalf("Finish: %v", err)
			}
			got := drain(t, dec)
			if !bytes.Equal(got, plaintext) {
				t.Fatalf("round trip mismatch for %s: got %d bytes, want %d", algo, len(got), len(plaintext))
			}
		})
	}
}

func TestCompressor_Reset(t *testing.T) {
	c, err := NewCompressor(ZIP)
	if err != nil {
		t.Fatalf("NewCompressor: %v", err)
	}
	if _, err := c.Push([]byte("first payload")); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if err := c.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	_ = drain(t, c)

	c.Reset()
	if _, err := c.Push([]byte("second payload")); err != nil {
		t.Fatalf("Push after reset: %v", err)
	}
	if err := c.Finish(); err != nil {
		t.Fatalf("Finish after reset: %v", err)
	}
	out := drain(t, c)
	if len(out) == 0 {
		t.Fatalf("expected output after reset")
	}
}

func TestLZO_Unsupported(t *testing.T) {
	if _, err := NewCompressor(LZO); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("got %v, want ErrUnsupported", err)
	}
	if _, err := NewDecompressor(LZO); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("got %v, want ErrUnsupported", err)
	}
}

func TestUnknownAlgorithm_Unsupported(t *testing.T) {
	if _, err := NewCompressor(Algorithm("BOGUS")); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("got %v, want ErrUnsupported", err)
	}
}
