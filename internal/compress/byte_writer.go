package compress

import (
	"bytes"
	"fmt"
	"io"
)

// writerCompressor adapts an io.WriteCloser-based streaming compressor
// (flate, bzip2, lzma/xz, lz4, zstd all expose this shape) to the
// push/pull/finish/reset contract: Push writes raw bytes straight through
// to the wrapped writer, which synchronously emits whatever compressed
// bytes it already has into sink; Pull drains sink.
type writerCompressor struct {
	algo      Algorithm
	sink      *bytes.Buffer
	w         io.WriteCloser
	newWriter func(io.Writer) (io.WriteCloser, error)
	finished  bool
}

func newWriterCompressor(algo Algorithm, newWriter func(io.Writer) (io.WriteCloser, error)) (*writerCompressor, error) {
	sink := &bytes.Buffer{}
	w, err := newWriter(sink)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFailed, err)
	}
	return &writerCompressor{algo: algo, sink: sink, w: w, newWriter: newWriter}, nil
}

func (c *writerCompressor) Algorithm() Algorithm { return c.algo }

func (c *writerCompressor) Push(p []byte) (int, error) {
	if c.finished {
		return 0, fmt.Errorf("%w: push after finish", ErrFailed)
	}
	n, err := c.w.Write(p)
	if err != nil {
		return n, fmt.Errorf("%w: %v", ErrFailed, err)
	}
	return n, nil
}

func (c *writerCompressor) Pull(buf []byte) (int, error) {
	if c.sink.Len() == 0 {
		if c.finished {
			return 0, io.EOF
		}
		return 0, nil
	}
	return c.sink.Read(buf)
}

func (c *writerCompressor) Finish() error {
	if c.finished {
		return nil
	}
	c.finished = true
	if err := c.w.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrFailed, err)
	}
	return nil
}

func (c *writerCompressor) Reset() {
	c.sink.Reset()
	c.finished = false
	if w, err := c.newWriter(c.sink); err == nil {
		c.w = w
	}
}

// readerDecompressor adapts an io.Reader-based streaming decompressor
// (flate, bzip2, lzma/xz, lz4, zstd readers) to the push/pull contract.
// Compressed input accumulates in a buffer; decoding happens once, when
// Finish signals the input is complete, since these readers are built to
// consume a self-delimiting container rather than an arbitrarily
// interruptible byte stream. This is sufficient for the archive's use: a
// compressor instance lives exactly as long as one fragment.
type readerDecompressor struct {
	algo      Algorithm
	in        *bytes.Buffer
	out       *bytes.Buffer
	newReader func(io.Reader) (io.Reader, error)
	finished  bool
	decoded   bool
}

func newReaderDecompressor(algo Algorithm, newReader func(io.Reader) (io.Reader, error)) *readerDecompressor {
	return &readerDecompressor{algo: algo, in: &bytes.Buffer{}, newReader: newReader}
}

func (d *readerDecompressor) Algorithm() Algorithm { return d.algo }

func (d *readerDecompressor) Push(p []byte) (int, error) {
	if d.finished {
		return 0, fmt.Errorf("%w: push after finish", ErrFailed)
	}
	return d.in.Write(p)
}

func (d *readerDecompressor) Finish() error {
	d.finished = true
	return nil
}

func (d *readerDecompressor) Pull(buf []byte) (int, error) {
	if !d.finished {
		return 0, nil
	}
	if !d.decoded {
		r, err := d.newReader(bytes.NewReader(d.in.Bytes()))
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrFailed, err)
		}
		data, err := io.ReadAll(r)
		if closer, ok := r.(io.Closer); ok {
			closer.Close()
		}
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrFailed, err)
		}
		d.out = bytes.NewBuffer(data)
		d.decoded = true
	}
	if d.out.Len() == 0 {
		return 0, io.EOF
	}
	return d.out.Read(buf)
}

func (d *readerDecompressor) Reset() {
	d.in.Reset()
	d.out = nil
	d.finished = false
	d.decoded = false
}

type passthrough struct {
	algo     Algorithm
	buf      bytes.Buffer
	finished bool
}

func newPassthrough(algo Algorithm) *passthrough { return &passthrough{algo: algo} }

func (p *passthrough) Algorithm() Algorithm { return p.algo }
func (p *passthrough) Push(b []byte) (int, error) {
	return p.buf.Write(b)
}
func (p *passthrough) Pull(buf []byte) (int, error) {
	if p.buf.Len() == 0 {
		if p.finished {
			return 0, io.EOF
		}
		return 0, nil
	}
	return p.buf.Read(buf)
}
func (p *passthrough) Finish() error { p.finished = true; return nil }
func (p *passthrough) Reset()        { p.buf.Reset(); p.finished = false }
