package chunkio

import (
	"fmt"
	"io"
)

// Reader decodes a flat sequence of chunks from a byte stream. It is
// restartable at chunk boundaries only: after ReadHeader, the caller must
// either fully consume the payload (ReadPayload/Sub) or call Skip before
// reading the next header.
type Reader struct {
	r         io.Reader
	remaining int64 // bytes left in the current chunk's payload, -1 if none open
	budget    int64 // bytes left in this reader's own scope, -1 if unbounded (top level)
}

// NewReader wraps r for chunk-at-a-time decoding of a top-level, unbounded
// chunk stream.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r, remaining: -1, budget: -1}
}

// ReadHeader reads the next chunk's id and length and opens its payload
// for reading via ReadPayload/Skip/Sub. At the end of a bounded (Sub)
// reader's scope it returns io.EOF, the same signal NewReader's top-level
// stream gives at true end of input — this is how a caller walks a
// parent's children without knowing their count in advance.
func (r *Reader) ReadHeader() (Header, error) {
	if r.remaining > 0 {
		return Header{}, fmt.Errorf("chunkio: previous chunk payload (%d bytes) not consumed", r.remaining)
	}
	if r.budget == 0 {
		return Header{}, io.EOF
	}
	if r.budget > 0 && r.budget < HeaderSize {
		return Header{}, ErrChunkOverrun
	}
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r.r, hdr[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return Header{}, fmt.Errorf("%w: %v", ErrChunkTruncated, err)
		}
		return Header{}, err // plain io.EOF: clean end of stream
	}
	h := parseHeader(hdr[:])
	if r.budget > 0 {
		if int64(HeaderSize)+int64(h.Length) > r.budget {
			return Header{}, ErrChunkOverrun
		}
		r.budget -= int64(HeaderSize) + int64(h.Length)
	}
	r.remaining = int64(h.Length)
	return h, nil
}

// ReadPayload reads exactly n bytes of the current chunk's payload. n must
// not exceed the bytes remaining in the chunk.
func (r *Reader) ReadPayload(n int) ([]byte, error) {
	if int64(n) > r.remaining {
		return nil, ErrChunkOverrun
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChunkTruncated, err)
	}
	r.remaining -= int64(n)
	return buf, nil
}

// Remaining reports how many payload bytes of the current (already
// header-read) chunk are left.
func (r *Reader) Remaining() int64 { return r.remaining }

// Sub hands off decoding of the current chunk's payload (an ordered
// sequence of child chunks, per spec §3) to a new Reader bound to the same
// underlying stream and budgeted to exactly that payload's length. The
// parent Reader must not be used again until the returned child Reader has
// exhausted its budget; ownership of the stream position is transferred,
// not copied.
func (r *Reader) Sub() *Reader {
	child := &Reader{r: r.r, remaining: -1, budget: r.remaining}
	r.remaining = 0
	return child
}

// Skip advances exactly Remaining() bytes without interpreting the
// payload, the mechanism by which forward compatibility with unknown
// chunk ids is maintained (spec §4.A).
func (r *Reader) Skip() error {
	if r.remaining <= 0 {
		r.remaining = -1
		return nil
	}
	n, err := io.CopyN(io.Discard, r.r, r.remaining)
	r.remaining -= n
	if err != nil {
		return fmt.Errorf("%w: %v", ErrChunkTruncated, err)
	}
	r.remaining = -1
	return nil
}

// SeekToEnd advances past every remaining chunk in this reader's scope
// (the whole stream for a top-level reader, or the rest of a parent's
// children for a Sub reader).
func (r *Reader) SeekToEnd() error {
	for {
		if _, err := r.ReadHeader(); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if err := r.Skip(); err != nil {
			return err
		}
	}
}

// LimitedPayloadReader exposes the remaining bytes of the current chunk's
// payload as an io.Reader, for streaming large fragment payloads (DATA/BLK
// chunks) without buffering them whole.
func (r *Reader) LimitedPayloadReader() io.Reader {
	return &payloadReader{r: r}
}

type payloadReader struct{ r *Reader }

func (p *payloadReader) Read(buf []byte) (int, error) {
	if p.r.remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(buf)) > p.r.remaining {
		buf = buf[:p.r.remaining]
	}
	n, err := p.r.r.Read(buf)
	p.r.remaining -= int64(n)
	return n, err
}
