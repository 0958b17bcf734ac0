package chunkio

import (
	"bytes"
	"io"
	"sync"
)

// bufferPool recycles the byte buffers used for buffered (forward-only)
// chunk writers, mirroring the teacher's crypto.BufferPool strategy of
// pooling fixed-purpose buffers instead of allocating per fragment.
var bufferPool = sync.Pool{
	New: func() interface{} { return new(bytes.Buffer) },
}

func getBuffer() *bytes.Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

func putBuffer(buf *bytes.Buffer) {
	if buf.Cap() > 4<<20 {
		return // don't hoard oversized buffers
	}
	bufferPool.Put(buf)
}

// Writer sequences chunks onto a backend sink. Two strategies are
// available, selected by whether the sink supports random-access writes
// (spec §4.A):
//
//   - seek-patch: write a zeroed header, stream the payload, then seek
//     back and patch in the real length.
//   - buffered length prediction: buffer the entire payload in memory so
//     the length is known before anything is written to the sink.
type Writer struct {
	sink     io.Writer
	seeker   io.WriteSeeker // non-nil iff the sink supports seek-patch
	parent   *Writer        // set for child writers of a buffered parent
	buf      *bytes.Buffer  // non-nil when this chunk itself is buffered
	id       ID
	headerAt int64 // seek-patch mode: offset of this chunk's header
}

// NewWriter wraps sink. If sink implements io.WriteSeeker it is used in
// seek-patch mode; otherwise every chunk is buffered in memory before being
// emitted, per spec §4.A's "both modes MUST be available" requirement.
func NewWriter(sink io.Writer) *Writer {
	w := &Writer{sink: sink}
	if ws, ok := sink.(io.WriteSeeker); ok {
		w.seeker = ws
	}
	return w
}

// Seekable reports which strategy this writer (or its root) uses.
func (w *Writer) Seekable() bool {
	if w.parent != nil {
		return w.parent.Seekable()
	}
	return w.seeker != nil
}

// WriteChunk writes a complete leaf chunk (header + payload) in one call.
func (w *Writer) WriteChunk(id ID, payload []byte) error {
	cw, err := w.BeginChunk(id)
	if err != nil {
		return err
	}
	if _, err := cw.Write(payload); err != nil {
		return err
	}
	return cw.End()
}

// BeginChunk starts a new chunk whose payload is written incrementally
// (including any nested child chunks) via the returned ChunkWriter.
func (w *Writer) BeginChunk(id ID) (*ChunkWriter, error) {
	if w.Seekable() {
		target := w.sink
		if w.buf != nil {
			target = w.buf
		}
		headerAt := int64(-1)
		if w.buf == nil {
			off, err := w.seeker.Seek(0, io.SeekCurrent)
			if err != nil {
				return nil, err
			}
			headerAt = off
		}
		var hdr [HeaderSize]byte
		putHeader(hdr[:], id, 0)
		if _, err := target.Write(hdr[:]); err != nil {
			return nil, err
		}
		child := &Writer{sink: w.sink, seeker: w.seeker, parent: w}
		return &ChunkWriter{w: child, id: id, headerAt: headerAt, target: target}, nil
	}

	// Buffered mode: this chunk's entire payload (header-less) accumulates
	// in a pooled buffer; the header is only known, and only written, once
	// End() is called.
	buf := getBuffer()
	child := &Writer{sink: w.sink, parent: w, buf: buf}
	return &ChunkWriter{w: child, id: id, buffered: true}, nil
}

// ChunkWriter is the open handle for a chunk whose payload is still being
// written.
type ChunkWriter struct {
	w        *Writer
	id       ID
	headerAt int64
	target   io.Writer // seek-patch mode: where raw bytes land immediately
	buffered bool
	written  uint64
}

// Writer returns a Writer scoped to this chunk's payload, for writing
// nested child chunks.
func (c *ChunkWriter) Writer() *Writer { return c.w }

// Write appends raw payload bytes directly (for leaf chunks with no
// children, e.g. DATA/BLK ).
func (c *ChunkWriter) Write(p []byte) (int, error) {
	c.written += uint64(len(p))
	if c.buffered {
		return c.w.buf.Write(p)
	}
	return c.target.Write(p)
}

// End closes the chunk, patching or emitting its length.
func (c *ChunkWriter) End() error {
	if c.buffered {
		defer putBuffer(c.w.buf)
		parent := c.w.parent
		var hdr [HeaderSize]byte
		putHeader(hdr[:], c.id, uint64(c.w.buf.Len()))
		target := io.Writer(parent.sink)
		if parent.buf != nil {
			target = parent.buf
		}
		if _, err := target.Write(hdr[:]); err != nil {
			return err
		}
		_, err := target.Write(c.w.buf.Bytes())
		return err
	}

	seeker := c.w.seeker
	end, err := seeker.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	length := uint64(end - c.headerAt - HeaderSize)
	var hdr [HeaderSize]byte
	putHeader(hdr[:], c.id, length)
	if _, err := seeker.Seek(c.headerAt, io.SeekStart); err != nil {
		return err
	}
	if _, err := seeker.Write(hdr[:]); err != nil {
		return err
	}
	_, err = seeker.Seek(end, io.SeekStart)
	return err
}

// Abort discards a partially written chunk. On a seekable sink this
// truncates back to the chunk's header offset (spec §4.D: the partially
// written entry root MUST be truncated). On a buffered sink it simply
// releases the buffer; the caller is responsible for marking the archive
// invalid, since a forward-only sink cannot be truncated.
func (c *ChunkWriter) Abort() error {
	if c.buffered {
		putBuffer(c.w.buf)
		return nil
	}
	type truncater interface {
		Truncate(size int64) error
	}
	if t, ok := c.w.seeker.(truncater); ok {
		if err := t.Truncate(c.headerAt); err != nil {
			return err
		}
	}
	_, err := c.w.seeker.Seek(c.headerAt, io.SeekStart)
	return err
}
