package entry

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/rtanaka/barchive/internal/chunkio"
)

// Writer writes one archive entry: its root chunk, ENTR (and, for links,
// DEST/HNAM) children, and — for FILE/HLNK/IMAG — a sequence of DATA/BLK
// fragment children, per the state machine of spec §4.D:
// INIT -> HEADER_WRITTEN -> FRAGMENTS (loop) -> CLOSED, ABORTED on error.
type Writer struct {
	cw         *chunkio.ChunkWriter
	sub        *chunkio.Writer // scoped to this entry root's payload
	kind       Kind
	transform  Transform
	state      State
	nextOffset uint64
}

// BeginEntry opens a new entry root under parent and writes its ENTR
// child (spec §4.D steps 1-2). For KindLink, target is written as the
// DEST child. For KindHardLink, hardLinkNames are each written as an HNAM
// child. For FILE, HLNK and IMAG entries, transform.DeltaSourceRef is
// written as the DELT child iff transform's delta algorithm is not NONE.
func BeginEntry(parent *chunkio.Writer, kind Kind, attrs Attributes, target string, hardLinkNames []string, transform Transform) (*Writer, error) {
	cw, err := parent.BeginChunk(kind.chunkID())
	if err != nil {
		return nil, fmt.Errorf("entry: begin %s root: %w", kind, err)
	}
	sub := cw.Writer()

	entrPayload, err := encodeEntryAttrs(attrs)
	if err := writeChild(sub, chunkio.IDEntry, entrPayload, err); err != nil {
		cw.Abort()
		return nil, fmt.Errorf("entry: write ENTR: %w", err)
	}

	switch kind {
	case KindLink:
		destPayload, err := encodeDest(target)
		if err := writeChild(sub, chunkio.IDDest, destPayload, err); err != nil {
			cw.Abort()
			return nil, fmt.Errorf("entry: write DEST: %w", err)
		}
	case KindHardLink:
		for _, name := range hardLinkNames {
			namePayload, err := encodeHardName(name)
			if err := writeChild(sub, chunkio.IDHardName, namePayload, err); err != nil {
				cw.Abort()
				return nil, fmt.Errorf("entry: write HNAM: %w", err)
			}
		}
	}

	if dataBearing(kind) && transform.usesDelta() {
		deltaPayload, err := encodeDeltaSource(transform.DeltaSourceRef)
		if err := writeChild(sub, chunkio.IDDelta, deltaPayload, err); err != nil {
			cw.Abort()
			return nil, fmt.Errorf("entry: write DELT: %w", err)
		}
	}

	return &Writer{cw: cw, sub: sub, kind: kind, transform: transform, state: StateHeaderWritten}, nil
}

// WriteXAttr writes one extended-attribute child. Valid any time before
// Close, for any entry kind (spec §3 lists XATR as a common child chunk,
// not kind-restricted).
func (w *Writer) WriteXAttr(x XAttr) error {
	if w.state != StateHeaderWritten && w.state != StateFragments {
		return ErrWrongState
	}
	payload, err := encodeXAttr(x)
	if err := writeChild(w.sub, chunkio.IDXAttr, payload, err); err != nil {
		w.state = StateAborted
		return fmt.Errorf("entry: write XATR: %w", err)
	}
	return nil
}

// WriteFragment seals and writes one DATA fragment child at offset,
// sequentially (spec §4.D step 3). Valid only for FILE/HLNK entries; use
// WriteBlock for IMAG. Offsets must be non-decreasing across calls.
func (w *Writer) WriteFragment(offset uint64, plaintext []byte) error {
	if w.kind == KindImage {
		return ErrNotDataBearing
	}
	if !dataBearing(w.kind) {
		return ErrNotDataBearing
	}
	if w.state != StateHeaderWritten && w.state != StateFragments {
		return ErrWrongState
	}
	sealed, err := sealFragment(w.transform, plaintext)
	if err != nil {
		w.state = StateAborted
		return err
	}
	if err := w.writeSealedFragment(offset, uint64(len(plaintext)), sealed); err != nil {
		w.state = StateAborted
		return err
	}
	return nil
}

// WriteBlock writes one BLK child for an IMAG entry: a run of blockCount
// contiguous device blocks of blockSize bytes starting at firstBlock
// (spec §3 "BLK (image block run: block size, first block index, block
// count, compressed payload)").
func (w *Writer) WriteBlock(blockSize uint32, firstBlock uint64, blockCount uint64, plaintext []byte) error {
	if w.kind != KindImage {
		return ErrNotDataBearing
	}
	if w.state != StateHeaderWritten && w.state != StateFragments {
		return ErrWrongState
	}
	sealed, err := sealFragment(w.transform, plaintext)
	if err != nil {
		w.state = StateAborted
		return err
	}
	var hdr bytes.Buffer
	putUint32(&hdr, blockSize)
	putUint64(&hdr, firstBlock)
	putUint64(&hdr, blockCount)
	hdr.Write(sealed)
	if err := w.sub.WriteChunk(chunkio.IDBlock, hdr.Bytes()); err != nil {
		w.state = StateAborted
		return fmt.Errorf("entry: write BLK: %w", err)
	}
	w.state = StateFragments
	return nil
}

// writeSealedFragment emits one DATA child whose payload is
// offset(8) || declaredLength(8) || sealed, per spec §4.D step 3
// ("length_declared is the uncompressed plaintext length; compressed/
// ciphertext length is the chunk's payload size minus fixed header").
func (w *Writer) writeSealedFragment(offset, length uint64, sealed []byte) error {
	if offset < w.nextOffset {
		return ErrFragmentOrder
	}
	var hdr bytes.Buffer
	putUint64(&hdr, offset)
	putUint64(&hdr, length)
	hdr.Write(sealed)
	if err := w.sub.WriteChunk(chunkio.IDData, hdr.Bytes()); err != nil {
		return fmt.Errorf("entry: write DATA: %w", err)
	}
	w.nextOffset = offset + length
	w.state = StateFragments
	return nil
}

// WriteAll splits src into fragments of the configured size, sealing them
// concurrently (internal/entry's parallel.go, modeled on the teacher's
// chunked-encryption worker pool) while writing them to the archive in
// strict offset order. isAborted is consulted between fragments (spec §5
// "cancellation ... at fragment boundaries"); it may be nil.
func (w *Writer) WriteAll(ctx context.Context, src io.Reader, isAborted func() bool) error {
	if w.kind == KindImage {
		return ErrNotDataBearing
	}
	if !dataBearing(w.kind) {
		return ErrNotDataBearing
	}
	if w.state != StateHeaderWritten && w.state != StateFragments {
		return ErrWrongState
	}
	if err := writeFragments(ctx, w, src, isAborted); err != nil {
		w.state = StateAborted
		return err
	}
	return nil
}

// Close patches the entry root's length and transitions to CLOSED (spec
// §4.D step 5).
func (w *Writer) Close() error {
	if w.state == StateClosed {
		return nil
	}
	if w.state == StateAborted {
		return ErrWrongState
	}
	if err := w.cw.End(); err != nil {
		return fmt.Errorf("entry: close %s root: %w", w.kind, err)
	}
	w.state = StateClosed
	return nil
}

// Abort truncates the partially written entry root (seekable backends) or
// marks it discarded in memory (buffered backends, where the caller must
// separately invalidate the archive per spec §4.D).
func (w *Writer) Abort() error {
	if w.state == StateClosed {
		return ErrWrongState
	}
	w.state = StateAborted
	return w.cw.Abort()
}

// State reports the writer's current state-machine position.
func (w *Writer) State() State { return w.state }

// Kind reports the entry kind this writer was opened for.
func (w *Writer) Kind() Kind { return w.kind }
