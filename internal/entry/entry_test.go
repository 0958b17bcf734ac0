package entry

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/rtanaka/barchive/internal/chunkio"
	"github.com/rtanaka/barchive/internal/compress"
	"github.com/rtanaka/barchive/internal/crypto"
)

func testAttrs(name string, size uint64) Attributes {
	return Attributes{
		Name:        name,
		Size:        size,
		ModTime:     time.Unix(1700000000, 0),
		UID:         1000,
		GID:         1000,
		Permissions: 0644,
	}
}

func roundTripEntry(t *testing.T, kind Kind, attrs Attributes, target string, hardLinkNames []string, transform Transform, write func(w *Writer) error) *Reader {
	t.Helper()
	buf := &bytes.Buffer{}
	chw := chunkio.NewWriter(buf)

	w, err := BeginEntry(chw, kind, attrs, target, hardLinkNames, transform)
	if err != nil {
		t.Fatalf("BeginEntry: %v", err)
	}
	if write != nil {
		if err := write(w); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if w.State() != StateClosed {
		t.Fatalf("state = %v, want CLOSED", w.State())
	}

	chr := chunkio.NewReader(buf)
	hdr, err := chr.ReadHeader()
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	gotKind, ok := KindFromChunkID(hdr.ID)
	if !ok || gotKind != kind {
		t.Fatalf("root id = %q, want %s", hdr.ID, kind)
	}
	sub := chr.Sub()
	r, err := OpenEntry(kind, sub, transform)
	if err != nil {
		t.Fatalf("OpenEntry: %v", err)
	}
	return r
}

func TestEntry_FileRoundTrip_SingleFragment(t *testing.T) {
	attrs := testAttrs("a.txt", 13)
	r := roundTripEntry(t, KindFile, attrs, "", nil, Transform{}, func(w *Writer) error {
		return w.WriteFragment(0, []byte("hello, world!"))
	})

	got := r.Attrs()
	if got.Name != attrs.Name || got.Size != attrs.Size || !got.ModTime.Equal(attrs.ModTime) ||
		got.UID != attrs.UID || got.GID != attrs.GID || got.Permissions != attrs.Permissions {
		t.Fatalf("attrs = %+v, want %+v", got, attrs)
	}
	frags, _, err := r.ReadAll(false)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(frags) != 1 {
		t.Fatalf("got %d fragments, want 1", len(frags))
	}
	if frags[0].Offset != 0 || string(frags[0].Data) != "hello, world!" {
		t.Fatalf("fragment = %+v", frags[0])
	}
}

func TestEntry_FileRoundTrip_EncryptedAndCompressed(t *testing.T) {
	cipher, err := crypto.NewCipher(crypto.SuiteAES256CBC, bytes.Repeat([]byte{0x07}, 32))
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	transform := Transform{Cipher: cipher, ByteAlgo: compress.ZSTD}
	plaintext := bytes.Repeat([]byte{0}, 1<<20) // 1 MiB of zeros

	attrs := testAttrs("zeros.bin", uint64(len(plaintext)))
	r := roundTripEntry(t, KindFile, attrs, "", nil, transform, func(w *Writer) error {
		return w.WriteFragment(0, plaintext)
	})

	_, whole, err := r.ReadAll(true)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(whole, plaintext) {
		t.Fatalf("round trip mismatch: got %d bytes, want %d", len(whole), len(plaintext))
	}
}

func TestEntry_WriteAll_MultipleFragments(t *testing.T) {
	transform := Transform{FragmentSize: 64 * 1024}
	plaintext := bytes.Repeat([]byte("0123456789abcdef"), 32*1024) // 512 KiB, 8 fragments of 64KiB

	attrs := testAttrs("big.bin", uint64(len(plaintext)))
	r := roundTripEntry(t, KindFile, attrs, "", nil, transform, func(w *Writer) error {
		return w.WriteAll(context.Background(), bytes.NewReader(plaintext), nil)
	})

	frags, whole, err := r.ReadAll(true)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(frags) != 8 {
		t.Fatalf("got %d fragments, want 8", len(frags))
	}
	for i, f := range frags {
		if f.Offset != uint64(i*64*1024) {
			t.Fatalf("fragment %d offset = %d, want %d", i, f.Offset, i*64*1024)
		}
	}
	if !bytes.Equal(whole, plaintext) {
		t.Fatalf("round trip mismatch: got %d bytes, want %d", len(whole), len(plaintext))
	}
}

func TestEntry_SparseFragments_AggregateZeroFills(t *testing.T) {
	attrs := testAttrs("sparse.bin", 20)
	r := roundTripEntry(t, KindFile, attrs, "", nil, Transform{}, func(w *Writer) error {
		if err := w.WriteFragment(0, []byte("AAAAA")); err != nil {
			return err
		}
		return w.WriteFragment(15, []byte("BBBBB"))
	})

	_, whole, err := r.ReadAll(true)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	want := append(append([]byte("AAAAA"), make([]byte, 10)...), []byte("BBBBB")...)
	if !bytes.Equal(whole, want) {
		t.Fatalf("got %q, want %q", whole, want)
	}
}

func TestEntry_LinkRoundTrip(t *testing.T) {
	attrs := testAttrs("link", 0)
	r := roundTripEntry(t, KindLink, attrs, "/etc/hosts", nil, Transform{}, nil)
	if r.Target() != "/etc/hosts" {
		t.Fatalf("target = %q, want /etc/hosts", r.Target())
	}
}

func TestEntry_HardLinkRoundTrip(t *testing.T) {
	attrs := testAttrs("first-name", 10)
	attrs.Inode = 42
	r := roundTripEntry(t, KindHardLink, attrs, "", []string{"second-name", "third-name"}, Transform{}, func(w *Writer) error {
		return w.WriteFragment(0, []byte("0123456789"))
	})
	if len(r.HardLinkNames()) != 2 || r.HardLinkNames()[0] != "second-name" {
		t.Fatalf("hard link names = %v", r.HardLinkNames())
	}
	frags, _, err := r.ReadAll(false)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(frags) != 1 || string(frags[0].Data) != "0123456789" {
		t.Fatalf("fragments = %+v", frags)
	}
}

func TestEntry_XAttrRoundTrip(t *testing.T) {
	attrs := testAttrs("x", 0)
	r := roundTripEntry(t, KindSpecial, attrs, "", nil, Transform{}, func(w *Writer) error {
		if err := w.WriteXAttr(XAttr{Name: "user.a", Value: []byte{1, 2, 3}}); err != nil {
			return err
		}
		return w.WriteXAttr(XAttr{Name: "user.b", Value: []byte("text")})
	})
	xattrs := r.XAttrs()
	if len(xattrs) != 2 {
		t.Fatalf("got %d xattrs, want 2", len(xattrs))
	}
	if xattrs[0].Name != "user.a" || !bytes.Equal(xattrs[0].Value, []byte{1, 2, 3}) {
		t.Fatalf("xattr[0] = %+v", xattrs[0])
	}
}

func TestEntry_DeltaSourceRoundTrip(t *testing.T) {
	source := bytes.Repeat([]byte("delta source content "), 4096)
	target := make([]byte, len(source))
	copy(target, source)
	copy(target[100:120], []byte("---CHANGED----------"))

	transform := Transform{
		DeltaAlgo:       compress.DeltaXDELTA,
		DeltaSourceRef:  DeltaSource{Name: "base.bin", Size: uint64(len(source))},
		DeltaSourceData: bytes.NewReader(source),
		DeltaSourceSize: int64(len(source)),
	}
	attrs := testAttrs("patched.bin", uint64(len(target)))
	r := roundTripEntry(t, KindFile, attrs, "", nil, transform, func(w *Writer) error {
		return w.WriteFragment(0, target)
	})

	src, ok := r.DeltaSource()
	if !ok || src.Name != "base.bin" {
		t.Fatalf("DeltaSource() = %+v, %v", src, ok)
	}
	_, whole, err := r.ReadAll(true)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(whole, target) {
		t.Fatalf("delta round trip mismatch")
	}
}

func TestEntry_ImageBlockRoundTrip(t *testing.T) {
	attrs := testAttrs("disk.img", 0)
	block := bytes.Repeat([]byte{0xAB}, 4096)
	r := roundTripEntry(t, KindImage, attrs, "", nil, Transform{}, func(w *Writer) error {
		return w.WriteBlock(4096, 2, 1, block)
	})
	frags, _, err := r.ReadAll(false)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(frags) != 1 {
		t.Fatalf("got %d fragments, want 1", len(frags))
	}
	f := frags[0]
	if f.BlockSize != 4096 || f.FirstBlock != 2 || f.BlockCount != 1 {
		t.Fatalf("block fragment = %+v", f)
	}
	if f.Offset != 2*4096 || !bytes.Equal(f.Data, block) {
		t.Fatalf("block data mismatch")
	}
}

func TestEntry_WriteFragment_WrongKindRejected(t *testing.T) {
	attrs := testAttrs("d", 0)
	buf := &bytes.Buffer{}
	chw := chunkio.NewWriter(buf)
	w, err := BeginEntry(chw, KindDir, attrs, "", nil, Transform{})
	if err != nil {
		t.Fatalf("BeginEntry: %v", err)
	}
	if err := w.WriteFragment(0, []byte("x")); err != ErrNotDataBearing {
		t.Fatalf("got %v, want ErrNotDataBearing", err)
	}
}

func TestEntry_Abort_TruncatesSeekableSink(t *testing.T) {
	sink := newTestSeekBuf()
	chw := chunkio.NewWriter(sink)
	w, err := BeginEntry(chw, KindFile, testAttrs("f", 4), "", nil, Transform{})
	if err != nil {
		t.Fatalf("BeginEntry: %v", err)
	}
	if err := w.WriteFragment(0, []byte("data")); err != nil {
		t.Fatalf("WriteFragment: %v", err)
	}
	if err := w.Abort(); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	if w.State() != StateAborted {
		t.Fatalf("state = %v, want ABORTED", w.State())
	}
	if sink.Len() != 0 {
		t.Fatalf("expected truncation to empty, got %d bytes", sink.Len())
	}
}

func TestEntry_FragmentOrderViolationRejected(t *testing.T) {
	buf := &bytes.Buffer{}
	chw := chunkio.NewWriter(buf)
	w, err := BeginEntry(chw, KindFile, testAttrs("f", 10), "", nil, Transform{})
	if err != nil {
		t.Fatalf("BeginEntry: %v", err)
	}
	if err := w.WriteFragment(5, []byte("world")); err != nil {
		t.Fatalf("WriteFragment: %v", err)
	}
	if err := w.WriteFragment(0, []byte("hello")); err != ErrFragmentOrder {
		t.Fatalf("got %v, want ErrFragmentOrder", err)
	}
}

// testSeekBuf is a minimal io.WriteSeeker+Truncate over an in-memory
// buffer, matching chunkio's own test helper, for exercising Abort's
// seek-patch truncation path.
type testSeekBuf struct {
	bytes.Buffer
	off int64
}

func newTestSeekBuf() *testSeekBuf { return &testSeekBuf{} }

func (s *testSeekBuf) Write(p []byte) (int, error) {
	data := s.Buffer.Bytes()
	if s.off < int64(len(data)) {
		n := copy(data[s.off:], p)
		s.off += int64(n)
		if n < len(p) {
			s.Buffer.Write(p[n:])
			s.off += int64(len(p) - n)
		}
		return len(p), nil
	}
	n, err := s.Buffer.Write(p)
	s.off += int64(n)
	return n, err
}

func (s *testSeekBuf) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case 0:
		s.off = offset
	case 1:
		s.off += offset
	case 2:
		s.off = int64(s.Buffer.Len()) + offset
	}
	return s.off, nil
}

func (s *testSeekBuf) Truncate(size int64) error {
	s.Buffer.Truncate(int(size))
	return nil
}
