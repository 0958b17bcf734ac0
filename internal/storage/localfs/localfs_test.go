package localfs

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/rtanaka/barchive/internal/storage"
)

func TestBackend_CreateWriteOpenReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	b := New(t.TempDir())

	wh, err := b.Create(ctx, "archives/home.bar", 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := wh.Write([]byte("hello, world!")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := wh.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	ok, err := b.Exists(ctx, "archives/home.bar")
	if err != nil || !ok {
		t.Fatalf("Exists: ok=%v err=%v", ok, err)
	}

	rh, err := b.Open(ctx, "archives/home.bar")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rh.Close()
	data, err := io.ReadAll(rh)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != "hello, world!" {
		t.Fatalf("data = %q", data)
	}
	size, err := rh.Size()
	if err != nil || size != int64(len(data)) {
		t.Fatalf("Size() = %d, %v", size, err)
	}
}

func TestBackend_OpenMissingFileIsErrFileNotFound(t *testing.T) {
	b := New(t.TempDir())
	_, err := b.Open(context.Background(), "nope.bar")
	if !errors.Is(err, storage.ErrFileNotFound) {
		t.Fatalf("err = %v, want ErrFileNotFound", err)
	}
}

func TestBackend_RenameIsAtomicAndCreatesParents(t *testing.T) {
	ctx := context.Background()
	b := New(t.TempDir())

	wh, _ := b.Create(ctx, "home.bar.part", 0)
	wh.Write([]byte("data"))
	wh.Close()

	if err := b.Rename(ctx, "home.bar.part", "done/home.bar"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if ok, _ := b.Exists(ctx, "done/home.bar"); !ok {
		t.Fatal("renamed file should exist at destination")
	}
	if ok, _ := b.Exists(ctx, "home.bar.part"); ok {
		t.Fatal("source should no longer exist after rename")
	}
}

func TestBackend_DeleteMissingFileIsErrFileNotFound(t *testing.T) {
	b := New(t.TempDir())
	err := b.Delete(context.Background(), "nope.bar")
	if !errors.Is(err, storage.ErrFileNotFound) {
		t.Fatalf("err = %v, want ErrFileNotFound", err)
	}
}

func TestBackend_OpenDirListEnumeratesEntries(t *testing.T) {
	ctx := context.Background()
	b := New(t.TempDir())

	for _, name := range []string{"a.bar", "b.bar"} {
		wh, _ := b.Create(ctx, filepath.Join("archives", name), 0)
		wh.Write([]byte("x"))
		wh.Close()
	}

	lister, err := b.OpenDirList(ctx, "archives")
	if err != nil {
		t.Fatalf("OpenDirList: %v", err)
	}
	defer lister.Close()

	seen := map[string]bool{}
	for {
		e, err := lister.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		seen[e.Name] = true
	}
	if !seen["a.bar"] || !seen["b.bar"] {
		t.Fatalf("seen = %v", seen)
	}
}

func TestBackend_InitReportsFullCapability(t *testing.T) {
	b := New(t.TempDir())
	info, err := b.Init(context.Background(), storage.Specifier{}, nil)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	want := storage.Capability{
		RandomAccessRead: true, RandomAccessWrite: true,
		RenameAtomic: true, DirectoryList: true, TmpName: true,
	}
	if info.Capability != want {
		t.Fatalf("Capability = %+v, want %+v", info.Capability, want)
	}
}

func TestBackend_TmpName(t *testing.T) {
	b := New(t.TempDir())
	if got := b.TmpName("archives/home.bar"); got != "archives/home.bar.part" {
		t.Fatalf("TmpName = %q", got)
	}
}
