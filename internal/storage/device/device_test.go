package device

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/rtanaka/barchive/internal/storage"
)

func TestBackend_InitReportsSequentialOnlyCapability(t *testing.T) {
	b := New(filepath.Join(t.TempDir(), "dev0"))
	info, err := b.Init(context.Background(), storage.Specifier{}, nil)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if info.Capability != (storage.Capability{}) {
		t.Fatalf("device backend should advertise no capabilities, got %+v", info.Capability)
	}
}

func TestBackend_WriteThenReadDeviceFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dev0")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("seed device file: %v", err)
	}
	b := New(path)
	ctx := context.Background()

	wh, err := b.Create(ctx, "ignored", 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := wh.Write([]byte("volume-1")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := wh.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	rh, err := b.Open(ctx, "ignored")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rh.Close()
	data, err := io.ReadAll(rh)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != "volume-1" {
		t.Fatalf("data = %q", data)
	}
}

func TestBackend_RenameDeleteDirListUnsupported(t *testing.T) {
	b := New(filepath.Join(t.TempDir(), "dev0"))
	ctx := context.Background()

	if err := b.Rename(ctx, "a", "b"); !errors.Is(err, storage.ErrNotSupported) {
		t.Fatalf("Rename err = %v, want ErrNotSupported", err)
	}
	if err := b.Delete(ctx, "a"); !errors.Is(err, storage.ErrNotSupported) {
		t.Fatalf("Delete err = %v, want ErrNotSupported", err)
	}
	if _, err := b.OpenDirList(ctx, "a"); !errors.Is(err, storage.ErrNotSupported) {
		t.Fatalf("OpenDirList err = %v, want ErrNotSupported", err)
	}
}

func TestBackend_TmpNameIsIdentity(t *testing.T) {
	b := New("/dev/null")
	if got := b.TmpName("anything"); got != "anything" {
		t.Fatalf("TmpName = %q, want unchanged", got)
	}
}
