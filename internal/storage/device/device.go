// Package device implements storage.Backend for the cd://, dvd://, bd://
// and dev:// schemes: direct sequential I/O against a block device or
// raw device file (an optical burner, a tape drive). Unlike localfs these
// devices are written strictly sequentially and cannot be renamed or
// listed, matching spec §4.F's device capability row.
package device

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rtanaka/barchive/internal/storage"
)

// Backend is a storage.Backend over a single device file.
type Backend struct {
	path string
}

// New returns a Backend targeting the device file at path.
func New(path string) *Backend { return &Backend{path: path} }

func (b *Backend) Init(_ context.Context, spec storage.Specifier, _ map[string]string) (storage.Info, error) {
	if spec.Path != "" {
		b.path = spec.Path
	}
	return storage.Info{
		Capability: storage.Capability{
			RandomAccessRead:  false, // optical/tape media: forward-sequential only
			RandomAccessWrite: false,
			RenameAtomic:      false,
			DirectoryList:     false,
			TmpName:           false,
		},
		ServerID: "",
	}, nil
}

func (b *Backend) Exists(_ context.Context, _ string) (bool, error) {
	_, err := os.Stat(b.path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("device: stat %s: %w", b.path, storage.ErrIO)
}

type readHandle struct {
	f *os.File
}

func (r *readHandle) Read(p []byte) (int, error) { return r.f.Read(p) }
func (r *readHandle) Close() error                { return r.f.Close() }
func (r *readHandle) Size() (int64, error)        { return 0, storage.ErrNotSupported }

// Open ignores path and always reads the device file itself — a device
// backend addresses one physical medium, not a namespace of objects.
func (b *Backend) Open(_ context.Context, _ string) (storage.ReadHandle, error) {
	f, err := os.Open(b.path)
	if err != nil {
		return nil, fmt.Errorf("device: open %s: %w", b.path, storage.ErrIO)
	}
	return &readHandle{f: f}, nil
}

type writeHandle struct {
	f *os.File
}

func (w *writeHandle) Write(p []byte) (int, error) { return w.f.Write(p) }
func (w *writeHandle) Close() error                 { return w.f.Close() }

func (b *Backend) Create(_ context.Context, _ string, _ int64) (storage.WriteHandle, error) {
	f, err := os.OpenFile(b.path, os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("device: open %s for write: %w", b.path, storage.ErrIO)
	}
	return &writeHandle{f: f}, nil
}

func (b *Backend) Rename(_ context.Context, _, _ string) error {
	return fmt.Errorf("device: rename: %w", storage.ErrNotSupported)
}

func (b *Backend) Delete(_ context.Context, _ string) error {
	return fmt.Errorf("device: delete: %w", storage.ErrNotSupported)
}

func (b *Backend) OpenDirList(_ context.Context, _ string) (storage.DirLister, error) {
	return nil, fmt.Errorf("device: directory listing: %w", storage.ErrNotSupported)
}

// PreProcess/PostProcess are where a real device backend would invoke the
// eject/load/blank commands spec §4.F's hook macros describe for optical
// media; left as no-ops here since that step is driven by the configured
// hook command (storage.RunHook), not hardcoded per-medium logic.
func (b *Backend) PreProcess(_ context.Context, _ string, _ time.Time, _ bool) error  { return nil }
func (b *Backend) PostProcess(_ context.Context, _ string, _ time.Time, _ bool) error { return nil }

func (b *Backend) IsServerAllocationPending() bool { return false }

func (b *Backend) TmpName(path string) string { return path }

func (b *Backend) Close(_ context.Context) error { return nil }
