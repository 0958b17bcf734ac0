// Package localfs implements storage.Backend for the file:// scheme: plain
// local-filesystem I/O, grounded on spec §4.F's reference backend — every
// capability is available since the local filesystem supports random access
// reads and writes, atomic rename and directory listing natively.
package localfs

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rtanaka/barchive/internal/storage"
)

// Backend is a storage.Backend rooted at a base directory. All paths
// passed to its methods are relative to that root.
type Backend struct {
	root string
}

// New returns a Backend rooted at root. root need not exist yet; Init
// creates it, and Create creates any missing parent directories.
func New(root string) *Backend {
	return &Backend{root: root}
}

func (b *Backend) resolve(path string) string {
	return filepath.Join(b.root, filepath.Clean("/"+path))
}

func (b *Backend) Init(_ context.Context, spec storage.Specifier, _ map[string]string) (storage.Info, error) {
	if spec.Path != "" {
		b.root = spec.Path
	}
	if err := os.MkdirAll(b.root, 0o755); err != nil {
		return storage.Info{}, fmt.Errorf("localfs: init %s: %w", b.root, storage.ErrIO)
	}
	return storage.Info{
		Capability: storage.Capability{
			RandomAccessRead:  true,
			RandomAccessWrite: true,
			RenameAtomic:      true,
			DirectoryList:     true,
			TmpName:           true,
		},
		ServerID: "", // local filesystem has no connection semaphore
	}, nil
}

func (b *Backend) Exists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(b.resolve(path))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("localfs: stat %s: %w", path, storage.ErrIO)
}

type readHandle struct {
	f *os.File
}

func (r *readHandle) Read(p []byte) (int, error) { return r.f.Read(p) }
func (r *readHandle) Close() error                { return r.f.Close() }
func (r *readHandle) Seek(offset int64, whence int) (int64, error) {
	return r.f.Seek(offset, whence)
}
func (r *readHandle) Size() (int64, error) {
	fi, err := r.f.Stat()
	if err != nil {
		return 0, fmt.Errorf("localfs: stat: %w", storage.ErrIO)
	}
	return fi.Size(), nil
}

func (b *Backend) Open(_ context.Context, path string) (storage.ReadHandle, error) {
	f, err := os.Open(b.resolve(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("localfs: open %s: %w", path, storage.ErrFileNotFound)
		}
		return nil, fmt.Errorf("localfs: open %s: %w", path, storage.ErrIO)
	}
	return &readHandle{f: f}, nil
}

type writeHandle struct {
	f *os.File
}

func (w *writeHandle) Write(p []byte) (int, error) { return w.f.Write(p) }
func (w *writeHandle) Close() error                 { return w.f.Close() }
func (w *writeHandle) Seek(offset int64, whence int) (int64, error) {
	return w.f.Seek(offset, whence)
}
func (w *writeHandle) Truncate(size int64) error { return w.f.Truncate(size) }

func (b *Backend) Create(_ context.Context, path string, _ int64) (storage.WriteHandle, error) {
	full := b.resolve(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, fmt.Errorf("localfs: mkdir for %s: %w", path, storage.ErrIO)
	}
	f, err := os.OpenFile(full, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("localfs: create %s: %w", path, storage.ErrIO)
	}
	return &writeHandle{f: f}, nil
}

func (b *Backend) Rename(_ context.Context, from, to string) error {
	toFull := b.resolve(to)
	if err := os.MkdirAll(filepath.Dir(toFull), 0o755); err != nil {
		return fmt.Errorf("localfs: mkdir for %s: %w", to, storage.ErrIO)
	}
	if err := os.Rename(b.resolve(from), toFull); err != nil {
		return fmt.Errorf("localfs: rename %s -> %s: %w", from, to, storage.ErrIO)
	}
	return nil
}

func (b *Backend) Delete(_ context.Context, path string) error {
	if err := os.Remove(b.resolve(path)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("localfs: delete %s: %w", path, storage.ErrFileNotFound)
		}
		return fmt.Errorf("localfs: delete %s: %w", path, storage.ErrIO)
	}
	return nil
}

type dirLister struct {
	entries []fs.DirEntry
	i       int
}

func (d *dirLister) Next() (storage.DirEntry, error) {
	if d.i >= len(d.entries) {
		return storage.DirEntry{}, io.EOF
	}
	e := d.entries[d.i]
	d.i++
	info, err := e.Info()
	if err != nil {
		return storage.DirEntry{}, fmt.Errorf("localfs: stat dir entry %s: %w", e.Name(), storage.ErrIO)
	}
	return storage.DirEntry{
		Name:    e.Name(),
		Size:    info.Size(),
		ModTime: info.ModTime(),
		IsDir:   e.IsDir(),
	}, nil
}

func (d *dirLister) Close() error { return nil }

func (b *Backend) OpenDirList(_ context.Context, path string) (storage.DirLister, error) {
	entries, err := os.ReadDir(b.resolve(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("localfs: readdir %s: %w", path, storage.ErrFileNotFound)
		}
		return nil, fmt.Errorf("localfs: readdir %s: %w", path, storage.ErrIO)
	}
	return &dirLister{entries: entries}, nil
}

func (b *Backend) PreProcess(_ context.Context, _ string, _ time.Time, _ bool) error  { return nil }
func (b *Backend) PostProcess(_ context.Context, _ string, _ time.Time, _ bool) error { return nil }

func (b *Backend) IsServerAllocationPending() bool { return false }

func (b *Backend) TmpName(path string) string {
	return path + ".part"
}

func (b *Backend) Close(_ context.Context) error { return nil }
