// Package webdavbackend implements storage.Backend for the webdav:// and
// webdavs:// schemes using github.com/studio-b12/gowebdav.
package webdavbackend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/studio-b12/gowebdav"

	"github.com/rtanaka/barchive/internal/storage"
)

// Backend is a storage.Backend session against one WebDAV server.
type Backend struct {
	client   *gowebdav.Client
	serverID string
}

// New returns an unconnected Backend; call Init to establish the session.
func New() *Backend { return &Backend{} }

func (b *Backend) Init(_ context.Context, spec storage.Specifier, _ map[string]string) (storage.Info, error) {
	protocol := "http"
	if spec.Scheme == storage.SchemeWebDAVS {
		protocol = "https"
	}
	port := ""
	if spec.Port != 0 {
		port = fmt.Sprintf(":%d", spec.Port)
	}
	root := fmt.Sprintf("%s://%s%s", protocol, spec.Host, port)

	client := gowebdav.NewClient(root, spec.User, spec.Password)
	if err := client.Connect(); err != nil {
		return storage.Info{}, fmt.Errorf("webdavbackend: connect %s: %w", root, storage.ErrSessionFail)
	}

	b.client = client
	b.serverID = spec.ServerID()
	return storage.Info{
		Capability: storage.Capability{
			RandomAccessRead:  false, // gowebdav has no partial-GET streaming API
			RandomAccessWrite: false,
			RenameAtomic:      true,
			DirectoryList:     true,
			TmpName:           true,
		},
		ServerID: b.serverID,
	}, nil
}

func (b *Backend) Exists(_ context.Context, path string) (bool, error) {
	_, err := b.client.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("webdavbackend: stat %s: %w", path, storage.ErrIO)
}

type readHandle struct {
	rc   io.ReadCloser
	size int64
}

func (r *readHandle) Read(p []byte) (int, error) { return r.rc.Read(p) }
func (r *readHandle) Close() error                { return r.rc.Close() }
func (r *readHandle) Size() (int64, error)        { return r.size, nil }

func (b *Backend) Open(_ context.Context, path string) (storage.ReadHandle, error) {
	rc, err := b.client.ReadStream(path)
	if err != nil {
		return nil, fmt.Errorf("webdavbackend: read %s: %w", path, storage.ErrFileNotFound)
	}
	var size int64
	if fi, serr := b.client.Stat(path); serr == nil {
		size = fi.Size()
	}
	return &readHandle{rc: rc, size: size}, nil
}

// writeHandle buffers the whole object in memory, since gowebdav's PUT is
// a single all-at-once request; WriteStream takes an io.Reader but still
// issues one HTTP request only once the caller closes the handle.
type writeHandle struct {
	client *gowebdav.Client
	path   string
	buf    bytes.Buffer
}

func (w *writeHandle) Write(p []byte) (int, error) { return w.buf.Write(p) }
func (w *writeHandle) Close() error {
	if err := w.client.WriteStream(w.path, bytes.NewReader(w.buf.Bytes()), 0o644); err != nil {
		return fmt.Errorf("webdavbackend: write %s: %w", w.path, storage.ErrIO)
	}
	return nil
}

func (b *Backend) Create(_ context.Context, path string, _ int64) (storage.WriteHandle, error) {
	return &writeHandle{client: b.client, path: path}, nil
}

func (b *Backend) Rename(_ context.Context, from, to string) error {
	if err := b.client.Rename(from, to, true); err != nil {
		return fmt.Errorf("webdavbackend: rename %s -> %s: %w", from, to, storage.ErrIO)
	}
	return nil
}

func (b *Backend) Delete(_ context.Context, path string) error {
	if err := b.client.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("webdavbackend: delete %s: %w", path, storage.ErrFileNotFound)
		}
		return fmt.Errorf("webdavbackend: delete %s: %w", path, storage.ErrIO)
	}
	return nil
}

type dirLister struct {
	entries []os.FileInfo
	i       int
}

func (d *dirLister) Next() (storage.DirEntry, error) {
	if d.i >= len(d.entries) {
		return storage.DirEntry{}, io.EOF
	}
	fi := d.entries[d.i]
	d.i++
	return storage.DirEntry{Name: fi.Name(), Size: fi.Size(), ModTime: fi.ModTime(), IsDir: fi.IsDir()}, nil
}
func (d *dirLister) Close() error { return nil }

func (b *Backend) OpenDirList(_ context.Context, path string) (storage.DirLister, error) {
	entries, err := b.client.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("webdavbackend: readdir %s: %w", path, storage.ErrIO)
	}
	return &dirLister{entries: entries}, nil
}

func (b *Backend) PreProcess(_ context.Context, _ string, _ time.Time, _ bool) error  { return nil }
func (b *Backend) PostProcess(_ context.Context, _ string, _ time.Time, _ bool) error { return nil }

func (b *Backend) IsServerAllocationPending() bool { return false }

func (b *Backend) TmpName(path string) string { return path + ".part" }

func (b *Backend) Close(_ context.Context) error { return nil }
