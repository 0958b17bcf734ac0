// Package s3backend implements storage.Backend for an s3:// target,
// adapting the teacher's internal/s3.Client (PutObject/GetObject/
// DeleteObject/HeadObject/ListObjects over AWS SDK v2) into the archive
// engine's transport-agnostic façade. The bucket is the specifier's host
// component and the object key is its path, so `s3://mybucket/backups/
// home.bar` addresses bucket "mybucket", key "backups/home.bar".
package s3backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rtanaka/barchive/internal/config"
	"github.com/rtanaka/barchive/internal/s3"
	"github.com/rtanaka/barchive/internal/storage"
)

// Backend is a storage.Backend session against one S3 bucket.
type Backend struct {
	client s3.Client
	bucket string
}

// New returns an unconnected Backend; call Init to construct the
// underlying AWS client from the specifier's host (bucket) and the
// caller-supplied BackendConfig (region, credentials, endpoint).
func New() *Backend { return &Backend{} }

func (b *Backend) Init(_ context.Context, spec storage.Specifier, options map[string]string) (storage.Info, error) {
	cfg := &config.BackendConfig{
		Provider:  options["provider"],
		Region:    options["region"],
		Endpoint:  options["endpoint"],
		AccessKey: spec.User,
		SecretKey: spec.Password,
	}
	if cfg.Provider == "" {
		cfg.Provider = "aws"
	}

	client, err := s3.NewClient(cfg)
	if err != nil {
		return storage.Info{}, fmt.Errorf("s3backend: new client: %w", storage.ErrSessionFail)
	}

	b.client = client
	b.bucket = spec.Host
	return storage.Info{
		Capability: storage.Capability{
			RandomAccessRead:  false, // GetObject streams the whole body
			RandomAccessWrite: false, // PutObject takes the whole body up front
			RenameAtomic:      false, // S3 has no native rename; emulated as copy+delete
			DirectoryList:     true,  // via the prefix/delimiter listing convention
			TmpName:           true,
		},
		ServerID: "s3://" + b.bucket,
	}, nil
}

func (b *Backend) Exists(ctx context.Context, path string) (bool, error) {
	_, err := b.client.HeadObject(ctx, b.bucket, path)
	if err == nil {
		return true, nil
	}
	return false, nil
}

type readHandle struct {
	rc   io.ReadCloser
	size int64
}

func (r *readHandle) Read(p []byte) (int, error) { return r.rc.Read(p) }
func (r *readHandle) Close() error                { return r.rc.Close() }
func (r *readHandle) Size() (int64, error)        { return r.size, nil }

func (b *Backend) Open(ctx context.Context, path string) (storage.ReadHandle, error) {
	rc, meta, err := b.client.GetObject(ctx, b.bucket, path)
	if err != nil {
		return nil, fmt.Errorf("s3backend: get %s/%s: %w", b.bucket, path, storage.ErrFileNotFound)
	}
	var size int64
	if s, ok := meta["content-length"]; ok {
		fmt.Sscanf(s, "%d", &size)
	}
	return &readHandle{rc: rc, size: size}, nil
}

// writeHandle buffers the whole object, since PutObject takes an
// io.Reader but S3 has no incremental append API; the archive engine
// already writes one fragment-sealed chunk file per storage object, so
// this buffering happens once per archive part, not per fragment.
type writeHandle struct {
	client s3.Client
	bucket string
	path   string
	buf    bytes.Buffer
}

func (w *writeHandle) Write(p []byte) (int, error) { return w.buf.Write(p) }
func (w *writeHandle) Close() error {
	err := w.client.PutObject(context.Background(), w.bucket, w.path, bytes.NewReader(w.buf.Bytes()), nil)
	if err != nil {
		return fmt.Errorf("s3backend: put %s/%s: %w", w.bucket, w.path, storage.ErrIO)
	}
	return nil
}

func (b *Backend) Create(_ context.Context, path string, _ int64) (storage.WriteHandle, error) {
	return &writeHandle{client: b.client, bucket: b.bucket, path: path}, nil
}

// Rename emulates a rename as copy (via Get+Put) then delete, since the
// S3 API has no native rename/move operation; the two steps are not atomic.
func (b *Backend) Rename(ctx context.Context, from, to string) error {
	rc, meta, err := b.client.GetObject(ctx, b.bucket, from)
	if err != nil {
		return fmt.Errorf("s3backend: rename get %s: %w", from, storage.ErrFileNotFound)
	}
	defer rc.Close()
	if err := b.client.PutObject(ctx, b.bucket, to, rc, meta); err != nil {
		return fmt.Errorf("s3backend: rename put %s: %w", to, storage.ErrIO)
	}
	if err := b.client.DeleteObject(ctx, b.bucket, from); err != nil {
		return fmt.Errorf("s3backend: rename delete %s: %w", from, storage.ErrIO)
	}
	return nil
}

func (b *Backend) Delete(ctx context.Context, path string) error {
	if err := b.client.DeleteObject(ctx, b.bucket, path); err != nil {
		return fmt.Errorf("s3backend: delete %s: %w", path, storage.ErrIO)
	}
	return nil
}

type dirLister struct {
	objects []s3.ObjectInfo
	prefix  string
	i       int
}

func (d *dirLister) Next() (storage.DirEntry, error) {
	if d.i >= len(d.objects) {
		return storage.DirEntry{}, io.EOF
	}
	o := d.objects[d.i]
	d.i++
	modTime, _ := time.Parse("2006-01-02T15:04:05.000Z", o.LastModified)
	return storage.DirEntry{
		Name:    strings.TrimPrefix(o.Key, d.prefix),
		Size:    o.Size,
		ModTime: modTime,
		IsDir:   strings.HasSuffix(o.Key, "/"),
	}, nil
}
func (d *dirLister) Close() error { return nil }

func (b *Backend) OpenDirList(ctx context.Context, path string) (storage.DirLister, error) {
	prefix := path
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	objects, err := b.client.ListObjects(ctx, b.bucket, prefix, s3.ListOptions{Delimiter: "/"})
	if err != nil {
		return nil, fmt.Errorf("s3backend: list %s/%s: %w", b.bucket, prefix, storage.ErrIO)
	}
	return &dirLister{objects: objects, prefix: prefix}, nil
}

func (b *Backend) PreProcess(_ context.Context, _ string, _ time.Time, _ bool) error  { return nil }
func (b *Backend) PostProcess(_ context.Context, _ string, _ time.Time, _ bool) error { return nil }

func (b *Backend) IsServerAllocationPending() bool { return false }

func (b *Backend) TmpName(path string) string { return path + ".part" }

func (b *Backend) Close(_ context.Context) error { return nil }
