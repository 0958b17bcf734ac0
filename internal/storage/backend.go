package storage

import (
	"context"
	"io"
	"time"
)

// Capability is the static per-backend feature record spec §4.F lists:
// "{random_access_read, random_access_write, rename_atomic, directory_list,
// tmp_name}". The chunk writer (internal/chunkio.NewWriter) picks its
// seek-patch vs buffered strategy from whether the sink is an
// io.WriteSeeker; it does not read this record.
type Capability struct {
	RandomAccessRead  bool
	RandomAccessWrite bool
	RenameAtomic      bool
	DirectoryList     bool
	TmpName           bool
}

// Info is what Backend.Init returns once a session is established: the
// capability record plus anything diagnostic worth surfacing (the teacher
// pattern of returning a small session-info struct from a constructor
// rather than stashing it in package state).
type Info struct {
	Capability Capability
	ServerID   string // host[:port], the server-allocation semaphore key
}

// ReadHandle is an open object for reading. Seek/Tell are only meaningful
// when the backend's Capability.RandomAccessRead is true; backends that
// cannot seek return a ReadHandle that does not implement io.Seeker, and
// callers type-assert before relying on it (spec §4.F: "tell/seek
// optional; ∅ if not seekable").
type ReadHandle interface {
	io.Reader
	io.Closer
	// Size reports the object's total byte length, when known up front.
	Size() (int64, error)
}

// WriteHandle is an open object for writing, created with an optional size
// hint (expectedSize; 0 if unknown) so backends that benefit from
// pre-allocation or multipart-upload planning (e.g. s3backend) can use it.
type WriteHandle interface {
	io.Writer
	io.Closer
}

// DirEntry is one line of a directory listing.
type DirEntry struct {
	Name    string
	Size    int64
	ModTime time.Time
	IsDir   bool
}

// DirLister iterates a directory listing opened by Backend.OpenDirList.
type DirLister interface {
	// Next returns the next entry, or io.EOF once the listing is exhausted.
	Next() (DirEntry, error)
	Close() error
}

// Backend is the uniform transport abstraction of spec §4.F. A concrete
// backend implements the subset its transport actually supports; it
// advertises what it can do via Info.Capability rather than failing calls
// silently, and returns ErrNotSupported for calls outside that set.
type Backend interface {
	// Init establishes (or verifies) a session against spec. Options carry
	// backend-specific settings (credentials already resolved via
	// internal/creds, timeouts, TLS config) the URI alone does not encode.
	Init(ctx context.Context, spec Specifier, options map[string]string) (Info, error)

	Exists(ctx context.Context, path string) (bool, error)
	Open(ctx context.Context, path string) (ReadHandle, error)
	// Create opens path for writing. expectedSize is a hint (0 = unknown).
	Create(ctx context.Context, path string, expectedSize int64) (WriteHandle, error)

	Rename(ctx context.Context, from, to string) error
	Delete(ctx context.Context, path string) error

	OpenDirList(ctx context.Context, path string) (DirLister, error)

	// PreProcess/PostProcess run the configured hook command (hooks.go)
	// around a transfer; initial distinguishes the first part of a
	// multi-volume archive from later ones, matching the macro set's
	// %part/%partFrom/%partTo fields.
	PreProcess(ctx context.Context, path string, at time.Time, initial bool) error
	PostProcess(ctx context.Context, path string, at time.Time, final bool) error

	// IsServerAllocationPending reports whether a higher-priority request
	// is waiting on this backend's server slot (spec §5: "cooperative
	// holders MUST release at the next fragment boundary").
	IsServerAllocationPending() bool

	// TmpName returns the temporary object name used while writing path,
	// committed via Rename on successful Close (spec §4.E "Closing").
	TmpName(path string) string

	Close(ctx context.Context) error
}
