package storage

import (
	"context"
	"errors"
	"time"

	"github.com/rtanaka/barchive/internal/metrics"
)

// Instrumented wraps a Backend so every call records a storage backend
// operation metric, the generalization of the teacher's per-HTTP-request
// RecordS3Operation/RecordS3Error call sites to the archive engine's own
// transport layer (SPEC_FULL.md §9 "Metrics" — "archive/fragment/
// compression/crypto counters and histograms"). name identifies the
// backend kind ("localfs", "ftp", "sftp", "webdav", "s3", "device") and is
// used as the backend label metrics.Config.EnableBackendLabel gates.
func Instrumented(name string, b Backend, m *metrics.Metrics) Backend {
	if m == nil {
		return b
	}
	return &instrumentedBackend{name: name, b: b, m: m}
}

type instrumentedBackend struct {
	name string
	b    Backend
	m    *metrics.Metrics
}

func (ib *instrumentedBackend) record(ctx context.Context, operation string, start time.Time, err error) {
	ib.m.RecordBackendOperation(ctx, operation, ib.name, time.Since(start))
	if err != nil {
		ib.m.RecordBackendError(ctx, operation, ib.name, errorKind(err))
	}
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrFileNotFound):
		return "file_not_found"
	case errors.Is(err, ErrAuthentication):
		return "authentication"
	case errors.Is(err, ErrTooManyConnections):
		return "too_many_connections"
	case errors.Is(err, ErrHostNotFound):
		return "host_not_found"
	case errors.Is(err, ErrSessionFail):
		return "session_fail"
	case errors.Is(err, ErrAborted):
		return "aborted"
	case errors.Is(err, ErrNotSupported):
		return "not_supported"
	case errors.Is(err, ErrInvalidSpecifier):
		return "invalid_specifier"
	default:
		return "io"
	}
}

func (ib *instrumentedBackend) Init(ctx context.Context, spec Specifier, options map[string]string) (Info, error) {
	start := time.Now()
	info, err := ib.b.Init(ctx, spec, options)
	ib.record(ctx, "init", start, err)
	return info, err
}

func (ib *instrumentedBackend) Exists(ctx context.Context, path string) (bool, error) {
	start := time.Now()
	ok, err := ib.b.Exists(ctx, path)
	ib.record(ctx, "exists", start, err)
	return ok, err
}

func (ib *instrumentedBackend) Open(ctx context.Context, path string) (ReadHandle, error) {
	start := time.Now()
	rh, err := ib.b.Open(ctx, path)
	ib.record(ctx, "open", start, err)
	return rh, err
}

func (ib *instrumentedBackend) Create(ctx context.Context, path string, expectedSize int64) (WriteHandle, error) {
	start := time.Now()
	wh, err := ib.b.Create(ctx, path, expectedSize)
	ib.record(ctx, "create", start, err)
	return wh, err
}

func (ib *instrumentedBackend) Rename(ctx context.Context, from, to string) error {
	start := time.Now()
	err := ib.b.Rename(ctx, from, to)
	ib.record(ctx, "rename", start, err)
	return err
}

func (ib *instrumentedBackend) Delete(ctx context.Context, path string) error {
	start := time.Now()
	err := ib.b.Delete(ctx, path)
	ib.record(ctx, "delete", start, err)
	return err
}

func (ib *instrumentedBackend) OpenDirList(ctx context.Context, path string) (DirLister, error) {
	start := time.Now()
	dl, err := ib.b.OpenDirList(ctx, path)
	ib.record(ctx, "open_dir_list", start, err)
	return dl, err
}

func (ib *instrumentedBackend) PreProcess(ctx context.Context, path string, at time.Time, initial bool) error {
	start := time.Now()
	err := ib.b.PreProcess(ctx, path, at, initial)
	ib.record(ctx, "pre_process", start, err)
	return err
}

func (ib *instrumentedBackend) PostProcess(ctx context.Context, path string, at time.Time, final bool) error {
	start := time.Now()
	err := ib.b.PostProcess(ctx, path, at, final)
	ib.record(ctx, "post_process", start, err)
	return err
}

func (ib *instrumentedBackend) IsServerAllocationPending() bool {
	return ib.b.IsServerAllocationPending()
}

func (ib *instrumentedBackend) TmpName(path string) string {
	return ib.b.TmpName(path)
}

func (ib *instrumentedBackend) Close(ctx context.Context) error {
	start := time.Now()
	err := ib.b.Close(ctx)
	ib.record(ctx, "close", start, err)
	return err
}
