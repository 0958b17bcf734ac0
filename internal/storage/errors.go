// Package storage implements the uniform storage-backend façade of
// spec.md §4.F: a capability-typed interface over pluggable transports,
// plus the connection-semaphore, bandwidth-limiter and pre/post-processing
// hook machinery every concrete backend shares.
package storage

import "errors"

// Error kinds surfaced by the façade (spec §7). Concrete backends wrap one
// of these with %w so callers can classify failures without depending on
// backend-specific error types.
var (
	ErrIO                  = errors.New("storage: io error")
	ErrAuthentication      = errors.New("storage: backend login failed")
	ErrTooManyConnections  = errors.New("storage: server allocation semaphore timeout")
	ErrHostNotFound        = errors.New("storage: host not found")
	ErrSessionFail         = errors.New("storage: session failed")
	ErrFileNotFound        = errors.New("storage: file not found")
	ErrAborted             = errors.New("storage: aborted")
	ErrNotSupported        = errors.New("storage: capability absent in backend")
	ErrInvalidSpecifier    = errors.New("storage: invalid storage specifier")
)
