package archive

import (
	"errors"

	"github.com/rtanaka/barchive/internal/crypto"
)

// Engine-visible failure kinds, spec §7's error-kind table as it applies
// to the archive container itself (backend transport and entry-payload
// errors are internal/storage's and internal/entry's respectively).
//
// ErrCryptFail is the same sentinel crypto.Cipher.Open wraps its failures
// in, not a fresh archive-level error: a tampered DATA/BLK fragment is
// detected several layers below archive (entry's openFragment, in turn
// crypto's cbcCipher/aeadCipher), so errors.Is(err, ErrCryptFail) has to
// succeed on the wrapped error as it comes back up, not on a copy of it.
var (
	ErrNotAnArchive        = errors.New("archive: not a BAR0 stream")
	ErrUnsupportedCipher   = errors.New("archive: unsupported cipher suite")
	ErrUnsupportedCompress = errors.New("archive: unsupported compression algorithm")
	ErrCryptFail           = crypto.ErrCryptFail
	ErrInvalidPassword     = errors.New("archive: invalid password")
	ErrNoPassword          = errors.New("archive: password required")
	ErrInvalidSignature    = errors.New("archive: invalid signature")
	ErrNoSigningKey        = errors.New("archive: signing requested but no signing key configured")
	ErrEntryOpen           = errors.New("archive: an entry is already open for writing")
	ErrNoEntryOpen         = errors.New("archive: no entry is open")
	ErrAborted             = errors.New("archive: aborted")
)
