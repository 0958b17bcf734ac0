// Package entry implements the per-entry framing pipeline of spec §4.D:
// emitting and parsing one archive entry (a FILE/IMAG/DIR/LINK/HLNK/SPEC
// root and its children) and, for data-bearing kinds, splitting the
// source into fragments that are each independently delta-compressed,
// byte-compressed and encrypted before being written as a DATA/BLK chunk.
package entry

import (
	"errors"
	"time"

	"github.com/rtanaka/barchive/internal/chunkio"
)

// Kind identifies which entry root chunk an entry is stored as.
type Kind int

const (
	KindFile Kind = iota
	KindImage
	KindDir
	KindLink
	KindHardLink
	KindSpecial
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "FILE"
	case KindImage:
		return "IMAG"
	case KindDir:
		return "DIR"
	case KindLink:
		return "LINK"
	case KindHardLink:
		return "HLNK"
	case KindSpecial:
		return "SPEC"
	default:
		return "UNKNOWN"
	}
}

func (k Kind) chunkID() chunkio.ID {
	switch k {
	case KindFile:
		return chunkio.IDFile
	case KindImage:
		return chunkio.IDImage
	case KindDir:
		return chunkio.IDDir
	case KindLink:
		return chunkio.IDLink
	case KindHardLink:
		return chunkio.IDHardLink
	case KindSpecial:
		return chunkio.IDSpecial
	default:
		panic("entry: unknown kind")
	}
}

// KindFromChunkID maps an entry root chunk id back to a Kind, for the
// reader's dispatch-by-kind (spec §4.E "nextEntry").
func KindFromChunkID(id chunkio.ID) (Kind, bool) {
	switch id {
	case chunkio.IDFile:
		return KindFile, true
	case chunkio.IDImage:
		return KindImage, true
	case chunkio.IDDir:
		return KindDir, true
	case chunkio.IDLink:
		return KindLink, true
	case chunkio.IDHardLink:
		return KindHardLink, true
	case chunkio.IDSpecial:
		return KindSpecial, true
	default:
		return 0, false
	}
}

// Attributes carries the ENTR chunk's fields (spec §3: "name, size, times,
// uid/gid, permissions, device/inode for hard-link identity").
type Attributes struct {
	Name        string
	Size        uint64 // declared size; for data-bearing kinds, Σ fragment lengths
	ModTime     time.Time
	UID, GID    uint32
	Permissions uint32
	Device      uint64
	Inode       uint64
}

// DeltaSource identifies the logical delta source a DELT child references:
// a name and a declared size, resolved by the caller (spec §3 invariant 3,
// §4.C — "policy is implementation-defined but MUST be deterministic").
type DeltaSource struct {
	Name string
	Size uint64
}

// State is the per-entry writer state machine of spec §4.D.
type State int

const (
	StateInit State = iota
	StateHeaderWritten
	StateFragments
	StateClosed
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateHeaderWritten:
		return "HEADER_WRITTEN"
	case StateFragments:
		return "FRAGMENTS"
	case StateClosed:
		return "CLOSED"
	case StateAborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// Errors surfaced by this package.
var (
	ErrWrongState    = errors.New("entry: operation invalid in current writer state")
	ErrFragmentOrder = errors.New("entry: fragment offsets must be non-decreasing and non-overlapping")
	ErrNotDataBearing = errors.New("entry: operation only valid for FILE/HLNK/IMAG entries")
)

// dataBearing reports whether kind may carry DATA/BLK fragment children
// (spec §3 invariant 2: "FILE/HLNK/IMAG may have one or more DATA/BLK
// children").
func dataBearing(k Kind) bool {
	return k == KindFile || k == KindHardLink || k == KindImage
}
