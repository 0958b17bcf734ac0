// Package archive implements the top-level container format: the fixed
// chunk sequence BAR0, META, optional SALT/KEY, a run of entry roots
// (delegated to internal/entry), and an optional trailing SIGN — the
// structure spec §3's data model and §4.E's archive engine describe.
package archive

import (
	"fmt"
	"time"
)

// Type classifies how an archive's entry set relates to prior archives of
// the same job, spec §3's archive-type enumeration.
type Type uint8

const (
	TypeNormal Type = iota
	TypeFull
	TypeIncremental
	TypeDifferential
	TypeContinuous
)

func (t Type) String() string {
	switch t {
	case TypeNormal:
		return "normal"
	case TypeFull:
		return "full"
	case TypeIncremental:
		return "incremental"
	case TypeDifferential:
		return "differential"
	case TypeContinuous:
		return "continuous"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// Meta is the content of the mandatory META chunk that immediately
// follows BAR0.
type Meta struct {
	Host       string
	User       string
	JobUUID    string
	EntityUUID string
	Type       Type
	CreatedAt  time.Time
	Comment    string
}

// FormatVersion is the BAR0 chunk's version field. Bumped only on a
// breaking change to the top-level chunk sequence itself.
const FormatVersion uint32 = 1

// Flag bits recorded in BAR0, letting a reader decide what to expect
// before it reaches SALT/KEY without guessing from their mere presence.
const (
	FlagEncrypted Flag = 1 << iota
	FlagAsymmetric
	FlagSigned
)

// Flag is a bitset of BAR0 flag bits.
type Flag uint32

func (f Flag) has(bit Flag) bool { return f&bit != 0 }
