package archive

import (
	"crypto/sha256"
	"encoding"
	"fmt"
	"hash"
)

// snapshotHash captures h's internal state so it can be rewound later.
// crypto/sha256's digest type implements encoding.BinaryMarshaler for
// exactly this kind of mid-stream checkpoint (the same mechanism HMAC
// uses internally to cache its inner/outer digest prefixes), which is
// what lets Reader compute "every byte up to but not including SIGN"
// without buffering the archive or making a second pass over it.
func snapshotHash(h hash.Hash) ([]byte, error) {
	m, ok := h.(encoding.BinaryMarshaler)
	if !ok {
		return nil, fmt.Errorf("archive: hash %T does not support checkpointing", h)
	}
	return m.MarshalBinary()
}

func restoreHash(h hash.Hash, snapshot []byte) error {
	u, ok := h.(encoding.BinaryUnmarshaler)
	if !ok {
		return fmt.Errorf("archive: hash %T does not support checkpointing", h)
	}
	return u.UnmarshalBinary(snapshot)
}

func newDigest() hash.Hash { return sha256.New() }
