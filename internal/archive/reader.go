package archive

import (
	"crypto/ed25519"
	"fmt"
	"hash"
	"io"

	"github.com/rtanaka/barchive/internal/chunkio"
	"github.com/rtanaka/barchive/internal/crypto"
	"github.com/rtanaka/barchive/internal/entry"
)

// Reader decodes one archive: BAR0, META, optional SALT/KEY, a run of
// entries, optional trailing SIGN — the mirror of Writer.
type Reader struct {
	root *chunkio.Reader
	hash hash.Hash

	transform entry.Transform

	version uint32
	flags   Flag
	meta    Meta

	salt           []byte
	saltIterations int
	hasSalt        bool
	keyID       string
	keyVersion  int
	keyProvider string
	keyCipher   []byte
	hasKey      bool

	pendingHeader *chunkio.Header
	pendingSnap   []byte

	eof        bool
	signDigest []byte // nil if no SIGN chunk was found
	signature  []byte
}

// Open reads BAR0/META and any SALT/KEY prefix from src, returning a
// Reader positioned at the first entry (or SIGN, or end of archive).
// Open does not take the entry transform: the caller supplies it through
// SetTransform once the key material above has been resolved into a
// concrete crypto.Cipher (see ResolveKey).
func Open(src io.Reader) (*Reader, error) {
	h := newDigest()
	tee := io.TeeReader(src, h)
	root := chunkio.NewReader(tee)

	r := &Reader{root: root, hash: h}

	hdr, err := root.ReadHeader()
	if err != nil {
		return nil, fmt.Errorf("archive: read BAR0 header: %w", err)
	}
	if hdr.ID != chunkio.IDArchiveRoot {
		return nil, ErrNotAnArchive
	}
	payload, err := root.ReadPayload(int(hdr.Length))
	if err != nil {
		return nil, fmt.Errorf("archive: read BAR0 payload: %w", err)
	}
	if r.version, r.flags, err = decodeBAR0(payload); err != nil {
		return nil, err
	}

	hdr, err = root.ReadHeader()
	if err != nil {
		return nil, fmt.Errorf("archive: read META header: %w", err)
	}
	if hdr.ID != chunkio.IDMeta {
		return nil, fmt.Errorf("archive: expected META, got %q", hdr.ID)
	}
	payload, err = root.ReadPayload(int(hdr.Length))
	if err != nil {
		return nil, fmt.Errorf("archive: read META payload: %w", err)
	}
	if r.meta, err = decodeMeta(payload); err != nil {
		return nil, err
	}

	for {
		snap, err := snapshotHash(h)
		if err != nil {
			return nil, err
		}
		hdr, err := root.ReadHeader()
		if err != nil {
			if err == io.EOF {
				r.eof = true
				return r, nil
			}
			return nil, fmt.Errorf("archive: read chunk header: %w", err)
		}

		switch hdr.ID {
		case chunkio.IDSalt:
			payload, err := root.ReadPayload(int(hdr.Length))
			if err != nil {
				return nil, fmt.Errorf("archive: read SALT: %w", err)
			}
			iterations, salt, err := decodeSalt(payload)
			if err != nil {
				return nil, err
			}
			r.saltIterations, r.salt, r.hasSalt = iterations, salt, true
			continue
		case chunkio.IDKey:
			payload, err := root.ReadPayload(int(hdr.Length))
			if err != nil {
				return nil, fmt.Errorf("archive: read KEY: %w", err)
			}
			keyID, keyVersion, provider, ciphertext, err := decodeKeyEnvelope(payload)
			if err != nil {
				return nil, err
			}
			r.keyID, r.keyVersion, r.keyProvider, r.keyCipher, r.hasKey = keyID, keyVersion, provider, ciphertext, true
			continue
		default:
			r.pendingHeader = &hdr
			r.pendingSnap = snap
			return r, nil
		}
	}
}

// Version is the BAR0 format version this archive was written with.
func (r *Reader) Version() uint32 { return r.version }

// Flags is the BAR0 flag bitset.
func (r *Reader) Flags() Flag { return r.flags }

// Meta is the archive's META record.
func (r *Reader) Meta() Meta { return r.meta }

// Salt returns the SALT chunk's salt bytes and whether the archive carried
// a SALT chunk (passphrase mode); the PBKDF2 iteration count is reported
// by SaltIterations.
func (r *Reader) Salt() ([]byte, bool) { return r.salt, r.hasSalt }

// SaltIterations returns the PBKDF2 iteration count recorded alongside
// Salt.
func (r *Reader) SaltIterations() int { return r.saltIterations }

// KeyEnvelope returns the KEY chunk's fields, if the archive is in
// asymmetric mode.
func (r *Reader) KeyEnvelope() (keyID string, keyVersion int, provider string, ciphertext []byte, ok bool) {
	return r.keyID, r.keyVersion, r.keyProvider, r.keyCipher, r.hasKey
}

// SetTransform supplies the per-fragment cipher/compression pipeline
// entries were sealed with, once the caller has resolved Salt/KeyEnvelope
// into a concrete key (see spec §4.B's password-vs-asymmetric paths).
// It must be called before the first NextEntry.
func (r *Reader) SetTransform(t entry.Transform) { r.transform = t }

// NextEntry decodes the next entry root, or returns io.EOF once the
// archive is exhausted (whether or not it carries a SIGN chunk).
// Unknown chunk ids between entries are skipped, spec §4.A's forward
// compatibility rule.
func (r *Reader) NextEntry() (*entry.Reader, error) {
	if r.eof {
		return nil, io.EOF
	}

	for {
		var hdr chunkio.Header
		var snap []byte
		var err error

		if r.pendingHeader != nil {
			hdr, snap = *r.pendingHeader, r.pendingSnap
			r.pendingHeader, r.pendingSnap = nil, nil
		} else {
			snap, err = snapshotHash(r.hash)
			if err != nil {
				return nil, err
			}
			hdr, err = r.root.ReadHeader()
			if err != nil {
				if err == io.EOF {
					r.eof = true
					return nil, io.EOF
				}
				return nil, fmt.Errorf("archive: read chunk header: %w", err)
			}
		}

		if hdr.ID == chunkio.IDSignature {
			if err := restoreHash(r.hash, snap); err != nil {
				return nil, err
			}
			r.signDigest = r.hash.Sum(nil)
			sig, err := r.root.ReadPayload(int(hdr.Length))
			if err != nil {
				return nil, fmt.Errorf("archive: read SIGN payload: %w", err)
			}
			r.signature = sig
			r.eof = true
			return nil, io.EOF
		}

		kind, ok := entry.KindFromChunkID(hdr.ID)
		if !ok {
			if err := r.root.Skip(); err != nil {
				return nil, fmt.Errorf("archive: skip unknown chunk %q: %w", hdr.ID, err)
			}
			continue
		}

		sub := r.root.Sub()
		er, err := entry.OpenEntry(kind, sub, r.transform)
		if err != nil {
			return nil, err
		}
		return er, nil
	}
}

// SkipEntry discards the remainder of an entry returned by NextEntry
// without decoding its fragments.
func SkipEntry(er *entry.Reader) error {
	for {
		if _, err := er.Next(); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

// Verify re-derives the SHA-256 digest of every byte read before the
// SIGN chunk and checks it against pub. The archive must have been
// fully consumed (NextEntry called until io.EOF) first, so the digest
// covers every entry. It returns VerifyNoSignature if the archive
// carried no SIGN chunk.
func (r *Reader) Verify(pub ed25519.PublicKey) (crypto.VerifyState, error) {
	if !r.eof {
		return 0, fmt.Errorf("archive: Verify called before the archive was fully read")
	}
	if r.signDigest == nil {
		return crypto.VerifyNoSignature, nil
	}
	return crypto.VerifyDigest(pub, r.signDigest, r.signature), nil
}
