package archive

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/rtanaka/barchive/internal/chunkio"
	"github.com/rtanaka/barchive/internal/crypto"
	"github.com/rtanaka/barchive/internal/entry"
)

// WriterOptions configures a new archive.
type WriterOptions struct {
	Meta      Meta
	Transform entry.Transform

	// Salt, if non-nil, is written as the SALT chunk: passphrase mode,
	// spec §4.B. Mutually exclusive with KeyEnvelope. Iterations is the
	// PBKDF2 round count used to derive the key from Salt; it travels
	// alongside Salt in the chunk payload.
	Salt       []byte
	Iterations int

	// KeyEnvelope, if non-nil, is written as the KEY chunk: asymmetric
	// mode, the symmetric key wrapped by a crypto.KeyManager. Mutually
	// exclusive with Salt.
	KeyEnvelope *crypto.KeyEnvelope
	KeyID       string
	KeyVersion  int

	// SigningKey, if non-nil, signs the archive on Close: a detached
	// Ed25519 signature over the SHA-256 digest of every byte written
	// before SIGN, spec §4.B.
	SigningKey ed25519.PrivateKey

	// RehashSource must be set when SigningKey is set. It returns a
	// fresh io.Reader over exactly the bytes written so far (e.g. by
	// reopening the destination from offset 0). The signature is always
	// computed from a rehash rather than an incremental tee, since a
	// seek-patching chunkio.Writer (see chunkio.Writer.Seekable) revises
	// already-written header bytes after the fact — an incremental hash
	// taken while writing would see the placeholder, not the final byte.
	RehashSource func() (io.Reader, error)
}

// Writer emits one archive: BAR0, META, optional SALT/KEY, a run of
// entries, optional trailing SIGN.
type Writer struct {
	root      *chunkio.Writer
	transform entry.Transform
	opts      WriterOptions

	current *entry.Writer
	closed  bool
}

// Create starts a new archive on sink, writing BAR0/META and the
// optional SALT/KEY chunks immediately.
func Create(sink io.Writer, opts WriterOptions) (*Writer, error) {
	if opts.Salt != nil && opts.KeyEnvelope != nil {
		return nil, fmt.Errorf("archive: Salt and KeyEnvelope are mutually exclusive")
	}
	if opts.SigningKey != nil && opts.RehashSource == nil {
		return nil, fmt.Errorf("archive: SigningKey requires RehashSource")
	}

	var flags Flag
	if opts.Transform.Cipher != nil && opts.Transform.Cipher.Suite() != crypto.SuiteNone {
		flags |= FlagEncrypted
		if opts.KeyEnvelope != nil {
			flags |= FlagAsymmetric
		}
	}
	if opts.SigningKey != nil {
		flags |= FlagSigned
	}

	root := chunkio.NewWriter(sink)
	if err := root.WriteChunk(chunkio.IDArchiveRoot, encodeBAR0(flags)); err != nil {
		return nil, fmt.Errorf("archive: write BAR0: %w", err)
	}
	metaPayload, err := encodeMeta(opts.Meta)
	if err != nil {
		return nil, fmt.Errorf("archive: encode META: %w", err)
	}
	if err := root.WriteChunk(chunkio.IDMeta, metaPayload); err != nil {
		return nil, fmt.Errorf("archive: write META: %w", err)
	}
	if opts.Salt != nil {
		if err := root.WriteChunk(chunkio.IDSalt, encodeSalt(opts.Iterations, opts.Salt)); err != nil {
			return nil, fmt.Errorf("archive: write SALT: %w", err)
		}
	}
	if opts.KeyEnvelope != nil {
		payload := encodeKeyEnvelope(opts.KeyID, opts.KeyVersion, opts.KeyEnvelope.Provider, opts.KeyEnvelope.Ciphertext)
		if err := root.WriteChunk(chunkio.IDKey, payload); err != nil {
			return nil, fmt.Errorf("archive: write KEY: %w", err)
		}
	}

	return &Writer{root: root, transform: opts.Transform, opts: opts}, nil
}

// BeginEntry opens a new entry for writing. Only one entry may be open
// at a time — spec §4.E's serialized single-writer-per-archive contract.
func (w *Writer) BeginEntry(kind entry.Kind, attrs entry.Attributes, target string, hardLinkNames []string) (*entry.Writer, error) {
	if w.closed {
		return nil, fmt.Errorf("archive: write to closed archive")
	}
	if w.current != nil {
		return nil, ErrEntryOpen
	}
	ew, err := entry.BeginEntry(w.root, kind, attrs, target, hardLinkNames, w.transform)
	if err != nil {
		return nil, err
	}
	w.current = ew
	return ew, nil
}

// EndEntry closes the entry most recently returned by BeginEntry.
func (w *Writer) EndEntry() error {
	if w.current == nil {
		return ErrNoEntryOpen
	}
	err := w.current.Close()
	w.current = nil
	return err
}

// AbortEntry discards the entry most recently returned by BeginEntry,
// e.g. because the source file vanished mid-read.
func (w *Writer) AbortEntry() error {
	if w.current == nil {
		return ErrNoEntryOpen
	}
	err := w.current.Abort()
	w.current = nil
	return err
}

// Close finalizes the archive: it closes any still-open entry, then, if
// a SigningKey was configured, rehashes everything written so far and
// appends the SIGN chunk.
func (w *Writer) Close(_ context.Context) error {
	if w.closed {
		return nil
	}
	w.closed = true

	if w.current != nil {
		if err := w.current.Close(); err != nil {
			w.current = nil
			return err
		}
		w.current = nil
	}

	if w.opts.SigningKey == nil {
		return nil
	}

	src, err := w.opts.RehashSource()
	if err != nil {
		return fmt.Errorf("archive: rehash source: %w", err)
	}
	h := sha256.New()
	if _, err := io.Copy(h, src); err != nil {
		return fmt.Errorf("archive: rehash archive: %w", err)
	}
	sig := crypto.SignDigest(w.opts.SigningKey, h.Sum(nil))
	if err := w.root.WriteChunk(chunkio.IDSignature, sig); err != nil {
		return fmt.Errorf("archive: write SIGN: %w", err)
	}
	return nil
}
