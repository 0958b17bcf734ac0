package archive

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

func putString(buf *bytes.Buffer, s string) error {
	if len(s) > 0xFFFF {
		return fmt.Errorf("archive: string %q exceeds 65535 bytes", s)
	}
	var n [2]byte
	binary.BigEndian.PutUint16(n[:], uint16(len(s)))
	buf.Write(n[:])
	buf.WriteString(s)
	return nil
}

func getString(r io.Reader) (string, error) {
	var n [2]byte
	if _, err := io.ReadFull(r, n[:]); err != nil {
		return "", fmt.Errorf("archive: read string length: %w", err)
	}
	l := binary.BigEndian.Uint16(n[:])
	buf := make([]byte, l)
	if l > 0 {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", fmt.Errorf("archive: read string bytes: %w", err)
		}
	}
	return string(buf), nil
}

func putUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func getUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func putInt64(buf *bytes.Buffer, v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	buf.Write(b[:])
}

func getInt64(r io.Reader) (int64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b[:])), nil
}

// encodeBAR0 lays out the archive root chunk: format version, flag bits.
func encodeBAR0(flags Flag) []byte {
	var buf bytes.Buffer
	putUint32(&buf, FormatVersion)
	putUint32(&buf, uint32(flags))
	return buf.Bytes()
}

func decodeBAR0(payload []byte) (version uint32, flags Flag, err error) {
	r := bytes.NewReader(payload)
	version, err = getUint32(r)
	if err != nil {
		return 0, 0, fmt.Errorf("archive: decode BAR0 version: %w", err)
	}
	f, err := getUint32(r)
	if err != nil {
		return 0, 0, fmt.Errorf("archive: decode BAR0 flags: %w", err)
	}
	return version, Flag(f), nil
}

// encodeMeta lays out the META chunk: host, user, job UUID, entity UUID,
// archive type, created-at (unix seconds UTC), comment.
func encodeMeta(m Meta) ([]byte, error) {
	var buf bytes.Buffer
	for _, s := range []string{m.Host, m.User, m.JobUUID, m.EntityUUID} {
		if err := putString(&buf, s); err != nil {
			return nil, err
		}
	}
	buf.WriteByte(byte(m.Type))
	putInt64(&buf, m.CreatedAt.UTC().Unix())
	if err := putString(&buf, m.Comment); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeMeta(payload []byte) (Meta, error) {
	r := bytes.NewReader(payload)
	var m Meta
	var err error
	if m.Host, err = getString(r); err != nil {
		return Meta{}, fmt.Errorf("archive: decode META host: %w", err)
	}
	if m.User, err = getString(r); err != nil {
		return Meta{}, fmt.Errorf("archive: decode META user: %w", err)
	}
	if m.JobUUID, err = getString(r); err != nil {
		return Meta{}, fmt.Errorf("archive: decode META job uuid: %w", err)
	}
	if m.EntityUUID, err = getString(r); err != nil {
		return Meta{}, fmt.Errorf("archive: decode META entity uuid: %w", err)
	}
	typeByte, err := r.ReadByte()
	if err != nil {
		return Meta{}, fmt.Errorf("archive: decode META type: %w", err)
	}
	m.Type = Type(typeByte)
	createdAt, err := getInt64(r)
	if err != nil {
		return Meta{}, fmt.Errorf("archive: decode META created-at: %w", err)
	}
	m.CreatedAt = time.Unix(createdAt, 0).UTC()
	if m.Comment, err = getString(r); err != nil {
		return Meta{}, fmt.Errorf("archive: decode META comment: %w", err)
	}
	return m, nil
}

// encodeSalt/decodeSalt lay out the SALT chunk: the PBKDF2 iteration
// count travels with the salt itself so a later reader can reproduce the
// same derived key even if the default iteration count has since
// changed, spec §4.B.
func encodeSalt(iterations int, salt []byte) []byte {
	var buf bytes.Buffer
	putUint32(&buf, uint32(iterations))
	buf.Write(salt)
	return buf.Bytes()
}

func decodeSalt(payload []byte) (iterations int, salt []byte, err error) {
	r := bytes.NewReader(payload)
	n, err := getUint32(r)
	if err != nil {
		return 0, nil, fmt.Errorf("archive: decode SALT iterations: %w", err)
	}
	salt = make([]byte, r.Len())
	if _, err := io.ReadFull(r, salt); err != nil {
		return 0, nil, fmt.Errorf("archive: decode SALT bytes: %w", err)
	}
	return int(n), salt, nil
}

// encodeKeyEnvelope/decodeKeyEnvelope lay out the KEY chunk: the
// asymmetric-mode wrapped symmetric key, per spec §4.B's "KEY and
// passphrase are mutually exclusive".
func encodeKeyEnvelope(keyID string, keyVersion int, provider string, ciphertext []byte) []byte {
	var buf bytes.Buffer
	putString(&buf, keyID)
	putUint32(&buf, uint32(keyVersion))
	putString(&buf, provider)
	putUint32(&buf, uint32(len(ciphertext)))
	buf.Write(ciphertext)
	return buf.Bytes()
}

func decodeKeyEnvelope(payload []byte) (keyID string, keyVersion int, provider string, ciphertext []byte, err error) {
	r := bytes.NewReader(payload)
	if keyID, err = getString(r); err != nil {
		return "", 0, "", nil, fmt.Errorf("archive: decode KEY key id: %w", err)
	}
	v, err := getUint32(r)
	if err != nil {
		return "", 0, "", nil, fmt.Errorf("archive: decode KEY version: %w", err)
	}
	keyVersion = int(v)
	if provider, err = getString(r); err != nil {
		return "", 0, "", nil, fmt.Errorf("archive: decode KEY provider: %w", err)
	}
	n, err := getUint32(r)
	if err != nil {
		return "", 0, "", nil, fmt.Errorf("archive: decode KEY ciphertext length: %w", err)
	}
	ciphertext = make([]byte, n)
	if _, err = io.ReadFull(r, ciphertext); err != nil {
		return "", 0, "", nil, fmt.Errorf("archive: decode KEY ciphertext: %w", err)
	}
	return keyID, keyVersion, provider, ciphertext, nil
}
