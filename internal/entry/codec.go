package entry

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// putString writes a length-prefixed UTF-8 string per spec §6: a 2-byte
// unsigned length followed by the bytes.
func putString(buf *bytes.Buffer, s string) error {
	if len(s) > 0xFFFF {
		return fmt.Errorf("entry: string %q exceeds 65535 bytes", s)
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
		return "", fmt.Errorf("entry: read string length: %w", err)
	}
	l := binary.BigEndian.Uint16(n[:])
	buf := make([]byte, l)
	if l > 0 {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", fmt.Errorf("entry: read string bytes: %w", err)
		}
	}
	return string(buf), nil
}

func putUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func putInt64(buf *bytes.Buffer, v int64) { putUint64(buf, uint64(v)) }

func putUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func getUint64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func getInt64(r io.Reader) (int64, error) {
	v, err := getUint64(r)
	return int64(v), err
}

func getUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func beUint64(b []byte) uint64 { return binary.BigEndian.Uint64(b) }
func beUint32(b []byte) uint32 { return binary.BigEndian.Uint32(b) }
