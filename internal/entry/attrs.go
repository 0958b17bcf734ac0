package entry

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/rtanaka/barchive/internal/chunkio"
)

// ENTR payload layout (spec §3): name, size, mtime (unix seconds, UTC),
// uid, gid, permissions, device, inode.
func encodeEntryAttrs(a Attributes) ([]byte, error) {
	var buf bytes.Buffer
	if err := putString(&buf, a.Name); err != nil {
		return nil, err
	}
	putUint64(&buf, a.Size)
	putInt64(&buf, a.ModTime.UTC().Unix())
	putUint32(&buf, a.UID)
	putUint32(&buf, a.GID)
	putUint32(&buf, a.Permissions)
	putUint64(&buf, a.Device)
	putUint64(&buf, a.Inode)
	return buf.Bytes(), nil
}

func decodeEntryAttrs(payload []byte) (Attributes, error) {
	r := bytes.NewReader(payload)
	var a Attributes
	var err error
	if a.Name, err = getString(r); err != nil {
		return a, fmt.Errorf("entry: ENTR name: %w", err)
	}
	if a.Size, err = getUint64(r); err != nil {
		return a, fmt.Errorf("entry: ENTR size: %w", err)
	}
	sec, err := getInt64(r)
	if err != nil {
		return a, fmt.Errorf("entry: ENTR mtime: %w", err)
	}
	a.ModTime = time.Unix(sec, 0).UTC()
	if a.UID, err = getUint32(r); err != nil {
		return a, fmt.Errorf("entry: ENTR uid: %w", err)
	}
	if a.GID, err = getUint32(r); err != nil {
		return a, fmt.Errorf("entry: ENTR gid: %w", err)
	}
	if a.Permissions, err = getUint32(r); err != nil {
		return a, fmt.Errorf("entry: ENTR permissions: %w", err)
	}
	if a.Device, err = getUint64(r); err != nil {
		return a, fmt.Errorf("entry: ENTR device: %w", err)
	}
	if a.Inode, err = getUint64(r); err != nil {
		return a, fmt.Errorf("entry: ENTR inode: %w", err)
	}
	return a, nil
}

func encodeDest(target string) ([]byte, error) {
	var buf bytes.Buffer
	if err := putString(&buf, target); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeDest(payload []byte) (string, error) {
	return getString(bytes.NewReader(payload))
}

func encodeHardName(name string) ([]byte, error) {
	var buf bytes.Buffer
	if err := putString(&buf, name); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeHardName(payload []byte) (string, error) {
	return getString(bytes.NewReader(payload))
}

// XAttr is one extended attribute (spec §3 "XATR"). Value is an arbitrary
// byte string, not necessarily UTF-8.
type XAttr struct {
	Name  string
	Value []byte
}

func encodeXAttr(x XAttr) ([]byte, error) {
	var buf bytes.Buffer
	if err := putString(&buf, x.Name); err != nil {
		return nil, err
	}
	putUint32(&buf, uint32(len(x.Value)))
	buf.Write(x.Value)
	return buf.Bytes(), nil
}

func decodeXAttr(payload []byte) (XAttr, error) {
	r := bytes.NewReader(payload)
	var x XAttr
	var err error
	if x.Name, err = getString(r); err != nil {
		return x, fmt.Errorf("entry: XATR name: %w", err)
	}
	n, err := getUint32(r)
	if err != nil {
		return x, fmt.Errorf("entry: XATR value length: %w", err)
	}
	x.Value = make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, x.Value); err != nil {
			return x, fmt.Errorf("entry: XATR value: %w", err)
		}
	}
	return x, nil
}

func encodeDeltaSource(src DeltaSource) ([]byte, error) {
	var buf bytes.Buffer
	if err := putString(&buf, src.Name); err != nil {
		return nil, err
	}
	putUint64(&buf, src.Size)
	return buf.Bytes(), nil
}

func decodeDeltaSource(payload []byte) (DeltaSource, error) {
	r := bytes.NewReader(payload)
	var src DeltaSource
	var err error
	if src.Name, err = getString(r); err != nil {
		return src, fmt.Errorf("entry: DELT name: %w", err)
	}
	if src.Size, err = getUint64(r); err != nil {
		return src, fmt.Errorf("entry: DELT size: %w", err)
	}
	return src, nil
}

// writeChild is a small helper so attribute-encoding errors and the
// chunk-write error share one return path.
func writeChild(w *chunkio.Writer, id chunkio.ID, payload []byte, err error) error {
	if err != nil {
		return err
	}
	return w.WriteChunk(id, payload)
}
