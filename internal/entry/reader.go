package entry

import (
	"fmt"
	"io"

	"github.com/rtanaka/barchive/internal/chunkio"
)

// Fragment is one decoded DATA or BLK child: its plaintext and the
// position it occupies in the entry's logical byte range. For a BLK
// (image block run) child, Offset/Length are derived as
// FirstBlock*BlockSize / BlockCount*BlockSize so image and file fragments
// can be reasoned about uniformly; BlockSize/FirstBlock/BlockCount are
// zero for DATA fragments.
type Fragment struct {
	Offset uint64
	Length uint64
	Data   []byte

	BlockSize  uint32
	FirstBlock uint64
	BlockCount uint64
}

// Reader decodes one archive entry's children: the mandatory ENTR, the
// kind-specific DEST/HNAM, any XATR/DELT, and the DATA/BLK fragment
// sequence — the mirror of Writer (spec §4.D "Reader is the mirror").
type Reader struct {
	sub       *chunkio.Reader
	kind      Kind
	transform Transform

	attrs         Attributes
	target        string
	hardLinkNames []string
	xattrs        []XAttr
	deltaSrc      DeltaSource
	hasDelta      bool

	pendingFragmentID  chunkio.ID
	havePendingFragment bool
	eof                bool
}

// OpenEntry decodes kind's header children from sub — the Reader returned
// by the archive's chunkio.Reader.Sub() immediately after reading this
// entry root's header — stopping at the first DATA/BLK child (or at the
// end of sub's budget, for entries with no fragments).
func OpenEntry(kind Kind, sub *chunkio.Reader, transform Transform) (*Reader, error) {
	r := &Reader{sub: sub, kind: kind, transform: transform}
	haveEntr := false

	for {
		hdr, err := sub.ReadHeader()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("entry: read %s child header: %w", kind, err)
		}

		switch hdr.ID {
		case chunkio.IDEntry:
			payload, err := sub.ReadPayload(int(hdr.Length))
			if err != nil {
				return nil, fmt.Errorf("entry: read ENTR: %w", err)
			}
			attrs, err := decodeEntryAttrs(payload)
			if err != nil {
				return nil, err
			}
			r.attrs = attrs
			haveEntr = true

		case chunkio.IDDest:
			payload, err := sub.ReadPayload(int(hdr.Length))
			if err != nil {
				return nil, fmt.Errorf("entry: read DEST: %w", err)
			}
			target, err := decodeDest(payload)
			if err != nil {
				return nil, err
			}
			r.target = target

		case chunkio.IDHardName:
			payload, err := sub.ReadPayload(int(hdr.Length))
			if err != nil {
				return nil, fmt.Errorf("entry: read HNAM: %w", err)
			}
			name, err := decodeHardName(payload)
			if err != nil {
				return nil, err
			}
			r.hardLinkNames = append(r.hardLinkNames, name)

		case chunkio.IDXAttr:
			payload, err := sub.ReadPayload(int(hdr.Length))
			if err != nil {
				return nil, fmt.Errorf("entry: read XATR: %w", err)
			}
			x, err := decodeXAttr(payload)
			if err != nil {
				return nil, err
			}
			r.xattrs = append(r.xattrs, x)

		case chunkio.IDDelta:
			payload, err := sub.ReadPayload(int(hdr.Length))
			if err != nil {
				return nil, fmt.Errorf("entry: read DELT: %w", err)
			}
			src, err := decodeDeltaSource(payload)
			if err != nil {
				return nil, err
			}
			r.deltaSrc = src
			r.hasDelta = true

		case chunkio.IDData, chunkio.IDBlock:
			if !haveEntr {
				return nil, fmt.Errorf("entry: %s root missing mandatory ENTR child", kind)
			}
			r.pendingFragmentID = hdr.ID
			r.havePendingFragment = true
			return r, nil

		default:
			// Unknown child: skip by length alone (spec §4.A forward
			// compatibility).
			if err := sub.Skip(); err != nil {
				return nil, fmt.Errorf("entry: skip unknown child %q: %w", hdr.ID, err)
			}
		}
	}

	if !haveEntr {
		return nil, fmt.Errorf("entry: %s root missing mandatory ENTR child", kind)
	}
	r.eof = true
	return r, nil
}

// Kind returns which root chunk this entry was opened as.
func (r *Reader) Kind() Kind { return r.kind }

// Attrs returns the entry's ENTR fields.
func (r *Reader) Attrs() Attributes { return r.attrs }

// Target returns the DEST value for a LINK entry ("" otherwise).
func (r *Reader) Target() string { return r.target }

// HardLinkNames returns the HNAM values for a HLNK entry.
func (r *Reader) HardLinkNames() []string { return r.hardLinkNames }

// XAttrs returns every XATR child attached to the entry.
func (r *Reader) XAttrs() []XAttr { return r.xattrs }

// DeltaSource returns the entry's DELT reference and whether one was
// present.
func (r *Reader) DeltaSource() (DeltaSource, bool) { return r.deltaSrc, r.hasDelta }

// Next decodes the next fragment child, or returns io.EOF once the entry
// root's children are exhausted.
func (r *Reader) Next() (*Fragment, error) {
	var id chunkio.ID
	if r.havePendingFragment {
		id = r.pendingFragmentID
		r.havePendingFragment = false
	} else {
		if r.eof {
			return nil, io.EOF
		}
		hdr, err := r.sub.ReadHeader()
		if err != nil {
			if err == io.EOF {
				r.eof = true
				return nil, io.EOF
			}
			return nil, fmt.Errorf("entry: read fragment header: %w", err)
		}
		switch hdr.ID {
		case chunkio.IDData, chunkio.IDBlock:
			id = hdr.ID
		default:
			if err := r.sub.Skip(); err != nil {
				return nil, fmt.Errorf("entry: skip unknown trailing child %q: %w", hdr.ID, err)
			}
			return r.Next()
		}
	}

	remaining := int(r.sub.Remaining())
	switch id {
	case chunkio.IDData:
		return r.readDataFragment(remaining)
	case chunkio.IDBlock:
		return r.readBlockFragment(remaining)
	default:
		return nil, fmt.Errorf("entry: unexpected fragment id %q", id)
	}
}

const fragmentFixedHeaderSize = 8 + 8   // offset + declared length
const blockFixedHeaderSize = 4 + 8 + 8 // block size + first block + block count

func (r *Reader) readDataFragment(remaining int) (*Fragment, error) {
	offset, err := readUint64Payload(r.sub)
	if err != nil {
		return nil, fmt.Errorf("entry: DATA offset: %w", err)
	}
	length, err := readUint64Payload(r.sub)
	if err != nil {
		return nil, fmt.Errorf("entry: DATA declared length: %w", err)
	}
	sealedLen := remaining - fragmentFixedHeaderSize
	if sealedLen < 0 {
		return nil, fmt.Errorf("entry: DATA payload shorter than its fixed header")
	}
	sealed, err := r.sub.ReadPayload(sealedLen)
	if err != nil {
		return nil, fmt.Errorf("entry: DATA payload: %w", err)
	}
	plaintext, err := openFragment(r.transform, sealed)
	if err != nil {
		return nil, fmt.Errorf("entry: DATA at offset %d: %w", offset, err)
	}
	return &Fragment{Offset: offset, Length: length, Data: plaintext}, nil
}

func (r *Reader) readBlockFragment(remaining int) (*Fragment, error) {
	blockSize, err := readUint32Payload(r.sub)
	if err != nil {
		return nil, fmt.Errorf("entry: BLK block size: %w", err)
	}
	firstBlock, err := readUint64Payload(r.sub)
	if err != nil {
		return nil, fmt.Errorf("entry: BLK first block: %w", err)
	}
	blockCount, err := readUint64Payload(r.sub)
	if err != nil {
		return nil, fmt.Errorf("entry: BLK block count: %w", err)
	}
	sealedLen := remaining - blockFixedHeaderSize
	if sealedLen < 0 {
		return nil, fmt.Errorf("entry: BLK payload shorter than its fixed header")
	}
	sealed, err := r.sub.ReadPayload(sealedLen)
	if err != nil {
		return nil, fmt.Errorf("entry: BLK payload: %w", err)
	}
	plaintext, err := openFragment(r.transform, sealed)
	if err != nil {
		return nil, fmt.Errorf("entry: BLK at block %d: %w", firstBlock, err)
	}
	return &Fragment{
		Offset:     firstBlock * uint64(blockSize),
		Length:     blockCount * uint64(blockSize),
		Data:       plaintext,
		BlockSize:  blockSize,
		FirstBlock: firstBlock,
		BlockCount: blockCount,
	}, nil
}

// ReadAll drains every remaining fragment. With aggregate=false it returns
// them individually in archive order. With aggregate=true it additionally
// reassembles them into one contiguous plaintext sized to Attrs().Size,
// zero-filling any sparse gaps — spec §4.D: "a sequential byte stream per
// fragment or an aggregated stream per entry ... both MUST be available".
func (r *Reader) ReadAll(aggregate bool) (fragments []*Fragment, whole []byte, err error) {
	for {
		f, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		fragments = append(fragments, f)
	}
	if !aggregate {
		return fragments, nil, nil
	}
	whole = make([]byte, r.attrs.Size)
	for _, f := range fragments {
		end := f.Offset + uint64(len(f.Data))
		if end > uint64(len(whole)) {
			grown := make([]byte, end)
			copy(grown, whole)
			whole = grown
		}
		copy(whole[f.Offset:], f.Data)
	}
	return fragments, whole, nil
}

func readUint64Payload(sub *chunkio.Reader) (uint64, error) {
	b, err := sub.ReadPayload(8)
	if err != nil {
		return 0, err
	}
	return beUint64(b), nil
}

func readUint32Payload(sub *chunkio.Reader) (uint32, error) {
	b, err := sub.ReadPayload(4)
	if err != nil {
		return 0, err
	}
	return beUint32(b), nil
}
