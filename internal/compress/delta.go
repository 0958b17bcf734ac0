package compress

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
)

// opType distinguishes the two operations an XDELTA patch is built from:
// copy a run of bytes from the delta source, or emit literal bytes that
// are not present (unmodified) in the source.
type opType byte

const (
	opCopy opType = iota
	opLiteral
)

const deltaBlockSize = 64 * 1024

// blockSignature is the weak+strong checksum pair for one fixed-size block
// of the delta source, the unit matched against the target's rolling
// window.
type blockSignature struct {
	offset     int64
	size       int
	weakHash   uint64
	strongHash [32]byte
}

// DeltaEncode writes an XDELTA patch transforming source into a stream
// matching target, modeled directly on the rsync-style rolling-checksum
// design of the freightliner example's DeltaSync: weak hash via xxhash for
// cheap block-boundary matching, strong hash via SHA-256 to confirm a real
// match before emitting a copy operation.
func DeltaEncode(source io.ReaderAt, sourceSize int64, target io.Reader, out io.Writer) error {
	sigs, err := signSource(source, sourceSize)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFailed, err)
	}
	sigMap := make(map[uint64][]blockSignature, len(sigs))
	for _, s := range sigs {
		sigMap[s.weakHash] = append(sigMap[s.weakHash], s)
	}

	block := make([]byte, deltaBlockSize)
	var literal []byte
	for {
		n, readErr := io.ReadFull(target, block)
		if n > 0 {
			chunk := block[:n]
			if match, ok := matchBlock(chunk, sigMap); ok {
				if len(literal) > 0 {
					if err := writeOp(out, opLiteral, 0, uint32(len(literal)), literal); err != nil {
						return err
					}
					literal = nil
				}
				if err := writeOp(out, opCopy, match.offset, uint32(match.size), nil); err != nil {
					return err
				}
			} else {
				literal = append(literal, chunk...)
			}
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			return fmt.Errorf("%w: %v", ErrFailed, readErr)
		}
	}
	if len(literal) > 0 {
		if err := writeOp(out, opLiteral, 0, uint32(len(literal)), literal); err != nil {
			return err
		}
	}
	return nil
}

// DeltaDecode reconstructs a target stream from an XDELTA patch and its
// source.
func DeltaDecode(source io.ReaderAt, patch io.Reader, out io.Writer) error {
	for {
		var op byte
		if err := binary.Read(patch, binary.BigEndian, &op); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("%w: %v", ErrFailed, err)
		}
		var size uint32
		if err := binary.Read(patch, binary.BigEndian, &size); err != nil {
			return fmt.Errorf("%w: %v", ErrFailed, err)
		}
		switch opType(op) {
		case opCopy:
			var offset int64
			if err := binary.Read(patch, binary.BigEndian, &offset); err != nil {
				return fmt.Errorf("%w: %v", ErrFailed, err)
			}
			buf := make([]byte, size)
			if _, err := source.ReadAt(buf, offset); err != nil && err != io.EOF {
				return fmt.Errorf("%w: %v", ErrFailed, err)
			}
			if _, err := out.Write(buf); err != nil {
				return fmt.Errorf("%w: %v", ErrFailed, err)
			}
		case opLiteral:
			if _, err := io.CopyN(out, patch, int64(size)); err != nil {
				return fmt.Errorf("%w: %v", ErrFailed, err)
			}
		default:
			return fmt.Errorf("%w: unknown delta opcode %d", ErrFailed, op)
		}
	}
}

func signSource(source io.ReaderAt, size int64) ([]blockSignature, error) {
	var sigs []blockSignature
	buf := make([]byte, deltaBlockSize)
	for offset := int64(0); offset < size; offset += deltaBlockSize {
		n := deltaBlockSize
		if remaining := size - offset; remaining < int64(n) {
			n = int(remaining)
		}
		if _, err := source.ReadAt(buf[:n], offset); err != nil && err != io.EOF {
			return nil, err
		}
		sigs = append(sigs, blockSignature{
			offset:     offset,
			size:       n,
			weakHash:   xxhash.Sum64(buf[:n]),
			strongHash: sha256.Sum256(buf[:n]),
		})
	}
	return sigs, nil
}

func matchBlock(chunk []byte, sigMap map[uint64][]blockSignature) (blockSignature, bool) {
	weak := xxhash.Sum64(chunk)
	candidates, ok := sigMap[weak]
	if !ok {
		return blockSignature{}, false
	}
	strong := sha256.Sum256(chunk)
	for _, c := range candidates {
		if c.size == len(chunk) && c.strongHash == strong {
			return c, true
		}
	}
	return blockSignature{}, false
}

func writeOp(out io.Writer, op opType, offset int64, size uint32, literal []byte) error {
	if err := binary.Write(out, binary.BigEndian, byte(op)); err != nil {
		return fmt.Errorf("%w: %v", ErrFailed, err)
	}
	if err := binary.Write(out, binary.BigEndian, size); err != nil {
		return fmt.Errorf("%w: %v", ErrFailed, err)
	}
	switch op {
	case opCopy:
		if err := binary.Write(out, binary.BigEndian, offset); err != nil {
			return fmt.Errorf("%w: %v", ErrFailed, err)
		}
	case opLiteral:
		if _, err := out.Write(literal); err != nil {
			return fmt.Errorf("%w: %v", ErrFailed, err)
		}
	}
	return nil
}
