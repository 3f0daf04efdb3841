package segment

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/meigma/ewf/internal/ewftype"
)

// FileHeaderSize is the size of the signature block at the start of every
// segment file. The first section descriptor follows it.
const FileHeaderSize = 13

var (
	signatureSegment = [8]byte{'E', 'V', 'F', 0x09, 0x0d, 0x0a, 0xff, 0x00}
	signatureDelta   = [8]byte{'D', 'V', 'F', 0x09, 0x0d, 0x0a, 0xff, 0x00}
)

// FileHeader is the decoded signature block.
type FileHeader struct {
	Kind   ewftype.Kind
	Number uint16
}

// Encode returns the 13-byte signature block.
func (h FileHeader) Encode() []byte {
	b := make([]byte, FileHeaderSize)
	if h.Kind == ewftype.KindDelta {
		copy(b, signatureDelta[:])
	} else {
		copy(b, signatureSegment[:])
	}
	b[8] = 1
	binary.LittleEndian.PutUint16(b[9:], h.Number)
	return b
}

// DecodeFileHeader parses a signature block.
func DecodeFileHeader(b []byte) (FileHeader, error) {
	if len(b) < FileHeaderSize {
		return FileHeader{}, fmt.Errorf("%w: file shorter than signature", ewftype.ErrNotSegmentFile)
	}
	var h FileHeader
	switch {
	case bytes.Equal(b[:8], signatureSegment[:]):
		h.Kind = ewftype.KindSegment
	case bytes.Equal(b[:8], signatureDelta[:]):
		h.Kind = ewftype.KindDelta
	default:
		return FileHeader{}, fmt.Errorf("%w: bad signature % x", ewftype.ErrNotSegmentFile, b[:8])
	}
	if b[8] != 1 {
		return FileHeader{}, fmt.Errorf("%w: fields start marker %d", ewftype.ErrNotSegmentFile, b[8])
	}
	h.Number = binary.LittleEndian.Uint16(b[9:])
	if h.Number == 0 {
		return FileHeader{}, fmt.Errorf("%w: segment number 0", ewftype.ErrMalformedSegment)
	}
	return h, nil
}

// ReadFileHeader reads and parses the signature block of r.
func ReadFileHeader(r io.ReaderAt) (FileHeader, error) {
	var buf [FileHeaderSize]byte
	n, err := r.ReadAt(buf[:], 0)
	if n < FileHeaderSize {
		if err != nil && err != io.EOF {
			return FileHeader{}, ewftype.IOError("read file header", err)
		}
		return FileHeader{}, fmt.Errorf("%w: file shorter than signature", ewftype.ErrNotSegmentFile)
	}
	return DecodeFileHeader(buf[:])
}
