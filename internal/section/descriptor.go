// Package section reads and writes EWF section descriptors and walks the
// forward-linked section list of a segment file.
package section

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/meigma/ewf/internal/codec"
	"github.com/meigma/ewf/internal/ewftype"
)

// Descriptor layout.
const (
	// DescriptorSize is the fixed size of a section descriptor.
	DescriptorSize = 76

	// MaxPayload bounds sections that are read into memory whole. Sector
	// runs are never read this way.
	MaxPayload = 64 << 20

	typeSize       = 16
	nextOffset     = 16
	sizeOffset     = 24
	checksumOffset = 72
)

// Record is one decoded section descriptor.
type Record struct {
	// Type is the section type tag.
	Type Type
	// Offset is the absolute offset of the descriptor in its file.
	Offset int64
	// Next is the absolute offset of the following descriptor. Terminal
	// sections point at themselves or hold 0.
	Next int64
	// Size is the section size including the descriptor.
	Size uint64
	// Checksum is the stored descriptor checksum.
	Checksum uint32
}

// End returns the offset just past the section.
func (r Record) End() int64 {
	return r.Offset + int64(r.Size) //nolint:gosec // Size is bounded by file size on decode
}

// PayloadOffset returns the offset of the first byte after the descriptor.
func (r Record) PayloadOffset() int64 {
	return r.Offset + DescriptorSize
}

// PayloadSize returns the number of bytes following the descriptor.
func (r Record) PayloadSize() uint64 {
	if r.Size < DescriptorSize {
		return 0
	}
	return r.Size - DescriptorSize
}

// Encode writes the descriptor for a section of type t into dst and returns
// dst. dst must hold DescriptorSize bytes.
func Encode(dst []byte, t Type, next int64, size uint64) ([]byte, error) {
	if len(dst) < DescriptorSize {
		return nil, fmt.Errorf("%w: descriptor buffer too small", ewftype.ErrInvalidArgument)
	}
	if len(t) == 0 || len(t) > typeSize {
		return nil, fmt.Errorf("%w: section type %q", ewftype.ErrInvalidArgument, t)
	}
	if next < 0 {
		return nil, fmt.Errorf("%w: negative next offset", ewftype.ErrInvalidArgument)
	}
	dst = dst[:DescriptorSize]
	clear(dst)
	copy(dst[:typeSize], t)
	binary.LittleEndian.PutUint64(dst[nextOffset:], uint64(next))
	binary.LittleEndian.PutUint64(dst[sizeOffset:], size)
	binary.LittleEndian.PutUint32(dst[checksumOffset:], codec.Checksum(dst[:checksumOffset]))
	return dst, nil
}

// Decode parses a descriptor that was read from offset.
func Decode(b []byte, offset int64) (Record, error) {
	if len(b) < DescriptorSize {
		return Record{}, ewftype.AtOffset(ewftype.ErrTruncatedFile, offset)
	}
	stored := binary.LittleEndian.Uint32(b[checksumOffset:])
	if !codec.Verify(b[:checksumOffset], stored) {
		return Record{}, ewftype.AtOffset(
			fmt.Errorf("%w: descriptor checksum mismatch", ewftype.ErrCorruptSection), offset)
	}
	name := b[:typeSize]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	next := binary.LittleEndian.Uint64(b[nextOffset:])
	if next > 1<<62 {
		return Record{}, ewftype.AtOffset(
			fmt.Errorf("%w: next offset %d", ewftype.ErrMalformedSegment, next), offset)
	}
	return Record{
		Type:     Type(name),
		Offset:   offset,
		Next:     int64(next),
		Size:     binary.LittleEndian.Uint64(b[sizeOffset:]),
		Checksum: stored,
	}, nil
}

// Read reads and validates the descriptor at offset. fileSize bounds both the
// descriptor and the section size it declares.
func Read(r io.ReaderAt, offset, fileSize int64) (Record, error) {
	if offset < 0 || offset+DescriptorSize > fileSize {
		return Record{}, ewftype.AtOffset(
			fmt.Errorf("%w: descriptor needs %d bytes", ewftype.ErrTruncatedFile, DescriptorSize), offset)
	}
	var buf [DescriptorSize]byte
	if _, err := r.ReadAt(buf[:], offset); err != nil {
		return Record{}, ewftype.AtOffset(ewftype.IOError("read section descriptor", err), offset)
	}
	rec, err := Decode(buf[:], offset)
	if err != nil {
		return Record{}, err
	}
	if rec.Size < DescriptorSize {
		if !rec.Type.Terminal() || rec.Size != 0 {
			return Record{}, ewftype.AtOffset(
				fmt.Errorf("%w: section size %d smaller than descriptor", ewftype.ErrMalformedSegment, rec.Size), offset)
		}
		rec.Size = DescriptorSize
	}
	if rec.Size > uint64(fileSize-offset) { //nolint:gosec // offset <= fileSize checked above
		return Record{}, ewftype.AtOffset(
			fmt.Errorf("%w: %s section declares %d bytes, %d available",
				ewftype.ErrTruncatedFile, rec.Type, rec.Size, fileSize-offset), offset)
	}
	return rec, nil
}

// WriteHeader writes a descriptor at offset. size and next may be
// provisional and rewritten later by a correction pass.
func WriteHeader(w io.WriterAt, offset int64, t Type, next int64, size uint64) (int, error) {
	var buf [DescriptorSize]byte
	if _, err := Encode(buf[:], t, next, size); err != nil {
		return 0, err
	}
	n, err := w.WriteAt(buf[:], offset)
	if err != nil {
		return n, ewftype.AtOffset(ewftype.IOError("write section descriptor", err), offset)
	}
	return n, nil
}

// WriteSection writes a complete section (descriptor plus payload) at offset,
// linking it to the byte that follows it. It returns the offset after the
// section.
func WriteSection(w io.WriterAt, offset int64, t Type, payload []byte) (int64, error) {
	size := uint64(DescriptorSize + len(payload))
	end := offset + int64(size) //nolint:gosec // payload lengths are bounded by segment size
	if _, err := WriteHeader(w, offset, t, end, size); err != nil {
		return 0, err
	}
	if len(payload) > 0 {
		if _, err := w.WriteAt(payload, offset+DescriptorSize); err != nil {
			return 0, ewftype.AtOffset(ewftype.IOError("write section payload", err), offset)
		}
	}
	return end, nil
}

// WriteTerminal writes a self-referential done or next section at offset and
// returns the offset after it.
func WriteTerminal(w io.WriterAt, offset int64, t Type) (int64, error) {
	if !t.Terminal() {
		return 0, fmt.Errorf("%w: %s is not a terminal section", ewftype.ErrInvalidArgument, t)
	}
	if _, err := WriteHeader(w, offset, t, offset, DescriptorSize); err != nil {
		return 0, err
	}
	return offset + DescriptorSize, nil
}

// ReadPayload reads the bytes following the descriptor of rec.
func ReadPayload(r io.ReaderAt, rec Record) ([]byte, error) {
	if rec.PayloadSize() > MaxPayload {
		return nil, ewftype.AtOffset(
			fmt.Errorf("%w: %s payload of %d bytes", ewftype.ErrMalformedSegment, rec.Type, rec.PayloadSize()), rec.Offset)
	}
	buf := make([]byte, rec.PayloadSize())
	if len(buf) == 0 {
		return buf, nil
	}
	if _, err := r.ReadAt(buf, rec.PayloadOffset()); err != nil {
		return nil, ewftype.AtOffset(ewftype.IOError("read "+string(rec.Type)+" payload", err), rec.PayloadOffset())
	}
	return buf, nil
}
