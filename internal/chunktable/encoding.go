package chunktable

import (
	"encoding/binary"
	"fmt"

	"github.com/meigma/ewf/internal/codec"
	"github.com/meigma/ewf/internal/ewftype"
	"github.com/meigma/ewf/internal/section"
)

// Table section payload layout.
const (
	// TableHeaderSize is the fixed header preceding the entry array.
	TableHeaderSize = 24
	// EntrySize is the size of one table entry.
	EntrySize = 4
	// MaxEntries is the largest number of entries one table section holds.
	MaxEntries = 16375
	// MaxRelativeOffset is the largest offset from the table base an entry
	// can encode.
	MaxRelativeOffset = 1<<31 - 1

	compressedBit = 1 << 31
)

// TablePayloadSize returns the payload size of a table section with n entries.
func TablePayloadSize(n int) int {
	return TableHeaderSize + n*EntrySize + 4
}

// EncodeTable returns the payload of a table or table2 section. Entry offsets
// are stored relative to base.
func EncodeTable(entries []Location, base int64) ([]byte, error) {
	if len(entries) > MaxEntries {
		return nil, fmt.Errorf("%w: %d table entries", ewftype.ErrSizeOverflow, len(entries))
	}
	b := make([]byte, TablePayloadSize(len(entries)))
	binary.LittleEndian.PutUint32(b[0:], uint32(len(entries))) //nolint:gosec // bounded by MaxEntries
	binary.LittleEndian.PutUint64(b[8:], uint64(base))         //nolint:gosec // offsets are non-negative
	binary.LittleEndian.PutUint32(b[20:], codec.Checksum(b[:20]))

	arr := b[TableHeaderSize : TableHeaderSize+len(entries)*EntrySize]
	for i, e := range entries {
		rel := e.Offset - base
		if rel < 0 || rel > MaxRelativeOffset {
			return nil, fmt.Errorf("%w: chunk offset %d not encodable from base %d",
				ewftype.ErrSizeOverflow, e.Offset, base)
		}
		v := uint32(rel)
		if e.Compressed {
			v |= compressedBit
		}
		binary.LittleEndian.PutUint32(arr[i*EntrySize:], v)
	}
	binary.LittleEndian.PutUint32(b[len(b)-4:], codec.Checksum(arr))
	return b, nil
}

// DecodeTable parses a table payload read from rec. sectors is the sectors
// section holding the chunk data; it bounds the last entry.
func DecodeTable(payload []byte, rec, sectors section.Record, segmentNumber uint16) ([]Location, error) {
	if len(payload) < TableHeaderSize+4 {
		return nil, ewftype.AtOffset(fmt.Errorf("%w: %s payload of %d bytes",
			ewftype.ErrCorruptSection, rec.Type, len(payload)), rec.Offset)
	}
	if !codec.Verify(payload[:20], binary.LittleEndian.Uint32(payload[20:])) {
		return nil, ewftype.AtOffset(fmt.Errorf("%w: %s header checksum mismatch",
			ewftype.ErrCorruptSection, rec.Type), rec.Offset)
	}
	count := int(binary.LittleEndian.Uint32(payload[0:]))
	base := binary.LittleEndian.Uint64(payload[8:])
	if count > MaxEntries || TablePayloadSize(count) > len(payload) {
		return nil, ewftype.AtOffset(fmt.Errorf("%w: %s declares %d entries in %d bytes",
			ewftype.ErrInconsistentOffsetTable, rec.Type, count, len(payload)), rec.Offset)
	}
	arr := payload[TableHeaderSize : TableHeaderSize+count*EntrySize]
	footer := binary.LittleEndian.Uint32(payload[TableHeaderSize+count*EntrySize:])
	if !codec.Verify(arr, footer) {
		return nil, ewftype.AtOffset(fmt.Errorf("%w: %s entry checksum mismatch",
			ewftype.ErrCorruptSection, rec.Type), rec.Offset)
	}
	if base > uint64(sectors.End()) { //nolint:gosec // End is non-negative
		return nil, ewftype.AtOffset(fmt.Errorf("%w: %s base offset %d beyond sectors section",
			ewftype.ErrInconsistentOffsetTable, rec.Type, base), rec.Offset)
	}

	out := make([]Location, count)
	for i := range out {
		v := binary.LittleEndian.Uint32(arr[i*EntrySize:])
		out[i] = Location{
			Segment:    segmentNumber,
			Offset:     int64(base) + int64(v&^compressedBit), //nolint:gosec // base checked above
			Compressed: v&compressedBit != 0,
		}
	}
	for i := range out {
		end := sectors.End()
		if i+1 < len(out) {
			end = out[i+1].Offset
		}
		stored := end - out[i].Offset - TrailerSize
		if out[i].Offset < sectors.PayloadOffset() || stored < 0 || stored > MaxRelativeOffset {
			return nil, ewftype.AtOffset(fmt.Errorf("%w: %s entry %d at %d outside sectors data [%d, %d)",
				ewftype.ErrInconsistentOffsetTable, rec.Type, i, out[i].Offset,
				sectors.PayloadOffset(), sectors.End()), rec.Offset)
		}
		out[i].Size = uint32(stored) //nolint:gosec // bounded above
	}
	return out, nil
}

// Delta chunk section payload layout.
const (
	// DeltaHeaderSize precedes the stored bytes in a delta_chunk section.
	DeltaHeaderSize = 16

	deltaCompressed = 1
)

// DeltaPayloadSize returns the payload size of a delta_chunk section holding
// stored bytes of the given size.
func DeltaPayloadSize(stored int) int {
	return DeltaHeaderSize + stored + TrailerSize
}

// EncodeDeltaHeader returns the header written in front of a delta chunk.
func EncodeDeltaHeader(chunk uint64, size uint32, compressed bool) ([]byte, error) {
	if chunk > 1<<32-1 {
		return nil, fmt.Errorf("%w: delta chunk number %d", ewftype.ErrSizeOverflow, chunk)
	}
	b := make([]byte, DeltaHeaderSize)
	binary.LittleEndian.PutUint32(b[0:], uint32(chunk))
	binary.LittleEndian.PutUint32(b[4:], size)
	if compressed {
		binary.LittleEndian.PutUint32(b[8:], deltaCompressed)
	}
	binary.LittleEndian.PutUint32(b[12:], codec.Checksum(b[:12]))
	return b, nil
}

// DecodeDeltaHeader parses the header of the delta_chunk section rec and
// returns the chunk it overrides with its location.
func DecodeDeltaHeader(b []byte, rec section.Record, segmentNumber uint16) (DeltaEntry, error) {
	if len(b) < DeltaHeaderSize {
		return DeltaEntry{}, ewftype.AtOffset(fmt.Errorf("%w: short delta chunk header",
			ewftype.ErrCorruptSection), rec.Offset)
	}
	if !codec.Verify(b[:12], binary.LittleEndian.Uint32(b[12:])) {
		return DeltaEntry{}, ewftype.AtOffset(fmt.Errorf("%w: delta chunk header checksum mismatch",
			ewftype.ErrCorruptSection), rec.Offset)
	}
	size := binary.LittleEndian.Uint32(b[4:])
	if rec.PayloadSize() != uint64(DeltaPayloadSize(int(size))) {
		return DeltaEntry{}, ewftype.AtOffset(fmt.Errorf("%w: delta chunk of %d bytes in %d byte section",
			ewftype.ErrInconsistentOffsetTable, size, rec.Size), rec.Offset)
	}
	return DeltaEntry{
		Chunk: uint64(binary.LittleEndian.Uint32(b[0:])),
		Location: Location{
			Segment:    segmentNumber,
			Delta:      true,
			Offset:     rec.PayloadOffset() + DeltaHeaderSize,
			Size:       size,
			Compressed: binary.LittleEndian.Uint32(b[8:])&deltaCompressed != 0,
		},
	}, nil
}
