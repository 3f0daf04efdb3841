package metadata

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/meigma/ewf/internal/codec"
	"github.com/meigma/ewf/internal/ewftype"
)

// Volume payload sizes.
const (
	// VolumeSize is the EnCase volume, disk, and data payload.
	VolumeSize = 1052
	// VolumeSizeSMART is the legacy SMART volume payload.
	VolumeSizeSMART = 94
)

// MediaType describes the acquired device.
type MediaType uint8

// Media types.
const (
	MediaRemovable MediaType = 0x00
	MediaFixed     MediaType = 0x01
	MediaOptical   MediaType = 0x03
	MediaLogical   MediaType = 0x0e
	MediaMemory    MediaType = 0x10
)

func (m MediaType) String() string {
	switch m {
	case MediaRemovable:
		return "removable"
	case MediaFixed:
		return "fixed"
	case MediaOptical:
		return "optical"
	case MediaLogical:
		return "logical"
	case MediaMemory:
		return "memory"
	default:
		return fmt.Sprintf("unknown(%#x)", uint8(m))
	}
}

// ParseMediaType parses the names returned by MediaType.String.
func ParseMediaType(name string) (MediaType, error) {
	for _, m := range []MediaType{MediaRemovable, MediaFixed, MediaOptical, MediaLogical, MediaMemory} {
		if m.String() == name {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown media type %q", ewftype.ErrInvalidArgument, name)
}

// Volume describes the geometry of the acquired media.
type Volume struct {
	MediaType        MediaType
	ChunkCount       uint32
	SectorsPerChunk  uint32
	BytesPerSector   uint32
	SectorCount      uint64
	Cylinders        uint32
	Heads            uint32
	Sectors          uint32
	MediaFlags       uint8
	CompressionLevel uint8
	ErrorGranularity uint32
	SetIdentifier    uuid.UUID
}

// ChunkSize returns the logical size of a chunk in bytes.
func (v *Volume) ChunkSize() uint32 {
	return v.SectorsPerChunk * v.BytesPerSector
}

// MediaSize returns the logical size of the media in bytes.
func (v *Volume) MediaSize() uint64 {
	return v.SectorCount * uint64(v.BytesPerSector)
}

type volumeData struct {
	MediaType        uint8
	Reserved1        [3]byte
	ChunkCount       uint32
	SectorsPerChunk  uint32
	BytesPerSector   uint32
	SectorCount      uint64
	Cylinders        uint32
	Heads            uint32
	Sectors          uint32
	MediaFlags       uint8
	Unknown1         [3]byte
	PalmStartSector  uint32
	Unknown2         uint32
	SmartStartSector uint32
	CompressionLevel uint8
	Unknown3         [3]byte
	ErrorGranularity uint32
	Unknown4         uint32
	SetIdentifier    [16]byte
	Pad              [963]byte
	Signature        [5]byte
	Checksum         uint32
}

type volumeDataSMART struct {
	Reserved        uint32
	ChunkCount      uint32
	SectorsPerChunk uint32
	BytesPerSector  uint32
	SectorCount     uint32
	Reserved1       [20]byte
	Pad             [45]byte
	Signature       [5]byte
	Checksum        uint32
}

var smartSignature = [5]byte{'S', 'M', 'A', 'R', 'T'}

// MarshalBinary returns the 1052-byte EnCase payload.
func (v *Volume) MarshalBinary() ([]byte, error) {
	d := volumeData{
		MediaType:        uint8(v.MediaType),
		ChunkCount:       v.ChunkCount,
		SectorsPerChunk:  v.SectorsPerChunk,
		BytesPerSector:   v.BytesPerSector,
		SectorCount:      v.SectorCount,
		Cylinders:        v.Cylinders,
		Heads:            v.Heads,
		Sectors:          v.Sectors,
		MediaFlags:       v.MediaFlags,
		CompressionLevel: v.CompressionLevel,
		ErrorGranularity: v.ErrorGranularity,
		SetIdentifier:    v.SetIdentifier,
	}
	return sealPayload(&d, VolumeSize)
}

// MarshalSMART returns the 94-byte legacy payload.
func (v *Volume) MarshalSMART() ([]byte, error) {
	if v.SectorCount > 1<<32-1 {
		return nil, fmt.Errorf("%w: %d sectors in a SMART volume", ewftype.ErrSizeOverflow, v.SectorCount)
	}
	d := volumeDataSMART{
		Reserved:        1,
		ChunkCount:      v.ChunkCount,
		SectorsPerChunk: v.SectorsPerChunk,
		BytesPerSector:  v.BytesPerSector,
		SectorCount:     uint32(v.SectorCount),
		Signature:       smartSignature,
	}
	return sealPayload(&d, VolumeSizeSMART)
}

// UnmarshalBinary parses either payload layout, chosen by length.
func (v *Volume) UnmarshalBinary(b []byte) error {
	if err := checkPayload(b, "volume"); err != nil {
		return err
	}
	switch len(b) {
	case VolumeSize:
		var d volumeData
		if err := binary.Read(bytes.NewReader(b), binary.LittleEndian, &d); err != nil {
			return fmt.Errorf("%w: volume: %v", ewftype.ErrCorruptSection, err)
		}
		*v = Volume{
			MediaType:        MediaType(d.MediaType),
			ChunkCount:       d.ChunkCount,
			SectorsPerChunk:  d.SectorsPerChunk,
			BytesPerSector:   d.BytesPerSector,
			SectorCount:      d.SectorCount,
			Cylinders:        d.Cylinders,
			Heads:            d.Heads,
			Sectors:          d.Sectors,
			MediaFlags:       d.MediaFlags,
			CompressionLevel: d.CompressionLevel,
			ErrorGranularity: d.ErrorGranularity,
			SetIdentifier:    d.SetIdentifier,
		}
	case VolumeSizeSMART:
		var d volumeDataSMART
		if err := binary.Read(bytes.NewReader(b), binary.LittleEndian, &d); err != nil {
			return fmt.Errorf("%w: volume: %v", ewftype.ErrCorruptSection, err)
		}
		*v = Volume{
			MediaType:       MediaFixed,
			ChunkCount:      d.ChunkCount,
			SectorsPerChunk: d.SectorsPerChunk,
			BytesPerSector:  d.BytesPerSector,
			SectorCount:     uint64(d.SectorCount),
		}
	default:
		return fmt.Errorf("%w: volume payload of %d bytes", ewftype.ErrMalformedSegment, len(b))
	}
	if v.SectorsPerChunk == 0 || v.BytesPerSector == 0 {
		return fmt.Errorf("%w: volume declares empty chunks", ewftype.ErrMalformedSegment)
	}
	if size := uint64(v.SectorsPerChunk) * uint64(v.BytesPerSector); size > math.MaxUint32 {
		return fmt.Errorf("%w: volume chunk size %d x %d overflows", ewftype.ErrMalformedSegment,
			v.SectorsPerChunk, v.BytesPerSector)
	}
	return nil
}

// sealPayload serializes a fixed layout struct whose last field is the
// checksum and fills that checksum in.
func sealPayload(data any, size int) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(size)
	if err := binary.Write(&buf, binary.LittleEndian, data); err != nil {
		return nil, fmt.Errorf("metadata: encode: %w", err)
	}
	b := buf.Bytes()
	if len(b) != size {
		return nil, fmt.Errorf("metadata: encoded %d bytes, layout is %d", len(b), size)
	}
	binary.LittleEndian.PutUint32(b[size-4:], codec.Checksum(b[:size-4]))
	return b, nil
}

// checkPayload verifies the trailing checksum of a fixed layout payload.
func checkPayload(b []byte, name string) error {
	if len(b) < 4 {
		return fmt.Errorf("%w: %s payload of %d bytes", ewftype.ErrCorruptSection, name, len(b))
	}
	n := len(b) - 4
	if !codec.Verify(b[:n], binary.LittleEndian.Uint32(b[n:])) {
		return fmt.Errorf("%w: %s checksum mismatch", ewftype.ErrCorruptSection, name)
	}
	return nil
}
