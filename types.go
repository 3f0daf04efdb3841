package ewf

import (
	"github.com/meigma/ewf/internal/codec"
	"github.com/meigma/ewf/internal/ewftype"
	"github.com/meigma/ewf/internal/metadata"
)

// Format identifies the on-disk flavor of an image.
type Format = ewftype.Format

// Formats.
const (
	// FormatEnCase writes E01-style segments.
	FormatEnCase = ewftype.FormatEnCase
	// FormatSMART writes legacy s01-style segments.
	FormatSMART = ewftype.FormatSMART
)

// ParseFormat parses "encase" or "smart".
func ParseFormat(name string) (Format, error) {
	return ewftype.ParseFormat(name)
}

// Compression selects how hard chunks are compressed.
type Compression = codec.Level

// Compression levels.
const (
	CompressionNone = codec.LevelNone
	CompressionFast = codec.LevelFast
	CompressionBest = codec.LevelBest
)

// ParseCompression parses "none", "fast", or "best".
func ParseCompression(name string) (Compression, error) {
	return codec.ParseLevel(name)
}

type (
	// Header is the case information stored in header and header2 sections.
	Header = metadata.Header

	// Volume describes the geometry of the acquired media.
	Volume = metadata.Volume

	// MediaType describes the acquired device.
	MediaType = metadata.MediaType

	// Hashes holds the MD5 and SHA1 of the logical media stream.
	Hashes = metadata.Hashes
)

// Media types.
const (
	MediaRemovable = metadata.MediaRemovable
	MediaFixed     = metadata.MediaFixed
	MediaOptical   = metadata.MediaOptical
	MediaLogical   = metadata.MediaLogical
	MediaMemory    = metadata.MediaMemory
)

// ParseMediaType parses "removable", "fixed", "optical", "logical", or
// "memory".
func ParseMediaType(name string) (MediaType, error) {
	return metadata.ParseMediaType(name)
}

// ChunkLocation is where a chunk is stored.
type ChunkLocation struct {
	// Segment is the segment or delta segment number.
	Segment uint16
	// Delta is set when the chunk was rewritten into a delta segment.
	Delta bool
	// Path is the file holding the chunk.
	Path string
	// Offset is the byte offset of the stored chunk data in Path.
	Offset int64
	// StoredSize is the number of stored bytes, excluding the checksum.
	StoredSize uint32
	// Compressed is set when the stored bytes are zlib data.
	Compressed bool
	// Verified is set once the chunk checksum has been checked.
	Verified bool
}
