package ewf

import (
	"log/slog"

	"github.com/google/uuid"
)

// Defaults used when no option overrides them.
const (
	// DefaultMaxSegmentSize is the segment file size limit.
	DefaultMaxSegmentSize int64 = 1500 << 20

	// MinSegmentSize is the smallest accepted segment file size limit.
	MinSegmentSize int64 = 16 << 10

	// DefaultSectorsPerChunk and DefaultBytesPerSector give 32 KiB chunks.
	DefaultSectorsPerChunk uint32 = 64
	DefaultBytesPerSector  uint32 = 512

	// MaxChunkSize bounds the logical chunk size.
	MaxChunkSize = 64 << 20

	// DefaultCacheBytes is the decoded chunk cache budget of an Image.
	DefaultCacheBytes int64 = 8 << 20
)

// writerConfig holds configuration for image creation.
type writerConfig struct {
	maxSegmentSize  int64
	maxSegments     uint16
	format          Format
	sectorsPerChunk uint32
	bytesPerSector  uint32
	compression     Compression
	header          Header
	mediaType       MediaType
	mediaSize       uint64
	setID           uuid.UUID
	logger          *slog.Logger
	progress        ProgressFunc
}

// CreateOption configures image creation.
type CreateOption func(*writerConfig)

// CreateWithMaxSegmentSize limits the size of each segment file.
// Zero uses DefaultMaxSegmentSize.
func CreateWithMaxSegmentSize(n int64) CreateOption {
	return func(cfg *writerConfig) {
		cfg.maxSegmentSize = n
	}
}

// CreateWithMaxSegments limits how many segment files the image may span.
// Zero uses the capacity of the default naming scheme of the format.
func CreateWithMaxSegments(n uint16) CreateOption {
	return func(cfg *writerConfig) {
		cfg.maxSegments = n
	}
}

// CreateWithFormat selects the segment flavor. The default is FormatEnCase.
func CreateWithFormat(f Format) CreateOption {
	return func(cfg *writerConfig) {
		cfg.format = f
	}
}

// CreateWithChunkSize sets the chunk geometry.
func CreateWithChunkSize(sectorsPerChunk, bytesPerSector uint32) CreateOption {
	return func(cfg *writerConfig) {
		cfg.sectorsPerChunk = sectorsPerChunk
		cfg.bytesPerSector = bytesPerSector
	}
}

// CreateWithCompression sets how chunks passed to WriteChunk and Write are
// compressed. Chunks that do not shrink are always stored raw.
func CreateWithCompression(c Compression) CreateOption {
	return func(cfg *writerConfig) {
		cfg.compression = c
	}
}

// CreateWithHeader sets the case information written to the first segment.
func CreateWithHeader(h Header) CreateOption {
	return func(cfg *writerConfig) {
		cfg.header = h
	}
}

// CreateWithMedia records the media type and, when known, the media size in
// bytes. A declared size caps how much data the writer accepts.
func CreateWithMedia(t MediaType, size uint64) CreateOption {
	return func(cfg *writerConfig) {
		cfg.mediaType = t
		cfg.mediaSize = size
	}
}

// CreateWithSetIdentifier sets the GUID shared by all segments of the image.
// By default a random one is generated.
func CreateWithSetIdentifier(id uuid.UUID) CreateOption {
	return func(cfg *writerConfig) {
		cfg.setID = id
	}
}

// CreateWithLogger sets the logger for write operations.
// If not set, logging is disabled.
func CreateWithLogger(logger *slog.Logger) CreateOption {
	return func(cfg *writerConfig) {
		cfg.logger = logger
	}
}

// CreateWithProgress sets a callback to receive progress updates.
func CreateWithProgress(fn ProgressFunc) CreateOption {
	return func(cfg *writerConfig) {
		cfg.progress = fn
	}
}

// openConfig holds configuration for opening an image.
type openConfig struct {
	logger         *slog.Logger
	cacheBytes     int64
	concurrency    int
	deltaBasename  string
	deltaWrites    bool
	maxSegmentSize int64
	progress       ProgressFunc
	verifyChunks   bool
}

// OpenOption configures Open.
type OpenOption func(*openConfig)

// OpenWithLogger sets the logger for read operations.
// If not set, logging is disabled.
func OpenWithLogger(logger *slog.Logger) OpenOption {
	return func(cfg *openConfig) {
		cfg.logger = logger
	}
}

// OpenWithCacheBytes sets the decoded chunk cache budget.
// Zero or negative disables the cache.
func OpenWithCacheBytes(n int64) OpenOption {
	return func(cfg *openConfig) {
		cfg.cacheBytes = n
	}
}

// OpenWithConcurrency sets how many files are parsed in parallel.
// Values < 1 parse one file at a time.
func OpenWithConcurrency(n int) OpenOption {
	return func(cfg *openConfig) {
		cfg.concurrency = n
	}
}

// OpenWithDeltaWrites enables WriteDeltaChunk. New delta segment files are
// named basename.d01, basename.d02, and so on. An empty basename derives it
// from the first ordinary segment file.
func OpenWithDeltaWrites(basename string) OpenOption {
	return func(cfg *openConfig) {
		cfg.deltaWrites = true
		cfg.deltaBasename = basename
	}
}

// OpenWithDeltaSegmentSize limits the size of new delta segment files.
// Zero uses DefaultMaxSegmentSize.
func OpenWithDeltaSegmentSize(n int64) OpenOption {
	return func(cfg *openConfig) {
		cfg.maxSegmentSize = n
	}
}

// OpenWithProgress sets a callback to receive verification progress.
func OpenWithProgress(fn ProgressFunc) OpenOption {
	return func(cfg *openConfig) {
		cfg.progress = fn
	}
}

// OpenWithVerifyChunks makes Open check the checksum trailer of every chunk
// before returning.
func OpenWithVerifyChunks() OpenOption {
	return func(cfg *openConfig) {
		cfg.verifyChunks = true
	}
}
