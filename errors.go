package ewf

import (
	"errors"

	"github.com/meigma/ewf/internal/ewftype"
	"github.com/meigma/ewf/internal/metadata"
)

// Errors re-exported from the internal packages. Errors returned by this
// package wrap one of these; use errors.Is to test for them.
var (
	// ErrInvalidArgument is returned for bad caller input.
	ErrInvalidArgument = ewftype.ErrInvalidArgument

	// ErrIO is returned when the filesystem fails.
	ErrIO = ewftype.ErrIO

	// ErrCorruptSection is returned when a checksum does not match.
	ErrCorruptSection = ewftype.ErrCorruptSection

	// ErrMalformedSegment is returned when the section chain of a segment file
	// is structurally invalid.
	ErrMalformedSegment = ewftype.ErrMalformedSegment

	// ErrTruncatedFile is returned when a file is shorter than a record claims.
	ErrTruncatedFile = ewftype.ErrTruncatedFile

	// ErrInconsistentOffsetTable is returned when chunk tables disagree.
	ErrInconsistentOffsetTable = ewftype.ErrInconsistentOffsetTable

	// ErrChunkOutOfRange is returned for a chunk number past the end of the image.
	ErrChunkOutOfRange = ewftype.ErrChunkOutOfRange

	// ErrConflictingDeltaChunk is returned when two delta segments claim the same chunk.
	ErrConflictingDeltaChunk = ewftype.ErrConflictingDeltaChunk

	// ErrOutOfSequenceChunk is returned when chunks are not appended in order.
	ErrOutOfSequenceChunk = ewftype.ErrOutOfSequenceChunk

	// ErrDuplicateSegment is returned when two files carry the same segment number.
	ErrDuplicateSegment = ewftype.ErrDuplicateSegment

	// ErrMissingSegment is returned when segment numbers have a gap.
	ErrMissingSegment = ewftype.ErrMissingSegment

	// ErrMissingFinalSegment is returned when no segment ends the image.
	ErrMissingFinalSegment = ewftype.ErrMissingFinalSegment

	// ErrMultipleFinalSegments is returned when more than one segment ends the image.
	ErrMultipleFinalSegments = ewftype.ErrMultipleFinalSegments

	// ErrSegmentLimitExceeded is returned when no more segment files may be created.
	ErrSegmentLimitExceeded = ewftype.ErrSegmentLimitExceeded

	// ErrCodec is returned when chunk data cannot be compressed or decompressed.
	ErrCodec = ewftype.ErrCodec

	// ErrNotSegmentFile is returned for a file without the segment signature.
	ErrNotSegmentFile = ewftype.ErrNotSegmentFile

	// ErrSizeOverflow is returned when a size exceeds what the format can encode.
	ErrSizeOverflow = ewftype.ErrSizeOverflow

	// ErrHeaderText is returned when acquisition metadata text is malformed.
	ErrHeaderText = metadata.ErrHeaderText
)

// Errors defined by this package.
var (
	// ErrIncomplete is returned by a Writer after a write failed. The segment
	// being written is left on disk and marked incomplete.
	ErrIncomplete = errors.New("ewf: image incomplete after failed write")

	// ErrClosed is returned when using a closed or finalized handle.
	ErrClosed = errors.New("ewf: handle closed")

	// ErrDeltaDisabled is returned by WriteDeltaChunk on an image opened
	// without OpenWithDeltaWrites.
	ErrDeltaDisabled = errors.New("ewf: delta writes not enabled")

	// ErrHashMismatch is returned by Verify when the recomputed hashes differ
	// from the stored ones.
	ErrHashMismatch = errors.New("ewf: hash verification failed")
)

// SegmentError carries the file, segment number, and byte offset at which an
// error was detected.
type SegmentError = ewftype.SegmentError
