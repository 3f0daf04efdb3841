package ewftype

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors shared by the ewf package and its internal packages.
var (
	// ErrInvalidArgument is returned for bad caller input such as a zero
	// segment number.
	ErrInvalidArgument = errors.New("ewf: invalid argument")

	// ErrIO is returned when the underlying filesystem fails.
	ErrIO = errors.New("ewf: i/o error")

	// ErrCorruptSection is returned when a checksum does not match.
	ErrCorruptSection = errors.New("ewf: corrupt section")

	// ErrMalformedSegment is returned when the section chain of a segment file
	// is structurally invalid.
	ErrMalformedSegment = errors.New("ewf: malformed segment")

	// ErrTruncatedFile is returned when a file is shorter than a record claims.
	ErrTruncatedFile = errors.New("ewf: truncated file")

	// ErrInconsistentOffsetTable is returned when chunk tables disagree with
	// each other or with the segment they describe.
	ErrInconsistentOffsetTable = errors.New("ewf: inconsistent offset table")

	// ErrChunkOutOfRange is returned for a chunk number at or beyond the chunk count.
	ErrChunkOutOfRange = errors.New("ewf: chunk out of range")

	// ErrConflictingDeltaChunk is returned when two delta segments claim the same chunk.
	ErrConflictingDeltaChunk = errors.New("ewf: conflicting delta chunk")

	// ErrOutOfSequenceChunk is returned when chunks are not appended in order.
	ErrOutOfSequenceChunk = errors.New("ewf: out of sequence chunk")

	// ErrDuplicateSegment is returned when a segment number is already present.
	ErrDuplicateSegment = errors.New("ewf: duplicate segment number")

	// ErrMissingSegment is returned when segment numbers are not contiguous from 1.
	ErrMissingSegment = errors.New("ewf: missing segment")

	// ErrMissingFinalSegment is returned when no segment ends with a done section.
	ErrMissingFinalSegment = errors.New("ewf: missing final segment")

	// ErrMultipleFinalSegments is returned when more than one segment ends with
	// a done section.
	ErrMultipleFinalSegments = errors.New("ewf: multiple final segments")

	// ErrSegmentLimitExceeded is returned when no further segment names can be
	// generated.
	ErrSegmentLimitExceeded = errors.New("ewf: segment limit exceeded")

	// ErrCodec is returned when chunk data cannot be compressed or decompressed.
	ErrCodec = errors.New("ewf: codec error")

	// ErrNotSegmentFile is returned when a file lacks the segment signature.
	ErrNotSegmentFile = errors.New("ewf: not a segment file")

	// ErrSizeOverflow is returned when a size or offset exceeds what the
	// format can encode.
	ErrSizeOverflow = errors.New("ewf: size overflow")
)

// SegmentError attaches the segment file and byte offset to an error.
type SegmentError struct {
	// Path is the segment file name, if known.
	Path string
	// Segment is the segment number, 0 if unknown.
	Segment uint16
	// Offset is the byte offset within the file, -1 if not applicable.
	Offset int64
	// Err is the underlying error, usually one of the sentinels above.
	Err error
}

// Error implements error.
func (e *SegmentError) Error() string {
	var b strings.Builder
	b.WriteString(e.Err.Error())
	if e.Path != "" {
		fmt.Fprintf(&b, " (file %s", e.Path)
	} else {
		b.WriteString(" (")
	}
	if e.Segment != 0 {
		if e.Path != "" {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "segment %d", e.Segment)
	}
	if e.Offset >= 0 {
		if e.Path != "" || e.Segment != 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "offset %d", e.Offset)
	}
	b.WriteString(")")
	return b.String()
}

// Unwrap returns the underlying error.
func (e *SegmentError) Unwrap() error {
	return e.Err
}

// AtOffset wraps err with the byte offset it was detected at.
func AtOffset(err error, offset int64) error {
	if err == nil {
		return nil
	}
	return &SegmentError{Offset: offset, Err: err}
}

// Annotate fills in the file and segment context of err.
// Offsets already recorded by lower layers are kept.
func Annotate(err error, path string, segment uint16) error {
	if err == nil {
		return nil
	}
	var se *SegmentError
	if errors.As(err, &se) {
		if se.Path == "" {
			se.Path = path
		}
		if se.Segment == 0 {
			se.Segment = segment
		}
		return err
	}
	return &SegmentError{Path: path, Segment: segment, Offset: -1, Err: err}
}

// IOError wraps a filesystem error so that it matches ErrIO while keeping the
// original error reachable through errors.Is.
func IOError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrIO, op, err)
}
