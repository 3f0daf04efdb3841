package ewf

// ProgressEvent represents a progress update during acquisition or
// verification.
type ProgressEvent struct {
	// Stage identifies the current phase of the operation.
	Stage ProgressStage

	// Path is the segment file currently being written, if applicable.
	Path string

	// Segment is the current segment number, if applicable.
	Segment uint16

	// BytesDone is the number of logical bytes processed.
	BytesDone uint64

	// BytesTotal is the total logical bytes.
	// Zero indicates the total is unknown.
	BytesTotal uint64

	// ChunksDone is the number of chunks processed.
	ChunksDone uint64
}

// ProgressStage identifies the current phase of an operation.
type ProgressStage uint8

// Progress stages.
const (
	// StageWriting indicates chunks are being compressed and written.
	StageWriting ProgressStage = iota

	// StageSegmentDone indicates a segment file was completed.
	StageSegmentDone

	// StageFinalized indicates the image was completed.
	StageFinalized

	// StageVerifying indicates the logical stream is being read back.
	StageVerifying
)

// String returns the string representation of the stage.
func (s ProgressStage) String() string {
	switch s {
	case StageWriting:
		return "writing"
	case StageSegmentDone:
		return "segment-done"
	case StageFinalized:
		return "finalized"
	case StageVerifying:
		return "verifying"
	default:
		return "unknown"
	}
}

// ProgressFunc receives progress updates.
// It is called synchronously from the goroutine doing the work.
type ProgressFunc func(ProgressEvent)
