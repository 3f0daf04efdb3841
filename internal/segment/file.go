package segment

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/meigma/ewf/internal/ewftype"
	"github.com/meigma/ewf/internal/section"
)

// State is the write lifecycle position of a segment file.
type State uint8

const (
	// StateStart is a segment that has been allocated but not written.
	StateStart State = iota
	// StateWritingHeaders is writing the signature and metadata sections.
	StateWritingHeaders
	// StateWritingChunks accepts chunk data.
	StateWritingChunks
	// StateCorrecting is rewriting a provisional descriptor and emitting
	// the chunk tables.
	StateCorrecting
	// StateClosed is a finished, immutable segment.
	StateClosed
	// StateIncomplete is a segment whose write was aborted by an error.
	StateIncomplete
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateWritingHeaders:
		return "writing-headers"
	case StateWritingChunks:
		return "writing-chunks"
	case StateCorrecting:
		return "correcting"
	case StateClosed:
		return "closed"
	case StateIncomplete:
		return "incomplete"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

var transitions = map[State][]State{
	StateStart:          {StateWritingHeaders},
	StateWritingHeaders: {StateWritingChunks},
	StateWritingChunks:  {StateCorrecting, StateClosed},
	StateCorrecting:     {StateWritingChunks, StateClosed},
}

// ErrBadTransition is returned when a segment is driven out of order.
var ErrBadTransition = errors.New("segment: invalid state transition")

// Handle is the file abstraction a segment writes through.
type Handle interface {
	io.ReaderAt
	io.WriterAt
	io.Closer
	Sync() error
}

// File is one physical segment or delta segment file.
type File struct {
	Path   string
	Number uint16
	Kind   ewftype.Kind
	Format ewftype.Format

	handle   Handle
	size     int64
	sections *section.List
	state    State
	writable bool
}

// NewFile wraps an open handle for writing. The file starts empty.
func NewFile(path string, number uint16, kind ewftype.Kind, format ewftype.Format, h Handle) *File {
	return &File{
		Path:     path,
		Number:   number,
		Kind:     kind,
		Format:   format,
		handle:   h,
		sections: &section.List{},
		state:    StateStart,
		writable: true,
	}
}

// OpenFile opens path and reads its signature block. The section list is not
// parsed until ReadSections is called.
func OpenFile(path string, writable bool) (*File, error) {
	flag := os.O_RDONLY
	if writable {
		flag = os.O_RDWR
	}
	f, err := os.OpenFile(path, flag, 0) //nolint:gosec // path supplied by caller
	if err != nil {
		return nil, ewftype.IOError("open segment", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, ewftype.IOError("stat segment", err)
	}
	hdr, err := ReadFileHeader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &File{
		Path:     path,
		Number:   hdr.Number,
		Kind:     hdr.Kind,
		handle:   f,
		size:     info.Size(),
		state:    StateClosed,
		writable: writable,
	}, nil
}

// ReadSections walks and caches the section list. Ordinary segments must end
// in a terminal section.
func (f *File) ReadSections() (*section.List, error) {
	list, err := section.Walk(f.handle, f.size, FileHeaderSize, f.Kind == ewftype.KindSegment)
	if err != nil {
		return nil, ewftype.Annotate(err, f.Path, f.Number)
	}
	f.sections = list
	return list, nil
}

// Sections returns the cached section list.
func (f *File) Sections() *section.List {
	return f.sections
}

// ReadAt reads from the underlying handle.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	return f.handle.ReadAt(p, off)
}

// WriteAt writes to the underlying handle and extends the tracked size.
func (f *File) WriteAt(p []byte, off int64) (int, error) {
	if !f.writable {
		return 0, fmt.Errorf("%w: segment %d is read-only", ewftype.ErrInvalidArgument, f.Number)
	}
	n, err := f.handle.WriteAt(p, off)
	if end := off + int64(n); end > f.size {
		f.size = end
	}
	return n, err
}

// Size returns the file size as known to the segment.
func (f *File) Size() int64 {
	return f.size
}

// State returns the write lifecycle position.
func (f *File) State() State {
	return f.state
}

// Writable reports whether the file was opened for writing.
func (f *File) Writable() bool {
	return f.writable
}

// Transition moves the segment to the next lifecycle state.
func (f *File) Transition(to State) error {
	for _, allowed := range transitions[f.state] {
		if allowed == to {
			f.state = to
			return nil
		}
	}
	return fmt.Errorf("%w: segment %d from %s to %s", ErrBadTransition, f.Number, f.state, to)
}

// MarkIncomplete records that writing this segment failed.
func (f *File) MarkIncomplete() {
	f.state = StateIncomplete
}

// Close flushes and closes the handle. A writable segment that fails to flush
// is marked incomplete rather than closed.
func (f *File) Close() error {
	if f.handle == nil {
		return nil
	}
	var syncErr error
	if f.writable {
		syncErr = f.handle.Sync()
	}
	closeErr := f.handle.Close()
	f.handle = nil
	if err := errors.Join(syncErr, closeErr); err != nil {
		f.state = StateIncomplete
		return ewftype.Annotate(ewftype.IOError("close segment", err), f.Path, f.Number)
	}
	return nil
}
