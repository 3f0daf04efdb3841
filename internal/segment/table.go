package segment

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/meigma/ewf/internal/ewftype"
)

// Table owns every open segment file of one image. Ordinary segments and
// delta segments are keyed separately so a delta may share a number with an
// ordinary segment.
type Table struct {
	basename    string
	maxSegments uint16
	format      ewftype.Format
	segments    map[uint16]*File
	deltas      map[uint16]*File
	logger      *slog.Logger
}

// NewTable creates an empty table. basename and maxSegments are used to
// generate filenames for new segments.
func NewTable(basename string, maxSegments uint16, format ewftype.Format, logger *slog.Logger) *Table {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Table{
		basename:    basename,
		maxSegments: maxSegments,
		format:      format,
		segments:    make(map[uint16]*File),
		deltas:      make(map[uint16]*File),
		logger:      logger,
	}
}

// Basename returns the path prefix used for generated filenames.
func (t *Table) Basename() string {
	return t.basename
}

// SetBasename changes the prefix used for generated filenames.
func (t *Table) SetBasename(basename string) {
	t.basename = basename
}

// Format returns the image format.
func (t *Table) Format() ewftype.Format {
	return t.format
}

// SetFormat records the image format detected while reading.
func (t *Table) SetFormat(format ewftype.Format) {
	t.format = format
}

// MaxSegments returns the segment count limit.
func (t *Table) MaxSegments() uint16 {
	return t.maxSegments
}

// Filename returns the path for segment number of the given kind.
func (t *Table) Filename(number uint16, kind ewftype.Kind) (string, error) {
	if number > t.maxSegments {
		return "", fmt.Errorf("%w: segment %d of at most %d", ewftype.ErrSegmentLimitExceeded, number, t.maxSegments)
	}
	ext, err := ComposeExtension(number, t.maxSegments, t.format, kind)
	if err != nil {
		return "", err
	}
	return ComposeFilename(t.basename, ext), nil
}

// Create allocates a new segment file on disk and registers it. Existing
// files are never overwritten.
func (t *Table) Create(number uint16, kind ewftype.Kind) (*File, error) {
	if _, exists := t.lookup(kind)[number]; exists {
		return nil, fmt.Errorf("%w: %s %d is already open", ewftype.ErrDuplicateSegment, kind, number)
	}
	path, err := t.Filename(number, kind)
	if err != nil {
		return nil, err
	}
	h, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644) //nolint:gosec // path derived from caller basename
	if err != nil {
		return nil, ewftype.Annotate(ewftype.IOError("create segment", err), path, number)
	}
	f := NewFile(path, number, kind, t.format, h)
	t.lookup(kind)[number] = f
	t.logger.Debug("created segment file", "path", path, "segment", number, "kind", kind)
	return f, nil
}

// Add registers an already open file.
func (t *Table) Add(f *File) error {
	m := t.lookup(f.Kind)
	if prev, exists := m[f.Number]; exists {
		return ewftype.Annotate(
			fmt.Errorf("%w: %s %d also in %s", ewftype.ErrDuplicateSegment, f.Kind, f.Number, prev.Path),
			f.Path, f.Number)
	}
	m[f.Number] = f
	return nil
}

// Segment returns ordinary segment number.
func (t *Table) Segment(number uint16) (*File, bool) {
	f, ok := t.segments[number]
	return f, ok
}

// Delta returns delta segment number.
func (t *Table) Delta(number uint16) (*File, bool) {
	f, ok := t.deltas[number]
	return f, ok
}

// Get returns the file of the given kind.
func (t *Table) Get(number uint16, kind ewftype.Kind) (*File, bool) {
	f, ok := t.lookup(kind)[number]
	return f, ok
}

// Numbers returns the ordinary segment numbers in ascending order.
func (t *Table) Numbers() []uint16 {
	return sortedKeys(t.segments)
}

// DeltaNumbers returns the delta segment numbers in ascending order.
func (t *Table) DeltaNumbers() []uint16 {
	return sortedKeys(t.deltas)
}

// Len returns the number of ordinary segments.
func (t *Table) Len() int {
	return len(t.segments)
}

// Close closes every file. Every handle is released even when some fail;
// failures are logged and returned joined.
func (t *Table) Close() error {
	var errs []error
	for _, m := range []map[uint16]*File{t.segments, t.deltas} {
		for _, n := range sortedKeys(m) {
			f := m[n]
			if err := f.Close(); err != nil {
				t.logger.Warn("failed to close segment file", "path", f.Path, "segment", n, "error", err)
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (t *Table) lookup(kind ewftype.Kind) map[uint16]*File {
	if kind == ewftype.KindDelta {
		return t.deltas
	}
	return t.segments
}

func sortedKeys(m map[uint16]*File) []uint16 {
	keys := make([]uint16, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
