// Package chunktable maps logical chunk numbers to their physical location in
// a set of segment files.
package chunktable

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/meigma/ewf/internal/ewftype"
	"github.com/meigma/ewf/internal/segment"
)

// TrailerSize is the size of the checksum stored after every chunk.
const TrailerSize = 4

// Location is where one chunk is stored.
type Location struct {
	// Segment is the number of the segment (or delta segment) file.
	Segment uint16
	// Delta is set when the chunk lives in a delta segment.
	Delta bool
	// Offset is the absolute offset of the stored bytes.
	Offset int64
	// Size is the stored size, excluding the checksum trailer.
	Size uint32
	// Compressed is set when the stored bytes are zlib data.
	Compressed bool
	// Verified is set once the trailer checksum has been checked.
	Verified bool
}

// End returns the offset just past the chunk's trailer.
func (l Location) End() int64 {
	return l.Offset + int64(l.Size) + TrailerSize
}

// Table is the dense chunk-number index of one image.
type Table struct {
	entries []Location
}

// New returns an empty table with room for capacity chunks.
func New(capacity int) *Table {
	return &Table{entries: make([]Location, 0, capacity)}
}

// Len returns the number of chunks.
func (t *Table) Len() uint64 {
	return uint64(len(t.entries))
}

// Lookup returns the location of chunk n.
func (t *Table) Lookup(n uint64) (Location, error) {
	if n >= t.Len() {
		return Location{}, fmt.Errorf("%w: chunk %d of %d", ewftype.ErrChunkOutOfRange, n, t.Len())
	}
	return t.entries[n], nil
}

// Append adds the location of chunk n while writing. n must equal Len.
func (t *Table) Append(n uint64, loc Location) error {
	if n != t.Len() {
		return fmt.Errorf("%w: got chunk %d, expected %d", ewftype.ErrOutOfSequenceChunk, n, t.Len())
	}
	t.entries = append(t.entries, loc)
	return nil
}

// Override replaces the location of an existing chunk with a delta location.
func (t *Table) Override(n uint64, loc Location) error {
	if n >= t.Len() {
		return fmt.Errorf("%w: chunk %d of %d", ewftype.ErrChunkOutOfRange, n, t.Len())
	}
	t.entries[n] = loc
	return nil
}

// MarkVerified records that chunk n passed its checksum.
func (t *Table) MarkVerified(n uint64) {
	if n < t.Len() {
		t.entries[n].Verified = true
	}
}

// Entries returns a copy of every location in chunk order.
func (t *Table) Entries() []Location {
	return slices.Clone(t.entries)
}

// SegmentTables is the decoded chunk-table content of one ordinary segment.
type SegmentTables struct {
	Number   uint16
	Path     string
	FileSize int64
	// Primary holds the entries of each table section in on-disk order.
	Primary [][]Location
	// Backup holds the entries of each table2 section.
	Backup [][]Location
}

// Build assembles the table from every ordinary segment in ascending segment
// order. Backup tables only cross-check entry counts.
func Build(segments []SegmentTables) (*Table, error) {
	segments = slices.Clone(segments)
	slices.SortFunc(segments, func(a, b SegmentTables) int { return cmp.Compare(a.Number, b.Number) })

	total := 0
	for _, s := range segments {
		for _, run := range s.Primary {
			total += len(run)
		}
	}
	t := New(total)
	for _, s := range segments {
		if err := checkSegment(s); err != nil {
			return nil, ewftype.Annotate(err, s.Path, s.Number)
		}
		for _, run := range s.Primary {
			t.entries = append(t.entries, run...)
		}
	}
	return t, nil
}

func checkSegment(s SegmentTables) error {
	primary := countEntries(s.Primary)
	if len(s.Backup) > 0 {
		if backup := countEntries(s.Backup); backup != primary {
			return fmt.Errorf("%w: table holds %d entries, table2 holds %d",
				ewftype.ErrInconsistentOffsetTable, primary, backup)
		}
	}

	all := make([]Location, 0, primary)
	for _, run := range s.Primary {
		all = append(all, run...)
	}
	slices.SortFunc(all, func(a, b Location) int { return cmp.Compare(a.Offset, b.Offset) })

	prevEnd := int64(segment.FileHeaderSize)
	for _, loc := range all {
		if loc.Offset < prevEnd {
			return ewftype.AtOffset(fmt.Errorf("%w: chunk data overlaps preceding data",
				ewftype.ErrInconsistentOffsetTable), loc.Offset)
		}
		if loc.End() > s.FileSize {
			return ewftype.AtOffset(fmt.Errorf("%w: chunk ends at %d beyond file size %d",
				ewftype.ErrInconsistentOffsetTable, loc.End(), s.FileSize), loc.Offset)
		}
		prevEnd = loc.End()
	}
	return nil
}

func countEntries(runs [][]Location) int {
	n := 0
	for _, run := range runs {
		n += len(run)
	}
	return n
}

// DeltaEntry is one chunk override recorded in a delta segment.
type DeltaEntry struct {
	Chunk    uint64
	Location Location
}

// DeltaSegment is the decoded override list of one delta segment, in on-disk
// order.
type DeltaSegment struct {
	Number  uint16
	Path    string
	Entries []DeltaEntry
}

// ApplyDeltaOverrides replaces base entries with delta locations. Within one
// delta segment a later entry for the same chunk wins; a chunk claimed by two
// delta segments is an error.
func (t *Table) ApplyDeltaOverrides(deltas []DeltaSegment) error {
	owner := make(map[uint64]uint16)
	for _, d := range deltas {
		for _, e := range d.Entries {
			if e.Chunk >= t.Len() {
				return ewftype.Annotate(fmt.Errorf("%w: delta targets chunk %d of %d",
					ewftype.ErrChunkOutOfRange, e.Chunk, t.Len()), d.Path, d.Number)
			}
			if prev, ok := owner[e.Chunk]; ok && prev != d.Number {
				return ewftype.Annotate(fmt.Errorf("%w: chunk %d claimed by delta segments %d and %d",
					ewftype.ErrConflictingDeltaChunk, e.Chunk, prev, d.Number), d.Path, d.Number)
			}
			owner[e.Chunk] = d.Number
		}
	}
	for _, d := range deltas {
		for _, e := range d.Entries {
			loc := e.Location
			loc.Segment = d.Number
			loc.Delta = true
			t.entries[e.Chunk] = loc
		}
	}
	return nil
}
