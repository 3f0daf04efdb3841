package chunktable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/ewf/internal/ewftype"
	"github.com/meigma/ewf/internal/section"
)

func loc(seg uint16, off int64, size uint32) Location {
	return Location{Segment: seg, Offset: off, Size: size}
}

func TestAppendAndLookup(t *testing.T) {
	t.Parallel()

	tbl := New(0)
	require.NoError(t, tbl.Append(0, loc(1, 100, 10)))
	require.NoError(t, tbl.Append(1, loc(1, 114, 10)))

	err := tbl.Append(5, loc(1, 200, 10))
	require.ErrorIs(t, err, ewftype.ErrOutOfSequenceChunk)
	err = tbl.Append(1, loc(1, 200, 10))
	require.ErrorIs(t, err, ewftype.ErrOutOfSequenceChunk)

	got, err := tbl.Lookup(1)
	require.NoError(t, err)
	assert.Equal(t, int64(114), got.Offset)
	assert.Equal(t, int64(128), got.End())

	_, err = tbl.Lookup(2)
	require.ErrorIs(t, err, ewftype.ErrChunkOutOfRange)

	tbl.MarkVerified(0)
	got, err = tbl.Lookup(0)
	require.NoError(t, err)
	assert.True(t, got.Verified)
}

func twoSegments() []SegmentTables {
	return []SegmentTables{
		{
			Number:   2,
			FileSize: 1000,
			Primary:  [][]Location{{loc(2, 100, 50)}},
			Backup:   [][]Location{{loc(2, 100, 50)}},
		},
		{
			Number:   1,
			FileSize: 1000,
			Primary:  [][]Location{{loc(1, 100, 50), loc(1, 154, 50)}, {loc(1, 400, 20)}},
			Backup:   [][]Location{{loc(1, 100, 50), loc(1, 154, 50)}, {loc(1, 400, 20)}},
		},
	}
}

func TestBuildOrdersSegments(t *testing.T) {
	t.Parallel()

	tbl, err := Build(twoSegments())
	require.NoError(t, err)
	require.Equal(t, uint64(4), tbl.Len())

	entries := tbl.Entries()
	assert.Equal(t, uint16(1), entries[0].Segment)
	assert.Equal(t, int64(400), entries[2].Offset)
	assert.Equal(t, uint16(2), entries[3].Segment)
}

func TestBuildIdempotent(t *testing.T) {
	t.Parallel()

	segs := twoSegments()
	a, err := Build(segs)
	require.NoError(t, err)
	b, err := Build(segs)
	require.NoError(t, err)
	assert.Equal(t, a.Entries(), b.Entries())
}

func TestBuildEmpty(t *testing.T) {
	t.Parallel()

	tbl, err := Build([]SegmentTables{{Number: 1, FileSize: 200}})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), tbl.Len())
}

func TestBuildRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		seg  SegmentTables
	}{
		{
			name: "backup count mismatch",
			seg: SegmentTables{Number: 1, FileSize: 1000,
				Primary: [][]Location{{loc(1, 100, 10), loc(1, 114, 10)}},
				Backup:  [][]Location{{loc(1, 100, 10)}}},
		},
		{
			name: "beyond file size",
			seg: SegmentTables{Number: 1, FileSize: 150,
				Primary: [][]Location{{loc(1, 100, 50)}}},
		},
		{
			name: "overlap",
			seg: SegmentTables{Number: 1, FileSize: 1000,
				Primary: [][]Location{{loc(1, 100, 50)}, {loc(1, 120, 10)}}},
		},
		{
			name: "inside file header",
			seg: SegmentTables{Number: 1, FileSize: 1000,
				Primary: [][]Location{{loc(1, 4, 10)}}},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Build([]SegmentTables{tc.seg})
			require.ErrorIs(t, err, ewftype.ErrInconsistentOffsetTable)
			var se *ewftype.SegmentError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, uint16(1), se.Segment)
		})
	}
}

func TestApplyDeltaOverrides(t *testing.T) {
	t.Parallel()

	base := func() *Table {
		tbl := New(8)
		for i := range 8 {
			require.NoError(t, tbl.Append(uint64(i), loc(1, int64(100+i*20), 16)))
		}
		return tbl
	}

	d1 := DeltaSegment{Number: 1, Entries: []DeltaEntry{
		{Chunk: 5, Location: loc(0, 200, 30)},
		{Chunk: 5, Location: loc(0, 400, 31)},
	}}
	d2 := DeltaSegment{Number: 2, Entries: []DeltaEntry{{Chunk: 2, Location: loc(0, 90, 12)}}}

	a := base()
	require.NoError(t, a.ApplyDeltaOverrides([]DeltaSegment{d1, d2}))
	b := base()
	require.NoError(t, b.ApplyDeltaOverrides([]DeltaSegment{d2, d1}))
	assert.Equal(t, a.Entries(), b.Entries())

	got, err := a.Lookup(5)
	require.NoError(t, err)
	assert.True(t, got.Delta)
	assert.Equal(t, uint16(1), got.Segment)
	assert.Equal(t, int64(400), got.Offset)

	// Applying again yields the same table.
	require.NoError(t, a.ApplyDeltaOverrides([]DeltaSegment{d1, d2}))
	assert.Equal(t, b.Entries(), a.Entries())
}

func TestApplyDeltaOverridesConflicts(t *testing.T) {
	t.Parallel()

	tbl := New(4)
	for i := range 4 {
		require.NoError(t, tbl.Append(uint64(i), loc(1, int64(100+i*20), 16)))
	}

	err := tbl.ApplyDeltaOverrides([]DeltaSegment{
		{Number: 1, Entries: []DeltaEntry{{Chunk: 3, Location: loc(0, 50, 8)}}},
		{Number: 2, Entries: []DeltaEntry{{Chunk: 3, Location: loc(0, 50, 8)}}},
	})
	require.ErrorIs(t, err, ewftype.ErrConflictingDeltaChunk)

	err = tbl.ApplyDeltaOverrides([]DeltaSegment{
		{Number: 1, Entries: []DeltaEntry{{Chunk: 9, Location: loc(0, 50, 8)}}},
	})
	require.ErrorIs(t, err, ewftype.ErrChunkOutOfRange)
}

func sectorsAt(offset int64, payload uint64) section.Record {
	return section.Record{Type: section.TypeSectors, Offset: offset, Size: section.DescriptorSize + payload}
}

func TestTableEncodingRoundTrip(t *testing.T) {
	t.Parallel()

	sectors := sectorsAt(500, 300)
	base := sectors.PayloadOffset()
	entries := []Location{
		{Segment: 3, Offset: base, Size: 96, Compressed: true},
		{Segment: 3, Offset: base + 100, Size: 120},
		{Segment: 3, Offset: base + 224, Size: 72, Compressed: true},
	}
	payload, err := EncodeTable(entries, base)
	require.NoError(t, err)
	require.Len(t, payload, TablePayloadSize(3))

	rec := section.Record{Type: section.TypeTable, Offset: sectors.End()}
	got, err := DecodeTable(payload, rec, sectors, 3)
	require.NoError(t, err)
	assert.Equal(t, entries, got)
}

func TestDecodeTableDetectsEveryBitFlip(t *testing.T) {
	t.Parallel()

	sectors := sectorsAt(500, 300)
	base := sectors.PayloadOffset()
	payload, err := EncodeTable([]Location{
		{Offset: base, Size: 96},
		{Offset: base + 100, Size: 196, Compressed: true},
	}, base)
	require.NoError(t, err)

	rec := section.Record{Type: section.TypeTable, Offset: sectors.End()}
	for i := range len(payload) * 8 {
		corrupt := append([]byte(nil), payload...)
		corrupt[i/8] ^= 1 << (i % 8)
		_, err := DecodeTable(corrupt, rec, sectors, 1)
		require.Error(t, err, "bit %d", i)
		assert.True(t,
			assertIsOneOf(err, ewftype.ErrCorruptSection, ewftype.ErrInconsistentOffsetTable),
			"bit %d: %v", i, err)
	}
}

func TestEncodeTableRejectsFarOffset(t *testing.T) {
	t.Parallel()

	_, err := EncodeTable([]Location{{Offset: MaxRelativeOffset + 1000}}, 0)
	require.ErrorIs(t, err, ewftype.ErrSizeOverflow)
	_, err = EncodeTable([]Location{{Offset: 10}}, 100)
	require.ErrorIs(t, err, ewftype.ErrSizeOverflow)
}

func TestDeltaHeaderRoundTrip(t *testing.T) {
	t.Parallel()

	hdr, err := EncodeDeltaHeader(42, 1000, true)
	require.NoError(t, err)

	rec := section.Record{
		Type:   section.TypeDeltaChunk,
		Offset: 13,
		Size:   uint64(section.DescriptorSize + DeltaPayloadSize(1000)),
	}
	e, err := DecodeDeltaHeader(hdr, rec, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), e.Chunk)
	assert.Equal(t, Location{
		Segment: 2, Delta: true, Offset: 13 + section.DescriptorSize + DeltaHeaderSize,
		Size: 1000, Compressed: true,
	}, e.Location)

	hdr[0] ^= 0xff
	_, err = DecodeDeltaHeader(hdr, rec, 2)
	require.ErrorIs(t, err, ewftype.ErrCorruptSection)

	_, err = EncodeDeltaHeader(1<<33, 10, false)
	require.ErrorIs(t, err, ewftype.ErrSizeOverflow)
}
