package section

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/ewf/internal/ewftype"
	"github.com/meigma/ewf/internal/testutil"
)

const start = 13

// buildChain writes header, volume, and a terminal section after a 13-byte
// file header and returns the backing file.
func buildChain(t *testing.T, terminal Type) *testutil.MockFile {
	t.Helper()
	f := testutil.NewMockFile(make([]byte, start))
	off, err := WriteSection(f, start, TypeHeader, []byte("header text"))
	require.NoError(t, err)
	off, err = WriteSection(f, off, TypeVolume, make([]byte, 94))
	require.NoError(t, err)
	if terminal != "" {
		_, err = WriteTerminal(f, off, terminal)
		require.NoError(t, err)
	}
	return f
}

func TestDescriptorRoundTrip(t *testing.T) {
	t.Parallel()

	var buf [DescriptorSize]byte
	b, err := Encode(buf[:], TypeTable2, 4096, 200)
	require.NoError(t, err)

	rec, err := Decode(b, 1000)
	require.NoError(t, err)
	assert.Equal(t, TypeTable2, rec.Type)
	assert.Equal(t, int64(1000), rec.Offset)
	assert.Equal(t, int64(4096), rec.Next)
	assert.Equal(t, uint64(200), rec.Size)
	assert.Equal(t, int64(1200), rec.End())
	assert.Equal(t, uint64(200-DescriptorSize), rec.PayloadSize())
}

func TestEncodeRejectsBadType(t *testing.T) {
	t.Parallel()

	var buf [DescriptorSize]byte
	_, err := Encode(buf[:], "", 0, 0)
	require.ErrorIs(t, err, ewftype.ErrInvalidArgument)
	_, err = Encode(buf[:], "a-type-name-longer-than-16", 0, 0)
	require.ErrorIs(t, err, ewftype.ErrInvalidArgument)
}

func TestDecodeDetectsCorruption(t *testing.T) {
	t.Parallel()

	var buf [DescriptorSize]byte
	_, err := Encode(buf[:], TypeSectors, 500, 300)
	require.NoError(t, err)

	for _, i := range []int{0, 16, 24, 40, 71} {
		corrupt := buf
		corrupt[i] ^= 0x01
		_, err := Decode(corrupt[:], 0)
		require.ErrorIs(t, err, ewftype.ErrCorruptSection, "byte %d", i)
	}
}

func TestReadTruncated(t *testing.T) {
	t.Parallel()

	f := buildChain(t, TypeDone)
	_, err := Read(f, f.Size()-10, f.Size())
	require.ErrorIs(t, err, ewftype.ErrTruncatedFile)

	// A section that claims more bytes than the file holds.
	_, err = Read(f, start, start+DescriptorSize+5)
	require.ErrorIs(t, err, ewftype.ErrTruncatedFile)
}

func TestWalk(t *testing.T) {
	t.Parallel()

	f := buildChain(t, TypeDone)
	list, err := Walk(f, f.Size(), start, true)
	require.NoError(t, err)

	require.Equal(t, 3, list.Len())
	assert.Equal(t, TypeDone, list.Terminal())

	vol, ok := list.FindFirst(TypeVolume)
	require.True(t, ok)
	assert.Equal(t, uint64(DescriptorSize+94), vol.Size)

	_, ok = list.FindFirst(TypeDigest)
	assert.False(t, ok)
	assert.Len(t, list.FindAll(TypeHeader), 1)

	hdr, ok := list.Before(vol, TypeHeader)
	require.True(t, ok)
	assert.Equal(t, int64(start), hdr.Offset)

	payload, err := ReadPayload(f, hdr)
	require.NoError(t, err)
	assert.Equal(t, []byte("header text"), payload)
}

func TestWalkMissingTerminal(t *testing.T) {
	t.Parallel()

	f := buildChain(t, "")
	_, err := Walk(f, f.Size(), start, true)
	require.ErrorIs(t, err, ewftype.ErrMalformedSegment)

	// Delta segments may end at end of file.
	list, err := Walk(f, f.Size(), start, false)
	require.NoError(t, err)
	assert.Equal(t, 2, list.Len())
	assert.Equal(t, Type(""), list.Terminal())
}

func TestWalkRejectsTrailingData(t *testing.T) {
	t.Parallel()

	f := buildChain(t, TypeDone)
	end := f.Size()
	_, err := WriteSection(f, end, TypeHeader, []byte("stray"))
	require.NoError(t, err)

	_, err = Walk(f, f.Size(), start, true)
	require.ErrorIs(t, err, ewftype.ErrMalformedSegment)

	var se *ewftype.SegmentError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, end-DescriptorSize, se.Offset)

	// Delta segments are appended over their done section.
	list, err := Walk(f, f.Size(), start, false)
	require.NoError(t, err)
	assert.Equal(t, TypeDone, list.Terminal())
}

func TestWalkRejectsBackwardLink(t *testing.T) {
	t.Parallel()

	f := testutil.NewMockFile(make([]byte, start))
	_, err := WriteHeader(f, start, TypeHeader, start, DescriptorSize)
	require.NoError(t, err)
	_, err = WriteTerminal(f, start+DescriptorSize, TypeDone)
	require.NoError(t, err)

	_, err = Walk(f, f.Size(), start, true)
	require.ErrorIs(t, err, ewftype.ErrMalformedSegment)
}

func TestWalkRejectsOutOfRangeLink(t *testing.T) {
	t.Parallel()

	f := testutil.NewMockFile(make([]byte, start))
	_, err := WriteHeader(f, start, TypeHeader, 1<<20, DescriptorSize)
	require.NoError(t, err)
	_, err = WriteTerminal(f, start+DescriptorSize, TypeDone)
	require.NoError(t, err)

	_, err = Walk(f, f.Size(), start, true)
	require.ErrorIs(t, err, ewftype.ErrMalformedSegment)
}

func TestWalkReportsOffset(t *testing.T) {
	t.Parallel()

	f := buildChain(t, TypeNext)
	data := f.Bytes()
	// Corrupt the size field of the volume descriptor.
	volOffset := start + DescriptorSize + len("header text")
	binary.LittleEndian.PutUint64(data[volOffset+24:], 12345)

	_, err := Walk(f, f.Size(), start, true)
	require.ErrorIs(t, err, ewftype.ErrCorruptSection)

	var se *ewftype.SegmentError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, int64(volOffset), se.Offset)
}

func TestTypeVocabulary(t *testing.T) {
	t.Parallel()

	assert.True(t, TypeDone.Terminal())
	assert.True(t, TypeNext.Terminal())
	assert.False(t, TypeTable.Terminal())
	assert.True(t, TypeSingleFiles.Known())
	assert.False(t, Type("bogus").Known())
}
