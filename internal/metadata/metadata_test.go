package metadata

import (
	"crypto/md5"
	"crypto/sha1"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/ewf/internal/ewftype"
)

func sampleHeader() *Header {
	return &Header{
		CaseNumber:     "2024-117",
		EvidenceNumber: "HDD-03",
		Description:    "laptop\tdrive",
		Examiner:       "J. Doe",
		Notes:          "seized at desk",
		AppVersion:     "ewfseg 1.0",
		OSVersion:      "linux",
		AcquiredAt:     time.Date(2024, 3, 4, 10, 19, 59, 0, time.UTC),
		Compression:    "f",
		Extra:          map[string]string{"dc": "", "md": "model-x"},
	}
}

func TestHeaderTextRoundTrip(t *testing.T) {
	t.Parallel()

	h := sampleHeader()
	got, err := ParseText(h.Text())
	require.NoError(t, err)

	assert.Equal(t, "2024-117", got.CaseNumber)
	assert.Equal(t, "laptop drive", got.Description)
	assert.Equal(t, h.AcquiredAt, got.AcquiredAt)
	assert.True(t, got.SystemAt.IsZero())
	assert.Equal(t, "model-x", got.Extra["md"])
}

func TestHeaderBinaryRoundTrip(t *testing.T) {
	t.Parallel()

	h := sampleHeader()
	payload, err := h.MarshalBinary()
	require.NoError(t, err)

	var got Header
	require.NoError(t, got.UnmarshalBinary(payload))
	assert.Equal(t, h.Examiner, got.Examiner)

	payload2, err := h.MarshalHeader2()
	require.NoError(t, err)

	var got2 Header
	require.NoError(t, got2.UnmarshalHeader2(payload2))
	assert.Equal(t, got, got2)

	// header2 payloads are not valid header payloads once decoded as ASCII.
	var wrong Header
	assert.Error(t, wrong.UnmarshalBinary(payload2))
}

func TestParseTextRejects(t *testing.T) {
	t.Parallel()

	_, err := ParseText("garbage")
	require.ErrorIs(t, err, ErrHeaderText)

	_, err = ParseText("1\nmain\nc\tn\na\tb\tc\n\n")
	require.ErrorIs(t, err, ErrHeaderText)
}

func TestVolumeRoundTrip(t *testing.T) {
	t.Parallel()

	v := &Volume{
		MediaType:        MediaFixed,
		ChunkCount:       12,
		SectorsPerChunk:  64,
		BytesPerSector:   512,
		SectorCount:      700,
		CompressionLevel: 1,
		ErrorGranularity: 64,
		SetIdentifier:    uuid.New(),
	}
	b, err := v.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, b, VolumeSize)

	var got Volume
	require.NoError(t, got.UnmarshalBinary(b))
	assert.Equal(t, *v, got)
	assert.Equal(t, uint32(32768), got.ChunkSize())
	assert.Equal(t, uint64(700*512), got.MediaSize())

	b[10] ^= 0x20
	require.ErrorIs(t, got.UnmarshalBinary(b), ewftype.ErrCorruptSection)
}

func TestVolumeRejectsOverflowingChunkSize(t *testing.T) {
	t.Parallel()

	v := &Volume{SectorsPerChunk: 1 << 16, BytesPerSector: 1 << 16, SectorCount: 1}
	b, err := v.MarshalBinary()
	require.NoError(t, err)

	var got Volume
	require.ErrorIs(t, got.UnmarshalBinary(b), ewftype.ErrMalformedSegment)
}

func TestVolumeSMART(t *testing.T) {
	t.Parallel()

	v := &Volume{ChunkCount: 3, SectorsPerChunk: 64, BytesPerSector: 512, SectorCount: 150}
	b, err := v.MarshalSMART()
	require.NoError(t, err)
	require.Len(t, b, VolumeSizeSMART)

	var got Volume
	require.NoError(t, got.UnmarshalBinary(b))
	assert.Equal(t, uint32(3), got.ChunkCount)
	assert.Equal(t, uint64(150), got.SectorCount)

	v.SectorCount = 1 << 40
	_, err = v.MarshalSMART()
	require.ErrorIs(t, err, ewftype.ErrSizeOverflow)
}

func TestHashesRoundTrip(t *testing.T) {
	t.Parallel()

	data := []byte("logical media stream")
	h := Hashes{MD5: md5.Sum(data), SHA1: sha1.Sum(data)} //nolint:gosec // EWF stores MD5 and SHA1

	hb, err := h.MarshalHash()
	require.NoError(t, err)
	db, err := h.MarshalDigest()
	require.NoError(t, err)

	var fromHash Hashes
	require.NoError(t, fromHash.UnmarshalHash(hb))
	assert.True(t, fromHash.HasMD5)
	assert.False(t, fromHash.HasSHA1)
	assert.Equal(t, h.MD5, fromHash.MD5)

	var fromDigest Hashes
	require.NoError(t, fromDigest.UnmarshalDigest(db))
	assert.True(t, fromDigest.HasSHA1)
	assert.Equal(t, h.SHA1, fromDigest.SHA1)

	db[3] ^= 1
	require.ErrorIs(t, fromDigest.UnmarshalDigest(db), ewftype.ErrCorruptSection)
	require.ErrorIs(t, fromDigest.UnmarshalHash(db), ewftype.ErrMalformedSegment)
}

func TestParseMediaType(t *testing.T) {
	t.Parallel()

	for _, m := range []MediaType{MediaRemovable, MediaFixed, MediaOptical, MediaLogical, MediaMemory} {
		got, err := ParseMediaType(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	_, err := ParseMediaType("floppy")
	require.ErrorIs(t, err, ewftype.ErrInvalidArgument)
}
