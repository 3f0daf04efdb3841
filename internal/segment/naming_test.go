package segment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/ewf/internal/ewftype"
)

func TestComposeExtensionKnownValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		number uint16
		format ewftype.Format
		kind   ewftype.Kind
		want   string
	}{
		{1, ewftype.FormatEnCase, ewftype.KindSegment, "E01"},
		{99, ewftype.FormatEnCase, ewftype.KindSegment, "E99"},
		{100, ewftype.FormatEnCase, ewftype.KindSegment, "EAA"},
		{101, ewftype.FormatEnCase, ewftype.KindSegment, "EAB"},
		{775, ewftype.FormatEnCase, ewftype.KindSegment, "EZZ"},
		{776, ewftype.FormatEnCase, ewftype.KindSegment, "FAA"},
		{1, ewftype.FormatSMART, ewftype.KindSegment, "s01"},
		{100, ewftype.FormatSMART, ewftype.KindSegment, "saa"},
		{1, ewftype.FormatEnCase, ewftype.KindDelta, "d01"},
		{1, ewftype.FormatSMART, ewftype.KindDelta, "d01"},
	}
	for _, tc := range tests {
		t.Run(tc.want, func(t *testing.T) {
			t.Parallel()
			limit := uint16(DefaultCapacity(tc.format, tc.kind))
			got, err := ComposeExtension(tc.number, limit, tc.format, tc.kind)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)

			back, wide, err := ParseExtension(got, tc.format, tc.kind)
			require.NoError(t, err)
			assert.False(t, wide)
			assert.Equal(t, tc.number, back)
		})
	}
}

func TestComposeExtensionInjective(t *testing.T) {
	t.Parallel()

	variants := []struct {
		name   string
		format ewftype.Format
		kind   ewftype.Kind
	}{
		{"encase", ewftype.FormatEnCase, ewftype.KindSegment},
		{"smart", ewftype.FormatSMART, ewftype.KindSegment},
		{"delta", ewftype.FormatEnCase, ewftype.KindDelta},
	}
	for _, v := range variants {
		for _, limit := range []uint16{1, 99, 100, uint16(DefaultCapacity(v.format, v.kind)), MaxSegmentNumber} {
			seen := make(map[string]uint16, int(limit))
			for n := uint16(1); ; n++ {
				ext, err := ComposeExtension(n, limit, v.format, v.kind)
				require.NoError(t, err, "%s n=%d limit=%d", v.name, n, limit)
				prev, dup := seen[ext]
				require.False(t, dup, "%s: %q produced by %d and %d", v.name, ext, prev, n)
				seen[ext] = n

				back, _, err := ParseExtension(ext, v.format, v.kind)
				require.NoError(t, err)
				require.Equal(t, n, back)
				if n == limit {
					break
				}
			}
		}
	}
}

func TestComposeExtensionWideScheme(t *testing.T) {
	t.Parallel()

	limit := uint16(DefaultCapacity(ewftype.FormatEnCase, ewftype.KindSegment) + 1)
	ext, err := ComposeExtension(1, limit, ewftype.FormatEnCase, ewftype.KindSegment)
	require.NoError(t, err)
	assert.Equal(t, "E00001", ext)

	n, wide, err := ParseExtension(ext, ewftype.FormatEnCase, ewftype.KindSegment)
	require.NoError(t, err)
	assert.True(t, wide)
	assert.Equal(t, uint16(1), n)
}

func TestComposeExtensionErrors(t *testing.T) {
	t.Parallel()

	_, err := ComposeExtension(0, 10, ewftype.FormatEnCase, ewftype.KindSegment)
	require.ErrorIs(t, err, ewftype.ErrInvalidArgument)

	_, err = ComposeExtension(11, 10, ewftype.FormatEnCase, ewftype.KindSegment)
	require.ErrorIs(t, err, ewftype.ErrInvalidArgument)
}

func TestParseExtensionRejects(t *testing.T) {
	t.Parallel()

	for _, ext := range []string{"", "E0", "E00", "x01", "s01", "EA1", "Eaa", "e01"} {
		_, _, err := ParseExtension(ext, ewftype.FormatEnCase, ewftype.KindSegment)
		assert.ErrorIs(t, err, ewftype.ErrInvalidArgument, ext)
	}
}

func TestComposeFilename(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "/evidence/disk.E01", ComposeFilename("/evidence/disk", "E01"))
}

func TestSniff(t *testing.T) {
	t.Parallel()

	f, k, ok := Sniff("E01")
	require.True(t, ok)
	assert.Equal(t, ewftype.FormatEnCase, f)
	assert.Equal(t, ewftype.KindSegment, k)

	f, k, ok = Sniff("s01")
	require.True(t, ok)
	assert.Equal(t, ewftype.FormatSMART, f)
	assert.Equal(t, ewftype.KindSegment, k)

	_, k, ok = Sniff("d01")
	require.True(t, ok)
	assert.Equal(t, ewftype.KindDelta, k)

	_, _, ok = Sniff("raw")
	assert.False(t, ok)
}
