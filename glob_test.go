package ewf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGlob(t *testing.T) {
	t.Parallel()

	_, _, paths := multiSegmentImage(t, 10)
	require.Greater(t, len(paths), 2)

	for _, from := range []string{paths[0], paths[len(paths)-1]} {
		got, err := Glob(from)
		require.NoError(t, err)
		assert.Equal(t, paths, got)
	}
}

func TestGlobStopsAtGap(t *testing.T) {
	t.Parallel()

	_, _, paths := multiSegmentImage(t, 12)
	require.NoError(t, os.Remove(paths[2]))

	got, err := Glob(paths[0])
	require.NoError(t, err)
	assert.Equal(t, paths[:2], got)
}

func TestGlobWideScheme(t *testing.T) {
	t.Parallel()

	basename := filepath.Join(t.TempDir(), "wide")
	paths := writeImage(t, basename, [][]byte{make([]byte, testChunkSize)}, CreateWithMaxSegments(20000))
	require.Equal(t, []string{basename + ".E00001"}, paths)

	got, err := Glob(paths[0])
	require.NoError(t, err)
	assert.Equal(t, paths, got)

	testOpen(t, got)
}

func TestGlobErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, err := Glob(filepath.Join(dir, "image.raw"))
	require.ErrorIs(t, err, ErrNotSegmentFile)

	_, err = Glob(filepath.Join(dir, "image.E01"))
	require.ErrorIs(t, err, ErrMissingSegment)
}
