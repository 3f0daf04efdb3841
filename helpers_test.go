package ewf

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meigma/ewf/internal/section"
	"github.com/meigma/ewf/internal/segment"
	"github.com/meigma/ewf/internal/testutil"
)

// testChunkSize is the logical chunk size used by most tests: 8 x 512.
const testChunkSize = 4096

func testCreate(t *testing.T, basename string, opts ...CreateOption) *Writer {
	t.Helper()
	opts = append([]CreateOption{CreateWithChunkSize(8, 512)}, opts...)
	w, err := Create(basename, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

// writeImage writes chunks through WriteChunk and finalizes the image. It
// returns the segment file paths.
func writeImage(t *testing.T, basename string, chunks [][]byte, opts ...CreateOption) []string {
	t.Helper()
	w := testCreate(t, basename, opts...)
	for i, c := range chunks {
		n, err := w.WriteChunk(c)
		require.NoError(t, err)
		require.Equal(t, uint64(i), n)
	}
	require.NoError(t, w.Finalize())
	require.NoError(t, w.Close())
	return w.Segments()
}

// multiSegmentImage writes count random chunks into 16 KiB segments, which
// holds at most three chunks per segment.
func multiSegmentImage(t *testing.T, count int) (basename string, chunks [][]byte, paths []string) {
	t.Helper()
	rng := testutil.NewRand(uint64(count))
	chunks = make([][]byte, count)
	for i := range chunks {
		chunks[i] = testutil.RandomBytes(rng, testChunkSize)
	}
	basename = filepath.Join(t.TempDir(), "evidence")
	paths = writeImage(t, basename, chunks, CreateWithMaxSegmentSize(MinSegmentSize))
	return basename, chunks, paths
}

func testOpen(t *testing.T, paths []string, opts ...OpenOption) *Image {
	t.Helper()
	img, err := Open(context.Background(), paths, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = img.Close() })
	return img
}

func concat(chunks [][]byte) []byte {
	return bytes.Join(chunks, nil)
}

// findSections returns the records of type typ in the segment file at path.
func findSections(t *testing.T, path string, typ section.Type) []section.Record {
	t.Helper()
	f, err := segment.OpenFile(path, false)
	require.NoError(t, err)
	defer f.Close()
	secs, err := f.ReadSections()
	require.NoError(t, err)
	return secs.FindAll(typ)
}

// rewriteTerminal replaces the terminal section of the segment file at path.
func rewriteTerminal(t *testing.T, path string, typ section.Type) {
	t.Helper()
	last := lastSection(t, path)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	defer f.Close()
	_, err = section.WriteTerminal(f, last.Offset, typ)
	require.NoError(t, err)
}

func lastSection(t *testing.T, path string) section.Record {
	t.Helper()
	f, err := segment.OpenFile(path, false)
	require.NoError(t, err)
	defer f.Close()
	secs, err := f.ReadSections()
	require.NoError(t, err)
	last, ok := secs.Last()
	require.True(t, ok)
	return last
}

func copyFile(t *testing.T, src, dst string) {
	t.Helper()
	data, err := os.ReadFile(src)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(dst, data, 0o600))
}
