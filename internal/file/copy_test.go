package file

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	bytes.Buffer
	sizes []int
}

func (w *recordingWriter) Write(p []byte) (int, error) {
	w.sizes = append(w.sizes, len(p))
	return w.Buffer.Write(p)
}

func TestCopyWithContextFullBuffers(t *testing.T) {
	t.Parallel()

	src := bytes.Repeat([]byte("abcdefg"), 100)
	dst := &recordingWriter{}
	n, err := CopyWithContext(context.Background(), dst, iotest.OneByteReader(bytes.NewReader(src)), make([]byte, 64))
	require.NoError(t, err)
	assert.Equal(t, uint64(len(src)), n)
	assert.Equal(t, src, dst.Bytes())

	for _, size := range dst.sizes[:len(dst.sizes)-1] {
		assert.Equal(t, 64, size)
	}
	assert.Equal(t, len(src)%64, dst.sizes[len(dst.sizes)-1])
}

func TestCopyWithContextEmpty(t *testing.T) {
	t.Parallel()

	dst := &recordingWriter{}
	n, err := CopyWithContext(context.Background(), dst, bytes.NewReader(nil), make([]byte, 16))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, dst.sizes)
}

func TestCopyWithContextCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n, err := CopyWithContext(ctx, io.Discard, bytes.NewReader([]byte("data")), make([]byte, 16))
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, n)
}

func TestCopyWithContextReadError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	_, err := CopyWithContext(context.Background(), io.Discard, iotest.ErrReader(boom), make([]byte, 16))
	require.ErrorIs(t, err, boom)
}

type shortWriter struct{}

func (shortWriter) Write(p []byte) (int, error) { return len(p) / 2, nil }

func TestCopyWithContextShortWrite(t *testing.T) {
	t.Parallel()

	_, err := CopyWithContext(context.Background(), shortWriter{}, bytes.NewReader([]byte("abcdef")), make([]byte, 16))
	require.ErrorIs(t, err, io.ErrShortWrite)
}

func TestCountingWriter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	cw := &CountingWriter{W: &buf}
	for _, s := range []string{"abc", "", "defgh"} {
		n, err := cw.Write([]byte(s))
		require.NoError(t, err)
		assert.Equal(t, len(s), n)
	}
	assert.Equal(t, uint64(8), cw.N)
	assert.Equal(t, "abcdefgh", buf.String())

	cw.N = ^uint64(0) - 1
	_, err := cw.Write([]byte("xy"))
	require.ErrorIs(t, err, ErrOverflow)
}
