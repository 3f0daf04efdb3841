package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCachesResult(t *testing.T) {
	t.Parallel()

	c, err := New(4)
	require.NoError(t, err)

	var calls atomic.Int32
	fill := func() ([]byte, error) {
		calls.Add(1)
		return []byte("chunk"), nil
	}
	for range 3 {
		data, err := c.Load(7, fill)
		require.NoError(t, err)
		assert.Equal(t, []byte("chunk"), data)
	}
	assert.Equal(t, int32(1), calls.Load())

	hits, misses := c.Stats()
	assert.Equal(t, uint64(2), hits)
	assert.Equal(t, uint64(1), misses)

	c.Invalidate(7)
	_, err = c.Load(7, fill)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestLoadDoesNotCacheErrors(t *testing.T) {
	t.Parallel()

	c, err := New(4)
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = c.Load(1, func() ([]byte, error) { return nil, boom })
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len())
}

func TestLoadSkipsFillOverlappingInvalidate(t *testing.T) {
	t.Parallel()

	c, err := New(4)
	require.NoError(t, err)

	// The chunk is rewritten while the old bytes are being decoded.
	data, err := c.Load(5, func() ([]byte, error) {
		c.Invalidate(5)
		return []byte("old"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("old"), data)
	_, ok := c.Get(5)
	assert.False(t, ok)

	data, err = c.Load(5, func() ([]byte, error) { return []byte("new"), nil })
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), data)
	cached, ok := c.Get(5)
	require.True(t, ok)
	assert.Equal(t, []byte("new"), cached)
}

func TestEviction(t *testing.T) {
	t.Parallel()

	c, err := New(2)
	require.NoError(t, err)
	for i := range uint64(3) {
		_, err := c.Load(i, func() ([]byte, error) { return []byte{byte(i)}, nil })
		require.NoError(t, err)
	}
	assert.Equal(t, 2, c.Len())
	_, ok := c.Get(0)
	assert.False(t, ok)
}

func TestConcurrentLoadSharesFill(t *testing.T) {
	t.Parallel()

	c, err := New(8)
	require.NoError(t, err)

	var calls atomic.Int32
	release := make(chan struct{})
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data, err := c.Load(3, func() ([]byte, error) {
				calls.Add(1)
				<-release
				return []byte("x"), nil
			})
			assert.NoError(t, err)
			assert.Equal(t, []byte("x"), data)
		}()
	}
	close(release)
	wg.Wait()
	assert.LessOrEqual(t, calls.Load(), int32(8))
	assert.Equal(t, 1, c.Len())
}

func TestNilCache(t *testing.T) {
	t.Parallel()

	c, err := New(0)
	require.NoError(t, err)
	assert.Nil(t, c)

	data, err := c.Load(1, func() ([]byte, error) { return []byte("direct"), nil })
	require.NoError(t, err)
	assert.Equal(t, []byte("direct"), data)
	c.Invalidate(1)
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 0, EntriesFor(0, 512))
	assert.Equal(t, 4, EntriesFor(4*32768, 32768))
}
