// Package testutil provides fixtures shared by the ewf tests.
package testutil

import (
	"io"
	"math/rand/v2"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// MockFile is an in-memory file supporting io.ReaderAt and io.WriterAt.
// Writes past the end grow the file.
type MockFile struct {
	mu   sync.RWMutex
	data []byte
}

// NewMockFile returns a file backed by a copy of data.
func NewMockFile(data []byte) *MockFile {
	return &MockFile{data: append([]byte(nil), data...)}
}

// ReadAt implements io.ReaderAt semantics over the backing slice.
func (m *MockFile) ReadAt(p []byte, off int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt implements io.WriterAt semantics, growing the slice as needed.
func (m *MockFile) WriteAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	end := int(off) + len(p)
	if end > len(m.data) {
		m.data = append(m.data, make([]byte, end-len(m.data))...)
	}
	return copy(m.data[off:], p), nil
}

// Size returns the current size of the file.
func (m *MockFile) Size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.data))
}

// Bytes returns the backing slice for tests that need to mutate data.
func (m *MockFile) Bytes() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data
}

// NewRand returns a deterministic generator for the given seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) //nolint:gosec // test data only
}

// RandomBytes returns n bytes of incompressible data.
func RandomBytes(rng *rand.Rand, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(rng.UintN(256))
	}
	return b
}

// CompressibleBytes returns n bytes built from a short repeated pattern so
// zlib shrinks them reliably.
func CompressibleBytes(rng *rand.Rand, n int) []byte {
	pattern := RandomBytes(rng, 16)
	b := make([]byte, n)
	for i := range b {
		b[i] = pattern[i%len(pattern)]
	}
	return b
}

// MixedChunks returns count chunks of chunkSize bytes alternating between
// compressible and random content. When ragged is set the final chunk is
// shorter than chunkSize.
func MixedChunks(rng *rand.Rand, count, chunkSize int, ragged bool) [][]byte {
	chunks := make([][]byte, count)
	for i := range chunks {
		size := chunkSize
		if ragged && i == count-1 {
			size = 1 + rng.IntN(chunkSize-1)
		}
		if rng.IntN(2) == 0 {
			chunks[i] = CompressibleBytes(rng, size)
		} else {
			chunks[i] = RandomBytes(rng, size)
		}
	}
	return chunks
}

// FlipBit inverts one bit of the file at path.
func FlipBit(t testing.TB, path string, offset int64, bit uint) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	defer f.Close()

	var b [1]byte
	_, err = f.ReadAt(b[:], offset)
	require.NoError(t, err)
	b[0] ^= 1 << (bit % 8)
	_, err = f.WriteAt(b[:], offset)
	require.NoError(t, err)
}
