package sizing

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTooBig = errors.New("too big")

func TestToUint32(t *testing.T) {
	t.Parallel()

	v, err := ToUint32(math.MaxUint32, errTooBig)
	require.NoError(t, err)
	assert.Equal(t, uint32(math.MaxUint32), v)

	_, err = ToUint32(math.MaxUint32+1, errTooBig)
	require.ErrorIs(t, err, errTooBig)
}

func TestCeilDiv(t *testing.T) {
	t.Parallel()

	tests := []struct {
		n, d, want uint64
	}{
		{0, 512, 0},
		{1, 512, 1},
		{512, 512, 1},
		{513, 512, 2},
		{math.MaxUint64, 1, math.MaxUint64},
		{math.MaxUint64, 2, 1 << 63},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CeilDiv(tt.n, tt.d), "ceil(%d/%d)", tt.n, tt.d)
	}
}

func TestReadAllWithLimit(t *testing.T) {
	t.Parallel()

	data, err := ReadAllWithLimit(bytes.NewReader([]byte("12345")), 5, errTooBig)
	require.NoError(t, err)
	assert.Equal(t, "12345", string(data))

	_, err = ReadAllWithLimit(bytes.NewReader([]byte("123456")), 5, errTooBig)
	require.ErrorIs(t, err, errTooBig)
}
