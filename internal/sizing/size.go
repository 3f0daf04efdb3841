// Package sizing provides safe size arithmetic and conversions for on-disk
// offsets, chunk counts, and sector counts.
package sizing

import (
	"io"
	"math"
)

// ToUint32 converts a uint64 to uint32, returning overflowErr if it doesn't
// fit.
func ToUint32(v uint64, overflowErr error) (uint32, error) {
	if v > math.MaxUint32 {
		return 0, overflowErr
	}
	return uint32(v), nil
}

// CeilDiv returns ceil(n / d). d must be non-zero.
func CeilDiv(n, d uint64) uint64 {
	if n == 0 {
		return 0
	}
	return (n-1)/d + 1
}

// ReadAllWithLimit reads up to maxSize bytes from r.
// Returns overflowErr if more than maxSize bytes are available.
func ReadAllWithLimit(r io.Reader, maxSize uint64, overflowErr error) ([]byte, error) {
	if maxSize > uint64(math.MaxInt-1) {
		return nil, overflowErr
	}
	limit := int64(maxSize) + 1 //nolint:gosec // checked above
	lr := &io.LimitedReader{R: r, N: limit}
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if uint64(len(data)) > maxSize { //nolint:gosec // len is always non-negative
		return nil, overflowErr
	}
	return data, nil
}
