package codec

import "hash/adler32"

// Checksum is the function EWF uses for section descriptors, table payloads,
// and chunk trailers.
func Checksum(b []byte) uint32 {
	return adler32.Checksum(b)
}

// Verify reports whether want matches the checksum of b.
func Verify(b []byte, want uint32) bool {
	return adler32.Checksum(b) == want
}
