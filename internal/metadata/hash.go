package metadata

import (
	"fmt"

	"github.com/meigma/ewf/internal/ewftype"
)

// Payload sizes of the hash and digest sections.
const (
	HashSize   = 36
	DigestSize = 80
)

// Hashes holds the digests of the logical media stream.
type Hashes struct {
	MD5     [16]byte
	SHA1    [20]byte
	HasMD5  bool
	HasSHA1 bool
}

type hashData struct {
	MD5      [16]byte
	Unknown  [16]byte
	Checksum uint32
}

type digestData struct {
	MD5      [16]byte
	SHA1     [20]byte
	Pad      [40]byte
	Checksum uint32
}

// MarshalHash returns the payload of a hash section.
func (h *Hashes) MarshalHash() ([]byte, error) {
	return sealPayload(&hashData{MD5: h.MD5}, HashSize)
}

// MarshalDigest returns the payload of a digest section.
func (h *Hashes) MarshalDigest() ([]byte, error) {
	return sealPayload(&digestData{MD5: h.MD5, SHA1: h.SHA1}, DigestSize)
}

// UnmarshalHash merges the MD5 of a hash section payload into h.
func (h *Hashes) UnmarshalHash(b []byte) error {
	if len(b) != HashSize {
		return fmt.Errorf("%w: hash payload of %d bytes", ewftype.ErrMalformedSegment, len(b))
	}
	if err := checkPayload(b, "hash"); err != nil {
		return err
	}
	copy(h.MD5[:], b[:16])
	h.HasMD5 = true
	return nil
}

// UnmarshalDigest merges the MD5 and SHA1 of a digest section payload into h.
func (h *Hashes) UnmarshalDigest(b []byte) error {
	if len(b) != DigestSize {
		return fmt.Errorf("%w: digest payload of %d bytes", ewftype.ErrMalformedSegment, len(b))
	}
	if err := checkPayload(b, "digest"); err != nil {
		return err
	}
	copy(h.MD5[:], b[:16])
	copy(h.SHA1[:], b[16:36])
	h.HasMD5 = true
	h.HasSHA1 = !allZero(b[16:36])
	return nil
}

func allZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
