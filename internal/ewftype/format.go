// Package ewftype defines shared types used across the ewf package and its
// internal packages. This avoids circular imports between ewf and the
// segment, section, and chunk table packages.
package ewftype

import "fmt"

// Format identifies the on-disk flavor of an image.
type Format uint8

const (
	// FormatEnCase writes E01-style segments: header2 and header sections,
	// a 1052-byte volume section, data copies in later segments, and both
	// digest and hash sections.
	FormatEnCase Format = iota
	// FormatSMART writes legacy s01-style segments: a header section, a
	// 94-byte volume section, and a hash section.
	FormatSMART
)

func (f Format) String() string {
	switch f {
	case FormatEnCase:
		return "encase"
	case FormatSMART:
		return "smart"
	default:
		return fmt.Sprintf("unknown(%d)", f)
	}
}

// ParseFormat parses a format name as produced by [Format.String].
func ParseFormat(name string) (Format, error) {
	switch name {
	case "encase", "e01":
		return FormatEnCase, nil
	case "smart", "s01":
		return FormatSMART, nil
	default:
		return 0, fmt.Errorf("%w: unknown format %q", ErrInvalidArgument, name)
	}
}

// Kind distinguishes ordinary segment files from delta segment files.
type Kind uint8

const (
	// KindSegment is an ordinary segment carrying a run of chunks.
	KindSegment Kind = iota
	// KindDelta is a delta segment carrying chunk overrides.
	KindDelta
)

func (k Kind) String() string {
	switch k {
	case KindSegment:
		return "segment"
	case KindDelta:
		return "delta"
	default:
		return fmt.Sprintf("unknown(%d)", k)
	}
}
