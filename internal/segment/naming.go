package segment

import (
	"fmt"
	"math"
	"strconv"

	"github.com/meigma/ewf/internal/ewftype"
)

// MaxSegmentNumber is the largest number the file signature can carry.
const MaxSegmentNumber = math.MaxUint16

const (
	numericSegments = 99
	letterPairs     = 26 * 26
)

// baseLetter returns the first extension letter for segment 1.
func baseLetter(format ewftype.Format, kind ewftype.Kind) byte {
	switch {
	case kind == ewftype.KindDelta:
		return 'd'
	case format == ewftype.FormatSMART:
		return 's'
	default:
		return 'E'
	}
}

func alphabetStart(letter byte) byte {
	if letter >= 'a' {
		return 'a'
	}
	return 'A'
}

// DefaultCapacity returns how many segment numbers the default scheme can
// name: two digits up to 99, then letter pairs while the leading letter
// advances to Z.
func DefaultCapacity(format ewftype.Format, kind ewftype.Kind) int {
	base := baseLetter(format, kind)
	leading := int(alphabetStart(base)+25-base) + 1
	return min(numericSegments+letterPairs*leading, MaxSegmentNumber)
}

// ComposeExtension returns the extension for segment number within an image
// of at most maxSegments segments. When maxSegments exceeds the default
// capacity every extension uses the wide numeric scheme so that a single
// image never mixes schemes.
func ComposeExtension(number, maxSegments uint16, format ewftype.Format, kind ewftype.Kind) (string, error) {
	if number == 0 {
		return "", fmt.Errorf("%w: segment number 0", ewftype.ErrInvalidArgument)
	}
	if maxSegments == 0 || number > maxSegments {
		return "", fmt.Errorf("%w: segment number %d exceeds maximum %d",
			ewftype.ErrInvalidArgument, number, maxSegments)
	}
	base := baseLetter(format, kind)
	if int(maxSegments) > DefaultCapacity(format, kind) {
		return fmt.Sprintf("%c%0*d", base, wideWidth(maxSegments), number), nil
	}
	if number <= numericSegments {
		return fmt.Sprintf("%c%02d", base, number), nil
	}

	alpha := alphabetStart(base)
	n := int(number) - numericSegments - 1
	third := alpha + byte(n%26)
	n /= 26
	second := alpha + byte(n%26)
	n /= 26
	first := int(base) + n
	if first > int(alpha+25) {
		// Unreachable while maxSegments is within DefaultCapacity.
		return "", fmt.Errorf("%w: segment number %d", ewftype.ErrSegmentLimitExceeded, number)
	}
	return string([]byte{byte(first), second, third}), nil
}

// ComposeFilename joins a basename and an extension.
func ComposeFilename(basename, extension string) string {
	return basename + "." + extension
}

func wideWidth(maxSegments uint16) int {
	return max(3, len(strconv.Itoa(int(maxSegments))))
}

// ParseExtension is the inverse of ComposeExtension. wide reports whether the
// extension uses the wide numeric scheme.
func ParseExtension(ext string, format ewftype.Format, kind ewftype.Kind) (number uint16, wide bool, err error) {
	base := baseLetter(format, kind)
	alpha := alphabetStart(base)
	invalid := fmt.Errorf("%w: extension %q is not a %s extension", ewftype.ErrInvalidArgument, ext, kindName(format, kind))
	if len(ext) < 3 || ext[0] < base || ext[0] > alpha+25 {
		return 0, false, invalid
	}
	rest := ext[1:]
	if digits(rest) {
		if ext[0] != base {
			return 0, false, invalid
		}
		v, perr := strconv.Atoi(rest)
		if perr != nil || v == 0 || v > MaxSegmentNumber {
			return 0, false, invalid
		}
		return uint16(v), len(rest) > 2, nil //nolint:gosec // bounded above
	}
	if len(rest) != 2 || !inAlphabet(rest[0], alpha) || !inAlphabet(rest[1], alpha) {
		return 0, false, invalid
	}
	v := numericSegments + 1 +
		int(ext[0]-base)*letterPairs +
		int(rest[0]-alpha)*26 +
		int(rest[1]-alpha)
	if v > MaxSegmentNumber {
		return 0, false, invalid
	}
	return uint16(v), false, nil
}

// Sniff guesses the format and kind of a segment from the extension of its
// first file.
func Sniff(ext string) (ewftype.Format, ewftype.Kind, bool) {
	if len(ext) < 3 {
		return 0, 0, false
	}
	switch ext[0] {
	case 'E':
		return ewftype.FormatEnCase, ewftype.KindSegment, true
	case 's':
		return ewftype.FormatSMART, ewftype.KindSegment, true
	case 'd':
		return ewftype.FormatEnCase, ewftype.KindDelta, true
	default:
		return 0, 0, false
	}
}

func kindName(format ewftype.Format, kind ewftype.Kind) string {
	if kind == ewftype.KindDelta {
		return "delta"
	}
	return format.String()
}

func digits(s string) bool {
	for i := range len(s) {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

func inAlphabet(c, alpha byte) bool {
	return c >= alpha && c <= alpha+25
}
