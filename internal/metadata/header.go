// Package metadata encodes the acquisition metadata sections stored alongside
// chunk data: header, header2, volume, data, hash, and digest.
package metadata

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"

	"github.com/meigma/ewf/internal/codec"
	"github.com/meigma/ewf/internal/ewftype"
)

// Header text keys.
const (
	KeyCaseNumber     = "c"
	KeyEvidenceNumber = "n"
	KeyDescription    = "a"
	KeyExaminer       = "e"
	KeyNotes          = "t"
	KeyAppVersion     = "av"
	KeyOSVersion      = "ov"
	KeyAcquired       = "m"
	KeySystemDate     = "u"
	KeyPassword       = "p"
	KeyCompression    = "r"
)

var headerKeys = []string{
	KeyCaseNumber, KeyEvidenceNumber, KeyDescription, KeyExaminer, KeyNotes,
	KeyAppVersion, KeyOSVersion, KeyAcquired, KeySystemDate, KeyPassword, KeyCompression,
}

const (
	headerCategory = "main"
	maxHeaderText  = 1 << 20
)

// ErrHeaderText is returned when header text does not follow the category,
// keys, values layout.
var ErrHeaderText = errors.New("metadata: malformed header text")

var textCodec = codec.New(codec.LevelBest)

// Header holds the case information recorded with an acquisition.
type Header struct {
	CaseNumber     string
	EvidenceNumber string
	Description    string
	Examiner       string
	Notes          string
	AppVersion     string
	OSVersion      string
	AcquiredAt     time.Time
	SystemAt       time.Time
	Password       string
	Compression    string
	// Extra preserves keys this package does not interpret.
	Extra map[string]string
}

func (h *Header) values() map[string]string {
	v := map[string]string{
		KeyCaseNumber:     h.CaseNumber,
		KeyEvidenceNumber: h.EvidenceNumber,
		KeyDescription:    h.Description,
		KeyExaminer:       h.Examiner,
		KeyNotes:          h.Notes,
		KeyAppVersion:     h.AppVersion,
		KeyOSVersion:      h.OSVersion,
		KeyAcquired:       formatDate(h.AcquiredAt),
		KeySystemDate:     formatDate(h.SystemAt),
		KeyPassword:       h.Password,
		KeyCompression:    h.Compression,
	}
	for k, val := range h.Extra {
		if _, known := v[k]; !known {
			v[k] = val
		}
	}
	return v
}

// Text renders the header as category, key row, and value row.
func (h *Header) Text() string {
	vals := h.values()
	keys := append([]string(nil), headerKeys...)
	extra := make([]string, 0, len(h.Extra))
	for k := range h.Extra {
		if !isHeaderKey(k) {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	keys = append(keys, extra...)

	row := make([]string, len(keys))
	for i, k := range keys {
		row[i] = sanitize(vals[k])
	}
	var b strings.Builder
	b.WriteString("1\n")
	b.WriteString(headerCategory + "\n")
	b.WriteString(strings.Join(keys, "\t") + "\n")
	b.WriteString(strings.Join(row, "\t") + "\n")
	b.WriteString("\n")
	return b.String()
}

// ParseText parses header text as produced by Text. Unknown keys are kept in
// Extra; missing keys are left empty.
func ParseText(s string) (*Header, error) {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	if len(lines) < 4 {
		return nil, fmt.Errorf("%w: %d lines", ErrHeaderText, len(lines))
	}
	if _, err := strconv.Atoi(strings.TrimSpace(lines[0])); err != nil {
		return nil, fmt.Errorf("%w: category count %q", ErrHeaderText, lines[0])
	}
	keys := strings.Split(lines[2], "\t")
	vals := strings.Split(lines[3], "\t")
	if len(vals) > len(keys) {
		return nil, fmt.Errorf("%w: %d values for %d keys", ErrHeaderText, len(vals), len(keys))
	}

	h := &Header{}
	for i, k := range keys {
		v := ""
		if i < len(vals) {
			v = vals[i]
		}
		switch k {
		case KeyCaseNumber:
			h.CaseNumber = v
		case KeyEvidenceNumber:
			h.EvidenceNumber = v
		case KeyDescription:
			h.Description = v
		case KeyExaminer:
			h.Examiner = v
		case KeyNotes:
			h.Notes = v
		case KeyAppVersion:
			h.AppVersion = v
		case KeyOSVersion:
			h.OSVersion = v
		case KeyAcquired:
			h.AcquiredAt = parseDate(v)
		case KeySystemDate:
			h.SystemAt = parseDate(v)
		case KeyPassword:
			h.Password = v
		case KeyCompression:
			h.Compression = v
		default:
			if h.Extra == nil {
				h.Extra = make(map[string]string)
			}
			h.Extra[k] = v
		}
	}
	return h, nil
}

// MarshalBinary returns the payload of a header section: zlib-compressed
// ASCII text.
func (h *Header) MarshalBinary() ([]byte, error) {
	return textCodec.Deflate([]byte(h.Text()))
}

// UnmarshalBinary parses the payload of a header section.
func (h *Header) UnmarshalBinary(b []byte) error {
	text, err := textCodec.Decompress(b, maxHeaderText)
	if err != nil {
		return err
	}
	parsed, err := ParseText(string(text))
	if err != nil {
		return err
	}
	*h = *parsed
	return nil
}

var utf16 = unicode.UTF16(unicode.LittleEndian, unicode.UseBOM)

// MarshalHeader2 returns the payload of a header2 section: zlib-compressed
// UTF-16LE text with a byte order mark.
func (h *Header) MarshalHeader2() ([]byte, error) {
	wide, err := utf16.NewEncoder().String(h.Text())
	if err != nil {
		return nil, fmt.Errorf("%w: encode header2: %v", ewftype.ErrInvalidArgument, err)
	}
	return textCodec.Deflate([]byte(wide))
}

// UnmarshalHeader2 parses the payload of a header2 section.
func (h *Header) UnmarshalHeader2(b []byte) error {
	wide, err := textCodec.Decompress(b, 2*maxHeaderText)
	if err != nil {
		return err
	}
	text, err := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder().Bytes(wide)
	if err != nil {
		return fmt.Errorf("%w: decode header2: %v", ErrHeaderText, err)
	}
	parsed, err := ParseText(string(text))
	if err != nil {
		return err
	}
	*h = *parsed
	return nil
}

func isHeaderKey(k string) bool {
	for _, hk := range headerKeys {
		if hk == k {
			return true
		}
	}
	return false
}

// sanitize keeps values on one row of the tab-separated layout.
func sanitize(s string) string {
	return strings.NewReplacer("\t", " ", "\n", " ", "\r", " ").Replace(s)
}

// Dates are stored as "year month day hour minute second".
func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	t = t.UTC()
	return fmt.Sprintf("%d %d %d %d %d %d", t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())
}

func parseDate(s string) time.Time {
	fields := strings.Fields(s)
	if len(fields) != 6 {
		return time.Time{}
	}
	n := make([]int, 6)
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return time.Time{}
		}
		n[i] = v
	}
	return time.Date(n[0], time.Month(n[1]), n[2], n[3], n[4], n[5], 0, time.UTC)
}
