package ewf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/meigma/ewf/internal/ewftype"
	"github.com/meigma/ewf/internal/segment"
)

// Glob returns the files of the image that path belongs to: its ordinary
// segments in segment order, then its delta segments. path may name any file
// of the set. Probing stops at the first missing number.
func Glob(path string) ([]string, error) {
	ext := filepath.Ext(path)
	format, kind, ok := segment.Sniff(strings.TrimPrefix(ext, "."))
	if !ok {
		return nil, fmt.Errorf("%w: %s has no segment extension", ErrNotSegmentFile, path)
	}
	base := strings.TrimSuffix(path, ext)

	formats := []Format{format}
	if kind == ewftype.KindDelta {
		formats = []Format{FormatEnCase, FormatSMART}
	}
	var files []string
	for _, f := range formats {
		if files = probe(base, f, ewftype.KindSegment); len(files) > 0 {
			format = f
			break
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no first segment next to %s", ErrMissingSegment, path)
	}
	return append(files, probe(base, format, ewftype.KindDelta)...), nil
}

// probe lists base's files of one kind starting at number 1, trying the
// default naming scheme and then the wide ones.
func probe(base string, format Format, kind ewftype.Kind) []string {
	capacity := segment.DefaultCapacity(format, kind)
	for _, limit := range []int{capacity, 9999, segment.MaxSegmentNumber} {
		if limit < capacity {
			continue
		}
		var files []string
		for n := 1; n <= limit; n++ {
			ext, err := segment.ComposeExtension(uint16(n), uint16(limit), format, kind) //nolint:gosec // limit fits in uint16
			if err != nil {
				break
			}
			name := segment.ComposeFilename(base, ext)
			if _, err := os.Stat(name); err != nil {
				break
			}
			files = append(files, name)
		}
		if len(files) > 0 {
			return files
		}
	}
	return nil
}
