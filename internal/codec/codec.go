// Package codec compresses and decompresses EWF chunks and section payloads.
//
// Chunks use zlib. A chunk whose compressed form is not smaller than its
// input is reported as [ErrIncompressible] and the caller stores it raw.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zlib"
	"github.com/valyala/bytebufferpool"

	"github.com/meigma/ewf/internal/ewftype"
	"github.com/meigma/ewf/internal/sizing"
)

var (
	// ErrCodec is returned when compressed data cannot be decoded or encoded.
	ErrCodec = ewftype.ErrCodec

	// ErrIncompressible indicates compression did not shrink the input.
	ErrIncompressible = errors.New("codec: incompressible")
)

// Level selects the zlib effort used for chunk data.
type Level uint8

const (
	// LevelNone stores every chunk uncompressed.
	LevelNone Level = iota
	// LevelFast favors throughput.
	LevelFast
	// LevelBest favors ratio.
	LevelBest
)

// String returns the name used in flags and metadata.
func (l Level) String() string {
	switch l {
	case LevelNone:
		return "none"
	case LevelFast:
		return "fast"
	case LevelBest:
		return "best"
	default:
		return fmt.Sprintf("unknown(%d)", l)
	}
}

// ParseLevel parses a level name as produced by [Level.String].
func ParseLevel(name string) (Level, error) {
	switch name {
	case "none":
		return LevelNone, nil
	case "fast":
		return LevelFast, nil
	case "best":
		return LevelBest, nil
	default:
		return 0, fmt.Errorf("unknown compression level: %q", name)
	}
}

func (l Level) zlibLevel() int {
	switch l {
	case LevelBest:
		return zlib.BestCompression
	case LevelFast:
		return zlib.BestSpeed
	default:
		return zlib.NoCompression
	}
}

// Codec holds pooled zlib writers and readers for one compression level.
// A Codec is safe for concurrent use.
type Codec struct {
	level   Level
	writers sync.Pool
	readers sync.Pool
}

// New returns a codec for the given level.
func New(level Level) *Codec {
	return &Codec{level: level}
}

// Level returns the configured compression level.
func (c *Codec) Level() Level {
	return c.level
}

// Compress returns the zlib form of data.
// It returns ErrIncompressible when the level is LevelNone or when the result
// would not be smaller than data.
func (c *Codec) Compress(data []byte) ([]byte, error) {
	if c.level == LevelNone {
		return nil, ErrIncompressible
	}
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	if err := c.deflate(buf, data); err != nil {
		return nil, err
	}
	if buf.Len() >= len(data) {
		return nil, ErrIncompressible
	}
	out := make([]byte, buf.Len())
	copy(out, buf.B)
	return out, nil
}

// Deflate compresses data unconditionally. Section payloads such as the
// header text are always stored compressed.
func (c *Codec) Deflate(data []byte) ([]byte, error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	if err := c.deflate(buf, data); err != nil {
		return nil, err
	}
	out := make([]byte, buf.Len())
	copy(out, buf.B)
	return out, nil
}

func (c *Codec) deflate(dst io.Writer, data []byte) error {
	zw, release, err := c.getWriter(dst)
	if err != nil {
		return err
	}
	defer release()

	if _, err := zw.Write(data); err != nil {
		return fmt.Errorf("%w: deflate: %v", ErrCodec, err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("%w: deflate: %v", ErrCodec, err)
	}
	return nil
}

// Decompress inflates stored into at most maxSize bytes.
// Chunks at the end of an image may be shorter than the nominal chunk size,
// so maxSize is an upper bound rather than an exact length.
func (c *Codec) Decompress(stored []byte, maxSize int) ([]byte, error) {
	if maxSize < 0 {
		return nil, fmt.Errorf("%w: negative size %d", ErrCodec, maxSize)
	}
	zr, release, err := c.getReader(bytes.NewReader(stored))
	if err != nil {
		return nil, err
	}
	defer release()

	out, err := sizing.ReadAllWithLimit(zr, uint64(maxSize), ErrCodec)
	if err != nil {
		if errors.Is(err, ErrCodec) {
			return nil, fmt.Errorf("%w: inflated data exceeds %d bytes", ErrCodec, maxSize)
		}
		return nil, fmt.Errorf("%w: inflate: %v", ErrCodec, err)
	}
	return out, nil
}

// getWriter returns a pooled zlib writer targeting dst.
// The caller must call release when done.
func (c *Codec) getWriter(dst io.Writer) (*zlib.Writer, func(), error) {
	if v := c.writers.Get(); v != nil {
		if zw, ok := v.(*zlib.Writer); ok {
			zw.Reset(dst)
			return zw, func() { c.writers.Put(zw) }, nil
		}
	}
	level := c.level.zlibLevel()
	if c.level == LevelNone {
		level = zlib.DefaultCompression
	}
	zw, err := zlib.NewWriterLevel(dst, level)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: new writer: %v", ErrCodec, err)
	}
	return zw, func() { c.writers.Put(zw) }, nil
}

// getReader returns a pooled zlib reader over src.
// If an error is returned, no release function needs to be called.
func (c *Codec) getReader(src io.Reader) (io.ReadCloser, func(), error) {
	if v := c.readers.Get(); v != nil {
		zr, ok := v.(io.ReadCloser)
		resetter, canReset := v.(zlib.Resetter)
		if ok && canReset {
			if err := resetter.Reset(src, nil); err == nil {
				return zr, func() { c.readers.Put(zr) }, nil
			}
		}
	}
	zr, err := zlib.NewReader(src)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrCodec, err)
	}
	return zr, func() { c.readers.Put(zr) }, nil
}
