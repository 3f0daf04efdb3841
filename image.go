package ewf

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/meigma/ewf/internal/cache"
	"github.com/meigma/ewf/internal/chunktable"
	"github.com/meigma/ewf/internal/codec"
	"github.com/meigma/ewf/internal/ewftype"
	"github.com/meigma/ewf/internal/metadata"
	"github.com/meigma/ewf/internal/segment"
)

// Image is an opened image.
//
// Reads are safe for concurrent use. Delta writes are serialized with each
// other and with reads of the chunk table.
type Image struct {
	cfg      openConfig
	logger   *slog.Logger
	segments *segment.Table
	codec    *codec.Codec
	cache    *cache.Chunks

	mu     sync.RWMutex
	table  *chunktable.Table
	deltas map[uint16]*deltaState
	closed bool

	format  Format
	header  metadata.Header
	volume  metadata.Volume
	hashes  metadata.Hashes
	size    uint64
	lastLen int
}

// Format returns the detected format variant.
func (img *Image) Format() Format {
	return img.format
}

// Header returns the acquisition metadata.
func (img *Image) Header() Header {
	h := img.header
	h.Extra = maps.Clone(h.Extra)
	return h
}

// Media returns the media geometry from the volume section.
func (img *Image) Media() Volume {
	return img.volume
}

// StoredHashes returns the hashes recorded by the acquiring writer.
func (img *Image) StoredHashes() Hashes {
	return img.hashes
}

// ChunkSize returns the logical chunk size in bytes.
func (img *Image) ChunkSize() int {
	return int(img.volume.ChunkSize())
}

// ChunkCount returns the number of chunks in the image.
func (img *Image) ChunkCount() uint64 {
	img.mu.RLock()
	defer img.mu.RUnlock()
	return img.table.Len()
}

// Size returns the logical size of the media stream in bytes.
func (img *Image) Size() int64 {
	return int64(img.size) //nolint:gosec // bounded by chunk count times chunk size
}

// Segments returns the paths of every open segment file, ordinary segments
// first, each group in ascending number.
func (img *Image) Segments() []string {
	img.mu.RLock()
	defer img.mu.RUnlock()
	var paths []string
	for _, n := range img.segments.Numbers() {
		f, _ := img.segments.Segment(n)
		paths = append(paths, f.Path)
	}
	for _, n := range img.segments.DeltaNumbers() {
		f, _ := img.segments.Delta(n)
		paths = append(paths, f.Path)
	}
	return paths
}

// CacheStats returns the decoded chunk cache hit and miss counts.
func (img *Image) CacheStats() (hits, misses uint64) {
	return img.cache.Stats()
}

// SeekChunk returns where chunk n is stored.
func (img *Image) SeekChunk(n uint64) (ChunkLocation, error) {
	img.mu.RLock()
	defer img.mu.RUnlock()
	if img.closed {
		return ChunkLocation{}, ErrClosed
	}
	loc, err := img.table.Lookup(n)
	if err != nil {
		return ChunkLocation{}, err
	}
	f, err := img.fileFor(n, loc)
	if err != nil {
		return ChunkLocation{}, err
	}
	return ChunkLocation{
		Segment:    loc.Segment,
		Delta:      loc.Delta,
		Path:       f.Path,
		Offset:     loc.Offset,
		StoredSize: loc.Size,
		Compressed: loc.Compressed,
		Verified:   loc.Verified,
	}, nil
}

// ReadRawChunk returns the stored bytes of chunk n and whether they are
// compressed. The checksum trailer is verified.
func (img *Image) ReadRawChunk(n uint64) ([]byte, bool, error) {
	stored, loc, err := img.readStored(n)
	if err != nil {
		return nil, false, err
	}
	return stored, loc.Compressed, nil
}

// ReadChunk returns the logical bytes of chunk n. Decoded chunks are cached;
// the returned slice is a private copy.
func (img *Image) ReadChunk(n uint64) ([]byte, error) {
	data, err := img.loadChunk(n)
	if err != nil {
		return nil, err
	}
	return slices.Clone(data), nil
}

// ReadAt implements io.ReaderAt over the logical media stream.
func (img *Image) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("%w: negative offset %d", ErrInvalidArgument, off)
	}
	size := img.Size()
	if off >= size {
		return 0, io.EOF
	}
	chunkSize := int64(img.ChunkSize())
	n := 0
	for n < len(p) && off < size {
		data, err := img.loadChunk(uint64(off / chunkSize)) //nolint:gosec // off is non-negative
		if err != nil {
			return n, err
		}
		c := copy(p[n:], data[off%chunkSize:])
		n += c
		off += int64(c)
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Close releases every file handle. Close is idempotent.
func (img *Image) Close() error {
	img.mu.Lock()
	defer img.mu.Unlock()
	if img.closed {
		return nil
	}
	img.closed = true
	err := img.segments.Close()
	hits, misses := img.cache.Stats()
	img.logger.Debug("closed image", "cache_hits", hits, "cache_misses", misses)
	return err
}

// loadChunk returns the decoded chunk, shared with the cache.
func (img *Image) loadChunk(n uint64) ([]byte, error) {
	return img.cache.Load(n, func() ([]byte, error) {
		data, err := img.decodeChunk(n)
		if err != nil {
			return nil, err
		}
		if want := img.chunkLength(n); len(data) != want {
			return nil, fmt.Errorf("%w: chunk %d decodes to %d bytes, want %d",
				ErrInconsistentOffsetTable, n, len(data), want)
		}
		return data, nil
	})
}

func (img *Image) decodeChunk(n uint64) ([]byte, error) {
	stored, loc, err := img.readStored(n)
	if err != nil {
		return nil, err
	}
	if !loc.Compressed {
		return stored, nil
	}
	data, err := img.codec.Decompress(stored, img.ChunkSize())
	if err != nil {
		return nil, fmt.Errorf("chunk %d: %w", n, err)
	}
	return data, nil
}

// chunkLength returns the logical length of chunk n.
func (img *Image) chunkLength(n uint64) int {
	img.mu.RLock()
	defer img.mu.RUnlock()
	return img.chunkLengthLocked(n)
}

func (img *Image) chunkLengthLocked(n uint64) int {
	if n+1 == img.table.Len() {
		return img.lastLen
	}
	return img.ChunkSize()
}

// readStored reads chunk n and checks its trailer.
func (img *Image) readStored(n uint64) ([]byte, chunktable.Location, error) {
	img.mu.RLock()
	stored, loc, err := img.readStoredLocked(n)
	img.mu.RUnlock()
	if err != nil {
		return nil, loc, err
	}
	if !loc.Verified {
		img.markVerified(n, loc)
	}
	return stored, loc, nil
}

func (img *Image) readStoredLocked(n uint64) ([]byte, chunktable.Location, error) {
	if img.closed {
		return nil, chunktable.Location{}, ErrClosed
	}
	loc, err := img.table.Lookup(n)
	if err != nil {
		return nil, loc, err
	}
	f, err := img.fileFor(n, loc)
	if err != nil {
		return nil, loc, err
	}
	buf := make([]byte, int(loc.Size)+chunktable.TrailerSize)
	if got, err := f.ReadAt(buf, loc.Offset); got < len(buf) {
		return nil, loc, ewftype.Annotate(
			ewftype.AtOffset(ewftype.IOError(fmt.Sprintf("read chunk %d", n), orEOF(err)), loc.Offset), f.Path, f.Number)
	}
	stored := buf[:loc.Size]
	if !codec.Verify(stored, binary.LittleEndian.Uint32(buf[loc.Size:])) {
		return nil, loc, ewftype.Annotate(
			ewftype.AtOffset(fmt.Errorf("%w: chunk %d checksum mismatch", ErrCorruptSection, n), loc.Offset), f.Path, f.Number)
	}
	return stored, loc, nil
}

func (img *Image) fileFor(n uint64, loc chunktable.Location) (*segment.File, error) {
	kind := ewftype.KindSegment
	if loc.Delta {
		kind = ewftype.KindDelta
	}
	f, ok := img.segments.Get(loc.Segment, kind)
	if !ok {
		return nil, fmt.Errorf("%w: chunk %d refers to unknown %s %d",
			ErrInconsistentOffsetTable, n, kind, loc.Segment)
	}
	return f, nil
}

// markVerified records a successful trailer check unless the chunk was moved
// by a delta write in the meantime.
func (img *Image) markVerified(n uint64, loc chunktable.Location) {
	img.mu.Lock()
	defer img.mu.Unlock()
	cur, err := img.table.Lookup(n)
	if err == nil && cur.Segment == loc.Segment && cur.Delta == loc.Delta && cur.Offset == loc.Offset {
		img.table.MarkVerified(n)
	}
}

// computeSize derives the logical size from the chunk table, decoding the
// last chunk to learn its length.
func (img *Image) computeSize() error {
	count := img.table.Len()
	if count == 0 {
		img.size = 0
		return nil
	}
	last, err := img.decodeChunk(count - 1)
	if err != nil {
		return err
	}
	img.lastLen = len(last)
	img.size = (count-1)*uint64(img.ChunkSize()) + uint64(len(last))
	if declared := img.volume.MediaSize(); declared != 0 && declared != img.size {
		img.logger.Warn("volume media size disagrees with chunk data",
			"volume", declared, "chunks", img.size)
	}
	return nil
}

// verifyChunks checks the trailer of every chunk.
func (img *Image) verifyChunks(ctx context.Context) error {
	count := img.ChunkCount()
	for n := range count {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, _, err := img.readStored(n); err != nil {
			return err
		}
	}
	img.logger.Debug("verified chunk checksums", "chunks", count)
	return nil
}
