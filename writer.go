package ewf

import (
	"context"
	"crypto/md5"  //nolint:gosec // EWF stores MD5 of the media stream
	"crypto/sha1" //nolint:gosec // EWF stores SHA1 of the media stream
	"errors"
	"fmt"
	"hash"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/meigma/ewf/internal/chunktable"
	"github.com/meigma/ewf/internal/codec"
	"github.com/meigma/ewf/internal/ewftype"
	"github.com/meigma/ewf/internal/file"
	"github.com/meigma/ewf/internal/metadata"
	"github.com/meigma/ewf/internal/segment"
	"github.com/meigma/ewf/internal/sizing"
)

// Writer creates a new image, one chunk at a time.
//
// Chunks are appended to the current segment file until the next chunk would
// push it past the configured segment size, at which point the segment is
// closed with a "next" section and a new one is started. Finalize closes the
// last segment with a "done" section.
//
// A Writer is not safe for concurrent use.
type Writer struct {
	cfg       writerConfig
	chunkSize int
	segments  *segment.Table
	table     *chunktable.Table
	codec     *codec.Codec
	volume    metadata.Volume
	header    metadata.Header

	// Per-segment write state.
	current       *segment.File
	number        uint16
	offset        int64
	run           *pendingRun
	segmentChunks int

	partial []byte
	short   bool
	md5     hash.Hash
	sha1    hash.Hash
	written uint64

	err       error
	finalized bool
	closed    bool
}

// Create prepares a new image whose segment files are named basename.E01,
// basename.E02, and so on (basename.s01 for FormatSMART). No file is created
// until the first chunk is written or the image is finalized. Existing files
// are never overwritten.
func Create(basename string, opts ...CreateOption) (*Writer, error) {
	cfg := writerConfig{
		maxSegmentSize:  DefaultMaxSegmentSize,
		format:          FormatEnCase,
		sectorsPerChunk: DefaultSectorsPerChunk,
		bytesPerSector:  DefaultBytesPerSector,
		compression:     CompressionFast,
		mediaType:       MediaFixed,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	chunkSize, err := cfg.validate(basename)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(filepath.Dir(basename)); err != nil {
		return nil, ewftype.IOError("create image", err)
	}
	if cfg.setID == uuid.Nil {
		cfg.setID = uuid.New()
	}

	w := &Writer{
		cfg:       cfg,
		chunkSize: chunkSize,
		segments:  segment.NewTable(basename, cfg.maxSegments, cfg.format, cfg.logger),
		table:     chunktable.New(0),
		codec:     codec.New(cfg.compression),
		md5:       md5.New(), //nolint:gosec // format requirement
		sha1:      sha1.New(), //nolint:gosec // format requirement
	}
	if err := w.initMetadata(); err != nil {
		return nil, err
	}
	w.log().Info("creating image",
		"basename", basename,
		"format", cfg.format.String(),
		"chunk_size", chunkSize,
		"max_segment_size", cfg.maxSegmentSize,
		"compression", cfg.compression.String())
	return w, nil
}

func (cfg *writerConfig) validate(basename string) (int, error) {
	if basename == "" {
		return 0, fmt.Errorf("%w: empty basename", ErrInvalidArgument)
	}
	if cfg.maxSegmentSize == 0 {
		cfg.maxSegmentSize = DefaultMaxSegmentSize
	}
	if cfg.maxSegmentSize < MinSegmentSize {
		return 0, fmt.Errorf("%w: segment size %d below minimum %d", ErrInvalidArgument, cfg.maxSegmentSize, MinSegmentSize)
	}
	if cfg.format != FormatEnCase && cfg.format != FormatSMART {
		return 0, fmt.Errorf("%w: format %s", ErrInvalidArgument, cfg.format)
	}
	if cfg.maxSegments == 0 {
		cfg.maxSegments = uint16(segment.DefaultCapacity(cfg.format, ewftype.KindSegment)) //nolint:gosec // capacity is capped at MaxUint16
	}
	if cfg.compression > CompressionBest {
		return 0, fmt.Errorf("%w: compression %s", ErrInvalidArgument, cfg.compression)
	}
	size := uint64(cfg.sectorsPerChunk) * uint64(cfg.bytesPerSector)
	if size == 0 || size > MaxChunkSize {
		return 0, fmt.Errorf("%w: chunk size %d x %d", ErrInvalidArgument, cfg.sectorsPerChunk, cfg.bytesPerSector)
	}
	return int(size), nil
}

func (w *Writer) initMetadata() error {
	cfg := w.cfg
	chunkCount, err := sizing.ToUint32(sizing.CeilDiv(cfg.mediaSize, uint64(w.chunkSize)), ErrSizeOverflow) //nolint:gosec // chunkSize is positive
	if err != nil {
		return fmt.Errorf("media size %d: %w", cfg.mediaSize, err)
	}
	w.volume = metadata.Volume{
		MediaType:        cfg.mediaType,
		ChunkCount:       chunkCount,
		SectorsPerChunk:  cfg.sectorsPerChunk,
		BytesPerSector:   cfg.bytesPerSector,
		SectorCount:      sizing.CeilDiv(cfg.mediaSize, uint64(cfg.bytesPerSector)),
		CompressionLevel: uint8(cfg.compression),
		ErrorGranularity: cfg.sectorsPerChunk,
		SetIdentifier:    cfg.setID,
	}

	w.header = cfg.header
	now := time.Now().UTC()
	if w.header.AcquiredAt.IsZero() {
		w.header.AcquiredAt = now
	}
	if w.header.SystemAt.IsZero() {
		w.header.SystemAt = now
	}
	switch cfg.compression {
	case CompressionBest:
		w.header.Compression = "b"
	case CompressionFast:
		w.header.Compression = "f"
	default:
		w.header.Compression = "n"
	}
	return nil
}

// log returns the logger, falling back to a discard logger if nil.
func (w *Writer) log() *slog.Logger {
	if w.cfg.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return w.cfg.logger
}

// reportProgress sends a progress event if a callback is configured.
func (w *Writer) reportProgress(stage ProgressStage) {
	if w.cfg.progress == nil {
		return
	}
	ev := ProgressEvent{
		Stage:      stage,
		Segment:    w.number,
		BytesDone:  w.written,
		BytesTotal: w.cfg.mediaSize,
		ChunksDone: w.table.Len(),
	}
	if f, ok := w.segments.Segment(w.number); ok {
		ev.Path = f.Path
	}
	w.cfg.progress(ev)
}

// ChunkSize returns the logical chunk size in bytes.
func (w *Writer) ChunkSize() int {
	return w.chunkSize
}

// ChunkCount returns the number of chunks written so far.
func (w *Writer) ChunkCount() uint64 {
	return w.table.Len()
}

// Segments returns the paths of the segment files created so far.
func (w *Writer) Segments() []string {
	numbers := w.segments.Numbers()
	paths := make([]string, 0, len(numbers))
	for _, n := range numbers {
		f, _ := w.segments.Segment(n)
		paths = append(paths, f.Path)
	}
	return paths
}

// WriteChunk compresses data and appends it as the next chunk, returning its
// chunk number. data must be ChunkSize bytes, except for the final chunk of
// the image which may be shorter. Data that does not shrink under compression
// is stored raw.
func (w *Writer) WriteChunk(data []byte) (uint64, error) {
	if err := w.usable(); err != nil {
		return 0, err
	}
	if len(w.partial) > 0 {
		return 0, fmt.Errorf("%w: WriteChunk after a partial Write", ErrInvalidArgument)
	}
	return w.writeLogical(data)
}

// WriteRawChunk appends a chunk already in stored form. When compressed is
// set, stored must be a zlib stream; it is decoded once to validate it and to
// feed the image hashes.
func (w *Writer) WriteRawChunk(stored []byte, compressed bool) (uint64, error) {
	if err := w.usable(); err != nil {
		return 0, err
	}
	if len(w.partial) > 0 {
		return 0, fmt.Errorf("%w: WriteRawChunk after a partial Write", ErrInvalidArgument)
	}
	if len(stored) == 0 || len(stored) > chunktable.MaxRelativeOffset {
		return 0, fmt.Errorf("%w: stored chunk of %d bytes", ErrInvalidArgument, len(stored))
	}
	logical := stored
	if compressed {
		var err error
		logical, err = w.codec.Decompress(stored, w.chunkSize)
		if err != nil {
			return 0, err
		}
	}
	if err := w.checkLogical(logical); err != nil {
		return 0, err
	}
	return w.store(stored, compressed, logical)
}

func (w *Writer) writeLogical(data []byte) (uint64, error) {
	if err := w.checkLogical(data); err != nil {
		return 0, err
	}
	stored, err := w.codec.Compress(data)
	compressed := true
	switch {
	case errors.Is(err, codec.ErrIncompressible):
		stored, compressed = data, false
	case err != nil:
		return 0, err
	}
	return w.store(stored, compressed, data)
}

func (w *Writer) checkLogical(data []byte) error {
	switch {
	case len(data) == 0:
		return fmt.Errorf("%w: empty chunk", ErrInvalidArgument)
	case len(data) > w.chunkSize:
		return fmt.Errorf("%w: chunk of %d bytes exceeds chunk size %d", ErrInvalidArgument, len(data), w.chunkSize)
	case w.short:
		return fmt.Errorf("%w: only the final chunk may be shorter than the chunk size", ErrInvalidArgument)
	case w.cfg.mediaSize > 0 && w.written+uint64(len(data)) > w.cfg.mediaSize:
		return fmt.Errorf("%w: data exceeds declared media size %d", ErrInvalidArgument, w.cfg.mediaSize)
	}
	return nil
}

// store places one chunk into the current segment, starting or rolling over
// segments as needed.
func (w *Writer) store(stored []byte, compressed bool, logical []byte) (uint64, error) {
	n := w.table.Len()
	if err := w.placeChunk(len(stored)); err != nil {
		return 0, w.fail(err)
	}
	if err := w.writeChunkData(n, stored, compressed); err != nil {
		return 0, w.fail(err)
	}
	_, _ = w.md5.Write(logical)  //nolint:errcheck // hash writes never fail
	_, _ = w.sha1.Write(logical) //nolint:errcheck // hash writes never fail
	w.written += uint64(len(logical))
	if len(logical) < w.chunkSize {
		w.short = true
	}
	w.reportProgress(StageWriting)
	return n, nil
}

// Write implements io.Writer. Input is buffered into chunk-size pieces; a
// trailing partial chunk is written by Finalize.
func (w *Writer) Write(p []byte) (int, error) {
	if err := w.usable(); err != nil {
		return 0, err
	}
	total := 0
	for len(p) > 0 {
		if w.partial == nil {
			w.partial = make([]byte, 0, w.chunkSize)
		}
		n := min(len(p), w.chunkSize-len(w.partial))
		w.partial = append(w.partial, p[:n]...)
		p = p[n:]
		total += n
		if len(w.partial) == w.chunkSize {
			chunk := w.partial
			w.partial = w.partial[:0]
			if _, err := w.writeLogical(chunk); err != nil {
				return total, err
			}
		}
	}
	return total, nil
}

// Acquire copies r into the image until EOF, checking ctx between chunks.
// It returns the number of bytes read. The image is not finalized.
func (w *Writer) Acquire(ctx context.Context, r io.Reader) (uint64, error) {
	buf := make([]byte, w.chunkSize)
	n, err := file.CopyWithContext(ctx, w, r, buf)
	if err != nil {
		return n, err
	}
	w.log().Debug("acquired stream", "bytes", n, "chunks", w.table.Len())
	return n, nil
}

// ReadFrom implements io.ReaderFrom by calling Acquire without a deadline.
func (w *Writer) ReadFrom(r io.Reader) (int64, error) {
	n, err := w.Acquire(context.Background(), r)
	return int64(n), err //nolint:gosec // byte counts fit in int64
}

// Finalize writes any buffered partial chunk, corrects the open chunk run,
// writes the digest and hash sections and the terminal "done" section, and
// closes the last segment. An image with no chunks still gets one segment.
func (w *Writer) Finalize() error {
	if err := w.usable(); err != nil {
		return err
	}
	if len(w.partial) > 0 {
		p := w.partial
		w.partial = nil
		if _, err := w.writeLogical(p); err != nil {
			return err
		}
	}
	if w.current == nil {
		if err := w.startNextSegment(); err != nil {
			return w.fail(err)
		}
	}
	if w.run != nil {
		if err := w.correctRun(); err != nil {
			return w.fail(err)
		}
	}
	if err := w.writeLast(true); err != nil {
		return w.fail(err)
	}
	if err := w.closeSegment(); err != nil {
		return w.fail(err)
	}
	w.finalized = true
	if w.cfg.mediaSize > 0 && w.written != w.cfg.mediaSize {
		w.log().Warn("image shorter than declared media size",
			"written", w.written, "declared", w.cfg.mediaSize)
	}
	w.log().Info("finalized image",
		"chunks", w.table.Len(),
		"bytes", w.written,
		"segments", w.segments.Len())
	w.reportProgress(StageFinalized)
	return nil
}

// Close releases every file handle. Closing a Writer that was not finalized
// leaves its last segment on disk marked incomplete. Close is idempotent.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if !w.finalized && w.current != nil {
		w.current.MarkIncomplete()
		w.log().Warn("closing unfinalized image", "segment", w.number, "path", w.current.Path)
	}
	return w.segments.Close()
}

func (w *Writer) usable() error {
	switch {
	case w.closed || w.finalized:
		return ErrClosed
	case w.err != nil:
		return fmt.Errorf("%w: %w", ErrIncomplete, w.err)
	}
	return nil
}

// fail marks the current segment incomplete and makes the error sticky.
func (w *Writer) fail(err error) error {
	if w.current != nil {
		w.current.MarkIncomplete()
		w.log().Error("segment write failed", "segment", w.number, "path", w.current.Path, "error", err)
	}
	w.err = err
	return err
}

func (w *Writer) hashes() metadata.Hashes {
	var h metadata.Hashes
	copy(h.MD5[:], w.md5.Sum(nil))
	copy(h.SHA1[:], w.sha1.Sum(nil))
	h.HasMD5, h.HasSHA1 = true, true
	return h
}
