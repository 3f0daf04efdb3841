package ewf

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/meigma/ewf/internal/cache"
	"github.com/meigma/ewf/internal/chunktable"
	"github.com/meigma/ewf/internal/codec"
	"github.com/meigma/ewf/internal/ewftype"
	"github.com/meigma/ewf/internal/metadata"
	"github.com/meigma/ewf/internal/section"
	"github.com/meigma/ewf/internal/segment"
)

// parsedFile is one input file after its signature and section chain have
// been read.
type parsedFile struct {
	file    *segment.File
	primary [][]chunktable.Location
	backup  [][]chunktable.Location
	deltas  []chunktable.DeltaEntry
	meta    map[section.Type][]byte
}

// metadataTypes are the sections whose payloads are kept after parsing. Only
// the first occurrence in a file is used.
var metadataTypes = []section.Type{
	section.TypeHeader2,
	section.TypeHeader,
	section.TypeVolume,
	section.TypeDisk,
	section.TypeHash,
	section.TypeDigest,
}

// Open reads the segment files of one image, plus any delta segment files,
// and assembles its chunk table. filenames may be given in any order.
//
// The set must contain segments 1..N without gaps and exactly one final
// segment (the one ending in a "done" section), which must be segment N.
func Open(ctx context.Context, filenames []string, opts ...OpenOption) (*Image, error) {
	cfg := openConfig{
		cacheBytes:     DefaultCacheBytes,
		concurrency:    runtime.GOMAXPROCS(0),
		maxSegmentSize: DefaultMaxSegmentSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(filenames) == 0 {
		return nil, fmt.Errorf("%w: no segment files", ErrInvalidArgument)
	}
	cfg.concurrency = max(cfg.concurrency, 1)
	if cfg.maxSegmentSize <= 0 {
		cfg.maxSegmentSize = DefaultMaxSegmentSize
	}

	parsed := make([]*parsedFile, len(filenames))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.concurrency)
	for i, name := range filenames {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p, err := parseFile(name, cfg.deltaWrites)
			if err != nil {
				return err
			}
			parsed[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		closeParsed(parsed)
		return nil, err
	}

	img, err := assemble(parsed, cfg)
	if err != nil {
		closeParsed(parsed)
		return nil, err
	}
	if cfg.verifyChunks {
		if err := img.verifyChunks(ctx); err != nil {
			_ = img.Close() //nolint:errcheck // the verification error is more useful
			return nil, err
		}
	}
	return img, nil
}

func closeParsed(parsed []*parsedFile) {
	for _, p := range parsed {
		if p != nil {
			_ = p.file.Close() //nolint:errcheck // best-effort cleanup on a failed open
		}
	}
}

// parseFile opens path, classifies it by its signature and decodes its
// chunk tables or delta chunk headers. Delta segment files are opened for
// writing when deltaWrites is set.
func parseFile(path string, deltaWrites bool) (*parsedFile, error) {
	writable := false
	if deltaWrites {
		ext := strings.TrimPrefix(filepath.Ext(path), ".")
		if _, kind, ok := segment.Sniff(ext); ok && kind == ewftype.KindDelta {
			writable = true
		}
	}
	f, err := segment.OpenFile(path, writable)
	if err != nil {
		return nil, ewftype.Annotate(err, path, 0)
	}
	p := &parsedFile{file: f, meta: make(map[section.Type][]byte)}
	if err := p.parse(); err != nil {
		_ = f.Close() //nolint:errcheck // best-effort cleanup on a failed open
		return nil, ewftype.Annotate(err, f.Path, f.Number)
	}
	return p, nil
}

func (p *parsedFile) parse() error {
	f := p.file
	secs, err := f.ReadSections()
	if err != nil {
		return err
	}
	for _, rec := range secs.Records() {
		switch rec.Type {
		case section.TypeTable, section.TypeTable2:
			if f.Kind != ewftype.KindSegment {
				return ewftype.AtOffset(fmt.Errorf("%w: %s section in a delta segment",
					ewftype.ErrMalformedSegment, rec.Type), rec.Offset)
			}
			entries, err := p.readTable(secs, rec)
			if err != nil {
				return err
			}
			if rec.Type == section.TypeTable {
				p.primary = append(p.primary, entries)
			} else {
				p.backup = append(p.backup, entries)
			}
		case section.TypeDeltaChunk:
			if f.Kind != ewftype.KindDelta {
				return ewftype.AtOffset(fmt.Errorf("%w: delta_chunk section in an ordinary segment",
					ewftype.ErrMalformedSegment), rec.Offset)
			}
			entry, err := p.readDelta(rec)
			if err != nil {
				return err
			}
			p.deltas = append(p.deltas, entry)
		default:
			if !slices.Contains(metadataTypes, rec.Type) {
				continue
			}
			if _, seen := p.meta[rec.Type]; seen {
				continue
			}
			payload, err := section.ReadPayload(f, rec)
			if err != nil {
				return err
			}
			p.meta[rec.Type] = payload
		}
	}
	return nil
}

func (p *parsedFile) readTable(secs *section.List, rec section.Record) ([]chunktable.Location, error) {
	sectors, ok := secs.Before(rec, section.TypeSectors)
	if !ok {
		return nil, ewftype.AtOffset(fmt.Errorf("%w: %s section without a preceding sectors section",
			ewftype.ErrMalformedSegment, rec.Type), rec.Offset)
	}
	payload, err := section.ReadPayload(p.file, rec)
	if err != nil {
		return nil, err
	}
	return chunktable.DecodeTable(payload, rec, sectors, p.file.Number)
}

func (p *parsedFile) readDelta(rec section.Record) (chunktable.DeltaEntry, error) {
	b := make([]byte, min(rec.PayloadSize(), chunktable.DeltaHeaderSize))
	if n, err := p.file.ReadAt(b, rec.PayloadOffset()); n < len(b) {
		return chunktable.DeltaEntry{}, ewftype.AtOffset(ewftype.IOError("read delta chunk header", orEOF(err)), rec.PayloadOffset())
	}
	return chunktable.DecodeDeltaHeader(b, rec, p.file.Number)
}

func orEOF(err error) error {
	if err == nil {
		return io.ErrUnexpectedEOF
	}
	return err
}

// assemble validates the segment set and builds the chunk table. On success
// the returned Image owns every file in parsed.
func assemble(parsed []*parsedFile, cfg openConfig) (*Image, error) {
	logger := cfg.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	deltaCapacity := uint16(segment.DefaultCapacity(FormatEnCase, ewftype.KindDelta)) //nolint:gosec // capacity fits in uint16
	files := segment.NewTable("", deltaCapacity, FormatEnCase, logger)

	var segs, deltas []*parsedFile
	for _, p := range parsed {
		if err := files.Add(p.file); err != nil {
			return nil, ewftype.Annotate(err, p.file.Path, p.file.Number)
		}
		if p.file.Kind == ewftype.KindDelta {
			deltas = append(deltas, p)
		} else {
			segs = append(segs, p)
		}
	}
	byNumber := func(a, b *parsedFile) int { return cmp.Compare(a.file.Number, b.file.Number) }
	slices.SortFunc(segs, byNumber)
	slices.SortFunc(deltas, byNumber)

	if err := validateSet(segs); err != nil {
		return nil, err
	}

	img := &Image{
		cfg:      cfg,
		logger:   logger,
		segments: files,
		codec:    codec.New(CompressionFast),
		deltas:   make(map[uint16]*deltaState, len(deltas)),
	}
	if err := img.loadMetadata(segs); err != nil {
		return nil, err
	}

	tables := make([]chunktable.SegmentTables, 0, len(segs))
	for _, p := range segs {
		tables = append(tables, chunktable.SegmentTables{
			Number:   p.file.Number,
			Path:     p.file.Path,
			FileSize: p.file.Size(),
			Primary:  p.primary,
			Backup:   p.backup,
		})
	}
	table, err := chunktable.Build(tables)
	if err != nil {
		return nil, err
	}
	overrides := make([]chunktable.DeltaSegment, 0, len(deltas))
	for _, p := range deltas {
		overrides = append(overrides, chunktable.DeltaSegment{
			Number:  p.file.Number,
			Path:    p.file.Path,
			Entries: p.deltas,
		})
		img.deltas[p.file.Number] = newDeltaState(p.file, len(p.deltas))
	}
	if err := table.ApplyDeltaOverrides(overrides); err != nil {
		return nil, err
	}
	img.table = table

	if got, want := table.Len(), uint64(img.volume.ChunkCount); want != 0 && got != want {
		logger.Warn("volume chunk count disagrees with chunk tables", "volume", want, "tables", got)
	}
	img.cache, err = cache.New(cache.EntriesFor(cfg.cacheBytes, img.volume.ChunkSize()))
	if err != nil {
		return nil, err
	}
	if err := img.computeSize(); err != nil {
		return nil, err
	}

	basename := cfg.deltaBasename
	if basename == "" {
		first := segs[0].file.Path
		basename = strings.TrimSuffix(first, filepath.Ext(first))
	}
	files.SetBasename(basename)
	files.SetFormat(img.format)

	logger.Info("opened image",
		"segments", len(segs),
		"deltas", len(deltas),
		"chunks", table.Len(),
		"size", img.size,
		"format", img.format.String())
	return img, nil
}

// validateSet checks that segs, sorted by number, form a complete image.
func validateSet(segs []*parsedFile) error {
	if len(segs) == 0 {
		return fmt.Errorf("%w: no ordinary segment files", ErrMissingSegment)
	}
	var final []*parsedFile
	for _, p := range segs {
		if p.file.Sections().Terminal() == section.TypeDone {
			final = append(final, p)
		}
	}
	switch len(final) {
	case 0:
		return fmt.Errorf("%w: no segment ends in a done section", ErrMissingFinalSegment)
	case 1:
	default:
		return fmt.Errorf("%w: segments %d and %d both end in a done section",
			ErrMultipleFinalSegments, final[0].file.Number, final[1].file.Number)
	}
	last := segs[len(segs)-1]
	if final[0] != last {
		return ewftype.Annotate(fmt.Errorf("%w: segment %d ends the image but segment %d follows it",
			ErrMissingFinalSegment, final[0].file.Number, last.file.Number), last.file.Path, last.file.Number)
	}
	for i, p := range segs {
		if want := uint16(i + 1); p.file.Number != want { //nolint:gosec // segment count fits in uint16
			return fmt.Errorf("%w: segment %d", ErrMissingSegment, want)
		}
	}
	return nil
}

// loadMetadata decodes the header and volume of segment 1 and the stored
// hashes of whichever segment carries them.
func (img *Image) loadMetadata(segs []*parsedFile) error {
	first := segs[0]
	annotate := func(err error) error { return ewftype.Annotate(err, first.file.Path, first.file.Number) }

	vol, ok := first.meta[section.TypeVolume]
	if !ok {
		vol, ok = first.meta[section.TypeDisk]
	}
	if !ok {
		return annotate(fmt.Errorf("%w: segment 1 has no volume section", ErrMalformedSegment))
	}
	if err := img.volume.UnmarshalBinary(vol); err != nil {
		return annotate(err)
	}
	if size := uint64(img.volume.SectorsPerChunk) * uint64(img.volume.BytesPerSector); size == 0 || size > MaxChunkSize {
		return annotate(fmt.Errorf("%w: chunk size %d x %d", ErrMalformedSegment,
			img.volume.SectorsPerChunk, img.volume.BytesPerSector))
	}

	img.format = FormatSMART
	if _, ok := first.meta[section.TypeHeader2]; ok || len(vol) == metadata.VolumeSize {
		img.format = FormatEnCase
	}

	if b, ok := first.meta[section.TypeHeader2]; ok {
		if err := img.header.UnmarshalHeader2(b); err != nil {
			return annotate(err)
		}
	} else if b, ok := first.meta[section.TypeHeader]; ok {
		if err := img.header.UnmarshalBinary(b); err != nil {
			return annotate(err)
		}
	} else {
		img.logger.Warn("image has no header section", "path", first.file.Path)
	}

	for _, p := range segs {
		if b, ok := p.meta[section.TypeDigest]; ok {
			if err := img.hashes.UnmarshalDigest(b); err != nil {
				return ewftype.Annotate(err, p.file.Path, p.file.Number)
			}
		}
	}
	if !img.hashes.HasMD5 {
		for _, p := range segs {
			if b, ok := p.meta[section.TypeHash]; ok {
				if err := img.hashes.UnmarshalHash(b); err != nil {
					return ewftype.Annotate(err, p.file.Path, p.file.Number)
				}
			}
		}
	}
	return nil
}
