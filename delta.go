package ewf

import (
	"encoding/binary"
	"errors"
	"fmt"
	"slices"

	"github.com/valyala/bytebufferpool"

	"github.com/meigma/ewf/internal/chunktable"
	"github.com/meigma/ewf/internal/codec"
	"github.com/meigma/ewf/internal/ewftype"
	"github.com/meigma/ewf/internal/section"
	"github.com/meigma/ewf/internal/segment"
)

// deltaState tracks the append position of one delta segment file.
type deltaState struct {
	file   *segment.File
	tail   int64
	chunks int
}

// newDeltaState positions the append offset over the file's trailing done
// section, or at end of file when there is none.
func newDeltaState(f *segment.File, chunks int) *deltaState {
	tail := max(f.Size(), segment.FileHeaderSize)
	if last, ok := f.Sections().Last(); ok && last.Type == section.TypeDone {
		tail = last.Offset
	}
	return &deltaState{file: f, tail: tail, chunks: chunks}
}

// append writes a delta_chunk section for chunk n followed by a fresh done
// section and returns the new location of the chunk.
func (st *deltaState) append(n uint64, stored []byte, compressed bool) (chunktable.Location, error) {
	hdr, err := chunktable.EncodeDeltaHeader(n, uint32(len(stored)), compressed) //nolint:gosec // bounded by chunk size
	if err != nil {
		return chunktable.Location{}, err
	}
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	buf.B = append(buf.B[:0], hdr...)
	buf.B = append(buf.B, stored...)
	buf.B = binary.LittleEndian.AppendUint32(buf.B, codec.Checksum(stored))

	off := st.tail
	end, err := section.WriteSection(st.file, off, section.TypeDeltaChunk, buf.B)
	if err != nil {
		return chunktable.Location{}, err
	}
	if _, err := section.WriteTerminal(st.file, end, section.TypeDone); err != nil {
		return chunktable.Location{}, err
	}
	st.tail = end
	st.chunks++
	return chunktable.Location{
		Segment:    st.file.Number,
		Delta:      true,
		Offset:     off + section.DescriptorSize + chunktable.DeltaHeaderSize,
		Size:       uint32(len(stored)), //nolint:gosec // bounded by chunk size
		Compressed: compressed,
		Verified:   true,
	}, nil
}

// WriteDeltaChunk replaces the contents of chunk n without modifying the
// original segment files. data must have the chunk's logical length.
//
// The new chunk is appended to the delta segment that already holds a
// replacement for n, or else to the newest delta segment, starting a new
// delta segment when that one is full. Every delta segment ends in a done
// section after each call.
func (img *Image) WriteDeltaChunk(n uint64, data []byte) error {
	if !img.cfg.deltaWrites {
		return ErrDeltaDisabled
	}
	img.mu.Lock()
	defer img.mu.Unlock()
	if img.closed {
		return ErrClosed
	}
	loc, err := img.table.Lookup(n)
	if err != nil {
		return err
	}
	if want := img.chunkLengthLocked(n); len(data) != want {
		return fmt.Errorf("%w: chunk %d holds %d bytes, got %d", ErrInvalidArgument, n, want, len(data))
	}

	stored, err := img.codec.Compress(data)
	compressed := true
	switch {
	case errors.Is(err, codec.ErrIncompressible):
		stored, compressed = data, false
	case err != nil:
		return err
	}

	st, err := img.deltaTarget(loc, len(stored))
	if err != nil {
		return err
	}
	newLoc, err := st.append(n, stored, compressed)
	if err != nil {
		return ewftype.Annotate(err, st.file.Path, st.file.Number)
	}
	if err := img.table.Override(n, newLoc); err != nil {
		return err
	}
	img.cache.Invalidate(n)
	img.logger.Debug("wrote delta chunk",
		"chunk", n,
		"delta", st.file.Number,
		"offset", newLoc.Offset,
		"compressed", compressed)
	return nil
}

// deltaTarget picks the delta segment that receives a replacement chunk.
func (img *Image) deltaTarget(loc chunktable.Location, storedLen int) (*deltaState, error) {
	if loc.Delta {
		if st, ok := img.deltas[loc.Segment]; ok {
			if !st.file.Writable() {
				return nil, fmt.Errorf("%w: delta segment %s is read-only", ErrInvalidArgument, st.file.Path)
			}
			return st, nil
		}
	}

	var newest uint16
	if numbers := img.segments.DeltaNumbers(); len(numbers) > 0 {
		newest = slices.Max(numbers)
	}
	st := img.deltas[newest]
	need := int64(section.DescriptorSize+chunktable.DeltaPayloadSize(storedLen)) + section.DescriptorSize
	if st != nil && st.file.Writable() && (st.chunks == 0 || st.tail+need <= img.cfg.maxSegmentSize) {
		return st, nil
	}
	return img.createDelta(newest + 1)
}

func (img *Image) createDelta(number uint16) (*deltaState, error) {
	f, err := img.segments.Create(number, ewftype.KindDelta)
	if err != nil {
		return nil, err
	}
	hdr := segment.FileHeader{Kind: ewftype.KindDelta, Number: number}
	if _, err := f.WriteAt(hdr.Encode(), 0); err != nil {
		return nil, ewftype.Annotate(ewftype.IOError("write file header", err), f.Path, number)
	}
	st := &deltaState{file: f, tail: segment.FileHeaderSize}
	img.deltas[number] = st
	img.logger.Info("created delta segment", "segment", number, "path", f.Path)
	return st, nil
}
