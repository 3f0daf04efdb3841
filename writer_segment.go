package ewf

import (
	"encoding/binary"
	"fmt"

	"github.com/valyala/bytebufferpool"

	"github.com/meigma/ewf/internal/chunktable"
	"github.com/meigma/ewf/internal/codec"
	"github.com/meigma/ewf/internal/ewftype"
	"github.com/meigma/ewf/internal/metadata"
	"github.com/meigma/ewf/internal/section"
	"github.com/meigma/ewf/internal/segment"
)

// pendingRun is a chunk run whose sectors descriptor is still provisional.
type pendingRun struct {
	start   int64
	entries []chunktable.Location
}

// base is the offset table entries are relative to.
func (r *pendingRun) base() int64 {
	return r.start + section.DescriptorSize
}

// tableSectionsSize is the space taken by the table and table2 sections of a
// run with n entries.
func tableSectionsSize(n int) int64 {
	return 2 * int64(section.DescriptorSize+chunktable.TablePayloadSize(n))
}

// tailReserve is the space the closing sections of the final segment need.
func (w *Writer) tailReserve() int64 {
	reserve := int64(section.DescriptorSize+metadata.HashSize) + section.DescriptorSize
	if w.cfg.format == FormatEnCase {
		reserve += section.DescriptorSize + metadata.DigestSize
	}
	return reserve
}

// segmentFits reports whether a stored chunk of n bytes, plus the sections
// still owed by the segment, fits under the segment size limit. A chunk that
// cannot join the open run pays for a new sectors descriptor and a second
// table pair.
func (w *Writer) segmentFits(n int) bool {
	need := w.offset + int64(n) + chunktable.TrailerSize + w.tailReserve()
	switch {
	case w.run == nil:
		need += section.DescriptorSize + tableSectionsSize(1)
	case !w.runFits():
		need += tableSectionsSize(len(w.run.entries)) + section.DescriptorSize + tableSectionsSize(1)
	default:
		need += tableSectionsSize(len(w.run.entries) + 1)
	}
	return need <= w.cfg.maxSegmentSize
}

// runFits reports whether the open run can take another entry.
func (w *Writer) runFits() bool {
	if len(w.run.entries) >= chunktable.MaxEntries {
		return false
	}
	return w.offset-w.run.base() <= chunktable.MaxRelativeOffset
}

// placeChunk makes sure a segment and a run are open and have room for a
// stored chunk of n bytes. Every segment takes at least one chunk.
func (w *Writer) placeChunk(n int) error {
	if w.current != nil && w.segmentChunks > 0 && !w.segmentFits(n) {
		if err := w.rollover(); err != nil {
			return err
		}
	}
	if w.current == nil {
		if err := w.startNextSegment(); err != nil {
			return err
		}
	}
	if w.run != nil && !w.runFits() {
		if err := w.correctRun(); err != nil {
			return err
		}
	}
	if w.run == nil {
		return w.startRun()
	}
	return nil
}

// startNextSegment starts the segment after the last one written.
func (w *Writer) startNextSegment() error {
	if w.number >= w.cfg.maxSegments {
		return fmt.Errorf("%w: segment %d of at most %d", ewftype.ErrSegmentLimitExceeded,
			uint32(w.number)+1, w.cfg.maxSegments)
	}
	return w.startSegment(w.number + 1)
}

func (w *Writer) startSegment(number uint16) error {
	f, err := w.segments.Create(number, ewftype.KindSegment)
	if err != nil {
		return err
	}
	w.current, w.number, w.segmentChunks, w.run = f, number, 0, nil
	if err := f.Transition(segment.StateWritingHeaders); err != nil {
		return err
	}
	hdr := segment.FileHeader{Kind: ewftype.KindSegment, Number: number}
	if _, err := f.WriteAt(hdr.Encode(), 0); err != nil {
		return ewftype.Annotate(ewftype.IOError("write file header", err), f.Path, number)
	}
	w.offset = segment.FileHeaderSize
	if err := w.writeHeaders(number == 1); err != nil {
		return ewftype.Annotate(err, f.Path, number)
	}
	w.log().Info("started segment", "segment", number, "path", f.Path)
	return f.Transition(segment.StateWritingChunks)
}

// writeHeaders writes the leading metadata sections of the current segment.
func (w *Writer) writeHeaders(first bool) error {
	if w.cfg.format == FormatSMART {
		if !first {
			return nil
		}
		text, err := w.header.MarshalBinary()
		if err != nil {
			return err
		}
		if err := w.writeSection(section.TypeHeader, text); err != nil {
			return err
		}
		vol, err := w.volume.MarshalSMART()
		if err != nil {
			return err
		}
		return w.writeSection(section.TypeVolume, vol)
	}

	vol, err := w.volume.MarshalBinary()
	if err != nil {
		return err
	}
	if !first {
		return w.writeSection(section.TypeData, vol)
	}
	utf16, err := w.header.MarshalHeader2()
	if err != nil {
		return err
	}
	text, err := w.header.MarshalBinary()
	if err != nil {
		return err
	}
	for _, s := range []struct {
		t       section.Type
		payload []byte
	}{
		{section.TypeHeader2, utf16},
		{section.TypeHeader, text},
		{section.TypeVolume, vol},
	} {
		if err := w.writeSection(s.t, s.payload); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) writeSection(t section.Type, payload []byte) error {
	end, err := section.WriteSection(w.current, w.offset, t, payload)
	if err != nil {
		return err
	}
	w.offset = end
	return nil
}

// startRun writes a provisional sectors descriptor. Its size and next fields
// are fixed up by correctRun.
func (w *Writer) startRun() error {
	if _, err := section.WriteHeader(w.current, w.offset, section.TypeSectors, 0, section.DescriptorSize); err != nil {
		return ewftype.Annotate(err, w.current.Path, w.number)
	}
	w.run = &pendingRun{start: w.offset}
	w.offset += section.DescriptorSize
	return nil
}

func (w *Writer) writeChunkData(n uint64, stored []byte, compressed bool) error {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	buf.B = append(buf.B[:0], stored...)
	buf.B = binary.LittleEndian.AppendUint32(buf.B, codec.Checksum(stored))

	if _, err := w.current.WriteAt(buf.B, w.offset); err != nil {
		return ewftype.Annotate(ewftype.AtOffset(ewftype.IOError("write chunk", err), w.offset), w.current.Path, w.number)
	}
	loc := chunktable.Location{
		Segment:    w.number,
		Offset:     w.offset,
		Size:       uint32(len(stored)), //nolint:gosec // bounded by MaxRelativeOffset
		Compressed: compressed,
	}
	if err := w.table.Append(n, loc); err != nil {
		return err
	}
	w.run.entries = append(w.run.entries, loc)
	w.offset += int64(len(buf.B))
	w.segmentChunks++
	return nil
}

// correctRun rewrites the provisional sectors descriptor with the real size
// and writes the table and table2 sections after the chunk data.
func (w *Writer) correctRun() error {
	f, run := w.current, w.run
	if err := f.Transition(segment.StateCorrecting); err != nil {
		return err
	}
	end := w.offset
	if _, err := section.WriteHeader(f, run.start, section.TypeSectors, end, uint64(end-run.start)); err != nil { //nolint:gosec // end > start
		return ewftype.Annotate(err, f.Path, w.number)
	}
	payload, err := chunktable.EncodeTable(run.entries, run.base())
	if err != nil {
		return ewftype.Annotate(err, f.Path, w.number)
	}
	for _, t := range []section.Type{section.TypeTable, section.TypeTable2} {
		if err := w.writeSection(t, payload); err != nil {
			return ewftype.Annotate(err, f.Path, w.number)
		}
	}
	w.log().Debug("corrected chunk run",
		"segment", w.number,
		"chunks", len(run.entries),
		"start", run.start,
		"size", end-run.start)
	w.run = nil
	return f.Transition(segment.StateWritingChunks)
}

// writeLast writes the closing sections of the current segment: "next" for
// an intermediate segment, the stored hashes and "done" for the final one.
func (w *Writer) writeLast(final bool) error {
	t := section.TypeNext
	if final {
		t = section.TypeDone
		hashes := w.hashes()
		if w.cfg.format == FormatEnCase {
			digest, err := hashes.MarshalDigest()
			if err != nil {
				return err
			}
			if err := w.writeSection(section.TypeDigest, digest); err != nil {
				return ewftype.Annotate(err, w.current.Path, w.number)
			}
		}
		hash, err := hashes.MarshalHash()
		if err != nil {
			return err
		}
		if err := w.writeSection(section.TypeHash, hash); err != nil {
			return ewftype.Annotate(err, w.current.Path, w.number)
		}
	}
	end, err := section.WriteTerminal(w.current, w.offset, t)
	if err != nil {
		return ewftype.Annotate(err, w.current.Path, w.number)
	}
	w.offset = end
	return w.current.Transition(segment.StateClosed)
}

// rollover closes the current segment so the next chunk starts a new one.
func (w *Writer) rollover() error {
	if w.run != nil {
		if err := w.correctRun(); err != nil {
			return err
		}
	}
	if err := w.writeLast(false); err != nil {
		return err
	}
	return w.closeSegment()
}

func (w *Writer) closeSegment() error {
	f := w.current
	if err := f.Close(); err != nil {
		return err
	}
	w.log().Info("closed segment", "segment", f.Number, "path", f.Path, "size", f.Size(), "chunks", w.segmentChunks)
	w.reportProgress(StageSegmentDone)
	w.current = nil
	return nil
}
