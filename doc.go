// Package ewf reads and writes Expert Witness Format (EWF) forensic disk
// images split across segment files.
//
// A logical media stream is cut into fixed-size chunks. Each chunk is stored
// zlib-compressed or raw, followed by a checksum, inside "sectors" sections of
// a segment file. Every run of chunks is indexed by a "table" section and a
// "table2" backup. Segment files are named basename.E01, basename.E02, and so
// on; the last one ends with a "done" section and the others with "next".
//
// # Writing
//
// Create returns a [Writer] that accepts chunks or a plain byte stream and
// rolls over to a new segment file when the configured size is reached:
//
//	w, err := ewf.Create("/evidence/disk",
//	    ewf.CreateWithMaxSegmentSize(640<<20),
//	    ewf.CreateWithCompression(ewf.CompressionFast),
//	)
//	if err != nil {
//	    return err
//	}
//	defer w.Close()
//	if _, err := w.Acquire(ctx, device); err != nil {
//	    return err
//	}
//	return w.Finalize()
//
// # Reading
//
// Open assembles an [Image] from any ordering of its segment files and any
// delta segments layered over it:
//
//	files, err := ewf.Glob("/evidence/disk.E01")
//	if err != nil {
//	    return err
//	}
//	img, err := ewf.Open(ctx, files)
//	if err != nil {
//	    return err
//	}
//	defer img.Close()
//	r := io.NewSectionReader(img, 0, img.Size())
//
// # Delta segments
//
// An image opened with [OpenWithDeltaWrites] accepts chunk rewrites through
// [Image.WriteDeltaChunk]. Rewritten chunks go to basename.d01 and later
// delta files; the original segments are never modified.
package ewf
