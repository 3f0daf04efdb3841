package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/meigma/ewf"
)

var cmdAcquire = &cobra.Command{
	Use:   "acquire <source> <basename>",
	Short: "Acquire a device or raw image into segment files",
	Long:  "Acquire reads source (a file, device, or - for stdin) and writes basename.E01, basename.E02, ...",
	Args:  cobra.ExactArgs(2),
	Run:   acquire,
}

var flagAcquire struct {
	SegmentSize  byteSize
	MaxSegments  uint16
	Format       string
	Compression  string
	ChunkSectors uint32
	SectorSize   uint32
	Metadata     string
	MediaType    string
	Quiet        bool
}

func init() {
	cmdMain.AddCommand(cmdAcquire)

	flagAcquire.SegmentSize = byteSize(ewf.DefaultMaxSegmentSize)
	cmdAcquire.Flags().VarP(&flagAcquire.SegmentSize, "segment-size", "s", "Maximum size of each segment file")
	cmdAcquire.Flags().Uint16Var(&flagAcquire.MaxSegments, "max-segments", 0, "Maximum number of segment files (0 for the naming scheme's capacity)")
	cmdAcquire.Flags().StringVarP(&flagAcquire.Format, "format", "f", "encase", "Image format (encase, smart)")
	cmdAcquire.Flags().StringVarP(&flagAcquire.Compression, "compression", "c", "fast", "Chunk compression (none, fast, best)")
	cmdAcquire.Flags().Uint32Var(&flagAcquire.ChunkSectors, "chunk-sectors", ewf.DefaultSectorsPerChunk, "Sectors per chunk")
	cmdAcquire.Flags().Uint32Var(&flagAcquire.SectorSize, "sector-size", ewf.DefaultBytesPerSector, "Bytes per sector")
	cmdAcquire.Flags().StringVarP(&flagAcquire.Metadata, "metadata", "m", "", "YAML file with case, evidence, description, examiner and notes")
	cmdAcquire.Flags().StringVar(&flagAcquire.MediaType, "media-type", "fixed", "Media type (removable, fixed, optical, logical, memory)")
	cmdAcquire.Flags().BoolVarP(&flagAcquire.Quiet, "quiet", "q", false, "Do not print progress")
}

func acquire(_ *cobra.Command, args []string) {
	source, basename := args[0], args[1]

	format, err := ewf.ParseFormat(flagAcquire.Format)
	checkf(err, "--format")
	compression, err := ewf.ParseCompression(flagAcquire.Compression)
	checkf(err, "--compression")
	mediaType, err := ewf.ParseMediaType(flagAcquire.MediaType)
	checkf(err, "--media-type")

	var header ewf.Header
	if flagAcquire.Metadata != "" {
		header, err = loadAcquisitionFile(flagAcquire.Metadata)
		checkf(err, "--metadata")
	}

	var r io.Reader = os.Stdin
	var size uint64
	if source != "-" {
		f, err := os.Open(source) //nolint:gosec // path supplied by the operator
		check(err)
		defer f.Close()
		if info, err := f.Stat(); err == nil && info.Mode().IsRegular() {
			size = uint64(info.Size()) //nolint:gosec // file sizes are non-negative
		}
		r = f
	}

	opts := []ewf.CreateOption{
		ewf.CreateWithMaxSegmentSize(int64(flagAcquire.SegmentSize)), //nolint:gosec // parsed sizes fit in int64
		ewf.CreateWithMaxSegments(flagAcquire.MaxSegments),
		ewf.CreateWithFormat(format),
		ewf.CreateWithCompression(compression),
		ewf.CreateWithChunkSize(flagAcquire.ChunkSectors, flagAcquire.SectorSize),
		ewf.CreateWithHeader(header),
		ewf.CreateWithMedia(mediaType, size),
		ewf.CreateWithLogger(newLogger()),
	}
	if !flagAcquire.Quiet {
		opts = append(opts, ewf.CreateWithProgress(printProgress))
	}
	w, err := ewf.Create(basename, opts...)
	check(err)
	defer w.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	n, err := w.Acquire(ctx, r)
	checkf(err, "acquire %s", source)
	check(w.Finalize())
	check(w.Close())

	if !flagAcquire.Quiet {
		fmt.Fprintln(os.Stderr)
	}
	fmt.Printf("Acquired %s in %d chunks across %d segment files\n",
		humanize.IBytes(n), w.ChunkCount(), len(w.Segments()))
}

func printProgress(ev ewf.ProgressEvent) {
	switch ev.Stage {
	case ewf.StageSegmentDone:
		fmt.Fprintf(os.Stderr, "\rcompleted %s\n", ev.Path)
	case ewf.StageWriting, ewf.StageVerifying:
		if ev.ChunksDone%64 != 0 {
			return
		}
		if ev.BytesTotal > 0 {
			fmt.Fprintf(os.Stderr, "\r%s / %s", humanize.IBytes(ev.BytesDone), humanize.IBytes(ev.BytesTotal))
		} else {
			fmt.Fprintf(os.Stderr, "\r%s", humanize.IBytes(ev.BytesDone))
		}
	}
}
