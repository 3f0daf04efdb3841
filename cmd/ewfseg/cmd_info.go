package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/meigma/ewf"
)

var cmdInfo = &cobra.Command{
	Use:   "info <segment>",
	Short: "Show the metadata of an image",
	Args:  cobra.ExactArgs(1),
	Run:   info,
}

var flagInfo struct {
	YAML bool
}

func init() {
	cmdMain.AddCommand(cmdInfo)

	cmdInfo.Flags().BoolVar(&flagInfo.YAML, "yaml", false, "Print the report as YAML")
}

func info(_ *cobra.Command, args []string) {
	img := openImage(context.Background(), args[0])
	defer img.Close()

	report := describe(img)
	if flagInfo.YAML {
		writeYAML(report)
		return
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Format\t%s\n", report.Format)
	fmt.Fprintf(tw, "Media type\t%s\n", report.MediaType)
	fmt.Fprintf(tw, "Size\t%s (%s bytes)\n", humanize.IBytes(report.Size), humanize.Comma(int64(report.Size))) //nolint:gosec // image sizes fit in int64
	fmt.Fprintf(tw, "Chunks\t%s x %s\n", humanize.Comma(int64(report.Chunks)), humanize.IBytes(uint64(report.ChunkSize))) //nolint:gosec // bounded counts
	fmt.Fprintf(tw, "Set identifier\t%s\n", report.SetID)
	for _, key := range []string{"case", "evidence", "description", "examiner", "notes", "acquired"} {
		if v := report.Header[key]; v != "" {
			fmt.Fprintf(tw, "%s\t%s\n", key, v)
		}
	}
	if report.MD5 != "" {
		fmt.Fprintf(tw, "MD5\t%s\n", report.MD5)
	}
	if report.SHA1 != "" {
		fmt.Fprintf(tw, "SHA1\t%s\n", report.SHA1)
	}
	if len(report.DeltaChunks) > 0 {
		fmt.Fprintf(tw, "Delta chunks\t%d\n", len(report.DeltaChunks))
	}
	for _, path := range report.Segments {
		fmt.Fprintf(tw, "Segment\t%s\n", path)
	}
	check(tw.Flush())
}

func describe(img *ewf.Image) imageInfo {
	media := img.Media()
	hdr := img.Header()
	report := imageInfo{
		Format:    img.Format().String(),
		MediaType: media.MediaType.String(),
		Size:      uint64(img.Size()), //nolint:gosec // Size is non-negative
		ChunkSize: img.ChunkSize(),
		Chunks:    img.ChunkCount(),
		SetID:     media.SetIdentifier.String(),
		Segments:  img.Segments(),
		Header: map[string]string{
			"case":        hdr.CaseNumber,
			"evidence":    hdr.EvidenceNumber,
			"description": hdr.Description,
			"examiner":    hdr.Examiner,
			"notes":       hdr.Notes,
		},
	}
	if !hdr.AcquiredAt.IsZero() {
		report.Header["acquired"] = hdr.AcquiredAt.Format("2006-01-02 15:04:05 MST")
	}
	stored := img.StoredHashes()
	if stored.HasMD5 {
		report.MD5 = hex.EncodeToString(stored.MD5[:])
	}
	if stored.HasSHA1 {
		report.SHA1 = hex.EncodeToString(stored.SHA1[:])
	}
	for n := range img.ChunkCount() {
		if loc, err := img.SeekChunk(n); err == nil && loc.Delta {
			report.DeltaChunks = append(report.DeltaChunks, n)
		}
	}
	return report
}
