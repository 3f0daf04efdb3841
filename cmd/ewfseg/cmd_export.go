package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/meigma/ewf/internal/file"
)

var cmdExport = &cobra.Command{
	Use:   "export <segment> <output>",
	Short: "Write the media stream of an image to a raw file (- for stdout)",
	Args:  cobra.ExactArgs(2),
	Run:   export,
}

func init() {
	cmdMain.AddCommand(cmdExport)
}

func export(_ *cobra.Command, args []string) {
	img := openImage(context.Background(), args[0])
	defer img.Close()

	out := &file.CountingWriter{W: os.Stdout}
	var f *os.File
	if args[1] != "-" {
		var err error
		f, err = os.OpenFile(args[1], os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644) //nolint:gosec // path supplied by the operator
		check(err)
		defer f.Close()
		out.W = f
	}
	_, err := io.Copy(out, io.NewSectionReader(img, 0, img.Size()))
	checkf(err, "export %s", args[0])
	if f != nil {
		check(f.Sync())
		check(f.Close())
	}
	fmt.Fprintf(os.Stderr, "Exported %s\n", humanize.IBytes(out.N))
}
