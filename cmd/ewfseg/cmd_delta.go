package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/meigma/ewf"
)

var cmdDelta = &cobra.Command{
	Use:   "delta <segment> <chunk> <file>",
	Short: "Replace one chunk through a delta segment file",
	Long:  "Delta writes the contents of file as the new data of chunk, leaving the original segment files untouched.",
	Args:  cobra.ExactArgs(3),
	Run:   delta,
}

var flagDelta struct {
	Basename string
}

func init() {
	cmdMain.AddCommand(cmdDelta)

	cmdDelta.Flags().StringVarP(&flagDelta.Basename, "basename", "b", "", "Basename for new delta files (default: the image basename)")
}

func delta(_ *cobra.Command, args []string) {
	chunk, err := strconv.ParseUint(args[1], 10, 64)
	checkf(err, "chunk number")
	data, err := os.ReadFile(args[2])
	check(err)

	img := openImage(context.Background(), args[0], ewf.OpenWithDeltaWrites(flagDelta.Basename))
	defer img.Close()

	check(img.WriteDeltaChunk(chunk, data))
	loc, err := img.SeekChunk(chunk)
	check(err)
	check(img.Close())
	fmt.Printf("Chunk %d now stored in %s\n", chunk, loc.Path)
}
