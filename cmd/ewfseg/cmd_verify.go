package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/opencontainers/go-digest"
	"github.com/spf13/cobra"

	"github.com/meigma/ewf"
)

var cmdVerify = &cobra.Command{
	Use:   "verify <segment>",
	Short: "Check every chunk and compare the stored hashes",
	Args:  cobra.ExactArgs(1),
	Run:   verify,
}

var flagVerify struct {
	Digest string
	Quiet  bool
}

func init() {
	cmdMain.AddCommand(cmdVerify)

	cmdVerify.Flags().StringVarP(&flagVerify.Digest, "digest", "d", "", "Also print a digest of the media (sha256, sha384, sha512)")
	cmdVerify.Flags().BoolVarP(&flagVerify.Quiet, "quiet", "q", false, "Do not print progress")
}

func verify(_ *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var opts []ewf.OpenOption
	if !flagVerify.Quiet {
		opts = append(opts, ewf.OpenWithProgress(printProgress))
	}
	img := openImage(ctx, args[0], opts...)
	defer img.Close()

	got, err := img.Verify(ctx)
	if !flagVerify.Quiet {
		fmt.Fprintln(os.Stderr)
	}
	fmt.Printf("MD5  %x\n", got.MD5)
	fmt.Printf("SHA1 %x\n", got.SHA1)
	if errors.Is(err, ewf.ErrHashMismatch) {
		fatalf("%v", err)
	}
	check(err)

	if flagVerify.Digest != "" {
		d, err := img.Digest(ctx, digest.Algorithm(flagVerify.Digest))
		checkf(err, "--digest")
		fmt.Println(d)
	}
	fmt.Println("Verification succeeded")
}
