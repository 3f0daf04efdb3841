package main

import (
	"context"

	"github.com/meigma/ewf"
)

// openImage opens every file of the image that path belongs to.
func openImage(ctx context.Context, path string, opts ...ewf.OpenOption) *ewf.Image {
	files, err := ewf.Glob(path)
	checkf(err, "find segments of %s", path)
	opts = append([]ewf.OpenOption{ewf.OpenWithLogger(newLogger())}, opts...)
	img, err := ewf.Open(ctx, files, opts...)
	checkf(err, "open %s", path)
	return img
}
