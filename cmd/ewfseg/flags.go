package main

import (
	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
)

// byteSize is a flag value accepting human readable sizes such as 650MB or
// 2GiB.
type byteSize uint64

var _ pflag.Value = (*byteSize)(nil)

func (b *byteSize) String() string {
	return humanize.IBytes(uint64(*b))
}

func (b *byteSize) Set(s string) error {
	v, err := humanize.ParseBytes(s)
	if err != nil {
		return err
	}
	*b = byteSize(v)
	return nil
}

func (b *byteSize) Type() string {
	return "size"
}
