package main

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByteSizeFlag(t *testing.T) {
	t.Parallel()

	var size byteSize
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Var(&size, "size", "")

	require.NoError(t, fs.Parse([]string{"--size", "650MB"}))
	assert.Equal(t, byteSize(650_000_000), size)

	require.NoError(t, fs.Parse([]string{"--size=2GiB"}))
	assert.Equal(t, byteSize(2<<30), size)
	assert.Equal(t, "2.0 GiB", size.String())

	require.Error(t, fs.Parse([]string{"--size", "lots"}))
}
