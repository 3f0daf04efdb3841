// Command ewfseg creates, inspects, verifies and patches EWF disk images.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var cmdMain = &cobra.Command{
	Use:   "ewfseg",
	Short: "Create and inspect segmented EWF evidence images",
	Run:   printUsageAndExit1,
}

var flagMain struct {
	LogLevel string
}

func init() {
	cmdMain.PersistentFlags().StringVar(&flagMain.LogLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
}

func main() {
	if err := cmdMain.Execute(); err != nil {
		os.Exit(1)
	}
}

func printUsageAndExit1(cmd *cobra.Command, _ []string) {
	_ = cmd.Usage()
	os.Exit(1)
}

// newLogger returns a text logger on stderr at the --log-level level.
func newLogger() *slog.Logger {
	var level slog.Level
	checkf(level.UnmarshalText([]byte(strings.ToUpper(flagMain.LogLevel))), "--log-level")
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func check(err error) {
	if err != nil {
		fatalf("%v", err)
	}
}

func checkf(err error, format string, otherArgs ...any) {
	if err != nil {
		fatalf(format+": %v", append(otherArgs, err)...)
	}
}
