// Command lcimctl is the demo/test driver of spec.md §6: it exercises the
// library boundary (array lifecycle, producer/consumer API, scan, worker)
// from outside the package, exactly as a CLI, a test harness, or a
// co-processor launcher would. The lock-free hot path never imports this
// package.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Exit codes match spec.md §6 bit-for-bit.
const (
	exitOK              = 0
	exitGeneric         = 1
	exitAllocFailure    = 2
	exitInvalidArgument = 3
	exitNUMAUnavailable = 4
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "lcimctl",
	Short: "Drive the LCIM-BitTheorium cell fabric from the command line",
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "lcimctl.yaml", "path to the YAML config file")
	rootCmd.AddCommand(serveCmd, benchCmd, scanCmd)

	if err := rootCmd.Execute(); err != nil {
		var exitErr *cliError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.msg)
			os.Exit(exitErr.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitGeneric)
	}
}

// cliError carries the exit code a subcommand wants main to surface.
type cliError struct {
	code int
	msg  string
}

func (e *cliError) Error() string { return e.msg }
