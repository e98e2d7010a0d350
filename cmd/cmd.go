// Package cmd implements the zonefwd subcommands.
package cmd

import (
	"os"

	"grimm.is/zonefwd/internal/i18n"
	"grimm.is/zonefwd/internal/logging"
)

// Printer is the global message printer for the CLI
var Printer = i18n.NewCLIPrinter()

// cliLogger logs to stderr at warn, or debug when verbose.
func cliLogger(verbose bool) *logging.Logger {
	level := logging.LevelWarn
	if verbose {
		level = logging.LevelDebug
	}
	return logging.New(logging.Config{Level: level, Output: os.Stderr})
}
