// Package logflags centralizes how lperf's --verbose flag is turned into
// a configured logrus logger, the way the teacher's pkg/logflags turns
// --log/--log-output into per-subsystem loggers.
package logflags

import (
	"os"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

// Setup configures the standard logger's level and formatter. verbose
// raises the level to Trace; otherwise only Info and above are emitted.
// Output goes through go-colorable so ANSI codes render on Windows
// consoles too, matching delve's terminal-output handling, and colors
// are enabled only when stdout is actually a terminal.
func Setup(verbose bool) *logrus.Entry {
	logger := logrus.New()
	logger.Out = colorable.NewColorableStdout()
	logger.Formatter = &logrus.TextFormatter{
		ForceColors:   isatty.IsTerminal(os.Stdout.Fd()),
		FullTimestamp: true,
	}
	logger.Level = logrus.InfoLevel
	if verbose {
		logger.Level = logrus.TraceLevel
	}
	return logrus.NewEntry(logger)
}
