package logger

import (
	"github.com/fatih/color"
)

// Leveled printf-style loggers for console output. Each is a package-level
// function variable so call sites read like fmt.Printf with a level baked in.

// Info logs normal progress in green.
var Info = color.New(color.FgGreen).PrintfFunc()

// Warn logs cautionary messages in bright magenta.
var Warn = color.New(color.FgHiMagenta).PrintfFunc()

// Error logs failures in red.
var Error = color.New(color.FgRed).PrintfFunc()

// Debug logs verbose diagnostics in cyan when enabled via Init, and is a
// no-op otherwise.
var Debug func(format string, a ...any)

func init() {
	Debug = func(format string, a ...any) {}
}

// Init enables or disables debug output. Called from the CLI's
// PersistentPreRun based on the --debug flag.
func Init(enableDebug bool) {
	if enableDebug {
		Debug = color.New(color.FgCyan).PrintfFunc()
	} else {
		Debug = func(format string, a ...any) {}
	}
}
