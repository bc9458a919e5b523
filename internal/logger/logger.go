// Package logger provides leveled logging for rentbot.
// Debug and Info messages are printed only in verbose mode (--verbose);
// warnings and errors are always printed. Output goes to stderr so it never
// mixes with answers written to stdout.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
)

var (
	mu      sync.RWMutex
	verbose bool
	output  io.Writer = os.Stderr
)

// SetVerbose enables or disables verbose logging.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
}

// IsVerbose returns true if verbose mode is enabled.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetOutput sets the output writer. Defaults to os.Stderr.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
}

// Debug prints a message if verbose mode is enabled.
func Debug(format string, args ...any) { logf(true, "[DEBUG] ", format, args...) }

// Info prints an informational message if verbose mode is enabled.
func Info(format string, args ...any) { logf(true, "[INFO] ", format, args...) }

// Warn prints a warning message.
func Warn(format string, args ...any) { logf(false, "[WARN] ", format, args...) }

// Error prints an error message.
func Error(format string, args ...any) { logf(false, "[ERROR] ", format, args...) }

// Section prints a section header if verbose mode is enabled.
func Section(name string) {
	mu.RLock()
	defer mu.RUnlock()
	if verbose {
		fmt.Fprintf(output, "\n=== %s ===\n", name)
	}
}

func logf(verboseOnly bool, prefix, format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	if verboseOnly && !verbose {
		return
	}
	fmt.Fprintf(output, prefix+format+"\n", args...)
}
