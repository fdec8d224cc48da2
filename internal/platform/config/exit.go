package config

import (
	"fmt"
	"os"
)

// Exitf prints a fatal message to stderr and exits with status 1. CLI entry
// points call it for unrecoverable setup errors instead of panicking.
func Exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
