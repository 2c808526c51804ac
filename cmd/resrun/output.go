package main

import (
	"fmt"
	"os"
)

// ANSI styling for user-facing messages; suppressed entirely by --no-color.
const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiCyan   = "\033[36m"
	ansiBold   = "\033[1m"
)

func colorize(code, text string) string {
	if noColor {
		return text
	}
	return code + text + ansiReset
}

// notef prints one prefixed status line to stderr, keeping stdout clean for
// report and JSON output.
func notef(code, prefix, format string, args ...any) {
	fmt.Fprintln(os.Stderr, colorize(code, prefix+fmt.Sprintf(format, args...)))
}

func printSuccess(format string, args ...any) { notef(ansiGreen, "✓ ", format, args...) }

func printError(format string, args ...any) { notef(ansiRed, "✗ ", format, args...) }

func printWarning(format string, args ...any) { notef(ansiYellow, "⚠ ", format, args...) }

func printStep(format string, args ...any) { notef(ansiCyan, "→ ", format, args...) }

func printStatus(label string, format string, args ...any) {
	fmt.Fprintf(os.Stderr, "  %s %s\n", colorize(ansiBold, label+":"), fmt.Sprintf(format, args...))
}
