// Package ui provides ANSI styling for loomd's terminal output.
package ui

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

// ANSI256 color codes.
const (
	colorAccent     = 74  // blue, section headers and entity keys
	colorCommand    = 250 // light gray, command names in help
	colorMuted      = 245 // medium gray, labels and defaults
	colorIdle       = 71  // green
	colorProcessing = 208 // orange
)

var noColor bool

// ShouldUseColor returns true when ANSI colors should be used on stdout.
// It respects NO_COLOR, CLICOLOR_FORCE, CLICOLOR, and TTY detection.
func ShouldUseColor() bool {
	// https://no-color.org — any non-empty value disables color.
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if strings.TrimSpace(os.Getenv("CLICOLOR_FORCE")) == "1" {
		return true
	}
	if strings.TrimSpace(os.Getenv("CLICOLOR")) == "0" {
		return false
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}

func render(code int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", code, s)
}

// RenderAccent returns s in the accent (blue) color.
func RenderAccent(s string) string { return render(colorAccent, s) }

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string { return render(colorMuted, s) }

// RenderCommand returns s styled as a command name.
func RenderCommand(s string) string { return render(colorCommand, s) }

// RenderState colors an entity processing state: green when idle,
// orange while a digest run is in flight.
func RenderState(state string) string {
	switch state {
	case "idle":
		return render(colorIdle, state)
	case "processing":
		return render(colorProcessing, state)
	default:
		return state
	}
}

// Label formats a right-padded field label in the muted color.
func Label(name string) string {
	return RenderMuted(fmt.Sprintf("%-11s", name+":"))
}
