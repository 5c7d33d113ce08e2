// Package ctl implements the client-side commands for stagectl.
// It talks to a running stagelinkd over HTTP and WebSocket and renders the
// results to the terminal.
package ctl

import (
	"fmt"
	"os"
	"time"
)

// ANSI escape codes for terminal formatting.
const (
	reset  = "\033[0m"
	bold   = "\033[1m"
	dim    = "\033[2m"
	red    = "\033[31m"
	green  = "\033[32m"
	yellow = "\033[33m"
	blue   = "\033[34m"
	cyan   = "\033[36m"
	white  = "\033[37m"
)

// colorEnabled reports whether stdout is a terminal. When output is piped
// or redirected, ANSI escape codes are suppressed.
func colorEnabled() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// colorize wraps text with an ANSI color sequence.
// Returns the text unchanged when color output is disabled.
func colorize(color, text string) string {
	if !colorEnabled() || color == "" {
		return text
	}
	return color + text + reset
}

// header renders a bold section header.
func header(text string) string {
	return colorize(bold, text)
}

// roleColor returns the color for a sync role.
func roleColor(role string) string {
	if !colorEnabled() {
		return ""
	}
	switch role {
	case "control":
		return cyan
	case "receiver":
		return blue
	case "solo":
		return dim
	default:
		return white
	}
}

// connColor returns the color for a connected/disconnected state.
func connColor(connected bool) string {
	if !colorEnabled() {
		return ""
	}
	if connected {
		return green
	}
	return red
}

// formatDuration renders a duration in a compact humane form, e.g. "2h 13m".
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
