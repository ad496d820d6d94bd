package cli

import (
	"fmt"
	"strings"
)

// DisplayConfig controls status output formatting.
type DisplayConfig struct {
	Width          int  // Terminal width for progress bars
	UseColor       bool // Enable ANSI color codes
	ShowTimestamps bool // Include timestamps in output
}

// StatusSymbol is the single-character glyph shown for a slot's status.
type StatusSymbol string

const (
	SymbolComplete   StatusSymbol = "✓"
	SymbolInProgress StatusSymbol = "●"
	SymbolPending    StatusSymbol = "○"
	SymbolFailed     StatusSymbol = "✗"
	SymbolBlocked    StatusSymbol = "→"
)

// RenderProgressBar renders a progress bar of specified width.
func RenderProgressBar(progress float64, width int) string {
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}

	filled := int(progress * float64(width))
	empty := width - filled

	bar := strings.Repeat("█", filled) + strings.Repeat("░", empty)

	percent := int(progress * 100)
	return fmt.Sprintf("[%s] %3d%%", bar, percent)
}

// GetStatusSymbol returns the symbol for a slot's persisted status string.
func GetStatusSymbol(status string) StatusSymbol {
	switch status {
	case "done":
		return SymbolComplete
	case "running", "merging":
		return SymbolInProgress
	case "failed":
		return SymbolFailed
	case "blocked":
		return SymbolBlocked
	default:
		return SymbolPending
	}
}

// FormatSlotLine formats a single slot's status line, e.g.:
//
//	● #142 add retry backoff to tracker client        attempt 2  backend
func FormatSlotLine(number int, title, domain, status string, attempts int) string {
	symbol := GetStatusSymbol(status)
	line := fmt.Sprintf(" %s #%-4d %-48s attempt %d", symbol, number, truncate(title, 48), attempts)
	if domain != "" {
		line += "  " + domain
	}
	return line
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
