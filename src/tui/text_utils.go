package tui

import (
	"strings"

	"github.com/charmbracelet/x/ansi"
	"github.com/mattn/go-runewidth"
)

// VisualWidth returns the display width of text, accounting for multi-byte characters
func VisualWidth(s string) int {
	return runewidth.StringWidth(s)
}

// Truncate truncates text to maxLen characters (visual width) with optional ellipsis
func Truncate(s string, maxLen int, ellipsis bool) string {
	s = strings.TrimSpace(s)
	if maxLen <= 0 {
		return ""
	}

	visualWidth := VisualWidth(s)
	if visualWidth > maxLen {
		if ellipsis && maxLen > 3 {
			return runewidth.Truncate(s, maxLen-3, "") + "..."
		}
		return runewidth.Truncate(s, maxLen, "")
	}
	return s
}

// TruncateAndPad truncates text with optional ellipsis and pads to exact width
// Used for table cells to maintain consistent column widths
func TruncateAndPad(s string, width int, ellipsis bool) string {
	s = Truncate(s, width, ellipsis)
	visualWidth := VisualWidth(s)
	if visualWidth < width {
		return s + strings.Repeat(" ", width-visualWidth)
	}
	return s
}

// CleanLogText strips ANSI escape sequences from captured build output so
// plugin commands that colorize their output render cleanly inside the
// detail panel.
func CleanLogText(s string) string {
	return ansi.Strip(s)
}

// TailLines returns the last n lines of text, dropping trailing blank lines
// first so a log ending in newlines still shows content.
func TailLines(text string, n int) []string {
	if n <= 0 {
		return nil
	}
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return nil
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}
