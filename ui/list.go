package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/truncate"
)

const ellipsis = "…"

// fitLine cuts s to width display cells and pads it to exactly width.
func fitLine(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) > width {
		s = truncate.StringWithTail(s, uint(width), ellipsis) //nolint:gosec
	}
	return runewidth.FillRight(s, width)
}

// window returns the [start, end) range of rows to show so that current
// stays visible, centred where possible.
func window(current, total, height int) (int, int) {
	if height <= 0 || total <= 0 {
		return 0, 0
	}
	if total <= height {
		return 0, total
	}
	start := current - height/2
	start = max(0, min(start, total-height))
	return start, start + height
}

// renderList draws the sentence list. marked holds indexes to emphasise,
// such as search matches. Bookmarked sentences get a star after the number.
func renderList(sentences []string, current, width, height int, highlight lipgloss.Color, marked, bookmarked map[int]bool) string {
	if len(sentences) == 0 {
		return ""
	}

	numWidth := len(fmt.Sprint(len(sentences)))
	textWidth := width - numWidth - 5

	currentStyle := lipgloss.NewStyle().Foreground(highlight).Bold(true)
	markedStyle := lipgloss.NewStyle().Underline(true)

	start, end := window(current, len(sentences), height)
	lines := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		cursor := " "
		if i == current {
			cursor = "▸"
		}
		num := fmt.Sprintf("%*d", numWidth, i+1)
		star := " "
		if bookmarked[i] {
			star = "*"
		}
		prefix := cursor + " " + num + " " + star + " "
		text := fitLine(sentences[i], textWidth)

		var line string
		switch {
		case i == current:
			line = currentStyle.Render(prefix + text)
		case marked[i]:
			line = dimStyle.Render(prefix) + markedStyle.Render(text)
		default:
			line = dimStyle.Render(prefix) + text
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
