package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"

	"github.com/kanada4310/tts-app/internal/navigation"
)

// extraBindings are handled by the TUI itself rather than the shortcuts.
var extraBindings = []navigation.Binding{
	{Keys: "/", Description: "search sentences"},
	{Keys: "enter", Description: "jump to the selected match"},
	{Keys: "esc", Description: "close search or help"},
	{Keys: "c", Description: "copy the current sentence"},
	{Keys: "b", Description: "bookmark the current sentence"},
	{Keys: "r", Description: "start over from the first sentence"},
	{Keys: "q", Description: "quit"},
}

// helpMarkdown lists every key binding as a markdown table.
func helpMarkdown() string {
	var b strings.Builder
	b.WriteString("# Keys\n\n| Key | Action |\n| --- | --- |\n")
	for _, bindings := range [][]navigation.Binding{navigation.Bindings, extraBindings} {
		for _, k := range bindings {
			fmt.Fprintf(&b, "| `%s` | %s |\n", k.Keys, k.Description)
		}
	}
	return b.String()
}

// resolveStyle replaces "auto" with the standard style matching the
// terminal background. It queries the terminal, so it must run before the
// program takes over the input.
func resolveStyle(style string) string {
	if style != "auto" && style != "" {
		return style
	}
	if !termenv.HasDarkBackground() {
		return "light"
	}
	return "dark"
}

// renderHelp renders the help overlay with glamour. On failure the raw
// markdown is returned.
func renderHelp(style string, width int) string {
	md := helpMarkdown()
	if style == "" || style == "auto" {
		style = "dark"
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(max(width-4, 20)),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}
