package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/kanada4310/tts-app/internal/orchestrator"
)

var (
	playingColor  = lipgloss.Color("#00FF00")
	pausedColor   = lipgloss.Color("#FFFF00")
	waitingColor  = lipgloss.Color("#00AAFF")
	idleColor     = lipgloss.Color("#888888")
	errorColor    = lipgloss.Color("#FF0000")
	completeColor = lipgloss.Color("#AF87FF")

	dimStyle   = lipgloss.NewStyle().Foreground(idleColor)
	errorStyle = lipgloss.NewStyle().Foreground(errorColor)
)

// stateIcon returns the icon, label and color for a snapshot.
func stateIcon(s orchestrator.Snapshot) (string, string, lipgloss.Color) {
	if s.IsLoading {
		return "⟳", "loading", waitingColor
	}
	switch s.State {
	case orchestrator.StatePlaying:
		return "▶", "playing", playingColor
	case orchestrator.StatePausedUser:
		return "⏸", "paused", pausedColor
	case orchestrator.StatePausedBetweenSentences:
		if s.PauseScheduled {
			return "⏳", "pause", waitingColor
		}
		return "⏸", "press space", pausedColor
	case orchestrator.StateLoaded:
		return "■", "ready", idleColor
	case orchestrator.StateComplete:
		return "✓", "done", completeColor
	default:
		return "", "", idleColor
	}
}

// statusParts returns the unstyled pieces of the status line.
func statusParts(s orchestrator.Snapshot) []string {
	icon, label, _ := stateIcon(s)
	if icon == "" {
		return nil
	}

	parts := []string{icon + " " + label}
	if s.Total > 0 {
		parts = append(parts, fmt.Sprintf("%d/%d", s.Index+1, s.Total))
	}
	if s.RepeatText != "" {
		parts = append(parts, "↻ "+s.RepeatText)
	}
	parts = append(parts, fmt.Sprintf("%.2fx", s.Speed))
	if s.Duration > 0 {
		parts = append(parts, formatClock(s.CurrentTime)+" / "+formatClock(s.Duration))
	}
	if cfg := s.Settings; cfg.PauseAfterSentence {
		if cfg.AutoResume {
			parts = append(parts, fmt.Sprintf("pause %.1fs", cfg.PauseDurationSeconds))
		} else {
			parts = append(parts, "pause: manual")
		}
	}
	return parts
}

// StatusLine renders the plain status line, as used by headless mode.
func StatusLine(s orchestrator.Snapshot) string {
	line := strings.Join(statusParts(s), "  ")
	if s.LastError != nil {
		line += "  ✗ " + s.LastError.Error()
	}
	return line
}

// renderStatus styles the status line for the TUI.
func renderStatus(s orchestrator.Snapshot, showState bool) string {
	parts := statusParts(s)
	if len(parts) == 0 {
		return ""
	}

	_, _, color := stateIcon(s)
	out := lipgloss.NewStyle().Foreground(color).Bold(true).Render(parts[0])
	if len(parts) > 1 {
		out += dimStyle.Render("  " + strings.Join(parts[1:], "  "))
	}
	if showState {
		out += dimStyle.Render("  [" + s.State.String() + "]")
	}
	if s.LastError != nil {
		out += errorStyle.Render("  ✗ " + s.LastError.Error())
	}
	return out
}

// formatClock formats d as m:ss.
func formatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}
