package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sahilm/fuzzy"
)

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	// Ctrl+C always quits, even while searching.
	if key == "ctrl+c" {
		return m, tea.Quit
	}

	if m.searching {
		return m.handleSearchKey(msg)
	}

	switch key {
	case "q":
		return m, tea.Quit

	case "esc":
		if m.showHelp {
			m.toggleHelp()
		}
		return m, nil

	case "/":
		m.searching = true
		m.search.SetValue("")
		m.matches = nil
		m.selected = 0
		if m.deps.Shortcuts != nil {
			m.deps.Shortcuts.SetInputFocused(true)
		}
		return m, m.search.Focus()

	case "c":
		cmd := m.copyCmd()
		if cmd == nil {
			return m, nil
		}
		return m, tea.Batch(cmd, m.setStatus("copied!"))

	case "r":
		m.err = nil
		return m, tea.Batch(m.restartCmd(), m.setStatus("starting over"))

	case "b":
		cmd := m.toggleBookmark()
		return m, cmd
	}

	if m.deps.Shortcuts == nil {
		return m, nil
	}
	if m.deps.Shortcuts.Handle(key) {
		m.err = nil
		if m.deps.Shortcuts.HelpVisible() != m.showHelp {
			m.toggleHelp()
		}
		m.snap = m.deps.Player.Snapshot()
	}
	return m, nil
}

func (m *model) toggleHelp() {
	m.showHelp = !m.showHelp
	if m.showHelp {
		m.help = renderHelp(m.cfg.GlamourStyle, m.width)
	}
	// Keep the shortcut state in step when help was closed with esc.
	if m.deps.Shortcuts != nil && m.deps.Shortcuts.HelpVisible() != m.showHelp {
		m.deps.Shortcuts.Handle("?")
	}
}

func (m model) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.closeSearch()
		return m, nil

	case "enter":
		var err error
		if len(m.matches) > 0 && m.deps.Navigator != nil {
			err = m.deps.Navigator.GoTo(m.matches[m.selected].Index)
		}
		m.closeSearch()
		if err != nil {
			m.err = err
		}
		m.snap = m.deps.Player.Snapshot()
		return m, nil

	case "up", "ctrl+p":
		if m.selected > 0 {
			m.selected--
		}
		return m, nil

	case "down", "ctrl+n":
		if m.selected < min(len(m.matches), maxSearchResults)-1 {
			m.selected++
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	m.matches = findSentences(m.search.Value(), m.sentences)
	m.selected = 0
	return m, cmd
}

func (m *model) closeSearch() {
	m.searching = false
	m.search.Blur()
	m.matches = nil
	if m.deps.Shortcuts != nil {
		m.deps.Shortcuts.SetInputFocused(false)
	}
}

// findSentences returns the sentences matching pattern, best match first.
func findSentences(pattern string, sentences []string) fuzzy.Matches {
	if pattern == "" {
		return nil
	}
	return fuzzy.Find(pattern, sentences)
}
