// Package ui provides the terminal player for ttsapp.
package ui

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/sahilm/fuzzy"

	"github.com/kanada4310/tts-app/internal/navigation"
	"github.com/kanada4310/tts-app/internal/orchestrator"
	"github.com/kanada4310/tts-app/internal/segment"
)

const (
	statusMessageTimeout = time.Second * 3 // how long to show status messages like "copied!"
	maxSearchResults     = 5
	reloadTimeout        = time.Minute
)

// Player is the part of the orchestrator the TUI reads from.
type Player interface {
	Snapshot() orchestrator.Snapshot
	Segments() []segment.Segment
	Restart(ctx context.Context) error
	OnUpdate(fn func(orchestrator.Snapshot))
}

// Bookmarker keeps the bookmarked sentences.
type Bookmarker interface {
	Toggle(sentence string, index int, source string) (bool, error)
	IsBookmarked(sentence string) bool
}

// Deps are the collaborators the TUI drives.
type Deps struct {
	Player    Player
	Navigator *navigation.Navigator
	Shortcuts *navigation.Shortcuts

	// Activity is called on every key press. Optional.
	Activity func()
	// Reload resynthesizes and loads the source. Optional.
	Reload func(ctx context.Context) error
	// Changes signals that the source changed on disk. Optional.
	Changes <-chan struct{}
	// Bookmarks enables the bookmark key. Optional.
	Bookmarks Bookmarker

	Logger *log.Logger
}

type (
	snapshotMsg             orchestrator.Snapshot
	errMsg                  struct{ err error }
	statusMessageTimeoutMsg struct{}
	sourceChangedMsg        struct{}
	reloadedMsg             struct{ err error }
	restartedMsg            struct{ err error }
)

func (e errMsg) Error() string { return e.err.Error() }

type model struct {
	cfg    Config
	deps   Deps
	logger *log.Logger

	snap       orchestrator.Snapshot
	sentences  []string
	bookmarked map[int]bool

	width  int
	height int

	progress progress.Model

	search    textinput.Model
	searching bool
	matches   fuzzy.Matches
	selected  int

	showHelp bool
	help     string

	statusMessage string
	err           error
}

// NewProgram returns a new Tea program wired to the player's updates.
func NewProgram(cfg Config, deps Deps) *tea.Program {
	cfg.GlamourStyle = resolveStyle(cfg.GlamourStyle)
	m := newModel(cfg, deps)
	p := tea.NewProgram(m, tea.WithAltScreen())

	deps.Player.OnUpdate(func(s orchestrator.Snapshot) {
		p.Send(snapshotMsg(s))
	})
	if deps.Shortcuts != nil {
		// Handle runs inside Update, so sending must not block it.
		deps.Shortcuts.OnError(func(err error) {
			go p.Send(errMsg{err})
		})
	}
	return p
}

func newModel(cfg Config, deps Deps) model {
	if deps.Logger == nil {
		deps.Logger = log.Default()
	}
	if cfg.HighlightColor == "" {
		cfg.HighlightColor = "212"
	}

	ti := textinput.New()
	ti.Placeholder = "search sentences"
	ti.Prompt = "/ "
	ti.CharLimit = 200

	m := model{
		cfg:      cfg,
		deps:     deps,
		logger:   deps.Logger.WithPrefix("ui"),
		progress: progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		search:   ti,
	}
	m.snap = deps.Player.Snapshot()
	m.refreshSentences()
	return m
}

func (m model) Init() tea.Cmd {
	return m.waitForChange()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = max(msg.Width-4, 10)
		m.search.Width = max(msg.Width-6, 10)
		if m.showHelp {
			m.help = renderHelp(m.cfg.GlamourStyle, m.width)
		}

	case tea.KeyMsg:
		if m.deps.Activity != nil {
			m.deps.Activity()
		}
		return m.handleKey(msg)

	case snapshotMsg:
		m.snap = orchestrator.Snapshot(msg)
		if m.snap.Total != len(m.sentences) {
			m.refreshSentences()
		}

	case errMsg:
		m.err = msg.err
		m.logger.Warn("action failed", "err", msg.err)

	case sourceChangedMsg:
		cmds = append(cmds, m.setStatus("reloading…"), m.reloadCmd(), m.waitForChange())

	case reloadedMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.err = nil
			m.snap = m.deps.Player.Snapshot()
			m.refreshSentences()
			cmds = append(cmds, m.setStatus("reloaded"))
		}

	case restartedMsg:
		if msg.err != nil {
			m.err = msg.err
		}

	case statusMessageTimeoutMsg:
		m.statusMessage = ""

	case progress.FrameMsg:
		pm, cmd := m.progress.Update(msg)
		m.progress = pm.(progress.Model)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *model) refreshSentences() {
	segs := m.deps.Player.Segments()
	m.sentences = make([]string, len(segs))
	for i, s := range segs {
		m.sentences[i] = s.Text
	}
	m.refreshBookmarks()
}

func (m *model) refreshBookmarks() {
	m.bookmarked = nil
	if m.deps.Bookmarks == nil {
		return
	}
	m.bookmarked = make(map[int]bool)
	for i, s := range m.sentences {
		if m.deps.Bookmarks.IsBookmarked(s) {
			m.bookmarked[i] = true
		}
	}
}

// toggleBookmark bookmarks the current sentence or removes its bookmark.
func (m *model) toggleBookmark() tea.Cmd {
	i := m.snap.Index
	if m.deps.Bookmarks == nil || i < 0 || i >= len(m.sentences) {
		return nil
	}
	added, err := m.deps.Bookmarks.Toggle(m.sentences[i], i, m.cfg.Path)
	if err != nil {
		m.err = err
		return nil
	}
	m.refreshBookmarks()
	if added {
		return m.setStatus("bookmarked")
	}
	return m.setStatus("bookmark removed")
}

// setStatus shows a transient message.
func (m *model) setStatus(s string) tea.Cmd {
	m.statusMessage = s
	return tea.Tick(statusMessageTimeout, func(time.Time) tea.Msg {
		return statusMessageTimeoutMsg{}
	})
}

func (m model) waitForChange() tea.Cmd {
	ch := m.deps.Changes
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return sourceChangedMsg{}
	}
}

func (m model) reloadCmd() tea.Cmd {
	reload := m.deps.Reload
	if reload == nil {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), reloadTimeout)
		defer cancel()
		return reloadedMsg{reload(ctx)}
	}
}

func (m model) restartCmd() tea.Cmd {
	player := m.deps.Player
	return func() tea.Msg {
		return restartedMsg{player.Restart(context.Background())}
	}
}

func (m model) copyCmd() tea.Cmd {
	if m.snap.Index < 0 || m.snap.Index >= len(m.sentences) {
		return nil
	}
	text := m.sentences[m.snap.Index]
	return func() tea.Msg {
		if err := clipboard.WriteAll(text); err != nil {
			return errMsg{err}
		}
		return nil
	}
}

func (m model) View() string {
	if m.width == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.headerView())
	b.WriteString("\n\n")

	body := m.height - 6
	if m.searching {
		body -= maxSearchResults + 2
	}
	if n := m.cfg.ContextLines; n > 0 {
		body = min(body, 2*n+1)
	}

	if m.showHelp {
		b.WriteString(m.help)
	} else {
		b.WriteString(renderList(m.sentences, m.snap.Index, m.width, max(body, 1),
			lipgloss.Color(m.cfg.HighlightColor), m.markedIndexes(), m.bookmarked))
	}
	b.WriteString("\n\n")

	if m.searching {
		b.WriteString(m.searchView())
		b.WriteString("\n")
	}
	if m.cfg.ShowProgress {
		b.WriteString("  " + m.progress.ViewAs(m.snap.Progress()))
		b.WriteString("\n")
	}
	b.WriteString(m.footerView())
	return b.String()
}

func (m model) headerView() string {
	title := "ttsapp"
	if m.cfg.Path != "" {
		title = filepath.Base(m.cfg.Path)
	}
	return lipgloss.NewStyle().Bold(true).Padding(0, 1).Render(fitLine(title, max(m.width-2, 1)))
}

func (m model) footerView() string {
	status := renderStatus(m.snap, m.cfg.ShowState)
	switch {
	case m.err != nil:
		status += errorStyle.Render("  " + m.err.Error())
	case m.statusMessage != "":
		status += lipgloss.NewStyle().Foreground(playingColor).Render("  " + m.statusMessage)
	}
	return " " + status + dimStyle.Render("  ? help")
}

func (m model) searchView() string {
	lines := []string{" " + m.search.View()}
	for i, match := range m.matches {
		if i >= maxSearchResults {
			break
		}
		cursor := "  "
		if i == m.selected {
			cursor = "▸ "
		}
		line := fitLine(match.Str, max(m.width-4, 1))
		if i == m.selected {
			line = lipgloss.NewStyle().Foreground(lipgloss.Color(m.cfg.HighlightColor)).Render(line)
		}
		lines = append(lines, " "+cursor+line)
	}
	return strings.Join(lines, "\n")
}

func (m model) markedIndexes() map[int]bool {
	if !m.searching || len(m.matches) == 0 {
		return nil
	}
	marked := make(map[int]bool, len(m.matches))
	for _, match := range m.matches {
		marked[match.Index] = true
	}
	return marked
}
