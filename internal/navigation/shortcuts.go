package navigation

import (
	"strings"
	"sync"

	"github.com/charmbracelet/log"
)

// Action is what a key press asks for.
type Action int

const (
	ActionNone Action = iota
	ActionTogglePlay
	ActionPrevious
	ActionNext
	ActionSpeedUp
	ActionSpeedDown
	ActionToggleHelp
)

func (a Action) String() string {
	switch a {
	case ActionTogglePlay:
		return "toggle-play"
	case ActionPrevious:
		return "previous"
	case ActionNext:
		return "next"
	case ActionSpeedUp:
		return "speed-up"
	case ActionSpeedDown:
		return "speed-down"
	case ActionToggleHelp:
		return "toggle-help"
	default:
		return "none"
	}
}

// ActionFor maps a key name, as produced by bubbletea's KeyMsg.String, to an
// action.
func ActionFor(key string) Action {
	switch strings.ToLower(key) {
	case " ", "space", "k":
		return ActionTogglePlay
	case "left":
		return ActionPrevious
	case "right":
		return ActionNext
	case "up":
		return ActionSpeedUp
	case "down":
		return ActionSpeedDown
	case "?":
		return ActionToggleHelp
	}
	return ActionNone
}

// Binding describes one shortcut for help screens.
type Binding struct {
	Keys        string
	Description string
}

// Bindings lists the shortcuts in display order.
var Bindings = []Binding{
	{"space / k", "play / pause"},
	{"←", "previous sentence"},
	{"→", "next sentence"},
	{"↑", "speed +0.25"},
	{"↓", "speed -0.25"},
	{"?", "toggle help"},
}

// Shortcuts dispatches key presses to a Navigator. Keys are ignored while
// a text input has focus or the shortcuts are disabled.
type Shortcuts struct {
	nav    *Navigator
	logger *log.Logger

	mu           sync.Mutex
	enabled      bool
	inputFocused bool
	helpVisible  bool
	onHelp       func(visible bool)
	onError      func(error)
}

// NewShortcuts creates enabled shortcuts driving nav.
func NewShortcuts(nav *Navigator) *Shortcuts {
	return &Shortcuts{
		nav:     nav,
		logger:  nav.logger,
		enabled: true,
	}
}

// SetEnabled turns the shortcuts on or off.
func (s *Shortcuts) SetEnabled(enabled bool) {
	s.mu.Lock()
	s.enabled = enabled
	s.mu.Unlock()
}

// SetInputFocused records whether a text input has focus.
func (s *Shortcuts) SetInputFocused(focused bool) {
	s.mu.Lock()
	s.inputFocused = focused
	s.mu.Unlock()
}

// HelpVisible reports whether the help overlay is toggled on.
func (s *Shortcuts) HelpVisible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.helpVisible
}

// OnHelpToggle registers a callback for help visibility changes.
func (s *Shortcuts) OnHelpToggle(fn func(visible bool)) {
	s.mu.Lock()
	s.onHelp = fn
	s.mu.Unlock()
}

// OnError registers a callback for errors returned by the navigator.
func (s *Shortcuts) OnError(fn func(error)) {
	s.mu.Lock()
	s.onError = fn
	s.mu.Unlock()
}

// Handle runs the action bound to key and reports whether the key was
// consumed.
func (s *Shortcuts) Handle(key string) bool {
	s.mu.Lock()
	if !s.enabled || s.inputFocused {
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()

	action := ActionFor(key)
	if action == ActionNone {
		return false
	}

	var err error
	switch action {
	case ActionTogglePlay:
		err = s.nav.TogglePlay()
	case ActionPrevious:
		err = s.nav.Previous()
	case ActionNext:
		err = s.nav.Next()
	case ActionSpeedUp:
		_, err = s.nav.SpeedUp()
	case ActionSpeedDown:
		_, err = s.nav.SpeedDown()
	case ActionToggleHelp:
		s.toggleHelp()
	}

	s.logger.Debug("handled key", "key", key, "action", action)
	if err != nil {
		s.logger.Warn("shortcut failed", "action", action, "err", err)
		s.mu.Lock()
		fn := s.onError
		s.mu.Unlock()
		if fn != nil {
			fn(err)
		}
	}
	return true
}

func (s *Shortcuts) toggleHelp() {
	s.mu.Lock()
	s.helpVisible = !s.helpVisible
	visible, fn := s.helpVisible, s.onHelp
	s.mu.Unlock()
	if fn != nil {
		fn(visible)
	}
}
