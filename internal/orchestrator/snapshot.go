package orchestrator

import (
	"time"

	"github.com/kanada4310/tts-app/internal/policy"
)

// Snapshot is a value copy of everything a renderer needs.
type Snapshot struct {
	State       State
	Index       int
	Total       int
	IsPlaying   bool
	IsLoading   bool
	CurrentTime time.Duration
	Duration    time.Duration
	Speed       float64

	CurrentRepeat int
	RepeatText    string
	RepeatInfo    *policy.RepeatInfo

	// PausedBetweenSentences is true during a scheduled or manual pause
	// window. PauseScheduled is true when a timer will end it.
	PausedBetweenSentences bool
	PauseScheduled         bool

	Settings  Settings
	LastError error
}

// Progress returns the fraction of the current sentence played, in [0, 1].
func (s Snapshot) Progress() float64 {
	if s.Duration <= 0 {
		return 0
	}
	p := float64(s.CurrentTime) / float64(s.Duration)
	if p > 1 {
		return 1
	}
	return p
}

// HasNext reports whether a later sentence exists.
func (s Snapshot) HasNext() bool {
	return s.Total > 0 && s.Index < s.Total-1
}

// HasPrevious reports whether an earlier sentence exists.
func (s Snapshot) HasPrevious() bool {
	return s.Total > 0 && s.Index > 0
}
