// Package policy decides what happens when a sentence finishes playing.
//
// Decide is a pure function: it receives the sentence position, the repeat
// state and the configuration that is current at the moment the sentence
// ended, and returns a Decision. Callers are expected to pass the live
// configuration every time rather than caching it across sentences.
package policy

import "fmt"

// ActionType is the kind of transition chosen at a sentence boundary.
type ActionType int

const (
	// ActionRepeat replays the same sentence.
	ActionRepeat ActionType = iota
	// ActionAdvance moves to the next sentence.
	ActionAdvance
	// ActionComplete ends playback after the last sentence.
	ActionComplete
)

// String returns the string representation of the action.
func (a ActionType) String() string {
	switch a {
	case ActionRepeat:
		return "repeat"
	case ActionAdvance:
		return "advance"
	case ActionComplete:
		return "complete"
	default:
		return "unknown"
	}
}

const (
	// RepeatPauseMs is the fixed pause inserted before every repeat. It is
	// independent of the configurable inter-sentence pause.
	RepeatPauseMs = 1000

	// ManualResume is the PauseMs sentinel for "wait for the user to resume".
	ManualResume = -1

	// NoSeek is the SeekTo value of a COMPLETE decision.
	NoSeek = -1

	// InfiniteRepeat is the RepeatCount that repeats until interrupted.
	InfiniteRepeat = -1
)

// ValidRepeatCounts lists the accepted RepeatCount values.
var ValidRepeatCounts = []int{1, 3, 5, InfiniteRepeat}

// Config holds the options the decision depends on.
type Config struct {
	RepeatCount          int
	PauseAfterSentence   bool
	AutoResume           bool
	PauseDurationSeconds float64
	// AutoAdvance is not read by Decide. When it is off the player stops
	// after an ADVANCE decision instead of moving on.
	AutoAdvance          bool
}

// DefaultConfig returns the configuration a fresh player starts with.
func DefaultConfig() Config {
	return Config{
		RepeatCount:          1,
		PauseAfterSentence:   false,
		AutoResume:           false,
		PauseDurationSeconds: DefaultPauseSeconds,
		AutoAdvance:          true,
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if !IsValidRepeatCount(c.RepeatCount) {
		return fmt.Errorf("repeat count must be one of %v, got %d", ValidRepeatCounts, c.RepeatCount)
	}
	if c.PauseDurationSeconds < MinPauseSeconds || c.PauseDurationSeconds > MaxPauseSeconds {
		return fmt.Errorf("pause duration must be between %.1f and %.1f seconds, got %.2f",
			MinPauseSeconds, MaxPauseSeconds, c.PauseDurationSeconds)
	}
	return nil
}

// IsValidRepeatCount reports whether n is an accepted repeat count.
func IsValidRepeatCount(n int) bool {
	for _, v := range ValidRepeatCounts {
		if v == n {
			return true
		}
	}
	return false
}

// RepeatState tracks how often the current sentence has been repeated.
type RepeatState struct {
	CurrentRepeat int
}

// Decision is the outcome of a sentence boundary.
type Decision struct {
	Action ActionType
	// SeekTo is the sentence to switch to, or NoSeek.
	SeekTo int
	// PauseMs is the pause before resuming: 0 plays at once, ManualResume
	// waits for the user.
	PauseMs int
	// Next is the repeat state to carry forward.
	Next RepeatState
	// Info describes the repeat progress for display; nil when not repeating.
	Info         *RepeatInfo
	DebugMessage string
}

// ShouldRepeat reports whether a sentence with the given repeat state must be
// played again under cfg.
func ShouldRepeat(rs RepeatState, cfg Config) bool {
	if cfg.RepeatCount == InfiniteRepeat {
		return true
	}
	return cfg.RepeatCount != 1 && rs.CurrentRepeat < cfg.RepeatCount-1
}

// Decide evaluates a sentence boundary.
func Decide(index, total int, rs RepeatState, cfg Config) Decision {
	if ShouldRepeat(rs, cfg) {
		next := RepeatState{CurrentRepeat: rs.CurrentRepeat + 1}
		info := newRepeatInfo(next.CurrentRepeat, cfg.RepeatCount)
		return Decision{
			Action:       ActionRepeat,
			SeekTo:       index,
			PauseMs:      RepeatPauseMs,
			Next:         next,
			Info:         info,
			DebugMessage: fmt.Sprintf("repeat sentence %d (%s)", index, info),
		}
	}

	if index >= total-1 {
		return Decision{
			Action:       ActionComplete,
			SeekTo:       NoSeek,
			PauseMs:      0,
			Next:         RepeatState{},
			DebugMessage: fmt.Sprintf("sentence %d was the last of %d", index, total),
		}
	}

	pause := advancePause(cfg)
	return Decision{
		Action:       ActionAdvance,
		SeekTo:       index + 1,
		PauseMs:      pause,
		Next:         RepeatState{},
		DebugMessage: fmt.Sprintf("advance to sentence %d (pause %dms)", index+1, pause),
	}
}

func advancePause(cfg Config) int {
	switch {
	case cfg.PauseAfterSentence && cfg.AutoResume:
		return int(ClampPauseSeconds(cfg.PauseDurationSeconds) * 1000)
	case cfg.PauseAfterSentence:
		return ManualResume
	default:
		return 0
	}
}
