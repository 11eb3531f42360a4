package policy

import (
	"fmt"
	"math"
)

// Inter-sentence pause limits, in seconds.
const (
	MinPauseSeconds     = 0.0
	MaxPauseSeconds     = 5.0
	PauseStepSeconds    = 0.5
	DefaultPauseSeconds = 1.0
)

// RepeatInfo describes repeat progress for display.
type RepeatInfo struct {
	// Current is 1-based.
	Current  int
	Total    int
	Infinite bool
}

func newRepeatInfo(currentRepeat, count int) *RepeatInfo {
	return &RepeatInfo{
		Current:  currentRepeat + 1,
		Total:    count,
		Infinite: count == InfiniteRepeat,
	}
}

// String formats the info as "current/total".
func (ri *RepeatInfo) String() string {
	if ri == nil {
		return ""
	}
	if ri.Infinite {
		return fmt.Sprintf("%d/∞", ri.Current)
	}
	return fmt.Sprintf("%d/%d", ri.Current, ri.Total)
}

// RepeatInfoFor returns the repeat progress of the current sentence, or nil
// when repeating is off or the sentence has not been repeated yet.
func RepeatInfoFor(count int, rs RepeatState) *RepeatInfo {
	if count == 1 || rs.CurrentRepeat == 0 {
		return nil
	}
	return newRepeatInfo(rs.CurrentRepeat, count)
}

// RepeatDisplay returns the text shown next to the repeat control: empty when
// repeating is off, otherwise the 1-based play number and the total.
func RepeatDisplay(count int, rs RepeatState) string {
	if count == 1 {
		return ""
	}
	return newRepeatInfo(rs.CurrentRepeat, count).String()
}

// ClampPauseSeconds limits a pause duration to the accepted range.
func ClampPauseSeconds(s float64) float64 {
	if math.IsNaN(s) {
		return DefaultPauseSeconds
	}
	return math.Max(MinPauseSeconds, math.Min(MaxPauseSeconds, s))
}

// PauseSettings is the user facing pause control.
type PauseSettings struct {
	Enabled         bool
	DurationSeconds float64
}

// Apply maps pause settings onto cfg. An enabled pause control implies
// auto-resume after the configured delay; autoPause alone pauses after each
// sentence and waits for the user.
func (p PauseSettings) Apply(cfg Config, autoPause bool) Config {
	cfg.PauseAfterSentence = p.Enabled || autoPause
	cfg.AutoResume = p.Enabled
	cfg.PauseDurationSeconds = ClampPauseSeconds(p.DurationSeconds)
	return cfg
}
