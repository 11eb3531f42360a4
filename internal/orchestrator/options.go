package orchestrator

import (
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/kanada4310/tts-app/internal/audio"
	"github.com/kanada4310/tts-app/internal/clock"
	"github.com/kanada4310/tts-app/internal/policy"
)

// Settings is the live configuration. The policy part is read at every
// sentence boundary.
type Settings struct {
	policy.Config
	Speed float64
}

// DefaultSettings returns the settings a new orchestrator starts with.
func DefaultSettings() Settings {
	return Settings{
		Config: policy.DefaultConfig(),
		Speed:  audio.DefaultSpeed,
	}
}

// Validate checks the settings.
func (s Settings) Validate() error {
	if err := s.Config.Validate(); err != nil {
		return err
	}
	if s.Speed < audio.MinSpeed || s.Speed > audio.MaxSpeed {
		return fmt.Errorf("speed must be between %.2f and %.2f, got %.2f", audio.MinSpeed, audio.MaxSpeed, s.Speed)
	}
	return nil
}

// PlayRecorder receives every start of a sentence playback. It is called
// off the playback loop and its outcome is ignored.
type PlayRecorder interface {
	RecordPlay(index int, isRepeat bool)
}

// Option configures the orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// WithClock sets the clock used for pause timers.
func WithClock(c clock.Clock) Option {
	return func(o *Orchestrator) {
		o.clock = c
	}
}

// WithRecorder attaches a learning-session recorder.
func WithRecorder(r PlayRecorder) Option {
	return func(o *Orchestrator) {
		o.recorder = r
	}
}

// WithSettings sets the initial settings. Invalid values are clamped or
// replaced by defaults.
func WithSettings(s Settings) Option {
	return func(o *Orchestrator) {
		o.settings = sanitize(s)
	}
}

func sanitize(s Settings) Settings {
	if !policy.IsValidRepeatCount(s.RepeatCount) {
		s.RepeatCount = policy.DefaultConfig().RepeatCount
	}
	s.PauseDurationSeconds = policy.ClampPauseSeconds(s.PauseDurationSeconds)
	s.Speed = audio.ClampSpeed(s.Speed)
	return s
}
