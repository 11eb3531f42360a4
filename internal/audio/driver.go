package audio

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/kanada4310/tts-app/internal/segment"
)

var (
	// ErrPlaybackRejected is returned when the device refuses to start.
	ErrPlaybackRejected = errors.New("playback rejected by device")
	// ErrNoResource is returned when playback is requested before a load.
	ErrNoResource = errors.New("no audio resource loaded")
	// ErrDriverClosed is returned by a closed driver.
	ErrDriverClosed = errors.New("audio driver is closed")
)

// Playback speed limits.
const (
	MinSpeed     = 0.25
	MaxSpeed     = 2.0
	DefaultSpeed = 1.0
	SpeedStep    = 0.25
)

// EventType identifies a driver event.
type EventType int

const (
	// EventMetadataLoaded fires once the duration of a new resource is known.
	EventMetadataLoaded EventType = iota
	// EventTimeUpdate reports the playback position periodically.
	EventTimeUpdate
	// EventEnded fires when the resource played to its end.
	EventEnded
	// EventWaiting fires when playback stalls on a resource that is not ready.
	EventWaiting
	// EventCanPlay fires when a resource is ready to play.
	EventCanPlay
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventMetadataLoaded:
		return "metadataLoaded"
	case EventTimeUpdate:
		return "timeUpdate"
	case EventEnded:
		return "ended"
	case EventWaiting:
		return "waiting"
	case EventCanPlay:
		return "canPlay"
	default:
		return "unknown"
	}
}

// Event is emitted by a Driver.
type Event struct {
	Type     EventType
	Position time.Duration
	Duration time.Duration
}

// Driver controls one audio output device.
type Driver interface {
	// Load swaps the current resource and blocks until the new one is ready
	// or ctx is done. Speed is preserved, and a device that was playing
	// resumes on the new resource.
	Load(ctx context.Context, h *segment.Handle) error
	// Play starts or resumes playback. It fails with ErrPlaybackRejected
	// and leaves the device paused when the device refuses.
	Play() error
	Pause()
	// Seek moves the playback position, clamped to [0, Duration()].
	Seek(pos time.Duration)
	// SetSpeed sets the playback rate, clamped to [MinSpeed, MaxSpeed], and
	// returns the applied value.
	SetSpeed(speed float64) float64
	Speed() float64
	Position() time.Duration
	Duration() time.Duration
	IsPlaying() bool
	// SetListener registers the single event listener. It may be called from
	// any goroutine.
	SetListener(fn func(Event))
	Close() error
}

// ClampSpeed limits a playback rate to [MinSpeed, MaxSpeed].
func ClampSpeed(speed float64) float64 {
	if math.IsNaN(speed) {
		return DefaultSpeed
	}
	return math.Max(MinSpeed, math.Min(MaxSpeed, speed))
}

// ClampPosition limits pos to [0, duration].
func ClampPosition(pos, duration time.Duration) time.Duration {
	if pos < 0 {
		return 0
	}
	if pos > duration {
		return duration
	}
	return pos
}
