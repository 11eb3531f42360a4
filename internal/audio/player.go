package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/kanada4310/tts-app/internal/segment"
)

// Player is the Driver backed by the system audio device through oto.
// Speed changes resample on the fly, so pitch follows the rate.
type Player struct {
	// OTO context - initialized once and reused
	context *oto.Context
	format  segment.Format

	mu       sync.Mutex
	player   *oto.Player
	stream   *rateReader // keeps the PCM alive while oto reads it
	handle   *segment.Handle
	duration time.Duration
	speed    float64
	volume   float64
	listener func(Event)

	state atomic.Int32 // PlayerState

	tick   time.Duration
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// PlayerConfig contains configuration for the audio player.
type PlayerConfig struct {
	SampleRate int // 44100 or 48000 Hz only
	Channels   int // 1 = mono, 2 = stereo
	BitDepth   int // 16 bits per sample
	BufferSize int // Buffer size for streaming
	// TickInterval is how often time updates are emitted while playing.
	TickInterval time.Duration
}

// DefaultPlayerConfig returns the default player configuration.
func DefaultPlayerConfig() PlayerConfig {
	return PlayerConfig{
		SampleRate:   44100,
		Channels:     1,
		BitDepth:     16,
		BufferSize:   4096,
		TickInterval: 250 * time.Millisecond,
	}
}

// NewPlayer opens the audio device. Only one Player may exist per process
// because oto allows a single context.
func NewPlayer(config PlayerConfig) (*Player, error) {
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	op := &oto.NewContextOptions{
		SampleRate:   config.SampleRate,
		ChannelCount: config.Channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   time.Duration(config.BufferSize) * time.Second / time.Duration(config.SampleRate*config.Channels*2),
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-readyChan

	tick := config.TickInterval
	if tick <= 0 {
		tick = DefaultPlayerConfig().TickInterval
	}

	p := &Player{
		context: ctx,
		format: segment.Format{
			SampleRate: config.SampleRate,
			Channels:   config.Channels,
			BitDepth:   config.BitDepth,
		},
		speed:  DefaultSpeed,
		volume: 1.0,
		tick:   tick,
		stopCh: make(chan struct{}),
	}
	p.state.Store(int32(StateStopped))

	p.wg.Add(1)
	go p.monitor()

	return p, nil
}

// validateConfig validates the player configuration.
func validateConfig(config PlayerConfig) error {
	// OTO only supports specific sample rates reliably
	if config.SampleRate != 44100 && config.SampleRate != 48000 {
		return fmt.Errorf("sample rate must be 44100 or 48000 Hz, got %d", config.SampleRate)
	}
	if config.Channels != 1 && config.Channels != 2 {
		return fmt.Errorf("channels must be 1 (mono) or 2 (stereo), got %d", config.Channels)
	}
	if config.BitDepth != 16 {
		return fmt.Errorf("bit depth must be 16, got %d", config.BitDepth)
	}
	if config.BufferSize <= 0 {
		return errors.New("buffer size must be positive")
	}
	return nil
}

// Load implements Driver.
func (p *Player) Load(ctx context.Context, h *segment.Handle) error {
	if h == nil {
		return ErrNoResource
	}
	if p.State() == StateClosed {
		return ErrDriverClosed
	}

	p.emit(Event{Type: EventWaiting})

	pcm, err := h.PCM()
	if err != nil {
		return fmt.Errorf("decode segment %d: %w", h.Index(), err)
	}
	data, err := convertPCM(pcm, p.format)
	if err != nil {
		return fmt.Errorf("convert segment %d: %w", h.Index(), err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	if p.State() == StateClosed {
		p.mu.Unlock()
		return ErrDriverClosed
	}
	wasPlaying := p.State() == StatePlaying
	p.closePlayerLocked()

	p.stream = newRateReader(data, p.format, p.speed)
	p.player = p.context.NewPlayer(p.stream)
	p.player.SetVolume(p.volume)
	p.handle = h
	p.duration = p.format.DurationOf(len(data))

	if wasPlaying {
		p.player.Play()
		p.state.Store(int32(StatePlaying))
	} else {
		p.state.Store(int32(StatePaused))
	}
	duration := p.duration
	p.mu.Unlock()

	p.emit(Event{Type: EventMetadataLoaded, Duration: duration})
	p.emit(Event{Type: EventCanPlay})
	return nil
}

// Play implements Driver.
func (p *Player) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case p.State() == StateClosed:
		return fmt.Errorf("%w: %w", ErrPlaybackRejected, ErrDriverClosed)
	case p.player == nil:
		return fmt.Errorf("%w: %w", ErrPlaybackRejected, ErrNoResource)
	case p.State() == StatePlaying:
		return nil
	}

	if p.stream.isDrained() {
		if _, err := p.player.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("%w: rewind: %v", ErrPlaybackRejected, err)
		}
	}

	p.player.Play()
	if err := p.player.Err(); err != nil {
		p.player.Pause()
		p.state.Store(int32(StatePaused))
		return fmt.Errorf("%w: %v", ErrPlaybackRejected, err)
	}
	p.state.Store(int32(StatePlaying))
	return nil
}

// Pause implements Driver.
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.State() != StatePlaying {
		return
	}
	p.player.Pause()
	p.state.Store(int32(StatePaused))
}

// Seek implements Driver.
func (p *Player) Seek(pos time.Duration) {
	p.mu.Lock()
	if p.player == nil {
		p.mu.Unlock()
		return
	}
	pos = ClampPosition(pos, p.duration)
	// oto drops its internal buffer on Seek.
	if _, err := p.player.Seek(p.stream.offsetFor(pos), io.SeekStart); err != nil {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	p.emit(Event{Type: EventTimeUpdate, Position: pos})
}

// SetSpeed implements Driver.
func (p *Player) SetSpeed(speed float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.speed = ClampSpeed(speed)
	if p.stream != nil {
		p.stream.setSpeed(p.speed)
	}
	return p.speed
}

// Speed implements Driver.
func (p *Player) Speed() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.speed
}

// Position implements Driver. It subtracts the audio oto has buffered but
// not yet played from what the stream has handed out.
func (p *Player) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positionLocked()
}

func (p *Player) positionLocked() time.Duration {
	if p.stream == nil || p.player == nil {
		return 0
	}
	buffered := p.format.DurationOf(p.player.BufferedSize())
	pos := p.stream.position() - time.Duration(float64(buffered)*p.stream.currentSpeed())
	return ClampPosition(pos, p.duration)
}

// Duration implements Driver.
func (p *Player) Duration() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duration
}

// IsPlaying implements Driver.
func (p *Player) IsPlaying() bool {
	return p.State() == StatePlaying
}

// State returns the device state.
func (p *Player) State() PlayerState {
	return PlayerState(p.state.Load())
}

// SetListener implements Driver.
func (p *Player) SetListener(fn func(Event)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listener = fn
}

// SetVolume sets the playback volume (0.0 to 1.0).
func (p *Player) SetVolume(volume float64) error {
	if volume < 0.0 || volume > 1.0 {
		return fmt.Errorf("volume must be between 0.0 and 1.0, got %f", volume)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = volume
	if p.player != nil {
		p.player.SetVolume(volume)
	}
	return nil
}

// Volume returns the playback volume.
func (p *Player) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// Close implements Driver. The oto context itself cannot be closed and
// lives until the process exits.
func (p *Player) Close() error {
	p.mu.Lock()
	if p.State() == StateClosed {
		p.mu.Unlock()
		return nil
	}
	p.state.Store(int32(StateClosed))
	p.closePlayerLocked()
	close(p.stopCh)
	p.mu.Unlock()

	p.wg.Wait()
	return nil
}

func (p *Player) closePlayerLocked() {
	if p.player != nil {
		p.player.Pause()
		_ = p.player.Close()
		p.player = nil
	}
	p.stream = nil
	p.handle = nil
	p.duration = 0
}

func (p *Player) emit(ev Event) {
	p.mu.Lock()
	fn := p.listener
	p.mu.Unlock()

	if fn != nil {
		fn(ev)
	}
}

// monitor reports the position while playing and detects the natural end
// of the current resource.
func (p *Player) monitor() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
		}

		p.mu.Lock()
		if p.State() != StatePlaying || p.player == nil {
			p.mu.Unlock()
			continue
		}
		ended := p.stream.isDrained() && !p.player.IsPlaying()
		pos := p.positionLocked()
		if ended {
			pos = p.duration
			p.state.Store(int32(StateStopped))
		}
		p.mu.Unlock()

		p.emit(Event{Type: EventTimeUpdate, Position: pos})
		if ended {
			p.emit(Event{Type: EventEnded})
		}
	}
}
