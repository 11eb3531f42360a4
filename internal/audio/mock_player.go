package audio

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kanada4310/tts-app/internal/segment"
)

// PlayerState represents the current state of a device.
type PlayerState int32

const (
	StateStopped PlayerState = iota
	StatePlaying
	StatePaused
	StateClosed
)

// String returns the string representation of the state.
func (s PlayerState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// MockCallbacks provides hooks for testing.
type MockCallbacks struct {
	OnLoad  func(h *segment.Handle)
	OnPlay  func()
	OnPause func()
	OnSeek  func(pos time.Duration)
}

// MockDriver implements Driver without producing sound. By default it never
// advances on its own: tests fire events explicitly. EnableSimulation makes
// it play in real time instead.
type MockDriver struct {
	mu       sync.Mutex
	state    PlayerState
	handle   *segment.Handle
	duration time.Duration
	position time.Duration
	speed    float64
	listener func(Event)

	callbacks MockCallbacks

	// Test configuration
	gate        chan struct{}
	rejectPlays int
	loadErr     error

	// Simulation
	simulate bool
	tick     time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup

	// Metrics for testing
	playCount  atomic.Int64
	pauseCount atomic.Int64
	loadCount  atomic.Int64
	seekCount  atomic.Int64
}

// DefaultMockDriver creates a mock driver with no callbacks.
func DefaultMockDriver() *MockDriver {
	return &MockDriver{
		state: StateStopped,
		speed: DefaultSpeed,
	}
}

// NewMockDriver creates a mock driver with custom callbacks.
func NewMockDriver(callbacks MockCallbacks) *MockDriver {
	md := DefaultMockDriver()
	md.callbacks = callbacks
	return md
}

// EnableSimulation makes the driver advance its position every tick while
// playing and emit ended at the end of each resource.
func (md *MockDriver) EnableSimulation(tick time.Duration) {
	md.mu.Lock()
	defer md.mu.Unlock()
	md.simulate = true
	md.tick = tick
}

// HoldLoads makes subsequent loads block until ReleaseLoads.
func (md *MockDriver) HoldLoads() {
	md.mu.Lock()
	defer md.mu.Unlock()
	if md.gate == nil {
		md.gate = make(chan struct{})
	}
}

// ReleaseLoads unblocks held loads.
func (md *MockDriver) ReleaseLoads() {
	md.mu.Lock()
	defer md.mu.Unlock()
	if md.gate != nil {
		close(md.gate)
		md.gate = nil
	}
}

// RejectPlays makes the next n calls to Play fail. A negative n rejects
// every call until RejectPlays(0).
func (md *MockDriver) RejectPlays(n int) {
	md.mu.Lock()
	defer md.mu.Unlock()
	md.rejectPlays = n
}

// FailLoads makes subsequent loads fail with err. Pass nil to reset.
func (md *MockDriver) FailLoads(err error) {
	md.mu.Lock()
	defer md.mu.Unlock()
	md.loadErr = err
}

// Load implements Driver.
func (md *MockDriver) Load(ctx context.Context, h *segment.Handle) error {
	if h == nil {
		return ErrNoResource
	}

	md.mu.Lock()
	if md.state == StateClosed {
		md.mu.Unlock()
		return ErrDriverClosed
	}
	wasPlaying := md.state == StatePlaying
	md.stopSimulationLocked()
	md.state = StateStopped
	gate := md.gate
	loadErr := md.loadErr
	md.mu.Unlock()

	md.loadCount.Add(1)
	md.emit(Event{Type: EventWaiting})

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if loadErr != nil {
		return loadErr
	}
	if h.Released() {
		return segment.ErrReleased
	}

	md.mu.Lock()
	if md.state == StateClosed {
		md.mu.Unlock()
		return ErrDriverClosed
	}
	md.handle = h
	md.duration = h.Duration()
	md.position = 0
	if wasPlaying {
		md.state = StatePlaying
		md.startSimulationLocked()
	} else {
		md.state = StatePaused
	}
	duration := md.duration
	onLoad := md.callbacks.OnLoad
	md.mu.Unlock()

	md.emit(Event{Type: EventMetadataLoaded, Duration: duration})
	md.emit(Event{Type: EventCanPlay})

	if onLoad != nil {
		onLoad(h)
	}
	return nil
}

// Play implements Driver.
func (md *MockDriver) Play() error {
	md.mu.Lock()
	switch {
	case md.state == StateClosed:
		md.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrPlaybackRejected, ErrDriverClosed)
	case md.rejectPlays != 0:
		if md.rejectPlays > 0 {
			md.rejectPlays--
		}
		if md.state == StatePlaying {
			md.stopSimulationLocked()
			md.state = StatePaused
		}
		md.mu.Unlock()
		return ErrPlaybackRejected
	case md.handle == nil:
		md.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrPlaybackRejected, ErrNoResource)
	case md.state == StatePlaying:
		md.mu.Unlock()
		return nil
	}

	if md.duration > 0 && md.position >= md.duration {
		md.position = 0
	}
	md.state = StatePlaying
	md.startSimulationLocked()
	onPlay := md.callbacks.OnPlay
	md.mu.Unlock()

	md.playCount.Add(1)
	if onPlay != nil {
		onPlay()
	}
	return nil
}

// Pause implements Driver.
func (md *MockDriver) Pause() {
	md.mu.Lock()
	if md.state != StatePlaying {
		md.mu.Unlock()
		return
	}
	md.stopSimulationLocked()
	md.state = StatePaused
	onPause := md.callbacks.OnPause
	md.mu.Unlock()

	md.pauseCount.Add(1)
	if onPause != nil {
		onPause()
	}
}

// Seek implements Driver.
func (md *MockDriver) Seek(pos time.Duration) {
	md.mu.Lock()
	md.position = ClampPosition(pos, md.duration)
	pos = md.position
	onSeek := md.callbacks.OnSeek
	md.mu.Unlock()

	md.seekCount.Add(1)
	md.emit(Event{Type: EventTimeUpdate, Position: pos})
	if onSeek != nil {
		onSeek(pos)
	}
}

// SetSpeed implements Driver.
func (md *MockDriver) SetSpeed(speed float64) float64 {
	md.mu.Lock()
	defer md.mu.Unlock()
	md.speed = ClampSpeed(speed)
	return md.speed
}

// Speed implements Driver.
func (md *MockDriver) Speed() float64 {
	md.mu.Lock()
	defer md.mu.Unlock()
	return md.speed
}

// Position implements Driver.
func (md *MockDriver) Position() time.Duration {
	md.mu.Lock()
	defer md.mu.Unlock()
	return md.position
}

// Duration implements Driver.
func (md *MockDriver) Duration() time.Duration {
	md.mu.Lock()
	defer md.mu.Unlock()
	return md.duration
}

// IsPlaying implements Driver.
func (md *MockDriver) IsPlaying() bool {
	md.mu.Lock()
	defer md.mu.Unlock()
	return md.state == StatePlaying
}

// SetListener implements Driver.
func (md *MockDriver) SetListener(fn func(Event)) {
	md.mu.Lock()
	defer md.mu.Unlock()
	md.listener = fn
}

// Close implements Driver.
func (md *MockDriver) Close() error {
	md.mu.Lock()
	md.stopSimulationLocked()
	md.state = StateClosed
	if md.gate != nil {
		close(md.gate)
		md.gate = nil
	}
	md.mu.Unlock()

	md.wg.Wait()
	return nil
}

// FireEnded simulates the current resource playing to its end.
func (md *MockDriver) FireEnded() {
	md.mu.Lock()
	md.stopSimulationLocked()
	md.position = md.duration
	if md.state != StateClosed {
		md.state = StateStopped
	}
	md.mu.Unlock()

	md.emit(Event{Type: EventEnded})
}

// FireTimeUpdate simulates a position report.
func (md *MockDriver) FireTimeUpdate(pos time.Duration) {
	md.mu.Lock()
	md.position = ClampPosition(pos, md.duration)
	pos = md.position
	md.mu.Unlock()

	md.emit(Event{Type: EventTimeUpdate, Position: pos})
}

// State returns the device state.
func (md *MockDriver) State() PlayerState {
	md.mu.Lock()
	defer md.mu.Unlock()
	return md.state
}

// Loaded returns the handle of the current resource.
func (md *MockDriver) Loaded() *segment.Handle {
	md.mu.Lock()
	defer md.mu.Unlock()
	return md.handle
}

// PlayCount returns the number of successful Play calls that started playback.
func (md *MockDriver) PlayCount() int64 { return md.playCount.Load() }

// PauseCount returns the number of Pause calls that stopped playback.
func (md *MockDriver) PauseCount() int64 { return md.pauseCount.Load() }

// LoadCount returns the number of Load calls.
func (md *MockDriver) LoadCount() int64 { return md.loadCount.Load() }

// SeekCount returns the number of Seek calls.
func (md *MockDriver) SeekCount() int64 { return md.seekCount.Load() }

func (md *MockDriver) emit(ev Event) {
	md.mu.Lock()
	fn := md.listener
	md.mu.Unlock()

	if fn != nil {
		fn(ev)
	}
}

func (md *MockDriver) startSimulationLocked() {
	if !md.simulate || md.tick <= 0 {
		return
	}
	md.stopSimulationLocked()
	stopCh := make(chan struct{})
	md.stopCh = stopCh
	md.wg.Add(1)
	go md.simulatePlayback(stopCh)
}

func (md *MockDriver) stopSimulationLocked() {
	if md.stopCh != nil {
		close(md.stopCh)
		md.stopCh = nil
	}
}

// simulatePlayback advances the position in real time, scaled by speed.
func (md *MockDriver) simulatePlayback(stopCh chan struct{}) {
	defer md.wg.Done()

	ticker := time.NewTicker(md.tick)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
		}

		md.mu.Lock()
		if md.state != StatePlaying || md.stopCh != stopCh {
			md.mu.Unlock()
			return
		}
		md.position += time.Duration(float64(md.tick) * md.speed)
		ended := md.position >= md.duration
		if ended {
			md.position = md.duration
			md.state = StateStopped
			md.stopCh = nil
		}
		pos := md.position
		md.mu.Unlock()

		md.emit(Event{Type: EventTimeUpdate, Position: pos})
		if ended {
			md.emit(Event{Type: EventEnded})
			return
		}
	}
}
