// Package segment owns the ordered per-sentence audio resources that the
// player switches between.
package segment

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInvalidInput is returned when a segment list is empty or malformed.
	ErrInvalidInput = errors.New("invalid segment input")
	// ErrIndexOutOfRange is returned when a segment index is outside [0, len).
	ErrIndexOutOfRange = errors.New("segment index out of range")
	// ErrReleased is returned when a released handle is read.
	ErrReleased = errors.New("segment handle has been released")
)

// Source is one sentence's synthesized audio as handed over by a synthesis
// provider.
type Source struct {
	Text  string
	Audio []byte
	// Duration may be zero, in which case it is read from the WAV header.
	Duration time.Duration
}

// Segment is a read-only view of a loaded sentence.
type Segment struct {
	Index    int
	Text     string
	Duration time.Duration
}

// Handle references the playable audio of one segment. It is owned by the
// Store and becomes invalid once the Store loads a new set or is disposed.
type Handle struct {
	id       string
	index    int
	text     string
	duration time.Duration

	mu       sync.Mutex
	data     []byte
	pcm      *PCM
	released bool
}

func newHandle(index int, src Source) *Handle {
	data := make([]byte, len(src.Audio))
	copy(data, src.Audio)
	return &Handle{
		id:       uuid.NewString(),
		index:    index,
		text:     src.Text,
		duration: src.Duration,
		data:     data,
	}
}

// ID returns a unique identifier for this handle.
func (h *Handle) ID() string { return h.id }

// Index returns the sentence index of the handle.
func (h *Handle) Index() int { return h.index }

// Text returns the sentence text, if the provider supplied one.
func (h *Handle) Text() string { return h.text }

// Duration returns the known duration of the audio.
func (h *Handle) Duration() time.Duration { return h.duration }

// Bytes returns the raw audio bytes or nil once released.
func (h *Handle) Bytes() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.data
}

// Released reports whether the owning Store revoked this handle.
func (h *Handle) Released() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}

// PCM decodes the handle's WAV payload. The result is memoized.
func (h *Handle) PCM() (*PCM, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return nil, ErrReleased
	}
	if h.pcm != nil {
		return h.pcm, nil
	}

	pcm, err := DecodeWAV(h.data)
	if err != nil {
		return nil, err
	}
	h.pcm = pcm
	return pcm, nil
}

func (h *Handle) release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.released = true
	h.data = nil
	h.pcm = nil
}

// Store holds the current sentence set.
type Store struct {
	mu      sync.RWMutex
	handles []*Handle
	current int
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{}
}

// Load replaces the current set with srcs and releases every previously held
// handle. initialIndex is clamped into range. On error the store is left
// unchanged.
func (s *Store) Load(srcs []Source, initialIndex int) error {
	if len(srcs) == 0 {
		return fmt.Errorf("%w: no segments", ErrInvalidInput)
	}

	handles := make([]*Handle, len(srcs))
	for i, src := range srcs {
		if len(src.Audio) == 0 {
			return fmt.Errorf("%w: segment %d has no audio", ErrInvalidInput, i)
		}
		if src.Duration < 0 {
			return fmt.Errorf("%w: segment %d has negative duration", ErrInvalidInput, i)
		}
		if src.Duration == 0 {
			if pcm, err := DecodeWAV(src.Audio); err == nil {
				src.Duration = pcm.Duration
			}
		}
		handles[i] = newHandle(i, src)
	}

	s.mu.Lock()
	old := s.handles
	s.handles = handles
	s.current = clamp(initialIndex, 0, len(handles)-1)
	s.mu.Unlock()

	for _, h := range old {
		h.release()
	}
	return nil
}

// SwitchTo makes index the current segment and returns its handle.
func (s *Store) SwitchTo(index int) (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.handles) {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, index, len(s.handles))
	}
	s.current = index
	return s.handles[index], nil
}

// Preload decodes the segment at index ahead of time. Out-of-range indexes
// and undecodable audio are ignored.
func (s *Store) Preload(index int) {
	s.mu.RLock()
	if index < 0 || index >= len(s.handles) {
		s.mu.RUnlock()
		return
	}
	h := s.handles[index]
	s.mu.RUnlock()

	_, _ = h.PCM()
}

// Dispose releases all handles. It is safe to call more than once.
func (s *Store) Dispose() {
	s.mu.Lock()
	old := s.handles
	s.handles = nil
	s.current = 0
	s.mu.Unlock()

	for _, h := range old {
		h.release()
	}
}

// Len returns the number of loaded segments.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handles)
}

// Current returns the index of the current segment.
func (s *Store) Current() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Duration returns the duration of the segment at index, or zero.
func (s *Store) Duration(index int) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index < 0 || index >= len(s.handles) {
		return 0
	}
	return s.handles[index].duration
}

// Durations returns the duration of every segment in order.
func (s *Store) Durations() []time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]time.Duration, len(s.handles))
	for i, h := range s.handles {
		out[i] = h.duration
	}
	return out
}

// TotalDuration returns the summed duration of the set.
func (s *Store) TotalDuration() time.Duration {
	var total time.Duration
	for _, d := range s.Durations() {
		total += d
	}
	return total
}

// Segments returns read-only views of the loaded set.
func (s *Store) Segments() []Segment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Segment, len(s.handles))
	for i, h := range s.handles {
		out[i] = Segment{Index: i, Text: h.text, Duration: h.duration}
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
