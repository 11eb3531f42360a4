// Package session records learning sessions: how often each sentence was
// played and repeated between a start and an end.
package session

import (
	"sync"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/kanada4310/tts-app/internal/clock"
)

const (
	// DefaultIdleTimeout ends a session after this long without user
	// activity.
	DefaultIdleTimeout = 30 * time.Minute

	// PreviewLength is the number of runes of the material kept with a
	// session.
	PreviewLength = 50
)

// Session is one learning session, from loading a text to leaving it.
type Session struct {
	ID              string        `yaml:"id"`
	StartTime       time.Time     `yaml:"start_time"`
	EndTime         *time.Time    `yaml:"end_time,omitempty"`
	MaterialPreview string        `yaml:"material_preview"`
	SentenceCount   int           `yaml:"sentence_count"`
	PlayCount       int           `yaml:"play_count"`
	RepeatCount     int           `yaml:"repeat_count"`
	TotalDuration   time.Duration `yaml:"total_duration"`
	// SentencePracticeCounts maps a sentence index to its play count.
	SentencePracticeCounts map[int]int `yaml:"sentence_practice_counts,omitempty"`
}

// Active reports whether the session has not ended.
func (s Session) Active() bool {
	return s.EndTime == nil
}

// Options configures a Recorder.
type Options struct {
	Clock       clock.Clock
	Logger      *log.Logger
	IdleTimeout time.Duration
	// Bookmarks, if set, counts plays of bookmarked sentences.
	Bookmarks *Bookmarks
}

// Recorder tracks the current session and appends finished ones to a
// History. It is safe for concurrent use.
type Recorder struct {
	history   *History
	bookmarks *Bookmarks
	clock     clock.Clock
	logger    *log.Logger
	idle      time.Duration

	mu        sync.Mutex
	sentences []string
	current   *Session
	idleTimer clock.Timer
	onEnd     func(Session)
}

// NewRecorder creates a recorder writing to history.
func NewRecorder(history *History, opts Options) *Recorder {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	return &Recorder{
		history:   history,
		bookmarks: opts.Bookmarks,
		clock:     opts.Clock,
		logger:    opts.Logger.WithPrefix("session"),
		idle:      opts.IdleTimeout,
	}
}

// OnEnd registers a callback run after a session ends.
func (r *Recorder) OnEnd(fn func(Session)) {
	r.mu.Lock()
	r.onEnd = fn
	r.mu.Unlock()
}

// Start begins a new session, ending the current one first.
func (r *Recorder) Start(materialPreview string, sentenceCount int) Session {
	r.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	s := &Session{
		ID:                     uuid.NewString(),
		StartTime:              r.clock.Now().UTC(),
		MaterialPreview:        preview(materialPreview),
		SentenceCount:          sentenceCount,
		SentencePracticeCounts: make(map[int]int),
	}
	r.current = s
	r.resetIdleLocked()
	r.logger.Info("session started", "id", s.ID, "sentences", sentenceCount)
	return *s
}

// Continue keeps the active session when the same material is loaded
// again, updating only its sentence count. Without an active session it
// starts one.
func (r *Recorder) Continue(materialPreview string, sentenceCount int) Session {
	r.mu.Lock()
	if r.current != nil {
		r.current.SentenceCount = sentenceCount
		s := r.current.clone()
		r.mu.Unlock()
		r.logger.Debug("session continued", "id", s.ID, "sentences", sentenceCount)
		return s
	}
	r.mu.Unlock()
	return r.Start(materialPreview, sentenceCount)
}

// SetSentences sets the text of each loaded sentence, used to find the
// bookmark of a played sentence.
func (r *Recorder) SetSentences(texts []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sentences = append([]string(nil), texts...)
}

// RecordPlay counts one playback start of the sentence at index. Without
// an active session it does nothing. A bookmarked sentence also gets its
// practice count raised.
func (r *Recorder) RecordPlay(index int, isRepeat bool) {
	r.mu.Lock()
	if r.current == nil {
		r.mu.Unlock()
		return
	}
	r.current.PlayCount++
	if isRepeat {
		r.current.RepeatCount++
	}
	r.current.SentencePracticeCounts[index]++

	var text string
	if index >= 0 && index < len(r.sentences) {
		text = r.sentences[index]
	}
	r.mu.Unlock()

	if r.bookmarks == nil || text == "" {
		return
	}
	if err := r.bookmarks.RecordPractice(text); err != nil {
		r.logger.Error("failed to save bookmark practice", "index", index, "err", err)
	}
}

// Touch marks user activity and restarts the idle countdown.
func (r *Recorder) Touch() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current != nil {
		r.resetIdleLocked()
	}
}

// Current returns a copy of the active session.
func (r *Recorder) Current() (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current == nil {
		return Session{}, false
	}
	return r.current.clone(), true
}

// End finishes the active session and stores it. Without an active session
// it does nothing.
func (r *Recorder) End() {
	r.end("")
}

// end finishes the active session when id is empty or matches it.
func (r *Recorder) end(id string) {
	r.mu.Lock()
	var s *Session
	if r.current != nil && (id == "" || r.current.ID == id) {
		s = r.endLocked()
	}
	fn := r.onEnd
	r.mu.Unlock()

	if s == nil {
		return
	}
	if err := r.history.Append(*s); err != nil {
		r.logger.Error("failed to save session", "id", s.ID, "err", err)
	}
	if fn != nil {
		fn(*s)
	}
}

func (r *Recorder) endLocked() *Session {
	if r.idleTimer != nil {
		r.idleTimer.Stop()
		r.idleTimer = nil
	}

	s := r.current.clone()
	r.current = nil

	end := r.clock.Now().UTC()
	s.EndTime = &end
	s.TotalDuration = end.Sub(s.StartTime)
	r.logger.Info("session ended", "id", s.ID, "plays", s.PlayCount, "duration", s.TotalDuration)
	return &s
}

func (r *Recorder) resetIdleLocked() {
	if r.idleTimer != nil {
		r.idleTimer.Stop()
	}
	id := r.current.ID
	r.idleTimer = r.clock.AfterFunc(r.idle, func() {
		r.logger.Debug("idle timeout", "id", id)
		r.end(id)
	})
}

func (s Session) clone() Session {
	counts := make(map[int]int, len(s.SentencePracticeCounts))
	for k, v := range s.SentencePracticeCounts {
		counts[k] = v
	}
	s.SentencePracticeCounts = counts
	return s
}

func preview(text string) string {
	if utf8.RuneCountInString(text) <= PreviewLength {
		return text
	}
	return string([]rune(text)[:PreviewLength])
}
