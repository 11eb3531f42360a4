package session

import (
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/kanada4310/tts-app/internal/clock"
)

func newTestRecorder(t *testing.T) (*Recorder, *History, *clock.Fake) {
	t.Helper()
	h, err := OpenHistory(filepath.Join(t.TempDir(), "history.yml"))
	if err != nil {
		t.Fatalf("OpenHistory failed: %v", err)
	}
	c := clock.NewFake(time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC))
	r := NewRecorder(h, Options{Clock: c, Logger: log.New(io.Discard)})
	return r, h, c
}

func TestRecorderCountsPlays(t *testing.T) {
	r, h, c := newTestRecorder(t)

	r.RecordPlay(0, false)
	if _, ok := r.Current(); ok {
		t.Fatal("no session should be active before Start")
	}

	started := r.Start("The quick brown fox.", 3)
	r.RecordPlay(0, false)
	r.RecordPlay(0, true)
	r.RecordPlay(0, true)
	r.RecordPlay(1, false)

	cur, ok := r.Current()
	if !ok {
		t.Fatal("expected an active session")
	}
	if cur.ID != started.ID || !cur.Active() {
		t.Errorf("current session = %+v", cur)
	}
	if cur.PlayCount != 4 || cur.RepeatCount != 2 {
		t.Errorf("plays = %d repeats = %d, want 4 and 2", cur.PlayCount, cur.RepeatCount)
	}
	if cur.SentencePracticeCounts[0] != 3 || cur.SentencePracticeCounts[1] != 1 {
		t.Errorf("practice counts = %v", cur.SentencePracticeCounts)
	}

	c.Advance(5 * time.Minute)
	r.End()

	if _, ok := r.Current(); ok {
		t.Error("session still active after End")
	}
	stored := h.Sessions()
	if len(stored) != 1 {
		t.Fatalf("stored sessions = %d, want 1", len(stored))
	}
	if stored[0].Active() || stored[0].TotalDuration != 5*time.Minute {
		t.Errorf("stored session = %+v", stored[0])
	}

	r.End()
	if len(h.Sessions()) != 1 {
		t.Error("End without a session stored something")
	}
}

func TestRecorderCurrentIsCopy(t *testing.T) {
	r, _, _ := newTestRecorder(t)
	r.Start("text", 1)
	r.RecordPlay(0, false)

	cur, _ := r.Current()
	cur.SentencePracticeCounts[0] = 99

	again, _ := r.Current()
	if again.SentencePracticeCounts[0] != 1 {
		t.Error("Current exposed internal state")
	}
}

func TestRecorderIdleTimeout(t *testing.T) {
	r, h, c := newTestRecorder(t)

	var ended []Session
	r.OnEnd(func(s Session) { ended = append(ended, s) })

	r.Start("text", 2)
	c.Advance(20 * time.Minute)
	r.Touch()
	c.Advance(20 * time.Minute)
	if _, ok := r.Current(); !ok {
		t.Fatal("Touch did not restart the idle countdown")
	}

	c.Advance(10 * time.Minute)
	if _, ok := r.Current(); ok {
		t.Fatal("session still active after 30 idle minutes")
	}
	if len(ended) != 1 || len(h.Sessions()) != 1 {
		t.Fatalf("ended = %d stored = %d, want 1 and 1", len(ended), len(h.Sessions()))
	}
	if ended[0].TotalDuration != 50*time.Minute {
		t.Errorf("duration = %v, want 50m", ended[0].TotalDuration)
	}
}

func TestRecorderStartEndsPrevious(t *testing.T) {
	r, h, c := newTestRecorder(t)

	first := r.Start("first", 1)
	c.Advance(time.Minute)
	second := r.Start("second", 2)

	if first.ID == second.ID {
		t.Error("sessions share an id")
	}
	stored := h.Sessions()
	if len(stored) != 1 || stored[0].ID != first.ID {
		t.Fatalf("stored = %+v, want the first session", stored)
	}

	// The first session's idle timer must not end the second one.
	c.Advance(29 * time.Minute)
	if cur, ok := r.Current(); !ok || cur.ID != second.ID {
		t.Error("second session ended by the first session's timer")
	}
}

func TestRecorderContinueKeepsSession(t *testing.T) {
	r, h, c := newTestRecorder(t)

	started := r.Continue("lesson", 3)
	r.RecordPlay(0, false)
	c.Advance(time.Minute)

	// Loading the same material again keeps counting in the same session.
	again := r.Continue("lesson, edited", 4)
	if again.ID != started.ID {
		t.Fatalf("Continue started session %s, want %s", again.ID, started.ID)
	}
	cur, _ := r.Current()
	if cur.SentenceCount != 4 || cur.PlayCount != 1 || cur.MaterialPreview != "lesson" {
		t.Errorf("session after reload = %+v", cur)
	}
	if len(h.Sessions()) != 0 {
		t.Error("a reload stored a session")
	}

	r.End()
	next := r.Continue("lesson", 4)
	if next.ID == started.ID || !next.Active() {
		t.Error("Continue without an active session should start one")
	}
}

func TestRecorderCountsBookmarkPractice(t *testing.T) {
	h := NewMemoryHistory()
	c := clock.NewFake(time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC))
	b := NewMemoryBookmarks(c)
	r := NewRecorder(h, Options{Clock: c, Logger: log.New(io.Discard), Bookmarks: b})

	if _, err := b.Toggle("Second.", 1, ""); err != nil {
		t.Fatal(err)
	}
	r.SetSentences([]string{"First.", "Second."})

	r.RecordPlay(1, false)
	if got := b.List()[0].PracticeCount; got != 0 {
		t.Fatalf("practice counted without a session: %d", got)
	}

	r.Start("First. Second.", 2)
	r.RecordPlay(0, false)
	r.RecordPlay(1, false)
	r.RecordPlay(1, true)
	r.RecordPlay(7, false)

	list := b.List()
	if len(list) != 1 || list[0].PracticeCount != 2 {
		t.Errorf("bookmarks = %+v, want one with 2 practices", list)
	}
}

func TestPreviewTruncation(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want int
	}{
		{"short", "hello", 5},
		{"exact", strings.Repeat("a", PreviewLength), PreviewLength},
		{"long", strings.Repeat("a", 80), PreviewLength},
		{"multibyte", strings.Repeat("語", 60), PreviewLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len([]rune(preview(tt.in))); got != tt.want {
				t.Errorf("preview length = %d, want %d", got, tt.want)
			}
		})
	}
}
