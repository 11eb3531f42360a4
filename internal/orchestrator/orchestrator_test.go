package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/kanada4310/tts-app/internal/audio"
	"github.com/kanada4310/tts-app/internal/clock"
	"github.com/kanada4310/tts-app/internal/policy"
	"github.com/kanada4310/tts-app/internal/segment"
)

type play struct {
	index    int
	isRepeat bool
}

// calls holds what the listeners received.
type calls struct {
	plays     []play
	sentences []int
	playing   []bool
	completes int
	errs      []error
}

// recorder captures listener calls. Listeners run on the dispatch
// goroutine, so every field is guarded.
type recorder struct {
	mu sync.Mutex
	calls
}

func (r *recorder) RecordPlay(index int, isRepeat bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plays = append(r.plays, play{index, isRepeat})
}

func (r *recorder) attach(o *Orchestrator) {
	o.OnSentenceChange(func(i int) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.sentences = append(r.sentences, i)
	})
	o.OnPlayStateChange(func(p bool) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.playing = append(r.playing, p)
	})
	o.OnComplete(func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.completes++
	})
	o.OnError(func(err error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.errs = append(r.errs, err)
	})
}

func (r *recorder) snapshot() calls {
	r.mu.Lock()
	defer r.mu.Unlock()
	return calls{
		plays:     append([]play(nil), r.plays...),
		sentences: append([]int(nil), r.sentences...),
		playing:   append([]bool(nil), r.playing...),
		completes: r.completes,
		errs:      append([]error(nil), r.errs...),
	}
}

type harness struct {
	o     *Orchestrator
	md    *audio.MockDriver
	clock *clock.Fake
	rec   *recorder
}

func newHarness(t *testing.T, settings Settings) *harness {
	t.Helper()

	h := &harness{
		md:    audio.DefaultMockDriver(),
		clock: clock.NewFake(time.Unix(0, 0)),
		rec:   &recorder{},
	}
	h.o = New(h.md,
		WithLogger(log.New(io.Discard)),
		WithClock(h.clock),
		WithRecorder(h.rec),
		WithSettings(settings),
	)
	h.rec.attach(h.o)
	t.Cleanup(func() { _ = h.o.Close() })
	return h
}

func testSources(n int) []segment.Source {
	f := segment.DefaultFormat()
	srcs := make([]segment.Source, n)
	for i := range srcs {
		srcs[i] = segment.Source{
			Text:  fmt.Sprintf("Sentence number %d.", i+1),
			Audio: segment.Silence(200*time.Millisecond, f),
		}
	}
	return srcs
}

func (h *harness) load(t *testing.T, n, initial int) {
	t.Helper()
	if err := h.o.Load(context.Background(), testSources(n), initial); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
}

func (h *harness) play(t *testing.T) {
	t.Helper()
	if err := h.o.Play(); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	h.waitFor(t, "playing", func(s Snapshot) bool { return s.State == StatePlaying })
}

func (h *harness) waitFor(t *testing.T, what string, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		s := h.o.Snapshot()
		if cond(s) {
			return s
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s; state=%s index=%d", what, s.State, s.Index)
		}
		time.Sleep(time.Millisecond)
	}
}

func (h *harness) waitRec(t *testing.T, what string, cond func(calls) bool) calls {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		r := h.rec.snapshot()
		if cond(r) {
			return r
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s; recorded %+v", what, r)
		}
		time.Sleep(time.Millisecond)
	}
}

func (h *harness) waitPlaying(t *testing.T, index int) Snapshot {
	t.Helper()
	return h.waitFor(t, fmt.Sprintf("sentence %d playing", index), func(s Snapshot) bool {
		return s.State == StatePlaying && s.Index == index
	})
}

// endAndResume finishes the current sentence, expects the fixed repeat
// pause and lets it elapse.
func (h *harness) endAndResume(t *testing.T) {
	t.Helper()
	h.md.FireEnded()
	h.waitFor(t, "repeat pause", func(s Snapshot) bool { return s.State == StatePausedBetweenSentences })
	if p := h.clock.Pending(); len(p) != 1 || p[0] != time.Second {
		t.Fatalf("pending timers = %v, want [1s]", p)
	}
	h.clock.Advance(time.Second)
	h.waitFor(t, "resume", func(s Snapshot) bool { return s.State == StatePlaying })
}

func settingsWith(fn func(*Settings)) Settings {
	s := DefaultSettings()
	fn(&s)
	return s
}

func TestLoad(t *testing.T) {
	h := newHarness(t, DefaultSettings())

	if err := h.o.Load(context.Background(), nil, 0); !errors.Is(err, segment.ErrInvalidInput) {
		t.Fatalf("Load(nil) = %v, want ErrInvalidInput", err)
	}
	if s := h.o.Snapshot(); s.State != StateIdle {
		t.Errorf("state after rejected load = %s, want idle", s.State)
	}

	h.load(t, 3, 1)
	s := h.o.Snapshot()
	if s.State != StateLoaded || s.Index != 1 || s.Total != 3 {
		t.Errorf("snapshot = %s %d/%d, want loaded 1/3", s.State, s.Index, s.Total)
	}
	if s.Duration != 200*time.Millisecond {
		t.Errorf("Duration = %v, want 200ms", s.Duration)
	}
	if s.IsPlaying || s.IsLoading {
		t.Error("loaded snapshot should be neither playing nor loading")
	}
	h.waitRec(t, "sentence change", func(r calls) bool { return len(r.sentences) == 1 && r.sentences[0] == 1 })

	// A broken set leaves the loaded one in place.
	bad := []segment.Source{{Text: "x"}}
	if err := h.o.Load(context.Background(), bad, 0); !errors.Is(err, segment.ErrInvalidInput) {
		t.Fatalf("Load(bad) = %v, want ErrInvalidInput", err)
	}
	if s := h.o.Snapshot(); s.State != StateLoaded || s.Total != 3 {
		t.Errorf("snapshot after rejected load = %s total=%d", s.State, s.Total)
	}
}

func TestOperationsBeforeLoad(t *testing.T) {
	h := newHarness(t, DefaultSettings())

	if err := h.o.Play(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Play() = %v, want ErrInvalidState", err)
	}
	if err := h.o.SwitchTo(0, true); !errors.Is(err, ErrInvalidState) {
		t.Errorf("SwitchTo() = %v, want ErrInvalidState", err)
	}
	if err := h.o.Restart(context.Background()); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Restart() = %v, want ErrInvalidState", err)
	}
	if err := h.o.Pause(); err != nil {
		t.Errorf("Pause() = %v, want nil", err)
	}
}

// 5 sentences, no repeat, no pause: sentence 0 ending goes straight to
// sentence 1 playing.
func TestScenarioAdvanceWithoutPause(t *testing.T) {
	h := newHarness(t, DefaultSettings())
	h.load(t, 5, 0)
	h.play(t)

	h.md.FireEnded()
	h.waitPlaying(t, 1)

	if p := h.clock.Pending(); len(p) != 0 {
		t.Errorf("pending timers = %v, want none", p)
	}
	if n := h.md.PlayCount(); n != 2 {
		t.Errorf("device PlayCount = %d, want 2", n)
	}

	r := h.waitRec(t, "two plays", func(r calls) bool { return len(r.plays) == 2 })
	if r.plays[0] != (play{0, false}) || r.plays[1] != (play{1, false}) {
		t.Errorf("plays = %v", r.plays)
	}
	if len(r.playing) != 1 || !r.playing[0] {
		t.Errorf("play-state changes = %v, want [true]", r.playing)
	}
}

// 3 sentences, repeat 3: sentence 0 plays three times with two 1s pauses,
// then sentence 1 follows with no pause.
func TestScenarioRepeatThree(t *testing.T) {
	h := newHarness(t, settingsWith(func(s *Settings) { s.RepeatCount = 3 }))
	h.load(t, 3, 0)
	h.play(t)

	h.endAndResume(t)
	if s := h.o.Snapshot(); s.Index != 0 || s.CurrentRepeat != 1 || s.RepeatText != "2/3" {
		t.Errorf("after first repeat: index=%d repeat=%d text=%q", s.Index, s.CurrentRepeat, s.RepeatText)
	}
	h.endAndResume(t)
	if s := h.o.Snapshot(); s.Index != 0 || s.CurrentRepeat != 2 {
		t.Errorf("after second repeat: index=%d repeat=%d", s.Index, s.CurrentRepeat)
	}

	h.md.FireEnded()
	s := h.waitPlaying(t, 1)
	if s.CurrentRepeat != 0 {
		t.Errorf("CurrentRepeat = %d, want 0 after advancing", s.CurrentRepeat)
	}
	if p := h.clock.Pending(); len(p) != 0 {
		t.Errorf("pending timers = %v, want none", p)
	}

	r := h.waitRec(t, "four plays", func(r calls) bool { return len(r.plays) == 4 })
	want := []play{{0, false}, {0, true}, {0, true}, {1, false}}
	for i := range want {
		if r.plays[i] != want[i] {
			t.Errorf("plays[%d] = %v, want %v", i, r.plays[i], want[i])
		}
	}
}

// 2 sentences, manual pause: after sentence 0 the player waits on
// sentence 1 until Play.
func TestScenarioManualResume(t *testing.T) {
	h := newHarness(t, settingsWith(func(s *Settings) { s.PauseAfterSentence = true }))
	h.load(t, 2, 0)
	h.play(t)

	h.md.FireEnded()
	s := h.waitFor(t, "manual pause", func(s Snapshot) bool {
		return s.State == StatePausedBetweenSentences && s.Index == 1
	})
	if s.IsPlaying || s.PauseScheduled || !s.PausedBetweenSentences {
		t.Errorf("snapshot = %+v, want an unscheduled pause", s)
	}
	if h.md.IsPlaying() {
		t.Error("device should be paused")
	}
	if h.md.Loaded().Index() != 1 {
		t.Errorf("device holds sentence %d, want 1", h.md.Loaded().Index())
	}

	h.clock.Advance(time.Minute)
	if s := h.o.Snapshot(); s.State != StatePausedBetweenSentences {
		t.Fatalf("state = %s, manual pause must not time out", s.State)
	}

	h.play(t)
	if s := h.o.Snapshot(); s.Index != 1 {
		t.Errorf("Index = %d, want 1", s.Index)
	}
}

// The last sentence ending completes playback exactly once.
func TestScenarioComplete(t *testing.T) {
	h := newHarness(t, DefaultSettings())
	h.load(t, 2, 1)
	h.play(t)

	h.md.FireEnded()
	s := h.waitFor(t, "complete", func(s Snapshot) bool { return s.State == StateComplete })
	if s.IsPlaying || h.md.IsPlaying() {
		t.Error("complete must not be playing")
	}

	h.md.FireEnded()
	h.waitRec(t, "completion", func(r calls) bool { return r.completes >= 1 })

	if err := h.o.Play(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Play() after complete = %v, want ErrInvalidState", err)
	}
	if err := h.o.SwitchTo(0, true); !errors.Is(err, ErrInvalidState) {
		t.Errorf("SwitchTo() after complete = %v, want ErrInvalidState", err)
	}

	if err := h.o.Restart(context.Background()); err != nil {
		t.Fatalf("Restart failed: %v", err)
	}
	if s := h.o.Snapshot(); s.State != StateLoaded || s.Index != 0 {
		t.Errorf("after restart: %s index %d, want loaded 0", s.State, s.Index)
	}

	// Listener calls are ordered, so once the restart's sentence change
	// arrived every earlier completion has been delivered too.
	r := h.waitRec(t, "restart sentence change", func(r calls) bool {
		return len(r.sentences) == 2 && r.sentences[1] == 0
	})
	if r.completes != 1 {
		t.Errorf("completion fired %d times, want 1", r.completes)
	}
	if len(r.playing) != 2 || !r.playing[0] || r.playing[1] {
		t.Errorf("play-state changes = %v, want [true false]", r.playing)
	}
}

// Sentence ends fired faster than switches resolve are each handled once,
// in order.
func TestEndedEventsQueuedWhileResolving(t *testing.T) {
	h := newHarness(t, DefaultSettings())
	h.load(t, 5, 0)
	h.play(t)

	h.md.HoldLoads()
	h.md.FireEnded()
	h.waitFor(t, "resolving", func(s Snapshot) bool { return s.State == StateResolvingTransition })
	h.md.FireEnded()
	h.md.FireEnded()
	// Flush the two ends through the loop while the load is still held.
	_ = h.o.UpdateConfig(func(*Settings) {})
	h.md.ReleaseLoads()

	h.waitPlaying(t, 3)
	r := h.waitRec(t, "sentence changes", func(r calls) bool { return len(r.sentences) == 4 })
	for i, idx := range r.sentences {
		if idx != i {
			t.Errorf("sentence changes = %v, want [0 1 2 3]", r.sentences)
			break
		}
	}
}

func TestRepeatCounts(t *testing.T) {
	for _, n := range []int{3, 5} {
		t.Run(fmt.Sprintf("repeat %d", n), func(t *testing.T) {
			h := newHarness(t, settingsWith(func(s *Settings) { s.RepeatCount = n }))
			h.load(t, 2, 0)
			h.play(t)

			for i := 1; i < n; i++ {
				h.endAndResume(t)
			}
			h.md.FireEnded()
			h.waitPlaying(t, 1)

			r := h.waitRec(t, "plays", func(r calls) bool { return len(r.plays) == n+1 })
			zero := 0
			for _, p := range r.plays {
				if p.index == 0 {
					zero++
				}
			}
			if zero != n {
				t.Errorf("sentence 0 played %d times, want %d", zero, n)
			}
		})
	}

	t.Run("repeat 1", func(t *testing.T) {
		h := newHarness(t, DefaultSettings())
		h.load(t, 2, 0)
		h.play(t)
		h.md.FireEnded()
		h.waitPlaying(t, 1)
	})

	t.Run("infinite", func(t *testing.T) {
		h := newHarness(t, settingsWith(func(s *Settings) { s.RepeatCount = policy.InfiniteRepeat }))
		h.load(t, 2, 0)
		h.play(t)

		for i := 1; i <= 6; i++ {
			h.endAndResume(t)
			s := h.o.Snapshot()
			if s.Index != 0 || s.CurrentRepeat != i {
				t.Fatalf("round %d: index=%d repeat=%d", i, s.Index, s.CurrentRepeat)
			}
			if s.RepeatText != fmt.Sprintf("%d/∞", i+1) {
				t.Errorf("RepeatText = %q", s.RepeatText)
			}
		}

		if err := h.o.SwitchTo(1, true); err != nil {
			t.Fatalf("SwitchTo failed: %v", err)
		}
		s := h.waitPlaying(t, 1)
		if s.CurrentRepeat != 0 {
			t.Errorf("CurrentRepeat = %d, want 0 after navigation", s.CurrentRepeat)
		}
	})
}

// Lowering the repeat count mid-repeat applies at the next sentence end.
func TestConfigHotSwap(t *testing.T) {
	h := newHarness(t, settingsWith(func(s *Settings) { s.RepeatCount = 3 }))
	h.load(t, 3, 0)
	h.play(t)

	h.endAndResume(t)
	if s := h.o.Snapshot(); s.CurrentRepeat != 1 {
		t.Fatalf("CurrentRepeat = %d, want 1", s.CurrentRepeat)
	}

	if err := h.o.UpdateConfig(func(s *Settings) { s.RepeatCount = 1 }); err != nil {
		t.Fatalf("UpdateConfig failed: %v", err)
	}

	h.md.FireEnded()
	h.waitPlaying(t, 1)
	if p := h.clock.Pending(); len(p) != 0 {
		t.Errorf("pending timers = %v, want none", p)
	}
}

// Navigating during a scheduled pause cancels it for good.
func TestNavigationCancelsPause(t *testing.T) {
	h := newHarness(t, settingsWith(func(s *Settings) {
		s.PauseAfterSentence = true
		s.AutoResume = true
		s.PauseDurationSeconds = 2
	}))
	h.load(t, 4, 0)
	h.play(t)

	h.md.FireEnded()
	s := h.waitFor(t, "scheduled pause", func(s Snapshot) bool { return s.State == StatePausedBetweenSentences })
	if !s.PauseScheduled || s.Index != 1 {
		t.Fatalf("snapshot = %+v, want scheduled pause on 1", s)
	}
	if p := h.clock.Pending(); len(p) != 1 || p[0] != 2*time.Second {
		t.Fatalf("pending timers = %v, want [2s]", p)
	}

	if err := h.o.SwitchTo(2, false); err != nil {
		t.Fatalf("SwitchTo failed: %v", err)
	}
	h.waitFor(t, "paused on 2", func(s Snapshot) bool { return s.State == StatePausedUser && s.Index == 2 })
	if p := h.clock.Pending(); len(p) != 0 {
		t.Errorf("pending timers = %v, want none", p)
	}

	plays := h.md.PlayCount()
	h.clock.Advance(10 * time.Second)
	_ = h.o.UpdateConfig(func(*Settings) {})
	if s := h.o.Snapshot(); s.State != StatePausedUser || s.Index != 2 {
		t.Errorf("after stale deadline: %s index %d", s.State, s.Index)
	}
	if h.md.PlayCount() != plays {
		t.Error("a cancelled pause resumed playback")
	}
}

func TestAutoResumeAfterPause(t *testing.T) {
	h := newHarness(t, settingsWith(func(s *Settings) {
		s.PauseAfterSentence = true
		s.AutoResume = true
		s.PauseDurationSeconds = 1.5
	}))
	h.load(t, 3, 0)
	h.play(t)

	h.md.FireEnded()
	h.waitFor(t, "scheduled pause", func(s Snapshot) bool { return s.State == StatePausedBetweenSentences })
	h.clock.Advance(1499 * time.Millisecond)
	_ = h.o.UpdateConfig(func(*Settings) {})
	if s := h.o.Snapshot(); s.State != StatePausedBetweenSentences {
		t.Fatalf("resumed early: %s", s.State)
	}
	h.clock.Advance(time.Millisecond)
	h.waitPlaying(t, 1)
}

func TestAutoResumeRejected(t *testing.T) {
	h := newHarness(t, settingsWith(func(s *Settings) {
		s.PauseAfterSentence = true
		s.AutoResume = true
	}))
	h.load(t, 3, 0)
	h.play(t)

	h.md.RejectPlays(1)
	h.md.FireEnded()
	h.waitFor(t, "scheduled pause", func(s Snapshot) bool { return s.State == StatePausedBetweenSentences })
	h.clock.Advance(time.Second)

	r := h.waitRec(t, "error", func(r calls) bool { return len(r.errs) == 1 })
	if !errors.Is(r.errs[0], audio.ErrPlaybackRejected) {
		t.Errorf("error = %v, want ErrPlaybackRejected", r.errs[0])
	}
	var perr *PlaybackError
	if !errors.As(r.errs[0], &perr) || perr.Op != "play" || perr.Index != 1 {
		t.Errorf("error = %#v, want play error on sentence 1", r.errs[0])
	}

	s := h.o.Snapshot()
	if s.State != StatePausedBetweenSentences || s.LastError == nil {
		t.Errorf("snapshot = %s err=%v, want paused-between with error", s.State, s.LastError)
	}

	h.play(t)
	if s := h.o.Snapshot(); s.Index != 1 || s.LastError != nil {
		t.Errorf("after manual resume: index=%d err=%v", s.Index, s.LastError)
	}
}

func TestPlayRejectedByUser(t *testing.T) {
	h := newHarness(t, DefaultSettings())
	h.load(t, 2, 0)

	h.md.RejectPlays(1)
	if err := h.o.Play(); !errors.Is(err, audio.ErrPlaybackRejected) {
		t.Fatalf("Play() = %v, want ErrPlaybackRejected", err)
	}
	if s := h.o.Snapshot(); s.State != StateLoaded || s.IsPlaying {
		t.Errorf("state = %s, want loaded", s.State)
	}
	h.play(t)
}

func TestNewerSwitchWins(t *testing.T) {
	h := newHarness(t, DefaultSettings())
	h.load(t, 4, 0)

	h.md.HoldLoads()
	if err := h.o.SwitchTo(1, false); err != nil {
		t.Fatalf("SwitchTo(1) failed: %v", err)
	}
	if err := h.o.SwitchTo(2, false); err != nil {
		t.Fatalf("SwitchTo(2) failed: %v", err)
	}
	if s := h.o.Snapshot(); !s.IsLoading || s.State != StateResolvingTransition {
		t.Errorf("snapshot = %s loading=%v, want a pending load", s.State, s.IsLoading)
	}
	h.md.ReleaseLoads()

	h.waitFor(t, "loaded on 2", func(s Snapshot) bool { return s.State == StateLoaded && s.Index == 2 })
	if got := h.md.Loaded().Index(); got != 2 {
		t.Errorf("device holds sentence %d, want 2", got)
	}
}

// A switch issued while Load's first sentence is still loading takes over
// the load, and Load reports how the switch went.
func TestSwitchDuringLoadCompletesLoad(t *testing.T) {
	h := newHarness(t, DefaultSettings())

	h.md.HoldLoads()
	loaded := make(chan error, 1)
	go func() { loaded <- h.o.Load(context.Background(), testSources(4), 0) }()
	h.waitFor(t, "first load in flight", func(s Snapshot) bool { return s.IsLoading && s.Total == 4 })

	if err := h.o.SwitchTo(2, false); err != nil {
		t.Fatalf("SwitchTo failed: %v", err)
	}
	h.md.ReleaseLoads()

	select {
	case err := <-loaded:
		if err != nil {
			t.Fatalf("Load() = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Load did not return")
	}
	h.waitFor(t, "loaded on 2", func(s Snapshot) bool { return s.State == StateLoaded && s.Index == 2 })
	if got := h.md.Loaded().Index(); got != 2 {
		t.Errorf("device holds sentence %d, want 2", got)
	}
}

func TestLoadContextCancelled(t *testing.T) {
	h := newHarness(t, DefaultSettings())

	h.md.HoldLoads()
	ctx, cancel := context.WithCancel(context.Background())
	loaded := make(chan error, 1)
	go func() { loaded <- h.o.Load(ctx, testSources(3), 0) }()
	h.waitFor(t, "load in flight", func(s Snapshot) bool { return s.IsLoading })

	cancel()
	select {
	case err := <-loaded:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Load() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Load did not return")
	}

	s := h.o.Snapshot()
	if s.State != StateLoaded || s.IsLoading || s.Total != 3 {
		t.Errorf("snapshot = %s loading=%v total=%d, want loaded 3 with nothing in flight", s.State, s.IsLoading, s.Total)
	}
	if !errors.Is(s.LastError, context.Canceled) {
		t.Errorf("LastError = %v, want context.Canceled", s.LastError)
	}

	h.md.ReleaseLoads()
	if err := h.o.SwitchTo(1, false); err != nil {
		t.Fatalf("SwitchTo failed: %v", err)
	}
	h.waitFor(t, "loaded on 1", func(s Snapshot) bool { return s.State == StateLoaded && s.Index == 1 && !s.IsLoading })
}

// With auto advance off the end of a sentence stops playback and reports
// completion instead of moving on.
func TestAutoAdvanceOffCompletes(t *testing.T) {
	h := newHarness(t, settingsWith(func(s *Settings) { s.AutoAdvance = false }))
	h.load(t, 3, 0)
	h.play(t)

	h.md.FireEnded()
	s := h.waitFor(t, "complete", func(s Snapshot) bool { return s.State == StateComplete })
	if s.Index != 0 || s.IsPlaying || h.md.IsPlaying() {
		t.Errorf("snapshot = %s index %d playing=%v, want stopped on 0", s.State, s.Index, s.IsPlaying)
	}
	if p := h.clock.Pending(); len(p) != 0 {
		t.Errorf("pending timers = %v, want none", p)
	}
	h.waitRec(t, "completion", func(r calls) bool { return r.completes == 1 })
	if n := h.md.LoadCount(); n != 1 {
		t.Errorf("device LoadCount = %d, want 1", n)
	}
}

// The repeat decision still applies before auto advance stops playback.
func TestAutoAdvanceOffRepeatsFirst(t *testing.T) {
	h := newHarness(t, settingsWith(func(s *Settings) {
		s.AutoAdvance = false
		s.RepeatCount = 3
	}))
	h.load(t, 2, 0)
	h.play(t)

	h.endAndResume(t)
	h.endAndResume(t)
	h.md.FireEnded()
	s := h.waitFor(t, "complete", func(s Snapshot) bool { return s.State == StateComplete })
	if s.Index != 0 {
		t.Errorf("Index = %d, want 0", s.Index)
	}
}

func TestSwitchKeepingPlayState(t *testing.T) {
	timed := func(s *Settings) {
		s.PauseAfterSentence = true
		s.AutoResume = true
		s.PauseDurationSeconds = 2
	}
	tests := []struct {
		name     string
		settings func(*Settings)
		setup    func(t *testing.T, h *harness)
		want     State
	}{
		{"playing", nil, func(t *testing.T, h *harness) { h.play(t) }, StatePlaying},
		{"loaded", nil, func(*testing.T, *harness) {}, StateLoaded},
		{"paused by user", nil, func(t *testing.T, h *harness) {
			h.play(t)
			if err := h.o.Pause(); err != nil {
				t.Fatal(err)
			}
		}, StatePausedUser},
		{"timed pause", timed, func(t *testing.T, h *harness) {
			h.play(t)
			h.md.FireEnded()
			h.waitFor(t, "scheduled pause", func(s Snapshot) bool { return s.PauseScheduled })
		}, StatePlaying},
		{"manual pause", func(s *Settings) { s.PauseAfterSentence = true }, func(t *testing.T, h *harness) {
			h.play(t)
			h.md.FireEnded()
			h.waitFor(t, "manual pause", func(s Snapshot) bool { return s.PausedBetweenSentences })
		}, StatePausedUser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			if tt.settings != nil {
				tt.settings(&s)
			}
			h := newHarness(t, s)
			h.load(t, 4, 0)
			tt.setup(t, h)

			if err := h.o.SwitchKeepingPlayState(3); err != nil {
				t.Fatalf("SwitchKeepingPlayState failed: %v", err)
			}
			h.waitFor(t, fmt.Sprintf("%s on 3", tt.want), func(s Snapshot) bool {
				return s.State == tt.want && s.Index == 3
			})
		})
	}
}

func TestSwitchToOutOfRange(t *testing.T) {
	h := newHarness(t, DefaultSettings())
	h.load(t, 3, 1)

	for _, idx := range []int{-1, 3, 100} {
		if err := h.o.SwitchTo(idx, true); !errors.Is(err, segment.ErrIndexOutOfRange) {
			t.Errorf("SwitchTo(%d) = %v, want ErrIndexOutOfRange", idx, err)
		}
	}
	if s := h.o.Snapshot(); s.State != StateLoaded || s.Index != 1 {
		t.Errorf("snapshot = %s index %d, want unchanged", s.State, s.Index)
	}
}

func TestPauseDuringScheduledPause(t *testing.T) {
	h := newHarness(t, settingsWith(func(s *Settings) {
		s.PauseAfterSentence = true
		s.AutoResume = true
	}))
	h.load(t, 3, 0)
	h.play(t)

	h.md.FireEnded()
	h.waitFor(t, "scheduled pause", func(s Snapshot) bool { return s.State == StatePausedBetweenSentences })

	if err := h.o.Pause(); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	if s := h.o.Snapshot(); s.State != StatePausedUser {
		t.Fatalf("state = %s, want paused", s.State)
	}
	if p := h.clock.Pending(); len(p) != 0 {
		t.Errorf("pending timers = %v, want none", p)
	}

	// Toggle resumes the pending sentence.
	if err := h.o.Toggle(); err != nil {
		t.Fatalf("Toggle failed: %v", err)
	}
	h.waitPlaying(t, 1)
	if err := h.o.Toggle(); err != nil {
		t.Fatalf("Toggle failed: %v", err)
	}
	if s := h.o.Snapshot(); s.State != StatePausedUser {
		t.Errorf("state = %s, want paused", s.State)
	}
}

func TestSpeedAndSeek(t *testing.T) {
	h := newHarness(t, DefaultSettings())
	h.load(t, 2, 0)

	tests := []struct {
		set  float64
		want float64
	}{
		{1.5, 1.5},
		{3, audio.MaxSpeed},
		{0.1, audio.MinSpeed},
	}
	for _, tt := range tests {
		got, err := h.o.SetSpeed(tt.set)
		if err != nil || got != tt.want {
			t.Errorf("SetSpeed(%v) = %v, %v; want %v", tt.set, got, err, tt.want)
		}
	}
	if got, _ := h.o.AdjustSpeed(audio.SpeedStep); got != 0.5 {
		t.Errorf("AdjustSpeed = %v, want 0.5", got)
	}
	if h.md.Speed() != 0.5 || h.o.Snapshot().Speed != 0.5 {
		t.Errorf("speed not applied: device %v snapshot %v", h.md.Speed(), h.o.Snapshot().Speed)
	}

	if err := h.o.Seek(150 * time.Millisecond); err != nil {
		t.Fatalf("Seek failed: %v", err)
	}
	if s := h.o.Snapshot(); s.CurrentTime != 150*time.Millisecond {
		t.Errorf("CurrentTime = %v, want 150ms", s.CurrentTime)
	}
	if err := h.o.Seek(time.Hour); err != nil {
		t.Fatalf("Seek failed: %v", err)
	}
	if s := h.o.Snapshot(); s.CurrentTime != 200*time.Millisecond {
		t.Errorf("CurrentTime = %v, want clamped to 200ms", s.CurrentTime)
	}
}

func TestUpdateConfigValidation(t *testing.T) {
	h := newHarness(t, DefaultSettings())

	tests := []struct {
		name string
		fn   func(*Settings)
		ok   bool
	}{
		{"repeat 5", func(s *Settings) { s.RepeatCount = 5 }, true},
		{"repeat 2", func(s *Settings) { s.RepeatCount = 2 }, false},
		{"pause 6s", func(s *Settings) { s.PauseDurationSeconds = 6 }, false},
		{"speed 4", func(s *Settings) { s.Speed = 4 }, false},
		{"speed 1.25", func(s *Settings) { s.Speed = 1.25 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := h.o.Snapshot().Settings
			err := h.o.UpdateConfig(tt.fn)
			if tt.ok && err != nil {
				t.Errorf("UpdateConfig() unexpected error: %v", err)
			}
			if !tt.ok {
				if err == nil {
					t.Error("UpdateConfig() expected error")
				}
				if after := h.o.Snapshot().Settings; after != before {
					t.Errorf("settings changed on error: %+v", after)
				}
			}
		})
	}

	if h.md.Speed() != 1.25 {
		t.Errorf("device speed = %v, want 1.25", h.md.Speed())
	}
}

func TestLoadFailureSurfaces(t *testing.T) {
	h := newHarness(t, DefaultSettings())
	h.load(t, 3, 0)

	boom := errors.New("boom")
	h.md.FailLoads(boom)
	if err := h.o.SwitchTo(1, false); err != nil {
		t.Fatalf("SwitchTo failed: %v", err)
	}

	r := h.waitRec(t, "load error", func(r calls) bool { return len(r.errs) == 1 })
	if !errors.Is(r.errs[0], boom) {
		t.Errorf("error = %v, want boom", r.errs[0])
	}
	h.waitFor(t, "settled", func(s Snapshot) bool { return s.State == StateLoaded && s.Index == 1 })
}

func TestClose(t *testing.T) {
	h := newHarness(t, settingsWith(func(s *Settings) {
		s.PauseAfterSentence = true
		s.AutoResume = true
	}))
	h.load(t, 3, 0)
	h.play(t)
	h.md.FireEnded()
	h.waitFor(t, "scheduled pause", func(s Snapshot) bool { return s.State == StatePausedBetweenSentences })

	if err := h.o.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := h.o.Close(); err != nil {
		t.Errorf("second Close() = %v, want nil", err)
	}

	if p := h.clock.Pending(); len(p) != 0 {
		t.Errorf("pending timers after close = %v", p)
	}
	if h.md.State() != audio.StateClosed {
		t.Errorf("driver state = %v, want closed", h.md.State())
	}
	if err := h.o.Play(); !errors.Is(err, ErrClosed) {
		t.Errorf("Play() after close = %v, want ErrClosed", err)
	}
	if s := h.o.Snapshot(); s.State != StateIdle {
		t.Errorf("state after close = %s, want idle", s.State)
	}

	// Timers that fire after close do nothing.
	h.clock.Advance(time.Minute)
}

func TestListenerMayCallBack(t *testing.T) {
	h := newHarness(t, DefaultSettings())

	done := make(chan error, 1)
	var once sync.Once
	h.o.OnSentenceChange(func(int) {
		once.Do(func() { done <- h.o.Play() })
	})
	h.load(t, 2, 0)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Play from listener failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("listener call deadlocked")
	}
	h.waitPlaying(t, 0)
}
