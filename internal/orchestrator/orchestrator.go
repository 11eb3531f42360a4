// Package orchestrator drives sentence-by-sentence playback. It owns the
// audio driver and the segment store, evaluates the repeat/pause policy each
// time a sentence ends, and keeps listeners informed.
//
// Every mutation runs on a single loop goroutine in arrival order: public
// methods, driver events, pause timer fires and load completions are all
// posted to one inbox. Listener callbacks run on a separate goroutine, so
// they may call back into the orchestrator.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/kanada4310/tts-app/internal/audio"
	"github.com/kanada4310/tts-app/internal/clock"
	"github.com/kanada4310/tts-app/internal/policy"
	"github.com/kanada4310/tts-app/internal/segment"
)

// switchPlan describes what happens once a sentence switch has loaded.
type switchPlan struct {
	index      int
	autoPlay   bool
	pauseMs    int
	isRepeat   bool
	fromPolicy bool
	// rest is the state entered when the switch does not auto-play.
	rest State
	done chan error
}

func (p *switchPlan) finish(err error) {
	if p.done != nil {
		p.done <- err
		p.done = nil
	}
}

// Orchestrator coordinates the segment store, the audio driver and the
// repeat/pause policy.
type Orchestrator struct {
	store    *segment.Store
	driver   audio.Driver
	clock    clock.Clock
	logger   *log.Logger
	recorder PlayRecorder

	inbox        *mailbox
	events       *mailbox
	loopDone     chan struct{}
	dispatchDone chan struct{}
	closing      atomic.Bool
	snapshot     atomic.Pointer[Snapshot]

	listenersMu      sync.RWMutex
	onSentenceChange []func(int)
	onPlayState      []func(bool)
	onComplete       []func()
	onError          []func(error)
	onUpdate         []func(Snapshot)

	// Owned by the loop goroutine.
	shut      bool
	machine   *StateMachine
	settings  Settings
	repeat    policy.RepeatState
	sources   []segment.Source
	index     int
	total     int
	position  time.Duration
	duration  time.Duration
	isPlaying bool
	completed bool
	lastErr   error

	// queuedEnded counts sentence-ended events that arrived while a
	// policy-driven transition was still resolving.
	queuedEnded int

	pending    *switchPlan
	loadGen    uint64
	loadCancel context.CancelFunc

	timer    clock.Timer
	timerGen uint64

	startPending  bool
	startIsRepeat bool
}

// New creates an orchestrator that owns driver. Close releases both.
func New(driver audio.Driver, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:        segment.NewStore(),
		driver:       driver,
		clock:        clock.New(),
		logger:       log.Default(),
		inbox:        newMailbox(),
		events:       newMailbox(),
		loopDone:     make(chan struct{}),
		dispatchDone: make(chan struct{}),
		machine:      NewStateMachine(),
		settings:     DefaultSettings(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.WithPrefix("orchestrator")
	o.settings.Speed = driver.SetSpeed(o.settings.Speed)

	o.setupStateMachine()
	o.publish()

	driver.SetListener(func(ev audio.Event) {
		o.post(func() { o.handleEvent(ev) })
	})

	go o.run()
	go o.dispatch()
	return o
}

// Load replaces the sentence set and prepares initialIndex for playback. It
// returns once the first sentence is ready. On an invalid set the previous
// state is kept.
//
// If ctx ends first the device load is abandoned: the new set stays
// installed in StateLoaded with the error recorded, and Load returns
// ctx.Err(). A SwitchTo issued while the first sentence loads takes over and
// Load returns its outcome.
func (o *Orchestrator) Load(ctx context.Context, srcs []segment.Source, initialIndex int) error {
	done := make(chan error, 1)
	var gen uint64
	err := o.do(func() error {
		if err := o.store.Load(srcs, initialIndex); err != nil {
			o.logger.Warn("rejected sentence set", "err", err)
			return err
		}
		o.sources = append([]segment.Source(nil), srcs...)
		o.resetForLoad()

		o.driver.Pause()
		o.transition(StateLoaded)
		if err := o.beginSwitch(switchPlan{
			index: o.store.Current(),
			rest:  StateLoaded,
			done:  done,
		}); err != nil {
			return err
		}
		gen = o.loadGen
		return nil
	})
	if err != nil {
		return err
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		_ = o.do(func() error {
			if gen == o.loadGen && o.pending != nil {
				o.finishSwitch(gen, ctx.Err())
			}
			return nil
		})
		return ctx.Err()
	}
}

// Restart loads the current sentence set again from the first sentence.
func (o *Orchestrator) Restart(ctx context.Context) error {
	var srcs []segment.Source
	if err := o.do(func() error {
		if len(o.sources) == 0 {
			return fmt.Errorf("restart: %w", ErrInvalidState)
		}
		srcs = o.sources
		return nil
	}); err != nil {
		return err
	}
	return o.Load(ctx, srcs, 0)
}

// Play starts or resumes playback. From a pause between sentences it is the
// manual resume. It bypasses the policy.
func (o *Orchestrator) Play() error {
	return o.do(o.play)
}

func (o *Orchestrator) play() error {
	st := o.machine.Current()
	switch st {
	case StateIdle, StateComplete:
		return fmt.Errorf("play in state %s: %w", st, ErrInvalidState)
	case StatePlaying:
		return nil
	case StateResolvingTransition:
		o.pending.autoPlay = true
		o.pending.pauseMs = 0
		return nil
	}

	o.cancelPauseTimer()
	return o.startPlayback(st)
}

// Pause pauses playback and cancels a pending inter-sentence pause.
func (o *Orchestrator) Pause() error {
	return o.do(func() error {
		o.pause()
		return nil
	})
}

func (o *Orchestrator) pause() {
	o.queuedEnded = 0
	switch o.machine.Current() {
	case StatePlaying:
		o.driver.Pause()
		o.transition(StatePausedUser)
	case StatePausedBetweenSentences:
		o.cancelPauseTimer()
		o.transition(StatePausedUser)
	case StateResolvingTransition:
		o.pending.autoPlay = false
		o.pending.rest = StatePausedUser
	}
}

// Toggle pauses when playing and plays otherwise.
func (o *Orchestrator) Toggle() error {
	return o.do(func() error {
		if o.wantsPlaying() {
			o.pause()
			return nil
		}
		return o.play()
	})
}

func (o *Orchestrator) wantsPlaying() bool {
	switch o.machine.Current() {
	case StatePlaying:
		return true
	case StateResolvingTransition:
		return o.pending.autoPlay && o.pending.pauseMs == 0
	}
	return false
}

// Seek moves within the current sentence. It ends a pause window between
// sentences the same way Pause does.
func (o *Orchestrator) Seek(pos time.Duration) error {
	return o.do(func() error {
		switch o.machine.Current() {
		case StateIdle, StateResolvingTransition:
			return nil
		case StatePausedBetweenSentences:
			o.cancelPauseTimer()
			o.transition(StatePausedUser)
		}
		o.queuedEnded = 0
		o.driver.Seek(pos)
		o.position = o.driver.Position()
		return nil
	})
}

// SetSpeed sets the playback speed, clamped to the device limits, and
// returns the applied value.
func (o *Orchestrator) SetSpeed(speed float64) (float64, error) {
	var applied float64
	err := o.do(func() error {
		applied = o.driver.SetSpeed(speed)
		o.settings.Speed = applied
		return nil
	})
	return applied, err
}

// AdjustSpeed changes the speed by delta and returns the applied value.
func (o *Orchestrator) AdjustSpeed(delta float64) (float64, error) {
	var applied float64
	err := o.do(func() error {
		applied = o.driver.SetSpeed(o.settings.Speed + delta)
		o.settings.Speed = applied
		return nil
	})
	return applied, err
}

// SetConfig replaces the settings. The next sentence boundary uses them.
func (o *Orchestrator) SetConfig(s Settings) error {
	return o.UpdateConfig(func(cur *Settings) { *cur = s })
}

// UpdateConfig applies fn to a copy of the settings and installs the result
// if it is valid.
func (o *Orchestrator) UpdateConfig(fn func(*Settings)) error {
	return o.do(func() error {
		s := o.settings
		fn(&s)
		if err := s.Validate(); err != nil {
			return fmt.Errorf("update config: %w", err)
		}
		if s.Speed != o.settings.Speed {
			s.Speed = o.driver.SetSpeed(s.Speed)
		}
		o.settings = s
		o.logger.Debug("settings updated", "repeat", s.RepeatCount, "pause", s.PauseAfterSentence,
			"autoResume", s.AutoResume, "pauseSeconds", s.PauseDurationSeconds, "speed", s.Speed)
		return nil
	})
}

// SwitchTo moves to the sentence at index without consulting the policy.
// Any pending pause is cancelled. Out-of-range indexes fail with
// segment.ErrIndexOutOfRange and change nothing.
func (o *Orchestrator) SwitchTo(index int, autoPlay bool) error {
	return o.do(func() error { return o.switchTo(index, autoPlay) })
}

// SwitchKeepingPlayState is SwitchTo with autoPlay taken from the current
// state. Playback continues on the new sentence if it would have continued
// without user input.
func (o *Orchestrator) SwitchKeepingPlayState(index int) error {
	return o.do(func() error { return o.switchTo(index, o.continuesPlaying()) })
}

func (o *Orchestrator) switchTo(index int, autoPlay bool) error {
	st := o.machine.Current()
	if st == StateIdle || st == StateComplete {
		return fmt.Errorf("switch in state %s: %w", st, ErrInvalidState)
	}
	if index < 0 || index >= o.total {
		o.logger.Debug("switch ignored", "index", index, "total", o.total)
		return fmt.Errorf("switch to %d: %w", index, segment.ErrIndexOutOfRange)
	}

	o.queuedEnded = 0
	if !autoPlay {
		o.driver.Pause()
	}
	rest := StatePausedUser
	if st == StateLoaded || (st == StateResolvingTransition && o.pending.rest == StateLoaded) {
		rest = StateLoaded
	}
	return o.beginSwitch(switchPlan{index: index, autoPlay: autoPlay, rest: rest})
}

// continuesPlaying reports whether playback would go on without user input.
func (o *Orchestrator) continuesPlaying() bool {
	switch o.machine.Current() {
	case StatePlaying:
		return true
	case StateResolvingTransition:
		return o.pending != nil && o.pending.autoPlay && o.pending.pauseMs >= 0
	case StatePausedBetweenSentences:
		return o.timer != nil
	}
	return false
}

// Snapshot returns the latest published state. It never blocks.
func (o *Orchestrator) Snapshot() Snapshot {
	return *o.snapshot.Load()
}

// Segments returns the loaded sentences.
func (o *Orchestrator) Segments() []segment.Segment {
	return o.store.Segments()
}

// OnSentenceChange registers a callback for sentence index changes.
func (o *Orchestrator) OnSentenceChange(fn func(int)) {
	o.listenersMu.Lock()
	defer o.listenersMu.Unlock()
	o.onSentenceChange = append(o.onSentenceChange, fn)
}

// OnPlayStateChange registers a callback for changes of the playing flag.
func (o *Orchestrator) OnPlayStateChange(fn func(bool)) {
	o.listenersMu.Lock()
	defer o.listenersMu.Unlock()
	o.onPlayState = append(o.onPlayState, fn)
}

// OnComplete registers a callback fired once when the last sentence ends.
func (o *Orchestrator) OnComplete(fn func()) {
	o.listenersMu.Lock()
	defer o.listenersMu.Unlock()
	o.onComplete = append(o.onComplete, fn)
}

// OnError registers a callback for playback errors.
func (o *Orchestrator) OnError(fn func(error)) {
	o.listenersMu.Lock()
	defer o.listenersMu.Unlock()
	o.onError = append(o.onError, fn)
}

// OnUpdate registers a callback receiving every published snapshot.
func (o *Orchestrator) OnUpdate(fn func(Snapshot)) {
	o.listenersMu.Lock()
	defer o.listenersMu.Unlock()
	o.onUpdate = append(o.onUpdate, fn)
}

// Close stops playback, releases the store and the driver, and stops the
// loop. Later calls return ErrClosed.
func (o *Orchestrator) Close() error {
	if !o.closing.CompareAndSwap(false, true) {
		return nil
	}

	err := o.do(func() error {
		o.cancelLoad(ErrClosed)
		o.cancelPauseTimer()
		o.queuedEnded = 0
		o.driver.Pause()
		o.store.Dispose()
		o.transition(StateIdle)
		o.publish()
		o.shut = true
		return o.driver.Close()
	})

	o.inbox.close()
	<-o.loopDone
	o.events.close()
	<-o.dispatchDone
	return err
}

// do runs fn on the loop and waits for its result.
func (o *Orchestrator) do(fn func() error) error {
	errCh := make(chan error, 1)
	ok := o.inbox.push(func() {
		if o.shut {
			errCh <- ErrClosed
			return
		}
		err := fn()
		if !o.shut {
			o.settle()
		}
		errCh <- err
	})
	if !ok {
		return ErrClosed
	}
	return <-errCh
}

// post runs fn on the loop without waiting.
func (o *Orchestrator) post(fn func()) {
	o.inbox.push(func() {
		if o.shut {
			return
		}
		fn()
		o.settle()
	})
}

func (o *Orchestrator) run() {
	defer close(o.loopDone)
	for {
		fn, ok := o.inbox.pop()
		if !ok {
			return
		}
		fn()
	}
}

func (o *Orchestrator) dispatch() {
	defer close(o.dispatchDone)
	for {
		fn, ok := o.events.pop()
		if !ok {
			return
		}
		fn()
	}
}

// settle runs after every loop step, before a waiting caller is released: it
// processes queued sentence ends once
// playback is back in StatePlaying, reports play-state flips and publishes
// a snapshot.
func (o *Orchestrator) settle() {
	for o.queuedEnded > 0 && o.machine.Current() == StatePlaying {
		o.queuedEnded--
		o.logger.Debug("processing queued sentence end", "index", o.index, "remaining", o.queuedEnded)
		o.resolveEnded()
	}

	if st := o.machine.Current(); st != StateResolvingTransition {
		playing := st == StatePlaying
		if playing != o.isPlaying {
			o.isPlaying = playing
			o.notifyPlayState(playing)
		}
	}

	o.publish()
}

func (o *Orchestrator) setupStateMachine() {
	o.machine.OnEnter(StatePlaying, func(State) {
		o.lastErr = nil
		if o.startPending {
			o.startPending = false
			o.notifyRecordPlay(o.index, o.startIsRepeat)
		}
	})
	o.machine.OnExit(StatePausedBetweenSentences, func(State) {
		o.cancelPauseTimer()
	})
	o.machine.OnEnter(StateComplete, func(State) {
		o.logger.Info("playback complete", "sentences", o.total)
	})
}

func (o *Orchestrator) transition(to State) {
	from := o.machine.Current()
	if from == to {
		return
	}
	if !o.machine.Transition(to) {
		o.logger.Error("invalid transition", "from", from, "to", to)
		return
	}
	o.logger.Debug("state", "from", from, "to", to, "index", o.index)
}

func (o *Orchestrator) handleEvent(ev audio.Event) {
	switch ev.Type {
	case audio.EventMetadataLoaded:
		o.duration = ev.Duration
	case audio.EventTimeUpdate:
		if o.machine.Current() != StateResolvingTransition {
			o.position = ev.Position
		}
	case audio.EventEnded:
		o.onEnded()
	default:
		o.logger.Debug("driver event", "event", ev.Type)
	}
}

// onEnded is the only entry into the policy. While a policy-driven
// transition resolves, ends are counted and replayed later in order.
func (o *Orchestrator) onEnded() {
	switch st := o.machine.Current(); st {
	case StatePlaying:
		o.resolveEnded()
	case StateResolvingTransition, StatePausedBetweenSentences:
		if st == StateResolvingTransition && !o.pending.fromPolicy {
			o.logger.Debug("dropping sentence end of replaced resource", "index", o.index)
			return
		}
		o.queuedEnded++
		o.logger.Debug("queued sentence end", "index", o.index, "queued", o.queuedEnded)
	default:
		o.logger.Debug("ignoring sentence end", "state", st)
	}
}

func (o *Orchestrator) resolveEnded() {
	d := policy.Decide(o.index, o.total, o.repeat, o.settings.Config)
	o.logger.Debug("sentence ended", "index", o.index, "action", d.Action, "detail", d.DebugMessage)
	o.repeat = d.Next

	if d.Action == policy.ActionComplete {
		o.complete()
		return
	}
	if d.Action == policy.ActionAdvance && !o.settings.AutoAdvance {
		o.logger.Debug("auto advance off, stopping", "index", o.index)
		o.complete()
		return
	}

	if d.PauseMs != 0 {
		o.driver.Pause()
	}
	err := o.beginSwitch(switchPlan{
		index:      d.SeekTo,
		autoPlay:   true,
		pauseMs:    d.PauseMs,
		isRepeat:   d.Action == policy.ActionRepeat,
		fromPolicy: true,
		rest:       StatePausedUser,
	})
	if err != nil {
		o.logger.Error("policy switch failed", "index", d.SeekTo, "err", err)
	}
}

func (o *Orchestrator) complete() {
	o.driver.Pause()
	o.queuedEnded = 0
	o.position = o.duration
	o.transition(StateComplete)
	if !o.completed {
		o.completed = true
		o.notifyComplete()
	}
}

// beginSwitch points the store at plan.index and starts loading it into the
// driver. A load still in flight is cancelled and loses.
func (o *Orchestrator) beginSwitch(plan switchPlan) error {
	h, err := o.store.SwitchTo(plan.index)
	if err != nil {
		o.logger.Warn("switch failed", "index", plan.index, "err", err)
		plan.finish(err)
		return err
	}

	if o.pending != nil && o.pending.done != nil && plan.done == nil {
		// A caller still waits on the superseded load.
		plan.done = o.pending.done
		o.pending.done = nil
	}
	o.cancelLoad(ErrResourceSwapIncomplete)
	o.cancelPauseTimer()

	if plan.index != o.index {
		o.index = plan.index
		if !plan.isRepeat {
			o.repeat = policy.RepeatState{}
		}
		o.notifySentenceChange(plan.index)
	}
	o.position = 0
	o.duration = h.Duration()
	o.startPending = false

	o.loadGen++
	gen := o.loadGen
	ctx, cancel := context.WithCancel(context.Background())
	o.loadCancel = cancel
	o.pending = &plan
	o.transition(StateResolvingTransition)

	go func() {
		err := o.driver.Load(ctx, h)
		o.post(func() { o.finishSwitch(gen, err) })
	}()
	return nil
}

func (o *Orchestrator) cancelLoad(reason error) {
	if o.loadCancel == nil {
		return
	}
	o.logger.Warn("switch superseded", "index", o.pending.index, "err", reason)
	o.loadCancel()
	o.loadCancel = nil
	o.pending.finish(reason)
	o.pending = nil
}

func (o *Orchestrator) finishSwitch(gen uint64, err error) {
	if gen != o.loadGen || o.pending == nil {
		return
	}
	plan := o.pending
	o.pending = nil
	o.loadCancel()
	o.loadCancel = nil

	if err != nil {
		perr := &PlaybackError{Op: "load", Index: plan.index, Err: err}
		o.fail(perr)
		if plan.rest == StateLoaded {
			o.transition(StateLoaded)
		} else {
			o.transition(StatePausedUser)
		}
		o.publish()
		plan.finish(perr)
		return
	}

	if d := o.driver.Duration(); d > 0 {
		o.duration = d
	}
	go o.store.Preload(plan.index + 1)

	o.startPending = true
	o.startIsRepeat = plan.isRepeat

	switch {
	case !plan.autoPlay:
		o.driver.Pause()
		o.transition(plan.rest)
	case plan.pauseMs == 0:
		reject := StatePausedUser
		if plan.fromPolicy {
			reject = StatePausedBetweenSentences
		}
		_ = o.startPlayback(reject)
	case plan.pauseMs > 0:
		o.driver.Pause()
		o.transition(StatePausedBetweenSentences)
		o.schedulePause(time.Duration(plan.pauseMs) * time.Millisecond)
	default:
		o.driver.Pause()
		o.transition(StatePausedBetweenSentences)
		o.logger.Debug("waiting for manual resume", "index", plan.index)
	}
	o.publish()
	plan.finish(nil)
}

// startPlayback plays the loaded sentence. On rejection the device stays
// paused, the error goes to the error listeners and the orchestrator moves
// to onReject.
func (o *Orchestrator) startPlayback(onReject State) error {
	if err := o.driver.Play(); err != nil {
		perr := &PlaybackError{Op: "play", Index: o.index, Err: err}
		o.fail(perr)
		o.transition(onReject)
		return perr
	}
	o.transition(StatePlaying)
	return nil
}

func (o *Orchestrator) schedulePause(d time.Duration) {
	o.cancelPauseTimer()
	gen := o.timerGen
	o.timer = o.clock.AfterFunc(d, func() {
		o.post(func() { o.onPauseElapsed(gen) })
	})
	o.logger.Debug("pause scheduled", "index", o.index, "duration", d)
}

func (o *Orchestrator) cancelPauseTimer() {
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	o.timerGen++
}

func (o *Orchestrator) onPauseElapsed(gen uint64) {
	if gen != o.timerGen || o.machine.Current() != StatePausedBetweenSentences {
		return
	}
	o.timer = nil
	if err := o.startPlayback(StatePausedBetweenSentences); err != nil {
		o.logger.Warn("auto-resume rejected", "index", o.index, "err", err)
	}
}

func (o *Orchestrator) resetForLoad() {
	o.cancelLoad(ErrResourceSwapIncomplete)
	o.cancelPauseTimer()
	o.queuedEnded = 0
	o.repeat = policy.RepeatState{}
	o.completed = false
	o.lastErr = nil
	o.index = -1
	o.total = o.store.Len()
	o.position = 0
	o.duration = 0
	o.startPending = false
}

func (o *Orchestrator) fail(err error) {
	o.lastErr = err
	o.logger.Error("playback error", "err", err)
	listeners := listenersOf(o, func() []func(error) { return o.onError })
	o.events.push(func() {
		for _, fn := range listeners {
			fn(err)
		}
	})
}

func (o *Orchestrator) notifySentenceChange(index int) {
	listeners := listenersOf(o, func() []func(int) { return o.onSentenceChange })
	o.events.push(func() {
		for _, fn := range listeners {
			fn(index)
		}
	})
}

func (o *Orchestrator) notifyPlayState(playing bool) {
	listeners := listenersOf(o, func() []func(bool) { return o.onPlayState })
	o.events.push(func() {
		for _, fn := range listeners {
			fn(playing)
		}
	})
}

func (o *Orchestrator) notifyComplete() {
	listeners := listenersOf(o, func() []func() { return o.onComplete })
	o.events.push(func() {
		for _, fn := range listeners {
			fn()
		}
	})
}

func (o *Orchestrator) notifyRecordPlay(index int, isRepeat bool) {
	if o.recorder == nil {
		return
	}
	r := o.recorder
	o.events.push(func() { r.RecordPlay(index, isRepeat) })
}

func (o *Orchestrator) publish() {
	st := o.machine.Current()
	s := &Snapshot{
		State:                  st,
		Index:                  max(o.index, 0),
		Total:                  o.total,
		IsPlaying:              st == StatePlaying,
		IsLoading:              st == StateResolvingTransition && o.loadCancel != nil,
		CurrentTime:            o.position,
		Duration:               o.duration,
		Speed:                  o.settings.Speed,
		CurrentRepeat:          o.repeat.CurrentRepeat,
		RepeatText:             policy.RepeatDisplay(o.settings.RepeatCount, o.repeat),
		RepeatInfo:             policy.RepeatInfoFor(o.settings.RepeatCount, o.repeat),
		PausedBetweenSentences: st == StatePausedBetweenSentences,
		PauseScheduled:         st == StatePausedBetweenSentences && o.timer != nil,
		Settings:               o.settings,
		LastError:              o.lastErr,
	}
	o.snapshot.Store(s)

	listeners := listenersOf(o, func() []func(Snapshot) { return o.onUpdate })
	if len(listeners) == 0 {
		return
	}
	snap := *s
	o.events.push(func() {
		for _, fn := range listeners {
			fn(snap)
		}
	})
}

// listenersOf copies a listener slice under the read lock.
func listenersOf[T any](o *Orchestrator, get func() []T) []T {
	o.listenersMu.RLock()
	defer o.listenersMu.RUnlock()
	return append([]T(nil), get()...)
}
