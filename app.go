package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"

	"github.com/kanada4310/tts-app/internal/audio"
	"github.com/kanada4310/tts-app/internal/cache"
	"github.com/kanada4310/tts-app/internal/config"
	"github.com/kanada4310/tts-app/internal/navigation"
	"github.com/kanada4310/tts-app/internal/orchestrator"
	"github.com/kanada4310/tts-app/internal/session"
	"github.com/kanada4310/tts-app/internal/synth"
	"github.com/kanada4310/tts-app/ui"
)

// mockTick is how often the mock device advances its position.
const mockTick = 50 * time.Millisecond

// app is one playback run: a source, the pipeline that turns it into
// sentence audio and the orchestrator playing it.
type app struct {
	cfg    config.Config
	path   string
	logger *log.Logger

	cache     *cache.Tiered
	segments  *cache.SegmentCache
	history   *session.History
	recorder  *session.Recorder
	bookmarks *session.Bookmarks

	player    *orchestrator.Orchestrator
	navigator *navigation.Navigator
	shortcuts *navigation.Shortcuts
}

func newApp(cfg config.Config, path string, logger *log.Logger) (*app, error) {
	a := &app{cfg: cfg, path: path, logger: logger}

	driver, err := openDriver(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Cache.Enabled {
		dir, err := cacheDir()
		if err != nil {
			return nil, err
		}
		a.cache, err = cache.NewTiered(cfg.CacheConfig(dir), logger)
		if err != nil {
			// Playback works without a cache.
			logger.Warn("segment cache disabled", "err", err)
		} else {
			a.segments = cache.NewSegmentCache(a.cache)
		}
	}

	a.bookmarks, err = openBookmarks(cfg)
	if err != nil {
		logger.Warn("bookmarks unavailable, keeping them in memory", "err", err)
		a.bookmarks = session.NewMemoryBookmarks(nil)
	}

	opts := []orchestrator.Option{
		orchestrator.WithLogger(logger),
		orchestrator.WithSettings(cfg.Settings()),
	}
	if cfg.Session.Enabled {
		a.history, err = openHistory(cfg)
		if err != nil {
			logger.Warn("session history unavailable, keeping sessions in memory", "err", err)
			a.history = session.NewMemoryHistory()
		}
		a.recorder = session.NewRecorder(a.history, session.Options{
			Logger:      logger,
			IdleTimeout: cfg.Session.IdleTimeout,
			Bookmarks:   a.bookmarks,
		})
		opts = append(opts, orchestrator.WithRecorder(a.recorder))
	}

	a.player = orchestrator.New(driver, opts...)
	a.navigator = navigation.New(a.player, logger)
	a.shortcuts = navigation.NewShortcuts(a.navigator)
	return a, nil
}

func openDriver(cfg config.Config) (audio.Driver, error) {
	switch cfg.Audio.Device {
	case config.DeviceMock:
		md := audio.DefaultMockDriver()
		md.EnableSimulation(mockTick)
		return md, nil
	default:
		p, err := audio.NewPlayer(cfg.PlayerConfig())
		if err != nil {
			return nil, fmt.Errorf("unable to open audio device: %w", err)
		}
		return p, nil
	}
}

func cacheDir() (string, error) {
	dir, err := gap.NewScope(gap.User, appName).CacheDir()
	if err != nil {
		return "", fmt.Errorf("unable to find cache directory: %w", err)
	}
	return filepath.Join(dir, "segments"), nil
}

func historyPath(cfg config.Config) (string, error) {
	if cfg.Session.HistoryFile != "" {
		return cfg.Session.HistoryFile, nil
	}
	p, err := gap.NewScope(gap.User, appName).DataPath("sessions.yml")
	if err != nil {
		return "", fmt.Errorf("unable to find data directory: %w", err)
	}
	return p, nil
}

func openHistory(cfg config.Config) (*session.History, error) {
	p, err := historyPath(cfg)
	if err != nil {
		return nil, err
	}
	return session.OpenHistory(p)
}

// openBookmarks opens the bookmarks kept next to the session history.
func openBookmarks(cfg config.Config) (*session.Bookmarks, error) {
	p, err := historyPath(cfg)
	if err != nil {
		return nil, err
	}
	return session.OpenBookmarks(filepath.Join(filepath.Dir(p), "bookmarks.yml"), nil)
}

// load synthesizes the source and loads it, starting at index. It is used
// both for the first load and for reloads after the source changed; a
// reload keeps the running session.
func (a *app) load(ctx context.Context, index int, play, reload bool) error {
	provider, req, err := synth.Open(a.path, synth.Options{
		Voice:             a.cfg.Synth.Voice,
		WordsPerMinute:    a.cfg.Synth.WordsPerMinute,
		RequestsPerMinute: a.cfg.Synth.RequestsPerMinute,
		Cache:             a.segments,
		Logger:            a.logger,
	})
	if err != nil {
		return fmt.Errorf("unable to open %s: %w", filepath.Base(a.path), err)
	}

	a.logger.Debug("synthesizing", "provider", provider.Name(), "sentences", len(req.Sentences))
	srcs, err := provider.Synthesize(ctx, req)
	if err != nil {
		return fmt.Errorf("unable to synthesize: %w", err)
	}
	if err := synth.Validate(req, srcs); err != nil {
		return err
	}

	index = min(max(index, 0), len(srcs)-1)
	if err := a.player.Load(ctx, srcs, index); err != nil {
		return err
	}
	if a.recorder != nil {
		if reload {
			a.recorder.Continue(req.Text, len(srcs))
		} else {
			a.recorder.Start(req.Text, len(srcs))
		}
		texts := make([]string, len(srcs))
		for i, s := range srcs {
			texts[i] = s.Text
		}
		a.recorder.SetSentences(texts)
	}
	if play {
		if err := a.player.Play(); err != nil {
			// The user can still start playback by hand.
			a.logger.Warn("autoplay failed", "err", err)
		}
	}
	return nil
}

// reload keeps the current position and play state when the source
// changes.
func (a *app) reload(ctx context.Context) error {
	snap := a.player.Snapshot()
	return a.load(ctx, snap.Index, snap.IsPlaying, true)
}

func (a *app) activity() {
	if a.recorder != nil {
		a.recorder.Touch()
	}
}

func (a *app) runTUI(ctx context.Context) error {
	if err := a.load(ctx, 0, a.cfg.Playback.AutoPlay, false); err != nil {
		return err
	}

	uiCfg, err := env.ParseAs[ui.Config]()
	if err != nil {
		return fmt.Errorf("error parsing config: %v", err)
	}
	uiCfg.Path = a.path
	uiCfg.HighlightColor = a.cfg.UI.HighlightColor
	uiCfg.ShowProgress = a.cfg.UI.ShowProgress

	deps := ui.Deps{
		Player:    a.player,
		Navigator: a.navigator,
		Shortcuts: a.shortcuts,
		Activity:  a.activity,
		Reload:    a.reload,
		Bookmarks: a.bookmarks,
		Logger:    a.logger,
	}

	watcher, err := synth.NewWatcher(a.path, a.logger)
	if err != nil {
		a.logger.Warn("not watching source for changes", "err", err)
	} else {
		defer watcher.Close() //nolint:errcheck
		wctx, cancel := context.WithCancel(ctx)
		defer cancel()
		go watcher.Run(wctx)
		deps.Changes = watcher.Changes()
	}

	if _, err := ui.NewProgram(uiCfg, deps).Run(); err != nil {
		return fmt.Errorf("unable to run tui program: %w", err)
	}
	return nil
}

// runHeadless plays the source once through and prints each sentence as it
// starts.
func (a *app) runHeadless(ctx context.Context, w io.Writer) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	done := make(chan struct{})
	finish := sync.OnceFunc(func() { close(done) })
	a.player.OnSentenceChange(func(index int) {
		segs := a.player.Segments()
		if index >= 0 && index < len(segs) {
			fmt.Fprintf(w, "%d/%d %s\n", index+1, len(segs), segs[index].Text)
		}
	})
	a.player.OnUpdate(func(s orchestrator.Snapshot) {
		a.logger.Debug("status", "line", ui.StatusLine(s))
	})
	a.player.OnError(func(err error) {
		a.logger.Error("playback error", "err", err)
	})
	a.player.OnComplete(finish)

	s := a.cfg.Settings()
	if s.PauseAfterSentence && !s.AutoResume {
		return errors.New("manual pauses need the player UI: enable pause_enabled or drop auto_pause_after_sentence")
	}

	if err := a.load(ctx, 0, true, false); err != nil {
		return err
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return nil
	}
}

// Close ends the session and releases the device and the cache.
func (a *app) Close() error {
	var errs []error
	if a.recorder != nil {
		a.recorder.End()
	}
	errs = append(errs, a.player.Close())
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	}
	return errors.Join(errs...)
}
