package synth

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces bursts of writes, such as an editor saving a
// file or a batch of WAV files being copied in.
const DefaultDebounce = 300 * time.Millisecond

// Watcher reports changes to a text file or a segment directory.
type Watcher struct {
	watcher  *fsnotify.Watcher
	path     string
	dir      string
	isDir    bool
	debounce time.Duration
	changes  chan struct{}
	logger   *log.Logger
}

// NewWatcher watches path. For a file, the containing directory is watched
// and only events for the file count. For a directory, changes to WAV files
// and the sentences file count.
func NewWatcher(path string, logger *log.Logger) (*Watcher, error) {
	if logger == nil {
		logger = log.Default()
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		watcher:  fw,
		path:     filepath.Clean(path),
		isDir:    info.IsDir(),
		debounce: DefaultDebounce,
		changes:  make(chan struct{}, 1),
		logger:   logger.WithPrefix("watch"),
	}
	w.dir = w.path
	if !w.isDir {
		w.dir = filepath.Dir(w.path)
	}

	if err := fw.Add(w.dir); err != nil {
		_ = fw.Close()
		return nil, err
	}
	w.logger.Info("fsnotify watching dir", "dir", w.dir)
	return w, nil
}

// SetDebounce changes the quiet period before a change is reported. Call
// it before Run.
func (w *Watcher) SetDebounce(d time.Duration) { w.debounce = d }

// Changes receives a value after each settled burst of relevant events.
func (w *Watcher) Changes() <-chan struct{} { return w.changes }

// Run processes events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug("fsnotify event", "file", event.Name, "event", event.Op)
			timer.Reset(w.debounce)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Debug("fsnotify error", "dir", w.dir, "error", err)

		case <-timer.C:
			select {
			case w.changes <- struct{}{}:
			default:
			}
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!(w.isDir && event.Has(fsnotify.Remove)) {
		return false
	}
	name := filepath.Clean(event.Name)
	if !w.isDir {
		return name == w.path
	}
	base := filepath.Base(name)
	return base == SentencesFile || strings.EqualFold(filepath.Ext(base), ".wav")
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
