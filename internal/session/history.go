package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxStoredSessions bounds the history file. The oldest sessions are
// dropped first.
const MaxStoredSessions = 100

// historyFile is the on-disk layout.
type historyFile struct {
	Sessions    []Session `yaml:"sessions"`
	LastUpdated time.Time `yaml:"last_updated"`
}

// History is the list of finished sessions, persisted as YAML.
type History struct {
	path string

	mu       sync.Mutex
	sessions []Session
}

// OpenHistory reads the history at path. A missing file yields an empty
// history.
func OpenHistory(path string) (*History, error) {
	h := &History{path: path}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return h, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session history: %w", err)
	}

	var file historyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse session history %s: %w", path, err)
	}
	h.sessions = file.Sessions
	return h, nil
}

// NewMemoryHistory returns a history that is never written to disk.
func NewMemoryHistory() *History {
	return &History{}
}

// Path returns the file backing the history, or "" for a memory history.
func (h *History) Path() string {
	return h.path
}

// Append adds a finished session, trims the list to MaxStoredSessions and
// saves.
func (h *History) Append(s Session) error {
	h.mu.Lock()
	h.sessions = append(h.sessions, s)
	if len(h.sessions) > MaxStoredSessions {
		slices.SortStableFunc(h.sessions, func(a, b Session) int {
			return a.StartTime.Compare(b.StartTime)
		})
		h.sessions = slices.Clone(h.sessions[len(h.sessions)-MaxStoredSessions:])
	}
	h.mu.Unlock()
	return h.Save()
}

// Sessions returns the stored sessions, newest first.
func (h *History) Sessions() []Session {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := slices.Clone(h.sessions)
	slices.SortStableFunc(out, func(a, b Session) int {
		return b.StartTime.Compare(a.StartTime)
	})
	return out
}

// Clear removes every stored session and saves.
func (h *History) Clear() error {
	h.mu.Lock()
	h.sessions = nil
	h.mu.Unlock()
	return h.Save()
}

// Save writes the history file.
func (h *History) Save() error {
	if h.path == "" {
		return nil
	}

	h.mu.Lock()
	data, err := yaml.Marshal(historyFile{Sessions: h.sessions, LastUpdated: time.Now().UTC()})
	h.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to encode session history: %w", err)
	}

	return writeAtomic(h.path, data)
}

// writeAtomic replaces path with data through a temporary file in the same
// directory, so a crash never leaves a truncated file.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Base(path), err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
