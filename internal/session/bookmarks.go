package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/kanada4310/tts-app/internal/clock"
)

const (
	// MaxBookmarks bounds the bookmark file.
	MaxBookmarks = 200

	// Mastery levels run from MasteryWeak to MasteryLearned.
	MasteryWeak    = 1
	MasteryLearned = 5
)

// ErrTooManyBookmarks is returned when adding beyond MaxBookmarks.
var ErrTooManyBookmarks = fmt.Errorf("at most %d bookmarks can be kept", MaxBookmarks)

// Bookmark is a sentence marked for extra practice.
type Bookmark struct {
	ID              string     `yaml:"id"`
	SentenceText    string     `yaml:"sentence_text"`
	SentenceIndex   int        `yaml:"sentence_index"`
	Source          string     `yaml:"source,omitempty"`
	AddedAt         time.Time  `yaml:"added_at"`
	PracticeCount   int        `yaml:"practice_count"`
	LastPracticedAt *time.Time `yaml:"last_practiced_at,omitempty"`
	MasteryLevel    int        `yaml:"mastery_level"`
	Note            string     `yaml:"note,omitempty"`
}

type bookmarkFile struct {
	Bookmarks   []Bookmark `yaml:"bookmarks"`
	LastUpdated time.Time  `yaml:"last_updated"`
}

// Bookmarks is the set of bookmarked sentences, persisted as YAML. A
// sentence is identified by its text, so a bookmark follows the sentence
// when the material is edited around it.
type Bookmarks struct {
	path  string
	clock clock.Clock

	mu    sync.Mutex
	items []Bookmark
}

// OpenBookmarks reads the bookmarks at path. A missing file yields an empty
// set. A nil clock uses the wall clock.
func OpenBookmarks(path string, clk clock.Clock) (*Bookmarks, error) {
	b := NewMemoryBookmarks(clk)
	b.path = path

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return b, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read bookmarks: %w", err)
	}

	var file bookmarkFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse bookmarks %s: %w", path, err)
	}
	b.items = file.Bookmarks
	return b, nil
}

// NewMemoryBookmarks returns a bookmark set that is never written to disk.
func NewMemoryBookmarks(clk clock.Clock) *Bookmarks {
	if clk == nil {
		clk = clock.New()
	}
	return &Bookmarks{clock: clk}
}

// Path returns the file backing the set, or "" for a memory set.
func (b *Bookmarks) Path() string {
	return b.path
}

func sentenceKey(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func (b *Bookmarks) findLocked(text string) int {
	key := sentenceKey(text)
	return slices.IndexFunc(b.items, func(bm Bookmark) bool {
		return sentenceKey(bm.SentenceText) == key
	})
}

// IsBookmarked reports whether the sentence is bookmarked.
func (b *Bookmarks) IsBookmarked(text string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.findLocked(text) >= 0
}

// Toggle bookmarks the sentence, or removes its bookmark, and saves. It
// reports whether the sentence is bookmarked afterwards.
func (b *Bookmarks) Toggle(text string, index int, source string) (bool, error) {
	if sentenceKey(text) == "" {
		return false, errors.New("cannot bookmark an empty sentence")
	}

	b.mu.Lock()
	added := false
	if i := b.findLocked(text); i >= 0 {
		b.items = slices.Delete(b.items, i, i+1)
	} else {
		if len(b.items) >= MaxBookmarks {
			b.mu.Unlock()
			return false, ErrTooManyBookmarks
		}
		b.items = append(b.items, Bookmark{
			ID:            uuid.NewString(),
			SentenceText:  text,
			SentenceIndex: index,
			Source:        source,
			AddedAt:       b.clock.Now().UTC(),
			MasteryLevel:  MasteryWeak,
		})
		added = true
	}
	b.mu.Unlock()
	return added, b.Save()
}

// RecordPractice counts one play of a bookmarked sentence and saves. It
// does nothing for a sentence that is not bookmarked.
func (b *Bookmarks) RecordPractice(text string) error {
	b.mu.Lock()
	i := b.findLocked(text)
	if i < 0 {
		b.mu.Unlock()
		return nil
	}
	now := b.clock.Now().UTC()
	b.items[i].PracticeCount++
	b.items[i].LastPracticedAt = &now
	b.mu.Unlock()
	return b.Save()
}

// SetMastery sets the mastery level of a bookmarked sentence, clamped to
// MasteryWeak..MasteryLearned, and saves.
func (b *Bookmarks) SetMastery(text string, level int) error {
	b.mu.Lock()
	i := b.findLocked(text)
	if i < 0 {
		b.mu.Unlock()
		return fmt.Errorf("sentence %q is not bookmarked", text)
	}
	b.items[i].MasteryLevel = min(max(level, MasteryWeak), MasteryLearned)
	b.mu.Unlock()
	return b.Save()
}

// List returns the bookmarks, most recently added first.
func (b *Bookmarks) List() []Bookmark {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := slices.Clone(b.items)
	slices.SortStableFunc(out, func(x, y Bookmark) int {
		return y.AddedAt.Compare(x.AddedAt)
	})
	return out
}

// Clear removes every bookmark and saves.
func (b *Bookmarks) Clear() error {
	b.mu.Lock()
	b.items = nil
	b.mu.Unlock()
	return b.Save()
}

// Save writes the bookmark file.
func (b *Bookmarks) Save() error {
	if b.path == "" {
		return nil
	}

	b.mu.Lock()
	data, err := yaml.Marshal(bookmarkFile{Bookmarks: b.items, LastUpdated: b.clock.Now().UTC()})
	b.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to encode bookmarks: %w", err)
	}
	return writeAtomic(b.path, data)
}
