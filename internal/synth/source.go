package synth

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/kanada4310/tts-app/internal/cache"
)

// Options configures Open.
type Options struct {
	Voice             string
	WordsPerMinute    int
	RequestsPerMinute int
	// Cache is optional. When set, synthesized sets are cached.
	Cache  *cache.SegmentCache
	Logger *log.Logger
}

// Open builds the provider and request for path. A segment directory is
// served as recorded. A text or markdown file is split into sentences and
// synthesized.
func Open(path string, o Options) (Provider, Request, error) {
	if o.Logger == nil {
		o.Logger = log.Default()
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, Request{}, err
	}

	if info.IsDir() {
		dp := NewDirProvider(path, o.Logger)
		req, err := dp.Request()
		if err != nil {
			return nil, Request{}, fmt.Errorf("failed to read %s: %w", SentencesFile, err)
		}
		return dp, req, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, Request{}, err
	}
	text := string(data)
	if isMarkdown(path) {
		text = ExtractText(text)
	}

	req := NewRequest(text, o.Voice)
	if len(req.Sentences) == 0 {
		return nil, Request{}, ErrNoSentences
	}

	tone := NewToneProvider()
	if o.WordsPerMinute > 0 {
		tone.WordsPerMinute = o.WordsPerMinute
	}
	var p Provider = tone
	if o.RequestsPerMinute > 0 {
		p = NewLimited(p, o.RequestsPerMinute)
	}
	if o.Cache != nil {
		p = NewCached(p, o.Cache, tone.Format, o.Logger)
	}
	return p, req, nil
}

func isMarkdown(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown", ".mdown", ".mkdn", ".mkd":
		return true
	}
	return false
}
