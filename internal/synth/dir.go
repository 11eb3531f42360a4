package synth

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-audio/wav"

	"github.com/kanada4310/tts-app/internal/segment"
)

// SentencesFile lists one sentence per line inside a segment directory.
const SentencesFile = "sentences.txt"

// ErrNoSegments is returned for a directory without numbered WAV files.
var ErrNoSegments = errors.New("no numbered WAV files found")

// DirProvider serves pre-recorded audio: a directory holding numbered WAV
// files (1.wav, 2.wav, ... or 001.wav, ...) and a sentences.txt whose
// lines are their transcripts.
type DirProvider struct {
	dir    string
	logger *log.Logger
}

// NewDirProvider serves segments from dir.
func NewDirProvider(dir string, logger *log.Logger) *DirProvider {
	if logger == nil {
		logger = log.Default()
	}
	return &DirProvider{dir: dir, logger: logger.WithPrefix("synth")}
}

// Name identifies the provider in cache keys.
func (p *DirProvider) Name() string { return "dir" }

// Dir returns the directory the provider reads.
func (p *DirProvider) Dir() string { return p.dir }

// Request reads the sentences file and builds the matching request.
func (p *DirProvider) Request() (Request, error) {
	sentences, err := readSentences(filepath.Join(p.dir, SentencesFile))
	if err != nil {
		return Request{}, err
	}
	return Request{Text: strings.Join(sentences, "\n"), Sentences: sentences}, nil
}

// Synthesize decodes the numbered files in order. The request must list as
// many sentences as there are files.
func (p *DirProvider) Synthesize(ctx context.Context, req Request) ([]segment.Source, error) {
	files, err := numberedWAVs(p.dir)
	if err != nil {
		return nil, err
	}
	if len(files) != len(req.Sentences) {
		return nil, fmt.Errorf("%w: %d files, %d sentences", ErrCountMismatch, len(files), len(req.Sentences))
	}

	srcs := make([]segment.Source, len(files))
	for i, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, d, err := loadWAV(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		srcs[i] = segment.Source{Text: req.Sentences[i], Audio: data, Duration: d}
	}

	p.logger.Debug("loaded segment directory", "dir", p.dir, "segments", len(srcs))
	return srcs, nil
}

// loadWAV decodes a file and re-encodes it as canonical 16-bit PCM.
func loadWAV(path string) ([]byte, time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close() //nolint:errcheck

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, segment.ErrNotWAV
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read PCM data: %w", err)
	}
	buf.SourceBitDepth = int(dec.BitDepth)

	format := segment.Format{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   16,
	}
	pcm := pcmBytes(buf)
	return segment.EncodeWAV(pcm, format), format.DurationOf(len(pcm)), nil
}

func readSentences(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck

	var out []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			out = append(out, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNoSentences
	}
	return out, nil
}

// numberedWAVs returns the *.wav files whose base name is a number, sorted
// numerically.
func numberedWAVs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	type numbered struct {
		n    int
		path string
	}
	var files []numbered
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.EqualFold(filepath.Ext(name), ".wav") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(name, filepath.Ext(name)))
		if err != nil {
			continue
		}
		files = append(files, numbered{n, filepath.Join(dir, name)})
	}
	if len(files) == 0 {
		return nil, ErrNoSegments
	}

	sort.Slice(files, func(i, j int) bool { return files[i].n < files[j].n })
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.path
	}
	return out, nil
}

// IsSegmentDir reports whether dir looks like a segment directory.
func IsSegmentDir(dir string) bool {
	if _, err := os.Stat(filepath.Join(dir, SentencesFile)); err != nil {
		return false
	}
	files, err := numberedWAVs(dir)
	return err == nil && len(files) > 0
}
