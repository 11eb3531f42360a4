package synth

import (
	"context"
	"math"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/go-audio/audio"

	"github.com/kanada4310/tts-app/internal/segment"
)

const (
	// DefaultWordsPerMinute is the pacing of the tone synthesizer.
	DefaultWordsPerMinute = 150
	minToneLength         = 300 * time.Millisecond
	// cjkRunesPerWord treats this many CJK characters as one word.
	cjkRunesPerWord = 2
)

// voices maps a voice name to its base frequency in Hz.
var voices = map[string]float64{
	"low":  220,
	"mid":  330,
	"high": 440,
}

// ToneProvider is an offline stand-in for a speech synthesizer. Each
// sentence becomes a sequence of short tones, one per word, so segment
// lengths follow the text the way speech would.
type ToneProvider struct {
	Format         segment.Format
	WordsPerMinute int
	Amplitude      float64
}

// NewToneProvider returns a tone provider producing the default format.
func NewToneProvider() *ToneProvider {
	return &ToneProvider{
		Format:         segment.DefaultFormat(),
		WordsPerMinute: DefaultWordsPerMinute,
		Amplitude:      0.2,
	}
}

// Name identifies the provider in cache keys.
func (p *ToneProvider) Name() string { return "tone" }

// Synthesize renders one WAV per sentence.
func (p *ToneProvider) Synthesize(ctx context.Context, req Request) ([]segment.Source, error) {
	if len(req.Sentences) == 0 {
		return nil, ErrNoSentences
	}

	freq, ok := voices[req.Voice]
	if !ok {
		freq = voices["mid"]
	}

	srcs := make([]segment.Source, len(req.Sentences))
	for i, sentence := range req.Sentences {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		buf := p.render(WordCount(sentence), freq)
		srcs[i] = segment.Source{
			Text:     sentence,
			Audio:    segment.EncodeWAV(pcmBytes(buf), p.Format),
			Duration: p.Format.DurationOf(len(buf.Data) * 2),
		}
	}
	return srcs, nil
}

// Length returns how long a sentence of n words plays.
func (p *ToneProvider) Length(words int) time.Duration {
	wpm := p.WordsPerMinute
	if wpm <= 0 {
		wpm = DefaultWordsPerMinute
	}
	d := time.Duration(words) * time.Minute / time.Duration(wpm)
	return max(d, minToneLength)
}

func (p *ToneProvider) render(words int, freq float64) *audio.IntBuffer {
	f := p.Format
	total := f.BytesFor(p.Length(words)) / f.FrameSize()
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: f.Channels, SampleRate: f.SampleRate},
		Data:           make([]int, total*f.Channels),
		SourceBitDepth: 16,
	}

	words = max(words, 1)
	perWord := total / words
	tone := perWord * 3 / 4
	fade := min(tone/4, f.SampleRate/100)
	amp := p.Amplitude * math.MaxInt16

	for w := range words {
		// Alternate pitch slightly so consecutive words are distinguishable.
		hz := freq * (1 + 0.06*float64(w%3))
		start := w * perWord
		for n := range tone {
			env := 1.0
			if n < fade {
				env = float64(n) / float64(fade)
			} else if n > tone-fade {
				env = float64(tone-n) / float64(fade)
			}
			v := int(amp * env * math.Sin(2*math.Pi*hz*float64(n)/float64(f.SampleRate)))
			for c := range f.Channels {
				buf.Data[(start+n)*f.Channels+c] = v
			}
		}
	}
	return buf
}

// WordCount counts words, treating runs of CJK characters as words of
// cjkRunesPerWord characters.
func WordCount(s string) int {
	words := len(strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || isCJK(r)
	}))
	cjk := 0
	for _, r := range s {
		if isCJK(r) {
			cjk++
		}
	}
	words += (cjk + cjkRunesPerWord - 1) / cjkRunesPerWord
	if words == 0 && utf8.RuneCountInString(strings.TrimSpace(s)) > 0 {
		words = 1
	}
	return words
}

func isCJK(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul)
}
