// Package synth produces per-sentence audio for the segment store: an
// offline tone synthesizer, a directory of recorded WAV files, and
// decorators for caching and rate limiting.
package synth

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-audio/audio"

	"github.com/kanada4310/tts-app/internal/segment"
)

var (
	// ErrNoSentences is returned for a request without sentences.
	ErrNoSentences = errors.New("no sentences to synthesize")

	// ErrEmptyAudio is returned when a provider yields no audio for a
	// sentence.
	ErrEmptyAudio = errors.New("synthesized audio is empty")

	// ErrCountMismatch is returned when a provider yields a different
	// number of segments than sentences requested.
	ErrCountMismatch = errors.New("segment count does not match sentence count")
)

// Request asks for one audio segment per sentence.
type Request struct {
	// Text is the full source text. It only feeds cache keys.
	Text      string
	Sentences []string
	Voice     string
}

// Provider synthesizes sentences. The result holds one source per
// sentence, in order.
type Provider interface {
	Name() string
	Synthesize(ctx context.Context, req Request) ([]segment.Source, error)
}

// NewRequest splits text into sentences and builds a request.
func NewRequest(text, voice string) Request {
	return Request{Text: text, Sentences: SplitSentences(text), Voice: voice}
}

// Validate checks a provider result against the request.
func Validate(req Request, srcs []segment.Source) error {
	if len(srcs) != len(req.Sentences) {
		return fmt.Errorf("%w: got %d, want %d", ErrCountMismatch, len(srcs), len(req.Sentences))
	}
	for i, src := range srcs {
		if len(src.Audio) <= segment.HeaderSize {
			return fmt.Errorf("sentence %d: %w", i, ErrEmptyAudio)
		}
	}
	return nil
}

// pcmBytes packs an int buffer as little endian 16-bit PCM. Samples of
// other depths are rescaled.
func pcmBytes(buf *audio.IntBuffer) []byte {
	depth := buf.SourceBitDepth
	if depth == 0 {
		depth = 16
	}
	out := make([]byte, 2*len(buf.Data))
	for i, v := range buf.Data {
		s := rescale(v, depth)
		out[2*i] = byte(s)
		out[2*i+1] = byte(uint16(s) >> 8)
	}
	return out
}

func rescale(v, depth int) int16 {
	switch {
	case depth == 8:
		// 8-bit WAV is unsigned.
		return int16((v - 128) << 8)
	case depth > 16:
		return int16(v >> (depth - 16))
	default:
		return int16(v)
	}
}
