package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/kanada4310/tts-app/internal/segment"
)

// setVersion changes whenever the encoded layout does.
const setVersion = 1

// Key derives the cache key of a synthesized sentence set. Text is
// normalized to NFC so that equal sentences typed differently share an
// entry.
func Key(text string, sentences []string, voice string, f segment.Format) string {
	h := sha256.New()
	write := func(s string) {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	write(norm.NFC.String(text))
	write(strconv.Itoa(len(sentences)))
	for _, s := range sentences {
		write(norm.NFC.String(s))
	}
	write(voice)
	write(fmt.Sprintf("%d/%d/%d", f.SampleRate, f.Channels, f.BitDepth))
	return hex.EncodeToString(h.Sum(nil))
}

type encodedSet struct {
	Version int
	Sources []encodedSource
}

type encodedSource struct {
	Text     string
	Audio    []byte
	Duration time.Duration
}

// SegmentCache stores whole sentence sets in a byte cache.
type SegmentCache struct {
	store Cache
}

// NewSegmentCache stores sets in c.
func NewSegmentCache(c Cache) *SegmentCache {
	return &SegmentCache{store: c}
}

// Get returns the set stored under key, ErrCacheMiss when there is none, or
// ErrCacheCorrupted when the stored bytes cannot be decoded. Corrupted
// entries are deleted.
func (sc *SegmentCache) Get(key string) ([]segment.Source, error) {
	data, ok := sc.store.Get(key)
	if !ok {
		return nil, ErrCacheMiss
	}

	var set encodedSet
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&set); err != nil || set.Version != setVersion {
		_ = sc.store.Delete(key)
		if err == nil {
			err = fmt.Errorf("version %d", set.Version)
		}
		return nil, fmt.Errorf("%w: %w", ErrCacheCorrupted, err)
	}

	srcs := make([]segment.Source, len(set.Sources))
	for i, s := range set.Sources {
		srcs[i] = segment.Source{Text: s.Text, Audio: s.Audio, Duration: s.Duration}
	}
	return srcs, nil
}

// Put stores srcs under key.
func (sc *SegmentCache) Put(key string, srcs []segment.Source) error {
	set := encodedSet{Version: setVersion, Sources: make([]encodedSource, len(srcs))}
	for i, s := range srcs {
		set.Sources[i] = encodedSource{Text: s.Text, Audio: s.Audio, Duration: s.Duration}
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(set); err != nil {
		return fmt.Errorf("failed to encode segment set: %w", err)
	}
	return sc.store.Put(key, buf.Bytes())
}
