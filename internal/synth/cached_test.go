package synth

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/kanada4310/tts-app/internal/cache"
	"github.com/kanada4310/tts-app/internal/segment"
)

// countingProvider returns short silences and counts calls.
type countingProvider struct {
	calls atomic.Int32
	err   error
}

func (p *countingProvider) Name() string { return "counting" }

func (p *countingProvider) Synthesize(_ context.Context, req Request) ([]segment.Source, error) {
	p.calls.Add(1)
	if p.err != nil {
		return nil, p.err
	}
	srcs := make([]segment.Source, len(req.Sentences))
	for i, s := range req.Sentences {
		srcs[i] = segment.Source{
			Text:     s,
			Audio:    segment.Silence(20*time.Millisecond, segment.DefaultFormat()),
			Duration: 20 * time.Millisecond,
		}
	}
	return srcs, nil
}

func newCached(inner Provider) (*Cached, *cache.MemoryCache) {
	mem := cache.NewMemoryCache(1 << 20)
	return NewCached(inner, cache.NewSegmentCache(mem), segment.DefaultFormat(), log.New(io.Discard)), mem
}

func TestCachedHitsAfterFirstCall(t *testing.T) {
	inner := &countingProvider{}
	c, _ := newCached(inner)
	ctx := context.Background()
	req := NewRequest("One. Two.", "mid")

	for i := range 3 {
		srcs, err := c.Synthesize(ctx, req)
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if len(srcs) != 2 {
			t.Fatalf("call %d: got %d segments", i, len(srcs))
		}
	}
	if n := inner.calls.Load(); n != 1 {
		t.Errorf("inner called %d times, want 1", n)
	}

	if _, err := c.Synthesize(ctx, NewRequest("One. Two.", "low")); err != nil {
		t.Fatal(err)
	}
	if n := inner.calls.Load(); n != 2 {
		t.Errorf("other voice: inner called %d times, want 2", n)
	}
}

func TestCachedRecoversFromCorruptEntry(t *testing.T) {
	inner := &countingProvider{}
	c, mem := newCached(inner)
	req := NewRequest("One.", "")

	key := cache.Key(req.Text, req.Sentences, inner.Name()+"/"+req.Voice, segment.DefaultFormat())
	_ = mem.Put(key, []byte("junk"))

	srcs, err := c.Synthesize(context.Background(), req)
	if err != nil || len(srcs) != 1 {
		t.Fatalf("Synthesize = %d, %v", len(srcs), err)
	}
	if inner.calls.Load() != 1 {
		t.Error("corrupt entry was served instead of resynthesizing")
	}
}

func TestCachedDoesNotStoreFailures(t *testing.T) {
	boom := errors.New("boom")
	inner := &countingProvider{err: boom}
	c, mem := newCached(inner)

	if _, err := c.Synthesize(context.Background(), NewRequest("One.", "")); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if mem.Size() != 0 {
		t.Error("failure was cached")
	}
}

func TestLimited(t *testing.T) {
	inner := &countingProvider{}
	l := NewLimited(inner, 60)
	req := NewRequest("One.", "")

	if _, err := l.Synthesize(context.Background(), req); err != nil {
		t.Fatalf("first call: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := l.Synthesize(ctx, req); err == nil {
		t.Error("second call within the limit window should fail on a short deadline")
	}
	if n := inner.calls.Load(); n != 1 {
		t.Errorf("inner called %d times, want 1", n)
	}
	if l.Name() != "counting" {
		t.Errorf("Name = %s", l.Name())
	}
}
