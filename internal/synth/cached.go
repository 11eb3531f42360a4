package synth

import (
	"context"
	"errors"

	"github.com/charmbracelet/log"

	"github.com/kanada4310/tts-app/internal/cache"
	"github.com/kanada4310/tts-app/internal/segment"
)

// Cached serves sentence sets from a segment cache and synthesizes only on
// a miss. Cache failures never fail synthesis.
type Cached struct {
	inner  Provider
	cache  *cache.SegmentCache
	format segment.Format
	logger *log.Logger
}

// NewCached wraps inner with c. format is part of the cache key.
func NewCached(inner Provider, c *cache.SegmentCache, format segment.Format, logger *log.Logger) *Cached {
	if logger == nil {
		logger = log.Default()
	}
	return &Cached{inner: inner, cache: c, format: format, logger: logger.WithPrefix("synth")}
}

// Name returns the wrapped provider's name.
func (c *Cached) Name() string { return c.inner.Name() }

// Synthesize returns the cached set for req or synthesizes and stores it.
func (c *Cached) Synthesize(ctx context.Context, req Request) ([]segment.Source, error) {
	key := cache.Key(req.Text, req.Sentences, c.inner.Name()+"/"+req.Voice, c.format)

	srcs, err := c.cache.Get(key)
	switch {
	case err == nil:
		if verr := Validate(req, srcs); verr == nil {
			c.logger.Debug("cache hit", "key", key[:12], "segments", len(srcs))
			return srcs, nil
		}
		c.logger.Warn("cached set does not match request", "key", key[:12])
	case errors.Is(err, cache.ErrCacheCorrupted):
		c.logger.Warn("dropped corrupted cache entry", "key", key[:12], "err", err)
	}

	srcs, err = c.inner.Synthesize(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := Validate(req, srcs); err != nil {
		return nil, err
	}
	if err := c.cache.Put(key, srcs); err != nil {
		c.logger.Warn("failed to cache segments", "key", key[:12], "err", err)
	}
	return srcs, nil
}
