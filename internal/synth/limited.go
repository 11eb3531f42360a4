package synth

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/kanada4310/tts-app/internal/segment"
)

// DefaultRequestsPerMinute is a conservative limit for remote providers.
const DefaultRequestsPerMinute = 50

// Limited rate limits calls into a provider.
type Limited struct {
	inner   Provider
	limiter *rate.Limiter
}

// NewLimited allows perMinute synthesize calls per minute, with a burst of
// one. A non-positive perMinute uses DefaultRequestsPerMinute.
func NewLimited(inner Provider, perMinute int) *Limited {
	if perMinute <= 0 {
		perMinute = DefaultRequestsPerMinute
	}
	return &Limited{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
	}
}

// Name returns the wrapped provider's name.
func (l *Limited) Name() string { return l.inner.Name() }

// Synthesize waits for the limiter, then calls the wrapped provider.
func (l *Limited) Synthesize(ctx context.Context, req Request) ([]segment.Source, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait cancelled: %w", err)
	}
	return l.inner.Synthesize(ctx, req)
}
