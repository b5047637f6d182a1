package llm

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Limiter implements per-provider rate limiting
type Limiter struct {
	limiters     map[string]*rate.Limiter
	mu           sync.RWMutex
	defaultRate  rate.Limit
	defaultBurst int
}

// NewLimiter creates a new rate limiter. A non-positive rate means unlimited.
func NewLimiter(requestsPerSecond float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 1
	}

	limit := rate.Limit(requestsPerSecond)
	if requestsPerSecond <= 0 {
		limit = rate.Inf
	}

	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  limit,
		defaultBurst: burst,
	}
}

// Wait blocks until the key is allowed another call
func (l *Limiter) Wait(ctx context.Context, key string) error {
	return l.getLimiter(key).Wait(ctx)
}

// Allow checks if a call is allowed without waiting
func (l *Limiter) Allow(key string) bool {
	return l.getLimiter(key).Allow()
}

func (l *Limiter) getLimiter(key string) *rate.Limiter {
	l.mu.RLock()
	limiter, exists := l.limiters[key]
	l.mu.RUnlock()

	if exists {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Double-check after acquiring write lock
	if limiter, exists := l.limiters[key]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
	l.limiters[key] = limiter

	return limiter
}

// SetRate sets a custom rate limit for a specific key
func (l *Limiter) SetRate(key string, requestsPerSecond float64, burst int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if burst <= 0 {
		burst = l.defaultBurst
	}

	l.limiters[key] = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
}

// Limited serializes access to a generator. Local checkpoints are not safe for
// concurrent generation, so batch workers share one Limited instance.
type Limited struct {
	inner   Generator
	sem     *semaphore.Weighted
	limiter *Limiter
}

// NewLimited wraps gen with a concurrency cap and a rate limit.
// Zero disables the corresponding limit.
func NewLimited(gen Generator, maxConcurrent int, requestsPerSecond float64) *Limited {
	l := &Limited{inner: gen}
	if maxConcurrent > 0 {
		l.sem = semaphore.NewWeighted(int64(maxConcurrent))
	}
	if requestsPerSecond > 0 {
		l.limiter = NewLimiter(requestsPerSecond, 1)
	}
	return l
}

// Name returns the wrapped provider name
func (l *Limited) Name() string {
	return l.inner.Name()
}

// IsAvailable delegates to the wrapped generator
func (l *Limited) IsAvailable(ctx context.Context) bool {
	return l.inner.IsAvailable(ctx)
}

// Unwrap returns the wrapped generator
func (l *Limited) Unwrap() Generator {
	return l.inner
}

// Generate waits for a rate token and a concurrency slot, then delegates
func (l *Limited) Generate(ctx context.Context, req Request) (string, error) {
	if l.limiter != nil {
		if err := l.limiter.Wait(ctx, l.inner.Name()); err != nil {
			return "", eris.Wrap(err, "llm: rate limit wait")
		}
	}
	if l.sem != nil {
		if err := l.sem.Acquire(ctx, 1); err != nil {
			return "", eris.Wrap(err, "llm: acquire generation slot")
		}
		defer l.sem.Release(1)
	}
	return l.inner.Generate(ctx, req)
}
