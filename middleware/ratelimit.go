package middleware

import (
	"context"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// RateLimitLayer paces outgoing requests with a token bucket shared by all
// calls through the layer. Each attempt waits for its own token.
type RateLimitLayer struct {
	limiter *rate.Limiter
}

// NewRateLimitLayer allows requestsPerSecond with the given burst. A
// non-positive rate disables limiting.
func NewRateLimitLayer(requestsPerSecond float64, burst int) *RateLimitLayer {
	if requestsPerSecond <= 0 {
		return &RateLimitLayer{}
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimitLayer{limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst)}
}

// Wrap implements Layer
func (l *RateLimitLayer) Wrap(next Service) Service {
	if l.limiter == nil {
		return next
	}
	return ServiceFunc(func(ctx context.Context, req *Request) (*Response, error) {
		if err := l.limiter.Wait(ctx); err != nil {
			return nil, NewTransportError("rate limit wait", err, false)
		}
		return next.Do(ctx, req)
	})
}

// ConcurrencyLayer bounds the number of requests in flight. kintone rejects
// more than 100 concurrent requests per domain.
type ConcurrencyLayer struct {
	sem *semaphore.Weighted
}

// NewConcurrencyLayer allows at most limit requests in flight. A
// non-positive limit disables the bound.
func NewConcurrencyLayer(limit int) *ConcurrencyLayer {
	if limit <= 0 {
		return &ConcurrencyLayer{}
	}
	return &ConcurrencyLayer{sem: semaphore.NewWeighted(int64(limit))}
}

// Wrap implements Layer
func (l *ConcurrencyLayer) Wrap(next Service) Service {
	if l.sem == nil {
		return next
	}
	return ServiceFunc(func(ctx context.Context, req *Request) (*Response, error) {
		if err := l.sem.Acquire(ctx, 1); err != nil {
			return nil, NewTransportError("acquire concurrency slot", err, false)
		}
		defer l.sem.Release(1)
		return next.Do(ctx, req)
	})
}
