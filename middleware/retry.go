package middleware

import (
	"context"
	"errors"
	"time"
)

const (
	// DefaultMaxAttempts is the default number of attempts including the first
	DefaultMaxAttempts = 3

	// DefaultBaseDelay is the delay before the second attempt
	DefaultBaseDelay = 200 * time.Millisecond

	// DefaultMultiplier grows the delay between consecutive attempts
	DefaultMultiplier = 2.0

	// DefaultMaxDelay caps a single backoff sleep
	DefaultMaxDelay = 5 * time.Second

	// DefaultJitter is the randomized fraction applied to each delay
	DefaultJitter = 0.2
)

// RetryConfig configures the retry layer.
type RetryConfig struct {
	MaxAttempts       int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	Multiplier        float64
	Jitter            float64
	RespectRetryAfter bool
	// Budget is shared by every call using this layer. Optional.
	Budget *RetryBudget
	// ShouldRetry narrows the default classification. It is only consulted
	// for failures that are already retry-eligible.
	ShouldRetry func(req *Request, out Outcome, err error) bool
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       DefaultMaxAttempts,
		BaseDelay:         DefaultBaseDelay,
		MaxDelay:          DefaultMaxDelay,
		Multiplier:        DefaultMultiplier,
		Jitter:            DefaultJitter,
		RespectRetryAfter: true,
	}
}

// RetryLayer re-attempts retry-eligible failures of retry-safe requests
// with exponential backoff.
type RetryLayer struct {
	cfg     RetryConfig
	backoff Backoff
	sleep   func(ctx context.Context, d time.Duration) error
	now     func() time.Time
}

// NewRetryLayer creates a retry layer. MaxAttempts below 1 is treated as 1.
func NewRetryLayer(cfg RetryConfig) *RetryLayer {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &RetryLayer{
		cfg: cfg,
		backoff: Backoff{
			Base:       cfg.BaseDelay,
			Max:        cfg.MaxDelay,
			Multiplier: cfg.Multiplier,
			Jitter:     cfg.Jitter,
		},
		sleep: sleepContext,
		now:   time.Now,
	}
}

// Wrap implements Layer
func (l *RetryLayer) Wrap(next Service) Service {
	return ServiceFunc(func(ctx context.Context, req *Request) (*Response, error) {
		return l.do(ctx, next, req)
	})
}

func (l *RetryLayer) do(ctx context.Context, next Service, req *Request) (*Response, error) {
	for attempt := 1; ; attempt++ {
		resp, err := next.Do(ctx, req)
		if err == nil {
			if resp != nil {
				resp.Attempts = attempt
			}
			return resp, nil
		}

		delay, ok := l.nextDelay(ctx, req, attempt, err)
		if !ok {
			return nil, annotate(err, attempt)
		}
		if sleepErr := l.sleep(ctx, delay); sleepErr != nil {
			return nil, annotate(err, attempt)
		}
	}
}

// nextDelay decides whether another attempt is allowed and how long to wait.
func (l *RetryLayer) nextDelay(ctx context.Context, req *Request, attempt int, err error) (time.Duration, bool) {
	if attempt >= l.cfg.MaxAttempts {
		return 0, false
	}
	out := OutcomeOf(nil, err)
	if !out.Retryable || !req.RetrySafe() || !req.Replayable() {
		return 0, false
	}
	if l.cfg.ShouldRetry != nil && !l.cfg.ShouldRetry(req, out, err) {
		return 0, false
	}
	if ctx.Err() != nil {
		return 0, false
	}

	delay := l.backoff.Delay(attempt + 1)
	if l.cfg.RespectRetryAfter {
		var appErr *ApplicationError
		if errors.As(err, &appErr) && appErr.RetryAfter > delay {
			delay = appErr.RetryAfter
			if l.cfg.MaxDelay > 0 && delay > l.cfg.MaxDelay {
				delay = l.cfg.MaxDelay
			}
		}
	}

	if deadline := req.Metadata().Deadline; !deadline.IsZero() && l.now().Add(delay).After(deadline) {
		return 0, false
	}
	if ctxDeadline, ok := ctx.Deadline(); ok && l.now().Add(delay).After(ctxDeadline) {
		return 0, false
	}
	if l.cfg.Budget != nil && !l.cfg.Budget.Allow() {
		return 0, false
	}
	return delay, true
}

func annotate(err error, attempts int) error {
	return &AttemptsError{Attempts: attempts, Err: err}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
