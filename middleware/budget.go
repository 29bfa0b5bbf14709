package middleware

import (
	"sync"
	"time"
)

// RetryBudget caps the number of retries across all calls sharing it within
// a sliding window. Safe for concurrent use.
type RetryBudget struct {
	mu          sync.Mutex
	maxRetries  int
	window      time.Duration
	used        int
	windowStart time.Time
	now         func() time.Time
}

// NewRetryBudget allows at most maxRetries retries per window.
func NewRetryBudget(maxRetries int, window time.Duration) *RetryBudget {
	return &RetryBudget{
		maxRetries:  maxRetries,
		window:      window,
		windowStart: time.Now(),
		now:         time.Now,
	}
}

// Allow consumes one retry from the budget if any remain.
func (rb *RetryBudget) Allow() bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	now := rb.now()
	if now.Sub(rb.windowStart) >= rb.window {
		rb.windowStart = now
		rb.used = 0
	}
	if rb.used >= rb.maxRetries {
		return false
	}
	rb.used++
	return true
}

// Stats returns the retries used in the current window and the cap.
func (rb *RetryBudget) Stats() (used, maxRetries int) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.used, rb.maxRetries
}
