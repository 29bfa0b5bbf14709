package observability

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultShutdownTimeout bounds Shutdown when no timeout is given.
const DefaultShutdownTimeout = 10 * time.Second

// Shutdown flushes pending spans and metrics, then stops p. Short lived
// processes such as the kintone command call it before exiting so the last
// calls are exported. A nil provider is ignored.
func Shutdown(p Provider, timeout time.Duration) error {
	if p == nil {
		return nil
	}
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	flushErr := p.ForceFlush(ctx)
	if err := errors.Join(flushErr, p.Shutdown(ctx)); err != nil {
		return fmt.Errorf("observability shutdown failed: %w", err)
	}
	return nil
}

// MustShutdown is Shutdown for deferred cleanup in tests. It panics on error.
func MustShutdown(p Provider, timeout time.Duration) {
	if err := Shutdown(p, timeout); err != nil {
		panic(err)
	}
}
