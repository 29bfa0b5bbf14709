// Package trace carries request correlation identifiers through a context
// and onto outgoing kintone requests.
package trace

import (
	"context"
	crand "crypto/rand"
	"encoding/hex"
	nethttp "net/http"

	"github.com/google/uuid"
)

type contextKey string

const (
	requestIDKey   contextKey = "request_id"
	traceParentKey contextKey = "traceparent"

	// HeaderXRequestID correlates a client call with server-side logs
	HeaderXRequestID = "X-Request-ID"
	// HeaderTraceParent is the W3C trace context header name
	HeaderTraceParent = "traceparent"
)

// WithRequestID stores a request ID in the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request ID stored in ctx, if any
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if id, ok := ctx.Value(requestIDKey).(string); ok && id != "" {
		return id, true
	}
	return "", false
}

// EnsureRequestID returns the request ID from ctx or a new UUID
func EnsureRequestID(ctx context.Context) string {
	if id, ok := RequestIDFromContext(ctx); ok {
		return id
	}
	return uuid.NewString()
}

// WithTraceParent stores an upstream W3C traceparent value in the context
func WithTraceParent(ctx context.Context, traceParent string) context.Context {
	return context.WithValue(ctx, traceParentKey, traceParent)
}

// ParentFromContext returns the traceparent stored in ctx, if any
func ParentFromContext(ctx context.Context) (string, bool) {
	if tp, ok := ctx.Value(traceParentKey).(string); ok && tp != "" {
		return tp, true
	}
	return "", false
}

// Headers returns the correlation headers for an outgoing request. The
// traceparent is only included when existing does not already carry one,
// so an OpenTelemetry propagator always wins.
func Headers(ctx context.Context, existing nethttp.Header) nethttp.Header {
	h := make(nethttp.Header, 2)
	if existing.Get(HeaderXRequestID) == "" {
		h.Set(HeaderXRequestID, EnsureRequestID(ctx))
	}
	if existing.Get(HeaderTraceParent) == "" {
		if tp, ok := ParentFromContext(ctx); ok {
			h.Set(HeaderTraceParent, tp)
		}
	}
	return h
}

// GenerateTraceParent creates a sampled W3C traceparent value:
// "00-<32 hex trace id>-<16 hex span id>-01".
func GenerateTraceParent() string {
	return "00-" + randomHex(16) + "-" + randomHex(8) + "-01"
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := crand.Read(b); err != nil {
		b = make([]byte, n)
	}
	// all-zero ids are invalid
	zero := true
	for _, v := range b {
		if v != 0 {
			zero = false
			break
		}
	}
	if zero {
		b[n-1] = 0x01
	}
	return hex.EncodeToString(b)
}
