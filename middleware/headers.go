package middleware

import (
	"context"
	nethttp "net/http"

	"github.com/gaborage/go-kintone/trace"
)

// DefaultUserAgent is sent when no other user agent is configured
const DefaultUserAgent = "go-kintone"

// HeaderLayer sets default headers on every request that does not already
// carry them.
type HeaderLayer struct {
	defaults nethttp.Header
}

// NewHeaderLayer creates a layer applying defaults.
func NewHeaderLayer(defaults nethttp.Header) *HeaderLayer {
	return &HeaderLayer{defaults: defaults.Clone()}
}

// NewUserAgentLayer sets the User-Agent header.
func NewUserAgentLayer(userAgent string) *HeaderLayer {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	h := make(nethttp.Header, 1)
	h.Set("User-Agent", userAgent)
	return NewHeaderLayer(h)
}

// Wrap implements Layer
func (l *HeaderLayer) Wrap(next Service) Service {
	return ServiceFunc(func(ctx context.Context, req *Request) (*Response, error) {
		missing := make(nethttp.Header)
		for key, values := range l.defaults {
			if req.HeaderValue(key) == "" {
				missing[key] = values
			}
		}
		if len(missing) > 0 {
			req = req.WithHeaders(missing)
		}
		return next.Do(ctx, req)
	})
}

// RequestIDLayer sets X-Request-ID, and an upstream traceparent found in the
// context, on every request.
type RequestIDLayer struct{}

// NewRequestIDLayer creates a correlation header layer
func NewRequestIDLayer() RequestIDLayer {
	return RequestIDLayer{}
}

// Wrap implements Layer
func (RequestIDLayer) Wrap(next Service) Service {
	return ServiceFunc(func(ctx context.Context, req *Request) (*Response, error) {
		if h := trace.Headers(ctx, req.Header()); len(h) > 0 {
			req = req.WithHeaders(h)
		}
		return next.Do(ctx, req)
	})
}
