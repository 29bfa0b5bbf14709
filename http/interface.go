package http

import (
	"context"
	nethttp "net/http"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// RequestInterceptor is called before sending the request
type RequestInterceptor func(ctx context.Context, req *nethttp.Request) error

// ResponseInterceptor is called after receiving the response, before the
// body is read
type ResponseInterceptor func(ctx context.Context, req *nethttp.Request, resp *nethttp.Response) error

// Config holds the executor configuration
type Config struct {
	BaseURL              string
	GuestSpaceID         int64
	Timeout              time.Duration
	DefaultHeaders       map[string]string
	RequestInterceptors  []RequestInterceptor
	ResponseInterceptors []ResponseInterceptor

	// HTTPClient replaces the client built from the transport options.
	HTTPClient *nethttp.Client
	// Transport is the base round tripper. Defaults to a clone of
	// http.DefaultTransport.
	Transport nethttp.RoundTripper

	ClientCertPEM []byte
	ClientKeyPEM  []byte
	RootCAPEM     []byte

	// Instrumented wraps the transport with otelhttp.
	Instrumented   bool
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}
