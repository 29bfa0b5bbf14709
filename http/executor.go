package http

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/gaborage/go-kintone/middleware"
)

const (
	// DefaultTimeout is the default per-attempt timeout
	DefaultTimeout = 30 * time.Second

	// HeaderIdempotencyKey carries Metadata.IdempotencyKey on the wire
	HeaderIdempotencyKey = "Idempotency-Key"

	apiPrefix = "/k"
)

// Executor is the terminal service of the pipeline. It performs exactly one
// HTTP exchange per call and never retries.
type Executor struct {
	httpClient           *nethttp.Client
	baseURL              string
	prefix               string
	defaultHeaders       map[string]string
	requestInterceptors  []RequestInterceptor
	responseInterceptors []ResponseInterceptor
	now                  func() time.Time
}

// Builder provides a fluent interface for configuring the executor
type Builder struct {
	config *Config
}

// NewBuilder creates a new executor builder for a kintone domain such as
// https://example.cybozu.com
func NewBuilder(baseURL string) *Builder {
	return &Builder{
		config: &Config{
			BaseURL:        baseURL,
			Timeout:        DefaultTimeout,
			DefaultHeaders: make(map[string]string),
		},
	}
}

// WithGuestSpace routes every request through /k/guest/{id}
func (b *Builder) WithGuestSpace(id int64) *Builder {
	b.config.GuestSpaceID = id
	return b
}

// WithTimeout sets the per-attempt timeout
func (b *Builder) WithTimeout(timeout time.Duration) *Builder {
	b.config.Timeout = timeout
	return b
}

// WithDefaultHeader adds a header sent with every request unless the request
// sets it
func (b *Builder) WithDefaultHeader(key, value string) *Builder {
	b.config.DefaultHeaders[key] = value
	return b
}

// WithRequestInterceptor adds a request interceptor
func (b *Builder) WithRequestInterceptor(interceptor RequestInterceptor) *Builder {
	b.config.RequestInterceptors = append(b.config.RequestInterceptors, interceptor)
	return b
}

// WithResponseInterceptor adds a response interceptor
func (b *Builder) WithResponseInterceptor(interceptor ResponseInterceptor) *Builder {
	b.config.ResponseInterceptors = append(b.config.ResponseInterceptors, interceptor)
	return b
}

// WithHTTPClient uses c as is. Transport, TLS and instrumentation options
// are ignored.
func (b *Builder) WithHTTPClient(c *nethttp.Client) *Builder {
	b.config.HTTPClient = c
	return b
}

// WithTransport sets the base round tripper
func (b *Builder) WithTransport(rt nethttp.RoundTripper) *Builder {
	b.config.Transport = rt
	return b
}

// WithClientCertificate enables mutual TLS with a PEM encoded certificate
// and key
func (b *Builder) WithClientCertificate(certPEM, keyPEM []byte) *Builder {
	b.config.ClientCertPEM = certPEM
	b.config.ClientKeyPEM = keyPEM
	return b
}

// WithRootCA trusts the PEM encoded certificates in addition to the system pool
func (b *Builder) WithRootCA(pem []byte) *Builder {
	b.config.RootCAPEM = pem
	return b
}

// WithInstrumentation wraps the transport with otelhttp. Nil providers use
// the global ones.
func (b *Builder) WithInstrumentation(tp trace.TracerProvider, mp metric.MeterProvider) *Builder {
	b.config.Instrumented = true
	b.config.TracerProvider = tp
	b.config.MeterProvider = mp
	return b
}

// Build creates the executor with the configured options
func (b *Builder) Build() (*Executor, error) {
	return New(b.config)
}

// New creates an executor from cfg
func New(cfg *Config) (*Executor, error) {
	base, err := normalizeBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		rt, err := buildTransport(cfg)
		if err != nil {
			return nil, err
		}
		httpClient = &nethttp.Client{
			Timeout:   cfg.Timeout,
			Transport: rt,
		}
	}

	prefix := apiPrefix
	if cfg.GuestSpaceID > 0 {
		prefix = apiPrefix + "/guest/" + strconv.FormatInt(cfg.GuestSpaceID, 10)
	}

	headers := make(map[string]string, len(cfg.DefaultHeaders))
	for k, v := range cfg.DefaultHeaders {
		headers[k] = v
	}

	return &Executor{
		httpClient:           httpClient,
		baseURL:              base,
		prefix:               prefix,
		defaultHeaders:       headers,
		requestInterceptors:  append([]RequestInterceptor(nil), cfg.RequestInterceptors...),
		responseInterceptors: append([]ResponseInterceptor(nil), cfg.ResponseInterceptors...),
		now:                  time.Now,
	}, nil
}

func normalizeBaseURL(raw string) (string, error) {
	if raw == "" {
		return "", errors.New("base URL is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid base URL %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid base URL %q: missing host", raw)
	}
	return strings.TrimRight(u.String(), "/"), nil
}

func buildTransport(cfg *Config) (nethttp.RoundTripper, error) {
	rt := cfg.Transport
	tlsConfig, err := buildTLSConfig(cfg)
	if err != nil {
		return nil, err
	}

	if rt == nil {
		t := nethttp.DefaultTransport.(*nethttp.Transport).Clone()
		if tlsConfig != nil {
			t.TLSClientConfig = tlsConfig
		}
		rt = t
	} else if tlsConfig != nil {
		t, ok := rt.(*nethttp.Transport)
		if !ok {
			return nil, errors.New("TLS options require an *http.Transport")
		}
		t = t.Clone()
		t.TLSClientConfig = tlsConfig
		rt = t
	}

	if cfg.Instrumented {
		var opts []otelhttp.Option
		if cfg.TracerProvider != nil {
			opts = append(opts, otelhttp.WithTracerProvider(cfg.TracerProvider))
		}
		if cfg.MeterProvider != nil {
			opts = append(opts, otelhttp.WithMeterProvider(cfg.MeterProvider))
		}
		opts = append(opts, otelhttp.WithSpanNameFormatter(func(_ string, r *nethttp.Request) string {
			return "HTTP " + r.Method + " " + r.URL.Path
		}))
		rt = otelhttp.NewTransport(rt, opts...)
	}
	return rt, nil
}

func buildTLSConfig(cfg *Config) (*tls.Config, error) {
	if len(cfg.ClientCertPEM) == 0 && len(cfg.ClientKeyPEM) == 0 && len(cfg.RootCAPEM) == 0 {
		return nil, nil
	}

	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if len(cfg.ClientCertPEM) > 0 || len(cfg.ClientKeyPEM) > 0 {
		cert, err := tls.X509KeyPair(cfg.ClientCertPEM, cfg.ClientKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("invalid client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	if len(cfg.RootCAPEM) > 0 {
		pool, err := x509.SystemCertPool()
		if err != nil || pool == nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(cfg.RootCAPEM) {
			return nil, errors.New("invalid root CA: no certificates found")
		}
		tlsConfig.RootCAs = pool
	}
	return tlsConfig, nil
}

// URL returns the absolute URL req is sent to
func (e *Executor) URL(req *middleware.Request) string {
	u := e.baseURL + e.prefix + req.Path()
	if q := encodeQuery(req.Query()); q != "" {
		u += "?" + q
	}
	return u
}

// encodeQuery keeps parameter order, which url.Values does not
func encodeQuery(params []middleware.QueryParam) string {
	var b strings.Builder
	for i, p := range params {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.Key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.Value))
	}
	return b.String()
}

// Do implements middleware.Service
func (e *Executor) Do(ctx context.Context, req *middleware.Request) (*middleware.Response, error) {
	start := e.now()

	httpReq, err := e.buildRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	httpResp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyError(ctx, err)
	}

	return e.buildResponse(ctx, start, httpReq, httpResp)
}

// buildRequest constructs an *http.Request, applies headers, and runs request interceptors.
func (e *Executor) buildRequest(ctx context.Context, req *middleware.Request) (*nethttp.Request, error) {
	var body io.Reader
	reqBody := req.Body()
	if !reqBody.IsZero() {
		r, err := reqBody.Open()
		if err != nil {
			return nil, middleware.NewTransportError("open request body", err, false)
		}
		body = r
	}

	httpReq, err := nethttp.NewRequestWithContext(ctx, req.Method(), e.URL(req), body)
	if err != nil {
		return nil, middleware.NewTransportError("create request", err, false)
	}
	if n := reqBody.Len(); n >= 0 && !reqBody.IsZero() {
		httpReq.ContentLength = int64(n)
	}

	e.applyHeaders(httpReq, req)

	for _, interceptor := range e.requestInterceptors {
		if err := interceptor(ctx, httpReq); err != nil {
			return nil, middleware.NewTransportError("request interceptor", err, false)
		}
	}
	return httpReq, nil
}

// applyHeaders applies default headers, then the request's own headers
func (e *Executor) applyHeaders(httpReq *nethttp.Request, req *middleware.Request) {
	for key, value := range e.defaultHeaders {
		httpReq.Header.Set(key, value)
	}
	for key, values := range req.Header() {
		httpReq.Header[key] = values
	}

	body := req.Body()
	if httpReq.Header.Get("Content-Type") == "" && !body.IsZero() && body.ContentType() != "" {
		httpReq.Header.Set("Content-Type", body.ContentType())
	}
	if key := req.Metadata().IdempotencyKey; key != "" && httpReq.Header.Get(HeaderIdempotencyKey) == "" {
		httpReq.Header.Set(HeaderIdempotencyKey, key)
	}
}

// buildResponse runs response interceptors, reads the body, and maps non-2xx
// statuses into application errors.
func (e *Executor) buildResponse(ctx context.Context, start time.Time, httpReq *nethttp.Request, httpResp *nethttp.Response) (*middleware.Response, error) {
	defer httpResp.Body.Close()

	for _, interceptor := range e.responseInterceptors {
		if err := interceptor(ctx, httpReq, httpResp); err != nil {
			return nil, middleware.NewTransportError("response interceptor", err, false)
		}
	}

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, classifyError(ctx, err)
	}

	if !middleware.IsSuccessStatus(httpResp.StatusCode) {
		retryAfter := parseRetryAfter(httpResp.Header.Get("Retry-After"), e.now())
		return nil, middleware.NewApplicationError(httpResp.StatusCode, respBody, retryAfter)
	}

	return &middleware.Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       respBody,
		Elapsed:    e.now().Sub(start),
	}, nil
}
