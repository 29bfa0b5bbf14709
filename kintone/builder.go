package kintone

import (
	"fmt"
	nethttp "net/http"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/gaborage/go-kintone/config"
	khttp "github.com/gaborage/go-kintone/http"
	"github.com/gaborage/go-kintone/logger"
	"github.com/gaborage/go-kintone/middleware"
)

// DefaultMaxConcurrency is kintone's per-domain limit on simultaneous requests.
const DefaultMaxConcurrency = 100

// Builder provides a fluent API for constructing a Client. The layer order
// is fixed, outermost first:
//
//	user layers, tracing, request ID, metrics, retry, logging,
//	rate limit, concurrency, dedup, auth, user agent, executor
//
// Logging sits inside retry so every attempt is recorded, and outside auth
// so credential headers never reach it.
type Builder struct {
	baseURL      string
	creds        middleware.Credentials
	guestSpaceID int64
	userAgent    string
	timeout      time.Duration

	retry        *middleware.RetryConfig
	log          logger.Logger
	logOptions   []middleware.LoggingOption
	rps          float64
	burst        int
	concurrency  int
	requestID    bool
	dedup        bool
	tracer       trace.TracerProvider
	meter        metric.MeterProvider
	instrumented bool
	layers       []middleware.Layer

	httpClient *nethttp.Client
	transport  nethttp.RoundTripper
	certPEM    []byte
	keyPEM     []byte
	rootCAPEM  []byte
}

// NewBuilder creates a client builder with default retry, logging and
// concurrency settings.
func NewBuilder(baseURL string, creds middleware.Credentials) *Builder {
	retry := middleware.DefaultRetryConfig()
	return &Builder{
		baseURL:     baseURL,
		creds:       creds,
		userAgent:   middleware.DefaultUserAgent,
		timeout:     khttp.DefaultTimeout,
		retry:       &retry,
		log:         logger.Nop(),
		concurrency: DefaultMaxConcurrency,
		requestID:   true,
	}
}

// WithGuestSpace routes every request under /k/guest/{id}.
func (b *Builder) WithGuestSpace(id int64) *Builder {
	b.guestSpaceID = id
	return b
}

// WithUserAgent sets the User-Agent header.
func (b *Builder) WithUserAgent(ua string) *Builder {
	b.userAgent = ua
	return b
}

// WithTimeout sets the per-attempt HTTP timeout.
func (b *Builder) WithTimeout(d time.Duration) *Builder {
	b.timeout = d
	return b
}

// WithRetry replaces the retry configuration.
func (b *Builder) WithRetry(cfg middleware.RetryConfig) *Builder {
	b.retry = &cfg
	return b
}

// WithoutRetry removes the retry layer.
func (b *Builder) WithoutRetry() *Builder {
	b.retry = nil
	return b
}

// WithLogger sets the logger used by the logging layer.
func (b *Builder) WithLogger(l logger.Logger, opts ...middleware.LoggingOption) *Builder {
	if l != nil {
		b.log = l
	}
	b.logOptions = append(b.logOptions, opts...)
	return b
}

// WithRateLimit limits outgoing requests per second. Zero disables it.
func (b *Builder) WithRateLimit(rps float64, burst int) *Builder {
	b.rps = rps
	b.burst = burst
	return b
}

// WithMaxConcurrency bounds in-flight requests. Zero removes the bound.
func (b *Builder) WithMaxConcurrency(n int) *Builder {
	b.concurrency = n
	return b
}

// WithRequestID toggles the X-Request-ID layer.
func (b *Builder) WithRequestID(enabled bool) *Builder {
	b.requestID = enabled
	return b
}

// WithDedup coalesces identical concurrent GET requests.
func (b *Builder) WithDedup() *Builder {
	b.dedup = true
	return b
}

// WithTracing adds a span per logical call and instruments the transport.
func (b *Builder) WithTracing(tp trace.TracerProvider) *Builder {
	b.tracer = tp
	b.instrumented = true
	return b
}

// WithMetrics records request counts and durations.
func (b *Builder) WithMetrics(mp metric.MeterProvider) *Builder {
	b.meter = mp
	b.instrumented = true
	return b
}

// WithLayer appends a user layer. User layers are outermost, in call order.
func (b *Builder) WithLayer(l middleware.Layer) *Builder {
	if l != nil {
		b.layers = append(b.layers, l)
	}
	return b
}

// WithHTTPClient replaces the underlying *http.Client.
func (b *Builder) WithHTTPClient(c *nethttp.Client) *Builder {
	b.httpClient = c
	return b
}

// WithTransport replaces the base round tripper.
func (b *Builder) WithTransport(rt nethttp.RoundTripper) *Builder {
	b.transport = rt
	return b
}

// WithClientCertificate enables mutual TLS.
func (b *Builder) WithClientCertificate(certPEM, keyPEM []byte) *Builder {
	b.certPEM = certPEM
	b.keyPEM = keyPEM
	return b
}

// WithRootCA trusts an additional CA bundle.
func (b *Builder) WithRootCA(pem []byte) *Builder {
	b.rootCAPEM = pem
	return b
}

// Build composes the pipeline. It fails on an invalid base URL, missing
// credentials or unusable TLS material.
func (b *Builder) Build() (*Client, error) {
	if b.creds == nil {
		return nil, middleware.ErrNoCredentials
	}

	eb := khttp.NewBuilder(b.baseURL).
		WithGuestSpace(b.guestSpaceID).
		WithTimeout(b.timeout).
		WithHTTPClient(b.httpClient).
		WithTransport(b.transport).
		WithRootCA(b.rootCAPEM)
	if len(b.certPEM) > 0 || len(b.keyPEM) > 0 {
		eb = eb.WithClientCertificate(b.certPEM, b.keyPEM)
	}
	if b.instrumented {
		eb = eb.WithInstrumentation(b.tracer, b.meter)
	}

	executor, err := eb.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build executor: %w", err)
	}

	layers, err := b.composeLayers()
	if err != nil {
		return nil, err
	}

	return &Client{
		pipeline:     middleware.NewPipeline(executor, layers...),
		executor:     executor,
		log:          b.log,
		guestSpaceID: b.guestSpaceID,
	}, nil
}

func (b *Builder) composeLayers() ([]middleware.Layer, error) {
	layers := append([]middleware.Layer{}, b.layers...)

	if b.tracer != nil {
		layers = append(layers, middleware.NewTracingLayer(b.tracer))
	}
	if b.requestID {
		layers = append(layers, middleware.NewRequestIDLayer())
	}
	if b.meter != nil {
		ml, err := middleware.NewMetricsLayer(b.meter)
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics layer: %w", err)
		}
		layers = append(layers, ml)
	}
	if b.retry != nil {
		layers = append(layers, middleware.NewRetryLayer(*b.retry))
	}
	layers = append(layers, middleware.NewLoggingLayer(b.log, b.logOptions...))
	if b.rps > 0 {
		layers = append(layers, middleware.NewRateLimitLayer(b.rps, b.burst))
	}
	if b.concurrency > 0 {
		layers = append(layers, middleware.NewConcurrencyLayer(b.concurrency))
	}
	if b.dedup {
		layers = append(layers, middleware.NewDedupLayer())
	}
	layers = append(layers,
		middleware.NewAuthLayer(b.creds),
		middleware.NewUserAgentLayer(b.userAgent),
	)
	return layers, nil
}

// NewFromConfig builds a client from loaded configuration. A nil logger
// uses the one described by cfg.Log.
func NewFromConfig(cfg *config.Config, log logger.Logger) (*Client, error) {
	b, err := BuilderFromConfig(cfg, log)
	if err != nil {
		return nil, err
	}
	return b.Build()
}

// BuilderFromConfig prepares a builder from loaded configuration so callers
// can add layers or instrumentation before Build.
func BuilderFromConfig(cfg *config.Config, log logger.Logger) (*Builder, error) {
	if cfg == nil {
		return nil, fmt.Errorf("kintone: nil config")
	}
	if log == nil {
		log = cfg.Log.Logger()
	}

	b := NewBuilder(cfg.BaseURL, CredentialsFromConfig(&cfg.Auth)).
		WithGuestSpace(cfg.GuestSpaceID).
		WithUserAgent(cfg.UserAgent).
		WithTimeout(cfg.Timeout).
		WithRateLimit(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst).
		WithMaxConcurrency(cfg.RateLimit.MaxConcurrency)

	var logOpts []middleware.LoggingOption
	if cfg.Log.Headers {
		logOpts = append(logOpts, middleware.WithHeaderLogging())
	}
	if cfg.Log.ErrorBodyLimit > 0 {
		logOpts = append(logOpts, middleware.WithErrorBodyLogging(cfg.Log.ErrorBodyLimit))
	}
	b.WithLogger(log, logOpts...)

	if cfg.Retry.Enabled {
		b.WithRetry(RetryConfigFromConfig(&cfg.Retry))
	} else {
		b.WithoutRetry()
	}
	if cfg.RateLimit.Dedup {
		b.WithDedup()
	}

	certPEM, keyPEM, caPEM, err := cfg.TLS.Material()
	switch {
	case config.IsNotConfigured(err):
	case err != nil:
		return nil, fmt.Errorf("failed to load tls material: %w", err)
	default:
		b.WithClientCertificate(certPEM, keyPEM).WithRootCA(caPEM)
	}

	return b, nil
}

// CredentialsFromConfig maps configured credentials to middleware credentials.
// API tokens and password authentication may be combined with proxy basic auth.
func CredentialsFromConfig(cfg *config.AuthConfig) middleware.Credentials {
	var creds []middleware.Credentials
	if len(cfg.APITokens) > 0 {
		creds = append(creds, middleware.APITokens(cfg.APITokens...))
	}
	if cfg.Username != "" {
		creds = append(creds, middleware.Password(cfg.Username, cfg.Password))
	}
	if cfg.BasicUsername != "" {
		creds = append(creds, middleware.BasicAuth(cfg.BasicUsername, cfg.BasicPassword))
	}
	if len(creds) == 1 {
		return creds[0]
	}
	return middleware.CombineCredentials(creds...)
}

// RetryConfigFromConfig maps the retry section to a layer configuration.
func RetryConfigFromConfig(cfg *config.RetryConfig) middleware.RetryConfig {
	rc := middleware.RetryConfig{
		MaxAttempts:       cfg.MaxAttempts,
		BaseDelay:         cfg.BaseDelay,
		MaxDelay:          cfg.MaxDelay,
		Multiplier:        cfg.Multiplier,
		Jitter:            cfg.Jitter,
		RespectRetryAfter: cfg.RespectRetryAfter,
	}
	if cfg.Budget > 0 {
		rc.Budget = middleware.NewRetryBudget(cfg.Budget, cfg.BudgetWindow)
	}
	return rc
}
