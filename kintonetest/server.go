// Package kintonetest provides an in-process fake kintone server for tests.
// It implements the endpoints covered by this module against an in-memory
// store, records every request, and can inject failures.
//
// Query conditions are not evaluated. GET records honors only the
// "limit N offset M" clause and returns records ordered by id.
package kintonetest

import (
	"bytes"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "kintonetest"

// Request is a recorded request as it reached the server.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

// Option configures a Server.
type Option func(*Server)

// WithAPIToken accepts token in X-Cybozu-API-Token.
func WithAPIToken(tokens ...string) Option {
	return func(s *Server) {
		for _, t := range tokens {
			s.tokens[t] = struct{}{}
		}
	}
}

// WithPassword accepts username and password in X-Cybozu-Authorization.
func WithPassword(username, password string) Option {
	return func(s *Server) {
		s.users[username] = password
	}
}

// WithTracerProvider traces incoming requests with otelecho.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Server) {
		s.tracer = tp
	}
}

// WithRateLimit answers 429 once more than rps requests per second arrive.
func WithRateLimit(rps int) Option {
	return func(s *Server) {
		s.rps = rps
	}
}

// WithDeployPolls keeps deployments PROCESSING for n status reads.
func WithDeployPolls(n int) Option {
	return func(s *Server) {
		s.deployPolls = n
	}
}

// Server is a fake kintone server listening on a local port.
type Server struct {
	echo        *echo.Echo
	ts          *httptest.Server
	tokens      map[string]struct{}
	users       map[string]string
	tracer      trace.TracerProvider
	rps         int
	deployPolls int

	mu       sync.Mutex
	requests []Request
	faults   []fault
	store    *store
}

type fault struct {
	status     int
	code       string
	retryAfter string
}

// New starts a server and closes it when t finishes. Without credential
// options any request carrying an API token or password header is accepted.
func New(t testing.TB, opts ...Option) *Server {
	t.Helper()
	s := NewServer(opts...)
	t.Cleanup(s.Close)
	return s
}

// NewServer starts a server. The caller must Close it.
func NewServer(opts ...Option) *Server {
	s := &Server{
		tokens: make(map[string]struct{}),
		users:  make(map[string]string),
		store:  newStore(),
	}
	for _, opt := range opts {
		opt(s)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler

	if s.tracer != nil {
		e.Use(otelecho.Middleware(serviceName, otelecho.WithTracerProvider(s.tracer)))
	}
	e.Use(middleware.Recover())
	e.Use(s.record())
	if s.rps > 0 {
		e.Use(RateLimit(s.rps))
	}
	e.Use(s.inject())
	e.Use(s.authenticate())

	s.routes(e.Group("/k"))
	s.routes(e.Group("/k/guest/:guest"))

	s.echo = e
	s.ts = httptest.NewServer(e)
	return s
}

// URL returns the base URL to configure a client with.
func (s *Server) URL() string {
	return s.ts.URL
}

// Client returns an HTTP client for the server.
func (s *Server) Client() *http.Client {
	return s.ts.Client()
}

// Close stops the server.
func (s *Server) Close() {
	s.ts.Close()
}

// FailNext makes the next n requests fail with status and kintone error code.
func (s *Server) FailNext(n, status int, code string) {
	s.failNext(n, fault{status: status, code: code})
}

// ThrottleNext makes the next n requests fail with 429 and a Retry-After
// header of seconds.
func (s *Server) ThrottleNext(n, seconds int) {
	s.failNext(n, fault{
		status:     http.StatusTooManyRequests,
		code:       "GAIA_TM12",
		retryAfter: strconv.Itoa(seconds),
	})
}

func (s *Server) failNext(n int, f fault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for range n {
		s.faults = append(s.faults, f)
	}
}

// Requests returns the recorded requests in arrival order.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.requests)
}

// RequestCount returns how many requests reached path, e.g. "/k/v1/record.json".
func (s *Server) RequestCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.requests {
		if r.Path == path {
			n++
		}
	}
	return n
}

// Reset forgets recorded requests and pending faults.
func (s *Server) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = nil
	s.faults = nil
}

func (s *Server) record() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			body, err := io.ReadAll(req.Body)
			if err != nil {
				return newError(http.StatusBadRequest, codeInvalidInput, "unreadable body")
			}
			req.Body = io.NopCloser(bytes.NewReader(body))

			s.mu.Lock()
			s.requests = append(s.requests, Request{
				Method: req.Method,
				Path:   req.URL.Path,
				Query:  req.URL.Query(),
				Header: req.Header.Clone(),
				Body:   body,
			})
			s.mu.Unlock()
			return next(c)
		}
	}
}

func (s *Server) inject() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			s.mu.Lock()
			var f *fault
			if len(s.faults) > 0 {
				f = &s.faults[0]
				s.faults = s.faults[1:]
			}
			s.mu.Unlock()

			if f == nil {
				return next(c)
			}
			if f.retryAfter != "" {
				c.Response().Header().Set("Retry-After", f.retryAfter)
			}
			return newError(f.status, f.code, "injected failure")
		}
	}
}

func (s *Server) authenticate() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if s.authorized(c.Request().Header) {
				return next(c)
			}
			return newError(http.StatusUnauthorized, codeUnauthorized, "authentication failed")
		}
	}
}

func (s *Server) authorized(h http.Header) bool {
	tokens := h.Get("X-Cybozu-API-Token")
	password := h.Get("X-Cybozu-Authorization")
	if tokens == "" && password == "" {
		return false
	}
	if tokens != "" && len(s.tokens) > 0 {
		for _, t := range strings.Split(tokens, ",") {
			if _, ok := s.tokens[strings.TrimSpace(t)]; !ok {
				return false
			}
		}
	}
	if password != "" && len(s.users) > 0 {
		raw, err := base64.StdEncoding.DecodeString(password)
		if err != nil {
			return false
		}
		user, pass, _ := strings.Cut(string(raw), ":")
		if want, ok := s.users[user]; !ok || want != pass {
			return false
		}
	}
	return true
}
