package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	nethttp "net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrBodyConsumed is returned when a single-use body is opened twice.
var ErrBodyConsumed = errors.New("request body already consumed")

// QueryParam is one key/value pair of the query string. Order is preserved.
type QueryParam struct {
	Key   string
	Value string
}

// Metadata carries hints for layers that never reach the wire as-is.
type Metadata struct {
	// Idempotent marks the operation as safe to repeat automatically.
	Idempotent bool
	// IdempotencyKey makes a write safe to retry when the server deduplicates on it.
	IdempotencyKey string
	// Deadline stops the retry loop once the next attempt would start after it.
	Deadline time.Time
	// Operation names the endpoint for logs, spans and metrics.
	Operation string
}

// Body is a request payload. Bytes bodies can be replayed, reader bodies cannot.
type Body struct {
	data        []byte
	reader      io.Reader
	contentType string
	once        *sync.Once
}

// BytesBody creates a replayable body
func BytesBody(data []byte, contentType string) Body {
	return Body{data: data, contentType: contentType}
}

// ReaderBody creates a single-use body that is never retried
func ReaderBody(r io.Reader, contentType string) Body {
	return Body{reader: r, contentType: contentType, once: &sync.Once{}}
}

// IsZero reports whether the body is absent.
func (b Body) IsZero() bool {
	return b.data == nil && b.reader == nil
}

// Replayable reports whether Open may be called more than once.
func (b Body) Replayable() bool {
	return b.reader == nil
}

// ContentType returns the MIME type declared for the body.
func (b Body) ContentType() string {
	return b.contentType
}

// Bytes returns the payload of a replayable body.
func (b Body) Bytes() []byte {
	return b.data
}

// Len returns the payload size, or -1 when unknown.
func (b Body) Len() int {
	if b.reader != nil {
		return -1
	}
	return len(b.data)
}

// Open returns a fresh reader over the payload.
func (b Body) Open() (io.Reader, error) {
	if b.reader == nil {
		return bytes.NewReader(b.data), nil
	}
	var r io.Reader
	b.once.Do(func() { r = b.reader })
	if r == nil {
		return nil, ErrBodyConsumed
	}
	return r, nil
}

// Request is an immutable description of one logical API call.
type Request struct {
	method string
	path   string
	query  []QueryParam
	header nethttp.Header
	body   Body
	meta   Metadata
}

// RequestOption configures a request at construction time
type RequestOption func(*Request)

// NewRequest creates a request descriptor. Options are applied in order.
func NewRequest(method, path string, opts ...RequestOption) *Request {
	r := &Request{
		method: method,
		path:   path,
		header: make(nethttp.Header),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewJSONRequest creates a request whose body is v encoded as JSON.
func NewJSONRequest(method, path string, v any, opts ...RequestOption) (*Request, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	opts = append([]RequestOption{WithBody(BytesBody(data, "application/json"))}, opts...)
	return NewRequest(method, path, opts...), nil
}

// WithQuery appends a query parameter
func WithQuery(key, value string) RequestOption {
	return func(r *Request) {
		r.query = append(r.query, QueryParam{Key: key, Value: value})
	}
}

// WithHeader sets a header, replacing previous values
func WithHeader(key, value string) RequestOption {
	return func(r *Request) {
		r.header.Set(key, value)
	}
}

// WithBody sets the request body
func WithBody(body Body) RequestOption {
	return func(r *Request) {
		r.body = body
	}
}

// WithIdempotent marks the request as safe to retry
func WithIdempotent() RequestOption {
	return func(r *Request) {
		r.meta.Idempotent = true
	}
}

// WithIdempotencyKey attaches an idempotency key, making a write retry-safe
func WithIdempotencyKey(key string) RequestOption {
	return func(r *Request) {
		r.meta.IdempotencyKey = key
	}
}

// WithDeadline bounds the retry loop
func WithDeadline(t time.Time) RequestOption {
	return func(r *Request) {
		r.meta.Deadline = t
	}
}

// WithOperation names the endpoint
func WithOperation(name string) RequestOption {
	return func(r *Request) {
		r.meta.Operation = name
	}
}

// NewIdempotencyKey returns a random key suitable for WithIdempotencyKey.
func NewIdempotencyKey() string {
	return uuid.NewString()
}

// Method returns the HTTP method
func (r *Request) Method() string { return r.method }

// Path returns the API path relative to the version prefix, e.g. "/v1/record.json"
func (r *Request) Path() string { return r.path }

// Body returns the request body, which may be zero
func (r *Request) Body() Body { return r.body }

// Metadata returns the retry and idempotency metadata
func (r *Request) Metadata() Metadata { return r.meta }

// Operation returns the endpoint name used in logs, spans and metrics
func (r *Request) Operation() string { return r.meta.Operation }

// Replayable reports whether the body can be sent more than once
func (r *Request) Replayable() bool { return r.body.Replayable() }

// HeaderValue returns the first value of the named header
func (r *Request) HeaderValue(key string) string {
	return r.header.Get(key)
}

// Query returns a copy of the query parameters
func (r *Request) Query() []QueryParam {
	out := make([]QueryParam, len(r.query))
	copy(out, r.query)
	return out
}

// Header returns a copy of the headers
func (r *Request) Header() nethttp.Header {
	return r.header.Clone()
}

// RetrySafe reports whether the request may be re-sent automatically.
func (r *Request) RetrySafe() bool {
	return r.meta.Idempotent || r.meta.IdempotencyKey != ""
}

// WithHeader returns a copy of r with the header set. r is not modified.
func (r *Request) WithHeader(key, value string) *Request {
	cp := r.clone()
	cp.header.Set(key, value)
	return cp
}

// WithHeaders returns a copy of r with every header in h set. r is not modified.
func (r *Request) WithHeaders(h nethttp.Header) *Request {
	cp := r.clone()
	for key, values := range h {
		cp.header.Del(key)
		for _, v := range values {
			cp.header.Add(key, v)
		}
	}
	return cp
}

func (r *Request) clone() *Request {
	cp := *r
	cp.header = r.header.Clone()
	if cp.header == nil {
		cp.header = make(nethttp.Header)
	}
	cp.query = r.Query()
	return &cp
}

// Response is the raw result of a successful exchange.
type Response struct {
	StatusCode int
	Header     nethttp.Header
	Body       []byte
	Attempts   int
	Elapsed    time.Duration
}
