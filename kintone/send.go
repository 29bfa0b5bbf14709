package kintone

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"

	"github.com/gaborage/go-kintone/middleware"
	"github.com/gaborage/go-kintone/validation"
)

// ErrAlreadySent is returned when a builder is sent twice.
var ErrAlreadySent = errors.New("kintone: request already sent")

// Guard is embedded by request builders. It names the operation and
// records whether the builder reached Send.
type Guard struct {
	operation string
	sent      int32
}

// NewGuard creates a guard for operation.
func NewGuard(operation string) Guard {
	return Guard{operation: operation}
}

// Operation returns the operation name, e.g. "record.get".
func (g *Guard) Operation() string {
	return g.operation
}

// Sent reports whether the builder was sent.
func (g *Guard) Sent() bool {
	return atomic.LoadInt32(&g.sent) == 1
}

func (g *Guard) guard() *Guard {
	return g
}

// Execute validates params, builds the request and runs it through svc.
// Validation failures return before svc is invoked.
func Execute(ctx context.Context, svc middleware.Service, g *Guard, params any, build func() (*middleware.Request, error)) (*middleware.Response, error) {
	if err := Prepare(svc, g, params); err != nil {
		return nil, err
	}
	req, err := build()
	if err != nil {
		return nil, middleware.NewValidationError(g.operation, middleware.FieldError{Field: "body", Message: err.Error()})
	}
	return svc.Do(ctx, req)
}

// Prepare marks the builder sent and validates params. Builders that issue
// several requests call it once before the first one.
func Prepare(svc middleware.Service, g *Guard, params any) error {
	if !atomic.CompareAndSwapInt32(&g.sent, 0, 1) {
		return ErrAlreadySent
	}
	if svc == nil {
		return ErrNilClient
	}
	if params != nil {
		return validation.Validate(g.operation, params)
	}
	return nil
}

// Send is Execute followed by decoding the JSON response into T.
func Send[T any](ctx context.Context, svc middleware.Service, g *Guard, params any, build func() (*middleware.Request, error)) (*T, error) {
	resp, err := Execute(ctx, svc, g, params, build)
	if err != nil {
		return nil, err
	}
	var out T
	if err := DecodeJSON(g.operation, resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DecodeJSON decodes a successful response body into v. Failures are
// returned as *middleware.DecodeError and are never retried.
func DecodeJSON(operation string, resp *middleware.Response, v any) error {
	if resp == nil {
		return middleware.NewDecodeError(operation, errors.New("empty response"), nil)
	}
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return middleware.NewDecodeError(operation, err, resp.Body)
	}
	return nil
}

// QueryBuild returns a build function for a bodiless request whose
// parameters are sent in the query string.
func QueryBuild(method, path string, g *Guard, params any, opts ...middleware.RequestOption) func() (*middleware.Request, error) {
	return func() (*middleware.Request, error) {
		all := append([]middleware.RequestOption{middleware.WithOperation(g.operation)}, QueryOptions(params)...)
		return middleware.NewRequest(method, path, append(all, opts...)...), nil
	}
}

// JSONBuild returns a build function for a request with body encoded as JSON.
func JSONBuild(method, path string, g *Guard, body any, opts ...middleware.RequestOption) func() (*middleware.Request, error) {
	return func() (*middleware.Request, error) {
		all := append([]middleware.RequestOption{middleware.WithOperation(g.operation)}, opts...)
		return middleware.NewJSONRequest(method, path, body, all...)
	}
}

// Idempotency holds the retry opt-in of a write builder. Writes are not
// retried unless marked retry safe or given an idempotency key.
type Idempotency struct {
	safe bool
	key  string
}

// MarkRetrySafe allows the retry layer to re-send the request.
func (i *Idempotency) MarkRetrySafe() {
	i.safe = true
}

// SetKey sends key as the Idempotency-Key header, which also allows retries.
func (i *Idempotency) SetKey(key string) {
	i.key = key
}

// Options returns the request options for the opt-in.
func (i *Idempotency) Options() []middleware.RequestOption {
	var opts []middleware.RequestOption
	if i.safe {
		opts = append(opts, middleware.WithIdempotent())
	}
	if i.key != "" {
		opts = append(opts, middleware.WithIdempotencyKey(i.key))
	}
	return opts
}
