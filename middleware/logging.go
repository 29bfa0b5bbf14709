package middleware

import (
	"context"
	"errors"
	nethttp "net/http"
	"time"

	"github.com/gaborage/go-kintone/logger"
)

const redacted = "[REDACTED]"

// credentialHeaders are never written to logs in clear text.
var credentialHeaders = []string{
	HeaderAPIToken,
	HeaderCybozuAuthorization,
	"Authorization",
	"Proxy-Authorization",
	"Cookie",
}

// LoggingOption configures a LoggingLayer
type LoggingOption func(*LoggingLayer)

// WithHeaderLogging includes request headers, with credentials redacted.
func WithHeaderLogging() LoggingOption {
	return func(l *LoggingLayer) {
		l.logHeaders = true
	}
}

// WithErrorBodyLogging includes up to limit bytes of application error bodies.
func WithErrorBodyLogging(limit int) LoggingOption {
	return func(l *LoggingLayer) {
		l.bodyLimit = limit
	}
}

// LoggingLayer records each request and its outcome without altering either.
type LoggingLayer struct {
	log        logger.Logger
	logHeaders bool
	bodyLimit  int
	now        func() time.Time
}

// NewLoggingLayer creates a logging layer writing to log.
func NewLoggingLayer(log logger.Logger, opts ...LoggingOption) *LoggingLayer {
	l := &LoggingLayer{log: log, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Wrap implements Layer
func (l *LoggingLayer) Wrap(next Service) Service {
	return ServiceFunc(func(ctx context.Context, req *Request) (*Response, error) {
		start := l.now()
		l.safe(func() { l.logRequest(req) })

		resp, err := next.Do(ctx, req)

		elapsed := l.now().Sub(start)
		l.safe(func() { l.logOutcome(req, resp, err, elapsed) })
		return resp, err
	})
}

// safe isolates the call from panics raised by the log sink.
func (l *LoggingLayer) safe(fn func()) {
	if l.log == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	fn()
}

func (l *LoggingLayer) logRequest(req *Request) {
	event := l.log.Debug().
		Str("direction", "outbound").
		Str("operation", req.Operation()).
		Str("method", req.Method()).
		Str("path", req.Path())

	if l.logHeaders {
		event = event.Interface("headers", RedactHeaders(req.Header()))
	}
	event.Msg("kintone request")
}

func (l *LoggingLayer) logOutcome(req *Request, resp *Response, err error, elapsed time.Duration) {
	out := OutcomeOf(resp, err)

	var event logger.LogEvent
	if err != nil {
		event = l.log.Warn().Err(err)
	} else {
		event = l.log.Info()
	}
	event = event.
		Str("direction", "inbound").
		Str("operation", req.Operation()).
		Str("method", req.Method()).
		Str("path", req.Path()).
		Str("kind", out.Kind.String()).
		Dur("elapsed", elapsed)

	if out.Status != 0 {
		event = event.Int("status", out.Status)
	}
	if err != nil {
		event = event.Int("attempts", Attempts(err))
		if l.bodyLimit > 0 {
			var appErr *ApplicationError
			if errors.As(err, &appErr) && len(appErr.Body) > 0 {
				event = event.Bytes("body", truncate(appErr.Body, l.bodyLimit))
			}
		}
	}
	event.Msg("kintone response")
}

// RedactHeaders returns a copy of h with credential values replaced.
func RedactHeaders(h nethttp.Header) nethttp.Header {
	out := h.Clone()
	if out == nil {
		return nethttp.Header{}
	}
	for _, name := range credentialHeaders {
		if out.Get(name) != "" {
			out.Set(name, redacted)
		}
	}
	return out
}

func truncate(b []byte, limit int) []byte {
	if len(b) <= limit {
		return b
	}
	return b[:limit]
}
