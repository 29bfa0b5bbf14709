package middleware

import (
	"context"
	"maps"
	"net/http"
	"sync"
	"time"

	"github.com/gaborage/go-kintone/logger"
)

const (
	testPath      = "/v1/record.json"
	testOperation = "record.get"
)

// stubExecutor returns scripted results and counts invocations.
type stubExecutor struct {
	mu       sync.Mutex
	calls    int
	results  []stubResult
	requests []*Request
}

type stubResult struct {
	status int
	err    error
	header http.Header
}

func (s *stubExecutor) Do(_ context.Context, req *Request) (*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.calls
	s.calls++
	s.requests = append(s.requests, req)
	if len(s.results) == 0 {
		return &Response{StatusCode: http.StatusOK, Header: http.Header{}, Body: []byte(`{}`)}, nil
	}
	if idx >= len(s.results) {
		idx = len(s.results) - 1
	}
	r := s.results[idx]
	if r.err != nil {
		return nil, r.err
	}
	if !IsSuccessStatus(r.status) {
		return nil, NewApplicationError(r.status, []byte(`{"code":"CB_TEST","id":"x","message":"failed"}`), 0)
	}
	return &Response{StatusCode: r.status, Header: r.header, Body: []byte(`{}`)}, nil
}

func (s *stubExecutor) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func statusSequence(statuses ...int) *stubExecutor {
	s := &stubExecutor{}
	for _, st := range statuses {
		s.results = append(s.results, stubResult{status: st})
	}
	return s
}

func idempotentGet() *Request {
	return NewRequest(http.MethodGet, testPath,
		WithQuery("app", "1"),
		WithQuery("id", "2"),
		WithIdempotent(),
		WithOperation(testOperation),
	)
}

// noSleep makes retry tests instant while recording requested delays.
func noSleep(l *RetryLayer) *[]time.Duration {
	var delays []time.Duration
	var mu sync.Mutex
	l.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		delays = append(delays, d)
		mu.Unlock()
		return ctx.Err()
	}
	return &delays
}

// loggedEvent is one captured log entry.
type loggedEvent struct {
	level   string
	fields  map[string]any
	message string
}

// fakeLogger implements logger.Logger and records every event.
type fakeLogger struct {
	mu     sync.Mutex
	events []loggedEvent
}

func (l *fakeLogger) newEvent(level string) logger.LogEvent {
	return &fakeLogEvent{logger: l, level: level, fields: map[string]any{}}
}

func (l *fakeLogger) Info() logger.LogEvent  { return l.newEvent("info") }
func (l *fakeLogger) Error() logger.LogEvent { return l.newEvent("error") }
func (l *fakeLogger) Debug() logger.LogEvent { return l.newEvent("debug") }
func (l *fakeLogger) Warn() logger.LogEvent  { return l.newEvent("warn") }

func (l *fakeLogger) WithContext(_ any) logger.Logger           { return l }
func (l *fakeLogger) WithFields(_ map[string]any) logger.Logger { return l }

func (l *fakeLogger) Events(message string) []loggedEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []loggedEvent
	for _, e := range l.events {
		if e.message == message {
			out = append(out, e)
		}
	}
	return out
}

type fakeLogEvent struct {
	logger *fakeLogger
	level  string
	fields map[string]any
}

func (e *fakeLogEvent) Msg(msg string) {
	e.logger.mu.Lock()
	defer e.logger.mu.Unlock()
	e.logger.events = append(e.logger.events, loggedEvent{
		level:   e.level,
		fields:  maps.Clone(e.fields),
		message: msg,
	})
}

func (e *fakeLogEvent) Msgf(format string, _ ...any) { e.Msg(format) }

func (e *fakeLogEvent) Err(err error) logger.LogEvent {
	e.fields["error"] = err
	return e
}

func (e *fakeLogEvent) Str(key, value string) logger.LogEvent {
	e.fields[key] = value
	return e
}

func (e *fakeLogEvent) Int(key string, value int) logger.LogEvent {
	e.fields[key] = value
	return e
}

func (e *fakeLogEvent) Int64(key string, value int64) logger.LogEvent {
	e.fields[key] = value
	return e
}

func (e *fakeLogEvent) Bool(key string, value bool) logger.LogEvent {
	e.fields[key] = value
	return e
}

func (e *fakeLogEvent) Dur(key string, d time.Duration) logger.LogEvent {
	e.fields[key] = d
	return e
}

func (e *fakeLogEvent) Interface(key string, i any) logger.LogEvent {
	e.fields[key] = i
	return e
}

func (e *fakeLogEvent) Bytes(key string, val []byte) logger.LogEvent {
	e.fields[key] = string(val)
	return e
}

// panickingLogger simulates a broken log sink.
type panickingLogger struct{}

func (panickingLogger) Info() logger.LogEvent                       { panic("sink unavailable") }
func (panickingLogger) Error() logger.LogEvent                      { panic("sink unavailable") }
func (panickingLogger) Debug() logger.LogEvent                      { panic("sink unavailable") }
func (panickingLogger) Warn() logger.LogEvent                       { panic("sink unavailable") }
func (p panickingLogger) WithContext(_ any) logger.Logger           { return p }
func (p panickingLogger) WithFields(_ map[string]any) logger.Logger { return p }
