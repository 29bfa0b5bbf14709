package logger

import (
	"time"

	"github.com/rs/zerolog"
)

// eventAdapter adapts zerolog events to LogEvent, masking sensitive fields.
type eventAdapter struct {
	event  *zerolog.Event
	filter *SensitiveDataFilter
}

func (e *eventAdapter) with(ev *zerolog.Event) LogEvent {
	return &eventAdapter{event: ev, filter: e.filter}
}

// Msg sends the event
func (e *eventAdapter) Msg(msg string) {
	e.event.Msg(msg)
}

// Msgf sends the event with a formatted message
func (e *eventAdapter) Msgf(format string, args ...any) {
	e.event.Msgf(format, args...)
}

func (e *eventAdapter) Err(err error) LogEvent {
	return e.with(e.event.Err(err))
}

func (e *eventAdapter) Str(key, value string) LogEvent {
	if e.filter != nil {
		value = e.filter.FilterString(key, value)
	}
	return e.with(e.event.Str(key, value))
}

func (e *eventAdapter) Int(key string, value int) LogEvent {
	return e.with(e.event.Int(key, value))
}

func (e *eventAdapter) Int64(key string, value int64) LogEvent {
	return e.with(e.event.Int64(key, value))
}

func (e *eventAdapter) Bool(key string, value bool) LogEvent {
	return e.with(e.event.Bool(key, value))
}

func (e *eventAdapter) Dur(key string, d time.Duration) LogEvent {
	return e.with(e.event.Dur(key, d))
}

func (e *eventAdapter) Interface(key string, i any) LogEvent {
	if e.filter != nil {
		i = e.filter.FilterValue(key, i)
	}
	return e.with(e.event.Interface(key, i))
}

func (e *eventAdapter) Bytes(key string, val []byte) LogEvent {
	if e.filter != nil && e.filter.IsSensitive(key) {
		return e.with(e.event.Str(key, e.filter.MaskValue()))
	}
	return e.with(e.event.Bytes(key, val))
}

// Info creates an info-level log event
func (l *ZeroLogger) Info() LogEvent {
	return &eventAdapter{event: l.zlog.Info(), filter: l.filter}
}

// Error creates an error-level log event
func (l *ZeroLogger) Error() LogEvent {
	return &eventAdapter{event: l.zlog.Error(), filter: l.filter}
}

// Debug creates a debug-level log event
func (l *ZeroLogger) Debug() LogEvent {
	return &eventAdapter{event: l.zlog.Debug(), filter: l.filter}
}

// Warn creates a warning-level log event
func (l *ZeroLogger) Warn() LogEvent {
	return &eventAdapter{event: l.zlog.Warn(), filter: l.filter}
}
