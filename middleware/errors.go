package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Error is implemented by every failure produced inside the pipeline.
type Error interface {
	error
	Kind() Kind
	Retryable() bool
}

// Kind defines the category of a pipeline failure
type Kind string

const (
	KindTransport   Kind = "transport"
	KindApplication Kind = "application"
	KindDecode      Kind = "decode"
	KindValidation  Kind = "validation"
)

// TransientErrorCodes lists kintone error codes that indicate a temporary
// server-side condition even when returned with a 4xx status.
var TransientErrorCodes = map[string]struct{}{
	"GAIA_DA02": {}, // database is locked
}

// TransportError represents connectivity, timeout and TLS failures.
type TransportError struct {
	Op        string
	Err       error
	retryable bool
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transport error: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("transport error: %s", e.Op)
}

func (e *TransportError) Kind() Kind      { return KindTransport }
func (e *TransportError) Retryable() bool { return e.retryable }
func (e *TransportError) Unwrap() error   { return e.Err }

// FieldMessages holds per-field messages from a kintone error body.
type FieldMessages struct {
	Messages []string `json:"messages"`
}

// ApplicationError represents a non-2xx response from the server.
type ApplicationError struct {
	StatusCode int
	Body       []byte
	Code       string
	ID         string
	Message    string
	Errors     map[string]FieldMessages
	RetryAfter time.Duration
}

func (e *ApplicationError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("application error: status %d: [%s] %s (id: %s)", e.StatusCode, e.Code, e.Message, e.ID)
	}
	return fmt.Sprintf("application error: status %d", e.StatusCode)
}

func (e *ApplicationError) Kind() Kind { return KindApplication }

// Retryable reports whether the status is 5xx, 429, or a transient kintone code.
func (e *ApplicationError) Retryable() bool {
	if e.StatusCode >= 500 || e.StatusCode == 429 {
		return true
	}
	_, transient := TransientErrorCodes[e.Code]
	return transient
}

// IsRateLimited reports whether the server signalled rate limiting.
func (e *ApplicationError) IsRateLimited() bool {
	return e.StatusCode == 429
}

// DecodeError represents a 2xx response whose body does not match the expected schema.
type DecodeError struct {
	Operation string
	Err       error
	Body      []byte
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode error: %s: %v", e.Operation, e.Err)
}

func (e *DecodeError) Kind() Kind      { return KindDecode }
func (e *DecodeError) Retryable() bool { return false }
func (e *DecodeError) Unwrap() error   { return e.Err }

// FieldError describes one invalid builder parameter.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned before any network call when a builder is misconfigured.
type ValidationError struct {
	Operation string
	Fields    []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return fmt.Sprintf("validation error: %s: %s", e.Operation, strings.Join(parts, "; "))
}

func (e *ValidationError) Kind() Kind      { return KindValidation }
func (e *ValidationError) Retryable() bool { return false }

// AttemptsError annotates the last real failure with the number of attempts made.
type AttemptsError struct {
	Attempts int
	Err      error
}

func (e *AttemptsError) Error() string {
	return fmt.Sprintf("%v (after %d attempts)", e.Err, e.Attempts)
}

func (e *AttemptsError) Unwrap() error { return e.Err }

// NewTransportError creates a new transport error
func NewTransportError(op string, err error, retryable bool) *TransportError {
	return &TransportError{Op: op, Err: err, retryable: retryable}
}

type kintoneErrorBody struct {
	Code    string                   `json:"code"`
	ID      string                   `json:"id"`
	Message string                   `json:"message"`
	Errors  map[string]FieldMessages `json:"errors"`
}

// NewApplicationError creates an application error, parsing the kintone
// error body when it is JSON.
func NewApplicationError(statusCode int, body []byte, retryAfter time.Duration) *ApplicationError {
	appErr := &ApplicationError{
		StatusCode: statusCode,
		Body:       body,
		RetryAfter: retryAfter,
	}
	var parsed kintoneErrorBody
	if len(body) > 0 && json.Unmarshal(body, &parsed) == nil {
		appErr.Code = parsed.Code
		appErr.ID = parsed.ID
		appErr.Message = parsed.Message
		appErr.Errors = parsed.Errors
	}
	return appErr
}

// NewDecodeError creates a new decode error
func NewDecodeError(operation string, err error, body []byte) *DecodeError {
	return &DecodeError{Operation: operation, Err: err, Body: body}
}

// NewValidationError creates a new validation error
func NewValidationError(operation string, fields ...FieldError) *ValidationError {
	return &ValidationError{Operation: operation, Fields: fields}
}

// KindOf returns the kind of a pipeline error, or "" for foreign errors.
func KindOf(err error) Kind {
	var pe Error
	if errors.As(err, &pe) {
		return pe.Kind()
	}
	return ""
}

// IsKind checks if an error is of a specific kind
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsRetryable reports whether err is classified as retry-eligible.
func IsRetryable(err error) bool {
	var pe Error
	if errors.As(err, &pe) {
		return pe.Retryable()
	}
	return false
}

// StatusCode returns the HTTP status of an application error, or 0.
func StatusCode(err error) int {
	var appErr *ApplicationError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return 0
}

// Attempts returns how many attempts were made before err was returned.
// Errors that never passed through the retry layer report 1.
func Attempts(err error) int {
	var ae *AttemptsError
	if errors.As(err, &ae) {
		return ae.Attempts
	}
	if err == nil {
		return 0
	}
	return 1
}

// Retried reports whether the call was re-attempted and still failed.
func Retried(err error) bool {
	return Attempts(err) > 1
}

// IsSuccessStatus checks if a status code represents success (2xx)
func IsSuccessStatus(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}
