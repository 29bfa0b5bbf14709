package kintonetest

import (
	goerrors "errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// kintone error codes returned by the fake.
const (
	codeInvalidInput  = "CB_VA01"
	codeUnauthorized  = "CB_WA01"
	codeNotFound      = "GAIA_RE01"
	codeAppNotFound   = "GAIA_AP01"
	codeConflict      = "GAIA_CO02"
	codeTooManyCalls  = "GAIA_TM12"
	codeInternalError = "CB_IL02"
	codeNoRoute       = "CB_NO02"

	rateLimitCleanup = 3 * time.Minute
)

// APIError is a kintone error response.
type APIError struct {
	Status  int                      `json:"-"`
	Code    string                   `json:"code"`
	ID      string                   `json:"id"`
	Message string                   `json:"message"`
	Errors  map[string]fieldMessages `json:"errors,omitempty"`
}

type fieldMessages struct {
	Messages []string `json:"messages"`
}

func newError(status int, code, message string) *APIError {
	return &APIError{
		Status:  status,
		Code:    code,
		ID:      uuid.NewString(),
		Message: message,
	}
}

func invalidField(field, message string) *APIError {
	e := newError(http.StatusBadRequest, codeInvalidInput, "Missing or invalid input.")
	e.Errors = map[string]fieldMessages{field: {Messages: []string{message}}}
	return e
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}

// errorHandler renders every failure in the kintone error envelope.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var apiErr *APIError
	if !goerrors.As(err, &apiErr) {
		apiErr = newError(http.StatusInternalServerError, codeInternalError, "Internal server error")
		var he *echo.HTTPError
		if goerrors.As(err, &he) {
			apiErr.Status = he.Code
			switch he.Code {
			case http.StatusNotFound, http.StatusMethodNotAllowed:
				apiErr.Code = codeNoRoute
			case http.StatusBadRequest, http.StatusUnsupportedMediaType:
				apiErr.Code = codeInvalidInput
			}
			if m, ok := he.Message.(string); ok {
				apiErr.Message = m
			}
		}
	}
	_ = c.JSON(apiErr.Status, apiErr)
}

// RateLimit returns a middleware answering 429 with Retry-After once a
// client exceeds requestsPerSecond.
func RateLimit(requestsPerSecond int) echo.MiddlewareFunc {
	if requestsPerSecond <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return next
		}
	}

	deny := func(c echo.Context) error {
		c.Response().Header().Set("Retry-After", "1")
		return newError(http.StatusTooManyRequests, codeTooManyCalls, "Too many requests")
	}
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Skipper: middleware.DefaultSkipper,
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(requestsPerSecond),
				Burst:     requestsPerSecond,
				ExpiresIn: rateLimitCleanup,
			},
		),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, _ error) error {
			return deny(c)
		},
		DenyHandler: func(c echo.Context, _ string, _ error) error {
			return deny(c)
		},
	})
}
