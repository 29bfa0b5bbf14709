package http

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	nethttp "net/http"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gaborage/go-kintone/middleware"
)

// maxRetryAfter caps server supplied Retry-After hints
const maxRetryAfter = time.Hour

// classifyError maps a round trip failure into a transport error. Timeouts,
// dropped connections and temporary DNS failures are retryable. Malformed
// URLs, unsupported schemes, certificate errors and cancellation are not.
func classifyError(ctx context.Context, err error) *middleware.TransportError {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return middleware.NewTransportError("request canceled", err, false)
	}
	if isCertificateError(err) {
		return middleware.NewTransportError("tls handshake", err, false)
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return middleware.NewTransportError("dns lookup", err, dnsErr.IsTimeout || dnsErr.IsTemporary)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return middleware.NewTransportError("request timeout", err, true)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return middleware.NewTransportError("request timeout", err, true)
	}

	switch {
	case errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF):
		return middleware.NewTransportError("connection failed", err, true)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return middleware.NewTransportError(opErr.Op, err, true)
	}
	return middleware.NewTransportError("request execution failed", err, false)
}

func isCertificateError(err error) bool {
	var (
		unknownAuthority x509.UnknownAuthorityError
		invalid          x509.CertificateInvalidError
		hostname         x509.HostnameError
		verification     *tls.CertificateVerificationError
		recordHeader     tls.RecordHeaderError
	)
	return errors.As(err, &unknownAuthority) ||
		errors.As(err, &invalid) ||
		errors.As(err, &hostname) ||
		errors.As(err, &verification) ||
		errors.As(err, &recordHeader)
}

// parseRetryAfter parses the Retry-After header value, in either
// delay-seconds or HTTP-date form.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds <= 0 {
			return 0
		}
		return min(time.Duration(seconds)*time.Second, maxRetryAfter)
	}

	if t, err := nethttp.ParseTime(value); err == nil {
		if delay := t.Sub(now); delay > 0 {
			return min(delay, maxRetryAfter)
		}
	}
	return 0
}
