// Package middleware provides the layered dispatch core of the kintone client:
// an immutable request descriptor, a Service/Layer decorator chain composed
// once into a Pipeline, and the concrete layers that ship with the client.
//
// Composition
//   - Chain(terminal, l1, l2, l3) behaves as l1(l2(l3(terminal))).
//   - The first layer runs first on the way in and last on the way out.
//
// Retries
//   - Only requests marked idempotent or carrying an idempotency key are retried.
//   - Single-use (reader) bodies are never retried.
//   - Retry-eligible failures:
//   - Transport errors classified retryable (timeouts, refused or reset connections)
//   - HTTP 5xx and 429 responses
//   - kintone transient error codes such as GAIA_DA02
//   - Other 4xx responses, decode and validation errors are terminal.
//
// Backoff Strategy
//   - delay = min(base * multiplier^(attempt-2), max), scaled by a factor in [1-jitter, 1+jitter].
//   - A larger Retry-After from the server replaces the computed delay, capped at max.
//   - Sleeps honor context cancellation and the request's metadata deadline.
//
// Errors
//   - Every failure implements Error and reports its Kind.
//   - The retry layer returns the last real failure wrapped in *AttemptsError.
//     Use Attempts and Retried to inspect it.
package middleware
