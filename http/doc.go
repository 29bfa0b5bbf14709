// Package http provides the terminal executor of the kintone pipeline: a
// middleware.Service that turns a request descriptor into exactly one HTTP
// exchange.
//
// URLs
//   - Built as baseURL + prefix + path + "?" + query.
//   - The prefix is /k, or /k/guest/{id} when a guest space is configured.
//   - Query parameters keep the order in which they were added.
//
// Error mapping
//   - Timeouts, refused or reset connections, and temporary DNS failures
//     become retryable transport errors.
//   - Malformed URLs, unsupported schemes, certificate failures and caller
//     cancellation become terminal transport errors.
//   - Non-2xx responses become application errors carrying the parsed
//     kintone error body and any Retry-After hint.
//
// Notes
//   - The executor never retries. Retries belong to middleware.RetryLayer.
//   - Interceptor errors are terminal and surfaced immediately.
//   - Metadata.IdempotencyKey is sent as the Idempotency-Key header.
package http
