// Package transport performs single logical HTTP requests with per-attempt
// timeouts, failure classification, and backoff-based retry of transient
// failures.
//
// Auth failures and rate limits are returned to the caller after a single
// attempt; server errors, connection failures, and timeouts are retried with
// exponential backoff plus jitter up to a configured attempt bound. The client
// is stateless across calls apart from its configuration.
package transport
