package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

// Failure classification for a single logical request.
var (
	ErrTimeout     = errors.New("transport: request timed out")
	ErrConnection  = errors.New("transport: connection failure")
	ErrServer      = errors.New("transport: server error")
	ErrRateLimited = errors.New("transport: rate limited")
	ErrAuthFailed  = errors.New("transport: authentication failed")
	ErrNotFound    = errors.New("transport: resource not found")
	ErrForbidden   = errors.New("transport: access forbidden")
	ErrUnknown     = errors.New("transport: unknown failure")
)

// Kind names a failure class.
type Kind string

const (
	KindTimeout     Kind = "timeout"
	KindConnection  Kind = "connection"
	KindServer      Kind = "server"
	KindRateLimited Kind = "rate_limited"
	KindAuth        Kind = "auth"
	KindUnknown     Kind = "unknown"
)

// RateLimitError carries the server-supplied retry hint alongside the
// ErrRateLimited classification.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("transport: rate limited, retry after %s", e.RetryAfter)
	}
	return "transport: rate limited"
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// Classify maps an error onto the failure taxonomy. Wrapped sentinel errors
// win; otherwise the error shape and message are inspected, falling back to
// KindUnknown.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrAuthFailed):
		return KindAuth
	case errors.Is(err, ErrServer):
		return KindServer
	case errors.Is(err, ErrConnection):
		return KindConnection
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindConnection
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"):
		return KindTimeout
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "broken pipe"),
		strings.Contains(msg, "network is unreachable"):
		return KindConnection
	}
	return KindUnknown
}

// Retryable reports whether a failure class should be retried locally.
func (k Kind) Retryable() bool {
	switch k {
	case KindTimeout, KindConnection, KindServer:
		return true
	default:
		return false
	}
}

func classifyStatus(resp *http.Response) error {
	code := resp.StatusCode
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized:
		return ErrAuthFailed
	case code == http.StatusTooManyRequests:
		return &RateLimitError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	case code >= 500:
		return fmt.Errorf("%w: %d %s", ErrServer, code, http.StatusText(code))
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusForbidden:
		return ErrForbidden
	default:
		return fmt.Errorf("%w: unexpected status %d", ErrUnknown, code)
	}
}

func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := time.ParseDuration(value + "s"); err == nil {
		return seconds
	}
	if at, err := http.ParseTime(value); err == nil {
		if wait := time.Until(at); wait > 0 {
			return wait
		}
	}
	return 0
}
