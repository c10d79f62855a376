package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"modvault/internal/config"
	"modvault/internal/logging"
)

const jitterCeiling = 500 * time.Millisecond

// Options configures the retrying client.
type Options struct {
	// Timeout is the hard per-attempt deadline.
	// Default: 12s
	Timeout time.Duration

	// MaxAttempts bounds total attempts for transient failures.
	// Default: 3
	MaxAttempts int

	// RetryBase is the exponential backoff base.
	// Default: 800ms
	RetryBase time.Duration

	// RetryMax caps the computed delay.
	// Default: 8s
	RetryMax time.Duration
}

// DefaultOptions returns options with repository defaults.
func DefaultOptions() Options {
	return Options{
		Timeout:     12 * time.Second,
		MaxAttempts: 3,
		RetryBase:   800 * time.Millisecond,
		RetryMax:    8 * time.Second,
	}
}

// OptionsFromConfig maps the [transport] config section onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	if cfg == nil {
		return DefaultOptions()
	}
	return Options{
		Timeout:     time.Duration(cfg.Transport.RequestTimeoutSeconds) * time.Second,
		MaxAttempts: cfg.Transport.MaxAttempts,
		RetryBase:   time.Duration(cfg.Transport.RetryBaseMillis) * time.Millisecond,
		RetryMax:    time.Duration(cfg.Transport.RetryMaxMillis) * time.Millisecond,
	}
}

// Request describes a single logical HTTP request.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Response carries the payload and raw status of a successful request.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client issues requests with classified, backoff-based retry.
type Client struct {
	httpClient *http.Client
	opts       Options
	logger     *slog.Logger

	// Stubbed in tests to avoid real sleeping and nondeterministic jitter.
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() time.Duration
}

// NewClient constructs a client. A nil logger is replaced with a no-op logger.
func NewClient(opts Options, logger *slog.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions().Timeout
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = DefaultOptions().MaxAttempts
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = DefaultOptions().RetryBase
	}
	if opts.RetryMax < opts.RetryBase {
		opts.RetryMax = DefaultOptions().RetryMax
	}
	return &Client{
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 16,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts:   opts,
		logger: logging.NewComponentLogger(logger, "transport"),
		sleep:  sleepCtx,
		jitter: func() time.Duration { return time.Duration(rand.Int63n(int64(jitterCeiling))) },
	}
}

// Do executes the request, retrying transient failures. Auth failures and rate
// limits are returned after a single attempt; after retries are exhausted, the
// last error is surfaced.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	var lastErr error

	for attempt := 0; attempt < c.opts.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := c.backoffDelay(attempt)
			c.logger.DebugContext(ctx, "retrying request",
				logging.String(logging.FieldURL, req.URL),
				logging.Int(logging.FieldAttempt, attempt),
				logging.Duration("delay", delay),
			)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		resp, err := c.attempt(ctx, req)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			// The caller gave up; don't mask that as a transport failure.
			return nil, ctx.Err()
		}

		kind := Classify(err)
		if !kind.Retryable() {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", c.opts.MaxAttempts, lastErr)
}

func (c *Client) attempt(ctx context.Context, req *Request) (*Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for key, values := range req.Header {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || attemptCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w: %s", ErrTimeout, req.URL)
		}
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	defer httpResp.Body.Close()

	if statusErr := classifyStatus(httpResp); statusErr != nil {
		io.Copy(io.Discard, httpResp.Body)
		return nil, statusErr
	}

	payload, err := io.ReadAll(httpResp.Body)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: reading body for %s", ErrTimeout, req.URL)
		}
		return nil, fmt.Errorf("%w: read body: %v", ErrConnection, err)
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       payload,
	}, nil
}

// backoffDelay computes min(base*2^attempt + jitter, max).
func (c *Client) backoffDelay(attempt int) time.Duration {
	delay := c.opts.RetryBase << uint(attempt)
	if delay <= 0 || delay > c.opts.RetryMax {
		delay = c.opts.RetryMax
	}
	delay += c.jitter()
	if delay > c.opts.RetryMax {
		delay = c.opts.RetryMax
	}
	return delay
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
