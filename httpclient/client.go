package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	// DefaultMaxRetries is the number of retries after the initial attempt.
	DefaultMaxRetries = 3
	// DefaultBackoff is the delay before the first retry; it doubles per retry.
	DefaultBackoff = time.Second
	// DefaultAttemptTimeout bounds every single attempt.
	DefaultAttemptTimeout = 5 * time.Second

	// RequestIDHeader carries the per-call identifier, identical across retries.
	RequestIDHeader = "X-Request-Id"

	maxResponseBytes = 10 << 20
)

// Sleeper waits for d or until ctx is done, whichever comes first.
type Sleeper func(ctx context.Context, d time.Duration) error

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client sends JSON requests relative to a base URL through an authenticated
// transport and retries transient failures with exponential backoff.
//
// A request is retried when no response was received (network error or
// per-attempt timeout) or when the status is 5xx. 4xx responses are returned
// as failures immediately. The delay before retry n (0-indexed) is
// backoff * 2^n.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	maxRetries     int
	backoff        time.Duration
	attemptTimeout time.Duration
	limiter        *rate.Limiter
	sleep          Sleeper
	requestIDs     bool
	logger         glog.Logger
}

// BaseURL returns the URL request paths are resolved against.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// HTTPClient returns the underlying client with the authenticating transport.
// Requests sent through it bypass the retry policy.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// Backoff returns the delay before retry n (0-indexed).
func (c *Client) Backoff(n int) time.Duration {
	return c.backoff * time.Duration(1<<uint(n))
}

// Do sends method to baseURL+path. A non-nil body is encoded as JSON once and
// replayed on every attempt.
//
// On success the response has a 2xx status. Any other outcome is returned as
// a *goerrors.Error whose Code is the final HTTP status, or 502/504 when no
// response was received.
func (c *Client) Do(ctx context.Context, method, path string, body any) (*Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "httpclient: encode request body").
				WithTextCode(TextCodeRequest)
		}
		payload = data
	}

	url := c.resolve(path)
	requestID := ""
	if c.requestIDs {
		requestID = uuid.NewString()
	}

	var lastErr error
	attempts := 0

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.Backoff(attempt - 1)
			c.logger.Warn("httpclient: retrying request",
				"method", method, "url", url, "attempt", attempt+1, "delay", delay.String(), "error", lastErr)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, networkError(err, method, url, attempts)
			}
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, goerrors.Wrap(err, goerrors.CategoryRateLimit, "httpclient: rate limit wait").
					WithCode(http.StatusTooManyRequests)
			}
		}

		attempts++
		resp, err := c.attempt(ctx, method, url, payload, requestID)
		if err != nil {
			var rich *goerrors.Error
			if goerrors.As(err, &rich) && (rich.TextCode == TextCodeRequest || rich.TextCode == TextCodeCredentialRequired) {
				return nil, rich
			}
			if errors.Is(err, ErrCredentialRequired) {
				return nil, credentialRequiredError()
			}
			if ctx.Err() != nil {
				return nil, networkError(ctx.Err(), method, url, attempts)
			}
			lastErr = err
			continue
		}

		c.logger.Debug("httpclient: response received",
			"method", method, "url", url, "status", resp.StatusCode, "attempt", attempts)

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return resp, nil
		case resp.StatusCode >= 500 && resp.StatusCode < 600:
			lastErr = statusError(method, url, resp.StatusCode, resp.Body)
		default:
			return nil, statusError(method, url, resp.StatusCode, resp.Body)
		}
	}

	var rich *goerrors.Error
	if goerrors.As(lastErr, &rich) {
		return nil, rich
	}
	return nil, networkError(lastErr, method, url, attempts)
}

// attempt performs one round trip bounded by the per-attempt timeout.
func (c *Client) attempt(ctx context.Context, method, url string, payload []byte, requestID string) (*Response, error) {
	attemptCtx := ctx
	if c.attemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, c.attemptTimeout)
		defer cancel()
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(attemptCtx, method, url, reader)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "httpclient: build request").
			WithTextCode(TextCodeRequest)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if requestID != "" {
		req.Header.Set(RequestIDHeader, requestID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("httpclient: read response: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

func (c *Client) resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if c.baseURL == "" {
		return path
	}
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
