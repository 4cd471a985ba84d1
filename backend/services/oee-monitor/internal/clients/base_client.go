package clients

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrStatus marks a non-2xx response from the backend.
var ErrStatus = errors.New("clients: unexpected status")

// StatusError carries the status and message of a failed backend call.
type StatusError struct {
	Method  string
	Path    string
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("clients: %s %s: status %d", e.Method, e.Path, e.Status)
	}
	return fmt.Sprintf("clients: %s %s: status %d: %s", e.Method, e.Path, e.Status, e.Message)
}

// Is matches ErrStatus.
func (e *StatusError) Is(target error) bool {
	return target == ErrStatus
}

// HTTPDoer defines http.Client interface subset.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// RetryPolicy retries idempotent requests on transport errors, 429 and 5xx with an
// exponential delay of BaseDelay * 2^n.
type RetryPolicy struct {
	Retries   int
	BaseDelay time.Duration
}

// DefaultRetryPolicy returns 3 retries starting at 100ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Retries: 3, BaseDelay: 100 * time.Millisecond}
}

func (p RetryPolicy) delay(retry int) time.Duration {
	return p.BaseDelay * time.Duration(1<<retry)
}

// BaseClient sends requests relative to a base URL with fixed headers.
type BaseClient struct {
	baseURL string
	client  HTTPDoer
	headers map[string]string
	retry   RetryPolicy
	logger  *zap.Logger
	wait    func(ctx context.Context, d time.Duration) error
}

// NewBaseClient builds client with base URL.
func NewBaseClient(baseURL string, client HTTPDoer, headers map[string]string, retry RetryPolicy, logger *zap.Logger) *BaseClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BaseClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		headers: headers,
		retry:   retry,
		logger:  logger,
		wait:    sleepCtx,
	}
}

func (c *BaseClient) buildURL(path string, query url.Values) string {
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		path = c.baseURL + path
	}
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	return path
}

// Do executes the request and returns status and body. Non-2xx responses are returned
// as *StatusError after retries are spent.
func (c *BaseClient) Do(ctx context.Context, method, path string, query url.Values, body []byte) (int, []byte, error) {
	attempts := 1
	if idempotent(method) && c.retry.Retries > 0 {
		attempts += c.retry.Retries
	}

	var (
		status  int
		payload []byte
		err     error
	)
	for i := 0; i < attempts; i++ {
		if i > 0 {
			d := c.retry.delay(i - 1)
			c.logger.Debug("retrying backend request",
				zap.String("method", method),
				zap.String("path", path),
				zap.Int("retry", i),
				zap.Duration("delay", d),
			)
			if werr := c.wait(ctx, d); werr != nil {
				return status, payload, werr
			}
		}
		status, payload, err = c.once(ctx, method, path, query, body)
		if !retryable(status, err) || ctx.Err() != nil {
			break
		}
	}
	if err != nil {
		c.logger.Warn("backend request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return status, payload, err
	}
	if status < 200 || status >= 300 {
		serr := &StatusError{Method: method, Path: path, Status: status, Message: errorMessage(payload)}
		c.logger.Warn("backend returned non-success", zap.String("method", method), zap.String("path", path), zap.Int("status", status))
		return status, payload, serr
	}
	return status, payload, nil
}

func (c *BaseClient) once(ctx context.Context, method, path string, query url.Values, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.buildURL(path, query), reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, respBody, nil
}

// NewDefaultHTTPClient returns *http.Client with timeout.
func NewDefaultHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete, http.MethodOptions:
		return true
	}
	return false
}

func retryable(status int, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	return status == http.StatusTooManyRequests || status >= 500
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
