package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"github.com/solvaholic/rally/internal/config"
	"github.com/solvaholic/rally/internal/logger"
)

// Response carries the canonical records decoded from a response together
// with the raw body, so callers can cache or store exactly what was received.
type Response[T any] struct {
	Records T
	Raw     []byte
	Status  int
}

// Options configures a Client
type Options struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	RetryCount int
	RetryWait  time.Duration
	Logger     logger.Logger
}

// Client talks to the rally backend
type Client struct {
	http *resty.Client
	log  logger.Logger
}

// NewClient creates a new API client
func NewClient(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("base URL is required")
	}
	if !strings.HasPrefix(opts.BaseURL, "http://") && !strings.HasPrefix(opts.BaseURL, "https://") {
		return nil, errors.Errorf("base URL scheme must be http or https, got: %s", opts.BaseURL)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = config.DefaultTimeout
	}
	if opts.RetryCount < 0 {
		opts.RetryCount = 0
	}
	if opts.RetryWait <= 0 {
		opts.RetryWait = 100 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = logger.Default()
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(opts.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(opts.RetryWait).
		SetRetryMaxWaitTime(2 * time.Second)

	if opts.Token != "" {
		client.SetAuthToken(opts.Token)
	}
	client.AddRetryCondition(retryCondition)

	return &Client{http: client, log: opts.Logger}, nil
}

// FromSettings builds a client from resolved configuration
func FromSettings(s *config.Settings, log logger.Logger) (*Client, error) {
	return NewClient(Options{
		BaseURL:    s.BaseURL,
		Token:      s.Token,
		Timeout:    s.Timeout,
		RetryCount: 3,
		Logger:     log,
	})
}

// retryCondition retries network errors, server errors and throttling for
// idempotent methods only. A POST may already have been applied.
func retryCondition(r *resty.Response, err error) bool {
	if r == nil || r.Request == nil || !idempotent(r.Request.Method) {
		return false
	}
	if err != nil {
		return true
	}
	code := r.StatusCode()
	return code >= 500 || code == http.StatusTooManyRequests || code == http.StatusRequestTimeout
}

func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}

// do performs a request and returns the raw body of a 2xx response.
func (c *Client) do(ctx context.Context, method, path string, body any, query map[string]string) ([]byte, int, error) {
	req := c.http.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}
	if len(query) > 0 {
		req.SetQueryParams(query)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "%s %s", method, path)
	}

	c.log.Debug("API request completed",
		"method", method,
		"path", path,
		"status", resp.StatusCode(),
		"bytes", len(resp.Body()),
		"elapsed", resp.Time())

	if !resp.IsSuccess() {
		return nil, resp.StatusCode(), newAPIError(resp.StatusCode(), resp.Body())
	}

	return resp.Body(), resp.StatusCode(), nil
}

// APIError is a non-2xx response from the backend
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// newAPIError pulls a human message out of an error body. The backend uses
// "message" or "error", and "error" is sometimes an object with its own
// message.
func newAPIError(status int, body []byte) *APIError {
	e := &APIError{StatusCode: status, Body: body}

	if gjson.ValidBytes(body) {
		v := gjson.ParseBytes(body)
		for _, path := range []string{"message", "error", "error.message"} {
			if msg := v.Get(path); msg.Type == gjson.String && strings.TrimSpace(msg.Str) != "" {
				e.Message = strings.TrimSpace(msg.Str)
				break
			}
		}
	}

	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	if e.Message == "" {
		e.Message = "unexpected response"
	}
	return e
}
