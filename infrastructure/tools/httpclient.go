package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/Laisky/errors/v2"
	"golang.org/x/time/rate"
)

const (
	// DefaultHTTPTimeout bounds a single upstream request.
	DefaultHTTPTimeout = 15 * time.Second

	maxErrorBody    = 512
	maxResponseBody = 4 << 20
)

// StatusError is returned for non-2xx upstream responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("upstream returned %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// HTTPClient issues JSON requests to third-party APIs with a shared
// token-bucket limit.
type HTTPClient struct {
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
}

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithRateLimit allows rps requests per second with the given burst.
func WithRateLimit(rps float64, burst int) HTTPOption {
	return func(c *HTTPClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
		}
	}
}

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) HTTPOption {
	return func(c *HTTPClient) {
		if hc != nil {
			c.client = hc
		}
	}
}

// NewHTTPClient creates a client with DefaultHTTPTimeout and no rate limit.
func NewHTTPClient(opts ...HTTPOption) *HTTPClient {
	c := &HTTPClient{
		client:    &http.Client{Timeout: DefaultHTTPTimeout},
		userAgent: "go-maestro/1.0",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetJSON issues a GET to rawURL with query appended and decodes the JSON
// response into out.
func (c *HTTPClient) GetJSON(ctx context.Context, rawURL string, query url.Values, header http.Header, out any) error {
	if len(query) > 0 {
		rawURL += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return errors.Wrap(err, "new request failed")
	}
	return c.do(req, header, out)
}

// PostJSON encodes body as JSON, POSTs it to rawURL and decodes the JSON
// response into out.
func (c *HTTPClient) PostJSON(ctx context.Context, rawURL string, header http.Header, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "marshal request body")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "new request failed")
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, header, out)
}

func (c *HTTPClient) do(req *http.Request, header http.Header, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return errors.Wrap(err, "rate limiter wait")
		}
	}

	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", req.Method, req.URL.Host)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(body))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(out); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}
