// Package api is the client for the remote combined-response endpoint.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"txdash/internal/core"
)

const (
	// DefaultBaseURL is the public combined-response endpoint.
	DefaultBaseURL = "https://roxilersystems-assignment.onrender.com/combined-response"

	defaultTimeout = 15 * time.Second
	maxBodyBytes   = 4 << 20
)

// Query parameter names understood by the endpoint.
const (
	ParamMonth  = "month"
	ParamSearch = "s_query"
	ParamLimit  = "limit"
	ParamOffset = "offset"
)

// Client issues combined-response requests.
type Client struct {
	httpClient *http.Client
	baseURL    string
	timeout    *time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client. It is never modified.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout. Zero disables it. It applies to
// a copy of the http.Client whatever the option order.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = &d }
}

// NewClient creates a client for the endpoint at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    baseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout != nil {
		hc := *c.httpClient
		hc.Timeout = *c.timeout
		c.httpClient = &hc
	}
	return c
}

// StatusError is returned for any response outside 2xx. The body is not parsed.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d", e.StatusCode)
}

// IsStatusError reports whether err carries a non-2xx HTTP status.
func IsStatusError(err error) bool {
	var se *StatusError
	return errors.As(err, &se)
}

// RequestURL builds the GET URL for the given filter.
func (c *Client) RequestURL(f core.FilterState) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	params := u.Query()
	params.Set(ParamMonth, string(f.Month))
	params.Set(ParamSearch, f.SearchText)
	params.Set(ParamLimit, strconv.Itoa(core.PageSize))
	params.Set(ParamOffset, strconv.Itoa(f.Offset()))
	u.RawQuery = params.Encode()
	return u.String(), nil
}

// FetchCombined performs one GET for the filter and decodes the body.
// Transport errors, non-2xx statuses and malformed bodies are all returned as errors.
func (c *Client) FetchCombined(ctx context.Context, f core.FilterState) (core.CombinedResponse, error) {
	reqURL, err := c.RequestURL(f)
	if err != nil {
		return core.CombinedResponse{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return core.CombinedResponse{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return core.CombinedResponse{}, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return core.CombinedResponse{}, &StatusError{StatusCode: resp.StatusCode}
	}

	var out core.CombinedResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&out); err != nil {
		return core.CombinedResponse{}, fmt.Errorf("failed to decode response: %w", err)
	}
	return out, nil
}
