// Package httpclient provides the HTTP client shared by the upstream
// sources and the downstream management endpoint.
package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/schema"
)

// DefaultTimeout bounds a single request.
const DefaultTimeout = 5 * time.Minute

// Options configures a Client.
type Options struct {
	Timeout time.Duration
	Auth    AuthConfig
	// Transport overrides the default transport (tests).
	Transport http.RoundTripper
}

// Client posts form-encoded requests to one base URL.
type Client struct {
	baseURL    string
	httpClient *http.Client
	auth       authenticator
	encoder    *schema.Encoder
}

// Response is a raw HTTP response with its body read.
type Response struct {
	StatusCode int
	Status     string
	Body       []byte
}

// OK reports whether the status code is 2xx.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// New creates a new client.
func New(baseURL string, opts Options) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("baseURL is required")
	}
	if _, err := ParseURL(baseURL); err != nil {
		return nil, err
	}

	auth, err := newAuthenticator(opts.Auth)
	if err != nil {
		return nil, err
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	transport := opts.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		}
	}

	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		auth:    auth,
		encoder: schema.NewEncoder(),
	}, nil
}

// PostForm posts form to baseURL+path. The form is either url.Values or a
// struct with `schema` tags. Non-2xx responses are returned, not turned into
// errors; the caller decides what a failure looks like.
func (c *Client) PostForm(ctx context.Context, path string, form any) (*Response, error) {
	values, err := c.encode(form)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(values.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if err := c.auth.apply(req); err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{StatusCode: resp.StatusCode, Status: resp.Status, Body: body}, nil
}

// PostFormJSON posts form and decodes a 2xx JSON response into result.
// Other status codes are returned as *HTTPError.
func (c *Client) PostFormJSON(ctx context.Context, path string, form any, result any) error {
	resp, err := c.PostForm(ctx, path, form)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(resp.Body),
		}
	}
	if result != nil && len(resp.Body) > 0 {
		if err := json.Unmarshal(resp.Body, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w, body: %s", err, truncate(string(resp.Body), 512))
		}
	}
	return nil
}

// Close closes idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *Client) encode(form any) (url.Values, error) {
	switch f := form.(type) {
	case nil:
		return url.Values{}, nil
	case url.Values:
		return f, nil
	}
	values := url.Values{}
	if err := c.encoder.Encode(form, values); err != nil {
		return nil, fmt.Errorf("failed to encode form: %w", err)
	}
	return values, nil
}

// HTTPError represents an HTTP error response.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d %s: %s", e.StatusCode, e.Status, truncate(e.Body, 512))
}

// GetHTTPError returns the HTTPError in err's chain, if any.
func GetHTTPError(err error) (*HTTPError, bool) {
	var httpErr *HTTPError
	ok := errors.As(err, &httpErr)
	return httpErr, ok
}

// ParseURL parses and validates a URL.
func ParseURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid URL scheme: %s (must be http or https)", u.Scheme)
	}

	return rawURL, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
