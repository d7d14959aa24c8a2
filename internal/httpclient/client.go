// Package httpclient provides a small JSON-over-HTTP client with bounded timeouts and response sizes.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultTimeout is used when no timeout is given to NewDefaultClient
	DefaultTimeout = 10 * time.Second

	// MaxResponseSize bounds the number of bytes read from a response body
	MaxResponseSize = 10 * 1024 * 1024

	// UserAgent is sent with every request
	UserAgent = "roster-sync/1.0"

	// maxErrorMessage bounds the body excerpt kept in an HTTPError
	maxErrorMessage = 512
)

// Request describes a single JSON request
type Request struct {
	Method string
	URL    string
	// Body is encoded as JSON when non-nil
	Body any
	// BearerToken is sent as an Authorization header when non-empty
	BearerToken string
}

// Client is the interface used by API clients in this module
type Client interface {
	// Do sends the request and returns the raw response body of a 2xx response.
	// Non-2xx responses are returned as *HTTPError.
	Do(ctx context.Context, req Request) ([]byte, error)
}

// DefaultClient implements Client on top of net/http
type DefaultClient struct {
	client *http.Client
}

// NewDefaultClient creates a client whose requests time out after timeout
func NewDefaultClient(timeout time.Duration) *DefaultClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &DefaultClient{
		client: &http.Client{Timeout: timeout},
	}
}

// Do implements Client
func (c *DefaultClient) Do(ctx context.Context, r Request) ([]byte, error) {
	var body io.Reader
	if r.Body != nil {
		payload, err := json.Marshal(r.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, r.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+r.BearerToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to perform request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.ContentLength > MaxResponseSize {
		return nil, fmt.Errorf("response size %d exceeds maximum allowed size of %.2f MB",
			resp.ContentLength, float64(MaxResponseSize)/(1024*1024))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if len(data) > MaxResponseSize {
		return nil, fmt.Errorf("response body exceeds maximum allowed size of %.2f MB",
			float64(MaxResponseSize)/(1024*1024))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(data))
		if len(msg) > maxErrorMessage {
			msg = msg[:maxErrorMessage]
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return data, NewHTTPError(resp.StatusCode, r.URL, msg)
	}

	return data, nil
}
