package httpclient_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acectf/roster-sync/internal/httpclient"
)

// newTestServer creates a new test server with keep-alives disabled.
// Closing a server with keep-alives enabled can affect other parallel tests
// sharing the HTTP transport.
func newTestServer(handler http.Handler) *httptest.Server {
	server := httptest.NewServer(handler)
	server.Config.SetKeepAlivesEnabled(false)
	return server
}

func TestNewDefaultClient(t *testing.T) {
	t.Parallel()

	for _, timeout := range []time.Duration{0, 5 * time.Second, 10 * time.Minute} {
		client := httpclient.NewDefaultClient(timeout)
		require.NotNil(t, client)
	}
}

func TestDefaultClient_Do_Headers(t *testing.T) {
	t.Parallel()

	var received http.Header
	var receivedMethod string
	var receivedBody map[string]string

	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received = r.Header.Clone()
		receivedMethod = r.Method
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &receivedBody)
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer server.Close()

	client := httpclient.NewDefaultClient(5 * time.Second)
	data, err := client.Do(context.Background(), httpclient.Request{
		Method:      http.MethodPatch,
		URL:         server.URL + "/admin/teams/1",
		Body:        map[string]string{"name": "Foo"},
		BearerToken: "tok",
	})

	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true}`, string(data))
	assert.Equal(t, http.MethodPatch, receivedMethod)
	assert.Equal(t, httpclient.UserAgent, received.Get("User-Agent"))
	assert.Equal(t, "application/json", received.Get("Accept"))
	assert.Equal(t, "application/json", received.Get("Content-Type"))
	assert.Equal(t, "Bearer tok", received.Get("Authorization"))
	assert.Equal(t, map[string]string{"name": "Foo"}, receivedBody)
}

func TestDefaultClient_Do_NoBodyDefaultsToGet(t *testing.T) {
	t.Parallel()

	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Empty(t, r.Header.Get("Content-Type"))
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	data, err := httpclient.NewDefaultClient(0).Do(context.Background(), httpclient.Request{URL: server.URL})
	require.NoError(t, err)
	assert.Equal(t, "ok", string(data))
}

func TestDefaultClient_Do_HTTPErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		statusCode    int
		responseBody  string
		errorContains string
	}{
		{
			name:          "401 Unauthorized",
			statusCode:    http.StatusUnauthorized,
			responseBody:  `{"success":false,"message":"token expired"}`,
			errorContains: "token expired",
		},
		{
			name:          "404 Not Found",
			statusCode:    http.StatusNotFound,
			responseBody:  "Not Found",
			errorContains: "HTTP 404",
		},
		{
			name:          "500 with empty body uses status text",
			statusCode:    http.StatusInternalServerError,
			errorContains: "Internal Server Error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(tt.responseBody))
			}))
			defer server.Close()

			_, err := httpclient.NewDefaultClient(5*time.Second).Do(context.Background(), httpclient.Request{URL: server.URL})

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorContains)
			assert.Equal(t, tt.statusCode, httpclient.StatusCode(err))
		})
	}
}

func TestDefaultClient_Do_Timeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	defer close(release)

	_, err := httpclient.NewDefaultClient(50*time.Millisecond).Do(context.Background(), httpclient.Request{URL: server.URL})
	require.Error(t, err)
	assert.Equal(t, 0, httpclient.StatusCode(err))
}

func TestDefaultClient_Do_ContextCanceled(t *testing.T) {
	t.Parallel()

	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := httpclient.NewDefaultClient(time.Second).Do(ctx, httpclient.Request{URL: server.URL})
	require.ErrorIs(t, err, context.Canceled)
}

func TestDefaultClient_Do_SizeLimitExceeded(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "via Content-Length",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Length", fmt.Sprintf("%d", httpclient.MaxResponseSize+1))
				w.WriteHeader(http.StatusOK)
			},
		},
		{
			name: "via actual content",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
				chunk := make([]byte, 1024*1024)
				for i := 0; i < 11; i++ {
					_, _ = w.Write(chunk)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := newTestServer(tt.handler)
			defer server.Close()

			_, err := httpclient.NewDefaultClient(30*time.Second).Do(context.Background(), httpclient.Request{URL: server.URL})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "exceeds maximum allowed size")
		})
	}
}

func TestHTTPError(t *testing.T) {
	t.Parallel()

	err := httpclient.NewHTTPError(404, "http://example.com", "Not Found")
	assert.Equal(t, "HTTP 404 for URL http://example.com: Not Found", err.Error())
	assert.Equal(t, 404, httpclient.StatusCode(fmt.Errorf("wrapped: %w", err)))
	assert.Equal(t, 0, httpclient.StatusCode(assert.AnError))
}
