// Package registration implements the client for the external team registration service.
//
// The service owns team identity, membership and captaincy. Every authenticated call
// carries a bearer token obtained from /auth/login; a 401 triggers at most
// maxReauthAttempts fresh logins before the call fails with ErrAuth.
package registration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/acectf/roster-sync/internal/httpclient"
	"github.com/acectf/roster-sync/internal/otel"
)

//go:generate mockgen -destination=mocks/mock_client.go -package=mocks -source=client.go Client

// maxReauthAttempts is the number of logins allowed after an authorization failure
// before a call gives up
const maxReauthAttempts = 1

// Client is the contract of the registration service API
type Client interface {
	// Authenticate performs a fresh login and returns the new bearer token
	Authenticate(ctx context.Context) (string, error)

	// ListTeams returns every team known to the registration service
	ListTeams(ctx context.Context) ([]Team, error)

	// ReportLocalTeamID records the local id of an external team
	ReportLocalTeamID(ctx context.Context, externalTeamID string, localTeamID int64) error

	// FetchUser returns a single external user
	FetchUser(ctx context.Context, externalUserID string) (Member, error)

	// PushScores sends the current standings in one batch
	PushScores(ctx context.Context, scores []ScoreEntry) error

	// BaseURL returns the API root the client talks to
	BaseURL() string
}

// Option configures an APIClient
type Option func(*APIClient)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(c httpclient.Client) Option {
	return func(a *APIClient) {
		a.http = c
	}
}

// WithTracer sets the tracer used to create one span per call
func WithTracer(tracer trace.Tracer) Option {
	return func(a *APIClient) {
		a.tracer = tracer
	}
}

// APIClient implements Client over HTTP
type APIClient struct {
	baseURL  string
	email    string
	password string
	http     httpclient.Client
	tracer   trace.Tracer

	mu    sync.Mutex
	token string
}

var _ Client = (*APIClient)(nil)

// NewClient creates a client for the registration service rooted at baseURL
func NewClient(baseURL, email, password string, opts ...Option) *APIClient {
	c := &APIClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		email:    email,
		password: password,
		http:     httpclient.NewDefaultClient(httpclient.DefaultTimeout),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL implements Client
func (c *APIClient) BaseURL() string {
	return c.baseURL
}

// Authenticate implements Client
func (c *APIClient) Authenticate(ctx context.Context) (string, error) {
	ctx, span := otel.StartSpan(ctx, c.tracer, "registration.Authenticate")
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	token, err := c.login(ctx)
	if err != nil {
		otel.RecordError(span, err)
		return "", err
	}
	c.token = token
	return token, nil
}

// ListTeams implements Client
func (c *APIClient) ListTeams(ctx context.Context) ([]Team, error) {
	ctx, span := otel.StartSpan(ctx, c.tracer, "registration.ListTeams")
	defer span.End()

	data, err := c.call(ctx, "list teams", http.MethodGet, "/admin/teams", nil)
	if err != nil {
		otel.RecordError(span, err)
		return nil, err
	}

	var resp envelope[teamsData]
	if err := decode(data, &resp, "list teams"); err != nil {
		otel.RecordError(span, err)
		return nil, err
	}

	span.SetAttributes(otel.AttrResultCount.Int(len(resp.Data.Teams)))
	slog.DebugContext(ctx, "Fetched teams from registration service", "count", len(resp.Data.Teams))
	return resp.Data.Teams, nil
}

// ReportLocalTeamID implements Client
func (c *APIClient) ReportLocalTeamID(ctx context.Context, externalTeamID string, localTeamID int64) error {
	ctx, span := otel.StartSpan(ctx, c.tracer, "registration.ReportLocalTeamID",
		trace.WithAttributes(
			otel.AttrExternalTeamID.String(externalTeamID),
			otel.AttrLocalTeamID.Int64(localTeamID),
		))
	defer span.End()

	path := "/admin/teams/" + url.PathEscape(externalTeamID)
	if _, err := c.call(ctx, "report local team id", http.MethodPatch, path, reportRequest{LocalTeamID: localTeamID}); err != nil {
		otel.RecordError(span, err)
		return err
	}
	return nil
}

// FetchUser implements Client
func (c *APIClient) FetchUser(ctx context.Context, externalUserID string) (Member, error) {
	ctx, span := otel.StartSpan(ctx, c.tracer, "registration.FetchUser")
	defer span.End()

	path := "/admin/users/" + url.PathEscape(externalUserID)
	data, err := c.call(ctx, "fetch user", http.MethodGet, path, nil)
	if err != nil {
		if httpclient.StatusCode(err) == http.StatusNotFound {
			err = fmt.Errorf("user %s: %w", externalUserID, ErrNotFound)
		}
		otel.RecordError(span, err)
		return Member{}, err
	}

	var resp envelope[userData]
	if err := json.Unmarshal(data, &resp); err != nil {
		err = &TransientError{Op: "fetch user", Err: fmt.Errorf("failed to decode response: %w", err)}
		otel.RecordError(span, err)
		return Member{}, err
	}
	if resp.Data.User.Email == "" {
		err := fmt.Errorf("user %s has no email: %w", externalUserID, ErrNotFound)
		otel.RecordError(span, err)
		return Member{}, err
	}
	if resp.Data.User.ID == "" {
		resp.Data.User.ID = externalUserID
	}
	return resp.Data.User, nil
}

// PushScores implements Client
func (c *APIClient) PushScores(ctx context.Context, scores []ScoreEntry) error {
	ctx, span := otel.StartSpan(ctx, c.tracer, "registration.PushScores",
		trace.WithAttributes(otel.AttrResultCount.Int(len(scores))))
	defer span.End()

	data, err := c.call(ctx, "push scores", http.MethodPost, "/admin/ctfd/sync-scores", scoresRequest{Scores: scores})
	if err != nil {
		otel.RecordError(span, err)
		return err
	}

	var resp envelope[json.RawMessage]
	if err := decode(data, &resp, "push scores"); err != nil {
		otel.RecordError(span, err)
		return err
	}
	return nil
}

// call performs an authenticated request. A 401 invalidates the token and triggers a
// fresh login, at most maxReauthAttempts times.
func (c *APIClient) call(ctx context.Context, op, method, path string, body any) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		token, err := c.currentToken(ctx)
		if err != nil {
			return nil, err
		}

		data, err := c.http.Do(ctx, httpclient.Request{
			Method:      method,
			URL:         c.baseURL + path,
			Body:        body,
			BearerToken: token,
		})
		if err == nil {
			return data, nil
		}

		if httpclient.StatusCode(err) != http.StatusUnauthorized {
			return nil, &TransientError{Op: op, Err: err}
		}
		if attempt >= maxReauthAttempts {
			return nil, fmt.Errorf("%s: token rejected after re-authentication: %w", op, ErrAuth)
		}

		slog.InfoContext(ctx, "Registration token rejected, re-authenticating", "operation", op)
		if err := c.refresh(ctx, token); err != nil {
			return nil, err
		}
	}
}

// currentToken returns the cached token, logging in first if there is none
func (c *APIClient) currentToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" {
		return c.token, nil
	}
	token, err := c.login(ctx)
	if err != nil {
		return "", err
	}
	c.token = token
	return token, nil
}

// refresh replaces a rejected token. If another caller already replaced it, the new
// token is kept and no login happens.
func (c *APIClient) refresh(ctx context.Context, rejected string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.token != rejected {
		return nil
	}
	c.token = ""
	token, err := c.login(ctx)
	if err != nil {
		return err
	}
	c.token = token
	return nil
}

// login must be called with c.mu held
func (c *APIClient) login(ctx context.Context) (string, error) {
	data, err := c.http.Do(ctx, httpclient.Request{
		Method: http.MethodPost,
		URL:    c.baseURL + "/auth/login",
		Body:   loginRequest{Email: c.email, Password: c.password},
	})
	if err != nil {
		switch httpclient.StatusCode(err) {
		case http.StatusUnauthorized, http.StatusForbidden:
			return "", fmt.Errorf("login as %s: %w", c.email, ErrAuth)
		default:
			return "", &TransientError{Op: "login", Err: err}
		}
	}

	var resp envelope[loginData]
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", &TransientError{Op: "login", Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	if !resp.Success || resp.Data.Token == "" {
		return "", fmt.Errorf("login as %s refused: %w", c.email, ErrAuth)
	}

	slog.DebugContext(ctx, "Authenticated with registration service")
	return resp.Data.Token, nil
}

// decode parses an envelope and treats success:false as a transient failure
func decode[T any](data []byte, resp *envelope[T], op string) error {
	if err := json.Unmarshal(data, resp); err != nil {
		return &TransientError{Op: op, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	if !resp.Success {
		msg := resp.Message
		if msg == "" {
			msg = "success=false"
		}
		return &TransientError{Op: op, Err: errors.New(msg)}
	}
	return nil
}
