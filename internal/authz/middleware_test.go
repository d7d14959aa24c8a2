package authz_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/acectf/roster-sync/internal/auth"
	"github.com/acectf/roster-sync/internal/authz"
	"github.com/acectf/roster-sync/internal/authz/mocks"
	"github.com/acectf/roster-sync/internal/config"
	"github.com/acectf/roster-sync/internal/roster"
	"github.com/acectf/roster-sync/internal/sso"
)

func guarded(t *testing.T, authorizer authz.Authorizer, mapping []config.RoleMappingEntry) (http.Handler, *sso.Sessions) {
	t.Helper()
	sessions := sso.NewSessions([]byte("session-secret"), time.Hour, nil)
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := auth.NewSessionMiddleware(sessions).Middleware(authz.Middleware(authorizer, mapping)(ok))
	return h, sessions
}

func request(t *testing.T, sessions *sso.Sessions, role roster.Role, method, path string) *http.Request {
	t.Helper()
	token, _, err := sessions.Issue(&roster.User{ID: 7, Role: role})
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestMiddlewareWithDefaultPolicies(t *testing.T) {
	t.Parallel()

	authorizer, err := authz.NewCedarAuthorizer(nil)
	require.NoError(t, err)
	mapping := []config.RoleMappingEntry{
		{Role: "admin", Actions: []string{authz.ActionRead, authz.ActionRun}},
		{Role: "user", Actions: []string{authz.ActionRead}},
	}

	tests := []struct {
		name       string
		role       roster.Role
		method     string
		path       string
		wantStatus int
	}{
		{name: "admin runs sync", role: roster.RoleAdmin, method: http.MethodPost, path: "/admin/registration-sync/manual-sync", wantStatus: http.StatusOK},
		{name: "admin reads preview", role: roster.RoleAdmin, method: http.MethodGet, path: "/admin/score-sync/preview", wantStatus: http.StatusOK},
		{name: "user reads status", role: roster.RoleUser, method: http.MethodGet, path: "/admin/registration-sync/status", wantStatus: http.StatusOK},
		{name: "user cannot run sync", role: roster.RoleUser, method: http.MethodPost, path: "/admin/score-sync/manual-sync", wantStatus: http.StatusForbidden},
		{name: "unmapped role", role: roster.Role("guest"), method: http.MethodGet, path: "/admin/score-sync/preview", wantStatus: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h, sessions := guarded(t, authorizer, mapping)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, request(t, sessions, tt.role, tt.method, tt.path))
			assert.Equal(t, tt.wantStatus, rec.Code)

			if tt.wantStatus != http.StatusForbidden {
				return
			}
			var body authz.ForbiddenResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.False(t, body.Success)
			require.NotNil(t, body.Details)
			assert.Equal(t, authz.RouteAction(tt.method), body.Details.RequiredAction)
			assert.Equal(t, string(tt.role), body.Details.Role)
			assert.Contains(t, body.Details.Hint, "admin")
		})
	}
}

func TestMiddlewarePassesRequestToAuthorizer(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	authorizer := mocks.NewMockAuthorizer(ctrl)
	authorizer.EXPECT().Authorize(gomock.Any(), authz.Request{
		Subject:        "7",
		Role:           "admin",
		GrantedActions: []string{authz.ActionRun},
		Action:         authz.ActionRun,
		ResourceID:     "score-sync",
	}).Return(authz.Decision{Allowed: true, Reasons: []string{"policy0"}}, nil)

	h, sessions := guarded(t, authorizer, []config.RoleMappingEntry{{Role: "admin", Actions: []string{authz.ActionRun}}})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, request(t, sessions, roster.RoleAdmin, http.MethodPost, "/admin/score-sync/manual-sync"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddlewareAuthorizerError(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	authorizer := mocks.NewMockAuthorizer(ctrl)
	authorizer.EXPECT().Authorize(gomock.Any(), gomock.Any()).Return(authz.Decision{}, errors.New("boom"))

	h, sessions := guarded(t, authorizer, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, request(t, sessions, roster.RoleAdmin, http.MethodGet, "/admin/score-sync/preview"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMiddlewareWithoutSession(t *testing.T) {
	t.Parallel()

	authorizer, err := authz.NewCedarAuthorizer(nil)
	require.NoError(t, err)
	called := false
	h := authz.Middleware(authorizer, nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/score-sync/preview", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called)
}
