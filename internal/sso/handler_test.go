package sso

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/acectf/roster-sync/internal/roster"
	"github.com/acectf/roster-sync/internal/roster/memstore"
)

type fixture struct {
	store    *memstore.Store
	sessions *Sessions
	handler  http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clock := clockwork.NewFakeClockAt(testEpoch)
	store := memstore.New()
	sessions := NewSessions([]byte("session-secret"), time.Hour, clock)
	bridge := NewBridge(
		NewIdentityVerifier(testSecret, clock),
		sessions,
		store,
		roster.Credentials{TeamEmailDomain: "ace-ctf.local", Cost: bcrypt.MinCost},
	)
	return &fixture{
		store:    store,
		sessions: sessions,
		handler:  NewHandler(bridge, "https://ctf.example.com/"),
	}
}

func (f *fixture) postJSON(t *testing.T, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/sso/authenticate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) postForm(t *testing.T, values url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/sso/authenticate", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == CookieName {
			return c
		}
	}
	t.Fatalf("no %s cookie set", CookieName)
	return nil
}

func goodToken(t *testing.T, email string, admin bool) string {
	claims := validClaims(email, testEpoch.Add(time.Hour))
	claims.IsAdmin = admin
	return identityToken(t, jwt.SigningMethodHS256, testSecret, claims)
}

func TestJSONLoginCreatesUser(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.postJSON(t, `{"token":"`+goodToken(t, "New.Player@x.com", false)+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var reply jsonReply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	assert.True(t, reply.Success)
	require.NotNil(t, reply.Data)
	assert.Equal(t, "new.player@x.com", reply.Data.Email)
	assert.Equal(t, "new.player", reply.Data.Name)
	assert.Equal(t, "https://ctf.example.com/challenges", reply.Data.RedirectURL)

	users := f.store.Users()
	require.Len(t, users, 1)
	assert.Equal(t, roster.RoleUser, users[0].Role)
	assert.True(t, users[0].Verified)

	cookie := sessionCookie(t, rec)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	claims, err := f.sessions.Parse(cookie.Value)
	require.NoError(t, err)
	id, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, users[0].ID, id)
}

func TestLoginReusesExistingUser(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	existing, err := f.store.Querier().CreateUser(context.Background(), roster.NewUser{Email: "a@x.com", Name: "alice"})
	require.NoError(t, err)

	rec := f.postJSON(t, `{"token":"`+goodToken(t, "A@x.com", false)+`","email":"a@x.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, f.store.Users(), 1)

	claims, err := f.sessions.Parse(sessionCookie(t, rec).Value)
	require.NoError(t, err)
	id, _ := claims.UserID()
	assert.Equal(t, existing.ID, id)
}

func TestAdminClaimCreatesAdmin(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.postJSON(t, `{"token":"`+goodToken(t, "root@x.com", true)+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	users := f.store.Users()
	require.Len(t, users, 1)
	assert.Equal(t, roster.RoleAdmin, users[0].Role)
}

func TestJSONLoginFailures(t *testing.T) {
	t.Parallel()

	expired := identityToken(t, jwt.SigningMethodHS256, testSecret, validClaims("a@x.com", testEpoch.Add(-time.Hour)))

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantMsg  string
	}{
		{name: "malformed", body: `{`, wantCode: http.StatusBadRequest, wantMsg: "Malformed request body"},
		{name: "missing token", body: `{"email":"a@x.com"}`, wantCode: http.StatusBadRequest, wantMsg: "Token is required"},
		{name: "expired", body: `{"token":"` + expired + `"}`, wantCode: http.StatusUnauthorized, wantMsg: "Token has expired"},
		{name: "invalid", body: `{"token":"abc"}`, wantCode: http.StatusUnauthorized, wantMsg: "Token is invalid"},
		{
			name:     "email mismatch",
			body:     `{"token":"` + goodToken(t, "a@x.com", false) + `","email":"b@x.com"}`,
			wantCode: http.StatusUnauthorized,
			wantMsg:  "Token is invalid",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			rec := f.postJSON(t, tt.body)
			assert.Equal(t, tt.wantCode, rec.Code)

			var reply jsonReply
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
			assert.False(t, reply.Success)
			assert.Equal(t, tt.wantMsg, reply.Message)
			assert.Empty(t, f.store.Users())
			assert.Empty(t, rec.Result().Cookies())
		})
	}
}

func TestFormLoginRedirects(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.postForm(t, url.Values{"token": {goodToken(t, "a@x.com", false)}})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "https://ctf.example.com/challenges", rec.Header().Get("Location"))
	sessionCookie(t, rec)
}

func TestFormLoginFailureIsPlainText(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.postForm(t, url.Values{"token": {"abc"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, rec.Body.String(), "Token is invalid")
}

func TestWithCORS(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	h := WithCORS(f.handler, []string{"https://register.example.com"})

	req := httptest.NewRequest(http.MethodOptions, "/sso/authenticate", nil)
	req.Header.Set("Origin", "https://register.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "https://register.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	assert.Equal(t, f.handler, WithCORS(f.handler, nil))
}
