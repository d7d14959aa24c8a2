// Package auth provides the session middleware for the admin HTTP API.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/acectf/roster-sync/internal/sso"
)

// RFC 6750 Section 3 error codes
const (
	// errorCodeInvalidRequest indicates the request carries no credential or a malformed one
	errorCodeInvalidRequest = "invalid_request"

	// errorCodeInvalidToken indicates the session is expired or invalid
	errorCodeInvalidToken = "invalid_token"
)

const defaultRealm = "roster-sync"

var errMissingCredential = errors.New("no session cookie or bearer token")

// SessionParser validates local session tokens
type SessionParser interface {
	Parse(token string) (*sso.SessionClaims, error)
}

type claimsKey struct{}

// ClaimsFromContext returns the session claims stored by the middleware
func ClaimsFromContext(ctx context.Context) (*sso.SessionClaims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*sso.SessionClaims)
	return claims, ok
}

// SessionMiddleware admits requests carrying a valid local session.
// Role checks are left to the authorization layer.
type SessionMiddleware struct {
	sessions SessionParser
	realm    string
}

// NewSessionMiddleware creates the middleware
func NewSessionMiddleware(sessions SessionParser) *SessionMiddleware {
	return &SessionMiddleware{sessions: sessions, realm: defaultRealm}
}

// Middleware returns an HTTP middleware function that performs authentication.
func (m *SessionMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := extractToken(r)
		if err != nil {
			slog.Warn("Session extraction failed",
				"error", err,
				"remote_addr", r.RemoteAddr,
				"path", r.URL.Path)
			m.writeError(w, http.StatusUnauthorized, errorCodeInvalidRequest, "missing or malformed credentials")
			return
		}

		claims, err := m.sessions.Parse(token)
		if err != nil {
			slog.Warn("Session validation failed",
				"error", err,
				"remote_addr", r.RemoteAddr,
				"path", r.URL.Path)
			m.writeError(w, http.StatusUnauthorized, errorCodeInvalidToken, "session validation failed")
			return
		}

		slog.Debug("Authentication successful",
			"subject", claims.Subject,
			"remote_addr", r.RemoteAddr,
			"path", r.URL.Path)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
	})
}

// extractToken reads the session from the Authorization header, then the session cookie
func extractToken(r *http.Request) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			return "", errors.New("authorization header is not a bearer token")
		}
		return strings.TrimSpace(token), nil
	}
	if cookie, err := r.Cookie(sso.CookieName); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}
	return "", errMissingCredential
}

// sanitizeHeaderValue removes characters that could enable header injection attacks.
func sanitizeHeaderValue(s string) string {
	if !strings.ContainsAny(s, "\r\n\"") {
		return s
	}
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "")
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}

// writeError writes a JSON error response with an RFC 6750 WWW-Authenticate header
func (m *SessionMiddleware) writeError(w http.ResponseWriter, status int, errCode, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Bearer realm="%s", error="%s", error_description="%s"`,
		sanitizeHeaderValue(m.realm), errCode, sanitizeHeaderValue(description)))
	w.WriteHeader(status)

	resp := struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}{
		Message: description,
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Failed to encode error response", "error", err)
	}
}
