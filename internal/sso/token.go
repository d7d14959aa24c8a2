// Package sso bridges identities issued by the registration service into local sessions.
package sso

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/acectf/roster-sync/internal/roster"
)

// CookieName is the local session cookie
const CookieName = "roster_session"

const sessionIssuer = "roster-sync"

var (
	// ErrMissingInput is returned when no token was supplied
	ErrMissingInput = errors.New("token is required")

	// ErrExpiredToken is returned for a token past its expiry
	ErrExpiredToken = errors.New("token has expired")

	// ErrInvalidToken is returned for a token that fails any other check
	ErrInvalidToken = errors.New("token is invalid")
)

// IdentityClaims are the claims of a registration service identity token
type IdentityClaims struct {
	ID      string  `json:"id"`
	Email   string  `json:"email"`
	IsAdmin bool    `json:"isAdmin"`
	TeamID  *string `json:"teamId,omitempty"`
	jwt.RegisteredClaims
}

// SessionClaims are the claims of a local session token
type SessionClaims struct {
	Role roster.Role `json:"role"`
	jwt.RegisteredClaims
}

// UserID returns the local user id carried in the subject
func (c *SessionClaims) UserID() (int64, error) {
	return strconv.ParseInt(c.Subject, 10, 64)
}

// hs256 parses tokens signed with HS256 only, using clock for time checks
func hs256(clock clockwork.Clock, opts ...jwt.ParserOption) *jwt.Parser {
	opts = append(opts,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(clock.Now),
	)
	return jwt.NewParser(opts...)
}

func keyFunc(secret []byte) jwt.Keyfunc {
	return func(*jwt.Token) (any, error) {
		return secret, nil
	}
}

func classify(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return fmt.Errorf("%w: %v", ErrExpiredToken, err)
	}
	return fmt.Errorf("%w: %v", ErrInvalidToken, err)
}

// IdentityVerifier checks identity tokens signed with the shared secret
type IdentityVerifier struct {
	secret []byte
	clock  clockwork.Clock
}

// NewIdentityVerifier creates a verifier for tokens signed with secret
func NewIdentityVerifier(secret []byte, clock clockwork.Clock) *IdentityVerifier {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &IdentityVerifier{secret: secret, clock: clock}
}

// Verify parses token and returns its claims. The email claim is required.
func (v *IdentityVerifier) Verify(token string) (*IdentityClaims, error) {
	claims := &IdentityClaims{}
	if _, err := hs256(v.clock).ParseWithClaims(token, claims, keyFunc(v.secret)); err != nil {
		return nil, classify(err)
	}
	if roster.NormalizeEmail(claims.Email) == "" {
		return nil, fmt.Errorf("%w: no email claim", ErrInvalidToken)
	}
	return claims, nil
}

// Sessions issues and parses local session tokens
type Sessions struct {
	secret []byte
	ttl    time.Duration
	clock  clockwork.Clock
}

// NewSessions creates a session issuer with the given lifetime
func NewSessions(secret []byte, ttl time.Duration, clock clockwork.Clock) *Sessions {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Sessions{secret: secret, ttl: ttl, clock: clock}
}

// Issue signs a session for user and returns it with its expiry
func (s *Sessions) Issue(user *roster.User) (string, time.Time, error) {
	now := s.clock.Now()
	exp := now.Add(s.ttl)
	claims := SessionClaims{
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sessionIssuer,
			Subject:   strconv.FormatInt(user.ID, 10),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session: %w", err)
	}
	return signed, exp, nil
}

// Parse validates a session token
func (s *Sessions) Parse(token string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	parser := hs256(s.clock, jwt.WithIssuer(sessionIssuer))
	if _, err := parser.ParseWithClaims(token, claims, keyFunc(s.secret)); err != nil {
		return nil, classify(err)
	}
	if _, err := claims.UserID(); err != nil {
		return nil, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	return claims, nil
}
