package sso

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/acectf/roster-sync/internal/roster"
)

// Input is what a client submits to the bridge
type Input struct {
	Token string
	// Email is optional; when present it must match the token
	Email string
}

// Outcome is an established local session
type Outcome struct {
	User      *roster.User
	Session   string
	ExpiresAt time.Time
	Created   bool
}

// Bridge maps verified identities to local users and sessions
type Bridge struct {
	verifier *IdentityVerifier
	sessions *Sessions
	store    roster.Store
	creds    roster.Credentials
}

// NewBridge creates a bridge
func NewBridge(verifier *IdentityVerifier, sessions *Sessions, store roster.Store, creds roster.Credentials) *Bridge {
	return &Bridge{verifier: verifier, sessions: sessions, store: store, creds: creds}
}

// Authenticate verifies in.Token, finds or creates the local user named by the token's
// email and issues a session. Only the verified claims decide which account is used.
func (b *Bridge) Authenticate(ctx context.Context, in Input) (*Outcome, error) {
	if in.Token == "" {
		return nil, ErrMissingInput
	}
	claims, err := b.verifier.Verify(in.Token)
	if err != nil {
		return nil, err
	}
	email := roster.NormalizeEmail(claims.Email)
	if in.Email != "" && roster.NormalizeEmail(in.Email) != email {
		return nil, fmt.Errorf("%w: email does not match token", ErrInvalidToken)
	}

	role := roster.RoleUser
	if claims.IsAdmin {
		role = roster.RoleAdmin
	}

	out := &Outcome{}
	err = b.store.RunInTx(ctx, func(q roster.Querier) error {
		user, err := q.UserByEmail(ctx, email)
		if err == nil {
			out.User = user
			return nil
		}
		if !errors.Is(err, roster.ErrNotFound) {
			return err
		}
		nu, err := b.creds.NewUser(email, role)
		if err != nil {
			return err
		}
		out.User, err = q.CreateUser(ctx, nu)
		out.Created = err == nil
		return err
	})
	if errors.Is(err, roster.ErrConflict) {
		// created concurrently by a sync pass
		out.User, err = b.store.Querier().UserByEmail(ctx, email)
		out.Created = false
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve local user: %w", err)
	}

	out.Session, out.ExpiresAt, err = b.sessions.Issue(out.User)
	if err != nil {
		return nil, err
	}

	if out.Created {
		slog.InfoContext(ctx, "Created user from SSO", "email", email, "local_id", out.User.ID, "role", role)
	}
	slog.InfoContext(ctx, "SSO session established", "local_id", out.User.ID, "external_id", claims.ID)
	return out, nil
}
