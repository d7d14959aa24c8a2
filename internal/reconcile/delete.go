package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/acectf/roster-sync/internal/otel"
	"github.com/acectf/roster-sync/internal/roster"
)

// shortIDLength is the length of the external id prefix used by partial matching
const shortIDLength = 8

// TeamRef carries whatever identifiers a deletion notification supplied
type TeamRef struct {
	ExternalID string
	LocalID    *int64
	Name       string
}

// Empty reports whether the reference carries no identifier at all
func (r TeamRef) Empty() bool {
	return r.ExternalID == "" && r.LocalID == nil && r.Name == ""
}

// Deletion describes a deleted team
type Deletion struct {
	Team     roster.Team
	Detached int64
	// MatchedBy is "local_id", "name" or "partial"
	MatchedBy string
}

// DeleteTeam removes the local team ref resolves to, after detaching its members.
// Resolution order is reported local id, exact name and, when enabled, a partial match of
// the external id or name against local team names. The partial match must be unique.
func (e *Engine) DeleteTeam(ctx context.Context, ref TeamRef) (*Deletion, error) {
	ctx, span := otel.StartSpan(ctx, e.tracer, "reconcile.DeleteTeam",
		trace.WithAttributes(
			otel.AttrExternalTeamID.String(ref.ExternalID),
			otel.AttrTeamName.String(ref.Name),
		))
	defer span.End()

	var deletion *Deletion
	err := e.store.RunInTx(ctx, func(q roster.Querier) error {
		team, how, err := e.resolveRef(ctx, q, ref)
		if err != nil {
			return err
		}
		detached, err := q.ClearTeamMembers(ctx, team.ID)
		if err != nil {
			return err
		}
		if err := q.DeleteTeam(ctx, team.ID); err != nil {
			return err
		}
		deletion = &Deletion{Team: *team, Detached: detached, MatchedBy: how}
		return nil
	})
	if err != nil {
		otel.RecordError(span, err)
		return nil, err
	}

	slog.InfoContext(ctx, "Deleted team",
		"team", deletion.Team.Name,
		"local_id", deletion.Team.ID,
		"matched_by", deletion.MatchedBy,
		"members_detached", deletion.Detached)
	return deletion, nil
}

func (e *Engine) resolveRef(ctx context.Context, q roster.Querier, ref TeamRef) (*roster.Team, string, error) {
	team, how, err := resolveExact(ctx, q, ref)
	if err == nil || !errors.Is(err, ErrTeamNotFound) {
		return team, how, err
	}

	if e.allowPartial {
		team, err := partialMatch(ctx, q, ref)
		if err != nil {
			return nil, "", err
		}
		if team != nil {
			slog.WarnContext(ctx, "Resolved team by partial match", "team", team.Name, "external_id", ref.ExternalID)
			return team, "partial", nil
		}
	}

	return nil, "", err
}

// resolveExact looks the team up by reported local id, then by exact name
func resolveExact(ctx context.Context, q roster.Querier, ref TeamRef) (*roster.Team, string, error) {
	if ref.LocalID != nil {
		team, err := q.TeamByID(ctx, *ref.LocalID)
		if err == nil {
			return team, "local_id", nil
		}
		if !errors.Is(err, roster.ErrNotFound) {
			return nil, "", err
		}
	}

	if ref.Name != "" {
		team, err := q.TeamByName(ctx, ref.Name)
		if err == nil {
			return team, "name", nil
		}
		if !errors.Is(err, roster.ErrNotFound) {
			return nil, "", err
		}
	}

	return nil, "", fmt.Errorf("external id %q, name %q: %w", ref.ExternalID, ref.Name, ErrTeamNotFound)
}

// partialMatch returns the only team whose name contains the short external id or the
// given name, nil if none does, and ErrAmbiguousTeam if several do
func partialMatch(ctx context.Context, q roster.Querier, ref TeamRef) (*roster.Team, error) {
	var fragments []string
	if ref.ExternalID != "" {
		short := ref.ExternalID
		if len(short) > shortIDLength {
			short = short[:shortIDLength]
		}
		fragments = append(fragments, short)
	}
	if ref.Name != "" {
		fragments = append(fragments, ref.Name)
	}

	matches := map[int64]roster.Team{}
	for _, fragment := range fragments {
		teams, err := q.TeamsByNameContaining(ctx, fragment)
		if err != nil {
			return nil, err
		}
		for _, t := range teams {
			matches[t.ID] = t
		}
	}

	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		for _, t := range matches {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%d teams match external id %q / name %q: %w", len(matches), ref.ExternalID, ref.Name, ErrAmbiguousTeam)
}

// DetachMember clears the team of the user with the given email. If the user was the
// captain of that team the captain is cleared too. Detaching a user without a team is a no-op.
//
// When from names a team by local id or name, the membership is only cleared if the user
// is still on that team. A user who already moved elsewhere is left alone.
func (e *Engine) DetachMember(ctx context.Context, email string, from TeamRef) error {
	ctx, span := otel.StartSpan(ctx, e.tracer, "reconcile.DetachMember",
		trace.WithAttributes(
			otel.AttrExternalTeamID.String(from.ExternalID),
			otel.AttrTeamName.String(from.Name),
		))
	defer span.End()

	email = roster.NormalizeEmail(email)
	scoped := from.LocalID != nil || from.Name != ""
	var teamID *int64
	var stale bool
	err := e.store.RunInTx(ctx, func(q roster.Querier) error {
		user, err := q.UserByEmail(ctx, email)
		if err != nil {
			return err
		}
		if user.TeamID == nil {
			return nil
		}

		if scoped {
			named, _, err := resolveExact(ctx, q, from)
			if err != nil && !errors.Is(err, ErrTeamNotFound) {
				return err
			}
			if named == nil || named.ID != *user.TeamID {
				stale = true
				return nil
			}
		}
		teamID = user.TeamID

		team, err := q.TeamByID(ctx, *user.TeamID)
		if err != nil && !errors.Is(err, roster.ErrNotFound) {
			return err
		}
		if team != nil && team.CaptainID != nil && *team.CaptainID == user.ID {
			if err := q.UpdateTeamCaptain(ctx, team.ID, nil); err != nil {
				return err
			}
		}
		return q.SetUserTeam(ctx, user.ID, nil)
	})
	if err != nil {
		otel.RecordError(span, err)
		return err
	}

	switch {
	case stale:
		slog.InfoContext(ctx, "Member is no longer on the team, leaving membership alone",
			"email", email, "team", from.Name, "external_id", from.ExternalID)
	case teamID == nil:
		slog.DebugContext(ctx, "Member already detached", "email", email)
	default:
		slog.InfoContext(ctx, "Detached member", "email", email, "local_team_id", *teamID)
	}
	return nil
}
