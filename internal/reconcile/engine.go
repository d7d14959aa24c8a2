// Package reconcile brings the local roster into agreement with the registration service.
//
// A full pass reconciles every external team, each in its own transaction: a failure
// rolls back that team only and the pass moves on. Teams are never deleted by a pass;
// deletion happens only through DeleteTeam in response to an explicit notification.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/acectf/roster-sync/internal/otel"
	"github.com/acectf/roster-sync/internal/registration"
	"github.com/acectf/roster-sync/internal/roster"
)

var (
	// ErrTeamNotFound is returned when a deletion target cannot be resolved
	ErrTeamNotFound = errors.New("team not found")

	// ErrAmbiguousTeam is returned when a partial match resolves to more than one team
	ErrAmbiguousTeam = errors.New("team reference is ambiguous")

	errDuplicateExternal = errors.New("local team already reconciled for another external team in this pass")
)

// Result summarizes a reconciliation pass
type Result struct {
	// Teams is the number of external teams processed
	Teams int `json:"teams"`
	// Created counts local teams created
	Created int `json:"created"`
	// Updated counts existing local teams that needed at least one write
	Updated int `json:"updated"`
	// Unchanged counts local teams already in agreement
	Unchanged int `json:"unchanged"`
	// Reported counts local ids reported back to the registration service
	Reported int `json:"reported"`
	// Errors counts failed teams and membership conflicts
	Errors int `json:"errors"`
	// Writes counts mutating store calls
	Writes   int           `json:"writes"`
	Duration time.Duration `json:"duration"`
}

// Option configures an Engine
type Option func(*Engine)

// WithPartialNameMatch enables the last, heuristic tier of team deletion lookup
func WithPartialNameMatch(enabled bool) Option {
	return func(e *Engine) {
		e.allowPartial = enabled
	}
}

// WithTracer sets the tracer used for pass and per-team spans
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = tracer
	}
}

// Engine reconciles the local roster against the registration service
type Engine struct {
	client       registration.Client
	store        roster.Store
	creds        roster.Credentials
	allowPartial bool
	tracer       trace.Tracer
}

// New creates an engine
func New(client registration.Client, store roster.Store, creds roster.Credentials, opts ...Option) *Engine {
	e := &Engine{
		client: client,
		store:  store,
		creds:  creds,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// pass holds state shared by the teams of one full reconciliation
type pass struct {
	// claimed maps a normalized email to the external team that owns it in this pass
	claimed map[string]string
	// seen maps a local team id to the external team reconciled onto it in this pass
	seen map[int64]string
}

func newPass() *pass {
	return &pass{claimed: map[string]string{}, seen: map[int64]string{}}
}

// teamOutcome is the result of reconciling one external team
type teamOutcome struct {
	localID   int64
	created   bool
	writes    int
	conflicts int
	claims    []string
}

// FullSync reconciles every team listed by the registration service.
// It fails only if the roster cannot be listed; per-team failures are counted in the result.
func (e *Engine) FullSync(ctx context.Context) (*Result, error) {
	start := time.Now()
	ctx, span := otel.StartSpan(ctx, e.tracer, "reconcile.FullSync")
	defer span.End()

	teams, err := e.client.ListTeams(ctx)
	if err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to list external teams: %w", err)
	}

	result := &Result{}
	p := newPass()
	for _, ext := range teams {
		if err := ctx.Err(); err != nil {
			result.Duration = time.Since(start)
			return result, err
		}
		e.syncOne(ctx, p, ext, result)
	}

	result.Duration = time.Since(start)
	span.SetAttributes(otel.AttrResultCount.Int(result.Teams))
	slog.InfoContext(ctx, "Team reconciliation complete",
		"teams", result.Teams,
		"created", result.Created,
		"updated", result.Updated,
		"unchanged", result.Unchanged,
		"reported", result.Reported,
		"errors", result.Errors,
		"duration", result.Duration)
	return result, nil
}

// syncOne reconciles ext, folds the outcome into result and reports the local id back
func (e *Engine) syncOne(ctx context.Context, p *pass, ext registration.Team, result *Result) error {
	ctx, span := otel.StartSpan(ctx, e.tracer, "reconcile.Team",
		trace.WithAttributes(
			otel.AttrTeamName.String(ext.Name),
			otel.AttrExternalTeamID.String(ext.ID),
		))
	defer span.End()

	result.Teams++

	var out teamOutcome
	err := e.store.RunInTx(ctx, func(q roster.Querier) error {
		out = teamOutcome{}
		return e.reconcileTeam(ctx, q, p, ext, &out)
	})
	if err != nil {
		otel.RecordError(span, err)
		result.Errors++
		slog.ErrorContext(ctx, "Failed to reconcile team", "team", ext.Name, "external_id", ext.ID, "error", err)
		return err
	}

	for _, email := range out.claims {
		p.claimed[email] = ext.ID
	}
	p.seen[out.localID] = ext.ID

	result.Writes += out.writes
	result.Errors += out.conflicts
	switch {
	case out.created:
		result.Created++
	case out.writes > 0:
		result.Updated++
	default:
		result.Unchanged++
	}
	span.SetAttributes(otel.AttrLocalTeamID.Int64(out.localID))

	if ext.LocalTeamID == nil || *ext.LocalTeamID != out.localID {
		if err := e.client.ReportLocalTeamID(ctx, ext.ID, out.localID); err != nil {
			// correspondence is re-derived by name on the next pass
			slog.WarnContext(ctx, "Failed to report local team id",
				"team", ext.Name, "external_id", ext.ID, "local_id", out.localID, "error", err)
		} else {
			result.Reported++
		}
	}
	return nil
}

// reconcileTeam applies the writes for one external team inside a transaction
func (e *Engine) reconcileTeam(
	ctx context.Context,
	q roster.Querier,
	p *pass,
	ext registration.Team,
	out *teamOutcome,
) error {
	team, err := e.resolveTeam(ctx, q, ext, out)
	if err != nil {
		return err
	}
	if owner, ok := p.seen[team.ID]; ok && owner != ext.ID {
		return fmt.Errorf("team %q (local %d, claimed by external %s): %w", ext.Name, team.ID, owner, errDuplicateExternal)
	}
	out.localID = team.ID

	wanted := make(map[string]struct{}, len(ext.Members))
	var order []string
	for _, m := range ext.Members {
		email := roster.NormalizeEmail(m.Email)
		if email == "" {
			slog.DebugContext(ctx, "Skipping member without email", "team", ext.Name, "member_id", m.ID)
			continue
		}
		if owner, ok := p.claimed[email]; ok && owner != ext.ID {
			out.conflicts++
			slog.ErrorContext(ctx, "Member listed on two teams, keeping first assignment",
				"email", email, "team", ext.Name, "first_team_external_id", owner)
			continue
		}
		if _, dup := wanted[email]; dup {
			continue
		}
		wanted[email] = struct{}{}
		order = append(order, email)
	}

	// departures
	current, err := q.UsersByTeam(ctx, team.ID)
	if err != nil {
		return err
	}
	for _, u := range current {
		if _, keep := wanted[roster.NormalizeEmail(u.Email)]; keep {
			continue
		}
		if err := q.SetUserTeam(ctx, u.ID, nil); err != nil {
			return fmt.Errorf("failed to detach %s: %w", u.Email, err)
		}
		out.writes++
		slog.InfoContext(ctx, "Detached member no longer on team", "team", ext.Name, "email", u.Email)
	}

	// arrivals
	userIDs := make(map[string]int64, len(order))
	for _, email := range order {
		user, err := e.findOrCreateUser(ctx, q, email, out)
		if err != nil {
			return err
		}
		userIDs[email] = user.ID
		if user.TeamID == nil || *user.TeamID != team.ID {
			if err := q.SetUserTeam(ctx, user.ID, &team.ID); err != nil {
				return fmt.Errorf("failed to attach %s: %w", email, err)
			}
			out.writes++
		}
	}
	out.claims = order

	// captain
	var desired *int64
	if captain, ok := ext.Captain(); ok {
		if id, ok := userIDs[roster.NormalizeEmail(captain.Email)]; ok {
			desired = &id
		}
	}
	if !sameID(team.CaptainID, desired) {
		if err := q.UpdateTeamCaptain(ctx, team.ID, desired); err != nil {
			return fmt.Errorf("failed to set captain: %w", err)
		}
		out.writes++
	}

	return nil
}

// resolveTeam finds the local team for ext by reported id, then by name, creating it if needed
func (e *Engine) resolveTeam(ctx context.Context, q roster.Querier, ext registration.Team, out *teamOutcome) (*roster.Team, error) {
	if ext.LocalTeamID != nil {
		team, err := q.TeamByID(ctx, *ext.LocalTeamID)
		switch {
		case err == nil:
			if team.Name != ext.Name {
				if err := q.UpdateTeamName(ctx, team.ID, ext.Name); err != nil {
					return nil, fmt.Errorf("failed to rename team %q to %q: %w", team.Name, ext.Name, err)
				}
				out.writes++
				slog.InfoContext(ctx, "Renamed team", "from", team.Name, "to", ext.Name, "local_id", team.ID)
				team.Name = ext.Name
			}
			return team, nil
		case errors.Is(err, roster.ErrNotFound):
			slog.WarnContext(ctx, "Reported local team id no longer exists, resolving by name",
				"team", ext.Name, "local_id", *ext.LocalTeamID)
		default:
			return nil, err
		}
	}

	team, err := q.TeamByName(ctx, ext.Name)
	if err == nil {
		return team, nil
	}
	if !errors.Is(err, roster.ErrNotFound) {
		return nil, err
	}

	nt, err := e.creds.NewTeam(ext.Name, ext.InviteCode)
	if err != nil {
		return nil, err
	}
	team, err = q.CreateTeam(ctx, nt)
	if err != nil {
		return nil, err
	}
	out.created = true
	out.writes++
	slog.InfoContext(ctx, "Created team", "team", ext.Name, "local_id", team.ID)
	return team, nil
}

func (e *Engine) findOrCreateUser(ctx context.Context, q roster.Querier, email string, out *teamOutcome) (*roster.User, error) {
	user, err := q.UserByEmail(ctx, email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, roster.ErrNotFound) {
		return nil, err
	}

	nu, err := e.creds.NewUser(email, roster.RoleUser)
	if err != nil {
		return nil, err
	}
	user, err = q.CreateUser(ctx, nu)
	if err != nil {
		return nil, err
	}
	out.writes++
	slog.InfoContext(ctx, "Created user", "email", email, "local_id", user.ID)
	return user, nil
}

func sameID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
