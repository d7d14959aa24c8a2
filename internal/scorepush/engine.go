// Package scorepush pushes the local standings to the registration service.
//
// Pushes are level-triggered: every run sends the complete current standings, so a
// failed run is repaired by the next one and nothing is queued for retry.
package scorepush

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/acectf/roster-sync/internal/otel"
	"github.com/acectf/roster-sync/internal/registration"
	"github.com/acectf/roster-sync/internal/roster"
)

// Result summarizes one push
type Result struct {
	// Standings is the number of ranked local teams
	Standings int `json:"standings"`
	// Pushed is the number of entries sent
	Pushed int `json:"pushed"`
	// Skipped counts teams without an external counterpart
	Skipped  int           `json:"skipped"`
	Duration time.Duration `json:"duration"`
}

// Option configures an Engine
type Option func(*Engine)

// WithTracer sets the tracer used for push spans
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = tracer
	}
}

// Engine maps local standings to external teams and pushes them in one batch
type Engine struct {
	client registration.Client
	board  roster.Scoreboard
	tracer trace.Tracer
}

// New creates an engine
func New(client registration.Client, board roster.Scoreboard, opts ...Option) *Engine {
	e := &Engine{client: client, board: board}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Preview returns the current ranked standings without contacting the registration service
func (e *Engine) Preview(ctx context.Context) ([]roster.Standing, error) {
	standings, err := e.board.Standings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read standings: %w", err)
	}
	return standings, nil
}

// Run reads the standings, resolves each team to its external id and pushes the batch.
// Teams with no external counterpart are skipped.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	ctx, span := otel.StartSpan(ctx, e.tracer, "scorepush.Run")
	defer span.End()

	standings, err := e.Preview(ctx)
	if err != nil {
		otel.RecordError(span, err)
		return nil, err
	}

	result := &Result{Standings: len(standings)}
	if len(standings) == 0 {
		slog.DebugContext(ctx, "No standings to push")
		result.Duration = time.Since(start)
		return result, nil
	}

	// one roster fetch per run
	teams, err := e.client.ListTeams(ctx)
	if err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to list external teams: %w", err)
	}
	byLocalID := make(map[int64]registration.Team, len(teams))
	byName := make(map[string]registration.Team, len(teams))
	for _, t := range teams {
		if t.LocalTeamID != nil {
			byLocalID[*t.LocalTeamID] = t
		}
		if _, dup := byName[t.Name]; !dup {
			byName[t.Name] = t
		}
	}

	entries := make([]registration.ScoreEntry, 0, len(standings))
	for _, s := range standings {
		ext, ok := byLocalID[s.TeamID]
		if !ok {
			ext, ok = byName[s.TeamName]
		}
		if !ok {
			result.Skipped++
			slog.InfoContext(ctx, "Skipping team without external counterpart", "team", s.TeamName, "local_id", s.TeamID)
			continue
		}
		entries = append(entries, registration.ScoreEntry{
			TeamID:      ext.ID,
			LocalTeamID: s.TeamID,
			Score:       s.Score,
			Rank:        s.Rank,
		})
	}

	if len(entries) == 0 {
		slog.DebugContext(ctx, "No resolvable teams to push", "skipped", result.Skipped)
		result.Duration = time.Since(start)
		return result, nil
	}

	if err := e.client.PushScores(ctx, entries); err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to push scores: %w", err)
	}

	result.Pushed = len(entries)
	result.Duration = time.Since(start)
	span.SetAttributes(otel.AttrResultCount.Int(result.Pushed))
	slog.InfoContext(ctx, "Scores pushed",
		"pushed", result.Pushed,
		"skipped", result.Skipped,
		"duration", result.Duration)
	return result, nil
}
