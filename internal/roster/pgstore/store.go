// Package pgstore implements the roster store on PostgreSQL using pgx.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/acectf/roster-sync/internal/roster"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is a PostgreSQL roster.Store and roster.Scoreboard
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ roster.Store      = (*Store)(nil)
	_ roster.Scoreboard = (*Store)(nil)
)

// New creates a store on top of an existing pool
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Querier implements roster.Store
func (s *Store) Querier() roster.Querier {
	return &querier{db: s.pool}
}

// Ping implements roster.Store
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// RunInTx implements roster.Store
func (s *Store) RunInTx(ctx context.Context, fn func(q roster.Querier) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			slog.WarnContext(ctx, "Failed to roll back transaction", "error", rollbackErr)
		}
	}()

	if err := fn(&querier{db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

const standingsSQL = `
SELECT t.id, t.name, COALESCE(s.score, 0)
FROM teams t
LEFT JOIN team_scores s ON s.team_id = t.id
WHERE NOT t.banned AND NOT t.hidden
ORDER BY COALESCE(s.score, 0) DESC, s.last_solve_at ASC NULLS LAST, t.id ASC`

// Standings implements roster.Scoreboard
func (s *Store) Standings(ctx context.Context) ([]roster.Standing, error) {
	rows, err := s.pool.Query(ctx, standingsSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to query standings: %w", err)
	}
	defer rows.Close()

	var standings []roster.Standing
	for rows.Next() {
		var st roster.Standing
		if err := rows.Scan(&st.TeamID, &st.TeamName, &st.Score); err != nil {
			return nil, fmt.Errorf("failed to scan standing: %w", err)
		}
		st.Rank = len(standings) + 1
		standings = append(standings, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read standings: %w", err)
	}
	return standings, nil
}

// mapError translates pgx and PostgreSQL errors into roster errors
func mapError(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, roster.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%s: %w", what, roster.ErrConflict)
		case pgForeignKeyViolation:
			return fmt.Errorf("%s references a missing row: %w", what, roster.ErrNotFound)
		}
	}
	return fmt.Errorf("%s: %w", what, err)
}
