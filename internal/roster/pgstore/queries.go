package pgstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/acectf/roster-sync/internal/roster"
)

const teamColumns = `id, name, email, password_hash, captain_id, banned, hidden, created_at`

const userColumns = `id, email, name, password_hash, team_id, role, verified, banned, hidden, created_at`

type querier struct {
	db dbtx
}

func scanTeam(row pgx.Row) (*roster.Team, error) {
	var t roster.Team
	err := row.Scan(&t.ID, &t.Name, &t.Email, &t.PasswordHash, &t.CaptainID, &t.Banned, &t.Hidden, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func scanUser(row pgx.Row) (*roster.User, error) {
	var u roster.User
	var role string
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.TeamID, &role, &u.Verified, &u.Banned, &u.Hidden, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	u.Role = roster.Role(role)
	return &u, nil
}

func (q *querier) TeamByID(ctx context.Context, id int64) (*roster.Team, error) {
	t, err := scanTeam(q.db.QueryRow(ctx, `SELECT `+teamColumns+` FROM teams WHERE id = $1`, id))
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("team %d", id))
	}
	return t, nil
}

func (q *querier) TeamByName(ctx context.Context, name string) (*roster.Team, error) {
	t, err := scanTeam(q.db.QueryRow(ctx, `SELECT `+teamColumns+` FROM teams WHERE name = $1`, name))
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("team %q", name))
	}
	return t, nil
}

func (q *querier) TeamsByNameContaining(ctx context.Context, fragment string) ([]roster.Team, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+teamColumns+` FROM teams WHERE STRPOS(LOWER(name), LOWER($1)) > 0 ORDER BY id`, fragment)
	if err != nil {
		return nil, mapError(err, "teams by name")
	}
	defer rows.Close()

	var teams []roster.Team
	for rows.Next() {
		t, err := scanTeam(rows)
		if err != nil {
			return nil, mapError(err, "teams by name")
		}
		teams = append(teams, *t)
	}
	return teams, mapError(rows.Err(), "teams by name")
}

func (q *querier) CreateTeam(ctx context.Context, nt roster.NewTeam) (*roster.Team, error) {
	t, err := scanTeam(q.db.QueryRow(ctx,
		`INSERT INTO teams (name, email, password_hash) VALUES ($1, $2, $3) RETURNING `+teamColumns,
		nt.Name, nt.Email, nt.PasswordHash))
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("create team %q", nt.Name))
	}
	return t, nil
}

func (q *querier) UpdateTeamName(ctx context.Context, id int64, name string) error {
	return q.execOne(ctx, fmt.Sprintf("rename team %d", id),
		`UPDATE teams SET name = $2 WHERE id = $1`, id, name)
}

func (q *querier) UpdateTeamCaptain(ctx context.Context, id int64, captainID *int64) error {
	return q.execOne(ctx, fmt.Sprintf("set captain of team %d", id),
		`UPDATE teams SET captain_id = $2 WHERE id = $1`, id, captainID)
}

func (q *querier) DeleteTeam(ctx context.Context, id int64) error {
	return q.execOne(ctx, fmt.Sprintf("delete team %d", id), `DELETE FROM teams WHERE id = $1`, id)
}

func (q *querier) UserByEmail(ctx context.Context, email string) (*roster.User, error) {
	u, err := scanUser(q.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email))
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("user %q", email))
	}
	return u, nil
}

func (q *querier) UserByID(ctx context.Context, id int64) (*roster.User, error) {
	u, err := scanUser(q.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("user %d", id))
	}
	return u, nil
}

func (q *querier) CreateUser(ctx context.Context, nu roster.NewUser) (*roster.User, error) {
	role := nu.Role
	if role == "" {
		role = roster.RoleUser
	}
	u, err := scanUser(q.db.QueryRow(ctx,
		`INSERT INTO users (email, name, password_hash, role, verified)
		 VALUES ($1, $2, $3, $4, $5) RETURNING `+userColumns,
		nu.Email, nu.Name, nu.PasswordHash, string(role), nu.Verified))
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("create user %q", nu.Email))
	}
	return u, nil
}

func (q *querier) SetUserTeam(ctx context.Context, userID int64, teamID *int64) error {
	return q.execOne(ctx, fmt.Sprintf("set team of user %d", userID),
		`UPDATE users SET team_id = $2 WHERE id = $1`, userID, teamID)
}

func (q *querier) UsersByTeam(ctx context.Context, teamID int64) ([]roster.User, error) {
	rows, err := q.db.Query(ctx, `SELECT `+userColumns+` FROM users WHERE team_id = $1 ORDER BY id`, teamID)
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("members of team %d", teamID))
	}
	defer rows.Close()

	var users []roster.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, mapError(err, fmt.Sprintf("members of team %d", teamID))
		}
		users = append(users, *u)
	}
	return users, mapError(rows.Err(), fmt.Sprintf("members of team %d", teamID))
}

func (q *querier) ClearTeamMembers(ctx context.Context, teamID int64) (int64, error) {
	tag, err := q.db.Exec(ctx, `UPDATE users SET team_id = NULL WHERE team_id = $1`, teamID)
	if err != nil {
		return 0, mapError(err, fmt.Sprintf("clear members of team %d", teamID))
	}
	return tag.RowsAffected(), nil
}

// execOne runs a statement that must affect exactly one row
func (q *querier) execOne(ctx context.Context, what, sql string, args ...any) error {
	tag, err := q.db.Exec(ctx, sql, args...)
	if err != nil {
		return mapError(err, what)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", what, roster.ErrNotFound)
	}
	return nil
}
