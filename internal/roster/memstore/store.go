// Package memstore implements the roster store in process memory.
// It is used when storage.type is "memory" and by tests.
package memstore

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/acectf/roster-sync/internal/roster"
)

type score struct {
	value     int64
	lastSolve time.Time
}

type state struct {
	teams      map[int64]roster.Team
	users      map[int64]roster.User
	scores     map[int64]score
	nextTeamID int64
	nextUserID int64
}

func (s *state) clone() *state {
	return &state{
		teams:      maps.Clone(s.teams),
		users:      maps.Clone(s.users),
		scores:     maps.Clone(s.scores),
		nextTeamID: s.nextTeamID,
		nextUserID: s.nextUserID,
	}
}

// Store is an in-memory roster.Store and roster.Scoreboard
type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
}

var (
	_ roster.Store      = (*Store)(nil)
	_ roster.Scoreboard = (*Store)(nil)
)

// New creates an empty store
func New() *Store {
	return &Store{
		st: &state{
			teams:      map[int64]roster.Team{},
			users:      map[int64]roster.User{},
			scores:     map[int64]score{},
			nextTeamID: 1,
			nextUserID: 1,
		},
		now: time.Now,
	}
}

// Querier implements roster.Store. Every call takes the store lock.
func (s *Store) Querier() roster.Querier {
	return &querier{store: s}
}

// RunInTx implements roster.Store. The store lock is held for the whole transaction
// and the state is restored from a snapshot if fn fails.
func (s *Store) RunInTx(ctx context.Context, fn func(q roster.Querier) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(&querier{store: s, inTx: true}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

// Ping implements roster.Store
func (*Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// SetScore records a team's score as the scoring platform would
func (s *Store) SetScore(teamID, value int64, lastSolve time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.scores[teamID] = score{value: value, lastSolve: lastSolve}
}

// SetTeamFlags sets the banned and hidden flags of a team
func (s *Store) SetTeamFlags(teamID int64, banned, hidden bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.st.teams[teamID]
	if !ok {
		return fmt.Errorf("team %d: %w", teamID, roster.ErrNotFound)
	}
	t.Banned, t.Hidden = banned, hidden
	s.st.teams[teamID] = t
	return nil
}

// Teams returns every team ordered by id
func (s *Store) Teams() []roster.Team {
	s.mu.Lock()
	defer s.mu.Unlock()
	teams := slices.Collect(maps.Values(s.st.teams))
	slices.SortFunc(teams, func(a, b roster.Team) int { return cmp.Compare(a.ID, b.ID) })
	return teams
}

// Users returns every user ordered by id
func (s *Store) Users() []roster.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := slices.Collect(maps.Values(s.st.users))
	slices.SortFunc(users, func(a, b roster.User) int { return cmp.Compare(a.ID, b.ID) })
	return users
}

// Standings implements roster.Scoreboard. Teams are ordered by score descending, then
// earliest last solve, then lowest id. Banned and hidden teams are excluded.
func (s *Store) Standings(ctx context.Context) ([]roster.Standing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	type row struct {
		team  roster.Team
		score score
	}
	rows := make([]row, 0, len(s.st.teams))
	for _, t := range s.st.teams {
		if t.Banned || t.Hidden {
			continue
		}
		rows = append(rows, row{team: t, score: s.st.scores[t.ID]})
	}

	slices.SortFunc(rows, func(a, b row) int {
		if c := cmp.Compare(b.score.value, a.score.value); c != 0 {
			return c
		}
		if c := compareSolve(a.score.lastSolve, b.score.lastSolve); c != 0 {
			return c
		}
		return cmp.Compare(a.team.ID, b.team.ID)
	})

	standings := make([]roster.Standing, len(rows))
	for i, r := range rows {
		standings[i] = roster.Standing{
			TeamID:   r.team.ID,
			TeamName: r.team.Name,
			Score:    r.score.value,
			Rank:     i + 1,
		}
	}
	return standings, nil
}

// compareSolve orders earlier solves first; teams that never solved come last
func compareSolve(a, b time.Time) int {
	switch {
	case a.IsZero() && b.IsZero():
		return 0
	case a.IsZero():
		return 1
	case b.IsZero():
		return -1
	default:
		return a.Compare(b)
	}
}

type querier struct {
	store *Store
	inTx  bool
}

func (q *querier) lock() func() {
	if q.inTx {
		return func() {}
	}
	q.store.mu.Lock()
	return q.store.mu.Unlock
}

func (q *querier) TeamByID(ctx context.Context, id int64) (*roster.Team, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer q.lock()()

	t, ok := q.store.st.teams[id]
	if !ok {
		return nil, fmt.Errorf("team %d: %w", id, roster.ErrNotFound)
	}
	return &t, nil
}

func (q *querier) TeamByName(ctx context.Context, name string) (*roster.Team, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer q.lock()()

	for _, t := range q.store.st.teams {
		if t.Name == name {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("team %q: %w", name, roster.ErrNotFound)
}

func (q *querier) TeamsByNameContaining(ctx context.Context, fragment string) ([]roster.Team, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer q.lock()()

	fragment = strings.ToLower(fragment)
	var teams []roster.Team
	for _, t := range q.store.st.teams {
		if strings.Contains(strings.ToLower(t.Name), fragment) {
			teams = append(teams, t)
		}
	}
	slices.SortFunc(teams, func(a, b roster.Team) int { return cmp.Compare(a.ID, b.ID) })
	return teams, nil
}

func (q *querier) CreateTeam(ctx context.Context, nt roster.NewTeam) (*roster.Team, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer q.lock()()

	st := q.store.st
	for _, t := range st.teams {
		if t.Name == nt.Name {
			return nil, fmt.Errorf("team %q: %w", nt.Name, roster.ErrConflict)
		}
	}
	t := roster.Team{
		ID:           st.nextTeamID,
		Name:         nt.Name,
		Email:        nt.Email,
		PasswordHash: nt.PasswordHash,
		CreatedAt:    q.store.now(),
	}
	st.nextTeamID++
	st.teams[t.ID] = t
	return &t, nil
}

func (q *querier) UpdateTeamName(ctx context.Context, id int64, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer q.lock()()

	st := q.store.st
	t, ok := st.teams[id]
	if !ok {
		return fmt.Errorf("team %d: %w", id, roster.ErrNotFound)
	}
	for _, other := range st.teams {
		if other.ID != id && other.Name == name {
			return fmt.Errorf("team %q: %w", name, roster.ErrConflict)
		}
	}
	t.Name = name
	st.teams[id] = t
	return nil
}

func (q *querier) UpdateTeamCaptain(ctx context.Context, id int64, captainID *int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer q.lock()()

	st := q.store.st
	t, ok := st.teams[id]
	if !ok {
		return fmt.Errorf("team %d: %w", id, roster.ErrNotFound)
	}
	if captainID != nil {
		if _, ok := st.users[*captainID]; !ok {
			return fmt.Errorf("captain %d: %w", *captainID, roster.ErrNotFound)
		}
	}
	t.CaptainID = copyID(captainID)
	st.teams[id] = t
	return nil
}

func (q *querier) DeleteTeam(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer q.lock()()

	st := q.store.st
	if _, ok := st.teams[id]; !ok {
		return fmt.Errorf("team %d: %w", id, roster.ErrNotFound)
	}
	delete(st.teams, id)
	delete(st.scores, id)
	// mirrors ON DELETE SET NULL
	for uid, u := range st.users {
		if u.TeamID != nil && *u.TeamID == id {
			u.TeamID = nil
			st.users[uid] = u
		}
	}
	return nil
}

func (q *querier) UserByEmail(ctx context.Context, email string) (*roster.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer q.lock()()

	for _, u := range q.store.st.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, fmt.Errorf("user %q: %w", email, roster.ErrNotFound)
}

func (q *querier) UserByID(ctx context.Context, id int64) (*roster.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer q.lock()()

	u, ok := q.store.st.users[id]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", id, roster.ErrNotFound)
	}
	return &u, nil
}

func (q *querier) CreateUser(ctx context.Context, nu roster.NewUser) (*roster.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer q.lock()()

	st := q.store.st
	for _, u := range st.users {
		if strings.EqualFold(u.Email, nu.Email) {
			return nil, fmt.Errorf("user %q: %w", nu.Email, roster.ErrConflict)
		}
	}
	role := nu.Role
	if role == "" {
		role = roster.RoleUser
	}
	u := roster.User{
		ID:           st.nextUserID,
		Email:        nu.Email,
		Name:         nu.Name,
		PasswordHash: nu.PasswordHash,
		Role:         role,
		Verified:     nu.Verified,
		CreatedAt:    q.store.now(),
	}
	st.nextUserID++
	st.users[u.ID] = u
	return &u, nil
}

func (q *querier) SetUserTeam(ctx context.Context, userID int64, teamID *int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer q.lock()()

	st := q.store.st
	u, ok := st.users[userID]
	if !ok {
		return fmt.Errorf("user %d: %w", userID, roster.ErrNotFound)
	}
	if teamID != nil {
		if _, ok := st.teams[*teamID]; !ok {
			return fmt.Errorf("team %d: %w", *teamID, roster.ErrNotFound)
		}
	}
	u.TeamID = copyID(teamID)
	st.users[userID] = u
	return nil
}

func (q *querier) UsersByTeam(ctx context.Context, teamID int64) ([]roster.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer q.lock()()

	var users []roster.User
	for _, u := range q.store.st.users {
		if u.TeamID != nil && *u.TeamID == teamID {
			users = append(users, u)
		}
	}
	slices.SortFunc(users, func(a, b roster.User) int { return cmp.Compare(a.ID, b.ID) })
	return users, nil
}

func (q *querier) ClearTeamMembers(ctx context.Context, teamID int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	defer q.lock()()

	var n int64
	for uid, u := range q.store.st.users {
		if u.TeamID != nil && *u.TeamID == teamID {
			u.TeamID = nil
			q.store.st.users[uid] = u
			n++
		}
	}
	return n, nil
}

func copyID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
