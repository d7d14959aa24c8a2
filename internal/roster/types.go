// Package roster defines the local team and user model of the scoring platform and the
// storage abstractions the sync engines write through.
package roster

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a team or user does not exist
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a write violates a uniqueness constraint
	ErrConflict = errors.New("conflict")
)

// Role of a local user
type Role string

const (
	// RoleUser is a regular contestant
	RoleUser Role = "user"
	// RoleAdmin is a platform administrator
	RoleAdmin Role = "admin"
)

// Team is a local team
type Team struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	CaptainID    *int64
	Banned       bool
	Hidden       bool
	CreatedAt    time.Time
}

// User is a local user account
type User struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash string
	TeamID       *int64
	Role         Role
	Verified     bool
	Banned       bool
	Hidden       bool
	CreatedAt    time.Time
}

// NewTeam holds the fields needed to create a team
type NewTeam struct {
	Name         string
	Email        string
	PasswordHash string
}

// NewUser holds the fields needed to create a user
type NewUser struct {
	Email        string
	Name         string
	PasswordHash string
	Role         Role
	Verified     bool
}

// Standing is one row of the local scoreboard
type Standing struct {
	TeamID   int64
	TeamName string
	Score    int64
	// Rank is 1-based
	Rank int
}

// Querier reads and writes teams and users. Lookups that find nothing return ErrNotFound.
type Querier interface {
	TeamByID(ctx context.Context, id int64) (*Team, error)
	TeamByName(ctx context.Context, name string) (*Team, error)
	// TeamsByNameContaining returns the teams whose name contains fragment, ignoring case
	TeamsByNameContaining(ctx context.Context, fragment string) ([]Team, error)
	CreateTeam(ctx context.Context, t NewTeam) (*Team, error)
	UpdateTeamName(ctx context.Context, id int64, name string) error
	UpdateTeamCaptain(ctx context.Context, id int64, captainID *int64) error
	DeleteTeam(ctx context.Context, id int64) error

	UserByEmail(ctx context.Context, email string) (*User, error)
	UserByID(ctx context.Context, id int64) (*User, error)
	CreateUser(ctx context.Context, u NewUser) (*User, error)
	SetUserTeam(ctx context.Context, userID int64, teamID *int64) error
	UsersByTeam(ctx context.Context, teamID int64) ([]User, error)
	// ClearTeamMembers detaches every member of the team and returns how many were detached
	ClearTeamMembers(ctx context.Context, teamID int64) (int64, error)
}

// Store is the local roster storage
type Store interface {
	// Querier performs non-transactional reads and writes
	Querier() Querier

	// RunInTx runs fn in a transaction. The transaction is rolled back when fn returns an error.
	RunInTx(ctx context.Context, fn func(q Querier) error) error

	// Ping checks the store is reachable
	Ping(ctx context.Context) error
}

// Scoreboard exposes the computed local standings
type Scoreboard interface {
	// Standings returns visible teams ordered by rank
	Standings(ctx context.Context) ([]Standing, error)
}
