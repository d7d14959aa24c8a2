// Package rostertest holds the behavioural test suite every roster.Store implementation must pass.
package rostertest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acectf/roster-sync/internal/roster"
)

// Backend is a store under test
type Backend interface {
	roster.Store
	roster.Scoreboard
}

// Harness creates a fresh, empty backend for each subtest
type Harness struct {
	New func(t *testing.T) Backend
	// SetScore records a team score the way the scoring platform would
	SetScore func(t *testing.T, b Backend, teamID, score int64, lastSolve time.Time)
	// SetTeamFlags marks a team banned or hidden
	SetTeamFlags func(t *testing.T, b Backend, teamID int64, banned, hidden bool)
}

var errBoom = errors.New("boom")

// Run executes the suite. Subtests are not parallel because some backends share a database.
func Run(t *testing.T, h Harness) {
	t.Helper()

	t.Run("create and find teams", func(t *testing.T) {
		ctx := context.Background()
		q := h.New(t).Querier()

		team, err := q.CreateTeam(ctx, roster.NewTeam{Name: "Foo", Email: "x1@ace-ctf.local", PasswordHash: "h"})
		require.NoError(t, err)
		assert.NotZero(t, team.ID)
		assert.Equal(t, "Foo", team.Name)
		assert.Nil(t, team.CaptainID)
		assert.False(t, team.Banned)
		assert.False(t, team.Hidden)

		byID, err := q.TeamByID(ctx, team.ID)
		require.NoError(t, err)
		assert.Equal(t, "x1@ace-ctf.local", byID.Email)

		byName, err := q.TeamByName(ctx, "Foo")
		require.NoError(t, err)
		assert.Equal(t, team.ID, byName.ID)

		_, err = q.TeamByName(ctx, "foo")
		assert.ErrorIs(t, err, roster.ErrNotFound, "exact name match is case sensitive")

		_, err = q.TeamByID(ctx, team.ID+1000)
		assert.ErrorIs(t, err, roster.ErrNotFound)

		_, err = q.CreateTeam(ctx, roster.NewTeam{Name: "Foo", Email: "other@x", PasswordHash: "h"})
		assert.ErrorIs(t, err, roster.ErrConflict)
	})

	t.Run("teams by name fragment", func(t *testing.T) {
		ctx := context.Background()
		q := h.New(t).Querier()

		for _, name := range []string{"Team 1a2b3c4d", "Other 1A2B3C4D", "Unrelated"} {
			_, err := q.CreateTeam(ctx, roster.NewTeam{Name: name, Email: name + "@x", PasswordHash: "h"})
			require.NoError(t, err)
		}

		teams, err := q.TeamsByNameContaining(ctx, "1a2b3c4d")
		require.NoError(t, err)
		require.Len(t, teams, 2)
		assert.Equal(t, "Team 1a2b3c4d", teams[0].Name)

		teams, err = q.TeamsByNameContaining(ctx, "nothing")
		require.NoError(t, err)
		assert.Empty(t, teams)
	})

	t.Run("rename and captain", func(t *testing.T) {
		ctx := context.Background()
		q := h.New(t).Querier()

		foo, err := q.CreateTeam(ctx, roster.NewTeam{Name: "Foo", Email: "foo@x", PasswordHash: "h"})
		require.NoError(t, err)
		_, err = q.CreateTeam(ctx, roster.NewTeam{Name: "Bar", Email: "bar@x", PasswordHash: "h"})
		require.NoError(t, err)

		require.NoError(t, q.UpdateTeamName(ctx, foo.ID, "Foo Fighters"))
		assert.ErrorIs(t, q.UpdateTeamName(ctx, foo.ID, "Bar"), roster.ErrConflict)
		assert.ErrorIs(t, q.UpdateTeamName(ctx, foo.ID+1000, "Baz"), roster.ErrNotFound)

		user, err := q.CreateUser(ctx, roster.NewUser{Email: "a@x.com", Name: "a", PasswordHash: "h", Role: roster.RoleUser, Verified: true})
		require.NoError(t, err)

		require.NoError(t, q.UpdateTeamCaptain(ctx, foo.ID, &user.ID))
		got, err := q.TeamByID(ctx, foo.ID)
		require.NoError(t, err)
		assert.Equal(t, "Foo Fighters", got.Name)
		require.NotNil(t, got.CaptainID)
		assert.Equal(t, user.ID, *got.CaptainID)

		require.NoError(t, q.UpdateTeamCaptain(ctx, foo.ID, nil))
		got, err = q.TeamByID(ctx, foo.ID)
		require.NoError(t, err)
		assert.Nil(t, got.CaptainID)
	})

	t.Run("users and membership", func(t *testing.T) {
		ctx := context.Background()
		q := h.New(t).Querier()

		team, err := q.CreateTeam(ctx, roster.NewTeam{Name: "Foo", Email: "foo@x", PasswordHash: "h"})
		require.NoError(t, err)

		a, err := q.CreateUser(ctx, roster.NewUser{Email: "a@x.com", Name: "a", PasswordHash: "h", Role: roster.RoleUser, Verified: true})
		require.NoError(t, err)
		assert.Equal(t, roster.RoleUser, a.Role)
		assert.True(t, a.Verified)
		assert.Nil(t, a.TeamID)

		b, err := q.CreateUser(ctx, roster.NewUser{Email: "b@x.com", Name: "b", PasswordHash: "h", Role: roster.RoleAdmin, Verified: true})
		require.NoError(t, err)

		_, err = q.CreateUser(ctx, roster.NewUser{Email: "A@X.com", Name: "dup", PasswordHash: "h", Role: roster.RoleUser})
		assert.ErrorIs(t, err, roster.ErrConflict, "emails are unique regardless of case")

		found, err := q.UserByEmail(ctx, "A@x.COM")
		require.NoError(t, err)
		assert.Equal(t, a.ID, found.ID)

		_, err = q.UserByEmail(ctx, "nobody@x.com")
		assert.ErrorIs(t, err, roster.ErrNotFound)

		require.NoError(t, q.SetUserTeam(ctx, a.ID, &team.ID))
		require.NoError(t, q.SetUserTeam(ctx, b.ID, &team.ID))
		assert.ErrorIs(t, q.SetUserTeam(ctx, a.ID+1000, &team.ID), roster.ErrNotFound)

		members, err := q.UsersByTeam(ctx, team.ID)
		require.NoError(t, err)
		require.Len(t, members, 2)
		assert.Equal(t, a.ID, members[0].ID)

		require.NoError(t, q.SetUserTeam(ctx, b.ID, nil))
		gotB, err := q.UserByID(ctx, b.ID)
		require.NoError(t, err)
		assert.Nil(t, gotB.TeamID)
		assert.Equal(t, roster.RoleAdmin, gotB.Role)

		n, err := q.ClearTeamMembers(ctx, team.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		members, err = q.UsersByTeam(ctx, team.ID)
		require.NoError(t, err)
		assert.Empty(t, members)
	})

	t.Run("delete team keeps accounts", func(t *testing.T) {
		ctx := context.Background()
		q := h.New(t).Querier()

		team, err := q.CreateTeam(ctx, roster.NewTeam{Name: "Foo", Email: "foo@x", PasswordHash: "h"})
		require.NoError(t, err)
		user, err := q.CreateUser(ctx, roster.NewUser{Email: "a@x.com", Name: "a", PasswordHash: "h", Role: roster.RoleUser})
		require.NoError(t, err)
		require.NoError(t, q.SetUserTeam(ctx, user.ID, &team.ID))

		require.NoError(t, q.DeleteTeam(ctx, team.ID))
		_, err = q.TeamByID(ctx, team.ID)
		assert.ErrorIs(t, err, roster.ErrNotFound)
		assert.ErrorIs(t, q.DeleteTeam(ctx, team.ID), roster.ErrNotFound)

		got, err := q.UserByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Nil(t, got.TeamID)
	})

	t.Run("transaction rolls back on error", func(t *testing.T) {
		ctx := context.Background()
		store := h.New(t)

		err := store.RunInTx(ctx, func(q roster.Querier) error {
			if _, err := q.CreateTeam(ctx, roster.NewTeam{Name: "Ghost", Email: "g@x", PasswordHash: "h"}); err != nil {
				return err
			}
			if _, err := q.CreateUser(ctx, roster.NewUser{Email: "g@x.com", Name: "g", PasswordHash: "h", Role: roster.RoleUser}); err != nil {
				return err
			}
			return errBoom
		})
		require.ErrorIs(t, err, errBoom)

		_, err = store.Querier().TeamByName(ctx, "Ghost")
		assert.ErrorIs(t, err, roster.ErrNotFound)
		_, err = store.Querier().UserByEmail(ctx, "g@x.com")
		assert.ErrorIs(t, err, roster.ErrNotFound)

		err = store.RunInTx(ctx, func(q roster.Querier) error {
			_, err := q.CreateTeam(ctx, roster.NewTeam{Name: "Real", Email: "r@x", PasswordHash: "h"})
			return err
		})
		require.NoError(t, err)
		_, err = store.Querier().TeamByName(ctx, "Real")
		assert.NoError(t, err)

		require.NoError(t, store.Ping(ctx))
	})

	t.Run("standings", func(t *testing.T) {
		ctx := context.Background()
		store := h.New(t)
		q := store.Querier()

		create := func(name string) int64 {
			team, err := q.CreateTeam(ctx, roster.NewTeam{Name: name, Email: name + "@x", PasswordHash: "h"})
			require.NoError(t, err)
			return team.ID
		}
		alpha := create("Alpha")
		bravo := create("Bravo")
		charlie := create("Charlie")
		delta := create("Delta")
		echo := create("Echo")
		hidden := create("Hidden")

		base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
		h.SetScore(t, store, alpha, 300, base.Add(2*time.Hour))
		h.SetScore(t, store, bravo, 450, base.Add(3*time.Hour))
		h.SetScore(t, store, charlie, 300, base.Add(time.Hour))
		h.SetScore(t, store, hidden, 1000, base)
		h.SetTeamFlags(t, store, hidden, false, true)
		// delta and echo have no score at all

		standings, err := store.Standings(ctx)
		require.NoError(t, err)

		want := []roster.Standing{
			{TeamID: bravo, TeamName: "Bravo", Score: 450, Rank: 1},
			{TeamID: charlie, TeamName: "Charlie", Score: 300, Rank: 2},
			{TeamID: alpha, TeamName: "Alpha", Score: 300, Rank: 3},
			{TeamID: delta, TeamName: "Delta", Score: 0, Rank: 4},
			{TeamID: echo, TeamName: "Echo", Score: 0, Rank: 5},
		}
		assert.Equal(t, want, standings)
	})
}
