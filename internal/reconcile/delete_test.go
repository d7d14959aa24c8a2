package reconcile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acectf/roster-sync/internal/registration"
	"github.com/acectf/roster-sync/internal/roster"
)

func int64p(v int64) *int64 { return &v }

func TestDeleteTeamByNameOnly(t *testing.T) {
	t.Parallel()

	reg := &fakeRegistry{}
	reg.set(fooTeam())
	engine, store := newEngine(reg)
	ctx := context.Background()

	_, err := engine.FullSync(ctx)
	require.NoError(t, err)

	deletion, err := engine.DeleteTeam(ctx, TeamRef{Name: "Foo"})
	require.NoError(t, err)
	assert.Equal(t, "name", deletion.MatchedBy)
	assert.Equal(t, int64(2), deletion.Detached)
	assert.Equal(t, "Foo", deletion.Team.Name)

	assert.Empty(t, store.Teams())
	for _, u := range store.Users() {
		assert.Nil(t, u.TeamID, u.Email)
	}
	assert.Len(t, store.Users(), 2, "accounts survive team deletion")
}

func TestDeleteTeamResolution(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		partial      bool
		teams        []string
		ref          func(ids map[string]int64) TeamRef
		wantDeleted  string
		wantMatch    string
		wantErr      error
	}{
		{
			name:  "local id wins over name",
			teams: []string{"Foo", "Bar"},
			ref: func(ids map[string]int64) TeamRef {
				return TeamRef{LocalID: int64p(ids["Bar"]), Name: "Foo"}
			},
			wantDeleted: "Bar",
			wantMatch:   "local_id",
		},
		{
			name:  "stale local id falls back to name",
			teams: []string{"Foo"},
			ref: func(map[string]int64) TeamRef {
				return TeamRef{LocalID: int64p(999), Name: "Foo"}
			},
			wantDeleted: "Foo",
			wantMatch:   "name",
		},
		{
			name:  "partial match disabled by default",
			teams: []string{"Team 1a2b3c4d"},
			ref: func(map[string]int64) TeamRef {
				return TeamRef{ExternalID: "1a2b3c4d-aaaa-bbbb-cccc-000000000000"}
			},
			wantErr: ErrTeamNotFound,
		},
		{
			name:    "partial match on short external id",
			partial: true,
			teams:   []string{"Team 1a2b3c4d", "Other"},
			ref: func(map[string]int64) TeamRef {
				return TeamRef{ExternalID: "1a2b3c4d-aaaa-bbbb-cccc-000000000000"}
			},
			wantDeleted: "Team 1a2b3c4d",
			wantMatch:   "partial",
		},
		{
			name:    "partial match on name fragment",
			partial: true,
			teams:   []string{"The Foo Team", "Bar"},
			ref: func(map[string]int64) TeamRef {
				return TeamRef{Name: "foo"}
			},
			wantDeleted: "The Foo Team",
			wantMatch:   "partial",
		},
		{
			name:    "ambiguous partial match",
			partial: true,
			teams:   []string{"Foo One", "Foo Two"},
			ref: func(map[string]int64) TeamRef {
				return TeamRef{Name: "Foo"}
			},
			wantErr: ErrAmbiguousTeam,
		},
		{
			name:    "nothing matches",
			partial: true,
			teams:   []string{"Foo"},
			ref: func(map[string]int64) TeamRef {
				return TeamRef{ExternalID: "zzzzzzzz", Name: "Nope"}
			},
			wantErr: ErrTeamNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			engine, store := newEngine(&fakeRegistry{}, WithPartialNameMatch(tt.partial))
			ctx := context.Background()

			ids := map[string]int64{}
			for _, name := range tt.teams {
				team, err := store.Querier().CreateTeam(ctx, roster.NewTeam{Name: name})
				require.NoError(t, err)
				ids[name] = team.ID
			}

			deletion, err := engine.DeleteTeam(ctx, tt.ref(ids))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Len(t, store.Teams(), len(tt.teams), "nothing is deleted on failure")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDeleted, deletion.Team.Name)
			assert.Equal(t, tt.wantMatch, deletion.MatchedBy)
			assert.Len(t, store.Teams(), len(tt.teams)-1)
		})
	}
}

func TestTeamRefEmpty(t *testing.T) {
	t.Parallel()

	assert.True(t, TeamRef{}.Empty())
	assert.False(t, TeamRef{Name: "Foo"}.Empty())
	assert.False(t, TeamRef{LocalID: int64p(1)}.Empty())
}

func TestDetachMember(t *testing.T) {
	t.Parallel()

	reg := &fakeRegistry{}
	reg.set(fooTeam())
	engine, store := newEngine(reg)
	ctx := context.Background()

	_, err := engine.FullSync(ctx)
	require.NoError(t, err)

	// captain leaves: captain is cleared too
	require.NoError(t, engine.DetachMember(ctx, " A@x.com", TeamRef{}))
	assert.Nil(t, userByEmail(t, store, "a@x.com").TeamID)
	assert.Nil(t, teamByName(t, store, "Foo").CaptainID)

	// non-captain leaves
	require.NoError(t, engine.DetachMember(ctx, "b@x.com", TeamRef{}))
	assert.Nil(t, userByEmail(t, store, "b@x.com").TeamID)

	// already detached is a no-op
	require.NoError(t, engine.DetachMember(ctx, "b@x.com", TeamRef{}))

	err = engine.DetachMember(ctx, "ghost@x.com", TeamRef{})
	assert.ErrorIs(t, err, roster.ErrNotFound)
}

func TestDetachedCaptainIsRestoredByNextPass(t *testing.T) {
	t.Parallel()

	reg := &fakeRegistry{}
	reg.set(fooTeam())
	engine, store := newEngine(reg)
	ctx := context.Background()

	_, err := engine.FullSync(ctx)
	require.NoError(t, err)
	require.NoError(t, engine.DetachMember(ctx, "a@x.com", TeamRef{}))

	// the registration service still lists a: level-triggered passes restore it
	_, err = engine.FullSync(ctx)
	require.NoError(t, err)
	a := userByEmail(t, store, "a@x.com")
	require.NotNil(t, a.TeamID)
	assert.Equal(t, a.ID, *teamByName(t, store, "Foo").CaptainID)
}

func TestDetachMemberScopedToNamedTeam(t *testing.T) {
	t.Parallel()

	bar := registration.Team{ID: "ext-bar-0002", Name: "Bar", InviteCode: "Y2"}
	reg := &fakeRegistry{}
	reg.set(fooTeam(), bar)
	engine, store := newEngine(reg)
	ctx := context.Background()

	_, err := engine.FullSync(ctx)
	require.NoError(t, err)
	fooID := teamByName(t, store, "Foo").ID
	barID := teamByName(t, store, "Bar").ID

	// b moves from Foo to Bar and the member_added pass lands first
	foo := fooTeam()
	foo.Members = foo.Members[:1]
	bar.Members = []registration.Member{member("b", "b@x.com")}
	reg.set(foo, bar)
	_, err = engine.FullSync(ctx)
	require.NoError(t, err)
	require.Equal(t, barID, *userByEmail(t, store, "b@x.com").TeamID)

	tests := []struct {
		name string
		from TeamRef
	}{
		{name: "by local id and name", from: TeamRef{LocalID: int64p(fooID), Name: "Foo"}},
		{name: "by name only", from: TeamRef{Name: "Foo"}},
		{name: "team unknown locally", from: TeamRef{LocalID: int64p(999), Name: "Gone"}},
	}
	for _, tt := range tests {
		require.NoError(t, engine.DetachMember(ctx, "b@x.com", tt.from), tt.name)
		b := userByEmail(t, store, "b@x.com")
		require.NotNil(t, b.TeamID, tt.name)
		assert.Equal(t, barID, *b.TeamID, tt.name)
	}

	// the team b is actually on
	require.NoError(t, engine.DetachMember(ctx, "b@x.com", TeamRef{Name: "Bar"}))
	assert.Nil(t, userByEmail(t, store, "b@x.com").TeamID)

	// an external id alone cannot be resolved locally and leaves the removal unscoped
	require.NoError(t, engine.DetachMember(ctx, "a@x.com", TeamRef{ExternalID: "ext-bar-0002"}))
	assert.Nil(t, userByEmail(t, store, "a@x.com").TeamID)
}
