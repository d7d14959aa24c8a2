package authz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCedarAuthorizerDefaultPolicies(t *testing.T) {
	t.Parallel()

	authorizer, err := NewCedarAuthorizer(nil)
	require.NoError(t, err)

	tests := []struct {
		name    string
		granted []string
		action  string
		want    bool
	}{
		{name: "read granted", granted: []string{ActionRead}, action: ActionRead, want: true},
		{name: "run granted", granted: []string{ActionRead, ActionRun}, action: ActionRun, want: true},
		{name: "read only cannot run", granted: []string{ActionRead}, action: ActionRun, want: false},
		{name: "nothing granted", action: ActionRead, want: false},
		{name: "unknown action", granted: []string{ActionRead, ActionRun}, action: "delete", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			decision, err := authorizer.Authorize(context.Background(), Request{
				Subject:        "7",
				Role:           "admin",
				GrantedActions: tt.granted,
				Action:         tt.action,
				ResourceID:     "team-sync",
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, decision.Allowed)
			if tt.want {
				assert.NotEmpty(t, decision.Reasons)
			}
		})
	}
}

func TestCedarAuthorizerCustomPolicies(t *testing.T) {
	t.Parallel()

	// contestants may look at the score push but nothing else
	policies := []byte(`
permit(
  principal,
  action == RosterSync::Action::"read",
  resource == RosterSync::Job::"score-sync"
) when {
  principal.role == "user"
};
`)
	authorizer, err := NewCedarAuthorizer(policies)
	require.NoError(t, err)

	decision, err := authorizer.Authorize(context.Background(), Request{Role: "user", Action: ActionRead, ResourceID: "score-sync"})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	decision, err = authorizer.Authorize(context.Background(), Request{Role: "user", Action: ActionRead, ResourceID: "team-sync"})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)

	decision, err = authorizer.Authorize(context.Background(), Request{Role: "admin", Action: ActionRead})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
}

func TestNewCedarAuthorizerRejectsInvalidPolicies(t *testing.T) {
	t.Parallel()

	_, err := NewCedarAuthorizer([]byte("permit(principal"))
	assert.Error(t, err)
}
