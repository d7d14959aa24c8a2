package authz

import (
	"net/http"
	"strings"

	"github.com/acectf/roster-sync/internal/config"
	pkgsync "github.com/acectf/roster-sync/internal/sync"
)

// Action aliases from config for convenience within the authz package.
const (
	ActionRead = config.ActionRead
	ActionRun  = config.ActionRun
)

// RouteAction determines the required Cedar action from the HTTP method.
// Reads are safe methods; everything else triggers work and needs run.
func RouteAction(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead:
		return ActionRead
	}
	return ActionRun
}

// RouteJob returns the sync job an admin path acts on, or "" when it acts on none
func RouteJob(path string) string {
	switch {
	case strings.Contains(path, "/registration-sync/"):
		return pkgsync.JobTeamSync
	case strings.Contains(path, "/score-sync/"):
		return pkgsync.JobScoreSync
	}
	return ""
}

// MapRoleToActions returns the actions mapping grants to role
func MapRoleToActions(role string, mapping []config.RoleMappingEntry) []string {
	seen := make(map[string]bool)
	var actions []string
	for _, entry := range mapping {
		if entry.Role != role {
			continue
		}
		for _, action := range entry.Actions {
			if !seen[action] {
				seen[action] = true
				actions = append(actions, action)
			}
		}
	}
	return actions
}
