package authz

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/acectf/roster-sync/internal/auth"
	"github.com/acectf/roster-sync/internal/config"
)

// ForbiddenResponse is the JSON body returned when authorization is denied.
type ForbiddenResponse struct {
	Success bool             `json:"success"`
	Message string           `json:"message"`
	Details *ForbiddenDetail `json:"details,omitempty"`
}

// ForbiddenDetail tells the caller which action was required and which roles grant it.
type ForbiddenDetail struct {
	RequiredAction string `json:"required_action"`
	Role           string `json:"role"`
	Hint           string `json:"hint"`
}

// Middleware creates an HTTP middleware that performs Cedar-based authorization.
// It must run after the session middleware. A request without session claims is
// rejected, since every route it guards is an admin route.
func Middleware(authorizer Authorizer, roleMapping []config.RoleMappingEntry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			claims, ok := auth.ClaimsFromContext(ctx)
			if !ok {
				slog.ErrorContext(ctx, "Authorization reached without a session", "path", r.URL.Path)
				writeJSONError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			role := string(claims.Role)
			requiredAction := RouteAction(r.Method)
			req := Request{
				Subject:        claims.Subject,
				Role:           role,
				GrantedActions: MapRoleToActions(role, roleMapping),
				Action:         requiredAction,
				ResourceID:     RouteJob(r.URL.Path),
			}

			decision, err := authorizer.Authorize(ctx, req)
			if err != nil {
				slog.ErrorContext(ctx, "Authorization evaluation failed",
					"error", err,
					"action", requiredAction,
					"path", r.URL.Path,
					"subject", claims.Subject,
				)
				writeJSONError(w, http.StatusInternalServerError, "authorization evaluation failed")
				return
			}

			if !decision.Allowed {
				slog.WarnContext(ctx, "Authorization denied",
					"action", requiredAction,
					"path", r.URL.Path,
					"subject", claims.Subject,
					"role", role,
					"granted_actions", req.GrantedActions,
				)
				writeForbidden(w, requiredAction, role, roleMapping)
				return
			}

			slog.DebugContext(ctx, "Authorization permitted",
				"action", requiredAction,
				"path", r.URL.Path,
				"subject", claims.Subject,
				"reasons", decision.Reasons,
			)
			next.ServeHTTP(w, r)
		})
	}
}

func writeForbidden(w http.ResponseWriter, requiredAction, role string, roleMapping []config.RoleMappingEntry) {
	resp := ForbiddenResponse{
		Message: "You do not have permission to perform this action.",
		Details: &ForbiddenDetail{
			RequiredAction: requiredAction,
			Role:           role,
			Hint:           buildHint(requiredAction, roleMapping),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Failed to encode forbidden response", "error", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(ForbiddenResponse{Message: message}); err != nil {
		slog.Error("Failed to encode error response", "error", err)
	}
}

// buildHint lists the roles that grant requiredAction
func buildHint(requiredAction string, roleMapping []config.RoleMappingEntry) string {
	var roles []string
	for _, entry := range roleMapping {
		if slices.Contains(entry.Actions, requiredAction) {
			roles = append(roles, entry.Role)
		}
	}

	if len(roles) == 0 {
		return "No configured role grants the required action."
	}
	return "This operation requires one of the following roles: " + strings.Join(roles, ", ")
}
