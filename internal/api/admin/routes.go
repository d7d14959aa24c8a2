// Package admin serves the operator endpoints that trigger and inspect the sync jobs.
package admin

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/acectf/roster-sync/internal/api/common"
	"github.com/acectf/roster-sync/internal/registration"
	"github.com/acectf/roster-sync/internal/roster"
	"github.com/acectf/roster-sync/internal/status"
	"github.com/acectf/roster-sync/internal/sync"
)

// Registration is the part of the registration client the status endpoint needs.
// ListTeams logs in on demand, so it doubles as the connectivity check and never
// replaces the token the sync jobs share.
type Registration interface {
	ListTeams(ctx context.Context) ([]registration.Team, error)
}

// Previewer returns the local standings without pushing them
type Previewer interface {
	Preview(ctx context.Context) ([]roster.Standing, error)
}

// StatusResponse is the body of GET /registration-sync/status
type StatusResponse struct {
	Success        bool               `json:"success"`
	Connected      bool               `json:"connected"`
	TeamsAvailable int                `json:"teams_available"`
	SiteURL        string             `json:"site_url,omitempty"`
	Error          string             `json:"error,omitempty"`
	Jobs           []status.JobStatus `json:"jobs"`
}

// SyncResponse is the body of a successful manual sync
type SyncResponse struct {
	common.MessageResponse
	Report *sync.Report `json:"report"`
}

// ScoreboardEntry is one row of the preview
type ScoreboardEntry struct {
	LocalTeamID int64  `json:"ctfd_team_id"`
	TeamName    string `json:"team_name"`
	Score       int64  `json:"score"`
	Rank        int    `json:"rank"`
}

// PreviewResponse is the body of GET /score-sync/preview
type PreviewResponse struct {
	Success    bool              `json:"success"`
	Scoreboard []ScoreboardEntry `json:"scoreboard"`
	Count      int               `json:"count"`
}

// Routes holds the admin handlers' dependencies
type Routes struct {
	manager sync.Manager
	client  Registration
	scores  Previewer
	siteURL string
}

// NewRoutes creates the admin routes
func NewRoutes(manager sync.Manager, client Registration, scores Previewer, siteURL string) *Routes {
	return &Routes{manager: manager, client: client, scores: scores, siteURL: siteURL}
}

// Router mounts the admin endpoints
func (rt *Routes) Router() http.Handler {
	r := chi.NewRouter()

	r.Route("/registration-sync", func(r chi.Router) {
		r.Post("/manual-sync", rt.manualSync(sync.JobTeamSync, "Team sync complete"))
		r.Get("/status", rt.syncStatus)
	})
	r.Route("/score-sync", func(r chi.Router) {
		r.Post("/manual-sync", rt.manualSync(sync.JobScoreSync, "Score sync complete"))
		r.Get("/preview", rt.preview)
	})

	return r
}

func (rt *Routes) manualSync(job, done string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := rt.manager.TryRun(r.Context(), job)
		switch {
		case errors.Is(err, sync.ErrBusy):
			common.WriteErrorResponse(w, "A "+job+" run is already in progress", http.StatusConflict)
			return
		case err != nil:
			slog.ErrorContext(r.Context(), "Manual sync failed", "job", job, "error", err)
			common.WriteErrorResponse(w, "Sync failed", http.StatusInternalServerError)
			return
		}

		slog.InfoContext(r.Context(), "Manual sync complete", "job", job, "duration", report.Duration)
		common.WriteJSONResponse(w, SyncResponse{
			MessageResponse: common.MessageResponse{Success: true, Message: done},
			Report:          report,
		}, http.StatusOK)
	}
}

func (rt *Routes) syncStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{Jobs: rt.manager.Status()}

	teams, err := rt.checkConnection(r.Context())
	if err != nil {
		slog.WarnContext(r.Context(), "Registration service unreachable", "error", err)
		resp.Error = "Cannot connect to the registration service"
		common.WriteJSONResponse(w, resp, http.StatusOK)
		return
	}

	resp.Success = true
	resp.Connected = true
	resp.TeamsAvailable = teams
	resp.SiteURL = rt.siteURL
	common.WriteJSONResponse(w, resp, http.StatusOK)
}

func (rt *Routes) checkConnection(ctx context.Context) (int, error) {
	teams, err := rt.client.ListTeams(ctx)
	if err != nil {
		return 0, err
	}
	return len(teams), nil
}

func (rt *Routes) preview(w http.ResponseWriter, r *http.Request) {
	standings, err := rt.scores.Preview(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to read standings", "error", err)
		common.WriteErrorResponse(w, "Failed to read standings", http.StatusInternalServerError)
		return
	}

	entries := make([]ScoreboardEntry, 0, len(standings))
	for _, s := range standings {
		entries = append(entries, ScoreboardEntry{
			LocalTeamID: s.TeamID,
			TeamName:    s.TeamName,
			Score:       s.Score,
			Rank:        s.Rank,
		})
	}
	common.WriteJSONResponse(w, PreviewResponse{Success: true, Scoreboard: entries, Count: len(entries)}, http.StatusOK)
}
