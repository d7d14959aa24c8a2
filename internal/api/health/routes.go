// Package health serves the liveness, readiness and version endpoints.
package health

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/acectf/roster-sync/internal/api/common"
	"github.com/acectf/roster-sync/internal/versions"
)

// Pinger reports whether the local store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Router creates a router for health check endpoints
func Router(store Pinger) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", healthHandler)
	r.Get("/readiness", readinessHandler(store))
	r.Get("/version", versionHandler)

	return r
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, map[string]string{"status": "healthy"}, http.StatusOK)
}

func readinessHandler(store Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.Ping(r.Context()); err != nil {
			common.WriteJSONResponse(w, map[string]string{
				"error": "store not ready: " + err.Error(),
			}, http.StatusServiceUnavailable)
			return
		}
		common.WriteJSONResponse(w, map[string]string{"status": "ready"}, http.StatusOK)
	}
}

func versionHandler(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, versions.GetVersionInfo(), http.StatusOK)
}
