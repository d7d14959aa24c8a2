// Package helpers provides the fake registration service and server harness for the
// integration suite.
package helpers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/acectf/roster-sync/internal/registration"
)

// Admin credentials accepted by the fake
const (
	AdminEmail    = "admin@register.test"
	AdminPassword = "hunter2"
)

// FakeRegistration is an in-memory registration service
type FakeRegistration struct {
	*httptest.Server

	mu       sync.Mutex
	teams    []registration.Team
	users    map[string]registration.Member
	reported map[string]int64
	pushes   [][]registration.ScoreEntry
	token    string
	logins   int
}

// NewFakeRegistration starts the fake. Close it when done.
func NewFakeRegistration() *FakeRegistration {
	f := &FakeRegistration{
		users:    map[string]registration.Member{},
		reported: map[string]int64{},
	}

	r := chi.NewRouter()
	r.Post("/api/auth/login", f.login)
	r.Group(func(r chi.Router) {
		r.Use(f.requireToken)
		r.Get("/api/admin/teams", f.listTeams)
		r.Patch("/api/admin/teams/{id}", f.reportTeam)
		r.Get("/api/admin/users/{id}", f.getUser)
		r.Post("/api/admin/ctfd/sync-scores", f.syncScores)
	})
	f.Server = httptest.NewServer(r)
	return f
}

// BaseURL is the API root to configure in roster-sync
func (f *FakeRegistration) BaseURL() string {
	return f.URL + "/api"
}

// SetTeams replaces the registered teams
func (f *FakeRegistration) SetTeams(teams ...registration.Team) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.teams = teams
	for _, t := range teams {
		for _, m := range t.Members {
			f.users[m.ID] = m
		}
	}
}

// Reported returns the local team ids reported back, by external team id
func (f *FakeRegistration) Reported() map[string]int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int64, len(f.reported))
	for k, v := range f.reported {
		out[k] = v
	}
	return out
}

// LastPush returns the most recent score push, or nil
func (f *FakeRegistration) LastPush() []registration.ScoreEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pushes) == 0 {
		return nil
	}
	return f.pushes[len(f.pushes)-1]
}

// Logins returns how many successful logins happened
func (f *FakeRegistration) Logins() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins
}

// RevokeToken invalidates the current bearer token, forcing a re-login
func (f *FakeRegistration) RevokeToken() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = ""
}

func reply(w http.ResponseWriter, code int, success bool, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": success, "data": data})
}

func (f *FakeRegistration) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email != AdminEmail || req.Password != AdminPassword {
		reply(w, http.StatusUnauthorized, false, nil)
		return
	}

	f.mu.Lock()
	f.logins++
	f.token = fmt.Sprintf("token-%d", f.logins)
	token := f.token
	f.mu.Unlock()

	reply(w, http.StatusOK, true, map[string]string{"token": token})
}

func (f *FakeRegistration) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		f.mu.Lock()
		valid := f.token != "" && token == f.token
		f.mu.Unlock()
		if !valid {
			reply(w, http.StatusUnauthorized, false, nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (f *FakeRegistration) listTeams(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	teams := make([]registration.Team, len(f.teams))
	copy(teams, f.teams)
	for i := range teams {
		if id, ok := f.reported[teams[i].ID]; ok {
			teams[i].LocalTeamID = &id
		}
	}
	f.mu.Unlock()

	reply(w, http.StatusOK, true, map[string]any{"teams": teams})
}

func (f *FakeRegistration) reportTeam(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LocalTeamID int64 `json:"ctfdTeamId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		reply(w, http.StatusBadRequest, false, nil)
		return
	}
	f.mu.Lock()
	f.reported[chi.URLParam(r, "id")] = req.LocalTeamID
	f.mu.Unlock()
	reply(w, http.StatusOK, true, nil)
}

func (f *FakeRegistration) getUser(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	user, ok := f.users[chi.URLParam(r, "id")]
	f.mu.Unlock()
	if !ok {
		reply(w, http.StatusNotFound, false, nil)
		return
	}
	reply(w, http.StatusOK, true, map[string]any{"user": user})
}

func (f *FakeRegistration) syncScores(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Scores []registration.ScoreEntry `json:"scores"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		reply(w, http.StatusBadRequest, false, nil)
		return
	}
	f.mu.Lock()
	f.pushes = append(f.pushes, req.Scores)
	f.mu.Unlock()
	reply(w, http.StatusOK, true, nil)
}
