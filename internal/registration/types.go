package registration

import (
	"errors"
	"fmt"
)

var (
	// ErrAuth is returned when the registration service rejects our credentials or token
	// after the bounded re-authentication attempt
	ErrAuth = errors.New("registration service rejected credentials")

	// ErrNotFound is returned when a referenced external entity does not exist
	ErrNotFound = errors.New("not found in registration service")

	// ErrTransient marks network failures, timeouts and unexpected responses.
	// Use errors.Is(err, ErrTransient) to detect a *TransientError.
	ErrTransient = errors.New("registration service unavailable")
)

// TransientError wraps the cause of a failed call that may succeed on a later attempt
type TransientError struct {
	Op  string
	Err error
}

// Error implements error
func (e *TransientError) Error() string {
	return fmt.Sprintf("registration %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying cause
func (e *TransientError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrTransient
func (*TransientError) Is(target error) bool {
	return target == ErrTransient
}

// Team is a team as known by the registration service
type Team struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	InviteCode string `json:"inviteCode"`
	// LocalTeamID is the local id previously reported through ReportLocalTeamID
	LocalTeamID *int64   `json:"ctfdTeamId"`
	Members     []Member `json:"members"`
	CaptainID   string   `json:"captainId"`
}

// Captain returns the member flagged as captain
func (t *Team) Captain() (Member, bool) {
	if t.CaptainID == "" {
		return Member{}, false
	}
	for _, m := range t.Members {
		if m.ID == t.CaptainID {
			return m, true
		}
	}
	return Member{}, false
}

// Member is a user listed on an external team
type Member struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// ScoreEntry is one row of a score push
type ScoreEntry struct {
	TeamID      string `json:"teamId"`
	LocalTeamID int64  `json:"ctfdTeamId"`
	Score       int64  `json:"score"`
	Rank        int    `json:"rank"`
}

type envelope[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    T      `json:"data"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginData struct {
	Token string `json:"token"`
}

type teamsData struct {
	Teams []Team `json:"teams"`
}

type userData struct {
	User Member `json:"user"`
}

type reportRequest struct {
	LocalTeamID int64 `json:"ctfdTeamId"`
}

type scoresRequest struct {
	Scores []ScoreEntry `json:"scores"`
}
