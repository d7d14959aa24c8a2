package sso

import (
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/rs/cors"
)

const maxFormSize = 64 << 10

// responder renders the outcome of a bridge request
type responder interface {
	success(w http.ResponseWriter, r *http.Request, out *Outcome)
	failure(w http.ResponseWriter, code int, msg string)
}

// jsonResponder answers API clients
type jsonResponder struct {
	redirectURL string
}

type jsonReply struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	Data    *sessionReply `json:"data,omitempty"`
}

type sessionReply struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	RedirectURL string `json:"redirect_url"`
}

func (j jsonResponder) success(w http.ResponseWriter, _ *http.Request, out *Outcome) {
	writeJSON(w, http.StatusOK, jsonReply{
		Success: true,
		Message: "Session created",
		Data: &sessionReply{
			ID:          out.User.ID,
			Name:        out.User.Name,
			Email:       out.User.Email,
			RedirectURL: j.redirectURL,
		},
	})
}

func (jsonResponder) failure(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, jsonReply{Success: false, Message: msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to write SSO response", "error", err)
	}
}

// browserResponder answers form posts
type browserResponder struct {
	redirectURL string
}

func (b browserResponder) success(w http.ResponseWriter, r *http.Request, _ *Outcome) {
	http.Redirect(w, r, b.redirectURL, http.StatusSeeOther)
}

func (browserResponder) failure(w http.ResponseWriter, code int, msg string) {
	http.Error(w, msg, code)
}

// Handler serves POST /sso/authenticate
type Handler struct {
	bridge  *Bridge
	json    responder
	browser responder
	secure  bool
}

// NewHandler creates the SSO handler. Successful logins land on publicURL + "/challenges".
func NewHandler(bridge *Bridge, publicURL string) *Handler {
	redirect := strings.TrimSuffix(publicURL, "/") + "/challenges"
	return &Handler{
		bridge:  bridge,
		json:    jsonResponder{redirectURL: redirect},
		browser: browserResponder{redirectURL: redirect},
		secure:  strings.HasPrefix(publicURL, "https://"),
	}
}

// WithCORS wraps h with preflight handling for the given origins
func WithCORS(h http.Handler, allowedOrigins []string) http.Handler {
	if len(allowedOrigins) == 0 {
		return h
	}
	return cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodPost},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	}).Handler(h)
}

// ServeHTTP implements http.Handler
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	in, resp, err := h.decode(w, r)
	if err != nil {
		resp.failure(w, http.StatusBadRequest, "Malformed request body")
		return
	}

	out, err := h.bridge.Authenticate(r.Context(), in)
	if err != nil {
		code, msg := failureFor(err)
		if code == http.StatusInternalServerError {
			slog.ErrorContext(r.Context(), "SSO authentication failed", "error", err)
		} else {
			slog.WarnContext(r.Context(), "SSO authentication rejected", "error", err)
		}
		resp.failure(w, code, msg)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    out.Session,
		Path:     "/",
		Expires:  out.ExpiresAt,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	resp.success(w, r, out)
}

// decode picks the responder from the content type and reads the input with it
func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (Input, responder, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var body struct {
			Token string `json:"token"`
			Email string `json:"email"`
		}
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFormSize))
		if err := dec.Decode(&body); err != nil {
			return Input{}, h.json, err
		}
		return Input{Token: strings.TrimSpace(body.Token), Email: strings.TrimSpace(body.Email)}, h.json, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxFormSize)
	if err := r.ParseForm(); err != nil {
		return Input{}, h.browser, err
	}
	return Input{
		Token: strings.TrimSpace(r.PostForm.Get("token")),
		Email: strings.TrimSpace(r.PostForm.Get("email")),
	}, h.browser, nil
}

func failureFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrMissingInput):
		return http.StatusBadRequest, "Token is required"
	case errors.Is(err, ErrExpiredToken):
		return http.StatusUnauthorized, "Token has expired"
	case errors.Is(err, ErrInvalidToken):
		return http.StatusUnauthorized, "Token is invalid"
	default:
		return http.StatusInternalServerError, "Authentication failed"
	}
}
