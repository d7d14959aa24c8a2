// Package webhook receives signed change notifications from the registration service
// and turns them into reconciliation work.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/trace"

	"github.com/acectf/roster-sync/internal/otel"
	"github.com/acectf/roster-sync/internal/reconcile"
	"github.com/acectf/roster-sync/internal/registration"
	"github.com/acectf/roster-sync/internal/roster"
	pkgsync "github.com/acectf/roster-sync/internal/sync"
	"github.com/acectf/roster-sync/internal/telemetry"
)

// MaxBodySize is the largest accepted notification
const MaxBodySize = 1 << 20

// Event names
const (
	EventTeamCreated       = "team.created"
	EventTeamUpdated       = "team.updated"
	EventTeamDeleted       = "team.deleted"
	EventTeamMemberAdded   = "team.member_added"
	EventTeamMemberRemoved = "team.member_removed"
)

// unknownEventMetricLabel replaces unrecognized event names in metrics
const unknownEventMetricLabel = "unknown"

var (
	// ErrUnknownEvent is returned for an event name with no mapping
	ErrUnknownEvent = errors.New("unknown webhook event")

	// ErrInvalidPayload is returned for malformed JSON or missing identifiers
	ErrInvalidPayload = errors.New("invalid webhook payload")
)

// Reconciler is the targeted part of the reconciliation engine
type Reconciler interface {
	DeleteTeam(ctx context.Context, ref reconcile.TeamRef) (*reconcile.Deletion, error)
	DetachMember(ctx context.Context, email string, from reconcile.TeamRef) error
}

// UserLookup resolves an external user id to its member record
type UserLookup interface {
	FetchUser(ctx context.Context, externalUserID string) (registration.Member, error)
}

// Option configures a Handler
type Option func(*Handler)

// WithMetrics sets the webhook metrics recorder
func WithMetrics(metrics *telemetry.WebhookMetrics) Option {
	return func(h *Handler) {
		h.metrics = metrics
	}
}

// WithTracer sets the tracer used for notification spans
func WithTracer(tracer trace.Tracer) Option {
	return func(h *Handler) {
		h.tracer = tracer
	}
}

// Handler is the http.Handler for POST /webhooks/registration
type Handler struct {
	secret     []byte
	manager    pkgsync.Manager
	reconciler Reconciler
	users      UserLookup
	metrics    *telemetry.WebhookMetrics
	tracer     trace.Tracer
}

// NewHandler creates a webhook handler verifying notifications with secret
func NewHandler(secret []byte, manager pkgsync.Manager, reconciler Reconciler, users UserLookup, opts ...Option) *Handler {
	h := &Handler{
		secret:     secret,
		manager:    manager,
		reconciler: reconciler,
		users:      users,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// response is the JSON body of every webhook reply
type response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ServeHTTP implements http.Handler
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.StartSpan(r.Context(), h.tracer, "webhook.Receive")
	defer span.End()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.reply(ctx, w, unknownEventMetricLabel, telemetry.OutcomeRejected, http.StatusRequestEntityTooLarge, false, "Payload too large")
			return
		}
		h.reply(ctx, w, unknownEventMetricLabel, telemetry.OutcomeRejected, http.StatusBadRequest, false, "Failed to read body")
		return
	}

	// nothing about the payload is trusted before this point
	if err := Verify(h.secret, body, r.Header.Get(SignatureHeader)); err != nil {
		slog.WarnContext(ctx, "Rejected webhook with invalid signature", "remote_addr", r.RemoteAddr)
		h.reply(ctx, w, unknownEventMetricLabel, telemetry.OutcomeRejected, http.StatusUnauthorized, false, "Invalid signature")
		return
	}

	if !gjson.ValidBytes(body) {
		h.reply(ctx, w, unknownEventMetricLabel, telemetry.OutcomeRejected, http.StatusBadRequest, false, "Malformed JSON")
		return
	}
	event := gjson.GetBytes(body, "event").String()
	data := gjson.GetBytes(body, "data")
	span.SetAttributes(otel.AttrWebhookEvent.String(event))
	slog.InfoContext(ctx, "Received webhook", "event", event)

	switch event {
	case EventTeamCreated, EventTeamUpdated, EventTeamMemberAdded:
		h.manager.Dispatch(ctx, pkgsync.JobTeamSync)
		h.reply(ctx, w, event, telemetry.OutcomeDispatched, http.StatusOK, true, "Full sync scheduled")

	case EventTeamDeleted:
		h.handleTeamDeleted(ctx, w, event, data)

	case EventTeamMemberRemoved:
		h.handleMemberRemoved(ctx, w, event, data)

	default:
		slog.WarnContext(ctx, "Rejected webhook with unknown event", "event", event)
		h.reply(ctx, w, unknownEventMetricLabel, telemetry.OutcomeRejected, http.StatusBadRequest, false,
			fmt.Sprintf("Unknown event %q", event))
	}
}

// TeamRefFromData extracts the deletion identifiers a team.deleted payload carries
func TeamRefFromData(data gjson.Result) reconcile.TeamRef {
	ref := reconcile.TeamRef{
		ExternalID: firstString(data, "id", "teamId"),
		Name:       firstString(data, "name", "teamName"),
	}
	if local := data.Get("ctfdTeamId"); local.Type == gjson.Number {
		id := local.Int()
		ref.LocalID = &id
	}
	return ref
}

// MemberTeamRefFromData extracts the team a team.member_removed payload names
func MemberTeamRefFromData(data gjson.Result) reconcile.TeamRef {
	ref := reconcile.TeamRef{
		ExternalID: data.Get("teamId").String(),
		Name:       data.Get("teamName").String(),
	}
	if local := data.Get("ctfdTeamId"); local.Type == gjson.Number {
		id := local.Int()
		ref.LocalID = &id
	}
	return ref
}

func firstString(data gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := data.Get(p); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

func (h *Handler) handleTeamDeleted(ctx context.Context, w http.ResponseWriter, event string, data gjson.Result) {
	ref := TeamRefFromData(data)
	if ref.Empty() {
		h.reply(ctx, w, event, telemetry.OutcomeRejected, http.StatusBadRequest, false, "No team identifier in payload")
		return
	}

	var deletion *reconcile.Deletion
	err := h.manager.Locked(ctx, pkgsync.JobTeamSync, func(ctx context.Context) error {
		var err error
		deletion, err = h.reconciler.DeleteTeam(ctx, ref)
		return err
	})
	switch {
	case err == nil:
		h.reply(ctx, w, event, telemetry.OutcomeHandled, http.StatusOK, true,
			fmt.Sprintf("Team %q deleted, %d members detached", deletion.Team.Name, deletion.Detached))
	case errors.Is(err, reconcile.ErrTeamNotFound):
		h.reply(ctx, w, event, telemetry.OutcomeNotFound, http.StatusNotFound, false, "Team not found")
	case errors.Is(err, reconcile.ErrAmbiguousTeam):
		slog.WarnContext(ctx, "Team deletion is ambiguous", "external_id", ref.ExternalID, "name", ref.Name, "error", err)
		h.reply(ctx, w, event, telemetry.OutcomeFailed, http.StatusConflict, false, "Team reference matches more than one team")
	default:
		h.fail(ctx, w, event, err)
	}
}

func (h *Handler) handleMemberRemoved(ctx context.Context, w http.ResponseWriter, event string, data gjson.Result) {
	userID := firstString(data, "userId", "memberId")
	email := data.Get("email").String()
	from := MemberTeamRefFromData(data)
	if userID == "" && email == "" {
		h.reply(ctx, w, event, telemetry.OutcomeRejected, http.StatusBadRequest, false, "No member identifier in payload")
		return
	}

	if userID != "" {
		member, err := h.users.FetchUser(ctx, userID)
		if err != nil {
			// a full pass clears the membership as well, just later
			slog.WarnContext(ctx, "Member lookup failed, falling back to full sync", "user_id", userID, "error", err)
			h.manager.Dispatch(ctx, pkgsync.JobTeamSync)
			h.reply(ctx, w, event, telemetry.OutcomeDispatched, http.StatusOK, true, "Member lookup failed, full sync scheduled")
			return
		}
		email = member.Email
	}

	err := h.manager.Locked(ctx, pkgsync.JobTeamSync, func(ctx context.Context) error {
		return h.reconciler.DetachMember(ctx, email, from)
	})
	switch {
	case err == nil:
		h.reply(ctx, w, event, telemetry.OutcomeHandled, http.StatusOK, true, "Member detached")
	case errors.Is(err, roster.ErrNotFound):
		h.reply(ctx, w, event, telemetry.OutcomeNotFound, http.StatusNotFound, false, "Member not found")
	default:
		h.fail(ctx, w, event, err)
	}
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, event string, err error) {
	slog.ErrorContext(ctx, "Failed to handle webhook", "event", event, "error", err)
	if errors.Is(err, pkgsync.ErrBusy) {
		h.reply(ctx, w, event, telemetry.OutcomeFailed, http.StatusServiceUnavailable, false, "Timed out waiting for a running sync")
		return
	}
	h.reply(ctx, w, event, telemetry.OutcomeFailed, http.StatusInternalServerError, false, "Internal error")
}

func (h *Handler) reply(ctx context.Context, w http.ResponseWriter, event, outcome string, code int, ok bool, msg string) {
	h.metrics.RecordEvent(ctx, event, outcome)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(response{Success: ok, Message: msg}); err != nil {
		slog.ErrorContext(ctx, "Failed to write webhook response", "error", err)
	}
}
