// Package handlers exposes the REST surface that sits beside the websocket
// transport: session issuance for the wizard, the staff booking-lifecycle
// hooks, and the internal notification publish endpoint.
package handlers

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/showroomhq/testdrive-core/internal/domain"
	"github.com/showroomhq/testdrive-core/internal/hold"
	"github.com/showroomhq/testdrive-core/internal/http/response"
	"github.com/showroomhq/testdrive-core/internal/ratelimit"
	"github.com/showroomhq/testdrive-core/internal/session"
	"github.com/showroomhq/testdrive-core/pkg/logger"
)

type Handlers struct {
	sessions *session.Issuer
	limiter  *ratelimit.Limiter
	holds    *hold.Manager
	emitter  hold.Emitter
}

func New(sessions *session.Issuer, limiter *ratelimit.Limiter, holds *hold.Manager, emitter hold.Emitter) *Handlers {
	return &Handlers{sessions: sessions, limiter: limiter, holds: holds, emitter: emitter}
}

type sessionResponse struct {
	SessionID string    `json:"session_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CreateSession issues the wizard's session capability token. Rate limited
// per client IP so a single browser cannot mint sessions in a loop.
func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	if !h.limiter.Allow(r.Context(), "sessions:"+clientIP(r)) {
		response.RateLimit(w, "too many session requests")
		return
	}

	token, sessionID, expiresAt, err := h.sessions.Issue()
	if err != nil {
		logger.ErrorContext(r.Context(), "session issuance failed", "error", err)
		response.InternalError(w, "could not create session")
		return
	}
	response.WriteJSON(w, http.StatusCreated, sessionResponse{
		SessionID: sessionID,
		Token:     token,
		ExpiresAt: expiresAt,
	})
}

// CancelBooking cancels a durable booking and frees its slot so other
// customers can book it again.
func (h *Handlers) CancelBooking(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "id")
	booking, err := h.holds.CancelBooking(r.Context(), bookingID)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, booking)
}

type statusRequest struct {
	Status string `json:"status"`
}

// UpdateBookingStatus persists a status change and relays it to the
// showroom dashboard topic.
func (h *Handlers) UpdateBookingStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	status, ok := domain.ParseBookingStatus(req.Status)
	if !ok {
		response.BadRequest(w, "unknown status: "+req.Status)
		return
	}

	bookingID := chi.URLParam(r, "id")
	booking, err := h.holds.UpdateBookingStatus(r.Context(), bookingID, status)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, booking)
}

type assignRequest struct {
	SalesExecID string `json:"sales_exec_id"`
}

// AssignBooking puts a booking onto a sales executive's schedule.
func (h *Handlers) AssignBooking(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SalesExecID == "" {
		response.BadRequest(w, "sales_exec_id required")
		return
	}

	bookingID := chi.URLParam(r, "id")
	booking, err := h.holds.AssignBooking(r.Context(), bookingID, req.SalesExecID)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, booking)
}

type notificationRequest struct {
	UserID  string         `json:"user_id"`
	Title   string         `json:"title"`
	Body    string         `json:"body"`
	Payload map[string]any `json:"payload,omitempty"`
}

// PublishNotification fans a notification out to a user's feed topic. The
// producing systems (reminders, lead routing) call this internally.
func (h *Handlers) PublishNotification(w http.ResponseWriter, r *http.Request) {
	var req notificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		response.BadRequest(w, "user_id required")
		return
	}

	h.emitter.Emit(domain.UserNotification{
		UserID:  req.UserID,
		Title:   req.Title,
		Body:    req.Body,
		Payload: req.Payload,
	})
	response.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// clientIP resolves the address the rate limiter keys on. Only the first
// X-Forwarded-For entry counts: the header is a comma-separated chain and
// trusting the raw value would let a client mint a fresh limiter key per
// request.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		if ip := strings.TrimSpace(fwd); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
