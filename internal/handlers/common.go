package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/lehigh-university-libraries/facekiosk/internal/facesearch"
	"github.com/lehigh-university-libraries/facekiosk/internal/kiosk"
	"github.com/lehigh-university-libraries/facekiosk/internal/models"
	"github.com/lehigh-university-libraries/facekiosk/internal/storage"
)

type Handler struct {
	// Debug exposes GET /api/sessions, which lists every live session
	Debug bool

	sessionStore *storage.SessionStore
	services     kiosk.Services
	options      kiosk.Options
}

// New creates a handler whose sessions share svc. opts is the template for
// every session controller; its SessionID and OnNotice are set per session.
func New(svc kiosk.Services, opts kiosk.Options) *Handler {
	return &Handler{
		sessionStore: storage.New(),
		services:     svc,
		options:      opts,
	}
}

// Close ends every live session
func (h *Handler) Close() {
	h.sessionStore.CloseAll()
}

// ExpireSessions closes sessions left unused for longer than ttl. It returns
// when ctx is done.
func (h *Handler) ExpireSessions(ctx context.Context, ttl time.Duration) {
	ticker := time.NewTicker(min(ttl, time.Minute))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, id := range h.sessionStore.Expire(now.Add(-ttl)) {
				slog.Info("Session expired", "session_id", id, "ttl", ttl)
			}
		}
	}
}

type sessionResponse struct {
	SessionID string          `json:"session_id"`
	View      kiosk.View      `json:"view"`
	Notices   []models.Notice `json:"notices"`
}

func (h *Handler) newSession() *storage.Session {
	sessionID := uuid.NewString()
	session := &storage.Session{}

	opts := h.options
	opts.SessionID = sessionID
	opts.OnNotice = session.AddNotice
	session.Controller = kiosk.New(h.services, opts)

	h.sessionStore.Set(sessionID, session)
	return session
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, data interface{}) {
	h.writeJSONStatus(w, data, http.StatusOK)
}

func (h *Handler) writeJSONStatus(w http.ResponseWriter, data interface{}, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
	}
}

func (h *Handler) writeSession(w http.ResponseWriter, session *storage.Session) {
	h.writeSessionStatus(w, session, http.StatusOK)
}

func (h *Handler) writeSessionStatus(w http.ResponseWriter, session *storage.Session, code int) {
	snap := session.Controller.Snapshot()
	h.writeJSONStatus(w, sessionResponse{
		SessionID: snap.SessionID,
		View:      kiosk.Render(snap),
		Notices:   session.Notices(),
	}, code)
}

func (h *Handler) writeError(w http.ResponseWriter, message string, code int) {
	if code >= http.StatusInternalServerError {
		slog.Error(message, "code", code)
	} else {
		slog.Debug(message, "code", code)
	}
	http.Error(w, message, code)
}

// writeControllerError maps controller and upstream errors to a status code
func (h *Handler) writeControllerError(w http.ResponseWriter, err error) {
	var apiErr *facesearch.APIError
	switch {
	case kiosk.IsValidation(err):
		h.writeError(w, err.Error(), http.StatusBadRequest)
	case kiosk.IsWrongScreen(err):
		h.writeError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, kiosk.ErrClosed):
		h.writeError(w, err.Error(), http.StatusGone)
	case errors.Is(err, facesearch.ErrUnauthorized):
		h.writeError(w, err.Error(), http.StatusUnauthorized)
	case errors.As(err, &apiErr):
		h.writeError(w, apiErr.Detail, http.StatusBadGateway)
	default:
		h.writeError(w, err.Error(), http.StatusBadGateway)
	}
}

// Session helpers
func (h *Handler) getSessionOrError(w http.ResponseWriter, sessionID string) (*storage.Session, bool) {
	session, exists := h.sessionStore.Get(sessionID)
	if !exists {
		h.writeError(w, "Session not found", http.StatusNotFound)
		return nil, false
	}
	session.Touch()
	return session, true
}
