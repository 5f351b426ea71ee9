package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/lehigh-university-libraries/facekiosk/internal/kiosk"
	"github.com/lehigh-university-libraries/facekiosk/internal/models"
)

// HandleListSessions shows every live session. It is only routed in debug mode.
func (h *Handler) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	ids := h.sessionStore.IDs()
	sessions := make([]sessionResponse, 0, len(ids))
	for _, id := range ids {
		session, ok := h.sessionStore.Get(id)
		if !ok {
			continue
		}
		snap := session.Controller.Snapshot()
		sessions = append(sessions, sessionResponse{
			SessionID: id,
			View:      kiosk.Render(snap),
			Notices:   session.Notices(),
		})
	}
	h.writeJSON(w, sessions)
}

// HandleCreateSession starts a guest session on the Upload screen and loads
// the collection list. A failed load still creates the session; the error
// is reported as a notice.
func (h *Handler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	session := h.newSession()
	if err := session.Controller.LoadCollections(r.Context()); err != nil {
		slog.Warn("Session created without collections", "session_id", session.Controller.ID(), "err", err)
	}
	slog.Info("Session created", "session_id", session.Controller.ID())

	w.Header().Set("Location", "/api/sessions/"+session.Controller.ID())
	h.writeSessionStatus(w, session, http.StatusCreated)
}

func (h *Handler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, chi.URLParam(r, "sessionID"))
	if !ok {
		return
	}
	h.writeSession(w, session)
}

func (h *Handler) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if !h.sessionStore.Delete(sessionID) {
		h.writeError(w, "Session not found", http.StatusNotFound)
		return
	}
	slog.Info("Session closed", "session_id", sessionID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleNewSearch(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, chi.URLParam(r, "sessionID"))
	if !ok {
		return
	}
	if err := session.Controller.NewSearch(); err != nil {
		h.writeControllerError(w, err)
		return
	}
	h.writeSession(w, session)
}

// HandleScreen navigates explicitly: upload starts a new search and results
// goes back from the payment screen. Other edges are refused with 409, and
// screens entered through their own operations with 400.
func (h *Handler) HandleScreen(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, chi.URLParam(r, "sessionID"))
	if !ok {
		return
	}

	var request struct {
		Screen models.Screen `json:"screen"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := session.Controller.TransitionTo(request.Screen); err != nil {
		h.writeControllerError(w, err)
		return
	}
	h.writeSession(w, session)
}
