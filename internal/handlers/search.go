package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// HandleCollections reloads the collection list from the search service
func (h *Handler) HandleCollections(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, chi.URLParam(r, "sessionID"))
	if !ok {
		return
	}
	if err := session.Controller.LoadCollections(r.Context()); err != nil {
		h.writeControllerError(w, err)
		return
	}

	snap := session.Controller.Snapshot()
	h.writeJSON(w, map[string]any{
		"collections": snap.Collections,
		"collection":  snap.Collection,
	})
}

func (h *Handler) HandleSelectCollection(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, chi.URLParam(r, "sessionID"))
	if !ok {
		return
	}

	var request struct {
		Collection string `json:"collection"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := session.Controller.SelectCollection(request.Collection); err != nil {
		h.writeControllerError(w, err)
		return
	}
	h.writeSession(w, session)
}

// HandleSearch runs the face search for the held capture and answers once
// the controller settled on Results, or on Upload after a failure.
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, chi.URLParam(r, "sessionID"))
	if !ok {
		return
	}
	if err := session.Controller.SubmitCapture(r.Context()); err != nil {
		h.writeControllerError(w, err)
		return
	}
	h.writeSession(w, session)
}

func (h *Handler) HandleToggle(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, chi.URLParam(r, "sessionID"))
	if !ok {
		return
	}

	var request struct {
		StoragePath string `json:"storage_path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	selected, err := session.Controller.ToggleSelection(request.StoragePath)
	if err != nil {
		h.writeControllerError(w, err)
		return
	}
	slog.Debug("Selection toggled", "session_id", session.Controller.ID(), "path", request.StoragePath, "selected", selected)
	h.writeSession(w, session)
}

// HandlePayment opens the payment session; confirmation arrives through the
// controller's poll and shows up on the next session fetch.
func (h *Handler) HandlePayment(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, chi.URLParam(r, "sessionID"))
	if !ok {
		return
	}
	if err := session.Controller.BeginPayment(r.Context()); err != nil {
		h.writeControllerError(w, err)
		return
	}
	h.writeSessionStatus(w, session, http.StatusAccepted)
}
