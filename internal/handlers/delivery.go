package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/lehigh-university-libraries/facekiosk/internal/kiosk"
)

func (h *Handler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, chi.URLParam(r, "sessionID"))
	if !ok {
		return
	}

	result, err := session.Controller.RequestDelivery(r.Context(), kiosk.Bundle())
	if err != nil {
		h.writeControllerError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+result.Filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Archive)))
	if _, err := w.Write(result.Archive); err != nil {
		slog.Error("Unable to write archive", "session_id", session.Controller.ID(), "err", err)
	}
}

func (h *Handler) HandleEmail(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, chi.URLParam(r, "sessionID"))
	if !ok {
		return
	}

	var request struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	result, err := session.Controller.RequestDelivery(r.Context(), kiosk.Email(request.Email))
	if err != nil {
		h.writeControllerError(w, err)
		return
	}
	h.writeJSONStatus(w, map[string]string{"message": result.Message}, http.StatusAccepted)
}

func (h *Handler) HandlePrint(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, chi.URLParam(r, "sessionID"))
	if !ok {
		return
	}

	page, err := session.Controller.PrintSheet()
	if err != nil {
		h.writeControllerError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write([]byte(page)); err != nil {
		slog.Error("Unable to write print sheet", "err", err)
	}
}
