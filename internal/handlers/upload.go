package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/lehigh-university-libraries/facekiosk/internal/images"
)

// HandleCapture accepts the webcam still either as multipart form data or as
// a raw image body.
func (h *Handler) HandleCapture(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, chi.URLParam(r, "sessionID"))
	if !ok {
		return
	}

	// Leave room for the multipart envelope around a maximum size image
	r.Body = http.MaxBytesReader(w, r.Body, images.MaxCaptureSize+1024*1024)

	var (
		body     io.Reader
		filename string
	)
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "image/") {
		body = r.Body
		filename = "webcam.jpg"
	} else {
		file, header, err := r.FormFile("file")
		if err != nil {
			file, header, err = r.FormFile("files")
			if err != nil {
				h.writeError(w, "Failed to read file: "+err.Error(), http.StatusBadRequest)
				return
			}
		}
		defer file.Close()
		body = file
		filename = header.Filename
	}

	fileData, err := io.ReadAll(io.LimitReader(body, images.MaxCaptureSize+1))
	if err != nil {
		h.writeError(w, "Failed to read file contents: "+err.Error(), http.StatusBadRequest)
		return
	}

	capture, err := images.NewCapture(fileData, filename)
	switch {
	case errors.Is(err, images.ErrTooLarge):
		h.writeError(w, "File too large (max 10MB)", http.StatusBadRequest)
		return
	case err != nil:
		h.writeError(w, "Please capture a valid image: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := session.Controller.SetCapture(capture); err != nil {
		h.writeControllerError(w, err)
		return
	}
	slog.Info("Capture received", "session_id", session.Controller.ID(), "bytes", len(fileData), "width", capture.Width, "height", capture.Height)
	h.writeSession(w, session)
}

func (h *Handler) HandleDiscardCapture(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, chi.URLParam(r, "sessionID"))
	if !ok {
		return
	}
	if err := session.Controller.DiscardCapture(); err != nil {
		h.writeControllerError(w, err)
		return
	}
	h.writeSession(w, session)
}

func (h *Handler) HandleThumbnail(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, chi.URLParam(r, "sessionID"))
	if !ok {
		return
	}
	capture := session.Controller.Snapshot().Capture
	if capture == nil || len(capture.Thumbnail) == 0 {
		h.writeError(w, "No capture", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	if _, err := w.Write(capture.Thumbnail); err != nil {
		slog.Error("Unable to write thumbnail", "err", err)
	}
}
