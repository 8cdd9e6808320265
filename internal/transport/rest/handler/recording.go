package handler

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"vivaroom/internal/service"
)

// 512 MB cap; a one-hour webm viva recording stays well under this.
const maxRecordingBytes = 512 << 20

// RecordingHandler handles recording upload and retrieval
type RecordingHandler struct {
	recordingSvc *service.RecordingService
}

// NewRecordingHandler creates a new recording handler
func NewRecordingHandler(recordingSvc *service.RecordingService) *RecordingHandler {
	return &RecordingHandler{recordingSvc: recordingSvc}
}

// Upload handles POST /v1/sessions/{id}/recording. The body is the raw blob;
// duration rides in a query param and the codec in Content-Type.
func (h *RecordingHandler) Upload(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	duration := 0
	if d := r.URL.Query().Get("durationSeconds"); d != "" {
		n, err := strconv.Atoi(d)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid durationSeconds")
			return
		}
		duration = n
	}

	blob, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRecordingBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "recording too large")
		return
	}

	meta, err := h.recordingSvc.Upload(r.Context(), sessionID, blob, duration, r.Header.Get("Content-Type"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, meta)
}

// Get handles GET /v1/sessions/{id}/recording, streaming the blob back with
// its stored mime type.
func (h *RecordingHandler) Get(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	artifact, err := h.recordingSvc.Get(r.Context(), sessionID)
	if err != nil {
		if err == service.ErrNoRecording {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", artifact.MimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(artifact.Blob)))
	w.Header().Set("X-Duration-Seconds", strconv.Itoa(artifact.DurationSeconds))
	w.WriteHeader(http.StatusOK)
	w.Write(artifact.Blob)
}
