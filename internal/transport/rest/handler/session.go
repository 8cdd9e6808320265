package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"vivaroom/internal/model"
	"vivaroom/internal/service"
	"vivaroom/internal/transport/rest/middleware"
)

// SessionHandler handles session lifecycle endpoints
type SessionHandler struct {
	sessionSvc *service.SessionService
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessionSvc *service.SessionService) *SessionHandler {
	return &SessionHandler{sessionSvc: sessionSvc}
}

// CreateSessionRequest is the request body for scheduling a viva
type CreateSessionRequest struct {
	StudentName     string            `json:"studentName"`
	ScheduledAt     time.Time         `json:"scheduledAt"`
	DurationMinutes int               `json:"durationMinutes"`
	Mode            model.SessionMode `json:"mode"`
}

// Create handles POST /v1/sessions
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	examinerID := middleware.GetExaminerID(r.Context())
	if examinerID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.sessionSvc.CreateSession(r.Context(), examinerID, req.StudentName,
		req.ScheduledAt, req.DurationMinutes, req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, session)
}

// List handles GET /v1/sessions
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	examinerID := middleware.GetExaminerID(r.Context())

	sessions, err := h.sessionSvc.ListSessions(r.Context(), examinerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

// Get handles GET /v1/sessions/{id}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	session, err := h.sessionSvc.GetSession(r.Context(), id)
	if err != nil {
		if err == service.ErrSessionNotFound {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// Start handles POST /v1/sessions/{id}/start
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	examinerID := middleware.GetExaminerID(r.Context())

	session, err := h.sessionSvc.Start(r.Context(), id, examinerID)
	if err != nil {
		writeLifecycleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// Complete handles POST /v1/sessions/{id}/complete
func (h *SessionHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	examinerID := middleware.GetExaminerID(r.Context())

	var req service.CompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.sessionSvc.Complete(r.Context(), id, examinerID, &req)
	if err != nil {
		writeLifecycleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// MissedRequest is the request body for marking a session missed
type MissedRequest struct {
	Reason string `json:"reason"`
}

// Missed handles POST /v1/sessions/{id}/missed
func (h *SessionHandler) Missed(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	examinerID := middleware.GetExaminerID(r.Context())

	var req MissedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.sessionSvc.MarkMissed(r.Context(), id, examinerID, req.Reason)
	if err != nil {
		writeLifecycleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// writeLifecycleError maps lifecycle failures onto statuses the client can
// distinguish: 409 means stale state (re-fetch, don't retry blindly).
func writeLifecycleError(w http.ResponseWriter, err error) {
	switch {
	case service.IsStaleState(err):
		writeError(w, http.StatusConflict, err.Error())
	case err == service.ErrSessionNotFound:
		writeError(w, http.StatusNotFound, err.Error())
	case err == service.ErrNotHost:
		writeError(w, http.StatusForbidden, err.Error())
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}
