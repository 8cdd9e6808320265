package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"vivaroom/internal/service"
	"vivaroom/internal/transport/rest/middleware"
)

// AdmissionHandler handles the waiting-room endpoints
type AdmissionHandler struct {
	admissionSvc *service.AdmissionService
	authSvc      *service.AuthService
}

// NewAdmissionHandler creates a new admission handler
func NewAdmissionHandler(admissionSvc *service.AdmissionService, authSvc *service.AuthService) *AdmissionHandler {
	return &AdmissionHandler{
		admissionSvc: admissionSvc,
		authSvc:      authSvc,
	}
}

// JoinRequest is the request body for joining a session
type JoinRequest struct {
	UserID string `json:"userId,omitempty"`
	Name   string `json:"name"`
}

// Join handles POST /v1/sessions/{id}/join. An examiner token identifies the
// host, who bypasses the waiting room; everyone else joins as a guest.
func (h *AdmissionHandler) Join(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var req JoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	userID := req.UserID
	if token := extractBearer(r); token != "" {
		if claims, err := h.authSvc.ValidateExaminerToken(token); err == nil {
			userID = claims.ExaminerID
		}
	}
	if userID == "" {
		userID = "u_" + uuid.New().String()[:8]
	}

	resp, err := h.admissionSvc.Join(r.Context(), sessionID, userID, req.Name)
	if err != nil {
		switch err {
		case service.ErrSessionNotFound:
			writeError(w, http.StatusNotFound, err.Error())
		case service.ErrSessionEnded:
			writeError(w, http.StatusGone, err.Error())
		default:
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// MyStatus handles GET /v1/sessions/{id}/me — the guest's 2s poll target.
func (h *AdmissionHandler) MyStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	participantID := middleware.GetParticipantID(r.Context())

	if middleware.GetSessionID(r.Context()) != sessionID {
		writeError(w, http.StatusForbidden, "token not valid for this session")
		return
	}

	status, err := h.admissionSvc.MyStatus(r.Context(), sessionID, participantID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}

// Participants handles GET /v1/sessions/{id}/participants — the host's 3s
// poll target.
func (h *AdmissionHandler) Participants(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	roster, err := h.admissionSvc.Roster(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, roster)
}

// Admit handles POST /v1/sessions/{id}/participants/{participantId}/admit
func (h *AdmissionHandler) Admit(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	if err := h.admissionSvc.Admit(r.Context(), vars["id"], vars["participantId"]); err != nil {
		writeDecisionError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "admitted"})
}

// Reject handles POST /v1/sessions/{id}/participants/{participantId}/reject
func (h *AdmissionHandler) Reject(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	if err := h.admissionSvc.Reject(r.Context(), vars["id"], vars["participantId"]); err != nil {
		writeDecisionError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "rejected"})
}

// AdmitAll handles POST /v1/sessions/{id}/participants/admit-all
func (h *AdmissionHandler) AdmitAll(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	n, err := h.admissionSvc.AdmitAll(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"admitted": n})
}

func writeDecisionError(w http.ResponseWriter, err error) {
	switch err {
	case service.ErrParticipantNotFound:
		writeError(w, http.StatusNotFound, err.Error())
	case service.ErrAlreadyRejected:
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func extractBearer(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}
