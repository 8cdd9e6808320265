package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"vivaroom/internal/model"
)

func TestErrorResponsesDecodeIntoAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"error": "stale state: cannot start session in status \"in_progress\""})
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Start(context.Background(), "viva_1")
	if err == nil {
		t.Fatal("no error for 409 response")
	}
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("error type %T, want *APIError", err)
	}
	if apiErr.Status != http.StatusConflict {
		t.Errorf("status = %d, want 409", apiErr.Status)
	}
	if !IsStale(err) {
		t.Error("IsStale = false for a 409")
	}
}

func TestIsStaleOnlyMatchesConflict(t *testing.T) {
	if IsStale(&APIError{Status: http.StatusForbidden}) {
		t.Error("403 reported stale")
	}
	if IsStale(context.Canceled) {
		t.Error("non-API error reported stale")
	}
}

func TestJoinInstallsRoomTokenForGuests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(&model.JoinResponse{
			Participant: &model.Participant{ID: "p_1", Status: model.ParticipantPending},
			IsHost:      false,
			Token:       "room-token",
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.SetToken("old-token")
	resp, err := c.Join(context.Background(), "viva_1", "u_1", "Asha")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if resp.Participant.ID != "p_1" {
		t.Errorf("participant = %+v", resp.Participant)
	}
	if c.token != "room-token" {
		t.Errorf("token = %q, want the room token", c.token)
	}
}

func TestJoinKeepsExaminerTokenForHosts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(&model.JoinResponse{
			Participant: &model.Participant{ID: "p_host", Status: model.ParticipantAdmitted},
			IsHost:      true,
			Token:       "room-token",
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.SetToken("examiner-token")
	if _, err := c.Join(context.Background(), "viva_1", "examiner-1", "Dr. Iyer"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if c.token != "examiner-token" {
		t.Errorf("token = %q, host must keep the examiner token", c.token)
	}
}
