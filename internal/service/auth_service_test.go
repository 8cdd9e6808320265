package service

import (
	"testing"
)

func newTestAuthService(t *testing.T) *AuthService {
	t.Helper()
	t.Setenv("HOST_USERNAME", "examiner")
	t.Setenv("HOST_PASSWORD", "password123")
	t.Setenv("JWT_SECRET", "test-secret")
	return NewAuthService()
}

func TestLoginMintsStableExaminerID(t *testing.T) {
	svc := newTestAuthService(t)

	first, err := svc.Login("examiner", "password123")
	if err != nil {
		t.Fatalf("first login: %v", err)
	}
	second, err := svc.Login("examiner", "password123")
	if err != nil {
		t.Fatalf("second login: %v", err)
	}

	// A re-login must keep operating sessions created under the first token.
	if first.ExaminerID != second.ExaminerID {
		t.Errorf("examiner id changed across logins: %s vs %s", first.ExaminerID, second.ExaminerID)
	}

	claims, err := svc.ValidateExaminerToken(second.Token)
	if err != nil {
		t.Fatalf("ValidateExaminerToken: %v", err)
	}
	if claims.ExaminerID != first.ExaminerID {
		t.Errorf("token carries %s, want %s", claims.ExaminerID, first.ExaminerID)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc := newTestAuthService(t)

	if _, err := svc.Login("examiner", "wrong"); err != ErrInvalidCredentials {
		t.Errorf("bad password: got %v, want ErrInvalidCredentials", err)
	}
	if _, err := svc.Login("somebody", "password123"); err != ErrInvalidCredentials {
		t.Errorf("bad username: got %v, want ErrInvalidCredentials", err)
	}
}

func TestGuestTokenRoundTrip(t *testing.T) {
	svc := newTestAuthService(t)

	token, err := svc.GenerateGuestToken("viva_1", "p_1", "u_1")
	if err != nil {
		t.Fatalf("GenerateGuestToken: %v", err)
	}
	claims, err := svc.ValidateGuestToken(token)
	if err != nil {
		t.Fatalf("ValidateGuestToken: %v", err)
	}
	if claims.SessionID != "viva_1" || claims.ParticipantID != "p_1" || claims.UserID != "u_1" {
		t.Errorf("claims = %s/%s/%s, want viva_1/p_1/u_1",
			claims.SessionID, claims.ParticipantID, claims.UserID)
	}

	// A guest token never passes as an examiner token.
	if _, err := svc.ValidateExaminerToken(token); err == nil {
		t.Error("guest token accepted as examiner token")
	}
}
