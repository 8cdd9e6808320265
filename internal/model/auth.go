package model

import "github.com/golang-jwt/jwt/v5"

// ExaminerClaims are JWT claims for examiner (host) authentication
type ExaminerClaims struct {
	ExaminerID string `json:"examinerId"`
	jwt.RegisteredClaims
}

// GuestClaims are JWT claims for session-scoped guest tokens
type GuestClaims struct {
	SessionID     string `json:"sessionId"`
	ParticipantID string `json:"participantId"`
	UserID        string `json:"userId"`
	jwt.RegisteredClaims
}

// LoginRequest is the request body for examiner login
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is returned after successful login
type LoginResponse struct {
	Token      string `json:"token"`
	ExaminerID string `json:"examinerId"`
}
