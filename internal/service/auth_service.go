package service

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"vivaroom/internal/model"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

// AuthService handles examiner and guest authentication
type AuthService struct {
	examinerUsername string
	examinerPassword string
	jwtSecret        []byte
}

// NewAuthService creates a new auth service
func NewAuthService() *AuthService {
	username := os.Getenv("HOST_USERNAME")
	if username == "" {
		username = "examiner"
	}
	password := os.Getenv("HOST_PASSWORD")
	if password == "" {
		password = "password123"
	}
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "super-secret-key-change-in-production"
	}

	return &AuthService{
		examinerUsername: username,
		examinerPassword: password,
		jwtSecret:        []byte(secret),
	}
}

// Login validates credentials and returns an examiner token
func (s *AuthService) Login(username, password string) (*model.LoginResponse, error) {
	if username != s.examinerUsername || password != s.examinerPassword {
		return nil, ErrInvalidCredentials
	}

	examinerID := examinerIDFor(username)

	claims := &model.ExaminerClaims{
		ExaminerID: examinerID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, err
	}

	return &model.LoginResponse{
		Token:      tokenString,
		ExaminerID: examinerID,
	}, nil
}

// examinerIDFor derives the examiner id from the username. Tokens from
// separate logins agree on the id, so an examiner who logs in again still
// owns the sessions they scheduled earlier.
func examinerIDFor(username string) string {
	sum := sha256.Sum256([]byte("examiner:" + username))
	return "ex_" + hex.EncodeToString(sum[:4])
}

// ValidateExaminerToken validates an examiner JWT and returns claims
func (s *AuthService) ValidateExaminerToken(tokenString string) (*model.ExaminerClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &model.ExaminerClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*model.ExaminerClaims)
	if !ok || !token.Valid || claims.ExaminerID == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// GenerateGuestToken creates a session-scoped token for a join attempt
func (s *AuthService) GenerateGuestToken(sessionID, participantID, userID string) (string, error) {
	claims := &model.GuestClaims{
		SessionID:     sessionID,
		ParticipantID: participantID,
		UserID:        userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)), // covers reschedules same day
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ValidateGuestToken validates a guest JWT and returns claims
func (s *AuthService) ValidateGuestToken(tokenString string) (*model.GuestClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &model.GuestClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*model.GuestClaims)
	if !ok || !token.Valid || claims.ParticipantID == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
