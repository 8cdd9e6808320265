package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"vivaroom/internal/cache"
	"vivaroom/internal/model"
	"vivaroom/internal/repository"
)

// AdmissionService implements the waiting room. Guests land in pending and
// poll their own status; the host polls the roster and decides. Decisions
// are idempotent: admitting an already-admitted participant is a no-op.
type AdmissionService struct {
	sessionRepo     repository.SessionRepo
	participantRepo repository.ParticipantRepo
	sessionCache    cache.SessionCache
	admissionCache  cache.AdmissionCache
	authSvc         *AuthService
}

// NewAdmissionService creates a new admission service
func NewAdmissionService(
	sessionRepo repository.SessionRepo,
	participantRepo repository.ParticipantRepo,
	sessionCache cache.SessionCache,
	admissionCache cache.AdmissionCache,
	authSvc *AuthService,
) *AdmissionService {
	return &AdmissionService{
		sessionRepo:     sessionRepo,
		participantRepo: participantRepo,
		sessionCache:    sessionCache,
		admissionCache:  admissionCache,
		authSvc:         authSvc,
	}
}

// Join handles a join request. The examiner bypasses the waiting room and is
// admitted immediately; everyone else starts pending. Re-joining while a
// pending or admitted attempt is open returns that attempt instead of
// creating a duplicate.
func (s *AdmissionService) Join(ctx context.Context, sessionID, userID, name string) (*model.JoinResponse, error) {
	status, examinerID, err := s.sessionMeta(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if status.Terminal() {
		return nil, ErrSessionEnded
	}

	isHost := userID == examinerID

	if existing, err := s.participantRepo.LatestForUser(ctx, sessionID, userID); err != nil {
		return nil, err
	} else if existing != nil && existing.Status != model.ParticipantRejected {
		token, err := s.authSvc.GenerateGuestToken(sessionID, existing.ID, userID)
		if err != nil {
			return nil, err
		}
		return &model.JoinResponse{Participant: existing, IsHost: isHost, Token: token}, nil
	}

	now := time.Now()
	p := &model.Participant{
		ID:          "p_" + uuid.New().String()[:8],
		SessionID:   sessionID,
		UserID:      userID,
		Name:        name,
		Role:        model.RoleGuest,
		Status:      model.ParticipantPending,
		RequestedAt: now,
	}
	if isHost {
		p.Role = model.RoleHost
		p.Status = model.ParticipantAdmitted
		p.DecidedAt = &now
	}

	if err := s.participantRepo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to save participant: %w", err)
	}

	if isHost {
		if err := s.admissionCache.PutAdmitted(ctx, sessionID, p); err != nil {
			return nil, err
		}
	} else {
		if err := s.admissionCache.PutWaiting(ctx, sessionID, p); err != nil {
			return nil, err
		}
	}

	token, err := s.authSvc.GenerateGuestToken(sessionID, p.ID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return &model.JoinResponse{Participant: p, IsHost: isHost, Token: token}, nil
}

// sessionMeta serves the join-time lifecycle check from Redis, so the join
// hot path only hits MongoDB on a cache miss.
func (s *AdmissionService) sessionMeta(ctx context.Context, sessionID string) (model.SessionStatus, string, error) {
	if meta, err := s.sessionCache.GetMeta(ctx, sessionID); err == nil && meta != nil {
		return meta.Status, meta.ExaminerID, nil
	}

	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return "", "", fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return "", "", ErrSessionNotFound
	}
	return session.Status, session.ExaminerID, nil
}

// MyStatus returns the admission status of one join attempt. Served from
// Redis on the hot path so a 2s poll loop costs nothing.
func (s *AdmissionService) MyStatus(ctx context.Context, sessionID, participantID string) (model.ParticipantStatus, error) {
	status, ok, err := s.admissionCache.GetStatus(ctx, sessionID, participantID)
	if err == nil && ok {
		return status, nil
	}

	p, err := s.participantRepo.GetByID(ctx, participantID)
	if err != nil {
		return "", err
	}
	if p == nil || p.SessionID != sessionID {
		return "", ErrParticipantNotFound
	}
	return p.Status, nil
}

// Participant returns one join attempt with its role, for the signaling
// handshake.
func (s *AdmissionService) Participant(ctx context.Context, sessionID, participantID string) (*model.Participant, error) {
	p, err := s.participantRepo.GetByID(ctx, participantID)
	if err != nil {
		return nil, err
	}
	if p == nil || p.SessionID != sessionID {
		return nil, ErrParticipantNotFound
	}
	return p, nil
}

// Roster returns the waiting and admitted lists for the host panel.
func (s *AdmissionService) Roster(ctx context.Context, sessionID string) (*model.Roster, error) {
	roster, err := s.admissionCache.Roster(ctx, sessionID)
	if err == nil && roster != nil && (len(roster.Waiting) > 0 || len(roster.Admitted) > 0) {
		return roster, nil
	}

	// Cold cache; rebuild from MongoDB.
	waiting, err := s.participantRepo.ListByStatus(ctx, sessionID, model.ParticipantPending)
	if err != nil {
		return nil, err
	}
	admitted, err := s.participantRepo.ListByStatus(ctx, sessionID, model.ParticipantAdmitted)
	if err != nil {
		return nil, err
	}
	return &model.Roster{Waiting: waiting, Admitted: admitted}, nil
}

// Admit moves a pending participant to admitted. Idempotent.
func (s *AdmissionService) Admit(ctx context.Context, sessionID, participantID string) error {
	return s.decide(ctx, sessionID, participantID, model.ParticipantAdmitted)
}

// Reject moves a pending participant to rejected. Idempotent.
func (s *AdmissionService) Reject(ctx context.Context, sessionID, participantID string) error {
	return s.decide(ctx, sessionID, participantID, model.ParticipantRejected)
}

// AdmitAll admits every currently pending participant.
func (s *AdmissionService) AdmitAll(ctx context.Context, sessionID string) (int, error) {
	pending, err := s.participantRepo.ListByStatus(ctx, sessionID, model.ParticipantPending)
	if err != nil {
		return 0, err
	}

	admitted := 0
	for _, p := range pending {
		if err := s.decide(ctx, sessionID, p.ID, model.ParticipantAdmitted); err != nil {
			return admitted, err
		}
		admitted++
	}
	return admitted, nil
}

func (s *AdmissionService) decide(ctx context.Context, sessionID, participantID string, to model.ParticipantStatus) error {
	p, err := s.participantRepo.GetByID(ctx, participantID)
	if err != nil {
		return err
	}
	if p == nil || p.SessionID != sessionID {
		return ErrParticipantNotFound
	}
	if p.Status == to {
		return nil // already decided this way, no-op
	}
	if p.Status.Decided() {
		// pending -> {admitted, rejected} is terminal; flipping a decision
		// requires a fresh join attempt.
		return ErrAlreadyRejected
	}

	ok, err := s.participantRepo.Decide(ctx, participantID, to)
	if err != nil {
		return err
	}
	if !ok {
		// Raced with another decision; re-read and treat a same-direction
		// decision as the no-op it is.
		current, gerr := s.participantRepo.GetByID(ctx, participantID)
		if gerr != nil {
			return gerr
		}
		if current != nil && current.Status == to {
			return nil
		}
		return ErrAlreadyRejected
	}

	now := time.Now()
	p.Status = to
	p.DecidedAt = &now
	return s.admissionCache.MarkDecided(ctx, sessionID, p)
}
