package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"

	"vivaroom/internal/cache"
	"vivaroom/internal/model"
	"vivaroom/internal/repository"
)

// SessionService owns the viva lifecycle transitions. Every transition is a
// conditional write on the stored status, so two racing hosts cannot both
// succeed; the loser gets a StaleStateError and must re-fetch.
type SessionService struct {
	sessionRepo  repository.SessionRepo
	sessionCache cache.SessionCache
	broadcaster  Broadcaster
}

// NewSessionService creates a new session service
func NewSessionService(sessionRepo repository.SessionRepo, sessionCache cache.SessionCache) *SessionService {
	return &SessionService{
		sessionRepo:  sessionRepo,
		sessionCache: sessionCache,
	}
}

// SetBroadcaster sets the broadcaster for room events
func (s *SessionService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// CreateSession schedules a new viva. Only the orchestrator-owned fields
// are accepted; scoring content lives elsewhere.
func (s *SessionService) CreateSession(ctx context.Context, examinerID, studentName string, scheduledAt time.Time, durationMinutes int, mode model.SessionMode) (*model.Session, error) {
	if durationMinutes <= 0 {
		return nil, fmt.Errorf("durationMinutes must be positive")
	}
	if mode == "" {
		mode = model.SessionModeOnline
	}

	session := &model.Session{
		ID:              "viva_" + uuid.New().String()[:8],
		ExaminerID:      examinerID,
		StudentName:     studentName,
		ScheduledAt:     scheduledAt,
		DurationMinutes: durationMinutes,
		Mode:            mode,
		Status:          model.SessionScheduled,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	if err := s.sessionCache.SetMeta(ctx, session.ID, &cache.SessionMeta{
		ExaminerID:      examinerID,
		Status:          session.Status,
		DurationMinutes: durationMinutes,
	}); err != nil {
		return nil, fmt.Errorf("failed to cache session: %w", err)
	}

	return session, nil
}

// GetSession retrieves a session by id
func (s *SessionService) GetSession(ctx context.Context, id string) (*model.Session, error) {
	session, err := s.sessionRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// ListSessions returns the examiner's scheduled vivas
func (s *SessionService) ListSessions(ctx context.Context, examinerID string) ([]*model.Session, error) {
	return s.sessionRepo.List(ctx, examinerID)
}

// Start transitions a scheduled session to in_progress, stamping
// ActualStartTime exactly once. Host-only. A second start, or a start
// against a terminal session, fails with StaleStateError.
func (s *SessionService) Start(ctx context.Context, id, userID string) (*model.Session, error) {
	session, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.ExaminerID != userID {
		return nil, ErrNotHost
	}
	if !session.Status.CanTransition(model.SessionInProgress) {
		return nil, &StaleStateError{Op: "start", Current: session.Status}
	}

	now := time.Now()
	ok, err := s.sessionRepo.Transition(ctx, id, model.SessionScheduled, model.SessionInProgress,
		bson.M{"actualStartTime": now})
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost the race; report what the session looks like now.
		current, gerr := s.GetSession(ctx, id)
		if gerr != nil {
			return nil, gerr
		}
		return nil, &StaleStateError{Op: "start", Current: current.Status}
	}

	session.Status = model.SessionInProgress
	session.ActualStartTime = &now

	if err := s.sessionCache.SetStatus(ctx, id, model.SessionInProgress, &now); err != nil {
		return nil, err
	}

	if s.broadcaster != nil {
		s.broadcaster.BroadcastToRoom(id, string(model.SignalSessionStarted),
			&model.SessionStartedPayload{ActualStartTime: now})
	}

	return session, nil
}

// CompleteRequest carries the examiner's result for a finished viva.
type CompleteRequest struct {
	MarksObtained   int    `json:"marksObtained"`
	MaxMarks        int    `json:"maxMarks"`
	ExaminerRemarks string `json:"examinerRemarks"`
}

// Complete transitions an in_progress session to completed and records the
// result once. Host-only. Two concurrent completes cannot both win.
func (s *SessionService) Complete(ctx context.Context, id, userID string, req *CompleteRequest) (*model.Session, error) {
	session, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.ExaminerID != userID {
		return nil, ErrNotHost
	}
	if !session.Status.CanTransition(model.SessionCompleted) {
		return nil, &StaleStateError{Op: "complete", Current: session.Status}
	}
	if req.MaxMarks <= 0 || req.MarksObtained < 0 || req.MarksObtained > req.MaxMarks {
		return nil, fmt.Errorf("invalid marks: %d/%d", req.MarksObtained, req.MaxMarks)
	}

	now := time.Now()
	ok, err := s.sessionRepo.Transition(ctx, id, model.SessionInProgress, model.SessionCompleted,
		bson.M{
			"marksObtained": req.MarksObtained,
			"maxMarks":      req.MaxMarks,
			"remarks":       req.ExaminerRemarks,
			"endedAt":       now,
		})
	if err != nil {
		return nil, err
	}
	if !ok {
		current, gerr := s.GetSession(ctx, id)
		if gerr != nil {
			return nil, gerr
		}
		return nil, &StaleStateError{Op: "complete", Current: current.Status}
	}

	session.Status = model.SessionCompleted
	session.MarksObtained = &req.MarksObtained
	session.MaxMarks = &req.MaxMarks
	session.Remarks = req.ExaminerRemarks
	session.EndedAt = &now

	if err := s.sessionCache.SetStatus(ctx, id, model.SessionCompleted, nil); err != nil {
		return nil, err
	}

	if s.broadcaster != nil {
		s.broadcaster.BroadcastToRoom(id, string(model.SignalSessionEnded), nil)
	}

	return session, nil
}

// MarkMissed cancels a session that never happened or was abandoned.
// Valid from scheduled or in_progress.
func (s *SessionService) MarkMissed(ctx context.Context, id, userID, reason string) (*model.Session, error) {
	session, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.ExaminerID != userID {
		return nil, ErrNotHost
	}
	if !session.Status.CanTransition(model.SessionCancelled) {
		return nil, &StaleStateError{Op: "mark missed", Current: session.Status}
	}

	ok, err := s.sessionRepo.Transition(ctx, id, session.Status, model.SessionCancelled,
		bson.M{"missReason": reason})
	if err != nil {
		return nil, err
	}
	if !ok {
		current, gerr := s.GetSession(ctx, id)
		if gerr != nil {
			return nil, gerr
		}
		return nil, &StaleStateError{Op: "mark missed", Current: current.Status}
	}

	session.Status = model.SessionCancelled
	session.MissReason = reason

	if err := s.sessionCache.SetStatus(ctx, id, model.SessionCancelled, nil); err != nil {
		return nil, err
	}

	return session, nil
}
