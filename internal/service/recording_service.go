package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"vivaroom/internal/model"
	"vivaroom/internal/repository"
)

// RecordingService owns artifact ingestion. Uploads are idempotent per
// session: a re-upload replaces the stored artifact only when newer.
type RecordingService struct {
	recordingRepo repository.RecordingRepo
}

// NewRecordingService creates a new recording service
func NewRecordingService(recordingRepo repository.RecordingRepo) *RecordingService {
	return &RecordingService{recordingRepo: recordingRepo}
}

// Upload stores a session recording and returns its metadata.
func (s *RecordingService) Upload(ctx context.Context, sessionID string, blob []byte, durationSeconds int, mimeType string) (*model.RecordingMeta, error) {
	if len(blob) == 0 {
		return nil, fmt.Errorf("empty recording blob")
	}
	if durationSeconds < 0 {
		return nil, fmt.Errorf("negative duration")
	}
	if mimeType == "" {
		mimeType = "video/webm"
	}

	artifact := &model.RecordingArtifact{
		SessionID:       sessionID,
		Blob:            blob,
		DurationSeconds: durationSeconds,
		MimeType:        mimeType,
		UploadedAt:      time.Now(),
	}

	replaced, err := s.recordingRepo.SaveIfNewer(ctx, artifact)
	if err != nil {
		return nil, fmt.Errorf("failed to store recording: %w", err)
	}
	if !replaced {
		log.Printf("Recording for session %s kept existing newer artifact", sessionID)
		existing, err := s.recordingRepo.GetBySession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing.Meta(), nil
		}
	}

	log.Printf("Recording stored for session %s (%d bytes, %ds, %s)",
		sessionID, len(blob), durationSeconds, mimeType)
	return artifact.Meta(), nil
}

// Get returns the authoritative artifact for a session.
func (s *RecordingService) Get(ctx context.Context, sessionID string) (*model.RecordingArtifact, error) {
	artifact, err := s.recordingRepo.GetBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if artifact == nil {
		return nil, ErrNoRecording
	}
	return artifact, nil
}
