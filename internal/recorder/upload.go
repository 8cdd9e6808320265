package recorder

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"vivaroom/internal/apiclient"
	"vivaroom/internal/model"
)

// Outcome is what became of a finished recording. A failed upload is
// NotSaved — distinguishable from success and from a deliberate discard —
// and the artifact stays available locally until uploaded or discarded.
type Outcome string

const (
	OutcomeSaved      Outcome = "saved"
	OutcomeNotSaved   Outcome = "not_saved"
	OutcomeDownloaded Outcome = "downloaded"
	OutcomeDiscarded  Outcome = "discarded"
)

// Uploader carries a finished artifact to the storage collaborator, with
// local download and discard as the host's other two choices.
type Uploader struct {
	api         *apiclient.Client
	maxAttempts int
	backoff     time.Duration

	mu       sync.Mutex
	artifact *model.RecordingArtifact
	outcome  Outcome
}

// NewUploader creates an uploader for one finished artifact.
func NewUploader(api *apiclient.Client, artifact *model.RecordingArtifact) *Uploader {
	return &Uploader{
		api:         api,
		maxAttempts: 3,
		backoff:     2 * time.Second,
		artifact:    artifact,
		outcome:     OutcomeNotSaved,
	}
}

// Artifact returns the locally held artifact, nil once discarded.
func (u *Uploader) Artifact() *model.RecordingArtifact {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.artifact
}

// Outcome reports the artifact's current fate.
func (u *Uploader) Outcome() Outcome {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.outcome
}

// Upload pushes the artifact to the server, retrying transient failures.
// On failure the artifact is retained and the outcome stays NotSaved; the
// caller's session lifecycle must not be blocked or rolled back by this.
func (u *Uploader) Upload(ctx context.Context) (Outcome, error) {
	u.mu.Lock()
	artifact := u.artifact
	u.mu.Unlock()
	if artifact == nil {
		return OutcomeDiscarded, fmt.Errorf("recording was discarded")
	}

	var lastErr error
	for attempt := 1; attempt <= u.maxAttempts; attempt++ {
		_, err := u.api.UploadRecording(ctx, artifact.SessionID, artifact.Blob,
			artifact.DurationSeconds, artifact.MimeType)
		if err == nil {
			u.mu.Lock()
			u.outcome = OutcomeSaved
			u.mu.Unlock()
			log.Printf("Recording uploaded for session %s", artifact.SessionID)
			return OutcomeSaved, nil
		}
		lastErr = err
		log.Printf("Recording upload attempt %d/%d failed: %v", attempt, u.maxAttempts, err)

		if attempt < u.maxAttempts {
			select {
			case <-ctx.Done():
				return OutcomeNotSaved, ctx.Err()
			case <-time.After(u.backoff * time.Duration(attempt)):
			}
		}
	}

	return OutcomeNotSaved, fmt.Errorf("recording not saved: %w", lastErr)
}

// Download writes the artifact to a local file.
func (u *Uploader) Download(path string) error {
	u.mu.Lock()
	artifact := u.artifact
	u.mu.Unlock()
	if artifact == nil {
		return fmt.Errorf("recording was discarded")
	}

	if err := os.WriteFile(path, artifact.Blob, 0o644); err != nil {
		return err
	}
	u.mu.Lock()
	if u.outcome != OutcomeSaved {
		u.outcome = OutcomeDownloaded
	}
	u.mu.Unlock()
	return nil
}

// Discard drops the artifact. Explicit only; uploads failures never discard.
func (u *Uploader) Discard() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.artifact = nil
	u.outcome = OutcomeDiscarded
}
