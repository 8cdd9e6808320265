package service

import (
	"errors"
	"fmt"

	"vivaroom/internal/model"
)

var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrNotHost             = errors.New("unauthorized: not the session host")
	ErrSessionEnded        = errors.New("session has ended")
	ErrAlreadyRejected     = errors.New("participant was already rejected")
	ErrNoRecording         = errors.New("no recording for session")
)

// StaleStateError is returned when a lifecycle transition is requested
// against a session that has already advanced elsewhere. Callers must
// re-fetch the session rather than retry blindly; it is deliberately a
// distinct type so it cannot be confused with advisory errors.
type StaleStateError struct {
	Op      string
	Current model.SessionStatus
}

func (e *StaleStateError) Error() string {
	return fmt.Sprintf("stale state: cannot %s session in status %q", e.Op, e.Current)
}

// IsStaleState reports whether err is a StaleStateError.
func IsStaleState(err error) bool {
	var st *StaleStateError
	return errors.As(err, &st)
}
