package model

import "time"

type SessionStatus string

const (
	SessionScheduled  SessionStatus = "scheduled"
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
	SessionCancelled  SessionStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionCancelled
}

// CanTransition reports whether the status may advance to the given one.
// Valid moves: scheduled -> in_progress -> completed, and cancelled from
// scheduled or in_progress. No skips, no reversals.
func (s SessionStatus) CanTransition(to SessionStatus) bool {
	switch s {
	case SessionScheduled:
		return to == SessionInProgress || to == SessionCancelled
	case SessionInProgress:
		return to == SessionCompleted || to == SessionCancelled
	default:
		return false
	}
}

type SessionMode string

const (
	SessionModeOnline  SessionMode = "online"
	SessionModeOffline SessionMode = "offline"
)

// Session is a scheduled viva appointment between an examiner and a student.
// The orchestrator owns only the start/complete/missed transitions; the
// remaining fields belong to the scheduling subsystem.
type Session struct {
	ID              string        `json:"id" bson:"_id,omitempty"`
	ExaminerID      string        `json:"examinerId" bson:"examinerId"`
	StudentName     string        `json:"studentName" bson:"studentName"`
	ScheduledAt     time.Time     `json:"scheduledAt" bson:"scheduledAt"`
	DurationMinutes int           `json:"durationMinutes" bson:"durationMinutes"`
	Mode            SessionMode   `json:"mode" bson:"mode"`
	Status          SessionStatus `json:"status" bson:"status"`
	ActualStartTime *time.Time    `json:"actualStartTime,omitempty" bson:"actualStartTime,omitempty"`
	MarksObtained   *int          `json:"marksObtained,omitempty" bson:"marksObtained,omitempty"`
	MaxMarks        *int          `json:"maxMarks,omitempty" bson:"maxMarks,omitempty"`
	Remarks         string        `json:"remarks,omitempty" bson:"remarks,omitempty"`
	MissReason      string        `json:"missReason,omitempty" bson:"missReason,omitempty"`
	CreatedAt       time.Time     `json:"createdAt" bson:"createdAt"`
	EndedAt         *time.Time    `json:"endedAt,omitempty" bson:"endedAt,omitempty"`
}

// Duration is the scheduled length of the viva.
func (s *Session) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// Elapsed computes time spent in the session from the server-recorded
// ActualStartTime. Zero before the session has started. Derived, never
// accumulated, so reconnects cannot double-count.
func (s *Session) Elapsed(now time.Time) time.Duration {
	if s.ActualStartTime == nil {
		return 0
	}
	d := now.Sub(*s.ActualStartTime)
	if d < 0 {
		return 0
	}
	return d
}
