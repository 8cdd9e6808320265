package model

import "time"

type Role string

const (
	RoleHost  Role = "host"
	RoleGuest Role = "guest"
)

type ParticipantStatus string

const (
	ParticipantPending  ParticipantStatus = "pending"
	ParticipantAdmitted ParticipantStatus = "admitted"
	ParticipantRejected ParticipantStatus = "rejected"
)

// Decided reports whether the join attempt has reached a terminal status.
func (s ParticipantStatus) Decided() bool {
	return s == ParticipantAdmitted || s == ParticipantRejected
}

// CanTransition reports whether the status may move to the given one.
// pending -> {admitted, rejected}; both are terminal for the attempt.
func (s ParticipantStatus) CanTransition(to ParticipantStatus) bool {
	return s == ParticipantPending && to.Decided()
}

// Participant is one join attempt on a session. Records are never deleted,
// only transitioned; a rejected user re-requesting gets a fresh record.
type Participant struct {
	ID          string            `json:"id" bson:"_id,omitempty"`
	SessionID   string            `json:"sessionId" bson:"sessionId"`
	UserID      string            `json:"userId" bson:"userId"`
	Name        string            `json:"name" bson:"name"`
	Role        Role              `json:"role" bson:"role"`
	Status      ParticipantStatus `json:"status" bson:"status"`
	RequestedAt time.Time         `json:"requestedAt" bson:"requestedAt"`
	DecidedAt   *time.Time        `json:"decidedAt,omitempty" bson:"decidedAt,omitempty"`
}

// JoinResponse is returned when a user joins a session.
type JoinResponse struct {
	Participant *Participant `json:"participant"`
	IsHost      bool         `json:"isHost"`
	Token       string       `json:"token"`
}

// Roster is the waiting-room view the host polls.
type Roster struct {
	Waiting  []*Participant `json:"waiting"`
	Admitted []*Participant `json:"admitted"`
}
