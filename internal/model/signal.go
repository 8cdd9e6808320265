package model

import (
	"encoding/json"
	"time"

	"github.com/pion/webrtc/v4"
)

// SignalKind is the type tag of a signaling envelope.
type SignalKind string

const (
	SignalJoinRoom       SignalKind = "join-room"
	SignalUserJoined     SignalKind = "user-joined"
	SignalOffer          SignalKind = "offer"
	SignalAnswer         SignalKind = "answer"
	SignalICECandidate   SignalKind = "ice-candidate"
	SignalChatMessage    SignalKind = "chat-message"
	SignalSessionStarted SignalKind = "session-started"
	SignalSessionEnded   SignalKind = "session-ended"
	SignalUserLeft       SignalKind = "user-left"
)

// Envelope is the room-scoped signaling message. Ephemeral: it exists only
// for the duration of delivery and is never persisted or replayed. The relay
// forwards Payload byte-identical; chat in particular has no other record.
type Envelope struct {
	Kind     SignalKind      `json:"kind"`
	RoomID   string          `json:"roomId"`
	SenderID string          `json:"senderId,omitempty"`
	Role     Role            `json:"role,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// PresencePayload rides on user-joined and user-left.
type PresencePayload struct {
	UserID string `json:"userId"`
	Role   Role   `json:"role"`
}

// SDPPayload rides on offer and answer.
type SDPPayload struct {
	SDP webrtc.SessionDescription `json:"sdp"`
}

// CandidatePayload rides on ice-candidate. Candidates are forwarded verbatim
// and may arrive before or after the answer.
type CandidatePayload struct {
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

// ChatMessage rides on chat-message. Not persisted anywhere.
type ChatMessage struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Sender    string    `json:"sender"`
	SenderID  string    `json:"senderId"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionStartedPayload rides on session-started.
type SessionStartedPayload struct {
	ActualStartTime time.Time `json:"actualStartTime"`
}
