package room

import (
	"vivaroom/internal/model"
	"vivaroom/internal/recorder"
)

// EventKind tags the aggregate's user-facing notifications.
type EventKind string

const (
	// EventStateChanged fires on every room-state transition.
	EventStateChanged EventKind = "state_changed"
	// EventTimer carries each clock tick, including threshold warnings and
	// the overtime flip.
	EventTimer EventKind = "timer"
	// EventChat is an inbound chat message.
	EventChat EventKind = "chat"
	// EventAdvisory is a non-fatal problem: denied device, recorder failure,
	// a recording that was not saved.
	EventAdvisory EventKind = "advisory"
	// EventRemoteJoined and EventRemoteLeft track the other participant.
	EventRemoteJoined EventKind = "remote_joined"
	EventRemoteLeft   EventKind = "remote_left"
	// EventRecording reports the artifact's final outcome.
	EventRecording EventKind = "recording"
)

// Event is one notification from the room aggregate to its UI.
type Event struct {
	Kind    EventKind
	State   State
	Message string
	Chat    *model.ChatMessage
	Timer   *TimerEvent
	Remote  *model.PresencePayload
	Outcome recorder.Outcome
}
