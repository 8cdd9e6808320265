package ws

import (
	"encoding/json"
	"log"
	"sync"

	"vivaroom/internal/model"
)

// Hub is the signaling relay. A room is keyed by session id; delivery is
// best-effort fan-out to all *other* current members, with no persistence
// and no replay. Within one member's socket, messages stay in send order.
type Hub struct {
	// sessionID -> participantID -> member
	rooms map[string]map[string]*Member

	mu sync.RWMutex

	// Channels for coordination
	register   chan *Member
	unregister chan *Member
	relay      chan *relayRequest
}

// Member is one joined room connection.
type Member struct {
	SessionID     string
	ParticipantID string
	UserID        string
	Role          model.Role
	Send          chan []byte
	Hub           *Hub
}

type relayRequest struct {
	from *Member
	env  *model.Envelope
	// toAll includes the sender; used for lifecycle broadcasts originating
	// from the REST side rather than from a member.
	toAll bool
}

// NewHub creates a new signaling hub
func NewHub() *Hub {
	h := &Hub{
		rooms:      make(map[string]map[string]*Member),
		register:   make(chan *Member),
		unregister: make(chan *Member),
		relay:      make(chan *relayRequest, 256),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case m := <-h.register:
			h.mu.Lock()
			if h.rooms[m.SessionID] == nil {
				h.rooms[m.SessionID] = make(map[string]*Member)
			}
			h.rooms[m.SessionID][m.ParticipantID] = m
			log.Printf("%s %s joined room %s", m.Role, m.UserID, m.SessionID)

			h.fanOut(m, &model.Envelope{
				Kind:     model.SignalUserJoined,
				RoomID:   m.SessionID,
				SenderID: m.UserID,
				Role:     m.Role,
				Payload:  mustMarshal(&model.PresencePayload{UserID: m.UserID, Role: m.Role}),
			})
			h.mu.Unlock()

		case m := <-h.unregister:
			h.mu.Lock()
			if members, ok := h.rooms[m.SessionID]; ok {
				if existing, ok := members[m.ParticipantID]; ok && existing == m {
					delete(members, m.ParticipantID)
					close(m.Send)
					if len(members) == 0 {
						delete(h.rooms, m.SessionID)
					}
					log.Printf("%s %s left room %s", m.Role, m.UserID, m.SessionID)

					// Remaining members clear their remote view; the
					// session lifecycle itself never advances on a leave.
					h.fanOut(m, &model.Envelope{
						Kind:     model.SignalUserLeft,
						RoomID:   m.SessionID,
						SenderID: m.UserID,
						Role:     m.Role,
						Payload:  mustMarshal(&model.PresencePayload{UserID: m.UserID, Role: m.Role}),
					})
				}
			}
			h.mu.Unlock()

		case req := <-h.relay:
			h.mu.RLock()
			if req.toAll {
				data, err := json.Marshal(req.env)
				if err == nil {
					for _, member := range h.rooms[req.env.RoomID] {
						select {
						case member.Send <- data:
						default:
							// Drop message if buffer full
						}
					}
				}
			} else {
				h.fanOut(req.from, req.env)
			}
			h.mu.RUnlock()
		}
	}
}

// fanOut delivers an envelope to every room member except the sender.
// Callers hold h.mu.
func (h *Hub) fanOut(from *Member, env *model.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	for id, member := range h.rooms[from.SessionID] {
		if id == from.ParticipantID {
			continue
		}
		select {
		case member.Send <- data:
		default:
			// Drop message if buffer full
		}
	}
}

// Register adds a member to its room
func (h *Hub) Register(m *Member) {
	h.register <- m
}

// Unregister removes a member from its room
func (h *Hub) Unregister(m *Member) {
	h.unregister <- m
}

// Relay forwards a member's envelope to the other room members. The payload
// is passed through byte-identical; chat in particular has no other record.
func (h *Hub) Relay(from *Member, env *model.Envelope) {
	env.RoomID = from.SessionID
	env.SenderID = from.UserID
	env.Role = from.Role
	h.relay <- &relayRequest{from: from, env: env}
}

// BroadcastToRoom sends a lifecycle event to every member of a room
// (implements service.Broadcaster).
func (h *Hub) BroadcastToRoom(sessionID string, kind string, payload interface{}) {
	data, _ := json.Marshal(payload)
	h.relay <- &relayRequest{
		toAll: true,
		env: &model.Envelope{
			Kind:    model.SignalKind(kind),
			RoomID:  sessionID,
			Payload: data,
		},
	}
}

// RoomSize reports the current member count of a room.
func (h *Hub) RoomSize(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[sessionID])
}

func mustMarshal(v interface{}) json.RawMessage {
	data, _ := json.Marshal(v)
	return data
}
