package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"vivaroom/internal/model"
	"vivaroom/internal/service"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024 // SDP offers with many candidates get large
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for dev
	},
}

// Handler handles signaling WebSocket connections
type Handler struct {
	hub          *Hub
	authSvc      *service.AuthService
	admissionSvc *service.AdmissionService
}

// NewHandler creates a new signaling handler
func NewHandler(hub *Hub, authSvc *service.AuthService, admissionSvc *service.AdmissionService) *Handler {
	return &Handler{
		hub:          hub,
		authSvc:      authSvc,
		admissionSvc: admissionSvc,
	}
}

// RoomWS handles GET /v1/ws/sessions/{id}. Hosts connect straight away;
// guests must already be admitted, so a pending guest can never reach the
// offer/answer exchange.
func (h *Handler) RoomWS(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	token := r.URL.Query().Get("token")

	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	claims, err := h.authSvc.ValidateGuestToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	if claims.SessionID != sessionID {
		http.Error(w, "token not valid for this session", http.StatusForbidden)
		return
	}

	p, err := h.admissionSvc.Participant(r.Context(), sessionID, claims.ParticipantID)
	if err != nil {
		http.Error(w, "unknown participant", http.StatusForbidden)
		return
	}
	if p.Status != model.ParticipantAdmitted {
		http.Error(w, "not admitted", http.StatusForbidden)
		return
	}

	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	member := &Member{
		SessionID:     sessionID,
		ParticipantID: claims.ParticipantID,
		UserID:        claims.UserID,
		Role:          p.Role,
		Send:          make(chan []byte, 256),
		Hub:           h.hub,
	}

	h.hub.Register(member)

	go h.writePump(wsConn, member)
	go h.readPump(wsConn, member)
}

func (h *Handler) readPump(wsConn *websocket.Conn, member *Member) {
	defer func() {
		h.hub.Unregister(member)
		wsConn.Close()
	}()

	wsConn.SetReadLimit(maxMessageSize)
	wsConn.SetReadDeadline(time.Now().Add(pongWait))
	wsConn.SetPongHandler(func(string) error {
		wsConn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := wsConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		var env model.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Printf("Bad envelope from %s: %v", member.UserID, err)
			continue
		}

		switch env.Kind {
		case model.SignalOffer, model.SignalAnswer, model.SignalICECandidate, model.SignalChatMessage:
			h.hub.Relay(member, &env)
		case model.SignalUserLeft:
			// Explicit leave; the deferred unregister notifies the room.
			return
		default:
			// join-room is implicit in the upgrade; lifecycle kinds only
			// ever originate server-side.
		}
	}
}

func (h *Handler) writePump(wsConn *websocket.Conn, member *Member) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		wsConn.Close()
	}()

	for {
		select {
		case message, ok := <-member.Send:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				wsConn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := wsConn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsConn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
