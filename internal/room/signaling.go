package room

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"vivaroom/internal/model"
)

const (
	sigWriteWait  = 10 * time.Second
	sigPongWait   = 60 * time.Second
	sigPingPeriod = (sigPongWait * 9) / 10
)

// Signaler is one member's bidirectional room channel. Messages sent through
// it keep their send order; ordering across senders is the relay's problem,
// not ours.
type Signaler struct {
	conn *websocket.Conn

	in  chan model.Envelope
	out chan model.Envelope

	done      chan struct{}
	closeOnce sync.Once
}

// DialRoom connects the signaling socket for an admitted participant.
// wsBaseURL is e.g. "ws://host:8080".
func DialRoom(ctx context.Context, wsBaseURL, sessionID, token string) (*Signaler, error) {
	url := fmt.Sprintf("%s/v1/ws/sessions/%s?token=%s", wsBaseURL, sessionID, token)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("signaling dial: %w", err)
	}

	s := &Signaler{
		conn: conn,
		in:   make(chan model.Envelope, 64),
		out:  make(chan model.Envelope, 64),
		done: make(chan struct{}),
	}
	go s.readLoop()
	go s.writeLoop()
	return s, nil
}

// Inbound delivers envelopes from the room in arrival order. The channel
// closes when the socket drops, which callers treat as disconnected, never
// as completed.
func (s *Signaler) Inbound() <-chan model.Envelope {
	return s.in
}

// Send queues an envelope for the room.
func (s *Signaler) Send(kind model.SignalKind, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	env := model.Envelope{Kind: kind, Payload: data}
	select {
	case s.out <- env:
		return nil
	case <-s.done:
		return fmt.Errorf("signaling channel closed")
	}
}

func (s *Signaler) readLoop() {
	defer close(s.in)
	s.conn.SetReadDeadline(time.Now().Add(sigPongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(sigPongWait))
		return nil
	})
	for {
		var env model.Envelope
		if err := s.conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("Signaling read: %v", err)
			}
			return
		}
		select {
		case s.in <- env:
		case <-s.done:
			return
		}
	}
}

func (s *Signaler) writeLoop() {
	ticker := time.NewTicker(sigPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case env := <-s.out:
			s.conn.SetWriteDeadline(time.Now().Add(sigWriteWait))
			if err := s.conn.WriteJSON(&env); err != nil {
				log.Printf("Signaling write: %v", err)
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(sigWriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close disconnects the channel. Idempotent.
func (s *Signaler) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(sigWriteWait))
		s.conn.Close()
	})
	return nil
}
