package ws

import (
	"encoding/json"
	"testing"
	"time"

	"vivaroom/internal/model"
)

func newTestMember(h *Hub, sessionID, participantID, userID string, role model.Role) *Member {
	return &Member{
		SessionID:     sessionID,
		ParticipantID: participantID,
		UserID:        userID,
		Role:          role,
		Send:          make(chan []byte, 16),
		Hub:           h,
	}
}

func recvEnvelope(t *testing.T, m *Member) model.Envelope {
	t.Helper()
	select {
	case data := <-m.Send:
		var env model.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("bad envelope: %v", err)
		}
		return env
	case <-time.After(time.Second):
		t.Fatal("no envelope delivered")
		return model.Envelope{}
	}
}

func assertSilent(t *testing.T, m *Member) {
	t.Helper()
	select {
	case data := <-m.Send:
		t.Fatalf("unexpected delivery: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func waitForRoomSize(t *testing.T, h *Hub, sessionID string, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if h.RoomSize(sessionID) == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("room %s size = %d, want %d", sessionID, h.RoomSize(sessionID), want)
}

func TestRegisterNotifiesOthers(t *testing.T) {
	h := NewHub()
	host := newTestMember(h, "viva_1", "p_host", "examiner-1", model.RoleHost)
	guest := newTestMember(h, "viva_1", "p_guest", "u_guest", model.RoleGuest)

	h.Register(host)
	waitForRoomSize(t, h, "viva_1", 1)
	h.Register(guest)
	waitForRoomSize(t, h, "viva_1", 2)

	env := recvEnvelope(t, host)
	if env.Kind != model.SignalUserJoined {
		t.Errorf("kind = %s, want user-joined", env.Kind)
	}
	if env.SenderID != "u_guest" || env.Role != model.RoleGuest {
		t.Errorf("sender = %s/%s, want u_guest/guest", env.SenderID, env.Role)
	}

	// The joiner never hears its own arrival.
	assertSilent(t, guest)
}

func TestRelayExcludesSender(t *testing.T) {
	h := NewHub()
	host := newTestMember(h, "viva_1", "p_host", "examiner-1", model.RoleHost)
	guest := newTestMember(h, "viva_1", "p_guest", "u_guest", model.RoleGuest)
	h.Register(host)
	h.Register(guest)
	waitForRoomSize(t, h, "viva_1", 2)
	recvEnvelope(t, host) // drain user-joined

	h.Relay(guest, &model.Envelope{
		Kind:    model.SignalOffer,
		Payload: json.RawMessage(`{"sdp":{}}`),
	})

	env := recvEnvelope(t, host)
	if env.Kind != model.SignalOffer {
		t.Errorf("kind = %s, want offer", env.Kind)
	}
	if env.RoomID != "viva_1" || env.SenderID != "u_guest" || env.Role != model.RoleGuest {
		t.Errorf("relay did not stamp sender identity: %+v", env)
	}
	assertSilent(t, guest)
}

func TestRelayStampsSenderIdentity(t *testing.T) {
	h := NewHub()
	host := newTestMember(h, "viva_1", "p_host", "examiner-1", model.RoleHost)
	guest := newTestMember(h, "viva_1", "p_guest", "u_guest", model.RoleGuest)
	h.Register(host)
	h.Register(guest)
	waitForRoomSize(t, h, "viva_1", 2)
	recvEnvelope(t, host)

	// A member cannot impersonate another sender; the hub overwrites the
	// identity fields with the socket's own.
	h.Relay(guest, &model.Envelope{
		Kind:     model.SignalChatMessage,
		SenderID: "examiner-1",
		Role:     model.RoleHost,
		Payload:  json.RawMessage(`{"text":"hello"}`),
	})

	env := recvEnvelope(t, host)
	if env.SenderID != "u_guest" || env.Role != model.RoleGuest {
		t.Errorf("spoofed identity delivered: %s/%s", env.SenderID, env.Role)
	}
}

func TestChatPayloadRelayedVerbatim(t *testing.T) {
	h := NewHub()
	host := newTestMember(h, "viva_1", "p_host", "examiner-1", model.RoleHost)
	guest := newTestMember(h, "viva_1", "p_guest", "u_guest", model.RoleGuest)
	h.Register(host)
	h.Register(guest)
	waitForRoomSize(t, h, "viva_1", 2)
	recvEnvelope(t, host)

	payload := `{"id":"m1","text":"ready when you are","sender":"Asha","senderId":"u_guest","timestamp":"2026-03-10T09:00:00Z"}`
	h.Relay(guest, &model.Envelope{
		Kind:    model.SignalChatMessage,
		Payload: json.RawMessage(payload),
	})

	env := recvEnvelope(t, host)
	if string(env.Payload) != payload {
		t.Errorf("payload altered in transit:\n got %s\nwant %s", env.Payload, payload)
	}
}

func TestUnregisterNotifiesRemaining(t *testing.T) {
	h := NewHub()
	host := newTestMember(h, "viva_1", "p_host", "examiner-1", model.RoleHost)
	guest := newTestMember(h, "viva_1", "p_guest", "u_guest", model.RoleGuest)
	h.Register(host)
	h.Register(guest)
	waitForRoomSize(t, h, "viva_1", 2)
	recvEnvelope(t, host)

	h.Unregister(guest)
	waitForRoomSize(t, h, "viva_1", 1)

	env := recvEnvelope(t, host)
	if env.Kind != model.SignalUserLeft {
		t.Errorf("kind = %s, want user-left", env.Kind)
	}
	if env.SenderID != "u_guest" {
		t.Errorf("sender = %s, want u_guest", env.SenderID)
	}
}

func TestBroadcastToRoomReachesEveryone(t *testing.T) {
	h := NewHub()
	host := newTestMember(h, "viva_1", "p_host", "examiner-1", model.RoleHost)
	guest := newTestMember(h, "viva_1", "p_guest", "u_guest", model.RoleGuest)
	h.Register(host)
	h.Register(guest)
	waitForRoomSize(t, h, "viva_1", 2)
	recvEnvelope(t, host)

	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	h.BroadcastToRoom("viva_1", string(model.SignalSessionStarted),
		&model.SessionStartedPayload{ActualStartTime: start})

	for _, m := range []*Member{host, guest} {
		env := recvEnvelope(t, m)
		if env.Kind != model.SignalSessionStarted {
			t.Errorf("kind = %s, want session-started", env.Kind)
		}
		var payload model.SessionStartedPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			t.Fatalf("payload: %v", err)
		}
		if !payload.ActualStartTime.Equal(start) {
			t.Errorf("actualStartTime = %v, want %v", payload.ActualStartTime, start)
		}
	}
}

func TestRoomsAreIsolated(t *testing.T) {
	h := NewHub()
	a := newTestMember(h, "viva_a", "p_a", "u_a", model.RoleHost)
	b := newTestMember(h, "viva_b", "p_b", "u_b", model.RoleHost)
	h.Register(a)
	h.Register(b)
	waitForRoomSize(t, h, "viva_a", 1)
	waitForRoomSize(t, h, "viva_b", 1)

	// Neither heard the other join.
	assertSilent(t, a)
	assertSilent(t, b)

	h.BroadcastToRoom("viva_a", string(model.SignalSessionEnded), nil)
	if env := recvEnvelope(t, a); env.Kind != model.SignalSessionEnded {
		t.Errorf("kind = %s, want session-ended", env.Kind)
	}
	assertSilent(t, b)
}
