package room

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"vivaroom/internal/apiclient"
	vmedia "vivaroom/internal/media"
	"vivaroom/internal/model"
	"vivaroom/internal/service"
)

func newUnjoinedSession(t *testing.T) *Session {
	t.Helper()
	s := NewSession(Options{
		API:       apiclient.New("http://unused"),
		WSBaseURL: "ws://unused",
		UserID:    "u_test",
		Name:      "Test User",
		Provider:  &vmedia.SyntheticProvider{SampleInterval: time.Millisecond},
	})
	t.Cleanup(s.Close)
	return s
}

func TestSessionStartsConnecting(t *testing.T) {
	s := newUnjoinedSession(t)
	if s.State() != StateConnecting {
		t.Errorf("state = %s, want connecting", s.State())
	}
}

func TestStartRequiresReadyState(t *testing.T) {
	s := newUnjoinedSession(t)
	s.mu.Lock()
	s.isHost = true
	s.mu.Unlock()

	// Still connecting: the session was never joined, let alone admitted.
	if err := s.Start(context.Background()); err == nil {
		t.Error("Start succeeded before the room was ready")
	}
}

func TestStartIsHostOnly(t *testing.T) {
	s := newUnjoinedSession(t)
	s.mu.Lock()
	s.state = StateReady
	s.mu.Unlock()

	if err := s.Start(context.Background()); err != ErrGuestOnly {
		t.Errorf("guest Start: got %v, want ErrGuestOnly", err)
	}
}

func TestCompleteRequiresActiveOrDisconnected(t *testing.T) {
	s := newUnjoinedSession(t)
	s.mu.Lock()
	s.isHost = true
	s.state = StateReady
	s.mu.Unlock()

	req := &service.CompleteRequest{MarksObtained: 10, MaxMarks: 20}
	if _, err := s.Complete(context.Background(), req); err == nil {
		t.Error("Complete succeeded from ready")
	}
}

func TestCompleteIsHostOnly(t *testing.T) {
	s := newUnjoinedSession(t)
	s.mu.Lock()
	s.state = StateActive
	s.mu.Unlock()

	req := &service.CompleteRequest{MarksObtained: 10, MaxMarks: 20}
	if _, err := s.Complete(context.Background(), req); err != ErrGuestOnly {
		t.Errorf("guest Complete: got %v, want ErrGuestOnly", err)
	}
}

func TestSendChatRequiresConnection(t *testing.T) {
	s := newUnjoinedSession(t)
	if _, err := s.SendChat("hello"); err == nil {
		t.Error("SendChat succeeded with no signaling connection")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	s := newUnjoinedSession(t)
	s.Close()
	s.Close()
}

func TestTransitionRejectsIllegalMove(t *testing.T) {
	s := newUnjoinedSession(t)
	if err := s.transition(StateCompleted); err == nil {
		t.Error("connecting -> completed allowed")
	}
	if s.State() != StateConnecting {
		t.Errorf("state moved to %s on a rejected transition", s.State())
	}
}

func TestTransitionEmitsStateEvent(t *testing.T) {
	s := newUnjoinedSession(t)
	if err := s.transition(StateWaiting); err != nil {
		t.Fatalf("transition: %v", err)
	}
	select {
	case ev := <-s.Events():
		if ev.Kind != EventStateChanged || ev.State != StateWaiting {
			t.Errorf("event = %+v, want state_changed/waiting", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no state event emitted")
	}
}

// fakeOrchestrator stands in for the server half: join, session fetch,
// status poll, and a signaling socket that holds the connection open.
type fakeOrchestrator struct {
	srv    *httptest.Server
	wsBase string

	mu          sync.Mutex
	guestStatus model.ParticipantStatus
	session     model.Session

	sessionGets atomic.Int32
}

func newFakeOrchestrator(t *testing.T) *fakeOrchestrator {
	t.Helper()
	f := &fakeOrchestrator{
		guestStatus: model.ParticipantPending,
		session: model.Session{
			ID:              "viva_1",
			ExaminerID:      "ex_1",
			StudentName:     "Asha Rao",
			DurationMinutes: 15,
			Mode:            model.SessionModeOnline,
			Status:          model.SessionScheduled,
		},
	}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	r := mux.NewRouter()
	r.HandleFunc("/v1/sessions/{id}/join", func(w http.ResponseWriter, req *http.Request) {
		json.NewEncoder(w).Encode(&model.JoinResponse{
			Participant: &model.Participant{
				ID:        "p_1",
				SessionID: "viva_1",
				UserID:    "u_guest",
				Name:      "Guest",
				Role:      model.RoleGuest,
				Status:    model.ParticipantPending,
			},
			Token: "room-token",
		})
	}).Methods(http.MethodPost)
	r.HandleFunc("/v1/sessions/{id}", func(w http.ResponseWriter, req *http.Request) {
		f.sessionGets.Add(1)
		f.mu.Lock()
		sess := f.session
		f.mu.Unlock()
		json.NewEncoder(w).Encode(&sess)
	}).Methods(http.MethodGet)
	r.HandleFunc("/v1/sessions/{id}/me", func(w http.ResponseWriter, req *http.Request) {
		f.mu.Lock()
		status := f.guestStatus
		f.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]model.ParticipantStatus{"status": status})
	}).Methods(http.MethodGet)
	r.HandleFunc("/v1/ws/sessions/{id}", func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		go func() {
			defer conn.Close()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}).Methods(http.MethodGet)

	f.srv = httptest.NewServer(r)
	t.Cleanup(f.srv.Close)
	f.wsBase = "ws" + strings.TrimPrefix(f.srv.URL, "http")
	return f
}

func (f *fakeOrchestrator) admitGuest() {
	f.mu.Lock()
	f.guestStatus = model.ParticipantAdmitted
	f.mu.Unlock()
}

func (f *fakeOrchestrator) startSession(at time.Time) {
	f.mu.Lock()
	f.session.Status = model.SessionInProgress
	f.session.ActualStartTime = &at
	f.mu.Unlock()
}

func newGuestSession(t *testing.T, f *fakeOrchestrator) *Session {
	t.Helper()
	s := NewSession(Options{
		API:       apiclient.New(f.srv.URL),
		WSBaseURL: f.wsBase,
		UserID:    "u_guest",
		Name:      "Guest",
		Provider:  &vmedia.SyntheticProvider{SampleInterval: time.Millisecond},
	})
	s.pollEvery = 5 * time.Millisecond
	t.Cleanup(s.Close)
	return s
}

func waitForState(t *testing.T, s *Session, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state = %s, want %s", s.State(), want)
}

func TestAdmissionBeforeStartLandsReady(t *testing.T) {
	f := newFakeOrchestrator(t)
	s := newGuestSession(t, f)

	if err := s.Join(context.Background(), "viva_1"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if s.State() != StateWaiting {
		t.Fatalf("state = %s, want waiting", s.State())
	}

	f.admitGuest()
	waitForState(t, s, StateReady)
}

func TestLateAdmissionResumesActive(t *testing.T) {
	f := newFakeOrchestrator(t)
	s := newGuestSession(t, f)

	if err := s.Join(context.Background(), "viva_1"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if s.State() != StateWaiting {
		t.Fatalf("state = %s, want waiting", s.State())
	}

	// The host starts the viva while the guest is still parked, then admits
	// them. The session-started broadcast never reached the guest, so room
	// entry must recheck the lifecycle and resume with the server clock.
	startedAt := time.Now().Add(-32 * time.Second)
	f.startSession(startedAt)
	f.admitGuest()

	waitForState(t, s, StateActive)

	if got := f.sessionGets.Load(); got < 2 {
		t.Errorf("session fetched %d time(s); room entry reused the join-time snapshot", got)
	}

	s.mu.Lock()
	start := s.session.ActualStartTime
	timer := s.timer
	s.mu.Unlock()
	if start == nil || !start.Equal(startedAt) {
		t.Errorf("actual start = %v, want %v", start, startedAt)
	}
	if timer == nil {
		t.Error("no timer running after resuming into active")
	}
}

func TestCloseDuringJoinIsSafe(t *testing.T) {
	f := newFakeOrchestrator(t)
	s := newGuestSession(t, f)

	// Teardown racing the join must not corrupt the aggregate; either the
	// join wins and the close unwinds it, or the join fails cleanly.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.Join(context.Background(), "viva_1")
	}()
	go func() {
		defer wg.Done()
		time.Sleep(time.Millisecond)
		s.Close()
	}()
	wg.Wait()
	s.Close()
}
