package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"

	"vivaroom/internal/apiclient"
	"vivaroom/internal/media"
	"vivaroom/internal/model"
	"vivaroom/internal/recorder"
	"vivaroom/internal/service"
)

// Recording auto-starts this long after the session goes active, giving the
// media pipeline a moment to stabilize.
const autoRecordDelay = time.Second

// recorderFlushWait bounds how long Complete waits for the recorder to seal
// its tail chunk.
const recorderFlushWait = 3 * time.Second

var (
	ErrNotReady  = errors.New("session is not ready to start")
	ErrNotActive = errors.New("session is not active")
	ErrGuestOnly = errors.New("operation is host-only")
)

// Session is one participant's live viva room. It exclusively owns the
// capture port, peer connection, signaling channel, recorder, timer and
// polling loops; everything else holds references and asks the aggregate
// for mutations. Close tears all of it down together — partial teardown is
// a defect this type exists to prevent.
type Session struct {
	api       *apiclient.Client
	wsBaseURL string
	userID    string
	name      string

	mu          sync.Mutex
	state       State
	session     *model.Session
	participant *model.Participant
	isHost      bool

	port *media.CapturePort
	peer *Peer
	sig  *Signaler
	rec  *recorder.Recorder
	up   *recorder.Uploader

	timer        *Timer
	statusPoller *StatusPoller
	rosterPoller *RosterPoller
	// pollEvery overrides the admission poll cadence; zero keeps the default.
	pollEvery time.Duration

	remoteAudio chan pionmedia.Sample
	recordOnce  sync.Once

	events    chan Event
	runCtx    context.Context
	runCancel context.CancelFunc
	closeOnce sync.Once
}

// Options configures a room session.
type Options struct {
	API       *apiclient.Client
	WSBaseURL string // e.g. "ws://host:8080"
	UserID    string
	Name      string
	Provider  media.Provider
	// Supports overrides recorder codec detection; nil accepts everything.
	Supports recorder.SupportFunc
}

// NewSession creates an unjoined room session.
func NewSession(opts Options) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		api:       opts.API,
		wsBaseURL: opts.WSBaseURL,
		userID:    opts.UserID,
		name:      opts.Name,
		state:     StateConnecting,
		port:      media.NewCapturePort(opts.Provider),
		rec:       recorder.New(opts.Supports),
		events:    make(chan Event, 32),
		runCtx:    ctx,
		runCancel: cancel,
	}
}

// Events delivers the aggregate's notifications. Non-blocking on the
// producer side; a stalled consumer loses events, never stalls the room.
func (s *Session) Events() <-chan Event {
	return s.events
}

// State returns the current room state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsHost reports whether this participant is the examiner.
func (s *Session) IsHost() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isHost
}

// Capture exposes the media port for enable/disable, level metering and
// device listing. The port stays owned by the aggregate.
func (s *Session) Capture() *media.CapturePort {
	return s.port
}

// Join acquires local media and requests admission. Hosts bypass the
// waiting room; a host joining an in_progress session resumes straight into
// active with elapsed time rebuilt from the server-recorded start.
func (s *Session) Join(ctx context.Context, sessionID string) error {
	advisories, err := s.port.Acquire("", "")
	if err != nil {
		return err
	}
	for _, adv := range advisories {
		// Denied devices are non-fatal; the session proceeds without them.
		s.emit(Event{Kind: EventAdvisory, Message: adv.Error()})
	}

	joined, err := s.api.Join(ctx, sessionID, s.userID, s.name)
	if err != nil {
		return err
	}

	sess, err := s.api.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.session = sess
	s.participant = joined.Participant
	s.isHost = joined.IsHost
	token := joined.Token
	s.mu.Unlock()

	if joined.IsHost || joined.Participant.Status == model.ParticipantAdmitted {
		return s.enterRoom(ctx, token)
	}

	// Guest: park in the waiting room and poll for the decision.
	if err := s.transition(StateWaiting); err != nil {
		return err
	}
	poller := NewStatusPoller(s.api, sessionID)
	if s.pollEvery > 0 {
		poller.interval = s.pollEvery
	}
	s.mu.Lock()
	s.statusPoller = poller
	s.mu.Unlock()
	go poller.Run(s.runCtx)
	go s.awaitAdmission(poller, token)
	return nil
}

func (s *Session) awaitAdmission(poller *StatusPoller, token string) {
	select {
	case <-s.runCtx.Done():
		return
	case status := <-poller.C:
		switch status {
		case model.ParticipantAdmitted:
			if err := s.enterRoom(s.runCtx, token); err != nil {
				log.Printf("Room entry after admission failed: %v", err)
				s.emit(Event{Kind: EventAdvisory, Message: err.Error()})
			}
		case model.ParticipantRejected:
			if err := s.transition(StateRejected); err == nil {
				s.emit(Event{Kind: EventAdvisory, Message: "join request was rejected"})
			}
		}
	}
}

// enterRoom connects signaling and the peer connection once admitted.
func (s *Session) enterRoom(ctx context.Context, token string) error {
	s.mu.Lock()
	sessionID := s.session.ID
	host := s.isHost
	s.mu.Unlock()

	// Admission can land long after Join, and the session-started broadcast
	// only reaches members already in the room. Re-fetch so a guest admitted
	// mid-session resumes straight into active instead of wedging in ready.
	sess, err := s.api.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	sig, err := DialRoom(ctx, s.wsBaseURL, sessionID, token)
	if err != nil {
		return err
	}

	peer, err := NewPeer(s.sendCandidate, s.onRemoteTrack)
	if err != nil {
		sig.Close()
		return err
	}
	if err := peer.AddTracks(localTracks(s.port)...); err != nil {
		sig.Close()
		peer.Close()
		return err
	}

	s.mu.Lock()
	s.session = sess
	s.sig = sig
	s.peer = peer
	resumed := sess.Status == model.SessionInProgress
	start := sess.ActualStartTime
	s.mu.Unlock()

	go s.dispatch()

	if host {
		roster := NewRosterPoller(s.api, sessionID)
		s.mu.Lock()
		s.rosterPoller = roster
		s.mu.Unlock()
		go roster.Run(s.runCtx)
	}

	if resumed && start != nil {
		// Reconnect-after-crash: resume active with the server clock.
		s.enterActive(*start)
		return nil
	}
	return s.transition(StateReady)
}

func localTracks(port *media.CapturePort) []webrtc.TrackLocal {
	var tracks []webrtc.TrackLocal
	if t := port.AudioTrack(); t != nil {
		tracks = append(tracks, t)
	}
	if t := port.VideoTrack(); t != nil {
		tracks = append(tracks, t)
	}
	return tracks
}

// dispatch is the single consumer of inbound signaling. Processing every
// envelope on one goroutine keeps per-sender ordering trivially intact.
func (s *Session) dispatch() {
	s.mu.Lock()
	sig := s.sig
	s.mu.Unlock()

	for env := range sig.Inbound() {
		s.handle(env)
	}

	// Socket dropped. That is a disconnect, never a completion.
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()
	if state == StateActive || state == StateReady {
		if err := s.transition(StateDisconnected); err == nil {
			s.emit(Event{Kind: EventAdvisory, Message: "signaling channel lost"})
		}
	}
}

func (s *Session) handle(env model.Envelope) {
	switch env.Kind {
	case model.SignalUserJoined:
		var presence model.PresencePayload
		if err := json.Unmarshal(env.Payload, &presence); err != nil {
			return
		}
		s.emit(Event{Kind: EventRemoteJoined, Remote: &presence})
		s.mu.Lock()
		host := s.isHost
		wasDisconnected := s.state == StateDisconnected
		s.mu.Unlock()
		if host {
			// The host always initiates; one deterministic offerer, no glare.
			s.sendOffer()
		}
		if wasDisconnected {
			s.transition(StateActive)
		}

	case model.SignalOffer:
		var payload model.SDPPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return
		}
		answer, err := s.peer.HandleOffer(payload.SDP)
		if err != nil {
			log.Printf("Offer handling: %v", err)
			return
		}
		s.sig.Send(model.SignalAnswer, &model.SDPPayload{SDP: answer})

	case model.SignalAnswer:
		var payload model.SDPPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return
		}
		if err := s.peer.HandleAnswer(payload.SDP); err != nil {
			log.Printf("Answer handling: %v", err)
		}

	case model.SignalICECandidate:
		var payload model.CandidatePayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return
		}
		if err := s.peer.AddICECandidate(payload.Candidate); err != nil {
			log.Printf("ICE candidate: %v", err)
		}

	case model.SignalChatMessage:
		var msg model.ChatMessage
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			return
		}
		s.emit(Event{Kind: EventChat, Chat: &msg})

	case model.SignalSessionStarted:
		var payload model.SessionStartedPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return
		}
		s.enterActive(payload.ActualStartTime)

	case model.SignalSessionEnded:
		s.transition(StateCompleted)

	case model.SignalUserLeft:
		var presence model.PresencePayload
		if err := json.Unmarshal(env.Payload, &presence); err != nil {
			return
		}
		s.emit(Event{Kind: EventRemoteLeft, Remote: &presence})
		s.mu.Lock()
		active := s.state == StateActive
		s.mu.Unlock()
		if active {
			s.transition(StateDisconnected)
		}
	}
}

func (s *Session) sendCandidate(c webrtc.ICECandidateInit) {
	s.mu.Lock()
	sig := s.sig
	s.mu.Unlock()
	if sig != nil {
		sig.Send(model.SignalICECandidate, &model.CandidatePayload{Candidate: c})
	}
}

func (s *Session) sendOffer() {
	offer, err := s.peer.CreateOffer()
	if err != nil {
		log.Printf("Offer creation: %v", err)
		return
	}
	s.sig.Send(model.SignalOffer, &model.SDPPayload{SDP: offer})
}

// onRemoteTrack feeds the remote participant's audio into the recording mix.
func (s *Session) onRemoteTrack(track *webrtc.TrackRemote) {
	if track.Kind() != webrtc.RTPCodecTypeAudio {
		return
	}
	s.mu.Lock()
	if s.remoteAudio == nil {
		s.remoteAudio = make(chan pionmedia.Sample, 64)
	}
	out := s.remoteAudio
	s.mu.Unlock()

	go func() {
		for {
			pkt, _, err := track.ReadRTP()
			if err != nil {
				return
			}
			sample := pionmedia.Sample{Data: pkt.Payload, Duration: 20 * time.Millisecond}
			select {
			case out <- sample:
			default:
			}
		}
	}()
}

// Start begins the viva. Host-only, from ready. The server stamps
// ActualStartTime exactly once; a second start comes back as stale state.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if !s.isHost {
		s.mu.Unlock()
		return ErrGuestOnly
	}
	if s.state != StateReady {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w (state %s)", ErrNotReady, state)
	}
	sessionID := s.session.ID
	s.mu.Unlock()

	sess, err := s.api.Start(ctx, sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.session = sess
	start := sess.ActualStartTime
	s.mu.Unlock()

	if start != nil {
		s.enterActive(*start)
	}
	return nil
}

// enterActive is idempotent: the local Start call and the broadcast
// session-started envelope both land here.
func (s *Session) enterActive(actualStart time.Time) {
	s.mu.Lock()
	if s.state == StateActive {
		s.mu.Unlock()
		return
	}
	if !s.state.CanEnter(StateActive) {
		s.mu.Unlock()
		return
	}
	s.state = StateActive
	if s.session != nil {
		s.session.Status = model.SessionInProgress
		s.session.ActualStartTime = &actualStart
		s.timer = NewTimer(actualStart, s.session.Duration())
	}
	timer := s.timer
	host := s.isHost
	s.mu.Unlock()

	s.emit(Event{Kind: EventStateChanged, State: StateActive})

	if timer != nil {
		go timer.Run()
		go s.forwardTimer(timer)
	}

	if host {
		s.recordOnce.Do(func() {
			time.AfterFunc(autoRecordDelay, s.startRecording)
		})
	}
}

func (s *Session) forwardTimer(t *Timer) {
	for ev := range t.Events() {
		tick := ev
		s.emit(Event{Kind: EventTimer, Timer: &tick})
	}
}

func (s *Session) startRecording() {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return
	}
	remote := s.remoteAudio
	s.mu.Unlock()

	inputs := []<-chan pionmedia.Sample{
		s.port.Tap(media.KindAudio),
		s.port.Tap(media.KindVideo),
	}
	if remote != nil {
		inputs = append(inputs, remote)
	}

	if err := s.rec.Start(inputs...); err != nil {
		// Recording failure never touches the session itself.
		s.emit(Event{Kind: EventAdvisory, Message: "recording unavailable: " + err.Error()})
	}
}

// Complete ends the viva with the examiner's result. Host-only, valid while
// active (or disconnected, so a vanished guest cannot wedge the session).
// The recording is flushed and uploaded first, but an upload failure never
// blocks completion — it surfaces as a "not saved" recording event.
func (s *Session) Complete(ctx context.Context, req *service.CompleteRequest) (recorder.Outcome, error) {
	s.mu.Lock()
	if !s.isHost {
		s.mu.Unlock()
		return "", ErrGuestOnly
	}
	if s.state != StateActive && s.state != StateDisconnected {
		state := s.state
		s.mu.Unlock()
		return "", fmt.Errorf("%w (state %s)", ErrNotActive, state)
	}
	sessionID := s.session.ID
	s.mu.Unlock()

	outcome := recorder.Outcome("")
	if s.rec.State() == recorder.StateRecording {
		artifact, err := s.rec.Stop(sessionID, recorderFlushWait)
		if err != nil {
			s.emit(Event{Kind: EventAdvisory, Message: "recording lost: " + err.Error()})
		} else {
			s.mu.Lock()
			s.up = recorder.NewUploader(s.api, artifact)
			up := s.up
			s.mu.Unlock()

			out, err := up.Upload(ctx)
			outcome = out
			if err != nil {
				s.emit(Event{Kind: EventAdvisory, Message: "recording not saved: " + err.Error()})
			}
			s.emit(Event{Kind: EventRecording, Outcome: out})
		}
	}

	sess, err := s.api.Complete(ctx, sessionID, req)
	if err != nil {
		return outcome, err
	}

	s.mu.Lock()
	s.session = sess
	s.mu.Unlock()

	s.transition(StateCompleted)
	s.Close()
	return outcome, nil
}

// Recording returns the uploader holding the local artifact, nil before the
// session completed. Lets the host retry an upload, download, or discard.
func (s *Session) Recording() *recorder.Uploader {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.up
}

// SendChat relays a chat message to the room and returns what the sender
// displayed, which is byte-identical to what the relay forwards.
func (s *Session) SendChat(text string) (*model.ChatMessage, error) {
	s.mu.Lock()
	sig := s.sig
	name := s.name
	userID := s.userID
	s.mu.Unlock()
	if sig == nil {
		return nil, fmt.Errorf("not connected to room")
	}

	msg := &model.ChatMessage{
		ID:        uuid.New().String(),
		Text:      text,
		Sender:    name,
		SenderID:  userID,
		Timestamp: time.Now(),
	}
	if err := sig.Send(model.SignalChatMessage, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// SwitchCamera hot-swaps the camera and atomically points the peer sender
// at the new device. No renegotiation.
func (s *Session) SwitchCamera(deviceID string) error {
	track, err := s.port.SwitchCamera(deviceID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	peer := s.peer
	s.mu.Unlock()
	if peer != nil {
		return peer.ReplaceTrack(webrtc.RTPCodecTypeVideo, track)
	}
	return nil
}

// SwitchMicrophone hot-swaps the microphone.
func (s *Session) SwitchMicrophone(deviceID string) error {
	track, err := s.port.SwitchMicrophone(deviceID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	peer := s.peer
	s.mu.Unlock()
	if peer != nil {
		return peer.ReplaceTrack(webrtc.RTPCodecTypeAudio, track)
	}
	return nil
}

// Leave exits the room. Guests need no confirmation and affect nobody
// else's state; the relay notifies the remaining member.
func (s *Session) Leave() {
	s.Close()
}

// transition moves the room state, emitting a state-changed event.
func (s *Session) transition(to State) error {
	s.mu.Lock()
	from := s.state
	if from == to {
		s.mu.Unlock()
		return nil
	}
	if !from.CanEnter(to) {
		s.mu.Unlock()
		return &InvalidTransitionError{From: from, To: to}
	}
	s.state = to
	s.mu.Unlock()

	s.emit(Event{Kind: EventStateChanged, State: to})
	return nil
}

func (s *Session) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
	}
}

// Close is the single teardown path: pollers, timer, recorder, peer
// connection, local media, signaling — all stopped together. Idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.runCancel()

		s.mu.Lock()
		statusPoller := s.statusPoller
		rosterPoller := s.rosterPoller
		timer := s.timer
		peer := s.peer
		sig := s.sig
		s.mu.Unlock()

		if statusPoller != nil {
			statusPoller.Stop()
		}
		if rosterPoller != nil {
			rosterPoller.Stop()
		}
		if timer != nil {
			timer.Stop()
		}
		if s.rec.State() == recorder.StateRecording {
			s.mu.Lock()
			sessionID := ""
			if s.session != nil {
				sessionID = s.session.ID
			}
			s.mu.Unlock()
			if artifact, err := s.rec.Stop(sessionID, recorderFlushWait); err == nil {
				// Keep the blob reachable for a later retry or download.
				s.mu.Lock()
				s.up = recorder.NewUploader(s.api, artifact)
				s.mu.Unlock()
			}
		}
		if peer != nil {
			peer.Close()
		}
		s.port.Close()
		if sig != nil {
			sig.Close()
		}
	})
}
