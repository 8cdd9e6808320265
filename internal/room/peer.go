package room

import (
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
)

// Peer wraps the WebRTC peer connection between the host and the one
// admitted remote participant. The host is always the offerer, so there is
// exactly one deterministic offer direction and no glare.
type Peer struct {
	pc *webrtc.PeerConnection

	mu        sync.Mutex
	remoteSet bool
	// Candidates may arrive before the answer; they are parked until the
	// remote description lands.
	pending []webrtc.ICECandidateInit
}

// NewPeer creates a peer connection. onCandidate fires for each locally
// gathered candidate; onRemoteTrack fires when the remote's media arrives.
func NewPeer(onCandidate func(webrtc.ICECandidateInit), onRemoteTrack func(*webrtc.TrackRemote)) (*Peer, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("peer connection: %w", err)
	}

	p := &Peer{pc: pc}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil || onCandidate == nil {
			return
		}
		onCandidate(c.ToJSON())
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if onRemoteTrack != nil {
			onRemoteTrack(track)
		}
	})

	return p, nil
}

// AddTracks attaches the local outgoing tracks. Nil tracks (denied devices)
// are skipped; the call degrades rather than fails.
func (p *Peer) AddTracks(tracks ...webrtc.TrackLocal) error {
	for _, track := range tracks {
		if track == nil {
			continue
		}
		if _, err := p.pc.AddTrack(track); err != nil {
			return fmt.Errorf("add track: %w", err)
		}
	}
	return nil
}

// CreateOffer produces and installs the local offer. Host side only.
func (p *Peer) CreateOffer() (webrtc.SessionDescription, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return offer, nil
}

// HandleOffer installs the remote offer and produces the answer. Guest side.
func (p *Peer) HandleOffer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if err := p.setRemote(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return answer, nil
}

// HandleAnswer installs the remote answer. Host side.
func (p *Peer) HandleAnswer(answer webrtc.SessionDescription) error {
	return p.setRemote(answer)
}

func (p *Peer) setRemote(desc webrtc.SessionDescription) error {
	if err := p.pc.SetRemoteDescription(desc); err != nil {
		return err
	}

	p.mu.Lock()
	p.remoteSet = true
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()

	for _, c := range pending {
		if err := p.pc.AddICECandidate(c); err != nil {
			return err
		}
	}
	return nil
}

// AddICECandidate applies a relayed candidate, tolerating arrival before
// the answer.
func (p *Peer) AddICECandidate(c webrtc.ICECandidateInit) error {
	p.mu.Lock()
	if !p.remoteSet {
		p.pending = append(p.pending, c)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()
	return p.pc.AddICECandidate(c)
}

// ReplaceTrack swaps the outgoing track of the given kind on the existing
// connection. No renegotiation: the established sender keeps its parameters.
func (p *Peer) ReplaceTrack(kind webrtc.RTPCodecType, track webrtc.TrackLocal) error {
	for _, sender := range p.pc.GetSenders() {
		existing := sender.Track()
		if existing == nil || existing.Kind() != kind {
			continue
		}
		return sender.ReplaceTrack(track)
	}
	return fmt.Errorf("no %s sender to replace", kind)
}

// Close tears the connection down. Idempotent at the pion layer.
func (p *Peer) Close() error {
	return p.pc.Close()
}
