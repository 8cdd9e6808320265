package media

import (
	"encoding/binary"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

// PermissionError reports a device the user declined to share. The capture
// port keeps working without that kind; re-requesting goes through
// Reacquire.
type PermissionError struct {
	Kind TrackKind
	Err  error
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("%s capture unavailable: %v", e.Kind, e.Err)
}

func (e *PermissionError) Unwrap() error { return e.Err }

// line is one captured kind: its source, outgoing track, and consumers.
type line struct {
	src     Source
	track   *webrtc.TrackLocalStaticSample
	enabled bool
	taps    []chan media.Sample
	level   float64 // audio only, updated regardless of enablement
	failed  *PermissionError
}

// CapturePort owns the local media stream for the lifetime of a session.
// Tracks are acquired muted and stay muted until explicitly enabled; this is
// a privacy default, not an optimization. The peer connection and the
// recorder hold references (track object, tap channels), never ownership.
type CapturePort struct {
	provider Provider

	mu     sync.Mutex
	audio  line
	video  line
	closed bool
}

// NewCapturePort creates a capture port over the given device provider.
func NewCapturePort(provider Provider) *CapturePort {
	return &CapturePort{provider: provider}
}

// Acquire opens the requested (or default) microphone and camera. Permission
// denials are returned as advisories, not failures: the port stays usable
// for whatever was granted.
func (p *CapturePort) Acquire(audioDeviceID, videoDeviceID string) ([]*PermissionError, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, fmt.Errorf("capture port closed")
	}

	var advisories []*PermissionError
	if err := p.acquireLine(&p.audio, KindAudio, audioDeviceID); err != nil {
		perm := &PermissionError{Kind: KindAudio, Err: err}
		p.audio.failed = perm
		advisories = append(advisories, perm)
	}
	if err := p.acquireLine(&p.video, KindVideo, videoDeviceID); err != nil {
		perm := &PermissionError{Kind: KindVideo, Err: err}
		p.video.failed = perm
		advisories = append(advisories, perm)
	}
	return advisories, nil
}

// acquireLine opens a source and starts its pump. Caller holds p.mu.
func (p *CapturePort) acquireLine(l *line, kind TrackKind, deviceID string) error {
	src, err := p.provider.Open(kind, deviceID)
	if err != nil {
		return err
	}

	capability := webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}
	if kind == KindVideo {
		capability = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}
	}
	track, err := webrtc.NewTrackLocalStaticSample(capability, string(kind), "vivaroom")
	if err != nil {
		src.Close()
		return err
	}

	l.src = src
	l.track = track
	l.failed = nil
	// enabled stays false: tracks start muted.

	go p.pump(l, kind)
	return nil
}

// pump forwards samples from the current source to the track and taps while
// the line is enabled. The mic level is computed on every sample regardless
// of enablement so the level meter works while muted.
func (p *CapturePort) pump(l *line, kind TrackKind) {
	for {
		p.mu.Lock()
		if p.closed || l.src == nil {
			p.mu.Unlock()
			return
		}
		src := l.src
		p.mu.Unlock()

		sample, err := src.Read()
		if err != nil {
			p.mu.Lock()
			replaced := l.src != nil && l.src != src
			p.mu.Unlock()
			if replaced {
				continue // device was hot-swapped under us
			}
			return
		}

		p.mu.Lock()
		if kind == KindAudio {
			l.level = rms(sample.Data)
		}
		enabled := l.enabled
		track := l.track
		taps := l.taps
		p.mu.Unlock()

		if !enabled {
			continue
		}

		if err := track.WriteSample(sample); err != nil {
			log.Printf("WriteSample (%s): %v", kind, err)
		}
		for _, tap := range taps {
			select {
			case tap <- sample:
			default:
				// A slow consumer loses samples, never stalls capture.
			}
		}
	}
}

// EnableAudio unmutes the microphone.
func (p *CapturePort) EnableAudio() { p.setEnabled(&p.audio, true) }

// DisableAudio mutes the microphone.
func (p *CapturePort) DisableAudio() { p.setEnabled(&p.audio, false) }

// EnableVideo unmutes the camera.
func (p *CapturePort) EnableVideo() { p.setEnabled(&p.video, true) }

// DisableVideo mutes the camera.
func (p *CapturePort) DisableVideo() { p.setEnabled(&p.video, false) }

func (p *CapturePort) setEnabled(l *line, enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l.track != nil {
		l.enabled = enabled
	}
}

// AudioEnabled reports whether the microphone is live.
func (p *CapturePort) AudioEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.audio.enabled
}

// VideoEnabled reports whether the camera is live.
func (p *CapturePort) VideoEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.video.enabled
}

// AudioLevel returns the most recent microphone level in [0,1].
func (p *CapturePort) AudioLevel() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.audio.level
}

// LevelMeter samples the microphone level at the given interval and delivers
// readings until the returned stop function is called. Readings continue
// while muted.
func (p *CapturePort) LevelMeter(interval time.Duration) (<-chan float64, func()) {
	out := make(chan float64, 8)
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		defer close(out)
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				select {
				case out <- p.AudioLevel():
				default:
				}
			}
		}
	}()
	var once sync.Once
	return out, func() { once.Do(func() { close(done) }) }
}

// AudioTrack returns the outgoing audio track, or nil when unavailable.
func (p *CapturePort) AudioTrack() *webrtc.TrackLocalStaticSample {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.audio.track
}

// VideoTrack returns the outgoing video track, or nil when unavailable.
func (p *CapturePort) VideoTrack() *webrtc.TrackLocalStaticSample {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.video.track
}

// Tap returns a channel carrying the line's samples for the recorder. Taps
// survive device switches; they only see samples while the line is enabled.
func (p *CapturePort) Tap(kind TrackKind) <-chan media.Sample {
	ch := make(chan media.Sample, 64)
	p.mu.Lock()
	defer p.mu.Unlock()
	if kind == KindAudio {
		p.audio.taps = append(p.audio.taps, ch)
	} else {
		p.video.taps = append(p.video.taps, ch)
	}
	return ch
}

// Devices enumerates the available capture devices.
func (p *CapturePort) Devices() ([]DeviceInfo, error) {
	return p.provider.Enumerate()
}

// SwitchMicrophone hot-swaps the active microphone. The returned track must
// replace the old one on the peer connection sender; taps keep flowing from
// the new device.
func (p *CapturePort) SwitchMicrophone(deviceID string) (*webrtc.TrackLocalStaticSample, error) {
	return p.switchDevice(&p.audio, KindAudio, deviceID)
}

// SwitchCamera hot-swaps the active camera.
func (p *CapturePort) SwitchCamera(deviceID string) (*webrtc.TrackLocalStaticSample, error) {
	return p.switchDevice(&p.video, KindVideo, deviceID)
}

// switchDevice atomically replaces a line's source and track so the peer
// connection and the recorder cannot observe a stale device.
func (p *CapturePort) switchDevice(l *line, kind TrackKind, deviceID string) (*webrtc.TrackLocalStaticSample, error) {
	newSrc, err := p.provider.Open(kind, deviceID)
	if err != nil {
		return nil, err
	}

	capability := webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}
	if kind == KindVideo {
		capability = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}
	}
	newTrack, err := webrtc.NewTrackLocalStaticSample(capability, string(kind), "vivaroom")
	if err != nil {
		newSrc.Close()
		return nil, err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		newSrc.Close()
		return nil, fmt.Errorf("capture port closed")
	}
	oldSrc := l.src
	hadPump := oldSrc != nil
	l.src = newSrc
	l.track = newTrack
	l.failed = nil
	p.mu.Unlock()

	if oldSrc != nil {
		oldSrc.Close() // unblocks the pump, which picks up the new source
	}
	if !hadPump {
		go p.pump(l, kind)
	}
	return newTrack, nil
}

// Reacquire retries device access for a kind that previously failed, e.g.
// after the user grants permission.
func (p *CapturePort) Reacquire(kind TrackKind, deviceID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("capture port closed")
	}
	l := &p.audio
	if kind == KindVideo {
		l = &p.video
	}
	if l.src != nil {
		return nil // already capturing
	}
	return p.acquireLine(l, kind, deviceID)
}

// Close stops all capture and releases both devices. Idempotent.
func (p *CapturePort) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	audioSrc, videoSrc := p.audio.src, p.video.src
	p.audio.src, p.video.src = nil, nil
	taps := append(p.audio.taps, p.video.taps...)
	p.audio.taps, p.video.taps = nil, nil
	p.mu.Unlock()

	if audioSrc != nil {
		audioSrc.Close()
	}
	if videoSrc != nil {
		videoSrc.Close()
	}
	for _, tap := range taps {
		close(tap)
	}
	return nil
}

// rms computes a normalized level from 16-bit little-endian PCM.
func rms(data []byte) float64 {
	if len(data) < 2 {
		return 0
	}
	var sum float64
	n := len(data) / 2
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(data[2*i:]))
		f := float64(v) / 32768
		sum += f * f
	}
	return math.Sqrt(sum / float64(n))
}
