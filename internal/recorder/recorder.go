package recorder

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/pion/webrtc/v4/pkg/media"

	"vivaroom/internal/model"
)

// State is the recorder lifecycle. Illegal combinations (recording a
// stopped recorder, stopping an idle one) are rejected, not ignored.
type State string

const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
	StateStopped   State = "stopped"
	StateFailed    State = "failed"
)

var (
	ErrNotRecording     = errors.New("recorder is not recording")
	ErrAlreadyRecording = errors.New("recorder already started")
	ErrNoArtifact       = errors.New("no recorded artifact")
)

// codecPriority is the fallback chain for the recording container. The
// choice never changes the artifact contract: one blob, one duration, one
// mime type.
var codecPriority = []string{
	"video/webm;codecs=vp8,opus",
	"video/webm;codecs=vp8",
	"video/webm",
}

// SupportFunc reports whether the platform can encode a mime type. The
// default accepts everything; tests and constrained platforms narrow it.
type SupportFunc func(mimeType string) bool

// Recorder captures session media in fixed one-second slices so an abrupt
// termination loses at most the current slice. Inputs are tap channels from
// the capture port plus (optionally) the remote peer's audio.
type Recorder struct {
	chunkDuration time.Duration
	supports      SupportFunc
	now           func() time.Time

	mu        sync.Mutex
	state     State
	mimeType  string
	chunks    [][]byte
	current   bytes.Buffer
	chunkAge  time.Duration
	startedAt time.Time
	stopped   chan struct{} // closed once the collector has flushed
	inputs    []<-chan media.Sample
	stop      chan struct{}
}

// New creates an idle recorder.
func New(supports SupportFunc) *Recorder {
	if supports == nil {
		supports = func(string) bool { return true }
	}
	return &Recorder{
		chunkDuration: time.Second,
		supports:      supports,
		now:           time.Now,
		state:         StateIdle,
	}
}

// State returns the current recorder state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// MimeType returns the negotiated container type once recording has started.
func (r *Recorder) MimeType() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mimeType
}

// selectCodec walks the fallback chain.
func (r *Recorder) selectCodec() (string, error) {
	for _, mime := range codecPriority {
		if r.supports(mime) {
			return mime, nil
		}
	}
	return "", fmt.Errorf("no supported recording codec")
}

// Start begins capturing from the given inputs. A codec or start failure
// leaves the recorder failed and the session untouched; recording is simply
// unavailable.
func (r *Recorder) Start(inputs ...<-chan media.Sample) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case StateRecording:
		return ErrAlreadyRecording
	case StateFailed:
		return fmt.Errorf("recorder failed earlier")
	}

	mime, err := r.selectCodec()
	if err != nil {
		r.state = StateFailed
		log.Printf("Recording unavailable: %v", err)
		return err
	}

	r.mimeType = mime
	r.chunks = nil
	r.current.Reset()
	r.chunkAge = 0
	r.startedAt = r.now()
	r.inputs = inputs
	r.stop = make(chan struct{})
	r.stopped = make(chan struct{})
	r.state = StateRecording

	go r.collect(r.inputs, r.stop, r.stopped)
	log.Printf("Recording started (%s)", mime)
	return nil
}

// collect merges the input taps and slices the stream into chunks.
func (r *Recorder) collect(inputs []<-chan media.Sample, stop, stopped chan struct{}) {
	defer close(stopped)

	merged := make(chan media.Sample, 64)
	var wg sync.WaitGroup
	for _, in := range inputs {
		wg.Add(1)
		go func(in <-chan media.Sample) {
			defer wg.Done()
			for sample := range in {
				select {
				case merged <- sample:
				case <-stop:
					return
				}
			}
		}(in)
	}
	go func() {
		wg.Wait()
		close(merged)
	}()

	for {
		select {
		case <-stop:
			r.flush(true)
			return
		case sample, ok := <-merged:
			if !ok {
				r.flush(true)
				return
			}
			r.append(sample)
		}
	}
}

// append adds a sample to the current slice, sealing it at the chunk
// boundary to bound loss from abrupt termination.
func (r *Recorder) append(sample media.Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateRecording {
		return
	}
	r.current.Write(sample.Data)
	r.chunkAge += sample.Duration
	if r.chunkAge >= r.chunkDuration {
		r.sealLocked()
	}
}

// flush seals the tail slice. The tail may be shorter than a full chunk.
func (r *Recorder) flush(final bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current.Len() > 0 {
		r.sealLocked()
	}
}

// sealLocked moves the current buffer into the chunk list. Caller holds mu.
func (r *Recorder) sealLocked() {
	chunk := make([]byte, r.current.Len())
	copy(chunk, r.current.Bytes())
	r.chunks = append(r.chunks, chunk)
	r.current.Reset()
	r.chunkAge = 0
}

// Stop ends the recording and waits for the collector to flush, bounded by
// the given timeout. Returns the assembled artifact.
func (r *Recorder) Stop(sessionID string, flushTimeout time.Duration) (*model.RecordingArtifact, error) {
	r.mu.Lock()
	if r.state != StateRecording {
		r.mu.Unlock()
		return nil, ErrNotRecording
	}
	r.state = StateStopped
	stop := r.stop
	stopped := r.stopped
	r.mu.Unlock()

	close(stop)
	select {
	case <-stopped:
	case <-time.After(flushTimeout):
		log.Printf("Recorder flush timed out after %v; assembling what we have", flushTimeout)
	}

	return r.artifact(sessionID)
}

// artifact assembles the chunks into the single-blob artifact.
func (r *Recorder) artifact(sessionID string) (*model.RecordingArtifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.chunks) == 0 {
		return nil, ErrNoArtifact
	}

	var blob bytes.Buffer
	for _, chunk := range r.chunks {
		blob.Write(chunk)
	}

	duration := int(r.now().Sub(r.startedAt) / time.Second)
	if duration < len(r.chunks) {
		// Wall clock can undercount in tests with a frozen clock; the chunk
		// count is a floor since each sealed chunk spans one second.
		duration = len(r.chunks)
	}

	return &model.RecordingArtifact{
		SessionID:       sessionID,
		Blob:            blob.Bytes(),
		DurationSeconds: duration,
		MimeType:        r.mimeType,
	}, nil
}
