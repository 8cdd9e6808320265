package media

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/pion/webrtc/v4/pkg/media"
)

// SyntheticProvider generates tone and test-pattern samples in place of real
// devices. Used when the orchestrator runs headless (offline-mode vivas,
// load rigs) and throughout the tests.
type SyntheticProvider struct {
	// SampleInterval is the spacing of generated samples. Defaults to 20ms,
	// the opus frame duration.
	SampleInterval time.Duration
}

// Enumerate lists one synthetic device per kind.
func (p *SyntheticProvider) Enumerate() ([]DeviceInfo, error) {
	return []DeviceInfo{
		{ID: "synthetic-mic-1", Label: "Synthetic Microphone", Kind: KindAudio},
		{ID: "synthetic-mic-2", Label: "Synthetic Microphone (alt)", Kind: KindAudio},
		{ID: "synthetic-cam-1", Label: "Synthetic Camera", Kind: KindVideo},
		{ID: "synthetic-cam-2", Label: "Synthetic Camera (alt)", Kind: KindVideo},
	}, nil
}

// Open starts a generator for the requested device.
func (p *SyntheticProvider) Open(kind TrackKind, deviceID string) (Source, error) {
	interval := p.SampleInterval
	if interval == 0 {
		interval = 20 * time.Millisecond
	}
	if deviceID == "" {
		if kind == KindAudio {
			deviceID = "synthetic-mic-1"
		} else {
			deviceID = "synthetic-cam-1"
		}
	}
	return &syntheticSource{
		info:     DeviceInfo{ID: deviceID, Label: "Synthetic " + string(kind), Kind: kind},
		interval: interval,
		done:     make(chan struct{}),
	}, nil
}

type syntheticSource struct {
	info     DeviceInfo
	interval time.Duration
	seq      int

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func (s *syntheticSource) Device() DeviceInfo { return s.info }

func (s *syntheticSource) Read() (media.Sample, error) {
	select {
	case <-s.done:
		return media.Sample{}, fmt.Errorf("source %s closed", s.info.ID)
	case <-time.After(s.interval):
	}

	s.seq++
	var data []byte
	if s.info.Kind == KindAudio {
		data = sineFrame(s.seq, 160) // 20ms of 8kHz PCM
	} else {
		data = make([]byte, 1024)
		for i := range data {
			data[i] = byte(s.seq + i)
		}
	}
	return media.Sample{Data: data, Duration: s.interval}, nil
}

func (s *syntheticSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
	return nil
}

func sineFrame(seq, samples int) []byte {
	data := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := int16(12000 * math.Sin(2*math.Pi*440*float64(seq*samples+i)/8000))
		binary.LittleEndian.PutUint16(data[2*i:], uint16(v))
	}
	return data
}
