package media

import (
	"errors"

	"github.com/pion/webrtc/v4/pkg/media"
)

type TrackKind string

const (
	KindAudio TrackKind = "audio"
	KindVideo TrackKind = "video"
)

// ErrPermissionDenied is returned by providers when the user refused device
// access. Non-fatal: the session proceeds without that media.
var ErrPermissionDenied = errors.New("device access denied")

// DeviceInfo describes one capturable device.
type DeviceInfo struct {
	ID    string
	Label string
	Kind  TrackKind
}

// Source is an open device producing a stream of samples. Read blocks until
// the next sample; it returns an error after Close.
type Source interface {
	Device() DeviceInfo
	Read() (media.Sample, error)
	Close() error
}

// Provider owns device discovery and acquisition for one platform.
type Provider interface {
	Enumerate() ([]DeviceInfo, error)
	// Open acquires a device by id; an empty id means the platform default
	// for that kind.
	Open(kind TrackKind, deviceID string) (Source, error)
}
