// Package camera acquires frames from a camera feed. Sources decode frames
// in the background; consumers poll Latest and act only when the sequence
// number advances.
package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net/url"
	"strings"
	"time"

	"github.com/julianstephens/repcam/internal/models"
)

var (
	ErrPermissionDenied  = errors.New("camera permission denied")
	ErrDeviceUnavailable = errors.New("camera device unavailable")
	ErrDisconnected      = errors.New("camera disconnected")
	ErrTimeout           = errors.New("timed out waiting for camera")
)

// State is the user-visible camera lifecycle state. Pending (not yet
// granted) is distinct from Denied.
type State int

const (
	StatePending State = iota
	StateActive
	StateDenied
	StateUnavailable
	StateDisconnected
	StateTimedOut
	StateStopped
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "waiting for camera"
	case StateActive:
		return "camera on"
	case StateDenied:
		return "camera permission denied"
	case StateUnavailable:
		return "no camera found"
	case StateDisconnected:
		return "camera disconnected"
	case StateTimedOut:
		return "camera timed out"
	case StateStopped:
		return "camera off"
	default:
		return "unknown"
	}
}

// StateFor maps an acquisition error to the state it should surface as.
func StateFor(err error) State {
	switch {
	case err == nil:
		return StateActive
	case errors.Is(err, ErrPermissionDenied):
		return StateDenied
	case errors.Is(err, ErrDisconnected):
		return StateDisconnected
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return StateTimedOut
	default:
		return StateUnavailable
	}
}

// Source is a running camera feed owned by one detection session.
type Source interface {
	// Open acquires the device and returns once the first frame decoded.
	Open(ctx context.Context) error
	// Latest returns the most recent frame and its sequence number. ok is
	// false until a frame is available.
	Latest() (img image.Image, seq uint64, ok bool)
	State() State
	// Err returns the error that ended the feed, if any.
	Err() error
	Close() error
	// Device identifies the underlying device for one-session-per-device
	// bookkeeping.
	Device() string
}

type Options struct {
	URL            string
	Width          int
	Height         int
	Facing         string
	AcquireTimeout time.Duration
	// FrameRate paces replay sources. Live sources run at their own rate.
	FrameRate int
	// Loop restarts a replay source at the end instead of disconnecting.
	Loop bool
}

// OptionsFromSettings builds source options from persisted settings.
func OptionsFromSettings(s models.Settings) Options {
	return Options{
		URL:            s.CameraURL,
		Width:          s.CameraWidth,
		Height:         s.CameraHeight,
		Facing:         s.CameraFacing,
		AcquireTimeout: s.AcquireTimeout(),
	}
}

// New picks a source for opts.URL: http(s) URLs stream MJPEG, file URLs and
// plain paths replay a directory of stills.
func New(opts Options) (Source, error) {
	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid camera URL %q: %w", opts.URL, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return NewMJPEGSource(opts), nil
	case "file":
		return NewReplaySource(u.Path, opts), nil
	case "":
		return NewReplaySource(opts.URL, opts), nil
	default:
		return nil, fmt.Errorf("unsupported camera URL scheme %q", u.Scheme)
	}
}
