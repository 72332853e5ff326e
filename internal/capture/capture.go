// Package capture runs the camera-backed check-in/out flow as an
// explicit state machine. A session owns the camera stream exclusively
// and releases it exactly once on every path that reaches Closed,
// including cancellation while acquisition or submission is in flight.
package capture

import (
	"context"
	"errors"

	"kiosk/internal/attendance"
)

// Phase is the lifecycle position of one capture session.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAcquiring
	PhaseLive
	PhasePreviewing
	PhaseSubmitting
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseAcquiring:
		return "acquiring"
	case PhaseLive:
		return "live"
	case PhasePreviewing:
		return "previewing"
	case PhaseSubmitting:
		return "submitting"
	case PhaseClosed:
		return "closed"
	}
	return "unknown"
}

var (
	// ErrCameraUnavailable means acquisition failed or was denied; the
	// session closed without ever holding a stream.
	ErrCameraUnavailable = errors.New("capture: camera unavailable")

	// ErrSubmissionFailed means the upload failed; the session is back
	// in Previewing with the frame and stream intact for retry.
	ErrSubmissionFailed = errors.New("capture: submission failed")

	// ErrBadPhase is returned for a transition that is not valid from
	// the session's current phase.
	ErrBadPhase = errors.New("capture: operation not valid in current phase")
)

// Frame is an encoded still image captured from a live stream.
type Frame struct {
	Data []byte
	MIME string
}

// Camera grants live streams. Acquire may block on device permission
// and may fail when no device is available.
type Camera interface {
	Acquire(ctx context.Context) (Stream, error)
}

// Stream is an exclusively-owned camera handle. Still renders the
// current frame into an encoded image; Close releases the device.
type Stream interface {
	Still(ctx context.Context) (Frame, error)
	Close() error
}

// Submitter hands a captured frame and its action to the HR backend.
type Submitter interface {
	Submit(ctx context.Context, action attendance.Kind, frame Frame) error
}
