package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"kiosk/internal/attendance"
)

// Session is one capture interaction: acquire the camera, let the user
// capture/retake a frame, submit it with the fixed action kind, and
// release the stream when the session closes for any reason.
//
// Transitions are strictly sequential; the mutex is held across every
// state change. The two blocking collaborators (camera acquisition and
// submission upload) run outside the lock so Cancel stays responsive,
// and both re-check the phase before applying their result.
type Session struct {
	ID     string
	Action attendance.Kind

	submitter Submitter
	onClosed  func(s *Session, submitted bool)

	mu      sync.Mutex
	phase   Phase
	stream  Stream
	frame   *Frame
	lastErr error
}

// Phase reports the current lifecycle position.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Err reports the most recent camera or submission failure, nil when
// the session is healthy.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Frame returns a copy of the captured still, if one is held.
func (s *Session) Frame() (Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frame == nil {
		return Frame{}, false
	}
	return *s.frame, true
}

// acquire runs in its own goroutine so cancellation during the grant
// stays possible. A stream that arrives after the session closed is
// released immediately; it was never stored, so no double release.
func (s *Session) acquire(cam Camera, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	stream, err := cam.Acquire(ctx)

	s.mu.Lock()
	if s.phase != PhaseAcquiring {
		s.mu.Unlock()
		if err == nil {
			_ = stream.Close()
		}
		return
	}
	if err != nil {
		s.lastErr = fmt.Errorf("%w: %v", ErrCameraUnavailable, err)
		s.closeLocked(false)
		return
	}
	s.stream = stream
	s.phase = PhaseLive
	s.mu.Unlock()
}

// Capture renders the current live frame into a still and moves the
// session to Previewing. The stream stays live for a possible retake.
func (s *Session) Capture(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseLive {
		return fmt.Errorf("%w: capture while %s", ErrBadPhase, s.phase)
	}
	frame, err := s.stream.Still(ctx)
	if err != nil {
		return fmt.Errorf("capture still: %w", err)
	}
	s.frame = &frame
	s.phase = PhasePreviewing
	return nil
}

// Retake discards the captured frame and returns to the live view.
func (s *Session) Retake() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhasePreviewing {
		return fmt.Errorf("%w: retake while %s", ErrBadPhase, s.phase)
	}
	s.frame = nil
	s.lastErr = nil
	s.phase = PhaseLive
	return nil
}

// Submit uploads the captured frame. A duplicate trigger while an
// upload is in flight is a no-op, never a second upload. On failure the
// session returns to Previewing with the frame and stream intact so the
// user can retry without re-granting camera access. On success the
// stream is released and the session closes.
func (s *Session) Submit(ctx context.Context) error {
	s.mu.Lock()
	if s.phase == PhaseSubmitting {
		s.mu.Unlock()
		return nil
	}
	if s.phase != PhasePreviewing {
		s.mu.Unlock()
		return fmt.Errorf("%w: submit while %s", ErrBadPhase, s.phase)
	}
	frame := *s.frame
	s.phase = PhaseSubmitting
	s.mu.Unlock()

	err := s.submitter.Submit(ctx, s.Action, frame)

	s.mu.Lock()
	if s.phase != PhaseSubmitting {
		// Cancelled while the upload was in flight: the stream is
		// already released, the result is discarded.
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		s.lastErr = fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
		failure := s.lastErr
		s.phase = PhasePreviewing
		s.mu.Unlock()
		return failure
	}
	s.lastErr = nil
	s.closeLocked(true)
	return nil
}

// Cancel closes the session from any phase. The stream, if held, is
// released before Cancel returns. During Acquiring the grant goroutine
// cleans up its late-arriving stream; during Submitting the in-flight
// upload finishes in the background and its result is ignored.
func (s *Session) Cancel() {
	s.mu.Lock()
	if s.phase == PhaseClosed {
		s.mu.Unlock()
		return
	}
	s.closeLocked(false)
}

// closeLocked releases the stream exactly once, marks the session
// Closed and fires the close hook. Callers must hold mu; it is released
// before the hook runs.
func (s *Session) closeLocked(submitted bool) {
	if s.stream != nil {
		_ = s.stream.Close()
		s.stream = nil
	}
	s.phase = PhaseClosed
	hook := s.onClosed
	s.mu.Unlock()
	if hook != nil {
		hook(s, submitted)
	}
}
