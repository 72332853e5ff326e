package capture

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kiosk/internal/attendance"
)

type fakeStream struct {
	frame    Frame
	stillErr error
	closes   atomic.Int32
}

func (f *fakeStream) Still(ctx context.Context) (Frame, error) {
	if f.stillErr != nil {
		return Frame{}, f.stillErr
	}
	return f.frame, nil
}

func (f *fakeStream) Close() error {
	f.closes.Add(1)
	return nil
}

type fakeCamera struct {
	stream Stream
	err    error
	grant  chan struct{} // when set, Acquire blocks until closed
}

func (c *fakeCamera) Acquire(ctx context.Context) (Stream, error) {
	if c.grant != nil {
		<-c.grant
	}
	if c.err != nil {
		return nil, c.err
	}
	return c.stream, nil
}

type fakeSubmitter struct {
	mu      sync.Mutex
	calls   int
	actions []attendance.Kind
	frames  []Frame
	errs    []error      // popped one per call
	started chan struct{} // one signal per call when set
	gate    chan struct{} // blocks each call until closed when set
}

func (f *fakeSubmitter) Submit(ctx context.Context, action attendance.Kind, frame Frame) error {
	f.mu.Lock()
	f.calls++
	f.actions = append(f.actions, action)
	f.frames = append(f.frames, frame)
	var err error
	if len(f.errs) > 0 {
		err = f.errs[0]
		f.errs = f.errs[1:]
	}
	started, gate := f.started, f.gate
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	return err
}

func (f *fakeSubmitter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func waitPhase(t *testing.T, s *Session, want Phase) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.Phase() == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for phase %s, still at %s", want, s.Phase())
}

func waitCloses(t *testing.T, stream *fakeStream, want int32) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if stream.closes.Load() == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d close(s), got %d", want, stream.closes.Load())
}

func TestSession_HappyPath(t *testing.T) {
	stream := &fakeStream{frame: Frame{Data: []byte("jpeg"), MIME: "image/jpeg"}}
	sub := &fakeSubmitter{}
	mgr := NewManager(&fakeCamera{stream: stream}, time.Second)

	var closedSubmitted atomic.Bool
	var closedCount atomic.Int32
	s, err := mgr.Open(attendance.KindCheckin, sub, func(_ *Session, submitted bool) {
		closedSubmitted.Store(submitted)
		closedCount.Add(1)
	})
	require.NoError(t, err)
	assert.Equal(t, attendance.KindCheckin, s.Action)

	waitPhase(t, s, PhaseLive)
	require.NoError(t, s.Capture(context.Background()))
	assert.Equal(t, PhasePreviewing, s.Phase())

	frame, ok := s.Frame()
	require.True(t, ok)
	assert.Equal(t, []byte("jpeg"), frame.Data)

	require.NoError(t, s.Submit(context.Background()))
	assert.Equal(t, PhaseClosed, s.Phase())
	assert.Equal(t, int32(1), stream.closes.Load())
	assert.Equal(t, 1, sub.callCount())
	assert.Equal(t, []attendance.Kind{attendance.KindCheckin}, sub.actions)
	assert.True(t, closedSubmitted.Load())
	assert.Equal(t, int32(1), closedCount.Load())
	assert.Equal(t, 0, mgr.Len())
}

func TestSession_AcquireFailureClosesWithoutStream(t *testing.T) {
	mgr := NewManager(&fakeCamera{err: errors.New("permission denied")}, time.Second)

	s, err := mgr.Open(attendance.KindCheckout, &fakeSubmitter{}, nil)
	require.NoError(t, err)

	waitPhase(t, s, PhaseClosed)
	assert.ErrorIs(t, s.Err(), ErrCameraUnavailable)
	assert.Equal(t, 0, mgr.Len())
}

func TestSession_RetakeKeepsStreamLive(t *testing.T) {
	stream := &fakeStream{frame: Frame{Data: []byte("a")}}
	mgr := NewManager(&fakeCamera{stream: stream}, time.Second)

	s, err := mgr.Open(attendance.KindCheckin, &fakeSubmitter{}, nil)
	require.NoError(t, err)
	waitPhase(t, s, PhaseLive)

	require.NoError(t, s.Capture(context.Background()))
	require.NoError(t, s.Retake())
	assert.Equal(t, PhaseLive, s.Phase())
	_, ok := s.Frame()
	assert.False(t, ok, "retake discards the captured frame")
	assert.Equal(t, int32(0), stream.closes.Load(), "stream must stay live for the next capture")

	stream.frame = Frame{Data: []byte("b")}
	require.NoError(t, s.Capture(context.Background()))
	frame, ok := s.Frame()
	require.True(t, ok)
	assert.Equal(t, []byte("b"), frame.Data)

	s.Cancel()
	assert.Equal(t, int32(1), stream.closes.Load())
}

// Scenario: capture, failed submit, retry, success. Exactly one stream
// release and exactly one successful upload across the whole flow.
func TestSession_SubmitFailureThenRetry(t *testing.T) {
	stream := &fakeStream{frame: Frame{Data: []byte("still")}}
	sub := &fakeSubmitter{errs: []error{errors.New("backend 500")}}
	mgr := NewManager(&fakeCamera{stream: stream}, time.Second)

	s, err := mgr.Open(attendance.KindCheckin, sub, nil)
	require.NoError(t, err)
	waitPhase(t, s, PhaseLive)
	require.NoError(t, s.Capture(context.Background()))

	err = s.Submit(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSubmissionFailed)
	assert.ErrorIs(t, s.Err(), ErrSubmissionFailed)
	assert.Equal(t, PhasePreviewing, s.Phase())
	assert.Equal(t, int32(0), stream.closes.Load(), "failed submit must not release the stream")

	frame, ok := s.Frame()
	require.True(t, ok, "failed submit must keep the captured frame")
	assert.Equal(t, []byte("still"), frame.Data)

	require.NoError(t, s.Submit(context.Background()))
	assert.Equal(t, PhaseClosed, s.Phase())
	assert.Equal(t, int32(1), stream.closes.Load())
	assert.Equal(t, 2, sub.callCount())
	assert.NoError(t, s.Err())
}

func TestSession_DuplicateSubmitIsNoop(t *testing.T) {
	stream := &fakeStream{frame: Frame{Data: []byte("x")}}
	sub := &fakeSubmitter{started: make(chan struct{}, 1), gate: make(chan struct{})}
	mgr := NewManager(&fakeCamera{stream: stream}, time.Second)

	s, err := mgr.Open(attendance.KindCheckout, sub, nil)
	require.NoError(t, err)
	waitPhase(t, s, PhaseLive)
	require.NoError(t, s.Capture(context.Background()))

	done := make(chan error, 1)
	go func() { done <- s.Submit(context.Background()) }()
	<-sub.started

	// Second trigger while the upload is in flight: no second upload.
	require.NoError(t, s.Submit(context.Background()))
	assert.Equal(t, 1, sub.callCount())

	close(sub.gate)
	require.NoError(t, <-done)
	assert.Equal(t, PhaseClosed, s.Phase())
	assert.Equal(t, int32(1), stream.closes.Load())
}

// Scenario: cancel while the camera grant is still pending. The
// late-arriving stream must be released even though the session already
// closed.
func TestSession_CancelDuringAcquiring(t *testing.T) {
	stream := &fakeStream{}
	cam := &fakeCamera{stream: stream, grant: make(chan struct{})}
	mgr := NewManager(cam, time.Second)

	s, err := mgr.Open(attendance.KindCheckin, &fakeSubmitter{}, nil)
	require.NoError(t, err)
	assert.Equal(t, PhaseAcquiring, s.Phase())

	s.Cancel()
	assert.Equal(t, PhaseClosed, s.Phase())
	assert.Equal(t, 0, mgr.Len())

	close(cam.grant)
	waitCloses(t, stream, 1)
}

func TestSession_CancelDuringSubmitDiscardsResult(t *testing.T) {
	stream := &fakeStream{frame: Frame{Data: []byte("x")}}
	sub := &fakeSubmitter{started: make(chan struct{}, 1), gate: make(chan struct{})}
	mgr := NewManager(&fakeCamera{stream: stream}, time.Second)

	var submitted atomic.Bool
	var closedCount atomic.Int32
	s, err := mgr.Open(attendance.KindCheckin, sub, func(_ *Session, ok bool) {
		submitted.Store(ok)
		closedCount.Add(1)
	})
	require.NoError(t, err)
	waitPhase(t, s, PhaseLive)
	require.NoError(t, s.Capture(context.Background()))

	done := make(chan error, 1)
	go func() { done <- s.Submit(context.Background()) }()
	<-sub.started

	s.Cancel()
	assert.Equal(t, PhaseClosed, s.Phase())
	assert.Equal(t, int32(1), stream.closes.Load(), "cancel releases the stream synchronously")

	// Let the in-flight upload finish; its result is discarded.
	close(sub.gate)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), stream.closes.Load(), "no second release after the late result")
	assert.False(t, submitted.Load())
	assert.Equal(t, int32(1), closedCount.Load())
}

func TestSession_CancelIsIdempotent(t *testing.T) {
	stream := &fakeStream{}
	mgr := NewManager(&fakeCamera{stream: stream}, time.Second)

	s, err := mgr.Open(attendance.KindCheckin, &fakeSubmitter{}, nil)
	require.NoError(t, err)
	waitPhase(t, s, PhaseLive)

	s.Cancel()
	s.Cancel()
	assert.Equal(t, int32(1), stream.closes.Load())
}

func TestSession_BadPhaseTransitions(t *testing.T) {
	stream := &fakeStream{frame: Frame{Data: []byte("x")}}
	mgr := NewManager(&fakeCamera{stream: stream}, time.Second)

	s, err := mgr.Open(attendance.KindCheckin, &fakeSubmitter{}, nil)
	require.NoError(t, err)
	waitPhase(t, s, PhaseLive)

	assert.ErrorIs(t, s.Retake(), ErrBadPhase)
	assert.ErrorIs(t, s.Submit(context.Background()), ErrBadPhase)

	require.NoError(t, s.Capture(context.Background()))
	assert.ErrorIs(t, s.Capture(context.Background()), ErrBadPhase)

	s.Cancel()
	assert.ErrorIs(t, s.Capture(context.Background()), ErrBadPhase)
	assert.ErrorIs(t, s.Submit(context.Background()), ErrBadPhase)
}

func TestManager_RejectsAbsentAction(t *testing.T) {
	mgr := NewManager(&fakeCamera{stream: &fakeStream{}}, time.Second)
	_, err := mgr.Open(attendance.KindAbsent, &fakeSubmitter{}, nil)
	require.Error(t, err)
	_, err = mgr.Open(attendance.Kind("other"), &fakeSubmitter{}, nil)
	require.Error(t, err)
}

func TestManager_CloseAll(t *testing.T) {
	first := &fakeStream{}
	second := &fakeStream{}
	cam := &fakeCamera{stream: first}
	mgr := NewManager(cam, time.Second)

	s1, err := mgr.Open(attendance.KindCheckin, &fakeSubmitter{}, nil)
	require.NoError(t, err)
	waitPhase(t, s1, PhaseLive)

	cam.stream = second
	s2, err := mgr.Open(attendance.KindCheckout, &fakeSubmitter{}, nil)
	require.NoError(t, err)
	waitPhase(t, s2, PhaseLive)

	require.Equal(t, 2, mgr.Len())
	mgr.CloseAll()

	assert.Equal(t, PhaseClosed, s1.Phase())
	assert.Equal(t, PhaseClosed, s2.Phase())
	assert.Equal(t, int32(1), first.closes.Load())
	assert.Equal(t, int32(1), second.closes.Load())
	assert.Equal(t, 0, mgr.Len())
}
