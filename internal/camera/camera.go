// Package camera provides capture.Camera sources for the kiosk device:
// an HTTP snapshot camera for IP webcams and a static source for dev
// setups without a device.
package camera

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"kiosk/internal/capture"
)

var errStreamClosed = errors.New("camera: stream closed")

// HTTPCamera acquires streams from an IP webcam exposing a snapshot
// endpoint that answers GET with an encoded still.
type HTTPCamera struct {
	SnapshotURL string
	HTTP        *http.Client
}

// NewHTTP creates a snapshot camera with the given request timeout.
func NewHTTP(snapshotURL string, timeout time.Duration) *HTTPCamera {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPCamera{
		SnapshotURL: snapshotURL,
		HTTP:        &http.Client{Timeout: timeout},
	}
}

// Acquire probes the snapshot endpoint once so an unreachable or
// denying device surfaces as an acquisition failure, not as a broken
// first capture.
func (c *HTTPCamera) Acquire(ctx context.Context) (capture.Stream, error) {
	if _, err := c.snapshot(ctx); err != nil {
		return nil, err
	}
	return &httpStream{cam: c}, nil
}

func (c *HTTPCamera) snapshot(ctx context.Context) (capture.Frame, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.SnapshotURL, nil)
	if err != nil {
		return capture.Frame{}, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return capture.Frame{}, fmt.Errorf("camera: snapshot request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return capture.Frame{}, fmt.Errorf("camera: snapshot failed: %s", resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return capture.Frame{}, fmt.Errorf("camera: read snapshot failed: %w", err)
	}
	mime := resp.Header.Get("Content-Type")
	if mime == "" {
		mime = "image/jpeg"
	}
	return capture.Frame{Data: data, MIME: mime}, nil
}

type httpStream struct {
	cam *HTTPCamera

	mu     sync.Mutex
	closed bool
}

func (s *httpStream) Still(ctx context.Context) (capture.Frame, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return capture.Frame{}, errStreamClosed
	}
	return s.cam.snapshot(ctx)
}

func (s *httpStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Static serves a fixed frame on every capture. Used when no camera is
// configured so the rest of the flow stays exercisable.
type Static struct {
	Frame capture.Frame
}

// NewStaticFromFile loads the frame once at startup.
func NewStaticFromFile(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("camera: read static frame: %w", err)
	}
	return &Static{Frame: capture.Frame{Data: data, MIME: "image/jpeg"}}, nil
}

func (c *Static) Acquire(ctx context.Context) (capture.Stream, error) {
	return &staticStream{frame: c.Frame}, nil
}

type staticStream struct {
	frame capture.Frame

	mu     sync.Mutex
	closed bool
}

func (s *staticStream) Still(ctx context.Context) (capture.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return capture.Frame{}, errStreamClosed
	}
	return s.frame, nil
}

func (s *staticStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
