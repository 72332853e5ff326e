package capture

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"kiosk/internal/attendance"
)

// Manager tracks live sessions so the server can look them up by id and
// tear them all down on shutdown.
type Manager struct {
	camera         Camera
	acquireTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a manager backed by the given camera.
func NewManager(camera Camera, acquireTimeout time.Duration) *Manager {
	if acquireTimeout <= 0 {
		acquireTimeout = 10 * time.Second
	}
	return &Manager{
		camera:         camera,
		acquireTimeout: acquireTimeout,
		sessions:       make(map[string]*Session),
	}
}

// Open starts a new session in Acquiring and kicks off the camera grant
// in the background. Only checkin and checkout are valid actions; an
// absent marker is backend-assigned and never captured. The onClosed
// hook, when set, runs once the session reaches Closed; submitted
// reports whether a submission succeeded.
func (m *Manager) Open(action attendance.Kind, sub Submitter, onClosed func(*Session, bool)) (*Session, error) {
	if action != attendance.KindCheckin && action != attendance.KindCheckout {
		return nil, fmt.Errorf("capture: unsupported action %q", action)
	}
	s := &Session{
		ID:        uuid.NewString(),
		Action:    action,
		submitter: sub,
		phase:     PhaseAcquiring,
	}
	s.onClosed = func(sess *Session, submitted bool) {
		m.remove(sess.ID)
		if onClosed != nil {
			onClosed(sess, submitted)
		}
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	go s.acquire(m.camera, m.acquireTimeout)
	return s, nil
}

// Get returns the live session with the given id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Len reports how many sessions are live.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) remove(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// CloseAll cancels every live session. Called on server teardown so a
// session abandoned mid-flow never leaves the camera held.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	open := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		open = append(open, s)
	}
	m.mu.Unlock()

	for _, s := range open {
		s.Cancel()
	}
}
