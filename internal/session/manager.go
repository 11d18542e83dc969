package session

import (
	"context"
	"sync"

	"github.com/julianstephens/repcam/internal/logger"
)

// Manager keeps at most one running session per camera device.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// Start stops any session already bound to s's device, then starts s. The
// session is registered even when camera acquisition fails.
func (m *Manager) Start(ctx context.Context, s *Session) error {
	device := s.Device()

	m.mu.Lock()
	old := m.sessions[device]
	m.sessions[device] = s
	m.mu.Unlock()

	if old != nil && old != s {
		logger.Info("Replacing running session", "device", device)
		if err := old.Stop(); err != nil {
			logger.Warn("Failed to stop previous session", "device", device, "error", err)
		}
	}
	return s.Start(ctx)
}

func (m *Manager) Get(device string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[device]
	return s, ok
}

func (m *Manager) Stop(device string) error {
	m.mu.Lock()
	s := m.sessions[device]
	delete(m.sessions, device)
	m.mu.Unlock()

	if s == nil {
		return nil
	}
	return s.Stop()
}

// StopAll stops every session.
func (m *Manager) StopAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for device, s := range sessions {
		if err := s.Stop(); err != nil {
			logger.Warn("Failed to stop session", "device", device, "error", err)
		}
	}
}
