// Package stream delivers conversations over WebSocket, timing deferred
// messages on the server.
package stream

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// Manager tracks the live WebSocket connection of each conversation.
type Manager struct {
	mu     sync.RWMutex
	active map[string]*websocket.Conn
}

// NewManager creates an empty connection registry.
func NewManager() *Manager {
	return &Manager{
		active: make(map[string]*websocket.Conn),
	}
}

// Active returns the connection attached to a session, if any.
func (m *Manager) Active(sessionID string) *websocket.Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active[sessionID]
}

// Register attaches conn to a session, closing any connection it replaces.
func (m *Manager) Register(sessionID string, conn *websocket.Conn) {
	m.mu.Lock()
	existing, exists := m.active[sessionID]
	m.active[sessionID] = conn
	m.mu.Unlock()

	// Close waits for the peer's handshake, so it runs outside the lock.
	if exists && existing != conn {
		_ = existing.Close(websocket.StatusNormalClosure, "session replaced")
	}
	slog.Info("Chat stream registered", "session_id", sessionID)
}

// Unregister detaches conn if it is still the session's current connection.
func (m *Manager) Unregister(sessionID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, exists := m.active[sessionID]; exists && current == conn {
		delete(m.active, sessionID)
		slog.Info("Chat stream unregistered", "session_id", sessionID)
	}
}

// Len returns the number of attached sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}

// CloseAll terminates every attached connection, e.g. on shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	closing := m.active
	m.active = make(map[string]*websocket.Conn)
	m.mu.Unlock()

	for sid, conn := range closing {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		slog.Info("Chat stream closed", "session_id", sid)
	}
}
