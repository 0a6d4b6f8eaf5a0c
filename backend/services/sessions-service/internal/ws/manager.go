package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"evroaming/backend/services/sessions-service/internal/auditlog"
)

// Manager tracks audit stream subscribers and fans records out to them.
type Manager struct {
	mu           sync.RWMutex
	connections  map[string]*Connection
	pingInterval time.Duration
}

// NewManager builds connection manager.
func NewManager(pingInterval time.Duration) *Manager {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Manager{
		connections:  make(map[string]*Connection),
		pingInterval: pingInterval,
	}
}

// Add registers new connection.
func (m *Manager) Add(conn *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections[conn.ID()] = conn
}

// Remove removes connection.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.connections, id)
}

// Len returns the number of connected subscribers.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// Write implements auditlog.Sink. Slow subscribers lose messages rather
// than holding up the writer.
func (m *Manager) Write(_ context.Context, rec auditlog.Record) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.connections) == 0 {
		return nil
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("ws: encode record: %w", err)
	}
	for _, conn := range m.connections {
		if conn.Wants(rec.Store) {
			conn.Send(data)
		}
	}
	return nil
}

// Start begins ping loop to keep connections active.
func (m *Manager) Start(ctx context.Context) {
	ticker := time.NewTicker(m.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.RLock()
			for _, conn := range m.connections {
				_ = conn.Ping()
			}
			m.mu.RUnlock()
		}
	}
}
