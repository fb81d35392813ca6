package session

import (
	"sync"

	"github.com/obsproc/quicklook/internal/logging"
	"github.com/obsproc/quicklook/internal/uiloop"
)

// Manager tracks live sessions. Sessions are created lazily on first
// use and torn down on end; ending a session stops its periodic polls,
// but background work already in flight runs to completion and its
// results are discarded unread.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*entry
}

type entry struct {
	state *State
	polls []uiloop.Handle
}

// NewManager returns an empty manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*entry)}
}

// Get returns the session's state, creating it on first use.
func (m *Manager) Get(id string) *State {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok {
		e = &entry{state: NewState(id)}
		m.sessions[id] = e
		logging.Debug("Session created", "session", id)
	}
	return e.state
}

// Track registers a periodic poll handle with the session so End can
// stop it.
func (m *Manager) Track(id string, h uiloop.Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.sessions[id]; ok {
		e.polls = append(e.polls, h)
	}
}

// End tears down a session, stopping its polls. Ending an unknown
// session is a no-op.
func (m *Manager) End(id string) {
	m.mu.Lock()
	e, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return
	}
	for _, h := range e.polls {
		h.Stop()
	}
	logging.Debug("Session ended", "session", id, "polls", len(e.polls))
}

// EndAll tears down every live session.
func (m *Manager) EndAll() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	for _, id := range ids {
		m.End(id)
	}
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
