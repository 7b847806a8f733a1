package infrastructure

import (
	"sync"
)

// userSession serializes work for one (channel, user) key.
type userSession struct {
	mu   sync.Mutex
	refs int
}

// SessionManager hands out per-user locks. Entries are dropped once nobody
// holds or waits on them, so the map only grows with concurrent users.
type SessionManager struct {
	sessions map[string]*userSession
	mu       sync.Mutex
}

func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*userSession),
	}
}

// Lock blocks until the key is free and returns the matching unlock func.
func (sm *SessionManager) Lock(key string) func() {
	sm.mu.Lock()
	session, exists := sm.sessions[key]
	if !exists {
		session = &userSession{}
		sm.sessions[key] = session
	}
	session.refs++
	sm.mu.Unlock()

	session.mu.Lock()
	return func() {
		session.mu.Unlock()

		sm.mu.Lock()
		session.refs--
		if session.refs == 0 {
			delete(sm.sessions, key)
		}
		sm.mu.Unlock()
	}
}

// active returns the number of keys currently held or awaited.
func (sm *SessionManager) active() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.sessions)
}
