package services

import (
	"sync"
	"sync/atomic"
)

// SessionState is the per-process identity of the user at the keyboard.
type SessionState struct {
	mu         sync.RWMutex
	username   *string
	introduced atomic.Bool
}

func NewSessionState() *SessionState {
	return &SessionState{}
}

func (s *SessionState) CurrentUser() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.username == nil {
		return "", false
	}
	return *s.username, true
}

func (s *SessionState) SetUser(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.username = &name
}

// Introduce calls show the first time only and reports whether it did.
func (s *SessionState) Introduce(show func()) bool {
	if !s.introduced.CompareAndSwap(false, true) {
		return false
	}
	show()
	return true
}
