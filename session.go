package vault

import (
	"fmt"
	"sync"
)

// Session is the process-wide holder of the unlocked Master Key. Exactly
// one Session exists per process; callers reach it through CurrentSession
// rather than constructing their own, so every package in this module
// shares the same lock state.
type Session struct {
	mu        sync.RWMutex
	masterKey []byte // nil when locked
}

var (
	sessionOnce sync.Once
	session     *Session
)

// CurrentSession returns the process-wide Session, creating it (locked) on
// first use.
func CurrentSession() *Session {
	sessionOnce.Do(func() {
		session = &Session{}
	})
	return session
}

// Unlocked reports whether the Session currently holds a Master Key.
func (s *Session) Unlocked() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.masterKey != nil
}

// Set installs masterKey as the Session's key, cloning it so the caller's
// copy and the Session's copy can be zeroed independently.
func (s *Session) Set(masterKey []byte) error {
	if err := ValidateKey(masterKey, MasterKeySize); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.masterKey != nil {
		Zero(s.masterKey)
	}
	s.masterKey = append([]byte(nil), masterKey...)
	return nil
}

// MasterKey returns a clone of the unlocked Master Key. Callers own the
// returned slice and must Zero it when done; the Session's own copy is
// unaffected.
func (s *Session) MasterKey() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.masterKey == nil {
		return nil, NewError(ErrSessionLocked, "session.master_key", fmt.Errorf("session is locked"))
	}
	return append([]byte(nil), s.masterKey...), nil
}

// Lock zeroes and discards the held Master Key. Safe to call when already
// locked.
func (s *Session) Lock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.masterKey != nil {
		Zero(s.masterKey)
		s.masterKey = nil
	}
}
