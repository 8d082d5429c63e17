package vault

import (
	"bytes"
	"testing"
)

func TestSessionSetUnlockLock(t *testing.T) {
	s := CurrentSession()
	s.Lock()
	t.Cleanup(s.Lock)

	if s.Unlocked() {
		t.Fatal("session should not be unlocked right after Lock")
	}

	mk := testMasterKey(t)
	if err := s.Set(mk); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !s.Unlocked() {
		t.Fatal("session should report unlocked after Set")
	}

	got, err := s.MasterKey()
	if err != nil {
		t.Fatalf("MasterKey: %v", err)
	}
	if !bytes.Equal(got, mk) {
		t.Fatal("MasterKey returned a different key than was Set")
	}

	s.Lock()
	if s.Unlocked() {
		t.Fatal("session should report locked after Lock")
	}
	if _, err := s.MasterKey(); !Is(err, ErrSessionLocked) {
		t.Fatalf("expected ErrSessionLocked, got %v", err)
	}
}

func TestSessionMasterKeyIsIndependentCopy(t *testing.T) {
	s := CurrentSession()
	t.Cleanup(s.Lock)

	mk := testMasterKey(t)
	if err := s.Set(mk); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := s.MasterKey()
	if err != nil {
		t.Fatalf("MasterKey: %v", err)
	}
	Zero(got)

	again, err := s.MasterKey()
	if err != nil {
		t.Fatalf("MasterKey: %v", err)
	}
	if !bytes.Equal(again, mk) {
		t.Fatal("zeroing a returned clone affected the session's own copy")
	}
}
