package cryptovault

import (
	"testing"
	"time"

	"github.com/perpcore/agent-core/internal/svm"
)

func TestSessionOpenGetClose(t *testing.T) {
	s := NewSessionStore()
	defer s.Stop()

	wallet := svm.PublicKey{1, 2, 3}
	var umk [32]byte
	for i := range umk {
		umk[i] = byte(i + 1)
	}

	id, expiresAt, err := s.Open(wallet, umk)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !expiresAt.After(time.Now()) {
		t.Fatal("expiry should be in the future")
	}

	gotUMK, gotWallet, err := s.Get(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if gotUMK != umk {
		t.Fatal("session returned a different UMK than was opened")
	}
	if gotWallet != wallet {
		t.Fatal("session returned a different wallet than was opened")
	}

	s.Close(id)
	if _, _, err := s.Get(id); err != ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound after close, got %v", err)
	}
}

func TestSessionGetUnknownFails(t *testing.T) {
	s := NewSessionStore()
	defer s.Stop()

	var id [32]byte
	if _, _, err := s.Get(id); err != ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSessionTouchExtendsExpiry(t *testing.T) {
	s := NewSessionStore()
	defer s.Stop()

	id, firstExpiry, err := s.Open(svm.PublicKey{}, [32]byte{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	time.Sleep(2 * time.Millisecond)
	newExpiry, err := s.Touch(id)
	if err != nil {
		t.Fatalf("touch: %v", err)
	}
	if !newExpiry.After(firstExpiry) {
		t.Fatal("touch should push the expiry further into the future")
	}
}

func TestSessionTouchUnknownFails(t *testing.T) {
	s := NewSessionStore()
	defer s.Stop()

	var id [32]byte
	if _, err := s.Touch(id); err != ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSessionStopZeroisesOutstandingSessions(t *testing.T) {
	s := NewSessionStore()
	var umk [32]byte
	umk[0] = 0xFF

	id, _, err := s.Open(svm.PublicKey{}, umk)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	s.Stop()
	if _, _, err := s.Get(id); err != ErrSessionNotFound {
		t.Fatalf("expected session to be gone after Stop, got %v", err)
	}

	// Stop must be idempotent.
	s.Stop()
}
