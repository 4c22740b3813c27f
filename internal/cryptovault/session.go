package cryptovault

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/perpcore/agent-core/internal/svm"
	"github.com/perpcore/agent-core/pkg/helpers"
)

// ErrSessionNotFound is returned when a session id is unknown or expired.
var ErrSessionNotFound = errors.New("cryptovault: session not found or expired")

// DefaultSessionTTL is the unlock-session lifetime.
const DefaultSessionTTL = 30 * time.Minute

// sessionJanitorInterval is how often expired sessions are swept and
// zeroised, independent of any single session's TTL.
const sessionJanitorInterval = 60 * time.Second

// session holds a live, decrypted UMK plus its owning wallet and expiry.
// umk is zeroised in place on eviction; callers must never retain a copy
// of the slice returned by Get beyond the call that needed it.
type session struct {
	wallet    svm.PublicKey
	umk       [32]byte
	expiresAt time.Time
}

// SessionStore holds decrypted UMKs in memory for the duration of an
// unlock session, keyed by an opaque 256-bit session id, and zeroises each
// UMK as soon as its session expires or is explicitly closed.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[[32]byte]*session

	stopOnce sync.Once
	stop     chan struct{}
}

// NewSessionStore constructs an empty SessionStore and starts its
// background janitor. Callers must call Stop when done to stop it.
func NewSessionStore() *SessionStore {
	s := &SessionStore{
		sessions: make(map[[32]byte]*session),
		stop:     make(chan struct{}),
	}
	go s.janitorLoop()
	return s
}

// Open starts a new session for wallet holding umk, returning its opaque
// session id and expiry. The caller's umk value is copied; callers should
// zeroise their own copy after this returns.
func (s *SessionStore) Open(wallet svm.PublicKey, umk [32]byte) (sessionID [32]byte, expiresAt time.Time, err error) {
	// 32 crypto/rand bytes: a fully random 256-bit opaque session id.
	idBytes, err := helpers.GenerateSecureRandom(len(sessionID))
	if err != nil {
		return sessionID, time.Time{}, fmt.Errorf("cryptovault: generate session id: %w", err)
	}
	copy(sessionID[:], idBytes)
	expiresAt = time.Now().Add(DefaultSessionTTL)

	s.mu.Lock()
	s.sessions[sessionID] = &session{
		wallet:    wallet,
		umk:       umk,
		expiresAt: expiresAt,
	}
	s.mu.Unlock()

	return sessionID, expiresAt, nil
}

// Get returns a copy of the live UMK for sessionID if it exists and has
// not expired, and the wallet it belongs to.
func (s *SessionStore) Get(sessionID [32]byte) (umk [32]byte, wallet svm.PublicKey, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return umk, wallet, ErrSessionNotFound
	}
	if time.Now().After(sess.expiresAt) {
		s.evictLocked(sessionID)
		return umk, wallet, ErrSessionNotFound
	}
	return sess.umk, sess.wallet, nil
}

// Touch extends a live session's expiry by DefaultSessionTTL from now.
func (s *SessionStore) Touch(sessionID [32]byte) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok || time.Now().After(sess.expiresAt) {
		return time.Time{}, ErrSessionNotFound
	}
	sess.expiresAt = time.Now().Add(DefaultSessionTTL)
	return sess.expiresAt, nil
}

// Close explicitly ends a session, zeroising its UMK immediately.
func (s *SessionStore) Close(sessionID [32]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked(sessionID)
}

// evictLocked zeroises and removes a session. Callers must hold s.mu.
func (s *SessionStore) evictLocked(sessionID [32]byte) {
	sess, ok := s.sessions[sessionID]
	if !ok {
		return
	}
	SecureClear(sess.umk[:])
	delete(s.sessions, sessionID)
}

func (s *SessionStore) janitorLoop() {
	ticker := time.NewTicker(sessionJanitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweepExpired()
		case <-s.stop:
			return
		}
	}
}

func (s *SessionStore) sweepExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, sess := range s.sessions {
		if now.After(sess.expiresAt) {
			SecureClear(sess.umk[:])
			delete(s.sessions, id)
		}
	}
}

// Stop stops the background janitor and zeroises every remaining
// session. Safe to call more than once.
func (s *SessionStore) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		SecureClear(sess.umk[:])
		delete(s.sessions, id)
	}
}

// Run blocks the janitor to ctx cancellation, stopping cleanly when ctx is
// done. Intended for wiring into an errgroup alongside the daemon's other
// background loops.
func (s *SessionStore) Run(ctx context.Context) {
	<-ctx.Done()
	s.Stop()
}
