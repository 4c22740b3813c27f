package cryptovault

import (
	"crypto/ed25519"
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/perpcore/agent-core/internal/svm"
	"github.com/perpcore/agent-core/pkg/helpers"
)

// ErrInvalidOrUsed is returned when a nonce has already been consumed, has
// expired, or was never issued.
var ErrInvalidOrUsed = errors.New("cryptovault: nonce invalid or already used")

// ErrRateLimited is returned by high-risk operations (mnemonic reveal) once
// the rolling quota is exhausted.
type ErrRateLimited struct {
	RetryAfterMS int64
}

func (e *ErrRateLimited) Error() string {
	return fmt.Sprintf("cryptovault: rate limited, retry after %dms", e.RetryAfterMS)
}

// DefaultNonceTTL and HighRiskNonceTTL are the default and
// high-risk-purpose challenge lifetimes.
const (
	DefaultNonceTTL       = 5 * time.Minute
	HighRiskNonceTTL      = 2 * time.Minute
	MnemonicRevealPurpose = "mnemonic_reveal"
)

// highRiskPurposes get the shorter TTL.
var highRiskPurposes = map[string]bool{
	MnemonicRevealPurpose: true,
}

func ttlFor(purpose string) time.Duration {
	if highRiskPurposes[purpose] {
		return HighRiskNonceTTL
	}
	return DefaultNonceTTL
}

type nonceRecord struct {
	wallet    svm.PublicKey
	purpose   string
	plain     [32]byte
	expiresAt time.Time
	usedAt    *time.Time
}

// NonceStore issues and consumes single-use challenge nonces, and applies a
// rolling rate limit to high-risk disclosure purposes.
type NonceStore struct {
	mu      sync.Mutex
	byHash  map[[32]byte]*nonceRecord
	reveals map[svm.PublicKey][]time.Time
}

// NewNonceStore returns an empty NonceStore.
func NewNonceStore() *NonceStore {
	return &NonceStore{
		byHash:  make(map[[32]byte]*nonceRecord),
		reveals: make(map[svm.PublicKey][]time.Time),
	}
}

// IssueNonce generates a fresh nonce for a wallet+purpose, returning the
// plaintext nonce, the canonical message the wallet must sign, and the
// nonce's expiry.
func (s *NonceStore) IssueNonce(wallet svm.PublicKey, purpose string) (noncePlain [32]byte, messageToSign []byte, expiresAt time.Time, err error) {
	b, err := helpers.GenerateSecureRandom(len(noncePlain))
	if err != nil {
		return noncePlain, nil, time.Time{}, fmt.Errorf("cryptovault: generate nonce: %w", err)
	}
	copy(noncePlain[:], b)
	expiresAt = time.Now().Add(ttlFor(purpose))
	messageToSign = canonicalMessage(wallet, purpose, noncePlain)
	hash := sha256.Sum256(noncePlain[:])

	s.mu.Lock()
	s.byHash[hash] = &nonceRecord{
		wallet:    wallet,
		purpose:   purpose,
		plain:     noncePlain,
		expiresAt: expiresAt,
	}
	s.mu.Unlock()

	return noncePlain, messageToSign, expiresAt, nil
}

func canonicalMessage(wallet svm.PublicKey, purpose string, nonce [32]byte) []byte {
	msg := make([]byte, 0, len(productTag)+1+32+1+len(purpose)+1+32)
	msg = append(msg, []byte(productTag)...)
	msg = append(msg, ':')
	msg = append(msg, wallet[:]...)
	msg = append(msg, ':')
	msg = append(msg, []byte(purpose)...)
	msg = append(msg, ':')
	msg = append(msg, nonce[:]...)
	return msg
}

// ConsumeNonce atomically marks a nonce used-by-hash, failing if it is
// unknown, expired, or already used.
func (s *NonceStore) ConsumeNonce(hash [32]byte, wallet svm.PublicKey, purpose string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byHash[hash]
	if !ok {
		return ErrInvalidOrUsed
	}
	if rec.usedAt != nil {
		return ErrInvalidOrUsed
	}
	if rec.wallet != wallet || rec.purpose != purpose {
		return ErrInvalidOrUsed
	}
	if time.Now().After(rec.expiresAt) {
		return ErrInvalidOrUsed
	}
	now := time.Now()
	rec.usedAt = &now
	return nil
}

// VerifySignatureAndConsume reconstructs the canonical challenge message for
// (wallet, purpose, nonce), verifies signature against it with the
// wallet's ed25519 public key, and only then consumes the nonce.
func (s *NonceStore) VerifySignatureAndConsume(wallet svm.PublicKey, purpose string, nonce [32]byte, signature []byte) error {
	msg := canonicalMessage(wallet, purpose, nonce)
	if !ed25519.Verify(wallet[:], msg, signature) {
		return errors.New("cryptovault: signature verification failed")
	}
	hash := sha256.Sum256(nonce[:])
	return s.ConsumeNonce(hash, wallet, purpose)
}

// CheckRevealRateLimit enforces "at most 3 per rolling 60 min per wallet"
// for high-risk disclosure (e.g. mnemonic reveal). It records this attempt
// as consuming a slot only when it succeeds.
func (s *NonceStore) CheckRevealRateLimit(wallet svm.PublicKey) error {
	const (
		maxReveals = 3
		window     = 60 * time.Minute
	)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-window)

	history := s.reveals[wallet]
	kept := history[:0]
	for _, t := range history {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= maxReveals {
		oldest := kept[0]
		retryAfter := oldest.Add(window).Sub(now)
		s.reveals[wallet] = kept
		return &ErrRateLimited{RetryAfterMS: retryAfter.Milliseconds()}
	}

	kept = append(kept, now)
	s.reveals[wallet] = kept
	return nil
}
