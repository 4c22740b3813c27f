package cryptovault

import (
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/hkdf"

	"github.com/perpcore/agent-core/internal/svm"
	"github.com/perpcore/agent-core/pkg/helpers"
)

// productTag namespaces HKDF info strings so this client's derived keys
// never collide with another product's if the same UMK material were ever
// (incorrectly) reused.
const productTag = "PERPCORE"

// GenerateUMK returns a fresh 32-byte user master key. Callers must hold
// it only in memory and zeroise it on session expiry.
func GenerateUMK() ([32]byte, error) {
	var umk [32]byte
	b, err := helpers.GenerateSecureRandom(len(umk))
	if err != nil {
		return umk, fmt.Errorf("cryptovault: generate umk: %w", err)
	}
	copy(umk[:], b)
	return umk, nil
}

// GenerateUserSalt returns a fresh 32-byte per-user salt, persisted
// alongside the wallet record and used in DeriveSessionKey.
func GenerateUserSalt() ([32]byte, error) {
	var salt [32]byte
	b, err := helpers.GenerateSecureRandom(len(salt))
	if err != nil {
		return salt, fmt.Errorf("cryptovault: generate user salt: %w", err)
	}
	copy(salt[:], b)
	return salt, nil
}

func hkdfSHA256(secret, salt []byte, info string) ([32]byte, error) {
	var out [32]byte
	r := hkdf.New(sha256.New, secret, salt, []byte(info))
	if _, err := r.Read(out[:]); err != nil {
		return out, fmt.Errorf("cryptovault: hkdf expand: %w", err)
	}
	return out, nil
}

// DeriveSessionKey derives the AEAD key that protects a user's UMK at rest
// between unlock and use, via HKDF-SHA256 over the wallet's signature.
// info = "<PRODUCT>:SK:<purpose>".
func DeriveSessionKey(walletPubkey svm.PublicKey, signature []byte, userSalt [32]byte, purpose string) ([32]byte, error) {
	secret := make([]byte, 0, 32+len(signature))
	secret = append(secret, walletPubkey[:]...)
	secret = append(secret, signature...)
	return hkdfSHA256(secret, userSalt[:], fmt.Sprintf("%s:SK:%s", productTag, purpose))
}

// DeriveSubkey derives a purpose-scoped subkey from the UMK, via
// HKDF-SHA256 with a fixed all-zero salt. info = "<PRODUCT>:subkey:<purpose>".
func DeriveSubkey(umk [32]byte, purpose string) ([32]byte, error) {
	var zeroSalt [32]byte
	return hkdfSHA256(umk[:], zeroSalt[:], fmt.Sprintf("%s:subkey:%s", productTag, purpose))
}
