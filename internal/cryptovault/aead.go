// Package cryptovault implements authenticated encryption of long-lived
// agent secrets and the user-master-key session lifecycle that gates
// access to them: AES-256-GCM envelopes under HKDF-derived subkeys bound
// by associated authenticated data.
package cryptovault

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/perpcore/agent-core/internal/svm"
	"github.com/perpcore/agent-core/pkg/helpers"
)

// ErrInvalidAuthTag is returned when decryption's authentication tag fails
// to verify — either the key, the ciphertext, or the AAD is wrong.
var ErrInvalidAuthTag = errors.New("cryptovault: invalid authentication tag")

const (
	nonceSize = 12
	tagSize   = 16
)

// RecordType distinguishes what kind of secret an AEAD envelope protects,
// so a ciphertext from one record can never be silently substituted for
// another even if both happen to be encrypted under related keys.
type RecordType uint8

const (
	RecordTypeUMK          RecordType = 0x01
	RecordTypeMnemonic     RecordType = 0x02
	RecordTypeAgentPrivKey RecordType = 0x03
	RecordTypeEUMKExec     RecordType = 0x04
)

// aadVersion is the only AAD format version this build produces.
const aadVersion uint32 = 1

// BuildAAD constructs the 37-byte associated authenticated data binding a
// ciphertext to a wallet, a record type, and a format version:
// u32_le(version) || u8(record_type) || wallet_pubkey(32).
func BuildAAD(wallet svm.PublicKey, recordType RecordType) []byte {
	aad := make([]byte, 0, 4+1+32)
	var v [4]byte
	binary.LittleEndian.PutUint32(v[:], aadVersion)
	aad = append(aad, v[:]...)
	aad = append(aad, byte(recordType))
	aad = append(aad, wallet[:]...)
	return aad
}

// AEADEncrypt encrypts plaintext under key (AES-256-GCM), returning
// iv(12) || tag(16) || ciphertext.
func AEADEncrypt(plaintext, key, aad []byte) ([]byte, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("cryptovault: key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cryptovault: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cryptovault: create gcm: %w", err)
	}

	nonce, err := helpers.GenerateSecureRandom(nonceSize)
	if err != nil {
		return nil, fmt.Errorf("cryptovault: generate nonce: %w", err)
	}

	// Seal appends the tag to the ciphertext; reslice into iv||tag||ct so
	// storage always sees the three logical fields in a fixed order.
	sealed := gcm.Seal(nil, nonce, plaintext, aad)
	ct := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	out := make([]byte, 0, nonceSize+tagSize+len(ct))
	out = append(out, nonce...)
	out = append(out, tag...)
	out = append(out, ct...)
	return out, nil
}

// AEADDecrypt reverses AEADEncrypt, verifying the authentication tag
// against key and aad.
func AEADDecrypt(envelope, key, aad []byte) ([]byte, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("cryptovault: key must be 32 bytes, got %d", len(key))
	}
	if len(envelope) < nonceSize+tagSize {
		return nil, fmt.Errorf("cryptovault: envelope too short (%d bytes)", len(envelope))
	}

	nonce := envelope[:nonceSize]
	tag := envelope[nonceSize : nonceSize+tagSize]
	ct := envelope[nonceSize+tagSize:]

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cryptovault: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cryptovault: create gcm: %w", err)
	}

	sealed := make([]byte, 0, len(ct)+tagSize)
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	plaintext, err := gcm.Open(nil, nonce, sealed, aad)
	if err != nil {
		return nil, ErrInvalidAuthTag
	}
	return plaintext, nil
}

// SecureClear overwrites a byte slice with zeros before it is released.
func SecureClear(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
