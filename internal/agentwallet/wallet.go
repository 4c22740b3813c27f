// Package agentwallet generates and stores the agent's own signing key:
// the hot key this core uses to act on a user's behalf, distinct from the
// end-user's own wallet. Keys derive from a BIP39 mnemonic along
// m/44'/501'/0'/0' with hdkeychain (every segment hardened, since ed25519
// key material cannot support non-hardened child derivation), taking the
// node's 32-byte private scalar as the ed25519 secret seed.
package agentwallet

import (
	"crypto/ed25519"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/tyler-smith/go-bip39"

	"github.com/perpcore/agent-core/internal/cryptovault"
	"github.com/perpcore/agent-core/internal/svm"
	"github.com/perpcore/agent-core/pkg/helpers"
)

// derivation path segments for m/44'/501'/0'/0' — BIP44 purpose 44,
// Solana's registered coin type 501, account 0, change 0.
const (
	purpose  = 44
	coinType = 501
	account  = 0
	change   = 0
)

// KeyPair is a derived agent signing key: the ed25519 public/secret pair
// plus the mnemonic's derivation index it came from.
type KeyPair struct {
	PublicKey       svm.PublicKey
	PrivateKey      ed25519.PrivateKey
	DerivationIndex uint32
}

// GenerateMnemonic returns a fresh 24-word BIP39 mnemonic from 256 bits of
// entropy.
func GenerateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", fmt.Errorf("agentwallet: generate entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("agentwallet: generate mnemonic: %w", err)
	}
	return mnemonic, nil
}

// ValidateMnemonic reports whether mnemonic is a well-formed BIP39 phrase.
func ValidateMnemonic(mnemonic string) bool {
	return bip39.IsMnemonicValid(mnemonic)
}

// DeriveKeyPair derives the agent's ed25519 keypair from a BIP39 mnemonic
// (with optional passphrase) along m/44'/501'/0'/0'.
func DeriveKeyPair(mnemonic, passphrase string) (KeyPair, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return KeyPair{}, fmt.Errorf("agentwallet: invalid mnemonic")
	}
	seed := bip39.NewSeed(mnemonic, passphrase)
	return deriveFromSeed(seed)
}

func deriveFromSeed(seed []byte) (KeyPair, error) {
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return KeyPair{}, fmt.Errorf("agentwallet: create master key: %w", err)
	}

	node := master
	for _, segment := range []uint32{purpose, coinType, account, change} {
		node, err = node.Derive(hdkeychain.HardenedKeyStart + segment)
		if err != nil {
			return KeyPair{}, fmt.Errorf("agentwallet: derive path segment %d: %w", segment, err)
		}
	}

	ecPriv, err := node.ECPrivKey()
	if err != nil {
		return KeyPair{}, fmt.Errorf("agentwallet: extract private scalar: %w", err)
	}

	seedBytes := ecPriv.Serialize() // 32 bytes, big-endian scalar
	ed25519Priv := ed25519.NewKeyFromSeed(seedBytes)
	ed25519Pub := ed25519Priv.Public().(ed25519.PublicKey)

	pk, err := svm.PublicKeyFromBytes(ed25519Pub)
	if err != nil {
		return KeyPair{}, fmt.Errorf("agentwallet: build public key: %w", err)
	}

	return KeyPair{
		PublicKey:       pk,
		PrivateKey:      ed25519Priv,
		DerivationIndex: account,
	}, nil
}

// Encrypt envelopes kp's private key under UMK-derived subkey
// "agent_privkey", bound by AAD to RecordTypeAgentPrivKey and the agent's
// own public address.
func Encrypt(kp KeyPair, umk [32]byte) ([]byte, error) {
	subkey, err := cryptovault.DeriveSubkey(umk, "agent_privkey")
	if err != nil {
		return nil, err
	}
	defer cryptovault.SecureClear(subkey[:])

	aad := cryptovault.BuildAAD(kp.PublicKey, cryptovault.RecordTypeAgentPrivKey)
	return cryptovault.AEADEncrypt(kp.PrivateKey, subkey[:], aad)
}

// Decrypt reverses Encrypt, requiring a live UMK session's key material and
// the agent's known public address to reconstruct the AAD.
func Decrypt(envelope []byte, umk [32]byte, agentPublicKey svm.PublicKey) (ed25519.PrivateKey, error) {
	subkey, err := cryptovault.DeriveSubkey(umk, "agent_privkey")
	if err != nil {
		return nil, err
	}
	defer cryptovault.SecureClear(subkey[:])

	aad := cryptovault.BuildAAD(agentPublicKey, cryptovault.RecordTypeAgentPrivKey)
	plaintext, err := cryptovault.AEADDecrypt(envelope, subkey[:], aad)
	if err != nil {
		return nil, err
	}
	if len(plaintext) != ed25519.PrivateKeySize {
		cryptovault.SecureClear(plaintext)
		return nil, fmt.Errorf("agentwallet: decrypted key has wrong length (%d bytes)", len(plaintext))
	}

	priv := ed25519.PrivateKey(plaintext)
	derivedPub := priv.Public().(ed25519.PublicKey)
	if !helpers.ConstantTimeCompare(derivedPub, agentPublicKey[:]) {
		cryptovault.SecureClear(plaintext)
		return nil, fmt.Errorf("agentwallet: decrypted key's public point does not match the recorded agent address")
	}
	return priv, nil
}
