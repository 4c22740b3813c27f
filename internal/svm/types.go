// Package svm defines the primitive wire types shared by every layer of the
// protocol client core: public keys, signatures, account metadata, and the
// instruction/account-info shapes the RPC transport and the instruction
// builder both speak.
package svm

import (
	"encoding/base64"
	"fmt"

	"github.com/mr-tron/base58"
)

// PublicKey is a 32-byte ed25519-curve address (or, for a PDA, an off-curve
// point with no known private key).
type PublicKey [32]byte

// ZeroPublicKey is the all-zero address used as a sentinel for "unset".
var ZeroPublicKey PublicKey

// String renders the key as base58, the canonical text form on this chain.
func (p PublicKey) String() string {
	return base58.Encode(p[:])
}

// IsZero reports whether p is the all-zero sentinel.
func (p PublicKey) IsZero() bool {
	return p == ZeroPublicKey
}

// PublicKeyFromBase58 decodes a base58-encoded 32-byte address.
func PublicKeyFromBase58(s string) (PublicKey, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return PublicKey{}, fmt.Errorf("decode base58 address: %w", err)
	}
	if len(b) != 32 {
		return PublicKey{}, fmt.Errorf("address %q decodes to %d bytes, want 32", s, len(b))
	}
	var pk PublicKey
	copy(pk[:], b)
	return pk, nil
}

// PublicKeyFromBytes copies a 32-byte slice into a PublicKey.
func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	if len(b) != 32 {
		return PublicKey{}, fmt.Errorf("public key must be 32 bytes, got %d", len(b))
	}
	var pk PublicKey
	copy(pk[:], b)
	return pk, nil
}

// Signature is a 64-byte ed25519 signature, also used as the on-chain
// transaction identifier.
type Signature [64]byte

func (s Signature) String() string {
	return base58.Encode(s[:])
}

// Blockhash is a 32-byte recent blockhash used to bound transaction validity.
type Blockhash [32]byte

func (b Blockhash) String() string {
	return base58.Encode(b[:])
}

// Commitment selects the confirmation level an RPC read is made against.
type Commitment string

const (
	CommitmentProcessed Commitment = "processed"
	CommitmentConfirmed Commitment = "confirmed"
	CommitmentFinalized Commitment = "finalized"
)

// AccountMeta describes one account reference within an instruction, in the
// exact order the on-chain program expects to receive it.
type AccountMeta struct {
	PublicKey  PublicKey
	IsSigner   bool
	IsWritable bool
}

// Signer(pubkey) / Writable(pubkey) / ReadOnly(pubkey) are small constructors
// used by the instruction builder to keep account lists declarative.
func Signer(pk PublicKey, writable bool) AccountMeta {
	return AccountMeta{PublicKey: pk, IsSigner: true, IsWritable: writable}
}

func Writable(pk PublicKey) AccountMeta {
	return AccountMeta{PublicKey: pk, IsWritable: true}
}

func ReadOnly(pk PublicKey) AccountMeta {
	return AccountMeta{PublicKey: pk}
}

// Instruction is the fully-built tuple the orchestrator composes into a
// transaction and the decoder's mirror image reads back from chain.
type Instruction struct {
	ProgramID PublicKey
	Accounts  []AccountMeta
	Data      []byte
}

// AccountInfo is what the RPC transport returns for a single account.
type AccountInfo struct {
	Lamports   uint64
	Owner      PublicKey
	Data       []byte
	Executable bool
	RentEpoch  uint64
}

// Base64Data renders Data as base64, the wire encoding RPC JSON uses.
func (a *AccountInfo) Base64Data() string {
	if a == nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(a.Data)
}

// SendOptions controls how a raw transaction is submitted.
type SendOptions struct {
	SkipPreflight bool
	Commitment    Commitment
}

// ConfirmResult is the outcome of waiting for a submitted transaction to land.
type ConfirmResult struct {
	Err  *TransactionError
	Slot uint64
}

// TransactionError carries the raw program/validator error surfaced by
// confirmation, before classification (see internal/classify).
type TransactionError struct {
	// InstructionIndex is the index of the instruction that failed, or -1
	// if the error is not instruction-scoped.
	InstructionIndex int
	// Code is the program-defined custom error code, if the failure was a
	// program-level revert (e.g. 6010 for InsufficientCollateral).
	Code *uint32
	// Message is the raw, unclassified error string from the RPC response.
	Message string
}

func (e *TransactionError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != nil {
		return fmt.Sprintf("instruction %d failed with code %d: %s", e.InstructionIndex, *e.Code, e.Message)
	}
	return fmt.Sprintf("instruction %d failed: %s", e.InstructionIndex, e.Message)
}
