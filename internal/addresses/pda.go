// Package addresses computes program-derived addresses and the other
// deterministic addresses the protocol relies on (associated token
// accounts, the signer PDA, per-market PDAs), plus the byte-offset
// constants for decoding the accounts those addresses point at.
package addresses

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"

	"filippo.io/edwards25519"

	"github.com/perpcore/agent-core/internal/svm"
)

// ErrNoValidPDA is returned in the astronomically unlikely case that no
// bump seed in [0, 255] yields an off-curve candidate.
var ErrNoValidPDA = errors.New("addresses: unable to find a valid program address")

const pdaMarkerSuffix = "ProgramDerivedAddress"

// isOnCurve reports whether the 32 bytes decompress to a valid ed25519
// curve point. A program-derived address must land OFF the curve, since a
// valid point would imply someone could hold its private key.
func isOnCurve(b [32]byte) bool {
	_, err := new(edwards25519.Point).SetBytes(b[:])
	return err == nil
}

// FindProgramAddress derives a PDA from the given seeds and program id,
// searching bump seeds from 255 down to 0 (the Solana convention: the
// first off-curve candidate found scanning downward is "the" canonical
// bump for these seeds).
func FindProgramAddress(seeds [][]byte, programID svm.PublicKey) (svm.PublicKey, uint8, error) {
	for bump := 255; bump >= 0; bump-- {
		candidate, err := CreateProgramAddress(seeds, []byte{byte(bump)}, programID)
		if err != nil {
			continue
		}
		return candidate, uint8(bump), nil
	}
	return svm.PublicKey{}, 0, ErrNoValidPDA
}

// CreateProgramAddress computes sha256(seeds... || extraSeed? || programID
// || "ProgramDerivedAddress") and returns it as a PublicKey if (and only
// if) the result is off the ed25519 curve. extraSeeds (typically the bump)
// are appended after the caller's seeds, matching on-chain derivation.
func CreateProgramAddress(seeds [][]byte, extraSeeds []byte, programID svm.PublicKey) (svm.PublicKey, error) {
	h := sha256.New()
	for _, s := range seeds {
		h.Write(s)
	}
	if len(extraSeeds) > 0 {
		h.Write(extraSeeds)
	}
	h.Write(programID[:])
	h.Write([]byte(pdaMarkerSuffix))

	var out [32]byte
	copy(out[:], h.Sum(nil))

	if isOnCurve(out) {
		return svm.PublicKey{}, errors.New("addresses: candidate address lies on curve")
	}
	return svm.PublicKey(out), nil
}

// U16LE little-endian-encodes a u16 seed component (e.g. a market or
// subaccount index), matching the on-chain program's seed encoding.
func U16LE(v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return b
}

// EncodeName pads an ASCII name to 32 bytes using ASCII space (0x20), the
// padding byte the referrer_name seed uses — NOT the NUL byte a naive
// implementation would reach for.
func EncodeName(name string) [32]byte {
	var out [32]byte
	for i := range out {
		out[i] = ' '
	}
	copy(out[:], name)
	return out
}
