// Package instructions builds the raw on-chain instructions this core
// submits: Anchor-style 8-byte sha256 discriminators followed by
// little-endian, unpadded argument bytes, with account metas in the exact
// order the program expects.
package instructions

import "crypto/sha256"

// Discriminator returns the first 8 bytes of sha256("global:"+name), the
// Anchor convention for selecting an instruction's entry point.
func Discriminator(name string) [8]byte {
	sum := sha256.Sum256([]byte("global:" + name))
	var out [8]byte
	copy(out[:], sum[:8])
	return out
}
