package cryptovault

import (
	"bytes"
	"testing"

	"github.com/perpcore/agent-core/internal/svm"
)

func TestDeriveSubkeyDeterministic(t *testing.T) {
	var umk [32]byte
	for i := range umk {
		umk[i] = byte(i + 1)
	}

	a, err := DeriveSubkey(umk, "agent_privkey")
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	b, err := DeriveSubkey(umk, "agent_privkey")
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if a != b {
		t.Fatal("DeriveSubkey must be deterministic for the same umk+purpose")
	}

	c, err := DeriveSubkey(umk, "other_purpose")
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if a == c {
		t.Fatal("DeriveSubkey must differ across purposes")
	}
}

func TestDeriveSessionKeyBoundToWalletAndSalt(t *testing.T) {
	wallet := svm.PublicKey{1, 2, 3}
	sig := []byte("a-signature-over-the-challenge-message")
	var salt1, salt2 [32]byte
	salt2[0] = 1

	k1, err := DeriveSessionKey(wallet, sig, salt1, "unlock")
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	k2, err := DeriveSessionKey(wallet, sig, salt2, "unlock")
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if bytes.Equal(k1[:], k2[:]) {
		t.Fatal("session key must depend on user salt")
	}

	otherWallet := svm.PublicKey{9, 9, 9}
	k3, err := DeriveSessionKey(otherWallet, sig, salt1, "unlock")
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if bytes.Equal(k1[:], k3[:]) {
		t.Fatal("session key must depend on wallet")
	}
}

func TestGenerateUMKAndSaltAreRandomAndSized(t *testing.T) {
	umk1, err := GenerateUMK()
	if err != nil {
		t.Fatalf("generate umk: %v", err)
	}
	umk2, err := GenerateUMK()
	if err != nil {
		t.Fatalf("generate umk: %v", err)
	}
	if umk1 == umk2 {
		t.Fatal("two generated UMKs collided, randomness is broken")
	}

	salt, err := GenerateUserSalt()
	if err != nil {
		t.Fatalf("generate salt: %v", err)
	}
	var zero [32]byte
	if salt == zero {
		t.Fatal("generated salt should not be all-zero")
	}
}
