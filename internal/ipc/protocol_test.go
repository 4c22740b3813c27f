package ipc

import (
	"encoding/json"
	"testing"
)

func TestHasExactlyOneKeyField(t *testing.T) {
	cases := []struct {
		name string
		cmd  Command
		want bool
	}{
		{"neither", Command{}, false},
		{"plain only", Command{PrivateKeyBase58: "abc"}, true},
		{"encrypted only", Command{EncryptedPrivateKey: json.RawMessage(`{"a":1}`)}, true},
		{"both", Command{PrivateKeyBase58: "abc", EncryptedPrivateKey: json.RawMessage(`{"a":1}`)}, false},
	}
	for _, c := range cases {
		if got := c.cmd.HasExactlyOneKeyField(); got != c.want {
			t.Errorf("%s: got %v, want %v", c.name, got, c.want)
		}
	}
}

func TestKeyLengthSane(t *testing.T) {
	tooShort := "short"
	justRight := make([]byte, 87)
	for i := range justRight {
		justRight[i] = 'a'
	}
	tooLong := make([]byte, 200)
	for i := range tooLong {
		tooLong[i] = 'a'
	}

	if KeyLengthSane(tooShort) {
		t.Error("too-short key should not be sane")
	}
	if !KeyLengthSane(string(justRight)) {
		t.Error("87-char key should be sane")
	}
	if KeyLengthSane(string(tooLong)) {
		t.Error("too-long key should not be sane")
	}
}
