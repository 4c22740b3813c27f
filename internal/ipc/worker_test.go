package ipc

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestServeOnceDispatchesToHandler(t *testing.T) {
	in := strings.NewReader(`{"action":"trade","private_key_base58":"` + strings.Repeat("a", 87) + `"}` + "\n")
	var out bytes.Buffer

	var gotAction Action
	err := ServeOnce(in, &out, func(cmd Command) Response {
		gotAction = cmd.Action
		return Response{Success: true, Signature: "sig123"}
	})
	if err != nil {
		t.Fatalf("ServeOnce: %v", err)
	}
	if gotAction != ActionTrade {
		t.Fatalf("handler received action %q, want %q", gotAction, ActionTrade)
	}

	var resp Response
	if err := json.Unmarshal(bytes.TrimSpace(out.Bytes()), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !resp.Success || resp.Signature != "sig123" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestServeOnceRejectsMissingKeyField(t *testing.T) {
	in := strings.NewReader(`{"action":"trade"}` + "\n")
	var out bytes.Buffer

	called := false
	err := ServeOnce(in, &out, func(cmd Command) Response {
		called = true
		return Response{Success: true}
	})
	if err != nil {
		t.Fatalf("ServeOnce should not error out, got %v", err)
	}
	if called {
		t.Fatal("handler should not be invoked for an invalid command")
	}

	var resp Response
	if err := json.Unmarshal(bytes.TrimSpace(out.Bytes()), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Success {
		t.Fatal("expected success=false for a command missing key material")
	}
}

func TestServeOnceRejectsBothKeyFields(t *testing.T) {
	in := strings.NewReader(`{"action":"trade","private_key_base58":"` + strings.Repeat("a", 87) + `","encrypted_private_key":{"iv":"x"}}` + "\n")
	var out bytes.Buffer

	err := ServeOnce(in, &out, func(cmd Command) Response {
		t.Fatal("handler should not run when both key fields are set")
		return Response{}
	})
	if err != nil {
		t.Fatalf("ServeOnce: %v", err)
	}
	var resp Response
	json.Unmarshal(bytes.TrimSpace(out.Bytes()), &resp)
	if resp.Success {
		t.Fatal("expected success=false")
	}
}

func TestServeOnceRejectsShortKey(t *testing.T) {
	in := strings.NewReader(`{"action":"trade","private_key_base58":"tooshort"}` + "\n")
	var out bytes.Buffer

	err := ServeOnce(in, &out, func(cmd Command) Response {
		t.Fatal("handler should not run for a key failing the length check")
		return Response{}
	})
	if err != nil {
		t.Fatalf("ServeOnce: %v", err)
	}
	var resp Response
	json.Unmarshal(bytes.TrimSpace(out.Bytes()), &resp)
	if resp.Success {
		t.Fatal("expected success=false")
	}
}

func TestServeOnceHandlesMalformedJSON(t *testing.T) {
	in := strings.NewReader(`not json at all` + "\n")
	var out bytes.Buffer

	err := ServeOnce(in, &out, func(cmd Command) Response {
		t.Fatal("handler should not run for malformed input")
		return Response{}
	})
	if err != nil {
		t.Fatalf("ServeOnce should always report failure via a response, got error %v", err)
	}
	var resp Response
	if uerr := json.Unmarshal(bytes.TrimSpace(out.Bytes()), &resp); uerr != nil {
		t.Fatalf("expected a valid JSON response even for malformed input: %v", uerr)
	}
	if resp.Success {
		t.Fatal("expected success=false")
	}
}

func TestServeOnceHandlesEmptyInput(t *testing.T) {
	in := strings.NewReader("")
	var out bytes.Buffer

	err := ServeOnce(in, &out, func(cmd Command) Response {
		t.Fatal("handler should not run for empty input")
		return Response{}
	})
	if err != nil {
		t.Fatalf("ServeOnce: %v", err)
	}
	var resp Response
	if uerr := json.Unmarshal(bytes.TrimSpace(out.Bytes()), &resp); uerr != nil {
		t.Fatalf("expected a valid JSON response for empty input: %v", uerr)
	}
	if resp.Success {
		t.Fatal("expected success=false")
	}
}
