package ipc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// Handler executes one decoded Command and produces a Response. It is
// implemented by the handle function of cmd/perpcore-exec.
type Handler func(cmd Command) Response

// ServeOnce reads exactly one JSON command line from r, dispatches it to
// handle, and writes exactly one JSON response line to w. It never
// returns an error for a malformed command — that is reported as a
// {success: false, error: ...} response, since the worker process always
// exits 0 on a parsable round trip.
func ServeOnce(r io.Reader, w io.Writer, handle Handler) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("ipc: read command: %w", err)
		}
		return writeResponse(w, Response{Success: false, Error: "no command received on stdin"})
	}

	var cmd Command
	if err := json.Unmarshal(scanner.Bytes(), &cmd); err != nil {
		return writeResponse(w, Response{Success: false, Error: fmt.Sprintf("invalid command: %v", err)})
	}

	if !cmd.HasExactlyOneKeyField() {
		return writeResponse(w, Response{Success: false, Error: "exactly one of encrypted_private_key or private_key_base58 is required"})
	}
	if cmd.PrivateKeyBase58 != "" && !KeyLengthSane(cmd.PrivateKeyBase58) {
		return writeResponse(w, Response{Success: false, Error: (ErrInvalidKey{Len: len(cmd.PrivateKeyBase58)}).Error()})
	}

	resp := handle(cmd)
	return writeResponse(w, resp)
}

func writeResponse(w io.Writer, resp Response) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("ipc: marshal response: %w", err)
	}
	payload = append(payload, '\n')
	_, err = w.Write(payload)
	return err
}
