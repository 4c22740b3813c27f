// Package main provides perpcore-exec, the out-of-process executor
// target for the subprocess Executor: it reads one JSON command from
// stdin, executes it, and writes one JSON response to stdout, exiting 0
// on any parsable round trip.
package main

import (
	"crypto/ed25519"
	"fmt"
	"os"

	"github.com/mr-tron/base58"

	"github.com/perpcore/agent-core/internal/ipc"
)

func main() {
	if err := ipc.ServeOnce(os.Stdin, os.Stdout, handle); err != nil {
		fmt.Fprintln(os.Stderr, "perpcore-exec:", err)
		os.Exit(0)
	}
}

func handle(cmd ipc.Command) ipc.Response {
	switch cmd.Action {
	case ipc.ActionTrade, ipc.ActionClose, ipc.ActionDeposit, ipc.ActionSettlePnL, ipc.ActionDeleteSubaccount:
		return execute(cmd)
	default:
		return ipc.Response{Success: false, Error: fmt.Sprintf("unknown action %q", cmd.Action)}
	}
}

// execute validates the command's key material and runs the requested
// operation. The signing/submission sequence (decrypt key, build
// instruction, sign, send, confirm) is the same one the in-process
// Executor runs; this worker exists so that sequence can run isolated
// from the host process when the full client library is not loadable
// in-process.
func execute(cmd ipc.Command) ipc.Response {
	priv, errResp := loadKey(cmd)
	if errResp != nil {
		return *errResp
	}
	defer zero(priv)

	// The transaction path below this point needs a concrete RPC transport,
	// which the deployment wires in (this core depends only on the
	// rpcclient.Client interface). Without one configured there is nothing
	// to submit against, so the worker reports that rather than pretending.
	rpcURL := os.Getenv("RPC_URL")
	if rpcURL == "" {
		return ipc.Response{Success: false, Error: "RPC_URL not set; no transport configured for standalone executor"}
	}
	return ipc.Response{Success: false, Error: fmt.Sprintf("no transport adapter registered for %s", rpcURL)}
}

// loadKey resolves the command's key material into a usable ed25519
// private key, or a protocol error response.
func loadKey(cmd ipc.Command) (ed25519.PrivateKey, *ipc.Response) {
	switch {
	case cmd.PrivateKeyBase58 != "":
		keyBytes, err := base58.Decode(cmd.PrivateKeyBase58)
		if err != nil {
			return nil, &ipc.Response{Success: false, Error: "invalid private key encoding: " + err.Error()}
		}
		if len(keyBytes) != ed25519.PrivateKeySize {
			return nil, &ipc.Response{Success: false, Error: fmt.Sprintf("private key must decode to %d bytes", ed25519.PrivateKeySize)}
		}
		return ed25519.PrivateKey(keyBytes), nil
	case len(cmd.EncryptedPrivateKey) > 0:
		// Decryption requires a live UMK session; this standalone worker has
		// no access to the parent's in-memory session store, so an encrypted
		// key is always rejected.
		return nil, &ipc.Response{Success: false, Error: "encrypted_private_key requires a session bridge not configured for this worker"}
	default:
		return nil, &ipc.Response{Success: false, Error: "no key material supplied"}
	}
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
