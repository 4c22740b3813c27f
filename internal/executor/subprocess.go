package executor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mr-tron/base58"

	"github.com/perpcore/agent-core/internal/classify"
	"github.com/perpcore/agent-core/internal/ipc"
	"github.com/perpcore/agent-core/internal/svm"
)

// Subprocess is the out-of-process Executor: it spawns the
// cmd/perpcore-exec binary for every call, one-shot. Selected when the
// full client library is not loadable in the host runtime.
type Subprocess struct {
	binaryPath          string
	encryptedPrivateKey json.RawMessage
}

// NewSubprocess constructs a subprocess-backed Executor. encryptedKey is
// forwarded verbatim to the child as encrypted_private_key; the
// cmd/perpcore-exec worker has no UMK session and rejects every encrypted
// key with an error response.
func NewSubprocess(binaryPath string, encryptedKey json.RawMessage) *Subprocess {
	return &Subprocess{binaryPath: binaryPath, encryptedPrivateKey: encryptedKey}
}

func (s *Subprocess) ExecutePerp(ctx context.Context, req PerpOrderRequest) (ExecResult, error) {
	size := float64(req.SizeBase) / baseScale
	sub := req.SubID
	slippage := req.SlippageBps
	market := req.MarketIndex

	cmd := ipc.Command{
		Action:              ipc.ActionTrade,
		EncryptedPrivateKey: s.encryptedPrivateKey,
		MarketIndex:         &market,
		Side:                string(req.Side),
		SizeBase:            &size,
		SubID:               &sub,
		ReduceOnly:          req.ReduceOnly,
		SlippageBps:         &slippage,
	}
	return s.run(ctx, cmd)
}

func (s *Subprocess) ClosePerp(ctx context.Context, marketIndex uint16, subID uint16) (ExecResult, error) {
	market := marketIndex
	sub := subID
	cmd := ipc.Command{
		Action:              ipc.ActionClose,
		EncryptedPrivateKey: s.encryptedPrivateKey,
		MarketIndex:         &market,
		SubID:               &sub,
	}
	return s.run(ctx, cmd)
}

func (s *Subprocess) SettlePnL(ctx context.Context, marketIndex uint16, subID uint16) (ExecResult, error) {
	market := marketIndex
	sub := subID
	cmd := ipc.Command{
		Action:              ipc.ActionSettlePnL,
		EncryptedPrivateKey: s.encryptedPrivateKey,
		MarketIndex:         &market,
		SubID:               &sub,
	}
	return s.run(ctx, cmd)
}

func (s *Subprocess) DeleteSubaccount(ctx context.Context, subID uint16) (ExecResult, error) {
	sub := subID
	cmd := ipc.Command{
		Action:              ipc.ActionDeleteSubaccount,
		EncryptedPrivateKey: s.encryptedPrivateKey,
		SubID:               &sub,
	}
	return s.run(ctx, cmd)
}

func (s *Subprocess) run(ctx context.Context, cmd ipc.Command) (ExecResult, error) {
	resp, err := ipc.RunOnce(ctx, s.binaryPath, cmd)
	if err != nil {
		if _, ok := err.(ipc.ErrTimeout); ok {
			return ExecResult{}, classify.Timeout("subprocess executor timed out")
		}
		if invKey, ok := err.(ipc.ErrInvalidKey); ok {
			return ExecResult{}, classify.InvalidKey(invKey.Error())
		}
		return ExecResult{}, fmt.Errorf("executor: subprocess round trip: %w", err)
	}

	if !resp.Success {
		return ExecResult{}, fmt.Errorf("executor: %s", resp.Error)
	}

	var result ExecResult
	if resp.Signature != "" {
		sigBytes, err := base58.Decode(resp.Signature)
		if err != nil || len(sigBytes) != 64 {
			return ExecResult{}, fmt.Errorf("executor: malformed signature from subprocess")
		}
		var sig svm.Signature
		copy(sig[:], sigBytes)
		result.Signature = sig
	} else {
		result.NoOp = true
	}
	result.FillPrice = resp.FillPrice
	return result, nil
}
