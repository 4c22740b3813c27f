// Package executor implements the dual-runtime perp execution contract:
// an in-process implementation that builds and submits the order
// transaction directly, and a subprocess implementation that shells out
// via internal/ipc. Both speak the identical Executor interface so the
// orchestrator never knows which one it holds.
package executor

import (
	"context"
	"fmt"
	"math"

	"github.com/perpcore/agent-core/internal/addresses"
	"github.com/perpcore/agent-core/internal/classify"
	"github.com/perpcore/agent-core/internal/decoder"
	"github.com/perpcore/agent-core/internal/instructions"
	"github.com/perpcore/agent-core/internal/metrics"
	"github.com/perpcore/agent-core/internal/oracle"
	"github.com/perpcore/agent-core/internal/rpcclient"
	"github.com/perpcore/agent-core/internal/svm"
)

// Side is the caller-facing trade direction.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// PerpOrderRequest is the executor's single entry point input.
type PerpOrderRequest struct {
	MarketIndex uint16
	Side        Side
	SizeBase    uint64 // scaled 1e9, 0 for a close-only request
	SubID       uint16
	ReduceOnly  bool
	SlippageBps uint32
}

// ExecResult is execute_perp's outcome.
type ExecResult struct {
	Signature svm.Signature
	FillPrice *float64
	NoOp      bool // true when a close request found an already-flat position
}

// Executor is the identical contract both runtimes implement.
type Executor interface {
	ExecutePerp(ctx context.Context, req PerpOrderRequest) (ExecResult, error)
	ClosePerp(ctx context.Context, marketIndex uint16, subID uint16) (ExecResult, error)
	SettlePnL(ctx context.Context, marketIndex uint16, subID uint16) (ExecResult, error)
	DeleteSubaccount(ctx context.Context, subID uint16) (ExecResult, error)
}

// priceScale and baseScale match the protocol's fixed-point conventions:
// prices carry 1e6 of precision, base amounts 1e9.
const (
	priceScale = 1_000_000
	baseScale  = 1_000_000_000
)

// computeLimitPrice enforces slippage:
// limit = oracle_price * (1 ± slippage_bps/10000), using the higher bound
// for LONG and the lower bound for SHORT.
func computeLimitPrice(oraclePrice uint64, side Side, slippageBps uint32) uint64 {
	adj := float64(slippageBps) / 10000.0
	price := float64(oraclePrice)
	var limit float64
	if side == SideLong {
		limit = price * (1 + adj)
	} else {
		limit = price * (1 - adj)
	}
	if limit < 0 {
		limit = 0
	}
	return uint64(math.Round(limit))
}

func directionFor(side Side) instructions.Direction {
	if side == SideShort {
		return instructions.DirectionShort
	}
	return instructions.DirectionLong
}

// InProcess is the in-process Executor: it reads the oracle price, builds
// the place_perp_order instruction directly with the first-party builder,
// and submits it over rpc. Selected when the full client library is
// loadable in the host runtime.
type InProcess struct {
	rpc       rpcclient.Client
	oracles   *oracle.Resolver
	ids       addresses.ProgramIDs
	authority svm.PublicKey
	signFn    func(message []byte) svm.Signature
}

// New constructs an in-process Executor. signFn signs a serialized
// transaction message with the agent's live, decrypted key.
func New(rpc rpcclient.Client, oracles *oracle.Resolver, ids addresses.ProgramIDs, authority svm.PublicKey, signFn func([]byte) svm.Signature) *InProcess {
	return &InProcess{rpc: rpc, oracles: oracles, ids: ids, authority: authority, signFn: signFn}
}

// ExecutePerp implements Executor.
func (e *InProcess) ExecutePerp(ctx context.Context, req PerpOrderRequest) (ExecResult, error) {
	oraclePK := e.oracles.Resolve(ctx, req.MarketIndex)

	var limitPrice uint64
	oracleInfo, oracleErr := e.rpc.GetAccount(ctx, oraclePK, svm.CommitmentConfirmed)
	if oracleErr == nil && oracleInfo != nil && len(oracleInfo.Data) > 0 {
		if price, err := decoder.DecodeOraclePrice(oracleInfo.Data); err == nil {
			limitPrice = computeLimitPrice(price, req.Side, req.SlippageBps)
		}
	}
	// limitPrice stays 0 when the oracle account is unreadable or
	// unparsable; the order is submitted without a slippage bound rather
	// than blocked, so an oracle outage never halts execution.

	userPDA, _, err := addresses.UserPDA(e.ids, e.authority, req.SubID)
	if err != nil {
		return ExecResult{}, fmt.Errorf("executor: derive user pda: %w", err)
	}
	statePDA, _, err := addresses.StatePDA(e.ids)
	if err != nil {
		return ExecResult{}, fmt.Errorf("executor: derive state pda: %w", err)
	}
	perpMarketPDA, _, err := addresses.PerpMarketPDA(e.ids, req.MarketIndex)
	if err != nil {
		return ExecResult{}, fmt.Errorf("executor: derive perp market pda: %w", err)
	}

	ix := instructions.PlacePerpOrder(e.ids.Perp, instructions.PlacePerpOrderParams{
		MarketIndex:     req.MarketIndex,
		Direction:       directionFor(req.Side),
		BaseAssetAmount: req.SizeBase,
		LimitPrice:      limitPrice,
		ReduceOnly:      req.ReduceOnly,
		OrderType:       instructions.OrderTypeMarket,
	}, instructions.PlacePerpOrderAccounts{
		State:      statePDA,
		User:       userPDA,
		Authority:  e.authority,
		PerpMarket: perpMarketPDA,
		Oracle:     oraclePK,
	})

	return e.submit(ctx, ix)
}

// ClosePerp implements Executor's close semantics: read the on-chain perp
// position, derive the opposite-sign reduce-only order, and no-op if the
// position is already flat.
func (e *InProcess) ClosePerp(ctx context.Context, marketIndex uint16, subID uint16) (ExecResult, error) {
	userPDA, _, err := addresses.UserPDA(e.ids, e.authority, subID)
	if err != nil {
		return ExecResult{}, fmt.Errorf("executor: derive user pda: %w", err)
	}

	info, err := e.rpc.GetAccount(ctx, userPDA, svm.CommitmentConfirmed)
	if err != nil {
		return ExecResult{}, err
	}
	if info == nil || !addresses.IsInitializedAccount(info.Data) {
		return ExecResult{}, classify.FromProgramCode(6001, "user account not found for close")
	}

	user, err := decoder.DecodeUser(info.Data)
	if err != nil {
		return ExecResult{}, fmt.Errorf("executor: decode user: %w", err)
	}

	var base int64
	for _, pp := range user.PerpPositions {
		if pp.MarketIndex == marketIndex && pp.BaseAssetAmount != 0 {
			base = pp.BaseAssetAmount
			break
		}
	}
	if base == 0 {
		return ExecResult{NoOp: true}, nil
	}

	side := SideShort
	if base < 0 {
		side = SideLong
	}
	amount := base
	if amount < 0 {
		amount = -amount
	}

	return e.ExecutePerp(ctx, PerpOrderRequest{
		MarketIndex: marketIndex,
		Side:        side,
		SizeBase:    uint64(amount),
		SubID:       subID,
		ReduceOnly:  true,
	})
}

// SettlePnL implements Executor: it settles a subaccount's unrealized perp
// PnL into its spot collateral balance. Unlike ExecutePerp/ClosePerp this
// never reads the oracle first — settlement pricing is the program's own
// responsibility, not this core's.
func (e *InProcess) SettlePnL(ctx context.Context, marketIndex uint16, subID uint16) (ExecResult, error) {
	userPDA, _, err := addresses.UserPDA(e.ids, e.authority, subID)
	if err != nil {
		return ExecResult{}, fmt.Errorf("executor: derive user pda: %w", err)
	}
	statePDA, _, err := addresses.StatePDA(e.ids)
	if err != nil {
		return ExecResult{}, fmt.Errorf("executor: derive state pda: %w", err)
	}
	spotMarketPDA, _, err := addresses.SpotMarketPDA(e.ids, 0)
	if err != nil {
		return ExecResult{}, fmt.Errorf("executor: derive spot market pda: %w", err)
	}
	perpMarketPDA, _, err := addresses.PerpMarketPDA(e.ids, marketIndex)
	if err != nil {
		return ExecResult{}, fmt.Errorf("executor: derive perp market pda: %w", err)
	}

	ix := instructions.SettlePnl(e.ids.Perp, marketIndex, instructions.SettlePnLAccounts{
		State:      statePDA,
		User:       userPDA,
		Authority:  e.authority,
		SpotMarket: spotMarketPDA,
		PerpMarket: perpMarketPDA,
	})
	return e.submit(ctx, ix)
}

// DeleteSubaccount implements Executor: it closes an emptied subaccount's
// user and user_stats accounts, reclaiming their rent. The caller is
// responsible for confirming the subaccount carries no open position or
// balance first; the program itself is expected to reject otherwise.
func (e *InProcess) DeleteSubaccount(ctx context.Context, subID uint16) (ExecResult, error) {
	userPDA, _, err := addresses.UserPDA(e.ids, e.authority, subID)
	if err != nil {
		return ExecResult{}, fmt.Errorf("executor: derive user pda: %w", err)
	}
	userStatsPDA, _, err := addresses.UserStatsPDA(e.ids, e.authority)
	if err != nil {
		return ExecResult{}, fmt.Errorf("executor: derive user stats pda: %w", err)
	}
	statePDA, _, err := addresses.StatePDA(e.ids)
	if err != nil {
		return ExecResult{}, fmt.Errorf("executor: derive state pda: %w", err)
	}

	ix := instructions.DeleteSubaccount(e.ids.Perp, instructions.DeleteSubaccountAccounts{
		State:     statePDA,
		User:      userPDA,
		UserStats: userStatsPDA,
		Authority: e.authority,
	})
	return e.submit(ctx, ix)
}

func (e *InProcess) submit(ctx context.Context, ix svm.Instruction) (ExecResult, error) {
	metrics.InstructionsBuilt.WithLabelValues("executor").Inc()

	blockhash, lastValid, err := e.rpc.GetLatestBlockhash(ctx)
	if err != nil {
		return ExecResult{}, fmt.Errorf("executor: fetch blockhash: %w", err)
	}

	msg := serializeForSigning(ix, blockhash)
	sig := e.signFn(msg)

	raw := append(append([]byte{}, sig[:]...), msg...)
	txSig, err := e.rpc.SendRawTransaction(ctx, raw, svm.SendOptions{SkipPreflight: false, Commitment: svm.CommitmentConfirmed})
	if err != nil {
		return ExecResult{}, err
	}

	result, err := e.rpc.ConfirmTransaction(ctx, txSig, blockhash, lastValid)
	if err != nil {
		return ExecResult{}, err
	}
	if result != nil && result.Err != nil {
		metrics.TransactionsConfirmed.WithLabelValues("failed").Inc()
		if result.Err.Code != nil {
			return ExecResult{}, classify.FromProgramCode(*result.Err.Code, result.Err.Message)
		}
		return ExecResult{}, &classify.ClassifiedError{Kind: classify.KindTransactionFailed, Detail: result.Err.Message}
	}

	metrics.TransactionsConfirmed.WithLabelValues("success").Inc()
	return ExecResult{Signature: txSig}, nil
}

// serializeForSigning is a placeholder wire-message builder: production
// transaction serialization (compact-array account/instruction encoding)
// lives in the transport layer outside this core; this core builds the
// Instruction tuple and hands it to that layer.
func serializeForSigning(ix svm.Instruction, blockhash svm.Blockhash) []byte {
	buf := make([]byte, 0, len(ix.Data)+32+32*len(ix.Accounts))
	buf = append(buf, blockhash[:]...)
	buf = append(buf, ix.ProgramID[:]...)
	for _, a := range ix.Accounts {
		buf = append(buf, a.PublicKey[:]...)
	}
	buf = append(buf, ix.Data...)
	return buf
}
