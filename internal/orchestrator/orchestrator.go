// Package orchestrator composes the address/instruction/oracle/decoder
// layers into caller-level operations (deposit, withdraw, open, close,
// transfer, close-subaccount): an idempotent init step whose known race
// is swallowed, followed by the caller's actual operation.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/perpcore/agent-core/internal/addresses"
	"github.com/perpcore/agent-core/internal/classify"
	"github.com/perpcore/agent-core/internal/config"
	"github.com/perpcore/agent-core/internal/executor"
	"github.com/perpcore/agent-core/internal/instructions"
	"github.com/perpcore/agent-core/internal/metrics"
	"github.com/perpcore/agent-core/internal/oracle"
	"github.com/perpcore/agent-core/internal/reconciler"
	"github.com/perpcore/agent-core/internal/rpcclient"
	"github.com/perpcore/agent-core/internal/store"
	"github.com/perpcore/agent-core/internal/svm"
)

// lamportsPerSOL converts whole SOL into lamports, the native unit
// GetBalance returns.
const lamportsPerSOL = 1_000_000_000

// postInitSettleDelay defeats observed RPC read-after-write lag between
// an initialization transaction landing and the first subsequent read.
const postInitSettleDelay = 2 * time.Second

// Result is the orchestrator's discriminated outcome: exactly one of Ok
// or Err is set.
type Result struct {
	Ok  *svm.Signature
	Err *classify.ClassifiedError
}

func ok(sig svm.Signature) Result               { return Result{Ok: &sig} }
func failed(e *classify.ClassifiedError) Result { return Result{Err: e} }

// Orchestrator wires together the components a caller-level operation
// needs; it holds no secret material itself, delegating signing to the
// Executor it was constructed with.
type Orchestrator struct {
	rpc       rpcclient.Client
	ids       addresses.ProgramIDs
	oracles   *oracle.Resolver
	exec      executor.Executor
	reconcile *reconciler.Reconciler
	st        store.Store
	cfg       config.Config

	authority svm.PublicKey
	payer     svm.PublicKey
	signFn    func(message []byte) svm.Signature
}

// New constructs an Orchestrator for one agent authority.
func New(
	rpc rpcclient.Client,
	ids addresses.ProgramIDs,
	oracles *oracle.Resolver,
	exec executor.Executor,
	reconcile *reconciler.Reconciler,
	st store.Store,
	cfg config.Config,
	authority svm.PublicKey,
	payer svm.PublicKey,
	signFn func([]byte) svm.Signature,
) *Orchestrator {
	return &Orchestrator{
		rpc: rpc, ids: ids, oracles: oracles, exec: exec, reconcile: reconcile,
		st: st, cfg: cfg, authority: authority, payer: payer, signFn: signFn,
	}
}

// EnsureFeeFloor verifies the agent's SOL balance covers the configured
// fee floor, requesting one devnet airdrop if short, or surfacing
// InsufficientGas on mainnet.
func (o *Orchestrator) EnsureFeeFloor(ctx context.Context) error {
	balanceLamports, err := o.rpc.GetBalance(ctx, o.authority)
	if err != nil {
		return fmt.Errorf("orchestrator: get balance: %w", err)
	}
	floorLamports := uint64(o.cfg.MinSOLForFees * lamportsPerSOL)
	if balanceLamports >= floorLamports {
		return nil
	}

	if o.cfg.Env != config.EnvDevnet {
		return classify.InsufficientGas(fmt.Sprintf("agent balance %d lamports below floor %d", balanceLamports, floorLamports))
	}

	airdropLamports := uint64(o.cfg.AirdropAmount * lamportsPerSOL)
	if _, err := o.rpc.RequestAirdrop(ctx, o.authority, airdropLamports); err != nil {
		return classify.InsufficientGas(fmt.Sprintf("devnet airdrop failed: %v", err))
	}
	return nil
}

// EnsureUserInitialized sends an idempotent initialize_user_stats +
// initialize_user transaction for sub_id if it is not already live
// on-chain, treating AccountAlreadyInitialized (6214) as success.
func (o *Orchestrator) EnsureUserInitialized(ctx context.Context, subID uint16, name [32]byte, referrer *instructions.ReferrerAccounts) (bool, error) {
	userPDA, _, err := addresses.UserPDA(o.ids, o.authority, subID)
	if err != nil {
		return false, err
	}
	info, err := o.rpc.GetAccount(ctx, userPDA, svm.CommitmentConfirmed)
	if err == nil && info != nil && addresses.IsInitializedAccount(info.Data) {
		return false, nil
	}

	statePDA, _, err := addresses.StatePDA(o.ids)
	if err != nil {
		return false, err
	}
	userStatsPDA, _, err := addresses.UserStatsPDA(o.ids, o.authority)
	if err != nil {
		return false, err
	}

	acc := instructions.Accounts{
		State:         statePDA,
		Authority:     o.authority,
		Payer:         o.payer,
		RentSysvar:    addresses.RentSysvarID(),
		SystemProgram: addresses.SystemProgramID(),
	}

	var ixs []svm.Instruction
	statsInfo, err := o.rpc.GetAccount(ctx, userStatsPDA, svm.CommitmentConfirmed)
	if err != nil || statsInfo == nil || !addresses.IsInitializedAccount(statsInfo.Data) {
		ixs = append(ixs, instructions.InitializeUserStats(o.ids.Perp, userStatsPDA, acc))
	}
	ixs = append(ixs, instructions.InitializeUser(o.ids.Perp, userPDA, userStatsPDA, subID, name, acc, referrer))

	blockhash, lastValid, err := o.rpc.GetLatestBlockhash(ctx)
	if err != nil {
		return false, fmt.Errorf("orchestrator: fetch blockhash: %w", err)
	}

	msg := serializeInstructions(ixs, blockhash)
	sig := o.signFn(msg)
	raw := append(append([]byte{}, sig[:]...), msg...)

	txSig, err := o.rpc.SendRawTransaction(ctx, raw, svm.SendOptions{SkipPreflight: true, Commitment: svm.CommitmentConfirmed})
	if err != nil {
		return false, err
	}

	result, err := o.rpc.ConfirmTransaction(ctx, txSig, blockhash, lastValid)
	if err != nil {
		return false, err
	}
	if result != nil && result.Err != nil {
		if result.Err.Code != nil && *result.Err.Code == 6214 {
			return true, nil
		}
		if result.Err.Code != nil {
			return false, classify.FromProgramCode(*result.Err.Code, result.Err.Message)
		}
		return false, &classify.ClassifiedError{Kind: classify.KindTransactionFailed, Detail: result.Err.Message}
	}

	select {
	case <-time.After(postInitSettleDelay):
	case <-ctx.Done():
		return false, classify.Cancelled("context cancelled during post-init settle delay")
	}
	return false, nil
}

// Deposit implements the deposit caller-level operation end to end.
func (o *Orchestrator) Deposit(ctx context.Context, subID uint16, marketIndex uint16, amount uint64, userTokenAccount svm.PublicKey, botID string, name [32]byte, referrer *instructions.ReferrerAccounts) Result {
	if err := o.EnsureFeeFloor(ctx); err != nil {
		return failed(classifyOrWrap(err))
	}
	if _, err := o.EnsureUserInitialized(ctx, subID, name, referrer); err != nil {
		return failed(classifyOrWrap(err))
	}

	oraclePK := o.oracles.Resolve(ctx, marketIndex)

	userPDA, _, err := addresses.UserPDA(o.ids, o.authority, subID)
	if err != nil {
		return failed(classifyOrWrap(err))
	}
	userStatsPDA, _, err := addresses.UserStatsPDA(o.ids, o.authority)
	if err != nil {
		return failed(classifyOrWrap(err))
	}
	statePDA, _, err := addresses.StatePDA(o.ids)
	if err != nil {
		return failed(classifyOrWrap(err))
	}
	spotMarketPDA, _, err := addresses.SpotMarketPDA(o.ids, marketIndex)
	if err != nil {
		return failed(classifyOrWrap(err))
	}
	vaultPDA, _, err := addresses.SpotMarketVaultPDA(o.ids, marketIndex)
	if err != nil {
		return failed(classifyOrWrap(err))
	}

	ix := instructions.Deposit(o.ids.Perp, marketIndex, amount, false,
		instructions.Accounts{State: statePDA, Authority: o.authority, TokenProgram: o.ids.TokenProgram},
		instructions.DepositAccounts{
			User: userPDA, UserStats: userStatsPDA, SpotMarketVault: vaultPDA,
			UserTokenAccount: userTokenAccount, Oracle: oraclePK, SpotMarket: spotMarketPDA,
		})

	res := o.submit(ctx, []svm.Instruction{ix}, false)
	if res.Err != nil {
		return res
	}

	o.recordEquityEvent(ctx, botID, marketIndex, decimal.NewFromInt(int64(amount)), "deposit", res.Ok.String())
	return res
}

// Withdraw implements the withdraw caller-level operation end to end.
func (o *Orchestrator) Withdraw(ctx context.Context, subID uint16, marketIndex uint16, amount uint64, userTokenAccount svm.PublicKey, botID string) Result {
	if err := o.EnsureFeeFloor(ctx); err != nil {
		return failed(classifyOrWrap(err))
	}

	oraclePK := o.oracles.Resolve(ctx, marketIndex)

	userPDA, _, err := addresses.UserPDA(o.ids, o.authority, subID)
	if err != nil {
		return failed(classifyOrWrap(err))
	}
	userStatsPDA, _, err := addresses.UserStatsPDA(o.ids, o.authority)
	if err != nil {
		return failed(classifyOrWrap(err))
	}
	statePDA, _, err := addresses.StatePDA(o.ids)
	if err != nil {
		return failed(classifyOrWrap(err))
	}
	spotMarketPDA, _, err := addresses.SpotMarketPDA(o.ids, marketIndex)
	if err != nil {
		return failed(classifyOrWrap(err))
	}
	vaultPDA, _, err := addresses.SpotMarketVaultPDA(o.ids, marketIndex)
	if err != nil {
		return failed(classifyOrWrap(err))
	}
	signerPDA, _, err := addresses.SignerPDA(o.ids)
	if err != nil {
		return failed(classifyOrWrap(err))
	}

	ix := instructions.Withdraw(o.ids.Perp, marketIndex, amount, false,
		instructions.Accounts{State: statePDA, Authority: o.authority, TokenProgram: o.ids.TokenProgram, DriftSignerPDA: signerPDA},
		instructions.DepositAccounts{
			User: userPDA, UserStats: userStatsPDA, SpotMarketVault: vaultPDA,
			UserTokenAccount: userTokenAccount, Oracle: oraclePK, SpotMarket: spotMarketPDA,
		})

	res := o.submit(ctx, []svm.Instruction{ix}, false)
	if res.Err != nil {
		return res
	}

	o.recordEquityEvent(ctx, botID, marketIndex, decimal.NewFromInt(int64(amount)).Neg(), "withdraw", res.Ok.String())
	return res
}

// Open delegates trade execution to the injected Executor, then
// reconciles the local ledger on success.
func (o *Orchestrator) Open(ctx context.Context, req executor.PerpOrderRequest, botID string, fillPrice decimal.Decimal, fee decimal.Decimal) Result {
	result, err := o.exec.ExecutePerp(ctx, req)
	if err != nil {
		return failed(classifyOrWrap(err))
	}
	if result.NoOp {
		return Result{Ok: &svm.Signature{}}
	}

	delta := decimal.NewFromInt(int64(req.SizeBase)).Div(decimal.New(1, 9))
	if req.Side == executor.SideShort {
		delta = delta.Neg()
	}
	o.reconcileFill(ctx, botID, req.MarketIndex, delta, fillPrice, fee, result.Signature.String())
	return Result{Ok: &result.Signature}
}

func (o *Orchestrator) Close(ctx context.Context, marketIndex uint16, subID uint16, botID string, fillPrice decimal.Decimal, fee decimal.Decimal) Result {
	// The closing fill is the exact inverse of the open position, read
	// before submission so the realized-PnL leg books against the ledger's
	// own cost basis.
	var delta decimal.Decimal
	if prior, err := o.st.GetLocalPosition(ctx, o.authority, botID, marketIndex); err == nil {
		delta = prior.BaseSize.Neg()
	}

	result, err := o.exec.ClosePerp(ctx, marketIndex, subID)
	if err != nil {
		return failed(classifyOrWrap(err))
	}
	if result.NoOp {
		return Result{Ok: &svm.Signature{}}
	}
	o.reconcileFill(ctx, botID, marketIndex, delta, fillPrice, fee, result.Signature.String())
	return Result{Ok: &result.Signature}
}

// Transfer moves collateral between two of the authority's own
// subaccounts via transfer_deposit.
func (o *Orchestrator) Transfer(ctx context.Context, fromSubID, toSubID uint16, marketIndex uint16, amount uint64, botID string) Result {
	if err := o.EnsureFeeFloor(ctx); err != nil {
		return failed(classifyOrWrap(err))
	}

	fromPDA, _, err := addresses.UserPDA(o.ids, o.authority, fromSubID)
	if err != nil {
		return failed(classifyOrWrap(err))
	}
	toPDA, _, err := addresses.UserPDA(o.ids, o.authority, toSubID)
	if err != nil {
		return failed(classifyOrWrap(err))
	}
	userStatsPDA, _, err := addresses.UserStatsPDA(o.ids, o.authority)
	if err != nil {
		return failed(classifyOrWrap(err))
	}
	statePDA, _, err := addresses.StatePDA(o.ids)
	if err != nil {
		return failed(classifyOrWrap(err))
	}
	spotMarketPDA, _, err := addresses.SpotMarketPDA(o.ids, marketIndex)
	if err != nil {
		return failed(classifyOrWrap(err))
	}

	ix := instructions.TransferDeposit(o.ids.Perp, marketIndex, amount,
		fromPDA, toPDA, userStatsPDA, statePDA, spotMarketPDA, o.authority)

	res := o.submit(ctx, []svm.Instruction{ix}, false)
	if res.Err != nil {
		return res
	}

	o.recordEquityEvent(ctx, botID, marketIndex, decimal.NewFromInt(int64(amount)), "transfer", res.Ok.String())
	return res
}

// SettlePnL settles a subaccount's unrealized perp PnL into its spot
// collateral balance and records the resulting equity delta.
func (o *Orchestrator) SettlePnL(ctx context.Context, marketIndex uint16, subID uint16, botID string, settledAmount decimal.Decimal) Result {
	result, err := o.exec.SettlePnL(ctx, marketIndex, subID)
	if err != nil {
		return failed(classifyOrWrap(err))
	}
	o.recordEquityEvent(ctx, botID, marketIndex, settledAmount, "settle_pnl", result.Signature.String())
	return Result{Ok: &result.Signature}
}

// DeleteSubaccount closes an emptied subaccount, reclaiming its rent. The
// caller is responsible for having already confirmed the subaccount
// carries no open position or balance.
func (o *Orchestrator) DeleteSubaccount(ctx context.Context, subID uint16) Result {
	result, err := o.exec.DeleteSubaccount(ctx, subID)
	if err != nil {
		return failed(classifyOrWrap(err))
	}
	return Result{Ok: &result.Signature}
}

func (o *Orchestrator) reconcileFill(ctx context.Context, botID string, marketIndex uint16, delta, price, fee decimal.Decimal, tradeID string) {
	_, err := o.reconcile.Reconcile(ctx, o.authority, botID, marketIndex, reconciler.Fill{
		TradeID: tradeID, Delta: delta, Price: price, Fee: fee,
	}, nil)
	_ = err // reconciliation failures are logged by the caller's wiring, not fatal to the trade already confirmed
}

func (o *Orchestrator) recordEquityEvent(ctx context.Context, botID string, marketIndex uint16, amount decimal.Decimal, kind string, sig string) {
	_ = o.st.AppendEquityEvent(ctx, store.EquityEvent{
		ID:            sig,
		WalletAddress: o.authority,
		BotID:         botID,
		Kind:          kind,
		Amount:        amount,
		Signature:     sig,
		RecordedAt:    time.Now(),
	})
}

func (o *Orchestrator) submit(ctx context.Context, ixs []svm.Instruction, skipPreflight bool) Result {
	metrics.InstructionsBuilt.WithLabelValues("orchestrator").Add(float64(len(ixs)))

	blockhash, lastValid, err := o.rpc.GetLatestBlockhash(ctx)
	if err != nil {
		return o.failAndMaybeQueueRetry(ctx, classifyOrWrap(fmt.Errorf("fetch blockhash: %w", err)))
	}

	msg := serializeInstructions(ixs, blockhash)
	sig := o.signFn(msg)
	raw := append(append([]byte{}, sig[:]...), msg...)

	txSig, err := o.rpc.SendRawTransaction(ctx, raw, svm.SendOptions{SkipPreflight: skipPreflight, Commitment: svm.CommitmentConfirmed})
	if err != nil {
		return o.failAndMaybeQueueRetry(ctx, classifyOrWrap(err))
	}

	result, err := o.rpc.ConfirmTransaction(ctx, txSig, blockhash, lastValid)
	if err != nil {
		return o.failAndMaybeQueueRetry(ctx, classifyOrWrap(err))
	}
	if result != nil && result.Err != nil {
		metrics.TransactionsConfirmed.WithLabelValues("failed").Inc()
		if result.Err.Code != nil {
			return o.failAndMaybeQueueRetry(ctx, classify.FromProgramCode(*result.Err.Code, result.Err.Message))
		}
		return o.failAndMaybeQueueRetry(ctx, &classify.ClassifiedError{Kind: classify.KindTransactionFailed, Detail: result.Err.Message})
	}

	metrics.TransactionsConfirmed.WithLabelValues("success").Inc()
	return ok(txSig)
}

// failAndMaybeQueueRetry enqueues a RetryJob for timed-out submissions,
// the one failure kind that is retried rather than surfaced outright. A
// timed-out submission never produced a transaction signature, so there
// is nothing meaningful to key the retry record on; a freshly minted
// uuid stands in as the synthetic trade id.
func (o *Orchestrator) failAndMaybeQueueRetry(ctx context.Context, ce *classify.ClassifiedError) Result {
	if ce.Kind == classify.KindTimeout {
		_ = o.st.UpsertRetryJob(ctx, store.RetryJob{
			TradeID:       uuid.NewString(),
			Attempts:      1,
			NextAttemptAt: time.Now().Add(time.Second),
			LastError:     ce.Detail,
			Status:        "pending",
		})
	}
	return failed(ce)
}

func classifyOrWrap(err error) *classify.ClassifiedError {
	if ce, isClassified := err.(*classify.ClassifiedError); isClassified {
		return ce
	}
	return &classify.ClassifiedError{Kind: classify.KindTransactionFailed, Detail: err.Error()}
}

func serializeInstructions(ixs []svm.Instruction, blockhash svm.Blockhash) []byte {
	buf := append([]byte{}, blockhash[:]...)
	for _, ix := range ixs {
		buf = append(buf, ix.ProgramID[:]...)
		for _, a := range ix.Accounts {
			buf = append(buf, a.PublicKey[:]...)
		}
		buf = append(buf, ix.Data...)
	}
	return buf
}
