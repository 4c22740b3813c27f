// Package reconciler maintains the local, fee-prorated position ledger
// and keeps it honest against the on-chain perp position. All trade math
// runs on github.com/shopspring/decimal; floats never enter the ledger.
package reconciler

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/perpcore/agent-core/internal/store"
	"github.com/perpcore/agent-core/internal/svm"
)

// driftThreshold is the maximum tolerated |onchain_base - local_base|
// before the local record is considered stale.
var driftThreshold = decimal.NewFromFloat(1e-4)

// Fill is one executed trade applied to a bot's local position.
type Fill struct {
	TradeID string
	Delta   decimal.Decimal // signed trade size
	Price   decimal.Decimal
	Fee     decimal.Decimal
}

// Reconciler applies fills to the local ledger and cross-checks it
// against on-chain state, serialized per (wallet, bot, market).
type Reconciler struct {
	st store.Store

	mu     sync.Mutex
	shards map[string]*sync.Mutex
}

// New constructs a Reconciler backed by st.
func New(st store.Store) *Reconciler {
	return &Reconciler{
		st:     st,
		shards: make(map[string]*sync.Mutex),
	}
}

func (r *Reconciler) shardFor(key string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.shards[key]
	if !ok {
		m = &sync.Mutex{}
		r.shards[key] = m
	}
	return m
}

// ApplyFill applies a new fill to prior and returns the updated position:
// same-side fills accumulate cost basis, reducing fills realize PnL net of
// the fee share attributable to the closed leg, and an over-closing fill
// flips the position with the residual fee carried into the new side.
// prior.WalletAddress/BotID/MarketIndex are carried through unchanged.
func ApplyFill(prior store.LocalPosition, fill Fill, now time.Time) store.LocalPosition {
	next := prior
	adding := prior.BaseSize.Sign() == 0 || sameSign(prior.BaseSize, fill.Delta)

	next.TotalFees = prior.TotalFees.Add(fill.Fee)
	// A trade-less fill (the sweep's drift check) must not clobber the last
	// real trade's identity.
	if fill.TradeID != "" {
		next.LastTradeID = fill.TradeID
		next.LastTradeAt = now
	}

	if adding {
		next.CostBasis = prior.CostBasis.Add(fill.Delta.Abs().Mul(fill.Price)).Add(fill.Fee)
		next.BaseSize = prior.BaseSize.Add(fill.Delta)
		next.AvgEntry = avgEntry(next.CostBasis, next.BaseSize)
		return next
	}

	absB := prior.BaseSize.Abs()
	absD := fill.Delta.Abs()
	closeSize := decimal.Min(absB, absD)

	var avg decimal.Decimal
	if absB.Sign() != 0 {
		avg = prior.CostBasis.Div(absB)
	}

	var ratio decimal.Decimal
	if absD.Sign() != 0 {
		ratio = closeSize.Div(absD)
	}
	fClose := fill.Fee.Mul(ratio)
	fNew := fill.Fee.Sub(fClose)

	var realizedLeg decimal.Decimal
	if prior.BaseSize.Sign() > 0 {
		realizedLeg = fill.Price.Sub(avg).Mul(closeSize)
	} else {
		realizedLeg = avg.Sub(fill.Price).Mul(closeSize)
	}
	realizedLeg = realizedLeg.Sub(fClose)

	costBasis := prior.CostBasis.Sub(closeSize.Mul(avg))
	base := prior.BaseSize.Add(fill.Delta)

	if absD.GreaterThan(closeSize) {
		// Flip: the remainder of Δ opens a new position on the other side.
		costBasis = absD.Sub(closeSize).Mul(fill.Price).Add(fNew)
	}

	next.BaseSize = base
	next.CostBasis = costBasis
	next.RealizedPnL = prior.RealizedPnL.Add(realizedLeg)
	next.AvgEntry = avgEntry(costBasis, base)
	return next
}

func avgEntry(costBasis, base decimal.Decimal) decimal.Decimal {
	if base.Sign() == 0 {
		return decimal.Zero
	}
	return costBasis.Div(base.Abs())
}

func sameSign(a, b decimal.Decimal) bool {
	return a.Sign() == b.Sign()
}

// Reconcile applies a fill for (wallet, bot, market) under that pair's
// shard lock, persists the result, and then cross-checks the on-chain
// base size, auto-correcting only when at least one side is nonzero.
func (r *Reconciler) Reconcile(ctx context.Context, wallet svm.PublicKey, bot string, market uint16, fill Fill, onChainBase *decimal.Decimal) (store.LocalPosition, error) {
	key := shardKey(wallet, bot, market)
	lock := r.shardFor(key)
	lock.Lock()
	defer lock.Unlock()

	prior, err := r.st.GetLocalPosition(ctx, wallet, bot, market)
	if err == store.ErrNotFound {
		prior = store.LocalPosition{WalletAddress: wallet, BotID: bot, MarketIndex: market}
	} else if err != nil {
		return store.LocalPosition{}, err
	}

	next := ApplyFill(prior, fill, time.Now())

	if onChainBase != nil {
		next = applyDriftCorrection(next, *onChainBase)
	}

	if err := r.st.UpsertLocalPosition(ctx, next); err != nil {
		return store.LocalPosition{}, err
	}
	return next, nil
}

// applyDriftCorrection rewrites BaseSize to onChainBase when it has
// drifted from the local record by more than driftThreshold, but only
// when either side is nonzero — this prevents a transient zeroed-account
// read from blanking out a real local position.
func applyDriftCorrection(p store.LocalPosition, onChainBase decimal.Decimal) store.LocalPosition {
	drift := p.BaseSize.Sub(onChainBase).Abs()
	if drift.LessThanOrEqual(driftThreshold) {
		p.DriftDetected = false
		return p
	}
	p.DriftDetected = true
	if onChainBase.Sign() != 0 || p.BaseSize.Sign() != 0 {
		p.BaseSize = onChainBase
	}
	return p
}

func shardKey(wallet svm.PublicKey, bot string, market uint16) string {
	return wallet.String() + "|" + bot + "|" + marketKey(market)
}

func marketKey(market uint16) string {
	const hexDigits = "0123456789abcdef"
	var b [4]byte
	for i := 3; i >= 0; i-- {
		b[i] = hexDigits[market&0xf]
		market >>= 4
	}
	return string(b[:])
}
