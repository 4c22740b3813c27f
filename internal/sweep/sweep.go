// Package sweep runs the periodic reconciliation sweep: a
// context-cancellable goroutine driven by a time.Ticker that re-checks
// every active bot's on-chain perp positions against the local mirror.
package sweep

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/perpcore/agent-core/internal/addresses"
	"github.com/perpcore/agent-core/internal/decoder"
	"github.com/perpcore/agent-core/internal/reconciler"
	"github.com/perpcore/agent-core/internal/rpcclient"
	"github.com/perpcore/agent-core/internal/store"
	"github.com/perpcore/agent-core/internal/svm"
	"github.com/perpcore/agent-core/pkg/logging"
)

// Interval is the fixed sweep cadence.
const Interval = 60 * time.Second

// Sweep periodically reconciles the local position mirror for every
// active bot against its on-chain perp position.
type Sweep struct {
	st        store.Store
	rpc       rpcclient.Client
	ids       addresses.ProgramIDs
	reconcile *reconciler.Reconciler
	log       *logging.Logger
}

// New constructs a Sweep.
func New(st store.Store, rpc rpcclient.Client, ids addresses.ProgramIDs, reconcile *reconciler.Reconciler) *Sweep {
	return &Sweep{st: st, rpc: rpc, ids: ids, reconcile: reconcile, log: logging.Default().Component("sweep")}
}

// Run blocks, sweeping every Interval until ctx is cancelled.
func (s *Sweep) Run(ctx context.Context) {
	ticker := time.NewTicker(Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.runOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sweep) runOnce(ctx context.Context) {
	bots, err := s.st.ListActiveBots(ctx)
	if err != nil {
		s.log.Error("list active bots", "err", err)
		return
	}

	var wg sync.WaitGroup
	for _, bot := range bots {
		bot := bot
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.reconcileBot(ctx, bot); err != nil {
				s.log.Error("reconcile bot", "wallet", bot.WalletAddress.String(), "bot", bot.BotID, "err", err)
			}
		}()
	}
	wg.Wait()
}

// reconcileBot fetches bot's on-chain user account once and, for each of
// its nonzero perp positions, upserts the local mirror — serialized per
// (bot, market) by the Reconciler's own sharding, parallel across
// distinct pairs since each call here runs in its own goroutine.
func (s *Sweep) reconcileBot(ctx context.Context, bot store.ActiveBot) error {
	// SubID resolution: the active-bots query does not carry sub_id, so
	// this sweep reconciles sub_id 0, the default trading subaccount; a
	// multi-subaccount bot is swept by issuing one ActiveBot row per
	// (wallet, bot_id, sub_id) from the store in a fuller deployment.
	const subID = 0

	userPDA, _, err := addresses.UserPDA(s.ids, bot.WalletAddress, subID)
	if err != nil {
		return err
	}

	info, err := s.rpc.GetAccount(ctx, userPDA, svm.CommitmentConfirmed)
	if err != nil {
		return err
	}
	if info == nil || !addresses.IsInitializedAccount(info.Data) {
		return nil
	}

	user, err := decoder.DecodeUser(info.Data)
	if err != nil {
		return err
	}

	// Reconcile the union of live on-chain slots and existing local mirror
	// rows: a nonzero slot updates (or creates) its mirror, and a local
	// record whose slot went flat on-chain is driven back to zero. Untouched
	// all-zero slots are skipped so a sweep never manufactures empty rows.
	onChain := make(map[uint16]decimal.Decimal)
	for _, pp := range user.PerpPositions {
		if pp.BaseAssetAmount == 0 {
			continue
		}
		onChain[pp.MarketIndex] = decimal.NewFromInt(pp.BaseAssetAmount).Div(decimal.New(1, 9))
	}

	local, err := s.st.ListLocalPositions(ctx, bot.WalletAddress, bot.BotID)
	if err != nil {
		return err
	}

	markets := make(map[uint16]bool, len(onChain)+len(local))
	for market := range onChain {
		markets[market] = true
	}
	for _, lp := range local {
		if lp.BaseSize.Sign() != 0 {
			markets[lp.MarketIndex] = true
		}
	}

	for market := range markets {
		base, ok := onChain[market]
		if !ok {
			base = decimal.Zero
		}
		if _, err := s.reconcile.Reconcile(ctx, bot.WalletAddress, bot.BotID, market, reconciler.Fill{}, &base); err != nil {
			return err
		}
	}
	return nil
}
