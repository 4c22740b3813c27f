// Package subaccount allocates sequential subaccount ids per wallet,
// serialized through a sharded per-wallet mutex so allocation for
// different wallets proceeds concurrently while two callers on the same
// wallet can never race to the same id.
package subaccount

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/perpcore/agent-core/internal/addresses"
	"github.com/perpcore/agent-core/internal/rpcclient"
	"github.com/perpcore/agent-core/internal/store"
	"github.com/perpcore/agent-core/internal/svm"
)

// maxProbe is the highest subaccount id this allocator probes for
// existence (0..7 inclusive, matching the program's position slots).
const maxProbe = 7

// Allocator derives the next safe subaccount id for a wallet, serialized
// per wallet so two concurrent bot-creation calls can never pick the same
// id while the other's initialize_user transaction is in flight.
type Allocator struct {
	rpc rpcclient.Client
	ids addresses.ProgramIDs
	st  store.Store

	mu     sync.Mutex
	shards map[svm.PublicKey]*sync.Mutex
}

// New constructs an Allocator.
func New(rpc rpcclient.Client, ids addresses.ProgramIDs, st store.Store) *Allocator {
	return &Allocator{
		rpc:    rpc,
		ids:    ids,
		st:     st,
		shards: make(map[svm.PublicKey]*sync.Mutex),
	}
}

func (a *Allocator) shardFor(wallet svm.PublicKey) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	m, ok := a.shards[wallet]
	if !ok {
		m = &sync.Mutex{}
		a.shards[wallet] = m
	}
	return m
}

// NextSubID returns the next safe subaccount id for wallet, merging
// on-chain truth with local allocations and filling any sequential gap
// first, since the program rejects non-sequential initialization.
func (a *Allocator) NextSubID(ctx context.Context, wallet svm.PublicKey) (uint16, error) {
	lock := a.shardFor(wallet)
	lock.Lock()
	defer lock.Unlock()

	onChain, err := a.probeOnChain(ctx, wallet)
	if err != nil {
		return 0, fmt.Errorf("subaccount: probe on-chain: %w", err)
	}

	allocated, err := a.allocatedInStore(ctx, wallet)
	if err != nil {
		return 0, fmt.Errorf("subaccount: read store: %w", err)
	}

	return NextSubID(onChain, allocated), nil
}

// Reserve computes the next safe sub_id for wallet exactly like NextSubID,
// then immediately records it in the store under a freshly minted
// AllocationKey so a concurrent allocation on another process sees this
// slot as taken before the caller's initialize_user transaction even
// lands on-chain. Without this, allocatedInStore would never reflect an
// allocation made by a previous call, defeating the gap-fill rule for any
// deployment running more than one orchestrator instance.
func (a *Allocator) Reserve(ctx context.Context, wallet svm.PublicKey, botID string) (uint16, error) {
	lock := a.shardFor(wallet)
	lock.Lock()
	defer lock.Unlock()

	onChain, err := a.probeOnChain(ctx, wallet)
	if err != nil {
		return 0, fmt.Errorf("subaccount: probe on-chain: %w", err)
	}
	allocated, err := a.allocatedInStore(ctx, wallet)
	if err != nil {
		return 0, fmt.Errorf("subaccount: read store: %w", err)
	}

	subID := NextSubID(onChain, allocated)
	if err := a.st.UpsertSubaccount(ctx, store.Subaccount{
		WalletAddress: wallet,
		SubID:         subID,
		BotID:         botID,
		CreatedAt:     time.Now(),
		AllocationKey: uuid.NewString(),
	}); err != nil {
		return 0, fmt.Errorf("subaccount: record allocation: %w", err)
	}
	return subID, nil
}

// NextSubID is the pure allocation rule, exposed separately so it is
// exhaustively testable without RPC or storage.
func NextSubID(onChain map[uint16]bool, allocated map[uint16]bool) uint16 {
	var candidate uint16
	for k := uint16(1); ; k++ {
		if !onChain[k] && !allocated[k] {
			candidate = k
			break
		}
	}

	for p := uint16(1); p < candidate; p++ {
		if !onChain[p] {
			return p
		}
	}
	return candidate
}

func (a *Allocator) probeOnChain(ctx context.Context, wallet svm.PublicKey) (map[uint16]bool, error) {
	pdas := make([]svm.PublicKey, 0, maxProbe+1)
	for id := uint16(0); id <= maxProbe; id++ {
		pda, _, err := addresses.UserPDA(a.ids, wallet, id)
		if err != nil {
			return nil, err
		}
		pdas = append(pdas, pda)
	}

	infos, err := a.rpc.GetMultipleAccounts(ctx, pdas, svm.CommitmentConfirmed)
	if err != nil {
		return nil, err
	}

	onChain := make(map[uint16]bool, len(infos))
	for i, info := range infos {
		if info != nil && addresses.IsInitializedAccount(info.Data) {
			onChain[uint16(i)] = true
		}
	}
	return onChain, nil
}

func (a *Allocator) allocatedInStore(ctx context.Context, wallet svm.PublicKey) (map[uint16]bool, error) {
	subs, err := a.st.ListSubaccounts(ctx, wallet)
	if err != nil {
		return nil, err
	}
	allocated := make(map[uint16]bool, len(subs))
	for _, s := range subs {
		allocated[s.SubID] = true
	}
	return allocated, nil
}
