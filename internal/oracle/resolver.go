// Package oracle resolves a market's oracle address with a TTL cache and
// a safe fallback, backed by a flat map keyed by market index.
package oracle

import (
	"context"
	"sync"
	"time"

	"github.com/perpcore/agent-core/internal/addresses"
	"github.com/perpcore/agent-core/internal/decoder"
	"github.com/perpcore/agent-core/internal/rpcclient"
	"github.com/perpcore/agent-core/internal/svm"
)

// Binding records a resolved oracle address and when it was fetched.
type Binding struct {
	Oracle    svm.PublicKey
	FetchedAt time.Time
}

// Resolver caches (market_index -> oracle) bindings with a TTL, falling
// back to an environment constant on any fetch failure so liveness is
// preserved even when a market account is temporarily unreadable.
type Resolver struct {
	rpc      rpcclient.Client
	ids      addresses.ProgramIDs
	ttl      time.Duration
	fallback svm.PublicKey

	mu    sync.RWMutex
	cache map[uint16]Binding
}

// New constructs a Resolver. fallback is the environment's fallback oracle
// constant (distinct for mainnet vs. devnet, supplied by configuration).
func New(rpc rpcclient.Client, ids addresses.ProgramIDs, ttl time.Duration, fallback svm.PublicKey) *Resolver {
	return &Resolver{
		rpc:      rpc,
		ids:      ids,
		ttl:      ttl,
		fallback: fallback,
		cache:    make(map[uint16]Binding),
	}
}

// Resolve returns the oracle address for a market, using the cache when
// the last fetch is within TTL and otherwise reading the spot market
// account. On any error — including a zero-length or too-short account,
// which is treated the same as "unavailable" — the fallback oracle is
// returned so the caller can still build a deposit/withdraw instruction.
func (r *Resolver) Resolve(ctx context.Context, marketIndex uint16) svm.PublicKey {
	if b, ok := r.cached(marketIndex); ok {
		return b.Oracle
	}

	marketPDA, _, err := addresses.SpotMarketPDA(r.ids, marketIndex)
	if err != nil {
		return r.fallback
	}

	info, err := r.rpc.GetAccount(ctx, marketPDA, svm.CommitmentConfirmed)
	if err != nil || info == nil || !addresses.IsInitializedAccount(info.Data) {
		return r.fallback
	}

	oracle, err := decoder.DecodeSpotMarketOracle(info.Data)
	if err != nil {
		return r.fallback
	}

	r.store(marketIndex, oracle)
	return oracle
}

func (r *Resolver) cached(marketIndex uint16) (Binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.cache[marketIndex]
	if !ok {
		return Binding{}, false
	}
	if time.Since(b.FetchedAt) > r.ttl {
		return Binding{}, false
	}
	return b, true
}

func (r *Resolver) store(marketIndex uint16, oracle svm.PublicKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[marketIndex] = Binding{Oracle: oracle, FetchedAt: time.Now()}
}

// Invalidate drops a cached binding, forcing the next Resolve to refetch.
func (r *Resolver) Invalidate(marketIndex uint16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, marketIndex)
}
