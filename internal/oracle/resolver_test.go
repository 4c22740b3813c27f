package oracle

import (
	"context"
	"testing"
	"time"

	"github.com/perpcore/agent-core/internal/addresses"
	"github.com/perpcore/agent-core/internal/rpcclient"
	"github.com/perpcore/agent-core/internal/svm"
)

func testIDs() addresses.ProgramIDs {
	var perp svm.PublicKey
	perp[0] = 7
	return addresses.ProgramIDs{Perp: perp}
}

func marketAccountWithOracle(oracle svm.PublicKey) *svm.AccountInfo {
	data := make([]byte, addresses.SpotMarketAccountMinSize)
	copy(data[addresses.SpotMarketOracleOffset:], oracle[:])
	return &svm.AccountInfo{Data: data}
}

func TestResolveReturnsDecodedOracle(t *testing.T) {
	ids := testIDs()
	rpc := rpcclient.NewMock()

	marketPDA, _, err := addresses.SpotMarketPDA(ids, 3)
	if err != nil {
		t.Fatalf("derive market pda: %v", err)
	}
	var wantOracle svm.PublicKey
	wantOracle[1] = 0x55
	rpc.Accounts[marketPDA] = marketAccountWithOracle(wantOracle)

	var fallback svm.PublicKey
	fallback[0] = 0xFF
	r := New(rpc, ids, time.Minute, fallback)

	got := r.Resolve(context.Background(), 3)
	if got != wantOracle {
		t.Fatalf("got %x, want %x", got, wantOracle)
	}
}

func TestResolveFallsBackOnMissingAccount(t *testing.T) {
	ids := testIDs()
	rpc := rpcclient.NewMock()

	var fallback svm.PublicKey
	fallback[0] = 0xFF
	r := New(rpc, ids, time.Minute, fallback)

	got := r.Resolve(context.Background(), 9)
	if got != fallback {
		t.Fatalf("got %x, want fallback %x", got, fallback)
	}
}

func TestResolveFallsBackOnZeroedAccount(t *testing.T) {
	ids := testIDs()
	rpc := rpcclient.NewMock()

	marketPDA, _, err := addresses.SpotMarketPDA(ids, 3)
	if err != nil {
		t.Fatalf("derive market pda: %v", err)
	}
	rpc.Accounts[marketPDA] = &svm.AccountInfo{Data: make([]byte, addresses.SpotMarketAccountMinSize)}

	var fallback svm.PublicKey
	fallback[0] = 0xFF
	r := New(rpc, ids, time.Minute, fallback)

	got := r.Resolve(context.Background(), 3)
	if got != fallback {
		t.Fatalf("a rent-exempt but never-written account must fall back: got %x, want %x", got, fallback)
	}
}

func TestResolveCachesWithinTTL(t *testing.T) {
	ids := testIDs()
	rpc := rpcclient.NewMock()

	marketPDA, _, err := addresses.SpotMarketPDA(ids, 3)
	if err != nil {
		t.Fatalf("derive market pda: %v", err)
	}
	var wantOracle svm.PublicKey
	wantOracle[1] = 0x55
	rpc.Accounts[marketPDA] = marketAccountWithOracle(wantOracle)

	r := New(rpc, ids, time.Hour, svm.PublicKey{})
	first := r.Resolve(context.Background(), 3)

	// Mutate the backing account; the cached value must still be served.
	delete(rpc.Accounts, marketPDA)

	second := r.Resolve(context.Background(), 3)
	if first != second || second != wantOracle {
		t.Fatal("a still-fresh cache entry must be served without refetching")
	}
}

func TestInvalidateForcesRefetch(t *testing.T) {
	ids := testIDs()
	rpc := rpcclient.NewMock()

	marketPDA, _, err := addresses.SpotMarketPDA(ids, 3)
	if err != nil {
		t.Fatalf("derive market pda: %v", err)
	}
	var oracleA svm.PublicKey
	oracleA[1] = 0x11
	rpc.Accounts[marketPDA] = marketAccountWithOracle(oracleA)

	r := New(rpc, ids, time.Hour, svm.PublicKey{})
	if got := r.Resolve(context.Background(), 3); got != oracleA {
		t.Fatalf("got %x, want %x", got, oracleA)
	}

	var oracleB svm.PublicKey
	oracleB[1] = 0x22
	rpc.Accounts[marketPDA] = marketAccountWithOracle(oracleB)
	r.Invalidate(3)

	if got := r.Resolve(context.Background(), 3); got != oracleB {
		t.Fatalf("after Invalidate, got %x, want refetched %x", got, oracleB)
	}
}
