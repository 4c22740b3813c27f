package executor

import (
	"context"
	"testing"

	"github.com/perpcore/agent-core/internal/addresses"
	"github.com/perpcore/agent-core/internal/decoder"
	"github.com/perpcore/agent-core/internal/oracle"
	"github.com/perpcore/agent-core/internal/rpcclient"
	"github.com/perpcore/agent-core/internal/svm"
)

func TestComputeLimitPriceLongAddsSlippage(t *testing.T) {
	got := computeLimitPrice(100_000_000, SideLong, 100) // 1% slippage
	want := uint64(101_000_000)
	if got != want {
		t.Fatalf("got %d, want %d", got, want)
	}
}

func TestComputeLimitPriceShortSubtractsSlippage(t *testing.T) {
	got := computeLimitPrice(100_000_000, SideShort, 100)
	want := uint64(99_000_000)
	if got != want {
		t.Fatalf("got %d, want %d", got, want)
	}
}

func TestComputeLimitPriceNeverNegative(t *testing.T) {
	got := computeLimitPrice(100, SideShort, 20000) // 200% slippage would go negative
	if got != 0 {
		t.Fatalf("got %d, want 0 (clamped)", got)
	}
}

func TestDirectionForSide(t *testing.T) {
	if directionFor(SideLong) != 0 {
		t.Fatal("long must map to DirectionLong (0)")
	}
	if directionFor(SideShort) != 1 {
		t.Fatal("short must map to DirectionShort (1)")
	}
}

func testIDs() addresses.ProgramIDs {
	var perp svm.PublicKey
	perp[0] = 4
	return addresses.ProgramIDs{Perp: perp}
}

func TestClosePerpNoOpOnFlatPosition(t *testing.T) {
	ids := testIDs()
	rpc := rpcclient.NewMock()
	var authority svm.PublicKey
	authority[0] = 7

	userPDA, _, err := addresses.UserPDA(ids, authority, 0)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	var user decoder.UserAccount
	user.Authority = authority
	user.PerpPositions[0] = decoder.PerpPosition{BaseAssetAmount: 0, MarketIndex: 2}
	rpc.Accounts[userPDA] = &svm.AccountInfo{Data: decoder.EncodeUser(&user)}

	resolver := oracle.New(rpc, ids, 0, svm.PublicKey{})
	exec := New(rpc, resolver, ids, authority, func(b []byte) svm.Signature { return svm.Signature{} })

	res, err := exec.ClosePerp(context.Background(), 2, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.NoOp {
		t.Fatal("expected NoOp for an already-flat position")
	}
}

func TestClosePerpErrorsOnMissingUserAccount(t *testing.T) {
	ids := testIDs()
	rpc := rpcclient.NewMock()
	var authority svm.PublicKey
	authority[0] = 7

	resolver := oracle.New(rpc, ids, 0, svm.PublicKey{})
	exec := New(rpc, resolver, ids, authority, func(b []byte) svm.Signature { return svm.Signature{} })

	if _, err := exec.ClosePerp(context.Background(), 2, 0); err == nil {
		t.Fatal("expected an error when the user account does not exist")
	}
}

func TestClosePerpSubmitsOppositeReduceOnlyOrder(t *testing.T) {
	ids := testIDs()
	rpc := rpcclient.NewMock()
	var authority svm.PublicKey
	authority[0] = 7

	userPDA, _, err := addresses.UserPDA(ids, authority, 0)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	var user decoder.UserAccount
	user.Authority = authority
	user.PerpPositions[0] = decoder.PerpPosition{BaseAssetAmount: -3_000_000_000, MarketIndex: 2}
	rpc.Accounts[userPDA] = &svm.AccountInfo{Data: decoder.EncodeUser(&user)}

	resolver := oracle.New(rpc, ids, 0, svm.PublicKey{})
	exec := New(rpc, resolver, ids, authority, func(b []byte) svm.Signature { return svm.Signature{} })

	res, err := exec.ClosePerp(context.Background(), 2, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.NoOp {
		t.Fatal("a nonzero position must not no-op")
	}
	if len(rpc.Sent) != 1 {
		t.Fatalf("expected exactly one transaction submitted, got %d", len(rpc.Sent))
	}

	// The place_perp_order data (29 bytes) ends the raw transaction:
	// direction at data[10], reduce_only at data[27].
	raw := rpc.Sent[0].Raw
	data := raw[len(raw)-29:]
	if data[10] != byte(directionFor(SideLong)) {
		t.Fatalf("direction = %d, want long to close a short position", data[10])
	}
	if data[27] != 1 {
		t.Fatal("close order must be reduce-only")
	}
}

func TestSettlePnLSubmitsOneTransaction(t *testing.T) {
	ids := testIDs()
	rpc := rpcclient.NewMock()
	var authority svm.PublicKey
	authority[0] = 7

	resolver := oracle.New(rpc, ids, 0, svm.PublicKey{})
	exec := New(rpc, resolver, ids, authority, func(b []byte) svm.Signature { return svm.Signature{} })

	if _, err := exec.SettlePnL(context.Background(), 2, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rpc.Sent) != 1 {
		t.Fatalf("expected exactly one transaction submitted, got %d", len(rpc.Sent))
	}
}

func TestDeleteSubaccountSubmitsOneTransaction(t *testing.T) {
	ids := testIDs()
	rpc := rpcclient.NewMock()
	var authority svm.PublicKey
	authority[0] = 7

	resolver := oracle.New(rpc, ids, 0, svm.PublicKey{})
	exec := New(rpc, resolver, ids, authority, func(b []byte) svm.Signature { return svm.Signature{} })

	if _, err := exec.DeleteSubaccount(context.Background(), 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rpc.Sent) != 1 {
		t.Fatalf("expected exactly one transaction submitted, got %d", len(rpc.Sent))
	}
}
