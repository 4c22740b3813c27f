package sweep

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/perpcore/agent-core/internal/addresses"
	"github.com/perpcore/agent-core/internal/decoder"
	"github.com/perpcore/agent-core/internal/reconciler"
	"github.com/perpcore/agent-core/internal/rpcclient"
	"github.com/perpcore/agent-core/internal/store"
	"github.com/perpcore/agent-core/internal/svm"
)

func testIDs() addresses.ProgramIDs {
	var perp svm.PublicKey
	perp[0] = 3
	return addresses.ProgramIDs{Perp: perp}
}

func openTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.Open(store.Config{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestReconcileBotUpsertsLocalPositionFromOnChainUser(t *testing.T) {
	ids := testIDs()
	st := openTestStore(t)
	rpc := rpcclient.NewMock()
	recon := reconciler.New(st)
	sw := New(st, rpc, ids, recon)

	wallet := svm.PublicKey{}
	wallet[0] = 9
	userPDA, _, err := addresses.UserPDA(ids, wallet, 0)
	if err != nil {
		t.Fatalf("derive user pda: %v", err)
	}

	var user decoder.UserAccount
	user.Authority = wallet
	user.PerpPositions[0] = decoder.PerpPosition{BaseAssetAmount: 5_000_000_000, MarketIndex: 1}
	rpc.Accounts[userPDA] = &svm.AccountInfo{Data: decoder.EncodeUser(&user)}

	ctx := context.Background()
	if err := sw.reconcileBot(ctx, store.ActiveBot{WalletAddress: wallet, BotID: "bot-1"}); err != nil {
		t.Fatalf("reconcileBot: %v", err)
	}

	pos, err := st.GetLocalPosition(ctx, wallet, "bot-1", 1)
	if err != nil {
		t.Fatalf("get local position: %v", err)
	}
	want := "5"
	if pos.BaseSize.String() != want {
		t.Fatalf("base size = %s, want %s", pos.BaseSize.String(), want)
	}
}

func TestReconcileBotSkipsUninitializedAccount(t *testing.T) {
	ids := testIDs()
	st := openTestStore(t)
	rpc := rpcclient.NewMock()
	recon := reconciler.New(st)
	sw := New(st, rpc, ids, recon)

	wallet := svm.PublicKey{}
	wallet[0] = 9

	ctx := context.Background()
	if err := sw.reconcileBot(ctx, store.ActiveBot{WalletAddress: wallet, BotID: "bot-1"}); err != nil {
		t.Fatalf("reconcileBot on missing account should be a no-op, not an error: %v", err)
	}

	if _, err := st.GetLocalPosition(ctx, wallet, "bot-1", 1); err != store.ErrNotFound {
		t.Fatalf("expected no local position to be written, got err=%v", err)
	}
}

func TestReconcileBotZeroesClosedLocalPosition(t *testing.T) {
	ids := testIDs()
	st := openTestStore(t)
	rpc := rpcclient.NewMock()
	recon := reconciler.New(st)
	sw := New(st, rpc, ids, recon)

	wallet := svm.PublicKey{}
	wallet[0] = 9
	ctx := context.Background()

	stale := store.LocalPosition{WalletAddress: wallet, BotID: "bot-1", MarketIndex: 1}
	stale.BaseSize = decimal.NewFromInt(5)
	if err := st.UpsertLocalPosition(ctx, stale); err != nil {
		t.Fatalf("seed local position: %v", err)
	}

	// On-chain user exists but carries no open perp position for market 1.
	userPDA, _, err := addresses.UserPDA(ids, wallet, 0)
	if err != nil {
		t.Fatalf("derive user pda: %v", err)
	}
	var user decoder.UserAccount
	user.Authority = wallet
	rpc.Accounts[userPDA] = &svm.AccountInfo{Data: decoder.EncodeUser(&user)}

	if err := sw.reconcileBot(ctx, store.ActiveBot{WalletAddress: wallet, BotID: "bot-1"}); err != nil {
		t.Fatalf("reconcileBot: %v", err)
	}

	pos, err := st.GetLocalPosition(ctx, wallet, "bot-1", 1)
	if err != nil {
		t.Fatalf("get local position: %v", err)
	}
	if pos.BaseSize.Sign() != 0 {
		t.Fatalf("closed on-chain position should zero the mirror, got base %s", pos.BaseSize.String())
	}
	if !pos.DriftDetected {
		t.Fatal("zeroing a stale mirror must flag drift")
	}
}

func TestRunOnceSweepsAllActiveBots(t *testing.T) {
	ids := testIDs()
	st := openTestStore(t)
	rpc := rpcclient.NewMock()
	recon := reconciler.New(st)
	sw := New(st, rpc, ids, recon)

	ctx := context.Background()
	walletA, walletB := svm.PublicKey{}, svm.PublicKey{}
	walletA[0], walletB[0] = 1, 2
	if err := st.UpsertSubaccount(ctx, store.Subaccount{WalletAddress: walletA, SubID: 0, BotID: "bot-a", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := st.UpsertSubaccount(ctx, store.Subaccount{WalletAddress: walletB, SubID: 0, BotID: "bot-b", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	for _, w := range []svm.PublicKey{walletA, walletB} {
		pda, _, err := addresses.UserPDA(ids, w, 0)
		if err != nil {
			t.Fatalf("derive pda: %v", err)
		}
		var user decoder.UserAccount
		user.Authority = w
		user.PerpPositions[0] = decoder.PerpPosition{BaseAssetAmount: 1_000_000_000, MarketIndex: 0}
		rpc.Accounts[pda] = &svm.AccountInfo{Data: decoder.EncodeUser(&user)}
	}

	sw.runOnce(ctx)

	if _, err := st.GetLocalPosition(ctx, walletA, "bot-a", 0); err != nil {
		t.Fatalf("bot-a should have a reconciled position: %v", err)
	}
	if _, err := st.GetLocalPosition(ctx, walletB, "bot-b", 0); err != nil {
		t.Fatalf("bot-b should have a reconciled position: %v", err)
	}
}
