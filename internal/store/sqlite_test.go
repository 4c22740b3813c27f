package store

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/perpcore/agent-core/internal/svm"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(Config{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testPK(b byte) svm.PublicKey {
	var pk svm.PublicKey
	pk[0] = b
	return pk
}

func TestWalletUpsertAndGetRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	w := Wallet{Address: testPK(1), CreatedAt: time.Unix(1000, 0)}
	w.UserSalt[0] = 0xAB
	if err := s.UpsertWallet(ctx, w); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := s.GetWallet(ctx, w.Address)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Address != w.Address || got.UserSalt != w.UserSalt {
		t.Fatalf("got %+v, want %+v", got, w)
	}
}

func TestGetWalletNotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetWallet(context.Background(), testPK(99)); err != ErrNotFound {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestAgentKeyRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	k := AgentKey{
		WalletAddress:   testPK(1),
		PublicAddress:   testPK(2),
		EncryptedSecret: []byte{1, 2, 3, 4},
		DerivationIndex: 0,
		CreatedAt:       time.Unix(500, 0),
	}
	if err := s.UpsertAgentKey(ctx, k); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := s.GetAgentKey(ctx, k.WalletAddress)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.PublicAddress != k.PublicAddress || string(got.EncryptedSecret) != string(k.EncryptedSecret) {
		t.Fatalf("got %+v, want %+v", got, k)
	}
}

func TestSubaccountListOrderedBySubID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	wallet := testPK(1)

	for _, sub := range []uint16{3, 1, 2} {
		if err := s.UpsertSubaccount(ctx, Subaccount{WalletAddress: wallet, SubID: sub, BotID: "bot", CreatedAt: time.Now()}); err != nil {
			t.Fatalf("upsert sub %d: %v", sub, err)
		}
	}

	got, err := s.ListSubaccounts(ctx, wallet)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 || got[0].SubID != 1 || got[1].SubID != 2 || got[2].SubID != 3 {
		t.Fatalf("got %+v, want ordered 1,2,3", got)
	}
}

func TestLocalPositionRoundTripPreservesDecimalPrecision(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	pos := LocalPosition{
		WalletAddress: testPK(1),
		BotID:         "bot-1",
		MarketIndex:   2,
		BaseSize:      decimal.RequireFromString("-1.23456789"),
		AvgEntry:      decimal.RequireFromString("45.6"),
		CostBasis:     decimal.RequireFromString("-56.088"),
		RealizedPnL:   decimal.RequireFromString("12.5"),
		TotalFees:     decimal.RequireFromString("0.01"),
		LastTradeID:   "trade-1",
		LastTradeAt:   time.Unix(2000, 0),
		DriftDetected: true,
	}
	if err := s.UpsertLocalPosition(ctx, pos); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := s.GetLocalPosition(ctx, pos.WalletAddress, pos.BotID, pos.MarketIndex)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.BaseSize.Equal(pos.BaseSize) || !got.CostBasis.Equal(pos.CostBasis) {
		t.Fatalf("got %+v, want %+v", got, pos)
	}
	if !got.DriftDetected {
		t.Fatal("drift_detected should round trip true")
	}
	if got.LastTradeID != pos.LastTradeID {
		t.Fatalf("last_trade_id = %q, want %q", got.LastTradeID, pos.LastTradeID)
	}
}

func TestListLocalPositionsReturnsOnlyTheBotsRows(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	wallet := testPK(1)

	for _, market := range []uint16{2, 0, 1} {
		pos := LocalPosition{
			WalletAddress: wallet,
			BotID:         "bot-1",
			MarketIndex:   market,
			BaseSize:      decimal.NewFromInt(int64(market) + 1),
		}
		if err := s.UpsertLocalPosition(ctx, pos); err != nil {
			t.Fatalf("upsert market %d: %v", market, err)
		}
	}
	other := LocalPosition{WalletAddress: wallet, BotID: "bot-2", MarketIndex: 0, BaseSize: decimal.NewFromInt(9)}
	if err := s.UpsertLocalPosition(ctx, other); err != nil {
		t.Fatalf("upsert other bot: %v", err)
	}

	got, err := s.ListLocalPositions(ctx, wallet, "bot-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d rows, want 3 (bot-2's row must be excluded)", len(got))
	}
	for i, want := range []uint16{0, 1, 2} {
		if got[i].MarketIndex != want {
			t.Fatalf("row %d market = %d, want %d (ordered by market_index)", i, got[i].MarketIndex, want)
		}
	}
}

func TestListActiveBotsExcludesPausedAndDedupes(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	walletA, walletB := testPK(1), testPK(2)
	subs := []Subaccount{
		{WalletAddress: walletA, SubID: 0, BotID: "bot-a", CreatedAt: time.Now(), Paused: false},
		{WalletAddress: walletA, SubID: 1, BotID: "bot-a", CreatedAt: time.Now(), Paused: false},
		{WalletAddress: walletB, SubID: 0, BotID: "bot-b", CreatedAt: time.Now(), Paused: true},
	}
	for _, sub := range subs {
		if err := s.UpsertSubaccount(ctx, sub); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	got, err := s.ListActiveBots(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d active bots, want 1 (paused bot and duplicate sub_id rows must collapse): %+v", len(got), got)
	}
	if got[0].WalletAddress != walletA || got[0].BotID != "bot-a" {
		t.Fatalf("got %+v, want wallet-a/bot-a", got[0])
	}
}

func TestRetryJobsOnlyPendingListed(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.UpsertRetryJob(ctx, RetryJob{TradeID: "t1", Status: "pending", NextAttemptAt: time.Now()}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.UpsertRetryJob(ctx, RetryJob{TradeID: "t2", Status: "completed", NextAttemptAt: time.Now()}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := s.ListPendingRetryJobs(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].TradeID != "t1" {
		t.Fatalf("got %+v, want only t1", got)
	}
}

func TestNonceMarkUsed(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var hash [32]byte
	hash[0] = 7
	n := NonceRow{Hash: hash, Wallet: testPK(1), Purpose: "reveal_mnemonic", ExpiresAt: time.Now().Add(time.Minute)}
	if err := s.UpsertNonce(ctx, n); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.MarkNonceUsed(ctx, hash); err != nil {
		t.Fatalf("mark used: %v", err)
	}
}
