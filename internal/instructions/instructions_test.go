package instructions

import (
	"encoding/binary"
	"testing"

	"github.com/perpcore/agent-core/internal/svm"
)

func TestDiscriminatorKnownValues(t *testing.T) {
	cases := []struct {
		name string
		want [8]byte
	}{
		{"deposit", [8]byte{242, 35, 198, 137, 82, 225, 242, 182}},
		{"withdraw", [8]byte{183, 18, 70, 156, 148, 109, 161, 34}},
		{"initialize_user", [8]byte{111, 17, 185, 250, 60, 122, 38, 254}},
		{"initialize_user_stats", [8]byte{254, 243, 72, 98, 251, 130, 168, 213}},
		{"place_perp_order", [8]byte{69, 161, 93, 202, 120, 126, 76, 185}},
		{"transfer_deposit", [8]byte{20, 20, 147, 223, 41, 63, 204, 111}},
		{"settle_pnl", [8]byte{43, 61, 234, 45, 15, 95, 152, 153}},
		{"delete_subaccount", [8]byte{160, 0, 99, 244, 197, 40, 88, 236}},
	}
	for _, c := range cases {
		if got := Discriminator(c.name); got != c.want {
			t.Errorf("Discriminator(%q) = %v, want %v", c.name, got, c.want)
		}
	}
}

func pk(b byte) svm.PublicKey {
	var p svm.PublicKey
	p[0] = b
	return p
}

func TestDepositAccountOrderingOraclePrecedesSpotMarket(t *testing.T) {
	acc := Accounts{State: pk(1), Authority: pk(2), TokenProgram: pk(3)}
	d2 := DepositAccounts{
		User:             pk(4),
		UserStats:        pk(5),
		SpotMarketVault:  pk(6),
		UserTokenAccount: pk(7),
		Oracle:           pk(8),
		SpotMarket:       pk(9),
	}

	ix := Deposit(pk(99), 1, 1000, false, acc, d2)

	var oracleIdx, spotMarketIdx = -1, -1
	for i, m := range ix.Accounts {
		if m.PublicKey == d2.Oracle {
			oracleIdx = i
		}
		if m.PublicKey == d2.SpotMarket {
			spotMarketIdx = i
		}
	}
	if oracleIdx == -1 || spotMarketIdx == -1 {
		t.Fatal("expected both oracle and spot market accounts present")
	}
	if oracleIdx+1 != spotMarketIdx {
		t.Fatalf("oracle account must immediately precede spot market: oracle at %d, spot market at %d", oracleIdx, spotMarketIdx)
	}
}

func TestWithdrawAccountOrderingOraclePrecedesSpotMarket(t *testing.T) {
	acc := Accounts{State: pk(1), Authority: pk(2), TokenProgram: pk(3), DriftSignerPDA: pk(10)}
	d2 := DepositAccounts{
		User:             pk(4),
		UserStats:        pk(5),
		SpotMarketVault:  pk(6),
		UserTokenAccount: pk(7),
		Oracle:           pk(8),
		SpotMarket:       pk(9),
	}

	ix := Withdraw(pk(99), 1, 1000, false, acc, d2)

	var oracleIdx, spotMarketIdx = -1, -1
	for i, m := range ix.Accounts {
		if m.PublicKey == d2.Oracle {
			oracleIdx = i
		}
		if m.PublicKey == d2.SpotMarket {
			spotMarketIdx = i
		}
	}
	if oracleIdx+1 != spotMarketIdx {
		t.Fatalf("oracle account must immediately precede spot market: oracle at %d, spot market at %d", oracleIdx, spotMarketIdx)
	}
}

func TestInitializeUserAppendsReferrerOnlyForSubZero(t *testing.T) {
	acc := Accounts{State: pk(1), Authority: pk(2), Payer: pk(3), RentSysvar: pk(4), SystemProgram: pk(5)}
	ref := &ReferrerAccounts{ReferrerUser: pk(6), ReferrerUserStats: pk(7)}
	var name [32]byte

	withRef := InitializeUser(pk(99), pk(10), pk(11), 0, name, acc, ref)
	if len(withRef.Accounts) != 9 {
		t.Fatalf("sub_id=0 with referrer: got %d accounts, want 9", len(withRef.Accounts))
	}

	withoutRefNonZero := InitializeUser(pk(99), pk(10), pk(11), 1, name, acc, ref)
	if len(withoutRefNonZero.Accounts) != 7 {
		t.Fatalf("sub_id=1 must never append referrer accounts even when supplied: got %d, want 7", len(withoutRefNonZero.Accounts))
	}

	withoutRefNil := InitializeUser(pk(99), pk(10), pk(11), 0, name, acc, nil)
	if len(withoutRefNil.Accounts) != 7 {
		t.Fatalf("sub_id=0 with nil referrer: got %d accounts, want 7", len(withoutRefNil.Accounts))
	}
}

func TestDepositArgEncodingIsLittleEndianUnpadded(t *testing.T) {
	acc := Accounts{State: pk(1), Authority: pk(2), TokenProgram: pk(3)}
	d2 := DepositAccounts{User: pk(4), UserStats: pk(5), SpotMarketVault: pk(6), UserTokenAccount: pk(7), Oracle: pk(8), SpotMarket: pk(9)}

	ix := Deposit(pk(99), 0x1234, 0x1122334455667788, true, acc, d2)

	if len(ix.Data) != 8+2+8+1 {
		t.Fatalf("data length = %d, want %d", len(ix.Data), 8+2+8+1)
	}
	wantDisc := Discriminator("deposit")
	if [8]byte(ix.Data[:8]) != wantDisc {
		t.Fatal("deposit data must start with the deposit discriminator")
	}
	gotMarket := binary.LittleEndian.Uint16(ix.Data[8:10])
	if gotMarket != 0x1234 {
		t.Fatalf("market_index = %#x, want %#x", gotMarket, 0x1234)
	}
	gotAmount := binary.LittleEndian.Uint64(ix.Data[10:18])
	if gotAmount != 0x1122334455667788 {
		t.Fatalf("amount = %#x, want %#x", gotAmount, 0x1122334455667788)
	}
	if ix.Data[18] != 1 {
		t.Fatalf("reduce_only byte = %d, want 1", ix.Data[18])
	}
}

func TestPlacePerpOrderEncodesDirectionAndOrderType(t *testing.T) {
	acc := PlacePerpOrderAccounts{State: pk(1), User: pk(2), Authority: pk(3), PerpMarket: pk(4), Oracle: pk(5)}
	ix := PlacePerpOrder(pk(99), PlacePerpOrderParams{
		MarketIndex:     7,
		Direction:       DirectionShort,
		BaseAssetAmount: 1_000_000_000,
		LimitPrice:      50_000_000,
		ReduceOnly:      true,
		OrderType:       OrderTypeLimit,
	}, acc)

	// discriminator(8) + market_index(2) + direction(1) + base(8) + limit(8) + reduce_only(1) + order_type(1)
	wantLen := 8 + 2 + 1 + 8 + 8 + 1 + 1
	if len(ix.Data) != wantLen {
		t.Fatalf("data length = %d, want %d", len(ix.Data), wantLen)
	}
	if ix.Data[10] != byte(DirectionShort) {
		t.Fatalf("direction byte = %d, want %d", ix.Data[10], DirectionShort)
	}
	if ix.Data[wantLen-1] != byte(OrderTypeLimit) {
		t.Fatalf("order_type byte = %d, want %d", ix.Data[wantLen-1], OrderTypeLimit)
	}
}

func TestTransferDepositTrailingPaddingIsZero(t *testing.T) {
	ix := TransferDeposit(pk(99), 2, 500, pk(1), pk(2), pk(3), pk(4), pk(5), pk(6))
	if len(ix.Data) != 8+2+8+2 {
		t.Fatalf("data length = %d, want %d", len(ix.Data), 8+2+8+2)
	}
	padding := binary.LittleEndian.Uint16(ix.Data[18:20])
	if padding != 0 {
		t.Fatalf("trailing padding = %d, want 0", padding)
	}
}

func TestSettlePnlAccountOrderingAndMarketIndexArg(t *testing.T) {
	acc := SettlePnLAccounts{State: pk(1), User: pk(2), Authority: pk(3), SpotMarket: pk(4), PerpMarket: pk(5)}
	ix := SettlePnl(pk(99), 7, acc)

	if len(ix.Accounts) != 5 {
		t.Fatalf("got %d accounts, want 5", len(ix.Accounts))
	}
	if ix.Accounts[3].PublicKey != pk(4) || ix.Accounts[4].PublicKey != pk(5) {
		t.Fatalf("spot_market must precede perp_market: %+v", ix.Accounts)
	}
	wantLen := 8 + 2
	if len(ix.Data) != wantLen {
		t.Fatalf("data length = %d, want %d", len(ix.Data), wantLen)
	}
	if got := binary.LittleEndian.Uint16(ix.Data[8:10]); got != 7 {
		t.Fatalf("market_index = %d, want 7", got)
	}
}

func TestDeleteSubaccountHasNoArgsBeyondDiscriminator(t *testing.T) {
	acc := DeleteSubaccountAccounts{State: pk(1), User: pk(2), UserStats: pk(3), Authority: pk(4)}
	ix := DeleteSubaccount(pk(99), acc)

	if len(ix.Accounts) != 4 {
		t.Fatalf("got %d accounts, want 4", len(ix.Accounts))
	}
	if len(ix.Data) != 8 {
		t.Fatalf("data length = %d, want 8 (discriminator only)", len(ix.Data))
	}
}
