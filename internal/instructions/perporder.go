package instructions

import "github.com/perpcore/agent-core/internal/svm"

// Direction is the side of a perp order.
type Direction uint8

const (
	DirectionLong  Direction = 0
	DirectionShort Direction = 1
)

// OrderType distinguishes a market order (no limit price enforced beyond
// the computed slippage bound) from a limit order.
type OrderType uint8

const (
	OrderTypeMarket OrderType = 0
	OrderTypeLimit  OrderType = 1
)

// PlacePerpOrderAccounts bundles the accounts a perp order placement
// needs. This instruction is not enumerated in the bit-exact-tested
// instruction set (deposit/withdraw/initialize_user/transfer_deposit);
// it follows the same discriminator and little-endian argument rules to
// let the executor submit trades through this first-party builder.
type PlacePerpOrderAccounts struct {
	State      svm.PublicKey
	User       svm.PublicKey
	Authority  svm.PublicKey
	PerpMarket svm.PublicKey
	Oracle     svm.PublicKey
}

// PlacePerpOrderParams is the order the executor wants placed.
type PlacePerpOrderParams struct {
	MarketIndex     uint16
	Direction       Direction
	BaseAssetAmount uint64 // scaled 1e9
	LimitPrice      uint64 // scaled 1e6; 0 means "no limit" (oracle-relative market order)
	ReduceOnly      bool
	OrderType       OrderType
}

// PlacePerpOrder builds the place_perp_order instruction: accounts
// state(r), user(w), authority(s,r), perp_market(w), oracle(r); args
// market_index, direction, base_asset_amount, limit_price, reduce_only,
// order_type.
func PlacePerpOrder(programID svm.PublicKey, p PlacePerpOrderParams, acc PlacePerpOrderAccounts) svm.Instruction {
	e := newArgEncoder(Discriminator("place_perp_order")).
		u16(p.MarketIndex).
		bytes([]byte{byte(p.Direction)}).
		u64(p.BaseAssetAmount).
		u64(p.LimitPrice).
		bool(p.ReduceOnly).
		bytes([]byte{byte(p.OrderType)})

	return svm.Instruction{
		ProgramID: programID,
		Accounts: []svm.AccountMeta{
			svm.ReadOnly(acc.State),
			svm.Writable(acc.User),
			svm.Signer(acc.Authority, false),
			svm.Writable(acc.PerpMarket),
			svm.ReadOnly(acc.Oracle),
		},
		Data: e.data(),
	}
}

// SettlePnLAccounts bundles the accounts settle_pnl needs.
type SettlePnLAccounts struct {
	State      svm.PublicKey
	User       svm.PublicKey
	Authority  svm.PublicKey
	SpotMarket svm.PublicKey
	PerpMarket svm.PublicKey
}

// SettlePnl builds the settle_pnl instruction: accounts state(r), user(w),
// authority(s,r), spot_market(w), perp_market(w); args market_index.
//
// The discriminator is derived the same way as every other instruction in
// this package (sha256("global:settle_pnl")[:8]), but it has not been
// cross-checked against the deployed program's IDL. Verify before relying
// on it against a live cluster.
func SettlePnl(programID svm.PublicKey, marketIndex uint16, acc SettlePnLAccounts) svm.Instruction {
	e := newArgEncoder(Discriminator("settle_pnl")).u16(marketIndex)
	return svm.Instruction{
		ProgramID: programID,
		Accounts: []svm.AccountMeta{
			svm.ReadOnly(acc.State),
			svm.Writable(acc.User),
			svm.Signer(acc.Authority, false),
			svm.Writable(acc.SpotMarket),
			svm.Writable(acc.PerpMarket),
		},
		Data: e.data(),
	}
}

// DeleteSubaccountAccounts bundles the accounts delete_subaccount needs.
type DeleteSubaccountAccounts struct {
	State     svm.PublicKey
	User      svm.PublicKey
	UserStats svm.PublicKey
	Authority svm.PublicKey
}

// DeleteSubaccount builds the delete_subaccount instruction: accounts
// state(r), user(w), user_stats(w), authority(s,r); no arguments beyond the
// discriminator.
//
// Same caveat as SettlePnl: the discriminator follows this package's
// standard derivation but is unverified against the live program IDL.
func DeleteSubaccount(programID svm.PublicKey, acc DeleteSubaccountAccounts) svm.Instruction {
	d := Discriminator("delete_subaccount")
	return svm.Instruction{
		ProgramID: programID,
		Accounts: []svm.AccountMeta{
			svm.ReadOnly(acc.State),
			svm.Writable(acc.User),
			svm.Writable(acc.UserStats),
			svm.Signer(acc.Authority, false),
		},
		Data: d[:],
	}
}
