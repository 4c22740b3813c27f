// Package decoder parses raw on-chain account bytes into typed positions
// and balances, per the byte layouts in internal/addresses.
package decoder

import (
	"encoding/binary"
	"fmt"

	"github.com/perpcore/agent-core/internal/addresses"
	"github.com/perpcore/agent-core/internal/svm"
)

// SpotPosition mirrors one 40-byte record from a user account.
type SpotPosition struct {
	ScaledBalance      uint64
	OpenBids           int64
	OpenAsks           int64
	CumulativeDeposits int64
	MarketIndex        uint16
	BalanceType        addresses.BalanceType
	OpenOrders         uint8
}

// PerpPosition mirrors one 184-byte record from a user account.
type PerpPosition struct {
	BaseAssetAmount      int64
	QuoteAssetAmount     int64
	QuoteBreakEvenAmount int64
	QuoteEntryAmount     int64
	MarketIndex          uint16
}

// Side reports whether the position is long, short, or flat, per the sign
// convention that positive BaseAssetAmount is LONG.
func (p PerpPosition) Side() string {
	switch {
	case p.BaseAssetAmount > 0:
		return "long"
	case p.BaseAssetAmount < 0:
		return "short"
	default:
		return "flat"
	}
}

// UserAccount is the decoded form of a program "User" account.
type UserAccount struct {
	Authority     svm.PublicKey
	Delegate      svm.PublicKey
	Name          [32]byte
	SpotPositions [addresses.NumSpotPositions]SpotPosition
	PerpPositions [addresses.NumPerpPositions]PerpPosition
}

// DecodeUser parses a raw user account's bytes. It is robust to version
// skew: the record is validated against the minimum expected length and
// any trailing bytes beyond the known layout are ignored rather than
// rejected.
func DecodeUser(data []byte) (*UserAccount, error) {
	if len(data) < addresses.UserAccountMinSize {
		return nil, fmt.Errorf("decoder: user account is %d bytes, want at least %d", len(data), addresses.UserAccountMinSize)
	}

	var u UserAccount
	copy(u.Authority[:], data[addresses.UserAuthorityOffset:addresses.UserAuthorityOffset+32])
	copy(u.Delegate[:], data[addresses.UserDelegateOffset:addresses.UserDelegateOffset+32])
	copy(u.Name[:], data[addresses.UserNameOffset:addresses.UserNameOffset+32])

	for i := 0; i < addresses.NumSpotPositions; i++ {
		base := addresses.UserSpotPositionsOffset + i*addresses.SpotPositionSize
		rec := data[base : base+addresses.SpotPositionSize]
		u.SpotPositions[i] = SpotPosition{
			ScaledBalance:      binary.LittleEndian.Uint64(rec[addresses.SpotScaledBalanceOffset:]),
			OpenBids:           int64(binary.LittleEndian.Uint64(rec[addresses.SpotOpenBidsOffset:])),
			OpenAsks:           int64(binary.LittleEndian.Uint64(rec[addresses.SpotOpenAsksOffset:])),
			CumulativeDeposits: int64(binary.LittleEndian.Uint64(rec[addresses.SpotCumulativeDepositOffset:])),
			MarketIndex:        binary.LittleEndian.Uint16(rec[addresses.SpotMarketIndexOffset:]),
			BalanceType:        addresses.BalanceType(rec[addresses.SpotBalanceTypeOffset]),
			OpenOrders:         rec[addresses.SpotOpenOrdersOffset],
		}
	}

	for i := 0; i < addresses.NumPerpPositions; i++ {
		base := addresses.UserPerpPositionsOffset + i*addresses.PerpPositionSize
		rec := data[base : base+addresses.PerpPositionSize]
		u.PerpPositions[i] = PerpPosition{
			BaseAssetAmount:      int64(binary.LittleEndian.Uint64(rec[addresses.PerpBaseAssetAmountOffset:])),
			QuoteAssetAmount:     int64(binary.LittleEndian.Uint64(rec[addresses.PerpQuoteAssetAmountOffset:])),
			QuoteBreakEvenAmount: int64(binary.LittleEndian.Uint64(rec[addresses.PerpQuoteBreakEvenAmountOffset:])),
			QuoteEntryAmount:     int64(binary.LittleEndian.Uint64(rec[addresses.PerpQuoteEntryAmountOffset:])),
			MarketIndex:          binary.LittleEndian.Uint16(rec[addresses.PerpMarketIndexOffset:]),
		}
	}

	return &u, nil
}

// EncodeUser is the inverse of DecodeUser, used by round-trip tests. It
// writes an account-sized buffer with a zero discriminator (the
// discriminator is opaque to this layer and is not reproduced).
func EncodeUser(u *UserAccount) []byte {
	buf := make([]byte, addresses.UserAccountMinSize)
	copy(buf[addresses.UserAuthorityOffset:], u.Authority[:])
	copy(buf[addresses.UserDelegateOffset:], u.Delegate[:])
	copy(buf[addresses.UserNameOffset:], u.Name[:])

	for i := 0; i < addresses.NumSpotPositions; i++ {
		base := addresses.UserSpotPositionsOffset + i*addresses.SpotPositionSize
		rec := buf[base : base+addresses.SpotPositionSize]
		p := u.SpotPositions[i]
		binary.LittleEndian.PutUint64(rec[addresses.SpotScaledBalanceOffset:], p.ScaledBalance)
		binary.LittleEndian.PutUint64(rec[addresses.SpotOpenBidsOffset:], uint64(p.OpenBids))
		binary.LittleEndian.PutUint64(rec[addresses.SpotOpenAsksOffset:], uint64(p.OpenAsks))
		binary.LittleEndian.PutUint64(rec[addresses.SpotCumulativeDepositOffset:], uint64(p.CumulativeDeposits))
		binary.LittleEndian.PutUint16(rec[addresses.SpotMarketIndexOffset:], p.MarketIndex)
		rec[addresses.SpotBalanceTypeOffset] = byte(p.BalanceType)
		rec[addresses.SpotOpenOrdersOffset] = p.OpenOrders
	}

	for i := 0; i < addresses.NumPerpPositions; i++ {
		base := addresses.UserPerpPositionsOffset + i*addresses.PerpPositionSize
		rec := buf[base : base+addresses.PerpPositionSize]
		p := u.PerpPositions[i]
		binary.LittleEndian.PutUint64(rec[addresses.PerpBaseAssetAmountOffset:], uint64(p.BaseAssetAmount))
		binary.LittleEndian.PutUint64(rec[addresses.PerpQuoteAssetAmountOffset:], uint64(p.QuoteAssetAmount))
		binary.LittleEndian.PutUint64(rec[addresses.PerpQuoteBreakEvenAmountOffset:], uint64(p.QuoteBreakEvenAmount))
		binary.LittleEndian.PutUint64(rec[addresses.PerpQuoteEntryAmountOffset:], uint64(p.QuoteEntryAmount))
		binary.LittleEndian.PutUint16(rec[addresses.PerpMarketIndexOffset:], p.MarketIndex)
	}

	return buf
}
