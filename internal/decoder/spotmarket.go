package decoder

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/perpcore/agent-core/internal/addresses"
	"github.com/perpcore/agent-core/internal/svm"
)

// DecodeSpotMarketOracle reads the oracle pubkey at its fixed offset in a
// spot market account.
func DecodeSpotMarketOracle(data []byte) (svm.PublicKey, error) {
	if len(data) < addresses.SpotMarketOracleOffset+32 {
		return svm.PublicKey{}, fmt.Errorf("decoder: spot market account too short for oracle field (%d bytes)", len(data))
	}
	var pk svm.PublicKey
	copy(pk[:], data[addresses.SpotMarketOracleOffset:addresses.SpotMarketOracleOffset+32])
	return pk, nil
}

// CumulativeDepositInterest reads the u128 cumulative_deposit_interest
// field as two 64-bit limbs. When the high limb is zero the value fits in
// a uint64 and is returned as such via the Uint64 field for callers that
// don't need full 128-bit range.
type CumulativeDepositInterest struct {
	Low  uint64
	High uint64
}

// Uint64 returns the value truncated to 64 bits, valid only when High == 0.
func (c CumulativeDepositInterest) Uint64() uint64 {
	return c.Low
}

// BigInt returns the full 128-bit value.
func (c CumulativeDepositInterest) BigInt() *big.Int {
	v := new(big.Int).Lsh(new(big.Int).SetUint64(c.High), 64)
	return v.Or(v, new(big.Int).SetUint64(c.Low))
}

// DecodeCumulativeDepositInterest reads the i128 field at its fixed offset.
func DecodeCumulativeDepositInterest(data []byte) (CumulativeDepositInterest, error) {
	if len(data) < addresses.SpotMarketAccountMinSize {
		return CumulativeDepositInterest{}, fmt.Errorf("decoder: spot market account too short for interest field (%d bytes)", len(data))
	}
	off := addresses.SpotMarketCumulativeDepositIntOffset
	return CumulativeDepositInterest{
		Low:  binary.LittleEndian.Uint64(data[off : off+8]),
		High: binary.LittleEndian.Uint64(data[off+8 : off+16]),
	}, nil
}

// scaledBalancePrecision and cumulativeInterestPrecision are the protocol's
// fixed-point scales: scaled_balance carries 1e9 of precision, and
// cumulative_deposit_interest carries a further 1e10.
var (
	scaledBalancePrecision      = big.NewInt(1_000_000_000)
	cumulativeInterestPrecision = big.NewInt(10_000_000_000)
)

// ComputeSpotUIAmount converts a scaled balance and the market's cumulative
// deposit interest into the actual token amount, in the mint's smallest
// unit, returning both the truncated integer amount and the remainder so a
// display layer can render fractional precision beyond that integer.
func ComputeSpotUIAmount(scaledBalance uint64, interest CumulativeDepositInterest) (amount *big.Int, remainder *big.Int, divisor *big.Int) {
	num := new(big.Int).Mul(new(big.Int).SetUint64(scaledBalance), interest.BigInt())
	divisor = new(big.Int).Mul(scaledBalancePrecision, cumulativeInterestPrecision)
	amount, remainder = new(big.Int).QuoRem(num, divisor, new(big.Int))
	return amount, remainder, divisor
}
