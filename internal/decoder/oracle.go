package decoder

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/perpcore/agent-core/internal/addresses"
)

// DecodeOraclePrice reads a Pyth-style price account's aggregate price and
// exponent and rescales the result to the protocol's fixed 1e6 price
// precision, matching the scale computeLimitPrice in internal/executor
// expects. A zero or negative on-chain price (an unpublished aggregate reads
// as zero) is rejected rather than silently clamped, since a zero or negative limit
// would let an order through with no real slippage bound.
func DecodeOraclePrice(data []byte) (uint64, error) {
	if len(data) < addresses.OracleAccountMinSize {
		return 0, fmt.Errorf("decoder: oracle account too short for price field (%d bytes)", len(data))
	}

	expo := int32(binary.LittleEndian.Uint32(data[addresses.OracleExpoOffset : addresses.OracleExpoOffset+4]))
	raw := int64(binary.LittleEndian.Uint64(data[addresses.OracleAggregatePriceOffset : addresses.OracleAggregatePriceOffset+8]))
	if raw <= 0 {
		return 0, fmt.Errorf("decoder: oracle aggregate price not yet published")
	}

	// Rescale from 10^expo to the protocol's 10^-6 price precision: the
	// on-chain value is raw*10^expo, and we want raw_new*10^targetExpo to
	// equal that same price, so raw_new = raw * 10^(expo - targetExpo).
	const targetExpo = -6
	shift := int(expo) - targetExpo
	scaled := float64(raw) * math.Pow10(shift)
	if scaled < 0 || scaled > float64(math.MaxUint64) {
		return 0, fmt.Errorf("decoder: oracle price out of range after rescale")
	}
	return uint64(math.Round(scaled)), nil
}
