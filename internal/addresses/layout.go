package addresses

// Byte-offset constants for the on-chain account layouts this core reads.
// These are re-derived from the program IDL at build time in a production
// deployment; they are pinned here as the observed values for the program
// version this client targets.
const (
	DiscriminatorLen = 8

	// User account layout.
	UserAuthorityOffset     = 8
	UserDelegateOffset      = 40
	UserNameOffset          = 72
	UserSpotPositionsOffset = 104
	SpotPositionSize        = 40
	NumSpotPositions        = 8
	UserPerpPositionsOffset = 432
	PerpPositionSize        = 184
	NumPerpPositions        = 8
	UserAccountMinSize      = UserPerpPositionsOffset + PerpPositionSize*NumPerpPositions

	// SpotPosition field offsets, relative to the start of each 40-byte record.
	SpotScaledBalanceOffset     = 0
	SpotOpenBidsOffset          = 8
	SpotOpenAsksOffset          = 16
	SpotCumulativeDepositOffset = 24
	SpotMarketIndexOffset       = 32
	SpotBalanceTypeOffset       = 34
	SpotOpenOrdersOffset        = 35

	// PerpPosition field offsets, relative to the start of each 184-byte record.
	PerpBaseAssetAmountOffset      = 0
	PerpQuoteAssetAmountOffset     = 8
	PerpQuoteBreakEvenAmountOffset = 16
	PerpQuoteEntryAmountOffset     = 24
	PerpMarketIndexOffset          = 116

	// SpotMarket account layout.
	SpotMarketOracleOffset               = 40
	SpotMarketCumulativeDepositIntOffset = 464
	SpotMarketAccountMinSize             = SpotMarketCumulativeDepositIntOffset + 16

	// Pyth price account layout (legacy mapping v2): the aggregate price
	// struct and the account-wide exponent, at their pinned offsets.
	OracleExpoOffset           = 20
	OracleAggregatePriceOffset = 208
	OracleAccountMinSize       = OracleAggregatePriceOffset + 8
)

// BalanceType distinguishes a spot position's sign.
type BalanceType uint8

const (
	BalanceTypeDeposit BalanceType = 0
	BalanceTypeBorrow  BalanceType = 1
)
