package addresses

import (
	"github.com/perpcore/agent-core/internal/svm"
	"github.com/perpcore/agent-core/pkg/helpers"
)

// ProgramIDs bundles the on-chain program addresses this library derives
// against. They are deployment constants, supplied by configuration rather
// than hardcoded here, since mainnet and devnet programs can differ.
type ProgramIDs struct {
	Perp            svm.PublicKey // the perpetuals program itself
	TokenProgram    svm.PublicKey // SPL token program
	AssociatedToken svm.PublicKey // SPL associated-token-account program
}

// StatePDA derives the program's single global state account.
func StatePDA(ids ProgramIDs) (svm.PublicKey, uint8, error) {
	return FindProgramAddress([][]byte{[]byte("drift_state")}, ids.Perp)
}

// UserPDA derives the per-subaccount user account: seeds
// ["user", authority, u16_le(sub_id)].
func UserPDA(ids ProgramIDs, authority svm.PublicKey, subID uint16) (svm.PublicKey, uint8, error) {
	return FindProgramAddress([][]byte{
		[]byte("user"),
		authority[:],
		U16LE(subID),
	}, ids.Perp)
}

// UserStatsPDA derives the per-authority aggregate stats account: seeds
// ["user_stats", authority].
func UserStatsPDA(ids ProgramIDs, authority svm.PublicKey) (svm.PublicKey, uint8, error) {
	return FindProgramAddress([][]byte{
		[]byte("user_stats"),
		authority[:],
	}, ids.Perp)
}

// SpotMarketPDA derives a spot market account: seeds
// ["spot_market", u16_le(index)].
func SpotMarketPDA(ids ProgramIDs, marketIndex uint16) (svm.PublicKey, uint8, error) {
	return FindProgramAddress([][]byte{
		[]byte("spot_market"),
		U16LE(marketIndex),
	}, ids.Perp)
}

// SpotMarketVaultPDA derives the token vault owned by a spot market: seeds
// ["spot_market_vault", u16_le(index)].
func SpotMarketVaultPDA(ids ProgramIDs, marketIndex uint16) (svm.PublicKey, uint8, error) {
	return FindProgramAddress([][]byte{
		[]byte("spot_market_vault"),
		U16LE(marketIndex),
	}, ids.Perp)
}

// PerpMarketPDA derives a perp market account: seeds
// ["perp_market", u16_le(index)].
func PerpMarketPDA(ids ProgramIDs, marketIndex uint16) (svm.PublicKey, uint8, error) {
	return FindProgramAddress([][]byte{
		[]byte("perp_market"),
		U16LE(marketIndex),
	}, ids.Perp)
}

// SignerPDA derives the program's vault-authority PDA used as the
// drift_signer account in withdraw instructions: seeds ["drift_signer"].
func SignerPDA(ids ProgramIDs) (svm.PublicKey, uint8, error) {
	return FindProgramAddress([][]byte{[]byte("drift_signer")}, ids.Perp)
}

// ReferrerNamePDA derives a referrer-name account. encodedName must already
// be space-padded to 32 bytes via EncodeName — NUL padding produces a
// different (wrong) address.
func ReferrerNamePDA(ids ProgramIDs, encodedName [32]byte) (svm.PublicKey, uint8, error) {
	return FindProgramAddress([][]byte{
		[]byte("referrer_name"),
		encodedName[:],
	}, ids.Perp)
}

// AssociatedTokenAddress derives the SPL associated token account for the
// given owner and mint: seeds [owner, token_program, mint] against the
// associated-token program.
func AssociatedTokenAddress(ids ProgramIDs, owner, mint svm.PublicKey) (svm.PublicKey, uint8, error) {
	return FindProgramAddress([][]byte{
		owner[:],
		ids.TokenProgram[:],
		mint[:],
	}, ids.AssociatedToken)
}

// IsInitializedAccount reports whether a fetched account holds real data:
// callers that only check "was something returned" can be fooled by an
// account that was allocated (rent-exempt, nonzero length) but never
// written to, which reads back as all-zero bytes and is indistinguishable
// from "not initialized" for this program's purposes.
func IsInitializedAccount(data []byte) bool {
	return len(data) > 0 && !helpers.IsZeroBytes(data)
}

// ValidateReferrerPDA checks that the referrer_name PDA this library
// derives for encodedName actually matches a known, on-chain-observed
// referrer account address. The space-padding convention is undocumented
// upstream, so attribution should not be trusted until this round-trip
// has been confirmed at least once.
func ValidateReferrerPDA(ids ProgramIDs, encodedName [32]byte, knownReferrerAccount svm.PublicKey) (bool, error) {
	derived, _, err := ReferrerNamePDA(ids, encodedName)
	if err != nil {
		return false, err
	}
	return helpers.BytesEqual(derived[:], knownReferrerAccount[:]), nil
}
