package instructions

import "github.com/perpcore/agent-core/internal/svm"

// Accounts bundles the well-known account addresses these instructions
// reference. They are supplied by the caller rather than hardcoded, since
// the builder has no business knowing cluster-specific program ids.
type Accounts struct {
	State          svm.PublicKey
	Authority      svm.PublicKey
	Payer          svm.PublicKey
	RentSysvar     svm.PublicKey
	SystemProgram  svm.PublicKey
	TokenProgram   svm.PublicKey
	DriftSignerPDA svm.PublicKey
}

// InitializeUserStats builds the initialize_user_stats instruction. It has
// no arguments.
func InitializeUserStats(programID svm.PublicKey, userStats svm.PublicKey, acc Accounts) svm.Instruction {
	d := Discriminator("initialize_user_stats")
	return svm.Instruction{
		ProgramID: programID,
		Accounts: []svm.AccountMeta{
			svm.Writable(userStats),
			svm.Writable(acc.State),
			svm.ReadOnly(acc.Authority),
			svm.Signer(acc.Payer, true),
			svm.ReadOnly(acc.RentSysvar),
			svm.ReadOnly(acc.SystemProgram),
		},
		Data: d[:],
	}
}

// ReferrerAccounts, when non-nil, is appended to initialize_user for
// sub_id == 0 when a referrer is configured.
type ReferrerAccounts struct {
	ReferrerUser      svm.PublicKey
	ReferrerUserStats svm.PublicKey
}

// InitializeUser builds the initialize_user instruction.
func InitializeUser(programID svm.PublicKey, user, userStats svm.PublicKey, subID uint16, name [32]byte, acc Accounts, referrer *ReferrerAccounts) svm.Instruction {
	e := newArgEncoder(Discriminator("initialize_user")).u16(subID).bytes32(name)

	metas := []svm.AccountMeta{
		svm.Writable(user),
		svm.Writable(userStats),
		svm.Writable(acc.State),
		svm.ReadOnly(acc.Authority),
		svm.Signer(acc.Payer, true),
		svm.ReadOnly(acc.RentSysvar),
		svm.ReadOnly(acc.SystemProgram),
	}
	if subID == 0 && referrer != nil {
		metas = append(metas,
			svm.Writable(referrer.ReferrerUser),
			svm.Writable(referrer.ReferrerUserStats),
		)
	}

	return svm.Instruction{
		ProgramID: programID,
		Accounts:  metas,
		Data:      e.data(),
	}
}

// DepositAccounts bundles the accounts a deposit/withdraw needs beyond the
// common Accounts struct.
type DepositAccounts struct {
	User             svm.PublicKey
	UserStats        svm.PublicKey
	SpotMarketVault  svm.PublicKey
	UserTokenAccount svm.PublicKey
	Oracle           svm.PublicKey
	SpotMarket       svm.PublicKey
}

// Deposit builds the deposit instruction. Account ordering places the
// oracle immediately before the spot market; this ordering is load-bearing
// for the on-chain program and must never be reordered.
func Deposit(programID svm.PublicKey, marketIndex uint16, amount uint64, reduceOnly bool, acc Accounts, d2 DepositAccounts) svm.Instruction {
	e := newArgEncoder(Discriminator("deposit")).u16(marketIndex).u64(amount).bool(reduceOnly)
	return svm.Instruction{
		ProgramID: programID,
		Accounts: []svm.AccountMeta{
			svm.ReadOnly(acc.State),
			svm.Writable(d2.User),
			svm.Writable(d2.UserStats),
			svm.Signer(acc.Authority, false),
			svm.Writable(d2.SpotMarketVault),
			svm.Writable(d2.UserTokenAccount),
			svm.ReadOnly(acc.TokenProgram),
			svm.ReadOnly(d2.Oracle),
			svm.Writable(d2.SpotMarket),
		},
		Data: e.data(),
	}
}

// Withdraw builds the withdraw instruction. Same oracle-before-spot-market
// ordering requirement as Deposit, with the drift_signer PDA additionally
// inserted before the token account.
func Withdraw(programID svm.PublicKey, marketIndex uint16, amount uint64, reduceOnly bool, acc Accounts, d2 DepositAccounts) svm.Instruction {
	e := newArgEncoder(Discriminator("withdraw")).u16(marketIndex).u64(amount).bool(reduceOnly)
	return svm.Instruction{
		ProgramID: programID,
		Accounts: []svm.AccountMeta{
			svm.ReadOnly(acc.State),
			svm.Writable(d2.User),
			svm.Writable(d2.UserStats),
			svm.Signer(acc.Authority, false),
			svm.Writable(d2.SpotMarketVault),
			svm.ReadOnly(acc.DriftSignerPDA),
			svm.Writable(d2.UserTokenAccount),
			svm.ReadOnly(acc.TokenProgram),
			svm.ReadOnly(d2.Oracle),
			svm.Writable(d2.SpotMarket),
		},
		Data: e.data(),
	}
}

// TransferDeposit builds the transfer_deposit instruction, moving collateral
// between two of the authority's own subaccounts. The trailing u16 padding
// argument is always zero.
func TransferDeposit(programID svm.PublicKey, marketIndex uint16, amount uint64, fromUser, toUser, userStats, state, spotMarket svm.PublicKey, authority svm.PublicKey) svm.Instruction {
	e := newArgEncoder(Discriminator("transfer_deposit")).u16(marketIndex).u64(amount).u16(0)
	return svm.Instruction{
		ProgramID: programID,
		Accounts: []svm.AccountMeta{
			svm.Writable(fromUser),
			svm.Writable(toUser),
			svm.Writable(userStats),
			svm.Signer(authority, false),
			svm.ReadOnly(state),
			svm.Writable(spotMarket),
		},
		Data: e.data(),
	}
}
