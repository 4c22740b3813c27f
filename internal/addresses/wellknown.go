package addresses

import "github.com/perpcore/agent-core/internal/svm"

// These cluster-wide program/sysvar addresses are the same on every
// deployment (mainnet and devnet alike), unlike ProgramIDs.Perp which
// varies by deployment.
var (
	systemProgramID = mustBase58("11111111111111111111111111111111")
	rentSysvarID    = mustBase58("SysvarRent111111111111111111111111111111111")
)

func mustBase58(s string) svm.PublicKey {
	pk, err := svm.PublicKeyFromBase58(s)
	if err != nil {
		panic(err)
	}
	return pk
}

// SystemProgramID returns the native system program address.
func SystemProgramID() svm.PublicKey { return systemProgramID }

// RentSysvarID returns the rent sysvar address.
func RentSysvarID() svm.PublicKey { return rentSysvarID }
