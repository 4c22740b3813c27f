// Package rpcclient declares the typed transport the protocol client core
// consumes. The core never dials a node directly; every component that
// needs chain data takes a Client and is testable against the Mock below.
package rpcclient

import (
	"context"

	"github.com/perpcore/agent-core/internal/svm"
)

// Client is the RPC surface this core consumes. It is implemented
// elsewhere (outside this core) by whatever transport talks to the
// cluster; the core only depends on this interface.
type Client interface {
	GetAccount(ctx context.Context, pubkey svm.PublicKey, commitment svm.Commitment) (*svm.AccountInfo, error)
	GetMultipleAccounts(ctx context.Context, pubkeys []svm.PublicKey, commitment svm.Commitment) ([]*svm.AccountInfo, error)
	GetBalance(ctx context.Context, pubkey svm.PublicKey) (uint64, error)
	GetTokenAccountBalance(ctx context.Context, pubkey svm.PublicKey) (uint64, error)
	GetLatestBlockhash(ctx context.Context) (svm.Blockhash, uint64, error)
	SendRawTransaction(ctx context.Context, raw []byte, opts svm.SendOptions) (svm.Signature, error)
	ConfirmTransaction(ctx context.Context, sig svm.Signature, blockhash svm.Blockhash, lastValidBlockHeight uint64) (*svm.ConfirmResult, error)
	GetSlot(ctx context.Context, commitment svm.Commitment) (uint64, error)
	RequestAirdrop(ctx context.Context, pubkey svm.PublicKey, lamports uint64) (svm.Signature, error)
}
