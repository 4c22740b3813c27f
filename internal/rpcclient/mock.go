package rpcclient

import (
	"context"
	"fmt"
	"sync"

	"github.com/perpcore/agent-core/internal/svm"
)

// Mock is an in-memory Client used by component tests and by the executor's
// in-process path during local development. It is not a production
// transport: it has no network I/O and no notion of slot advancement beyond
// what the test sets.
type Mock struct {
	mu sync.Mutex

	Accounts   map[svm.PublicKey]*svm.AccountInfo
	Balances   map[svm.PublicKey]uint64
	TokenBals  map[svm.PublicKey]uint64
	Blockhash  svm.Blockhash
	LastValid  uint64
	Slot       uint64
	Sent       []sentTx
	ConfirmErr *svm.TransactionError

	// sigCounter derives an incrementing mock signature per submission.
	sigCounter uint64
}

type sentTx struct {
	Raw  []byte
	Opts svm.SendOptions
}

// NewMock returns an empty Mock ready for a test to populate.
func NewMock() *Mock {
	return &Mock{
		Accounts:  make(map[svm.PublicKey]*svm.AccountInfo),
		Balances:  make(map[svm.PublicKey]uint64),
		TokenBals: make(map[svm.PublicKey]uint64),
	}
}

func (m *Mock) GetAccount(_ context.Context, pubkey svm.PublicKey, _ svm.Commitment) (*svm.AccountInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.Accounts[pubkey]
	if !ok {
		return nil, nil
	}
	return acc, nil
}

func (m *Mock) GetMultipleAccounts(_ context.Context, pubkeys []svm.PublicKey, _ svm.Commitment) ([]*svm.AccountInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*svm.AccountInfo, len(pubkeys))
	for i, pk := range pubkeys {
		out[i] = m.Accounts[pk]
	}
	return out, nil
}

func (m *Mock) GetBalance(_ context.Context, pubkey svm.PublicKey) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Balances[pubkey], nil
}

func (m *Mock) GetTokenAccountBalance(_ context.Context, pubkey svm.PublicKey) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.TokenBals[pubkey], nil
}

func (m *Mock) GetLatestBlockhash(_ context.Context) (svm.Blockhash, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Blockhash, m.LastValid, nil
}

func (m *Mock) SendRawTransaction(_ context.Context, raw []byte, opts svm.SendOptions) (svm.Signature, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, sentTx{Raw: raw, Opts: opts})
	m.sigCounter++
	var sig svm.Signature
	copy(sig[:], []byte(fmt.Sprintf("mock-signature-%d", m.sigCounter)))
	return sig, nil
}

func (m *Mock) ConfirmTransaction(_ context.Context, _ svm.Signature, _ svm.Blockhash, _ uint64) (*svm.ConfirmResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &svm.ConfirmResult{Err: m.ConfirmErr, Slot: m.Slot}, nil
}

func (m *Mock) GetSlot(_ context.Context, _ svm.Commitment) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Slot, nil
}

func (m *Mock) RequestAirdrop(_ context.Context, _ svm.PublicKey, _ uint64) (svm.Signature, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sigCounter++
	var sig svm.Signature
	copy(sig[:], []byte(fmt.Sprintf("mock-airdrop-%d", m.sigCounter)))
	return sig, nil
}
