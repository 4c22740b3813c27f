// Package store defines the persistence contract the core depends on and
// a SQLite-backed reference implementation.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/perpcore/agent-core/internal/svm"
)

// ErrNotFound is returned when a lookup finds no matching row.
var ErrNotFound = errors.New("store: not found")

// Wallet is the onboarded end-user wallet a bot acts as agent for.
type Wallet struct {
	Address   svm.PublicKey
	UserSalt  [32]byte
	CreatedAt time.Time
}

// AgentKey is the encrypted agent signing key for one wallet.
type AgentKey struct {
	WalletAddress   svm.PublicKey
	PublicAddress   svm.PublicKey
	EncryptedSecret []byte
	DerivationIndex uint32
	CreatedAt       time.Time
}

// Subaccount records a locally-known sub_id allocation for a wallet.
// AllocationKey is an opaque bookkeeping id (a uuid) minted once per
// allocation, distinguishing this allocation attempt from any earlier one
// that reused the same numeric SubID after a delete_subaccount.
type Subaccount struct {
	WalletAddress svm.PublicKey
	SubID         uint16
	BotID         string
	CreatedAt     time.Time
	Paused        bool
	AllocationKey string
}

// LocalPosition is the reconciler's per-(bot,market) mirror.
type LocalPosition struct {
	WalletAddress svm.PublicKey
	BotID         string
	MarketIndex   uint16
	BaseSize      decimal.Decimal
	AvgEntry      decimal.Decimal
	CostBasis     decimal.Decimal
	RealizedPnL   decimal.Decimal
	TotalFees     decimal.Decimal
	LastTradeID   string
	LastTradeAt   time.Time
	DriftDetected bool
}

// EquityEvent is an append-only ledger row for a confirmed deposit,
// withdrawal, or fill.
type EquityEvent struct {
	ID            string
	WalletAddress svm.PublicKey
	BotID         string
	Kind          string
	Amount        decimal.Decimal
	Signature     string
	RecordedAt    time.Time
}

// RetryJob tracks a failed operation queued for retry.
type RetryJob struct {
	TradeID       string
	Attempts      int
	NextAttemptAt time.Time
	LastError     string
	Status        string // pending | completed | failed | voided
}

// NonceRow persists an issued challenge nonce (used for audit/replay
// detection across process restarts; the live single-use check still
// runs through cryptovault.NonceStore in memory).
type NonceRow struct {
	Hash      [32]byte
	Wallet    svm.PublicKey
	Purpose   string
	ExpiresAt time.Time
	UsedAt    *time.Time
}

// Store is the persistence contract the core depends on. Core requires
// only atomic upsert semantics per record and the active-bots query used
// by the periodic reconciliation sweep.
type Store interface {
	UpsertWallet(ctx context.Context, w Wallet) error
	GetWallet(ctx context.Context, addr svm.PublicKey) (Wallet, error)

	UpsertAgentKey(ctx context.Context, k AgentKey) error
	GetAgentKey(ctx context.Context, wallet svm.PublicKey) (AgentKey, error)

	UpsertSubaccount(ctx context.Context, s Subaccount) error
	ListSubaccounts(ctx context.Context, wallet svm.PublicKey) ([]Subaccount, error)

	GetLocalPosition(ctx context.Context, wallet svm.PublicKey, bot string, market uint16) (LocalPosition, error)
	ListLocalPositions(ctx context.Context, wallet svm.PublicKey, bot string) ([]LocalPosition, error)
	UpsertLocalPosition(ctx context.Context, pos LocalPosition) error

	AppendEquityEvent(ctx context.Context, e EquityEvent) error

	UpsertRetryJob(ctx context.Context, j RetryJob) error
	ListPendingRetryJobs(ctx context.Context) ([]RetryJob, error)

	UpsertNonce(ctx context.Context, n NonceRow) error
	MarkNonceUsed(ctx context.Context, hash [32]byte) error

	// ListActiveBots returns (wallet_address, bot_id) pairs with at least
	// one non-paused subaccount, for the periodic reconciliation sweep.
	ListActiveBots(ctx context.Context) ([]ActiveBot, error)

	Close() error
}

// ActiveBot is one row of the select-distinct-active-bots query.
type ActiveBot struct {
	WalletAddress svm.PublicKey
	BotID         string
}
