package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	_ "github.com/mattn/go-sqlite3"

	"github.com/perpcore/agent-core/internal/svm"
	"github.com/perpcore/agent-core/pkg/helpers"
)

// SQLiteStore is the reference Store implementation: a single *sql.DB
// opened in WAL mode with a single writer connection, guarded
// additionally by an in-process mutex for multi-statement upserts.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// Config holds SQLiteStore configuration.
type Config struct {
	DataDir string
}

// Open creates (or opens) the sqlite database under cfg.DataDir and
// ensures its schema exists.
func Open(cfg Config) (*SQLiteStore, error) {
	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("store: create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "perpcore.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: init schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS wallets (
		address TEXT PRIMARY KEY,
		user_salt BLOB NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS agent_keys (
		wallet_address TEXT PRIMARY KEY,
		public_address TEXT NOT NULL,
		encrypted_secret BLOB NOT NULL,
		derivation_index INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (wallet_address) REFERENCES wallets(address)
	);

	CREATE TABLE IF NOT EXISTS subaccounts (
		wallet_address TEXT NOT NULL,
		sub_id INTEGER NOT NULL,
		bot_id TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		paused INTEGER NOT NULL DEFAULT 0,
		allocation_key TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (wallet_address, sub_id)
	);

	CREATE INDEX IF NOT EXISTS idx_subaccounts_wallet ON subaccounts(wallet_address);

	CREATE TABLE IF NOT EXISTS local_positions (
		wallet_address TEXT NOT NULL,
		bot_id TEXT NOT NULL,
		market_index INTEGER NOT NULL,
		base_size TEXT NOT NULL,
		avg_entry TEXT NOT NULL,
		cost_basis TEXT NOT NULL,
		realized_pnl TEXT NOT NULL,
		total_fees TEXT NOT NULL,
		last_trade_id TEXT,
		last_trade_at INTEGER,
		drift_detected INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (wallet_address, bot_id, market_index)
	);

	CREATE TABLE IF NOT EXISTS equity_events (
		id TEXT PRIMARY KEY,
		wallet_address TEXT NOT NULL,
		bot_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		amount TEXT NOT NULL,
		signature TEXT,
		recorded_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_equity_wallet ON equity_events(wallet_address);

	CREATE TABLE IF NOT EXISTS retry_jobs (
		trade_id TEXT PRIMARY KEY,
		attempts INTEGER NOT NULL,
		next_attempt_at INTEGER NOT NULL,
		last_error TEXT,
		status TEXT NOT NULL DEFAULT 'pending'
	);

	CREATE INDEX IF NOT EXISTS idx_retry_status ON retry_jobs(status);

	CREATE TABLE IF NOT EXISTS nonces (
		hash BLOB PRIMARY KEY,
		wallet_address TEXT NOT NULL,
		purpose TEXT NOT NULL,
		expires_at INTEGER NOT NULL,
		used_at INTEGER
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertWallet(ctx context.Context, w Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO wallets (address, user_salt, created_at) VALUES (?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET user_salt = excluded.user_salt`,
		w.Address.String(), w.UserSalt[:], w.CreatedAt.Unix())
	return err
}

func (s *SQLiteStore) GetWallet(ctx context.Context, addr svm.PublicKey) (Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx, `SELECT address, user_salt, created_at FROM wallets WHERE address = ?`, addr.String())
	var (
		addrStr   string
		userSalt  []byte
		createdAt int64
	)
	if err := row.Scan(&addrStr, &userSalt, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return Wallet{}, ErrNotFound
		}
		return Wallet{}, err
	}
	w := Wallet{CreatedAt: time.Unix(createdAt, 0)}
	pk, err := svm.PublicKeyFromBase58(addrStr)
	if err != nil {
		return Wallet{}, err
	}
	w.Address = pk
	copy(w.UserSalt[:], userSalt)
	return w, nil
}

func (s *SQLiteStore) UpsertAgentKey(ctx context.Context, k AgentKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_keys (wallet_address, public_address, encrypted_secret, derivation_index, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(wallet_address) DO UPDATE SET
			public_address = excluded.public_address,
			encrypted_secret = excluded.encrypted_secret,
			derivation_index = excluded.derivation_index`,
		k.WalletAddress.String(), k.PublicAddress.String(), k.EncryptedSecret, k.DerivationIndex, k.CreatedAt.Unix())
	return err
}

func (s *SQLiteStore) GetAgentKey(ctx context.Context, wallet svm.PublicKey) (AgentKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx, `
		SELECT wallet_address, public_address, encrypted_secret, derivation_index, created_at
		FROM agent_keys WHERE wallet_address = ?`, wallet.String())
	var (
		walletStr, pubStr string
		secret            []byte
		idx               uint32
		createdAt         int64
	)
	if err := row.Scan(&walletStr, &pubStr, &secret, &idx, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return AgentKey{}, ErrNotFound
		}
		return AgentKey{}, err
	}
	walletPK, err := svm.PublicKeyFromBase58(walletStr)
	if err != nil {
		return AgentKey{}, err
	}
	pubPK, err := svm.PublicKeyFromBase58(pubStr)
	if err != nil {
		return AgentKey{}, err
	}
	return AgentKey{
		WalletAddress:   walletPK,
		PublicAddress:   pubPK,
		EncryptedSecret: secret,
		DerivationIndex: idx,
		CreatedAt:       time.Unix(createdAt, 0),
	}, nil
}

func (s *SQLiteStore) UpsertSubaccount(ctx context.Context, sa Subaccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	paused := 0
	if sa.Paused {
		paused = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subaccounts (wallet_address, sub_id, bot_id, created_at, paused, allocation_key)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(wallet_address, sub_id) DO UPDATE SET bot_id = excluded.bot_id, paused = excluded.paused`,
		sa.WalletAddress.String(), sa.SubID, sa.BotID, sa.CreatedAt.Unix(), paused, sa.AllocationKey)
	return err
}

func (s *SQLiteStore) ListSubaccounts(ctx context.Context, wallet svm.PublicKey) ([]Subaccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `
		SELECT wallet_address, sub_id, bot_id, created_at, paused, allocation_key FROM subaccounts WHERE wallet_address = ? ORDER BY sub_id`,
		wallet.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Subaccount
	for rows.Next() {
		var (
			walletStr     string
			subID         uint16
			botID         string
			createdAt     int64
			paused        int
			allocationKey string
		)
		if err := rows.Scan(&walletStr, &subID, &botID, &createdAt, &paused, &allocationKey); err != nil {
			return nil, err
		}
		pk, err := svm.PublicKeyFromBase58(walletStr)
		if err != nil {
			return nil, err
		}
		out = append(out, Subaccount{
			WalletAddress: pk,
			SubID:         subID,
			BotID:         botID,
			CreatedAt:     time.Unix(createdAt, 0),
			Paused:        paused != 0,
			AllocationKey: allocationKey,
		})
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetLocalPosition(ctx context.Context, wallet svm.PublicKey, bot string, market uint16) (LocalPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx, `
		SELECT wallet_address, bot_id, market_index, base_size, avg_entry, cost_basis, realized_pnl, total_fees,
		       last_trade_id, last_trade_at, drift_detected
		FROM local_positions WHERE wallet_address = ? AND bot_id = ? AND market_index = ?`,
		wallet.String(), bot, market)

	lp, err := scanLocalPosition(row.Scan)
	if err == sql.ErrNoRows {
		return LocalPosition{}, ErrNotFound
	}
	return lp, err
}

// scanLocalPosition decodes one local_positions row from any Scan-shaped
// source (a *sql.Row or *sql.Rows).
func scanLocalPosition(scan func(dest ...any) error) (LocalPosition, error) {
	var (
		walletStr   string
		botID       string
		marketIdx   uint16
		baseSize    string
		avgEntry    string
		costBasis   string
		realizedPnL string
		totalFees   string
		lastTradeID sql.NullString
		lastTradeAt sql.NullInt64
		drift       int
	)
	if err := scan(&walletStr, &botID, &marketIdx, &baseSize, &avgEntry, &costBasis, &realizedPnL, &totalFees,
		&lastTradeID, &lastTradeAt, &drift); err != nil {
		return LocalPosition{}, err
	}

	pk, err := svm.PublicKeyFromBase58(walletStr)
	if err != nil {
		return LocalPosition{}, err
	}

	lp := LocalPosition{
		WalletAddress: pk,
		BotID:         botID,
		MarketIndex:   marketIdx,
		DriftDetected: drift != 0,
	}
	lp.BaseSize, err = decimal.NewFromString(baseSize)
	if err != nil {
		return LocalPosition{}, err
	}
	lp.AvgEntry, err = decimal.NewFromString(avgEntry)
	if err != nil {
		return LocalPosition{}, err
	}
	lp.CostBasis, err = decimal.NewFromString(costBasis)
	if err != nil {
		return LocalPosition{}, err
	}
	lp.RealizedPnL, err = decimal.NewFromString(realizedPnL)
	if err != nil {
		return LocalPosition{}, err
	}
	lp.TotalFees, err = decimal.NewFromString(totalFees)
	if err != nil {
		return LocalPosition{}, err
	}
	if lastTradeID.Valid {
		lp.LastTradeID = lastTradeID.String
	}
	if lastTradeAt.Valid {
		lp.LastTradeAt = time.Unix(lastTradeAt.Int64, 0)
	}
	return lp, nil
}

func (s *SQLiteStore) ListLocalPositions(ctx context.Context, wallet svm.PublicKey, bot string) ([]LocalPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `
		SELECT wallet_address, bot_id, market_index, base_size, avg_entry, cost_basis, realized_pnl, total_fees,
		       last_trade_id, last_trade_at, drift_detected
		FROM local_positions WHERE wallet_address = ? AND bot_id = ? ORDER BY market_index`,
		wallet.String(), bot)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LocalPosition
	for rows.Next() {
		lp, err := scanLocalPosition(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, lp)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpsertLocalPosition(ctx context.Context, pos LocalPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	drift := 0
	if pos.DriftDetected {
		drift = 1
	}
	var lastTradeAt int64
	if !pos.LastTradeAt.IsZero() {
		lastTradeAt = pos.LastTradeAt.Unix()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO local_positions (wallet_address, bot_id, market_index, base_size, avg_entry, cost_basis,
			realized_pnl, total_fees, last_trade_id, last_trade_at, drift_detected)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(wallet_address, bot_id, market_index) DO UPDATE SET
			base_size = excluded.base_size,
			avg_entry = excluded.avg_entry,
			cost_basis = excluded.cost_basis,
			realized_pnl = excluded.realized_pnl,
			total_fees = excluded.total_fees,
			last_trade_id = excluded.last_trade_id,
			last_trade_at = excluded.last_trade_at,
			drift_detected = excluded.drift_detected`,
		pos.WalletAddress.String(), pos.BotID, pos.MarketIndex,
		pos.BaseSize.String(), pos.AvgEntry.String(), pos.CostBasis.String(),
		pos.RealizedPnL.String(), pos.TotalFees.String(),
		pos.LastTradeID, lastTradeAt, drift)
	return err
}

func (s *SQLiteStore) AppendEquityEvent(ctx context.Context, e EquityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO equity_events (id, wallet_address, bot_id, kind, amount, signature, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.WalletAddress.String(), e.BotID, e.Kind, e.Amount.String(), e.Signature, e.RecordedAt.Unix())
	return err
}

func (s *SQLiteStore) UpsertRetryJob(ctx context.Context, j RetryJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO retry_jobs (trade_id, attempts, next_attempt_at, last_error, status)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(trade_id) DO UPDATE SET
			attempts = excluded.attempts,
			next_attempt_at = excluded.next_attempt_at,
			last_error = excluded.last_error,
			status = excluded.status`,
		j.TradeID, j.Attempts, j.NextAttemptAt.Unix(), j.LastError, j.Status)
	return err
}

func (s *SQLiteStore) ListPendingRetryJobs(ctx context.Context) ([]RetryJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `
		SELECT trade_id, attempts, next_attempt_at, last_error, status FROM retry_jobs WHERE status = 'pending'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RetryJob
	for rows.Next() {
		var (
			j             RetryJob
			nextAttemptAt int64
			lastError     sql.NullString
		)
		if err := rows.Scan(&j.TradeID, &j.Attempts, &nextAttemptAt, &lastError, &j.Status); err != nil {
			return nil, err
		}
		j.NextAttemptAt = time.Unix(nextAttemptAt, 0)
		if lastError.Valid {
			j.LastError = lastError.String
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpsertNonce(ctx context.Context, n NonceRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var usedAt sql.NullInt64
	if n.UsedAt != nil {
		usedAt = sql.NullInt64{Int64: n.UsedAt.Unix(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO nonces (hash, wallet_address, purpose, expires_at, used_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(hash) DO UPDATE SET used_at = excluded.used_at`,
		n.Hash[:], n.Wallet.String(), n.Purpose, n.ExpiresAt.Unix(), usedAt)
	return err
}

func (s *SQLiteStore) MarkNonceUsed(ctx context.Context, hash [32]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `UPDATE nonces SET used_at = ? WHERE hash = ?`, time.Now().Unix(), hash[:])
	return err
}

func (s *SQLiteStore) ListActiveBots(ctx context.Context) ([]ActiveBot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT wallet_address, bot_id FROM subaccounts WHERE paused = 0`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ActiveBot
	for rows.Next() {
		var walletStr, botID string
		if err := rows.Scan(&walletStr, &botID); err != nil {
			return nil, err
		}
		pk, err := svm.PublicKeyFromBase58(walletStr)
		if err != nil {
			return nil, err
		}
		out = append(out, ActiveBot{WalletAddress: pk, BotID: botID})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// SQLite's own row order for a SELECT DISTINCT is an implementation
	// detail, not a guarantee; the sweep's callers (and its tests) expect a
	// stable order, so sort by wallet address bytes, then bot id.
	sort.Slice(out, func(i, j int) bool {
		if c := helpers.CompareBytes(out[i].WalletAddress[:], out[j].WalletAddress[:]); c != 0 {
			return c < 0
		}
		return out[i].BotID < out[j].BotID
	})
	return out, nil
}
