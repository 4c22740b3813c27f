// Package config is this core's single source of truth for runtime
// settings: one Config struct loaded once at startup and passed down by
// value/pointer rather than read from globals scattered through the
// codebase.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/perpcore/agent-core/pkg/helpers"
)

// Env selects the cluster environment, which in turn selects the USDC
// mint, fallback oracle, and airdrop policy.
type Env string

const (
	EnvDevnet  Env = "devnet"
	EnvMainnet Env = "mainnet"
)

// Config holds every recognized runtime option.
type Config struct {
	Env Env `yaml:"env"`

	RPCURL string `yaml:"rpc_url"`

	MinSOLForFees float64 `yaml:"min_sol_for_fees"`
	AirdropAmount float64 `yaml:"airdrop_amount"`

	OracleCacheTTL   time.Duration `yaml:"-"`
	OracleCacheTTLMS int64         `yaml:"oracle_cache_ttl_ms"`

	SessionTTL   time.Duration `yaml:"-"`
	SessionTTLMS int64         `yaml:"session_ttl_ms"`

	NonceTTL   time.Duration `yaml:"-"`
	NonceTTLMS int64         `yaml:"nonce_ttl_ms"`

	// ServerExecutionKey is a 32-byte hex secret gating this server's
	// ability to decrypt agent keys; the process refuses to start
	// without it.
	ServerExecutionKey [32]byte `yaml:"-"`

	DataDir string `yaml:"data_dir"`
}

// Default returns the defaults for a given environment, prior to any
// override from file or environment variables.
func Default(env Env) Config {
	cfg := Config{
		Env:              env,
		OracleCacheTTLMS: 60_000,
		SessionTTLMS:     30 * 60 * 1000,
		NonceTTLMS:       5 * 60 * 1000,
		DataDir:          "./data",
	}
	if env == EnvMainnet {
		cfg.MinSOLForFees = 0.01
	} else {
		cfg.MinSOLForFees = 0.05
		cfg.AirdropAmount = 1.0
	}
	return cfg
}

// Load reads a YAML config file (if path is non-empty and exists), then
// applies environment-variable overrides, then validates and derives the
// time.Duration fields from their *_ms counterparts.
func Load(path string) (Config, error) {
	env := Env(getEnvOr("ENV", string(EnvDevnet)))
	cfg := Default(env)

	if path != "" {
		if data, err := os.ReadFile(path); err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	if v := os.Getenv("RPC_URL"); v != "" {
		cfg.RPCURL = v
	}
	if v := os.Getenv("MIN_SOL_FOR_FEES"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Config{}, fmt.Errorf("config: MIN_SOL_FOR_FEES: %w", err)
		}
		cfg.MinSOLForFees = f
	}
	if v := os.Getenv("AIRDROP_AMOUNT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Config{}, fmt.Errorf("config: AIRDROP_AMOUNT: %w", err)
		}
		cfg.AirdropAmount = f
	}
	if v := os.Getenv("ORACLE_CACHE_TTL_MS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("config: ORACLE_CACHE_TTL_MS: %w", err)
		}
		cfg.OracleCacheTTLMS = n
	}
	if v := os.Getenv("SESSION_TTL_MS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("config: SESSION_TTL_MS: %w", err)
		}
		cfg.SessionTTLMS = n
	}
	if v := os.Getenv("NONCE_TTL_MS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("config: NONCE_TTL_MS: %w", err)
		}
		cfg.NonceTTLMS = n
	}

	keyHex := os.Getenv("SERVER_EXECUTION_KEY")
	if len(keyHex) != 64 {
		return Config{}, fmt.Errorf("config: SERVER_EXECUTION_KEY must be 64 hex chars, got %d", len(keyHex))
	}
	keyBytes, err := helpers.HexToBytes(keyHex)
	if err != nil {
		return Config{}, fmt.Errorf("config: SERVER_EXECUTION_KEY is not valid hex: %w", err)
	}
	copy(cfg.ServerExecutionKey[:], keyBytes)

	cfg.OracleCacheTTL = time.Duration(cfg.OracleCacheTTLMS) * time.Millisecond
	cfg.SessionTTL = time.Duration(cfg.SessionTTLMS) * time.Millisecond
	cfg.NonceTTL = time.Duration(cfg.NonceTTLMS) * time.Millisecond

	return cfg, nil
}

func getEnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
