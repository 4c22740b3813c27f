// Package ipc defines the line-delimited JSON command/response protocol
// spoken between the orchestrator and the out-of-process executor
// (cmd/perpcore-exec).
package ipc

import "encoding/json"

// Action identifies which operation a Command requests.
type Action string

const (
	ActionTrade            Action = "trade"
	ActionClose            Action = "close"
	ActionDeposit          Action = "deposit"
	ActionSettlePnL        Action = "settle_pnl"
	ActionDeleteSubaccount Action = "delete_subaccount"
)

// Command is the single JSON object written to the child's stdin.
// Exactly one of EncryptedPrivateKey or PrivateKeyBase58 must be present.
type Command struct {
	Action              Action          `json:"action"`
	EncryptedPrivateKey json.RawMessage `json:"encrypted_private_key,omitempty"`
	PrivateKeyBase58    string          `json:"private_key_base58,omitempty"`

	MarketIndex  *uint16  `json:"market_index,omitempty"`
	Side         string   `json:"side,omitempty"`
	SizeBase     *float64 `json:"size_base,omitempty"`
	SubID        *uint16  `json:"sub_id,omitempty"`
	ReduceOnly   bool     `json:"reduce_only,omitempty"`
	SlippageBps  *uint32  `json:"slippage_bps,omitempty"`
	AmountUSDC   *float64 `json:"amount_usdc,omitempty"`
}

// Response is the single JSON object the child writes to stdout.
type Response struct {
	Success   bool     `json:"success"`
	Signature string   `json:"signature,omitempty"`
	Error     string   `json:"error,omitempty"`
	FillPrice *float64 `json:"fill_price,omitempty"`
}

// HasExactlyOneKeyField reports whether exactly one of the two key
// transport fields is populated, per the protocol's invariant.
func (c Command) HasExactlyOneKeyField() bool {
	hasEncrypted := len(c.EncryptedPrivateKey) > 0
	hasPlain := c.PrivateKeyBase58 != ""
	return hasEncrypted != hasPlain
}

// MinKeyLen and MaxKeyLen bound the base58 private-key length the
// protocol accepts before refusing to spawn.
const (
	MinKeyLen = 80
	MaxKeyLen = 95
)

// KeyLengthSane reports whether a base58 private key string falls within
// the protocol's sanity bounds.
func KeyLengthSane(base58Key string) bool {
	n := len(base58Key)
	return n >= MinKeyLen && n <= MaxKeyLen
}
