// Package classify maps raw program/RPC failures into the stable error
// taxonomy callers key their recovery logic on: a typed Kind enum plus a
// program-error-code lookup table.
package classify

import (
	"fmt"

	"github.com/perpcore/agent-core/internal/metrics"
)

// Kind is a stable, caller-facing error category.
type Kind string

const (
	KindInsufficientGas        Kind = "InsufficientGas"
	KindInsufficientCollateral Kind = "InsufficientCollateral"
	KindAccountNotInitialized  Kind = "AccountNotInitialized"
	KindAccountAlreadyInit     Kind = "AccountAlreadyInitialized"
	KindOracleUnavailable      Kind = "OracleUnavailable"
	KindMaxPositionExceeded    Kind = "MaxPositionExceeded"
	KindInvalidKey             Kind = "InvalidKey"
	KindCancelled              Kind = "Cancelled"
	KindTimeout                Kind = "Timeout"
	KindRateLimited            Kind = "RateLimited"
	KindTransactionFailed      Kind = "TransactionFailed"
)

// ClassifiedError is the discriminated failure shape the orchestrator
// returns to callers: a stable Kind, a human detail, the raw program code
// when one was present, and an optional suggested next action.
type ClassifiedError struct {
	Kind            Kind
	Detail          string
	Code            *uint32
	SuggestedAction string
	RetryAfterMS    int64
}

func (e *ClassifiedError) Error() string {
	if e.Code != nil {
		return fmt.Sprintf("%s (code %d): %s", e.Kind, *e.Code, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// programCodeMessages maps the recognized custom program error codes.
var programCodeMessages = map[uint32]Kind{
	6001: KindAccountNotInitialized,
	6010: KindInsufficientCollateral,
	6036: KindOracleUnavailable,
	6040: KindMaxPositionExceeded,
	6214: KindAccountAlreadyInit,
}

// FromProgramCode classifies a raw on-chain custom program error code,
// falling back to TransactionFailed for anything unrecognized.
func FromProgramCode(code uint32, detail string) *ClassifiedError {
	kind, ok := programCodeMessages[code]
	if !ok {
		kind = KindTransactionFailed
	}
	c := code
	metrics.ErrorsClassified.WithLabelValues(string(kind)).Inc()
	return &ClassifiedError{
		Kind:   kind,
		Detail: detail,
		Code:   &c,
	}
}

// IsAlreadyInitialized reports whether err represents the idempotent
// init-race the orchestrator treats as success.
func IsAlreadyInitialized(err error) bool {
	ce, ok := err.(*ClassifiedError)
	return ok && ce.Kind == KindAccountAlreadyInit
}

// Timeout builds a Timeout-kind error for RPC or subprocess deadlines.
func Timeout(detail string) *ClassifiedError {
	metrics.ErrorsClassified.WithLabelValues(string(KindTimeout)).Inc()
	return &ClassifiedError{Kind: KindTimeout, Detail: detail, SuggestedAction: "retry via RetryJob"}
}

// Cancelled builds a Cancelled-kind error for caller-initiated aborts.
func Cancelled(detail string) *ClassifiedError {
	metrics.ErrorsClassified.WithLabelValues(string(KindCancelled)).Inc()
	return &ClassifiedError{Kind: KindCancelled, Detail: detail}
}

// RateLimited builds a RateLimited-kind error carrying how long the
// caller must wait before retrying.
func RateLimited(detail string, retryAfterMS int64) *ClassifiedError {
	metrics.ErrorsClassified.WithLabelValues(string(KindRateLimited)).Inc()
	return &ClassifiedError{Kind: KindRateLimited, Detail: detail, RetryAfterMS: retryAfterMS, SuggestedAction: "respect retry_after_ms"}
}

// InsufficientGas builds an InsufficientGas-kind error.
func InsufficientGas(detail string) *ClassifiedError {
	metrics.ErrorsClassified.WithLabelValues(string(KindInsufficientGas)).Inc()
	return &ClassifiedError{Kind: KindInsufficientGas, Detail: detail, SuggestedAction: "surface, suggest deposit"}
}

// InvalidKey builds an InvalidKey-kind error for a malformed decrypted key.
func InvalidKey(detail string) *ClassifiedError {
	metrics.ErrorsClassified.WithLabelValues(string(KindInvalidKey)).Inc()
	return &ClassifiedError{Kind: KindInvalidKey, Detail: detail, SuggestedAction: "fatal; surface"}
}

// OracleUnavailable builds an OracleUnavailable-kind error.
func OracleUnavailable(detail string) *ClassifiedError {
	metrics.ErrorsClassified.WithLabelValues(string(KindOracleUnavailable)).Inc()
	return &ClassifiedError{Kind: KindOracleUnavailable, Detail: detail, SuggestedAction: "retry with fallback oracle once"}
}
