package trading

import (
	"errors"
	"strings"
)

// Stable error kinds surfaced to callers. Components wrap these with
// fmt.Errorf("...: %w", Err...) so errors.Is keeps working across layers.
var (
	ErrInvalidAddress       = errors.New("invalid address")
	ErrAlreadyExists        = errors.New("wallet already exists")
	ErrNotFound             = errors.New("wallet not found")
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrDecryptionFailed     = errors.New("decryption failed")
	ErrFeeCollectionFailed  = errors.New("fee collection failed")
	ErrQuoteUnavailable     = errors.New("quote unavailable")
	ErrTransactionTimeout   = errors.New("transaction timeout")
	ErrTransactionRejected  = errors.New("transaction rejected")
	ErrSessionAlreadyActive = errors.New("session already active")
	ErrSelfFollow           = errors.New("cannot follow own address")
	ErrBalanceUnavailable   = errors.New("balance unavailable")
	ErrInvalidSetting       = errors.New("invalid setting value")
)

// Retryable reports whether the executor may retry the whole swap cycle.
// Only transient submission failures qualify; everything else surfaces
// immediately with its kind intact.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransactionTimeout) {
		return true
	}
	if errors.Is(err, ErrTransactionRejected) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrFeeCollectionFailed) {
		return false
	}
	return classifyMessage(err.Error()) == ErrTransactionTimeout
}

// ClassifyLedger maps a raw ledger error onto a stable kind. Ledger and
// aggregator APIs report failures as free-form strings, so this matching
// is by message, mirroring what the upstream clients return.
func ClassifyLedger(err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range []error{
		ErrTransactionTimeout, ErrTransactionRejected,
		ErrInsufficientBalance, ErrQuoteUnavailable,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return classifyMessage(err.Error())
}

func classifyMessage(msg string) error {
	l := strings.ToLower(msg)
	switch {
	case strings.Contains(l, "blockhash not found"),
		strings.Contains(l, "block height exceeded"),
		strings.Contains(l, "timeout"),
		strings.Contains(l, "deadline exceeded"),
		strings.Contains(l, "failed to send"),
		strings.Contains(l, "connection reset"):
		return ErrTransactionTimeout
	case strings.Contains(l, "insufficient funds"),
		strings.Contains(l, "insufficient lamports"),
		strings.Contains(l, "insufficient balance"):
		return ErrInsufficientBalance
	case strings.Contains(l, "slippage tolerance exceeded"),
		strings.Contains(l, "custom program error"),
		strings.Contains(l, "rejected"):
		return ErrTransactionRejected
	default:
		return ErrTransactionRejected
	}
}
