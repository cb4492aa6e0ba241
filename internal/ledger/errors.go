package ledger

import "errors"

// Every operation fails with exactly one of these kinds; a failed
// precondition aborts with no partial mutation.
var (
	ErrInvalidIdentity     = errors.New("invalid identity")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidPayload      = errors.New("invalid payload")
	ErrInsufficientCredit  = errors.New("insufficient credit")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrAmountBelowFee      = errors.New("amount below fee")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInvalidSecret       = errors.New("invalid secret")
	ErrPaused              = errors.New("ledger paused")
	ErrFeeOutOfRange       = errors.New("fee out of range")
	ErrLengthMismatch      = errors.New("length mismatch")
	ErrTransferFailed      = errors.New("transfer failed")
	ErrReentrantCall       = errors.New("reentrant call rejected")
)
