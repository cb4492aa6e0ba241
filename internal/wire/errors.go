package wire

import (
	"errors"

	"credrelay/internal/ident"
	"credrelay/internal/ledger"
	"credrelay/internal/registry"
)

// Error kinds as stable wire strings. Clients branch on the kind; the
// message is advisory.
const (
	KindInvalidIdentity     = "invalid_identity"
	KindInvalidAmount       = "invalid_amount"
	KindInvalidPayload      = "invalid_payload"
	KindInsufficientCredit  = "insufficient_credit"
	KindInsufficientBalance = "insufficient_balance"
	KindAmountBelowFee      = "amount_below_fee"
	KindUnauthorized        = "unauthorized"
	KindInvalidSecret       = "invalid_secret"
	KindPaused              = "paused"
	KindFeeOutOfRange       = "fee_out_of_range"
	KindLengthMismatch      = "length_mismatch"
	KindTransferFailed      = "transfer_failed"
	KindReentrantCall       = "reentrant_call"

	KindInvalidSecretFormat = "invalid_secret_format"
	KindInvalidAliasFormat  = "invalid_alias_format"
	KindAliasRequired       = "alias_required"
	KindAliasTaken          = "alias_taken"
	KindAlreadyRegistered   = "already_registered"
	KindTooManyEntries      = "too_many_registrations"
	KindAlreadyHasPublic    = "already_has_public_entry"
	KindAliasNotFound       = "alias_not_found"
	KindNotOwner            = "not_owner"
	KindInsufficientPayment = "insufficient_payment"

	KindBadRequest = "bad_request"
	KindInternal   = "internal"
)

var kinds = []struct {
	err  error
	kind string
}{
	{ledger.ErrInvalidIdentity, KindInvalidIdentity},
	{ledger.ErrInvalidAmount, KindInvalidAmount},
	{ledger.ErrInvalidPayload, KindInvalidPayload},
	{ledger.ErrInsufficientCredit, KindInsufficientCredit},
	{ledger.ErrInsufficientBalance, KindInsufficientBalance},
	{ledger.ErrAmountBelowFee, KindAmountBelowFee},
	{ledger.ErrUnauthorized, KindUnauthorized},
	{ledger.ErrInvalidSecret, KindInvalidSecret},
	{ledger.ErrPaused, KindPaused},
	{ledger.ErrFeeOutOfRange, KindFeeOutOfRange},
	{ledger.ErrLengthMismatch, KindLengthMismatch},
	{ledger.ErrTransferFailed, KindTransferFailed},
	{ledger.ErrReentrantCall, KindReentrantCall},

	{registry.ErrInvalidSecretFormat, KindInvalidSecretFormat},
	{registry.ErrInvalidAliasFormat, KindInvalidAliasFormat},
	{registry.ErrAliasRequired, KindAliasRequired},
	{registry.ErrAliasTaken, KindAliasTaken},
	{registry.ErrAlreadyRegistered, KindAlreadyRegistered},
	{registry.ErrTooManyRegistrations, KindTooManyEntries},
	{registry.ErrAlreadyHasPublicEntry, KindAlreadyHasPublic},
	{registry.ErrAliasNotFound, KindAliasNotFound},
	{registry.ErrNotOwner, KindNotOwner},
	{registry.ErrInsufficientPayment, KindInsufficientPayment},
	{registry.ErrInvalidAmount, KindInvalidAmount},
	{registry.ErrInsufficientBalance, KindInsufficientBalance},
	{registry.ErrUnauthorized, KindUnauthorized},
	{registry.ErrFeeOutOfRange, KindFeeOutOfRange},
	{registry.ErrTransferFailed, KindTransferFailed},
	{registry.ErrReentrantCall, KindReentrantCall},

	{ident.ErrSecretFormat, KindInvalidSecretFormat},
}

// Kind maps a core error to its wire string. Unknown errors are
// reported as internal rather than leaking their text structure.
func Kind(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}
