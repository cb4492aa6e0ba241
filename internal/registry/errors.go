package registry

import "errors"

var (
	ErrInvalidSecretFormat   = errors.New("invalid secret format")
	ErrInvalidAliasFormat    = errors.New("invalid alias format")
	ErrAliasRequired         = errors.New("alias required for private entry")
	ErrAliasTaken            = errors.New("alias taken")
	ErrAlreadyRegistered     = errors.New("identity already registered")
	ErrTooManyRegistrations  = errors.New("too many registrations")
	ErrAlreadyHasPublicEntry = errors.New("owner already has a public entry")
	ErrAliasNotFound         = errors.New("alias not found")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrNotOwner              = errors.New("not the entry owner")
	ErrInsufficientPayment   = errors.New("insufficient registration payment")
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrInsufficientBalance   = errors.New("insufficient retained balance")
	ErrFeeOutOfRange         = errors.New("fee out of range")
	ErrTransferFailed        = errors.New("transfer failed")
	ErrReentrantCall         = errors.New("reentrant call")
)
