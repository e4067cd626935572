package errors

import "errors"

var (
	ErrInvalidEvent       = errors.New("invalid audit event")
	ErrTipConflict        = errors.New("chain tip conflict")
	ErrChainWrite         = errors.New("chain write failed")
	ErrSigningUnavailable = errors.New("signing key unavailable")
	ErrStoreUnavailable   = errors.New("audit store unavailable")
)
