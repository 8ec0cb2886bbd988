package escrow

import (
	"errors"

	"seaescrow/crypto"
)

var (
	// ErrInvalidState is returned when an operation is attempted from a state
	// that has no edge for it.
	ErrInvalidState = errors.New("escrow: invalid state for operation")
	// ErrUnauthorized is returned when the caller is not the identity recorded
	// on the order for the operation.
	ErrUnauthorized = errors.New("escrow: caller not authorized")
	// ErrAccountMismatch is returned when a supplied account reference differs
	// from the one recorded on the order.
	ErrAccountMismatch = errors.New("escrow: account does not match order record")
	// ErrTransferFailed wraps any failure reported by the token service.
	ErrTransferFailed = errors.New("escrow: token transfer failed")

	ErrOrderNotFound      = errors.New("escrow: order not found")
	ErrAlreadyInitialized = errors.New("escrow: order already initialized")
	ErrInvalidArgument    = errors.New("escrow: invalid argument")
	ErrSchemaMismatch     = errors.New("escrow: order record schema mismatch")
	ErrDerivationMismatch = crypto.ErrDerivationMismatch

	errNilState  = errors.New("escrow engine: state not configured")
	errNilTokens = errors.New("escrow engine: token service not configured")
)
