package core

import (
	"errors"

	"seaescrow/crypto"
	"seaescrow/native/escrow"
	"seaescrow/native/token"
)

var (
	ErrInvalidSignature   = errors.New("runtime: invalid instruction signature")
	ErrNonceMismatch      = errors.New("runtime: nonce mismatch")
	ErrUnknownInstruction = errors.New("runtime: unknown instruction kind")
	ErrInvalidPayload     = errors.New("runtime: invalid instruction payload")
	ErrProgramIDRequired  = errors.New("runtime: program id required")
)

// Error classes reported on receipts and mapped to RPC error codes.
const (
	ClassInvalidState       = "invalid_state"
	ClassUnauthorized       = "unauthorized"
	ClassAccountMismatch    = "account_mismatch"
	ClassTransferFailed     = "transfer_failed"
	ClassNotFound           = "not_found"
	ClassAlreadyExists      = "already_exists"
	ClassInvalidArgument    = "invalid_argument"
	ClassNonce              = "nonce"
	ClassSignature          = "signature"
	ClassDerivationMismatch = "derivation_mismatch"
	ClassInternal           = "internal"
)

// Classify maps an execution error to its stable class name. Order matters:
// escrow errors wrap token errors and the outer one wins.
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, escrow.ErrTransferFailed):
		return ClassTransferFailed
	case errors.Is(err, escrow.ErrInvalidArgument):
		return ClassInvalidArgument
	case errors.Is(err, escrow.ErrInvalidState):
		return ClassInvalidState
	case errors.Is(err, escrow.ErrUnauthorized),
		errors.Is(err, token.ErrUnauthorized),
		errors.Is(err, token.ErrOwnerMismatch):
		return ClassUnauthorized
	case errors.Is(err, escrow.ErrAccountMismatch), errors.Is(err, token.ErrMintMismatch):
		return ClassAccountMismatch
	case errors.Is(err, escrow.ErrOrderNotFound),
		errors.Is(err, token.ErrAccountNotFound),
		errors.Is(err, token.ErrMintNotFound):
		return ClassNotFound
	case errors.Is(err, escrow.ErrAlreadyInitialized),
		errors.Is(err, token.ErrAccountExists),
		errors.Is(err, token.ErrMintExists):
		return ClassAlreadyExists
	case errors.Is(err, ErrNonceMismatch):
		return ClassNonce
	case errors.Is(err, ErrInvalidSignature):
		return ClassSignature
	case errors.Is(err, crypto.ErrDerivationMismatch):
		return ClassDerivationMismatch
	case errors.Is(err, ErrInvalidPayload),
		errors.Is(err, ErrUnknownInstruction),
		errors.Is(err, token.ErrInvalidMint),
		errors.Is(err, token.ErrInsufficientFunds),
		errors.Is(err, token.ErrAccountFrozen),
		errors.Is(err, token.ErrOverflow):
		return ClassInvalidArgument
	default:
		return ClassInternal
	}
}
