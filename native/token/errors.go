package token

import "errors"

var (
	ErrOwnerMismatch     = errors.New("token: authority does not own the source account")
	ErrMintMismatch      = errors.New("token: accounts hold different mints")
	ErrAccountFrozen     = errors.New("token: account frozen")
	ErrInsufficientFunds = errors.New("token: insufficient funds")
	ErrAccountNotFound   = errors.New("token: account not found")
	ErrAccountExists     = errors.New("token: account already exists")
	ErrMintNotFound      = errors.New("token: mint not found")
	ErrMintExists        = errors.New("token: mint already exists")
	ErrInvalidMint       = errors.New("token: invalid mint")
	ErrUnauthorized      = errors.New("token: unauthorized")
	ErrOverflow          = errors.New("token: amount overflow")

	errNilState = errors.New("token engine: state not configured")
)
