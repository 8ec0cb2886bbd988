package core

import (
	"seaescrow/core/state"
	"seaescrow/crypto"
	"seaescrow/native/escrow"
	"seaescrow/native/token"
)

// Read-only queries open a throwaway journal and never commit it.

func (r *Runtime) reader() (*state.Manager, func()) {
	journal := state.NewManager(r.db)
	return journal, journal.Discard
}

// Order returns the stored order at addr.
func (r *Runtime) Order(addr crypto.Address) (*escrow.Order, error) {
	journal, done := r.reader()
	defer done()
	engine := escrow.NewEngine(r.programID)
	engine.SetState(journal)
	tokens := token.NewEngine(r.tokenProgramID)
	tokens.SetState(journal)
	engine.SetTokens(tokens)
	return engine.Order(addr)
}

// DeriveOrder returns the order identity, custody bump and vault a seller
// would get for orderID.
func (r *Runtime) DeriveOrder(seller crypto.Address, orderID uint16) (crypto.Address, uint8, crypto.Address, error) {
	return escrow.NewEngine(r.programID).DeriveOrderAddress(seller, orderID)
}

// SellerOrders lists the orders created by seller.
func (r *Runtime) SellerOrders(seller crypto.Address) ([]crypto.Address, error) {
	journal, done := r.reader()
	defer done()
	return journal.SellerOrders(seller)
}

func (r *Runtime) TokenAccount(addr crypto.Address) (*token.Account, error) {
	journal, done := r.reader()
	defer done()
	tokens := token.NewEngine(r.tokenProgramID)
	tokens.SetState(journal)
	return tokens.Account(addr)
}

func (r *Runtime) Mint(addr crypto.Address) (*token.Mint, error) {
	journal, done := r.reader()
	defer done()
	tokens := token.NewEngine(r.tokenProgramID)
	tokens.SetState(journal)
	return tokens.Mint(addr)
}

// OwnerAccounts lists the token accounts whose authority is owner.
func (r *Runtime) OwnerAccounts(owner crypto.Address) ([]crypto.Address, error) {
	journal, done := r.reader()
	defer done()
	return journal.OwnerAccounts(owner)
}

// DeriveTokenAccount returns the associated token account of owner for mint.
func (r *Runtime) DeriveTokenAccount(owner, mint crypto.Address) (crypto.Address, error) {
	addr, _, err := token.NewEngine(r.tokenProgramID).AssociatedAddress(owner, mint)
	return addr, err
}

// DeriveMint returns the mint address authority gets for symbol.
func (r *Runtime) DeriveMint(authority crypto.Address, symbol string) (crypto.Address, error) {
	addr, _, err := token.NewEngine(r.tokenProgramID).MintAddress(authority, symbol)
	return addr, err
}

// Nonce returns the last accepted nonce of addr.
func (r *Runtime) Nonce(addr crypto.Address) (uint64, error) {
	journal, done := r.reader()
	defer done()
	return journal.Nonce(addr)
}
