package escrow

import (
	"errors"
	"fmt"

	"seaescrow/core/events"
	"seaescrow/core/types"
	"seaescrow/crypto"
	"seaescrow/native/token"
)

type engineState interface {
	OrderGet(addr crypto.Address) (*Order, bool, error)
	OrderPut(*Order) error
}

// tokenService is the slice of the token engine the escrow core relies on.
// Balances are never touched directly.
type tokenService interface {
	Mint(addr crypto.Address) (*token.Mint, error)
	Account(addr crypto.Address) (*token.Account, error)
	InitializeAccount(addr, mint, owner crypto.Address) error
	Transfer(from, to crypto.Address, amount uint64, authority crypto.Signer) error
}

// Engine runs the order lifecycle. It is not safe for concurrent use on its
// own; the runtime serializes instructions that touch the same accounts and
// gives every instruction a fresh state journal.
type Engine struct {
	programID crypto.Address
	state     engineState
	tokens    tokenService
	emitter   events.Emitter
}

// NewEngine creates an escrow engine bound to programID, the identity every
// order and vault address is derived under.
func NewEngine(programID crypto.Address) *Engine {
	return &Engine{programID: programID, emitter: events.NoopEmitter{}}
}

func (e *Engine) ProgramID() crypto.Address { return e.programID }

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetTokens configures the token service the engine delegates transfers to.
func (e *Engine) SetTokens(tokens tokenService) { e.tokens = tokens }

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(events.Wrap(evt))
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.tokens == nil {
		return errNilTokens
	}
	return nil
}

// DeriveOrderAddress returns the order identity, custody bump and vault
// address that InitOrder would produce for (seller, orderID).
func (e *Engine) DeriveOrderAddress(seller crypto.Address, orderID uint16) (crypto.Address, uint8, crypto.Address, error) {
	orderAddr, bump, err := DeriveOrderAddress(e.programID, seller, orderID)
	if err != nil {
		return crypto.Address{}, 0, crypto.Address{}, err
	}
	vault, err := DeriveVaultAddress(e.programID, orderAddr)
	if err != nil {
		return crypto.Address{}, 0, crypto.Address{}, err
	}
	return orderAddr, bump, vault, nil
}

// InitOrderParams carries the seller supplied terms of a new order.
type InitOrderParams struct {
	SellerPayoutAccount crypto.Address
	AssetType           crypto.Address
	OrderID             uint16
	// Referee selects the arbitrated schema when non-nil.
	Referee *crypto.Address
	Amount  uint64
}

// InitOrder creates the order record and its vault. The vault is a token
// account of the asset whose owner is the order's derived identity.
func (e *Engine) InitOrder(seller crypto.Signer, p InitOrderParams) (*Order, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if seller == nil {
		return nil, fmt.Errorf("%w: seller required", ErrUnauthorized)
	}
	if p.Amount == 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidArgument)
	}
	schema := SchemaTwoParty
	var referee crypto.Address
	if p.Referee != nil {
		if p.Referee.IsZero() {
			return nil, fmt.Errorf("%w: referee must not be the null identity", ErrInvalidArgument)
		}
		schema = SchemaArbitrated
		referee = *p.Referee
	}
	if _, err := e.tokens.Mint(p.AssetType); err != nil {
		return nil, fmt.Errorf("%w: asset type: %w", ErrInvalidArgument, err)
	}
	payout, err := e.tokens.Account(p.SellerPayoutAccount)
	if err != nil {
		return nil, fmt.Errorf("%w: seller payout account: %w", ErrInvalidArgument, err)
	}
	if payout.Mint != p.AssetType {
		return nil, fmt.Errorf("%w: seller payout account holds %s, order asset is %s", ErrInvalidArgument, payout.Mint, p.AssetType)
	}

	orderAddr, bump, vault, err := e.DeriveOrderAddress(seller.Address(), p.OrderID)
	if err != nil {
		return nil, err
	}
	_, exists, err := e.state.OrderGet(orderAddr)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyInitialized, orderAddr)
	}
	if err := e.tokens.InitializeAccount(vault, p.AssetType, orderAddr); err != nil {
		if errors.Is(err, token.ErrAccountExists) {
			return nil, fmt.Errorf("%w: vault %s", ErrAlreadyInitialized, vault)
		}
		return nil, err
	}

	order := &Order{
		Address:             orderAddr,
		Schema:              schema,
		Seller:              seller.Address(),
		OrderID:             p.OrderID,
		CustodyBump:         bump,
		SellerPayoutAccount: p.SellerPayoutAccount,
		Referee:             referee,
		AssetType:           p.AssetType,
		Amount:              p.Amount,
		Vault:               vault,
		State:               OrderPending,
	}
	if err := e.state.OrderPut(order); err != nil {
		return nil, err
	}
	e.emit(NewInitializedEvent(order))
	return order.Clone(), nil
}

// Deposit moves exactly the order amount from the buyer's funding account into
// the vault and records the buyer. Whoever deposits first becomes the buyer.
func (e *Engine) Deposit(buyer crypto.Signer, orderAddr, fundingAccount, vaultRef crypto.Address) (*Order, error) {
	order, err := e.load(orderAddr)
	if err != nil {
		return nil, err
	}
	if order.State != OrderPending {
		return nil, fmt.Errorf("%w: deposit requires pending order, state is %s", ErrInvalidState, order.State)
	}
	if vaultRef != order.Vault {
		return nil, fmt.Errorf("%w: vault %s", ErrAccountMismatch, vaultRef)
	}
	if buyer == nil {
		return nil, fmt.Errorf("%w: buyer required", ErrUnauthorized)
	}
	if err := e.tokens.Transfer(fundingAccount, order.Vault, order.Amount, buyer); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	order.Buyer = buyer.Address()
	order.BuyerRefundAccount = fundingAccount
	if err := order.transition(OrderDeposited); err != nil {
		return nil, err
	}
	if err := e.state.OrderPut(order); err != nil {
		return nil, err
	}
	e.emit(NewDepositedEvent(order))
	return order.Clone(), nil
}

// Release pays the vault's entire balance to the seller's payout account. Only
// the recorded buyer can release.
func (e *Engine) Release(caller crypto.Signer, orderAddr, vaultRef, payoutRef crypto.Address) (*Order, error) {
	order, err := e.load(orderAddr)
	if err != nil {
		return nil, err
	}
	if order.State != OrderDeposited {
		return nil, fmt.Errorf("%w: release requires deposited order, state is %s", ErrInvalidState, order.State)
	}
	if vaultRef != order.Vault {
		return nil, fmt.Errorf("%w: vault %s", ErrAccountMismatch, vaultRef)
	}
	if payoutRef != order.SellerPayoutAccount {
		return nil, fmt.Errorf("%w: payout account %s", ErrAccountMismatch, payoutRef)
	}
	if caller == nil || caller.Address() != order.Buyer {
		return nil, fmt.Errorf("%w: only the buyer can release", ErrUnauthorized)
	}
	moved, err := e.drainVault(order, order.SellerPayoutAccount)
	if err != nil {
		return nil, err
	}
	if err := order.transition(OrderSettled); err != nil {
		return nil, err
	}
	if err := e.state.OrderPut(order); err != nil {
		return nil, err
	}
	e.emit(NewReleasedEvent(order, moved))
	return order.Clone(), nil
}

// Dispute freezes a deposited arbitrated order until the referee refunds it.
func (e *Engine) Dispute(caller crypto.Signer, orderAddr crypto.Address) (*Order, error) {
	order, err := e.load(orderAddr)
	if err != nil {
		return nil, err
	}
	if caller == nil || order.Buyer.IsZero() || caller.Address() != order.Buyer {
		return nil, fmt.Errorf("%w: only the buyer can dispute", ErrUnauthorized)
	}
	if order.State != OrderDeposited {
		return nil, fmt.Errorf("%w: dispute requires deposited order, state is %s", ErrInvalidState, order.State)
	}
	if !order.HasReferee() {
		return nil, fmt.Errorf("%w: order has no referee", ErrInvalidState)
	}
	if err := order.transition(OrderDispute); err != nil {
		return nil, err
	}
	if err := e.state.OrderPut(order); err != nil {
		return nil, err
	}
	e.emit(NewDisputedEvent(order))
	return order.Clone(), nil
}

// Refund returns the vault's entire balance to the buyer's refund account.
// Only the referee of a disputed order can refund.
func (e *Engine) Refund(caller crypto.Signer, orderAddr, vaultRef, refundRef crypto.Address) (*Order, error) {
	order, err := e.load(orderAddr)
	if err != nil {
		return nil, err
	}
	if vaultRef != order.Vault {
		return nil, fmt.Errorf("%w: vault %s", ErrAccountMismatch, vaultRef)
	}
	if order.BuyerRefundAccount.IsZero() || refundRef != order.BuyerRefundAccount {
		return nil, fmt.Errorf("%w: refund account %s", ErrAccountMismatch, refundRef)
	}
	if caller == nil || !order.HasReferee() || caller.Address() != order.Referee {
		return nil, fmt.Errorf("%w: only the referee can refund", ErrUnauthorized)
	}
	if order.State != OrderDispute {
		return nil, fmt.Errorf("%w: refund requires disputed order, state is %s", ErrInvalidState, order.State)
	}
	moved, err := e.drainVault(order, order.BuyerRefundAccount)
	if err != nil {
		return nil, err
	}
	if err := order.transition(OrderRefunded); err != nil {
		return nil, err
	}
	if err := e.state.OrderPut(order); err != nil {
		return nil, err
	}
	e.emit(NewRefundedEvent(order, moved))
	return order.Clone(), nil
}

// Order returns a copy of the stored order.
func (e *Engine) Order(addr crypto.Address) (*Order, error) {
	return e.load(addr)
}

func (e *Engine) load(addr crypto.Address) (*Order, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	order, ok, err := e.state.OrderGet(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, addr)
	}
	return order, nil
}

// drainVault transfers the full vault balance to dest, signed by the order's
// derived identity. A reconstruction failure is returned unwrapped: it is a
// misconfiguration, not a transfer failure.
func (e *Engine) drainVault(order *Order, dest crypto.Address) (uint64, error) {
	authority, err := orderSigner(e.programID, order)
	if err != nil {
		return 0, err
	}
	vault, err := e.tokens.Account(order.Vault)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	if err := e.tokens.Transfer(order.Vault, dest, vault.Amount, authority); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	return vault.Amount, nil
}
