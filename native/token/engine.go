package token

import (
	"fmt"

	"github.com/holiman/uint256"

	"seaescrow/core/events"
	"seaescrow/core/types"
	"seaescrow/crypto"
)

// DefaultProgramID is the identity under which mint and associated account
// addresses are derived when no override is configured.
var DefaultProgramID = crypto.MustBytesToAddress(crypto.Keccak256([]byte("seaescrow/token"))[12:])

var (
	mintSeed    = []byte("mint")
	accountSeed = []byte("account")
)

type engineState interface {
	TokenMintGet(addr crypto.Address) (*Mint, bool, error)
	TokenMintPut(*Mint) error
	TokenAccountGet(addr crypto.Address) (*Account, bool, error)
	TokenAccountPut(*Account) error
}

// Engine implements the token transfer service: mints, token accounts and
// authority-checked transfers. It never decides whether a transfer is
// business-appropriate; it only enforces ownership, mint equality, freezes
// and balances.
type Engine struct {
	programID crypto.Address
	state     engineState
	emitter   events.Emitter
}

func NewEngine(programID crypto.Address) *Engine {
	if programID.IsZero() {
		programID = DefaultProgramID
	}
	return &Engine{programID: programID, emitter: events.NoopEmitter{}}
}

func (e *Engine) ProgramID() crypto.Address { return e.programID }

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
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

// MintAddress derives the mint address an authority gets for symbol.
func (e *Engine) MintAddress(authority crypto.Address, symbol string) (crypto.Address, uint8, error) {
	normalized, err := NormalizeSymbol(symbol)
	if err != nil {
		return crypto.Address{}, 0, err
	}
	return crypto.FindProgramAddress([][]byte{mintSeed, authority.Bytes(), []byte(normalized)}, e.programID)
}

// AssociatedAddress derives the canonical token account of owner for mint.
func (e *Engine) AssociatedAddress(owner, mint crypto.Address) (crypto.Address, uint8, error) {
	return crypto.FindProgramAddress([][]byte{accountSeed, owner.Bytes(), mint.Bytes()}, e.programID)
}

// CreateMint registers a new mint controlled by authority. freezeAuthority may
// be the zero address, in which case accounts of the mint can never be frozen.
func (e *Engine) CreateMint(authority crypto.Signer, symbol string, decimals uint8, freezeAuthority crypto.Address) (*Mint, error) {
	if e.state == nil {
		return nil, errNilState
	}
	if authority == nil {
		return nil, fmt.Errorf("%w: mint authority required", ErrUnauthorized)
	}
	if decimals > maxDecimals {
		return nil, fmt.Errorf("%w: decimals above %d", ErrInvalidMint, maxDecimals)
	}
	normalized, err := NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	addr, _, err := e.MintAddress(authority.Address(), normalized)
	if err != nil {
		return nil, err
	}
	_, exists, err := e.state.TokenMintGet(addr)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", ErrMintExists, addr)
	}
	mint := &Mint{
		Address:         addr,
		Symbol:          normalized,
		Decimals:        decimals,
		MintAuthority:   authority.Address(),
		FreezeAuthority: freezeAuthority,
	}
	if err := e.state.TokenMintPut(mint); err != nil {
		return nil, err
	}
	e.emit(NewMintCreatedEvent(mint))
	return mint.Clone(), nil
}

// OpenAccount creates the associated token account of owner for mint.
func (e *Engine) OpenAccount(owner crypto.Signer, mint crypto.Address) (*Account, error) {
	if owner == nil {
		return nil, fmt.Errorf("%w: owner required", ErrUnauthorized)
	}
	addr, _, err := e.AssociatedAddress(owner.Address(), mint)
	if err != nil {
		return nil, err
	}
	if err := e.InitializeAccount(addr, mint, owner.Address()); err != nil {
		return nil, err
	}
	return e.Account(addr)
}

// InitializeAccount creates an empty account of mint at addr whose spending
// authority is owner. Program modules use it to open custody accounts at
// derived addresses.
func (e *Engine) InitializeAccount(addr, mint, owner crypto.Address) error {
	if e.state == nil {
		return errNilState
	}
	if addr.IsZero() || owner.IsZero() {
		return fmt.Errorf("%w: account and owner addresses required", ErrInvalidMint)
	}
	if _, err := e.Mint(mint); err != nil {
		return err
	}
	_, exists, err := e.state.TokenAccountGet(addr)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrAccountExists, addr)
	}
	acct := &Account{Address: addr, Mint: mint, Owner: owner}
	if err := e.state.TokenAccountPut(acct); err != nil {
		return err
	}
	e.emit(NewAccountOpenedEvent(acct))
	return nil
}

// Account returns a copy of the token account at addr.
func (e *Engine) Account(addr crypto.Address) (*Account, error) {
	if e.state == nil {
		return nil, errNilState
	}
	acct, ok, err := e.state.TokenAccountGet(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, addr)
	}
	return acct, nil
}

// Mint returns a copy of the mint at addr.
func (e *Engine) Mint(addr crypto.Address) (*Mint, error) {
	if e.state == nil {
		return nil, errNilState
	}
	mint, ok, err := e.state.TokenMintGet(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMintNotFound, addr)
	}
	return mint, nil
}

// MintTo issues amount new units of mint into dest.
func (e *Engine) MintTo(authority crypto.Signer, mintAddr, dest crypto.Address, amount uint64) error {
	mint, err := e.Mint(mintAddr)
	if err != nil {
		return err
	}
	if authority == nil || authority.Address() != mint.MintAuthority {
		return fmt.Errorf("%w: not the mint authority of %s", ErrUnauthorized, mintAddr)
	}
	acct, err := e.Account(dest)
	if err != nil {
		return err
	}
	if acct.Mint != mint.Address {
		return ErrMintMismatch
	}
	if acct.Frozen {
		return ErrAccountFrozen
	}
	balance, err := addChecked(acct.Amount, amount)
	if err != nil {
		return err
	}
	supply, err := addChecked(mint.Supply, amount)
	if err != nil {
		return err
	}
	acct.Amount = balance
	mint.Supply = supply
	if err := e.state.TokenAccountPut(acct); err != nil {
		return err
	}
	if err := e.state.TokenMintPut(mint); err != nil {
		return err
	}
	e.emit(NewMintedEvent(mint, acct.Address, amount))
	return nil
}

// Transfer moves amount from one account to another. authority must be the
// owner recorded on the source account.
func (e *Engine) Transfer(from, to crypto.Address, amount uint64, authority crypto.Signer) error {
	src, err := e.Account(from)
	if err != nil {
		return err
	}
	dst, err := e.Account(to)
	if err != nil {
		return err
	}
	if authority == nil || authority.Address() != src.Owner {
		return ErrOwnerMismatch
	}
	if src.Mint != dst.Mint {
		return ErrMintMismatch
	}
	if src.Frozen || dst.Frozen {
		return ErrAccountFrozen
	}
	if src.Amount < amount {
		return fmt.Errorf("%w: balance %d, requested %d", ErrInsufficientFunds, src.Amount, amount)
	}
	if from == to {
		e.emit(NewTransferEvent(src.Mint, from, to, amount))
		return nil
	}
	credited, err := addChecked(dst.Amount, amount)
	if err != nil {
		return err
	}
	debited := new(uint256.Int).Sub(uint256.NewInt(src.Amount), uint256.NewInt(amount))
	src.Amount = debited.Uint64()
	dst.Amount = credited
	if err := e.state.TokenAccountPut(src); err != nil {
		return err
	}
	if err := e.state.TokenAccountPut(dst); err != nil {
		return err
	}
	e.emit(NewTransferEvent(src.Mint, from, to, amount))
	return nil
}

// Freeze blocks every movement into or out of the account.
func (e *Engine) Freeze(authority crypto.Signer, addr crypto.Address) error {
	return e.setFrozen(authority, addr, true)
}

// Thaw lifts a previous freeze.
func (e *Engine) Thaw(authority crypto.Signer, addr crypto.Address) error {
	return e.setFrozen(authority, addr, false)
}

func (e *Engine) setFrozen(authority crypto.Signer, addr crypto.Address, frozen bool) error {
	acct, err := e.Account(addr)
	if err != nil {
		return err
	}
	mint, err := e.Mint(acct.Mint)
	if err != nil {
		return err
	}
	if !mint.HasFreezeAuthority() {
		return fmt.Errorf("%w: mint %s has no freeze authority", ErrUnauthorized, mint.Address)
	}
	if authority == nil || authority.Address() != mint.FreezeAuthority {
		return fmt.Errorf("%w: not the freeze authority of %s", ErrUnauthorized, mint.Address)
	}
	if acct.Frozen == frozen {
		return nil
	}
	acct.Frozen = frozen
	if err := e.state.TokenAccountPut(acct); err != nil {
		return err
	}
	e.emit(NewFreezeEvent(acct, frozen))
	return nil
}

func addChecked(a, b uint64) (uint64, error) {
	sum := new(uint256.Int).Add(uint256.NewInt(a), uint256.NewInt(b))
	if !sum.IsUint64() {
		return 0, ErrOverflow
	}
	return sum.Uint64(), nil
}
