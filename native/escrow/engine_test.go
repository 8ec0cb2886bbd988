package escrow

import (
	"bytes"
	"errors"
	"testing"

	"seaescrow/core/events"
	"seaescrow/crypto"
	"seaescrow/native/token"
)

type mockState struct {
	orders   map[crypto.Address][]byte
	mints    map[crypto.Address]*token.Mint
	accounts map[crypto.Address]*token.Account
}

func newMockState() *mockState {
	return &mockState{
		orders:   make(map[crypto.Address][]byte),
		mints:    make(map[crypto.Address]*token.Mint),
		accounts: make(map[crypto.Address]*token.Account),
	}
}

func (m *mockState) OrderGet(addr crypto.Address) (*Order, bool, error) {
	raw, ok := m.orders[addr]
	if !ok {
		return nil, false, nil
	}
	order, err := DecodeOrder(addr, raw)
	if err != nil {
		return nil, false, err
	}
	return order, true, nil
}

func (m *mockState) OrderPut(o *Order) error {
	raw, err := EncodeOrder(o)
	if err != nil {
		return err
	}
	m.orders[o.Address] = raw
	return nil
}

func (m *mockState) TokenMintGet(addr crypto.Address) (*token.Mint, bool, error) {
	mint, ok := m.mints[addr]
	return mint.Clone(), ok, nil
}

func (m *mockState) TokenMintPut(mint *token.Mint) error {
	m.mints[mint.Address] = mint.Clone()
	return nil
}

func (m *mockState) TokenAccountGet(addr crypto.Address) (*token.Account, bool, error) {
	acct, ok := m.accounts[addr]
	return acct.Clone(), ok, nil
}

func (m *mockState) TokenAccountPut(acct *token.Account) error {
	m.accounts[acct.Address] = acct.Clone()
	return nil
}

type capture struct{ events []events.Event }

func (c *capture) Emit(ev events.Event) { c.events = append(c.events, ev) }

func testAddress(fill byte) crypto.Address {
	return crypto.MustBytesToAddress(bytes.Repeat([]byte{fill}, crypto.AddressLength))
}

type party struct {
	signer  crypto.Signer
	account crypto.Address
}

type harness struct {
	t       *testing.T
	engine  *Engine
	tokens  *token.Engine
	state   *mockState
	sink    *capture
	mint    crypto.Address
	seller  party
	buyer   party
	referee party
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	state := newMockState()
	tokens := token.NewEngine(crypto.ZeroAddress)
	tokens.SetState(state)
	engine := NewEngine(testAddress(0x5E))
	engine.SetState(state)
	engine.SetTokens(tokens)
	sink := &capture{}
	engine.SetEmitter(sink)

	issuer := crypto.VerifiedSigner(testAddress(0x01))
	mint, err := tokens.CreateMint(issuer, "USDC", 6, crypto.ZeroAddress)
	if err != nil {
		t.Fatalf("create mint: %v", err)
	}
	h := &harness{t: t, engine: engine, tokens: tokens, state: state, sink: sink, mint: mint.Address}
	h.seller = h.party(issuer, 0x5A, 0)
	h.buyer = h.party(issuer, 0xB0, 1_000)
	h.referee = h.party(issuer, 0xEF, 0)
	return h
}

func (h *harness) party(issuer crypto.Signer, fill byte, balance uint64) party {
	h.t.Helper()
	signer := crypto.VerifiedSigner(testAddress(fill))
	acct, err := h.tokens.OpenAccount(signer, h.mint)
	if err != nil {
		h.t.Fatalf("open account: %v", err)
	}
	if balance > 0 {
		if err := h.tokens.MintTo(issuer, h.mint, acct.Address, balance); err != nil {
			h.t.Fatalf("mint: %v", err)
		}
	}
	return party{signer: signer, account: acct.Address}
}

func (h *harness) balance(addr crypto.Address) uint64 {
	h.t.Helper()
	acct, err := h.tokens.Account(addr)
	if err != nil {
		h.t.Fatalf("account %s: %v", addr, err)
	}
	return acct.Amount
}

func (h *harness) init(orderID uint16, amount uint64, referee *crypto.Address) *Order {
	h.t.Helper()
	order, err := h.engine.InitOrder(h.seller.signer, InitOrderParams{
		SellerPayoutAccount: h.seller.account,
		AssetType:           h.mint,
		OrderID:             orderID,
		Referee:             referee,
		Amount:              amount,
	})
	if err != nil {
		h.t.Fatalf("init order: %v", err)
	}
	return order
}

func (h *harness) deposit(order *Order) *Order {
	h.t.Helper()
	updated, err := h.engine.Deposit(h.buyer.signer, order.Address, h.buyer.account, order.Vault)
	if err != nil {
		h.t.Fatalf("deposit: %v", err)
	}
	return updated
}

func (h *harness) stored(addr crypto.Address) *Order {
	h.t.Helper()
	order, err := h.engine.Order(addr)
	if err != nil {
		h.t.Fatalf("load order: %v", err)
	}
	return order
}

func TestTwoPartyReleaseScenario(t *testing.T) {
	h := newHarness(t)
	order := h.init(7, 100, nil)

	if order.State != OrderPending || order.Schema != SchemaTwoParty {
		t.Fatalf("unexpected initial order: %+v", order)
	}
	if got := h.balance(order.Vault); got != 0 {
		t.Fatalf("new vault should be empty, got %d", got)
	}
	vault, _ := h.tokens.Account(order.Vault)
	if vault.Owner != order.Address || vault.Mint != h.mint {
		t.Fatalf("vault not owned by order identity: %+v", vault)
	}

	order = h.deposit(order)
	if order.Buyer != h.buyer.signer.Address() || order.BuyerRefundAccount != h.buyer.account {
		t.Fatalf("buyer not recorded: %+v", order)
	}
	if h.balance(order.Vault) != 100 || h.balance(h.buyer.account) != 900 {
		t.Fatalf("unexpected balances after deposit")
	}

	order, err := h.engine.Release(h.buyer.signer, order.Address, order.Vault, h.seller.account)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if order.State != OrderSettled {
		t.Fatalf("expected settled, got %s", order.State)
	}
	if h.balance(h.seller.account) != 100 || h.balance(order.Vault) != 0 {
		t.Fatalf("unexpected balances after release")
	}

	if _, err := h.engine.Release(h.buyer.signer, order.Address, order.Vault, h.seller.account); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second release: expected ErrInvalidState, got %v", err)
	}
	if h.balance(h.seller.account) != 100 {
		t.Fatalf("second release moved funds")
	}

	var seen []string
	for _, ev := range h.sink.events {
		seen = append(seen, ev.EventType())
	}
	want := []string{EventTypeOrderInitialized, EventTypeOrderDeposited, EventTypeOrderReleased}
	if len(seen) != len(want) {
		t.Fatalf("unexpected events %v", seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("event %d: expected %s, got %s", i, want[i], seen[i])
		}
	}
}

func TestArbitratedRefundScenario(t *testing.T) {
	h := newHarness(t)
	referee := h.referee.signer.Address()
	order := h.init(3, 50, &referee)
	if order.Schema != SchemaArbitrated || order.Referee != referee {
		t.Fatalf("referee not recorded: %+v", order)
	}
	order = h.deposit(order)

	if _, err := h.engine.Dispute(h.seller.signer, order.Address); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("seller dispute: expected ErrUnauthorized, got %v", err)
	}
	order, err := h.engine.Dispute(h.buyer.signer, order.Address)
	if err != nil {
		t.Fatalf("dispute: %v", err)
	}
	if order.State != OrderDispute {
		t.Fatalf("expected dispute, got %s", order.State)
	}
	if _, err := h.engine.Release(h.buyer.signer, order.Address, order.Vault, h.seller.account); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("release during dispute: expected ErrInvalidState, got %v", err)
	}

	if _, err := h.engine.Refund(h.buyer.signer, order.Address, order.Vault, h.buyer.account); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("buyer refund: expected ErrUnauthorized, got %v", err)
	}
	if h.balance(order.Vault) != 50 || h.balance(h.buyer.account) != 950 {
		t.Fatalf("failed refund changed balances")
	}

	order, err = h.engine.Refund(h.referee.signer, order.Address, order.Vault, h.buyer.account)
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if order.State != OrderRefunded {
		t.Fatalf("expected refunded, got %s", order.State)
	}
	if h.balance(h.buyer.account) != 1_000 || h.balance(order.Vault) != 0 || h.balance(h.seller.account) != 0 {
		t.Fatalf("unexpected balances after refund")
	}
	if _, err := h.engine.Refund(h.referee.signer, order.Address, order.Vault, h.buyer.account); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second refund: expected ErrInvalidState, got %v", err)
	}
}

func TestReleaseOnlyByBuyer(t *testing.T) {
	h := newHarness(t)
	referee := h.referee.signer.Address()
	order := h.deposit(h.init(1, 10, &referee))

	for _, caller := range []crypto.Signer{h.seller.signer, h.referee.signer, crypto.VerifiedSigner(testAddress(0x77))} {
		if _, err := h.engine.Release(caller, order.Address, order.Vault, h.seller.account); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("release by %s: expected ErrUnauthorized, got %v", caller.Address(), err)
		}
	}
	if h.balance(order.Vault) != 10 || h.stored(order.Address).State != OrderDeposited {
		t.Fatalf("unauthorized release changed state")
	}
}

func TestDisputeRequiresReferee(t *testing.T) {
	h := newHarness(t)
	order := h.deposit(h.init(2, 10, nil))
	if _, err := h.engine.Dispute(h.buyer.signer, order.Address); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if h.stored(order.Address).State != OrderDeposited {
		t.Fatalf("state changed")
	}
}

func TestRefundAndDisputeCheckIdentityBeforeState(t *testing.T) {
	h := newHarness(t)
	referee := h.referee.signer.Address()
	order := h.deposit(h.init(9, 10, &referee))
	other := h.init(10, 10, &referee)

	// Deposited, not disputed: every refund precondition except state fails.
	if _, err := h.engine.Refund(h.seller.signer, order.Address, other.Vault, h.seller.account); !errors.Is(err, ErrAccountMismatch) {
		t.Fatalf("refund wrong vault: expected ErrAccountMismatch, got %v", err)
	}
	if _, err := h.engine.Refund(h.seller.signer, order.Address, order.Vault, h.buyer.account); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("refund by seller: expected ErrUnauthorized, got %v", err)
	}
	if _, err := h.engine.Refund(h.referee.signer, order.Address, order.Vault, h.buyer.account); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("refund by referee: expected ErrInvalidState, got %v", err)
	}

	settled, err := h.engine.Release(h.buyer.signer, order.Address, order.Vault, h.seller.account)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := h.engine.Dispute(h.seller.signer, settled.Address); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("dispute by seller: expected ErrUnauthorized, got %v", err)
	}
	if _, err := h.engine.Dispute(h.buyer.signer, settled.Address); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("dispute settled: expected ErrInvalidState, got %v", err)
	}
}

func TestOperationsFromWrongState(t *testing.T) {
	h := newHarness(t)
	referee := h.referee.signer.Address()
	order := h.init(4, 10, &referee)

	if _, err := h.engine.Release(h.buyer.signer, order.Address, order.Vault, h.seller.account); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("release pending: expected ErrInvalidState, got %v", err)
	}
	// No buyer or refund account is recorded before the deposit, so the
	// identity and account checks reject first.
	if _, err := h.engine.Dispute(h.buyer.signer, order.Address); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("dispute pending: expected ErrUnauthorized, got %v", err)
	}
	if _, err := h.engine.Refund(h.referee.signer, order.Address, order.Vault, h.buyer.account); !errors.Is(err, ErrAccountMismatch) {
		t.Fatalf("refund pending: expected ErrAccountMismatch, got %v", err)
	}
	order = h.deposit(order)
	if _, err := h.engine.Deposit(h.buyer.signer, order.Address, h.buyer.account, order.Vault); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second deposit: expected ErrInvalidState, got %v", err)
	}
	if _, err := h.engine.Refund(h.referee.signer, order.Address, order.Vault, h.buyer.account); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("refund without dispute: expected ErrInvalidState, got %v", err)
	}
	if h.balance(h.buyer.account) != 990 {
		t.Fatalf("second deposit moved funds")
	}
}

func TestAccountMismatch(t *testing.T) {
	h := newHarness(t)
	referee := h.referee.signer.Address()
	order := h.init(5, 10, &referee)
	other := h.init(6, 10, &referee)

	if _, err := h.engine.Deposit(h.buyer.signer, order.Address, h.buyer.account, other.Vault); !errors.Is(err, ErrAccountMismatch) {
		t.Fatalf("deposit wrong vault: expected ErrAccountMismatch, got %v", err)
	}
	order = h.deposit(order)
	if _, err := h.engine.Release(h.buyer.signer, order.Address, order.Vault, h.buyer.account); !errors.Is(err, ErrAccountMismatch) {
		t.Fatalf("release wrong payout: expected ErrAccountMismatch, got %v", err)
	}
	if _, err := h.engine.Dispute(h.buyer.signer, order.Address); err != nil {
		t.Fatalf("dispute: %v", err)
	}
	if _, err := h.engine.Refund(h.referee.signer, order.Address, order.Vault, h.seller.account); !errors.Is(err, ErrAccountMismatch) {
		t.Fatalf("refund wrong account: expected ErrAccountMismatch, got %v", err)
	}
	// State checks precede account checks.
	if _, err := h.engine.Release(h.buyer.signer, order.Address, other.Vault, h.buyer.account); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState before account checks, got %v", err)
	}
}

func TestDepositTransferFailureLeavesOrderPending(t *testing.T) {
	h := newHarness(t)
	order := h.init(8, 5_000, nil)
	_, err := h.engine.Deposit(h.buyer.signer, order.Address, h.buyer.account, order.Vault)
	if !errors.Is(err, ErrTransferFailed) || !errors.Is(err, token.ErrInsufficientFunds) {
		t.Fatalf("expected wrapped insufficient funds, got %v", err)
	}
	stored := h.stored(order.Address)
	if stored.State != OrderPending || !stored.Buyer.IsZero() {
		t.Fatalf("failed deposit mutated order: %+v", stored)
	}

	// Spending someone else's account is rejected by the token service.
	_, err = h.engine.Deposit(h.seller.signer, order.Address, h.buyer.account, order.Vault)
	if !errors.Is(err, token.ErrOwnerMismatch) {
		t.Fatalf("expected owner mismatch, got %v", err)
	}
}

func TestReleaseMovesFullVaultBalance(t *testing.T) {
	h := newHarness(t)
	order := h.deposit(h.init(9, 100, nil))
	if err := h.tokens.Transfer(h.buyer.account, order.Vault, 5, h.buyer.signer); err != nil {
		t.Fatalf("top up vault: %v", err)
	}
	if _, err := h.engine.Release(h.buyer.signer, order.Address, order.Vault, h.seller.account); err != nil {
		t.Fatalf("release: %v", err)
	}
	if h.balance(h.seller.account) != 105 || h.balance(order.Vault) != 0 {
		t.Fatalf("vault not drained")
	}
	last := h.sink.events[len(h.sink.events)-1].(events.Typed).Evt
	if last.Attributes["moved"] != "105" {
		t.Fatalf("expected moved=105, got %q", last.Attributes["moved"])
	}
}

func TestInitOrderRejections(t *testing.T) {
	h := newHarness(t)
	order := h.init(11, 10, nil)

	_, err := h.engine.InitOrder(h.seller.signer, InitOrderParams{
		SellerPayoutAccount: h.seller.account, AssetType: h.mint, OrderID: 11, Amount: 10,
	})
	if !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("duplicate: expected ErrAlreadyInitialized, got %v", err)
	}
	_, err = h.engine.InitOrder(h.seller.signer, InitOrderParams{
		SellerPayoutAccount: h.seller.account, AssetType: h.mint, OrderID: 12,
	})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("zero amount: expected ErrInvalidArgument, got %v", err)
	}
	_, err = h.engine.InitOrder(h.seller.signer, InitOrderParams{
		SellerPayoutAccount: h.seller.account, AssetType: testAddress(0x99), OrderID: 13, Amount: 1,
	})
	if !errors.Is(err, ErrInvalidArgument) || !errors.Is(err, token.ErrMintNotFound) {
		t.Fatalf("unknown mint: expected ErrInvalidArgument, got %v", err)
	}
	null := crypto.ZeroAddress
	_, err = h.engine.InitOrder(h.seller.signer, InitOrderParams{
		SellerPayoutAccount: h.seller.account, AssetType: h.mint, OrderID: 14, Amount: 1, Referee: &null,
	})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("null referee: expected ErrInvalidArgument, got %v", err)
	}

	// A different seller with the same id gets a distinct order.
	other := crypto.VerifiedSigner(testAddress(0x66))
	addr, _, _, err := h.engine.DeriveOrderAddress(other.Address(), 11)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if addr == order.Address {
		t.Fatalf("orders of different sellers collide")
	}
}

func TestCorruptedBumpIsDerivationMismatch(t *testing.T) {
	h := newHarness(t)
	order := h.deposit(h.init(15, 10, nil))

	tampered := order.Clone()
	tampered.CustodyBump--
	if err := h.state.OrderPut(tampered); err != nil {
		t.Fatalf("store tampered order: %v", err)
	}
	_, err := h.engine.Release(h.buyer.signer, order.Address, order.Vault, h.seller.account)
	if !errors.Is(err, ErrDerivationMismatch) {
		t.Fatalf("expected ErrDerivationMismatch, got %v", err)
	}
	if errors.Is(err, ErrTransferFailed) {
		t.Fatalf("derivation failure must not be reported as a transfer failure")
	}
	if h.balance(order.Vault) != 10 {
		t.Fatalf("vault drained despite derivation failure")
	}
}

func TestDeriveOrderAddressMatchesInit(t *testing.T) {
	h := newHarness(t)
	addr, bump, vault, err := h.engine.DeriveOrderAddress(h.seller.signer.Address(), 21)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	order := h.init(21, 1, nil)
	if order.Address != addr || order.CustodyBump != bump || order.Vault != vault {
		t.Fatalf("derived identity differs from created order")
	}
}
