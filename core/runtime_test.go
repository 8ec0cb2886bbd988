package core

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"seaescrow/core/events"
	"seaescrow/core/types"
	"seaescrow/crypto"
	"seaescrow/native/escrow"
	"seaescrow/storage"
	"seaescrow/storage/audit"
)

var testProgramID = crypto.MustBytesToAddress(bytes.Repeat([]byte{0x5E}, crypto.AddressLength))

type user struct {
	key   *crypto.PrivateKey
	addr  crypto.Address
	nonce uint64
}

func newUser(t *testing.T) *user {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return &user{key: key, addr: key.PubKey().Address()}
}

func (u *user) instruction(t *testing.T, kind types.InstructionKind, payload interface{}) *types.Instruction {
	t.Helper()
	u.nonce++
	ix, err := types.NewInstruction(kind, u.nonce, payload)
	if err != nil {
		t.Fatalf("new instruction: %v", err)
	}
	if err := ix.Sign(testProgramID, u.key); err != nil {
		t.Fatalf("sign: %v", err)
	}
	return ix
}

type recorder struct {
	mu       sync.Mutex
	receipts []*types.Receipt
}

func (r *recorder) Record(_ context.Context, receipt *types.Receipt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.receipts = append(r.receipts, receipt)
	return nil
}

type sink struct {
	mu     sync.Mutex
	events []events.Event
}

func (s *sink) Emit(ev events.Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

type world struct {
	t        *testing.T
	rt       *Runtime
	recorder *recorder
	sink     *sink
	issuer   *user
	mint     crypto.Address
}

func newWorld(t *testing.T) *world {
	t.Helper()
	rec := &recorder{}
	out := &sink{}
	rt, err := NewRuntime(storage.NewMemDB(), testProgramID, crypto.ZeroAddress, WithRecorder(rec), WithEmitter(out))
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}
	w := &world{t: t, rt: rt, recorder: rec, sink: out, issuer: newUser(t)}
	w.mustExec(w.issuer, types.KindCreateMint, types.CreateMintPayload{Symbol: "USDC", Decimals: 6})
	mint, err := rt.DeriveMint(w.issuer.addr, "USDC")
	if err != nil {
		t.Fatalf("derive mint: %v", err)
	}
	w.mint = mint
	return w
}

func (w *world) exec(u *user, kind types.InstructionKind, payload interface{}) (*types.Receipt, error) {
	return w.rt.Execute(context.Background(), u.instruction(w.t, kind, payload))
}

func (w *world) mustExec(u *user, kind types.InstructionKind, payload interface{}) *types.Receipt {
	w.t.Helper()
	receipt, err := w.exec(u, kind, payload)
	if err != nil {
		w.t.Fatalf("%s: %v", kind, err)
	}
	return receipt
}

// account opens u's token account and mints balance into it.
func (w *world) account(u *user, balance uint64) crypto.Address {
	w.t.Helper()
	w.mustExec(u, types.KindOpenAccount, types.OpenAccountPayload{Mint: w.mint})
	addr, err := w.rt.DeriveTokenAccount(u.addr, w.mint)
	if err != nil {
		w.t.Fatalf("derive account: %v", err)
	}
	if balance > 0 {
		w.mustExec(w.issuer, types.KindMintTo, types.MintToPayload{Mint: w.mint, Destination: addr, Amount: balance})
	}
	return addr
}

func (w *world) balance(addr crypto.Address) uint64 {
	w.t.Helper()
	acct, err := w.rt.TokenAccount(addr)
	if err != nil {
		w.t.Fatalf("token account: %v", err)
	}
	return acct.Amount
}

func TestRuntimeTwoPartyLifecycle(t *testing.T) {
	w := newWorld(t)
	seller, buyer := newUser(t), newUser(t)
	payout := w.account(seller, 0)
	funding := w.account(buyer, 100)

	receipt := w.mustExec(seller, types.KindInitOrder, types.InitOrderPayload{
		SellerPayoutAccount: payout, AssetType: w.mint, OrderID: 7, Amount: 100,
	})
	orderAddr, _, vault, err := w.rt.DeriveOrder(seller.addr, 7)
	if err != nil {
		t.Fatalf("derive order: %v", err)
	}
	if receipt.Order == nil || *receipt.Order != orderAddr {
		t.Fatalf("receipt does not name the order")
	}

	w.mustExec(buyer, types.KindDeposit, types.DepositPayload{Order: orderAddr, FundingAccount: funding, Vault: vault})
	if w.balance(vault) != 100 || w.balance(funding) != 0 {
		t.Fatalf("deposit did not fund the vault")
	}

	receipt = w.mustExec(buyer, types.KindRelease, types.ReleasePayload{Order: orderAddr, Vault: vault, PayoutAccount: payout})
	if !receipt.Succeeded() {
		t.Fatalf("release receipt not ok: %+v", receipt)
	}
	order, err := w.rt.Order(orderAddr)
	if err != nil {
		t.Fatalf("load order: %v", err)
	}
	if order.State != escrow.OrderSettled {
		t.Fatalf("expected settled, got %s", order.State)
	}
	if w.balance(payout) != 100 || w.balance(vault) != 0 {
		t.Fatalf("release did not pay the seller")
	}

	orders, err := w.rt.SellerOrders(seller.addr)
	if err != nil || len(orders) != 1 || orders[0] != orderAddr {
		t.Fatalf("seller index: %v %v", orders, err)
	}
}

func TestRuntimeArbitratedRefund(t *testing.T) {
	w := newWorld(t)
	seller, buyer, referee := newUser(t), newUser(t), newUser(t)
	payout := w.account(seller, 0)
	funding := w.account(buyer, 50)
	refereeAddr := referee.addr

	w.mustExec(seller, types.KindInitOrder, types.InitOrderPayload{
		SellerPayoutAccount: payout, AssetType: w.mint, OrderID: 3, Referee: &refereeAddr, Amount: 50,
	})
	orderAddr, _, vault, _ := w.rt.DeriveOrder(seller.addr, 3)
	w.mustExec(buyer, types.KindDeposit, types.DepositPayload{Order: orderAddr, FundingAccount: funding, Vault: vault})
	w.mustExec(buyer, types.KindDispute, types.DisputePayload{Order: orderAddr})

	receipt, err := w.exec(buyer, types.KindRefund, types.RefundPayload{Order: orderAddr, Vault: vault, RefundAccount: funding})
	if !errors.Is(err, escrow.ErrUnauthorized) {
		t.Fatalf("buyer refund: expected ErrUnauthorized, got %v", err)
	}
	if receipt.Status != types.ReceiptStatusFailed || receipt.ErrorClass != ClassUnauthorized || len(receipt.Events) != 0 {
		t.Fatalf("unexpected failed receipt: %+v", receipt)
	}

	w.mustExec(referee, types.KindRefund, types.RefundPayload{Order: orderAddr, Vault: vault, RefundAccount: funding})
	if w.balance(funding) != 50 || w.balance(vault) != 0 || w.balance(payout) != 0 {
		t.Fatalf("refund did not return funds to the buyer")
	}
	order, _ := w.rt.Order(orderAddr)
	if order.State != escrow.OrderRefunded {
		t.Fatalf("expected refunded, got %s", order.State)
	}
}

func TestRuntimeRejectsReplay(t *testing.T) {
	w := newWorld(t)
	holder := newUser(t)
	ix := holder.instruction(t, types.KindOpenAccount, types.OpenAccountPayload{Mint: w.mint})
	if _, err := w.rt.Execute(context.Background(), ix); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	receipt, err := w.rt.Execute(context.Background(), ix)
	if !errors.Is(err, ErrNonceMismatch) {
		t.Fatalf("replay: expected ErrNonceMismatch, got %v", err)
	}
	if receipt.ErrorClass != ClassNonce {
		t.Fatalf("unexpected class %q", receipt.ErrorClass)
	}
	nonce, err := w.rt.Nonce(holder.addr)
	if err != nil || nonce != 1 {
		t.Fatalf("nonce: got %d, %v", nonce, err)
	}
}

func TestRuntimeFailureIsAtomic(t *testing.T) {
	w := newWorld(t)
	seller, buyer := newUser(t), newUser(t)
	payout := w.account(seller, 0)
	funding := w.account(buyer, 10)
	w.mustExec(seller, types.KindInitOrder, types.InitOrderPayload{
		SellerPayoutAccount: payout, AssetType: w.mint, OrderID: 1, Amount: 100,
	})
	orderAddr, _, vault, _ := w.rt.DeriveOrder(seller.addr, 1)

	eventsBefore := len(w.sink.events)
	receipt, err := w.exec(buyer, types.KindDeposit, types.DepositPayload{Order: orderAddr, FundingAccount: funding, Vault: vault})
	if !errors.Is(err, escrow.ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}
	if receipt.ErrorClass != ClassTransferFailed {
		t.Fatalf("unexpected class %q", receipt.ErrorClass)
	}
	if len(w.sink.events) != eventsBefore {
		t.Fatalf("failed instruction published events")
	}
	order, _ := w.rt.Order(orderAddr)
	if order.State != escrow.OrderPending || !order.Buyer.IsZero() {
		t.Fatalf("failed deposit mutated order: %+v", order)
	}
	// The failed instruction did not consume its nonce.
	nonce, _ := w.rt.Nonce(buyer.addr)
	if nonce != buyer.nonce-1 {
		t.Fatalf("nonce advanced on failure: %d", nonce)
	}

	last := w.recorder.receipts[len(w.recorder.receipts)-1]
	if last.ID != receipt.ID || last.Status != types.ReceiptStatusFailed {
		t.Fatalf("failure not recorded")
	}
}

// cancelOnEmit cancels the caller's context while committed events are
// delivered, the same as a client hanging up mid-request.
type cancelOnEmit struct {
	cancel context.CancelFunc
}

func (c cancelOnEmit) Emit(events.Event) { c.cancel() }

func TestReceiptRecordedAfterCallerCancels(t *testing.T) {
	journal, err := audit.Open(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("open audit: %v", err)
	}
	defer journal.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rt, err := NewRuntime(storage.NewMemDB(), testProgramID, crypto.ZeroAddress,
		WithRecorder(journal), WithEmitter(cancelOnEmit{cancel: cancel}))
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}
	issuer := newUser(t)
	receipt, err := rt.Execute(ctx, issuer.instruction(t, types.KindCreateMint, types.CreateMintPayload{Symbol: "USDC", Decimals: 6}))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if ctx.Err() == nil {
		t.Fatalf("emitter did not cancel the context")
	}
	if nonce, _ := rt.Nonce(issuer.addr); nonce != 1 {
		t.Fatalf("instruction not committed, nonce %d", nonce)
	}

	stored, err := journal.Get(context.Background(), receipt.ID)
	if err != nil {
		t.Fatalf("receipt missing from journal: %v", err)
	}
	if stored.Status != types.ReceiptStatusOK {
		t.Fatalf("unexpected status %q", stored.Status)
	}
}

func TestInstructionCounterExported(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	rt, err := NewRuntime(storage.NewMemDB(), testProgramID, crypto.ZeroAddress,
		WithMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))))
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}
	issuer := newUser(t)
	create := types.CreateMintPayload{Symbol: "USDC", Decimals: 6}
	if _, err := rt.Execute(context.Background(), issuer.instruction(t, types.KindCreateMint, create)); err != nil {
		t.Fatalf("create mint: %v", err)
	}
	if _, err := rt.Execute(context.Background(), issuer.instruction(t, types.KindCreateMint, create)); err == nil {
		t.Fatalf("duplicate mint accepted")
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	outcomes := map[string]int64{}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != "seaescrow.instructions" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("unexpected data %T", m.Data)
			}
			for _, dp := range sum.DataPoints {
				outcome, _ := dp.Attributes.Value("outcome")
				outcomes[outcome.AsString()] += dp.Value
			}
		}
	}
	if outcomes[types.ReceiptStatusOK] != 1 || len(outcomes) != 2 {
		t.Fatalf("unexpected outcomes %v", outcomes)
	}
}

func TestRuntimeRejectsBadSignature(t *testing.T) {
	w := newWorld(t)
	holder := newUser(t)
	ix := holder.instruction(t, types.KindOpenAccount, types.OpenAccountPayload{Mint: w.mint})
	ix.R = nil
	if _, err := w.rt.Execute(context.Background(), ix); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestRuntimeUnknownKind(t *testing.T) {
	w := newWorld(t)
	holder := newUser(t)
	receipt, err := w.exec(holder, types.InstructionKind(0x7f), struct{}{})
	if !errors.Is(err, ErrUnknownInstruction) {
		t.Fatalf("expected ErrUnknownInstruction, got %v", err)
	}
	if receipt.ErrorClass != ClassInvalidArgument {
		t.Fatalf("unexpected class %q", receipt.ErrorClass)
	}
}

func TestRuntimeConcurrentOrders(t *testing.T) {
	w := newWorld(t)
	seller := newUser(t)
	payout := w.account(seller, 0)

	const n = 8
	type pending struct {
		buyer   *user
		funding crypto.Address
		order   crypto.Address
		vault   crypto.Address
	}
	orders := make([]pending, n)
	for i := 0; i < n; i++ {
		buyer := newUser(t)
		funding := w.account(buyer, 10)
		w.mustExec(seller, types.KindInitOrder, types.InitOrderPayload{
			SellerPayoutAccount: payout, AssetType: w.mint, OrderID: uint16(i), Amount: 10,
		})
		orderAddr, _, vault, _ := w.rt.DeriveOrder(seller.addr, uint16(i))
		orders[i] = pending{buyer: buyer, funding: funding, order: orderAddr, vault: vault}
	}

	instructions := make([][]*types.Instruction, n)
	for i, p := range orders {
		instructions[i] = []*types.Instruction{
			p.buyer.instruction(t, types.KindDeposit, types.DepositPayload{Order: p.order, FundingAccount: p.funding, Vault: p.vault}),
			p.buyer.instruction(t, types.KindRelease, types.ReleasePayload{Order: p.order, Vault: p.vault, PayoutAccount: payout}),
		}
	}

	var wg sync.WaitGroup
	errs := make(chan error, n*2)
	for i := range instructions {
		wg.Add(1)
		go func(batch []*types.Instruction) {
			defer wg.Done()
			for _, ix := range batch {
				if _, err := w.rt.Execute(context.Background(), ix); err != nil {
					errs <- err
				}
			}
		}(instructions[i])
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent execution: %v", err)
	}
	if got := w.balance(payout); got != n*10 {
		t.Fatalf("expected payout %d, got %d", n*10, got)
	}
}

func TestClassify(t *testing.T) {
	cases := map[string]error{
		ClassInvalidState:    escrow.ErrInvalidState,
		ClassAccountMismatch: escrow.ErrAccountMismatch,
		ClassNotFound:        escrow.ErrOrderNotFound,
		ClassInternal:        errors.New("disk on fire"),
	}
	for want, err := range cases {
		if got := Classify(err); got != want {
			t.Fatalf("Classify(%v) = %q, want %q", err, got, want)
		}
	}
	if Classify(nil) != "" {
		t.Fatalf("nil error must have no class")
	}
}
