package escrow

import (
	"errors"
	"testing"
)

func TestStateGraph(t *testing.T) {
	edges := map[[2]OrderState]bool{
		{OrderPending, OrderDeposited}: true,
		{OrderDeposited, OrderSettled}: true,
		{OrderDeposited, OrderDispute}: true,
		{OrderDispute, OrderRefunded}:  true,
	}
	all := []OrderState{OrderPending, OrderDeposited, OrderDispute, OrderSettled, OrderRefunded}
	for _, from := range all {
		for _, to := range all {
			want := edges[[2]OrderState{from, to}]
			if got := from.CanTransition(to); got != want {
				t.Fatalf("%s -> %s: expected %v, got %v", from, to, want, got)
			}
		}
	}
	for _, s := range all {
		if s.Terminal() != (s == OrderSettled || s == OrderRefunded) {
			t.Fatalf("terminal mismatch for %s", s)
		}
	}
}

func TestTransitionRejectsUnknownEdge(t *testing.T) {
	o := &Order{State: OrderSettled}
	if err := o.transition(OrderDispute); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if o.State != OrderSettled {
		t.Fatalf("state changed on rejected transition")
	}
}

func sampleOrder(schema SchemaVersion) *Order {
	o := &Order{
		Address:             testAddress(0x10),
		Schema:              schema,
		Seller:              testAddress(0x11),
		OrderID:             0x0102,
		CustodyBump:         254,
		SellerPayoutAccount: testAddress(0x12),
		Buyer:               testAddress(0x14),
		BuyerRefundAccount:  testAddress(0x15),
		AssetType:           testAddress(0x16),
		Amount:              100,
		Vault:               testAddress(0x17),
		State:               OrderDeposited,
	}
	if schema == SchemaArbitrated {
		o.Referee = testAddress(0x13)
	}
	return o
}

func TestCodecLayout(t *testing.T) {
	raw, err := EncodeOrder(sampleOrder(SchemaTwoParty))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(raw) != 133 {
		t.Fatalf("two-party record: expected 133 bytes, got %d", len(raw))
	}
	if raw[0] != 1 || raw[21] != 0x02 || raw[22] != 0x01 || raw[23] != 254 {
		t.Fatalf("unexpected header bytes % x", raw[:24])
	}
	if raw[len(raw)-1] != byte(OrderDeposited) {
		t.Fatalf("state byte not last")
	}

	arbitrated := sampleOrder(SchemaArbitrated)
	raw, err = EncodeOrder(arbitrated)
	if err != nil {
		t.Fatalf("encode arbitrated: %v", err)
	}
	if len(raw) != 153 {
		t.Fatalf("arbitrated record: expected 153 bytes, got %d", len(raw))
	}
	if raw[44] != 0x13 {
		t.Fatalf("referee not at offset 44")
	}
	decoded, err := DecodeOrder(arbitrated.Address, raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if *decoded != *arbitrated {
		t.Fatalf("decoded order differs:\n got %+v\nwant %+v", decoded, arbitrated)
	}
}

func TestCodecRejectsMismatches(t *testing.T) {
	withReferee := sampleOrder(SchemaTwoParty)
	withReferee.Referee = testAddress(0x99)
	if _, err := EncodeOrder(withReferee); !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("two-party with referee: expected ErrSchemaMismatch, got %v", err)
	}

	raw, err := EncodeOrder(sampleOrder(SchemaArbitrated))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	relabeled := append([]byte(nil), raw...)
	relabeled[0] = byte(SchemaTwoParty)
	if _, err := DecodeOrder(testAddress(0x10), relabeled); !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("length/version mismatch: expected ErrSchemaMismatch, got %v", err)
	}
	badState := append([]byte(nil), raw...)
	badState[len(badState)-1] = 9
	if _, err := DecodeOrder(testAddress(0x10), badState); !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("unknown state: expected ErrSchemaMismatch, got %v", err)
	}
	if _, err := DecodeOrder(testAddress(0x10), nil); !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("empty record: expected ErrSchemaMismatch, got %v", err)
	}
}
