package escrow

import (
	"encoding/binary"
	"fmt"

	"seaescrow/crypto"
)

const (
	// TwoPartyRecordSize is the encoded length of a version 1 record.
	TwoPartyRecordSize = 1 + 20 + 2 + 1 + 20 + 20 + 20 + 20 + 8 + 20 + 1
	// ArbitratedRecordSize adds the referee identity.
	ArbitratedRecordSize = TwoPartyRecordSize + crypto.AddressLength
)

// RecordSize returns the encoded length for schema, or zero when the schema is
// unknown.
func RecordSize(schema SchemaVersion) int {
	switch schema {
	case SchemaTwoParty:
		return TwoPartyRecordSize
	case SchemaArbitrated:
		return ArbitratedRecordSize
	default:
		return 0
	}
}

// EncodeOrder serialises the order into its fixed-width layout. Integers are
// little-endian; field order never changes between releases.
func EncodeOrder(o *Order) ([]byte, error) {
	if o == nil {
		return nil, fmt.Errorf("%w: nil order", ErrSchemaMismatch)
	}
	size := RecordSize(o.Schema)
	if size == 0 {
		return nil, fmt.Errorf("%w: unknown schema version %d", ErrSchemaMismatch, o.Schema)
	}
	if o.Schema == SchemaTwoParty && !o.Referee.IsZero() {
		return nil, fmt.Errorf("%w: two-party record cannot carry a referee", ErrSchemaMismatch)
	}
	if !o.State.Valid() {
		return nil, fmt.Errorf("%w: unknown state %d", ErrSchemaMismatch, o.State)
	}
	w := recordWriter{buf: make([]byte, 0, size)}
	w.u8(uint8(o.Schema))
	w.address(o.Seller)
	w.buf = binary.LittleEndian.AppendUint16(w.buf, o.OrderID)
	w.u8(o.CustodyBump)
	w.address(o.SellerPayoutAccount)
	if o.Schema == SchemaArbitrated {
		w.address(o.Referee)
	}
	w.address(o.Buyer)
	w.address(o.BuyerRefundAccount)
	w.address(o.AssetType)
	w.buf = binary.LittleEndian.AppendUint64(w.buf, o.Amount)
	w.address(o.Vault)
	w.u8(uint8(o.State))
	return w.buf, nil
}

// DecodeOrder parses a record stored under addr.
func DecodeOrder(addr crypto.Address, data []byte) (*Order, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty record", ErrSchemaMismatch)
	}
	schema := SchemaVersion(data[0])
	size := RecordSize(schema)
	if size == 0 {
		return nil, fmt.Errorf("%w: unknown schema version %d", ErrSchemaMismatch, data[0])
	}
	if len(data) != size {
		return nil, fmt.Errorf("%w: version %d expects %d bytes, got %d", ErrSchemaMismatch, schema, size, len(data))
	}
	r := recordReader{buf: data[1:]}
	o := &Order{Address: addr, Schema: schema}
	o.Seller = r.address()
	o.OrderID = binary.LittleEndian.Uint16(r.next(2))
	o.CustodyBump = r.u8()
	o.SellerPayoutAccount = r.address()
	if schema == SchemaArbitrated {
		o.Referee = r.address()
	}
	o.Buyer = r.address()
	o.BuyerRefundAccount = r.address()
	o.AssetType = r.address()
	o.Amount = binary.LittleEndian.Uint64(r.next(8))
	o.Vault = r.address()
	o.State = OrderState(r.u8())
	if !o.State.Valid() {
		return nil, fmt.Errorf("%w: unknown state %d", ErrSchemaMismatch, o.State)
	}
	return o, nil
}

type recordWriter struct {
	buf []byte
}

func (w *recordWriter) u8(b uint8) { w.buf = append(w.buf, b) }

func (w *recordWriter) address(a crypto.Address) { w.buf = append(w.buf, a[:]...) }

// recordReader assumes the caller validated the total length up front.
type recordReader struct {
	buf []byte
}

func (r *recordReader) next(n int) []byte {
	out := r.buf[:n]
	r.buf = r.buf[n:]
	return out
}

func (r *recordReader) u8() uint8 { return r.next(1)[0] }

func (r *recordReader) address() crypto.Address {
	var a crypto.Address
	copy(a[:], r.next(crypto.AddressLength))
	return a
}
