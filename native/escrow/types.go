package escrow

import (
	"fmt"

	"seaescrow/crypto"
)

// OrderState is the lifecycle position of an order.
type OrderState uint8

const (
	OrderPending OrderState = iota
	OrderDeposited
	OrderDispute
	OrderSettled
	OrderRefunded
)

// Valid reports whether the state value is within the supported range.
func (s OrderState) Valid() bool {
	switch s {
	case OrderPending, OrderDeposited, OrderDispute, OrderSettled, OrderRefunded:
		return true
	default:
		return false
	}
}

// Terminal reports whether no transition leaves s.
func (s OrderState) Terminal() bool {
	return s == OrderSettled || s == OrderRefunded
}

func (s OrderState) String() string {
	switch s {
	case OrderPending:
		return "pending"
	case OrderDeposited:
		return "deposited"
	case OrderDispute:
		return "dispute"
	case OrderSettled:
		return "settled"
	case OrderRefunded:
		return "refunded"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// MarshalText renders the state name for JSON responses.
func (s OrderState) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("escrow: unknown order state %d", uint8(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name produced by MarshalText.
func (s *OrderState) UnmarshalText(text []byte) error {
	for candidate := OrderPending; candidate <= OrderRefunded; candidate++ {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("escrow: unknown order state %q", string(text))
}

// CanTransition reports whether to is reachable from s in one step.
func (s OrderState) CanTransition(to OrderState) bool {
	switch s {
	case OrderPending:
		return to == OrderDeposited
	case OrderDeposited:
		return to == OrderSettled || to == OrderDispute
	case OrderDispute:
		return to == OrderRefunded
	default:
		return false
	}
}

// SchemaVersion identifies the persisted record layout.
type SchemaVersion uint8

const (
	// SchemaTwoParty records have no referee; disputes are impossible.
	SchemaTwoParty SchemaVersion = 1
	// SchemaArbitrated records carry a referee who may refund after a
	// dispute.
	SchemaArbitrated SchemaVersion = 2
)

// Order is the persistent record of one escrow agreement. Address is the
// derived identity of the order; it is the storage key and is not part of the
// encoded layout.
type Order struct {
	Address             crypto.Address `json:"address"`
	Schema              SchemaVersion  `json:"schema"`
	Seller              crypto.Address `json:"seller"`
	OrderID             uint16         `json:"orderId"`
	CustodyBump         uint8          `json:"custodyBump"`
	SellerPayoutAccount crypto.Address `json:"sellerPayoutAccount"`
	Referee             crypto.Address `json:"referee"`
	Buyer               crypto.Address `json:"buyer"`
	BuyerRefundAccount  crypto.Address `json:"buyerRefundAccount"`
	AssetType           crypto.Address `json:"assetType"`
	Amount              uint64         `json:"amount"`
	Vault               crypto.Address `json:"vault"`
	State               OrderState     `json:"state"`
}

// HasReferee reports whether the order was created with arbitration.
func (o *Order) HasReferee() bool {
	return o != nil && o.Schema == SchemaArbitrated
}

// Clone returns a copy of the order so callers can mutate it freely.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	return &clone
}

// transition moves the order to next, rejecting any edge outside the
// lifecycle graph.
func (o *Order) transition(next OrderState) error {
	if !o.State.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidState, o.State, next)
	}
	o.State = next
	return nil
}
