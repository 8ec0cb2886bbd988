package escrow

import (
	"strconv"

	"seaescrow/core/types"
)

const (
	EventTypeOrderInitialized = "escrow.order.initialized"
	EventTypeOrderDeposited   = "escrow.order.deposited"
	EventTypeOrderReleased    = "escrow.order.released"
	EventTypeOrderDisputed    = "escrow.order.disputed"
	EventTypeOrderRefunded    = "escrow.order.refunded"
)

// NewInitializedEvent returns the canonical payload for a created order.
func NewInitializedEvent(o *Order) *types.Event { return newOrderEvent(EventTypeOrderInitialized, o, 0) }

// NewDepositedEvent returns the payload emitted once the buyer funded the vault.
func NewDepositedEvent(o *Order) *types.Event {
	return newOrderEvent(EventTypeOrderDeposited, o, o.Amount)
}

// NewReleasedEvent records the amount paid out to the seller.
func NewReleasedEvent(o *Order, moved uint64) *types.Event {
	return newOrderEvent(EventTypeOrderReleased, o, moved)
}

func NewDisputedEvent(o *Order) *types.Event { return newOrderEvent(EventTypeOrderDisputed, o, 0) }

// NewRefundedEvent records the amount returned to the buyer.
func NewRefundedEvent(o *Order, moved uint64) *types.Event {
	return newOrderEvent(EventTypeOrderRefunded, o, moved)
}

func newOrderEvent(eventType string, o *Order, moved uint64) *types.Event {
	attrs := make(map[string]string)
	if o == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["order"] = o.Address.String()
	attrs["seller"] = o.Seller.String()
	attrs["orderId"] = strconv.FormatUint(uint64(o.OrderID), 10)
	attrs["asset"] = o.AssetType.String()
	attrs["amount"] = strconv.FormatUint(o.Amount, 10)
	attrs["vault"] = o.Vault.String()
	attrs["state"] = o.State.String()
	if o.HasReferee() {
		attrs["referee"] = o.Referee.String()
	}
	if !o.Buyer.IsZero() {
		attrs["buyer"] = o.Buyer.String()
	}
	if moved > 0 {
		attrs["moved"] = strconv.FormatUint(moved, 10)
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
