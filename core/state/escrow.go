package state

import (
	"seaescrow/crypto"
	"seaescrow/native/escrow"
)

// OrderGet loads the order stored at addr.
func (m *Manager) OrderGet(addr crypto.Address) (*escrow.Order, bool, error) {
	raw, err := m.rawGet(OrderKey(addr))
	if err != nil {
		return nil, false, err
	}
	if len(raw) == 0 {
		return nil, false, nil
	}
	order, err := escrow.DecodeOrder(addr, raw)
	if err != nil {
		return nil, false, err
	}
	return order, true, nil
}

// OrderPut persists the order in its fixed-width layout. The first write of
// an order also indexes it under its seller.
func (m *Manager) OrderPut(order *escrow.Order) error {
	raw, err := escrow.EncodeOrder(order)
	if err != nil {
		return err
	}
	if err := m.rawPut(OrderKey(order.Address), raw); err != nil {
		return err
	}
	return m.KVAppend(sellerOrdersKey(order.Seller), order.Address.Bytes())
}

// SellerOrders lists the addresses of every order created by seller in
// creation order.
func (m *Manager) SellerOrders(seller crypto.Address) ([]crypto.Address, error) {
	var raw [][]byte
	if err := m.KVGetList(sellerOrdersKey(seller), &raw); err != nil {
		return nil, err
	}
	out := make([]crypto.Address, 0, len(raw))
	for _, b := range raw {
		addr, err := crypto.BytesToAddress(b)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}
