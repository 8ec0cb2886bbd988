package state

import "seaescrow/crypto"

var (
	orderPrefix         = []byte("escrow/order/")
	sellerOrdersPrefix  = []byte("escrow/seller-orders/")
	mintPrefix          = []byte("token/mint/")
	tokenAccountPrefix  = []byte("token/account/")
	ownerAccountsPrefix = []byte("token/owner-accounts/")
	noncePrefix         = []byte("account/nonce/")
)

func addressKey(prefix []byte, addr crypto.Address) []byte {
	buf := make([]byte, len(prefix)+crypto.AddressLength)
	copy(buf, prefix)
	copy(buf[len(prefix):], addr[:])
	return buf
}

// OrderKey is the unhashed key of an order record.
func OrderKey(addr crypto.Address) []byte { return addressKey(orderPrefix, addr) }

func sellerOrdersKey(seller crypto.Address) []byte { return addressKey(sellerOrdersPrefix, seller) }

func mintKey(addr crypto.Address) []byte { return addressKey(mintPrefix, addr) }

func tokenAccountKey(addr crypto.Address) []byte { return addressKey(tokenAccountPrefix, addr) }

func ownerAccountsKey(owner crypto.Address) []byte { return addressKey(ownerAccountsPrefix, owner) }

func nonceKey(addr crypto.Address) []byte { return addressKey(noncePrefix, addr) }
