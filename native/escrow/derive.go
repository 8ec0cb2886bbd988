package escrow

import (
	"encoding/binary"

	"seaescrow/crypto"
)

var (
	orderSeedPrefix = []byte("order")
	vaultSeedPrefix = []byte("vault")
)

// OrderSeeds returns the derivation seeds of the order address, without the
// bump.
func OrderSeeds(seller crypto.Address, orderID uint16) [][]byte {
	id := make([]byte, 2)
	binary.LittleEndian.PutUint16(id, orderID)
	return [][]byte{orderSeedPrefix, seller.Bytes(), id}
}

// VaultSeeds returns the derivation seeds of the custody account for order.
func VaultSeeds(order crypto.Address) [][]byte {
	return [][]byte{vaultSeedPrefix, order.Bytes()}
}

// DeriveOrderAddress computes the order identity and custody bump for
// (seller, orderID) under programID.
func DeriveOrderAddress(programID, seller crypto.Address, orderID uint16) (crypto.Address, uint8, error) {
	return crypto.FindProgramAddress(OrderSeeds(seller, orderID), programID)
}

// DeriveVaultAddress computes the custody account address of order.
func DeriveVaultAddress(programID, order crypto.Address) (crypto.Address, error) {
	addr, _, err := crypto.FindProgramAddress(VaultSeeds(order), programID)
	return addr, err
}

// orderSigner rebuilds the signing capability of the order identity from the
// stored seller, order id and bump.
func orderSigner(programID crypto.Address, o *Order) (crypto.Signer, error) {
	return crypto.ProgramSigner(programID, OrderSeeds(o.Seller, o.OrderID), o.CustodyBump, o.Address)
}
