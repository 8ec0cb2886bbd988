package types

import "seaescrow/crypto"

// InitOrderPayload opens a new order. The signer is the seller.
type InitOrderPayload struct {
	SellerPayoutAccount crypto.Address  `json:"sellerPayoutAccount"`
	AssetType           crypto.Address  `json:"assetType"`
	OrderID             uint16          `json:"orderId"`
	Referee             *crypto.Address `json:"referee,omitempty"`
	Amount              uint64          `json:"amount"`
}

// DepositPayload funds an order. The signer becomes the buyer.
type DepositPayload struct {
	Order          crypto.Address `json:"order"`
	FundingAccount crypto.Address `json:"fundingAccount"`
	Vault          crypto.Address `json:"vault"`
}

type ReleasePayload struct {
	Order         crypto.Address `json:"order"`
	Vault         crypto.Address `json:"vault"`
	PayoutAccount crypto.Address `json:"payoutAccount"`
}

type DisputePayload struct {
	Order crypto.Address `json:"order"`
}

type RefundPayload struct {
	Order         crypto.Address `json:"order"`
	Vault         crypto.Address `json:"vault"`
	RefundAccount crypto.Address `json:"refundAccount"`
}

// CreateMintPayload registers a mint whose authority is the signer.
type CreateMintPayload struct {
	Symbol          string          `json:"symbol"`
	Decimals        uint8           `json:"decimals"`
	FreezeAuthority *crypto.Address `json:"freezeAuthority,omitempty"`
}

// OpenAccountPayload opens the signer's associated account for a mint.
type OpenAccountPayload struct {
	Mint crypto.Address `json:"mint"`
}

type MintToPayload struct {
	Mint        crypto.Address `json:"mint"`
	Destination crypto.Address `json:"destination"`
	Amount      uint64         `json:"amount"`
}

type TransferPayload struct {
	From   crypto.Address `json:"from"`
	To     crypto.Address `json:"to"`
	Amount uint64         `json:"amount"`
}

// FreezePayload is shared by freeze and thaw.
type FreezePayload struct {
	Account crypto.Address `json:"account"`
}
