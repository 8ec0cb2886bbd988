package types

import (
	"time"

	"seaescrow/crypto"
)

const (
	ReceiptStatusOK     = "ok"
	ReceiptStatusFailed = "failed"
)

// Receipt describes the outcome of one executed instruction. Failed
// instructions produce receipts too; their Events are always empty.
type Receipt struct {
	ID         string          `json:"id"`
	Hash       string          `json:"hash"`
	Kind       InstructionKind `json:"kind"`
	Signer     crypto.Address  `json:"signer"`
	Nonce      uint64          `json:"nonce"`
	Order      *crypto.Address `json:"order,omitempty"`
	Status     string          `json:"status"`
	ErrorClass string          `json:"errorClass,omitempty"`
	Error      string          `json:"error,omitempty"`
	Events     []*Event        `json:"events"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// Succeeded reports whether the instruction committed.
func (r *Receipt) Succeeded() bool { return r != nil && r.Status == ReceiptStatusOK }
