package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"seaescrow/crypto"
)

// InstructionKind selects the handler an instruction is dispatched to.
type InstructionKind byte

const (
	KindInitOrder InstructionKind = 0x01
	KindDeposit   InstructionKind = 0x02
	KindRelease   InstructionKind = 0x03
	KindDispute   InstructionKind = 0x04
	KindRefund    InstructionKind = 0x05

	KindCreateMint  InstructionKind = 0x10
	KindOpenAccount InstructionKind = 0x11
	KindMintTo      InstructionKind = 0x12
	KindTransfer    InstructionKind = 0x13
	KindFreeze      InstructionKind = 0x14
	KindThaw        InstructionKind = 0x15
)

var kindNames = map[InstructionKind]string{
	KindInitOrder:   "init_order",
	KindDeposit:     "deposit",
	KindRelease:     "release",
	KindDispute:     "dispute",
	KindRefund:      "refund",
	KindCreateMint:  "create_mint",
	KindOpenAccount: "open_account",
	KindMintTo:      "mint_to",
	KindTransfer:    "transfer",
	KindFreeze:      "freeze",
	KindThaw:        "thaw",
}

func (k InstructionKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(0x%02x)", byte(k))
}

// Valid reports whether k names a known handler.
func (k InstructionKind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// IsEscrow reports whether k is handled by the escrow engine.
func (k InstructionKind) IsEscrow() bool { return k >= KindInitOrder && k <= KindRefund }

// ParseInstructionKind maps a handler name back to its kind.
func ParseInstructionKind(name string) (InstructionKind, error) {
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown instruction kind %q", name)
}

var ErrMissingSignature = errors.New("instruction: missing signature")

// Instruction is a signed request to run one handler. Data carries the
// kind-specific JSON payload. The signature binds the program identity so an
// instruction cannot be replayed against a different deployment.
type Instruction struct {
	Kind  InstructionKind `json:"kind"`
	Nonce uint64          `json:"nonce"`
	Data  json.RawMessage `json:"data"`

	R *big.Int `json:"r"`
	S *big.Int `json:"s"`
	V *big.Int `json:"v"`
}

// Hash returns the digest the signer commits to:
// keccak256(RLP(programID, kind, nonce, data)).
func (ix *Instruction) Hash(programID crypto.Address) ([]byte, error) {
	payload := struct {
		ProgramID []byte
		Kind      uint8
		Nonce     uint64
		Data      []byte
	}{programID.Bytes(), uint8(ix.Kind), ix.Nonce, []byte(ix.Data)}
	encoded, err := rlp.EncodeToBytes(payload)
	if err != nil {
		return nil, err
	}
	return crypto.Keccak256(encoded), nil
}

// Sign attaches a signature by key over the instruction digest.
func (ix *Instruction) Sign(programID crypto.Address, key *crypto.PrivateKey) error {
	hash, err := ix.Hash(programID)
	if err != nil {
		return err
	}
	sig, err := key.Sign(hash)
	if err != nil {
		return err
	}
	ix.R = new(big.Int).SetBytes(sig[:32])
	ix.S = new(big.Int).SetBytes(sig[32:64])
	ix.V = new(big.Int).SetBytes([]byte{sig[64] + 27})
	return nil
}

// From recovers the signer address from the signature.
func (ix *Instruction) From(programID crypto.Address) (crypto.Address, error) {
	if ix.R == nil || ix.S == nil || ix.V == nil {
		return crypto.Address{}, ErrMissingSignature
	}
	hash, err := ix.Hash(programID)
	if err != nil {
		return crypto.Address{}, err
	}
	r, s := ix.R.Bytes(), ix.S.Bytes()
	if len(r) > 32 || len(s) > 32 || !ix.V.IsUint64() || ix.V.Uint64() < 27 || ix.V.Uint64() > 28 {
		return crypto.Address{}, fmt.Errorf("instruction: malformed signature")
	}
	sig := make([]byte, 65)
	copy(sig[32-len(r):32], r)
	copy(sig[64-len(s):64], s)
	sig[64] = byte(ix.V.Uint64() - 27)
	addr, err := crypto.RecoverAddress(hash, sig)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("instruction: recover signer: %w", err)
	}
	return addr, nil
}

// NewInstruction encodes payload as the instruction data.
func NewInstruction(kind InstructionKind, nonce uint64, payload interface{}) (*Instruction, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Instruction{Kind: kind, Nonce: nonce, Data: data}, nil
}

// DecodeData unmarshals the payload into out. Unknown fields and anything
// after the payload object are rejected.
func (ix *Instruction) DecodeData(out interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(ix.Data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("instruction: decode %s payload: %w", ix.Kind, err)
	}
	if err := dec.Decode(new(json.RawMessage)); !errors.Is(err, io.EOF) {
		return fmt.Errorf("instruction: %s payload has trailing data", ix.Kind)
	}
	return nil
}
