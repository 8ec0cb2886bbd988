package core

import (
	"fmt"

	"seaescrow/core/types"
	"seaescrow/crypto"
	"seaescrow/native/escrow"
	"seaescrow/native/token"
)

// executor carries the engines bound to one instruction's journal.
type executor struct {
	signer crypto.Signer
	escrow *escrow.Engine
	tokens *token.Engine
}

// call is a decoded instruction: the accounts it may touch and the handler to
// run once they are locked.
type call struct {
	accounts []crypto.Address
	order    *crypto.Address
	run      func(x *executor) error
}

func (r *Runtime) decodeCall(sender crypto.Address, ix *types.Instruction) (*call, error) {
	switch ix.Kind {
	case types.KindInitOrder:
		var p types.InitOrderPayload
		if err := decodePayload(ix, &p); err != nil {
			return nil, err
		}
		orderAddr, _, err := escrow.DeriveOrderAddress(r.programID, sender, p.OrderID)
		if err != nil {
			return nil, err
		}
		vault, err := escrow.DeriveVaultAddress(r.programID, orderAddr)
		if err != nil {
			return nil, err
		}
		return &call{
			accounts: []crypto.Address{orderAddr, vault, p.SellerPayoutAccount, p.AssetType},
			order:    &orderAddr,
			run: func(x *executor) error {
				_, err := x.escrow.InitOrder(x.signer, escrow.InitOrderParams{
					SellerPayoutAccount: p.SellerPayoutAccount,
					AssetType:           p.AssetType,
					OrderID:             p.OrderID,
					Referee:             p.Referee,
					Amount:              p.Amount,
				})
				return err
			},
		}, nil
	case types.KindDeposit:
		var p types.DepositPayload
		if err := decodePayload(ix, &p); err != nil {
			return nil, err
		}
		return &call{
			accounts: []crypto.Address{p.Order, p.Vault, p.FundingAccount},
			order:    &p.Order,
			run: func(x *executor) error {
				_, err := x.escrow.Deposit(x.signer, p.Order, p.FundingAccount, p.Vault)
				return err
			},
		}, nil
	case types.KindRelease:
		var p types.ReleasePayload
		if err := decodePayload(ix, &p); err != nil {
			return nil, err
		}
		return &call{
			accounts: []crypto.Address{p.Order, p.Vault, p.PayoutAccount},
			order:    &p.Order,
			run: func(x *executor) error {
				_, err := x.escrow.Release(x.signer, p.Order, p.Vault, p.PayoutAccount)
				return err
			},
		}, nil
	case types.KindDispute:
		var p types.DisputePayload
		if err := decodePayload(ix, &p); err != nil {
			return nil, err
		}
		return &call{
			accounts: []crypto.Address{p.Order},
			order:    &p.Order,
			run: func(x *executor) error {
				_, err := x.escrow.Dispute(x.signer, p.Order)
				return err
			},
		}, nil
	case types.KindRefund:
		var p types.RefundPayload
		if err := decodePayload(ix, &p); err != nil {
			return nil, err
		}
		return &call{
			accounts: []crypto.Address{p.Order, p.Vault, p.RefundAccount},
			order:    &p.Order,
			run: func(x *executor) error {
				_, err := x.escrow.Refund(x.signer, p.Order, p.Vault, p.RefundAccount)
				return err
			},
		}, nil
	case types.KindCreateMint:
		var p types.CreateMintPayload
		if err := decodePayload(ix, &p); err != nil {
			return nil, err
		}
		mintAddr, _, err := token.NewEngine(r.tokenProgramID).MintAddress(sender, p.Symbol)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
		freeze := crypto.ZeroAddress
		if p.FreezeAuthority != nil {
			freeze = *p.FreezeAuthority
		}
		return &call{
			accounts: []crypto.Address{mintAddr},
			run: func(x *executor) error {
				_, err := x.tokens.CreateMint(x.signer, p.Symbol, p.Decimals, freeze)
				return err
			},
		}, nil
	case types.KindOpenAccount:
		var p types.OpenAccountPayload
		if err := decodePayload(ix, &p); err != nil {
			return nil, err
		}
		acct, _, err := token.NewEngine(r.tokenProgramID).AssociatedAddress(sender, p.Mint)
		if err != nil {
			return nil, err
		}
		return &call{
			accounts: []crypto.Address{acct, p.Mint},
			run: func(x *executor) error {
				_, err := x.tokens.OpenAccount(x.signer, p.Mint)
				return err
			},
		}, nil
	case types.KindMintTo:
		var p types.MintToPayload
		if err := decodePayload(ix, &p); err != nil {
			return nil, err
		}
		return &call{
			accounts: []crypto.Address{p.Mint, p.Destination},
			run: func(x *executor) error {
				return x.tokens.MintTo(x.signer, p.Mint, p.Destination, p.Amount)
			},
		}, nil
	case types.KindTransfer:
		var p types.TransferPayload
		if err := decodePayload(ix, &p); err != nil {
			return nil, err
		}
		return &call{
			accounts: []crypto.Address{p.From, p.To},
			run: func(x *executor) error {
				return x.tokens.Transfer(p.From, p.To, p.Amount, x.signer)
			},
		}, nil
	case types.KindFreeze, types.KindThaw:
		var p types.FreezePayload
		if err := decodePayload(ix, &p); err != nil {
			return nil, err
		}
		freeze := ix.Kind == types.KindFreeze
		return &call{
			accounts: []crypto.Address{p.Account},
			run: func(x *executor) error {
				if freeze {
					return x.tokens.Freeze(x.signer, p.Account)
				}
				return x.tokens.Thaw(x.signer, p.Account)
			},
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownInstruction, ix.Kind)
	}
}

func decodePayload(ix *types.Instruction, out interface{}) error {
	if err := ix.DecodeData(out); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return nil
}
