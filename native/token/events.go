package token

import (
	"strconv"

	"seaescrow/core/types"
	"seaescrow/crypto"
)

const (
	EventTypeMintCreated   = "token.mint.created"
	EventTypeAccountOpened = "token.account.opened"
	EventTypeMinted        = "token.minted"
	EventTypeTransferred   = "token.transferred"
	EventTypeFrozen        = "token.account.frozen"
	EventTypeThawed        = "token.account.thawed"
)

func NewMintCreatedEvent(m *Mint) *types.Event {
	attrs := map[string]string{
		"mint":          m.Address.String(),
		"symbol":        m.Symbol,
		"decimals":      strconv.FormatUint(uint64(m.Decimals), 10),
		"mintAuthority": m.MintAuthority.String(),
	}
	if m.HasFreezeAuthority() {
		attrs["freezeAuthority"] = m.FreezeAuthority.String()
	}
	return &types.Event{Type: EventTypeMintCreated, Attributes: attrs}
}

func NewAccountOpenedEvent(a *Account) *types.Event {
	return &types.Event{Type: EventTypeAccountOpened, Attributes: map[string]string{
		"account": a.Address.String(),
		"mint":    a.Mint.String(),
		"owner":   a.Owner.String(),
	}}
}

func NewMintedEvent(m *Mint, dest crypto.Address, amount uint64) *types.Event {
	return &types.Event{Type: EventTypeMinted, Attributes: map[string]string{
		"mint":    m.Address.String(),
		"account": dest.String(),
		"amount":  strconv.FormatUint(amount, 10),
		"supply":  strconv.FormatUint(m.Supply, 10),
	}}
}

func NewTransferEvent(mint, from, to crypto.Address, amount uint64) *types.Event {
	return &types.Event{Type: EventTypeTransferred, Attributes: map[string]string{
		"mint":   mint.String(),
		"from":   from.String(),
		"to":     to.String(),
		"amount": strconv.FormatUint(amount, 10),
	}}
}

func NewFreezeEvent(a *Account, frozen bool) *types.Event {
	eventType := EventTypeThawed
	if frozen {
		eventType = EventTypeFrozen
	}
	return &types.Event{Type: eventType, Attributes: map[string]string{
		"account": a.Address.String(),
		"mint":    a.Mint.String(),
	}}
}
