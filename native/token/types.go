package token

import (
	"fmt"
	"strings"

	"seaescrow/crypto"
)

const (
	maxSymbolLength = 10
	maxDecimals     = 18
)

// Mint describes a fungible asset. Its address is the identity escrow orders
// record as their asset type.
type Mint struct {
	Address         crypto.Address `json:"address"`
	Symbol          string         `json:"symbol"`
	Decimals        uint8          `json:"decimals"`
	MintAuthority   crypto.Address `json:"mintAuthority"`
	FreezeAuthority crypto.Address `json:"freezeAuthority"`
	Supply          uint64         `json:"supply"`
}

// HasFreezeAuthority reports whether accounts of this mint can be frozen.
func (m *Mint) HasFreezeAuthority() bool {
	return m != nil && !m.FreezeAuthority.IsZero()
}

func (m *Mint) Clone() *Mint {
	if m == nil {
		return nil
	}
	clone := *m
	return &clone
}

// Account is a balance of one mint controlled by Owner. Owner may be a human
// identity or a derived program address, in which case only a program signer
// can move the funds.
type Account struct {
	Address crypto.Address `json:"address"`
	Mint    crypto.Address `json:"mint"`
	Owner   crypto.Address `json:"owner"`
	Amount  uint64         `json:"amount"`
	Frozen  bool           `json:"frozen"`
}

func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := *a
	return &clone
}

// NormalizeSymbol trims and upper-cases symbol and checks it is a short
// alphanumeric ticker.
func NormalizeSymbol(symbol string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(symbol))
	if trimmed == "" {
		return "", fmt.Errorf("%w: symbol required", ErrInvalidMint)
	}
	if len(trimmed) > maxSymbolLength {
		return "", fmt.Errorf("%w: symbol longer than %d characters", ErrInvalidMint, maxSymbolLength)
	}
	for _, r := range trimmed {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", fmt.Errorf("%w: symbol contains %q", ErrInvalidMint, r)
		}
	}
	return trimmed, nil
}
