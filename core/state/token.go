package state

import (
	"seaescrow/crypto"
	"seaescrow/native/token"
)

func (m *Manager) TokenMintGet(addr crypto.Address) (*token.Mint, bool, error) {
	mint := new(token.Mint)
	ok, err := m.KVGet(mintKey(addr), mint)
	if err != nil || !ok {
		return nil, false, err
	}
	return mint, true, nil
}

func (m *Manager) TokenMintPut(mint *token.Mint) error {
	return m.KVPut(mintKey(mint.Address), mint)
}

func (m *Manager) TokenAccountGet(addr crypto.Address) (*token.Account, bool, error) {
	acct := new(token.Account)
	ok, err := m.KVGet(tokenAccountKey(addr), acct)
	if err != nil || !ok {
		return nil, false, err
	}
	return acct, true, nil
}

// TokenAccountPut stores the account and indexes it under its owner.
func (m *Manager) TokenAccountPut(acct *token.Account) error {
	if err := m.KVPut(tokenAccountKey(acct.Address), acct); err != nil {
		return err
	}
	return m.KVAppend(ownerAccountsKey(acct.Owner), acct.Address.Bytes())
}

// OwnerAccounts lists every token account whose spending authority is owner.
func (m *Manager) OwnerAccounts(owner crypto.Address) ([]crypto.Address, error) {
	var raw [][]byte
	if err := m.KVGetList(ownerAccountsKey(owner), &raw); err != nil {
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
