package state

import (
	"fmt"
	"math/big"

	"homeescrow/core/types"
)

type storedAccount struct {
	Nonce   uint64
	Balance *big.Int
}

func ensureAccountDefaults(account *types.Account) {
	if account.Balance == nil {
		account.Balance = big.NewInt(0)
	}
}

// GetAccount loads the account for addr. Unknown accounts are returned with a
// zero balance.
func (m *Manager) GetAccount(addr []byte) (*types.Account, error) {
	if len(addr) != 20 {
		return nil, fmt.Errorf("account: address must be 20 bytes, got %d", len(addr))
	}
	var stored storedAccount
	ok, err := m.KVGet(AccountKey(addr), &stored)
	if err != nil {
		return nil, err
	}
	account := &types.Account{}
	if ok {
		account.Nonce = stored.Nonce
		account.Balance = stored.Balance
	}
	ensureAccountDefaults(account)
	return account, nil
}

// PutAccount persists the account for addr.
func (m *Manager) PutAccount(addr []byte, account *types.Account) error {
	if len(addr) != 20 {
		return fmt.Errorf("account: address must be 20 bytes, got %d", len(addr))
	}
	if account == nil {
		return fmt.Errorf("account: nil account")
	}
	clone := account.Clone()
	if clone.Balance.Sign() < 0 {
		return fmt.Errorf("account: negative balance")
	}
	return m.KVPut(AccountKey(addr), storedAccount{Nonce: clone.Nonce, Balance: clone.Balance})
}

// Credit adds amount to the account balance. It is used for genesis
// allocations and tests.
func (m *Manager) Credit(addr []byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("account: credit amount must be non-negative")
	}
	account, err := m.GetAccount(addr)
	if err != nil {
		return err
	}
	account.Balance.Add(account.Balance, amount)
	return m.PutAccount(addr, account)
}
