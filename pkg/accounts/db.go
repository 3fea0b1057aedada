// Package accounts provides account storage for the METF ledger.
package accounts

import (
	"github.com/fortiblox/metf/pkg/types"
)

// AccountsDB defines the interface for account storage.
type AccountsDB interface {
	// GetAccount retrieves an account by pubkey.
	// Returns nil, nil if account does not exist.
	GetAccount(pubkey types.Pubkey) (*types.Account, error)

	// SetAccount stores an account.
	SetAccount(pubkey types.Pubkey, account *types.Account) error

	// SetAccounts applies a batch of writes atomically: either every
	// update is visible afterwards or none is. A nil or empty Account in
	// the batch deletes the key.
	SetAccounts(updates []types.AccountRef) error

	// DeleteAccount removes an account.
	DeleteAccount(pubkey types.Pubkey) error

	// HasAccount returns true if the account exists.
	HasAccount(pubkey types.Pubkey) bool

	// ForEachAccount calls fn for every stored account until fn returns
	// an error. Iteration order is unspecified.
	ForEachAccount(fn func(pubkey types.Pubkey, account *types.Account) error) error

	// GetAccountsCount returns the total number of accounts.
	GetAccountsCount() uint64

	// Close closes the database.
	Close() error
}

func isRemoval(account *types.Account) bool {
	return account == nil || account.IsEmpty()
}
