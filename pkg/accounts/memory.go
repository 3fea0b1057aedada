package accounts

import (
	"sync"

	"github.com/fortiblox/metf/pkg/types"
)

// MemoryDB is an in-memory implementation of AccountsDB, used by tests and
// by the CLI when no data directory is configured.
type MemoryDB struct {
	mu       sync.RWMutex
	accounts map[types.Pubkey]*types.Account
}

// NewMemoryDB creates a new in-memory account database.
func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		accounts: make(map[types.Pubkey]*types.Account),
	}
}

// GetAccount retrieves an account by pubkey.
// Returns nil, nil if account does not exist.
func (db *MemoryDB) GetAccount(pubkey types.Pubkey) (*types.Account, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	account, exists := db.accounts[pubkey]
	if !exists {
		return nil, nil
	}
	return account.Clone(), nil
}

// SetAccount stores a copy of account.
func (db *MemoryDB) SetAccount(pubkey types.Pubkey, account *types.Account) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.accounts[pubkey] = account.Clone()
	return nil
}

// SetAccounts applies the whole batch under a single write lock.
func (db *MemoryDB) SetAccounts(updates []types.AccountRef) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, u := range updates {
		if isRemoval(u.Account) {
			delete(db.accounts, u.Pubkey)
			continue
		}
		db.accounts[u.Pubkey] = u.Account.Clone()
	}
	return nil
}

// DeleteAccount removes an account.
func (db *MemoryDB) DeleteAccount(pubkey types.Pubkey) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	delete(db.accounts, pubkey)
	return nil
}

// HasAccount returns true if the account exists.
func (db *MemoryDB) HasAccount(pubkey types.Pubkey) bool {
	db.mu.RLock()
	defer db.mu.RUnlock()

	_, exists := db.accounts[pubkey]
	return exists
}

// ForEachAccount iterates over copies of all accounts.
func (db *MemoryDB) ForEachAccount(fn func(types.Pubkey, *types.Account) error) error {
	db.mu.RLock()
	refs := make([]types.AccountRef, 0, len(db.accounts))
	for pk, acc := range db.accounts {
		refs = append(refs, types.AccountRef{Pubkey: pk, Account: acc.Clone()})
	}
	db.mu.RUnlock()

	for _, ref := range refs {
		if err := fn(ref.Pubkey, ref.Account); err != nil {
			return err
		}
	}
	return nil
}

// GetAccountsCount returns the total number of accounts.
func (db *MemoryDB) GetAccountsCount() uint64 {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return uint64(len(db.accounts))
}

// Close clears the database.
func (db *MemoryDB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.accounts = make(map[types.Pubkey]*types.Account)
	return nil
}

var _ AccountsDB = (*MemoryDB)(nil)
