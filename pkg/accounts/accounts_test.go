package accounts

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"sync"
	"testing"

	"github.com/fortiblox/metf/pkg/types"
)

// Helper function to create test pubkeys
func testPubkey(seed string) types.Pubkey {
	hash := sha256.Sum256([]byte(seed))
	var pk types.Pubkey
	copy(pk[:], hash[:])
	return pk
}

func testAccount(lamports types.Lamports, data []byte, owner types.Pubkey) *types.Account {
	return &types.Account{
		Lamports: lamports,
		Data:     data,
		Owner:    owner,
	}
}

func openBadger(t *testing.T) *BadgerDB {
	t.Helper()
	db, err := NewBadgerDB(t.TempDir())
	if err != nil {
		t.Fatalf("NewBadgerDB failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func forEachBackend(t *testing.T, fn func(t *testing.T, db AccountsDB)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryDB()) })
	t.Run("badger", func(t *testing.T) { fn(t, openBadger(t)) })
}

func TestSetAndGetAccount(t *testing.T) {
	forEachBackend(t, func(t *testing.T, db AccountsDB) {
		pubkey := testPubkey("test_account")
		account := testAccount(1_000_000_000, []byte("test_data"), types.SystemProgramID)

		if err := db.SetAccount(pubkey, account); err != nil {
			t.Fatalf("SetAccount failed: %v", err)
		}

		retrieved, err := db.GetAccount(pubkey)
		if err != nil {
			t.Fatalf("GetAccount failed: %v", err)
		}
		if retrieved == nil {
			t.Fatal("GetAccount returned nil")
		}
		if retrieved.Lamports != account.Lamports {
			t.Errorf("expected lamports %d, got %d", account.Lamports, retrieved.Lamports)
		}
		if !bytes.Equal(retrieved.Data, account.Data) {
			t.Errorf("expected data %q, got %q", account.Data, retrieved.Data)
		}
		if retrieved.Owner != account.Owner {
			t.Errorf("expected owner %s, got %s", account.Owner, retrieved.Owner)
		}
		if db.GetAccountsCount() != 1 {
			t.Errorf("expected 1 account, got %d", db.GetAccountsCount())
		}
	})
}

func TestGetAccount_NotFound(t *testing.T) {
	forEachBackend(t, func(t *testing.T, db AccountsDB) {
		account, err := db.GetAccount(testPubkey("missing"))
		if err != nil {
			t.Fatalf("GetAccount failed: %v", err)
		}
		if account != nil {
			t.Errorf("expected nil account, got %+v", account)
		}
		if db.HasAccount(testPubkey("missing")) {
			t.Errorf("HasAccount should be false for missing account")
		}
	})
}

func TestSetAccounts_Batch(t *testing.T) {
	forEachBackend(t, func(t *testing.T, db AccountsDB) {
		a, b, c := testPubkey("a"), testPubkey("b"), testPubkey("c")
		if err := db.SetAccount(c, testAccount(5, nil, types.SystemProgramID)); err != nil {
			t.Fatalf("SetAccount failed: %v", err)
		}

		err := db.SetAccounts([]types.AccountRef{
			{Pubkey: a, Account: testAccount(1, []byte{1}, types.SystemProgramID)},
			{Pubkey: b, Account: testAccount(2, nil, types.Token2022ProgramID)},
			{Pubkey: c, Account: testAccount(0, nil, types.SystemProgramID)},
		})
		if err != nil {
			t.Fatalf("SetAccounts failed: %v", err)
		}

		if !db.HasAccount(a) || !db.HasAccount(b) {
			t.Errorf("batch writes missing")
		}
		if db.HasAccount(c) {
			t.Errorf("empty account in batch should be removed")
		}
		if db.GetAccountsCount() != 2 {
			t.Errorf("expected 2 accounts, got %d", db.GetAccountsCount())
		}
	})
}

func TestDeleteAccount(t *testing.T) {
	forEachBackend(t, func(t *testing.T, db AccountsDB) {
		pubkey := testPubkey("to_delete")
		db.SetAccount(pubkey, testAccount(100, nil, types.SystemProgramID))

		if err := db.DeleteAccount(pubkey); err != nil {
			t.Fatalf("DeleteAccount failed: %v", err)
		}
		if err := db.DeleteAccount(pubkey); err != nil {
			t.Fatalf("second DeleteAccount failed: %v", err)
		}
		if db.HasAccount(pubkey) {
			t.Error("account should not exist after deletion")
		}
		if db.GetAccountsCount() != 0 {
			t.Errorf("expected 0 accounts, got %d", db.GetAccountsCount())
		}
	})
}

func TestForEachAccount(t *testing.T) {
	forEachBackend(t, func(t *testing.T, db AccountsDB) {
		for _, seed := range []string{"x", "y", "z"} {
			db.SetAccount(testPubkey(seed), testAccount(10, []byte(seed), types.SystemProgramID))
		}

		var total types.Lamports
		seen := 0
		err := db.ForEachAccount(func(_ types.Pubkey, acc *types.Account) error {
			total += acc.Lamports
			seen++
			return nil
		})
		if err != nil {
			t.Fatalf("ForEachAccount failed: %v", err)
		}
		if seen != 3 || total != 30 {
			t.Errorf("expected 3 accounts with 30 lamports, got %d with %d", seen, total)
		}

		stop := errors.New("stop")
		calls := 0
		err = db.ForEachAccount(func(types.Pubkey, *types.Account) error {
			calls++
			return stop
		})
		if !errors.Is(err, stop) || calls != 1 {
			t.Errorf("expected iteration to stop after first error, calls=%d err=%v", calls, err)
		}
	})
}

func TestMemoryDB_DataIsolation(t *testing.T) {
	db := NewMemoryDB()
	pubkey := testPubkey("isolation")
	data := []byte("original")
	db.SetAccount(pubkey, testAccount(1, data, types.SystemProgramID))

	data[0] = 'X'
	got, _ := db.GetAccount(pubkey)
	if string(got.Data) != "original" {
		t.Errorf("stored data was mutated through caller slice: %q", got.Data)
	}

	got.Data[0] = 'Y'
	again, _ := db.GetAccount(pubkey)
	if string(again.Data) != "original" {
		t.Errorf("stored data was mutated through returned account: %q", again.Data)
	}
}

func TestMemoryDB_Concurrent(t *testing.T) {
	db := NewMemoryDB()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pk := testPubkey(string(rune('a' + i%26)))
			db.SetAccounts([]types.AccountRef{{Pubkey: pk, Account: testAccount(types.Lamports(i+1), nil, types.SystemProgramID)}})
			db.GetAccount(pk)
		}(i)
	}
	wg.Wait()

	if db.GetAccountsCount() != 26 {
		t.Errorf("expected 26 accounts, got %d", db.GetAccountsCount())
	}
}

func TestBadgerDB_Reopen(t *testing.T) {
	dir := t.TempDir()
	db, err := NewBadgerDB(dir)
	if err != nil {
		t.Fatalf("NewBadgerDB failed: %v", err)
	}
	db.SetAccount(testPubkey("persist"), testAccount(42, []byte{1, 2, 3}, types.Token2022ProgramID))
	if err := db.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	db, err = NewBadgerDB(dir)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer db.Close()

	if db.GetAccountsCount() != 1 {
		t.Errorf("expected 1 account after reopen, got %d", db.GetAccountsCount())
	}
	acc, err := db.GetAccount(testPubkey("persist"))
	if err != nil || acc == nil {
		t.Fatalf("GetAccount after reopen failed: %v", err)
	}
	if acc.Lamports != 42 || acc.Owner != types.Token2022ProgramID {
		t.Errorf("unexpected account after reopen: %+v", acc)
	}
}

func TestSerializeAccount(t *testing.T) {
	account := &types.Account{
		Lamports:   7,
		Data:       []byte("payload"),
		Owner:      testPubkey("owner"),
		Executable: true,
		RentEpoch:  9,
	}
	raw, err := SerializeAccount(account)
	if err != nil {
		t.Fatalf("SerializeAccount failed: %v", err)
	}
	if len(raw) != recordHeaderSize+len(account.Data) {
		t.Errorf("expected %d bytes, got %d", recordHeaderSize+len(account.Data), len(raw))
	}

	decoded, err := DeserializeAccount(raw)
	if err != nil {
		t.Fatalf("DeserializeAccount failed: %v", err)
	}
	if !decoded.Executable || decoded.RentEpoch != 9 || string(decoded.Data) != "payload" {
		t.Errorf("unexpected decoded account: %+v", decoded)
	}

	if _, err := DeserializeAccount(raw[:len(raw)-1]); !errors.Is(err, ErrInvalidAccountData) {
		t.Errorf("expected ErrInvalidAccountData for truncated data, got %v", err)
	}
	if _, err := DeserializeAccount(append(raw, 0)); !errors.Is(err, ErrInvalidAccountData) {
		t.Errorf("expected ErrInvalidAccountData for trailing bytes, got %v", err)
	}
	bad := append([]byte(nil), raw...)
	bad[0] = 2
	if _, err := DeserializeAccount(bad); !errors.Is(err, ErrInvalidAccountData) {
		t.Errorf("expected ErrInvalidAccountData for unknown version, got %v", err)
	}
}

func TestComputeAccountsHash(t *testing.T) {
	if ComputeAccountsHash(nil) != types.ZeroHash {
		t.Errorf("empty set should hash to zero")
	}

	refs := make([]types.AccountRef, 20)
	for i := range refs {
		refs[i] = types.AccountRef{
			Pubkey:  testPubkey(string(rune('A' + i))),
			Account: testAccount(types.Lamports(i), nil, types.SystemProgramID),
		}
	}

	h1 := ComputeAccountsHash(refs)
	reversed := make([]types.AccountRef, len(refs))
	for i := range refs {
		reversed[len(refs)-1-i] = refs[i]
	}
	if ComputeAccountsHash(reversed) != h1 {
		t.Errorf("hash should not depend on input order")
	}

	refs[3].Account = testAccount(1000, nil, types.SystemProgramID)
	if ComputeAccountsHash(refs) == h1 {
		t.Errorf("hash should change when an account changes")
	}

	single := []types.AccountRef{refs[0]}
	if ComputeAccountsHash(single) != refs[0].Account.Hash(refs[0].Pubkey) {
		t.Errorf("single account root should equal its leaf hash")
	}
}
