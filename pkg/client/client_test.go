package client

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gagliardetto/solana-go"

	"github.com/fortiblox/metf/pkg/accounts"
	"github.com/fortiblox/metf/pkg/runtime"
	"github.com/fortiblox/metf/pkg/svm/programs/persontoken"
	"github.com/fortiblox/metf/pkg/types"
)

func testKey(seed string) solana.PrivateKey {
	s := sha256.Sum256([]byte(seed))
	return solana.PrivateKey(ed25519.NewKeyFromSeed(s[:]))
}

var args = InitPersonTokenArgs{Name: "Alice", Symbol: "ALC", URI: "https://x/1.json"}

func TestAddressesMatchRuntime(t *testing.T) {
	signer, mint := testKey("signer").PublicKey(), testKey("mint").PublicKey()

	person, bump, err := FindPersonAddress(signer)
	if err != nil {
		t.Fatalf("FindPersonAddress failed: %v", err)
	}
	wantPerson, wantBump, err := persontoken.DerivePersonAddress(LedgerPubkey(signer))
	if err != nil {
		t.Fatalf("DerivePersonAddress failed: %v", err)
	}
	if LedgerPubkey(person) != wantPerson || bump != wantBump {
		t.Errorf("person = %s/%d, runtime derives %s/%d", person, bump, wantPerson, wantBump)
	}

	vault, _, err := FindVaultAddress(person, mint)
	if err != nil {
		t.Fatalf("FindVaultAddress failed: %v", err)
	}
	wantVault, _, err := persontoken.DeriveVaultAddress(wantPerson, LedgerPubkey(mint))
	if err != nil {
		t.Fatalf("DeriveVaultAddress failed: %v", err)
	}
	if LedgerPubkey(vault) != wantVault {
		t.Errorf("vault = %s, runtime derives %s", vault, wantVault)
	}
}

func TestInstructionMatchesRuntime(t *testing.T) {
	signer, mint := testKey("signer").PublicKey(), testKey("mint").PublicKey()

	ix, err := NewInitPersonTokenInstruction(signer, mint, args)
	if err != nil {
		t.Fatalf("NewInitPersonTokenInstruction failed: %v", err)
	}
	want, err := persontoken.InitPersonToken(LedgerPubkey(signer), LedgerPubkey(mint),
		persontoken.InitPersonTokenParams{Name: args.Name, Symbol: args.Symbol, URI: args.URI})
	if err != nil {
		t.Fatalf("InitPersonToken failed: %v", err)
	}

	data, err := ix.Data()
	if err != nil {
		t.Fatalf("Data failed: %v", err)
	}
	if !bytes.Equal(data, want.Data) {
		t.Errorf("instruction data differs:\n got %x\nwant %x", data, want.Data)
	}
	metas := ix.Accounts()
	if len(metas) != len(want.Accounts) {
		t.Fatalf("got %d accounts, want %d", len(metas), len(want.Accounts))
	}
	for i, m := range metas {
		w := want.Accounts[i]
		if LedgerPubkey(m.PublicKey) != w.Pubkey || m.IsSigner != w.IsSigner || m.IsWritable != w.IsWritable {
			t.Errorf("account %d = %s signer=%v writable=%v, want %s signer=%v writable=%v",
				i, m.PublicKey, m.IsSigner, m.IsWritable, w.Pubkey, w.IsSigner, w.IsWritable)
		}
	}
}

func TestSubmitToBank(t *testing.T) {
	bank, err := runtime.NewBank(accounts.NewMemoryDB(), runtime.DefaultConfig())
	if err != nil {
		t.Fatalf("NewBank failed: %v", err)
	}
	signer, mint := testKey("signer"), testKey("mint")
	if err := bank.Airdrop(LedgerPubkey(signer.PublicKey()), 5_000_000_000); err != nil {
		t.Fatalf("Airdrop failed: %v", err)
	}

	tx, err := BuildInitPersonToken(signer, mint, args, Blockhash(bank.LatestBlockhash()), Options{ComputeUnitLimit: 400_000})
	if err != nil {
		t.Fatalf("BuildInitPersonToken failed: %v", err)
	}
	ledgerTx, err := ToLedger(tx)
	if err != nil {
		t.Fatalf("ToLedger failed: %v", err)
	}
	if ledgerTx.ID() != types.Signature(tx.Signatures[0]) {
		t.Errorf("transaction id changed in conversion")
	}

	result, err := bank.ProcessTransaction(ledgerTx)
	if err != nil {
		t.Fatalf("ProcessTransaction failed: %v", err)
	}
	if !result.Success {
		t.Fatalf("transaction failed: %v\nlogs:\n%s", result.Error, strings.Join(result.Logs, "\n"))
	}

	person, _, _ := FindPersonAddress(signer.PublicKey())
	acc, err := bank.GetAccount(LedgerPubkey(person))
	if err != nil || acc == nil {
		t.Fatalf("person account missing: %v", err)
	}
	record, err := persontoken.UnpackPerson(acc.Data)
	if err != nil {
		t.Fatalf("UnpackPerson failed: %v", err)
	}
	if record.Mint != LedgerPubkey(mint.PublicKey()) {
		t.Errorf("person mint = %s, want %s", record.Mint, mint.PublicKey())
	}
}

func TestTransferThroughBank(t *testing.T) {
	bank, err := runtime.NewBank(accounts.NewMemoryDB(), runtime.DefaultConfig())
	if err != nil {
		t.Fatalf("NewBank failed: %v", err)
	}
	from, to := testKey("from"), testKey("to").PublicKey()
	if err := bank.Airdrop(LedgerPubkey(from.PublicKey()), 5_000_000_000); err != nil {
		t.Fatalf("Airdrop failed: %v", err)
	}

	tx, err := BuildTransfer(from, to, 1_000_000_000, Blockhash(bank.LatestBlockhash()))
	if err != nil {
		t.Fatalf("BuildTransfer failed: %v", err)
	}
	ledgerTx, err := ToLedger(tx)
	if err != nil {
		t.Fatalf("ToLedger failed: %v", err)
	}
	result, err := bank.ProcessTransaction(ledgerTx)
	if err != nil {
		t.Fatalf("ProcessTransaction failed: %v", err)
	}
	if !result.Success {
		t.Fatalf("transfer failed: %v", result.Error)
	}
	if got, _ := bank.GetBalance(LedgerPubkey(to)); got != 1_000_000_000 {
		t.Errorf("recipient balance = %d", got)
	}
}

func TestBuildRequiresBlockhash(t *testing.T) {
	_, err := BuildInitPersonToken(testKey("signer"), testKey("mint"), args, solana.Hash{}, Options{})
	if !errors.Is(err, ErrEmptyBlockhash) {
		t.Fatalf("expected ErrEmptyBlockhash, got %v", err)
	}
}

func TestKeypairFile(t *testing.T) {
	key, err := NewKeypair()
	if err != nil {
		t.Fatalf("NewKeypair failed: %v", err)
	}
	path := filepath.Join(t.TempDir(), "keys", "id.json")
	if err := SaveKeypair(path, key); err != nil {
		t.Fatalf("SaveKeypair failed: %v", err)
	}
	loaded, err := LoadKeypair(path)
	if err != nil {
		t.Fatalf("LoadKeypair failed: %v", err)
	}
	if !loaded.PublicKey().Equals(key.PublicKey()) {
		t.Errorf("loaded %s, saved %s", loaded.PublicKey(), key.PublicKey())
	}
}
