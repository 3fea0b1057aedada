package token

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/fortiblox/metf/pkg/svm/syscall"
	"github.com/fortiblox/metf/pkg/types"
)

func testPubkey(seed string) types.Pubkey {
	return types.Pubkey(sha256.Sum256([]byte(seed)))
}

// ledger holds account state between instructions of a test.
type ledger map[types.Pubkey]*syscall.AccountInfo

func (l ledger) fund(pk types.Pubkey, owner types.Pubkey, dataLen int, lamports uint64) {
	acc := syscall.NewAccountInfo(pk, nil, false, false)
	acc.Owner = owner
	acc.Data = make([]byte, dataLen)
	*acc.Lamports = lamports
	l[pk] = acc
}

// exec runs ix against the ledger and commits the touched accounts only
// when the program succeeds.
func (l ledger) exec(t *testing.T, ix *types.Instruction) (*syscall.ExecutionContext, error) {
	t.Helper()
	views := make(map[types.Pubkey]*syscall.AccountInfo)
	infos := make([]*syscall.AccountInfo, len(ix.Accounts))
	for i, meta := range ix.Accounts {
		view, ok := views[meta.Pubkey]
		if !ok {
			base, exists := l[meta.Pubkey]
			if exists {
				view = base.Clone()
			} else {
				view = syscall.NewAccountInfo(meta.Pubkey, nil, false, false)
			}
			view.IsSigner, view.IsWritable = false, false
			views[meta.Pubkey] = view
		}
		view.IsSigner = view.IsSigner || meta.IsSigner
		view.IsWritable = view.IsWritable || meta.IsWritable
		infos[i] = view
	}

	ctx := syscall.NewExecutionContext(types.Token2022ProgramID, infos, ix.Data, 200_000)
	if err := New().Execute(ctx, ix); err != nil {
		return ctx, err
	}
	for pk, view := range views {
		l[pk] = view
	}
	return ctx, nil
}

func (l ledger) mustExec(t *testing.T, ix *types.Instruction) *syscall.ExecutionContext {
	t.Helper()
	ctx, err := l.exec(t, ix)
	if err != nil {
		t.Fatalf("instruction %d failed: %v", ix.Data[0], err)
	}
	return ctx
}

var (
	mintKey       = testPubkey("mint")
	authorityKey  = testPubkey("authority")
	hookAuthority = testPubkey("hook-authority")
	holderKey     = testPubkey("holder")
	tokenAcctKey  = testPubkey("token-account")
)

// newExtendedMint provisions a mint with transfer hook and metadata
// pointer extensions and initializes it.
func newExtendedMint(t *testing.T, l ledger) {
	t.Helper()
	size, err := CalculateAccountLen(AccountTypeMint, []ExtensionType{ExtensionMetadataPointer, ExtensionTransferHook})
	if err != nil {
		t.Fatalf("CalculateAccountLen failed: %v", err)
	}
	l.fund(mintKey, types.Token2022ProgramID, size, syscall.DefaultRent().MinimumBalance(4096))

	l.mustExec(t, InitializeTransferHook(mintKey, &hookAuthority, nil))
	l.mustExec(t, InitializeMetadataPointer(mintKey, &mintKey, &mintKey))
	l.mustExec(t, InitializeMint2(mintKey, 6, authorityKey, nil))
}

func TestCalculateAccountLen(t *testing.T) {
	cases := []struct {
		name string
		at   AccountType
		exts []ExtensionType
		want int
	}{
		{"plain mint", AccountTypeMint, nil, MintSize},
		{"plain account", AccountTypeAccount, nil, TokenAccountSize},
		{"mint with pointer and hook", AccountTypeMint, []ExtensionType{ExtensionMetadataPointer, ExtensionTransferHook}, 302},
		{"immutable owner", AccountTypeAccount, []ExtensionType{ExtensionImmutableOwner}, 170},
		{"immutable owner and hook account", AccountTypeAccount, []ExtensionType{ExtensionImmutableOwner, ExtensionTransferHookAccount}, 175},
		{"duplicates counted once", AccountTypeAccount, []ExtensionType{ExtensionImmutableOwner, ExtensionImmutableOwner}, 170},
	}
	for _, tc := range cases {
		got, err := CalculateAccountLen(tc.at, tc.exts)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if got != tc.want {
			t.Errorf("%s: got %d, want %d", tc.name, got, tc.want)
		}
	}

	if _, err := CalculateAccountLen(AccountTypeMint, []ExtensionType{ExtensionType(99)}); !errors.Is(err, ErrUnknownExtension) {
		t.Errorf("expected ErrUnknownExtension, got %v", err)
	}
	if _, err := CalculateAccountLen(AccountTypeMint, []ExtensionType{ExtensionTokenMetadata}); !errors.Is(err, ErrVariableLengthExtension) {
		t.Errorf("expected ErrVariableLengthExtension, got %v", err)
	}
}

func TestExtendedMintInitialization(t *testing.T) {
	l := ledger{}
	newExtendedMint(t, l)
	data := l[mintKey].Data

	mint, err := DeserializeMint(data)
	if err != nil {
		t.Fatalf("DeserializeMint failed: %v", err)
	}
	if !mint.IsInitialized || mint.Decimals != 6 {
		t.Errorf("unexpected mint state: %+v", mint)
	}
	if !mint.MintAuthority.IsSome || mint.MintAuthority.Value != authorityKey {
		t.Errorf("mint authority = %+v, want %s", mint.MintAuthority, authorityKey)
	}
	if mint.FreezeAuthority.IsSome {
		t.Error("freeze authority should be none")
	}
	if AccountType(data[accountTypeOffset]) != AccountTypeMint {
		t.Errorf("account type byte = %d", data[accountTypeOffset])
	}

	hookData, err := GetExtension(data, ExtensionTransferHook)
	if err != nil {
		t.Fatalf("transfer hook missing: %v", err)
	}
	hook, _ := UnpackTransferHook(hookData)
	if hook.Authority != hookAuthority || !hook.ProgramID.IsZero() {
		t.Errorf("unexpected transfer hook: %+v", hook)
	}

	pointerData, err := GetExtension(data, ExtensionMetadataPointer)
	if err != nil {
		t.Fatalf("metadata pointer missing: %v", err)
	}
	pointer, _ := UnpackMetadataPointer(pointerData)
	if pointer.Authority != mintKey || pointer.MetadataAddress != mintKey {
		t.Errorf("unexpected metadata pointer: %+v", pointer)
	}
}

func TestExtensionAfterInitializeRejected(t *testing.T) {
	l := ledger{}
	newExtendedMint(t, l)

	_, err := l.exec(t, InitializeTransferHook(mintKey, &hookAuthority, nil))
	if !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("expected ErrAlreadyInitialized, got %v", err)
	}
}

func TestInitializeMint2RejectsMalformedAccounts(t *testing.T) {
	l := ledger{}
	l.fund(mintKey, types.Token2022ProgramID, 120, syscall.DefaultRent().MinimumBalance(120))
	if _, err := l.exec(t, InitializeMint2(mintKey, 6, authorityKey, nil)); !errors.Is(err, ErrInvalidAccountData) {
		t.Errorf("expected ErrInvalidAccountData for 120-byte mint, got %v", err)
	}

	l.fund(mintKey, types.Token2022ProgramID, MintSize, 1)
	if _, err := l.exec(t, InitializeMint2(mintKey, 6, authorityKey, nil)); !errors.Is(err, ErrNotRentExempt) {
		t.Errorf("expected ErrNotRentExempt, got %v", err)
	}

	l.fund(mintKey, types.SystemProgramID, MintSize, syscall.DefaultRent().MinimumBalance(MintSize))
	if _, err := l.exec(t, InitializeMint2(mintKey, 6, authorityKey, nil)); !errors.Is(err, ErrInvalidAccountOwner) {
		t.Errorf("expected ErrInvalidAccountOwner, got %v", err)
	}
}

func TestTokenMetadata(t *testing.T) {
	l := ledger{}
	newExtendedMint(t, l)
	updateAuthority := testPubkey("update-authority")

	ix, err := InitializeTokenMetadata(mintKey, updateAuthority, mintKey, authorityKey, "Alice", "ALC", "https://x/1.json")
	if err != nil {
		t.Fatalf("InitializeTokenMetadata failed: %v", err)
	}
	l.mustExec(t, ix)

	md, err := GetTokenMetadata(l[mintKey].Data)
	if err != nil {
		t.Fatalf("GetTokenMetadata failed: %v", err)
	}
	if md.Name != "Alice" || md.Symbol != "ALC" || md.URI != "https://x/1.json" {
		t.Errorf("unexpected metadata strings: %+v", md)
	}
	if md.UpdateAuthority != updateAuthority || md.Mint != mintKey {
		t.Errorf("unexpected metadata keys: %+v", md)
	}

	ix, _ = UpdateTokenMetadataField(mintKey, updateAuthority, FieldKey("issuer"), "metf")
	l.mustExec(t, ix)
	ix, _ = UpdateTokenMetadataField(mintKey, updateAuthority, FieldName(), "Alice B")
	l.mustExec(t, ix)

	md, err = GetTokenMetadata(l[mintKey].Data)
	if err != nil {
		t.Fatalf("GetTokenMetadata failed: %v", err)
	}
	if v, ok := md.Lookup("issuer"); !ok || v != "metf" {
		t.Errorf("issuer = %q, %v", v, ok)
	}
	if md.Name != "Alice B" {
		t.Errorf("name = %q, want %q", md.Name, "Alice B")
	}

	tlvSize, _ := md.TLVSize()
	if got, want := len(l[mintKey].Data), 302+tlvSize; got != want {
		t.Errorf("mint length = %d, want %d", got, want)
	}

	ix, _ = UpdateTokenMetadataField(mintKey, authorityKey, FieldSymbol(), "XXX")
	if _, err := l.exec(t, ix); !errors.Is(err, ErrAuthorityMismatch) {
		t.Errorf("expected ErrAuthorityMismatch, got %v", err)
	}

	ix, _ = InitializeTokenMetadata(mintKey, updateAuthority, mintKey, authorityKey, "again", "A", "u")
	if _, err := l.exec(t, ix); !errors.Is(err, ErrExtensionAlreadyExists) {
		t.Errorf("expected ErrExtensionAlreadyExists, got %v", err)
	}
}

func TestTokenMetadataMustMatchPointer(t *testing.T) {
	l := ledger{}
	l.fund(mintKey, types.Token2022ProgramID, 302, syscall.DefaultRent().MinimumBalance(1024))
	elsewhere := testPubkey("elsewhere")
	l.mustExec(t, InitializeTransferHook(mintKey, &hookAuthority, nil))
	l.mustExec(t, InitializeMetadataPointer(mintKey, &mintKey, &elsewhere))
	l.mustExec(t, InitializeMint2(mintKey, 6, authorityKey, nil))

	ix, _ := InitializeTokenMetadata(mintKey, authorityKey, mintKey, authorityKey, "n", "s", "u")
	if _, err := l.exec(t, ix); !errors.Is(err, ErrMetadataPointerMismatch) {
		t.Fatalf("expected ErrMetadataPointerMismatch, got %v", err)
	}
}

// newTokenAccount sizes a token account through GetAccountDataSize and
// initializes it with an immutable owner.
func newTokenAccount(t *testing.T, l ledger) {
	t.Helper()
	ctx := l.mustExec(t, GetAccountDataSize(mintKey, ExtensionImmutableOwner))
	program, ret := ctx.GetReturnData()
	if program != types.Token2022ProgramID || len(ret) != 8 {
		t.Fatalf("unexpected return data from %s: %x", program, ret)
	}
	size := int(binary.LittleEndian.Uint64(ret))
	if size != 175 {
		t.Fatalf("account size = %d, want 175", size)
	}

	l.fund(tokenAcctKey, types.Token2022ProgramID, size, syscall.DefaultRent().MinimumBalance(uint64(size)))
	l.mustExec(t, InitializeImmutableOwner(tokenAcctKey))
	l.mustExec(t, InitializeAccount3(tokenAcctKey, mintKey, holderKey))
}

func TestMintToAndRevokeAuthority(t *testing.T) {
	l := ledger{}
	newExtendedMint(t, l)
	newTokenAccount(t, l)

	data := l[tokenAcctKey].Data
	if !HasExtension(data, ExtensionImmutableOwner) || !HasExtension(data, ExtensionTransferHookAccount) {
		t.Fatalf("token account extensions missing")
	}

	l.mustExec(t, MintTo(mintKey, tokenAcctKey, authorityKey, 1_000))
	l.mustExec(t, SetAuthority(mintKey, authorityKey, AuthorityTypeMintTokens, nil))

	mint, _ := DeserializeMint(l[mintKey].Data)
	if mint.MintAuthority.IsSome || mint.Supply != 1_000 {
		t.Errorf("unexpected mint after revoke: %+v", mint)
	}
	account, _ := DeserializeTokenAccount(l[tokenAcctKey].Data)
	if account.Amount != 1_000 || account.Owner != holderKey || account.Mint != mintKey {
		t.Errorf("unexpected token account: %+v", account)
	}

	if _, err := l.exec(t, MintTo(mintKey, tokenAcctKey, authorityKey, 1)); !errors.Is(err, ErrFixedSupply) {
		t.Errorf("MintTo after revoke: expected ErrFixedSupply, got %v", err)
	}
	if _, err := l.exec(t, SetAuthority(mintKey, authorityKey, AuthorityTypeMintTokens, &authorityKey)); !errors.Is(err, ErrFixedSupply) {
		t.Errorf("re-setting mint authority: expected ErrFixedSupply, got %v", err)
	}
}

func TestMintToWrongAuthority(t *testing.T) {
	l := ledger{}
	newExtendedMint(t, l)
	newTokenAccount(t, l)

	if _, err := l.exec(t, MintTo(mintKey, tokenAcctKey, holderKey, 1)); !errors.Is(err, ErrAuthorityMismatch) {
		t.Fatalf("expected ErrAuthorityMismatch, got %v", err)
	}
	mint, _ := DeserializeMint(l[mintKey].Data)
	if mint.Supply != 0 {
		t.Errorf("supply changed on failed mint: %d", mint.Supply)
	}
}

func TestImmutableOwner(t *testing.T) {
	l := ledger{}
	newExtendedMint(t, l)
	newTokenAccount(t, l)

	newOwner := testPubkey("new-owner")
	_, err := l.exec(t, SetAuthority(tokenAcctKey, holderKey, AuthorityTypeAccountOwner, &newOwner))
	if !errors.Is(err, ErrOwnerImmutable) {
		t.Fatalf("expected ErrOwnerImmutable, got %v", err)
	}
}

func TestInitializeAccount3NeedsHookAccountSpace(t *testing.T) {
	l := ledger{}
	newExtendedMint(t, l)

	l.fund(tokenAcctKey, types.Token2022ProgramID, TokenAccountSize, syscall.DefaultRent().MinimumBalance(TokenAccountSize))
	_, err := l.exec(t, InitializeAccount3(tokenAcctKey, mintKey, holderKey))
	if !errors.Is(err, ErrNoExtensionSpace) {
		t.Fatalf("expected ErrNoExtensionSpace, got %v", err)
	}
}

func TestUpdateFieldEncoding(t *testing.T) {
	fields := []Field{FieldName(), FieldSymbol(), FieldURI(), FieldKey("issuer")}
	for _, field := range fields {
		inst := UpdateFieldInstruction{Field: field, Value: "metf"}
		data, err := inst.Serialize()
		if err != nil {
			t.Fatalf("Serialize(%d) failed: %v", field.Kind, err)
		}
		if data[0] != byte(field.Kind) {
			t.Errorf("variant byte = %d, want %d", data[0], field.Kind)
		}
		decoded, err := DeserializeUpdateField(data)
		if err != nil {
			t.Fatalf("DeserializeUpdateField(%d) failed: %v", field.Kind, err)
		}
		if decoded.Field != field || decoded.Value != "metf" {
			t.Errorf("decoded %+v, want field %+v value metf", decoded, field)
		}
	}

	key := UpdateFieldInstruction{Field: FieldKey("issuer"), Value: "metf"}
	data, _ := key.Serialize()
	want := []byte{3, 6, 0, 0, 0, 'i', 's', 's', 'u', 'e', 'r', 4, 0, 0, 0, 'm', 'e', 't', 'f'}
	if string(data) != string(want) {
		t.Errorf("key field encoding = %x, want %x", data, want)
	}

	bad := map[string][]byte{
		"empty":     {},
		"variant":   {4, 0, 0, 0, 0},
		"truncated": data[:len(data)-1],
		"trailing":  append(append([]byte(nil), data...), 0),
	}
	for name, payload := range bad {
		if _, err := DeserializeUpdateField(payload); !errors.Is(err, ErrInvalidInstructionData) {
			t.Errorf("%s: expected ErrInvalidInstructionData, got %v", name, err)
		}
	}
}

func TestTokenMetadataCosigner(t *testing.T) {
	l := ledger{}
	newExtendedMint(t, l)
	cosigner := testPubkey("cosigner")

	ix, _ := InitializeTokenMetadata(mintKey, authorityKey, mintKey, authorityKey, "n", "s", "u", cosigner)
	if len(ix.Accounts) != 5 || !ix.Accounts[4].IsSigner {
		t.Fatalf("cosigner not appended as signer: %+v", ix.Accounts)
	}
	ix.Accounts[4].IsSigner = false
	if _, err := l.exec(t, ix); !errors.Is(err, ErrAccountNotSigner) {
		t.Fatalf("expected ErrAccountNotSigner for unsigned cosigner, got %v", err)
	}

	ix, _ = InitializeTokenMetadata(mintKey, authorityKey, mintKey, authorityKey, "n", "s", "u", cosigner)
	l.mustExec(t, ix)
	if _, err := GetTokenMetadata(l[mintKey].Data); err != nil {
		t.Errorf("GetTokenMetadata failed: %v", err)
	}
}
