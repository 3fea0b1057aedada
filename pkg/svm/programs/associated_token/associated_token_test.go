package associated_token

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"testing"

	"github.com/fortiblox/metf/pkg/svm/programs/system"
	"github.com/fortiblox/metf/pkg/svm/programs/token"
	"github.com/fortiblox/metf/pkg/svm/syscall"
	"github.com/fortiblox/metf/pkg/types"
)

func testPubkey(seed string) types.Pubkey {
	return types.Pubkey(sha256.Sum256([]byte(seed)))
}

// harness routes invocations to the three native programs and keeps
// committed account state.
type harness struct {
	accounts map[types.Pubkey]*syscall.AccountInfo
}

func newHarness() *harness {
	return &harness{accounts: make(map[types.Pubkey]*syscall.AccountInfo)}
}

func (h *harness) ExecuteProgram(ctx *syscall.ExecutionContext) error {
	ix := &types.Instruction{ProgramID: ctx.ProgramID, Data: ctx.InstructionData}
	switch ctx.ProgramID {
	case types.SystemProgramID:
		return system.New().Execute(ctx, ctx.InstructionData)
	case types.Token2022ProgramID:
		return token.New().Execute(ctx, ix)
	case types.AssociatedTokenProgramID:
		return New().Execute(ctx, ix)
	}
	return fmt.Errorf("unknown program %s", ctx.ProgramID)
}

func (h *harness) fund(pk types.Pubkey, owner types.Pubkey, dataLen int, lamports uint64) {
	acc := syscall.NewAccountInfo(pk, nil, false, false)
	acc.Owner = owner
	acc.Data = make([]byte, dataLen)
	*acc.Lamports = lamports
	h.accounts[pk] = acc
}

func (h *harness) run(ix *types.Instruction) error {
	views := make(map[types.Pubkey]*syscall.AccountInfo)
	infos := make([]*syscall.AccountInfo, len(ix.Accounts))
	for i, meta := range ix.Accounts {
		view, ok := views[meta.Pubkey]
		if !ok {
			if base, exists := h.accounts[meta.Pubkey]; exists {
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

	ctx := syscall.NewExecutionContext(ix.ProgramID, infos, ix.Data, 1_400_000)
	ctx.Executor = h
	err := h.ExecuteProgram(ctx)
	if err == nil {
		err = ctx.VerifyChanges()
	}
	if err != nil {
		return err
	}
	for pk, view := range views {
		h.accounts[pk] = view
	}
	return nil
}

var (
	payerKey  = testPubkey("payer")
	walletKey = testPubkey("wallet")
	mintKey   = testPubkey("mint")
)

func setup(t *testing.T) *harness {
	t.Helper()
	h := newHarness()
	h.fund(payerKey, types.SystemProgramID, 0, 10*uint64(types.LamportsPerSOL))
	h.fund(mintKey, types.Token2022ProgramID, token.MintSize, syscall.DefaultRent().MinimumBalance(token.MintSize))
	if err := h.run(token.InitializeMint2(mintKey, 6, payerKey, nil)); err != nil {
		t.Fatalf("InitializeMint2 failed: %v", err)
	}
	return h
}

func TestCreate(t *testing.T) {
	h := setup(t)
	ix, ata, err := Create(payerKey, walletKey, mintKey)
	if err != nil {
		t.Fatalf("Create builder failed: %v", err)
	}
	if err := h.run(ix); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	acc := h.accounts[ata]
	if acc.Owner != types.Token2022ProgramID {
		t.Fatalf("ATA owner = %s", acc.Owner)
	}
	if len(acc.Data) != 170 {
		t.Errorf("ATA length = %d, want 170", len(acc.Data))
	}
	rent := syscall.DefaultRent().MinimumBalance(170)
	if *acc.Lamports != rent {
		t.Errorf("ATA lamports = %d, want %d", *acc.Lamports, rent)
	}
	if got := *h.accounts[payerKey].Lamports; got != 10*uint64(types.LamportsPerSOL)-rent {
		t.Errorf("payer lamports = %d", got)
	}
	if !token.HasExtension(acc.Data, token.ExtensionImmutableOwner) {
		t.Error("ATA missing ImmutableOwner")
	}
	state, err := token.DeserializeTokenAccount(acc.Data)
	if err != nil {
		t.Fatalf("DeserializeTokenAccount failed: %v", err)
	}
	if state.Owner != walletKey || state.Mint != mintKey || state.State != token.AccountStateInitialized {
		t.Errorf("unexpected token account: %+v", state)
	}
}

func TestCreateTwice(t *testing.T) {
	h := setup(t)
	ix, _, _ := Create(payerKey, walletKey, mintKey)
	if err := h.run(ix); err != nil {
		t.Fatalf("first Create failed: %v", err)
	}

	ix, _, _ = Create(payerKey, walletKey, mintKey)
	if err := h.run(ix); !errors.Is(err, system.ErrAccountAlreadyInUse) {
		t.Errorf("second Create: expected ErrAccountAlreadyInUse, got %v", err)
	}

	ix, _, _ = CreateIdempotent(payerKey, walletKey, mintKey)
	if err := h.run(ix); err != nil {
		t.Errorf("CreateIdempotent on existing account failed: %v", err)
	}
}

func TestCreateRejectsWrongAddress(t *testing.T) {
	h := setup(t)
	ix, _, _ := Create(payerKey, walletKey, mintKey)
	ix.Accounts[1].Pubkey = testPubkey("not-the-ata")

	if err := h.run(ix); !errors.Is(err, ErrInvalidSeeds) {
		t.Fatalf("expected ErrInvalidSeeds, got %v", err)
	}
}

func TestCreatePrefundedAddress(t *testing.T) {
	h := setup(t)
	ix, ata, _ := Create(payerKey, walletKey, mintKey)
	h.fund(ata, types.SystemProgramID, 0, 1_000)

	if err := h.run(ix); err != nil {
		t.Fatalf("Create on pre-funded address failed: %v", err)
	}
	acc := h.accounts[ata]
	if want := syscall.DefaultRent().MinimumBalance(170); *acc.Lamports != want {
		t.Errorf("ATA lamports = %d, want %d", *acc.Lamports, want)
	}
	if acc.Owner != types.Token2022ProgramID {
		t.Errorf("ATA owner = %s", acc.Owner)
	}
}

func TestCreateUnsignedPayer(t *testing.T) {
	h := setup(t)
	ix, _, _ := Create(payerKey, walletKey, mintKey)
	ix.Accounts[0].IsSigner = false

	if err := h.run(ix); !errors.Is(err, ErrAccountNotSigner) {
		t.Fatalf("expected ErrAccountNotSigner, got %v", err)
	}
}
