package system

import (
	"errors"
	"testing"

	"github.com/fortiblox/metf/pkg/svm/syscall"
	"github.com/fortiblox/metf/pkg/types"
)

var (
	payerKey   = types.Pubkey{1}
	targetKey  = types.Pubkey{2}
	programKey = types.Pubkey{3}
)

func account(pk types.Pubkey, lamports uint64, owner types.Pubkey, dataLen int) *syscall.AccountInfo {
	acc := syscall.NewAccountInfo(pk, &types.Account{
		Lamports: types.Lamports(lamports),
		Owner:    owner,
		Data:     make([]byte, dataLen),
	}, false, false)
	return acc
}

// run executes ix with the given accounts, applying each meta's privileges.
func run(ix *types.Instruction, accs ...*syscall.AccountInfo) error {
	for i, meta := range ix.Accounts {
		accs[i].IsSigner = meta.IsSigner
		accs[i].IsWritable = meta.IsWritable
	}
	ctx := syscall.NewExecutionContext(types.SystemProgramID, accs, ix.Data, 10_000)
	return New().Execute(ctx, ix.Data)
}

func TestCreateAccount(t *testing.T) {
	rent := syscall.DefaultRent()
	lamports := rent.MinimumBalance(64)
	payer := account(payerKey, 10_000_000, types.SystemProgramID, 0)
	target := account(targetKey, 0, types.SystemProgramID, 0)

	if err := run(CreateAccount(payerKey, targetKey, lamports, 64, programKey), payer, target); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	if *target.Lamports != lamports {
		t.Errorf("target lamports = %d, want %d", *target.Lamports, lamports)
	}
	if *payer.Lamports != 10_000_000-lamports {
		t.Errorf("payer lamports = %d", *payer.Lamports)
	}
	if len(target.Data) != 64 || target.Owner != programKey {
		t.Errorf("target has %d bytes owned by %s", len(target.Data), target.Owner)
	}
}

func TestCreateAccountRejectsFundedTarget(t *testing.T) {
	payer := account(payerKey, 10_000_000, types.SystemProgramID, 0)
	target := account(targetKey, 1, types.SystemProgramID, 0)

	err := run(CreateAccount(payerKey, targetKey, 1_000_000, 0, programKey), payer, target)
	if !errors.Is(err, ErrAccountAlreadyInUse) {
		t.Fatalf("expected ErrAccountAlreadyInUse, got %v", err)
	}
}

func TestCreateAccountRequiresRentExemption(t *testing.T) {
	payer := account(payerKey, 10_000_000, types.SystemProgramID, 0)
	target := account(targetKey, 0, types.SystemProgramID, 0)

	err := run(CreateAccount(payerKey, targetKey, 1_000, 64, programKey), payer, target)
	if !errors.Is(err, ErrAccountNotRentExempt) {
		t.Fatalf("expected ErrAccountNotRentExempt, got %v", err)
	}
}

func TestCreateAccountRequiresBothSigners(t *testing.T) {
	payer := account(payerKey, 10_000_000, types.SystemProgramID, 0)
	target := account(targetKey, 0, types.SystemProgramID, 0)

	ix := CreateAccount(payerKey, targetKey, 1_000_000, 0, programKey)
	ix.Accounts[1].IsSigner = false
	if err := run(ix, payer, target); !errors.Is(err, ErrAccountNotSigner) {
		t.Fatalf("expected ErrAccountNotSigner, got %v", err)
	}
}

func TestTransfer(t *testing.T) {
	payer := account(payerKey, 1_000, types.SystemProgramID, 0)
	dest := account(targetKey, 0, types.SystemProgramID, 0)

	if err := run(Transfer(payerKey, targetKey, 400), payer, dest); err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}
	if *payer.Lamports != 600 || *dest.Lamports != 400 {
		t.Errorf("balances = %d/%d, want 600/400", *payer.Lamports, *dest.Lamports)
	}

	if err := run(Transfer(payerKey, targetKey, 601), payer, dest); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestTransferFromAccountWithData(t *testing.T) {
	payer := account(payerKey, 1_000, types.SystemProgramID, 8)
	dest := account(targetKey, 0, types.SystemProgramID, 0)

	if err := run(Transfer(payerKey, targetKey, 1), payer, dest); !errors.Is(err, ErrTransferFromAccountWithData) {
		t.Fatalf("expected ErrTransferFromAccountWithData, got %v", err)
	}
}

func TestAssign(t *testing.T) {
	acc := account(targetKey, 1_000, types.SystemProgramID, 0)
	if err := run(Assign(targetKey, programKey), acc); err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	if acc.Owner != programKey {
		t.Errorf("owner = %s", acc.Owner)
	}

	// Assigning to the current owner is a no-op; moving on is not allowed.
	if err := run(Assign(targetKey, programKey), acc); err != nil {
		t.Fatalf("repeated Assign failed: %v", err)
	}
	if err := run(Assign(targetKey, types.SystemProgramID), acc); !errors.Is(err, ErrInvalidAccountOwner) {
		t.Fatalf("expected ErrInvalidAccountOwner, got %v", err)
	}
}

func TestAllocate(t *testing.T) {
	acc := account(targetKey, 0, types.SystemProgramID, 0)
	if err := run(Allocate(targetKey, 32), acc); err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if len(acc.Data) != 32 {
		t.Errorf("data length = %d, want 32", len(acc.Data))
	}
	if err := run(Allocate(targetKey, 32), acc); !errors.Is(err, ErrAccountAlreadyInUse) {
		t.Fatalf("expected ErrAccountAlreadyInUse, got %v", err)
	}

	fresh := account(payerKey, 0, types.SystemProgramID, 0)
	if err := run(Allocate(payerKey, syscall.MaxAccountDataSize+1), fresh); !errors.Is(err, ErrAccountDataTooLarge) {
		t.Fatalf("expected ErrAccountDataTooLarge, got %v", err)
	}
}

func TestUnknownInstruction(t *testing.T) {
	ctx := syscall.NewExecutionContext(types.SystemProgramID, nil, nil, 10_000)
	if err := New().Execute(ctx, []byte{99, 0, 0, 0}); !errors.Is(err, ErrInvalidInstructionData) {
		t.Fatalf("expected ErrInvalidInstructionData, got %v", err)
	}
	if err := New().Execute(ctx, []byte{1}); !errors.Is(err, ErrInvalidInstructionData) {
		t.Fatalf("expected ErrInvalidInstructionData for short data, got %v", err)
	}
}
