package runtime

import (
	"errors"
	"testing"

	"github.com/fortiblox/metf/pkg/svm/programs/system"
	"github.com/fortiblox/metf/pkg/svm/syscall"
	"github.com/fortiblox/metf/pkg/types"
)

type mapLoader map[types.Pubkey]*types.Account

func (l mapLoader) GetAccount(pk types.Pubkey) (*types.Account, error) {
	return l[pk].Clone(), nil
}

var testProgramID = types.Pubkey{0xaa}

func executorWith(program ProgramFunc) (*Executor, mapLoader) {
	registry := NewNativeRegistry()
	registry.RegisterProgram(testProgramID, "Test Program", program)
	loader := mapLoader{
		testProgramID:         {Lamports: 1, Owner: types.NativeLoaderID, Executable: true},
		types.SystemProgramID: {Lamports: 1, Owner: types.NativeLoaderID, Executable: true},
	}
	return NewExecutor(registry, syscall.DefaultRent()), loader
}

func unsignedTx(t *testing.T, payer types.Pubkey, ixs ...*types.Instruction) *types.Transaction {
	t.Helper()
	msg, err := types.NewMessage(payer, types.Hash{}, ixs...)
	if err != nil {
		t.Fatalf("NewMessage failed: %v", err)
	}
	return &types.Transaction{Message: msg}
}

func TestExecutorRoutesCPIThroughRegistry(t *testing.T) {
	payer, dest := types.Pubkey{1}, types.Pubkey{2}
	exec, loader := executorWith(func(ctx *syscall.ExecutionContext, ix *types.Instruction) error {
		return ctx.Invoke(system.Transfer(payer, dest, 5_000_000))
	})
	loader[payer] = &types.Account{Lamports: 10_000_000, Owner: types.SystemProgramID}

	tx := unsignedTx(t, payer, &types.Instruction{
		ProgramID: testProgramID,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(payer, true, true),
			types.NewAccountMeta(dest, true, false),
			types.NewAccountMeta(types.SystemProgramID, false, false),
		},
	})

	result, err := exec.ExecuteTransaction(tx, loader, 200_000)
	if err != nil {
		t.Fatalf("ExecuteTransaction failed: %v", err)
	}
	if !result.Success() {
		t.Fatalf("transaction failed: %v\nlogs: %v", result.Err, result.Logs)
	}
	if len(result.Updates) != 2 {
		t.Fatalf("expected 2 updates, got %d", len(result.Updates))
	}
	for _, u := range result.Updates {
		if u.Pubkey == dest && u.Account.Lamports != 5_000_000 {
			t.Errorf("dest lamports = %d", u.Account.Lamports)
		}
	}

	wantLogs := []string{
		"Program " + testProgramID.String() + " invoke [1]",
		"Program " + types.SystemProgramID.String() + " invoke [2]",
		"Program " + types.SystemProgramID.String() + " success",
	}
	if len(result.Logs) < len(wantLogs) {
		t.Fatalf("expected at least %d logs, got %v", len(wantLogs), result.Logs)
	}
	for i, want := range wantLogs {
		if result.Logs[i] != want {
			t.Errorf("log %d = %q, want %q", i, result.Logs[i], want)
		}
	}
}

func TestExecutorRejectsReadonlyModification(t *testing.T) {
	payer, victim := types.Pubkey{1}, types.Pubkey{2}
	exec, loader := executorWith(func(ctx *syscall.ExecutionContext, ix *types.Instruction) error {
		acc, err := ctx.GetAccountByIndex(1)
		if err != nil {
			return err
		}
		acc.Data[0] = 1
		return nil
	})
	loader[payer] = &types.Account{Lamports: 10_000_000, Owner: types.SystemProgramID}
	loader[victim] = &types.Account{Lamports: 10_000_000, Owner: testProgramID, Data: make([]byte, 4)}

	tx := unsignedTx(t, payer, &types.Instruction{
		ProgramID: testProgramID,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(payer, true, true),
			types.NewAccountMeta(victim, false, false),
		},
	})

	result, err := exec.ExecuteTransaction(tx, loader, 200_000)
	if err != nil {
		t.Fatalf("ExecuteTransaction failed: %v", err)
	}
	if !errors.Is(result.Err, syscall.ErrReadOnlyModified) {
		t.Fatalf("expected ErrReadOnlyModified, got %v", result.Err)
	}
	if len(result.Updates) != 0 {
		t.Errorf("failed transaction produced updates: %v", result.Updates)
	}
}

func TestExecutorRejectsNonExecutableProgram(t *testing.T) {
	payer := types.Pubkey{1}
	exec, loader := executorWith(func(*syscall.ExecutionContext, *types.Instruction) error { return nil })
	loader[payer] = &types.Account{Lamports: 10_000_000, Owner: types.SystemProgramID}
	loader[testProgramID].Executable = false

	tx := unsignedTx(t, payer, &types.Instruction{ProgramID: testProgramID})
	result, err := exec.ExecuteTransaction(tx, loader, 200_000)
	if err != nil {
		t.Fatalf("ExecuteTransaction failed: %v", err)
	}
	if !errors.Is(result.Err, ErrProgramNotExecutable) {
		t.Fatalf("expected ErrProgramNotExecutable, got %v", result.Err)
	}
}

func TestExecutorRejectsDuplicateKeys(t *testing.T) {
	payer := types.Pubkey{1}
	exec, loader := executorWith(func(*syscall.ExecutionContext, *types.Instruction) error { return nil })

	tx := unsignedTx(t, payer, &types.Instruction{ProgramID: testProgramID})
	tx.Message.AccountKeys = append(tx.Message.AccountKeys, payer)
	result, err := exec.ExecuteTransaction(tx, loader, 200_000)
	if err != nil {
		t.Fatalf("ExecuteTransaction failed: %v", err)
	}
	if !errors.Is(result.Err, ErrAccountLoadedTwice) {
		t.Fatalf("expected ErrAccountLoadedTwice, got %v", result.Err)
	}
}
