package syscall

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/fortiblox/metf/pkg/types"
)

// Account change rules enforced at the end of every invocation frame.
var (
	ErrReadOnlyModified      = errors.New("read-only account was modified")
	ErrExternalDataModified  = errors.New("instruction modified data of an account it does not own")
	ErrExternalLamportSpend  = errors.New("instruction spent from an account it does not own")
	ErrModifiedProgramID     = errors.New("instruction illegally modified an account's owner")
	ErrExecutableModified    = errors.New("instruction changed an account's executable flag")
	ErrUnbalancedInstruction = errors.New("sum of account balances before and after instruction do not match")
)

type accountSnapshot struct {
	lamports   uint64
	data       []byte
	owner      types.Pubkey
	executable bool
}

func snapshot(acc *AccountInfo) accountSnapshot {
	return accountSnapshot{
		lamports:   *acc.Lamports,
		data:       append([]byte(nil), acc.Data...),
		owner:      acc.Owner,
		executable: acc.Executable,
	}
}

func snapshotAccounts(accounts []*AccountInfo) map[types.Pubkey]accountSnapshot {
	snaps := make(map[types.Pubkey]accountSnapshot, len(accounts))
	for _, acc := range accounts {
		snaps[acc.Pubkey] = snapshot(acc)
	}
	return snaps
}

// VerifyChanges checks every account against its state at the start of the
// frame (or the end of the latest nested invocation) and enforces ownership
// rules: only the owning program may change data, debit lamports or
// reassign an account, and assignment requires zeroed data.
func (ctx *ExecutionContext) VerifyChanges() error {
	var before, after uint64
	for _, acc := range ctx.uniqueAccounts() {
		pre, ok := ctx.pre[acc.Pubkey]
		if !ok {
			continue
		}
		before += pre.lamports
		after += *acc.Lamports
		if err := verifyAccount(ctx.ProgramID, pre, acc); err != nil {
			return err
		}
	}
	if before != after {
		return fmt.Errorf("%w: %d != %d", ErrUnbalancedInstruction, before, after)
	}
	return nil
}

func verifyAccount(programID types.Pubkey, pre accountSnapshot, acc *AccountInfo) error {
	lamportsChanged := pre.lamports != *acc.Lamports
	dataChanged := !bytes.Equal(pre.data, acc.Data)
	ownerChanged := pre.owner != acc.Owner

	if !acc.IsWritable {
		if lamportsChanged || dataChanged || ownerChanged || pre.executable != acc.Executable {
			return fmt.Errorf("%w: %s", ErrReadOnlyModified, acc.Pubkey)
		}
		return nil
	}
	if pre.executable != acc.Executable {
		return fmt.Errorf("%w: %s", ErrExecutableModified, acc.Pubkey)
	}
	if ownerChanged {
		if pre.owner != programID || !isZeroed(acc.Data) {
			return fmt.Errorf("%w: %s", ErrModifiedProgramID, acc.Pubkey)
		}
	}
	if *acc.Lamports < pre.lamports && pre.owner != programID {
		return fmt.Errorf("%w: %s", ErrExternalLamportSpend, acc.Pubkey)
	}
	if dataChanged && pre.owner != programID {
		return fmt.Errorf("%w: %s", ErrExternalDataModified, acc.Pubkey)
	}
	return nil
}

func isZeroed(data []byte) bool {
	for _, b := range data {
		if b != 0 {
			return false
		}
	}
	return true
}
