package system

import (
	"fmt"

	"github.com/fortiblox/metf/pkg/svm/syscall"
	"github.com/fortiblox/metf/pkg/types"
)

// handleCreateAccount handles the CreateAccount instruction.
// Account layout:
//
//	[0] funding account (signer, writable)
//	[1] new account (signer, writable)
func handleCreateAccount(ctx *syscall.ExecutionContext, inst *CreateAccountInstruction) error {
	if ctx.AccountCount() < 2 {
		return fmt.Errorf("%w: CreateAccount requires 2 accounts", ErrNotEnoughAccountKeys)
	}

	fundingAcc, err := ctx.GetAccountByIndex(0)
	if err != nil {
		return err
	}
	if err := requireSignerWritable(fundingAcc, "funding account"); err != nil {
		return err
	}

	newAcc, err := ctx.GetAccountByIndex(1)
	if err != nil {
		return err
	}
	if err := requireSignerWritable(newAcc, "new account"); err != nil {
		return err
	}

	if *newAcc.Lamports > 0 {
		return fmt.Errorf("%w: %s already holds %d lamports", ErrAccountAlreadyInUse, newAcc.Pubkey, *newAcc.Lamports)
	}
	if err := allocate(newAcc, inst.Space); err != nil {
		return err
	}

	minimum := ctx.Rent.MinimumBalance(inst.Space)
	if inst.Lamports < minimum {
		return fmt.Errorf("%w: need %d lamports for %d bytes", ErrAccountNotRentExempt, minimum, inst.Space)
	}
	if err := transfer(fundingAcc, newAcc, inst.Lamports); err != nil {
		return err
	}

	newAcc.Owner = inst.Owner
	ctx.Log("created %s (%d bytes) owned by %s", newAcc.Pubkey, inst.Space, inst.Owner)
	return nil
}

// handleAssign handles the Assign instruction.
// Account layout:
//
//	[0] account to assign (signer, writable)
func handleAssign(ctx *syscall.ExecutionContext, inst *AssignInstruction) error {
	if ctx.AccountCount() < 1 {
		return fmt.Errorf("%w: Assign requires 1 account", ErrNotEnoughAccountKeys)
	}

	acc, err := ctx.GetAccountByIndex(0)
	if err != nil {
		return err
	}
	if acc.Owner == inst.Owner {
		return nil
	}
	if err := requireSignerWritable(acc, "account to assign"); err != nil {
		return err
	}
	if acc.Owner != types.SystemProgramID {
		return fmt.Errorf("%w: account must be owned by System Program", ErrInvalidAccountOwner)
	}

	acc.Owner = inst.Owner
	return nil
}

// handleTransfer handles the Transfer instruction.
// Account layout:
//
//	[0] source account (signer, writable)
//	[1] destination account (writable)
func handleTransfer(ctx *syscall.ExecutionContext, inst *TransferInstruction) error {
	if ctx.AccountCount() < 2 {
		return fmt.Errorf("%w: Transfer requires 2 accounts", ErrNotEnoughAccountKeys)
	}

	sourceAcc, err := ctx.GetAccountByIndex(0)
	if err != nil {
		return err
	}
	if err := requireSignerWritable(sourceAcc, "source account"); err != nil {
		return err
	}
	if len(sourceAcc.Data) > 0 {
		return ErrTransferFromAccountWithData
	}

	destAcc, err := ctx.GetAccountByIndex(1)
	if err != nil {
		return err
	}
	if !destAcc.IsWritable {
		return fmt.Errorf("%w: destination account", ErrAccountNotWritable)
	}

	return transfer(sourceAcc, destAcc, inst.Lamports)
}

// handleAllocate handles the Allocate instruction.
// Account layout:
//
//	[0] account to allocate (signer, writable)
func handleAllocate(ctx *syscall.ExecutionContext, inst *AllocateInstruction) error {
	if ctx.AccountCount() < 1 {
		return fmt.Errorf("%w: Allocate requires 1 account", ErrNotEnoughAccountKeys)
	}

	acc, err := ctx.GetAccountByIndex(0)
	if err != nil {
		return err
	}
	if err := requireSignerWritable(acc, "account to allocate"); err != nil {
		return err
	}
	return allocate(acc, inst.Space)
}

// allocate gives a fresh system account space zeroed bytes.
func allocate(acc *syscall.AccountInfo, space uint64) error {
	if len(acc.Data) > 0 || acc.Owner != types.SystemProgramID {
		return fmt.Errorf("%w: %s", ErrAccountAlreadyInUse, acc.Pubkey)
	}
	if space > syscall.MaxAccountDataSize {
		return fmt.Errorf("%w: %d > %d", ErrAccountDataTooLarge, space, syscall.MaxAccountDataSize)
	}
	acc.Data = make([]byte, space)
	return nil
}

func transfer(from, to *syscall.AccountInfo, lamports uint64) error {
	if *from.Lamports < lamports {
		return fmt.Errorf("%w: need %d lamports, have %d", ErrInsufficientFunds, lamports, *from.Lamports)
	}
	*from.Lamports -= lamports
	*to.Lamports += lamports
	return nil
}

func requireSignerWritable(acc *syscall.AccountInfo, role string) error {
	if !acc.IsSigner {
		return fmt.Errorf("%w: %s", ErrAccountNotSigner, role)
	}
	if !acc.IsWritable {
		return fmt.Errorf("%w: %s", ErrAccountNotWritable, role)
	}
	return nil
}
