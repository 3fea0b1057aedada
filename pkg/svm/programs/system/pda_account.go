package system

import (
	"github.com/fortiblox/metf/pkg/svm/syscall"
	"github.com/fortiblox/metf/pkg/types"
)

// CreateProgramAccount creates a rent-exempt account of space bytes owned
// by owner at a program derived address of the calling program. seeds is
// the full seed list of the address, bump included.
//
// An address that already holds lamports is topped up, allocated and
// assigned instead, because CreateAccount refuses funded targets. Both
// paths fail with ErrAccountAlreadyInUse when the address carries data or
// belongs to another program.
func CreateProgramAccount(ctx *syscall.ExecutionContext, payer, target *syscall.AccountInfo, space uint64, owner types.Pubkey, seeds [][]byte) error {
	required := ctx.Rent.MinimumBalance(space)

	if *target.Lamports == 0 {
		return ctx.InvokeSigned(CreateAccount(payer.Pubkey, target.Pubkey, required, space, owner), seeds)
	}

	if *target.Lamports < required {
		if err := ctx.Invoke(Transfer(payer.Pubkey, target.Pubkey, required-*target.Lamports)); err != nil {
			return err
		}
	}
	if err := ctx.InvokeSigned(Allocate(target.Pubkey, space), seeds); err != nil {
		return err
	}
	return ctx.InvokeSigned(Assign(target.Pubkey, owner), seeds)
}
