// Package associated_token implements the Associated Token Account program:
// creation of the canonical token account for a (wallet, mint) pair at a
// program derived address.
package associated_token

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/fortiblox/metf/pkg/svm/programs/system"
	"github.com/fortiblox/metf/pkg/svm/programs/token"
	"github.com/fortiblox/metf/pkg/svm/syscall"
	"github.com/fortiblox/metf/pkg/types"
)

// Instruction discriminators. Empty instruction data means Create.
const (
	InstructionCreate           uint8 = 0
	InstructionCreateIdempotent uint8 = 1
)

// CUCreate is charged for every Associated Token Account instruction.
const CUCreate uint64 = 1_500

// Associated Token Account program errors
var (
	ErrInvalidSeeds            = errors.New("associated token address does not match seed derivation")
	ErrInvalidOwner            = errors.New("associated token account owner does not match wallet")
	ErrIncorrectProgramID      = errors.New("incorrect program id")
	ErrInvalidInstructionData  = errors.New("invalid instruction data")
	ErrNotEnoughAccountKeys    = errors.New("not enough account keys")
	ErrAccountNotSigner        = errors.New("account is not a signer")
	ErrAccountNotWritable      = errors.New("account is not writable")
	ErrUnexpectedAccountLength = errors.New("token program returned no account length")
)

// AssociatedTokenProgram implements the Associated Token Account program.
type AssociatedTokenProgram struct {
	ProgramID types.Pubkey
}

// New creates a new AssociatedTokenProgram instance.
func New() *AssociatedTokenProgram {
	return &AssociatedTokenProgram{ProgramID: types.AssociatedTokenProgramID}
}

// Execute executes an Associated Token Account instruction.
// Account layout:
//
//	[0] payer (signer, writable)
//	[1] associated token account (writable)
//	[2] wallet
//	[3] mint
//	[4] system program
//	[5] token program
func (p *AssociatedTokenProgram) Execute(ctx *syscall.ExecutionContext, instruction *types.Instruction) error {
	if err := ctx.ConsumeComputeUnits(CUCreate); err != nil {
		return err
	}

	idempotent := false
	if len(instruction.Data) > 0 {
		switch instruction.Data[0] {
		case InstructionCreate:
		case InstructionCreateIdempotent:
			idempotent = true
		default:
			return fmt.Errorf("%w: unknown instruction %d", ErrInvalidInstructionData, instruction.Data[0])
		}
	}
	return p.create(ctx, idempotent)
}

func (p *AssociatedTokenProgram) create(ctx *syscall.ExecutionContext, idempotent bool) error {
	if ctx.AccountCount() < 6 {
		return fmt.Errorf("%w: Create requires 6 accounts, got %d", ErrNotEnoughAccountKeys, ctx.AccountCount())
	}
	payer, _ := ctx.GetAccountByIndex(0)
	ata, _ := ctx.GetAccountByIndex(1)
	wallet, _ := ctx.GetAccountByIndex(2)
	mint, _ := ctx.GetAccountByIndex(3)
	systemProgram, _ := ctx.GetAccountByIndex(4)
	tokenProgram, _ := ctx.GetAccountByIndex(5)

	if systemProgram.Pubkey != types.SystemProgramID {
		return fmt.Errorf("%w: system program %s", ErrIncorrectProgramID, systemProgram.Pubkey)
	}
	if tokenProgram.Pubkey != types.Token2022ProgramID {
		return fmt.Errorf("%w: token program %s", ErrIncorrectProgramID, tokenProgram.Pubkey)
	}

	seeds := syscall.AssociatedTokenSeeds(wallet.Pubkey, mint.Pubkey, tokenProgram.Pubkey)
	expected, bump, err := ctx.FindProgramAddress(seeds, p.ProgramID)
	if err != nil {
		return err
	}
	if expected != ata.Pubkey {
		return fmt.Errorf("%w: expected %s, got %s", ErrInvalidSeeds, expected, ata.Pubkey)
	}

	if idempotent && ata.Owner == tokenProgram.Pubkey {
		existing, err := token.DeserializeTokenAccount(ata.Data)
		if err != nil {
			return err
		}
		if existing.Owner != wallet.Pubkey {
			return ErrInvalidOwner
		}
		if existing.Mint != mint.Pubkey {
			return token.ErrMintMismatch
		}
		return nil
	}

	if !payer.IsSigner {
		return fmt.Errorf("%w: payer", ErrAccountNotSigner)
	}
	if !ata.IsWritable {
		return fmt.Errorf("%w: associated token account", ErrAccountNotWritable)
	}
	if mint.Owner != tokenProgram.Pubkey {
		return fmt.Errorf("%w: mint owned by %s", ErrIncorrectProgramID, mint.Owner)
	}

	if err := ctx.Invoke(token.GetAccountDataSize(mint.Pubkey, token.ExtensionImmutableOwner)); err != nil {
		return err
	}
	program, ret := ctx.GetReturnData()
	if program != tokenProgram.Pubkey || len(ret) != 8 {
		return ErrUnexpectedAccountLength
	}
	space := binary.LittleEndian.Uint64(ret)

	signer := append(seeds, []byte{bump})
	if err := system.CreateProgramAccount(ctx, payer, ata, space, tokenProgram.Pubkey, signer); err != nil {
		return err
	}

	ctx.Log("Initialize the associated token account")
	if err := ctx.Invoke(token.InitializeImmutableOwner(ata.Pubkey)); err != nil {
		return err
	}
	return ctx.Invoke(token.InitializeAccount3(ata.Pubkey, mint.Pubkey, wallet.Pubkey))
}

// Create builds a Create instruction for the wallet's associated token
// account of mint.
func Create(payer, wallet, mint types.Pubkey) (*types.Instruction, types.Pubkey, error) {
	return build(InstructionCreate, payer, wallet, mint)
}

// CreateIdempotent builds a CreateIdempotent instruction, which succeeds
// when the account already exists with the expected owner and mint.
func CreateIdempotent(payer, wallet, mint types.Pubkey) (*types.Instruction, types.Pubkey, error) {
	return build(InstructionCreateIdempotent, payer, wallet, mint)
}

func build(discriminator uint8, payer, wallet, mint types.Pubkey) (*types.Instruction, types.Pubkey, error) {
	ata, _, err := syscall.DeriveAssociatedTokenAddress(wallet, mint, types.Token2022ProgramID)
	if err != nil {
		return nil, types.Pubkey{}, err
	}
	return &types.Instruction{
		ProgramID: types.AssociatedTokenProgramID,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(payer, true, true),
			types.NewAccountMeta(ata, true, false),
			types.NewAccountMeta(wallet, false, false),
			types.NewAccountMeta(mint, false, false),
			types.NewAccountMeta(types.SystemProgramID, false, false),
			types.NewAccountMeta(types.Token2022ProgramID, false, false),
		},
		Data: []byte{discriminator},
	}, ata, nil
}
