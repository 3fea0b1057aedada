// Package token implements the subset of the Token-2022 program used by
// the METF runtime.
//
// The Token Program handles fungible tokens:
//   - Initializing mints and token accounts, with TLV extensions
//   - Minting tokens and changing authorities
//   - Transfer hook, metadata pointer and immutable owner extensions
//   - The token metadata interface, stored inside the mint
//
// Program ID: TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb
package token

import (
	"fmt"

	"github.com/fortiblox/metf/pkg/svm/syscall"
	"github.com/fortiblox/metf/pkg/types"
)

// CUTokenInstruction is charged for every Token Program instruction.
const CUTokenInstruction uint64 = 300

// TokenProgram implements the Token-2022 Program.
type TokenProgram struct {
	// ProgramID is the Token Program's public key
	ProgramID types.Pubkey
}

// New creates a new TokenProgram instance.
func New() *TokenProgram {
	return &TokenProgram{
		ProgramID: types.Token2022ProgramID,
	}
}

// Execute executes a Token Program instruction.
// The instruction format is either an 8-byte token metadata interface
// discriminator followed by a borsh payload, or:
//   - First byte: instruction discriminator
//   - Remaining bytes: instruction-specific data
func (p *TokenProgram) Execute(ctx *syscall.ExecutionContext, instruction *types.Instruction) error {
	if err := ctx.ConsumeComputeUnits(CUTokenInstruction); err != nil {
		return err
	}

	if d, ok := metadataInstruction(instruction.Data); ok {
		return executeMetadataInstruction(ctx, d, instruction.Data[8:])
	}

	discriminator, err := ParseInstructionDiscriminator(instruction.Data)
	if err != nil {
		return err
	}
	instructionData := instruction.Data[1:]

	switch discriminator {
	case InstructionInitializeMint2:
		var inst InitializeMint2Instruction
		if err := inst.Decode(instructionData); err != nil {
			return err
		}
		return handleInitializeMint2(ctx, &inst)

	case InstructionInitializeAccount3:
		var inst InitializeAccount3Instruction
		if err := inst.Decode(instructionData); err != nil {
			return err
		}
		return handleInitializeAccount3(ctx, &inst)

	case InstructionMintTo:
		var inst MintToInstruction
		if err := inst.Decode(instructionData); err != nil {
			return err
		}
		return handleMintTo(ctx, &inst)

	case InstructionSetAuthority:
		var inst SetAuthorityInstruction
		if err := inst.Decode(instructionData); err != nil {
			return err
		}
		return handleSetAuthority(ctx, &inst)

	case InstructionGetAccountDataSize:
		var inst GetAccountDataSizeInstruction
		if err := inst.Decode(instructionData); err != nil {
			return err
		}
		return handleGetAccountDataSize(ctx, &inst)

	case InstructionInitializeImmutableOwner:
		return handleInitializeImmutableOwner(ctx)

	case InstructionTransferHookExtension:
		var inst ExtensionInitializeInstruction
		if err := inst.Decode(instructionData); err != nil {
			return err
		}
		hook := TransferHook{Authority: inst.First, ProgramID: inst.Second}
		return handleInitializeMintExtension(ctx, ExtensionTransferHook, hook.Pack())

	case InstructionMetadataPointerExtension:
		var inst ExtensionInitializeInstruction
		if err := inst.Decode(instructionData); err != nil {
			return err
		}
		if inst.First.IsZero() && inst.Second.IsZero() {
			return fmt.Errorf("%w: metadata pointer needs an authority or an address", ErrInvalidInstructionData)
		}
		pointer := MetadataPointer{Authority: inst.First, MetadataAddress: inst.Second}
		return handleInitializeMintExtension(ctx, ExtensionMetadataPointer, pointer.Pack())

	default:
		return fmt.Errorf("%w: unknown instruction %d", ErrInvalidInstruction, discriminator)
	}
}

// GetProgramID returns the Token Program's public key.
func (p *TokenProgram) GetProgramID() types.Pubkey {
	return p.ProgramID
}
