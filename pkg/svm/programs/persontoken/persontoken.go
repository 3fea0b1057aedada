// Package persontoken implements the Person Token program. Its single
// instruction, InitPersonToken, issues a fixed-supply Token-2022 mint bound
// to a per-signer Person record.
package persontoken

import (
	"fmt"

	"github.com/near/borsh-go"

	"github.com/fortiblox/metf/pkg/svm/syscall"
	"github.com/fortiblox/metf/pkg/types"
)

// CUInstruction is charged on entry to the program.
const CUInstruction uint64 = 2_000

// PersonTokenProgram implements the Person Token program.
type PersonTokenProgram struct {
	ProgramID types.Pubkey
}

// New creates a new PersonTokenProgram instance.
func New() *PersonTokenProgram {
	return &PersonTokenProgram{ProgramID: types.PersonTokenProgramID}
}

// Execute executes a Person Token instruction. Instruction data is an
// 8-byte discriminator followed by borsh-encoded parameters.
func (p *PersonTokenProgram) Execute(ctx *syscall.ExecutionContext, instruction *types.Instruction) error {
	if err := ctx.ConsumeComputeUnits(CUInstruction); err != nil {
		return err
	}
	if len(instruction.Data) < discriminatorLength {
		return fmt.Errorf("%w: instruction data too short", ErrInvalidInstructionData)
	}

	var d [discriminatorLength]byte
	copy(d[:], instruction.Data)
	switch d {
	case InitPersonTokenDiscriminator:
		var params InitPersonTokenParams
		if err := borsh.Deserialize(&params, instruction.Data[discriminatorLength:]); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInstructionData, err)
		}
		ctx.Log("Instruction: InitPersonToken")
		return initPersonToken(ctx, &params)
	default:
		return fmt.Errorf("%w: %x", ErrUnknownInstruction, d)
	}
}

// GetProgramID returns the program's public key.
func (p *PersonTokenProgram) GetProgramID() types.Pubkey {
	return p.ProgramID
}
