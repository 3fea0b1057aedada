package compute_budget

import (
	"encoding/binary"
	"fmt"

	"github.com/fortiblox/metf/pkg/types"
)

// InstructionSetComputeUnitLimit is the instruction tag of SetComputeUnitLimit.
const InstructionSetComputeUnitLimit uint8 = 2

// Compute limits
const (
	// MaxComputeUnits is the maximum compute units allowed per transaction.
	MaxComputeUnits uint32 = 1_400_000

	// DefaultComputeUnits is the budget of a transaction without a request.
	DefaultComputeUnits uint32 = 200_000
)

// SetComputeUnitLimitInstruction sets the compute unit limit of the transaction.
type SetComputeUnitLimitInstruction struct {
	ComputeUnitLimit uint32
}

// Decode decodes the full instruction data, tag included.
func (inst *SetComputeUnitLimitInstruction) Decode(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty instruction data", ErrInvalidInstructionData)
	}
	if data[0] != InstructionSetComputeUnitLimit {
		return fmt.Errorf("%w: %d", ErrUnknownInstruction, data[0])
	}
	if len(data) < 5 {
		return fmt.Errorf("%w: SetComputeUnitLimit requires 4 bytes, got %d", ErrInvalidInstructionData, len(data)-1)
	}
	inst.ComputeUnitLimit = binary.LittleEndian.Uint32(data[1:5])
	if inst.ComputeUnitLimit > MaxComputeUnits {
		return fmt.Errorf("%w: got %d (max %d)", ErrComputeUnitLimitTooHigh, inst.ComputeUnitLimit, MaxComputeUnits)
	}
	return nil
}

// Encode encodes the instruction, tag included.
func (inst *SetComputeUnitLimitInstruction) Encode() []byte {
	data := make([]byte, 5)
	data[0] = InstructionSetComputeUnitLimit
	binary.LittleEndian.PutUint32(data[1:5], inst.ComputeUnitLimit)
	return data
}

// SetComputeUnitLimit builds a SetComputeUnitLimit instruction.
func SetComputeUnitLimit(units uint32) *types.Instruction {
	inst := SetComputeUnitLimitInstruction{ComputeUnitLimit: units}
	return &types.Instruction{
		ProgramID: types.ComputeBudgetProgramID,
		Data:      inst.Encode(),
	}
}
