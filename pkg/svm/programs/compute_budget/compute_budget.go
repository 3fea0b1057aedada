// Package compute_budget implements the Compute Budget program.
//
// Its only instruction, SetComputeUnitLimit, is read by the runtime before
// a transaction executes and replaces the default compute budget. At
// execution time the instruction is a no-op.
package compute_budget

import (
	"errors"
	"fmt"

	"github.com/fortiblox/metf/pkg/svm/syscall"
	"github.com/fortiblox/metf/pkg/types"
)

// Compute Budget program errors
var (
	ErrInvalidInstructionData  = errors.New("invalid compute budget instruction data")
	ErrComputeUnitLimitTooHigh = errors.New("compute unit limit too high")
	ErrDuplicateInstruction    = errors.New("duplicate compute budget instruction")
	ErrUnknownInstruction      = errors.New("unknown compute budget instruction")
)

// ComputeBudgetProgram implements the Compute Budget program.
type ComputeBudgetProgram struct {
	ProgramID types.Pubkey
}

// New creates a new ComputeBudgetProgram instance.
func New() *ComputeBudgetProgram {
	return &ComputeBudgetProgram{ProgramID: types.ComputeBudgetProgramID}
}

// Execute validates a compute budget instruction. The limit itself was
// applied when the transaction was loaded.
func (p *ComputeBudgetProgram) Execute(ctx *syscall.ExecutionContext, instruction []byte) error {
	var inst SetComputeUnitLimitInstruction
	if err := inst.Decode(instruction); err != nil {
		return err
	}
	ctx.Log("Set compute unit limit: %d", inst.ComputeUnitLimit)
	return nil
}

// GetProgramID returns the program's public key.
func (p *ComputeBudgetProgram) GetProgramID() types.Pubkey {
	return p.ProgramID
}

// ExtractComputeUnitLimit scans the top-level instructions of msg and
// returns the requested compute unit limit, or defaultLimit when none is
// requested. At most one request is allowed per transaction.
func ExtractComputeUnitLimit(msg *types.Message, defaultLimit uint32) (uint32, error) {
	limit := defaultLimit
	seen := false
	for i, ix := range msg.Instructions {
		if int(ix.ProgramIDIndex) >= len(msg.AccountKeys) ||
			msg.AccountKeys[ix.ProgramIDIndex] != types.ComputeBudgetProgramID {
			continue
		}
		var inst SetComputeUnitLimitInstruction
		if err := inst.Decode(ix.Data); err != nil {
			return 0, fmt.Errorf("instruction %d: %w", i, err)
		}
		if seen {
			return 0, fmt.Errorf("instruction %d: %w", i, ErrDuplicateInstruction)
		}
		seen = true
		limit = inst.ComputeUnitLimit
	}
	return limit, nil
}
