package runtime

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/fortiblox/metf/pkg/svm/syscall"
	"github.com/fortiblox/metf/pkg/types"
)

// Executor errors
var (
	// ErrProgramNotExecutable indicates the program account is not executable.
	ErrProgramNotExecutable = errors.New("program is not executable")

	// ErrAccountLoadedTwice indicates a key appears twice in a message.
	ErrAccountLoadedTwice = errors.New("account loaded twice")

	// ErrInsufficientFundsForRent indicates an account would be left holding
	// data without being rent exempt.
	ErrInsufficientFundsForRent = errors.New("insufficient funds for rent")
)

// AccountLoader is the read side of the account store.
type AccountLoader interface {
	// GetAccount returns nil, nil for a missing account.
	GetAccount(pubkey types.Pubkey) (*types.Account, error)
}

// Executor runs transactions against a private working set of accounts and
// routes cross-program invocations through the program registry. It never
// writes to storage; committing the result is the caller's job.
type Executor struct {
	registry *ProgramRegistry
	rent     syscall.Rent
}

// NewExecutor creates an executor for the programs in registry.
func NewExecutor(registry *ProgramRegistry, rent syscall.Rent) *Executor {
	return &Executor{registry: registry, rent: rent}
}

// ExecuteProgram implements syscall.ProgramExecutor. It is the single entry
// point for both top-level instructions and cross-program invocations.
func (e *Executor) ExecuteProgram(ctx *syscall.ExecutionContext) error {
	program, ok := e.registry.GetProgram(ctx.ProgramID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrProgramNotFound, ctx.ProgramID)
	}

	metas := make([]types.AccountMeta, len(ctx.Accounts))
	for i, acc := range ctx.Accounts {
		metas[i] = types.AccountMeta{Pubkey: acc.Pubkey, IsSigner: acc.IsSigner, IsWritable: acc.IsWritable}
	}
	return program.Execute(ctx, &types.Instruction{
		ProgramID: ctx.ProgramID,
		Accounts:  metas,
		Data:      ctx.InstructionData,
	})
}

// ExecutionResult is the outcome of running one transaction.
type ExecutionResult struct {
	// Err is nil when every instruction succeeded and the final account
	// states passed the rent check.
	Err error

	Logs                 []string
	ComputeUnitsConsumed uint64
	ReturnData           []byte

	// Updates holds the final state of every account the transaction
	// changed. It is empty when Err is set.
	Updates []types.AccountRef

	// Deltas pairs each update with the state it replaces.
	Deltas []types.AccountDelta
}

// Success reports whether the transaction may be committed.
func (r *ExecutionResult) Success() bool {
	return r.Err == nil
}

// InstructionExecutionError contains details about an instruction execution failure.
type InstructionExecutionError struct {
	InstructionIndex int
	ProgramID        types.Pubkey
	Err              error
}

// Error implements the error interface.
func (e *InstructionExecutionError) Error() string {
	return fmt.Sprintf("instruction %d (program %s) failed: %v",
		e.InstructionIndex, e.ProgramID.String(), e.Err)
}

// Unwrap returns the underlying error.
func (e *InstructionExecutionError) Unwrap() error {
	return e.Err
}

// ExecuteTransaction runs every instruction of tx in order. Instructions see
// the effects of the ones before them; if any fails, or the final state
// leaves an account rent paying, the result carries the error and no
// updates. A returned error means the accounts could not be loaded.
func (e *Executor) ExecuteTransaction(tx *types.Transaction, loader AccountLoader, computeUnits uint64) (*ExecutionResult, error) {
	result := &ExecutionResult{}
	msg := &tx.Message

	if len(msg.Instructions) == 0 {
		result.Err = fmt.Errorf("%w: transaction has no instructions", ErrInvalidInstruction)
		return result, nil
	}

	base, working, err := e.loadTransactionAccounts(msg, loader)
	if err != nil {
		if errors.Is(err, ErrAccountLoadedTwice) {
			result.Err = err
			return result, nil
		}
		return nil, err
	}

	var prev *syscall.ExecutionContext
	for i := range msg.Instructions {
		compiled := &msg.Instructions[i]
		instruction, err := decompileInstruction(msg, compiled)
		if err != nil {
			result.Err = &InstructionExecutionError{InstructionIndex: i, Err: err}
			break
		}
		if program := working[compiled.ProgramIDIndex]; !program.Executable {
			result.Err = &InstructionExecutionError{
				InstructionIndex: i,
				ProgramID:        instruction.ProgramID,
				Err:              fmt.Errorf("%w: %s", ErrProgramNotExecutable, instruction.ProgramID),
			}
			break
		}

		ctx := e.createExecutionContext(prev, instruction, compiled, working, computeUnits)
		prev = ctx

		ctx.AddLog(fmt.Sprintf("Program %s invoke [1]", instruction.ProgramID))
		err = e.ExecuteProgram(ctx)
		if err == nil {
			err = ctx.VerifyChanges()
		}
		if err != nil {
			ctx.AddLog(fmt.Sprintf("Program %s failed: %v", instruction.ProgramID, err))
			result.Err = &InstructionExecutionError{InstructionIndex: i, ProgramID: instruction.ProgramID, Err: err}
			break
		}
		ctx.AddLog(fmt.Sprintf("Program %s consumed %d of %d compute units",
			instruction.ProgramID, ctx.GetComputeUnitsConsumed(), computeUnits))
		ctx.AddLog(fmt.Sprintf("Program %s success", instruction.ProgramID))

		copyBack(ctx, compiled, working)
		if _, data := ctx.GetReturnData(); len(data) > 0 {
			result.ReturnData = data
		}
	}

	if prev != nil {
		result.Logs = prev.GetLogs()
		result.ComputeUnitsConsumed = prev.GetComputeUnitsConsumed()
	}
	if result.Err != nil {
		return result, nil
	}

	if err := e.checkRentState(msg, base, working); err != nil {
		result.Err = err
		return result, nil
	}

	for i, pubkey := range msg.AccountKeys {
		if !msg.IsWritable(i) {
			continue
		}
		final := working[i].ToAccount()
		if accountsEqual(base[i], final) {
			continue
		}
		var newAccount *types.Account
		if !final.IsEmpty() {
			newAccount = final
		}
		result.Updates = append(result.Updates, types.AccountRef{Pubkey: pubkey, Account: newAccount})
		result.Deltas = append(result.Deltas, types.AccountDelta{Pubkey: pubkey, OldAccount: base[i], NewAccount: newAccount})
	}

	return result, nil
}

// loadTransactionAccounts loads every key of msg. base holds the stored
// state (nil for missing accounts); working holds the mutable views with
// message-level privileges.
func (e *Executor) loadTransactionAccounts(msg *types.Message, loader AccountLoader) ([]*types.Account, []*syscall.AccountInfo, error) {
	base := make([]*types.Account, len(msg.AccountKeys))
	working := make([]*syscall.AccountInfo, len(msg.AccountKeys))
	seen := make(map[types.Pubkey]struct{}, len(msg.AccountKeys))

	for i, pubkey := range msg.AccountKeys {
		if _, dup := seen[pubkey]; dup {
			return nil, nil, fmt.Errorf("%w: %s", ErrAccountLoadedTwice, pubkey)
		}
		seen[pubkey] = struct{}{}

		account, err := loader.GetAccount(pubkey)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load account %s: %w", pubkey, err)
		}
		base[i] = account
		working[i] = syscall.NewAccountInfo(pubkey, account, msg.IsSigner(i), msg.IsWritable(i))
	}

	return base, working, nil
}

// decompileInstruction converts a compiled instruction to a full instruction.
func decompileInstruction(msg *types.Message, compiled *types.CompiledInstruction) (*types.Instruction, error) {
	if int(compiled.ProgramIDIndex) >= len(msg.AccountKeys) {
		return nil, fmt.Errorf("%w: program ID index out of bounds: %d", ErrInvalidInstruction, compiled.ProgramIDIndex)
	}

	accounts := make([]types.AccountMeta, len(compiled.AccountIndices))
	for i, idx := range compiled.AccountIndices {
		if int(idx) >= len(msg.AccountKeys) {
			return nil, fmt.Errorf("%w: account index out of bounds: %d", ErrInvalidInstruction, idx)
		}
		accounts[i] = types.AccountMeta{
			Pubkey:     msg.AccountKeys[idx],
			IsSigner:   msg.IsSigner(int(idx)),
			IsWritable: msg.IsWritable(int(idx)),
		}
	}

	return &types.Instruction{
		ProgramID: msg.AccountKeys[compiled.ProgramIDIndex],
		Accounts:  accounts,
		Data:      compiled.Data,
	}, nil
}

// createExecutionContext builds the top-level frame of one instruction.
// Each referenced key gets one private copy of its working view, shared by
// repeated references. The compute meter and logs carry over from prev.
func (e *Executor) createExecutionContext(prev *syscall.ExecutionContext, instruction *types.Instruction, compiled *types.CompiledInstruction, working []*syscall.AccountInfo, computeUnits uint64) *syscall.ExecutionContext {
	views := make(map[uint8]*syscall.AccountInfo, len(compiled.AccountIndices))
	instructionAccounts := make([]*syscall.AccountInfo, len(compiled.AccountIndices))
	for i, idx := range compiled.AccountIndices {
		view, ok := views[idx]
		if !ok {
			view = working[idx].Clone()
			views[idx] = view
		}
		instructionAccounts[i] = view
	}

	var ctx *syscall.ExecutionContext
	if prev == nil {
		ctx = syscall.NewExecutionContext(instruction.ProgramID, instructionAccounts, instruction.Data, computeUnits)
	} else {
		ctx = prev.NewInstructionContext(instruction.ProgramID, instructionAccounts, instruction.Data)
	}
	ctx.Rent = e.rent
	ctx.Executor = e
	return ctx
}

// copyBack moves the successful instruction's writable accounts into the
// working set.
func copyBack(ctx *syscall.ExecutionContext, compiled *types.CompiledInstruction, working []*syscall.AccountInfo) {
	for i, idx := range compiled.AccountIndices {
		view := ctx.Accounts[i]
		if !view.IsWritable {
			continue
		}
		target := working[idx]
		*target.Lamports = *view.Lamports
		target.Data = append([]byte(nil), view.Data...)
		target.Owner = view.Owner
	}
}

type rentState int

const (
	rentUninitialized rentState = iota
	rentPaying
	rentExempt
)

func (e *Executor) rentStateOf(lamports, dataLen uint64) rentState {
	switch {
	case lamports == 0:
		return rentUninitialized
	case e.rent.IsExempt(lamports, dataLen):
		return rentExempt
	default:
		return rentPaying
	}
}

// checkRentState rejects transactions that leave a writable account rent
// paying, unless it already was and its size did not change.
func (e *Executor) checkRentState(msg *types.Message, base []*types.Account, working []*syscall.AccountInfo) error {
	for i := range msg.AccountKeys {
		if !msg.IsWritable(i) {
			continue
		}
		acc := working[i]
		post := e.rentStateOf(*acc.Lamports, uint64(len(acc.Data)))
		if post != rentPaying {
			continue
		}

		if base[i] != nil {
			pre := e.rentStateOf(uint64(base[i].Lamports), base[i].DataLen())
			if pre == rentPaying && base[i].DataLen() == uint64(len(acc.Data)) && uint64(base[i].Lamports) >= *acc.Lamports {
				continue
			}
		}
		return fmt.Errorf("%w: account %d (%s)", ErrInsufficientFundsForRent, i, acc.Pubkey)
	}
	return nil
}

// accountsEqual checks if two accounts are equal. A missing account equals
// an empty one.
func accountsEqual(a, b *types.Account) bool {
	if a == nil || a.IsEmpty() {
		return b == nil || b.IsEmpty()
	}
	if b == nil {
		return false
	}
	return a.Lamports == b.Lamports &&
		a.Owner == b.Owner &&
		a.Executable == b.Executable &&
		bytes.Equal(a.Data, b.Data)
}
