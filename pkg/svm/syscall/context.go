// Package syscall provides the execution context shared by native programs:
// account views, compute metering, logging, return data, program derived
// addresses, rent and cross-program invocation.
package syscall

import (
	"errors"
	"fmt"
	"sync"

	"github.com/fortiblox/metf/pkg/types"
)

// Context errors
var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrAccountNotWritable  = errors.New("account is not writable")
	ErrAccountNotSigner    = errors.New("account is not a signer")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrComputeExhausted    = errors.New("compute units exhausted")
	ErrInvalidAccountIndex = errors.New("invalid account index")
	ErrInvalidRealloc      = errors.New("invalid account data realloc")
	ErrNoProgramExecutor   = errors.New("no program executor attached to context")
)

// Limits for execution
const (
	MaxReturnDataLength      = 1024
	MaxAccountDataSize       = 10 * 1024 * 1024 // 10MB
	MaxPermittedDataIncrease = 10 * 1024        // per instruction
)

// AccountInfo is a program's view of one instruction account.
type AccountInfo struct {
	Pubkey     types.Pubkey
	Lamports   *uint64
	Data       []byte
	Owner      types.Pubkey
	Executable bool
	RentEpoch  uint64
	IsSigner   bool
	IsWritable bool
}

// NewAccountInfo builds an AccountInfo from stored account state. A nil
// account yields an empty system-owned view.
func NewAccountInfo(pubkey types.Pubkey, acc *types.Account, signer, writable bool) *AccountInfo {
	var lamports uint64
	info := &AccountInfo{
		Pubkey:     pubkey,
		Lamports:   &lamports,
		Owner:      types.SystemProgramID,
		IsSigner:   signer,
		IsWritable: writable,
	}
	if acc != nil {
		lamports = uint64(acc.Lamports)
		info.Owner = acc.Owner
		info.Executable = acc.Executable
		info.RentEpoch = acc.RentEpoch
		if acc.Data != nil {
			info.Data = make([]byte, len(acc.Data))
			copy(info.Data, acc.Data)
		}
	}
	return info
}

// Clone creates a deep copy of AccountInfo.
func (a *AccountInfo) Clone() *AccountInfo {
	if a == nil {
		return nil
	}
	lamports := *a.Lamports
	clone := &AccountInfo{
		Pubkey:     a.Pubkey,
		Lamports:   &lamports,
		Owner:      a.Owner,
		Executable: a.Executable,
		RentEpoch:  a.RentEpoch,
		IsSigner:   a.IsSigner,
		IsWritable: a.IsWritable,
	}
	if a.Data != nil {
		clone.Data = make([]byte, len(a.Data))
		copy(clone.Data, a.Data)
	}
	return clone
}

// ToAccount converts the view back into stored account state.
func (a *AccountInfo) ToAccount() *types.Account {
	acc := &types.Account{
		Lamports:   types.Lamports(*a.Lamports),
		Owner:      a.Owner,
		Executable: a.Executable,
		RentEpoch:  a.RentEpoch,
	}
	if len(a.Data) > 0 {
		acc.Data = make([]byte, len(a.Data))
		copy(acc.Data, a.Data)
	}
	return acc
}

// ProgramExecutor dispatches an execution context to the program named by
// ctx.ProgramID. The runtime attaches one to every top-level context so
// cross-program invocations can reach the program registry.
type ProgramExecutor interface {
	ExecuteProgram(ctx *ExecutionContext) error
}

// transactionState is shared by every frame of one transaction.
type transactionState struct {
	mu sync.Mutex

	computeUnits    uint64
	maxComputeUnits uint64

	logs *LogCollector

	returnData        []byte
	returnDataProgram types.Pubkey
}

// ExecutionContext holds the state of one program invocation frame.
type ExecutionContext struct {
	// Program being executed
	ProgramID types.Pubkey

	// Accounts available to the instruction, in instruction order.
	// Duplicate keys share one *AccountInfo.
	Accounts []*AccountInfo

	accountIndex map[types.Pubkey]int

	InstructionData []byte

	// Depth of CPI calls; 0 for a top-level instruction.
	Depth int

	// Stack of callers for CPI
	CallerStack []types.Pubkey

	Rent     Rent
	Executor ProgramExecutor

	state   *transactionState
	pre     map[types.Pubkey]accountSnapshot
	origLen map[types.Pubkey]int
}

// NewExecutionContext creates a top-level execution context. The compute
// budget and log collector are shared with every nested invocation.
func NewExecutionContext(programID types.Pubkey, accounts []*AccountInfo, instructionData []byte, computeUnits uint64) *ExecutionContext {
	state := &transactionState{
		computeUnits:    computeUnits,
		maxComputeUnits: computeUnits,
		logs:            NewLogCollector(),
	}
	return newFrame(programID, accounts, instructionData, state)
}

// NewInstructionContext creates a top-level context for the next
// instruction of a transaction, sharing prev's compute meter and logs.
func (ctx *ExecutionContext) NewInstructionContext(programID types.Pubkey, accounts []*AccountInfo, instructionData []byte) *ExecutionContext {
	next := newFrame(programID, accounts, instructionData, ctx.state)
	next.Rent = ctx.Rent
	next.Executor = ctx.Executor
	ctx.state.mu.Lock()
	ctx.state.returnData = nil
	ctx.state.returnDataProgram = types.ZeroPubkey
	ctx.state.mu.Unlock()
	return next
}

func newFrame(programID types.Pubkey, accounts []*AccountInfo, data []byte, state *transactionState) *ExecutionContext {
	ctx := &ExecutionContext{
		ProgramID:       programID,
		Accounts:        accounts,
		InstructionData: data,
		accountIndex:    make(map[types.Pubkey]int, len(accounts)),
		CallerStack:     make([]types.Pubkey, 0, MaxCPIDepth),
		Rent:            DefaultRent(),
		state:           state,
	}
	for i, acc := range accounts {
		if _, dup := ctx.accountIndex[acc.Pubkey]; !dup {
			ctx.accountIndex[acc.Pubkey] = i
		}
	}
	ctx.pre = snapshotAccounts(ctx.uniqueAccounts())
	ctx.origLen = make(map[types.Pubkey]int, len(ctx.pre))
	for pk, snap := range ctx.pre {
		ctx.origLen[pk] = len(snap.data)
	}
	return ctx
}

// ConsumeComputeUnits deducts compute units from the transaction budget.
func (ctx *ExecutionContext) ConsumeComputeUnits(units uint64) error {
	ctx.state.mu.Lock()
	defer ctx.state.mu.Unlock()

	if units > ctx.state.computeUnits {
		ctx.state.computeUnits = 0
		return ErrComputeExhausted
	}
	ctx.state.computeUnits -= units
	return nil
}

// GetComputeUnitsRemaining returns remaining compute units.
func (ctx *ExecutionContext) GetComputeUnitsRemaining() uint64 {
	ctx.state.mu.Lock()
	defer ctx.state.mu.Unlock()
	return ctx.state.computeUnits
}

// GetComputeUnitsConsumed returns consumed compute units.
func (ctx *ExecutionContext) GetComputeUnitsConsumed() uint64 {
	ctx.state.mu.Lock()
	defer ctx.state.mu.Unlock()
	return ctx.state.maxComputeUnits - ctx.state.computeUnits
}

// AddLog appends a raw runtime log line.
func (ctx *ExecutionContext) AddLog(message string) {
	ctx.state.logs.Append(message)
}

// Log appends a "Program log:" line on behalf of the running program.
func (ctx *ExecutionContext) Log(format string, args ...interface{}) {
	ctx.state.logs.Append("Program log: " + fmt.Sprintf(format, args...))
}

// GetLogs returns all log messages recorded so far in the transaction.
func (ctx *ExecutionContext) GetLogs() []string {
	return ctx.state.logs.Lines()
}

// GetAccount returns an account by pubkey.
func (ctx *ExecutionContext) GetAccount(pubkey types.Pubkey) (*AccountInfo, error) {
	idx, ok := ctx.accountIndex[pubkey]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, pubkey.String())
	}
	return ctx.Accounts[idx], nil
}

// GetAccountByIndex returns an account by instruction position.
func (ctx *ExecutionContext) GetAccountByIndex(index int) (*AccountInfo, error) {
	if index < 0 || index >= len(ctx.Accounts) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAccountIndex, index)
	}
	return ctx.Accounts[index], nil
}

// AccountCount returns the number of instruction accounts.
func (ctx *ExecutionContext) AccountCount() int {
	return len(ctx.Accounts)
}

// SetReturnData records data returned by the running program.
func (ctx *ExecutionContext) SetReturnData(data []byte) error {
	if len(data) > MaxReturnDataLength {
		return fmt.Errorf("return data too large: %d > %d", len(data), MaxReturnDataLength)
	}
	ctx.state.mu.Lock()
	defer ctx.state.mu.Unlock()

	ctx.state.returnDataProgram = ctx.ProgramID
	ctx.state.returnData = append([]byte(nil), data...)
	return nil
}

// GetReturnData returns the most recent return data and the program that set it.
func (ctx *ExecutionContext) GetReturnData() (types.Pubkey, []byte) {
	ctx.state.mu.Lock()
	defer ctx.state.mu.Unlock()
	return ctx.state.returnDataProgram, append([]byte(nil), ctx.state.returnData...)
}

// ReallocAccountData resizes an account's data. Growth beyond
// MaxPermittedDataIncrease relative to the start of this frame is rejected.
func (ctx *ExecutionContext) ReallocAccountData(acc *AccountInfo, newSize int) error {
	if !acc.IsWritable {
		return fmt.Errorf("%w: %s", ErrAccountNotWritable, acc.Pubkey)
	}
	if newSize > MaxAccountDataSize {
		return fmt.Errorf("%w: size %d exceeds maximum %d", ErrInvalidRealloc, newSize, MaxAccountDataSize)
	}
	original, ok := ctx.origLen[acc.Pubkey]
	if !ok {
		original = len(acc.Data)
	}
	if newSize-original > MaxPermittedDataIncrease {
		return fmt.Errorf("%w: growth of %d bytes exceeds %d", ErrInvalidRealloc, newSize-original, MaxPermittedDataIncrease)
	}

	resized := make([]byte, newSize)
	copy(resized, acc.Data)
	acc.Data = resized
	return nil
}

// GetCaller returns the program that invoked this one.
func (ctx *ExecutionContext) GetCaller() (types.Pubkey, bool) {
	if len(ctx.CallerStack) == 0 {
		return types.ZeroPubkey, false
	}
	return ctx.CallerStack[len(ctx.CallerStack)-1], true
}

// IsTopLevel returns true if this is the top-level execution (not a CPI call).
func (ctx *ExecutionContext) IsTopLevel() bool {
	return ctx.Depth == 0
}

func (ctx *ExecutionContext) uniqueAccounts() []*AccountInfo {
	unique := make([]*AccountInfo, 0, len(ctx.accountIndex))
	for i, acc := range ctx.Accounts {
		if ctx.accountIndex[acc.Pubkey] == i {
			unique = append(unique, acc)
		}
	}
	return unique
}
