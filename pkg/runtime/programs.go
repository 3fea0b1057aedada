package runtime

import (
	"errors"
	"sort"
	"sync"

	"github.com/fortiblox/metf/pkg/svm/programs/associated_token"
	"github.com/fortiblox/metf/pkg/svm/programs/compute_budget"
	"github.com/fortiblox/metf/pkg/svm/programs/persontoken"
	"github.com/fortiblox/metf/pkg/svm/programs/system"
	"github.com/fortiblox/metf/pkg/svm/programs/token"
	"github.com/fortiblox/metf/pkg/svm/syscall"
	"github.com/fortiblox/metf/pkg/types"
)

// Program execution errors
var (
	// ErrProgramNotFound indicates the program is not registered.
	ErrProgramNotFound = errors.New("program not found")

	// ErrInvalidInstruction indicates an invalid instruction.
	ErrInvalidInstruction = errors.New("invalid instruction")
)

// Program handles the instructions addressed to one program id.
type Program interface {
	Execute(ctx *syscall.ExecutionContext, instruction *types.Instruction) error
}

// ProgramFunc is a function adapter for Program.
type ProgramFunc func(ctx *syscall.ExecutionContext, instruction *types.Instruction) error

// Execute implements Program.
func (f ProgramFunc) Execute(ctx *syscall.ExecutionContext, instruction *types.Instruction) error {
	return f(ctx, instruction)
}

// ProgramRegistry maps program ids to their native implementations.
type ProgramRegistry struct {
	mu       sync.RWMutex
	programs map[types.Pubkey]Program
	names    map[types.Pubkey]string
}

// NewProgramRegistry creates an empty program registry.
func NewProgramRegistry() *ProgramRegistry {
	return &ProgramRegistry{
		programs: make(map[types.Pubkey]Program),
		names:    make(map[types.Pubkey]string),
	}
}

// RegisterProgram registers a program under id with a display name.
func (r *ProgramRegistry) RegisterProgram(id types.Pubkey, name string, program Program) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.programs[id] = program
	r.names[id] = name
}

// GetProgram returns the program registered under id.
func (r *ProgramRegistry) GetProgram(id types.Pubkey) (Program, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	program, ok := r.programs[id]
	return program, ok
}

// GetProgramName returns the display name registered for id.
func (r *ProgramRegistry) GetProgramName(id types.Pubkey) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.names[id]
	return name, ok
}

// ListPrograms returns all registered program ids in byte order.
func (r *ProgramRegistry) ListPrograms() []types.Pubkey {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]types.Pubkey, 0, len(r.programs))
	for id := range r.programs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return string(ids[i][:]) < string(ids[j][:])
	})
	return ids
}

// Count returns the number of registered programs.
func (r *ProgramRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.programs)
}

// RegisterNativePrograms registers the programs compiled into the runtime:
// System, Compute Budget, Token-2022, Associated Token and Person Token.
func RegisterNativePrograms(registry *ProgramRegistry) {
	registry.RegisterProgram(types.SystemProgramID, "System Program",
		ProgramFunc(executeSystemProgram))
	registry.RegisterProgram(types.ComputeBudgetProgramID, "Compute Budget Program",
		ProgramFunc(executeComputeBudgetProgram))
	registry.RegisterProgram(types.Token2022ProgramID, "Token-2022 Program",
		token.New())
	registry.RegisterProgram(types.AssociatedTokenProgramID, "Associated Token Program",
		associated_token.New())
	registry.RegisterProgram(types.PersonTokenProgramID, "Person Token Program",
		persontoken.New())
}

// NewNativeRegistry returns a registry holding the native programs.
func NewNativeRegistry() *ProgramRegistry {
	registry := NewProgramRegistry()
	RegisterNativePrograms(registry)
	return registry
}

// The system and compute budget programs decode raw instruction data only.
func executeSystemProgram(ctx *syscall.ExecutionContext, instruction *types.Instruction) error {
	return system.New().Execute(ctx, instruction.Data)
}

func executeComputeBudgetProgram(ctx *syscall.ExecutionContext, instruction *types.Instruction) error {
	return compute_budget.New().Execute(ctx, instruction.Data)
}
