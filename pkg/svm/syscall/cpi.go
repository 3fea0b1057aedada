package syscall

import (
	"errors"
	"fmt"

	"github.com/fortiblox/metf/pkg/types"
)

// CPI errors
var (
	ErrCPIDepthExceeded      = errors.New("CPI depth exceeded")
	ErrCPIAccountNotFound    = errors.New("account not found in caller's instruction")
	ErrPrivilegeEscalation   = errors.New("cross-program invocation with unauthorized signer or writable account")
	ErrCPIInvalidSignerSeeds = errors.New("invalid signer seeds")
	ErrCPIReentrancy         = errors.New("program reentrancy not allowed")
	ErrCPITooManyAccounts    = errors.New("too many accounts in CPI instruction")
)

// CPI limits
const (
	// MaxCPIDepth is the maximum nesting below the top-level instruction.
	MaxCPIDepth = 4

	// MaxCPIAccounts is the maximum number of accounts in a CPI instruction.
	MaxCPIAccounts = 64

	// MaxCPISignerSeeds is the maximum number of PDA signers.
	MaxCPISignerSeeds = 16
)

// CPI compute unit costs
const (
	CUCPIBase        uint64 = 1000
	CUCPIPerAccount  uint64 = 100
	CUCPIPerDataByte uint64 = 1
)

// Invoke calls another program with the caller's privileges.
func (ctx *ExecutionContext) Invoke(ix *types.Instruction) error {
	return ctx.InvokeSigned(ix)
}

// InvokeSigned calls another program. Each entry of signerSeeds is the full
// seed list (bump included) of a program derived address of the calling
// program; that address is granted signer privilege for the call.
//
// The callee works on copies of the caller's accounts. Its changes are
// verified against the ownership rules and copied back only on success.
func (ctx *ExecutionContext) InvokeSigned(ix *types.Instruction, signerSeeds ...[][]byte) error {
	if ctx.Depth >= MaxCPIDepth {
		return ErrCPIDepthExceeded
	}
	if ctx.Executor == nil {
		return ErrNoProgramExecutor
	}
	if len(ix.Accounts) > MaxCPIAccounts {
		return fmt.Errorf("%w: %d", ErrCPITooManyAccounts, len(ix.Accounts))
	}
	if err := ctx.checkReentrancy(ix.ProgramID); err != nil {
		return err
	}

	cost := CUCPIBase + uint64(len(ix.Accounts))*CUCPIPerAccount + uint64(len(ix.Data))*CUCPIPerDataByte
	if err := ctx.ConsumeComputeUnits(cost); err != nil {
		return err
	}

	// The caller's own changes so far must already be valid; they become
	// the new baseline.
	if err := ctx.VerifyChanges(); err != nil {
		return err
	}
	ctx.pre = snapshotAccounts(ctx.uniqueAccounts())

	pdaSigners, err := ctx.derivePDASigners(signerSeeds)
	if err != nil {
		return err
	}

	calleeAccounts, err := ctx.resolveCalleeAccounts(ix.Accounts, pdaSigners)
	if err != nil {
		return err
	}

	child := newFrame(ix.ProgramID, calleeAccounts, ix.Data, ctx.state)
	child.Depth = ctx.Depth + 1
	child.CallerStack = append(append(child.CallerStack, ctx.CallerStack...), ctx.ProgramID)
	child.Rent = ctx.Rent
	child.Executor = ctx.Executor

	ctx.state.mu.Lock()
	ctx.state.returnData = nil
	ctx.state.returnDataProgram = types.ZeroPubkey
	ctx.state.mu.Unlock()

	ctx.AddLog(fmt.Sprintf("Program %s invoke [%d]", ix.ProgramID, child.Depth+1))
	err = ctx.Executor.ExecuteProgram(child)
	if err == nil {
		err = child.VerifyChanges()
	}
	if err != nil {
		ctx.AddLog(fmt.Sprintf("Program %s failed: %v", ix.ProgramID, err))
		return err
	}
	ctx.AddLog(fmt.Sprintf("Program %s success", ix.ProgramID))

	ctx.propagateAccountChanges(child.uniqueAccounts())
	return nil
}

func (ctx *ExecutionContext) checkReentrancy(programID types.Pubkey) error {
	if programID == ctx.ProgramID {
		return nil
	}
	for _, caller := range ctx.CallerStack {
		if caller == programID {
			return fmt.Errorf("%w: %s", ErrCPIReentrancy, programID)
		}
	}
	return nil
}

// derivePDASigners turns seed lists into the set of addresses the caller
// proved it controls.
func (ctx *ExecutionContext) derivePDASigners(signerSeeds [][][]byte) (map[types.Pubkey]bool, error) {
	if len(signerSeeds) > MaxCPISignerSeeds {
		return nil, fmt.Errorf("%w: %d signers", ErrCPIInvalidSignerSeeds, len(signerSeeds))
	}
	signers := make(map[types.Pubkey]bool, len(signerSeeds))
	for _, seeds := range signerSeeds {
		pda, err := CreateProgramAddress(seeds, ctx.ProgramID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCPIInvalidSignerSeeds, err)
		}
		signers[pda] = true
	}
	return signers, nil
}

// resolveCalleeAccounts copies the caller's accounts for the callee. Metas
// naming the same key share one copy carrying the union of their flags. A
// flag the caller does not hold is an escalation unless the key is a PDA
// signer of the caller.
func (ctx *ExecutionContext) resolveCalleeAccounts(metas []types.AccountMeta, pdaSigners map[types.Pubkey]bool) ([]*AccountInfo, error) {
	merged := make(map[types.Pubkey]types.AccountMeta, len(metas))
	for _, meta := range metas {
		m := merged[meta.Pubkey]
		m.Pubkey = meta.Pubkey
		m.IsSigner = m.IsSigner || meta.IsSigner
		m.IsWritable = m.IsWritable || meta.IsWritable
		merged[meta.Pubkey] = m
	}

	views := make(map[types.Pubkey]*AccountInfo, len(merged))
	calleeAccounts := make([]*AccountInfo, len(metas))
	for i, meta := range metas {
		if view, ok := views[meta.Pubkey]; ok {
			calleeAccounts[i] = view
			continue
		}

		callerAcc, err := ctx.GetAccount(meta.Pubkey)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrCPIAccountNotFound, meta.Pubkey)
		}

		m := merged[meta.Pubkey]
		if m.IsWritable && !callerAcc.IsWritable {
			return nil, fmt.Errorf("%w: %s is not writable in caller", ErrPrivilegeEscalation, meta.Pubkey)
		}
		if m.IsSigner && !callerAcc.IsSigner && !pdaSigners[meta.Pubkey] {
			return nil, fmt.Errorf("%w: %s did not sign", ErrPrivilegeEscalation, meta.Pubkey)
		}

		view := callerAcc.Clone()
		view.IsSigner = m.IsSigner
		view.IsWritable = m.IsWritable
		views[meta.Pubkey] = view
		calleeAccounts[i] = view
	}

	return calleeAccounts, nil
}

// propagateAccountChanges copies writable callee accounts back into the
// caller and resets the caller's baseline for them, so later changes by the
// caller are judged against the post-invocation state.
func (ctx *ExecutionContext) propagateAccountChanges(calleeAccounts []*AccountInfo) {
	for _, calleeAcc := range calleeAccounts {
		if !calleeAcc.IsWritable {
			continue
		}
		callerAcc, err := ctx.GetAccount(calleeAcc.Pubkey)
		if err != nil {
			continue
		}

		*callerAcc.Lamports = *calleeAcc.Lamports
		callerAcc.Data = append(callerAcc.Data[:0:0], calleeAcc.Data...)
		callerAcc.Owner = calleeAcc.Owner

		ctx.pre[callerAcc.Pubkey] = snapshot(callerAcc)
	}
}
