package persontoken

import (
	"errors"
	"fmt"
)

// Person Token program errors
var (
	ErrUnknownInstruction     = errors.New("unknown instruction")
	ErrInvalidInstructionData = errors.New("invalid instruction data")
	ErrNotEnoughAccountKeys   = errors.New("not enough account keys")
	ErrMissingSignature       = errors.New("missing required signature")
	ErrAccountNotWritable     = errors.New("account is not writable")
	ErrInvalidPersonAddress   = errors.New("person address does not match seed derivation")
	ErrInvalidVaultAddress    = errors.New("vault address does not match associated token derivation")
	ErrIncorrectProgramID     = errors.New("incorrect program id")
	ErrInvalidRentSysvar      = errors.New("rent account is not the rent sysvar")
	ErrInvalidPersonAccount   = errors.New("invalid person account")
	ErrMetadataTooLarge       = errors.New("token metadata exceeds allocatable space")
	ErrSupplyOverflow         = errors.New("total supply overflows u64")
)

// Stage names one step of InitPersonToken.
type Stage string

const (
	StageValidate   Stage = "validate accounts"
	StageSizing     Stage = "space and rent"
	StagePerson     Stage = "create person"
	StageProvision  Stage = "provision mint"
	StageExtensions Stage = "initialize extensions"
	StageMint       Stage = "initialize mint"
	StageFinalize   Stage = "metadata and supply"
)

// StageError reports the step of InitPersonToken that failed. The
// underlying error is the collaborator's, unchanged.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("init person token: %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}
