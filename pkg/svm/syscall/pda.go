package syscall

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"

	"github.com/fortiblox/metf/pkg/types"
)

// PDA constants
const (
	// MaxSeeds is the maximum number of seeds for PDA derivation
	MaxSeeds = 16
	// MaxSeedLen is the maximum length of a single seed
	MaxSeedLen = 32
	// PDAMarker is the string appended during PDA derivation
	PDAMarker = "ProgramDerivedAddress"

	// CUFindPDAPerIter is charged for every bump tried by a metered search.
	CUFindPDAPerIter uint64 = 1500
)

var (
	ErrMaxSeedsExceeded      = errors.New("too many seeds for program address")
	ErrMaxSeedLengthExceeded = errors.New("seed exceeds maximum length")
	ErrInvalidSeeds          = errors.New("provided seeds do not result in a valid address")
	ErrBumpNotFound          = errors.New("unable to find a viable program address bump seed")
)

// CreateProgramAddress derives sha256(seeds || programID || marker) and
// rejects results that lie on the ed25519 curve, since those could have a
// private key.
func CreateProgramAddress(seeds [][]byte, programID types.Pubkey) (types.Pubkey, error) {
	if len(seeds) > MaxSeeds {
		return types.ZeroPubkey, fmt.Errorf("%w: %d", ErrMaxSeedsExceeded, len(seeds))
	}
	hasher := sha256.New()
	for _, seed := range seeds {
		if len(seed) > MaxSeedLen {
			return types.ZeroPubkey, fmt.Errorf("%w: %d bytes", ErrMaxSeedLengthExceeded, len(seed))
		}
		hasher.Write(seed)
	}
	hasher.Write(programID[:])
	hasher.Write([]byte(PDAMarker))

	var pda types.Pubkey
	copy(pda[:], hasher.Sum(nil))

	if IsOnCurve(pda[:]) {
		return types.ZeroPubkey, ErrInvalidSeeds
	}
	return pda, nil
}

// FindProgramAddress tries bump seeds from 255 down to 0 and returns the
// first off-curve address.
func FindProgramAddress(seeds [][]byte, programID types.Pubkey) (types.Pubkey, uint8, error) {
	return findProgramAddress(seeds, programID, nil)
}

// FindProgramAddress is the metered form used by running programs.
func (ctx *ExecutionContext) FindProgramAddress(seeds [][]byte, programID types.Pubkey) (types.Pubkey, uint8, error) {
	return findProgramAddress(seeds, programID, ctx)
}

func findProgramAddress(seeds [][]byte, programID types.Pubkey, ctx *ExecutionContext) (types.Pubkey, uint8, error) {
	if len(seeds) >= MaxSeeds {
		return types.ZeroPubkey, 0, fmt.Errorf("%w: %d", ErrMaxSeedsExceeded, len(seeds))
	}
	seedsWithBump := make([][]byte, len(seeds)+1)
	copy(seedsWithBump, seeds)
	bumpSeed := []byte{0}
	seedsWithBump[len(seeds)] = bumpSeed

	for bump := 255; bump >= 0; bump-- {
		if ctx != nil {
			if err := ctx.ConsumeComputeUnits(CUFindPDAPerIter); err != nil {
				return types.ZeroPubkey, 0, err
			}
		}

		bumpSeed[0] = uint8(bump)
		pda, err := CreateProgramAddress(seedsWithBump, programID)
		if err == nil {
			return pda, uint8(bump), nil
		}
		if !errors.Is(err, ErrInvalidSeeds) {
			return types.ZeroPubkey, 0, err
		}
	}

	return types.ZeroPubkey, 0, ErrBumpNotFound
}

// IsOnCurve reports whether b decodes to a point on the ed25519 curve.
func IsOnCurve(b []byte) bool {
	if len(b) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}

// AssociatedTokenSeeds returns the derivation seeds of a wallet's token
// account for mint.
func AssociatedTokenSeeds(wallet, mint, tokenProgram types.Pubkey) [][]byte {
	return [][]byte{wallet[:], tokenProgram[:], mint[:]}
}

// DeriveAssociatedTokenAddress derives the associated token account of a
// wallet for mint under tokenProgram.
func DeriveAssociatedTokenAddress(wallet, mint, tokenProgram types.Pubkey) (types.Pubkey, uint8, error) {
	return FindProgramAddress(AssociatedTokenSeeds(wallet, mint, tokenProgram), types.AssociatedTokenProgramID)
}
