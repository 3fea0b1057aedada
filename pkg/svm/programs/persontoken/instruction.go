package persontoken

import (
	"github.com/near/borsh-go"

	"github.com/fortiblox/metf/pkg/svm/syscall"
	"github.com/fortiblox/metf/pkg/types"
)

// Account positions of InitPersonToken.
const (
	accountSigner = iota
	accountMint
	accountPerson
	accountVault
	accountTokenProgram
	accountAssociatedTokenProgram
	accountSystemProgram
	accountRent
	accountCount
)

// DerivePersonAddress returns the Person address of signer and its bump.
func DerivePersonAddress(signer types.Pubkey) (types.Pubkey, uint8, error) {
	return syscall.FindProgramAddress(personSeeds(signer), types.PersonTokenProgramID)
}

// DeriveVaultAddress returns the vault (associated token account) of
// person for mint.
func DeriveVaultAddress(person, mint types.Pubkey) (types.Pubkey, uint8, error) {
	return syscall.DeriveAssociatedTokenAddress(person, mint, types.Token2022ProgramID)
}

func personSeeds(signer types.Pubkey) [][]byte {
	return [][]byte{[]byte(PersonSeed), signer.Bytes()}
}

// InitPersonToken builds the InitPersonToken instruction. Both signer and
// mint must sign the transaction carrying it.
func InitPersonToken(signer, mint types.Pubkey, params InitPersonTokenParams) (*types.Instruction, error) {
	person, _, err := DerivePersonAddress(signer)
	if err != nil {
		return nil, err
	}
	vault, _, err := DeriveVaultAddress(person, mint)
	if err != nil {
		return nil, err
	}
	payload, err := borsh.Serialize(params)
	if err != nil {
		return nil, err
	}

	return &types.Instruction{
		ProgramID: types.PersonTokenProgramID,
		Accounts: []types.AccountMeta{
			accountSigner:                 types.NewAccountMeta(signer, true, true),
			accountMint:                   types.NewAccountMeta(mint, true, true),
			accountPerson:                 types.NewAccountMeta(person, true, false),
			accountVault:                  types.NewAccountMeta(vault, true, false),
			accountTokenProgram:           types.NewAccountMeta(types.Token2022ProgramID, false, false),
			accountAssociatedTokenProgram: types.NewAccountMeta(types.AssociatedTokenProgramID, false, false),
			accountSystemProgram:          types.NewAccountMeta(types.SystemProgramID, false, false),
			accountRent:                   types.NewAccountMeta(types.SysvarRentID, false, false),
		},
		Data: append(InitPersonTokenDiscriminator[:], payload...),
	}, nil
}
