package token

import (
	"encoding/binary"
	"fmt"

	"github.com/fortiblox/metf/pkg/types"
)

// Token-2022 instruction discriminators (first byte of instruction data)
const (
	InstructionSetAuthority             uint8 = 6
	InstructionMintTo                   uint8 = 7
	InstructionInitializeAccount3       uint8 = 18
	InstructionInitializeMint2          uint8 = 20
	InstructionGetAccountDataSize       uint8 = 21
	InstructionInitializeImmutableOwner uint8 = 22
	InstructionTransferHookExtension    uint8 = 36
	InstructionMetadataPointerExtension uint8 = 39
)

// Sub-instruction of the TransferHook and MetadataPointer extension
// instructions.
const extensionInitialize uint8 = 0

// Authority types for SetAuthority instruction
const (
	AuthorityTypeMintTokens    uint8 = 0
	AuthorityTypeFreezeAccount uint8 = 1
	AuthorityTypeAccountOwner  uint8 = 2
	AuthorityTypeCloseAccount  uint8 = 3
)

// ParseInstructionDiscriminator extracts the instruction discriminator from instruction data.
func ParseInstructionDiscriminator(data []byte) (uint8, error) {
	if len(data) < 1 {
		return 0, fmt.Errorf("%w: instruction data too short", ErrInvalidInstructionData)
	}
	return data[0], nil
}

func decodePubkeyOption(data []byte, what string) (*types.Pubkey, int, error) {
	if len(data) < 1 {
		return nil, 0, fmt.Errorf("%w: %s option tag missing", ErrInvalidInstructionData, what)
	}
	switch data[0] {
	case 0:
		return nil, 1, nil
	case 1:
		if len(data) < 33 {
			return nil, 0, fmt.Errorf("%w: %s requires 32 bytes", ErrInvalidInstructionData, what)
		}
		pk := types.Pubkey{}
		copy(pk[:], data[1:33])
		return &pk, 33, nil
	}
	return nil, 0, fmt.Errorf("%w: %s option tag %d", ErrInvalidInstructionData, what, data[0])
}

func appendPubkeyOption(data []byte, pk *types.Pubkey) []byte {
	if pk == nil {
		return append(data, 0)
	}
	data = append(data, 1)
	return append(data, pk[:]...)
}

func optionalKey(pk *types.Pubkey) types.Pubkey {
	if pk == nil {
		return types.ZeroPubkey
	}
	return *pk
}

// InitializeMint2Instruction represents an InitializeMint2 instruction.
// Accounts:
//
//	[0] mint (writable)
type InitializeMint2Instruction struct {
	Decimals        uint8
	MintAuthority   types.Pubkey
	FreezeAuthority *types.Pubkey
}

// Decode decodes an InitializeMint2 instruction from bytes.
func (inst *InitializeMint2Instruction) Decode(data []byte) error {
	// Layout: decimals (1) + mint_authority (32) + freeze_authority option (1 or 33)
	if len(data) < 34 {
		return fmt.Errorf("%w: InitializeMint2 requires at least 34 bytes, got %d",
			ErrInvalidInstructionData, len(data))
	}
	inst.Decimals = data[0]
	copy(inst.MintAuthority[:], data[1:33])
	freeze, _, err := decodePubkeyOption(data[33:], "freeze authority")
	if err != nil {
		return err
	}
	inst.FreezeAuthority = freeze
	return nil
}

// Encode encodes an InitializeMint2 instruction to bytes.
func (inst *InitializeMint2Instruction) Encode() []byte {
	data := []byte{InstructionInitializeMint2, inst.Decimals}
	data = append(data, inst.MintAuthority[:]...)
	return appendPubkeyOption(data, inst.FreezeAuthority)
}

// InitializeAccount3Instruction represents an InitializeAccount3 instruction.
// Accounts:
//
//	[0] account (writable)
//	[1] mint
type InitializeAccount3Instruction struct {
	Owner types.Pubkey
}

// Decode decodes an InitializeAccount3 instruction from bytes.
func (inst *InitializeAccount3Instruction) Decode(data []byte) error {
	if len(data) < 32 {
		return fmt.Errorf("%w: InitializeAccount3 requires 32 bytes, got %d",
			ErrInvalidInstructionData, len(data))
	}
	copy(inst.Owner[:], data[0:32])
	return nil
}

// Encode encodes an InitializeAccount3 instruction to bytes.
func (inst *InitializeAccount3Instruction) Encode() []byte {
	return append([]byte{InstructionInitializeAccount3}, inst.Owner[:]...)
}

// MintToInstruction represents a MintTo instruction.
// Accounts:
//
//	[0] mint (writable)
//	[1] destination account (writable)
//	[2] mint authority (signer)
type MintToInstruction struct {
	Amount uint64
}

// Decode decodes a MintTo instruction from bytes.
func (inst *MintToInstruction) Decode(data []byte) error {
	if len(data) < 8 {
		return fmt.Errorf("%w: MintTo requires 8 bytes, got %d", ErrInvalidInstructionData, len(data))
	}
	inst.Amount = binary.LittleEndian.Uint64(data[0:8])
	return nil
}

// Encode encodes a MintTo instruction to bytes.
func (inst *MintToInstruction) Encode() []byte {
	data := make([]byte, 9)
	data[0] = InstructionMintTo
	binary.LittleEndian.PutUint64(data[1:9], inst.Amount)
	return data
}

// SetAuthorityInstruction represents a SetAuthority instruction.
// Accounts:
//
//	[0] mint or token account (writable)
//	[1] current authority (signer)
type SetAuthorityInstruction struct {
	AuthorityType uint8
	NewAuthority  *types.Pubkey // nil removes the authority
}

// Decode decodes a SetAuthority instruction from bytes.
func (inst *SetAuthorityInstruction) Decode(data []byte) error {
	if len(data) < 2 {
		return fmt.Errorf("%w: SetAuthority requires at least 2 bytes, got %d",
			ErrInvalidInstructionData, len(data))
	}
	inst.AuthorityType = data[0]
	newAuth, _, err := decodePubkeyOption(data[1:], "new authority")
	if err != nil {
		return err
	}
	inst.NewAuthority = newAuth
	return nil
}

// Encode encodes a SetAuthority instruction to bytes.
func (inst *SetAuthorityInstruction) Encode() []byte {
	return appendPubkeyOption([]byte{InstructionSetAuthority, inst.AuthorityType}, inst.NewAuthority)
}

// GetAccountDataSizeInstruction asks for the length of a token account
// for a mint carrying the listed extra extensions.
// Accounts:
//
//	[0] mint
type GetAccountDataSizeInstruction struct {
	Extensions []ExtensionType
}

// Decode decodes a GetAccountDataSize instruction from bytes.
func (inst *GetAccountDataSizeInstruction) Decode(data []byte) error {
	if len(data)%tlvTypeSize != 0 {
		return fmt.Errorf("%w: extension list has odd length %d", ErrInvalidInstructionData, len(data))
	}
	inst.Extensions = make([]ExtensionType, 0, len(data)/tlvTypeSize)
	for i := 0; i < len(data); i += tlvTypeSize {
		inst.Extensions = append(inst.Extensions, ExtensionType(binary.LittleEndian.Uint16(data[i:])))
	}
	return nil
}

// Encode encodes a GetAccountDataSize instruction to bytes.
func (inst *GetAccountDataSizeInstruction) Encode() []byte {
	data := make([]byte, 1, 1+tlvTypeSize*len(inst.Extensions))
	data[0] = InstructionGetAccountDataSize
	for _, ext := range inst.Extensions {
		data = binary.LittleEndian.AppendUint16(data, uint16(ext))
	}
	return data
}

// ExtensionInitializeInstruction is the Initialize sub-instruction of the
// TransferHook and MetadataPointer extensions: two optional keys where a
// zero key means none.
// Accounts:
//
//	[0] mint (writable)
type ExtensionInitializeInstruction struct {
	First  types.Pubkey
	Second types.Pubkey
}

// Decode decodes the sub-instruction tag and both keys.
func (inst *ExtensionInitializeInstruction) Decode(data []byte) error {
	if len(data) < 1 {
		return fmt.Errorf("%w: extension instruction missing sub-instruction", ErrInvalidInstructionData)
	}
	if data[0] != extensionInitialize {
		return fmt.Errorf("%w: unsupported extension sub-instruction %d", ErrInvalidInstruction, data[0])
	}
	if len(data) < 65 {
		return fmt.Errorf("%w: extension Initialize requires 64 bytes, got %d",
			ErrInvalidInstructionData, len(data)-1)
	}
	copy(inst.First[:], data[1:33])
	copy(inst.Second[:], data[33:65])
	return nil
}

func (inst *ExtensionInitializeInstruction) encode(discriminator uint8) []byte {
	data := []byte{discriminator, extensionInitialize}
	data = append(data, inst.First[:]...)
	return append(data, inst.Second[:]...)
}

// InitializeMint2 builds an InitializeMint2 instruction.
func InitializeMint2(mint types.Pubkey, decimals uint8, mintAuthority types.Pubkey, freezeAuthority *types.Pubkey) *types.Instruction {
	inst := InitializeMint2Instruction{Decimals: decimals, MintAuthority: mintAuthority, FreezeAuthority: freezeAuthority}
	return &types.Instruction{
		ProgramID: types.Token2022ProgramID,
		Accounts:  []types.AccountMeta{types.NewAccountMeta(mint, true, false)},
		Data:      inst.Encode(),
	}
}

// InitializeAccount3 builds an InitializeAccount3 instruction.
func InitializeAccount3(account, mint, owner types.Pubkey) *types.Instruction {
	inst := InitializeAccount3Instruction{Owner: owner}
	return &types.Instruction{
		ProgramID: types.Token2022ProgramID,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(account, true, false),
			types.NewAccountMeta(mint, false, false),
		},
		Data: inst.Encode(),
	}
}

// MintTo builds a MintTo instruction.
func MintTo(mint, destination, authority types.Pubkey, amount uint64) *types.Instruction {
	inst := MintToInstruction{Amount: amount}
	return &types.Instruction{
		ProgramID: types.Token2022ProgramID,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(mint, true, false),
			types.NewAccountMeta(destination, true, false),
			types.NewAccountMeta(authority, false, true),
		},
		Data: inst.Encode(),
	}
}

// SetAuthority builds a SetAuthority instruction. A nil newAuthority
// removes the authority.
func SetAuthority(target, currentAuthority types.Pubkey, authorityType uint8, newAuthority *types.Pubkey) *types.Instruction {
	inst := SetAuthorityInstruction{AuthorityType: authorityType, NewAuthority: newAuthority}
	return &types.Instruction{
		ProgramID: types.Token2022ProgramID,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(target, true, false),
			types.NewAccountMeta(currentAuthority, false, true),
		},
		Data: inst.Encode(),
	}
}

// GetAccountDataSize builds a GetAccountDataSize instruction.
func GetAccountDataSize(mint types.Pubkey, exts ...ExtensionType) *types.Instruction {
	inst := GetAccountDataSizeInstruction{Extensions: exts}
	return &types.Instruction{
		ProgramID: types.Token2022ProgramID,
		Accounts:  []types.AccountMeta{types.NewAccountMeta(mint, false, false)},
		Data:      inst.Encode(),
	}
}

// InitializeImmutableOwner builds an InitializeImmutableOwner instruction.
func InitializeImmutableOwner(account types.Pubkey) *types.Instruction {
	return &types.Instruction{
		ProgramID: types.Token2022ProgramID,
		Accounts:  []types.AccountMeta{types.NewAccountMeta(account, true, false)},
		Data:      []byte{InstructionInitializeImmutableOwner},
	}
}

// InitializeTransferHook builds the TransferHook Initialize instruction.
func InitializeTransferHook(mint types.Pubkey, authority, hookProgram *types.Pubkey) *types.Instruction {
	inst := ExtensionInitializeInstruction{First: optionalKey(authority), Second: optionalKey(hookProgram)}
	return &types.Instruction{
		ProgramID: types.Token2022ProgramID,
		Accounts:  []types.AccountMeta{types.NewAccountMeta(mint, true, false)},
		Data:      inst.encode(InstructionTransferHookExtension),
	}
}

// InitializeMetadataPointer builds the MetadataPointer Initialize instruction.
func InitializeMetadataPointer(mint types.Pubkey, authority, metadataAddress *types.Pubkey) *types.Instruction {
	inst := ExtensionInitializeInstruction{First: optionalKey(authority), Second: optionalKey(metadataAddress)}
	return &types.Instruction{
		ProgramID: types.Token2022ProgramID,
		Accounts:  []types.AccountMeta{types.NewAccountMeta(mint, true, false)},
		Data:      inst.encode(InstructionMetadataPointerExtension),
	}
}
