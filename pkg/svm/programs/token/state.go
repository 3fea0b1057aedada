package token

import (
	"encoding/binary"
	"fmt"

	"github.com/fortiblox/metf/pkg/types"
)

// Account state sizes
const (
	// MintSize is the size of a serialized Mint account (82 bytes)
	MintSize = 82

	// TokenAccountSize is the size of a serialized TokenAccount (165 bytes)
	TokenAccountSize = 165

	// MultisigSize is the size of a multisig account. Extended accounts
	// must never have exactly this length.
	MultisigSize = 355
)

// Byte offsets of the initialization markers inside the base layouts.
const (
	mintIsInitializedOffset = 45
	accountStateOffset      = 108
)

// Account state enum values
const (
	AccountStateUninitialized uint8 = 0
	AccountStateInitialized   uint8 = 1
	AccountStateFrozen        uint8 = 2
)

// COption represents an optional pubkey.
// Layout: 4 bytes tag + 32 bytes value = 36 bytes
type COption struct {
	IsSome bool
	Value  types.Pubkey
}

// Some returns a populated COption.
func Some(pk types.Pubkey) COption {
	return COption{IsSome: true, Value: pk}
}

// COptionU64 represents an optional u64 value.
// Layout: 4 bytes tag + 8 bytes value = 12 bytes
type COptionU64 struct {
	IsSome bool
	Value  uint64
}

// Mint represents the base state of a token mint.
// Layout (82 bytes total):
//   - mint_authority: COption<Pubkey> (36 bytes)
//   - supply: u64 (8 bytes)
//   - decimals: u8 (1 byte)
//   - is_initialized: bool (1 byte)
//   - freeze_authority: COption<Pubkey> (36 bytes)
type Mint struct {
	MintAuthority   COption
	Supply          uint64
	Decimals        uint8
	IsInitialized   bool
	FreezeAuthority COption
}

// TokenAccount represents the base state of a token account.
// Layout (165 bytes total):
//   - mint: Pubkey (32 bytes)
//   - owner: Pubkey (32 bytes)
//   - amount: u64 (8 bytes)
//   - delegate: COption<Pubkey> (36 bytes)
//   - state: AccountState (1 byte)
//   - is_native: COption<u64> (12 bytes)
//   - delegated_amount: u64 (8 bytes)
//   - close_authority: COption<Pubkey> (36 bytes)
type TokenAccount struct {
	Mint            types.Pubkey
	Owner           types.Pubkey
	Amount          uint64
	Delegate        COption
	State           uint8
	IsNative        COptionU64
	DelegatedAmount uint64
	CloseAuthority  COption
}

// DeserializeMint decodes the base mint from the first MintSize bytes.
func DeserializeMint(data []byte) (*Mint, error) {
	if len(data) < MintSize {
		return nil, fmt.Errorf("%w: mint data too short, expected %d bytes, got %d",
			ErrInvalidAccountData, MintSize, len(data))
	}

	mint := &Mint{}
	offset := 0
	mint.MintAuthority, offset = deserializeCOption(data, offset)
	mint.Supply = binary.LittleEndian.Uint64(data[offset : offset+8])
	offset += 8
	mint.Decimals = data[offset]
	offset++
	mint.IsInitialized = data[offset] != 0
	offset++
	mint.FreezeAuthority, _ = deserializeCOption(data, offset)
	return mint, nil
}

// SerializeInto writes the base mint into the first MintSize bytes of data.
func (m *Mint) SerializeInto(data []byte) {
	offset := serializeCOption(data, 0, m.MintAuthority)
	binary.LittleEndian.PutUint64(data[offset:offset+8], m.Supply)
	offset += 8
	data[offset] = m.Decimals
	offset++
	data[offset] = 0
	if m.IsInitialized {
		data[offset] = 1
	}
	offset++
	serializeCOption(data, offset, m.FreezeAuthority)
}

// Serialize serializes the Mint to bytes.
func (m *Mint) Serialize() []byte {
	data := make([]byte, MintSize)
	m.SerializeInto(data)
	return data
}

// DeserializeTokenAccount decodes the base token account from the first
// TokenAccountSize bytes.
func DeserializeTokenAccount(data []byte) (*TokenAccount, error) {
	if len(data) < TokenAccountSize {
		return nil, fmt.Errorf("%w: token account data too short, expected %d bytes, got %d",
			ErrInvalidAccountData, TokenAccountSize, len(data))
	}

	account := &TokenAccount{}
	offset := 0
	copy(account.Mint[:], data[offset:offset+32])
	offset += 32
	copy(account.Owner[:], data[offset:offset+32])
	offset += 32
	account.Amount = binary.LittleEndian.Uint64(data[offset : offset+8])
	offset += 8
	account.Delegate, offset = deserializeCOption(data, offset)
	account.State = data[offset]
	offset++
	account.IsNative, offset = deserializeCOptionU64(data, offset)
	account.DelegatedAmount = binary.LittleEndian.Uint64(data[offset : offset+8])
	offset += 8
	account.CloseAuthority, _ = deserializeCOption(data, offset)
	return account, nil
}

// SerializeInto writes the base token account into the first
// TokenAccountSize bytes of data.
func (a *TokenAccount) SerializeInto(data []byte) {
	offset := 0
	copy(data[offset:offset+32], a.Mint[:])
	offset += 32
	copy(data[offset:offset+32], a.Owner[:])
	offset += 32
	binary.LittleEndian.PutUint64(data[offset:offset+8], a.Amount)
	offset += 8
	offset = serializeCOption(data, offset, a.Delegate)
	data[offset] = a.State
	offset++
	offset = serializeCOptionU64(data, offset, a.IsNative)
	binary.LittleEndian.PutUint64(data[offset:offset+8], a.DelegatedAmount)
	offset += 8
	serializeCOption(data, offset, a.CloseAuthority)
}

// Serialize serializes the TokenAccount to bytes.
func (a *TokenAccount) Serialize() []byte {
	data := make([]byte, TokenAccountSize)
	a.SerializeInto(data)
	return data
}

// IsFrozen returns true if the account is frozen.
func (a *TokenAccount) IsFrozen() bool {
	return a.State == AccountStateFrozen
}

func deserializeCOption(data []byte, offset int) (COption, int) {
	opt := COption{}
	// COption tag is 4 bytes: 0 = None, 1 = Some
	if binary.LittleEndian.Uint32(data[offset:offset+4]) == 1 {
		opt.IsSome = true
		copy(opt.Value[:], data[offset+4:offset+36])
	}
	return opt, offset + 36
}

func serializeCOption(data []byte, offset int, opt COption) int {
	var tag uint32
	var value types.Pubkey
	if opt.IsSome {
		tag, value = 1, opt.Value
	}
	binary.LittleEndian.PutUint32(data[offset:offset+4], tag)
	copy(data[offset+4:offset+36], value[:])
	return offset + 36
}

func deserializeCOptionU64(data []byte, offset int) (COptionU64, int) {
	opt := COptionU64{}
	if binary.LittleEndian.Uint32(data[offset:offset+4]) == 1 {
		opt.IsSome = true
		opt.Value = binary.LittleEndian.Uint64(data[offset+4 : offset+12])
	}
	return opt, offset + 12
}

func serializeCOptionU64(data []byte, offset int, opt COptionU64) int {
	var tag uint32
	var value uint64
	if opt.IsSome {
		tag, value = 1, opt.Value
	}
	binary.LittleEndian.PutUint32(data[offset:offset+4], tag)
	binary.LittleEndian.PutUint64(data[offset+4:offset+12], value)
	return offset + 12
}

// NewMint creates an initialized Mint with the given parameters.
func NewMint(decimals uint8, mintAuthority *types.Pubkey, freezeAuthority *types.Pubkey) *Mint {
	mint := &Mint{
		Decimals:      decimals,
		IsInitialized: true,
	}
	if mintAuthority != nil {
		mint.MintAuthority = Some(*mintAuthority)
	}
	if freezeAuthority != nil {
		mint.FreezeAuthority = Some(*freezeAuthority)
	}
	return mint
}

// NewTokenAccount creates an initialized TokenAccount.
func NewTokenAccount(mint types.Pubkey, owner types.Pubkey) *TokenAccount {
	return &TokenAccount{
		Mint:  mint,
		Owner: owner,
		State: AccountStateInitialized,
	}
}

// isMintInitialized reports whether data carries an initialized base mint.
func isMintInitialized(data []byte) bool {
	return len(data) >= MintSize && data[mintIsInitializedOffset] != 0
}

func isAccountInitialized(data []byte) bool {
	return len(data) >= TokenAccountSize && data[accountStateOffset] != AccountStateUninitialized
}
