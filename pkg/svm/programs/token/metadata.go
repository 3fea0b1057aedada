package token

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/near/borsh-go"

	"github.com/fortiblox/metf/pkg/svm/syscall"
	"github.com/fortiblox/metf/pkg/types"
)

// Token metadata interface discriminators: the first 8 bytes of
// sha256("spl_token_metadata_interface:<name>").
var (
	MetadataInitializeDiscriminator  = interfaceDiscriminator("initialize_account")
	MetadataUpdateFieldDiscriminator = interfaceDiscriminator("updating_field")
)

func interfaceDiscriminator(name string) [8]byte {
	sum := sha256.Sum256([]byte("spl_token_metadata_interface:" + name))
	var d [8]byte
	copy(d[:], sum[:8])
	return d
}

// KeyValue is one additional metadata annotation.
type KeyValue struct {
	Key   string
	Value string
}

// TokenMetadata is the variable-length record stored in the mint's
// TokenMetadata extension. A zero UpdateAuthority means none.
type TokenMetadata struct {
	UpdateAuthority    types.Pubkey
	Mint               types.Pubkey
	Name               string
	Symbol             string
	URI                string
	AdditionalMetadata []KeyValue
}

// Pack encodes the record with borsh.
func (m *TokenMetadata) Pack() ([]byte, error) {
	return borsh.Serialize(*m)
}

// TLVSize is the number of bytes the record occupies as an extension,
// header included.
func (m *TokenMetadata) TLVSize() (int, error) {
	packed, err := m.Pack()
	if err != nil {
		return 0, err
	}
	return tlvHeaderSize + len(packed), nil
}

// Lookup returns the value of an additional metadata key.
func (m *TokenMetadata) Lookup(key string) (string, bool) {
	for _, kv := range m.AdditionalMetadata {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return "", false
}

// Update applies a field update.
func (m *TokenMetadata) Update(field Field, value string) {
	switch field.Kind {
	case FieldKindName:
		m.Name = value
	case FieldKindSymbol:
		m.Symbol = value
	case FieldKindURI:
		m.URI = value
	default:
		for i := range m.AdditionalMetadata {
			if m.AdditionalMetadata[i].Key == field.Key {
				m.AdditionalMetadata[i].Value = value
				return
			}
		}
		m.AdditionalMetadata = append(m.AdditionalMetadata, KeyValue{Key: field.Key, Value: value})
	}
}

// UnpackTokenMetadata decodes a TokenMetadata extension value.
func UnpackTokenMetadata(data []byte) (*TokenMetadata, error) {
	m := &TokenMetadata{}
	if err := borsh.Deserialize(m, data); err != nil {
		return nil, fmt.Errorf("%w: token metadata: %v", ErrInvalidAccountData, err)
	}
	return m, nil
}

// GetTokenMetadata reads the metadata record embedded in mint data.
func GetTokenMetadata(mintData []byte) (*TokenMetadata, error) {
	value, err := GetExtension(mintData, ExtensionTokenMetadata)
	if err != nil {
		return nil, err
	}
	return UnpackTokenMetadata(value)
}

// FieldKind is the variant index of a metadata Field.
type FieldKind uint8

// Field kinds of an UpdateField instruction.
const (
	FieldKindName FieldKind = iota
	FieldKindSymbol
	FieldKindURI
	FieldKindKey
)

// Field selects which metadata field an update targets. Key is set only for
// FieldKindKey.
type Field struct {
	Kind FieldKind
	Key  string
}

func FieldName() Field   { return Field{Kind: FieldKindName} }
func FieldSymbol() Field { return Field{Kind: FieldKindSymbol} }
func FieldURI() Field    { return Field{Kind: FieldKindURI} }

// FieldKey targets an additional metadata key.
func FieldKey(key string) Field { return Field{Kind: FieldKindKey, Key: key} }

// InitializeMetadataInstruction carries the initial metadata strings.
type InitializeMetadataInstruction struct {
	Name   string
	Symbol string
	URI    string
}

// UpdateFieldInstruction sets one metadata field.
type UpdateFieldInstruction struct {
	Field Field
	Value string
}

// Serialize encodes the instruction in the borsh layout of the metadata
// interface: the field variant byte, the key string for FieldKindKey, then
// the value string. borsh-go struct enums cannot carry a payload on one
// variant only.
func (inst *UpdateFieldInstruction) Serialize() ([]byte, error) {
	if inst.Field.Kind > FieldKindKey {
		return nil, fmt.Errorf("%w: unknown field %d", ErrInvalidInstructionData, inst.Field.Kind)
	}
	buf := []byte{byte(inst.Field.Kind)}
	if inst.Field.Kind == FieldKindKey {
		buf = appendBorshString(buf, inst.Field.Key)
	}
	return appendBorshString(buf, inst.Value), nil
}

// DeserializeUpdateField decodes an UpdateField payload written by
// Serialize. Trailing bytes are rejected.
func DeserializeUpdateField(data []byte) (*UpdateFieldInstruction, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("%w: missing field variant", ErrInvalidInstructionData)
	}
	inst := &UpdateFieldInstruction{Field: Field{Kind: FieldKind(data[0])}}
	if inst.Field.Kind > FieldKindKey {
		return nil, fmt.Errorf("%w: unknown field %d", ErrInvalidInstructionData, data[0])
	}
	rest := data[1:]
	var err error
	if inst.Field.Kind == FieldKindKey {
		if inst.Field.Key, rest, err = readBorshString(rest); err != nil {
			return nil, fmt.Errorf("%w: field key: %v", ErrInvalidInstructionData, err)
		}
	}
	if inst.Value, rest, err = readBorshString(rest); err != nil {
		return nil, fmt.Errorf("%w: field value: %v", ErrInvalidInstructionData, err)
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrInvalidInstructionData, len(rest))
	}
	return inst, nil
}

func appendBorshString(buf []byte, s string) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

func readBorshString(data []byte) (string, []byte, error) {
	if len(data) < 4 {
		return "", nil, fmt.Errorf("string length needs 4 bytes, have %d", len(data))
	}
	n := binary.LittleEndian.Uint32(data)
	data = data[4:]
	if uint64(n) > uint64(len(data)) {
		return "", nil, fmt.Errorf("string of %d bytes, have %d", n, len(data))
	}
	return string(data[:n]), data[n:], nil
}

// metadataInstruction extracts a token metadata interface discriminator.
func metadataInstruction(data []byte) ([8]byte, bool) {
	var d [8]byte
	if len(data) < 8 {
		return d, false
	}
	copy(d[:], data[:8])
	return d, d == MetadataInitializeDiscriminator || d == MetadataUpdateFieldDiscriminator
}

func executeMetadataInstruction(ctx *syscall.ExecutionContext, discriminator [8]byte, payload []byte) error {
	switch discriminator {
	case MetadataInitializeDiscriminator:
		var inst InitializeMetadataInstruction
		if err := borsh.Deserialize(&inst, payload); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInstructionData, err)
		}
		return handleInitializeTokenMetadata(ctx, &inst)
	default:
		inst, err := DeserializeUpdateField(payload)
		if err != nil {
			return err
		}
		return handleUpdateTokenMetadataField(ctx, inst)
	}
}

// handleInitializeTokenMetadata writes the metadata record into the mint.
// Account layout:
//
//	[0] metadata (writable), must be the mint itself
//	[1] update authority
//	[2] mint
//	[3] mint authority (signer)
//	[4..] co-signers (signer), optional
func handleInitializeTokenMetadata(ctx *syscall.ExecutionContext, inst *InitializeMetadataInstruction) error {
	if ctx.AccountCount() < 4 {
		return fmt.Errorf("%w: InitializeTokenMetadata requires 4 accounts, got %d",
			ErrInvalidNumberOfAccounts, ctx.AccountCount())
	}
	metadataAcc, _ := ctx.GetAccountByIndex(0)
	updateAuthorityAcc, _ := ctx.GetAccountByIndex(1)
	mintAcc, _ := ctx.GetAccountByIndex(2)
	mintAuthorityAcc, _ := ctx.GetAccountByIndex(3)

	if mintAcc.Owner != ctx.ProgramID {
		return fmt.Errorf("%w: mint", ErrInvalidAccountOwner)
	}
	mint, err := DeserializeMint(mintAcc.Data)
	if err != nil {
		return err
	}
	if !mint.IsInitialized {
		return fmt.Errorf("mint: %w", ErrNotInitialized)
	}
	if !mintAuthorityAcc.IsSigner {
		return fmt.Errorf("%w: mint authority", ErrAccountNotSigner)
	}
	if !mint.MintAuthority.IsSome || mint.MintAuthority.Value != mintAuthorityAcc.Pubkey {
		return fmt.Errorf("%w: mint authority", ErrAuthorityMismatch)
	}
	for i := 4; i < ctx.AccountCount(); i++ {
		cosigner, _ := ctx.GetAccountByIndex(i)
		if !cosigner.IsSigner {
			return fmt.Errorf("%w: co-signer %s", ErrAccountNotSigner, cosigner.Pubkey)
		}
	}

	pointerData, err := GetExtension(mintAcc.Data, ExtensionMetadataPointer)
	if err != nil {
		return err
	}
	pointer, err := UnpackMetadataPointer(pointerData)
	if err != nil {
		return err
	}
	if pointer.MetadataAddress != metadataAcc.Pubkey {
		return fmt.Errorf("%w: pointer names %s", ErrMetadataPointerMismatch, pointer.MetadataAddress)
	}
	if metadataAcc.Pubkey != mintAcc.Pubkey {
		return fmt.Errorf("%w: metadata must live in the mint", ErrMetadataPointerMismatch)
	}
	if HasExtension(mintAcc.Data, ExtensionTokenMetadata) {
		return fmt.Errorf("%w: %s", ErrExtensionAlreadyExists, ExtensionTokenMetadata)
	}

	md := &TokenMetadata{
		UpdateAuthority: updateAuthorityAcc.Pubkey,
		Mint:            mintAcc.Pubkey,
		Name:            inst.Name,
		Symbol:          inst.Symbol,
		URI:             inst.URI,
	}
	value, err := md.Pack()
	if err != nil {
		return err
	}
	return writeVariableExtension(ctx, metadataAcc, ExtensionTokenMetadata, value)
}

// handleUpdateTokenMetadataField updates one metadata field.
// Account layout:
//
//	[0] metadata (writable)
//	[1] update authority (signer)
func handleUpdateTokenMetadataField(ctx *syscall.ExecutionContext, inst *UpdateFieldInstruction) error {
	if ctx.AccountCount() < 2 {
		return fmt.Errorf("%w: UpdateTokenMetadataField requires 2 accounts, got %d",
			ErrInvalidNumberOfAccounts, ctx.AccountCount())
	}
	metadataAcc, _ := ctx.GetAccountByIndex(0)
	authorityAcc, _ := ctx.GetAccountByIndex(1)

	if metadataAcc.Owner != ctx.ProgramID {
		return fmt.Errorf("%w: metadata", ErrInvalidAccountOwner)
	}
	md, err := GetTokenMetadata(metadataAcc.Data)
	if err != nil {
		return err
	}
	if md.UpdateAuthority.IsZero() {
		return ErrImmutableMetadata
	}
	if !authorityAcc.IsSigner {
		return fmt.Errorf("%w: update authority", ErrAccountNotSigner)
	}
	if md.UpdateAuthority != authorityAcc.Pubkey {
		return fmt.Errorf("%w: update authority", ErrAuthorityMismatch)
	}

	md.Update(inst.Field, inst.Value)
	value, err := md.Pack()
	if err != nil {
		return err
	}
	return writeVariableExtension(ctx, metadataAcc, ExtensionTokenMetadata, value)
}

// writeVariableExtension stores value as ext, replacing an existing entry
// or appending a new one, and resizes the account to fit.
func writeVariableExtension(ctx *syscall.ExecutionContext, acc *syscall.AccountInfo, ext ExtensionType, value []byte) error {
	if len(value) > math.MaxUint16 {
		return fmt.Errorf("%w: %s value of %d bytes", ErrInvalidAccountData, ext, len(value))
	}
	entries, free, err := parseTLV(acc.Data)
	if err != nil {
		return err
	}

	header := make([]byte, tlvHeaderSize)
	binary.LittleEndian.PutUint16(header, uint16(ext))
	binary.LittleEndian.PutUint16(header[tlvTypeSize:], uint16(len(value)))

	for _, e := range entries {
		if e.Type != ext {
			continue
		}
		start := e.Offset - tlvHeaderSize
		var buf bytes.Buffer
		buf.Write(acc.Data[:start])
		buf.Write(header)
		buf.Write(value)
		buf.Write(acc.Data[e.Offset+e.Length:])
		if err := ctx.ReallocAccountData(acc, buf.Len()); err != nil {
			return err
		}
		copy(acc.Data, buf.Bytes())
		return nil
	}

	if need := free + tlvHeaderSize + len(value); need > len(acc.Data) {
		if err := ctx.ReallocAccountData(acc, need); err != nil {
			return err
		}
	}
	copy(acc.Data[free:], header)
	copy(acc.Data[free+tlvHeaderSize:], value)
	return nil
}

// InitializeTokenMetadata builds the metadata interface Initialize
// instruction. Each cosigner is appended as a required signer.
func InitializeTokenMetadata(metadata, updateAuthority, mint, mintAuthority types.Pubkey, name, symbol, uri string, cosigners ...types.Pubkey) (*types.Instruction, error) {
	payload, err := borsh.Serialize(InitializeMetadataInstruction{Name: name, Symbol: symbol, URI: uri})
	if err != nil {
		return nil, err
	}
	ix := &types.Instruction{
		ProgramID: types.Token2022ProgramID,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(metadata, true, false),
			types.NewAccountMeta(updateAuthority, false, false),
			types.NewAccountMeta(mint, false, false),
			types.NewAccountMeta(mintAuthority, false, true),
		},
		Data: append(MetadataInitializeDiscriminator[:], payload...),
	}
	for _, pk := range cosigners {
		ix.Accounts = append(ix.Accounts, types.NewAccountMeta(pk, false, true))
	}
	return ix, nil
}

// UpdateTokenMetadataField builds the metadata interface UpdateField
// instruction.
func UpdateTokenMetadataField(metadata, updateAuthority types.Pubkey, field Field, value string) (*types.Instruction, error) {
	inst := UpdateFieldInstruction{Field: field, Value: value}
	payload, err := inst.Serialize()
	if err != nil {
		return nil, err
	}
	return &types.Instruction{
		ProgramID: types.Token2022ProgramID,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(metadata, true, false),
			types.NewAccountMeta(updateAuthority, false, true),
		},
		Data: append(MetadataUpdateFieldDiscriminator[:], payload...),
	}, nil
}
