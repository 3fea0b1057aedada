package token

import (
	"encoding/binary"
	"fmt"

	"github.com/fortiblox/metf/pkg/types"
)

// ExtensionType identifies a TLV entry appended to a mint or token account.
type ExtensionType uint16

// Supported extension types. Values match the Token-2022 wire encoding.
const (
	ExtensionUninitialized       ExtensionType = 0
	ExtensionImmutableOwner      ExtensionType = 7
	ExtensionTransferHook        ExtensionType = 14
	ExtensionTransferHookAccount ExtensionType = 15
	ExtensionMetadataPointer     ExtensionType = 18
	ExtensionTokenMetadata       ExtensionType = 19
)

// AccountType is the byte stored right after the padded base state of
// an extended account.
type AccountType uint8

const (
	AccountTypeUninitialized AccountType = 0
	AccountTypeMint          AccountType = 1
	AccountTypeAccount       AccountType = 2
)

// TLV layout constants.
const (
	accountTypeOffset = TokenAccountSize
	extensionsOffset  = accountTypeOffset + 1

	tlvTypeSize   = 2
	tlvLengthSize = 2
	tlvHeaderSize = tlvTypeSize + tlvLengthSize
)

func (e ExtensionType) String() string {
	switch e {
	case ExtensionUninitialized:
		return "Uninitialized"
	case ExtensionImmutableOwner:
		return "ImmutableOwner"
	case ExtensionTransferHook:
		return "TransferHook"
	case ExtensionTransferHookAccount:
		return "TransferHookAccount"
	case ExtensionMetadataPointer:
		return "MetadataPointer"
	case ExtensionTokenMetadata:
		return "TokenMetadata"
	}
	return fmt.Sprintf("ExtensionType(%d)", uint16(e))
}

// Len returns the fixed value length of the extension.
func (e ExtensionType) Len() (int, error) {
	switch e {
	case ExtensionImmutableOwner:
		return 0, nil
	case ExtensionTransferHook, ExtensionMetadataPointer:
		return 64, nil
	case ExtensionTransferHookAccount:
		return 1, nil
	case ExtensionTokenMetadata:
		return 0, fmt.Errorf("%w: %s", ErrVariableLengthExtension, e)
	}
	return 0, fmt.Errorf("%w: %d", ErrUnknownExtension, uint16(e))
}

// AccountType returns which kind of account the extension belongs to.
func (e ExtensionType) AccountType() AccountType {
	switch e {
	case ExtensionImmutableOwner, ExtensionTransferHookAccount:
		return AccountTypeAccount
	case ExtensionTransferHook, ExtensionMetadataPointer, ExtensionTokenMetadata:
		return AccountTypeMint
	}
	return AccountTypeUninitialized
}

// CalculateAccountLen returns the account length needed to hold the base
// state for accountType plus every listed fixed-size extension.
// Duplicates are counted once.
func CalculateAccountLen(accountType AccountType, exts []ExtensionType) (int, error) {
	base := TokenAccountSize
	if accountType == AccountTypeMint {
		base = MintSize
	}
	if len(exts) == 0 {
		return base, nil
	}

	size := extensionsOffset
	seen := make(map[ExtensionType]bool, len(exts))
	for _, ext := range exts {
		if seen[ext] {
			continue
		}
		seen[ext] = true
		n, err := ext.Len()
		if err != nil {
			return 0, err
		}
		size += tlvHeaderSize + n
	}
	if size == MultisigSize {
		size += tlvTypeSize
	}
	return size, nil
}

// tlvEntry locates one extension value inside account data.
type tlvEntry struct {
	Type   ExtensionType
	Offset int // start of value
	Length int
}

// parseTLV walks the extension area and returns the entries plus the
// offset of the first free byte.
func parseTLV(data []byte) ([]tlvEntry, int, error) {
	if len(data) <= accountTypeOffset {
		return nil, len(data), nil
	}
	var entries []tlvEntry
	pos := extensionsOffset
	for pos+tlvHeaderSize <= len(data) {
		ext := ExtensionType(binary.LittleEndian.Uint16(data[pos:]))
		if ext == ExtensionUninitialized {
			break
		}
		length := int(binary.LittleEndian.Uint16(data[pos+tlvTypeSize:]))
		valueStart := pos + tlvHeaderSize
		if valueStart+length > len(data) {
			return nil, 0, fmt.Errorf("%w: extension %s overruns account data", ErrInvalidAccountData, ext)
		}
		entries = append(entries, tlvEntry{Type: ext, Offset: valueStart, Length: length})
		pos = valueStart + length
	}
	return entries, pos, nil
}

// GetExtensionTypes lists the extensions present in account data.
func GetExtensionTypes(data []byte) ([]ExtensionType, error) {
	entries, _, err := parseTLV(data)
	if err != nil {
		return nil, err
	}
	exts := make([]ExtensionType, len(entries))
	for i, e := range entries {
		exts[i] = e.Type
	}
	return exts, nil
}

// GetExtension returns the value bytes of ext. The slice aliases data.
func GetExtension(data []byte, ext ExtensionType) ([]byte, error) {
	entries, _, err := parseTLV(data)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.Type == ext {
			return data[e.Offset : e.Offset+e.Length], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrExtensionNotFound, ext)
}

// HasExtension reports whether ext is present.
func HasExtension(data []byte, ext ExtensionType) bool {
	_, err := GetExtension(data, ext)
	return err == nil
}

// initExtension writes a fixed-size extension into the first free TLV slot.
func initExtension(data []byte, ext ExtensionType, value []byte) error {
	entries, free, err := parseTLV(data)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Type == ext {
			return fmt.Errorf("%w: %s", ErrExtensionAlreadyExists, ext)
		}
	}
	if free+tlvHeaderSize+len(value) > len(data) {
		return fmt.Errorf("%w: %s needs %d bytes at offset %d of %d",
			ErrNoExtensionSpace, ext, tlvHeaderSize+len(value), free, len(data))
	}
	binary.LittleEndian.PutUint16(data[free:], uint16(ext))
	binary.LittleEndian.PutUint16(data[free+tlvTypeSize:], uint16(len(value)))
	copy(data[free+tlvHeaderSize:], value)
	return nil
}

// checkExtendedLayout validates the padding and account-type byte of an
// account about to be initialized as want.
func checkExtendedLayout(data []byte, want AccountType) error {
	base := MintSize
	if want == AccountTypeAccount {
		base = TokenAccountSize
	}
	if len(data) == base {
		return nil
	}
	if len(data) < extensionsOffset || len(data) == MultisigSize {
		return fmt.Errorf("%w: invalid length %d", ErrInvalidAccountData, len(data))
	}
	for _, b := range data[base:accountTypeOffset] {
		if b != 0 {
			return fmt.Errorf("%w: non-zero padding", ErrInvalidAccountData)
		}
	}
	if at := AccountType(data[accountTypeOffset]); at != AccountTypeUninitialized && at != want {
		return fmt.Errorf("%w: account type %d", ErrExtensionAccountType, at)
	}
	exts, err := GetExtensionTypes(data)
	if err != nil {
		return err
	}
	for _, ext := range exts {
		if ext.AccountType() != want {
			return fmt.Errorf("%w: %s", ErrExtensionAccountType, ext)
		}
	}
	return nil
}

func setAccountType(data []byte, at AccountType) {
	if len(data) > accountTypeOffset {
		data[accountTypeOffset] = byte(at)
	}
}

// requiredAccountExtensions lists the account extensions a token account
// for the given mint must carry.
func requiredAccountExtensions(mintData []byte) []ExtensionType {
	var exts []ExtensionType
	if HasExtension(mintData, ExtensionTransferHook) {
		exts = append(exts, ExtensionTransferHookAccount)
	}
	return exts
}

// TransferHook is the mint extension naming the program invoked on
// transfers and the authority allowed to change it. Zero keys mean none.
type TransferHook struct {
	Authority types.Pubkey
	ProgramID types.Pubkey
}

// Pack encodes the extension value.
func (h *TransferHook) Pack() []byte {
	data := make([]byte, 64)
	copy(data[0:32], h.Authority[:])
	copy(data[32:64], h.ProgramID[:])
	return data
}

// UnpackTransferHook decodes a TransferHook extension value.
func UnpackTransferHook(data []byte) (*TransferHook, error) {
	if len(data) != 64 {
		return nil, fmt.Errorf("%w: transfer hook length %d", ErrInvalidAccountData, len(data))
	}
	h := &TransferHook{}
	copy(h.Authority[:], data[0:32])
	copy(h.ProgramID[:], data[32:64])
	return h, nil
}

// MetadataPointer records where a mint's metadata lives and who may move
// it. Zero keys mean none.
type MetadataPointer struct {
	Authority       types.Pubkey
	MetadataAddress types.Pubkey
}

// Pack encodes the extension value.
func (p *MetadataPointer) Pack() []byte {
	data := make([]byte, 64)
	copy(data[0:32], p.Authority[:])
	copy(data[32:64], p.MetadataAddress[:])
	return data
}

// UnpackMetadataPointer decodes a MetadataPointer extension value.
func UnpackMetadataPointer(data []byte) (*MetadataPointer, error) {
	if len(data) != 64 {
		return nil, fmt.Errorf("%w: metadata pointer length %d", ErrInvalidAccountData, len(data))
	}
	p := &MetadataPointer{}
	copy(p.Authority[:], data[0:32])
	copy(p.MetadataAddress[:], data[32:64])
	return p, nil
}
