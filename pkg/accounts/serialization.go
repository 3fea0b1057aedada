package accounts

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/fortiblox/metf/pkg/types"
)

// Stored account record, version 1:
//
//	version    u8
//	flags      u8  (bit 0: executable)
//	lamports   u64 LE
//	rent_epoch u64 LE
//	owner      [32]byte
//	data_len   u32 LE
//	data       data_len bytes
//
// Records are shared by BadgerDB values and snapshot archives.
const (
	recordVersion    byte = 1
	flagExecutable   byte = 1 << 0
	recordHeaderSize      = 1 + 1 + 8 + 8 + 32 + 4
)

var (
	// ErrInvalidAccountData is returned when a stored record is malformed.
	ErrInvalidAccountData = errors.New("invalid account data")
)

// SerializeAccount encodes an account as a version 1 record.
func SerializeAccount(account *types.Account) ([]byte, error) {
	if account == nil {
		return nil, errors.New("cannot serialize nil account")
	}
	if uint64(len(account.Data)) > uint64(^uint32(0)) {
		return nil, fmt.Errorf("%w: %d bytes of data", ErrInvalidAccountData, len(account.Data))
	}

	buf := make([]byte, recordHeaderSize, recordHeaderSize+len(account.Data))
	buf[0] = recordVersion
	if account.Executable {
		buf[1] |= flagExecutable
	}
	binary.LittleEndian.PutUint64(buf[2:], uint64(account.Lamports))
	binary.LittleEndian.PutUint64(buf[10:], account.RentEpoch)
	copy(buf[18:50], account.Owner[:])
	binary.LittleEndian.PutUint32(buf[50:], uint32(len(account.Data)))
	return append(buf, account.Data...), nil
}

// DeserializeAccount decodes a record written by SerializeAccount. The record
// must be exactly as long as its header declares.
func DeserializeAccount(data []byte) (*types.Account, error) {
	if len(data) < recordHeaderSize {
		return nil, fmt.Errorf("%w: record of %d bytes, header needs %d",
			ErrInvalidAccountData, len(data), recordHeaderSize)
	}
	if data[0] != recordVersion {
		return nil, fmt.Errorf("%w: record version %d", ErrInvalidAccountData, data[0])
	}
	if data[1]&^flagExecutable != 0 {
		return nil, fmt.Errorf("%w: unknown flags %#x", ErrInvalidAccountData, data[1])
	}
	dataLen := int(binary.LittleEndian.Uint32(data[50:]))
	if len(data)-recordHeaderSize != dataLen {
		return nil, fmt.Errorf("%w: record declares %d data bytes, has %d",
			ErrInvalidAccountData, dataLen, len(data)-recordHeaderSize)
	}

	account := &types.Account{
		Lamports:   types.Lamports(binary.LittleEndian.Uint64(data[2:])),
		RentEpoch:  binary.LittleEndian.Uint64(data[10:]),
		Executable: data[1]&flagExecutable != 0,
	}
	copy(account.Owner[:], data[18:50])
	if dataLen > 0 {
		account.Data = append([]byte(nil), data[recordHeaderSize:]...)
	}
	return account, nil
}
