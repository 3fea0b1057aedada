package syscall

import (
	"encoding/binary"
	"errors"
	"math"
)

// Mainnet rent parameters.
const (
	DefaultLamportsPerByteYear uint64  = 3480
	DefaultExemptionThreshold  float64 = 2.0
	DefaultBurnPercent         uint8   = 50

	// AccountStorageOverhead is charged on top of the data length.
	AccountStorageOverhead uint64 = 128

	// RentSysvarSize is the serialized size of the rent sysvar.
	RentSysvarSize = 17
)

var ErrInvalidRentSysvar = errors.New("invalid rent sysvar data")

// Rent is the rent schedule published by the rent sysvar.
type Rent struct {
	LamportsPerByteYear uint64
	ExemptionThreshold  float64
	BurnPercent         uint8
}

// DefaultRent returns the mainnet rent schedule.
func DefaultRent() Rent {
	return Rent{
		LamportsPerByteYear: DefaultLamportsPerByteYear,
		ExemptionThreshold:  DefaultExemptionThreshold,
		BurnPercent:         DefaultBurnPercent,
	}
}

// MinimumBalance returns the lamports that make an account of dataLen bytes
// rent exempt.
func (r Rent) MinimumBalance(dataLen uint64) uint64 {
	bytes := AccountStorageOverhead + dataLen
	return uint64(float64(bytes*r.LamportsPerByteYear) * r.ExemptionThreshold)
}

// IsExempt reports whether balance covers an account of dataLen bytes.
func (r Rent) IsExempt(balance, dataLen uint64) bool {
	return balance >= r.MinimumBalance(dataLen)
}

// Serialize encodes the sysvar layout: u64 | f64 | u8, little endian.
func (r Rent) Serialize() []byte {
	buf := make([]byte, RentSysvarSize)
	binary.LittleEndian.PutUint64(buf[0:8], r.LamportsPerByteYear)
	binary.LittleEndian.PutUint64(buf[8:16], math.Float64bits(r.ExemptionThreshold))
	buf[16] = r.BurnPercent
	return buf
}

// DeserializeRent decodes rent sysvar data.
func DeserializeRent(data []byte) (Rent, error) {
	if len(data) < RentSysvarSize {
		return Rent{}, ErrInvalidRentSysvar
	}
	return Rent{
		LamportsPerByteYear: binary.LittleEndian.Uint64(data[0:8]),
		ExemptionThreshold:  math.Float64frombits(binary.LittleEndian.Uint64(data[8:16])),
		BurnPercent:         data[16],
	}, nil
}
