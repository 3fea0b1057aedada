// Package types provides the ledger primitives shared by the METF runtime.
package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/mr-tron/base58"
)

// Hash represents a 32-byte SHA256 hash.
type Hash [32]byte

// ZeroHash is an all-zero hash.
var ZeroHash Hash

// HashFromBytes creates a Hash from a byte slice.
func HashFromBytes(b []byte) (Hash, error) {
	if len(b) != 32 {
		return Hash{}, fmt.Errorf("hash must be 32 bytes, got %d", len(b))
	}
	var h Hash
	copy(h[:], b)
	return h, nil
}

// HashFromBase58 decodes a base58 string into a Hash.
func HashFromBase58(s string) (Hash, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return Hash{}, fmt.Errorf("invalid base58: %w", err)
	}
	return HashFromBytes(b)
}

func (h Hash) Bytes() []byte { return h[:] }

// String returns the base58 representation.
func (h Hash) String() string {
	return base58.Encode(h[:])
}

// Hex returns the hex representation.
func (h Hash) Hex() string {
	return hex.EncodeToString(h[:])
}

func (h Hash) IsZero() bool { return h == ZeroHash }

// SHA256Multi hashes the concatenation of data.
func SHA256Multi(data ...[]byte) Hash {
	h := sha256.New()
	for _, d := range data {
		h.Write(d)
	}
	var result Hash
	copy(result[:], h.Sum(nil))
	return result
}

// Pubkey represents a 32-byte Ed25519 public key or program derived address.
type Pubkey [32]byte

// ZeroPubkey is an all-zero pubkey.
var ZeroPubkey Pubkey

// Well-known program and sysvar addresses.
var (
	SystemProgramID          = MustPubkeyFromBase58("11111111111111111111111111111111")
	Token2022ProgramID       = MustPubkeyFromBase58("TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb")
	AssociatedTokenProgramID = MustPubkeyFromBase58("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")
	PersonTokenProgramID     = MustPubkeyFromBase58("MetfPersonToken1111111111111111111111111111")
	ComputeBudgetProgramID   = MustPubkeyFromBase58("ComputeBudget111111111111111111111111111111")
	NativeLoaderID           = MustPubkeyFromBase58("NativeLoader1111111111111111111111111111111")
	SysvarOwnerID            = MustPubkeyFromBase58("Sysvar1111111111111111111111111111111111111")
	SysvarRentID             = MustPubkeyFromBase58("SysvarRent111111111111111111111111111111111")
)

// PubkeyFromBytes creates a Pubkey from a byte slice.
func PubkeyFromBytes(b []byte) (Pubkey, error) {
	if len(b) != 32 {
		return Pubkey{}, fmt.Errorf("pubkey must be 32 bytes, got %d", len(b))
	}
	var pk Pubkey
	copy(pk[:], b)
	return pk, nil
}

// PubkeyFromBase58 decodes a base58 string into a Pubkey.
func PubkeyFromBase58(s string) (Pubkey, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return Pubkey{}, fmt.Errorf("invalid base58: %w", err)
	}
	return PubkeyFromBytes(b)
}

// MustPubkeyFromBase58 decodes a base58 string or panics. Only for constants.
func MustPubkeyFromBase58(s string) Pubkey {
	pk, err := PubkeyFromBase58(s)
	if err != nil {
		panic(err)
	}
	return pk
}

func (pk Pubkey) Bytes() []byte { return pk[:] }

// String returns the base58 representation.
func (pk Pubkey) String() string {
	return base58.Encode(pk[:])
}

func (pk Pubkey) IsZero() bool { return pk == ZeroPubkey }

// IsNativeProgram reports whether pk is one of the programs compiled into
// the runtime.
func (pk Pubkey) IsNativeProgram() bool {
	switch pk {
	case SystemProgramID, Token2022ProgramID, AssociatedTokenProgramID, PersonTokenProgramID, ComputeBudgetProgramID:
		return true
	}
	return false
}

// Signature represents a 64-byte Ed25519 signature.
type Signature [64]byte

// ZeroSignature is an all-zero signature.
var ZeroSignature Signature

// SignatureFromBytes creates a Signature from a byte slice.
func SignatureFromBytes(b []byte) (Signature, error) {
	if len(b) != 64 {
		return Signature{}, fmt.Errorf("signature must be 64 bytes, got %d", len(b))
	}
	var sig Signature
	copy(sig[:], b)
	return sig, nil
}

// SignatureFromBase58 decodes a base58 string into a Signature.
func SignatureFromBase58(s string) (Signature, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return Signature{}, fmt.Errorf("invalid base58: %w", err)
	}
	return SignatureFromBytes(b)
}

func (sig Signature) Bytes() []byte { return sig[:] }

// String returns the base58 representation.
func (sig Signature) String() string {
	return base58.Encode(sig[:])
}

func (sig Signature) IsZero() bool { return sig == ZeroSignature }

// Slot represents a slot number.
type Slot uint64

// Lamports represents a lamport amount (1 SOL = 1_000_000_000 lamports).
type Lamports uint64

// LamportsPerSOL is the number of lamports in one SOL.
const LamportsPerSOL Lamports = 1_000_000_000

// SOL converts lamports to SOL.
func (l Lamports) SOL() float64 {
	return float64(l) / float64(LamportsPerSOL)
}

// ComputeUnits represents compute units.
type ComputeUnits uint64

// Compute limits.
const (
	MaxComputeUnitsPerTransaction ComputeUnits = 1_400_000
	ComputeUnitsPerInstruction    ComputeUnits = 200
	ComputeUnitsPerCPI            ComputeUnits = 1_000
)
