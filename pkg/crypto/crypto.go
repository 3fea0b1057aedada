// Package crypto verifies and produces the Ed25519 signatures that
// authorize METF transactions.
//
// A transaction is accepted only when every account listed as a required
// signer carries a valid signature over the serialized message. This is how
// a freshly generated mint identity proves it co-signed its own creation.
package crypto

import (
	"errors"
	"strconv"
)

// Signature and key sizes for Ed25519.
const (
	PublicKeySize  = 32
	SignatureSize  = 64
	PrivateKeySize = 64
)

var (
	// ErrInvalidPublicKey is returned when a public key has an invalid format.
	ErrInvalidPublicKey = errors.New("crypto: invalid public key")

	// ErrInvalidSignature is returned when a signature has an invalid format.
	ErrInvalidSignature = errors.New("crypto: invalid signature")

	// ErrVerificationFailed is returned when signature verification fails.
	ErrVerificationFailed = errors.New("crypto: signature verification failed")

	// ErrNoSignatures is returned when a transaction has no signatures.
	ErrNoSignatures = errors.New("crypto: transaction has no signatures")

	// ErrSignatureCountMismatch is returned when the number of signatures
	// does not match the expected number of signers.
	ErrSignatureCountMismatch = errors.New("crypto: signature count mismatch")

	// ErrMissingMessage is returned when a transaction is nil.
	ErrMissingMessage = errors.New("crypto: missing transaction message")

	// ErrInvalidSignerIndex is returned when a signer index is out of bounds.
	ErrInvalidSignerIndex = errors.New("crypto: invalid signer index")

	// ErrMissingSigner is returned by SignTransaction when no key was
	// supplied for a required signer.
	ErrMissingSigner = errors.New("crypto: missing private key for signer")

	// ErrMessageSerializationFailed is returned when message serialization fails.
	ErrMessageSerializationFailed = errors.New("crypto: message serialization failed")
)

// TransactionVerificationError contains details about a transaction verification failure.
type TransactionVerificationError struct {
	// SignatureIndex is the index of the signature that failed verification.
	SignatureIndex int

	// SignerPubkey is the base58 representation of the signer's public key.
	SignerPubkey string

	Err error
}

func (e *TransactionVerificationError) Error() string {
	return "crypto: transaction verification failed for signer " + e.SignerPubkey +
		" (signature index " + strconv.Itoa(e.SignatureIndex) + "): " + e.Err.Error()
}

func (e *TransactionVerificationError) Unwrap() error {
	return e.Err
}
