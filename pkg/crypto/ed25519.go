package crypto

import (
	"crypto/ed25519"
	"fmt"

	"github.com/fortiblox/metf/pkg/types"
)

// VerifySignature verifies a single Ed25519 signature.
// Returns false if the public key or signature have invalid lengths.
func VerifySignature(pubkey, message, signature []byte) bool {
	if len(pubkey) != PublicKeySize || len(signature) != SignatureSize {
		return false
	}
	return ed25519.Verify(pubkey, message, signature)
}

// VerifySignatureStrict is like VerifySignature but returns an error
// with details about why verification failed.
func VerifySignatureStrict(pubkey, message, signature []byte) error {
	if len(pubkey) != PublicKeySize {
		return fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidPublicKey, PublicKeySize, len(pubkey))
	}
	if len(signature) != SignatureSize {
		return fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidSignature, SignatureSize, len(signature))
	}
	if !ed25519.Verify(pubkey, message, signature) {
		return ErrVerificationFailed
	}
	return nil
}

// VerifyTransaction verifies every required signature on a transaction.
//
// Returns nil if all signatures are valid, or an error describing
// which signature failed and why.
func VerifyTransaction(tx *types.Transaction) error {
	if tx == nil {
		return ErrMissingMessage
	}

	numSignatures := len(tx.Signatures)
	if numSignatures == 0 {
		return ErrNoSignatures
	}

	numRequired := int(tx.Message.Header.NumRequiredSignatures)
	if numSignatures != numRequired {
		return fmt.Errorf("%w: expected %d signatures, got %d",
			ErrSignatureCountMismatch, numRequired, numSignatures)
	}

	messageBytes, err := tx.Message.Serialize()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMessageSerializationFailed, err)
	}

	accountKeys := tx.Message.AccountKeys
	if len(accountKeys) < numSignatures {
		return fmt.Errorf("%w: not enough account keys for signatures",
			ErrInvalidSignerIndex)
	}

	for i := 0; i < numSignatures; i++ {
		pubkey := accountKeys[i]
		signature := tx.Signatures[i]

		if !ed25519.Verify(pubkey[:], messageBytes, signature[:]) {
			return &TransactionVerificationError{
				SignatureIndex: i,
				SignerPubkey:   pubkey.String(),
				Err:            ErrVerificationFailed,
			}
		}
	}

	return nil
}

// SignTransaction fills tx.Signatures using the supplied keys, matched to
// the message's required signers by public key.
func SignTransaction(tx *types.Transaction, keys ...ed25519.PrivateKey) error {
	messageBytes, err := tx.Message.Serialize()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMessageSerializationFailed, err)
	}

	byPubkey := make(map[types.Pubkey]ed25519.PrivateKey, len(keys))
	for _, k := range keys {
		if len(k) != PrivateKeySize {
			return fmt.Errorf("%w: private key must be %d bytes", ErrInvalidPublicKey, PrivateKeySize)
		}
		var pk types.Pubkey
		copy(pk[:], k.Public().(ed25519.PublicKey))
		byPubkey[pk] = k
	}

	signers := tx.Message.Signers()
	tx.Signatures = make([]types.Signature, len(signers))
	for i, signer := range signers {
		key, ok := byPubkey[signer]
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingSigner, signer)
		}
		copy(tx.Signatures[i][:], ed25519.Sign(key, messageBytes))
	}
	return nil
}
