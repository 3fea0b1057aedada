package client

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gagliardetto/solana-go"

	"github.com/fortiblox/metf/pkg/types"
)

// NewKeypair generates a random ed25519 keypair.
func NewKeypair() (solana.PrivateKey, error) {
	return solana.NewRandomPrivateKey()
}

// LoadKeypair reads a keypair in solana-keygen JSON format.
func LoadKeypair(path string) (solana.PrivateKey, error) {
	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load keypair %s: %w", path, err)
	}
	return key, nil
}

// SaveKeypair writes key in solana-keygen JSON format, a byte array of the
// 64-byte secret key. The file is readable by its owner only.
func SaveKeypair(path string, key solana.PrivateKey) error {
	values := make([]int, len(key))
	for i, b := range key {
		values[i] = int(b)
	}
	data, err := json.Marshal(values)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create keypair directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write keypair %s: %w", path, err)
	}
	return nil
}

// LedgerKey returns the ed25519 form of key used by the runtime's signer.
func LedgerKey(key solana.PrivateKey) ed25519.PrivateKey {
	return ed25519.PrivateKey(key)
}

// LedgerPubkey converts a solana-go public key to the runtime's type.
func LedgerPubkey(pk solana.PublicKey) types.Pubkey {
	return types.Pubkey(pk)
}
