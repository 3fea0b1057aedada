// Package snapshot exports and imports the full account state of a METF
// ledger. A snapshot is a zstd-compressed tar archive holding a JSON
// manifest and the serialized accounts, sorted by pubkey.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fortiblox/metf/pkg/types"
)

// Archive entry names.
const (
	ManifestEntry = "manifest.json"
	AccountsEntry = "accounts.bin"
)

// Version is the snapshot format version written by Export.
const Version uint32 = 1

var (
	// ErrInvalidManifest is returned when the manifest is malformed or does
	// not describe the accounts in the archive.
	ErrInvalidManifest = errors.New("invalid manifest")
	// ErrInvalidArchive is returned when the archive is malformed.
	ErrInvalidArchive = errors.New("invalid archive")
	// ErrHashMismatch is returned when the accounts hash does not match.
	ErrHashMismatch = errors.New("hash mismatch")
	// ErrUnsupportedVersion is returned for archives of a newer format.
	ErrUnsupportedVersion = errors.New("unsupported snapshot version")
	// ErrStoreNotEmpty is returned when importing into a used store.
	ErrStoreNotEmpty = errors.New("account store is not empty")
)

// Manifest describes the contents of a snapshot.
type Manifest struct {
	ID            string     `json:"id"`
	Version       uint32     `json:"version"`
	Slot          types.Slot `json:"slot"`
	Blockhash     types.Hash `json:"-"`
	AccountsCount uint64     `json:"accounts_count"`
	LamportsTotal uint64     `json:"lamports_total"`
	AccountsHash  types.Hash `json:"-"`
	CreatedAt     time.Time  `json:"created_at"`
}

// MarshalJSON writes hashes in base58.
func (m *Manifest) MarshalJSON() ([]byte, error) {
	type Alias Manifest
	return json.Marshal(&struct {
		Blockhash    string `json:"blockhash"`
		AccountsHash string `json:"accounts_hash"`
		*Alias
	}{
		Blockhash:    m.Blockhash.String(),
		AccountsHash: m.AccountsHash.String(),
		Alias:        (*Alias)(m),
	})
}

// UnmarshalJSON reads hashes written by MarshalJSON.
func (m *Manifest) UnmarshalJSON(data []byte) error {
	type Alias Manifest
	aux := &struct {
		Blockhash    string `json:"blockhash"`
		AccountsHash string `json:"accounts_hash"`
		*Alias
	}{
		Alias: (*Alias)(m),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	var err error
	if aux.Blockhash != "" {
		m.Blockhash, err = types.HashFromBase58(aux.Blockhash)
		if err != nil {
			return fmt.Errorf("invalid blockhash: %w", err)
		}
	}
	if aux.AccountsHash != "" {
		m.AccountsHash, err = types.HashFromBase58(aux.AccountsHash)
		if err != nil {
			return fmt.Errorf("invalid accounts hash: %w", err)
		}
	}
	return nil
}

// Info is the bank state recorded alongside the accounts.
type Info struct {
	Slot      types.Slot
	Blockhash types.Hash
}
