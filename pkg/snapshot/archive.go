package snapshot

import (
	"archive/tar"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/fortiblox/metf/pkg/accounts"
	"github.com/fortiblox/metf/pkg/types"
)

// accounts.bin is a sequence of records:
//
//	pubkey (32) | record_len u32 LE | accounts.SerializeAccount bytes
const recordHeaderSize = 32 + 4

// Export writes every account of db to w and returns the manifest it
// recorded.
func Export(db accounts.AccountsDB, w io.Writer, info Info) (*Manifest, error) {
	var refs []types.AccountRef
	err := db.ForEachAccount(func(pubkey types.Pubkey, account *types.Account) error {
		refs = append(refs, types.AccountRef{Pubkey: pubkey, Account: account.Clone()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read accounts: %w", err)
	}
	sort.Slice(refs, func(i, j int) bool {
		return bytes.Compare(refs[i].Pubkey[:], refs[j].Pubkey[:]) < 0
	})

	manifest := &Manifest{
		ID:            uuid.NewString(),
		Version:       Version,
		Slot:          info.Slot,
		Blockhash:     info.Blockhash,
		AccountsCount: uint64(len(refs)),
		AccountsHash:  accounts.ComputeAccountsHash(refs),
		CreatedAt:     time.Now().UTC(),
	}

	var body bytes.Buffer
	header := make([]byte, recordHeaderSize)
	for _, ref := range refs {
		manifest.LamportsTotal += uint64(ref.Account.Lamports)
		data, err := accounts.SerializeAccount(ref.Account)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize account %s: %w", ref.Pubkey, err)
		}
		copy(header, ref.Pubkey[:])
		binary.LittleEndian.PutUint32(header[32:], uint32(len(data)))
		body.Write(header)
		body.Write(data)
	}

	manifestData, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}

	encoder, err := zstd.NewWriter(w)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	tw := tar.NewWriter(encoder)

	entries := []struct {
		name string
		data []byte
	}{
		{ManifestEntry, manifestData},
		{AccountsEntry, body.Bytes()},
	}
	for _, e := range entries {
		hdr := &tar.Header{
			Name:    e.name,
			Mode:    0644,
			Size:    int64(len(e.data)),
			ModTime: manifest.CreatedAt,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			encoder.Close()
			return nil, fmt.Errorf("failed to write tar header: %w", err)
		}
		if _, err := tw.Write(e.data); err != nil {
			encoder.Close()
			return nil, fmt.Errorf("failed to write %s: %w", e.name, err)
		}
	}
	if err := tw.Close(); err != nil {
		encoder.Close()
		return nil, fmt.Errorf("failed to finish tar: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish zstd stream: %w", err)
	}
	return manifest, nil
}

// ExportFile writes a snapshot of db to path.
func ExportFile(db accounts.AccountsDB, path string, info Info) (*Manifest, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot file: %w", err)
	}
	manifest, err := Export(db, file, info)
	if err != nil {
		file.Close()
		os.Remove(path)
		return nil, err
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close snapshot file: %w", err)
	}
	return manifest, nil
}

// Read decodes an archive and verifies its accounts against the manifest.
func Read(r io.Reader) (*Manifest, []types.AccountRef, error) {
	decoder, err := zstd.NewReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	defer decoder.Close()

	var manifest *Manifest
	var refs []types.AccountRef
	tr := tar.NewReader(decoder)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
		}

		switch header.Name {
		case ManifestEntry:
			data, err := io.ReadAll(tr)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to read manifest: %w", err)
			}
			manifest = &Manifest{}
			if err := json.Unmarshal(data, manifest); err != nil {
				return nil, nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
			}
			if manifest.Version == 0 || manifest.Version > Version {
				return nil, nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, manifest.Version)
			}
		case AccountsEntry:
			data, err := io.ReadAll(tr)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to read accounts: %w", err)
			}
			if refs, err = decodeAccounts(data); err != nil {
				return nil, nil, err
			}
		}
	}

	if manifest == nil {
		return nil, nil, fmt.Errorf("%w: %s not found", ErrInvalidArchive, ManifestEntry)
	}
	if err := verify(manifest, refs); err != nil {
		return nil, nil, err
	}
	return manifest, refs, nil
}

func decodeAccounts(data []byte) ([]types.AccountRef, error) {
	var refs []types.AccountRef
	for offset := 0; offset < len(data); {
		if len(data)-offset < recordHeaderSize {
			return nil, fmt.Errorf("%w: truncated record header at offset %d", ErrInvalidArchive, offset)
		}
		var pubkey types.Pubkey
		copy(pubkey[:], data[offset:offset+32])
		size := int(binary.LittleEndian.Uint32(data[offset+32:]))
		offset += recordHeaderSize
		if len(data)-offset < size {
			return nil, fmt.Errorf("%w: truncated account %s", ErrInvalidArchive, pubkey)
		}
		account, err := accounts.DeserializeAccount(data[offset : offset+size])
		if err != nil {
			return nil, fmt.Errorf("%w: account %s: %v", ErrInvalidArchive, pubkey, err)
		}
		offset += size
		refs = append(refs, types.AccountRef{Pubkey: pubkey, Account: account})
	}
	return refs, nil
}

func verify(manifest *Manifest, refs []types.AccountRef) error {
	if uint64(len(refs)) != manifest.AccountsCount {
		return fmt.Errorf("%w: %d accounts, manifest lists %d", ErrInvalidManifest, len(refs), manifest.AccountsCount)
	}
	var lamports uint64
	seen := make(map[types.Pubkey]struct{}, len(refs))
	for _, ref := range refs {
		if _, dup := seen[ref.Pubkey]; dup {
			return fmt.Errorf("%w: duplicate account %s", ErrInvalidArchive, ref.Pubkey)
		}
		seen[ref.Pubkey] = struct{}{}
		lamports += uint64(ref.Account.Lamports)
	}
	if lamports != manifest.LamportsTotal {
		return fmt.Errorf("%w: %d lamports, manifest lists %d", ErrInvalidManifest, lamports, manifest.LamportsTotal)
	}
	if got := accounts.ComputeAccountsHash(refs); got != manifest.AccountsHash {
		return fmt.Errorf("%w: accounts hash %s, manifest lists %s", ErrHashMismatch, got, manifest.AccountsHash)
	}
	return nil
}

// Import verifies the archive in r and writes its accounts into db with a
// single SetAccounts call. db must be empty.
func Import(db accounts.AccountsDB, r io.Reader) (*Manifest, error) {
	if n := db.GetAccountsCount(); n > 0 {
		return nil, fmt.Errorf("%w: %d accounts", ErrStoreNotEmpty, n)
	}
	manifest, refs, err := Read(r)
	if err != nil {
		return nil, err
	}
	if err := db.SetAccounts(refs); err != nil {
		return nil, fmt.Errorf("failed to store accounts: %w", err)
	}
	return manifest, nil
}

// ImportFile imports the snapshot at path into db.
func ImportFile(db accounts.AccountsDB, path string) (*Manifest, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot file: %w", err)
	}
	defer file.Close()
	return Import(db, file)
}
