package accounts

import (
	"bytes"
	"sort"

	"github.com/fortiblox/metf/pkg/types"
)

const merkleArity = 16

// ComputeAccountsHash computes a 16-ary Merkle root over the account hashes,
// sorted by pubkey. Snapshots record it so an import can be verified.
func ComputeAccountsHash(accounts []types.AccountRef) types.Hash {
	if len(accounts) == 0 {
		return types.ZeroHash
	}

	sorted := make([]types.AccountRef, len(accounts))
	copy(sorted, accounts)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i].Pubkey[:], sorted[j].Pubkey[:]) < 0
	})

	hashes := make([]types.Hash, len(sorted))
	for i, ref := range sorted {
		hashes[i] = ref.Account.Hash(ref.Pubkey)
	}

	for len(hashes) > 1 {
		hashes = nextLevel(hashes)
	}
	return hashes[0]
}

func nextLevel(hashes []types.Hash) []types.Hash {
	parents := make([]types.Hash, 0, (len(hashes)+merkleArity-1)/merkleArity)
	for start := 0; start < len(hashes); start += merkleArity {
		end := start + merkleArity
		if end > len(hashes) {
			end = len(hashes)
		}
		children := hashes[start:end]
		if len(children) == 1 {
			parents = append(parents, children[0])
			continue
		}
		parts := make([][]byte, len(children))
		for i := range children {
			parts[i] = children[i][:]
		}
		parents = append(parents, types.SHA256Multi(parts...))
	}
	return parents
}
