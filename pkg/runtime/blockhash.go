package runtime

import (
	"github.com/fortiblox/metf/pkg/types"
)

// DefaultBlockhashQueueSize is how many recent blockhashes stay valid.
const DefaultBlockhashQueueSize = 150

// BlockhashQueue tracks the recent blockhashes a transaction may reference
// and the signatures committed under each of them. A signature is
// forgotten once its blockhash ages out, at which point the transaction
// can no longer be replayed anyway.
type BlockhashQueue struct {
	max        int
	hashes     []types.Hash
	signatures map[types.Hash]map[types.Signature]struct{}
}

// NewBlockhashQueue creates a queue holding at most max hashes.
func NewBlockhashQueue(max int) *BlockhashQueue {
	if max <= 0 {
		max = DefaultBlockhashQueueSize
	}
	return &BlockhashQueue{
		max:        max,
		signatures: make(map[types.Hash]map[types.Signature]struct{}),
	}
}

// Register appends h as the latest blockhash, evicting the oldest one when
// the queue is full.
func (q *BlockhashQueue) Register(h types.Hash) {
	if _, ok := q.signatures[h]; ok {
		return
	}
	q.hashes = append(q.hashes, h)
	q.signatures[h] = make(map[types.Signature]struct{})
	for len(q.hashes) > q.max {
		delete(q.signatures, q.hashes[0])
		q.hashes = q.hashes[1:]
	}
}

// Contains reports whether h is still a valid recent blockhash.
func (q *BlockhashQueue) Contains(h types.Hash) bool {
	_, ok := q.signatures[h]
	return ok
}

// Latest returns the most recently registered blockhash.
func (q *BlockhashQueue) Latest() types.Hash {
	if len(q.hashes) == 0 {
		return types.ZeroHash
	}
	return q.hashes[len(q.hashes)-1]
}

// Len returns the number of valid blockhashes.
func (q *BlockhashQueue) Len() int {
	return len(q.hashes)
}

// HasSignature reports whether sig was committed under h.
func (q *BlockhashQueue) HasSignature(h types.Hash, sig types.Signature) bool {
	_, ok := q.signatures[h][sig]
	return ok
}

// RecordSignature remembers sig as committed under h. It is a no-op for an
// unknown blockhash.
func (q *BlockhashQueue) RecordSignature(h types.Hash, sig types.Signature) {
	if sigs, ok := q.signatures[h]; ok {
		sigs[sig] = struct{}{}
	}
}
