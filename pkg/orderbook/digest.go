package orderbook

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// Digest computes a deterministic Keccak-256 fingerprint of the book, used to
// compare the final state of two replay runs.
//
// Hashed in order:
//  1. filled and unfilled counters
//  2. ask levels, best first: price, then (id, size) of each order in queue order
//  3. bid levels, best first, same layout
//
// Timestamps are excluded; they depend on the wall clock.
func (ob *OrderBook) Digest() common.Hash {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.digestLocked()
}

func (ob *OrderBook) digestLocked() common.Hash {
	h := sha3.NewLegacyKeccak256()
	var buf [8]byte
	put := func(v uint64) {
		binary.BigEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}

	put(ob.filled)
	put(ob.unfilled)

	for _, l := range []*ladder{ob.asks, ob.bids} {
		h.Write([]byte{l.side.Code()})
		for _, p := range l.sortedPrices() {
			put(uint64(p))
			for _, id := range l.levels[p] {
				put(id)
				put(uint64(ob.orders[id].Size))
			}
		}
	}

	return common.BytesToHash(h.Sum(nil))
}
