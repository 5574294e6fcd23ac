package storage

import "fmt"

// Key schema:
//
//	run:<runID>                → Run
//	trade:<runID>:<8-byte seq> → orderbook.Trade, in ledger order
const (
	prefixRun   = "run:"
	prefixTrade = "trade:"
)

// runKey returns the key for a run record
func runKey(runID string) []byte {
	return []byte(prefixRun + runID)
}

func runPrefix() []byte {
	return []byte(prefixRun)
}

// tradeKey returns the key of the seq-th trade of a run. The big-endian
// sequence keeps the ledger order under lexicographic iteration.
func tradeKey(runID string, seq uint64) []byte {
	return append(tradePrefix(runID), seqKey(seq)...)
}

// tradePrefix returns the prefix for all trades of a run
// Format: "trade:{runID}:"
func tradePrefix(runID string) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixTrade, runID))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
