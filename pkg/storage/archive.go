// Package storage archives finished replay runs: their parameters, stats,
// summary and trade ledger. Archived runs are never loaded back into a book.
package storage

import (
	"sort"
	"time"

	"github.com/uhyunpark/mbobook/pkg/analytics"
	"github.com/uhyunpark/mbobook/pkg/orderbook"
	"github.com/uhyunpark/mbobook/pkg/replay"
)

// Run is the record of one replay.
type Run struct {
	ID          string            `json:"id"`
	Source      string            `json:"source"`
	Dataset     string            `json:"dataset"`
	CrossPolicy string            `json:"cross_policy"`
	RecordLimit int               `json:"record_limit"`
	StartedAt   time.Time         `json:"started_at"`
	FinishedAt  time.Time         `json:"finished_at"`
	Stats       replay.Stats      `json:"stats"`
	Summary     analytics.Summary `json:"summary"`
	Filled      uint64            `json:"filled_orders"`
	Unfilled    uint64            `json:"unfilled_orders"`
	// Digest is the hex Keccak-256 of the final book.
	Digest string `json:"digest"`
}

// Archive stores runs and their trades.
type Archive interface {
	SaveRun(run *Run) error
	// LoadRun returns nil, nil when the run does not exist.
	LoadRun(id string) (*Run, error)
	// ListRuns returns every run, most recent first.
	ListRuns() ([]*Run, error)
	SaveTrades(runID string, trades []orderbook.Trade) error
	// LoadTrades returns up to limit trades of a run starting at offset, in
	// ledger order. limit <= 0 means all.
	LoadTrades(runID string, offset, limit int) ([]orderbook.Trade, error)
	Close() error
}

func sortRuns(runs []*Run) {
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
}

func window(n, offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if offset > n {
		offset = n
	}
	end := n
	if limit > 0 && offset+limit < n {
		end = offset + limit
	}
	return offset, end
}
