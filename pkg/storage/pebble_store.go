package storage

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"github.com/uhyunpark/mbobook/pkg/orderbook"
)

type PebbleStore struct {
	db *pebble.DB
}

func NewPebbleStore(path string) (*PebbleStore, error) {
	return openPebble(path, &pebble.Options{})
}

// NewMemPebbleStore opens a store on an in-memory filesystem.
func NewMemPebbleStore() (*PebbleStore, error) {
	return openPebble("", &pebble.Options{FS: vfs.NewMem()})
}

func openPebble(path string, opts *pebble.Options) (*PebbleStore, error) {
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("open run archive: %w", err)
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

// SaveRun persists a run record, replacing any previous one with the same id.
func (s *PebbleStore) SaveRun(run *Run) error {
	data, err := encodeJSON("run", run)
	if err != nil {
		return err
	}
	if err := s.db.Set(runKey(run.ID), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// LoadRun returns nil if the run doesn't exist
func (s *PebbleStore) LoadRun(id string) (*Run, error) {
	data, closer, err := s.db.Get(runKey(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	defer closer.Close()

	var run Run
	if err := decodeJSON("run", data, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *PebbleStore) ListRuns() ([]*Run, error) {
	prefix := runPrefix()
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan runs: %w", err)
	}
	defer iter.Close()

	var runs []*Run
	for iter.First(); iter.Valid(); iter.Next() {
		var run Run
		if err := decodeJSON("run", iter.Value(), &run); err != nil {
			continue // Skip invalid entries
		}
		runs = append(runs, &run)
	}
	sortRuns(runs)
	return runs, nil
}

// SaveTrades appends trades to a run's ledger in a single batch.
func (s *PebbleStore) SaveTrades(runID string, trades []orderbook.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	next, err := s.nextTradeSeq(runID)
	if err != nil {
		return err
	}

	b := s.db.NewBatch()
	defer b.Close()
	for i, t := range trades {
		data, err := encodeJSON("trade", t)
		if err != nil {
			return err
		}
		if err := b.Set(tradeKey(runID, next+uint64(i)), data, nil); err != nil {
			return fmt.Errorf("failed to stage trade: %w", err)
		}
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to save trades: %w", err)
	}
	return nil
}

func (s *PebbleStore) nextTradeSeq(runID string) (uint64, error) {
	prefix := tradePrefix(runID)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to scan trades: %w", err)
	}
	defer iter.Close()

	if !iter.Last() {
		return 0, nil
	}
	return binary.BigEndian.Uint64(iter.Key()[len(prefix):]) + 1, nil
}

func (s *PebbleStore) LoadTrades(runID string, offset, limit int) ([]orderbook.Trade, error) {
	prefix := tradePrefix(runID)
	lower := prefix
	if offset > 0 {
		lower = tradeKey(runID, uint64(offset))
	}
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan trades: %w", err)
	}
	defer iter.Close()

	var trades []orderbook.Trade
	for iter.First(); iter.Valid() && (limit <= 0 || len(trades) < limit); iter.Next() {
		var t orderbook.Trade
		if err := decodeJSON("trade", iter.Value(), &t); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, nil
}

var _ Archive = (*PebbleStore)(nil)
