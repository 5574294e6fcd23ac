package storage

import (
	"sync"

	"github.com/uhyunpark/mbobook/pkg/orderbook"
)

// InMemoryStore keeps runs for the life of the process. It backs the API
// when no archive path is configured.
type InMemoryStore struct {
	mu     sync.Mutex
	runs   map[string]Run
	trades map[string][]orderbook.Trade
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		runs:   make(map[string]Run),
		trades: make(map[string][]orderbook.Trade),
	}
}

func (s *InMemoryStore) SaveRun(run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = *run
	return nil
}

func (s *InMemoryStore) LoadRun(id string) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (s *InMemoryStore) ListRuns() ([]*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Run, 0, len(s.runs))
	for _, r := range s.runs {
		r := r
		out = append(out, &r)
	}
	sortRuns(out)
	return out, nil
}

func (s *InMemoryStore) SaveTrades(runID string, trades []orderbook.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades[runID] = append(s.trades[runID], trades...)
	return nil
}

func (s *InMemoryStore) LoadTrades(runID string, offset, limit int) ([]orderbook.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.trades[runID]
	lo, hi := window(len(all), offset, limit)
	return append([]orderbook.Trade(nil), all[lo:hi]...), nil
}

func (s *InMemoryStore) Close() error { return nil }

var _ Archive = (*InMemoryStore)(nil)
