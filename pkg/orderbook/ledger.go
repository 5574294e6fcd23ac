package orderbook

import "sync"

// Ledger is the append-only trade record of one replay run. A book owns one
// unless a ledger is injected through Config.
type Ledger struct {
	mu     sync.RWMutex
	trades []Trade
}

func NewLedger() *Ledger {
	return &Ledger{}
}

func (l *Ledger) Append(t Trade) {
	l.mu.Lock()
	l.trades = append(l.trades, t)
	l.mu.Unlock()
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.trades)
}

// Trades returns a copy of every trade in append order.
func (l *Ledger) Trades() []Trade {
	return l.Since(0)
}

// Since returns a copy of the trades appended after the first n.
func (l *Ledger) Since(n int) []Trade {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sinceLocked(n)
}

// Last returns up to n most recent trades, newest last.
func (l *Ledger) Last(n int) []Trade {
	trades, _ := l.Tail(n)
	return trades
}

// Tail is Last plus the ledger index of the first returned trade.
func (l *Ledger) Tail(n int) ([]Trade, int) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	first := max(len(l.trades)-n, 0)
	return l.sinceLocked(first), first
}

func (l *Ledger) sinceLocked(n int) []Trade {
	if n < 0 {
		n = 0
	}
	if n >= len(l.trades) {
		return nil
	}
	out := make([]Trade, len(l.trades)-n)
	copy(out, l.trades[n:])
	return out
}
