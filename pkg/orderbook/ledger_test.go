package orderbook

import "testing"

func TestLedger(t *testing.T) {
	l := NewLedger()
	if l.Len() != 0 || l.Trades() != nil {
		t.Fatal("new ledger not empty")
	}
	for i := uint64(1); i <= 5; i++ {
		l.Append(Trade{OrderID: i, Price: int64(i * 10), Size: uint32(i)})
	}

	all := l.Trades()
	if len(all) != 5 || all[0].OrderID != 1 || all[4].OrderID != 5 {
		t.Fatalf("Trades()=%+v", all)
	}
	all[0].Size = 99
	if l.Trades()[0].Size != 1 {
		t.Error("Trades() must return a copy")
	}

	if got := l.Since(3); len(got) != 2 || got[0].OrderID != 4 {
		t.Errorf("Since(3)=%+v", got)
	}
	if got := l.Since(10); got != nil {
		t.Errorf("Since(10)=%+v, want nil", got)
	}
	if got := l.Last(2); len(got) != 2 || got[1].OrderID != 5 {
		t.Errorf("Last(2)=%+v", got)
	}
	if got := l.Last(50); len(got) != 5 {
		t.Errorf("Last(50) returned %d trades", len(got))
	}
	if got, first := l.Tail(2); len(got) != 2 || first != 3 || got[0].OrderID != 4 {
		t.Errorf("Tail(2)=%+v, %d", got, first)
	}
	if got, first := l.Tail(0); got != nil || first != 5 {
		t.Errorf("Tail(0)=%+v, %d", got, first)
	}
}

func TestSharedLedgerAcrossBooks(t *testing.T) {
	shared := NewLedger()
	a := New(Config{Ledger: shared})
	b := New(Config{Ledger: NewLedger()})

	_ = a.Add(1, 100, 5, Ask)
	_ = b.Add(1, 100, 5, Ask)
	_, _ = a.Match(1, 5)

	if shared.Len() != 1 {
		t.Errorf("injected ledger has %d trades, want 1", shared.Len())
	}
	if b.Ledger().Len() != 0 {
		t.Error("books must not share an implicit global ledger")
	}
}
