package orderbook

import (
	"container/heap"
	"sort"
)

// ladder is one side of the book: a heap of distinct prices for O(1) best
// price, and a FIFO slice of order ids per price.
type ladder struct {
	side   Side
	prices *priceHeap
	levels map[int64][]uint64
}

func newLadder(side Side) *ladder {
	h := newPriceHeap(side == Bid)
	heap.Init(h)
	return &ladder{
		side:   side,
		prices: h,
		levels: make(map[int64][]uint64),
	}
}

func (l *ladder) best() (int64, bool) {
	return l.prices.Peek()
}

// front returns the oldest order id resting at price.
func (l *ladder) front(price int64) (uint64, bool) {
	ids := l.levels[price]
	if len(ids) == 0 {
		return 0, false
	}
	return ids[0], true
}

func (l *ladder) push(price int64, id uint64) {
	if len(l.levels[price]) == 0 {
		// New price level - add to heap
		heap.Push(l.prices, price)
	}
	l.levels[price] = append(l.levels[price], id)
}

// remove drops id from the level at price. An emptied level is deleted from
// both the map and the heap.
func (l *ladder) remove(price int64, id uint64) bool {
	ids, ok := l.levels[price]
	if !ok {
		return false
	}
	for i, cur := range ids {
		if cur != id {
			continue
		}
		ids = append(ids[:i], ids[i+1:]...)
		if len(ids) == 0 {
			delete(l.levels, price)
			l.removePrice(price)
		} else {
			l.levels[price] = ids
		}
		return true
	}
	return false
}

// removePrice removes a price from the heap in O(log L).
func (l *ladder) removePrice(price int64) {
	if i, ok := l.prices.position(price); ok {
		heap.Remove(l.prices, i)
	}
}

func (l *ladder) depth() int { return len(l.levels) }

func (l *ladder) reset() {
	l.prices.reset()
	l.levels = make(map[int64][]uint64)
}

// sortedPrices returns level prices best first.
func (l *ladder) sortedPrices() []int64 {
	out := make([]int64, len(l.prices.prices))
	copy(out, l.prices.prices)
	if l.side == Bid {
		sort.Slice(out, func(i, j int) bool { return out[i] > out[j] })
	} else {
		sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	}
	return out
}

func (l *ladder) snapshot() []Level {
	prices := l.sortedPrices()
	out := make([]Level, 0, len(prices))
	for _, p := range prices {
		ids := make([]uint64, len(l.levels[p]))
		copy(ids, l.levels[p])
		out = append(out, Level{Price: p, OrderIDs: ids})
	}
	return out
}
