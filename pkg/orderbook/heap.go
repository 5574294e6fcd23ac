package orderbook

// priceHeap implements heap.Interface over distinct level prices.
// desc=true keeps the highest price on top (bids), desc=false the lowest (asks).
// index tracks each price's slot so a level can be removed without a scan.
// Use container/heap to manipulate it (Init, Push, Pop, Remove).
type priceHeap struct {
	prices []int64
	index  map[int64]int
	desc   bool
}

func newPriceHeap(desc bool) *priceHeap {
	return &priceHeap{index: make(map[int64]int), desc: desc}
}

func (h priceHeap) Len() int { return len(h.prices) }

func (h priceHeap) Less(i, j int) bool {
	if h.desc {
		return h.prices[i] > h.prices[j]
	}
	return h.prices[i] < h.prices[j]
}

func (h priceHeap) Swap(i, j int) {
	h.prices[i], h.prices[j] = h.prices[j], h.prices[i]
	h.index[h.prices[i]] = i
	h.index[h.prices[j]] = j
}

func (h *priceHeap) Push(x interface{}) {
	p := x.(int64)
	h.index[p] = len(h.prices)
	h.prices = append(h.prices, p)
}

func (h *priceHeap) Pop() interface{} {
	old := h.prices
	n := len(old)
	x := old[n-1]
	h.prices = old[0 : n-1]
	delete(h.index, x)
	return x
}

// Peek returns the top element without removing it
func (h priceHeap) Peek() (int64, bool) {
	if len(h.prices) == 0 {
		return 0, false
	}
	return h.prices[0], true
}

// position returns the heap slot holding price.
func (h priceHeap) position(price int64) (int, bool) {
	i, ok := h.index[price]
	return i, ok
}

func (h *priceHeap) reset() {
	h.prices = h.prices[:0]
	h.index = make(map[int64]int)
}
