package orderbook

import (
	"math/rand"
	"testing"
)

// prefill rests one order per level on each side around a 1000/1100 spread.
func prefill(ob *OrderBook, levels, perLevel int) uint64 {
	id := uint64(1)
	for i := 0; i < levels; i++ {
		for j := 0; j < perLevel; j++ {
			_ = ob.Add(id, int64(1000-i), 100, Bid)
			_ = ob.Add(id+1, int64(1100+i), 100, Ask)
			id += 2
		}
	}
	return id
}

// BenchmarkPlaceLimitOrder measures crossing placement against a deep book
func BenchmarkPlaceLimitOrder(b *testing.B) {
	ob := NewOrderBook()
	next := prefill(ob, 100, 1)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		side, price := Bid, int64(1100)
		if i%2 == 0 {
			side, price = Ask, 1000
		}
		_, _ = ob.PlaceLimitOrder(next, price, 1, side)
		next++
		// Replenish the touched levels so the book never empties
		if i%50 == 49 {
			_ = ob.Add(next, 1000, 100, Bid)
			_ = ob.Add(next+1, 1100, 100, Ask)
			next += 2
		}
	}
}

// BenchmarkCancel measures O(1) lookup plus level removal
func BenchmarkCancel(b *testing.B) {
	ob := NewOrderBook()
	for i := 0; i < 1000; i++ {
		_ = ob.Add(uint64(i), int64(1000+i), 100, Bid)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		id := uint64(i % 1000)
		_ = ob.Cancel(id)
		_ = ob.Add(id, int64(1000+id), 100, Bid)
	}
}

// BenchmarkBestPrice measures best bid/ask lookup (heap peek)
func BenchmarkBestPrice(b *testing.B) {
	ob := NewOrderBook()
	prefill(ob, 1000, 1)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = ob.BestBid()
		_, _ = ob.BestAsk()
	}
}

// BenchmarkLevels measures depth aggregation, used by the API and Digest
func BenchmarkLevels(b *testing.B) {
	ob := NewOrderBook()
	prefill(ob, 500, 5)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = ob.BidLevels()
		_ = ob.AskLevels()
	}
}

// BenchmarkReplayMix approximates a feed: 60% adds, 20% cancels, 15% fills,
// 5% trades.
func BenchmarkReplayMix(b *testing.B) {
	ob := NewOrderBook()
	next := prefill(ob, 200, 1)
	rng := rand.New(rand.NewSource(12345))
	resting := make([]uint64, 0, 1024)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r := rng.Float64()
		switch {
		case r < 0.6:
			side, price := Bid, int64(900+rng.Intn(100))
			if rng.Intn(2) == 0 {
				side, price = Ask, int64(1101+rng.Intn(100))
			}
			if ob.Add(next, price, uint32(1+rng.Intn(100)), side) == nil {
				resting = append(resting, next)
			}
			next++
		case r < 0.8 && len(resting) > 0:
			k := rng.Intn(len(resting))
			_ = ob.Cancel(resting[k])
			resting[k] = resting[len(resting)-1]
			resting = resting[:len(resting)-1]
		case r < 0.95 && len(resting) > 0:
			_, _ = ob.Match(resting[rng.Intn(len(resting))], uint32(1+rng.Intn(20)))
		default:
			_, _ = ob.DynamicOrderPlacement(Bid, uint32(1+rng.Intn(20)))
		}
	}
}
