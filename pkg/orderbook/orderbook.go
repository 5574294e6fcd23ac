package orderbook

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/uhyunpark/mbobook/pkg/util"
)

var (
	ErrInvalidSide    = errors.New("invalid side")
	ErrOrderNotFound  = errors.New("order not found")
	ErrDuplicateOrder = errors.New("duplicate order id")
	ErrNoLiquidity    = errors.New("no liquidity on opposite side")
)

// CrossPolicy decides how far an incoming crossing limit order matches.
type CrossPolicy int

const (
	// CrossFirst matches only the first resting order at the best opposite
	// level and stops. The incoming order never rests, whatever is left of it.
	CrossFirst CrossPolicy = iota
	// CrossSweep walks the opposite ladder in price-time order while the
	// incoming order still crosses; any residual rests under the incoming id.
	CrossSweep
)

func (p CrossPolicy) String() string {
	switch p {
	case CrossSweep:
		return "sweep"
	default:
		return "first"
	}
}

func ParseCrossPolicy(s string) (CrossPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "first":
		return CrossFirst, nil
	case "sweep":
		return CrossSweep, nil
	default:
		return CrossFirst, fmt.Errorf("unknown cross policy %q", s)
	}
}

// DefaultSyntheticIDBase starts synthetic ids in the upper half of the id
// space, away from venue-assigned ids.
const DefaultSyntheticIDBase uint64 = 1 << 63

type Config struct {
	Logger *zap.Logger
	Clock  util.Clock
	// Ledger receives every trade. A fresh one is created when nil.
	Ledger *Ledger
	Cross  CrossPolicy
	// SyntheticIDBase is the first id handed out by DynamicOrderPlacement.
	SyntheticIDBase uint64
	// OnTrade is called for each trade after the book lock is released.
	OnTrade func(Trade)
}

// OrderBook is a single-instrument limit order book.
// The order index is the source of truth; ladders only hold ids.
type OrderBook struct {
	mu sync.RWMutex

	log     *zap.SugaredLogger
	clock   util.Clock
	cross   CrossPolicy
	onTrade func(Trade)

	orders map[uint64]*Order
	bids   *ladder
	asks   *ladder
	ledger *Ledger

	filled   uint64
	unfilled uint64

	nextSynthetic uint64
}

func NewOrderBook() *OrderBook {
	return New(Config{})
}

func New(cfg Config) *OrderBook {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = util.RealClock{}
	}
	if cfg.Ledger == nil {
		cfg.Ledger = NewLedger()
	}
	if cfg.SyntheticIDBase == 0 {
		cfg.SyntheticIDBase = DefaultSyntheticIDBase
	}
	return &OrderBook{
		log:           cfg.Logger.Sugar(),
		clock:         cfg.Clock,
		cross:         cfg.Cross,
		onTrade:       cfg.OnTrade,
		orders:        make(map[uint64]*Order),
		bids:          newLadder(Bid),
		asks:          newLadder(Ask),
		ledger:        cfg.Ledger,
		nextSynthetic: cfg.SyntheticIDBase,
	}
}

func (ob *OrderBook) ladderFor(side Side) *ladder {
	if side == Bid {
		return ob.bids
	}
	return ob.asks
}

// crosses reports whether an incoming order at price on side reaches the
// opposite best price.
func crosses(side Side, price, oppositeBest int64) bool {
	if side == Ask {
		return oppositeBest >= price
	}
	return oppositeBest <= price
}

func (ob *OrderBook) notify(trades []Trade) {
	if ob.onTrade == nil {
		return
	}
	for _, t := range trades {
		ob.onTrade(t)
	}
}

// ---- lifecycle ----

// Add rests a new order without attempting to cross.
func (ob *OrderBook) Add(id uint64, price int64, size uint32, side Side) error {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	return ob.addLocked(id, price, size, side)
}

func (ob *OrderBook) addLocked(id uint64, price int64, size uint32, side Side) error {
	if !side.Valid() {
		ob.log.Warnw("invalid_side", "order_id", id, "side", side.String())
		return fmt.Errorf("add order %d: %w", id, ErrInvalidSide)
	}
	if _, exists := ob.orders[id]; exists {
		ob.log.Warnw("duplicate_order", "order_id", id)
		return fmt.Errorf("add order %d: %w", id, ErrDuplicateOrder)
	}

	ob.orders[id] = &Order{
		ID:        id,
		Price:     price,
		Size:      size,
		Side:      side,
		Timestamp: ob.clock.Now(),
	}
	ob.ladderFor(side).push(price, id)
	ob.unfilled++

	ob.log.Debugw("order_added", "order_id", id, "price", price, "size", size, "side", side.String())
	return nil
}

// Modify replaces the remaining size of a resting order. Its ladder position
// and price are untouched.
func (ob *OrderBook) Modify(id uint64, newSize uint32) error {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	o, ok := ob.orders[id]
	if !ok {
		ob.log.Warnw("order_not_found", "op", "modify", "order_id", id)
		return fmt.Errorf("modify order %d: %w", id, ErrOrderNotFound)
	}
	ob.log.Debugw("order_modified", "order_id", id, "old_size", o.Size, "new_size", newSize)
	o.Size = newSize
	return nil
}

func (ob *OrderBook) Cancel(id uint64) error {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	if _, ok := ob.orders[id]; !ok {
		ob.log.Warnw("order_not_found", "op", "cancel", "order_id", id)
		return fmt.Errorf("cancel order %d: %w", id, ErrOrderNotFound)
	}
	ob.cancelLocked(id)
	return nil
}

// cancelLocked assumes id is resting.
func (ob *OrderBook) cancelLocked(id uint64) {
	o := ob.orders[id]
	ob.ladderFor(o.Side).remove(o.Price, id)
	delete(ob.orders, id)
	ob.unfilled--
	ob.log.Debugw("order_canceled", "order_id", id, "price", o.Price, "side", o.Side.String())
}

// Match executes size against the resting order id at that order's price.
// An order whose remaining size is <= size is fully filled and removed.
func (ob *OrderBook) Match(id uint64, size uint32) (Trade, error) {
	ob.mu.Lock()
	t, err := ob.matchLocked(id, size)
	ob.mu.Unlock()
	if err != nil {
		return Trade{}, err
	}
	ob.notify([]Trade{t})
	return t, nil
}

func (ob *OrderBook) matchLocked(id uint64, size uint32) (Trade, error) {
	o, ok := ob.orders[id]
	if !ok {
		ob.log.Warnw("order_not_found", "op", "match", "order_id", id)
		return Trade{}, fmt.Errorf("match order %d: %w", id, ErrOrderNotFound)
	}

	t := Trade{OrderID: id, Price: o.Price, Size: min(o.Size, size)}
	ob.ledger.Append(t)

	if o.Size <= size {
		ob.cancelLocked(id)
		ob.filled++
		ob.log.Debugw("order_filled", "order_id", id, "size", t.Size)
	} else {
		o.Size -= size
		ob.log.Debugw("order_partially_filled", "order_id", id, "matched", t.Size, "remaining", o.Size)
	}
	return t, nil
}

// Clear drops every resting order. The filled counter is cumulative and is
// left alone.
func (ob *OrderBook) Clear() {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	ob.bids.reset()
	ob.asks.reset()
	ob.orders = make(map[uint64]*Order)
	ob.unfilled = 0
	ob.log.Debugw("book_cleared")
}

// PlaceLimitOrder crosses against the opposite side when the price allows it,
// according to the configured CrossPolicy, and rests the order otherwise.
func (ob *OrderBook) PlaceLimitOrder(id uint64, price int64, size uint32, side Side) ([]Trade, error) {
	ob.mu.Lock()
	trades, err := ob.placeLocked(id, price, size, side)
	ob.mu.Unlock()
	ob.notify(trades)
	return trades, err
}

func (ob *OrderBook) placeLocked(id uint64, price int64, size uint32, side Side) ([]Trade, error) {
	if !side.Valid() {
		ob.log.Warnw("invalid_side", "order_id", id, "side", side.String())
		return nil, fmt.Errorf("place order %d: %w", id, ErrInvalidSide)
	}
	if ob.cross == CrossSweep {
		return ob.sweepLocked(id, price, size, side)
	}

	opp := ob.ladderFor(side.Opposite())
	if best, ok := opp.best(); ok && crosses(side, price, best) {
		front, _ := opp.front(best)
		t, err := ob.matchLocked(front, size)
		if err != nil {
			return nil, err
		}
		return []Trade{t}, nil
	}
	return nil, ob.addLocked(id, price, size, side)
}

func (ob *OrderBook) sweepLocked(id uint64, price int64, size uint32, side Side) ([]Trade, error) {
	if _, exists := ob.orders[id]; exists {
		ob.log.Warnw("duplicate_order", "order_id", id)
		return nil, fmt.Errorf("place order %d: %w", id, ErrDuplicateOrder)
	}

	opp := ob.ladderFor(side.Opposite())
	remaining := size
	var trades []Trade
	for remaining > 0 {
		best, ok := opp.best()
		if !ok || !crosses(side, price, best) {
			break
		}
		front, _ := opp.front(best)
		t, err := ob.matchLocked(front, remaining)
		if err != nil {
			return trades, err
		}
		trades = append(trades, t)
		remaining -= t.Size
	}

	if remaining > 0 || len(trades) == 0 {
		if err := ob.addLocked(id, price, remaining, side); err != nil {
			return trades, err
		}
	}
	return trades, nil
}

// DynamicOrderPlacement emulates a marketable order: a side order priced at
// the opposite best. It is a no-op returning ErrNoLiquidity when the opposite
// ladder is empty.
func (ob *OrderBook) DynamicOrderPlacement(side Side, size uint32) ([]Trade, error) {
	ob.mu.Lock()
	trades, err := ob.dynamicLocked(side, size)
	ob.mu.Unlock()
	ob.notify(trades)
	return trades, err
}

func (ob *OrderBook) dynamicLocked(side Side, size uint32) ([]Trade, error) {
	if !side.Valid() {
		ob.log.Warnw("invalid_side", "op", "dynamic", "side", side.String())
		return nil, fmt.Errorf("dynamic order: %w", ErrInvalidSide)
	}
	best, ok := ob.ladderFor(side.Opposite()).best()
	if !ok {
		ob.log.Debugw("dynamic_order_skipped", "side", side.String(), "reason", "empty_opposite_ladder")
		return nil, ErrNoLiquidity
	}
	id := ob.nextSyntheticIDLocked()
	return ob.placeLocked(id, best, size, side)
}

// nextSyntheticIDLocked hands out monotonically increasing ids, skipping any
// id that is currently resting. Ids are never handed out twice.
func (ob *OrderBook) nextSyntheticIDLocked() uint64 {
	for {
		id := ob.nextSynthetic
		ob.nextSynthetic++
		if _, taken := ob.orders[id]; !taken {
			return id
		}
	}
}

// ---- queries ----

func (ob *OrderBook) FilledOrders() uint64 {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.filled
}

func (ob *OrderBook) UnfilledOrders() uint64 {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.unfilled
}

// Len returns the number of resting orders.
func (ob *OrderBook) Len() int {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return len(ob.orders)
}

// Order returns a copy of a resting order.
func (ob *OrderBook) Order(id uint64) (Order, bool) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	o, ok := ob.orders[id]
	if !ok {
		return Order{}, false
	}
	return *o, true
}

func (ob *OrderBook) BestBid() (int64, bool) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.bids.best()
}

func (ob *OrderBook) BestAsk() (int64, bool) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.asks.best()
}

func (ob *OrderBook) Ledger() *Ledger { return ob.ledger }

func (ob *OrderBook) CrossPolicy() CrossPolicy { return ob.cross }

// BidLevels returns aggregated bid depth sorted high to low (best bid first).
func (ob *OrderBook) BidLevels() []PriceLevel {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.depthLocked(ob.bids)
}

// AskLevels returns aggregated ask depth sorted low to high (best ask first).
func (ob *OrderBook) AskLevels() []PriceLevel {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.depthLocked(ob.asks)
}

func (ob *OrderBook) depthLocked(l *ladder) []PriceLevel {
	prices := l.sortedPrices()
	levels := make([]PriceLevel, 0, len(prices))
	for _, p := range prices {
		ids := l.levels[p]
		var total uint64
		for _, id := range ids {
			total += uint64(ob.orders[id].Size)
		}
		levels = append(levels, PriceLevel{Price: p, Qty: total, Orders: len(ids)})
	}
	return levels
}

// View reads depth, best prices, counters and digest together.
func (ob *OrderBook) View() BookView {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	v := BookView{
		Bids:           ob.depthLocked(ob.bids),
		Asks:           ob.depthLocked(ob.asks),
		RestingOrders:  len(ob.orders),
		FilledOrders:   ob.filled,
		UnfilledOrders: ob.unfilled,
		Digest:         ob.digestLocked(),
	}
	v.BestBid, v.HasBestBid = ob.bids.best()
	v.BestAsk, v.HasBestAsk = ob.asks.best()
	return v
}

func (ob *OrderBook) Snapshot() Snapshot {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	orders := make([]Order, 0, len(ob.orders))
	for _, o := range ob.orders {
		orders = append(orders, *o)
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID < orders[j].ID })

	return Snapshot{
		Orders:         orders,
		Asks:           ob.asks.snapshot(),
		Bids:           ob.bids.snapshot(),
		FilledOrders:   ob.filled,
		UnfilledOrders: ob.unfilled,
	}
}
