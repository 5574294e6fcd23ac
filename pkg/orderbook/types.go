package orderbook

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type Side int8

const (
	SideNone Side = 0
	Bid      Side = 1
	Ask      Side = -1
)

// SideFromCode resolves a feed side indicator. Anything other than 'A' or 'B'
// resolves to SideNone, which the book rejects.
func SideFromCode(c byte) Side {
	switch c {
	case 'A':
		return Ask
	case 'B':
		return Bid
	default:
		return SideNone
	}
}

func (s Side) Valid() bool { return s == Bid || s == Ask }

// Opposite returns the contra side. SideNone stays SideNone.
func (s Side) Opposite() Side { return -s }

// Code is the single-letter feed representation ('A', 'B' or 'N').
func (s Side) Code() byte {
	switch s {
	case Ask:
		return 'A'
	case Bid:
		return 'B'
	default:
		return 'N'
	}
}

func (s Side) String() string {
	switch s {
	case Ask:
		return "Ask"
	case Bid:
		return "Bid"
	default:
		return "None"
	}
}

// Order is a resting order. Price is fixed-point (1 unit = 1e-9 of the quote
// currency), Size is the still-unfilled quantity.
type Order struct {
	ID        uint64
	Price     int64
	Size      uint32
	Side      Side
	Timestamp time.Time
}

// Trade records one match against a resting order. Price is always the
// resting order's price.
type Trade struct {
	OrderID uint64 `json:"orderId"`
	Price   int64  `json:"price"`
	Size    uint32 `json:"size"`
}

// Level lists the order ids resting at one price, in arrival order.
type Level struct {
	Price    int64
	OrderIDs []uint64
}

// PriceLevel is aggregated depth at one price.
type PriceLevel struct {
	Price  int64
	Qty    uint64 // total remaining size at this price level
	Orders int
}

// Snapshot is a consistent copy of the whole book.
type Snapshot struct {
	Orders         []Order // sorted by id
	Asks           []Level // best (lowest) first
	Bids           []Level // best (highest) first
	FilledOrders   uint64
	UnfilledOrders uint64
}

// BookView is aggregated depth, best prices, counters and digest read under
// one lock acquisition, so every field describes the same book state.
type BookView struct {
	Bids           []PriceLevel // best (highest) first
	Asks           []PriceLevel // best (lowest) first
	BestBid        int64
	HasBestBid     bool
	BestAsk        int64
	HasBestAsk     bool
	RestingOrders  int
	FilledOrders   uint64
	UnfilledOrders uint64
	Digest         common.Hash
}
