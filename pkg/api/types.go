package api

// API response types for REST endpoints and WebSocket messages

// ==============================
// REST Response Types
// ==============================

// PriceLevel is one aggregated level of the book
type PriceLevel struct {
	Price        int64  `json:"price"`        // Fixed-point, 1e-9
	PriceDisplay string `json:"priceDisplay"` // e.g. "$100.25"
	Size         uint64 `json:"size"`         // Sum of resting sizes
	Orders       int    `json:"orders"`
}

// BookSnapshot represents current order book state
type BookSnapshot struct {
	Bids           []PriceLevel `json:"bids"` // Sorted high to low
	Asks           []PriceLevel `json:"asks"` // Sorted low to high
	BestBid        *int64       `json:"bestBid,omitempty"`
	BestAsk        *int64       `json:"bestAsk,omitempty"`
	RestingOrders  int          `json:"restingOrders"`
	FilledOrders   uint64       `json:"filledOrders"`
	UnfilledOrders uint64       `json:"unfilledOrders"`
	Digest         string       `json:"digest"`
	Timestamp      int64        `json:"timestamp"` // Unix milliseconds
}

// OrderInfo represents one resting order
type OrderInfo struct {
	ID           uint64 `json:"id"`
	Price        int64  `json:"price"`
	PriceDisplay string `json:"priceDisplay"`
	Size         uint32 `json:"size"`
	Side         string `json:"side"` // "Bid" or "Ask"
	Timestamp    int64  `json:"timestamp"`
}

// TradeInfo represents one ledger entry
type TradeInfo struct {
	Seq          int    `json:"seq"` // Position in the ledger
	OrderID      uint64 `json:"orderId"`
	Price        int64  `json:"price"`
	PriceDisplay string `json:"priceDisplay"`
	Size         uint32 `json:"size"`
}

// SummaryInfo is the aggregate of the live ledger
type SummaryInfo struct {
	Trades       int    `json:"trades"`
	Volume       uint64 `json:"volume"`
	Notional     string `json:"notional"`
	AveragePrice string `json:"averagePrice"` // "n/a" when nothing traded
	High         int64  `json:"high"`
	Low          int64  `json:"low"`
}

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest is sent by clients to manage subscriptions
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // e.g. ["trades"]
}

// WSAck answers every subscription request with the client's active channels
type WSAck struct {
	Type     string   `json:"type"` // "subscriptions"
	Channels []string `json:"channels"`
}

// TradeUpdate is pushed to the "trades" channel for every execution
type TradeUpdate struct {
	Type string `json:"type"` // "trade"
	TradeInfo
}
