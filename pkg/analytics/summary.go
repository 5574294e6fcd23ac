// Package analytics derives aggregate figures from the trade ledger.
package analytics

import (
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/mbobook/pkg/orderbook"
)

// vwapPlaces keeps the average at the feed's own price resolution.
const vwapPlaces = -orderbook.PriceExponent

type Summary struct {
	Trades   int             `json:"trades"`
	Volume   uint64          `json:"volume"`
	Notional decimal.Decimal `json:"notional"`
	// VWAP is meaningful only when HasVWAP is set, i.e. Volume > 0.
	VWAP    decimal.Decimal `json:"vwap"`
	HasVWAP bool            `json:"has_vwap"`
	High    int64           `json:"high"`
	Low     int64           `json:"low"`
}

// Summarize computes volume, notional and the volume-weighted average price.
// Notional is exact: price is scaled 1e-9 and never goes through a float.
func Summarize(trades []orderbook.Trade) Summary {
	s := Summary{Trades: len(trades), Notional: decimal.Zero, VWAP: decimal.Zero}
	for i, t := range trades {
		s.Volume += uint64(t.Size)
		s.Notional = s.Notional.Add(orderbook.PriceDecimal(t.Price).Mul(decimal.NewFromInt(int64(t.Size))))
		if i == 0 || t.Price > s.High {
			s.High = t.Price
		}
		if i == 0 || t.Price < s.Low {
			s.Low = t.Price
		}
	}
	if s.Volume > 0 {
		s.VWAP = s.Notional.DivRound(decimal.NewFromInt(int64(s.Volume)), vwapPlaces)
		s.HasVWAP = true
	}
	return s
}

// AveragePrice renders the VWAP, or "n/a" when nothing traded.
func (s Summary) AveragePrice() string {
	if !s.HasVWAP {
		return "n/a"
	}
	return s.VWAP.String()
}
