package analytics

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/mbobook/pkg/orderbook"
)

func TestSummarize(t *testing.T) {
	trades := []orderbook.Trade{
		{OrderID: 1, Price: 100_250_000_000, Size: 10},
		{OrderID: 2, Price: 100_000_000_000, Size: 30},
		{OrderID: 3, Price: 101_000_000_000, Size: 10},
	}
	s := Summarize(trades)

	require.Equal(t, 3, s.Trades)
	require.Equal(t, uint64(50), s.Volume)
	require.True(t, decimal.RequireFromString("5012.5").Equal(s.Notional), s.Notional.String())
	require.True(t, s.HasVWAP)
	require.True(t, decimal.RequireFromString("100.25").Equal(s.VWAP), s.VWAP.String())
	require.Equal(t, "100.25", s.AveragePrice())
	require.Equal(t, int64(101_000_000_000), s.High)
	require.Equal(t, int64(100_000_000_000), s.Low)
}

func TestSummarizeNoTrades(t *testing.T) {
	s := Summarize(nil)
	require.Zero(t, s.Trades)
	require.Zero(t, s.Volume)
	require.False(t, s.HasVWAP)
	require.True(t, s.Notional.IsZero())
	require.Equal(t, "n/a", s.AveragePrice())
}

func TestSummarizeZeroVolume(t *testing.T) {
	s := Summarize([]orderbook.Trade{{OrderID: 9, Price: 100, Size: 0}})
	require.Equal(t, 1, s.Trades)
	require.False(t, s.HasVWAP)
	require.Equal(t, "n/a", s.AveragePrice())
}

func TestSummarizeNanoPrices(t *testing.T) {
	// Prices below a cent survive: the average is carried at 1e-9 resolution.
	s := Summarize([]orderbook.Trade{
		{OrderID: 1, Price: 1, Size: 1},
		{OrderID: 2, Price: 2, Size: 2},
	})
	require.True(t, decimal.RequireFromString("0.000000002").Equal(s.VWAP), s.VWAP.String())
	require.True(t, decimal.RequireFromString("0.000000005").Equal(s.Notional))
}
