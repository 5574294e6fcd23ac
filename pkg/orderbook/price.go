package orderbook

import "github.com/shopspring/decimal"

// PriceExponent is the decimal exponent of fixed-point prices: 1 unit = 1e-9.
const PriceExponent = -9

// PriceDecimal converts a fixed-point price to an exact decimal amount of the
// quote currency. Presentation only; the book never compares decimals.
func PriceDecimal(p int64) decimal.Decimal {
	return decimal.New(p, PriceExponent)
}

// FormatPrice renders a fixed-point price as dollars with two decimals.
func FormatPrice(p int64) string {
	return "$" + PriceDecimal(p).StringFixed(2)
}
