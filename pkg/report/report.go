// Package report prints the end-of-replay summary.
package report

import (
	"fmt"
	"io"

	"github.com/uhyunpark/mbobook/pkg/analytics"
	"github.com/uhyunpark/mbobook/pkg/orderbook"
)

// Write prints volume and average price, then the final book and its
// fill counters.
func Write(w io.Writer, s analytics.Summary, book *orderbook.OrderBook) error {
	if _, err := fmt.Fprintf(w, "Total Volume: %d, Average Price: %s\n", s.Volume, s.AveragePrice()); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, "Final Order Book"); err != nil {
		return err
	}
	if err := book.Display(w); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "Filled Orders: %d\nUnfilled Orders: %d\n", book.FilledOrders(), book.UnfilledOrders())
	return err
}
