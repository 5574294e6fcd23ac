package orderbook

import (
	"bufio"
	"fmt"
	"io"
)

// Display writes every resting order followed by the ask and bid levels.
func (ob *OrderBook) Display(w io.Writer) error {
	snap := ob.Snapshot()
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "Orders: (Total: %d)\n", len(snap.Orders))
	if len(snap.Orders) == 0 {
		fmt.Fprintln(bw, "No orders in the order book.")
	}
	for _, o := range snap.Orders {
		fmt.Fprintf(bw, "Order ID: %d, Price: %s, Size: %d, Side: %c\n",
			o.ID, FormatPrice(o.Price), o.Size, o.Side.Code())
	}

	writeLevels(bw, "Asks", "ask", snap.Asks)
	writeLevels(bw, "Bids", "bid", snap.Bids)

	return bw.Flush()
}

func writeLevels(w io.Writer, title, name string, levels []Level) {
	fmt.Fprintf(w, "%s: (Total Price Levels: %d)\n", title, len(levels))
	if len(levels) == 0 {
		fmt.Fprintf(w, "No %s levels in the order book.\n", name)
		return
	}
	for _, lvl := range levels {
		fmt.Fprintf(w, "Price: %s | Orders:", FormatPrice(lvl.Price))
		for _, id := range lvl.OrderIDs {
			fmt.Fprintf(w, " %d", id)
		}
		fmt.Fprintln(w)
	}
}
