package replay

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/uhyunpark/mbobook/pkg/mbo"
	"github.com/uhyunpark/mbobook/pkg/orderbook"
	"github.com/uhyunpark/mbobook/pkg/telemetry"
)

func add(id uint64, price int64, size uint32, side orderbook.Side) mbo.Event {
	return mbo.Event{OrderID: id, Price: price, Size: size, Side: side, Action: mbo.ActionAdd}
}

func ev(action mbo.Action, id uint64, size uint32, side orderbook.Side) mbo.Event {
	return mbo.Event{OrderID: id, Size: size, Side: side, Action: action}
}

func run(t *testing.T, d *Driver, events ...mbo.Event) Stats {
	t.Helper()
	stats, err := d.Run(context.Background(), &mbo.SliceSource{Meta: mbo.Metadata{Dataset: "TEST"}, Events: events})
	require.NoError(t, err)
	return stats
}

func TestEndToEnd(t *testing.T) {
	book := orderbook.NewOrderBook()
	d := NewDriver(book, Config{RecordLimit: DefaultRecordLimit})

	stats := run(t, d,
		add(1, 100, 10, orderbook.Ask),
		add(2, 99, 20, orderbook.Bid),
		ev(mbo.ActionFill, 1, 5, orderbook.Ask),
	)

	require.Equal(t, 3, stats.Processed)
	require.Equal(t, 1, stats.Trades)
	require.False(t, stats.Stopped)
	require.Equal(t, []orderbook.Trade{{OrderID: 1, Price: 100, Size: 5}}, book.Ledger().Trades())

	o, ok := book.Order(1)
	require.True(t, ok)
	require.Equal(t, uint32(5), o.Size)
	require.Equal(t, uint64(2), book.UnfilledOrders())
	require.Equal(t, uint64(0), book.FilledOrders())

	meta, ok := d.Metadata()
	require.True(t, ok)
	require.Equal(t, "TEST", meta.Dataset)
}

func TestDispatch(t *testing.T) {
	book := orderbook.NewOrderBook()
	d := NewDriver(book, Config{})

	run(t, d,
		add(1, 100, 10, orderbook.Ask),
		add(2, 99, 20, orderbook.Bid),
		ev(mbo.ActionModify, 2, 15, orderbook.Bid),
		ev(mbo.ActionCancel, 1, 0, orderbook.Ask),
	)
	o, ok := book.Order(2)
	require.True(t, ok)
	require.Equal(t, uint32(15), o.Size)
	_, ok = book.Order(1)
	require.False(t, ok)

	run(t, d, ev(mbo.ActionClear, 0, 0, orderbook.SideNone))
	require.Equal(t, 0, book.Len())
	require.Equal(t, uint64(0), book.UnfilledOrders())
}

func TestAddThatCrossesMatches(t *testing.T) {
	book := orderbook.NewOrderBook()
	d := NewDriver(book, Config{})

	stats := run(t, d,
		add(1, 100, 10, orderbook.Ask),
		add(2, 101, 4, orderbook.Bid),
	)
	require.Equal(t, 1, stats.Trades)
	require.Equal(t, []orderbook.Trade{{OrderID: 1, Price: 100, Size: 4}}, book.Ledger().Trades())
	_, ok := book.Order(2)
	require.False(t, ok, "crossing order must not rest under the first-match policy")
}

func TestTradeReactsOnOppositeSide(t *testing.T) {
	t.Run("bid aggressor hits best bid", func(t *testing.T) {
		book := orderbook.NewOrderBook()
		d := NewDriver(book, Config{})
		stats := run(t, d,
			add(1, 100, 10, orderbook.Ask),
			add(2, 99, 20, orderbook.Bid),
			ev(mbo.ActionTrade, 0, 3, orderbook.Bid),
		)
		require.Equal(t, 1, stats.Trades)
		require.Equal(t, []orderbook.Trade{{OrderID: 2, Price: 99, Size: 3}}, book.Ledger().Trades())
	})

	t.Run("ask aggressor lifts best ask", func(t *testing.T) {
		book := orderbook.NewOrderBook()
		d := NewDriver(book, Config{})
		run(t, d,
			add(1, 100, 10, orderbook.Ask),
			add(2, 99, 20, orderbook.Bid),
			ev(mbo.ActionTrade, 0, 10, orderbook.Ask),
		)
		require.Equal(t, []orderbook.Trade{{OrderID: 1, Price: 100, Size: 10}}, book.Ledger().Trades())
		require.Equal(t, uint64(1), book.FilledOrders())
	})

	t.Run("side none is ignored", func(t *testing.T) {
		book := orderbook.NewOrderBook()
		d := NewDriver(book, Config{})
		stats := run(t, d,
			add(1, 100, 10, orderbook.Ask),
			ev(mbo.ActionTrade, 0, 10, orderbook.SideNone),
		)
		require.Equal(t, 2, stats.Processed)
		require.Zero(t, stats.Trades)
		require.Zero(t, stats.Rejected)
	})

	t.Run("empty opposite ladder", func(t *testing.T) {
		book := orderbook.NewOrderBook()
		d := NewDriver(book, Config{})
		stats := run(t, d, ev(mbo.ActionTrade, 0, 10, orderbook.Ask))
		require.Equal(t, 1, stats.NoLiquidity)
		require.Zero(t, stats.Rejected)
		require.Zero(t, book.Len())
	})
}

func TestRecordLimit(t *testing.T) {
	book := orderbook.NewOrderBook()
	d := NewDriver(book, Config{RecordLimit: 3})

	stats := run(t, d,
		add(1, 100, 1, orderbook.Ask),
		add(2, 101, 1, orderbook.Ask),
		add(3, 102, 1, orderbook.Ask),
		add(4, 103, 1, orderbook.Ask),
		add(5, 104, 1, orderbook.Ask),
	)
	require.Equal(t, 3, stats.Processed)
	require.True(t, stats.Stopped)
	require.Equal(t, 3, book.Len())
	_, ok := book.Order(4)
	require.False(t, ok)

	require.Equal(t, mbo.Stop, d.OnEvent(add(6, 105, 1, orderbook.Ask)))
}

func TestUnlimited(t *testing.T) {
	events := make([]mbo.Event, 250)
	for i := range events {
		events[i] = add(uint64(i+1), int64(1000+i), 1, orderbook.Ask)
	}
	book := orderbook.NewOrderBook()
	stats := run(t, NewDriver(book, Config{RecordLimit: 0}), events...)
	require.Equal(t, 250, stats.Processed)
	require.False(t, stats.Stopped)
	require.Equal(t, 250, book.Len())
}

func TestUnknownActionWarningCap(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	book := orderbook.NewOrderBook()
	d := NewDriver(book, Config{WarnLimit: DefaultWarnLimit, Logger: zap.New(core)})

	events := make([]mbo.Event, 15)
	for i := range events {
		events[i] = ev(mbo.Action('Z'), uint64(i), 1, orderbook.Bid)
	}
	stats := run(t, d, events...)

	require.Equal(t, 15, stats.Processed)
	require.Equal(t, 15, stats.UnknownActions)
	require.Equal(t, DefaultWarnLimit, logs.FilterMessage("unknown_action").Len())
	require.Zero(t, book.Len())
}

func TestNoneActionCountsAsUnknown(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	m := telemetry.New(nil)
	d := NewDriver(orderbook.NewOrderBook(), Config{WarnLimit: DefaultWarnLimit, Logger: zap.New(core), Metrics: m})

	stats := run(t, d, ev(mbo.ActionNone, 0, 0, orderbook.SideNone))

	require.Equal(t, 1, stats.Processed)
	require.Equal(t, 1, stats.UnknownActions)
	warned := logs.FilterMessage("unknown_action").All()
	require.Len(t, warned, 1)
	require.Equal(t, "N", warned[0].ContextMap()["action"])
	require.Equal(t, 1.0, testutil.ToFloat64(m.EventsProcessed.WithLabelValues("unknown")))
}

func TestNoneActionUsesWarningBudget(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	d := NewDriver(orderbook.NewOrderBook(), Config{WarnLimit: 2, Logger: zap.New(core)})

	stats := run(t, d,
		ev(mbo.ActionNone, 1, 0, orderbook.SideNone),
		ev(mbo.ActionNone, 2, 0, orderbook.SideNone),
		ev(mbo.Action('Z'), 3, 1, orderbook.Bid),
	)

	require.Equal(t, 3, stats.UnknownActions)
	warned := logs.FilterMessage("unknown_action").All()
	require.Len(t, warned, 2)
	for _, e := range warned {
		require.Equal(t, "N", e.ContextMap()["action"])
	}
}

func TestRejectionsAreCounted(t *testing.T) {
	m := telemetry.New(nil)
	book := orderbook.NewOrderBook()
	d := NewDriver(book, Config{Metrics: m})

	stats := run(t, d,
		add(1, 100, 10, orderbook.Ask),
		add(1, 101, 10, orderbook.Ask),
		add(2, 100, 10, orderbook.SideNone),
		ev(mbo.ActionCancel, 42, 0, orderbook.Bid),
		ev(mbo.ActionModify, 43, 1, orderbook.Bid),
		ev(mbo.ActionFill, 44, 1, orderbook.Bid),
	)

	require.Equal(t, 6, stats.Processed)
	require.Equal(t, 5, stats.Rejected)
	require.Equal(t, 1, book.Len())

	require.Equal(t, 3.0, testutil.ToFloat64(m.EventsProcessed.WithLabelValues("add")))
	require.Equal(t, 3.0, testutil.ToFloat64(m.EventsRejected.WithLabelValues("not_found")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.EventsRejected.WithLabelValues("duplicate")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.EventsRejected.WithLabelValues("invalid_side")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.RestingOrders))
}

type failingSource struct{ err error }

func (s failingSource) Replay(_ context.Context, onMeta func(mbo.Metadata), _ func(mbo.Event) mbo.KeepGoing) error {
	onMeta(mbo.Metadata{})
	return s.err
}

func TestSourceErrorIsReturned(t *testing.T) {
	boom := errors.New("disk on fire")
	d := NewDriver(orderbook.NewOrderBook(), Config{})
	_, err := d.Run(context.Background(), failingSource{err: boom})
	require.ErrorIs(t, err, boom)
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := NewDriver(orderbook.NewOrderBook(), Config{})
	stats, err := d.Run(ctx, &mbo.SliceSource{Events: []mbo.Event{add(1, 100, 1, orderbook.Ask)}})
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, stats.Processed)
}
