// Package replay feeds a market-by-order event source into an order book.
package replay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/uhyunpark/mbobook/pkg/mbo"
	"github.com/uhyunpark/mbobook/pkg/orderbook"
	"github.com/uhyunpark/mbobook/pkg/telemetry"
)

const (
	DefaultRecordLimit = 100
	DefaultWarnLimit   = 10
)

type Config struct {
	// RecordLimit caps how many events are processed. <= 0 means unlimited.
	RecordLimit int
	// WarnLimit caps how many unknown-action warnings are logged.
	WarnLimit int
	Logger    *zap.Logger
	Metrics   *telemetry.Metrics
}

// Stats summarizes one replay.
type Stats struct {
	Processed      int  `json:"processed"`
	UnknownActions int  `json:"unknown_actions"`
	Rejected       int  `json:"rejected"`
	NoLiquidity    int  `json:"no_liquidity"`
	Trades         int  `json:"trades"`
	Stopped        bool `json:"stopped"`
}

// Driver dispatches events to the book one at a time, in feed order.
// It is not safe for concurrent use; readers go through the book instead.
type Driver struct {
	book    *orderbook.OrderBook
	log     *zap.SugaredLogger
	metrics *telemetry.Metrics

	recordLimit int
	warnLimit   int
	warned      int

	meta    mbo.Metadata
	hasMeta bool
	stats   Stats
}

func NewDriver(book *orderbook.OrderBook, cfg Config) *Driver {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{
		book:        book,
		log:         logger.Sugar().Named("replay"),
		metrics:     cfg.Metrics,
		recordLimit: cfg.RecordLimit,
		warnLimit:   max(cfg.WarnLimit, 0),
	}
}

func (d *Driver) OnMetadata(m mbo.Metadata) {
	d.meta = m
	d.hasMeta = true
	d.log.Infow("metadata",
		"version", m.Version,
		"dataset", m.Dataset,
		"schema", m.Schema,
		"start", time.Unix(0, int64(m.Start)).UTC(),
		"end", time.Unix(0, int64(m.End)).UTC(),
		"limit", m.Limit,
	)
}

// Metadata returns the dataset description, once the source has sent it.
func (d *Driver) Metadata() (mbo.Metadata, bool) { return d.meta, d.hasMeta }

func (d *Driver) Stats() Stats { return d.stats }

// OnEvent dispatches one event. Once the record limit is reached it returns
// mbo.Stop and dispatches nothing further.
func (d *Driver) OnEvent(ev mbo.Event) mbo.KeepGoing {
	if d.limitReached() {
		d.stats.Stopped = true
		return mbo.Stop
	}

	var (
		trades []orderbook.Trade
		err    error
	)
	switch ev.Action {
	case mbo.ActionAdd:
		trades, err = d.book.PlaceLimitOrder(ev.OrderID, ev.Price, ev.Size, ev.Side)
	case mbo.ActionModify:
		err = d.book.Modify(ev.OrderID, ev.Size)
	case mbo.ActionCancel:
		err = d.book.Cancel(ev.OrderID)
	case mbo.ActionClear:
		d.book.Clear()
	case mbo.ActionFill:
		var t orderbook.Trade
		if t, err = d.book.Match(ev.OrderID, ev.Size); err == nil {
			trades = []orderbook.Trade{t}
		}
	case mbo.ActionTrade:
		// The print's side is the aggressor; react on the other side.
		if ev.Side.Valid() {
			trades, err = d.book.DynamicOrderPlacement(ev.Side.Opposite(), ev.Size)
		}
	default:
		// N included: only A/M/C/R/F/T drive the book.
		d.unknown(ev)
	}

	d.stats.Processed++
	d.stats.Trades += len(trades)
	if err != nil {
		d.reject(ev, err)
	}
	if d.metrics != nil {
		d.metrics.EventsProcessed.WithLabelValues(actionLabel(ev.Action)).Inc()
	}
	return mbo.Continue
}

func (d *Driver) limitReached() bool {
	return d.recordLimit > 0 && d.stats.Processed >= d.recordLimit
}

func (d *Driver) unknown(ev mbo.Event) {
	d.stats.UnknownActions++
	if d.metrics != nil {
		d.metrics.UnknownActions.Inc()
	}
	if d.warned < d.warnLimit {
		d.warned++
		d.log.Warnw("unknown_action", "action", string(rune(ev.Action)), "order_id", ev.OrderID, "sequence", ev.Sequence)
	}
}

func (d *Driver) reject(ev mbo.Event, err error) {
	reason := rejectReason(err)
	if errors.Is(err, orderbook.ErrNoLiquidity) {
		d.stats.NoLiquidity++
	} else {
		d.stats.Rejected++
	}
	if d.metrics != nil {
		d.metrics.EventsRejected.WithLabelValues(reason).Inc()
	}
	d.log.Debugw("event_rejected", "action", ev.Action.String(), "order_id", ev.OrderID, "reason", reason, "err", err)
}

// Run replays src to completion, to the record limit or until ctx is done.
// Only source errors are returned; book-level rejections are counted.
func (d *Driver) Run(ctx context.Context, src mbo.Source) (Stats, error) {
	start := time.Now()
	err := src.Replay(ctx, d.OnMetadata, d.OnEvent)
	elapsed := time.Since(start)

	if d.metrics != nil {
		d.metrics.ObserveReplay(elapsed)
		d.metrics.ObserveBook(d.book)
	}
	d.log.Infow("replay_finished",
		"processed", d.stats.Processed,
		"trades", d.stats.Trades,
		"rejected", d.stats.Rejected,
		"no_liquidity", d.stats.NoLiquidity,
		"unknown_actions", d.stats.UnknownActions,
		"stopped", d.stats.Stopped,
		"elapsed", elapsed,
	)
	if err != nil {
		return d.stats, fmt.Errorf("replay: %w", err)
	}
	return d.stats, nil
}

func actionLabel(a mbo.Action) string {
	switch a {
	case mbo.ActionAdd, mbo.ActionModify, mbo.ActionCancel, mbo.ActionClear,
		mbo.ActionFill, mbo.ActionTrade:
		return a.String()
	default:
		return "unknown"
	}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, orderbook.ErrOrderNotFound):
		return "not_found"
	case errors.Is(err, orderbook.ErrInvalidSide):
		return "invalid_side"
	case errors.Is(err, orderbook.ErrDuplicateOrder):
		return "duplicate"
	case errors.Is(err, orderbook.ErrNoLiquidity):
		return "no_liquidity"
	default:
		return "other"
	}
}
