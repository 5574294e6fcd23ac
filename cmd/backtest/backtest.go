package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/uhyunpark/mbobook/params"
	"github.com/uhyunpark/mbobook/pkg/analytics"
	"github.com/uhyunpark/mbobook/pkg/dbn"
	"github.com/uhyunpark/mbobook/pkg/orderbook"
	"github.com/uhyunpark/mbobook/pkg/replay"
	"github.com/uhyunpark/mbobook/pkg/report"
	"github.com/uhyunpark/mbobook/pkg/storage"
	"github.com/uhyunpark/mbobook/pkg/telemetry"
)

type backtestDeps struct {
	Logger  *zap.Logger
	Metrics *telemetry.Metrics
	Archive storage.Archive // nil skips archiving
	Out     io.Writer
}

// backtest replays the configured source into book, prints the report and
// archives the run. Errors opening or reading the source are returned.
func backtest(ctx context.Context, cfg params.Config, book *orderbook.OrderBook, deps backtestDeps) (*storage.Run, error) {
	sugar := deps.Logger.Sugar()
	run := &storage.Run{
		ID:          uuid.NewString(),
		Source:      cfg.Replay.SourcePath,
		CrossPolicy: book.CrossPolicy().String(),
		RecordLimit: cfg.Replay.RecordLimit,
		StartedAt:   time.Now().UTC(),
	}

	src, err := dbn.Open(cfg.Replay.SourcePath)
	if err != nil {
		return nil, err
	}
	defer src.Close()
	sugar.Infow("replay_starting", "run_id", run.ID, "source", run.Source, "record_limit", run.RecordLimit, "cross_policy", run.CrossPolicy)

	driver := replay.NewDriver(book, replay.Config{
		RecordLimit: cfg.Replay.RecordLimit,
		WarnLimit:   cfg.Replay.WarnLimit,
		Logger:      deps.Logger,
		Metrics:     deps.Metrics,
	})
	stats, err := driver.Run(ctx, src)
	if err != nil {
		return nil, err
	}
	if skipped := src.Skipped(); skipped > 0 {
		sugar.Infow("non_mbo_records_skipped", "count", skipped)
	}

	trades := book.Ledger().Trades()
	summary := analytics.Summarize(trades)
	if err := report.Write(deps.Out, summary, book); err != nil {
		return nil, fmt.Errorf("write report: %w", err)
	}

	if meta, ok := driver.Metadata(); ok {
		run.Dataset = meta.Dataset
	}
	run.FinishedAt = time.Now().UTC()
	run.Stats = stats
	run.Summary = summary
	run.Filled = book.FilledOrders()
	run.Unfilled = book.UnfilledOrders()
	run.Digest = book.Digest().Hex()

	if deps.Archive != nil {
		if err := deps.Archive.SaveTrades(run.ID, trades); err != nil {
			return nil, fmt.Errorf("archive trades: %w", err)
		}
		if err := deps.Archive.SaveRun(run); err != nil {
			return nil, fmt.Errorf("archive run: %w", err)
		}
		sugar.Infow("run_archived", "run_id", run.ID, "trades", len(trades))
	}
	return run, nil
}
