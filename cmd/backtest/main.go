package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/uhyunpark/mbobook/params"
	"github.com/uhyunpark/mbobook/pkg/api"
	"github.com/uhyunpark/mbobook/pkg/orderbook"
	"github.com/uhyunpark/mbobook/pkg/storage"
	"github.com/uhyunpark/mbobook/pkg/telemetry"
	"github.com/uhyunpark/mbobook/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("") // "" means load from .env in current directory
	if len(os.Args) > 1 {
		cfg.Replay.SourcePath = os.Args[1]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, cfg, os.Stdout)
	stop()
	os.Exit(code)
}

// run replays cfg's source, prints the report to out and, with an API address
// set, serves until ctx is done. It returns the process exit code; every
// deferred close has run by the time it returns.
func run(ctx context.Context, cfg params.Config, out io.Writer) int {
	if err := cfg.Validate(); err != nil {
		log.Printf("config: %v", err)
		return 1
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		log.Printf("logger: %v", err)
		return 1
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "level", cfg.Log.Level, "log_file", cfg.Log.File)

	metrics := telemetry.New(logger)

	// ---- Run archive (optional) ----
	var archive storage.Archive
	switch {
	case cfg.Store.Path != "":
		ps, err := storage.NewPebbleStore(cfg.Store.Path)
		if err != nil {
			sugar.Errorw("store_open_failed", "path", cfg.Store.Path, "err", err)
			return 1
		}
		archive = ps
		sugar.Infow("run_archive_opened", "path", cfg.Store.Path)
	case cfg.API.Addr != "":
		// Keep this run queryable over the API even without an archive path.
		archive = storage.NewInMemoryStore()
	}
	if archive != nil {
		defer func() {
			if err := archive.Close(); err != nil {
				sugar.Warnw("archive_close_failed", "err", err)
			}
		}()
	}

	// ---- Book and API ----
	var srv *api.Server
	book := newBook(cfg, logger, func(t orderbook.Trade) {
		metrics.ObserveTrade(t)
		if srv != nil {
			srv.BroadcastTrade(t)
		}
	})

	serveErr := make(chan error, 1)
	if cfg.API.Addr != "" {
		srv = api.NewServer(api.Config{
			Book:           book,
			Archive:        archive,
			Metrics:        metrics,
			Logger:         logger,
			AllowedOrigins: cfg.API.AllowedOrigins,
		})
		go func() { serveErr <- srv.Start(cfg.API.Addr) }()
	}

	// ---- Replay ----
	rec, err := backtest(ctx, cfg, book, backtestDeps{
		Logger:  logger,
		Metrics: metrics,
		Archive: archive,
		Out:     out,
	})
	if err != nil {
		sugar.Errorw("backtest_failed", "source", cfg.Replay.SourcePath, "err", err)
		if srv != nil {
			shutdown(sugar, srv, cfg.API.ShutdownTimeout)
		}
		return 1
	}
	sugar.Infow("backtest_complete", "run_id", rec.ID, "digest", rec.Digest)

	if srv == nil {
		return 0
	}

	// ---- Serve until interrupted ----
	sugar.Infow("serving_until_interrupt", "addr", cfg.API.Addr)
	code := 0
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			sugar.Errorw("api_server_failed", "err", err)
			code = 1
		}
	}
	shutdown(sugar, srv, cfg.API.ShutdownTimeout)
	return code
}

func shutdown(sugar *zap.SugaredLogger, srv *api.Server, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		sugar.Warnw("api_shutdown_failed", "err", err)
	}
}

func newLogger(cfg params.Log) (*zap.Logger, error) {
	if cfg.File != "" {
		return util.NewLoggerWithFile(cfg.File, cfg.Level)
	}
	return util.NewLogger(cfg.Level)
}

func newBook(cfg params.Config, logger *zap.Logger, onTrade func(orderbook.Trade)) *orderbook.OrderBook {
	return orderbook.New(orderbook.Config{
		Logger:          logger,
		Clock:           util.RealClock{},
		Ledger:          orderbook.NewLedger(),
		Cross:           cfg.CrossPolicy(),
		SyntheticIDBase: cfg.Book.SyntheticIDBase,
		OnTrade:         onTrade,
	})
}
