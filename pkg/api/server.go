package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/mbobook/pkg/analytics"
	"github.com/uhyunpark/mbobook/pkg/orderbook"
	"github.com/uhyunpark/mbobook/pkg/storage"
	"github.com/uhyunpark/mbobook/pkg/telemetry"
)

const (
	ChannelTrades = "trades"

	defaultTradeLimit = 100
	maxTradeLimit     = 10_000
)

type Config struct {
	Book    *orderbook.OrderBook
	Archive storage.Archive // optional
	Metrics *telemetry.Metrics
	Logger  *zap.Logger
	// AllowedOrigins for CORS. Empty allows any origin.
	AllowedOrigins []string
}

// Server handles REST API and WebSocket connections. Every handler reads
// through the book's own lock, so it may run while a replay is in progress.
type Server struct {
	book    *orderbook.OrderBook
	archive storage.Archive
	metrics *telemetry.Metrics
	log     *zap.SugaredLogger
	origins []string

	router *mux.Router
	stream *TradeStream
	http   *http.Server

	tradeSeq atomic.Int64
}

func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sugar := logger.Sugar().Named("api")
	s := &Server{
		book:    cfg.Book,
		archive: cfg.Archive,
		metrics: cfg.Metrics,
		log:     sugar,
		origins: cfg.AllowedOrigins,
		router:  mux.NewRouter(),
		stream:  NewTradeStream(sugar.Named("ws")),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Live book
	api.HandleFunc("/book", s.handleGetBook).Methods("GET")
	api.HandleFunc("/book/levels", s.handleGetLevels).Methods("GET")
	api.HandleFunc("/book/orders/{id}", s.handleGetOrder).Methods("GET")
	api.HandleFunc("/trades", s.handleGetTrades).Methods("GET")
	api.HandleFunc("/summary", s.handleGetSummary).Methods("GET")

	// Archived runs
	api.HandleFunc("/runs", s.handleListRuns).Methods("GET")
	api.HandleFunc("/runs/{id}", s.handleGetRun).Methods("GET")
	api.HandleFunc("/runs/{id}/trades", s.handleGetRunTrades).Methods("GET")

	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	}
	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the router wrapped in the CORS policy.
func (s *Server) Handler() http.Handler {
	origins := s.origins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(s.router)
}

// Start serves until Shutdown. It returns nil after a graceful shutdown.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Infow("server_starting", "addr", addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.stream.Close()
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	v := s.book.View()
	resp := BookSnapshot{
		Bids:           toLevels(v.Bids),
		Asks:           toLevels(v.Asks),
		RestingOrders:  v.RestingOrders,
		FilledOrders:   v.FilledOrders,
		UnfilledOrders: v.UnfilledOrders,
		Digest:         v.Digest.Hex(),
		Timestamp:      time.Now().UnixMilli(),
	}
	if v.HasBestBid {
		resp.BestBid = &v.BestBid
	}
	if v.HasBestAsk {
		resp.BestAsk = &v.BestAsk
	}
	respondJSON(w, resp)
}

func (s *Server) handleGetLevels(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	depth, err := intParam(q.Get("depth"), 0)
	if err != nil || depth < 0 {
		respondError(w, http.StatusBadRequest, "invalid depth", q.Get("depth"))
		return
	}

	var levels []orderbook.PriceLevel
	switch q.Get("side") {
	case "bid", "bids":
		levels = s.book.BidLevels()
	case "ask", "asks":
		levels = s.book.AskLevels()
	default:
		respondError(w, http.StatusBadRequest, "invalid side", "expected bid or ask")
		return
	}
	if depth > 0 && depth < len(levels) {
		levels = levels[:depth]
	}
	respondJSON(w, toLevels(levels))
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order id", err.Error())
		return
	}
	o, ok := s.book.Order(id)
	if !ok {
		respondError(w, http.StatusNotFound, "order not found", "")
		return
	}
	respondJSON(w, OrderInfo{
		ID:           o.ID,
		Price:        o.Price,
		PriceDisplay: orderbook.FormatPrice(o.Price),
		Size:         o.Size,
		Side:         o.Side.String(),
		Timestamp:    o.Timestamp.UnixMilli(),
	})
}

func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid limit", err.Error())
		return
	}
	trades, first := s.book.Ledger().Tail(limit)
	respondJSON(w, toTrades(trades, first))
}

func (s *Server) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	sum := analytics.Summarize(s.book.Ledger().Trades())
	respondJSON(w, SummaryInfo{
		Trades:       sum.Trades,
		Volume:       sum.Volume,
		Notional:     sum.Notional.String(),
		AveragePrice: sum.AveragePrice(),
		High:         sum.High,
		Low:          sum.Low,
	})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		respondJSON(w, []*storage.Run{})
		return
	}
	runs, err := s.archive.ListRuns()
	if err != nil {
		s.log.Errorw("list_runs_failed", "err", err)
		respondError(w, http.StatusInternalServerError, "failed to list runs", "")
		return
	}
	if runs == nil {
		runs = []*storage.Run{}
	}
	respondJSON(w, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.loadRun(w, mux.Vars(r)["id"])
	if !ok {
		return
	}
	respondJSON(w, run)
}

func (s *Server) handleGetRunTrades(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, ok := s.loadRun(w, id); !ok {
		return
	}
	limit, err := limitParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid limit", err.Error())
		return
	}
	offset, err := intParam(r.URL.Query().Get("offset"), 0)
	if err != nil || offset < 0 {
		respondError(w, http.StatusBadRequest, "invalid offset", r.URL.Query().Get("offset"))
		return
	}
	trades, err := s.archive.LoadTrades(id, offset, limit)
	if err != nil {
		s.log.Errorw("load_trades_failed", "run_id", id, "err", err)
		respondError(w, http.StatusInternalServerError, "failed to load trades", "")
		return
	}
	respondJSON(w, toTrades(trades, offset))
}

func (s *Server) loadRun(w http.ResponseWriter, id string) (*storage.Run, bool) {
	if s.archive == nil {
		respondError(w, http.StatusNotFound, "run not found", "archive disabled")
		return nil, false
	}
	run, err := s.archive.LoadRun(id)
	if err != nil {
		s.log.Errorw("load_run_failed", "run_id", id, "err", err)
		respondError(w, http.StatusInternalServerError, "failed to load run", "")
		return nil, false
	}
	if run == nil {
		respondError(w, http.StatusNotFound, "run not found", id)
		return nil, false
	}
	return run, true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Broadcast Methods (called from the replay thread)
// ==============================

// BroadcastTrade pushes a trade to "trades" subscribers. It never blocks on
// slow clients and is suitable as an orderbook OnTrade hook.
func (s *Server) BroadcastTrade(t orderbook.Trade) {
	seq := int(s.tradeSeq.Add(1) - 1)
	s.stream.Publish(ChannelTrades, TradeUpdate{
		Type:      "trade",
		TradeInfo: toTrade(t, seq),
	})
}

// ==============================
// Helper Functions
// ==============================

func toLevels(levels []orderbook.PriceLevel) []PriceLevel {
	out := make([]PriceLevel, len(levels))
	for i, l := range levels {
		out[i] = PriceLevel{
			Price:        l.Price,
			PriceDisplay: orderbook.FormatPrice(l.Price),
			Size:         l.Qty,
			Orders:       l.Orders,
		}
	}
	return out
}

func toTrade(t orderbook.Trade, seq int) TradeInfo {
	return TradeInfo{
		Seq:          seq,
		OrderID:      t.OrderID,
		Price:        t.Price,
		PriceDisplay: orderbook.FormatPrice(t.Price),
		Size:         t.Size,
	}
}

func toTrades(trades []orderbook.Trade, firstSeq int) []TradeInfo {
	out := make([]TradeInfo, len(trades))
	for i, t := range trades {
		out[i] = toTrade(t, firstSeq+i)
	}
	return out
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func limitParam(r *http.Request) (int, error) {
	limit, err := intParam(r.URL.Query().Get("limit"), defaultTradeLimit)
	if err != nil {
		return 0, err
	}
	if limit <= 0 || limit > maxTradeLimit {
		return 0, errors.New("limit must be between 1 and 10000")
	}
	return limit, nil
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
