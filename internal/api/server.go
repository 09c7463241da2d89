package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"crosslot/internal/chain"
	"crosslot/internal/config"
	"crosslot/internal/priceproxy"
	"crosslot/internal/registry"
	"crosslot/internal/risk"
	"crosslot/internal/settlement"
	"crosslot/pkg/types"
)

// Server runs the HTTP and WebSocket surface described by the exchange's
// external interface: order admission, cancellation, book and order
// lookups, escrow reads, price passthroughs, settlement status, and the
// operator dashboard feed.
type Server struct {
	cfg      config.DashboardConfig
	fullCfg  config.Config
	hub      *Hub
	handlers *Handlers
	server   *http.Server
	logger   *slog.Logger
}

// NewServer wires every route to its handler and builds the underlying
// http.Server. The dashboard's websocket hub is started by Start.
func NewServer(
	reg *registry.Registry,
	orch *settlement.Orchestrator,
	chains map[types.Network]*chain.Chain,
	prices *priceproxy.Client,
	riskMonitor *risk.Monitor,
	fullCfg config.Config,
	logger *slog.Logger,
) *Server {
	hub := NewHub(logger)
	handlers := NewHandlers(reg, orch, chains, fullCfg, prices, riskMonitor, hub, logger)

	mux := http.NewServeMux()

	mux.HandleFunc("/health", handlers.HandleHealth)
	mux.HandleFunc("/api/snapshot", handlers.HandleSnapshot)
	mux.HandleFunc("/ws", handlers.HandleWebSocket)

	mux.HandleFunc("/register_order", handlers.HandleRegisterOrder)
	mux.HandleFunc("/register_order_cross", handlers.HandleRegisterOrderCross)
	mux.HandleFunc("/cancel_order", handlers.HandleCancelOrder)
	mux.HandleFunc("/orderbook", handlers.HandleOrderbook)
	mux.HandleFunc("/orderbook_cross", handlers.HandleOrderbookCross)
	mux.HandleFunc("/order", handlers.HandleOrderLookup)
	mux.HandleFunc("/get_best_order", handlers.HandleBestOrder)
	mux.HandleFunc("/check_available_funds", handlers.HandleCheckFunds)
	mux.HandleFunc("/api/price", handlers.HandlePrice)
	mux.HandleFunc("/api/kline", handlers.HandleKline)
	mux.HandleFunc("/api/settlement_health", handlers.HandleSettlementHealth)
	mux.HandleFunc("/get_settlement_address", handlers.HandleSettlementAddress)
	mux.HandleFunc("/order_history", handlers.HandleOrderHistory)
	mux.HandleFunc("/order_history_cross", handlers.HandleOrderHistoryCross)

	mux.Handle("/", http.FileServer(http.Dir("web")))

	server := &http.Server{
		Addr:         fullCfg.Server.BindAddress,
		Handler:      recoverMiddleware(logger.With("component", "api-server"), mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		cfg:      fullCfg.Dashboard,
		fullCfg:  fullCfg,
		hub:      hub,
		handlers: handlers,
		server:   server,
		logger:   logger.With("component", "api-server"),
	}
}

// Start runs the websocket hub and the HTTP listener. It blocks until the
// server stops; call Stop from another goroutine (e.g. on signal) to end
// it cleanly.
func (s *Server) Start() error {
	go s.hub.Run()

	s.logger.Info("api server starting", "addr", s.server.Addr)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the HTTP listener, letting in-flight
// requests finish.
func (s *Server) Stop() error {
	s.logger.Info("stopping api server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// BroadcastSnapshot pushes a fresh dashboard snapshot to every connected
// client, used on the periodic snapshot timer.
func (s *Server) BroadcastSnapshot() {
	s.hub.BroadcastSnapshot(BuildSnapshot(s.handlers))
}

// exitProcess terminates the process after a recovered handler panic.
// Overridable in tests so recoverMiddleware's recovery/logging/response
// behavior can be exercised without killing the test binary.
var exitProcess = func() { os.Exit(2) }

// recoverMiddleware is the top-level recover net/http's own per-connection
// recovery doesn't provide: it turns a panicking handler into a 500 for the
// caller and, since a handler panic means process state may be corrupt in
// ways no single request can safely paper over, brings the process down
// with the same exit code main's own top-level recover uses.
func recoverMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("panic in http handler", "panic", rec, "method", r.Method, "path", r.URL.Path)
				http.Error(w, "internal server error", http.StatusInternalServerError)
				exitProcess()
			}
		}()
		next.ServeHTTP(w, r)
	})
}
