// Command exchanged runs the cross-chain spot exchange: a price-time-
// priority matching engine per configured symbol, held in memory, and a
// settlement orchestrator that escrows and settles matched trades across
// one or two EVM chains.
//
// Architecture:
//
//	main.go                    — entry point: loads config, starts the engine, waits for SIGINT/SIGTERM
//	engine/engine.go           — orchestrator: wires the registry, chain clients, settlement, risk, and API server
//	registry/registry.go       — per-symbol same-chain/cross-chain book lookup, lazily created
//	matching/engine.go         — limit/market order admission, matching, and the trade tape
//	book/                      — price-time-priority tree, FIFO levels, and the order index
//	escrow/ledger.go           — local mirror of on-chain escrow balances and per-order locks
//	settlement/orchestrator.go — same-chain and cross-chain settlement, asymmetric detection, refund/abandon
//	chain/client.go            — EVM RPC client: escrow reads, lock/settle/refund calls, tx signing
//	risk/monitor.go            — settlement-health circuit breaker, halts admission on elevated failure rates
//	store/store.go             — JSON file persistence for replay guards and settlement checkpoints
//	api/                       — form-encoded HTTP surface plus the operator dashboard websocket feed
package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"crosslot/internal/config"
	"crosslot/internal/engine"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("unrecoverable panic", "panic", r)
			os.Exit(2)
		}
	}()

	cfgPath := "configs/config.yaml"
	if p := os.Getenv("XCH_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	eng, err := engine.New(*cfg, logger)
	if err != nil {
		logger.Error("failed to create engine", "error", err)
		os.Exit(1)
	}

	if err := eng.Start(); err != nil {
		logger.Error("failed to start engine", "error", err)
		os.Exit(1)
	}

	logger.Info("exchange started",
		"chains", len(cfg.Chains),
		"symbols", len(cfg.Symbols),
		"dashboard", cfg.Dashboard.Enabled,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	eng.Stop()
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
