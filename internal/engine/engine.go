// Package engine is the central orchestrator of the exchange process.
//
// It wires together every subsystem:
//
//  1. A book registry holds the price-time-priority books (C1-C5),
//     one same-chain and one cross-chain book per configured symbol.
//  2. One chain client per configured network dials its RPC endpoint and
//     exposes escrow reads, lock/settle/refund calls, and a local escrow
//     mirror.
//  3. A settlement orchestrator consumes trades the books produce and
//     drives same-chain or cross-chain settlement to completion.
//  4. A settlement-health monitor watches rejection and abandonment
//     rates and halts new admission when a chain looks unreliable.
//  5. An HTTP/WebSocket API server exposes admission, cancellation,
//     book/order lookups, escrow reads, and the operator dashboard feed.
//
// Lifecycle: New() → Start() → [runs until SIGINT] → Stop()
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"crosslot/internal/api"
	"crosslot/internal/chain"
	"crosslot/internal/config"
	"crosslot/internal/priceproxy"
	"crosslot/internal/registry"
	"crosslot/internal/risk"
	"crosslot/internal/settlement"
	"crosslot/internal/store"
	"crosslot/pkg/types"
)

const snapshotBroadcastInterval = 5 * time.Second

// Engine owns the lifecycle of every subsystem and the background
// goroutines that tie them together: the settlement-health halt watcher
// and the periodic dashboard snapshot broadcaster.
type Engine struct {
	cfg    config.Config
	logger *slog.Logger

	chains       map[types.Network]*chain.Chain
	registry     *registry.Registry
	orchestrator *settlement.Orchestrator
	riskMonitor  *risk.Monitor
	store        *store.Store
	prices       *priceproxy.Client
	apiServer    *api.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New dials every configured chain, opens the checkpoint store, and wires
// the registry, settlement orchestrator, risk monitor, and API server
// around them.
func New(cfg config.Config, logger *slog.Logger) (*Engine, error) {
	ctx, cancel := context.WithCancel(context.Background())

	st, err := store.Open(cfg.Store.DataDir)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("engine: open store: %w", err)
	}

	chains := make(map[types.Network]*chain.Chain, len(cfg.Chains))
	for name, chainCfg := range cfg.Chains {
		c, err := chain.Dial(ctx, name, chainCfg, logger)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("engine: dial chain %s: %w", name, err)
		}
		chains[types.Network(name)] = c
	}

	reg := registry.New(cfg.Symbols, logger)
	riskMonitor := risk.NewMonitor(cfg.Risk, logger)
	orch := settlement.New(chains, cfg.Symbols, cfg.Settlement, st, riskMonitor, logger)
	if err := orch.Resume(); err != nil {
		cancel()
		return nil, fmt.Errorf("engine: resume settlement state: %w", err)
	}
	prices := priceproxy.New(cfg.PriceProxy)

	apiServer := api.NewServer(reg, orch, chains, prices, riskMonitor, cfg, logger)

	return &Engine{
		cfg:          cfg,
		logger:       logger.With("component", "engine"),
		chains:       chains,
		registry:     reg,
		orchestrator: orch,
		riskMonitor:  riskMonitor,
		store:        st,
		prices:       prices,
		apiServer:    apiServer,
		ctx:          ctx,
		cancel:       cancel,
	}, nil
}

// Start launches all background goroutines: the risk monitor, the halt
// watcher that gates the registry, the periodic dashboard broadcaster,
// and the API server's HTTP listener.
func (e *Engine) Start() error {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.riskMonitor.Run(e.ctx)
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.watchHalts()
	}()

	if e.cfg.Dashboard.Enabled {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.broadcastSnapshots()
		}()
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.apiServer.Start(); err != nil {
			e.logger.Error("api server error", "error", err)
		}
	}()

	e.logger.Info("engine started", "chains", len(e.chains), "symbols", len(e.cfg.Symbols))
	return nil
}

// Stop cancels every background goroutine, stops the API server, waits
// for everything to drain, and closes the chain clients and store.
func (e *Engine) Stop() {
	e.logger.Info("shutting down...")

	e.cancel()

	if err := e.apiServer.Stop(); err != nil {
		e.logger.Error("failed to stop api server", "error", err)
	}

	e.wg.Wait()

	for name, c := range e.chains {
		c.Close()
		e.logger.Info("chain client closed", "chain", name)
	}
	e.store.Close()

	e.logger.Info("shutdown complete")
}

// watchHalts reads halt signals off the risk monitor and applies them to
// the registry: every signal halts all trading, whatever its Chain, since
// the registry has no per-chain admission gate of its own.
func (e *Engine) watchHalts() {
	for {
		select {
		case <-e.ctx.Done():
			return
		case sig := <-e.riskMonitor.HaltCh():
			e.logger.Error("trading halt engaged", "chain", sig.Chain, "reason", sig.Reason)
			e.registry.SetHalted(true)

			go e.clearHaltAfterCooldown()
		}
	}
}

// clearHaltAfterCooldown polls the monitor's own cooldown expiry and lifts
// the registry's halt once the monitor reports the halt cleared.
func (e *Engine) clearHaltAfterCooldown() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			if !e.riskMonitor.IsHaltActive() {
				e.registry.SetHalted(false)
				e.logger.Info("trading halt cleared")
				return
			}
		}
	}
}

// broadcastSnapshots pushes a fresh dashboard snapshot to every connected
// client on a fixed interval, giving clients a periodic resync in
// addition to the event-driven pushes handlers emit per trade.
func (e *Engine) broadcastSnapshots() {
	ticker := time.NewTicker(snapshotBroadcastInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.apiServer.BroadcastSnapshot()
		}
	}
}
