// Package settlement implements the settlement orchestrator (C7): the
// pre-admission escrow check every order passes before it reaches the
// book, and the state machine that drives each produced trade to
// Settled, Refunded, or Abandoned across one or two chains.
//
// Dispatch hands a trade off to a background goroutine modeled as an
// explicit state machine over a Record rather than a promise chain — the
// same "pull pending work, advance it, checkpoint" shape the teacher uses
// for its order-lifecycle workers, here driving on-chain settlement
// instead of exchange order state.
package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"crosslot/internal/apierr"
	"crosslot/internal/chain"
	"crosslot/internal/config"
	"crosslot/internal/risk"
	"crosslot/internal/store"
	"crosslot/pkg/types"
)

// Orchestrator drives settlement for every trade the matching engine
// produces and performs the pre-admission escrow check every order
// passes through before it reaches a book.
type Orchestrator struct {
	chains  map[types.Network]*chain.Chain
	symbols map[string]config.SymbolConfig
	cfg     config.SettlementConfig

	store  *store.Store
	risk   *risk.Monitor
	logger *slog.Logger

	mu          sync.Mutex
	records     map[uint64]*Record
	replayGuard map[string]bool
}

// New creates an orchestrator. chains must contain one entry per network
// named in any symbol's address table; symbols is the same configuration
// table the book registry uses for tick/address resolution.
func New(chains map[types.Network]*chain.Chain, symbols map[string]config.SymbolConfig, cfg config.SettlementConfig, st *store.Store, riskMonitor *risk.Monitor, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		chains:      chains,
		symbols:     symbols,
		cfg:         cfg,
		store:       st,
		risk:        riskMonitor,
		logger:      logger.With("component", "settlement"),
		records:     make(map[uint64]*Record),
		replayGuard: make(map[string]bool),
	}
}

// Resume reloads the replay guard and every settlement record checkpointed
// before the last shutdown, called once on startup before the orchestrator
// accepts new trades. A record that had already reached a terminal status
// (Settled, Refunded, Abandoned) is restored as-is so Lookup keeps
// reporting it correctly. A record still in flight (Pending or
// AsymmetricSettlement) cannot be safely re-driven: the checkpoint DTO
// keeps only each leg's settled/refunded flags, not the trade's
// price/quantity/token terms a retry or refund call would need, so it is
// marked Abandoned and logged loudly for an operator to reconcile by hand
// against on-chain state.
func (o *Orchestrator) Resume() error {
	if o.store == nil {
		return nil
	}

	guard, err := o.store.LoadReplayGuard()
	if err != nil {
		return fmt.Errorf("settlement: load replay guard: %w", err)
	}
	dtos, err := o.store.ListSettlementRecords()
	if err != nil {
		return fmt.Errorf("settlement: list settlement records: %w", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.replayGuard = guard

	for _, dto := range dtos {
		rec := &Record{
			OrderID:        dto.OrderID,
			Status:         types.SettlementStatus(dto.Status),
			SourceSettled:  dto.SourceSettled,
			DestSettled:    dto.DestSettled,
			Refunded:       dto.Refunded,
			SourceAttempts: dto.Attempts,
		}

		switch rec.Status {
		case types.StatusSettled, types.StatusRefunded, types.StatusAbandoned:
			// terminal: restore as checkpointed.
		default:
			o.logger.Error("settlement record was in flight at last shutdown, marking abandoned",
				"order_id", rec.OrderID, "checkpointed_status", dto.Status)
			rec.Status = types.StatusAbandoned
			rec.LastError = "process restarted mid-settlement; trade terms not retained for safe resume"
			o.checkpointLocked(rec)
		}

		o.records[rec.OrderID] = rec
	}

	o.logger.Info("settlement state resumed", "records", len(dtos), "replay_guard_entries", len(guard))
	return nil
}

// CheckEscrow performs the pre-admission check required before an order
// reaches the book: the submitter's available balance of the relevant
// asset on from_network must cover the required amount. Per the
// canonical resolution of the source's ambiguous chain-selection logic,
// this always reads from_network, for both bid and ask.
func (o *Orchestrator) CheckEscrow(account types.Address, symbol string, side types.Side, fromNetwork types.Network, price, quantity decimal.Decimal) error {
	symCfg, ok := o.symbols[symbol]
	if !ok {
		return apierr.New(apierr.Validation, fmt.Sprintf("unknown symbol %q", symbol))
	}
	addrs, ok := symCfg.Addresses[string(fromNetwork)]
	if !ok {
		return apierr.New(apierr.ConfigError, fmt.Sprintf("symbol %q has no token addresses configured for network %q", symbol, fromNetwork))
	}
	c, ok := o.chains[fromNetwork]
	if !ok {
		return apierr.New(apierr.ConfigError, fmt.Sprintf("no chain client configured for network %q", fromNetwork))
	}

	var token string
	var required decimal.Decimal
	if side == types.Ask {
		token = addrs.BaseToken
		required = quantity
	} else {
		token = addrs.QuoteToken
		required = quantity.Mul(price)
	}

	if !c.Ledger.Available(account, token, required) {
		o.reportRisk(string(fromNetwork), risk.EventInsufficientEscrow)
		return apierr.New(apierr.InsufficientEscrow, fmt.Sprintf("account %s has insufficient available %s on %s", account, token, fromNetwork))
	}
	o.reportRisk(string(fromNetwork), risk.EventAdmissionOK)
	return nil
}

// Dispatch builds the canonical trade descriptor for a produced trade and
// starts driving it to a terminal state in the background. It returns the
// record's initial state immediately; the caller (the API layer) reports
// this as settlement_info and the final state is queryable later via
// Lookup.
func (o *Orchestrator) Dispatch(trade types.Trade, symbol string) (Summary, error) {
	symCfg, ok := o.symbols[symbol]
	if !ok {
		return Summary{}, apierr.New(apierr.Validation, fmt.Sprintf("unknown symbol %q", symbol))
	}

	askParty, bidParty := roleParties(trade)
	sameChain := askParty.FromNetwork == askParty.ToNetwork &&
		bidParty.FromNetwork == bidParty.ToNetwork &&
		askParty.FromNetwork == bidParty.FromNetwork

	rec := &Record{
		OrderID:       trade.Taker.OrderID,
		CorrelationID: uuid.NewString(),
		Symbol:        symbol,
		CrossChain:    !sameChain,
		SourceNetwork: askParty.FromNetwork,
		DestNetwork:   bidParty.FromNetwork,
		Trade: chain.SettlementTrade{
			Maker:    trade.Maker.Account,
			Taker:    trade.Taker.Account,
			Price:    trade.Price,
			Quantity: trade.Quantity,
			Nonce1:   trade.Maker.OrderID,
			Nonce2:   trade.Taker.OrderID,
			OrderID:  trade.Taker.OrderID,
		},
		Status:    types.StatusPending,
		CreatedAt: time.Now(),
	}

	o.mu.Lock()
	o.records[rec.OrderID] = rec
	o.mu.Unlock()
	o.checkpoint(rec)

	if sameChain {
		go o.runSameChain(rec, trade, askParty, bidParty, symCfg)
	} else {
		go o.runCrossChain(rec, trade, askParty, bidParty, symCfg)
	}

	return rec.Summary(), nil
}

// Lookup returns the current state of a settlement record by order id.
func (o *Orchestrator) Lookup(orderID uint64) (Summary, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	rec, ok := o.records[orderID]
	if !ok {
		return Summary{}, false
	}
	return rec.Summary(), true
}

// roleParties returns (askParty, bidParty) regardless of which was maker
// or taker in the match.
func roleParties(trade types.Trade) (types.Party, types.Party) {
	if trade.Maker.Side == types.Ask {
		return trade.Maker, trade.Taker
	}
	return trade.Taker, trade.Maker
}

func tokenAddrs(symCfg config.SymbolConfig, network types.Network) (base, quote string, err error) {
	addrs, ok := symCfg.Addresses[string(network)]
	if !ok {
		return "", "", fmt.Errorf("no token addresses configured for network %q", network)
	}
	return addrs.BaseToken, addrs.QuoteToken, nil
}

// runSameChain settles a trade whose legs both land on one chain via a
// single atomic contract call.
func (o *Orchestrator) runSameChain(rec *Record, trade types.Trade, askParty, bidParty types.Party, symCfg config.SymbolConfig) {
	baseToken, quoteToken, err := tokenAddrs(symCfg, rec.SourceNetwork)
	if err != nil {
		o.abandon(rec, err.Error())
		return
	}
	c, ok := o.chains[rec.SourceNetwork]
	if !ok {
		o.abandon(rec, fmt.Sprintf("no chain client for network %q", rec.SourceNetwork))
		return
	}

	st := chain.SettlementTrade{
		Maker:        trade.Maker.Account,
		Taker:        trade.Taker.Account,
		BaseToken:    baseToken,
		QuoteToken:   quoteToken,
		BaseDecimals: symCfg.BaseDecimals,
		QuoteDecimals: symCfg.QuoteDecimals,
		Price:      trade.Price,
		Quantity:   trade.Quantity,
		Nonce1:     trade.Maker.OrderID,
		Nonce2:     trade.Taker.OrderID,
		OrderID:    rec.OrderID,
		Debits: []chain.MirrorDebit{
			{Account: askParty.Account, Token: baseToken, Amount: trade.Quantity},
			{Account: bidParty.Account, Token: quoteToken, Amount: trade.Quantity.Mul(trade.Price)},
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.AbandonAfter)
	defer cancel()

	err = o.retry(ctx, &rec.SourceAttempts, func(ctx context.Context) error {
		return c.SettleSameChain(ctx, st)
	})

	o.mu.Lock()
	defer o.mu.Unlock()
	if err != nil {
		rec.LastError = err.Error()
		rec.Status = types.StatusAbandoned
		o.logger.Error("same-chain settlement abandoned", "order_id", rec.OrderID, "error", err)
		o.reportRisk(string(rec.SourceNetwork), risk.EventAbandoned)
		_ = c.ReportFailure(context.Background(), rec.OrderID, 0, true, err.Error())
	} else {
		rec.SourceSettled = true
		rec.DestSettled = true
		rec.SourceTime = time.Now()
		rec.DestTime = rec.SourceTime
		rec.Status = types.StatusSettled
		o.reportRisk(string(rec.SourceNetwork), risk.EventSettled)
	}
	o.checkpointLocked(rec)
}

// runCrossChain drives both legs of a cross-chain trade concurrently,
// then reconciles: both settled is Settled, exactly one settled is
// AsymmetricSettlement followed by a refund of the successful leg, and
// neither settled leaves both chains untouched (Abandoned, nothing to
// reverse).
func (o *Orchestrator) runCrossChain(rec *Record, trade types.Trade, askParty, bidParty types.Party, symCfg config.SymbolConfig) {
	sourceBase, _, err := tokenAddrs(symCfg, rec.SourceNetwork)
	if err != nil {
		o.abandon(rec, err.Error())
		return
	}
	_, destQuote, err := tokenAddrs(symCfg, rec.DestNetwork)
	if err != nil {
		o.abandon(rec, err.Error())
		return
	}
	sourceChain, ok := o.chains[rec.SourceNetwork]
	if !ok {
		o.abandon(rec, fmt.Sprintf("no chain client for network %q", rec.SourceNetwork))
		return
	}
	destChain, ok := o.chains[rec.DestNetwork]
	if !ok {
		o.abandon(rec, fmt.Sprintf("no chain client for network %q", rec.DestNetwork))
		return
	}

	quoteAmount := trade.Quantity.Mul(trade.Price)

	sourceTrade := chain.SettlementTrade{
		Maker: trade.Maker.Account, Taker: trade.Taker.Account,
		ReceiveWallet: bidParty.ReceiveWallet,
		BaseToken:     sourceBase,
		BaseDecimals:  symCfg.BaseDecimals,
		QuoteDecimals: symCfg.QuoteDecimals,
		Price:         trade.Price, Quantity: trade.Quantity,
		Nonce1: trade.Maker.OrderID, Nonce2: trade.Taker.OrderID, OrderID: rec.OrderID,
		Debits: []chain.MirrorDebit{{Account: askParty.Account, Token: sourceBase, Amount: trade.Quantity}},
	}
	destTrade := chain.SettlementTrade{
		Maker: trade.Maker.Account, Taker: trade.Taker.Account,
		ReceiveWallet: askParty.ReceiveWallet,
		QuoteToken:    destQuote,
		BaseDecimals:  symCfg.BaseDecimals,
		QuoteDecimals: symCfg.QuoteDecimals,
		Price:         trade.Price, Quantity: trade.Quantity,
		Nonce1: trade.Maker.OrderID, Nonce2: trade.Taker.OrderID, OrderID: rec.OrderID,
		Debits: []chain.MirrorDebit{{Account: bidParty.Account, Token: destQuote, Amount: quoteAmount}},
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.AbandonAfter)
	defer cancel()

	var wg sync.WaitGroup
	var sourceErr, destErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		sourceErr = o.retry(ctx, &rec.SourceAttempts, func(ctx context.Context) error {
			return sourceChain.SettleCrossLeg(ctx, sourceTrade, true)
		})
	}()
	go func() {
		defer wg.Done()
		destErr = o.retry(ctx, &rec.DestAttempts, func(ctx context.Context) error {
			return destChain.SettleCrossLeg(ctx, destTrade, false)
		})
	}()
	wg.Wait()

	o.mu.Lock()
	now := time.Now()
	if sourceErr == nil {
		rec.SourceSettled = true
		rec.SourceTime = now
	} else {
		rec.LastError = sourceErr.Error()
	}
	if destErr == nil {
		rec.DestSettled = true
		rec.DestTime = now
	} else if rec.LastError == "" {
		rec.LastError = destErr.Error()
	}
	o.mu.Unlock()

	switch {
	case rec.bothSettled():
		o.mu.Lock()
		rec.Status = types.StatusSettled
		o.checkpointLocked(rec)
		o.mu.Unlock()
		o.reportRisk(string(rec.SourceNetwork), risk.EventSettled)
		o.reportRisk(string(rec.DestNetwork), risk.EventSettled)

	case rec.asymmetric():
		o.mu.Lock()
		rec.Status = types.StatusAsymmetric
		o.checkpointLocked(rec)
		o.mu.Unlock()
		o.refund(rec, sourceChain, destChain, sourceTrade, destTrade, sourceErr == nil)

	default:
		o.mu.Lock()
		rec.Status = types.StatusAbandoned
		o.checkpointLocked(rec)
		o.mu.Unlock()
		o.logger.Error("cross-chain settlement failed on both legs", "order_id", rec.OrderID)
		o.reportRisk(string(rec.SourceNetwork), risk.EventAbandoned)
		o.reportRisk(string(rec.DestNetwork), risk.EventAbandoned)
	}
}

// refund reverses the leg that succeeded when its counterpart leg
// permanently failed, via emergencyRefundAsymmetricSettlement on the
// chain that holds the successful transfer.
func (o *Orchestrator) refund(rec *Record, sourceChain, destChain *chain.Chain, sourceTrade, destTrade chain.SettlementTrade, sourceSucceeded bool) {
	settledChain, settledTrade, network := sourceChain, sourceTrade, rec.SourceNetwork
	if !sourceSucceeded {
		settledChain, settledTrade, network = destChain, destTrade, rec.DestNetwork
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.AbandonAfter)
	defer cancel()

	var attempts int
	err := o.retry(ctx, &attempts, func(ctx context.Context) error {
		return settledChain.EmergencyRefund(ctx, rec.OrderID, settledTrade, nil)
	})

	o.mu.Lock()
	defer o.mu.Unlock()
	if err != nil {
		rec.LastError = err.Error()
		rec.Status = types.StatusAbandoned
		o.logger.Error("emergency refund failed, settlement abandoned", "order_id", rec.OrderID, "chain", network, "error", err)
		o.reportRisk(string(network), risk.EventAbandoned)
	} else {
		rec.Refunded = true
		rec.Status = types.StatusRefunded
		o.logger.Warn("asymmetric settlement refunded", "order_id", rec.OrderID, "chain", network)
	}
	o.checkpointLocked(rec)
}

func (o *Orchestrator) abandon(rec *Record, reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	rec.Status = types.StatusAbandoned
	rec.LastError = reason
	o.logger.Error("settlement abandoned before dispatch", "order_id", rec.OrderID, "reason", reason)
	o.checkpointLocked(rec)
}

// retry runs fn with exponential backoff up to cfg.MaxRetries attempts,
// bailing out early if ctx is cancelled (the AbandonAfter budget expired).
func (o *Orchestrator) retry(ctx context.Context, attempts *int, fn func(context.Context) error) error {
	var lastErr error
	for i := 0; i < o.cfg.MaxRetries; i++ {
		*attempts++
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if i == o.cfg.MaxRetries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(o.backoff(i)):
		}
	}
	return lastErr
}

func (o *Orchestrator) backoff(attempt int) time.Duration {
	d := o.cfg.BackoffBase * time.Duration(math.Pow(2, float64(attempt)))
	if o.cfg.BackoffMax > 0 && d > o.cfg.BackoffMax {
		return o.cfg.BackoffMax
	}
	return d
}

func (o *Orchestrator) reportRisk(chainName string, kind risk.EventKind) {
	if o.risk == nil {
		return
	}
	o.risk.Report(risk.Event{Chain: chainName, Kind: kind})
}

func (o *Orchestrator) checkpoint(rec *Record) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.checkpointLocked(rec)
}

func (o *Orchestrator) checkpointLocked(rec *Record) {
	if o.store == nil {
		return
	}
	if err := o.store.SaveSettlementRecord(rec.toDTO()); err != nil {
		o.logger.Warn("failed to checkpoint settlement record", "order_id", rec.OrderID, "error", err)
	}
}
