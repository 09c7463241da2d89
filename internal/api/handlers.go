package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"crosslot/internal/apierr"
	"crosslot/internal/book"
	"crosslot/internal/chain"
	"crosslot/internal/config"
	"crosslot/internal/matching"
	"crosslot/internal/pricing"
	"crosslot/internal/priceproxy"
	"crosslot/internal/registry"
	"crosslot/internal/risk"
	"crosslot/internal/settlement"
	"crosslot/pkg/types"
)

// Handlers holds every dependency the HTTP surface needs: the book
// registry for admission and snapshots, the settlement orchestrator for
// escrow pre-checks and trade dispatch, the per-chain clients for escrow
// reads and configured addresses, and the price proxy for the two
// external-data passthrough endpoints.
type Handlers struct {
	registry     *registry.Registry
	orchestrator *settlement.Orchestrator
	chains       map[types.Network]*chain.Chain
	cfg          config.Config
	prices       *priceproxy.Client
	risk         *risk.Monitor
	hub          *Hub
	logger       *slog.Logger
}

// NewHandlers wires the handler set.
func NewHandlers(
	reg *registry.Registry,
	orch *settlement.Orchestrator,
	chains map[types.Network]*chain.Chain,
	cfg config.Config,
	prices *priceproxy.Client,
	riskMonitor *risk.Monitor,
	hub *Hub,
	logger *slog.Logger,
) *Handlers {
	return &Handlers{
		registry:     reg,
		orchestrator: orch,
		chains:       chains,
		cfg:          cfg,
		prices:       prices,
		risk:         riskMonitor,
		hub:          hub,
		logger:       logger.With("component", "api-handlers"),
	}
}

// HandleHealth returns a simple liveness response.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleSnapshot returns the current dashboard state: book depth across
// every configured symbol and venue, plus settlement health.
func (h *Handlers) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, BuildSnapshot(h))
}

// Symbols satisfies StatusProvider.
func (h *Handlers) Symbols() []string { return h.registry.Symbols() }

// BookDepth satisfies StatusProvider.
func (h *Handlers) BookDepth(symbol string, venue registry.Venue, depth int) (SymbolDepth, error) {
	bk, err := h.registry.BookFor(symbol, venue)
	if err != nil {
		return SymbolDepth{}, err
	}
	snap := bk.Snapshot(depth)
	return SymbolDepth{
		Symbol: symbol,
		Venue:  string(venue),
		Bids:   toPairs(snap.Bids),
		Asks:   toPairs(snap.Asks),
	}, nil
}

// SettlementHealth satisfies StatusProvider.
func (h *Handlers) SettlementHealth() risk.HealthSnapshot {
	if h.risk == nil {
		return risk.HealthSnapshot{OK: true}
	}
	return h.risk.Snapshot()
}

// HandleRegisterOrder admits a same-chain order.
func (h *Handlers) HandleRegisterOrder(w http.ResponseWriter, r *http.Request) {
	h.registerOrder(w, r, false)
}

// HandleRegisterOrderCross admits a cross-chain order.
func (h *Handlers) HandleRegisterOrderCross(w http.ResponseWriter, r *http.Request) {
	h.registerOrder(w, r, true)
}

func (h *Handlers) registerOrder(w http.ResponseWriter, r *http.Request, crossChain bool) {
	var req RegisterOrderRequest
	if err := decodePayload(r, &req); err != nil {
		writeError(w, apierr.Wrap(apierr.Validation, "malformed payload", err))
		return
	}

	side, err := parseSide(req.Side)
	if err != nil {
		writeError(w, apierr.New(apierr.Validation, err.Error()))
		return
	}

	orderType := types.Limit
	if req.Type != "" {
		orderType, err = parseOrderType(req.Type)
		if err != nil {
			writeError(w, apierr.New(apierr.Validation, err.Error()))
			return
		}
	}

	quantity, err := pricing.ParseDecimal(req.Quantity)
	if err != nil {
		writeError(w, apierr.Wrap(apierr.Validation, "invalid quantity", err))
		return
	}

	var price decimal.Decimal
	if orderType == types.Limit {
		price, err = pricing.ParseDecimal(req.Price)
		if err != nil {
			writeError(w, apierr.Wrap(apierr.Validation, "invalid price", err))
			return
		}
	}

	fromNetwork := types.Network(req.FromNetwork)
	toNetwork := types.Network(req.ToNetwork)
	if crossChain && fromNetwork == toNetwork {
		writeError(w, apierr.New(apierr.Validation, "register_order_cross requires fromNetwork != toNetwork"))
		return
	}
	if !crossChain && fromNetwork != toNetwork {
		writeError(w, apierr.New(apierr.Validation, "register_order requires fromNetwork == toNetwork"))
		return
	}

	symbol := pricing.Symbol{Base: req.BaseAsset, Quote: req.QuoteAsset}.String()
	symCfg, ok := h.registry.SymbolConfig(symbol)
	if !ok {
		writeError(w, apierr.New(apierr.Validation, fmt.Sprintf("unknown symbol %q", symbol)))
		return
	}

	if orderType == types.Limit {
		if tick, err := decimal.NewFromString(symCfg.TickSize); err == nil && !pricing.OnTickGrid(price, tick) {
			writeError(w, apierr.New(apierr.Validation, "price is not on the tick grid"))
			return
		}
	}
	if symCfg.MinQuantity != "" {
		if minQty, err := decimal.NewFromString(symCfg.MinQuantity); err == nil && quantity.LessThan(minQty) {
			writeError(w, apierr.New(apierr.Validation, "quantity below symbol minimum"))
			return
		}
	}

	account := types.Address(req.Account)
	if err := h.orchestrator.CheckEscrow(account, symbol, side, fromNetwork, price, quantity); err != nil {
		writeError(w, err)
		return
	}

	bk, err := h.registry.Route(symbol, fromNetwork, toNetwork)
	if err != nil {
		writeError(w, classifyRegistryErr(err))
		return
	}

	admitReq := matching.NewOrderRequest{
		Account:       account,
		BaseAsset:     req.BaseAsset,
		QuoteAsset:    req.QuoteAsset,
		Side:          side,
		Type:          orderType,
		Price:         price,
		Quantity:      quantity,
		FromNetwork:   fromNetwork,
		ToNetwork:     toNetwork,
		ReceiveWallet: types.Address(req.ReceiveWallet),
	}

	var result matching.AdmitResult
	if orderType == types.Market {
		result, err = bk.ProcessMarket(admitReq.Account, admitReq.BaseAsset, admitReq.QuoteAsset, admitReq.Side, admitReq.Quantity, admitReq.FromNetwork, admitReq.ToNetwork, admitReq.ReceiveWallet)
	} else {
		result, err = bk.ProcessLimit(admitReq)
	}
	if err != nil {
		writeError(w, apierr.Wrap(apierr.Validation, "order admission rejected", err))
		return
	}

	resp := RegisterOrderResponse{
		StatusCode: http.StatusOK,
		Order: OrderResult{
			OrderID: result.OrderID,
			Rested:  result.Rested,
		},
	}
	if orderType == types.Market {
		resp.Order.Unfilled = result.Unfilled.String()
	}

	for _, tr := range result.Trades {
		resp.Order.Trades = append(resp.Order.Trades, TradeDTO{
			TradeID:   tr.TradeID,
			Price:     tr.Price.String(),
			Quantity:  tr.Quantity.String(),
			MakerID:   tr.Maker.OrderID,
			TakerID:   tr.Taker.OrderID,
			Timestamp: tr.Timestamp.Format(time.RFC3339Nano),
		})

		summary, dispatchErr := h.orchestrator.Dispatch(tr, symbol)
		if dispatchErr != nil {
			h.logger.Error("settlement dispatch failed", "order_id", tr.Taker.OrderID, "error", dispatchErr)
		} else {
			resp.SettlementInfo = append(resp.SettlementInfo, summary)
			h.broadcast(NewSettlementEvent(summary.OrderID, summary.CorrelationID, summary.Status, summary.SourceSettled, summary.DestSettled))
		}

		h.broadcast(NewTradeEvent(symbol, bk.Venue, tr.TradeID, tr.Price.String(), tr.Quantity.String(), tr.Maker.OrderID, tr.Taker.OrderID))
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleCancelOrder cancels a resting order, searching both venues for
// the symbol since the request carries no network information.
func (h *Handlers) HandleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req CancelOrderRequest
	if err := decodePayload(r, &req); err != nil {
		writeError(w, apierr.Wrap(apierr.Validation, "malformed payload", err))
		return
	}
	if _, err := parseSide(req.Side); err != nil {
		writeError(w, apierr.New(apierr.Validation, err.Error()))
		return
	}

	symbol := pricing.Symbol{Base: req.BaseAsset, Quote: req.QuoteAsset}.String()
	for _, venue := range []registry.Venue{registry.SameChain, registry.CrossChain} {
		bk, err := h.registry.BookFor(symbol, venue)
		if err != nil {
			continue
		}
		if err := bk.Cancel(req.OrderID); err == nil {
			writeJSON(w, http.StatusOK, CancelOrderResponse{StatusCode: http.StatusOK})
			return
		}
	}
	writeError(w, apierr.New(apierr.NotFound, fmt.Sprintf("order %d not found", req.OrderID)))
}

// HandleOrderbook snapshots the same-chain book for a symbol.
func (h *Handlers) HandleOrderbook(w http.ResponseWriter, r *http.Request) {
	h.handleOrderbook(w, r, registry.SameChain)
}

// HandleOrderbookCross snapshots the cross-chain book for a symbol.
func (h *Handlers) HandleOrderbookCross(w http.ResponseWriter, r *http.Request) {
	h.handleOrderbook(w, r, registry.CrossChain)
}

func (h *Handlers) handleOrderbook(w http.ResponseWriter, r *http.Request, venue registry.Venue) {
	var req OrderbookRequest
	if err := decodePayload(r, &req); err != nil {
		writeError(w, apierr.Wrap(apierr.Validation, "malformed payload", err))
		return
	}
	bk, err := h.registry.BookFor(req.Symbol, venue)
	if err != nil {
		writeError(w, classifyRegistryErr(err))
		return
	}
	snap := bk.Snapshot(0)
	writeJSON(w, http.StatusOK, OrderbookResponse{Bids: toPairs(snap.Bids), Asks: toPairs(snap.Asks)})
}

// HandleOrderLookup looks up one resting order by id across both venues.
func (h *Handlers) HandleOrderLookup(w http.ResponseWriter, r *http.Request) {
	var req OrderLookupRequest
	if err := decodePayload(r, &req); err != nil {
		writeError(w, apierr.Wrap(apierr.Validation, "malformed payload", err))
		return
	}
	symbol := pricing.Symbol{Base: req.BaseAsset, Quote: req.QuoteAsset}.String()

	for _, venue := range []registry.Venue{registry.SameChain, registry.CrossChain} {
		bk, err := h.registry.BookFor(symbol, venue)
		if err != nil {
			continue
		}
		if ord, ok := bk.Lookup(req.OrderID); ok {
			writeJSON(w, http.StatusOK, toOrderDTO(ord))
			return
		}
	}
	writeError(w, apierr.New(apierr.NotFound, fmt.Sprintf("order %d not found", req.OrderID)))
}

// HandleBestOrder returns the top-of-book for one side of a symbol's
// same-chain venue.
func (h *Handlers) HandleBestOrder(w http.ResponseWriter, r *http.Request) {
	var req BestOrderRequest
	if err := decodePayload(r, &req); err != nil {
		writeError(w, apierr.Wrap(apierr.Validation, "malformed payload", err))
		return
	}
	side, err := parseSide(req.Side)
	if err != nil {
		writeError(w, apierr.New(apierr.Validation, err.Error()))
		return
	}
	symbol := pricing.Symbol{Base: req.BaseAsset, Quote: req.QuoteAsset}.String()
	bk, err := h.registry.BookFor(symbol, registry.SameChain)
	if err != nil {
		writeError(w, classifyRegistryErr(err))
		return
	}
	price, quantity, ok := bk.BestOrder(side)
	if !ok {
		writeError(w, apierr.New(apierr.NotFound, "no resting orders on that side"))
		return
	}
	writeJSON(w, http.StatusOK, BestOrderResponse{Price: price.String(), Quantity: quantity.String()})
}

// HandleCheckFunds reads the local escrow mirror for (account, asset) on
// the given network.
func (h *Handlers) HandleCheckFunds(w http.ResponseWriter, r *http.Request) {
	var req CheckFundsRequest
	if err := decodePayload(r, &req); err != nil {
		writeError(w, apierr.Wrap(apierr.Validation, "malformed payload", err))
		return
	}
	c, ok := h.chains[types.Network(req.Network)]
	if !ok {
		writeError(w, apierr.New(apierr.ConfigError, fmt.Sprintf("no chain configured for network %q", req.Network)))
		return
	}
	bal := c.Ledger.BalanceOf(types.Address(req.Account), req.Asset)
	writeJSON(w, http.StatusOK, CheckFundsResponse{
		Available: bal.Available().String(),
		Locked:    bal.Locked.String(),
		Total:     bal.Total.String(),
	})
}

// HandlePrice proxies the external reference-price ticker endpoint.
func (h *Handlers) HandlePrice(w http.ResponseWriter, r *http.Request) {
	pair := r.URL.Query().Get("currency_pair")
	if pair == "" {
		writeError(w, apierr.New(apierr.Validation, "currency_pair is required"))
		return
	}
	ticker, err := h.prices.GetPrice(r.Context(), pair)
	if err != nil {
		writeError(w, apierr.Wrap(apierr.TransientChain, "price proxy request failed", err))
		return
	}
	writeJSON(w, http.StatusOK, ticker)
}

// HandleKline proxies the external reference-price candle endpoint.
func (h *Handlers) HandleKline(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pair := q.Get("currency_pair")
	if pair == "" {
		writeError(w, apierr.New(apierr.Validation, "currency_pair is required"))
		return
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit <= 0 {
		limit = 100
	}
	candles, err := h.prices.GetKline(r.Context(), pair, q.Get("interval"), limit)
	if err != nil {
		writeError(w, apierr.Wrap(apierr.TransientChain, "price proxy request failed", err))
		return
	}
	writeJSON(w, http.StatusOK, candles)
}

// HandleSettlementHealth reports the settlement-health circuit breaker's
// current state.
func (h *Handlers) HandleSettlementHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.SettlementHealth())
}

// HandleSettlementAddress returns the configured settlement contract
// address for a network.
func (h *Handlers) HandleSettlementAddress(w http.ResponseWriter, r *http.Request) {
	network := r.URL.Query().Get("network")
	chainCfg, ok := h.cfg.Chains[network]
	if !ok {
		writeError(w, apierr.New(apierr.Validation, fmt.Sprintf("unknown network %q", network)))
		return
	}
	writeJSON(w, http.StatusOK, SettlementAddressResponse{SettlementAddress: chainCfg.SettlementAddress})
}

// HandleOrderHistory returns the same-chain trade tape for a symbol.
func (h *Handlers) HandleOrderHistory(w http.ResponseWriter, r *http.Request) {
	h.handleOrderHistory(w, r, registry.SameChain)
}

// HandleOrderHistoryCross returns the cross-chain trade tape for a symbol.
func (h *Handlers) HandleOrderHistoryCross(w http.ResponseWriter, r *http.Request) {
	h.handleOrderHistory(w, r, registry.CrossChain)
}

func (h *Handlers) handleOrderHistory(w http.ResponseWriter, r *http.Request, venue registry.Venue) {
	q := r.URL.Query()
	symbol := q.Get("symbol")
	limit, _ := strconv.Atoi(q.Get("limit"))

	bk, err := h.registry.BookFor(symbol, venue)
	if err != nil {
		writeError(w, classifyRegistryErr(err))
		return
	}
	trades := bk.Tape(limit)
	out := make([]TradeDTO, 0, len(trades))
	for _, tr := range trades {
		out = append(out, TradeDTO{
			TradeID:   tr.TradeID,
			Price:     tr.Price.String(),
			Quantity:  tr.Quantity.String(),
			MakerID:   tr.Maker.OrderID,
			TakerID:   tr.Taker.OrderID,
			Timestamp: tr.Timestamp.Format(time.RFC3339Nano),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleWebSocket upgrades the connection and creates a new dashboard
// client, sending it an initial snapshot.
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(req *http.Request) bool {
			return isOriginAllowed(req.Header.Get("Origin"), h.cfg.Dashboard, req.Host)
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(h.hub, conn)

	evt := DashboardEvent{Type: "snapshot", Timestamp: time.Now(), Data: BuildSnapshot(h)}
	data, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error("failed to marshal initial snapshot", "error", err)
		return
	}
	select {
	case client.send <- data:
	default:
		h.logger.Warn("failed to send initial snapshot to client")
	}
}

func (h *Handlers) broadcast(evt DashboardEvent) {
	if h.hub != nil {
		h.hub.BroadcastEvent(evt)
	}
}

// ————————————————————————————————————————————————————————————————————————
// Request/response plumbing
// ————————————————————————————————————————————————————————————————————————

// decodePayload parses the form-encoded "payload" field and unmarshals
// its JSON content into v, per §6's request convention.
func decodePayload(r *http.Request, v interface{}) error {
	if err := r.ParseForm(); err != nil {
		return fmt.Errorf("parse form: %w", err)
	}
	raw := r.FormValue("payload")
	if raw == "" {
		return errors.New("missing payload field")
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError classifies err through apierr and writes the matching HTTP
// status and body. An error with no recognized Kind is treated as an
// internal error.
func writeError(w http.ResponseWriter, err error) {
	kind, ok := apierr.KindOf(err)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, apierr.HTTPStatus(kind), errorResponse{Error: err.Error(), Kind: string(kind)})
}

func parseSide(raw string) (types.Side, error) {
	switch strings.ToLower(raw) {
	case "bid", "buy":
		return types.Bid, nil
	case "ask", "sell":
		return types.Ask, nil
	default:
		return "", fmt.Errorf("invalid side %q", raw)
	}
}

func parseOrderType(raw string) (types.OrderType, error) {
	switch strings.ToLower(raw) {
	case "limit":
		return types.Limit, nil
	case "market":
		return types.Market, nil
	default:
		return "", fmt.Errorf("invalid order type %q", raw)
	}
}

// classifyRegistryErr maps registry errors to the right error kind: an
// unknown symbol is a validation failure, while a trading halt is a
// transient condition expected to clear once its cooldown expires.
func classifyRegistryErr(err error) error {
	switch {
	case errors.Is(err, registry.ErrUnknownSymbol):
		return apierr.Wrap(apierr.Validation, "unknown symbol", err)
	case errors.Is(err, registry.ErrTradingHalted):
		return apierr.Wrap(apierr.TransientChain, "trading halted", err)
	default:
		return apierr.Wrap(apierr.Validation, "registry error", err)
	}
}

func toPairs(levels []book.PriceQty) []PriceQtyPair {
	out := make([]PriceQtyPair, 0, len(levels))
	for _, lvl := range levels {
		out = append(out, PriceQtyPair{lvl.Price.String(), lvl.Quantity.String()})
	}
	return out
}

func toOrderDTO(o book.Order) OrderDTO {
	return OrderDTO{
		OrderID:       o.ID,
		Account:       string(o.Account),
		BaseAsset:     o.BaseAsset,
		QuoteAsset:    o.QuoteAsset,
		Side:          string(o.Side),
		Type:          string(o.Type),
		Price:         o.Price.String(),
		Quantity:      o.Quantity.String(),
		FromNetwork:   string(o.FromNetwork),
		ToNetwork:     string(o.ToNetwork),
		ReceiveWallet: string(o.ReceiveWallet),
		Timestamp:     o.Timestamp.Format(time.RFC3339Nano),
	}
}

// ————————————————————————————————————————————————————————————————————————
// Origin checking for the websocket upgrade path
// ————————————————————————————————————————————————————————————————————————

func isOriginAllowed(origin string, cfg config.DashboardConfig, reqHost string) bool {
	if origin == "" {
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}

	normalized := normalizeOrigin(originURL.Scheme, originURL.Host)
	if normalized == "" {
		return false
	}

	if len(cfg.AllowedOrigins) > 0 {
		for _, allowed := range cfg.AllowedOrigins {
			u, err := url.Parse(allowed)
			if err != nil {
				continue
			}
			if normalized == normalizeOrigin(u.Scheme, u.Host) {
				return true
			}
		}
		return false
	}

	host := strings.ToLower(originURL.Hostname())
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return true
	}

	reqHostname := normalizeHost(reqHost)
	return reqHostname != "" && host == reqHostname
}

func normalizeOrigin(scheme, host string) string {
	if scheme == "" || host == "" {
		return ""
	}
	return strings.ToLower(scheme) + "://" + strings.ToLower(host)
}

func normalizeHost(hostport string) string {
	hostport = strings.TrimSpace(hostport)
	if hostport == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(hostport)
}
