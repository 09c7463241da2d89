// Package matching implements the matching engine (C4): limit and market
// order admission against a single book, trade generation, and the
// append-only tape. It holds no escrow or settlement knowledge — that is
// the settlement orchestrator's job, one layer up, which consumes the
// trades this package emits.
package matching

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"crosslot/internal/book"
	"crosslot/pkg/types"
)

// Sentinel errors callers branch on. Everything else is wrapped with
// fmt.Errorf("...: %w", err).
var (
	ErrOrderNotFound  = errors.New("matching: order not found")
	ErrTickMismatch   = errors.New("matching: price is not on the tick grid")
	ErrZeroQuantity   = errors.New("matching: quantity must be positive")
	ErrInvalidPrice   = errors.New("matching: limit order requires a positive price")
)

// NewOrderRequest is the admission input for both limit and market orders.
// Type == Market ignores Price.
type NewOrderRequest struct {
	Account       types.Address
	BaseAsset     string
	QuoteAsset    string
	Side          types.Side
	Type          types.OrderType
	Price         decimal.Decimal
	Quantity      decimal.Decimal
	FromNetwork   types.Network
	ToNetwork     types.Network
	ReceiveWallet types.Address
}

// AdmitResult is what admission returns: the assigned order id, any trades
// produced, and whether a remainder was rested.
type AdmitResult struct {
	OrderID  uint64
	Trades   []types.Trade
	Rested   bool
	Unfilled decimal.Decimal // meaningful for market orders only
}

// Snapshot is a point-in-time, lock-free copy of book depth.
type Snapshot struct {
	Bids []book.PriceQty
	Asks []book.PriceQty
}

// Book is one price-time-priority order book: independent bid/ask trees,
// a shared order index, and an append-only tape. A Book is the unit of
// locking — admission and matching for one symbol/venue run as a single
// critical section so price-time priority is exact.
type Book struct {
	mu sync.Mutex

	Symbol string
	Venue  string // "same_chain" or "cross_chain", for logs and dashboard trade events

	tickSize decimal.Decimal
	selfTP   bool

	bids  *book.Tree
	asks  *book.Tree
	index *book.Index
	tape  *Tape

	nextOrderID uint64
	nextTradeID uint64

	logger *slog.Logger
}

// NewBook creates an empty book for one symbol/venue pair.
func NewBook(symbol, venue string, tickSize decimal.Decimal, selfTradePrevention bool, tapeLimit int, logger *slog.Logger) *Book {
	return &Book{
		Symbol:   symbol,
		Venue:    venue,
		tickSize: tickSize,
		selfTP:   selfTradePrevention,
		bids:     book.NewTree(types.Bid),
		asks:     book.NewTree(types.Ask),
		index:    book.NewIndex(),
		tape:     NewTape(tapeLimit),
		logger:   logger.With("symbol", symbol, "venue", venue),
	}
}

// ProcessLimit admits a limit order: it validates the tick grid, matches
// against the opposing tree while crossing, and rests any remainder on its
// own side at its own price. Zero-quantity remainders are never inserted.
func (b *Book) ProcessLimit(req NewOrderRequest) (AdmitResult, error) {
	if req.Quantity.Sign() <= 0 {
		return AdmitResult{}, ErrZeroQuantity
	}
	if req.Price.Sign() <= 0 {
		return AdmitResult{}, ErrInvalidPrice
	}
	if !b.tickSize.IsZero() && req.Price.Mod(b.tickSize).Sign() != 0 {
		return AdmitResult{}, ErrTickMismatch
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextOrderID++
	taker := &book.Order{
		ID:            b.nextOrderID,
		Account:       req.Account,
		BaseAsset:     req.BaseAsset,
		QuoteAsset:    req.QuoteAsset,
		Side:          req.Side,
		Type:          types.Limit,
		Price:         req.Price,
		Quantity:      req.Quantity,
		FromNetwork:   req.FromNetwork,
		ToNetwork:     req.ToNetwork,
		ReceiveWallet: req.ReceiveWallet,
		Timestamp:     time.Now(),
	}

	trades := b.matchLoop(taker, func(opp *book.Level) bool {
		if taker.Side == types.Bid {
			return opp.Price.LessThanOrEqual(taker.Price)
		}
		return opp.Price.GreaterThanOrEqual(taker.Price)
	})

	rested := false
	if taker.Quantity.Sign() > 0 {
		b.rest(taker)
		rested = true
	}

	return AdmitResult{OrderID: taker.ID, Trades: trades, Rested: rested}, nil
}

// ProcessMarket admits a market order: no price gate on crossing, never
// rests a remainder, and returns whatever quantity could not be filled.
func (b *Book) ProcessMarket(account types.Address, baseAsset, quoteAsset string, side types.Side, quantity decimal.Decimal, fromNetwork, toNetwork types.Network, receiveWallet types.Address) (AdmitResult, error) {
	if quantity.Sign() <= 0 {
		return AdmitResult{}, ErrZeroQuantity
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextOrderID++
	taker := &book.Order{
		ID:            b.nextOrderID,
		Account:       account,
		BaseAsset:     baseAsset,
		QuoteAsset:    quoteAsset,
		Side:          side,
		Type:          types.Market,
		Quantity:      quantity,
		FromNetwork:   fromNetwork,
		ToNetwork:     toNetwork,
		ReceiveWallet: receiveWallet,
		Timestamp:     time.Now(),
	}

	trades := b.matchLoop(taker, func(*book.Level) bool { return true })

	return AdmitResult{OrderID: taker.ID, Trades: trades, Unfilled: taker.Quantity}, nil
}

// matchLoop drains the opposing tree against taker while crosses(level) is
// true and taker still has quantity remaining, emitting one trade per maker
// consumed or partially consumed. When self-trade prevention is on and a
// resting order at the current scan position is owned by the same account as
// the taker, it is skipped — left in place, untouched — and the scan resumes
// at the next node in that level's FIFO, or the next price level once the
// current one is exhausted. Caller holds b.mu.
func (b *Book) matchLoop(taker *book.Order, crosses func(*book.Level) bool) []types.Trade {
	var trades []types.Trade
	oppTree := b.opposingTree(taker.Side)

	for _, lvl := range oppTree.Levels() {
		if taker.Quantity.Sign() <= 0 {
			break
		}
		if !crosses(lvl) {
			break
		}

		for n := lvl.Head(); n != nil && taker.Quantity.Sign() > 0; {
			maker := n.Order()

			if b.selfTP && maker.Account == taker.Account {
				n = n.Next()
				continue
			}

			fillQty := decimal.Min(taker.Quantity, maker.Quantity)
			tradePrice := maker.Price

			b.nextTradeID++
			trades = append(trades, types.Trade{
				TradeID:    b.nextTradeID,
				Symbol:     b.Symbol,
				Timestamp:  time.Now(),
				Price:      tradePrice,
				Quantity:   fillQty,
				Maker:      partyOf(maker),
				Taker:      partyOf(taker),
				BaseAsset:  taker.BaseAsset,
				QuoteAsset: taker.QuoteAsset,
			})

			taker.Quantity = taker.Quantity.Sub(fillQty)
			next := n.Next()

			if fillQty.Equal(maker.Quantity) {
				oppTree.RemoveNode(lvl, n, maker.Quantity)
				b.index.Forget(maker.ID)
			} else {
				oppTree.ReduceHead(lvl, n, fillQty)
			}

			n = next
		}
	}

	for _, tr := range trades {
		b.tape.Append(tr)
	}
	return trades
}

// rest inserts a residual order into its own side. Caller holds b.mu.
func (b *Book) rest(o *book.Order) {
	lvl, n := b.sideTree(o.Side).InsertOrder(o)
	b.index.Track(o.ID, o.Side, lvl, n)
}

// Cancel removes a resting order by id.
func (b *Book) Cancel(orderID uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	side, lvl, n, ok := b.index.Locate(orderID)
	if !ok {
		return ErrOrderNotFound
	}
	qty := n.Order().Quantity
	b.sideTree(side).RemoveNode(lvl, n, qty)
	b.index.Forget(orderID)
	return nil
}

// Lookup returns a copy of a resting order's current state.
func (b *Book) Lookup(orderID uint64) (book.Order, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, _, n, ok := b.index.Locate(orderID)
	if !ok {
		return book.Order{}, false
	}
	return *n.Order(), true
}

// BestOrder returns the best resting price/quantity on one side.
func (b *Book) BestOrder(side types.Side) (decimal.Decimal, decimal.Decimal, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	lvl, ok := b.sideTree(side).BestLevel()
	if !ok {
		return decimal.Zero, decimal.Zero, false
	}
	return lvl.Price, lvl.Volume(), true
}

// Snapshot returns up to depth levels per side, best price first. depth <=
// 0 means unlimited. This takes the lock only briefly to copy slices.
func (b *Book) Snapshot(depth int) Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Snapshot{
		Bids: b.bids.Snapshot(depth),
		Asks: b.asks.Snapshot(depth),
	}
}

// Tape returns the last limit trades for this book, oldest first.
func (b *Book) Tape(limit int) []types.Trade {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tape.Last(limit)
}

func (b *Book) opposingTree(side types.Side) *book.Tree {
	return b.sideTree(side.Opposite())
}

func (b *Book) sideTree(side types.Side) *book.Tree {
	if side == types.Bid {
		return b.bids
	}
	return b.asks
}

func partyOf(o *book.Order) types.Party {
	return types.Party{
		Account:       o.Account,
		Side:          o.Side,
		OrderID:       o.ID,
		ReceiveWallet: o.ReceiveWallet,
		FromNetwork:   o.FromNetwork,
		ToNetwork:     o.ToNetwork,
	}
}
