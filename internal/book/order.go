// Package book implements the in-memory limit order book: the FIFO price
// level (C1), the per-side price tree (C2), and the order index (C3). It
// holds no settlement or escrow knowledge — it is pure price-time-priority
// bookkeeping, matched against by the matching engine in package matching.
package book

import (
	"time"

	"github.com/shopspring/decimal"

	"crosslot/pkg/types"
)

// Order is a resting or incoming limit/market order. Quantity is the
// remaining base quantity; it is mutated in place as the order is matched.
type Order struct {
	ID            uint64
	Account       types.Address
	BaseAsset     string
	QuoteAsset    string
	Side          types.Side
	Type          types.OrderType
	Price         decimal.Decimal // zero/ignored for market orders
	Quantity      decimal.Decimal // remaining, mutated by matches
	FromNetwork   types.Network
	ToNetwork     types.Network
	ReceiveWallet types.Address
	Timestamp     time.Time
}

// CrossChain reports whether this order routes to the cross-chain venue.
func (o *Order) CrossChain() bool {
	return o.FromNetwork != o.ToNetwork
}
