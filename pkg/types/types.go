// Package types defines the shared vocabulary used across all packages:
// sides, networks, addresses, and the wire shapes for trades and
// settlement. It has no dependencies on internal packages, so it can be
// imported by any layer.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Side represents the direction of an order: bid (buy) or ask (sell).
type Side string

const (
	Bid Side = "bid"
	Ask Side = "ask"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Bid {
		return Ask
	}
	return Bid
}

// OrderType enumerates the supported order lifecycles.
type OrderType string

const (
	Limit  OrderType = "limit"
	Market OrderType = "market"
)

// Network identifies one of the supported EVM-compatible chains by the
// symbolic name used in configuration (e.g. "ethereum", "arbitrum"). The
// numeric chain ID lives in config.ChainConfig; Network is the key used
// to look it up.
type Network string

// Address is a 20-byte EVM account or contract address, carried as a
// checksummed hex string at the API boundary and converted to
// common.Address only where chain code needs it.
type Address string

// SettlementStatus is the terminal or in-progress state of a settlement
// record (C7).
type SettlementStatus string

const (
	StatusPending   SettlementStatus = "pending"
	StatusSettled   SettlementStatus = "settled"
	StatusAsymmetric SettlementStatus = "asymmetric"
	StatusRefunded  SettlementStatus = "refunded"
	StatusAbandoned SettlementStatus = "abandoned"
)

// ————————————————————————————————————————————————————————————————————————
// Orders and trades
// ————————————————————————————————————————————————————————————————————————

// Party describes one side of an executed trade.
type Party struct {
	Account       Address
	Side          Side
	OrderID       uint64
	ReceiveWallet Address
	FromNetwork   Network
	ToNetwork     Network
}

// Trade is an append-only tape record produced by the matching engine.
type Trade struct {
	TradeID     uint64
	Symbol      string
	Timestamp   time.Time
	Price       decimal.Decimal
	Quantity    decimal.Decimal
	Maker       Party
	Taker       Party
	BaseAsset   string
	QuoteAsset  string
}

// ————————————————————————————————————————————————————————————————————————
// Escrow
// ————————————————————————————————————————————————————————————————————————

// EscrowBalance is the off-chain mirror of one (user, token) balance on one
// chain: available = total - locked.
type EscrowBalance struct {
	Total     decimal.Decimal
	Locked    decimal.Decimal
}

// Available returns total minus locked.
func (b EscrowBalance) Available() decimal.Decimal {
	return b.Total.Sub(b.Locked)
}
