package settlement

import (
	"time"

	"github.com/shopspring/decimal"

	"crosslot/internal/chain"
	"crosslot/internal/store"
	"crosslot/pkg/types"
)

// Record is the live, in-memory settlement state for one trade, keyed by
// the taker's order id. For a same-chain trade SourceSettled carries the
// outcome (DestSettled is set alongside it); for a cross-chain trade the
// source/dest fields track each leg independently until both resolve.
type Record struct {
	OrderID       uint64
	CorrelationID string
	Symbol        string
	CrossChain    bool

	SourceNetwork types.Network
	DestNetwork   types.Network

	Trade chain.SettlementTrade

	Status types.SettlementStatus

	SourceSettled bool
	DestSettled   bool
	SourceTime    time.Time
	DestTime      time.Time

	SourceAttempts int
	DestAttempts   int

	Refunded  bool
	LastError string

	CreatedAt time.Time
}

// asymmetric reports the strict XOR of the two legs' settlement state:
// exactly one leg settled. A source code path elsewhere conflates this
// check with a timestamp comparison; this implementation never does.
func (r *Record) asymmetric() bool {
	return r.SourceSettled != r.DestSettled
}

// bothSettled reports whether both legs (or the single same-chain leg)
// have settled.
func (r *Record) bothSettled() bool {
	if !r.CrossChain {
		return r.SourceSettled
	}
	return r.SourceSettled && r.DestSettled
}

func (r *Record) toDTO() store.SettlementRecordDTO {
	dto := store.SettlementRecordDTO{
		OrderID:       r.OrderID,
		Status:        string(r.Status),
		SourceSettled: r.SourceSettled,
		DestSettled:   r.DestSettled,
		Refunded:      r.Refunded,
		Attempts:      r.SourceAttempts + r.DestAttempts,
	}
	if !r.SourceTime.IsZero() {
		ns := r.SourceTime.UnixNano()
		dto.SourceTS = &ns
	}
	if !r.DestTime.IsZero() {
		ns := r.DestTime.UnixNano()
		dto.DestTS = &ns
	}
	return dto
}

// Summary is the settlement_info shape returned synchronously from
// register_order*: the initial dispatch outcome, not necessarily the
// final terminal state.
type Summary struct {
	OrderID       uint64           `json:"order_id"`
	CorrelationID string           `json:"correlation_id"`
	Status        string           `json:"status"`
	SourceSettled bool             `json:"source_settled"`
	DestSettled   bool             `json:"dest_settled,omitempty"`
	Quantity      decimal.Decimal  `json:"quantity"`
	Price         decimal.Decimal  `json:"price"`
}

func (r *Record) Summary() Summary {
	return Summary{
		OrderID:       r.OrderID,
		CorrelationID: r.CorrelationID,
		Status:        string(r.Status),
		SourceSettled: r.SourceSettled,
		DestSettled:   r.DestSettled,
		Quantity:      r.Trade.Quantity,
		Price:         r.Trade.Price,
	}
}
