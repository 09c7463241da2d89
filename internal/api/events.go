package api

import "time"

// DashboardEvent is the envelope for every event pushed to a connected
// operator dashboard client.
type DashboardEvent struct {
	Type      string      `json:"type"` // "snapshot", "trade", "settlement", "halt"
	Timestamp time.Time   `json:"timestamp"`
	Symbol    string      `json:"symbol,omitempty"`
	Data      interface{} `json:"data"`
}

// TradeEvent reports one trade the matching engine just produced.
type TradeEvent struct {
	Symbol       string `json:"symbol"`
	Venue        string `json:"venue"`
	TradeID      uint64 `json:"trade_id"`
	Price        string `json:"price"`
	Quantity     string `json:"quantity"`
	MakerOrderID uint64 `json:"maker_order_id"`
	TakerOrderID uint64 `json:"taker_order_id"`
}

// SettlementEvent reports a change in a settlement record's status —
// dispatched, settled, asymmetric, refunded, or abandoned.
type SettlementEvent struct {
	OrderID       uint64 `json:"order_id"`
	CorrelationID string `json:"correlation_id"`
	Status        string `json:"status"`
	SourceSettled bool   `json:"source_settled"`
	DestSettled   bool   `json:"dest_settled,omitempty"`
}

// HaltEvent reports the settlement-health circuit breaker engaging or
// clearing a trading halt.
type HaltEvent struct {
	Active bool      `json:"active"`
	Reason string    `json:"reason,omitempty"`
	Until  time.Time `json:"until,omitempty"`
}

// NewTradeEvent builds a dashboard event from one executed trade.
func NewTradeEvent(symbol, venue string, tradeID uint64, price, quantity string, makerOrderID, takerOrderID uint64) DashboardEvent {
	return DashboardEvent{
		Type:      "trade",
		Timestamp: time.Now(),
		Symbol:    symbol,
		Data: TradeEvent{
			Symbol: symbol, Venue: venue, TradeID: tradeID,
			Price: price, Quantity: quantity,
			MakerOrderID: makerOrderID, TakerOrderID: takerOrderID,
		},
	}
}

// NewSettlementEvent builds a dashboard event from a settlement summary.
func NewSettlementEvent(orderID uint64, correlationID, status string, sourceSettled, destSettled bool) DashboardEvent {
	return DashboardEvent{
		Type:      "settlement",
		Timestamp: time.Now(),
		Data: SettlementEvent{
			OrderID: orderID, CorrelationID: correlationID, Status: status,
			SourceSettled: sourceSettled, DestSettled: destSettled,
		},
	}
}

// NewHaltEvent builds a dashboard event from a trading-halt transition.
func NewHaltEvent(active bool, reason string, until time.Time) DashboardEvent {
	return DashboardEvent{
		Type:      "halt",
		Timestamp: time.Now(),
		Data:      HaltEvent{Active: active, Reason: reason, Until: until},
	}
}
