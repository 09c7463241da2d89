package api

import "crosslot/internal/settlement"

// RegisterOrderRequest is the payload for register_order and
// register_order_cross. Numerics travel as strings and are parsed
// through pricing.ParseDecimal, never as JSON numbers.
type RegisterOrderRequest struct {
	Account       string `json:"account"`
	BaseAsset     string `json:"baseAsset"`
	QuoteAsset    string `json:"quoteAsset"`
	Side          string `json:"side"`
	Type          string `json:"type,omitempty"` // "limit" (default) or "market"
	Price         string `json:"price,omitempty"`
	Quantity      string `json:"quantity"`
	FromNetwork   string `json:"fromNetwork"`
	ToNetwork     string `json:"toNetwork"`
	ReceiveWallet string `json:"receiveWallet"`
}

// TradeDTO is the wire shape of one executed trade.
type TradeDTO struct {
	TradeID   uint64 `json:"tradeId"`
	Price     string `json:"price"`
	Quantity  string `json:"quantity"`
	MakerID   uint64 `json:"makerOrderId"`
	TakerID   uint64 `json:"takerOrderId"`
	Timestamp string `json:"timestamp"`
}

// OrderResult is the order sub-object of register_order*'s response.
type OrderResult struct {
	OrderID  uint64     `json:"orderId"`
	Trades   []TradeDTO `json:"trades"`
	Rested   bool       `json:"rested"`
	Unfilled string     `json:"unfilled,omitempty"`
}

// RegisterOrderResponse is the full register_order*/response envelope.
type RegisterOrderResponse struct {
	StatusCode     int                  `json:"status_code"`
	Order          OrderResult          `json:"order"`
	SettlementInfo []settlement.Summary `json:"settlement_info,omitempty"`
}

// CancelOrderRequest is the payload for cancel_order.
type CancelOrderRequest struct {
	OrderID    uint64 `json:"orderId"`
	Side       string `json:"side"`
	BaseAsset  string `json:"baseAsset"`
	QuoteAsset string `json:"quoteAsset"`
}

// CancelOrderResponse is cancel_order's response envelope.
type CancelOrderResponse struct {
	StatusCode int `json:"status_code"`
}

// OrderbookRequest is the payload for orderbook and orderbook_cross.
type OrderbookRequest struct {
	Symbol string `json:"symbol"`
}

// PriceQtyPair is one [price, quantity] level in an orderbook snapshot.
type PriceQtyPair [2]string

// OrderbookResponse is orderbook{,_cross}'s response shape.
type OrderbookResponse struct {
	Bids []PriceQtyPair `json:"bids"`
	Asks []PriceQtyPair `json:"asks"`
}

// OrderLookupRequest is the payload for order.
type OrderLookupRequest struct {
	OrderID    uint64 `json:"orderId"`
	Side       string `json:"side"`
	BaseAsset  string `json:"baseAsset"`
	QuoteAsset string `json:"quoteAsset"`
}

// OrderDTO is the order sub-object returned by the order lookup endpoint.
type OrderDTO struct {
	OrderID       uint64 `json:"orderId"`
	Account       string `json:"account"`
	BaseAsset     string `json:"baseAsset"`
	QuoteAsset    string `json:"quoteAsset"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	Price         string `json:"price"`
	Quantity      string `json:"quantity"`
	FromNetwork   string `json:"fromNetwork"`
	ToNetwork     string `json:"toNetwork"`
	ReceiveWallet string `json:"receiveWallet"`
	Timestamp     string `json:"timestamp"`
}

// BestOrderRequest is the payload for get_best_order.
type BestOrderRequest struct {
	BaseAsset  string `json:"baseAsset"`
	QuoteAsset string `json:"quoteAsset"`
	Side       string `json:"side"`
}

// BestOrderResponse is get_best_order's response shape.
type BestOrderResponse struct {
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
}

// CheckFundsRequest is the payload for check_available_funds.
type CheckFundsRequest struct {
	Account string `json:"account"`
	Asset   string `json:"asset"`
	Network string `json:"network"`
}

// CheckFundsResponse is check_available_funds's response shape.
type CheckFundsResponse struct {
	Available string `json:"available"`
	Locked    string `json:"locked"`
	Total     string `json:"total"`
}

// SettlementAddressResponse is get_settlement_address's response shape.
type SettlementAddressResponse struct {
	SettlementAddress string `json:"settlement_address"`
}

// errorResponse is the body returned for any non-2xx response.
type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}
