package api

import (
	"time"

	"crosslot/internal/registry"
	"crosslot/internal/risk"
)

// StatusProvider is the read-only view the dashboard snapshot and
// websocket feed need into the running exchange: book depth per symbol
// and venue, and the settlement-health circuit breaker's current state.
type StatusProvider interface {
	Symbols() []string
	BookDepth(symbol string, venue registry.Venue, depth int) (SymbolDepth, error)
	SettlementHealth() risk.HealthSnapshot
}

// SymbolDepth is one book's top-of-book-and-below snapshot.
type SymbolDepth struct {
	Symbol string         `json:"symbol"`
	Venue  string         `json:"venue"`
	Bids   []PriceQtyPair `json:"bids"`
	Asks   []PriceQtyPair `json:"asks"`
}

// DashboardSnapshot aggregates current book depth across every configured
// symbol and venue plus the settlement-health state, sent to a dashboard
// client on connect and available via /api/snapshot.
type DashboardSnapshot struct {
	Timestamp time.Time          `json:"timestamp"`
	Books     []SymbolDepth      `json:"books"`
	Health    risk.HealthSnapshot `json:"settlement_health"`
}

const defaultSnapshotDepth = 25

// BuildSnapshot assembles a DashboardSnapshot from the current registry
// and risk-monitor state. Venues with no resting orders yet still appear,
// with empty bid/ask slices, since the registry lazily creates books.
func BuildSnapshot(provider StatusProvider) DashboardSnapshot {
	var books []SymbolDepth
	for _, sym := range provider.Symbols() {
		for _, venue := range []registry.Venue{registry.SameChain, registry.CrossChain} {
			depth, err := provider.BookDepth(sym, venue, defaultSnapshotDepth)
			if err != nil {
				continue
			}
			books = append(books, depth)
		}
	}
	return DashboardSnapshot{
		Timestamp: time.Now(),
		Books:     books,
		Health:    provider.SettlementHealth(),
	}
}
