// Package registry implements the book registry (C5): per-symbol lookup
// of the same-chain and cross-chain books, created lazily on first use and
// gated by the settlement-health trading halt.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"crosslot/internal/config"
	"crosslot/internal/matching"
	"crosslot/pkg/types"
)

// ErrUnknownSymbol is returned when a request names a symbol that has no
// entry in configuration.
var ErrUnknownSymbol = errors.New("registry: unknown symbol")

// ErrTradingHalted is returned by Route when the registry's halt flag is
// set (the settlement-health monitor tripped).
var ErrTradingHalted = errors.New("registry: trading halted")

// Venue distinguishes a symbol's two logical books.
type Venue string

const (
	SameChain  Venue = "same_chain"
	CrossChain Venue = "cross_chain"
)

// symbolBooks holds the two books for one configured symbol, created on
// first use.
type symbolBooks struct {
	sameChain  *matching.Book
	crossChain *matching.Book
}

// Registry is process-wide state: one entry per configured symbol, each
// holding its two venues' books. A registry-wide lock guards only the
// lazy-creation path; once a book exists, all access to it goes through
// the book's own lock, never the registry's.
type Registry struct {
	mu      sync.Mutex
	symbols map[string]config.SymbolConfig
	books   map[string]*symbolBooks

	halted   bool
	logger   *slog.Logger
}

// New creates a registry from the configured symbol set. Books are not
// created until first use.
func New(symbols map[string]config.SymbolConfig, logger *slog.Logger) *Registry {
	return &Registry{
		symbols: symbols,
		books:   make(map[string]*symbolBooks),
		logger:  logger.With("component", "registry"),
	}
}

// SetHalted engages or clears the trading halt; engaged, Route refuses all
// new admissions until cleared.
func (r *Registry) SetHalted(halted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.halted = halted
}

// Route resolves a (symbol, fromNetwork, toNetwork) request to the book
// that should handle it, creating the book on first use. Equal networks
// route to the same-chain venue; unequal networks route to cross-chain.
func (r *Registry) Route(symbol string, fromNetwork, toNetwork types.Network) (*matching.Book, error) {
	venue := SameChain
	if fromNetwork != toNetwork {
		venue = CrossChain
	}

	r.mu.Lock()
	halted := r.halted
	r.mu.Unlock()
	if halted {
		return nil, ErrTradingHalted
	}

	return r.bookFor(symbol, venue)
}

// BookFor returns the book for an explicit venue, creating it on first use.
// Used by snapshot/history/cancel/lookup endpoints that address a venue
// directly rather than deriving it from an order's networks. Unlike Route,
// BookFor never checks the halt flag: a halt gates new order admission
// only, not reads of or cancellations against books that already exist.
func (r *Registry) BookFor(symbol string, venue Venue) (*matching.Book, error) {
	return r.bookFor(symbol, venue)
}

func (r *Registry) bookFor(symbol string, venue Venue) (*matching.Book, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	symCfg, ok := r.symbols[symbol]
	if !ok {
		return nil, fmt.Errorf("route %s: %w", symbol, ErrUnknownSymbol)
	}

	sb, ok := r.books[symbol]
	if !ok {
		sb = &symbolBooks{}
		r.books[symbol] = sb
	}

	tick, err := decimal.NewFromString(symCfg.TickSize)
	if err != nil {
		return nil, fmt.Errorf("symbol %s tick_size: %w", symbol, err)
	}

	switch venue {
	case SameChain:
		if sb.sameChain == nil {
			sb.sameChain = matching.NewBook(symbol, string(SameChain), tick, symCfg.SelfTradePrevention, symCfg.TapeLimit, r.logger)
		}
		return sb.sameChain, nil
	case CrossChain:
		if sb.crossChain == nil {
			sb.crossChain = matching.NewBook(symbol, string(CrossChain), tick, symCfg.SelfTradePrevention, symCfg.TapeLimit, r.logger)
		}
		return sb.crossChain, nil
	default:
		return nil, fmt.Errorf("route %s: unknown venue %q", symbol, venue)
	}
}

// SymbolConfig returns the configured settings for a symbol, used by the
// API layer for tick/minimum-size validation and token-address
// resolution.
func (r *Registry) SymbolConfig(symbol string) (config.SymbolConfig, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg, ok := r.symbols[symbol]
	return cfg, ok
}

// Symbols returns every configured symbol name.
func (r *Registry) Symbols() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.symbols))
	for s := range r.symbols {
		out = append(out, s)
	}
	return out
}
