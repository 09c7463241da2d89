// Package pricing provides the fixed-precision decimal utilities the rest
// of the exchange builds on: tick-grid validation, symbol parsing, and
// conversion between human-readable decimals and the big.Int units an
// on-chain settlement call expects.
//
// Prices and quantities are never represented as native binary floats
// anywhere past the HTTP boundary — everything downstream of request
// decoding uses decimal.Decimal, whose comparisons and arithmetic are
// exact on the underlying integer coefficient.
package pricing

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Symbol is a parsed "BASE_QUOTE" trading pair, e.g. "ETH_USDC".
type Symbol struct {
	Base  string
	Quote string
}

func (s Symbol) String() string {
	return s.Base + "_" + s.Quote
}

// ParseSymbol splits a "BASE_QUOTE" pair string. Returns an error if the
// string doesn't contain exactly one separator or either side is empty.
func ParseSymbol(raw string) (Symbol, error) {
	parts := strings.Split(raw, "_")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Symbol{}, fmt.Errorf("parse symbol %q: expected BASE_QUOTE", raw)
	}
	return Symbol{Base: strings.ToUpper(parts[0]), Quote: strings.ToUpper(parts[1])}, nil
}

// ParseDecimal parses a decimal string arriving at the API boundary
// (request JSON carries numerics as strings specifically so this is the
// only place a string-to-decimal conversion happens).
func ParseDecimal(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse decimal %q: %w", raw, err)
	}
	return d, nil
}

// OnTickGrid reports whether price is an exact multiple of tick. Both are
// compared on their raw integer representation — decimal.Decimal's Mod is
// exact, so no epsilon handling is needed.
func OnTickGrid(price, tick decimal.Decimal) bool {
	if tick.IsZero() {
		return true
	}
	return price.Mod(tick).IsZero()
}

// ToChainUnits scales a human-readable decimal amount to the integer unit
// representation an EVM token with `decimals` places expects (e.g. 6 for
// USDC, 18 for most ERC-20s), truncating any precision beyond what the
// token supports. This mirrors the teacher's PriceToAmounts scale-and-
// truncate shape, generalized to an arbitrary per-token decimals count
// instead of a hardcoded 1e6 USDC scale.
func ToChainUnits(amount decimal.Decimal, tokenDecimals int32) *big.Int {
	scaled := amount.Shift(tokenDecimals).Truncate(0)
	return scaled.BigInt()
}

// FromChainUnits converts raw on-chain integer units back to a
// human-readable decimal for a token with `decimals` places.
func FromChainUnits(units *big.Int, tokenDecimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(units, -tokenDecimals)
}
