package registry

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"crosslot/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSymbols() map[string]config.SymbolConfig {
	return map[string]config.SymbolConfig{
		"ETH_USDC": {
			BaseAsset:  "ETH",
			QuoteAsset: "USDC",
			TickSize:   "0.01",
		},
	}
}

func TestRouteSameChainVsCrossChain(t *testing.T) {
	t.Parallel()
	reg := New(testSymbols(), testLogger())

	same, err := reg.Route("ETH_USDC", "ethereum", "ethereum")
	if err != nil {
		t.Fatalf("Route same-chain: %v", err)
	}
	if same.Venue != string(SameChain) {
		t.Fatalf("Venue = %s, want %s", same.Venue, SameChain)
	}

	cross, err := reg.Route("ETH_USDC", "ethereum", "arbitrum")
	if err != nil {
		t.Fatalf("Route cross-chain: %v", err)
	}
	if cross.Venue != string(CrossChain) {
		t.Fatalf("Venue = %s, want %s", cross.Venue, CrossChain)
	}

	if same == cross {
		t.Fatalf("same-chain and cross-chain books must be distinct")
	}
}

func TestRouteReturnsSameBookOnRepeatedCalls(t *testing.T) {
	t.Parallel()
	reg := New(testSymbols(), testLogger())

	b1, _ := reg.Route("ETH_USDC", "ethereum", "ethereum")
	b2, _ := reg.Route("ETH_USDC", "ethereum", "ethereum")
	if b1 != b2 {
		t.Fatalf("expected the same book instance across calls")
	}
}

func TestRouteUnknownSymbol(t *testing.T) {
	t.Parallel()
	reg := New(testSymbols(), testLogger())

	_, err := reg.Route("BTC_USDC", "ethereum", "ethereum")
	if !errors.Is(err, ErrUnknownSymbol) {
		t.Fatalf("err = %v, want ErrUnknownSymbol", err)
	}
}

func TestRouteHaltedRejectsAdmission(t *testing.T) {
	t.Parallel()
	reg := New(testSymbols(), testLogger())
	reg.SetHalted(true)

	_, err := reg.Route("ETH_USDC", "ethereum", "ethereum")
	if !errors.Is(err, ErrTradingHalted) {
		t.Fatalf("err = %v, want ErrTradingHalted", err)
	}

	reg.SetHalted(false)
	if _, err := reg.Route("ETH_USDC", "ethereum", "ethereum"); err != nil {
		t.Fatalf("Route after clearing halt: %v", err)
	}
}

// A halt gates new order admission (Route) only; reads and cancels against
// books that already exist (BookFor) must keep working.
func TestBookForIgnoresHalt(t *testing.T) {
	t.Parallel()
	reg := New(testSymbols(), testLogger())
	reg.SetHalted(true)

	if _, err := reg.BookFor("ETH_USDC", SameChain); err != nil {
		t.Fatalf("BookFor during halt: %v", err)
	}
}

func TestSymbolConfigLookup(t *testing.T) {
	t.Parallel()
	reg := New(testSymbols(), testLogger())

	cfg, ok := reg.SymbolConfig("ETH_USDC")
	if !ok || cfg.BaseAsset != "ETH" {
		t.Fatalf("SymbolConfig = %+v, ok=%v", cfg, ok)
	}

	_, ok = reg.SymbolConfig("NOPE")
	if ok {
		t.Fatalf("expected ok=false for unknown symbol")
	}
}
