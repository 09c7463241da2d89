package settlement

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"crosslot/internal/chain"
	"crosslot/internal/config"
	"crosslot/internal/escrow"
	"crosslot/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func fakeChain(name string) *chain.Chain {
	return &chain.Chain{Name: name, Ledger: escrow.NewLedger(name)}
}

func testSymbols() map[string]config.SymbolConfig {
	return map[string]config.SymbolConfig{
		"HBAR_USDT": {
			BaseAsset:  "HBAR",
			QuoteAsset: "USDT",
			TickSize:   "0.01",
			Addresses: map[string]config.TokenAddresses{
				"ethereum": {BaseToken: "0xbase", QuoteToken: "0xquote"},
				"arbitrum": {BaseToken: "0xbase2", QuoteToken: "0xquote2"},
			},
		},
	}
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *chain.Chain, *chain.Chain) {
	t.Helper()
	eth := fakeChain("ethereum")
	arb := fakeChain("arbitrum")
	chains := map[types.Network]*chain.Chain{
		"ethereum": eth,
		"arbitrum": arb,
	}
	cfg := config.SettlementConfig{MaxRetries: 3, BackoffBase: time.Millisecond, BackoffMax: 5 * time.Millisecond, AbandonAfter: time.Second}
	o := New(chains, testSymbols(), cfg, nil, nil, testLogger())
	return o, eth, arb
}

func TestCheckEscrowAskRequiresBaseAsset(t *testing.T) {
	t.Parallel()
	o, eth, _ := newTestOrchestrator(t)

	eth.Ledger.SetBalance("acct-a", "0xbase", types.EscrowBalance{Total: decimal.RequireFromString("100")})

	if err := o.CheckEscrow("acct-a", "HBAR_USDT", types.Ask, "ethereum", decimal.RequireFromString("5"), decimal.RequireFromString("50")); err != nil {
		t.Fatalf("CheckEscrow() with sufficient balance = %v, want nil", err)
	}

	if err := o.CheckEscrow("acct-a", "HBAR_USDT", types.Ask, "ethereum", decimal.RequireFromString("5"), decimal.RequireFromString("150")); err == nil {
		t.Fatalf("CheckEscrow() with insufficient balance returned nil, want error")
	}
}

func TestCheckEscrowBidRequiresQuantityTimesPrice(t *testing.T) {
	t.Parallel()
	o, eth, _ := newTestOrchestrator(t)

	eth.Ledger.SetBalance("acct-b", "0xquote", types.EscrowBalance{Total: decimal.RequireFromString("500")})

	if err := o.CheckEscrow("acct-b", "HBAR_USDT", types.Bid, "ethereum", decimal.RequireFromString("5"), decimal.RequireFromString("100")); err != nil {
		t.Fatalf("CheckEscrow() with exactly enough balance = %v, want nil", err)
	}

	if err := o.CheckEscrow("acct-b", "HBAR_USDT", types.Bid, "ethereum", decimal.RequireFromString("5"), decimal.RequireFromString("101")); err == nil {
		t.Fatalf("CheckEscrow() with insufficient balance returned nil, want error")
	}
}

func TestCheckEscrowUnknownSymbol(t *testing.T) {
	t.Parallel()
	o, _, _ := newTestOrchestrator(t)
	err := o.CheckEscrow("acct", "NOPE-USDT", types.Ask, "ethereum", decimal.Zero, decimal.RequireFromString("1"))
	if err == nil {
		t.Fatalf("expected error for unknown symbol")
	}
}

func TestCheckEscrowUnknownNetwork(t *testing.T) {
	t.Parallel()
	o, _, _ := newTestOrchestrator(t)
	err := o.CheckEscrow("acct", "HBAR_USDT", types.Ask, "solana", decimal.RequireFromString("1"), decimal.RequireFromString("1"))
	if err == nil {
		t.Fatalf("expected config error for unconfigured network")
	}
}

func TestRoleParties(t *testing.T) {
	t.Parallel()
	trade := types.Trade{
		Maker: types.Party{Side: types.Ask, Account: "maker"},
		Taker: types.Party{Side: types.Bid, Account: "taker"},
	}
	ask, bid := roleParties(trade)
	if ask.Account != "maker" || bid.Account != "taker" {
		t.Fatalf("roleParties returned wrong pairing: ask=%v bid=%v", ask, bid)
	}

	trade2 := types.Trade{
		Maker: types.Party{Side: types.Bid, Account: "maker"},
		Taker: types.Party{Side: types.Ask, Account: "taker"},
	}
	ask2, bid2 := roleParties(trade2)
	if ask2.Account != "taker" || bid2.Account != "maker" {
		t.Fatalf("roleParties returned wrong pairing for swapped sides: ask=%v bid=%v", ask2, bid2)
	}
}

// Dispatch must populate Record.Trade synchronously, before the background
// settlement goroutine runs, so the returned Summary always carries the
// real quantity/price rather than the zero value. The trade targets a
// network absent from the symbol's address table so the background leg
// abandons immediately on a configuration error instead of reaching an RPC
// client (fakeChain's client is a zero value and would panic on a real
// call) — this test exercises only the synchronous part of Dispatch.
func TestDispatchPopulatesTradeOnSummary(t *testing.T) {
	t.Parallel()
	o, _, _ := newTestOrchestrator(t)

	trade := types.Trade{
		Symbol:     "HBAR_USDT",
		Price:      decimal.RequireFromString("5"),
		Quantity:   decimal.RequireFromString("10"),
		BaseAsset:  "HBAR",
		QuoteAsset: "USDT",
		Maker: types.Party{Account: "maker", Side: types.Ask, OrderID: 1, FromNetwork: "unconfigured", ToNetwork: "unconfigured"},
		Taker: types.Party{Account: "taker", Side: types.Bid, OrderID: 2, FromNetwork: "unconfigured", ToNetwork: "unconfigured"},
	}

	summary, err := o.Dispatch(trade, "HBAR_USDT")
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !summary.Quantity.Equal(trade.Quantity) {
		t.Fatalf("Summary.Quantity = %s, want %s", summary.Quantity, trade.Quantity)
	}
	if !summary.Price.Equal(trade.Price) {
		t.Fatalf("Summary.Price = %s, want %s", summary.Price, trade.Price)
	}
}

func TestRecordAsymmetricIsStrictXOR(t *testing.T) {
	t.Parallel()
	cases := []struct {
		source, dest bool
		want         bool
	}{
		{false, false, false},
		{true, true, false},
		{true, false, true},
		{false, true, true},
	}
	for _, c := range cases {
		rec := &Record{SourceSettled: c.source, DestSettled: c.dest}
		if got := rec.asymmetric(); got != c.want {
			t.Fatalf("asymmetric(%v, %v) = %v, want %v", c.source, c.dest, got, c.want)
		}
	}
}

func TestBackoffRespectsMax(t *testing.T) {
	t.Parallel()
	o := &Orchestrator{cfg: config.SettlementConfig{BackoffBase: 10 * time.Millisecond, BackoffMax: 25 * time.Millisecond}}
	if d := o.backoff(0); d != 10*time.Millisecond {
		t.Fatalf("backoff(0) = %v, want 10ms", d)
	}
	if d := o.backoff(5); d != 25*time.Millisecond {
		t.Fatalf("backoff(5) = %v, want capped at 25ms", d)
	}
}
