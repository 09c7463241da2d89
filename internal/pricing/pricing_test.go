package pricing

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseSymbol(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		want    Symbol
		wantErr bool
	}{
		{name: "simple pair", raw: "eth_usdc", want: Symbol{Base: "ETH", Quote: "USDC"}},
		{name: "missing separator", raw: "ethusdc", wantErr: true},
		{name: "empty base", raw: "_usdc", wantErr: true},
		{name: "too many parts", raw: "eth_usdc_extra", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseSymbol(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseSymbol(%q) = nil error, want error", tt.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSymbol(%q) returned error: %v", tt.raw, err)
			}
			if got != tt.want {
				t.Errorf("ParseSymbol(%q) = %+v, want %+v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestOnTickGrid(t *testing.T) {
	t.Parallel()

	tick := decimal.RequireFromString("0.01")
	tests := []struct {
		name  string
		price string
		want  bool
	}{
		{name: "exact multiple", price: "1.00", want: true},
		{name: "exact multiple with fraction", price: "1.23", want: true},
		{name: "off grid", price: "1.005", want: false},
		{name: "zero", price: "0", want: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			price := decimal.RequireFromString(tt.price)
			if got := OnTickGrid(price, tick); got != tt.want {
				t.Errorf("OnTickGrid(%s, %s) = %v, want %v", tt.price, tick, got, tt.want)
			}
		})
	}
}

func TestChainUnitsRoundTrip(t *testing.T) {
	t.Parallel()

	amount := decimal.RequireFromString("12.345678")
	units := ToChainUnits(amount, 6)
	if units.Cmp(big.NewInt(12345678)) != 0 {
		t.Fatalf("ToChainUnits = %v, want 12345678", units)
	}

	back := FromChainUnits(units, 6)
	if !back.Equal(amount) {
		t.Errorf("FromChainUnits(ToChainUnits(x)) = %s, want %s", back, amount)
	}
}

func TestToChainUnitsTruncates(t *testing.T) {
	t.Parallel()

	// 6-decimal token but amount carries more precision than representable
	// at 6 decimals — truncation, not rounding.
	amount := decimal.RequireFromString("1.9999999")
	units := ToChainUnits(amount, 6)
	if units.Cmp(big.NewInt(1999999)) != 0 {
		t.Fatalf("ToChainUnits = %v, want 1999999 (truncated)", units)
	}
}
