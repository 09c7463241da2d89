package priceproxy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"crosslot/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(config.PriceProxyConfig{BaseURL: srv.URL, Timeout: time.Second})
}

func TestGetPriceReturnsUpstreamBody(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("currency_pair"); got != "ETH_USDC" {
			t.Errorf("currency_pair query param = %q, want ETH_USDC", got)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"last": "2500.12"})
	})

	ticker, err := c.GetPrice(context.Background(), "ETH_USDC")
	if err != nil {
		t.Fatalf("GetPrice: unexpected error: %v", err)
	}
	if ticker["last"] != "2500.12" {
		t.Fatalf("ticker[last] = %v, want 2500.12", ticker["last"])
	}
}

func TestGetPriceNonOKStatus(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	if _, err := c.GetPrice(context.Background(), "ETH_USDC"); err == nil {
		t.Fatal("GetPrice with upstream 502: want error, got nil")
	}
}

func TestGetKlineReturnsCandles(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("limit"); got != "50" {
			t.Errorf("limit query param = %q, want 50", got)
		}
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{"open": "1", "close": "2"},
		})
	})

	candles, err := c.GetKline(context.Background(), "ETH_USDC", "1m", 50)
	if err != nil {
		t.Fatalf("GetKline: unexpected error: %v", err)
	}
	if len(candles) != 1 {
		t.Fatalf("GetKline returned %d candles, want 1", len(candles))
	}
}
