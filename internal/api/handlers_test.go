package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"crosslot/internal/apierr"
	"crosslot/internal/book"
	"crosslot/internal/config"
)

func TestIsOriginAllowed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		origin  string
		cfg     config.DashboardConfig
		reqHost string
		want    bool
	}{
		{
			name:    "empty origin is allowed",
			origin:  "",
			cfg:     config.DashboardConfig{},
			reqHost: "localhost:8080",
			want:    true,
		},
		{
			name:    "localhost origin allowed by default",
			origin:  "http://localhost:8080",
			cfg:     config.DashboardConfig{},
			reqHost: "localhost:8080",
			want:    true,
		},
		{
			name:    "non-local origin denied by default",
			origin:  "https://evil.example",
			cfg:     config.DashboardConfig{},
			reqHost: "localhost:8080",
			want:    false,
		},
		{
			name:    "allowlist permits exact origin",
			origin:  "https://dash.example.com",
			cfg:     config.DashboardConfig{AllowedOrigins: []string{"https://dash.example.com"}},
			reqHost: "0.0.0.0:8080",
			want:    true,
		},
		{
			name:    "allowlist denies everything else",
			origin:  "https://evil.example",
			cfg:     config.DashboardConfig{AllowedOrigins: []string{"https://dash.example.com"}},
			reqHost: "0.0.0.0:8080",
			want:    false,
		},
		{
			name:    "same host allowed when no allowlist",
			origin:  "https://mm.internal:8080",
			cfg:     config.DashboardConfig{},
			reqHost: "mm.internal:8080",
			want:    true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := isOriginAllowed(tt.origin, tt.cfg, tt.reqHost); got != tt.want {
				t.Fatalf("isOriginAllowed(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}

func TestParseSide(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{raw: "bid", want: "bid"},
		{raw: "BUY", want: "bid"},
		{raw: "ask", want: "ask"},
		{raw: "sell", want: "ask"},
		{raw: "sideways", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()
			got, err := parseSide(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseSide(%q) = %v, want error", tt.raw, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseSide(%q) unexpected error: %v", tt.raw, err)
			}
			if string(got) != tt.want {
				t.Fatalf("parseSide(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseOrderType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{raw: "limit", want: "limit"},
		{raw: "MARKET", want: "market"},
		{raw: "stop", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()
			got, err := parseOrderType(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseOrderType(%q) = %v, want error", tt.raw, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseOrderType(%q) unexpected error: %v", tt.raw, err)
			}
			if string(got) != tt.want {
				t.Fatalf("parseOrderType(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestToPairs(t *testing.T) {
	t.Parallel()

	levels := []book.PriceQty{
		{Price: decimal.RequireFromString("1.5"), Quantity: decimal.RequireFromString("10")},
		{Price: decimal.RequireFromString("1.4"), Quantity: decimal.RequireFromString("5")},
	}
	pairs := toPairs(levels)
	if len(pairs) != 2 {
		t.Fatalf("toPairs returned %d pairs, want 2", len(pairs))
	}
	if pairs[0][0] != "1.5" || pairs[0][1] != "10" {
		t.Fatalf("toPairs[0] = %v, want [1.5 10]", pairs[0])
	}
	if pairs[1][0] != "1.4" || pairs[1][1] != "5" {
		t.Fatalf("toPairs[1] = %v, want [1.4 5]", pairs[1])
	}
}

func TestDecodePayloadRequiresField(t *testing.T) {
	t.Parallel()

	form := url.Values{}
	req := httptest.NewRequest(http.MethodPost, "/register_order", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var out map[string]string
	if err := decodePayload(req, &out); err == nil {
		t.Fatal("decodePayload with no payload field: want error, got nil")
	}
}

func TestDecodePayloadParsesJSON(t *testing.T) {
	t.Parallel()

	form := url.Values{}
	form.Set("payload", `{"account":"0xabc"}`)
	req := httptest.NewRequest(http.MethodPost, "/register_order", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var out RegisterOrderRequest
	if err := decodePayload(req, &out); err != nil {
		t.Fatalf("decodePayload: unexpected error: %v", err)
	}
	if out.Account != "0xabc" {
		t.Fatalf("decodePayload: account = %q, want 0xabc", out.Account)
	}
}

func TestWriteErrorUnclassifiedIsInternal(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	writeError(rec, errors.New("boom"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("writeError(unclassified) status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}

func TestWriteErrorClassified(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	writeError(rec, apierr.New(apierr.NotFound, "order not found"))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("writeError(NotFound) status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}
