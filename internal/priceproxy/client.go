// Package priceproxy forwards the two read-only reference-price endpoints
// (ticker and candles) to an external price service, the same resty-based
// client shape the teacher uses to poll its market discovery API.
package priceproxy

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"crosslot/internal/config"
)

// Client proxies /api/price and /api/kline to an external reference-price
// service. It holds no exchange state; it exists only to keep the HTTP
// client configuration (base URL, timeout, retries) in one place.
type Client struct {
	http *resty.Client
}

// New creates a price proxy client pointed at cfg.BaseURL.
func New(cfg config.PriceProxyConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetRetryCount(2)
	return &Client{http: client}
}

// Ticker is the /api/price response shape: whatever the upstream ticker
// endpoint returns, passed through as a generic map so this proxy never
// has to track the upstream's exact schema.
type Ticker map[string]interface{}

// Candle is one OHLCV row from the upstream kline endpoint.
type Candle map[string]interface{}

// GetPrice fetches the current ticker for a currency pair.
func (c *Client) GetPrice(ctx context.Context, currencyPair string) (Ticker, error) {
	var out Ticker
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("currency_pair", currencyPair).
		SetResult(&out).
		Get("/price")
	if err != nil {
		return nil, fmt.Errorf("priceproxy: fetch price %s: %w", currencyPair, err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("priceproxy: fetch price %s: status %d", currencyPair, resp.StatusCode())
	}
	return out, nil
}

// GetKline fetches candles for a currency pair over the given interval,
// capped at limit rows.
func (c *Client) GetKline(ctx context.Context, currencyPair, interval string, limit int) ([]Candle, error) {
	var out []Candle
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"currency_pair": currencyPair,
			"interval":      interval,
			"limit":         fmt.Sprintf("%d", limit),
		}).
		SetResult(&out).
		Get("/kline")
	if err != nil {
		return nil, fmt.Errorf("priceproxy: fetch kline %s: %w", currencyPair, err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("priceproxy: fetch kline %s: status %d", currencyPair, resp.StatusCode())
	}
	return out, nil
}
