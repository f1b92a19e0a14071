// Package pricing looks up spot USD prices for the tracked token.
package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"netbuy-ranker/internal/observability"
)

// Default configuration values.
const (
	DefaultURL           = "https://api.swapscanner.io/v1/tokens/prices"
	DefaultNativeAddress = "0x0000000000000000000000000000000000000000"
	DefaultTimeout       = 10 * time.Second
)

// ErrPriceNotFound is returned when the price feed has no entry for an address.
var ErrPriceNotFound = errors.New("price not found")

// Quote is one priced view of the token.
type Quote struct {
	TokenAddress   string          `json:"token_address"`
	TokenUSD       decimal.Decimal `json:"token_usd"`
	NativeUSD      decimal.Decimal `json:"native_usd"`
	TokenPerNative decimal.Decimal `json:"token_per_native"`
	MarketCap      decimal.Decimal `json:"market_cap"`
	FetchedAt      time.Time       `json:"fetched_at"`
}

// Options for creating a Client.
type Options struct {
	URL           string
	TokenAddress  string
	NativeAddress string
	TotalSupply   decimal.Decimal
	HTTPClient    *http.Client
}

// Client reads a price feed of the form {"<address>": "<usd price>", ...}.
type Client struct {
	url           string
	tokenAddress  string
	nativeAddress string
	totalSupply   decimal.Decimal
	client        *http.Client
}

// NewClient creates a new price client.
func NewClient(opts Options) *Client {
	c := &Client{
		url:           opts.URL,
		tokenAddress:  strings.ToLower(opts.TokenAddress),
		nativeAddress: strings.ToLower(opts.NativeAddress),
		totalSupply:   opts.TotalSupply,
		client:        opts.HTTPClient,
	}
	if c.url == "" {
		c.url = DefaultURL
	}
	if c.nativeAddress == "" {
		c.nativeAddress = DefaultNativeAddress
	}
	if c.client == nil {
		c.client = &http.Client{Timeout: DefaultTimeout}
	}
	return c
}

// Prices returns the whole feed keyed by lower-cased address.
func (c *Client) Prices(ctx context.Context) (map[string]decimal.Decimal, error) {
	start := time.Now()
	defer func() { observability.RecordPriceQuery(time.Since(start)) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("price feed returned status %d", resp.StatusCode)
	}

	var raw map[string]json.Number
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal prices: %w", err)
	}

	prices := make(map[string]decimal.Decimal, len(raw))
	for addr, n := range raw {
		p, err := decimal.NewFromString(n.String())
		if err != nil {
			return nil, fmt.Errorf("price for %s: %w", addr, err)
		}
		prices[strings.ToLower(addr)] = p
	}
	return prices, nil
}

// Quote prices the token in USD and in the native coin.
// Returns an error wrapping ErrPriceNotFound if either price is missing.
func (c *Client) Quote(ctx context.Context) (*Quote, error) {
	prices, err := c.Prices(ctx)
	if err != nil {
		return nil, err
	}

	token, ok := prices[c.tokenAddress]
	if !ok {
		return nil, fmt.Errorf("%w: token %s", ErrPriceNotFound, c.tokenAddress)
	}
	native, ok := prices[c.nativeAddress]
	if !ok || native.IsZero() {
		return nil, fmt.Errorf("%w: native %s", ErrPriceNotFound, c.nativeAddress)
	}

	return &Quote{
		TokenAddress:   c.tokenAddress,
		TokenUSD:       token,
		NativeUSD:      native,
		TokenPerNative: token.Div(native),
		MarketCap:      token.Mul(c.totalSupply),
		FetchedAt:      time.Now().UTC(),
	}, nil
}

// FormatMarketCap renders v with an M or k suffix and two decimals.
func FormatMarketCap(v decimal.Decimal) string {
	million := decimal.NewFromInt(1_000_000)
	thousand := decimal.NewFromInt(1_000)

	switch {
	case v.GreaterThanOrEqual(million):
		return v.Div(million).StringFixed(2) + "M"
	case v.GreaterThanOrEqual(thousand):
		return v.Div(thousand).StringFixed(2) + "k"
	default:
		return v.StringFixed(2)
	}
}
