// Package explorer fetches token transfer pages from a block-explorer HTTP API.
package explorer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"netbuy-ranker/internal/domain"
	"netbuy-ranker/internal/observability"
)

// Default configuration values.
const (
	DefaultBaseURL   = "https://api-cypress.klaytnscope.com/v2"
	DefaultTimeout   = 30 * time.Second
	DefaultUserAgent = "netbuy-ranker/1.0"

	maxBodyBytes = 16 << 20
)

// Client fetches transfer pages for a single token. It never retries; the caller
// decides what a failed page means for the run.
type Client struct {
	baseURL      string
	tokenAddress string
	client       *http.Client
	userAgent    string
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// NewClient creates a client for the transfers of tokenAddress.
func NewClient(baseURL, tokenAddress string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		tokenAddress: strings.ToLower(tokenAddress),
		client:       &http.Client{Timeout: DefaultTimeout},
		userAgent:    DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchPage returns the records of one 1-indexed page, newest first.
// An empty slice with nil error means the page is past the end of history.
// Every failure is returned as *FetchError.
func (c *Client) FetchPage(ctx context.Context, page int) ([]*domain.TransferRecord, error) {
	start := time.Now()
	records, kind, err := c.fetchPage(ctx, page)
	observability.RecordPageFetch(kind, time.Since(start))
	return records, err
}

func (c *Client) fetchPage(ctx context.Context, page int) ([]*domain.TransferRecord, string, error) {
	if page < 1 {
		return nil, "request", &FetchError{Page: page, Err: fmt.Errorf("page must be >= 1")}
	}

	endpoint := fmt.Sprintf("%s/tokens/%s/transfers?%s",
		c.baseURL, url.PathEscape(c.tokenAddress), url.Values{"page": {strconv.Itoa(page)}}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, "request", &FetchError{Page: page, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "transport", &FetchError{Page: page, Err: fmt.Errorf("http request: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, "transport", &FetchError{Page: page, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "status", &FetchError{
			Page:       page,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status: %s", truncate(string(body), 256)),
		}
	}

	var parsed transfersResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, "decode", &FetchError{Page: page, StatusCode: resp.StatusCode, Err: fmt.Errorf("unmarshal response: %w", err)}
	}
	if parsed.Result == nil {
		return nil, "decode", &FetchError{Page: page, StatusCode: resp.StatusCode, Err: errors.New("response has no result field")}
	}

	raw := *parsed.Result
	records := make([]*domain.TransferRecord, 0, len(raw))
	for i, t := range raw {
		r, err := t.toRecord()
		if err != nil {
			return nil, "decode", &FetchError{Page: page, StatusCode: resp.StatusCode, Err: fmt.Errorf("entry %d: %w", i, err)}
		}
		records = append(records, r)
	}
	return records, "", nil
}

// toRecord converts a wire entry into a ledger record with the amount scaled by decimals.
func (t rawTransfer) toRecord() (*domain.TransferRecord, error) {
	hash := strings.TrimSpace(t.ParentHash)
	if hash == "" {
		return nil, errors.New("empty parentHash")
	}

	block, err := strconv.ParseInt(t.BlockNumber.String(), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("blockNumber %q: %w", t.BlockNumber, err)
	}

	decimals, err := strconv.ParseInt(t.Decimals.String(), 10, 32)
	if err != nil || decimals < 0 {
		return nil, fmt.Errorf("decimals %q: invalid", t.Decimals)
	}

	raw, ok := new(big.Int).SetString(t.Amount.String(), 10)
	if !ok {
		return nil, fmt.Errorf("amount %q: not an integer", t.Amount)
	}

	return &domain.TransferRecord{
		ID:          strings.ToLower(hash),
		FromAddress: strings.ToLower(strings.TrimSpace(t.FromAddress)),
		ToAddress:   strings.ToLower(strings.TrimSpace(t.ToAddress)),
		Amount:      decimal.NewFromBigInt(raw, -int32(decimals)),
		BlockNumber: block,
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
