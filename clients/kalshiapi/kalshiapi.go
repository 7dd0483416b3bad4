// Package kalshiapi is a read-only client for the Kalshi trade API
// market catalog.
package kalshiapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"whalewatch/config"
)

type KalshiApiClient struct {
	logger     *zap.Logger
	httpClient *http.Client
	baseURL    string
}

func NewKalshiApiClient(logger *zap.Logger, cfg *config.Config) *KalshiApiClient {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &KalshiApiClient{
		logger: logger,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: cfg.Kalshi.APIURL,
	}
}

// Market is one tradeable binary market. Prices are in cents (0-100).
type Market struct {
	Ticker      string `json:"ticker"`
	EventTicker string `json:"event_ticker"`
	Title       string `json:"title"`
	Subtitle    string `json:"subtitle"`
	Status      string `json:"status"`
	MarketType  string `json:"market_type"`

	YesBid    int `json:"yes_bid"`
	YesAsk    int `json:"yes_ask"`
	NoBid     int `json:"no_bid"`
	NoAsk     int `json:"no_ask"`
	LastPrice int `json:"last_price"`

	Volume       int64 `json:"volume"`
	Volume24h    int64 `json:"volume_24h"`
	OpenInterest int64 `json:"open_interest"`

	OpenTime  string `json:"open_time"`
	CloseTime string `json:"close_time"`
}

// Binary reports whether the market is a yes/no binary with a quoted
// ask on both sides.
func (m *Market) Binary() bool {
	return (m.MarketType == "" || m.MarketType == "binary") &&
		m.YesAsk > 0 && m.NoAsk > 0
}

// CloseAt parses the market close time, zero time when absent.
func (m *Market) CloseAt() time.Time {
	if m.CloseTime == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, m.CloseTime)
	if err != nil {
		return time.Time{}
	}
	return t
}

// URL returns the public market page.
func (m *Market) URL() string {
	if m.Ticker == "" {
		return ""
	}
	return "https://kalshi.com/markets/" + strings.ToLower(m.Ticker)
}

// MarketsPage is one page of the market catalog. An empty cursor means
// the catalog is exhausted.
type MarketsPage struct {
	Markets []Market `json:"markets"`
	Cursor  string   `json:"cursor"`
}

// GetOpenMarkets fetches one page of open markets. Pass the previous
// page's cursor to continue; empty cursor starts from the beginning.
func (c *KalshiApiClient) GetOpenMarkets(
	ctx context.Context,
	limit int,
	cursor string,
) (*MarketsPage, error) {
	if limit <= 0 {
		limit = 200
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid kalshi baseURL: %w", err)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/markets"

	q := u.Query()
	q.Set("limit", strconv.Itoa(limit))
	q.Set("status", "open")
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	u.RawQuery = q.Encode()

	var page MarketsPage
	if err := c.doGet(ctx, u.String(), &page); err != nil {
		return nil, fmt.Errorf("get open markets: %w", err)
	}
	return &page, nil
}

// doGet performs a GET request and decodes the JSON response.
func (c *KalshiApiClient) doGet(ctx context.Context, url string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("status=%d body=%s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}

	return nil
}
