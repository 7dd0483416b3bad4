package polymarketapi

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

// PolymarketApiClient talks to the Gamma API (market catalog) and the
// Data API (wallet activity).
type PolymarketApiClient struct {
	logger       *zap.Logger
	httpClient   *http.Client
	gammaBaseURL string
	dataBaseURL  string
}

func NewPolymarketApiClient(logger *zap.Logger, cfg *config.Config) *PolymarketApiClient {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &PolymarketApiClient{
		logger: logger,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		gammaBaseURL: cfg.Polymarket.GammaAPIURL,
		dataBaseURL:  cfg.Polymarket.DataAPIURL,
	}
}

// ---- Gamma API types ----

type GammaMarket struct {
	ID          string `json:"id"`
	Slug        string `json:"slug"`
	Question    string `json:"question"`
	ConditionID string `json:"conditionId"`

	Outcomes      json.RawMessage `json:"outcomes"`
	OutcomePrices json.RawMessage `json:"outcomePrices"`

	Volume24hr   float64 `json:"volume24hr"`
	LiquidityNum float64 `json:"liquidityNum"`

	Active  bool   `json:"active"`
	Closed  bool   `json:"closed"`
	EndDate string `json:"endDate"`
}

// GetOutcomes parses the Outcomes field. Gamma encodes it either as an
// array or as a JSON string containing an array.
func (m *GammaMarket) GetOutcomes() []string {
	return parseMaybeStringArray(m.Outcomes)
}

// GetOutcomePrices parses OutcomePrices into floats, tolerating the
// same double-encoding as GetOutcomes.
func (m *GammaMarket) GetOutcomePrices() []float64 {
	strs := parseMaybeStringArray(m.OutcomePrices)
	if strs == nil {
		// Direct float array.
		var prices []float64
		if err := json.Unmarshal(m.OutcomePrices, &prices); err == nil {
			return prices
		}
		return nil
	}

	prices := make([]float64, len(strs))
	for i, s := range strs {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		prices[i] = f
	}
	return prices
}

// YesNoPrices returns the yes and no prices for a binary market, and
// false when the market is not a two-outcome yes/no market.
func (m *GammaMarket) YesNoPrices() (yes, no float64, ok bool) {
	outcomes := m.GetOutcomes()
	prices := m.GetOutcomePrices()
	if len(outcomes) != 2 || len(prices) != 2 {
		return 0, 0, false
	}

	for i, o := range outcomes {
		switch strings.ToLower(o) {
		case "yes":
			yes = prices[i]
		case "no":
			no = prices[i]
		default:
			return 0, 0, false
		}
	}
	return yes, no, true
}

// URL returns the public market page.
func (m *GammaMarket) URL() string {
	if m.Slug == "" {
		return ""
	}
	return "https://polymarket.com/event/" + m.Slug
}

// EndTime parses the market's end date, zero time when absent.
func (m *GammaMarket) EndTime() time.Time {
	if m.EndDate == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, m.EndDate)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseMaybeStringArray(raw json.RawMessage) []string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var arr []string
	if err := json.Unmarshal(raw, &arr); err == nil {
		return arr
	}

	// String containing a JSON array, e.g. "[\"Yes\", \"No\"]".
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if err := json.Unmarshal([]byte(s), &arr); err == nil {
			return arr
		}
	}
	return nil
}

// GetOpenMarkets fetches one page of active markets ordered by 24h
// volume. Pagination is offset-based; callers page until a short page.
func (c *PolymarketApiClient) GetOpenMarkets(
	ctx context.Context,
	limit int,
	offset int,
) ([]GammaMarket, error) {
	if limit <= 0 {
		limit = 200
	}

	u, err := url.Parse(c.gammaBaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid gammaBaseURL: %w", err)
	}
	u.Path = "/markets"

	q := u.Query()
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	q.Set("active", "true")
	q.Set("closed", "false")
	q.Set("order", "volume24hr")
	q.Set("ascending", "false")
	u.RawQuery = q.Encode()

	var markets []GammaMarket
	if err := c.doGet(ctx, u.String(), &markets); err != nil {
		return nil, fmt.Errorf("get open markets: %w", err)
	}
	return markets, nil
}

// ---- Data API types ----

// Activity is one row of wallet activity from the data API.
type Activity struct {
	ProxyWallet     string  `json:"proxyWallet"`
	Timestamp       int64   `json:"timestamp"`
	ConditionID     string  `json:"conditionId"`
	Type            string  `json:"type"` // TRADE, SPLIT, MERGE, REDEEM, REWARD, CONVERSION
	Size            float64 `json:"size"`
	UsdcSize        float64 `json:"usdcSize"`
	Price           float64 `json:"price"`
	Side            string  `json:"side"` // BUY or SELL for TRADE rows
	TransactionHash string  `json:"transactionHash"`

	Title        string   `json:"title"`
	Slug         string   `json:"slug"`
	EventSlug    string   `json:"eventSlug"`
	Icon         string   `json:"icon"`
	Outcome      string   `json:"outcome"`
	OutcomeIndex int      `json:"outcomeIndex"`
	Asset        string   `json:"asset"`
	Tags         []string `json:"tags"`
}

// TradedAt returns the activity timestamp as a time.Time.
func (a *Activity) TradedAt() time.Time {
	return time.Unix(a.Timestamp, 0).UTC()
}

// GetWalletActivity fetches activity for a wallet, newest first, with
// offset pagination and optional time filtering (unix seconds).
func (c *PolymarketApiClient) GetWalletActivity(
	ctx context.Context,
	wallet string,
	limit int,
	offset int,
	startTime int64,
) ([]Activity, error) {
	wallet = strings.TrimSpace(wallet)
	if wallet == "" {
		return nil, fmt.Errorf("wallet is empty")
	}

	if limit <= 0 {
		limit = 500
	}

	u, err := url.Parse(c.dataBaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid dataBaseURL: %w", err)
	}
	u.Path = "/activity"

	q := u.Query()
	q.Set("user", wallet)
	q.Set("limit", strconv.Itoa(limit))
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	if startTime > 0 {
		q.Set("start", strconv.FormatInt(startTime, 10))
	}
	u.RawQuery = q.Encode()

	var activity []Activity
	if err := c.doGet(ctx, u.String(), &activity); err != nil {
		return nil, fmt.Errorf("get wallet activity: %w", err)
	}
	return activity, nil
}

// doGet performs a GET request and decodes the JSON response.
func (c *PolymarketApiClient) doGet(ctx context.Context, url string, dest any) error {
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
