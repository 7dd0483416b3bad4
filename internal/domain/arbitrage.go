package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ArbDirection names which legs to buy for a cross-venue opportunity.
type ArbDirection string

const (
	DirectionYesPolyNoKalshi ArbDirection = "BUY_YES_POLY_BUY_NO_KALSHI"
	DirectionNoPolyYesKalshi ArbDirection = "BUY_NO_POLY_BUY_YES_KALSHI"
)

// ArbitrageOpportunity is a matched Polymarket/Kalshi market pair with
// complementary-outcome margins on a 0-100 scale. A pair is an
// opportunity when either margin is strictly below 100: buying both
// legs costs less than the guaranteed $100 payout per contract set.
type ArbitrageOpportunity struct {
	ID uuid.UUID `db:"id"`

	// Venue pair identity; upserts are keyed on these two columns.
	PolymarketID string `db:"polymarket_id"`
	KalshiTicker string `db:"kalshi_ticker"`

	PolymarketTitle string `db:"polymarket_title"`
	KalshiTitle     string `db:"kalshi_title"`
	PolymarketURL   string `db:"polymarket_url"`
	KalshiURL       string `db:"kalshi_url"`

	// Polymarket prices in cents (0-100 scale).
	PolyYesCents decimal.Decimal `db:"poly_yes_cents"`
	PolyNoCents  decimal.Decimal `db:"poly_no_cents"`

	// Kalshi ask prices in cents.
	KalshiYesAskCents decimal.Decimal `db:"kalshi_yes_ask_cents"`
	KalshiNoAskCents  decimal.Decimal `db:"kalshi_no_ask_cents"`
	KalshiYesBidCents decimal.Decimal `db:"kalshi_yes_bid_cents"`
	KalshiNoBidCents  decimal.Decimal `db:"kalshi_no_bid_cents"`

	PolyLiquidityUSD decimal.Decimal `db:"poly_liquidity_usd"`
	KalshiVolume24h  int64           `db:"kalshi_volume_24h"`

	PolyCloseTime   *time.Time `db:"poly_close_time"`
	KalshiCloseTime *time.Time `db:"kalshi_close_time"`

	// MarginYesPolyNoKalshi = polyYes + kalshiNoAsk
	// MarginNoPolyYesKalshi = polyNo + kalshiYesAsk
	MarginYesPolyNoKalshi decimal.Decimal `db:"margin_yes_poly_no_kalshi"`
	MarginNoPolyYesKalshi decimal.Decimal `db:"margin_no_poly_yes_kalshi"`
	BestMargin            decimal.Decimal `db:"best_margin"`
	Direction             ArbDirection    `db:"direction"`

	// Similarity is the title-match score in [0,1] that paired the
	// two markets.
	Similarity decimal.Decimal `db:"similarity"`

	// Verified is set manually after a human confirms the two markets
	// resolve on the same terms. Upserts never clear it.
	Verified bool `db:"verified"`

	FirstSeenAt time.Time `db:"first_seen_at"`
	LastSeenAt  time.Time `db:"last_seen_at"`
}

var hundred = decimal.NewFromInt(100)

// ComputeMargins fills both directional margins, the best margin, and
// the direction tag from the stored prices.
func (o *ArbitrageOpportunity) ComputeMargins() {
	o.MarginYesPolyNoKalshi = o.PolyYesCents.Add(o.KalshiNoAskCents)
	o.MarginNoPolyYesKalshi = o.PolyNoCents.Add(o.KalshiYesAskCents)

	if o.MarginYesPolyNoKalshi.LessThanOrEqual(o.MarginNoPolyYesKalshi) {
		o.BestMargin = o.MarginYesPolyNoKalshi
		o.Direction = DirectionYesPolyNoKalshi
	} else {
		o.BestMargin = o.MarginNoPolyYesKalshi
		o.Direction = DirectionNoPolyYesKalshi
	}
}

// IsProfitable reports whether either directional margin is strictly
// below the 100-cent payout.
func (o *ArbitrageOpportunity) IsProfitable() bool {
	return o.MarginYesPolyNoKalshi.LessThan(hundred) ||
		o.MarginNoPolyYesKalshi.LessThan(hundred)
}

// ProfitCents returns the guaranteed profit per contract set for the
// best direction, zero when the pair is not profitable.
func (o *ArbitrageOpportunity) ProfitCents() decimal.Decimal {
	if !o.IsProfitable() {
		return decimal.Zero
	}
	return hundred.Sub(o.BestMargin)
}
