package postgres

import (
	"context"
	"database/sql"
	"errors"

	"whalewatch/internal/domain"
	"whalewatch/internal/storage"
)

var _ storage.OpportunityStore = (*OpportunityStore)(nil)

// OpportunityStore implements storage.OpportunityStore using sqlx.
type OpportunityStore struct {
	db DBTX
}

func NewOpportunityStore(db DBTX) *OpportunityStore {
	return &OpportunityStore{db: db}
}

func (s *OpportunityStore) Upsert(ctx context.Context, o *domain.ArbitrageOpportunity) error {
	// verified and first_seen_at are owned by the existing row.
	query := `
		INSERT INTO arbitrage_opportunities (
			id, polymarket_id, kalshi_ticker,
			polymarket_title, kalshi_title, polymarket_url, kalshi_url,
			poly_yes_cents, poly_no_cents,
			kalshi_yes_ask_cents, kalshi_no_ask_cents,
			kalshi_yes_bid_cents, kalshi_no_bid_cents,
			poly_liquidity_usd, kalshi_volume_24h,
			poly_close_time, kalshi_close_time,
			margin_yes_poly_no_kalshi, margin_no_poly_yes_kalshi,
			best_margin, direction, similarity, verified,
			first_seen_at, last_seen_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25
		)
		ON CONFLICT (polymarket_id, kalshi_ticker) DO UPDATE SET
			polymarket_title = EXCLUDED.polymarket_title,
			kalshi_title = EXCLUDED.kalshi_title,
			polymarket_url = EXCLUDED.polymarket_url,
			kalshi_url = EXCLUDED.kalshi_url,
			poly_yes_cents = EXCLUDED.poly_yes_cents,
			poly_no_cents = EXCLUDED.poly_no_cents,
			kalshi_yes_ask_cents = EXCLUDED.kalshi_yes_ask_cents,
			kalshi_no_ask_cents = EXCLUDED.kalshi_no_ask_cents,
			kalshi_yes_bid_cents = EXCLUDED.kalshi_yes_bid_cents,
			kalshi_no_bid_cents = EXCLUDED.kalshi_no_bid_cents,
			poly_liquidity_usd = EXCLUDED.poly_liquidity_usd,
			kalshi_volume_24h = EXCLUDED.kalshi_volume_24h,
			poly_close_time = EXCLUDED.poly_close_time,
			kalshi_close_time = EXCLUDED.kalshi_close_time,
			margin_yes_poly_no_kalshi = EXCLUDED.margin_yes_poly_no_kalshi,
			margin_no_poly_yes_kalshi = EXCLUDED.margin_no_poly_yes_kalshi,
			best_margin = EXCLUDED.best_margin,
			direction = EXCLUDED.direction,
			similarity = EXCLUDED.similarity,
			last_seen_at = EXCLUDED.last_seen_at`

	_, err := s.db.ExecContext(ctx, query,
		o.ID, o.PolymarketID, o.KalshiTicker,
		o.PolymarketTitle, o.KalshiTitle, o.PolymarketURL, o.KalshiURL,
		o.PolyYesCents, o.PolyNoCents,
		o.KalshiYesAskCents, o.KalshiNoAskCents,
		o.KalshiYesBidCents, o.KalshiNoBidCents,
		o.PolyLiquidityUSD, o.KalshiVolume24h,
		o.PolyCloseTime, o.KalshiCloseTime,
		o.MarginYesPolyNoKalshi, o.MarginNoPolyYesKalshi,
		o.BestMargin, o.Direction, o.Similarity, o.Verified,
		o.FirstSeenAt, o.LastSeenAt,
	)
	return err
}

func (s *OpportunityStore) Get(ctx context.Context, polymarketID, kalshiTicker string) (*domain.ArbitrageOpportunity, error) {
	var o domain.ArbitrageOpportunity

	query := `
		SELECT * FROM arbitrage_opportunities
		WHERE polymarket_id = $1 AND kalshi_ticker = $2`

	err := s.db.GetContext(ctx, &o, query, polymarketID, kalshiTicker)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *OpportunityStore) ListProfitable(ctx context.Context, limit int) ([]domain.ArbitrageOpportunity, error) {
	if limit <= 0 {
		limit = 50
	}

	var opps []domain.ArbitrageOpportunity

	query := `
		SELECT * FROM arbitrage_opportunities
		WHERE best_margin < 100
		ORDER BY best_margin ASC
		LIMIT $1`

	if err := s.db.SelectContext(ctx, &opps, query, limit); err != nil {
		return nil, err
	}
	return opps, nil
}
