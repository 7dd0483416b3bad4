// Package arbitrage discovers price discrepancies between Polymarket
// and Kalshi markets covering the same event. Complementary outcomes
// bought on opposite venues pay out 100 cents per set; any combined
// cost under 100 is a locked-in profit, fees and resolution-term risk
// aside.
package arbitrage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"whalewatch/clients/kalshiapi"
	"whalewatch/clients/notifier"
	"whalewatch/clients/polymarketapi"
	"whalewatch/config"
	"whalewatch/internal/domain"
	"whalewatch/internal/storage"
)

// Catalog slices of the venue clients; tests substitute fakes.
type polyCatalog interface {
	GetOpenMarkets(ctx context.Context, limit, offset int) ([]polymarketapi.GammaMarket, error)
}

type kalshiCatalog interface {
	GetOpenMarkets(ctx context.Context, limit int, cursor string) (*kalshiapi.MarketsPage, error)
}

// Engine runs periodic cross-venue scans.
type Engine struct {
	logger  *zap.Logger
	poly    polyCatalog
	kalshi  kalshiCatalog
	store   storage.OpportunityStore
	notif   notifier.Notifier
	cfg     config.ArbitrageConfig
	limiter *rate.Limiter

	now func() time.Time
}

func NewEngine(
	logger *zap.Logger,
	poly polyCatalog,
	kalshi kalshiCatalog,
	store storage.OpportunityStore,
	notif notifier.Notifier,
	cfg config.ArbitrageConfig,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 200
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 50
	}
	if cfg.MaxConsecutiveFailures <= 0 {
		cfg.MaxConsecutiveFailures = 3
	}

	return &Engine{
		logger:  logger,
		poly:    poly,
		kalshi:  kalshi,
		store:   store,
		notif:   notif,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(5), 10),
		now:     time.Now,
	}
}

// Run scans on the configured interval until the context ends.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("arbitrage engine started",
		zap.Duration("scanInterval", e.cfg.ScanInterval),
		zap.Float64("similarityThreshold", e.cfg.SimilarityThreshold),
	)

	ticker := time.NewTicker(e.cfg.ScanInterval)
	defer ticker.Stop()

	if _, err := e.Discover(ctx); err != nil && !errors.Is(err, context.Canceled) {
		e.logger.Error("arbitrage scan failed", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("arbitrage engine stopping")
			return ctx.Err()
		case <-ticker.C:
			if _, err := e.Discover(ctx); err != nil && !errors.Is(err, context.Canceled) {
				e.logger.Error("arbitrage scan failed", zap.Error(err))
			}
		}
	}
}

// Discover runs one full scan: fetch both catalogs, pair markets by
// title similarity, compute margins and persist every pair. Returns
// the profitable opportunities found in this scan.
func (e *Engine) Discover(ctx context.Context) ([]domain.ArbitrageOpportunity, error) {
	polyMarkets, polyErr := e.fetchPolymarketCatalog(ctx)
	kalshiMarkets, kalshiErr := e.fetchKalshiCatalog(ctx)

	// A partial catalog still yields valid pairs; only a venue with
	// zero markets makes the scan pointless.
	if len(polyMarkets) == 0 || len(kalshiMarkets) == 0 {
		if polyErr != nil {
			return nil, polyErr
		}
		if kalshiErr != nil {
			return nil, kalshiErr
		}
		return nil, nil
	}
	if polyErr != nil {
		e.logger.Warn("scanning with partial polymarket catalog", zap.Error(polyErr))
	}
	if kalshiErr != nil {
		e.logger.Warn("scanning with partial kalshi catalog", zap.Error(kalshiErr))
	}

	e.logger.Info("catalogs fetched",
		zap.Int("polymarket", len(polyMarkets)),
		zap.Int("kalshi", len(kalshiMarkets)),
	)

	var profitable []domain.ArbitrageOpportunity
	for i := range polyMarkets {
		pm := &polyMarkets[i]

		km, similarity := e.bestMatch(pm, kalshiMarkets)
		if km == nil {
			continue
		}

		opp, err := e.evaluatePair(ctx, pm, km, similarity)
		if err != nil {
			e.logger.Error("pair evaluation failed",
				zap.String("polymarketID", pm.ID),
				zap.String("kalshiTicker", km.Ticker),
				zap.Error(err),
			)
			continue
		}
		if opp != nil && opp.IsProfitable() {
			profitable = append(profitable, *opp)
		}
	}

	e.logger.Info("scan complete", zap.Int("profitable", len(profitable)))
	return profitable, nil
}

// fetchPolymarketCatalog pages the Gamma catalog. Up to
// MaxConsecutiveFailures errors are retried in place; one more aborts
// the fetch, returning the partial catalog with the error.
func (e *Engine) fetchPolymarketCatalog(ctx context.Context) ([]polymarketapi.GammaMarket, error) {
	var all []polymarketapi.GammaMarket
	offset := 0
	failures := 0

	for page := 0; page < e.cfg.MaxPages; page++ {
		if err := e.limiter.Wait(ctx); err != nil {
			return all, err
		}

		markets, err := e.poly.GetOpenMarkets(ctx, e.cfg.PageSize, offset)
		if err != nil {
			failures++
			if failures >= e.cfg.MaxConsecutiveFailures {
				return all, fmt.Errorf("polymarket catalog aborted after %d consecutive failures: %w", failures, err)
			}
			page--
			continue
		}
		failures = 0

		for _, m := range markets {
			if _, _, ok := m.YesNoPrices(); ok && m.Active && !m.Closed {
				all = append(all, m)
			}
		}

		if len(markets) < e.cfg.PageSize {
			return all, nil
		}
		offset += len(markets)

		e.pageDelay(ctx)
	}

	e.logger.Warn("polymarket catalog truncated at page cap", zap.Int("maxPages", e.cfg.MaxPages))
	return all, nil
}

func (e *Engine) fetchKalshiCatalog(ctx context.Context) ([]kalshiapi.Market, error) {
	var all []kalshiapi.Market
	cursor := ""
	failures := 0

	for page := 0; page < e.cfg.MaxPages; page++ {
		if err := e.limiter.Wait(ctx); err != nil {
			return all, err
		}

		resp, err := e.kalshi.GetOpenMarkets(ctx, e.cfg.PageSize, cursor)
		if err != nil {
			failures++
			if failures >= e.cfg.MaxConsecutiveFailures {
				return all, fmt.Errorf("kalshi catalog aborted after %d consecutive failures: %w", failures, err)
			}
			page--
			continue
		}
		failures = 0

		for _, m := range resp.Markets {
			if m.Binary() {
				all = append(all, m)
			}
		}

		// A missing, unchanged cursor or an empty page all mean
		// end-of-results. The unchanged check guards against a provider
		// that keeps echoing the same cursor forever.
		if resp.Cursor == "" || resp.Cursor == cursor || len(resp.Markets) == 0 {
			return all, nil
		}
		cursor = resp.Cursor

		e.pageDelay(ctx)
	}

	e.logger.Warn("kalshi catalog truncated at page cap", zap.Int("maxPages", e.cfg.MaxPages))
	return all, nil
}

func (e *Engine) pageDelay(ctx context.Context) {
	if e.cfg.PageDelay <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(e.cfg.PageDelay):
	}
}

// bestMatch returns the Kalshi market whose title best matches the
// Polymarket question, or nil when nothing clears the threshold.
func (e *Engine) bestMatch(pm *polymarketapi.GammaMarket, kalshiMarkets []kalshiapi.Market) (*kalshiapi.Market, float64) {
	var best *kalshiapi.Market
	bestScore := 0.0

	for i := range kalshiMarkets {
		km := &kalshiMarkets[i]

		score := TitleSimilarity(pm.Question, km.Title)
		if km.Subtitle != "" {
			if s := TitleSimilarity(pm.Question, km.Title+" "+km.Subtitle); s > score {
				score = s
			}
		}

		if score > bestScore {
			bestScore = score
			best = km
		}
	}

	if bestScore < e.cfg.SimilarityThreshold {
		return nil, 0
	}
	return best, bestScore
}

// evaluatePair computes margins for a matched pair and upserts it. A
// newly profitable pair under the alert margin is announced.
func (e *Engine) evaluatePair(
	ctx context.Context,
	pm *polymarketapi.GammaMarket,
	km *kalshiapi.Market,
	similarity float64,
) (*domain.ArbitrageOpportunity, error) {
	yes, no, ok := pm.YesNoPrices()
	if !ok {
		return nil, nil
	}

	now := e.now().UTC()
	opp := &domain.ArbitrageOpportunity{
		ID:           uuid.New(),
		PolymarketID: pm.ID,
		KalshiTicker: km.Ticker,

		PolymarketTitle: pm.Question,
		KalshiTitle:     km.Title,
		PolymarketURL:   pm.URL(),
		KalshiURL:       km.URL(),

		// Polymarket prices arrive on a 0-1 scale; margins are in cents.
		PolyYesCents: decimal.NewFromFloat(yes).Mul(decimal.NewFromInt(100)),
		PolyNoCents:  decimal.NewFromFloat(no).Mul(decimal.NewFromInt(100)),

		KalshiYesAskCents: decimal.NewFromInt(int64(km.YesAsk)),
		KalshiNoAskCents:  decimal.NewFromInt(int64(km.NoAsk)),
		KalshiYesBidCents: decimal.NewFromInt(int64(km.YesBid)),
		KalshiNoBidCents:  decimal.NewFromInt(int64(km.NoBid)),

		PolyLiquidityUSD: decimal.NewFromFloat(pm.LiquidityNum),
		KalshiVolume24h:  km.Volume24h,

		Similarity:  decimal.NewFromFloat(similarity),
		FirstSeenAt: now,
		LastSeenAt:  now,
	}

	if t := pm.EndTime(); !t.IsZero() {
		opp.PolyCloseTime = &t
	}
	if t := km.CloseAt(); !t.IsZero() {
		opp.KalshiCloseTime = &t
	}

	opp.ComputeMargins()

	existing, err := e.store.Get(ctx, opp.PolymarketID, opp.KalshiTicker)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("load existing opportunity: %w", err)
	}

	if err := e.store.Upsert(ctx, opp); err != nil {
		return nil, fmt.Errorf("upsert opportunity: %w", err)
	}

	e.maybeAlert(ctx, opp, existing)
	return opp, nil
}

// maybeAlert announces a pair that crossed under the alert margin this
// scan. Pairs that were already under it stay quiet.
func (e *Engine) maybeAlert(ctx context.Context, opp, existing *domain.ArbitrageOpportunity) {
	if e.notif == nil || !opp.IsProfitable() {
		return
	}

	alertMargin := decimal.NewFromFloat(e.cfg.AlertMargin)
	if opp.BestMargin.GreaterThan(alertMargin) {
		return
	}
	if existing != nil && existing.BestMargin.LessThanOrEqual(alertMargin) {
		return
	}

	verified := opp.Verified
	if existing != nil {
		verified = existing.Verified
	}

	_, err := e.notif.SendArbAlert(ctx, notifier.ArbAlert{
		PolymarketTitle: opp.PolymarketTitle,
		KalshiTitle:     opp.KalshiTitle,
		PolymarketURL:   opp.PolymarketURL,
		KalshiURL:       opp.KalshiURL,
		Direction:       string(opp.Direction),
		BestMargin:      opp.BestMargin,
		ProfitCents:     opp.ProfitCents(),
		Similarity:      opp.Similarity,
		Verified:        verified,
		Timestamp:       opp.LastSeenAt,
	})
	if err != nil {
		e.logger.Error("arb alert send failed", zap.Error(err))
		return
	}

	e.logger.Info("arbitrage opportunity announced",
		zap.String("polymarketID", opp.PolymarketID),
		zap.String("kalshiTicker", opp.KalshiTicker),
		zap.String("bestMargin", opp.BestMargin.String()),
	)
}
