package arbitrage

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whalewatch/clients/kalshiapi"
	"whalewatch/clients/notifier"
	"whalewatch/clients/polymarketapi"
	"whalewatch/config"
	"whalewatch/internal/domain"
	"whalewatch/internal/storage/memory"
)

type fakePolyCatalog struct {
	markets []polymarketapi.GammaMarket
	errs    int // fail this many calls before succeeding
	calls   int
}

func (f *fakePolyCatalog) GetOpenMarkets(ctx context.Context, limit, offset int) ([]polymarketapi.GammaMarket, error) {
	f.calls++
	if f.errs > 0 {
		f.errs--
		return nil, errors.New("gamma api down")
	}
	if offset >= len(f.markets) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.markets) {
		end = len(f.markets)
	}
	return f.markets[offset:end], nil
}

type fakeKalshiCatalog struct {
	markets []kalshiapi.Market
	errs    int
	calls   int
}

func (f *fakeKalshiCatalog) GetOpenMarkets(ctx context.Context, limit int, cursor string) (*kalshiapi.MarketsPage, error) {
	f.calls++
	if f.errs > 0 {
		f.errs--
		return nil, errors.New("kalshi api down")
	}
	return &kalshiapi.MarketsPage{Markets: f.markets}, nil
}

// stuckCursorKalshiCatalog echoes the same non-empty cursor on every
// page, as a misbehaving provider would.
type stuckCursorKalshiCatalog struct {
	markets []kalshiapi.Market
	cursor  string
	calls   int
}

func (f *stuckCursorKalshiCatalog) GetOpenMarkets(ctx context.Context, limit int, cursor string) (*kalshiapi.MarketsPage, error) {
	f.calls++
	return &kalshiapi.MarketsPage{Markets: f.markets, Cursor: f.cursor}, nil
}

type fakeArbNotifier struct {
	alerts []notifier.ArbAlert
}

func (f *fakeArbNotifier) SendTradeAlert(ctx context.Context, alert notifier.TradeAlert) (string, error) {
	return "", nil
}

func (f *fakeArbNotifier) SendArbAlert(ctx context.Context, alert notifier.ArbAlert) (string, error) {
	f.alerts = append(f.alerts, alert)
	return "telegram:1", nil
}

func (f *fakeArbNotifier) Close() error { return nil }

func fedPolyMarket() polymarketapi.GammaMarket {
	return polymarketapi.GammaMarket{
		ID:            "poly-fed-march",
		Slug:          "fed-rate-cut-march",
		Question:      "Will the Fed cut rates in March?",
		ConditionID:   "0xcond",
		Outcomes:      json.RawMessage(`["Yes","No"]`),
		OutcomePrices: json.RawMessage(`["0.40","0.38"]`),
		Active:        true,
	}
}

func fedKalshiMarket() kalshiapi.Market {
	return kalshiapi.Market{
		Ticker: "KXFEDCUT-26MAR",
		Title:  "Fed cut rates in March",
		Status: "open",
		YesAsk: 60,
		NoAsk:  65,
		YesBid: 58,
		NoBid:  63,
	}
}

func testEngine(poly polyCatalog, kalshi kalshiCatalog, notif notifier.Notifier) (*Engine, *memory.OpportunityStore) {
	store := memory.NewOpportunityStore()
	engine := NewEngine(nil, poly, kalshi, store, notif, config.ArbitrageConfig{
		PageSize:               100,
		MaxPages:               10,
		MaxConsecutiveFailures: 3,
		SimilarityThreshold:    0.6,
		AlertMargin:            98,
	})
	return engine, store
}

func TestDiscover_FindsAndAlertsOpportunity(t *testing.T) {
	poly := &fakePolyCatalog{markets: []polymarketapi.GammaMarket{fedPolyMarket()}}
	kalshi := &fakeKalshiCatalog{markets: []kalshiapi.Market{fedKalshiMarket()}}
	notif := &fakeArbNotifier{}
	engine, store := testEngine(poly, kalshi, notif)

	found, err := engine.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, found, 1)

	opp := found[0]
	// polyYes 40 + kalshiNoAsk 65 = 105; polyNo 38 + kalshiYesAsk 60 = 98.
	assert.True(t, opp.MarginYesPolyNoKalshi.Equal(decimal.NewFromInt(105)), "got %s", opp.MarginYesPolyNoKalshi)
	assert.True(t, opp.MarginNoPolyYesKalshi.Equal(decimal.NewFromInt(98)), "got %s", opp.MarginNoPolyYesKalshi)
	assert.True(t, opp.BestMargin.Equal(decimal.NewFromInt(98)))
	assert.Equal(t, domain.DirectionNoPolyYesKalshi, opp.Direction)
	assert.True(t, opp.ProfitCents().Equal(decimal.NewFromInt(2)))

	stored, err := store.Get(context.Background(), "poly-fed-march", "KXFEDCUT-26MAR")
	require.NoError(t, err)
	assert.True(t, stored.BestMargin.Equal(decimal.NewFromInt(98)))

	require.Len(t, notif.alerts, 1)
	assert.Equal(t, "BUY_NO_POLY_BUY_YES_KALSHI", notif.alerts[0].Direction)
	assert.True(t, notif.alerts[0].ProfitCents.Equal(decimal.NewFromInt(2)))
}

func TestDiscover_AlertsOnlyOnTransition(t *testing.T) {
	poly := &fakePolyCatalog{markets: []polymarketapi.GammaMarket{fedPolyMarket()}}
	kalshi := &fakeKalshiCatalog{markets: []kalshiapi.Market{fedKalshiMarket()}}
	notif := &fakeArbNotifier{}
	engine, _ := testEngine(poly, kalshi, notif)

	_, err := engine.Discover(context.Background())
	require.NoError(t, err)
	_, err = engine.Discover(context.Background())
	require.NoError(t, err)

	assert.Len(t, notif.alerts, 1, "a pair already under the alert margin must stay quiet")
}

func TestDiscover_PreservesVerifiedAcrossScans(t *testing.T) {
	poly := &fakePolyCatalog{markets: []polymarketapi.GammaMarket{fedPolyMarket()}}
	kalshi := &fakeKalshiCatalog{markets: []kalshiapi.Market{fedKalshiMarket()}}
	engine, store := testEngine(poly, kalshi, &fakeArbNotifier{})
	ctx := context.Background()

	_, err := engine.Discover(ctx)
	require.NoError(t, err)

	require.NoError(t, store.SetVerified("poly-fed-march", "KXFEDCUT-26MAR", true))

	_, err = engine.Discover(ctx)
	require.NoError(t, err)

	stored, err := store.Get(ctx, "poly-fed-march", "KXFEDCUT-26MAR")
	require.NoError(t, err)
	assert.True(t, stored.Verified, "refresh must not clear the verified flag")
}

func TestDiscover_NoMatchBelowThreshold(t *testing.T) {
	poly := &fakePolyCatalog{markets: []polymarketapi.GammaMarket{fedPolyMarket()}}
	kalshi := &fakeKalshiCatalog{markets: []kalshiapi.Market{{
		Ticker: "KXRAIN-NYC",
		Title:  "Will it rain in NYC tomorrow",
		YesAsk: 30,
		NoAsk:  72,
	}}}
	notif := &fakeArbNotifier{}
	engine, _ := testEngine(poly, kalshi, notif)

	found, err := engine.Discover(context.Background())
	require.NoError(t, err)
	assert.Empty(t, found)
	assert.Empty(t, notif.alerts)
}

func TestDiscover_BoundaryMarginIsNotProfitable(t *testing.T) {
	km := fedKalshiMarket()
	km.YesAsk = 62 // polyNo 38 + 62 = exactly 100
	km.NoAsk = 70  // polyYes 40 + 70 = 110

	poly := &fakePolyCatalog{markets: []polymarketapi.GammaMarket{fedPolyMarket()}}
	kalshi := &fakeKalshiCatalog{markets: []kalshiapi.Market{km}}
	notif := &fakeArbNotifier{}
	engine, store := testEngine(poly, kalshi, notif)

	found, err := engine.Discover(context.Background())
	require.NoError(t, err)
	assert.Empty(t, found, "margin of exactly 100 is break-even, not an opportunity")
	assert.Empty(t, notif.alerts)

	// The pair is still recorded for margin history.
	stored, err := store.Get(context.Background(), "poly-fed-march", "KXFEDCUT-26MAR")
	require.NoError(t, err)
	assert.True(t, stored.BestMargin.Equal(decimal.NewFromInt(100)))
}

func TestDiscover_AbortsAfterConsecutiveFailures(t *testing.T) {
	poly := &fakePolyCatalog{errs: 100}
	kalshi := &fakeKalshiCatalog{markets: []kalshiapi.Market{fedKalshiMarket()}}
	engine, _ := testEngine(poly, kalshi, &fakeArbNotifier{})

	_, err := engine.Discover(context.Background())
	require.Error(t, err)
	assert.Equal(t, 3, poly.calls, "fetch must stop after MaxConsecutiveFailures")
}

func TestDiscover_TransientFailureRecovers(t *testing.T) {
	poly := &fakePolyCatalog{markets: []polymarketapi.GammaMarket{fedPolyMarket()}, errs: 2}
	kalshi := &fakeKalshiCatalog{markets: []kalshiapi.Market{fedKalshiMarket()}}
	engine, _ := testEngine(poly, kalshi, &fakeArbNotifier{})

	found, err := engine.Discover(context.Background())
	require.NoError(t, err)
	assert.Len(t, found, 1, "two failures then success must not abort")
}

func TestFetchKalshiCatalog_StopsOnRepeatedCursor(t *testing.T) {
	kalshi := &stuckCursorKalshiCatalog{
		markets: []kalshiapi.Market{fedKalshiMarket()},
		cursor:  "page-1",
	}
	engine, _ := testEngine(&fakePolyCatalog{}, kalshi, &fakeArbNotifier{})

	markets, err := engine.fetchKalshiCatalog(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, kalshi.calls, "an echoed cursor means end-of-results, not another page")
	assert.Len(t, markets, 2)
}
