package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whalewatch/clients/notifier"
	"whalewatch/clients/polymarketapi"
	"whalewatch/config"
	"whalewatch/internal/domain"
	"whalewatch/internal/storage"
	"whalewatch/internal/storage/memory"
)

type fakeActivityAPI struct {
	activities []polymarketapi.Activity
	errs       int
	calls      int
}

func (f *fakeActivityAPI) GetWalletActivity(ctx context.Context, wallet string, limit, offset int, startTime int64) ([]polymarketapi.Activity, error) {
	f.calls++
	if f.errs > 0 {
		f.errs--
		return nil, errors.New("data api down")
	}
	if offset >= len(f.activities) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.activities) {
		end = len(f.activities)
	}
	return f.activities[offset:end], nil
}

type fakeTradeNotifier struct {
	alerts []notifier.TradeAlert
	err    error
}

func (f *fakeTradeNotifier) SendTradeAlert(ctx context.Context, alert notifier.TradeAlert) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.alerts = append(f.alerts, alert)
	return "telegram:42", nil
}

func (f *fakeTradeNotifier) SendArbAlert(ctx context.Context, alert notifier.ArbAlert) (string, error) {
	return "", nil
}

func (f *fakeTradeNotifier) Close() error { return nil }

type monitorFixture struct {
	monitor    *WalletMonitor
	api        *fakeActivityAPI
	notif      *fakeTradeNotifier
	wallets    *memory.WalletStore
	activities *memory.ActivityStore
	copies     *memory.CopyTradeStore
	wallet     *domain.TrackedWallet
}

func newMonitorFixture(t *testing.T) *monitorFixture {
	t.Helper()

	wallets := memory.NewWalletStore()
	activities := memory.NewActivityStore()
	copies := memory.NewCopyTradeStore()
	stores := &storage.Stores{
		Wallets:       wallets,
		Activity:      activities,
		Frequency:     memory.NewFrequencyStore(),
		CopyTrades:    copies,
		Opportunities: memory.NewOpportunityStore(),
	}

	wallet := &domain.TrackedWallet{
		ID:              uuid.New(),
		Address:         "0xwhale",
		Label:           "whale-1",
		Tier:            domain.TierFree,
		MinTradeUSD:     d("100"),
		CopyTrade:       true,
		CopyTradeAmount: d("500"),
		Active:          true,
	}
	wallets.Add(*wallet)
	activities.BindWallet(wallet.ID, wallet.Address)

	api := &fakeActivityAPI{}
	notif := &fakeTradeNotifier{}

	monitor := NewWalletMonitor(nil, api, stores, notif, config.MonitorConfig{
		PollInterval:           time.Second,
		WalletConcurrency:      2,
		PageSize:               100,
		MaxConsecutiveFailures: 3,
		Backfill:               24 * time.Hour,
	})

	return &monitorFixture{
		monitor:    monitor,
		api:        api,
		notif:      notif,
		wallets:    wallets,
		activities: activities,
		copies:     copies,
		wallet:     wallet,
	}
}

func buyActivity(ts int64, size, price, usd float64, txHash string) polymarketapi.Activity {
	return polymarketapi.Activity{
		ProxyWallet:     "0xwhale",
		Timestamp:       ts,
		ConditionID:     "0xcond",
		Type:            "TRADE",
		Side:            "BUY",
		Size:            size,
		Price:           price,
		UsdcSize:        usd,
		TransactionHash: txHash,
		Title:           "Will the Fed cut rates in March?",
		EventSlug:       "fed-march",
		Outcome:         "Yes",
		OutcomeIndex:    0,
		Asset:           "token-1",
	}
}

func TestPollWallet_ProcessesBuyAndAlerts(t *testing.T) {
	f := newMonitorFixture(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour).Unix()
	f.api.activities = []polymarketapi.Activity{
		buyActivity(base, 1250, 0.40, 500, "0xbuy"),
	}

	require.NoError(t, f.monitor.PollWallet(ctx, f.wallet))

	records := f.activities.All()
	require.Len(t, records, 1)
	assert.Equal(t, domain.ActivityBuy, records[0].Type)
	assert.Equal(t, domain.StatusOpen, records[0].Status)
	assert.Equal(t, CategoryBusiness, records[0].Category)
	assert.True(t, records[0].Alerting)
	require.NotNil(t, records[0].NotificationRef)
	assert.Equal(t, "telegram:42", *records[0].NotificationRef)

	require.Len(t, f.notif.alerts, 1)
	alert := f.notif.alerts[0]
	assert.Equal(t, notifier.AlertPositionOpened, alert.Kind)
	assert.Equal(t, "whale-1", alert.WalletLabel)
	assert.Equal(t, "https://polymarket.com/event/fed-march", alert.MarketURL)
	require.NotNil(t, alert.CopyInvested)
	assert.True(t, alert.CopyInvested.Equal(d("500")))
	assert.True(t, alert.CopyShares.Equal(d("1250")))

	// Checkpoint advanced to the processed trade.
	cp, err := f.wallets.GetCheckpoint(ctx, f.wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, base, cp.Unix())
}

func TestPollWallet_VenueTagDrivesCategory(t *testing.T) {
	f := newMonitorFixture(t)

	act := buyActivity(time.Now().Add(-time.Hour).Unix(), 1250, 0.40, 500, "0xbuy")
	act.Title = "Will the election settle above the strike?"
	act.Tags = []string{"Crypto"}
	f.api.activities = []polymarketapi.Activity{act}

	require.NoError(t, f.monitor.PollWallet(context.Background(), f.wallet))

	records := f.activities.All()
	require.Len(t, records, 1)
	assert.Equal(t, CategoryCrypto, records[0].Category, "venue tags outrank title keywords")
	assert.Equal(t, []string{"Crypto"}, records[0].Metadata.Tags)
}

func TestPollWallet_RepollDoesNotDuplicate(t *testing.T) {
	f := newMonitorFixture(t)
	ctx := context.Background()

	f.api.activities = []polymarketapi.Activity{
		buyActivity(time.Now().Add(-time.Hour).Unix(), 1250, 0.40, 500, "0xbuy"),
	}

	require.NoError(t, f.monitor.PollWallet(ctx, f.wallet))
	require.NoError(t, f.monitor.PollWallet(ctx, f.wallet))

	assert.Len(t, f.activities.All(), 1, "dedup must swallow re-delivered trades")
	assert.Len(t, f.notif.alerts, 1)
}

func TestPollWallet_SellClosesAndAlertsWithPnl(t *testing.T) {
	f := newMonitorFixture(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour).Unix()

	sell := buyActivity(base+60, 1250, 0.65, 812.5, "0xsell")
	sell.Side = "SELL"

	f.api.activities = []polymarketapi.Activity{
		buyActivity(base, 1250, 0.40, 500, "0xbuy"),
		sell,
	}

	require.NoError(t, f.monitor.PollWallet(ctx, f.wallet))

	records := f.activities.All()
	require.Len(t, records, 2)
	for _, rec := range records {
		assert.Equal(t, domain.StatusClosed, rec.Status)
	}

	// The exit alerts regardless of the frequency gate, which only
	// rations openings.
	require.Len(t, f.notif.alerts, 2)
	assert.Equal(t, notifier.AlertPositionOpened, f.notif.alerts[0].Kind)
	closeAlert := f.notif.alerts[1]
	assert.Equal(t, notifier.AlertPositionClosed, closeAlert.Kind)
	require.NotNil(t, closeAlert.RealizedPnl)
	assert.True(t, closeAlert.RealizedPnl.Equal(d("312.5")))

	sellRec := records[1]
	require.NotNil(t, sellRec.RealizedPnl)
	assert.True(t, sellRec.RealizedPnl.Equal(d("312.5")), "got %s", sellRec.RealizedPnl)
	assert.True(t, sellRec.PercentPnl.Equal(d("62.5")), "got %s", sellRec.PercentPnl)

	// The copy simulation settled alongside.
	sims := f.copies.All()
	require.Len(t, sims, 1)
	assert.Equal(t, domain.CopyStatusClosed, sims[0].Status)
	assert.True(t, sims[0].FinalValue.Equal(d("812.5")), "got %s", sims[0].FinalValue)
}

func TestPollWallet_AddOnRecordedNotAlerted(t *testing.T) {
	f := newMonitorFixture(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour).Unix()

	f.api.activities = []polymarketapi.Activity{
		buyActivity(base, 1250, 0.40, 500, "0xbuy"),
		buyActivity(base+60, 500, 0.45, 225, "0xbuy2"),
	}

	require.NoError(t, f.monitor.PollWallet(ctx, f.wallet))

	records := f.activities.All()
	require.Len(t, records, 2)
	assert.Equal(t, domain.StatusOpen, records[0].Status)
	assert.Equal(t, domain.StatusAdded, records[1].Status)

	// Only the opening alerted; the add-on is recorded quietly.
	require.Len(t, f.notif.alerts, 1)
	assert.Equal(t, notifier.AlertPositionOpened, f.notif.alerts[0].Kind)
}

func TestPollWallet_OpeningQuotaAcrossMarkets(t *testing.T) {
	f := newMonitorFixture(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour).Unix()

	var acts []polymarketapi.Activity
	for i, cond := range []string{"0xcond-a", "0xcond-b", "0xcond-c"} {
		act := buyActivity(base+int64(i*60), 1250, 0.40, 500, "0xbuy-"+cond)
		act.ConditionID = cond
		acts = append(acts, act)
	}
	f.api.activities = acts

	require.NoError(t, f.monitor.PollWallet(ctx, f.wallet))

	// All three positions open; the free-tier window admits the first
	// two openings and suppresses the third.
	records := f.activities.All()
	require.Len(t, records, 3)
	for _, rec := range records {
		assert.Equal(t, domain.StatusOpen, rec.Status)
	}

	require.Len(t, f.notif.alerts, 2)
	assert.False(t, records[2].Alerting, "third opening must be gated")
	assert.Nil(t, records[2].NotificationRef)
}

func TestPollWallet_BelowNotionalFloorRecordedNotAlerted(t *testing.T) {
	f := newMonitorFixture(t)
	ctx := context.Background()

	f.api.activities = []polymarketapi.Activity{
		buyActivity(time.Now().Add(-time.Hour).Unix(), 100, 0.40, 40, "0xsmall"),
	}

	require.NoError(t, f.monitor.PollWallet(ctx, f.wallet))

	records := f.activities.All()
	require.Len(t, records, 1)
	assert.False(t, records[0].Alerting)
	assert.Empty(t, f.notif.alerts)
}

func TestPollWallet_TransferDedupedByTxHash(t *testing.T) {
	f := newMonitorFixture(t)
	ctx := context.Background()

	redeem := polymarketapi.Activity{
		ProxyWallet:     "0xwhale",
		Timestamp:       time.Now().Add(-time.Hour).Unix(),
		ConditionID:     "0xcond",
		Type:            "REDEEM",
		Size:            100,
		UsdcSize:        100,
		TransactionHash: "0xredeem",
	}
	f.api.activities = []polymarketapi.Activity{redeem}

	require.NoError(t, f.monitor.PollWallet(ctx, f.wallet))
	require.NoError(t, f.monitor.PollWallet(ctx, f.wallet))

	records := f.activities.All()
	require.Len(t, records, 1)
	assert.Equal(t, domain.ActivityRedeem, records[0].Type)
	assert.Empty(t, f.notif.alerts, "transfer-like activity never alerts")
}

func TestPollWallet_AbortsAfterConsecutiveFailures(t *testing.T) {
	f := newMonitorFixture(t)
	f.api.errs = 100

	err := f.monitor.PollWallet(context.Background(), f.wallet)
	require.Error(t, err)
	assert.Equal(t, 3, f.api.calls)
}

func TestPollWallet_TransientFailureRecovers(t *testing.T) {
	f := newMonitorFixture(t)
	f.api.errs = 2
	f.api.activities = []polymarketapi.Activity{
		buyActivity(time.Now().Add(-time.Hour).Unix(), 1250, 0.40, 500, "0xbuy"),
	}

	require.NoError(t, f.monitor.PollWallet(context.Background(), f.wallet))
	assert.Len(t, f.activities.All(), 1)
}

func TestPollWallet_FailedSendLeavesRecordUnreferenced(t *testing.T) {
	f := newMonitorFixture(t)
	f.notif.err = errors.New("all channels down")
	f.api.activities = []polymarketapi.Activity{
		buyActivity(time.Now().Add(-time.Hour).Unix(), 1250, 0.40, 500, "0xbuy"),
	}

	require.NoError(t, f.monitor.PollWallet(context.Background(), f.wallet), "a dead notifier must not fail the poll")

	records := f.activities.All()
	require.Len(t, records, 1)
	assert.False(t, records[0].Alerting)
	assert.Nil(t, records[0].NotificationRef)
}

func TestPollAll_CoversAllActiveWallets(t *testing.T) {
	f := newMonitorFixture(t)
	ctx := context.Background()

	second := domain.TrackedWallet{
		ID:        uuid.New(),
		Address:   "0xother",
		Tier:      domain.TierPaid,
		Active:    true,
		CreatedAt: time.Now(),
	}
	f.wallets.Add(second)
	f.activities.BindWallet(second.ID, second.Address)

	f.api.activities = []polymarketapi.Activity{
		buyActivity(time.Now().Add(-time.Hour).Unix(), 1250, 0.40, 500, "0xbuy"),
	}

	require.NoError(t, f.monitor.PollAll(ctx))

	// Both wallets saw the same fake feed; each recorded its own copy.
	assert.Len(t, f.activities.All(), 2)
}

func TestMonitor_AssetTracking(t *testing.T) {
	f := newMonitorFixture(t)

	f.api.activities = []polymarketapi.Activity{
		buyActivity(time.Now().Add(-time.Hour).Unix(), 1250, 0.40, 500, "0xbuy"),
	}
	require.NoError(t, f.monitor.PollWallet(context.Background(), f.wallet))

	assert.Equal(t, []string{"token-1"}, f.monitor.AssetIDs())
}
