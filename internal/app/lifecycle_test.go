package app

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whalewatch/internal/domain"
	"whalewatch/internal/storage/memory"
)

func newLifecycleFixture(t *testing.T) (*PositionTracker, *memory.ActivityStore, *domain.TrackedWallet) {
	t.Helper()

	store := memory.NewActivityStore()
	wallet := &domain.TrackedWallet{
		ID:      uuid.New(),
		Address: "0xwhale",
		Active:  true,
	}
	store.BindWallet(wallet.ID, wallet.Address)

	return NewPositionTracker(nil, store), store, wallet
}

func tradeRecord(wallet *domain.TrackedWallet, typ domain.ActivityType, size, price string, txHash string, at time.Time) *domain.ActivityRecord {
	return &domain.ActivityRecord{
		ID:           uuid.New(),
		WalletID:     wallet.ID,
		Type:         typ,
		TxHash:       txHash,
		ConditionID:  "0xcond",
		Outcome:      "Yes",
		OutcomeIndex: 0,
		Size:         d(size),
		Price:        d(price),
		UsdValue:     d(size).Mul(d(price)),
		TradedAt:     at,
	}
}

func TestApplyTrade_FirstBuyOpens(t *testing.T) {
	tracker, store, wallet := newLifecycleFixture(t)
	ctx := context.Background()

	result, err := tracker.ApplyTrade(ctx, wallet, tradeRecord(wallet, domain.ActivityBuy, "100", "0.40", "0xa", time.Now()))
	require.NoError(t, err)

	assert.Equal(t, LifecycleOpened, result.Kind)
	records := store.All()
	require.Len(t, records, 1)
	assert.Equal(t, domain.StatusOpen, records[0].Status)
}

func TestApplyTrade_SecondBuyAdds(t *testing.T) {
	tracker, store, wallet := newLifecycleFixture(t)
	ctx := context.Background()
	now := time.Now()

	_, err := tracker.ApplyTrade(ctx, wallet, tradeRecord(wallet, domain.ActivityBuy, "100", "0.40", "0xa", now))
	require.NoError(t, err)

	result, err := tracker.ApplyTrade(ctx, wallet, tradeRecord(wallet, domain.ActivityBuy, "50", "0.45", "0xb", now.Add(time.Minute)))
	require.NoError(t, err)

	assert.Equal(t, LifecycleAdded, result.Kind)
	records := store.All()
	require.Len(t, records, 2)
	assert.Equal(t, domain.StatusOpen, records[0].Status, "the original entry stays the open record")
	assert.Equal(t, domain.StatusAdded, records[1].Status)
}

func TestApplyTrade_DifferentOutcomeOpensSeparately(t *testing.T) {
	tracker, _, wallet := newLifecycleFixture(t)
	ctx := context.Background()

	_, err := tracker.ApplyTrade(ctx, wallet, tradeRecord(wallet, domain.ActivityBuy, "100", "0.40", "0xa", time.Now()))
	require.NoError(t, err)

	other := tradeRecord(wallet, domain.ActivityBuy, "100", "0.55", "0xb", time.Now())
	other.OutcomeIndex = 1
	other.Outcome = "No"

	result, err := tracker.ApplyTrade(ctx, wallet, other)
	require.NoError(t, err)
	assert.Equal(t, LifecycleOpened, result.Kind, "a different outcome index is a different position key")
}

func TestApplyTrade_SellClosesFIFO(t *testing.T) {
	tracker, store, wallet := newLifecycleFixture(t)
	ctx := context.Background()
	now := time.Now()

	_, err := tracker.ApplyTrade(ctx, wallet, tradeRecord(wallet, domain.ActivityBuy, "100", "0.40", "0xa", now))
	require.NoError(t, err)
	_, err = tracker.ApplyTrade(ctx, wallet, tradeRecord(wallet, domain.ActivityBuy, "100", "0.50", "0xb", now.Add(time.Minute)))
	require.NoError(t, err)

	// Sells 150: consumes the 0.40 entry fully and touches the 0.50 one.
	result, err := tracker.ApplyTrade(ctx, wallet, tradeRecord(wallet, domain.ActivitySell, "150", "0.65", "0xc", now.Add(2*time.Minute)))
	require.NoError(t, err)

	require.Equal(t, LifecycleClosed, result.Kind)
	require.Len(t, result.ClosedRecords, 2)
	assert.Equal(t, "0xa", result.ClosedRecords[0].TxHash, "oldest entry closes first")

	// pnl = 100*(0.65-0.40) + 50*(0.65-0.50) = 25 + 7.5 = 32.5
	require.NotNil(t, result.RealizedPnl)
	assert.True(t, result.RealizedPnl.Equal(d("32.5")), "got %s", result.RealizedPnl)

	// cost basis = 100*0.40 + 50*0.50 = 65; pct = 32.5/65*100 = 50
	require.NotNil(t, result.PercentPnl)
	assert.True(t, result.PercentPnl.Equal(d("50")), "got %s", result.PercentPnl)

	for _, rec := range store.All() {
		assert.Equal(t, domain.StatusClosed, rec.Status)
	}
}

func TestApplyTrade_PartialSellLeavesLaterEntriesOpen(t *testing.T) {
	tracker, store, wallet := newLifecycleFixture(t)
	ctx := context.Background()
	now := time.Now()

	_, err := tracker.ApplyTrade(ctx, wallet, tradeRecord(wallet, domain.ActivityBuy, "100", "0.40", "0xa", now))
	require.NoError(t, err)
	_, err = tracker.ApplyTrade(ctx, wallet, tradeRecord(wallet, domain.ActivityBuy, "100", "0.50", "0xb", now.Add(time.Minute)))
	require.NoError(t, err)

	result, err := tracker.ApplyTrade(ctx, wallet, tradeRecord(wallet, domain.ActivitySell, "100", "0.60", "0xc", now.Add(2*time.Minute)))
	require.NoError(t, err)

	require.Len(t, result.ClosedRecords, 1)
	assert.Equal(t, "0xa", result.ClosedRecords[0].TxHash)

	statuses := map[string]string{}
	for _, rec := range store.All() {
		statuses[rec.TxHash] = rec.Status
	}
	assert.Equal(t, domain.StatusClosed, statuses["0xa"])
	assert.Equal(t, domain.StatusAdded, statuses["0xb"], "untouched entry survives the sell")
}

func TestApplyTrade_OrphanSellIsNonFatal(t *testing.T) {
	tracker, store, wallet := newLifecycleFixture(t)
	ctx := context.Background()

	result, err := tracker.ApplyTrade(ctx, wallet, tradeRecord(wallet, domain.ActivitySell, "100", "0.65", "0xsell", time.Now()))
	require.NoError(t, err, "a sell without a tracked entry must not fail the pipeline")

	assert.Equal(t, LifecycleOrphan, result.Kind)
	assert.Nil(t, result.RealizedPnl)

	records := store.All()
	require.Len(t, records, 1)
	assert.Equal(t, domain.StatusClosed, records[0].Status)
}

func TestApplyTrade_LossClose(t *testing.T) {
	tracker, _, wallet := newLifecycleFixture(t)
	ctx := context.Background()
	now := time.Now()

	_, err := tracker.ApplyTrade(ctx, wallet, tradeRecord(wallet, domain.ActivityBuy, "1000", "0.50", "0xa", now))
	require.NoError(t, err)

	result, err := tracker.ApplyTrade(ctx, wallet, tradeRecord(wallet, domain.ActivitySell, "1000", "0.10", "0xb", now.Add(time.Minute)))
	require.NoError(t, err)

	// pnl = 1000*(0.10-0.50) = -400; pct = -400/500*100 = -80
	assert.True(t, result.RealizedPnl.Equal(d("-400")), "got %s", result.RealizedPnl)
	assert.True(t, result.PercentPnl.Equal(d("-80")), "got %s", result.PercentPnl)
}

func TestApplyTrade_RejectsNonTrade(t *testing.T) {
	tracker, _, wallet := newLifecycleFixture(t)

	rec := tradeRecord(wallet, domain.ActivityRedeem, "10", "1", "0xr", time.Now())
	_, err := tracker.ApplyTrade(context.Background(), wallet, rec)
	assert.Error(t, err)
}

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestApplyTrade_RandomSequenceKeepsOneOpenPerKey(t *testing.T) {
	tracker, store, wallet := newLifecycleFixture(t)
	ctx := context.Background()

	rng := rand.New(rand.NewSource(7))
	keys := []struct {
		condition    string
		outcomeIndex int
	}{
		{"0xcond-a", 0},
		{"0xcond-a", 1},
		{"0xcond-b", 0},
	}

	now := time.Now()
	for i := 0; i < 250; i++ {
		k := keys[rng.Intn(len(keys))]

		typ := domain.ActivityBuy
		if rng.Intn(2) == 1 {
			typ = domain.ActivitySell
		}

		size := strconv.Itoa(10 + rng.Intn(490))
		rec := tradeRecord(wallet, typ, size, "0.40", fmt.Sprintf("0x%04d", i), now.Add(time.Duration(i)*time.Second))
		rec.ConditionID = k.condition
		rec.OutcomeIndex = k.outcomeIndex

		_, err := tracker.ApplyTrade(ctx, wallet, rec)
		require.NoError(t, err)

		open := make(map[domain.PositionKey]int)
		for _, r := range store.All() {
			if r.Status == domain.StatusOpen {
				open[r.Key(wallet.Address)]++
			}
		}
		for key, n := range open {
			require.LessOrEqual(t, n, 1,
				"key %s/%d holds %d open rows after event %d", key.ConditionID, key.OutcomeIndex, n, i)
		}
	}
}
