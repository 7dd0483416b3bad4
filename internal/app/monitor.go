package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"whalewatch/clients/notifier"
	"whalewatch/clients/polymarketapi"
	"whalewatch/clients/polymarketevents"
	"whalewatch/config"
	"whalewatch/internal/domain"
	"whalewatch/internal/storage"
)

// activityAPI is the slice of the Polymarket data API the monitor
// needs; tests substitute a fake.
type activityAPI interface {
	GetWalletActivity(ctx context.Context, wallet string, limit, offset int, startTime int64) ([]polymarketapi.Activity, error)
}

// WalletMonitor polls tracked wallets for new activity and drives the
// whole whale pipeline: dedup, position lifecycle, copy simulation,
// frequency-gated alerting.
type WalletMonitor struct {
	logger    *zap.Logger
	api       activityAPI
	stores    *storage.Stores
	gate      *FrequencyGate
	positions *PositionTracker
	copySim   *CopySimulator
	notif     notifier.Notifier
	cfg       config.MonitorConfig
	limiter   *rate.Limiter

	// One mutex per wallet: the poll loop and the websocket fast path
	// must never process the same wallet concurrently.
	lockMu      sync.Mutex
	walletLocks map[uuid.UUID]*sync.Mutex

	// Outcome tokens seen in tracked activity, for websocket
	// subscription management.
	assetsMu   sync.Mutex
	seenAssets map[string]struct{}

	now func() time.Time
}

func NewWalletMonitor(
	logger *zap.Logger,
	api activityAPI,
	stores *storage.Stores,
	notif notifier.Notifier,
	cfg config.MonitorConfig,
) *WalletMonitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 500
	}
	if cfg.WalletConcurrency <= 0 {
		cfg.WalletConcurrency = 4
	}
	if cfg.MaxConsecutiveFailures <= 0 {
		cfg.MaxConsecutiveFailures = 3
	}

	return &WalletMonitor{
		logger:      logger,
		api:         api,
		stores:      stores,
		gate:        NewFrequencyGate(logger, stores.Frequency),
		positions:   NewPositionTracker(logger, stores.Activity),
		copySim:     NewCopySimulator(logger, stores.CopyTrades),
		notif:       notif,
		cfg:         cfg,
		limiter:     rate.NewLimiter(rate.Limit(10), 20),
		walletLocks: make(map[uuid.UUID]*sync.Mutex),
		seenAssets:  make(map[string]struct{}),
		now:         time.Now,
	}
}

// Run polls on the configured interval until the context ends.
func (m *WalletMonitor) Run(ctx context.Context) error {
	m.logger.Info("wallet monitor started",
		zap.Duration("pollInterval", m.cfg.PollInterval),
		zap.Int("concurrency", m.cfg.WalletConcurrency),
	)

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	// First cycle immediately, then on the ticker.
	if err := m.PollAll(ctx); err != nil && !errors.Is(err, context.Canceled) {
		m.logger.Error("poll cycle failed", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("wallet monitor stopping")
			return ctx.Err()
		case <-ticker.C:
			if err := m.PollAll(ctx); err != nil && !errors.Is(err, context.Canceled) {
				m.logger.Error("poll cycle failed", zap.Error(err))
			}
		}
	}
}

// PollAll runs one poll cycle over every active wallet with bounded
// concurrency. Per-wallet failures are logged, not fatal to the cycle.
func (m *WalletMonitor) PollAll(ctx context.Context) error {
	wallets, err := m.stores.Wallets.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active wallets: %w", err)
	}
	if len(wallets) == 0 {
		return nil
	}

	sem := make(chan struct{}, m.cfg.WalletConcurrency)
	var wg sync.WaitGroup

	for i := range wallets {
		wallet := wallets[i]

		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			if err := m.PollWallet(ctx, &wallet); err != nil && !errors.Is(err, context.Canceled) {
				m.logger.Error("wallet poll failed",
					zap.String("wallet", domain.ShortAddress(wallet.Address)),
					zap.Error(err),
				)
			}
		}()
	}

	wg.Wait()
	return nil
}

// PollWallet fetches and processes all new activity for one wallet.
func (m *WalletMonitor) PollWallet(ctx context.Context, wallet *domain.TrackedWallet) error {
	lock := m.walletLock(wallet.ID)
	lock.Lock()
	defer lock.Unlock()

	since, err := m.stores.Wallets.GetCheckpoint(ctx, wallet.ID)
	if errors.Is(err, storage.ErrNotFound) {
		since = m.now().Add(-m.cfg.Backfill)
	} else if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}

	acts, err := m.fetchSince(ctx, wallet.Address, since)
	if err != nil {
		return err
	}
	if len(acts) == 0 {
		return nil
	}

	// Oldest first so lifecycle transitions replay in order.
	sort.Slice(acts, func(i, j int) bool { return acts[i].Timestamp < acts[j].Timestamp })

	newest := since
	for i := range acts {
		act := &acts[i]
		if err := m.processActivity(ctx, wallet, act); err != nil {
			m.logger.Error("activity processing failed",
				zap.String("wallet", domain.ShortAddress(wallet.Address)),
				zap.String("txHash", act.TransactionHash),
				zap.Error(err),
			)
			continue
		}
		if ts := act.TradedAt(); ts.After(newest) {
			newest = ts
		}
	}

	if newest.After(since) {
		if err := m.stores.Wallets.SetCheckpoint(ctx, wallet.ID, newest); err != nil {
			return fmt.Errorf("save checkpoint: %w", err)
		}
	}

	return nil
}

// fetchSince pages through the data API until a short page. Up to
// MaxConsecutiveFailures transient errors per cycle are retried; one
// more aborts the wallet for this cycle, surfacing what was fetched so
// far with the error.
func (m *WalletMonitor) fetchSince(ctx context.Context, address string, since time.Time) ([]polymarketapi.Activity, error) {
	var all []polymarketapi.Activity
	offset := 0
	failures := 0

	for {
		if err := m.limiter.Wait(ctx); err != nil {
			return all, err
		}

		page, err := m.api.GetWalletActivity(ctx, address, m.cfg.PageSize, offset, since.Unix())
		if err != nil {
			failures++
			if failures >= m.cfg.MaxConsecutiveFailures {
				return all, fmt.Errorf("activity fetch aborted after %d consecutive failures: %w", failures, err)
			}
			m.logger.Warn("activity page fetch failed, retrying",
				zap.String("wallet", domain.ShortAddress(address)),
				zap.Int("offset", offset),
				zap.Int("failures", failures),
				zap.Error(err),
			)
			continue
		}
		failures = 0

		all = append(all, page...)
		if len(page) < m.cfg.PageSize {
			return all, nil
		}
		offset += len(page)
	}
}

// processActivity runs one activity row through dedup, lifecycle, copy
// simulation and alerting.
func (m *WalletMonitor) processActivity(
	ctx context.Context,
	wallet *domain.TrackedWallet,
	act *polymarketapi.Activity,
) error {
	rec := m.buildRecord(wallet, act)

	if act.Asset != "" {
		m.assetsMu.Lock()
		m.seenAssets[act.Asset] = struct{}{}
		m.assetsMu.Unlock()
	}

	if rec.Type.IsTrade() {
		seen, err := m.stores.Activity.ExistsTrade(ctx, rec.Key(wallet.Address), rec.TxHash)
		if err != nil {
			return fmt.Errorf("trade dedup check: %w", err)
		}
		if seen {
			return nil
		}
		return m.processTrade(ctx, wallet, rec)
	}

	seen, err := m.stores.Activity.ExistsTx(ctx, rec.TxHash)
	if err != nil {
		return fmt.Errorf("tx dedup check: %w", err)
	}
	if seen {
		return nil
	}

	// Transfer-like rows never hold a position open.
	rec.Status = domain.StatusClosed
	if err := m.stores.Activity.Insert(ctx, rec); err != nil {
		return fmt.Errorf("insert transfer record: %w", err)
	}
	return nil
}

func (m *WalletMonitor) processTrade(
	ctx context.Context,
	wallet *domain.TrackedWallet,
	rec *domain.ActivityRecord,
) error {
	result, err := m.positions.ApplyTrade(ctx, wallet, rec)
	if err != nil {
		return err
	}

	var sim *domain.CopyTradePosition
	switch result.Kind {
	case LifecycleOpened:
		if sim, err = m.copySim.OnOpen(ctx, wallet, rec); err != nil {
			m.logger.Error("copy simulation open failed", zap.Error(err))
		}
	case LifecycleClosed:
		if sim, err = m.copySim.OnClose(ctx, wallet, rec, result); err != nil {
			m.logger.Error("copy simulation close failed", zap.Error(err))
		}
	}

	// Below the wallet's notional floor: recorded, never alerted.
	if rec.UsdValue.LessThan(wallet.MinTradeUSD) {
		return nil
	}

	switch result.Kind {
	case LifecycleOpened:
		// Only opening signals are rationed. Exits and additions are
		// consequences of a position the gate already ruled on.
		admitted, err := m.gate.Admit(ctx, wallet)
		if err != nil {
			return fmt.Errorf("frequency admission: %w", err)
		}
		if !admitted {
			return nil
		}
	case LifecycleAdded:
		// Suppressed rather than soft-alerted: the opening alert
		// already announced the position and add-ons arrive in bursts.
		return nil
	case LifecycleOrphan:
		// Exit of a position entered before tracking began; there is
		// no entry to report P&L against.
		return nil
	}

	alert := m.buildAlert(wallet, rec, result, sim)
	ref, err := m.notif.SendTradeAlert(ctx, alert)
	if err != nil {
		m.logger.Error("trade alert send failed", zap.Error(err))
		return nil
	}

	rec.Alerting = true
	if ref != "" {
		rec.NotificationRef = &ref
	}
	if err := m.stores.Activity.Update(ctx, rec); err != nil {
		return fmt.Errorf("record notification ref: %w", err)
	}
	return nil
}

// buildRecord maps a data API row onto a domain record.
func (m *WalletMonitor) buildRecord(wallet *domain.TrackedWallet, act *polymarketapi.Activity) *domain.ActivityRecord {
	now := m.now().UTC()

	actType := domain.ActivityType(strings.ToUpper(act.Type))
	if strings.EqualFold(act.Type, "TRADE") {
		actType = domain.ActivityType(strings.ToUpper(act.Side))
	}

	return &domain.ActivityRecord{
		ID:           uuid.New(),
		WalletID:     wallet.ID,
		Type:         actType,
		TxHash:       act.TransactionHash,
		ConditionID:  act.ConditionID,
		Outcome:      act.Outcome,
		OutcomeIndex: act.OutcomeIndex,
		Size:         decimal.NewFromFloat(act.Size),
		Price:        decimal.NewFromFloat(act.Price),
		UsdValue:     decimal.NewFromFloat(act.UsdcSize),
		Token:        act.Asset,
		Category:     ClassifyMarket(act.Title, act.Tags),
		Metadata: domain.ActivityMetadata{
			Slug:      act.Slug,
			Title:     act.Title,
			EventSlug: act.EventSlug,
			Icon:      act.Icon,
			Tags:      act.Tags,
		},
		TradedAt:  act.TradedAt(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (m *WalletMonitor) buildAlert(
	wallet *domain.TrackedWallet,
	rec *domain.ActivityRecord,
	result *LifecycleResult,
	sim *domain.CopyTradePosition,
) notifier.TradeAlert {
	kind := notifier.AlertPositionOpened
	if result.Kind == LifecycleClosed {
		kind = notifier.AlertPositionClosed
	}

	alert := notifier.TradeAlert{
		Kind:          kind,
		WalletLabel:   wallet.DisplayName(),
		WalletAddress: wallet.Address,
		Side:          string(rec.Type),
		Shares:        rec.Size,
		Price:         rec.Price,
		Notional:      rec.UsdValue,
		MarketTitle:   rec.Metadata.Title,
		Outcome:       rec.Outcome,
		Category:      rec.Category,
		RealizedPnl:   result.RealizedPnl,
		PercentPnl:    result.PercentPnl,
		Timestamp:     rec.TradedAt,
	}
	if rec.Metadata.EventSlug != "" {
		alert.MarketURL = "https://polymarket.com/event/" + rec.Metadata.EventSlug
	}

	if sim != nil {
		alert.CopyInvested = &sim.InvestedUSD
		alert.CopyShares = &sim.SharesBought
		alert.CopyPnl = sim.RealizedPnl
		alert.CopyFinalValue = sim.FinalValue
	}

	return alert
}

// HandleTradeEvent is the websocket fast path: a live fill involving a
// tracked wallet triggers an immediate poll of that wallet. Dedup in
// the poll path makes re-delivery harmless.
func (m *WalletMonitor) HandleTradeEvent(ctx context.Context, event polymarketevents.TradeEvent) {
	for _, address := range []string{event.MakerAddress, event.TakerAddress} {
		if address == "" {
			continue
		}
		wallet, err := m.stores.Wallets.GetByAddress(ctx, address)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			m.logger.Error("wallet lookup failed", zap.Error(err))
			continue
		}
		if !wallet.Active {
			continue
		}

		m.logger.Debug("live fill for tracked wallet, polling now",
			zap.String("wallet", domain.ShortAddress(wallet.Address)),
			zap.String("txHash", event.TransactionHash),
		)
		if err := m.PollWallet(ctx, wallet); err != nil && !errors.Is(err, context.Canceled) {
			m.logger.Error("fast-path poll failed", zap.Error(err))
		}
	}
}

// AssetIDs returns the outcome tokens seen so far, for websocket
// subscriptions.
func (m *WalletMonitor) AssetIDs() []string {
	m.assetsMu.Lock()
	defer m.assetsMu.Unlock()

	ids := make([]string, 0, len(m.seenAssets))
	for id := range m.seenAssets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (m *WalletMonitor) walletLock(id uuid.UUID) *sync.Mutex {
	m.lockMu.Lock()
	defer m.lockMu.Unlock()

	lock, ok := m.walletLocks[id]
	if !ok {
		lock = &sync.Mutex{}
		m.walletLocks[id] = lock
	}
	return lock
}
