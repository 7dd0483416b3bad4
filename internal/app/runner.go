package app

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	clts "whalewatch/clients"
	"whalewatch/clients/polymarketevents"
	"whalewatch/config"
	"whalewatch/internal/arbitrage"
	"whalewatch/internal/storage"
)

// Build info - populated from embedded VCS info at init time
var (
	BuildCommit = "dev"
	BuildTime   = "unknown"
)

func init() {
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				if setting.Value != "" {
					BuildCommit = setting.Value
				}
			case "vcs.time":
				BuildTime = setting.Value
			}
		}
	}
}

// Runner wires the whale monitor, the arbitrage scanner and the
// optional websocket fast path, and owns their lifecycles.
type Runner struct {
	clients *clts.Clients
	stores  *storage.Stores
	cfg     *config.Config

	monitor *WalletMonitor
	engine  *arbitrage.Engine

	startTime time.Time

	// wsSubscribed is the asset set currently subscribed on the
	// websocket, maintained by the event stream loop.
	wsMu         sync.Mutex
	wsConnected  bool
	wsSubscribed []string
}

func NewRunner(clients *clts.Clients, stores *storage.Stores, cfg *config.Config) *Runner {
	r := &Runner{
		clients: clients,
		stores:  stores,
		cfg:     cfg,
	}

	r.monitor = NewWalletMonitor(
		clients.Logger.Named("monitor"),
		clients.Polymarket,
		stores,
		clients.Notifier,
		cfg.Monitor,
	)

	if cfg.Arbitrage.Enabled {
		r.engine = arbitrage.NewEngine(
			clients.Logger.Named("arbitrage"),
			clients.Polymarket,
			clients.Kalshi,
			stores.Opportunities,
			clients.Notifier,
			cfg.Arbitrage,
		)
	}

	return r
}

// Run starts every loop and blocks until the context ends. In-flight
// cycles drain before it returns.
func (r *Runner) Run(ctx context.Context) error {
	r.startTime = time.Now()
	logger := r.clients.Logger

	logger.Info("whalewatch starting",
		zap.String("commit", BuildCommit),
		zap.String("buildTime", BuildTime),
		zap.Duration("pollInterval", r.cfg.Monitor.PollInterval),
		zap.Bool("arbitrage", r.engine != nil),
		zap.Bool("websocket", r.clients.PolymarketEvents != nil),
	)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := r.monitor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("wallet monitor exited", zap.Error(err))
		}
	}()

	if r.engine != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("arbitrage engine exited", zap.Error(err))
			}
		}()
	}

	if r.clients.PolymarketEvents != nil {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.runEventConsumer(ctx)
		}()
		go func() {
			defer wg.Done()
			r.runSubscriptionManager(ctx)
		}()
	}

	var stats *statsServer
	if r.cfg.Stats.Enabled {
		stats = newStatsServer(logger, r, r.cfg.Stats.Port)
		stats.Start()
	}

	<-ctx.Done()
	logger.Info("runner shutting down")

	if r.clients.PolymarketEvents != nil {
		_ = r.clients.PolymarketEvents.Close()
	}
	if stats != nil {
		stats.Stop()
	}

	wg.Wait()
	return nil
}

// runEventConsumer feeds websocket trade events into the monitor's
// fast path and logs stream errors.
func (r *Runner) runEventConsumer(ctx context.Context) {
	events := r.clients.PolymarketEvents
	logger := r.clients.Logger

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-events.Trades():
			r.monitor.HandleTradeEvent(ctx, event)
		case err := <-events.Errors():
			logger.Warn("websocket stream error", zap.Error(err))
			r.setWSConnected(false)
		}
	}
}

// runSubscriptionManager keeps the websocket connected and its
// subscriptions in sync with the assets the monitor has seen. The poll
// loop stays authoritative; the stream only lowers latency, so every
// failure here is retried on the next tick rather than surfaced.
func (r *Runner) runSubscriptionManager(ctx context.Context) {
	logger := r.clients.Logger
	events := r.clients.PolymarketEvents

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		assets := r.monitor.AssetIDs()
		if len(assets) == 0 {
			continue
		}

		if r.wsStale(events.Stats()) {
			logger.Warn("websocket appears stale, reconnecting")
			_ = events.Close()
			r.setWSConnected(false)
		}

		r.wsMu.Lock()
		connected := r.wsConnected
		subscribed := r.wsSubscribed
		r.wsMu.Unlock()

		if !connected {
			if err := events.ConnectMarket(ctx, assets); err != nil {
				logger.Warn("websocket connect failed", zap.Error(err))
				continue
			}
			r.wsMu.Lock()
			r.wsConnected = true
			r.wsSubscribed = assets
			r.wsMu.Unlock()
			logger.Info("websocket connected", zap.Int("assets", len(assets)))
			continue
		}

		added := difference(assets, subscribed)
		removed := difference(subscribed, assets)
		if len(added) > 0 {
			if err := events.SubscribeAssets(added); err != nil {
				logger.Warn("websocket subscribe failed", zap.Error(err))
				continue
			}
		}
		if len(removed) > 0 {
			if err := events.UnsubscribeAssets(removed); err != nil {
				logger.Warn("websocket unsubscribe failed", zap.Error(err))
				continue
			}
		}
		if len(added) > 0 || len(removed) > 0 {
			r.wsMu.Lock()
			r.wsSubscribed = assets
			r.wsMu.Unlock()
			logger.Debug("websocket subscriptions updated",
				zap.Int("added", len(added)),
				zap.Int("removed", len(removed)),
			)
		}
	}
}

// wsStale reports whether the stream went quiet long enough to assume
// a dead connection. A stream that never delivered is not stale; the
// subscribed markets may simply not be trading.
func (r *Runner) wsStale(stats polymarketevents.WSStats) bool {
	r.wsMu.Lock()
	connected := r.wsConnected
	r.wsMu.Unlock()
	if !connected {
		return false
	}
	return stats.MessageCount > 0 && time.Since(stats.LastMessageAt) > 2*time.Minute
}

func (r *Runner) setWSConnected(v bool) {
	r.wsMu.Lock()
	r.wsConnected = v
	r.wsMu.Unlock()
}
