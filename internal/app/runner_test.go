package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	clts "whalewatch/clients"
	"whalewatch/clients/kalshiapi"
	"whalewatch/clients/polymarketapi"
	"whalewatch/config"
	"whalewatch/internal/storage/memory"
)

func testRunnerConfig() *config.Config {
	return &config.Config{
		Polymarket: config.PolymarketConfig{
			GammaAPIURL: "http://example.com",
			DataAPIURL:  "http://example.com",
		},
		Kalshi: config.KalshiConfig{APIURL: "http://example.com"},
		Monitor: config.MonitorConfig{
			PollInterval:      time.Minute,
			WalletConcurrency: 2,
			Backfill:          24 * time.Hour,
		},
		Arbitrage: config.ArbitrageConfig{
			Enabled:      true,
			ScanInterval: time.Minute,
		},
	}
}

func testClients(cfg *config.Config) *clts.Clients {
	logger := zap.NewNop()
	return &clts.Clients{
		Logger:     logger,
		Notifier:   &fakeTradeNotifier{},
		Polymarket: polymarketapi.NewPolymarketApiClient(logger, cfg),
		Kalshi:     kalshiapi.NewKalshiApiClient(logger, cfg),
	}
}

func TestNewRunner_WiresMonitorAndEngine(t *testing.T) {
	cfg := testRunnerConfig()
	runner := NewRunner(testClients(cfg), memory.NewStores(), cfg)

	require.NotNil(t, runner.monitor)
	assert.NotNil(t, runner.engine)
}

func TestNewRunner_ArbitrageDisabled(t *testing.T) {
	cfg := testRunnerConfig()
	cfg.Arbitrage.Enabled = false

	runner := NewRunner(testClients(cfg), memory.NewStores(), cfg)
	assert.Nil(t, runner.engine)
}

func TestRunner_StopsOnContextCancel(t *testing.T) {
	cfg := testRunnerConfig()
	cfg.Arbitrage.Enabled = false
	runner := NewRunner(testClients(cfg), memory.NewStores(), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not shut down")
	}
}

func TestRunner_GetStats(t *testing.T) {
	cfg := testRunnerConfig()
	runner := NewRunner(testClients(cfg), memory.NewStores(), cfg)
	runner.startTime = time.Now().Add(-time.Minute)

	stats := runner.GetStats()
	assert.Equal(t, BuildCommit, stats.Build.Commit)
	assert.False(t, stats.WebSocket.Enabled)
	assert.True(t, stats.Arbitrage.Enabled)
	assert.GreaterOrEqual(t, stats.UptimeSec, int64(59))
}
