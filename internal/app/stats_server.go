package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"go.uber.org/zap"
)

// ServiceStats is the /stats payload.
type ServiceStats struct {
	Build struct {
		Commit    string `json:"commit"`
		Time      string `json:"time,omitempty"`
		GoVersion string `json:"go_version"`
	} `json:"build"`

	StartTime string `json:"start_time"`
	Uptime    string `json:"uptime"`
	UptimeSec int64  `json:"uptime_seconds"`

	WebSocket struct {
		Enabled        bool   `json:"enabled"`
		Connected      bool   `json:"connected"`
		MessageCount   uint64 `json:"message_count"`
		LastMessageAt  string `json:"last_message_at,omitempty"`
		LastMessageAgo string `json:"last_message_ago,omitempty"`
		Subscriptions  int    `json:"subscriptions"`
	} `json:"websocket"`

	Monitor struct {
		SeenAssets int `json:"seen_assets"`
	} `json:"monitor"`

	Arbitrage struct {
		Enabled bool `json:"enabled"`
	} `json:"arbitrage"`

	Notifications struct {
		TelegramEnabled bool `json:"telegram_enabled"`
		DiscordEnabled  bool `json:"discord_enabled"`
	} `json:"notifications"`

	Runtime struct {
		Goroutines int    `json:"goroutines"`
		HeapAlloc  uint64 `json:"heap_alloc"`
		NumGC      uint32 `json:"num_gc"`
	} `json:"runtime"`
}

// GetStats returns a point-in-time snapshot of the service.
func (r *Runner) GetStats() ServiceStats {
	var stats ServiceStats

	stats.Build.Commit = BuildCommit
	stats.Build.Time = BuildTime
	stats.Build.GoVersion = runtime.Version()

	stats.StartTime = r.startTime.UTC().Format(time.RFC3339)
	uptime := time.Since(r.startTime)
	stats.Uptime = uptime.Round(time.Second).String()
	stats.UptimeSec = int64(uptime.Seconds())

	stats.WebSocket.Enabled = r.clients.PolymarketEvents != nil
	if r.clients.PolymarketEvents != nil {
		ws := r.clients.PolymarketEvents.Stats()
		stats.WebSocket.MessageCount = ws.MessageCount
		if !ws.LastMessageAt.IsZero() {
			stats.WebSocket.LastMessageAt = ws.LastMessageAt.UTC().Format(time.RFC3339)
			stats.WebSocket.LastMessageAgo = time.Since(ws.LastMessageAt).Round(time.Second).String()
		}

		r.wsMu.Lock()
		stats.WebSocket.Connected = r.wsConnected
		stats.WebSocket.Subscriptions = len(r.wsSubscribed)
		r.wsMu.Unlock()
	}

	if r.monitor != nil {
		stats.Monitor.SeenAssets = len(r.monitor.AssetIDs())
	}
	stats.Arbitrage.Enabled = r.engine != nil

	stats.Notifications.TelegramEnabled = r.clients.Telegram != nil && r.clients.Telegram.IsEnabled()
	stats.Notifications.DiscordEnabled = r.clients.Discord != nil && r.clients.Discord.IsEnabled()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	stats.Runtime.Goroutines = runtime.NumGoroutine()
	stats.Runtime.HeapAlloc = memStats.HeapAlloc
	stats.Runtime.NumGC = memStats.NumGC

	return stats
}

// statsServer serves /health and /stats.
type statsServer struct {
	logger *zap.Logger
	server *http.Server
}

func newStatsServer(logger *zap.Logger, runner *Runner, port int) *statsServer {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/stats", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(runner.GetStats()); err != nil {
			logger.Error("stats encode failed", zap.Error(err))
		}
	})

	return &statsServer{
		logger: logger,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

func (s *statsServer) Start() {
	go func() {
		s.logger.Info("stats server listening", zap.String("addr", s.server.Addr))
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("stats server failed", zap.Error(err))
		}
	}()
}

func (s *statsServer) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(ctx)
}
