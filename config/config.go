// Package config loads application configuration from environment
// variables, with an optional .env file for local development.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	App        AppConfig
	Postgres   PostgresConfig
	Polymarket PolymarketConfig
	Kalshi     KalshiConfig
	Telegram   TelegramConfig
	Discord    DiscordConfig
	Monitor    MonitorConfig
	Arbitrage  ArbitrageConfig
	Stats      StatsConfig
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"whalewatch"`
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// DryRun runs the pipeline against in-memory stores, without
	// Postgres. Alerts are logged instead of persisted durably.
	DryRun bool `envconfig:"DRY_RUN" default:"false"`
}

func (c AppConfig) IsProd() bool {
	return strings.EqualFold(c.Env, "production")
}

type PostgresConfig struct {
	Host     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" default:"whalewatch"`
	Password string `envconfig:"POSTGRES_PASSWORD"`
	Database string `envconfig:"POSTGRES_DB" default:"whalewatch"`
	SSLMode  string `envconfig:"POSTGRES_SSL_MODE" default:"disable"`
	MaxConns int    `envconfig:"POSTGRES_MAX_CONNS" default:"25"`
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

type PolymarketConfig struct {
	GammaAPIURL string `envconfig:"POLYMARKET_GAMMA_API_URL" default:"https://gamma-api.polymarket.com"`
	DataAPIURL  string `envconfig:"POLYMARKET_DATA_API_URL" default:"https://data-api.polymarket.com"`

	// UseWebSocket enables the CLOB trade stream as a low-latency
	// supplement to polling.
	UseWebSocket bool   `envconfig:"POLYMARKET_USE_WEBSOCKET" default:"false"`
	WebsocketURL string `envconfig:"POLYMARKET_WS_URL" default:"wss://ws-subscriptions-clob.polymarket.com/ws/market"`
}

type KalshiConfig struct {
	APIURL string `envconfig:"KALSHI_API_URL" default:"https://api.elections.kalshi.com/trade-api/v2"`
}

type TelegramConfig struct {
	BotToken string `envconfig:"TELEGRAM_BOT_TOKEN"`
	ChatID   int64  `envconfig:"TELEGRAM_CHAT_ID"`
}

type DiscordConfig struct {
	BotToken  string `envconfig:"DISCORD_BOT_TOKEN"`
	ChannelID string `envconfig:"DISCORD_CHANNEL_ID"`
}

// MonitorConfig controls the whale trade polling pipeline.
type MonitorConfig struct {
	PollInterval time.Duration `envconfig:"MONITOR_POLL_INTERVAL" default:"30s"`

	// WalletConcurrency bounds how many wallets are polled at once.
	WalletConcurrency int `envconfig:"MONITOR_WALLET_CONCURRENCY" default:"4"`

	// PageSize is the activity page size per data API request.
	PageSize int `envconfig:"MONITOR_PAGE_SIZE" default:"500"`

	// MaxConsecutiveFailures aborts a wallet's fetch sequence for the
	// current cycle.
	MaxConsecutiveFailures int `envconfig:"MONITOR_MAX_CONSECUTIVE_FAILURES" default:"3"`

	// Backfill bounds how far a first poll reaches into the past.
	Backfill time.Duration `envconfig:"MONITOR_BACKFILL" default:"24h"`
}

// ArbitrageConfig controls the cross-venue scanner.
type ArbitrageConfig struct {
	Enabled      bool          `envconfig:"ARB_ENABLED" default:"true"`
	ScanInterval time.Duration `envconfig:"ARB_SCAN_INTERVAL" default:"10m"`

	// Catalog pagination bounds.
	PageSize               int           `envconfig:"ARB_PAGE_SIZE" default:"200"`
	MaxPages               int           `envconfig:"ARB_MAX_PAGES" default:"50"`
	MaxConsecutiveFailures int           `envconfig:"ARB_MAX_CONSECUTIVE_FAILURES" default:"3"`
	PageDelay              time.Duration `envconfig:"ARB_PAGE_DELAY" default:"250ms"`

	// SimilarityThreshold is the minimum title-match score in [0,1]
	// for a cross-venue pair to be considered the same market.
	SimilarityThreshold float64 `envconfig:"ARB_SIMILARITY_THRESHOLD" default:"0.65"`

	// AlertMargin notifies when bestMargin is at or below this value
	// (cents). 100 would alert on every profitable pair.
	AlertMargin float64 `envconfig:"ARB_ALERT_MARGIN" default:"98"`
}

// StatsConfig controls the optional health/stats HTTP endpoint.
type StatsConfig struct {
	Enabled bool `envconfig:"STATS_ENABLED" default:"false"`
	Port    int  `envconfig:"STATS_PORT" default:"8080"`
}

// Load reads configuration from environment variables. A .env file is
// loaded first if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process env config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints envconfig cannot express.
func (c *Config) Validate() error {
	var problems []string

	if c.Monitor.PollInterval < time.Second {
		problems = append(problems, "MONITOR_POLL_INTERVAL must be at least 1s")
	}
	if c.Monitor.WalletConcurrency < 1 {
		problems = append(problems, "MONITOR_WALLET_CONCURRENCY must be at least 1")
	}
	if c.Arbitrage.SimilarityThreshold < 0 || c.Arbitrage.SimilarityThreshold > 1 {
		problems = append(problems, "ARB_SIMILARITY_THRESHOLD must be in [0,1]")
	}
	if c.Arbitrage.MaxPages < 1 {
		problems = append(problems, "ARB_MAX_PAGES must be at least 1")
	}
	if c.Telegram.BotToken != "" && c.Telegram.ChatID == 0 {
		problems = append(problems, "TELEGRAM_CHAT_ID required when TELEGRAM_BOT_TOKEN is set")
	}
	if c.Discord.BotToken != "" && c.Discord.ChannelID == "" {
		problems = append(problems, "DISCORD_CHANNEL_ID required when DISCORD_BOT_TOKEN is set")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
