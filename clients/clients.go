package clients

import (
	"go.uber.org/zap"

	"whalewatch/clients/discord"
	"whalewatch/clients/kalshiapi"
	"whalewatch/clients/notifier"
	"whalewatch/clients/polymarketapi"
	"whalewatch/clients/polymarketevents"
	"whalewatch/clients/telegram"
	"whalewatch/config"
)

type Clients struct {
	Logger *zap.Logger

	Telegram         *telegram.TelegramClient
	Discord          *discord.DiscordClient
	Notifier         notifier.Notifier // combined notifier for all channels
	Polymarket       *polymarketapi.PolymarketApiClient
	Kalshi           *kalshiapi.KalshiApiClient
	PolymarketEvents *polymarketevents.PolymarketEventsClient
}

func NewClients(logger *zap.Logger, cfg *config.Config) *Clients {
	telegramClient := telegram.NewTelegramClient(logger, cfg)
	discordClient := discord.NewDiscordClient(logger, cfg)

	c := &Clients{
		Logger:     logger,
		Telegram:   telegramClient,
		Discord:    discordClient,
		Notifier:   notifier.NewMultiNotifier(telegramClient, discordClient),
		Polymarket: polymarketapi.NewPolymarketApiClient(logger, cfg),
		Kalshi:     kalshiapi.NewKalshiApiClient(logger, cfg),
	}

	// Only create the WebSocket client if configured to use it.
	if cfg.Polymarket.UseWebSocket {
		c.PolymarketEvents = polymarketevents.NewPolymarketEventsClient(logger, cfg)
	}

	return c
}

// Close shuts down all clients that hold connections.
func (c *Clients) Close() error {
	var lastErr error
	if c.PolymarketEvents != nil {
		if err := c.PolymarketEvents.Close(); err != nil {
			lastErr = err
		}
	}
	if c.Notifier != nil {
		if err := c.Notifier.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
