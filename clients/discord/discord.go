package discord

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"whalewatch/clients/notifier"
	"whalewatch/config"
	"whalewatch/internal/domain"
)

// DiscordClient sends alerts to a Discord channel as rich embeds.
// Implements notifier.Notifier.
type DiscordClient struct {
	logger    *zap.Logger
	session   *discordgo.Session
	channelID string
}

func NewDiscordClient(logger *zap.Logger, cfg *config.Config) *DiscordClient {
	if logger == nil {
		logger = zap.NewNop()
	}

	if cfg.Discord.BotToken == "" {
		logger.Warn("DISCORD_BOT_TOKEN not set, Discord alerts disabled")
		return &DiscordClient{logger: logger, channelID: cfg.Discord.ChannelID}
	}

	session, err := discordgo.New("Bot " + cfg.Discord.BotToken)
	if err != nil {
		logger.Error("failed to create discord session", zap.Error(err))
		return &DiscordClient{logger: logger, channelID: cfg.Discord.ChannelID}
	}

	logger.Info("discord bot initialized",
		zap.String("channelID", cfg.Discord.ChannelID),
	)

	return &DiscordClient{
		logger:    logger,
		session:   session,
		channelID: cfg.Discord.ChannelID,
	}
}

// SendTradeAlert sends a whale trade alert embed and returns the
// message reference, empty when the channel is disabled.
func (dc *DiscordClient) SendTradeAlert(ctx context.Context, alert notifier.TradeAlert) (string, error) {
	if dc.session == nil {
		return "", nil
	}

	msg, err := dc.session.ChannelMessageSendEmbed(dc.channelID, buildTradeEmbed(alert))
	if err != nil {
		dc.logger.Error("failed to send discord trade alert", zap.Error(err))
		return "", fmt.Errorf("send discord embed: %w", err)
	}

	dc.logger.Info("sent discord trade alert",
		zap.String("wallet", domain.ShortAddress(alert.WalletAddress)),
		zap.String("market", alert.MarketTitle),
		zap.String("messageID", msg.ID),
	)

	return "discord:" + msg.ID, nil
}

// SendArbAlert sends a cross-venue opportunity embed.
func (dc *DiscordClient) SendArbAlert(ctx context.Context, alert notifier.ArbAlert) (string, error) {
	if dc.session == nil {
		return "", nil
	}

	msg, err := dc.session.ChannelMessageSendEmbed(dc.channelID, buildArbEmbed(alert))
	if err != nil {
		dc.logger.Error("failed to send discord arb alert", zap.Error(err))
		return "", fmt.Errorf("send discord embed: %w", err)
	}

	return "discord:" + msg.ID, nil
}

func buildTradeEmbed(alert notifier.TradeAlert) *discordgo.MessageEmbed {
	color := 0x2ECC71 // green for BUY
	sideEmoji := "🟢"
	if strings.ToUpper(alert.Side) == "SELL" {
		color = 0xE74C3C
		sideEmoji = "🔴"
	}

	wallet := alert.WalletLabel
	if wallet == "" {
		wallet = domain.ShortAddress(alert.WalletAddress)
	}

	shares, _ := alert.Shares.Float64()
	price, _ := alert.Price.Float64()
	notional, _ := alert.Notional.Float64()

	fields := []*discordgo.MessageEmbedField{
		{
			Name:   "Wallet",
			Value:  wallet,
			Inline: true,
		},
		{
			Name:   "Side",
			Value:  fmt.Sprintf("%s %s", sideEmoji, alert.Side),
			Inline: true,
		},
		{
			Name: "Trade",
			Value: fmt.Sprintf("%s shares @ $%.3f ($%s)",
				humanize.CommafWithDigits(shares, 2), price,
				humanize.CommafWithDigits(notional, 2)),
			Inline: true,
		},
	}

	if alert.Outcome != "" {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:   "Outcome",
			Value:  alert.Outcome,
			Inline: true,
		})
	}
	if alert.Category != "" {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:   "Category",
			Value:  alert.Category,
			Inline: true,
		})
	}

	if alert.RealizedPnl != nil && alert.PercentPnl != nil {
		pnl, _ := alert.RealizedPnl.Float64()
		pct, _ := alert.PercentPnl.Float64()
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:   "Realized P&L",
			Value:  fmt.Sprintf("%s$%s (%.1f%%)", signPrefix(pnl), humanize.CommafWithDigits(abs(pnl), 2), pct),
			Inline: true,
		})
	}

	if alert.CopyInvested != nil && alert.CopyShares != nil {
		invested, _ := alert.CopyInvested.Float64()
		copyShares, _ := alert.CopyShares.Float64()
		value := fmt.Sprintf("$%s → %s shares",
			humanize.CommafWithDigits(invested, 2),
			humanize.CommafWithDigits(copyShares, 2))
		if alert.CopyPnl != nil && alert.CopyFinalValue != nil {
			copyPnl, _ := alert.CopyPnl.Float64()
			final, _ := alert.CopyFinalValue.Float64()
			value += fmt.Sprintf("\nP&L %s$%s, final $%s",
				signPrefix(copyPnl), humanize.CommafWithDigits(abs(copyPnl), 2),
				humanize.CommafWithDigits(final, 2))
		}
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:   "📋 Copy sim",
			Value:  value,
			Inline: false,
		})
	}

	ts := alert.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	return &discordgo.MessageEmbed{
		Title:       embedTitle(alert.Kind),
		URL:         alert.MarketURL,
		Description: fmt.Sprintf("**%s**", alert.MarketTitle),
		Color:       color,
		Fields:      fields,
		Footer: &discordgo.MessageEmbedFooter{
			Text: "whalewatch",
		},
		Timestamp: ts.Format(time.RFC3339),
	}
}

func embedTitle(kind notifier.AlertKind) string {
	switch kind {
	case notifier.AlertPositionOpened:
		return "🐋 New Position"
	case notifier.AlertPositionAdded:
		return "➕ Position Increased"
	case notifier.AlertPositionClosed:
		return "🏁 Position Closed"
	case notifier.AlertTransfer:
		return "🔁 Wallet Transfer"
	}
	return "🐋 Wallet Activity"
}

func buildArbEmbed(alert notifier.ArbAlert) *discordgo.MessageEmbed {
	margin, _ := alert.BestMargin.Float64()
	profit, _ := alert.ProfitCents.Float64()
	similarity, _ := alert.Similarity.Float64()

	fields := []*discordgo.MessageEmbedField{
		{
			Name:   "Polymarket",
			Value:  fmt.Sprintf("[%s](%s)", alert.PolymarketTitle, alert.PolymarketURL),
			Inline: false,
		},
		{
			Name:   "Kalshi",
			Value:  fmt.Sprintf("[%s](%s)", alert.KalshiTitle, alert.KalshiURL),
			Inline: false,
		},
		{
			Name:   "Direction",
			Value:  alert.Direction,
			Inline: true,
		},
		{
			Name:   "Combined cost",
			Value:  fmt.Sprintf("%.1f¢ (profit %.1f¢ per set)", margin, profit),
			Inline: true,
		},
		{
			Name:   "Title match",
			Value:  fmt.Sprintf("%.0f%%", similarity*100),
			Inline: true,
		},
	}

	title := "⚖️ Cross-Venue Opportunity"
	if alert.Verified {
		title += " ✅"
	}

	ts := alert.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	return &discordgo.MessageEmbed{
		Title:     title,
		Color:     0xF1C40F,
		Fields:    fields,
		Footer:    &discordgo.MessageEmbedFooter{Text: "whalewatch"},
		Timestamp: ts.Format(time.RFC3339),
	}
}

func signPrefix(v float64) string {
	if v < 0 {
		return "-"
	}
	return "+"
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// IsEnabled reports whether the channel is configured.
func (dc *DiscordClient) IsEnabled() bool {
	return dc.session != nil
}

// Close closes the Discord session.
func (dc *DiscordClient) Close() error {
	if dc.session != nil {
		return dc.session.Close()
	}
	return nil
}
