package telegram

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"whalewatch/clients/notifier"
	"whalewatch/config"
	"whalewatch/internal/domain"
)

// TelegramClient sends alerts to a Telegram chat.
// Implements notifier.Notifier.
type TelegramClient struct {
	logger *zap.Logger
	bot    *tgbotapi.BotAPI
	chatID int64
}

func NewTelegramClient(logger *zap.Logger, cfg *config.Config) *TelegramClient {
	if logger == nil {
		logger = zap.NewNop()
	}

	if cfg.Telegram.BotToken == "" {
		logger.Warn("TELEGRAM_BOT_TOKEN not set, Telegram alerts disabled")
		return &TelegramClient{logger: logger}
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		logger.Error("failed to create telegram bot", zap.Error(err))
		return &TelegramClient{logger: logger, chatID: cfg.Telegram.ChatID}
	}

	logger.Info("telegram bot initialized",
		zap.String("username", bot.Self.UserName),
		zap.Int64("chatID", cfg.Telegram.ChatID),
	)

	return &TelegramClient{
		logger: logger,
		bot:    bot,
		chatID: cfg.Telegram.ChatID,
	}
}

// SendTradeAlert sends a whale trade alert and returns the message
// reference, empty when the channel is disabled.
func (tc *TelegramClient) SendTradeAlert(ctx context.Context, alert notifier.TradeAlert) (string, error) {
	if tc.bot == nil {
		return "", nil
	}

	msg := tgbotapi.NewMessage(tc.chatID, buildTradeMessage(alert))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	sent, err := tc.bot.Send(msg)
	if err != nil {
		tc.logger.Error("failed to send telegram trade alert", zap.Error(err))
		return "", fmt.Errorf("send telegram message: %w", err)
	}

	tc.logger.Info("sent telegram trade alert",
		zap.String("wallet", domain.ShortAddress(alert.WalletAddress)),
		zap.String("market", alert.MarketTitle),
		zap.Int("messageID", sent.MessageID),
	)

	return fmt.Sprintf("telegram:%d", sent.MessageID), nil
}

// SendArbAlert sends a cross-venue opportunity alert.
func (tc *TelegramClient) SendArbAlert(ctx context.Context, alert notifier.ArbAlert) (string, error) {
	if tc.bot == nil {
		return "", nil
	}

	msg := tgbotapi.NewMessage(tc.chatID, buildArbMessage(alert))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	sent, err := tc.bot.Send(msg)
	if err != nil {
		tc.logger.Error("failed to send telegram arb alert", zap.Error(err))
		return "", fmt.Errorf("send telegram message: %w", err)
	}

	return fmt.Sprintf("telegram:%d", sent.MessageID), nil
}

// IsEnabled reports whether the channel is configured.
func (tc *TelegramClient) IsEnabled() bool {
	return tc.bot != nil
}

// Close is a no-op; the bot API client holds no persistent connection.
func (tc *TelegramClient) Close() error {
	return nil
}

func buildTradeMessage(alert notifier.TradeAlert) string {
	var b strings.Builder

	switch alert.Kind {
	case notifier.AlertPositionOpened:
		b.WriteString("🐋 <b>New position</b>\n")
	case notifier.AlertPositionAdded:
		b.WriteString("➕ <b>Position increased</b>\n")
	case notifier.AlertPositionClosed:
		b.WriteString("🏁 <b>Position closed</b>\n")
	default:
		b.WriteString("🔁 <b>Wallet activity</b>\n")
	}

	wallet := alert.WalletLabel
	if wallet == "" {
		wallet = domain.ShortAddress(alert.WalletAddress)
	}
	fmt.Fprintf(&b, "Wallet: <code>%s</code>\n", escape(wallet))

	if alert.MarketURL != "" {
		fmt.Fprintf(&b, "Market: <a href=\"%s\">%s</a>\n", alert.MarketURL, escape(alert.MarketTitle))
	} else {
		fmt.Fprintf(&b, "Market: %s\n", escape(alert.MarketTitle))
	}
	if alert.Outcome != "" {
		fmt.Fprintf(&b, "Outcome: %s\n", escape(alert.Outcome))
	}
	if alert.Category != "" {
		fmt.Fprintf(&b, "Category: %s\n", escape(alert.Category))
	}

	shares, _ := alert.Shares.Float64()
	price, _ := alert.Price.Float64()
	notional, _ := alert.Notional.Float64()
	fmt.Fprintf(&b, "%s %s shares @ $%.3f ($%s)\n",
		escape(alert.Side), humanize.CommafWithDigits(shares, 2), price,
		humanize.CommafWithDigits(notional, 2))

	if alert.RealizedPnl != nil && alert.PercentPnl != nil {
		pnl, _ := alert.RealizedPnl.Float64()
		pct, _ := alert.PercentPnl.Float64()
		fmt.Fprintf(&b, "Realized P&amp;L: %s$%s (%.1f%%)\n",
			signPrefix(pnl), humanize.CommafWithDigits(abs(pnl), 2), pct)
	}

	if alert.CopyInvested != nil && alert.CopyShares != nil {
		invested, _ := alert.CopyInvested.Float64()
		copyShares, _ := alert.CopyShares.Float64()
		fmt.Fprintf(&b, "\n📋 Copy sim: $%s → %s shares",
			humanize.CommafWithDigits(invested, 2),
			humanize.CommafWithDigits(copyShares, 2))
		if alert.CopyPnl != nil && alert.CopyFinalValue != nil {
			copyPnl, _ := alert.CopyPnl.Float64()
			final, _ := alert.CopyFinalValue.Float64()
			fmt.Fprintf(&b, ", P&amp;L %s$%s, final $%s",
				signPrefix(copyPnl), humanize.CommafWithDigits(abs(copyPnl), 2),
				humanize.CommafWithDigits(final, 2))
		}
		b.WriteString("\n")
	}

	return b.String()
}

func buildArbMessage(alert notifier.ArbAlert) string {
	var b strings.Builder

	b.WriteString("⚖️ <b>Cross-venue opportunity</b>\n")
	fmt.Fprintf(&b, "Polymarket: <a href=\"%s\">%s</a>\n", alert.PolymarketURL, escape(alert.PolymarketTitle))
	fmt.Fprintf(&b, "Kalshi: <a href=\"%s\">%s</a>\n", alert.KalshiURL, escape(alert.KalshiTitle))
	fmt.Fprintf(&b, "Direction: <code>%s</code>\n", escape(alert.Direction))

	margin, _ := alert.BestMargin.Float64()
	profit, _ := alert.ProfitCents.Float64()
	similarity, _ := alert.Similarity.Float64()
	fmt.Fprintf(&b, "Combined cost: %.1f¢ (profit %.1f¢ per set)\n", margin, profit)
	fmt.Fprintf(&b, "Title match: %.0f%%", similarity*100)
	if alert.Verified {
		b.WriteString(" ✅ verified")
	}
	b.WriteString("\n")

	return b.String()
}

func escape(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
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
