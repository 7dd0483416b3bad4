package telegram

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"whalewatch/clients/notifier"
	"whalewatch/config"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestNewTelegramClient_NoToken(t *testing.T) {
	tc := NewTelegramClient(nil, &config.Config{})

	if tc.bot != nil {
		t.Error("expected disabled client without token")
	}

	// Disabled channel: no ref, no error.
	ref, err := tc.SendTradeAlert(context.Background(), notifier.TradeAlert{})
	if err != nil || ref != "" {
		t.Errorf("expected silent no-op, got ref=%q err=%v", ref, err)
	}
}

func TestBuildTradeMessage_Opened(t *testing.T) {
	msg := buildTradeMessage(notifier.TradeAlert{
		Kind:          notifier.AlertPositionOpened,
		WalletAddress: "0x1234567890abcdef1234",
		Side:          "BUY",
		Shares:        d("1250"),
		Price:         d("0.40"),
		Notional:      d("500"),
		MarketTitle:   "Will X & Y merge?",
		MarketURL:     "https://polymarket.com/event/x-y-merge",
		Outcome:       "Yes",
		Category:      "business",
		Timestamp:     time.Now(),
	})

	for _, want := range []string{
		"New position",
		"0x1234…1234",
		"Will X &amp; Y merge?",
		"BUY 1,250 shares @ $0.400 ($500)",
		"Category: business",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestBuildTradeMessage_ClosedWithCopySim(t *testing.T) {
	pnl := d("312.5")
	pct := d("62.5")
	invested := d("500")
	shares := d("1250")
	final := d("812.5")

	msg := buildTradeMessage(notifier.TradeAlert{
		Kind:           notifier.AlertPositionClosed,
		WalletAddress:  "0xwhale",
		Side:           "SELL",
		Shares:         shares,
		Price:          d("0.65"),
		Notional:       d("812.5"),
		MarketTitle:    "Rain tomorrow?",
		RealizedPnl:    &pnl,
		PercentPnl:     &pct,
		CopyInvested:   &invested,
		CopyShares:     &shares,
		CopyPnl:        &pnl,
		CopyFinalValue: &final,
	})

	for _, want := range []string{
		"Position closed",
		"Realized P&amp;L: +$312.5 (62.5%)",
		"Copy sim: $500 → 1,250 shares",
		"final $812.5",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestBuildTradeMessage_NegativePnl(t *testing.T) {
	pnl := d("-160")
	pct := d("-80")

	msg := buildTradeMessage(notifier.TradeAlert{
		Kind:        notifier.AlertPositionClosed,
		Side:        "SELL",
		RealizedPnl: &pnl,
		PercentPnl:  &pct,
	})

	if !strings.Contains(msg, "-$160 (-80.0%)") {
		t.Errorf("unexpected loss formatting:\n%s", msg)
	}
}

func TestBuildArbMessage(t *testing.T) {
	msg := buildArbMessage(notifier.ArbAlert{
		PolymarketTitle: "Fed cuts rates in March?",
		KalshiTitle:     "Fed rate cut by March 31",
		PolymarketURL:   "https://polymarket.com/event/fed-march",
		KalshiURL:       "https://kalshi.com/markets/kxfed",
		Direction:       "BUY_NO_POLY_BUY_YES_KALSHI",
		BestMargin:      d("98"),
		ProfitCents:     d("2"),
		Similarity:      d("0.81"),
		Verified:        true,
	})

	for _, want := range []string{
		"Cross-venue opportunity",
		"Combined cost: 98.0¢ (profit 2.0¢ per set)",
		"Title match: 81%",
		"verified",
		"BUY_NO_POLY_BUY_YES_KALSHI",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
}
