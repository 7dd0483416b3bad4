package notifier

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// AlertKind indicates which lifecycle event triggered a trade alert.
type AlertKind string

const (
	AlertPositionOpened AlertKind = "position_opened"
	AlertPositionAdded  AlertKind = "position_added"
	AlertPositionClosed AlertKind = "position_closed"
	AlertTransfer       AlertKind = "transfer"
)

// TradeAlert contains the data needed for a whale trade notification.
type TradeAlert struct {
	Kind AlertKind

	// Wallet info
	WalletLabel   string
	WalletAddress string

	// Trade info
	Side     string
	Shares   decimal.Decimal
	Price    decimal.Decimal
	Notional decimal.Decimal

	// Market info
	MarketTitle string
	MarketURL   string
	Outcome     string
	Category    string

	// Realized P&L, set for position_closed alerts.
	RealizedPnl *decimal.Decimal
	PercentPnl  *decimal.Decimal

	// Copy-trade simulation result, set when the wallet is mirrored.
	CopyInvested   *decimal.Decimal
	CopyShares     *decimal.Decimal
	CopyPnl        *decimal.Decimal
	CopyFinalValue *decimal.Decimal

	Timestamp time.Time
}

// ArbAlert contains the data for a cross-venue opportunity notification.
type ArbAlert struct {
	PolymarketTitle string
	KalshiTitle     string
	PolymarketURL   string
	KalshiURL       string

	Direction   string
	BestMargin  decimal.Decimal
	ProfitCents decimal.Decimal
	Similarity  decimal.Decimal
	Verified    bool

	Timestamp time.Time
}

// Notifier is the interface for sending alerts to a channel. Send
// methods return a channel-specific message reference for the sent
// alert, empty when the channel is disabled.
type Notifier interface {
	SendTradeAlert(ctx context.Context, alert TradeAlert) (string, error)
	SendArbAlert(ctx context.Context, alert ArbAlert) (string, error)
	Close() error
}

// MultiNotifier broadcasts alerts to multiple notifiers. The first
// non-empty message reference wins; per-channel failures are the
// channel's problem, not the pipeline's.
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a MultiNotifier, skipping nil notifiers.
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	var active []Notifier
	for _, n := range notifiers {
		if n != nil {
			active = append(active, n)
		}
	}
	return &MultiNotifier{notifiers: active}
}

func (m *MultiNotifier) SendTradeAlert(ctx context.Context, alert TradeAlert) (string, error) {
	var ref string
	var lastErr error
	for _, n := range m.notifiers {
		r, err := n.SendTradeAlert(ctx, alert)
		if err != nil {
			lastErr = err
			continue
		}
		if ref == "" {
			ref = r
		}
	}
	if ref != "" {
		return ref, nil
	}
	return "", lastErr
}

func (m *MultiNotifier) SendArbAlert(ctx context.Context, alert ArbAlert) (string, error) {
	var ref string
	var lastErr error
	for _, n := range m.notifiers {
		r, err := n.SendArbAlert(ctx, alert)
		if err != nil {
			lastErr = err
			continue
		}
		if ref == "" {
			ref = r
		}
	}
	if ref != "" {
		return ref, nil
	}
	return "", lastErr
}

// Close closes all registered notifiers.
func (m *MultiNotifier) Close() error {
	var lastErr error
	for _, n := range m.notifiers {
		if err := n.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Count returns the number of active notifiers.
func (m *MultiNotifier) Count() int {
	return len(m.notifiers)
}
