package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WalletTier controls how many opening-position alerts a wallet gets per day.
type WalletTier string

const (
	TierFree WalletTier = "free"
	TierPaid WalletTier = "paid"
)

// Per-tier daily alert quotas. A wallet-level override takes precedence.
const (
	FreeTierDailyAlerts = 1
	PaidTierDailyAlerts = 3
)

// TrackedWallet is a whale wallet the monitor polls for trades.
type TrackedWallet struct {
	ID      uuid.UUID  `db:"id"`
	Address string     `db:"address"`
	Label   string     `db:"label"`
	Tier    WalletTier `db:"tier"`

	// MinTradeUSD is the notional floor below which trades are recorded
	// but never alerted.
	MinTradeUSD decimal.Decimal `db:"min_trade_usd"`

	// AlertsPerDay overrides the tier quota when > 0.
	AlertsPerDay int `db:"alerts_per_day"`

	// CopyTrade enables the fixed-investment simulation for this wallet.
	CopyTrade       bool            `db:"copy_trade"`
	CopyTradeAmount decimal.Decimal `db:"copy_trade_amount"`

	Active    bool      `db:"active"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// DailyAlertQuota resolves the wallet's daily opening-alert allowance:
// explicit override first, then tier default.
func (w *TrackedWallet) DailyAlertQuota() int {
	if w.AlertsPerDay > 0 {
		return w.AlertsPerDay
	}
	if w.Tier == TierPaid {
		return PaidTierDailyAlerts
	}
	return FreeTierDailyAlerts
}

// DisplayName returns the label if set, otherwise a shortened address.
func (w *TrackedWallet) DisplayName() string {
	if strings.TrimSpace(w.Label) != "" {
		return w.Label
	}
	return ShortAddress(w.Address)
}

// NormalizeAddress lowercases a wallet address so lookups are
// case-insensitive. Addresses are stored normalized.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// ShortAddress truncates a 0x address for logs and alert text.
func ShortAddress(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-4:]
}

// FrequencyWindow tracks how many opening-position alerts a wallet has
// left in its current 24h window.
type FrequencyWindow struct {
	WalletID  uuid.UUID `db:"wallet_id"`
	Remaining int       `db:"remaining"`
	ResetAt   time.Time `db:"reset_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Expired reports whether the window should be reset before the next
// admission decision.
func (f *FrequencyWindow) Expired(now time.Time) bool {
	return !now.Before(f.ResetAt)
}
